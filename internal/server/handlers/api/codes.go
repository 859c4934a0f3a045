package api

const (
	// Generic request/server errors
	CodeInvalidRequest = "E_INVALID_REQUEST" // bad or invalid request
	CodeRateLimited    = "E_RATE_LIMITED"    // rate limit exceeded
	CodeInternalError  = "E_INTERNAL_ERROR"  // internal server error

	// Lookup errors
	CodeBucketNotFound = "E_BUCKET_NOT_FOUND" // the bucket is not registered
	CodeUploadNotFound = "E_UPLOAD_NOT_FOUND" // the upload session does not exist, or has finished or expired
	CodeObjectNotFound = "E_OBJECT_NOT_FOUND" // no object with that id in the bucket

	// Upload errors
	CodeChunkOutOfRange    = "E_CHUNK_OUT_OF_RANGE"   // chunk index outside [0, chunkCount)
	CodeChunkSizeMismatch  = "E_CHUNK_SIZE_MISMATCH"  // chunk body length differs from the planned length
	CodeChunksPending      = "E_CHUNKS_PENDING"       // finalize requested before every chunk arrived
	CodeDigestMismatch     = "E_DIGEST_MISMATCH"      // assembled content does not match the declared digest
	CodeFinalizeInProgress = "E_FINALIZE_IN_PROGRESS" // another request is already finalizing this upload
	CodeBackendUnavailable = "E_BACKEND_UNAVAILABLE"  // storage or catalog I/O failed, safe to retry
)
