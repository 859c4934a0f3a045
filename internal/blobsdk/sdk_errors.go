package blobsdk

import (
	"errors"
	"fmt"

	"github.com/imroc/req/v3"
)

var (
	ErrNoServerURL   = errors.New("sdk: server url missing")
	ErrFileNotFound  = errors.New("sdk: file not found")
	ErrUploadLocked  = errors.New("sdk: file is being uploaded by another process")
	ErrUploadChanged = errors.New("sdk: file changed during upload")
)

const (
	CodeInvalidRequest     = "E_INVALID_REQUEST"
	CodeRateLimited        = "E_RATE_LIMITED"
	CodeInternalError      = "E_INTERNAL_ERROR"
	CodeBucketNotFound     = "E_BUCKET_NOT_FOUND"
	CodeUploadNotFound     = "E_UPLOAD_NOT_FOUND"
	CodeObjectNotFound     = "E_OBJECT_NOT_FOUND"
	CodeChunkOutOfRange    = "E_CHUNK_OUT_OF_RANGE"
	CodeChunkSizeMismatch  = "E_CHUNK_SIZE_MISMATCH"
	CodeChunksPending      = "E_CHUNKS_PENDING"
	CodeDigestMismatch     = "E_DIGEST_MISMATCH"
	CodeFinalizeInProgress = "E_FINALIZE_IN_PROGRESS"
	CodeBackendUnavailable = "E_BACKEND_UNAVAILABLE"
)

// APIError is the error body every failed request returns
type APIError struct {
	StatusCode int    `json:"-"`
	Code       string `json:"code"`
	Message    string `json:"error"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: %s - %s", e.Code, e.Message)
}

// IsCode reports whether err carries an API error with the code
func IsCode(err error, code string) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Code == code
}

func handleAPIError(resp *req.Response, requestErr error, operation string) error {
	if requestErr != nil {
		return fmt.Errorf("http request error: %s %w", operation, requestErr)
	}

	if resp.IsErrorState() {
		if apiErr, ok := resp.ErrorResult().(*APIError); ok && apiErr.Code != "" {
			apiErr.StatusCode = resp.StatusCode
			return fmt.Errorf("%s %w", operation, apiErr)
		}
		return fmt.Errorf("api error: %s status %d", operation, resp.StatusCode)
	}

	return nil
}
