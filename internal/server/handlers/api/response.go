package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/openmined/syftblob/internal/server/bucket"
	"github.com/openmined/syftblob/internal/server/catalog"
	"github.com/openmined/syftblob/internal/server/upload"
)

func AbortWithError(ctx *gin.Context, status int, code string, err error) {
	ctx.Abort()
	ctx.Error(err)
	ctx.PureJSON(status, SyftAPIError{
		Code:    code,
		Message: err.Error(),
	})
}

// AbortWithServiceError maps an engine error onto its status and code
func AbortWithServiceError(ctx *gin.Context, err error) {
	status, code := Classify(err)
	AbortWithError(ctx, status, code, err)
}

// Classify returns the HTTP status and error code for an engine error.
// Specific sentinels are checked before the InvalidRequest family they wrap.
func Classify(err error) (int, string) {
	switch {
	case errors.Is(err, upload.ErrChunkSizeMismatch):
		return http.StatusBadRequest, CodeChunkSizeMismatch
	case errors.Is(err, upload.ErrChunkOutOfRange):
		return http.StatusBadRequest, CodeChunkOutOfRange
	case errors.Is(err, upload.ErrChunksPending):
		return http.StatusBadRequest, CodeChunksPending
	case errors.Is(err, upload.ErrInvalidRequest):
		return http.StatusBadRequest, CodeInvalidRequest
	case errors.Is(err, upload.ErrSessionNotFound):
		return http.StatusNotFound, CodeUploadNotFound
	case errors.Is(err, bucket.ErrBucketNotFound):
		return http.StatusNotFound, CodeBucketNotFound
	case errors.Is(err, catalog.ErrObjectNotFound):
		return http.StatusNotFound, CodeObjectNotFound
	case errors.Is(err, upload.ErrFinalizeInProgress):
		return http.StatusConflict, CodeFinalizeInProgress
	case errors.Is(err, upload.ErrDigestMismatch):
		return http.StatusUnprocessableEntity, CodeDigestMismatch
	case errors.Is(err, upload.ErrBackendUnavailable):
		return http.StatusServiceUnavailable, CodeBackendUnavailable
	default:
		return http.StatusInternalServerError, CodeInternalError
	}
}
