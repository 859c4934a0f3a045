package upload

import (
	"errors"
	"fmt"

	"github.com/openmined/syftblob/internal/server/bucket"
	"github.com/openmined/syftblob/internal/server/catalog"
)

var (
	ErrInvalidRequest = errors.New("invalid request")
	ErrNotFound       = errors.New("not found")

	ErrChunkOutOfRange   = fmt.Errorf("%w: chunk index out of range", ErrInvalidRequest)
	ErrChunksPending     = fmt.Errorf("%w: chunks still pending", ErrInvalidRequest)
	ErrChunkSizeMismatch = fmt.Errorf("%w: chunk size mismatch", ErrInvalidRequest)
	ErrSessionNotFound   = fmt.Errorf("upload session %w", ErrNotFound)

	ErrDigestMismatch     = errors.New("digest mismatch")
	ErrFinalizeInProgress = errors.New("finalize in progress")
	ErrBackendUnavailable = errors.New("backend unavailable")
)

// IsNotFound reports whether err refers to a missing session, object or bucket
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, catalog.ErrObjectNotFound) ||
		errors.Is(err, bucket.ErrBucketNotFound)
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidRequest, fmt.Sprintf(format, args...))
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrBackendUnavailable, op, err)
}

// storeErr passes session outcomes through and reports session store I/O as unavailable
func storeErr(op string, err error) error {
	if errors.Is(err, ErrSessionNotFound) || errors.Is(err, ErrFinalizeInProgress) || errors.Is(err, ErrInvalidRequest) {
		return err
	}
	return unavailable(op, err)
}
