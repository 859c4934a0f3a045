package blob

import (
	"context"
	"errors"
	"io"
	"time"
)

var (
	ErrInvalidKey     = errors.New("invalid key")
	ErrObjectNotFound = errors.New("object not found")
	ErrUnknownBackend = errors.New("unknown backend type")
	ErrShortBody      = errors.New("body shorter than declared size")
)

// Backend is the byte store behind the upload engine. Keys are opaque to it.
// Implementations must make PutObject atomic: a reader never observes a partially
// written key, and a failed put leaves no object behind.
type Backend interface {
	// PutObject writes exactly params.Size bytes from params.Body under params.Key,
	// replacing any previous content.
	PutObject(ctx context.Context, params *PutObjectParams) (*PutObjectResponse, error)

	// GetObject opens the object for reading. Missing keys return ErrObjectNotFound.
	GetObject(ctx context.Context, key string) (*GetObjectResponse, error)

	// DeleteObject removes the key. Deleting a missing key is not an error.
	DeleteObject(ctx context.Context, key string) (bool, error)

	// Name identifies the backend in logs and metrics
	Name() string
}

// ===================================================================================================

type GetObjectResponse struct {
	Body         io.ReadCloser
	ETag         string
	Size         int64
	LastModified time.Time
}

// ===================================================================================================

type PutObjectParams struct {
	Key  string
	Size int64
	Body io.Reader
}

type PutObjectResponse struct {
	Key          string
	Version      string
	ETag         string
	Size         int64
	LastModified time.Time
}
