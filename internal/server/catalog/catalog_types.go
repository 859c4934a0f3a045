package catalog

import (
	"context"
	"errors"
	"time"
)

var ErrObjectNotFound = errors.New("object not found")

// Object is an immutable record of stored content. Unconfirmed objects are
// never dedup targets and are removed once they outlive the unconfirmed TTL.
type Object struct {
	ID        string    `json:"id"`
	BucketID  string    `json:"bucketId"`
	Name      string    `json:"name"`
	Size      int64     `json:"size"`
	Digest    string    `json:"digest"`
	Key       string    `json:"-"`
	Confirmed bool      `json:"confirmed"`
	CreatedAt time.Time `json:"createdAt"`
}

type CreateParams struct {
	// ID is optional. Callers that need the id before the record exists
	// (to derive the storage key) allocate it themselves.
	ID       string
	BucketID string
	Name     string
	Size     int64
	Digest   string
	Key      string
	// Unconfirmed records wait for Confirm before they count as stored
	Unconfirmed bool
}

type Catalog interface {
	// FindByDigest returns the oldest confirmed object in the bucket with the digest,
	// or ErrObjectNotFound
	FindByDigest(ctx context.Context, bucketID, digest string) (*Object, error)

	Create(ctx context.Context, params *CreateParams) (*Object, error)

	// Confirm marks unconfirmed objects in the bucket as confirmed and returns
	// how many changed. Unknown or already confirmed ids are skipped.
	Confirm(ctx context.Context, bucketID string, ids []string) (int, error)

	// ListUnconfirmed returns unconfirmed objects created before the cutoff
	ListUnconfirmed(ctx context.Context, before time.Time) ([]*Object, error)

	Get(ctx context.Context, bucketID, id string) (*Object, error)
	List(ctx context.Context, bucketID string) ([]*Object, error)

	// Delete removes the record and returns it. The bytes are the caller's concern.
	Delete(ctx context.Context, bucketID, id string) (*Object, error)

	// CountByKey returns how many records point at a storage key
	CountByKey(ctx context.Context, key string) (int, error)
}
