package upload

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/google/uuid"
	"github.com/openmined/syftblob/internal/server/blob"
	"github.com/openmined/syftblob/internal/server/catalog"
)

const maxConfirmIDs = 1000

type PutParams struct {
	BucketID string
	Name     string
	// Size is the declared length, or -1 when unknown
	Size int64
	// Digest is optional; when set the content must match it
	Digest string
	Body   io.Reader
	// Unconfirmed stores the object as a draft that must be confirmed before
	// the unconfirmed TTL runs out
	Unconfirmed bool
}

type PutResult struct {
	Object       *catalog.Object
	Deduplicated bool
}

// Put stores a whole object in one request. The body is spooled to disk while it
// is hashed, so a dedup hit never touches the backend.
func (u *Uploader) Put(ctx context.Context, params *PutParams) (*PutResult, error) {
	b, err := u.buckets.Get(params.BucketID)
	if err != nil {
		return nil, err
	}
	if err := validateName(params.Name); err != nil {
		return nil, err
	}
	limit := u.maxObjectSize(b)
	if params.Size > limit {
		return nil, invalid("size %d exceeds the limit of %d bytes", params.Size, limit)
	}
	declared := NormalizeDigest(params.Digest)
	if declared != "" {
		if err := ValidateDigest(declared); err != nil {
			return nil, err
		}
	}

	spool, err := os.CreateTemp(u.cfg.SpoolDir, "syftblob-put-*")
	if err != nil {
		return nil, unavailable("spool", err)
	}
	defer func() {
		spool.Close()
		os.Remove(spool.Name())
	}()

	hasher := u.addresser.NewHasher()
	size, err := io.Copy(io.MultiWriter(spool, hasher), io.LimitReader(params.Body, limit+1))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %w", ErrInvalidRequest, err)
	}
	if size > limit {
		return nil, invalid("body exceeds the limit of %d bytes", limit)
	}
	if params.Size >= 0 && size != params.Size {
		return nil, invalid("body is %d bytes, declared %d", size, params.Size)
	}

	digest := HexSum(hasher)
	if declared != "" && !DigestsEqual(declared, digest) {
		return nil, fmt.Errorf("%w: declared %s, computed %s", ErrDigestMismatch, declared, digest)
	}

	existing, err := u.catalog.FindByDigest(ctx, b.ID, digest)
	if err == nil {
		slog.Info("put dedup", "bucket", b.ID, "digest", digest, "object", existing.ID)
		return &PutResult{Object: existing, Deduplicated: true}, nil
	} else if !errors.Is(err, catalog.ErrObjectNotFound) {
		return nil, unavailable("catalog lookup", err)
	}

	if _, err := spool.Seek(0, io.SeekStart); err != nil {
		return nil, unavailable("spool", err)
	}

	objectID := uuid.NewString()
	key := objectKey(b.ID, digest, objectID)
	if _, err := u.backend.PutObject(ctx, &blob.PutObjectParams{Key: key, Size: size, Body: spool}); err != nil {
		return nil, unavailable("put object", err)
	}

	obj, err := u.catalog.Create(context.WithoutCancel(ctx), &catalog.CreateParams{
		ID:          objectID,
		BucketID:    b.ID,
		Name:        params.Name,
		Size:        size,
		Digest:      digest,
		Key:         key,
		Unconfirmed: params.Unconfirmed,
	})
	if err != nil {
		u.discard(context.WithoutCancel(ctx), key)
		return nil, unavailable("create object", err)
	}

	slog.Info("object stored", "bucket", b.ID, "object", obj.ID, "size", size)
	return &PutResult{Object: obj}, nil
}

type RapidParams struct {
	BucketID    string
	Name        string
	Digest      string
	Unconfirmed bool
}

// Rapid creates a new record under a new name for content the bucket already holds.
// Both records share the stored bytes.
func (u *Uploader) Rapid(ctx context.Context, params *RapidParams) (*catalog.Object, error) {
	b, err := u.buckets.Get(params.BucketID)
	if err != nil {
		return nil, err
	}
	if err := validateName(params.Name); err != nil {
		return nil, err
	}
	digest := NormalizeDigest(params.Digest)
	if err := ValidateDigest(digest); err != nil {
		return nil, err
	}

	existing, err := u.catalog.FindByDigest(ctx, b.ID, digest)
	if err != nil {
		if errors.Is(err, catalog.ErrObjectNotFound) {
			return nil, err
		}
		return nil, unavailable("catalog lookup", err)
	}

	obj, err := u.catalog.Create(ctx, &catalog.CreateParams{
		BucketID:    b.ID,
		Name:        params.Name,
		Size:        existing.Size,
		Digest:      existing.Digest,
		Key:         existing.Key,
		Unconfirmed: params.Unconfirmed,
	})
	if err != nil {
		return nil, unavailable("create object", err)
	}
	return obj, nil
}

// Confirm promotes draft objects so they are kept and become dedup targets.
// It returns how many objects changed.
func (u *Uploader) Confirm(ctx context.Context, bucketID string, ids []string) (int, error) {
	if _, err := u.buckets.Get(bucketID); err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, invalid("ids are required")
	}
	if len(ids) > maxConfirmIDs {
		return 0, invalid("at most %d ids per request", maxConfirmIDs)
	}

	n, err := u.catalog.Confirm(ctx, bucketID, ids)
	if err != nil {
		return 0, unavailable("confirm objects", err)
	}
	slog.Info("objects confirmed", "bucket", bucketID, "requested", len(ids), "confirmed", n)
	return n, nil
}

// ===================================================================================================

func (u *Uploader) Object(ctx context.Context, bucketID, id string) (*catalog.Object, error) {
	if _, err := u.buckets.Get(bucketID); err != nil {
		return nil, err
	}
	return u.catalog.Get(ctx, bucketID, id)
}

func (u *Uploader) Objects(ctx context.Context, bucketID string) ([]*catalog.Object, error) {
	if _, err := u.buckets.Get(bucketID); err != nil {
		return nil, err
	}
	return u.catalog.List(ctx, bucketID)
}

// Open returns the object record and a reader over its bytes; the caller closes it
func (u *Uploader) Open(ctx context.Context, bucketID, id string) (*catalog.Object, io.ReadCloser, error) {
	obj, err := u.Object(ctx, bucketID, id)
	if err != nil {
		return nil, nil, err
	}

	resp, err := u.backend.GetObject(ctx, obj.Key)
	if errors.Is(err, blob.ErrObjectNotFound) {
		slog.Error("object bytes missing", "object", obj.ID, "key", obj.Key)
		return nil, nil, fmt.Errorf("%w: content of %s", catalog.ErrObjectNotFound, obj.ID)
	} else if err != nil {
		return nil, nil, unavailable("get object", err)
	}
	return obj, resp.Body, nil
}

// DeleteObject removes the record, and the stored bytes once no record points at them
func (u *Uploader) DeleteObject(ctx context.Context, bucketID, id string) (*catalog.Object, error) {
	if _, err := u.buckets.Get(bucketID); err != nil {
		return nil, err
	}

	obj, err := u.catalog.Delete(ctx, bucketID, id)
	if err != nil {
		return nil, err
	}

	refs, err := u.catalog.CountByKey(ctx, obj.Key)
	if err != nil {
		slog.Error("count key references", "key", obj.Key, "error", err)
		return obj, nil
	}
	if refs == 0 {
		u.discard(context.WithoutCancel(ctx), obj.Key)
	}

	slog.Info("object deleted", "bucket", bucketID, "object", id, "references", refs)
	return obj, nil
}
