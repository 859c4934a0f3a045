package upload

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/openmined/syftblob/internal/server/blob"
	"github.com/openmined/syftblob/internal/server/bucket"
	"github.com/openmined/syftblob/internal/server/catalog"
	"github.com/openmined/syftblob/internal/server/metrics"
)

const maxNameLen = 1024

// BucketResolver is satisfied by *bucket.Registry
type BucketResolver interface {
	Get(id string) (bucket.Bucket, error)
}

// Uploader coordinates sessions, staged chunks, the catalog and the backend.
// It holds no per-upload state of its own; all of it lives in the SessionStore.
type Uploader struct {
	cfg       *Config
	sessions  SessionStore
	catalog   catalog.Catalog
	backend   blob.Backend
	buckets   BucketResolver
	addresser *Addresser
	codec     *stagingCodec
	now       func() time.Time
}

func NewUploader(cfg *Config, sessions SessionStore, cat catalog.Catalog, backend blob.Backend, buckets BucketResolver) (*Uploader, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	addresser, err := NewAddresser(cfg.DigestAlgorithm)
	if err != nil {
		return nil, err
	}

	codec, err := newStagingCodec(cfg.StagingCompression)
	if err != nil {
		return nil, err
	}

	return &Uploader{
		cfg:       cfg,
		sessions:  sessions,
		catalog:   cat,
		backend:   backend,
		buckets:   buckets,
		addresser: addresser,
		codec:     codec,
		now:       time.Now,
	}, nil
}

// Addresser exposes the digest algorithm, so clients can be told which one to use
func (u *Uploader) Addresser() *Addresser {
	return u.addresser
}

func (u *Uploader) Close() error {
	u.codec.Close()
	return u.sessions.Close()
}

// ===================================================================================================

type InitiateParams struct {
	BucketID string
	Name     string
	Size     int64
	Digest   string
}

type InitiateResult struct {
	// SessionID is empty on a dedup hit
	SessionID  string
	Object     *catalog.Object
	ChunkSize  int64
	ChunkCount int
	Pending    []int
}

func (u *Uploader) Initiate(ctx context.Context, params *InitiateParams) (*InitiateResult, error) {
	b, err := u.buckets.Get(params.BucketID)
	if err != nil {
		return nil, err
	}
	if err := validateName(params.Name); err != nil {
		return nil, err
	}
	if params.Size <= 0 {
		return nil, invalid("size must be positive, use a single-shot put for empty objects")
	}
	if limit := u.maxObjectSize(b); params.Size > limit {
		return nil, invalid("size %d exceeds the limit of %d bytes", params.Size, limit)
	}
	digest := NormalizeDigest(params.Digest)
	if err := ValidateDigest(digest); err != nil {
		return nil, err
	}

	existing, err := u.catalog.FindByDigest(ctx, b.ID, digest)
	switch {
	case err == nil:
		metrics.UploadsInitiated.WithLabelValues("dedup").Inc()
		slog.Info("upload dedup", "bucket", b.ID, "digest", digest, "object", existing.ID)
		return &InitiateResult{
			Object:    existing,
			ChunkSize: u.cfg.ChunkSize,
			Pending:   []int{},
		}, nil
	case !errors.Is(err, catalog.ErrObjectNotFound):
		return nil, unavailable("catalog lookup", err)
	}

	session, err := u.sessions.Create(ctx, &CreateSessionParams{
		BucketID:  b.ID,
		Name:      params.Name,
		Digest:    digest,
		Size:      params.Size,
		ChunkSize: u.cfg.ChunkSize,
	})
	if err != nil {
		if errors.Is(err, ErrInvalidRequest) {
			return nil, err
		}
		return nil, unavailable("create session", err)
	}

	metrics.UploadsInitiated.WithLabelValues("session").Inc()
	slog.Info("upload initiated", "session", session.ID, "bucket", b.ID, "size", session.Size, "chunks", session.ChunkCount)

	return &InitiateResult{
		SessionID:  session.ID,
		ChunkSize:  session.ChunkSize,
		ChunkCount: session.ChunkCount,
		Pending:    session.PendingSorted(),
	}, nil
}

// ===================================================================================================

type ChunkResult struct {
	Pending []int
	// Object is set on the call that completed the upload
	Object *catalog.Object
}

func (u *Uploader) AcceptChunk(ctx context.Context, sessionID string, index int, data []byte) (*ChunkResult, error) {
	session, err := u.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, storeErr("read session", err)
	}

	plan := session.Plan()
	if !plan.InRange(index) {
		return nil, fmt.Errorf("%w: %d not in [0, %d)", ErrChunkOutOfRange, index, plan.ChunkCount)
	}
	if want := plan.ChunkLen(index); int64(len(data)) != want {
		return nil, fmt.Errorf("%w: chunk %d is %d bytes, expected %d", ErrChunkSizeMismatch, index, len(data), want)
	}

	// already received, nothing to write
	if !session.Pending.Contains(index) {
		return &ChunkResult{Pending: session.PendingSorted()}, nil
	}

	key := stagingKey(sessionID, index)
	encoded := u.codec.encode(data)
	if _, err := u.backend.PutObject(ctx, &blob.PutObjectParams{
		Key:  key,
		Size: int64(len(encoded)),
		Body: bytes.NewReader(encoded),
	}); err != nil {
		return nil, unavailable("stage chunk", err)
	}

	mark, err := u.sessions.MarkReceived(ctx, sessionID, index)
	if errors.Is(err, ErrSessionNotFound) {
		// session ended while the chunk was in flight
		if _, derr := u.backend.DeleteObject(context.WithoutCancel(ctx), key); derr != nil {
			slog.Warn("orphan chunk cleanup", "key", key, "error", derr)
		}
		return nil, err
	} else if err != nil {
		return nil, storeErr("mark received", err)
	}

	metrics.ChunksAccepted.Inc()
	metrics.ChunkBytes.Add(float64(len(data)))
	slog.Debug("chunk accepted", "session", sessionID, "index", index, "remaining", mark.Remaining)

	if mark.Completed {
		obj, err := u.finalize(ctx, session)
		if err != nil {
			return nil, err
		}
		return &ChunkResult{Pending: []int{}, Object: obj}, nil
	}

	current, err := u.sessions.Get(ctx, sessionID)
	if errors.Is(err, ErrSessionNotFound) {
		return &ChunkResult{Pending: []int{}}, nil
	} else if err != nil {
		return nil, unavailable("read session", err)
	}
	return &ChunkResult{Pending: current.PendingSorted()}, nil
}

// ===================================================================================================

type StatusResult struct {
	SessionID  string
	BucketID   string
	Name       string
	Size       int64
	Digest     string
	Pending    []int
	ChunkSize  int64
	ChunkCount int
	State      SessionState
	CreatedAt  time.Time
	ExpiresAt  time.Time
}

func (u *Uploader) Status(ctx context.Context, sessionID string) (*StatusResult, error) {
	session, err := u.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, storeErr("read session", err)
	}
	return &StatusResult{
		SessionID:  session.ID,
		BucketID:   session.BucketID,
		Name:       session.Name,
		Size:       session.Size,
		Digest:     session.Digest,
		Pending:    session.PendingSorted(),
		ChunkSize:  session.ChunkSize,
		ChunkCount: session.ChunkCount,
		State:      session.State,
		CreatedAt:  session.CreatedAt,
		ExpiresAt:  session.CreatedAt.Add(u.cfg.SessionTTL),
	}, nil
}

// ===================================================================================================

func (u *Uploader) maxObjectSize(b bucket.Bucket) int64 {
	if b.MaxObjectSize > 0 {
		return b.MaxObjectSize
	}
	return u.cfg.MaxObjectSize
}

func validateName(name string) error {
	if name == "" {
		return invalid("name is required")
	}
	if len(name) > maxNameLen {
		return invalid("name longer than %d bytes", maxNameLen)
	}
	if !utf8.ValidString(name) {
		return invalid("name is not valid utf-8")
	}
	return nil
}
