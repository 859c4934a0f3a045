package upload

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/openmined/syftblob/internal/server/blob"
	"github.com/openmined/syftblob/internal/server/catalog"
	"github.com/openmined/syftblob/internal/server/metrics"
	"golang.org/x/sync/errgroup"
)

const stagingDeleteConcurrency = 8

// Finalize retries promotion of a session whose chunks are all in but whose
// previous finalize failed on backend or catalog I/O.
func (u *Uploader) Finalize(ctx context.Context, sessionID string) (*catalog.Object, error) {
	if err := u.sessions.ClaimFinalize(ctx, sessionID); err != nil {
		return nil, storeErr("claim finalize", err)
	}

	session, err := u.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, storeErr("read session", err)
	}
	return u.finalize(ctx, session)
}

// finalize runs with the session claimed (StateFinalizing). It streams the staged
// chunks in index order through the hasher into a fresh permanent key, then either
// promotes the result, discards it as corrupt, or releases the claim for a retry.
func (u *Uploader) finalize(ctx context.Context, session *Session) (*catalog.Object, error) {
	start := time.Now()
	objectID := uuid.NewString()
	key := objectKey(session.BucketID, session.Digest, objectID)
	hasher := u.addresser.NewHasher()

	pr, pw := io.Pipe()
	assembled := make(chan error, 1)
	go func() {
		err := u.assemble(ctx, session, io.MultiWriter(pw, hasher))
		pw.CloseWithError(err)
		assembled <- err
	}()

	_, putErr := u.backend.PutObject(ctx, &blob.PutObjectParams{
		Key:  key,
		Size: session.Size,
		Body: pr,
	})
	// unblock the writer if the backend stopped reading early
	pr.CloseWithError(io.ErrClosedPipe)
	assembleErr := <-assembled

	cleanupCtx := context.WithoutCancel(ctx)

	if err := errors.Join(assembleErr, putErr); err != nil {
		u.discard(cleanupCtx, key)
		if rerr := u.sessions.ReleaseFinalize(cleanupCtx, session.ID); rerr != nil {
			slog.Error("release finalize", "session", session.ID, "error", rerr)
		}
		metrics.Finalized.WithLabelValues("backend_error").Inc()
		slog.Error("finalize failed", "session", session.ID, "error", err)
		return nil, unavailable("assemble object", err)
	}

	computed := HexSum(hasher)
	if !DigestsEqual(computed, session.Digest) {
		u.discard(cleanupCtx, key)
		if err := u.teardown(cleanupCtx, session); err != nil {
			slog.Error("teardown after mismatch", "session", session.ID, "error", err)
		}
		metrics.Finalized.WithLabelValues("digest_mismatch").Inc()
		slog.Warn("digest mismatch", "session", session.ID, "declared", session.Digest, "computed", computed)
		return nil, fmt.Errorf("%w: declared %s, computed %s", ErrDigestMismatch, session.Digest, computed)
	}

	obj, err := u.catalog.Create(cleanupCtx, &catalog.CreateParams{
		ID:       objectID,
		BucketID: session.BucketID,
		Name:     session.Name,
		Size:     session.Size,
		Digest:   session.Digest,
		Key:      key,
	})
	if err != nil {
		u.discard(cleanupCtx, key)
		if rerr := u.sessions.ReleaseFinalize(cleanupCtx, session.ID); rerr != nil {
			slog.Error("release finalize", "session", session.ID, "error", rerr)
		}
		metrics.Finalized.WithLabelValues("backend_error").Inc()
		return nil, unavailable("create object", err)
	}

	if err := u.teardown(cleanupCtx, session); err != nil {
		// the object is confirmed; leftovers are retried by the sweeper or left for ops
		slog.Warn("teardown after finalize", "session", session.ID, "error", err)
	}

	elapsed := time.Since(start)
	metrics.Finalized.WithLabelValues("confirmed").Inc()
	metrics.FinalizeSeconds.Observe(elapsed.Seconds())
	slog.Info("upload confirmed", "session", session.ID, "object", obj.ID, "bucket", obj.BucketID, "size", obj.Size, "took", elapsed)

	return obj, nil
}

func (u *Uploader) assemble(ctx context.Context, session *Session, w io.Writer) error {
	plan := session.Plan()
	for i := range plan.ChunkCount {
		if err := ctx.Err(); err != nil {
			return err
		}

		resp, err := u.backend.GetObject(ctx, stagingKey(session.ID, i))
		if err != nil {
			return fmt.Errorf("read chunk %d: %w", i, err)
		}
		stored, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return fmt.Errorf("read chunk %d: %w", i, err)
		}

		data, err := u.codec.decode(stored, plan.ChunkLen(i))
		if err != nil {
			return fmt.Errorf("decode chunk %d: %w", i, err)
		}
		if _, err := w.Write(data); err != nil {
			return err
		}
	}
	return nil
}

// teardown runs once the session is claimed, so chunks still in flight already
// find it gone and remove their own staged bytes. It deletes the session record,
// then every staging key.
func (u *Uploader) teardown(ctx context.Context, session *Session) error {
	if err := u.sessions.Delete(ctx, session.ID); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}

	var g errgroup.Group
	g.SetLimit(stagingDeleteConcurrency)
	for i := range session.ChunkCount {
		key := stagingKey(session.ID, i)
		g.Go(func() error {
			if _, err := u.backend.DeleteObject(ctx, key); err != nil {
				return fmt.Errorf("delete %s: %w", key, err)
			}
			return nil
		})
	}
	return g.Wait()
}

func (u *Uploader) discard(ctx context.Context, key string) {
	if _, err := u.backend.DeleteObject(ctx, key); err != nil {
		slog.Warn("discard object", "key", key, "error", err)
	}
}
