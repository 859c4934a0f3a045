package upload

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/openmined/syftblob/internal/server/metrics"
)

// Cancel abandons an upload and removes its staged chunks. An upload whose last
// chunk already arrived is finalizing and cannot be cancelled.
func (u *Uploader) Cancel(ctx context.Context, sessionID string) error {
	session, err := u.sessions.ClaimTeardown(ctx, sessionID)
	if err != nil {
		return storeErr("claim teardown", err)
	}
	if err := u.teardown(ctx, session); err != nil {
		return unavailable("cancel", err)
	}
	slog.Info("upload cancelled", "session", sessionID)
	return nil
}

// Expire tears down a session past its TTL. Missing sessions are already gone,
// and a session being finalized is left alone.
func (u *Uploader) Expire(ctx context.Context, sessionID string) error {
	session, err := u.sessions.ClaimTeardown(ctx, sessionID)
	if errors.Is(err, ErrSessionNotFound) {
		return nil
	} else if err != nil {
		return storeErr("claim teardown", err)
	}
	return u.teardown(ctx, session)
}

// Sweep expires every session older than the session TTL and deletes draft
// objects older than the unconfirmed TTL. It returns how many went away.
func (u *Uploader) Sweep(ctx context.Context) (int, error) {
	cutoff := u.now().Add(-u.cfg.SessionTTL)
	ids, err := u.sessions.ListExpired(ctx, cutoff)
	if err != nil {
		return 0, unavailable("list expired", err)
	}

	expired := 0
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return expired, err
		}
		if err := u.Expire(ctx, id); err != nil {
			slog.Warn("session expire", "session", id, "error", err)
			continue
		}
		expired++
	}
	if expired > 0 {
		metrics.SessionsExpired.Add(float64(expired))
	}

	reaped, err := u.reapUnconfirmed(ctx)
	return expired + reaped, err
}

func (u *Uploader) reapUnconfirmed(ctx context.Context) (int, error) {
	stale, err := u.catalog.ListUnconfirmed(ctx, u.now().Add(-u.cfg.UnconfirmedTTL))
	if err != nil {
		return 0, unavailable("list unconfirmed", err)
	}

	reaped := 0
	for _, obj := range stale {
		if err := ctx.Err(); err != nil {
			return reaped, err
		}
		if _, err := u.DeleteObject(ctx, obj.BucketID, obj.ID); err != nil {
			slog.Warn("unconfirmed object delete", "object", obj.ID, "error", err)
			continue
		}
		reaped++
	}
	if reaped > 0 {
		metrics.ObjectsReaped.Add(float64(reaped))
		slog.Info("unconfirmed objects removed", "count", reaped)
	}
	return reaped, nil
}

// Start releases finalize claims left by a previous process, then sweeps expired
// sessions on a ticker until ctx is done
func (u *Uploader) Start(ctx context.Context) error {
	recovered, err := u.sessions.RecoverFinalizing(ctx)
	if err != nil {
		return err
	}
	if recovered > 0 {
		slog.Warn("released stale finalize claims", "sessions", recovered)
	}

	go func() {
		ticker := time.NewTicker(u.cfg.SweepInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				slog.Debug("session sweeper stopped")
				return
			case <-ticker.C:
				start := time.Now()
				n, err := u.Sweep(ctx)
				if err != nil {
					slog.Error("session sweeper", "error", err)
				}
				slog.Debug("session sweeper run", "expired", n, "took", time.Since(start))
			}
		}
	}()

	slog.Debug("session sweeper started", "interval", u.cfg.SweepInterval, "ttl", u.cfg.SessionTTL)
	return nil
}
