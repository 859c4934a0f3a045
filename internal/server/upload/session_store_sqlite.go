package upload

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/openmined/syftblob/internal/db"
)

const sessionSchemaSQL = `
CREATE TABLE IF NOT EXISTS upload_sessions (
	id TEXT PRIMARY KEY,
	bucket_id TEXT NOT NULL,
	name TEXT NOT NULL,
	digest TEXT NOT NULL,
	size INTEGER NOT NULL,
	chunk_size INTEGER NOT NULL,
	chunk_count INTEGER NOT NULL,
	state TEXT NOT NULL,
	created_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_upload_sessions_state_created ON upload_sessions(state, created_at);

CREATE TABLE IF NOT EXISTS upload_pending (
	session_id TEXT NOT NULL REFERENCES upload_sessions(id) ON DELETE CASCADE,
	chunk_index INTEGER NOT NULL,
	PRIMARY KEY (session_id, chunk_index)
) WITHOUT ROWID;
`

type sessionRow struct {
	ID         string `db:"id"`
	BucketID   string `db:"bucket_id"`
	Name       string `db:"name"`
	Digest     string `db:"digest"`
	Size       int64  `db:"size"`
	ChunkSize  int64  `db:"chunk_size"`
	ChunkCount int    `db:"chunk_count"`
	State      string `db:"state"`
	CreatedAt  int64  `db:"created_at"`
}

// SqliteSessionStore persists sessions so uploads resume across restarts.
// Every mutation runs in its own transaction; the connection opens them as
// BEGIN IMMEDIATE, so writers are serialized and each update is linearizable.
type SqliteSessionStore struct {
	db *sqlx.DB
}

func NewSqliteSessionStore(conn *sqlx.DB) (*SqliteSessionStore, error) {
	if err := db.Migrate(conn, sessionSchemaSQL); err != nil {
		return nil, fmt.Errorf("session schema: %w", err)
	}
	return &SqliteSessionStore{db: conn}, nil
}

func (s *SqliteSessionStore) inTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

// lockSession reads a live session; cancelling sessions count as missing
func lockSession(ctx context.Context, tx *sqlx.Tx, id string) (*sessionRow, error) {
	row, err := lockAnySession(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if SessionState(row.State) == StateCancelling {
		return nil, ErrSessionNotFound
	}
	return row, nil
}

func lockAnySession(ctx context.Context, tx *sqlx.Tx, id string) (*sessionRow, error) {
	var row sessionRow
	err := tx.GetContext(ctx, &row, `SELECT * FROM upload_sessions WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSessionNotFound
	} else if err != nil {
		return nil, fmt.Errorf("select session: %w", err)
	}
	return &row, nil
}

func selectPending(ctx context.Context, tx *sqlx.Tx, id string) (mapset.Set[int], error) {
	var indices []int
	if err := tx.SelectContext(ctx, &indices,
		`SELECT chunk_index FROM upload_pending WHERE session_id = ? ORDER BY chunk_index`, id,
	); err != nil {
		return nil, fmt.Errorf("select pending: %w", err)
	}
	pending := mapset.NewThreadUnsafeSetWithSize[int](len(indices))
	for _, i := range indices {
		pending.Add(i)
	}
	return pending, nil
}

func countPending(ctx context.Context, tx *sqlx.Tx, id string) (int, error) {
	var n int
	if err := tx.GetContext(ctx, &n, `SELECT COUNT(*) FROM upload_pending WHERE session_id = ?`, id); err != nil {
		return 0, fmt.Errorf("count pending: %w", err)
	}
	return n, nil
}

func (s *SqliteSessionStore) Create(ctx context.Context, params *CreateSessionParams) (*Session, error) {
	plan, err := NewPlan(params.Size, params.ChunkSize)
	if err != nil {
		return nil, err
	}

	row := &sessionRow{
		ID:         uuid.NewString(),
		BucketID:   params.BucketID,
		Name:       params.Name,
		Digest:     params.Digest,
		Size:       plan.Size,
		ChunkSize:  plan.ChunkSize,
		ChunkCount: plan.ChunkCount,
		State:      string(StateUploading),
		CreatedAt:  time.Now().UnixMilli(),
	}

	err = s.inTx(ctx, func(tx *sqlx.Tx) error {
		_, err := tx.NamedExecContext(ctx, `
			INSERT INTO upload_sessions (id, bucket_id, name, digest, size, chunk_size, chunk_count, state, created_at)
			VALUES (:id, :bucket_id, :name, :digest, :size, :chunk_size, :chunk_count, :state, :created_at)`,
			row,
		)
		if err != nil {
			return fmt.Errorf("insert session: %w", err)
		}
		if row.ChunkCount == 0 {
			return nil
		}
		_, err = tx.ExecContext(ctx, `
			WITH RECURSIVE seq(i) AS (SELECT 0 UNION ALL SELECT i + 1 FROM seq WHERE i + 1 < ?)
			INSERT INTO upload_pending (session_id, chunk_index) SELECT ?, i FROM seq`,
			row.ChunkCount, row.ID,
		)
		if err != nil {
			return fmt.Errorf("insert pending: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return row.toSession(newPendingSet(row.ChunkCount)), nil
}

func (s *SqliteSessionStore) Get(ctx context.Context, id string) (*Session, error) {
	var session *Session
	err := s.inTx(ctx, func(tx *sqlx.Tx) error {
		row, err := lockSession(ctx, tx, id)
		if err != nil {
			return err
		}
		pending, err := selectPending(ctx, tx, id)
		if err != nil {
			return err
		}
		session = row.toSession(pending)
		return nil
	})
	return session, err
}

func (s *SqliteSessionStore) MarkReceived(ctx context.Context, id string, index int) (MarkResult, error) {
	var result MarkResult
	err := s.inTx(ctx, func(tx *sqlx.Tx) error {
		row, err := lockSession(ctx, tx, id)
		if err != nil {
			return err
		}
		if index < 0 || index >= row.ChunkCount {
			return ErrChunkOutOfRange
		}

		res, err := tx.ExecContext(ctx,
			`DELETE FROM upload_pending WHERE session_id = ? AND chunk_index = ?`, id, index)
		if err != nil {
			return fmt.Errorf("delete pending: %w", err)
		}
		removed, err := res.RowsAffected()
		if err != nil {
			return err
		}

		if result.Remaining, err = countPending(ctx, tx, id); err != nil {
			return err
		}

		if removed == 1 && result.Remaining == 0 {
			if _, err := tx.ExecContext(ctx,
				`UPDATE upload_sessions SET state = ? WHERE id = ?`, string(StateFinalizing), id,
			); err != nil {
				return fmt.Errorf("update state: %w", err)
			}
			result.Completed = true
		}
		return nil
	})
	if err != nil {
		return MarkResult{}, err
	}
	return result, nil
}

func (s *SqliteSessionStore) ClaimFinalize(ctx context.Context, id string) error {
	return s.inTx(ctx, func(tx *sqlx.Tx) error {
		row, err := lockSession(ctx, tx, id)
		if err != nil {
			return err
		}
		if SessionState(row.State) == StateFinalizing {
			return ErrFinalizeInProgress
		}
		remaining, err := countPending(ctx, tx, id)
		if err != nil {
			return err
		}
		if remaining > 0 {
			return ErrChunksPending
		}
		_, err = tx.ExecContext(ctx, `UPDATE upload_sessions SET state = ? WHERE id = ?`, string(StateFinalizing), id)
		return err
	})
}

func (s *SqliteSessionStore) ReleaseFinalize(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE upload_sessions SET state = ? WHERE id = ? AND state = ?`, string(StateUploading), id, string(StateFinalizing))
	if err != nil {
		return fmt.Errorf("release finalize: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrSessionNotFound
	}
	return nil
}

func (s *SqliteSessionStore) ClaimTeardown(ctx context.Context, id string) (*Session, error) {
	var session *Session
	err := s.inTx(ctx, func(tx *sqlx.Tx) error {
		row, err := lockAnySession(ctx, tx, id)
		if err != nil {
			return err
		}
		if SessionState(row.State) == StateFinalizing {
			return ErrFinalizeInProgress
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE upload_sessions SET state = ? WHERE id = ?`, string(StateCancelling), id,
		); err != nil {
			return fmt.Errorf("update state: %w", err)
		}
		pending, err := selectPending(ctx, tx, id)
		if err != nil {
			return err
		}
		row.State = string(StateCancelling)
		session = row.toSession(pending)
		return nil
	})
	return session, err
}

func (s *SqliteSessionStore) Delete(ctx context.Context, id string) error {
	return s.inTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM upload_pending WHERE session_id = ?`, id); err != nil {
			return fmt.Errorf("delete pending: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM upload_sessions WHERE id = ?`, id); err != nil {
			return fmt.Errorf("delete session: %w", err)
		}
		return nil
	})
}

func (s *SqliteSessionStore) ListExpired(ctx context.Context, before time.Time) ([]string, error) {
	var ids []string
	err := s.db.SelectContext(ctx, &ids,
		`SELECT id FROM upload_sessions WHERE state IN (?, ?) AND created_at < ? ORDER BY created_at`,
		string(StateUploading), string(StateCancelling), before.UnixMilli(),
	)
	if err != nil {
		return nil, fmt.Errorf("list expired: %w", err)
	}
	return ids, nil
}

func (s *SqliteSessionStore) RecoverFinalizing(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE upload_sessions SET state = ? WHERE state = ?`, string(StateUploading), string(StateFinalizing))
	if err != nil {
		return 0, fmt.Errorf("recover finalizing: %w", err)
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// Close is a no-op; the database handle belongs to the server
func (s *SqliteSessionStore) Close() error {
	return nil
}

func (r *sessionRow) toSession(pending mapset.Set[int]) *Session {
	return &Session{
		ID:         r.ID,
		BucketID:   r.BucketID,
		Name:       r.Name,
		Digest:     r.Digest,
		Size:       r.Size,
		ChunkSize:  r.ChunkSize,
		ChunkCount: r.ChunkCount,
		Pending:    pending,
		State:      SessionState(r.State),
		CreatedAt:  time.UnixMilli(r.CreatedAt).UTC(),
	}
}

var _ SessionStore = (*SqliteSessionStore)(nil)
