package bucket

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/openmined/syftblob/internal/db"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS buckets (
	id TEXT PRIMARY KEY,
	max_object_size INTEGER NOT NULL DEFAULT 0
);
`

// SqliteStore persists buckets and acts as the registry's Loader
type SqliteStore struct {
	db *sqlx.DB
}

func NewSqliteStore(conn *sqlx.DB) (*SqliteStore, error) {
	if err := db.Migrate(conn, schemaSQL); err != nil {
		return nil, fmt.Errorf("bucket schema: %w", err)
	}
	return &SqliteStore{db: conn}, nil
}

// Seed upserts the given buckets in one transaction
func (s *SqliteStore) Seed(ctx context.Context, buckets []Bucket) error {
	if len(buckets) == 0 {
		return nil
	}
	for _, b := range buckets {
		if err := b.Validate(); err != nil {
			return err
		}
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PreparexContext(ctx, `
		INSERT INTO buckets (id, max_object_size) VALUES (?, ?)
		ON CONFLICT(id) DO UPDATE SET max_object_size = excluded.max_object_size`)
	if err != nil {
		return fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	for _, b := range buckets {
		if _, err := stmt.ExecContext(ctx, b.ID, b.MaxObjectSize); err != nil {
			return fmt.Errorf("seed bucket %s: %w", b.ID, err)
		}
	}

	return tx.Commit()
}

func (s *SqliteStore) Load(ctx context.Context) ([]Bucket, error) {
	var buckets []Bucket
	if err := s.db.SelectContext(ctx, &buckets, `SELECT id, max_object_size FROM buckets ORDER BY id`); err != nil {
		return nil, fmt.Errorf("select buckets: %w", err)
	}
	return buckets, nil
}

var _ Loader = (*SqliteStore)(nil)
