package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/openmined/syftblob/internal/db"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS objects (
	id TEXT PRIMARY KEY,
	bucket_id TEXT NOT NULL,
	name TEXT NOT NULL,
	size INTEGER NOT NULL,
	digest TEXT NOT NULL,
	key TEXT NOT NULL,
	confirmed INTEGER NOT NULL DEFAULT 0,
	created_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_objects_bucket_digest ON objects(bucket_id, digest);
CREATE INDEX IF NOT EXISTS idx_objects_key ON objects(key);
CREATE INDEX IF NOT EXISTS idx_objects_confirmed_created ON objects(confirmed, created_at);
`

const selectObject = `SELECT id, bucket_id, name, size, digest, key, confirmed, created_at FROM objects`

type objectRow struct {
	ID        string `db:"id"`
	BucketID  string `db:"bucket_id"`
	Name      string `db:"name"`
	Size      int64  `db:"size"`
	Digest    string `db:"digest"`
	Key       string `db:"key"`
	Confirmed bool   `db:"confirmed"`
	CreatedAt int64  `db:"created_at"`
}

func (r *objectRow) toObject() *Object {
	return &Object{
		ID:        r.ID,
		BucketID:  r.BucketID,
		Name:      r.Name,
		Size:      r.Size,
		Digest:    r.Digest,
		Key:       r.Key,
		Confirmed: r.Confirmed,
		CreatedAt: time.UnixMilli(r.CreatedAt).UTC(),
	}
}

// SqliteCatalog stores object records in the shared sqlite database
type SqliteCatalog struct {
	db *sqlx.DB
}

func NewSqliteCatalog(conn *sqlx.DB) (*SqliteCatalog, error) {
	if err := db.Migrate(conn, schemaSQL); err != nil {
		return nil, fmt.Errorf("catalog schema: %w", err)
	}
	return &SqliteCatalog{db: conn}, nil
}

func (c *SqliteCatalog) FindByDigest(ctx context.Context, bucketID, digest string) (*Object, error) {
	var row objectRow
	err := c.db.GetContext(ctx, &row,
		selectObject+` WHERE bucket_id = ? AND digest = ? AND confirmed = 1 ORDER BY created_at, id LIMIT 1`,
		bucketID, strings.ToLower(digest),
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrObjectNotFound
	} else if err != nil {
		return nil, fmt.Errorf("find by digest: %w", err)
	}
	return row.toObject(), nil
}

func (c *SqliteCatalog) Create(ctx context.Context, params *CreateParams) (*Object, error) {
	id := params.ID
	if id == "" {
		id = uuid.NewString()
	}

	row := &objectRow{
		ID:        id,
		BucketID:  params.BucketID,
		Name:      params.Name,
		Size:      params.Size,
		Digest:    strings.ToLower(params.Digest),
		Key:       params.Key,
		Confirmed: !params.Unconfirmed,
		CreatedAt: time.Now().UnixMilli(),
	}

	_, err := c.db.NamedExecContext(ctx, `
		INSERT INTO objects (id, bucket_id, name, size, digest, key, confirmed, created_at)
		VALUES (:id, :bucket_id, :name, :size, :digest, :key, :confirmed, :created_at)`,
		row,
	)
	if err != nil {
		return nil, fmt.Errorf("create object: %w", err)
	}
	return row.toObject(), nil
}

func (c *SqliteCatalog) Confirm(ctx context.Context, bucketID string, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	query, args, err := sqlx.In(
		`UPDATE objects SET confirmed = 1 WHERE bucket_id = ? AND confirmed = 0 AND id IN (?)`,
		bucketID, ids,
	)
	if err != nil {
		return 0, fmt.Errorf("confirm objects: %w", err)
	}
	res, err := c.db.ExecContext(ctx, c.db.Rebind(query), args...)
	if err != nil {
		return 0, fmt.Errorf("confirm objects: %w", err)
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func (c *SqliteCatalog) ListUnconfirmed(ctx context.Context, before time.Time) ([]*Object, error) {
	var rows []objectRow
	err := c.db.SelectContext(ctx, &rows,
		selectObject+` WHERE confirmed = 0 AND created_at < ? ORDER BY created_at, id`, before.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("list unconfirmed: %w", err)
	}

	objects := make([]*Object, 0, len(rows))
	for i := range rows {
		objects = append(objects, rows[i].toObject())
	}
	return objects, nil
}

func (c *SqliteCatalog) Get(ctx context.Context, bucketID, id string) (*Object, error) {
	var row objectRow
	err := c.db.GetContext(ctx, &row, selectObject+` WHERE bucket_id = ? AND id = ?`, bucketID, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrObjectNotFound
	} else if err != nil {
		return nil, fmt.Errorf("get object: %w", err)
	}
	return row.toObject(), nil
}

func (c *SqliteCatalog) List(ctx context.Context, bucketID string) ([]*Object, error) {
	var rows []objectRow
	err := c.db.SelectContext(ctx, &rows, selectObject+` WHERE bucket_id = ? ORDER BY created_at, id`, bucketID)
	if err != nil {
		return nil, fmt.Errorf("list objects: %w", err)
	}

	objects := make([]*Object, 0, len(rows))
	for i := range rows {
		objects = append(objects, rows[i].toObject())
	}
	return objects, nil
}

func (c *SqliteCatalog) Delete(ctx context.Context, bucketID, id string) (*Object, error) {
	tx, err := c.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	var row objectRow
	err = tx.GetContext(ctx, &row, selectObject+` WHERE bucket_id = ? AND id = ?`, bucketID, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrObjectNotFound
	} else if err != nil {
		return nil, fmt.Errorf("delete object: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM objects WHERE id = ?`, id); err != nil {
		return nil, fmt.Errorf("delete object: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return row.toObject(), nil
}

func (c *SqliteCatalog) CountByKey(ctx context.Context, key string) (int, error) {
	var count int
	if err := c.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM objects WHERE key = ?`, key); err != nil {
		return 0, fmt.Errorf("count by key: %w", err)
	}
	return count, nil
}

var _ Catalog = (*SqliteCatalog)(nil)
