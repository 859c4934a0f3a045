package server

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"
	"github.com/openmined/syftblob/internal/server/blob"
	"github.com/openmined/syftblob/internal/server/bucket"
	"github.com/openmined/syftblob/internal/server/catalog"
	"github.com/openmined/syftblob/internal/server/upload"
)

type Services struct {
	Backend  blob.Backend
	Buckets  *bucket.Registry
	Catalog  catalog.Catalog
	Uploader *upload.Uploader
}

func NewServices(ctx context.Context, config *Config, db *sqlx.DB) (*Services, error) {
	backend, err := blob.NewBackend(ctx, &config.Blob)
	if err != nil {
		return nil, fmt.Errorf("blob backend: %w", err)
	}

	bucketStore, err := bucket.NewSqliteStore(db)
	if err != nil {
		return nil, fmt.Errorf("bucket store: %w", err)
	}
	if err := bucketStore.Seed(ctx, config.Buckets); err != nil {
		return nil, fmt.Errorf("seed buckets: %w", err)
	}
	registry := bucket.NewRegistry(bucketStore, config.BucketRefresh)

	sqliteCatalog, err := catalog.NewSqliteCatalog(db)
	if err != nil {
		return nil, fmt.Errorf("catalog: %w", err)
	}
	cat, err := catalog.NewCachedCatalog(sqliteCatalog, config.Upload.CatalogCacheSize)
	if err != nil {
		return nil, fmt.Errorf("catalog cache: %w", err)
	}

	sessions, err := newSessionStore(config.Upload.SessionStore, db)
	if err != nil {
		return nil, fmt.Errorf("session store: %w", err)
	}

	uploader, err := upload.NewUploader(&config.Upload, sessions, cat, backend, registry)
	if err != nil {
		return nil, fmt.Errorf("uploader: %w", err)
	}

	return &Services{
		Backend:  backend,
		Buckets:  registry,
		Catalog:  cat,
		Uploader: uploader,
	}, nil
}

func newSessionStore(kind string, db *sqlx.DB) (upload.SessionStore, error) {
	switch kind {
	case upload.SessionStoreMemory:
		slog.Warn("upload sessions are kept in memory and will not survive a restart")
		return upload.NewMemorySessionStore(), nil
	case upload.SessionStoreSqlite:
		return upload.NewSqliteSessionStore(db)
	default:
		return nil, fmt.Errorf("unknown session store %q", kind)
	}
}

func (s *Services) Start(ctx context.Context) error {
	// buckets first, the uploader resolves against them
	if err := s.Buckets.Start(ctx); err != nil {
		return fmt.Errorf("start bucket registry: %w", err)
	}

	if err := s.Uploader.Start(ctx); err != nil {
		return fmt.Errorf("start uploader: %w", err)
	}
	return nil
}

func (s *Services) Shutdown(ctx context.Context) error {
	if err := s.Uploader.Close(); err != nil {
		return fmt.Errorf("close uploader: %w", err)
	}
	return nil
}
