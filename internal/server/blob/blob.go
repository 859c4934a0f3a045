package blob

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/openmined/syftblob/internal/utils"
)

// NewBackend builds the backend selected by cfg.Type, wrapped with metrics
func NewBackend(ctx context.Context, cfg *Config) (Backend, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var (
		backend Backend
		err     error
	)

	switch cfg.Type {
	case BackendS3:
		slog.Info("blob backend", "type", cfg.Type,
			"bucket", cfg.S3.BucketName,
			"region", cfg.S3.Region,
			"endpoint", cfg.S3.Endpoint,
			"accessKey", utils.MaskSecret(cfg.S3.AccessKey),
		)
		backend, err = NewS3BackendWithConfig(ctx, cfg.S3)
	case BackendFS:
		slog.Info("blob backend", "type", cfg.Type, "root", cfg.FS.RootDir)
		backend, err = NewFSBackend(cfg.FS.RootDir)
	case BackendMemory:
		slog.Info("blob backend", "type", cfg.Type)
		backend = NewMemoryBackend()
	default:
		err = fmt.Errorf("%w %q", ErrUnknownBackend, cfg.Type)
	}
	if err != nil {
		return nil, err
	}

	return Instrument(backend), nil
}
