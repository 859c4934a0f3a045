package upload

import (
	"fmt"
	"time"
)

const (
	DefaultChunkSize     = 5 * 1024 * 1024
	DefaultMaxObjectSize = 5 * 1024 * 1024 * 1024 * 1024
	DefaultSessionTTL    = 24 * time.Hour
	DefaultSweepInterval = 10 * time.Minute
	// DefaultUnconfirmedTTL is how long a draft object waits for Confirm
	DefaultUnconfirmedTTL = 24 * time.Hour

	SessionStoreMemory = "memory"
	SessionStoreSqlite = "sqlite"
)

type Config struct {
	ChunkSize          int64         `mapstructure:"chunk_size"`
	MaxObjectSize      int64         `mapstructure:"max_object_size"`
	SessionTTL         time.Duration `mapstructure:"session_ttl"`
	UnconfirmedTTL     time.Duration `mapstructure:"unconfirmed_ttl"`
	SweepInterval      time.Duration `mapstructure:"sweep_interval"`
	SessionStore       string        `mapstructure:"session_store"`
	StagingCompression string        `mapstructure:"staging_compression"`
	DigestAlgorithm    string        `mapstructure:"digest_algorithm"`
	CatalogCacheSize   int           `mapstructure:"catalog_cache_size"`
	// SpoolDir holds single-shot uploads while they are hashed. Empty means os.TempDir.
	SpoolDir string `mapstructure:"spool_dir"`
}

func DefaultConfig() *Config {
	return &Config{
		ChunkSize:          DefaultChunkSize,
		MaxObjectSize:      DefaultMaxObjectSize,
		SessionTTL:         DefaultSessionTTL,
		UnconfirmedTTL:     DefaultUnconfirmedTTL,
		SweepInterval:      DefaultSweepInterval,
		SessionStore:       SessionStoreSqlite,
		StagingCompression: CompressionNone,
		DigestAlgorithm:    DigestSHA256,
		CatalogCacheSize:   4096,
	}
}

func (c *Config) Validate() error {
	if c.ChunkSize <= 0 {
		return fmt.Errorf("chunk_size must be positive")
	}
	if c.MaxObjectSize <= 0 {
		return fmt.Errorf("max_object_size must be positive")
	}
	if c.SessionTTL <= 0 {
		return fmt.Errorf("session_ttl must be positive")
	}
	if c.UnconfirmedTTL <= 0 {
		return fmt.Errorf("unconfirmed_ttl must be positive")
	}
	if c.SweepInterval <= 0 {
		return fmt.Errorf("sweep_interval must be positive")
	}
	switch c.SessionStore {
	case SessionStoreMemory, SessionStoreSqlite:
	default:
		return fmt.Errorf("unknown session_store %q", c.SessionStore)
	}
	switch c.StagingCompression {
	case CompressionNone, CompressionLZ4, CompressionZstd:
	default:
		return fmt.Errorf("unknown staging_compression %q", c.StagingCompression)
	}
	switch c.DigestAlgorithm {
	case DigestSHA256, DigestBLAKE3:
	default:
		return fmt.Errorf("unknown digest_algorithm %q", c.DigestAlgorithm)
	}
	return nil
}
