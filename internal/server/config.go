package server

import (
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/openmined/syftblob/internal/server/blob"
	"github.com/openmined/syftblob/internal/server/bucket"
	"github.com/openmined/syftblob/internal/server/upload"
	"github.com/openmined/syftblob/internal/utils"
)

const (
	DefaultAddr          = "127.0.0.1:8080"
	DefaultRateLimit     = "100-S"
	DefaultBucketRefresh = time.Minute
)

type Config struct {
	HTTP          HTTPConfig      `mapstructure:"http"`
	Blob          blob.Config     `mapstructure:"blob"`
	Upload        upload.Config   `mapstructure:"upload"`
	Buckets       []bucket.Bucket `mapstructure:"buckets"`
	BucketRefresh time.Duration   `mapstructure:"bucket_refresh"`
	DataDir       string          `mapstructure:"data_dir"`
	LogLevel      string          `mapstructure:"log_level"`
}

type HTTPConfig struct {
	Addr        string   `mapstructure:"addr"`
	CertFile    string   `mapstructure:"cert_file"`
	KeyFile     string   `mapstructure:"key_file"`
	RateLimit   string   `mapstructure:"rate_limit"`
	CORSOrigins []string `mapstructure:"cors_origins"`
}

func (c *HTTPConfig) TLSEnabled() bool {
	return c.CertFile != "" && c.KeyFile != ""
}

func (c *HTTPConfig) Validate() error {
	if c.Addr == "" {
		return fmt.Errorf("addr required")
	}
	if (c.CertFile == "") != (c.KeyFile == "") {
		return fmt.Errorf("cert_file and key_file must be set together")
	}
	return nil
}

// DBPath is where the catalog, sessions and buckets live
func (c *Config) DBPath() string {
	return filepath.Join(c.DataDir, "state.db")
}

func (c *Config) Validate() error {
	var err error
	if c.DataDir == "" {
		return fmt.Errorf("data_dir required")
	}
	c.DataDir, err = utils.ResolvePath(c.DataDir)
	if err != nil {
		return fmt.Errorf("data_dir: %w", err)
	}
	if c.BucketRefresh <= 0 {
		return fmt.Errorf("bucket_refresh must be positive")
	}

	var errs []error
	if err := c.HTTP.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("http: %w", err))
	}
	if err := c.Blob.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("blob: %w", err))
	}
	if err := c.Upload.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("upload: %w", err))
	}
	for i := range c.Buckets {
		if err := c.Buckets[i].Validate(); err != nil {
			errs = append(errs, fmt.Errorf("buckets[%d]: %w", i, err))
		}
	}
	return errors.Join(errs...)
}
