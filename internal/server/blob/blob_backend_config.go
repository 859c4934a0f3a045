package blob

import (
	"fmt"

	"github.com/openmined/syftblob/internal/utils"
)

const (
	BackendS3     = "s3"
	BackendFS     = "fs"
	BackendMemory = "memory"
)

type Config struct {
	Type string    `mapstructure:"type"`
	S3   *S3Config `mapstructure:"s3"`
	FS   *FSConfig `mapstructure:"fs"`
}

func (c *Config) Validate() error {
	switch c.Type {
	case BackendS3:
		if c.S3 == nil {
			return fmt.Errorf("s3 config required")
		}
		return c.S3.Validate()
	case BackendFS:
		if c.FS == nil {
			return fmt.Errorf("fs config required")
		}
		return c.FS.Validate()
	case BackendMemory:
		return nil
	default:
		return fmt.Errorf("%w %q", ErrUnknownBackend, c.Type)
	}
}

type S3Config struct {
	BucketName    string `mapstructure:"bucket_name"`
	Region        string `mapstructure:"region"`
	AccessKey     string `mapstructure:"access_key"`
	SecretKey     string `mapstructure:"secret_key"`
	Endpoint      string `mapstructure:"endpoint"`
	UseAccelerate bool   `mapstructure:"use_accelerate"`
}

func (c *S3Config) Validate() error {
	if c.BucketName == "" {
		return fmt.Errorf("bucket_name required")
	}
	if c.Region == "" {
		return fmt.Errorf("region required")
	}
	if c.AccessKey == "" {
		return fmt.Errorf("access_key required")
	}
	if c.SecretKey == "" {
		return fmt.Errorf("secret_key required")
	}
	if c.Endpoint != "" && !utils.IsValidURL(c.Endpoint) {
		return fmt.Errorf("invalid endpoint URL %q", c.Endpoint)
	}
	return nil
}

type FSConfig struct {
	RootDir string `mapstructure:"root_dir"`
}

func (c *FSConfig) Validate() error {
	if c.RootDir == "" {
		return fmt.Errorf("root_dir required")
	}
	return nil
}
