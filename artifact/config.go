package artifact

import (
	"errors"
	"fmt"
)

// Provider constants for supported artifact backends.
const (
	ProviderLocal = "local"
	ProviderS3    = "s3"
)

// Default configuration values.
const (
	DefaultProvider    = ProviderLocal
	DefaultBasePath    = "/var/lib/recap/artifacts"
	DefaultRegion      = "us-east-1"
	DefaultMaxFileSize = int64(500 * 1024 * 1024) // 500 MB raw upload cap
)

// Config holds artifact storage configuration.
type Config struct {
	// Provider selects the backend: "local" or "s3".
	Provider string `mapstructure:"provider" yaml:"provider"`

	// BasePath is the root directory for local storage.
	BasePath string `mapstructure:"base_path" yaml:"base_path"`

	// Bucket is the S3 bucket name.
	Bucket string `mapstructure:"bucket" yaml:"bucket"`

	// Region is the AWS region for S3.
	Region string `mapstructure:"region" yaml:"region"`

	// Endpoint is a custom S3-compatible endpoint (e.g. MinIO).
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint"`

	// AccessKey is the AWS access key ID.
	AccessKey string `mapstructure:"access_key" yaml:"access_key"`

	// SecretKey is the AWS secret access key.
	SecretKey string `mapstructure:"secret_key" yaml:"secret_key"`

	// MaxFileSize is the maximum allowed upload size in bytes.
	MaxFileSize int64 `mapstructure:"max_file_size" yaml:"max_file_size"`
}

// ApplyDefaults fills in zero-valued fields with sensible defaults.
func (c *Config) ApplyDefaults() {
	if c.Provider == "" {
		c.Provider = DefaultProvider
	}
	if c.BasePath == "" {
		c.BasePath = DefaultBasePath
	}
	if c.Region == "" {
		c.Region = DefaultRegion
	}
	if c.MaxFileSize <= 0 {
		c.MaxFileSize = DefaultMaxFileSize
	}
}

// Validate checks that the configuration is valid for the selected provider.
func (c *Config) Validate() error {
	switch c.Provider {
	case ProviderLocal:
		if c.BasePath == "" {
			return errors.New("artifact: base_path is required for local provider")
		}
	case ProviderS3:
		if c.Bucket == "" {
			return errors.New("artifact: bucket is required for s3 provider")
		}
	default:
		return fmt.Errorf("artifact: unsupported provider %q", c.Provider)
	}
	return nil
}
