package cache

import (
	"fmt"
	"time"
)

// Config holds Redis connection configuration for the view cache.
type Config struct {
	// Enabled controls whether the cache is active. When disabled the
	// service reads every poll from the store of record.
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Addr is the Redis server address (host:port).
	Addr string `mapstructure:"addr" yaml:"addr"`

	// Password is the Redis server password.
	Password string `mapstructure:"password" yaml:"password"`

	// DB is the Redis database number.
	DB int `mapstructure:"db" yaml:"db"`

	// PoolSize is the maximum number of socket connections.
	PoolSize int `mapstructure:"pool_size" yaml:"pool_size"`

	// MinIdleConns is the minimum number of idle connections.
	MinIdleConns int `mapstructure:"min_idle_conns" yaml:"min_idle_conns"`

	// MaxRetries is the maximum number of retries before giving up.
	MaxRetries int `mapstructure:"max_retries" yaml:"max_retries"`

	// DialTimeout is the timeout for establishing new connections (e.g. "5s").
	DialTimeout string `mapstructure:"dial_timeout" yaml:"dial_timeout"`

	// ReadTimeout is the timeout for socket reads (e.g. "3s").
	ReadTimeout string `mapstructure:"read_timeout" yaml:"read_timeout"`

	// WriteTimeout is the timeout for socket writes (e.g. "3s").
	WriteTimeout string `mapstructure:"write_timeout" yaml:"write_timeout"`

	// ViewTTL bounds how long a cached job view may serve polls (e.g. "30s").
	ViewTTL string `mapstructure:"view_ttl" yaml:"view_ttl"`
}

// ApplyDefaults sets sensible defaults for zero-valued fields.
func (c *Config) ApplyDefaults() {
	if c.PoolSize <= 0 {
		c.PoolSize = 10
	}
	if c.MinIdleConns <= 0 {
		c.MinIdleConns = 2
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	if c.DialTimeout == "" {
		c.DialTimeout = "5s"
	}
	if c.ReadTimeout == "" {
		c.ReadTimeout = "3s"
	}
	if c.WriteTimeout == "" {
		c.WriteTimeout = "3s"
	}
	if c.ViewTTL == "" {
		c.ViewTTL = "30s"
	}
}

// Validate checks that required fields are present and parseable.
func (c *Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.Addr == "" {
		return fmt.Errorf("cache addr is required")
	}
	if c.PoolSize <= 0 {
		return fmt.Errorf("pool_size must be > 0")
	}
	for name, v := range map[string]string{
		"dial_timeout":  c.DialTimeout,
		"read_timeout":  c.ReadTimeout,
		"write_timeout": c.WriteTimeout,
		"view_ttl":      c.ViewTTL,
	} {
		if _, err := time.ParseDuration(v); err != nil {
			return fmt.Errorf("invalid %s %q: %w", name, v, err)
		}
	}
	return nil
}

// TTL returns the parsed view TTL.
func (c *Config) TTL() time.Duration {
	d, err := time.ParseDuration(c.ViewTTL)
	if err != nil {
		return 30 * time.Second
	}
	return d
}
