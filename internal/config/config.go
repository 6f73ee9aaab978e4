// Package config loads the settings of a storage stack from a YAML or TOML
// file. Values of the form ${VAR} are expanded from the environment before
// decoding, so credentials need not live in the file.
package config

import (
	"bytes"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"go.yaml.in/yaml/v3"

	"github.com/koustreak/ocket/internal/backoff"
	"github.com/koustreak/ocket/internal/errs"
	"github.com/koustreak/ocket/internal/filestore"
	"github.com/koustreak/ocket/internal/logger"
)

type Config struct {
	Log     logger.Config    `yaml:"log" toml:"log"`
	Storage filestore.Config `yaml:"storage" toml:"storage"`
	Retry   RetryConfig      `yaml:"retry" toml:"retry"`
	Cache   CacheConfig      `yaml:"cache" toml:"cache"`
}

// RetryConfig enables the retry decorator and sets its backoff.
type RetryConfig struct {
	Enabled        bool `yaml:"enabled" toml:"enabled"`
	backoff.Config `yaml:",inline"`
}

// CacheConfig enables the read-through cache decorator.
type CacheConfig struct {
	Enabled bool `yaml:"enabled" toml:"enabled"`
	// Component labels the cache metrics when metrics are enabled.
	Component string `yaml:"component" toml:"component"`
}

// Default returns a config for a local store under ./data with retries on
// and caching off.
func Default() *Config {
	return &Config{
		Log: logger.Config{
			Level:      "info",
			Format:     "json",
			TimeFormat: "rfc3339",
		},
		Storage: filestore.Config{
			Provider: filestore.ProviderLocal,
			Root:     "./data",
			PageSize: filestore.DefaultPageSize,
		},
		Retry: RetryConfig{
			Enabled: true,
			Config:  backoff.DefaultConfig(),
		},
		Cache: CacheConfig{
			Component: "ocket",
		},
	}
}

// Load reads path on top of Default(). The decoder is picked by extension:
// .yaml/.yml or .toml. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return cfg, nil
		}
		return nil, errs.Wrap(errs.ErrKindPermanent, "failed to read config "+path, err)
	}
	data = []byte(os.ExpandEnv(string(data)))

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
			return nil, errs.Wrap(errs.ErrKindIllegalUsage, "failed to parse config "+path, err)
		}
	case ".toml":
		meta, err := toml.Decode(string(data), cfg)
		if err != nil {
			return nil, errs.Wrap(errs.ErrKindIllegalUsage, "failed to parse config "+path, err)
		}
		if undecoded := meta.Undecoded(); len(undecoded) > 0 {
			return nil, errs.Newf(errs.ErrKindIllegalUsage, "unknown config key %q in %s", undecoded[0].String(), path)
		}
	default:
		return nil, errs.Newf(errs.ErrKindIllegalUsage, "unsupported config format %q", filepath.Ext(path))
	}

	cfg.ApplyDefaults()
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyDefaults fills fields a file may have blanked.
func (c *Config) ApplyDefaults() {
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
	if c.Storage.Provider == "" {
		c.Storage.Provider = filestore.ProviderLocal
	}
	if c.Storage.PageSize == 0 {
		c.Storage.PageSize = filestore.DefaultPageSize
	}
	if c.Retry.Enabled && c.Retry.MaxAttempts == 0 {
		c.Retry.MaxAttempts = backoff.DefaultConfig().MaxAttempts
	}
	if c.Cache.Component == "" {
		c.Cache.Component = "ocket"
	}
}

// Normalize canonicalises values. The storage prefix loses any leading
// slash and gains a trailing one, so "photos" scopes to "photos/...".
func (c *Config) Normalize() {
	c.Storage.Provider = filestore.Provider(strings.ToLower(strings.TrimSpace(string(c.Storage.Provider))))
	c.Log.Level = strings.ToLower(c.Log.Level)
	c.Log.Format = strings.ToLower(c.Log.Format)

	prefix := strings.TrimLeft(c.Storage.Prefix, "/")
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	c.Storage.Prefix = prefix
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	switch c.Log.Level {
	case "debug", "info", "warn", "error", "disabled":
	default:
		return errs.Newf(errs.ErrKindIllegalUsage, "log.level must be debug, info, warn, error or disabled, got %q", c.Log.Level)
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		return errs.Newf(errs.ErrKindIllegalUsage, "log.format must be json or console, got %q", c.Log.Format)
	}

	s := c.Storage
	switch s.Provider {
	case filestore.ProviderLocal:
		if s.Root == "" {
			return errs.New(errs.ErrKindIllegalUsage, "storage.root is required for the local provider")
		}
	case filestore.ProviderMinIO:
		if s.Endpoint == "" {
			return errs.New(errs.ErrKindIllegalUsage, "storage.endpoint is required for the minio provider")
		}
	case filestore.ProviderS3:
		if s.Region == "" && s.Endpoint == "" {
			return errs.New(errs.ErrKindIllegalUsage, "storage.region or storage.endpoint is required for the s3 provider")
		}
	case filestore.ProviderPostgres, filestore.ProviderMySQL:
		if s.DSN == "" {
			return errs.Newf(errs.ErrKindIllegalUsage, "storage.dsn is required for the %s provider", s.Provider)
		}
	case filestore.ProviderNoop:
	default:
		return errs.Newf(errs.ErrKindIllegalUsage, "unknown storage.provider %q", s.Provider)
	}
	if s.PageSize < 0 {
		return errs.New(errs.ErrKindIllegalUsage, "storage.page_size cannot be negative")
	}

	if c.Retry.Enabled {
		if c.Retry.MaxAttempts < 1 {
			return errs.New(errs.ErrKindIllegalUsage, "retry.max_attempts must be at least 1")
		}
		if err := c.Retry.Config.Validate(); err != nil {
			return errs.Wrap(errs.ErrKindIllegalUsage, "invalid retry settings", err)
		}
	}
	return nil
}
