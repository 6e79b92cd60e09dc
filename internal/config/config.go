// Package config loads application configuration from a YAML file, the
// environment and built-in defaults.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gookit/validate"
	"github.com/spf13/viper"

	"ytarchive/internal/archive"
	"ytarchive/internal/retry"
	"ytarchive/internal/transport"
)

// EnvPrefix prefixes every environment override, e.g. YTARCHIVE_LOG_LEVEL.
const EnvPrefix = "YTARCHIVE"

// Config holds all application configuration.
type Config struct {
	Storage   StorageConfig   `mapstructure:"storage"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Archive   ArchiveConfig   `mapstructure:"archive"`
	Retry     RetryConfig     `mapstructure:"retry"`
	Transport TransportConfig `mapstructure:"transport"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Log       LogConfig       `mapstructure:"log"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`

	// File is the configuration file that was read, if any.
	File string `mapstructure:"-"`
}

type StorageConfig struct {
	Driver string `mapstructure:"driver" validate:"required|in:json,sqlite"`
	Path   string `mapstructure:"path" validate:"required"`
}

type AuthConfig struct {
	ClientSecrets string `mapstructure:"client_secrets" validate:"required"`
	TokenFile     string `mapstructure:"token_file" validate:"required"`
}

type ArchiveConfig struct {
	Capacity       int64  `mapstructure:"capacity" validate:"required|min:1"`
	NameTemplate   string `mapstructure:"name_template" validate:"required|contains:{n}"`
	Privacy        string `mapstructure:"privacy" validate:"required|in:private,unlisted,public"`
	EvictOnUntrack bool   `mapstructure:"evict_on_untrack"`
}

type RetryConfig struct {
	MaxRetries     int           `mapstructure:"max_retries" validate:"min:0"`
	InitialBackoff time.Duration `mapstructure:"initial_backoff" validate:"required|min:1"`
	MaxBackoff     time.Duration `mapstructure:"max_backoff" validate:"required|min:1"`
	Multiplier     float64       `mapstructure:"multiplier"`
	Jitter         float64       `mapstructure:"jitter"`
}

type TransportConfig struct {
	RPS              float64            `mapstructure:"rps"`
	Burst            int                `mapstructure:"burst" validate:"required|min:1"`
	HostRPS          map[string]float64 `mapstructure:"host_rps"`
	Timeout          time.Duration      `mapstructure:"timeout" validate:"required|min:1"`
	FailureThreshold int                `mapstructure:"failure_threshold" validate:"required|min:1"`
	RecoveryTimeout  time.Duration      `mapstructure:"recovery_timeout" validate:"required|min:1"`
}

type CacheConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	SizeMB  int           `mapstructure:"size_mb" validate:"min:1"`
	TTL     time.Duration `mapstructure:"ttl" validate:"min:1"`
}

type LogConfig struct {
	Level   string `mapstructure:"level" validate:"required|in:trace,debug,info,warn,error,fatal,panic,disabled"`
	Console string `mapstructure:"console" validate:"required|in:auto,always,never"`
}

type MetricsConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Textfile string `mapstructure:"textfile"`
}

// Default returns configuration with safe defaults. Paths live under the
// user's config directory.
func Default() *Config {
	dir := defaultDir()
	r := retry.DefaultConfig()
	t := transport.DefaultConfig()
	p := archive.DefaultPolicy()

	return &Config{
		Storage: StorageConfig{
			Driver: "json",
			Path:   filepath.Join(dir, "state.json"),
		},
		Auth: AuthConfig{
			ClientSecrets: filepath.Join(dir, "client_secret.json"),
			TokenFile:     filepath.Join(dir, "token.json"),
		},
		Archive: ArchiveConfig{
			Capacity:       p.Capacity,
			NameTemplate:   p.NameTemplate,
			Privacy:        p.Privacy,
			EvictOnUntrack: p.EvictOnUntrack,
		},
		Retry: RetryConfig{
			MaxRetries:     r.MaxRetries,
			InitialBackoff: r.InitialBackoff,
			MaxBackoff:     r.MaxBackoff,
			Multiplier:     r.Multiplier,
			Jitter:         r.JitterFraction,
		},
		Transport: TransportConfig{
			RPS:              t.RPS,
			Burst:            t.Burst,
			HostRPS:          map[string]float64{},
			Timeout:          t.Timeout,
			FailureThreshold: t.FailureThreshold,
			RecoveryTimeout:  t.RecoveryTimeout,
		},
		Cache: CacheConfig{
			Enabled: true,
			SizeMB:  16,
			TTL:     time.Hour,
		},
		Log: LogConfig{
			Level:   "info",
			Console: "auto",
		},
	}
}

func defaultDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "ytarchive")
	}
	return ".ytarchive"
}

// keys lists every setting by its dotted path. Each one can be overridden
// from the environment.
var keys = []string{
	"storage.driver", "storage.path",
	"auth.client_secrets", "auth.token_file",
	"archive.capacity", "archive.name_template", "archive.privacy", "archive.evict_on_untrack",
	"retry.max_retries", "retry.initial_backoff", "retry.max_backoff", "retry.multiplier", "retry.jitter",
	"transport.rps", "transport.burst", "transport.timeout", "transport.failure_threshold", "transport.recovery_timeout",
	"cache.enabled", "cache.size_mb", "cache.ttl",
	"log.level", "log.console",
	"metrics.enabled", "metrics.textfile",
}

// Load reads configuration. Priority: env vars > config file > defaults.
//
// With an explicit path the file must exist. Otherwise config.yaml is looked
// up in the user config directory and the working directory, and a missing
// file is not an error.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v, Default())

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	for _, key := range keys {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("bind %s: %w", key, err)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(defaultDir())
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.File = v.ConfigFileUsed()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("storage.driver", d.Storage.Driver)
	v.SetDefault("storage.path", d.Storage.Path)
	v.SetDefault("auth.client_secrets", d.Auth.ClientSecrets)
	v.SetDefault("auth.token_file", d.Auth.TokenFile)
	v.SetDefault("archive.capacity", d.Archive.Capacity)
	v.SetDefault("archive.name_template", d.Archive.NameTemplate)
	v.SetDefault("archive.privacy", d.Archive.Privacy)
	v.SetDefault("archive.evict_on_untrack", d.Archive.EvictOnUntrack)
	v.SetDefault("retry.max_retries", d.Retry.MaxRetries)
	v.SetDefault("retry.initial_backoff", d.Retry.InitialBackoff)
	v.SetDefault("retry.max_backoff", d.Retry.MaxBackoff)
	v.SetDefault("retry.multiplier", d.Retry.Multiplier)
	v.SetDefault("retry.jitter", d.Retry.Jitter)
	v.SetDefault("transport.rps", d.Transport.RPS)
	v.SetDefault("transport.burst", d.Transport.Burst)
	v.SetDefault("transport.host_rps", d.Transport.HostRPS)
	v.SetDefault("transport.timeout", d.Transport.Timeout)
	v.SetDefault("transport.failure_threshold", d.Transport.FailureThreshold)
	v.SetDefault("transport.recovery_timeout", d.Transport.RecoveryTimeout)
	v.SetDefault("cache.enabled", d.Cache.Enabled)
	v.SetDefault("cache.size_mb", d.Cache.SizeMB)
	v.SetDefault("cache.ttl", d.Cache.TTL)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.console", d.Log.Console)
	v.SetDefault("metrics.enabled", d.Metrics.Enabled)
	v.SetDefault("metrics.textfile", d.Metrics.Textfile)
}

// Validate checks configuration validity.
func (c *Config) Validate() error {
	v := validate.Struct(c)
	if !v.Validate() {
		return fmt.Errorf("invalid config: %w", v.Errors)
	}

	if c.Retry.MaxBackoff < c.Retry.InitialBackoff {
		return fmt.Errorf("invalid config: retry.max_backoff must be >= retry.initial_backoff")
	}
	if c.Retry.Multiplier < 1 {
		return fmt.Errorf("invalid config: retry.multiplier must be >= 1")
	}
	if c.Retry.Jitter < 0 || c.Retry.Jitter > 1 {
		return fmt.Errorf("invalid config: retry.jitter must be within [0, 1]")
	}
	if c.Transport.RPS < 0 {
		return fmt.Errorf("invalid config: transport.rps must be non-negative")
	}
	for host, rps := range c.Transport.HostRPS {
		if rps < 0 {
			return fmt.Errorf("invalid config: transport.host_rps[%s] must be non-negative", host)
		}
	}
	return nil
}

// RetryConfig converts the retry section.
func (c *Config) RetryConfig() retry.Config {
	return retry.Config{
		MaxRetries:     c.Retry.MaxRetries,
		InitialBackoff: c.Retry.InitialBackoff,
		MaxBackoff:     c.Retry.MaxBackoff,
		Multiplier:     c.Retry.Multiplier,
		JitterFraction: c.Retry.Jitter,
	}
}

// TransportConfig converts the transport section.
func (c *Config) TransportConfig() transport.Config {
	return transport.Config{
		RPS:              c.Transport.RPS,
		Burst:            c.Transport.Burst,
		HostRPS:          c.Transport.HostRPS,
		Timeout:          c.Transport.Timeout,
		FailureThreshold: c.Transport.FailureThreshold,
		RecoveryTimeout:  c.Transport.RecoveryTimeout,
	}
}

// Policy converts the archive section.
func (c *Config) Policy() archive.Policy {
	return archive.Policy{
		Capacity:       c.Archive.Capacity,
		NameTemplate:   c.Archive.NameTemplate,
		Privacy:        c.Archive.Privacy,
		EvictOnUntrack: c.Archive.EvictOnUntrack,
	}
}
