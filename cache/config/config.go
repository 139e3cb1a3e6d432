// Package config loads snapshot store configuration from YAML files and the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	// BackendMemory selects the in-process backend.
	BackendMemory = "memory"
	// BackendRedis selects the Redis backend.
	BackendRedis = "redis"

	envPrefix = "VALUESNAP"
)

// Config is the root configuration.
type Config struct {
	// Namespace is prepended to every snapshot key.
	Namespace string `mapstructure:"namespace"`
	// DefaultTTL applies to snapshots stored without an explicit TTL; zero keeps them forever.
	DefaultTTL time.Duration `mapstructure:"default_ttl"`
	// Backend is "memory" or "redis".
	Backend string `mapstructure:"backend"`

	Redis RedisConfig `mapstructure:"redis"`
	Log   LogConfig   `mapstructure:"log"`
}

// RedisConfig holds connection settings for the Redis backend.
type RedisConfig struct {
	Addr          string `mapstructure:"addr"`
	Password      string `mapstructure:"password"`
	DB            int    `mapstructure:"db"`
	ChannelPrefix string `mapstructure:"channel_prefix"`
}

// LogConfig defines logger settings.
type LogConfig struct {
	// Level: debug, info, warn, error
	Level string `mapstructure:"level"`
	// Format: console or json
	Format string `mapstructure:"format"`
	// Outputs: stdout, stderr, or file paths
	Outputs     []string       `mapstructure:"outputs"`
	Rotation    RotationConfig `mapstructure:"rotation"`
	Development bool           `mapstructure:"development"`
}

// RotationConfig controls rotation for file outputs.
type RotationConfig struct {
	Enable     bool `mapstructure:"enable"`
	MaxSizeMB  int  `mapstructure:"max_size_mb"`
	MaxBackups int  `mapstructure:"max_backups"`
	MaxAgeDays int  `mapstructure:"max_age_days"`
	Compress   bool `mapstructure:"compress"`
}

// Default returns a Config populated with defaults.
func Default() *Config {
	return &Config{
		Namespace: "valuesnap",
		Backend:   BackendMemory,
		Redis: RedisConfig{
			Addr:          "localhost:6379",
			ChannelPrefix: "valuesnap::",
		},
		Log: LogConfig{
			Level:   "info",
			Format:  "console",
			Outputs: []string{"stderr"},
			Rotation: RotationConfig{
				MaxSizeMB:  50,
				MaxBackups: 3,
				MaxAgeDays: 28,
			},
		},
	}
}

// Load reads configuration from path when non-empty, otherwise from
// VALUESNAP_CONFIG or ./valuesnap.yaml if present. Environment variables
// override file values, e.g. VALUESNAP_REDIS_ADDR.
func Load(path string) (*Config, error) {
	cfg := Default()

	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	v.SetDefault("namespace", cfg.Namespace)
	v.SetDefault("default_ttl", cfg.DefaultTTL)
	v.SetDefault("backend", cfg.Backend)
	v.SetDefault("redis.addr", cfg.Redis.Addr)
	v.SetDefault("redis.password", cfg.Redis.Password)
	v.SetDefault("redis.db", cfg.Redis.DB)
	v.SetDefault("redis.channel_prefix", cfg.Redis.ChannelPrefix)
	v.SetDefault("log.level", cfg.Log.Level)
	v.SetDefault("log.format", cfg.Log.Format)
	v.SetDefault("log.outputs", cfg.Log.Outputs)
	v.SetDefault("log.development", cfg.Log.Development)
	v.SetDefault("log.rotation.enable", cfg.Log.Rotation.Enable)
	v.SetDefault("log.rotation.max_size_mb", cfg.Log.Rotation.MaxSizeMB)
	v.SetDefault("log.rotation.max_backups", cfg.Log.Rotation.MaxBackups)
	v.SetDefault("log.rotation.max_age_days", cfg.Log.Rotation.MaxAgeDays)
	v.SetDefault("log.rotation.compress", cfg.Log.Rotation.Compress)

	if path == "" {
		path = os.Getenv(envPrefix + "_CONFIG")
	}
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("valuesnap")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("config: read: %w", err)
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("config: decode: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate normalizes c and reports the first invalid field.
func (c *Config) Validate() error {
	c.Backend = strings.ToLower(strings.TrimSpace(c.Backend))
	switch c.Backend {
	case BackendMemory:
	case BackendRedis:
		if strings.TrimSpace(c.Redis.Addr) == "" {
			return errors.New("config: redis.addr is required for the redis backend")
		}
	default:
		return fmt.Errorf("config: invalid backend %q", c.Backend)
	}

	if c.DefaultTTL < 0 {
		return fmt.Errorf("config: default_ttl must not be negative, got %s", c.DefaultTTL)
	}

	switch strings.ToLower(strings.TrimSpace(c.Log.Level)) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("config: invalid log.level %q", c.Log.Level)
	}
	if c.Log.Format == "" {
		c.Log.Format = "console"
	}
	if len(c.Log.Outputs) == 0 {
		c.Log.Outputs = []string{"stderr"}
	}
	return nil
}
