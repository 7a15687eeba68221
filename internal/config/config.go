// Package config loads service settings from defaults, an optional YAML file
// and TOPICCHAT_* environment variables, in increasing priority.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	// Matching
	DefaultStaleAfter     = 2 * time.Minute
	DefaultFallbackAfter  = 60 * time.Second
	DefaultSettleAttempts = 5

	// Reports
	ReportTranscriptSize = 20
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Matching  MatchingConfig  `mapstructure:"matching"`
	Log       LogConfig       `mapstructure:"log"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Locale    string          `mapstructure:"locale"`
}

type ServerConfig struct {
	Addr         string        `mapstructure:"addr"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	// AllowedOrigins limits WebSocket upgrades; empty allows any origin.
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type DatabaseConfig struct {
	// Driver is "postgres" or "memory".
	Driver      string `mapstructure:"driver"`
	DSN         string `mapstructure:"dsn"`
	AutoMigrate bool   `mapstructure:"auto_migrate"`
}

type RedisConfig struct {
	// Enabled turns on cross-instance event fan-out.
	Enabled  bool   `mapstructure:"enabled"`
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Channel  string `mapstructure:"channel"`
}

type AuthConfig struct {
	JWTSecret string        `mapstructure:"jwt_secret"`
	Issuer    string        `mapstructure:"issuer"`
	TokenTTL  time.Duration `mapstructure:"token_ttl"`
}

type MatchingConfig struct {
	StaleAfter     time.Duration `mapstructure:"stale_after"`
	FallbackAfter  time.Duration `mapstructure:"fallback_after"`
	SettleAttempts int           `mapstructure:"settle_attempts"`
}

type LogConfig struct {
	Level      string `mapstructure:"level"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

type TelemetryConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	MetricsFile string        `mapstructure:"metrics_file"`
	Interval    time.Duration `mapstructure:"interval"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.read_timeout", 10*time.Second)
	v.SetDefault("server.write_timeout", 10*time.Second)
	v.SetDefault("server.allowed_origins", []string{})

	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.dsn", "host=localhost user=user password=password dbname=topicchatdb port=5432 sslmode=disable")
	v.SetDefault("database.auto_migrate", true)

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6380")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.channel", "random_chat:events")

	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.issuer", "topicchat-service")
	v.SetDefault("auth.token_ttl", 72*time.Hour)

	v.SetDefault("matching.stale_after", DefaultStaleAfter)
	v.SetDefault("matching.fallback_after", DefaultFallbackAfter)
	v.SetDefault("matching.settle_attempts", DefaultSettleAttempts)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "logs/topicchat.log")
	v.SetDefault("log.max_size_mb", 10)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("log.max_age_days", 28)

	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.metrics_file", "logs/topicchat_metrics.log")
	v.SetDefault("telemetry.interval", 30*time.Second)

	v.SetDefault("locale", "en")
}

// Load reads the configuration. path may be empty, in which case only
// defaults and the environment are used.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("TOPICCHAT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings the service cannot run with.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "postgres", "memory":
	default:
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}
	if c.Auth.JWTSecret == "" {
		return errors.New("auth.jwt_secret must be set (TOPICCHAT_AUTH_JWT_SECRET)")
	}
	if c.Matching.StaleAfter <= 0 || c.Matching.FallbackAfter <= 0 {
		return errors.New("matching thresholds must be positive")
	}
	if c.Matching.SettleAttempts < 1 {
		return errors.New("matching.settle_attempts must be at least 1")
	}
	return nil
}
