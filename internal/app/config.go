package app

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"

	"github.com/fusen-app/fusen/internal/database"
)

// Config represents the runtime configuration for the Fusen backend.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Invites  InviteConfig   `mapstructure:"invites"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port        int           `mapstructure:"port"`
	LogLevel    string        `mapstructure:"log_level"`
	Development bool          `mapstructure:"development"`
	CORSOrigin  string        `mapstructure:"cors_origin"`
	RateLimit   int           `mapstructure:"rate_limit"`
	RateWindow  time.Duration `mapstructure:"rate_window"`
}

// DatabaseConfig describes connection options for the supported databases.
type DatabaseConfig struct {
	Driver   string `mapstructure:"driver"`
	Path     string `mapstructure:"path"`
	DSN      string `mapstructure:"dsn"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Name     string `mapstructure:"name"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
}

// AuthConfig captures token issuance settings.
type AuthConfig struct {
	JWT JWTSettings `mapstructure:"jwt"`
}

// JWTSettings configures JWT access tokens.
type JWTSettings struct {
	Secret string        `mapstructure:"secret"`
	Issuer string        `mapstructure:"issuer"`
	TTL    time.Duration `mapstructure:"access_token_ttl"`
}

// InviteConfig controls invitation issuance and cleanup.
type InviteConfig struct {
	TTL       time.Duration `mapstructure:"ttl"`
	LinkBase  string        `mapstructure:"link_base"`
	Retention time.Duration `mapstructure:"retention"`
	Schedule  string        `mapstructure:"cleanup_schedule"`
}

// MetricsConfig toggles the Prometheus endpoint.
type MetricsConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Endpoint string `mapstructure:"endpoint"`
}

// LoadConfig initialises application configuration using Viper with sensible defaults.
func LoadConfig(paths ...string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.AddConfigPath("./config")
	for _, path := range paths {
		v.AddConfigPath(path)
	}

	setDefaults(v)

	v.SetEnvPrefix("FUSEN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var cfgErr viper.ConfigFileNotFoundError
		if !errors.As(err, &cfgErr) {
			return nil, fmt.Errorf("config: read file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config, decodeHook()); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.log_level", "info")
	v.SetDefault("server.development", false)
	v.SetDefault("server.cors_origin", "")
	v.SetDefault("server.rate_limit", 100)
	v.SetDefault("server.rate_window", "1m")

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", database.DefaultSQLitePath)
	// Registered empty so FUSEN_DATABASE_* env vars resolve without a
	// config file.
	v.SetDefault("database.dsn", "")
	v.SetDefault("database.host", "")
	v.SetDefault("database.port", 0)
	v.SetDefault("database.name", "")
	v.SetDefault("database.user", "")
	v.SetDefault("database.password", "")

	v.SetDefault("auth.jwt.secret", "")
	v.SetDefault("auth.jwt.issuer", "fusen")
	v.SetDefault("auth.jwt.access_token_ttl", "168h") // 7 days

	v.SetDefault("invites.ttl", "24h")
	v.SetDefault("invites.link_base", "http://localhost:5173")
	v.SetDefault("invites.retention", "720h") // 30 days
	v.SetDefault("invites.cleanup_schedule", "@daily")

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.endpoint", "/metrics")
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}
