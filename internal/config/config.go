// Package config loads and validates app config from env and an optional .env file using Viper.
package config

import (
	"errors"
	"time"

	"github.com/spf13/viper"
)

// Config holds console configuration loaded from the environment.
type Config struct {
	// APIBaseURL is the dashboard backend base URL (e.g. http://localhost:8001).
	APIBaseURL string `mapstructure:"API_BASE_URL"`
	// RequestTimeout is the fixed HTTP request timeout for the gateway (e.g. "10s").
	RequestTimeout string `mapstructure:"REQUEST_TIMEOUT"`
	// StateDBPath is the path of the local SQLite file holding persisted session state.
	StateDBPath string `mapstructure:"STATE_DB_PATH"`
	// SessionMaxIdle is how long a session may sit without activity before it expires (e.g. "24h").
	SessionMaxIdle string `mapstructure:"SESSION_MAX_IDLE"`
	// ActivityPingInterval is how often the run loop stamps lastActivity while authenticated (e.g. "5m").
	ActivityPingInterval string `mapstructure:"ACTIVITY_PING_INTERVAL"`
	// ExpiryCheckInterval is how often the run loop checks for session expiry (e.g. "1h").
	ExpiryCheckInterval string `mapstructure:"EXPIRY_CHECK_INTERVAL"`
	// OTLPEndpoint is the OTLP/gRPC endpoint for client telemetry (e.g. http://localhost:4317). Empty disables telemetry.
	OTLPEndpoint string `mapstructure:"OTLP_ENDPOINT"`
	// OTLPInsecure forces plaintext OTLP export even for https endpoints (standard OTEL_EXPORTER_OTLP_INSECURE behavior).
	OTLPInsecure bool `mapstructure:"OTLP_INSECURE"`
	// Env is the application environment (e.g. "development", "production").
	Env string `mapstructure:"APP_ENV"`
}

// Load reads .env (if present), then builds and validates Config from the environment via Viper.
// Missing .env is ignored (e.g. in CI). Env vars override .env. Returns an error if required fields are invalid.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // ignore ErrConfigFileNotFound

	v.AutomaticEnv()

	v.SetDefault("API_BASE_URL", "http://localhost:8001")
	v.SetDefault("REQUEST_TIMEOUT", "10s")
	v.SetDefault("STATE_DB_PATH", "./scratcha-console.db")
	v.SetDefault("SESSION_MAX_IDLE", "24h")
	v.SetDefault("ACTIVITY_PING_INTERVAL", "5m")
	v.SetDefault("EXPIRY_CHECK_INTERVAL", "1h")
	v.SetDefault("OTLP_ENDPOINT", "")
	v.SetDefault("OTLP_INSECURE", false)
	v.SetDefault("APP_ENV", "")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if cfg.APIBaseURL == "" {
		return nil, errors.New("config: API_BASE_URL must be set")
	}
	if cfg.StateDBPath == "" {
		return nil, errors.New("config: STATE_DB_PATH must be set")
	}

	return &cfg, nil
}

// RequestTimeoutDuration parses RequestTimeout as a time.Duration. Returns 10s if unset or invalid.
func (c *Config) RequestTimeoutDuration() time.Duration {
	d, err := time.ParseDuration(c.RequestTimeout)
	if err != nil || d <= 0 {
		return 10 * time.Second
	}
	return d
}

// SessionMaxIdleDuration parses SessionMaxIdle as a time.Duration. Returns 24h if unset or invalid.
func (c *Config) SessionMaxIdleDuration() time.Duration {
	d, err := time.ParseDuration(c.SessionMaxIdle)
	if err != nil || d <= 0 {
		return 24 * time.Hour
	}
	return d
}

// ActivityPingDuration parses ActivityPingInterval as a time.Duration. Returns 5m if unset or invalid.
func (c *Config) ActivityPingDuration() time.Duration {
	d, err := time.ParseDuration(c.ActivityPingInterval)
	if err != nil || d <= 0 {
		return 5 * time.Minute
	}
	return d
}

// ExpiryCheckDuration parses ExpiryCheckInterval as a time.Duration. Returns 1h if unset or invalid.
func (c *Config) ExpiryCheckDuration() time.Duration {
	d, err := time.ParseDuration(c.ExpiryCheckInterval)
	if err != nil || d <= 0 {
		return time.Hour
	}
	return d
}
