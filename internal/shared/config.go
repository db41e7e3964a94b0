package shared

import (
	"bytes"
	"context"
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"github.com/sethvargo/go-envconfig"
)

//go:embed config.example.toml
var exampleConf []byte

// Config represents the application configuration loaded from a TOML file.
//
// Every field can be overridden from the environment (see the env tags), after an optional .env file is loaded.
type Config struct {
	Spotify   SpotifyConfig   `toml:"spotify"`
	Database  DatabaseConfig  `toml:"database"`
	Server    ServerConfig    `toml:"server"`
	Sync      SyncConfig      `toml:"sync"`
	Log       LogConfig       `toml:"log"`
	Metrics   MetricsConfig   `toml:"metrics"`
	Telemetry TelemetryConfig `toml:"telemetry"`
}

// SpotifyConfig contains Spotify API credentials and client settings.
type SpotifyConfig struct {
	ClientID           string  `toml:"client_id" env:"SPOTLABEL_SPOTIFY_CLIENT_ID, overwrite"`
	ClientSecret       string  `toml:"client_secret" env:"SPOTLABEL_SPOTIFY_CLIENT_SECRET, overwrite"`
	RedirectURI        string  `toml:"redirect_uri" env:"SPOTLABEL_SPOTIFY_REDIRECT_URI, overwrite"`
	BaseURL            string  `toml:"base_url" env:"SPOTLABEL_SPOTIFY_BASE_URL, overwrite"`
	AuthURL            string  `toml:"auth_url" env:"SPOTLABEL_SPOTIFY_AUTH_URL, overwrite"`
	TokenURL           string  `toml:"token_url" env:"SPOTLABEL_SPOTIFY_TOKEN_URL, overwrite"`
	RequestsPerSecond  float64 `toml:"requests_per_second" env:"SPOTLABEL_SPOTIFY_RPS, overwrite"`
	TimeoutSeconds     int     `toml:"timeout_seconds" env:"SPOTLABEL_SPOTIFY_TIMEOUT_SECONDS, overwrite"`
	TokenMarginSeconds int     `toml:"token_margin_seconds" env:"SPOTLABEL_SPOTIFY_TOKEN_MARGIN_SECONDS, overwrite"`
	DefaultUser        string  `toml:"default_user" env:"SPOTLABEL_USER, overwrite"`
}

// Timeout returns the HTTP client timeout.
func (c SpotifyConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// TokenMargin returns the safety margin subtracted from a freshly minted token's lifetime.
func (c SpotifyConfig) TokenMargin() time.Duration {
	return time.Duration(c.TokenMarginSeconds) * time.Second
}

// DatabaseConfig contains database connection settings.
type DatabaseConfig struct {
	Path         string `toml:"path" env:"SPOTLABEL_DATABASE_PATH, overwrite"`
	MaxOpenConns int    `toml:"max_open_conns" env:"SPOTLABEL_DATABASE_MAX_OPEN_CONNS, overwrite"`
	MaxIdleConns int    `toml:"max_idle_conns" env:"SPOTLABEL_DATABASE_MAX_IDLE_CONNS, overwrite"`
}

// ServerConfig contains settings for the local OAuth callback server.
type ServerConfig struct {
	Host string `toml:"host" env:"SPOTLABEL_SERVER_HOST, overwrite"`
	Port int    `toml:"port" env:"SPOTLABEL_SERVER_PORT, overwrite"`
}

// SyncConfig tunes the sync engine.
type SyncConfig struct {
	Concurrency      int    `toml:"concurrency" env:"SPOTLABEL_SYNC_CONCURRENCY, overwrite"`
	PlaceholderTrack string `toml:"placeholder_track" env:"SPOTLABEL_SYNC_PLACEHOLDER_TRACK, overwrite"`
}

// LogConfig controls the logger.
type LogConfig struct {
	Level string `toml:"level" env:"SPOTLABEL_LOG_LEVEL, overwrite"`
}

// MetricsConfig controls pushing run metrics to a Prometheus Pushgateway.
type MetricsConfig struct {
	PushgatewayURL string `toml:"pushgateway_url" env:"SPOTLABEL_PUSHGATEWAY_URL, overwrite"`
	Job            string `toml:"job" env:"SPOTLABEL_METRICS_JOB, overwrite"`
}

// TelemetryConfig controls OpenTelemetry trace export.
type TelemetryConfig struct {
	OTLPEndpoint string `toml:"otlp_endpoint" env:"OTEL_EXPORTER_OTLP_ENDPOINT, overwrite"`
	ServiceName  string `toml:"service_name" env:"OTEL_SERVICE_NAME, overwrite"`
}

// LoadConfig reads and parses a TOML configuration file from the specified path.
//
// Keys missing from the file keep the embedded defaults.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrMissingConfig, path)
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := toml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("%w: failed to parse config: %v", ErrInvalidConfig, err)
	}

	return config, nil
}

// DefaultConfig returns a Config with sensible defaults loaded from the embedded example config.
func DefaultConfig() *Config {
	var config Config
	if err := toml.Unmarshal(exampleConf, &config); err != nil {
		panic(fmt.Sprintf("failed to parse embedded default config: %v", err))
	}
	return &config
}

// ApplyEnv loads envFile (when it exists) into the process environment and overlays SPOTLABEL_* variables onto config.
func ApplyEnv(ctx context.Context, config *Config, envFile string) error {
	if envFile != "" {
		if _, err := os.Stat(envFile); err == nil {
			if err := godotenv.Load(envFile); err != nil {
				return fmt.Errorf("failed to load %s: %w", envFile, err)
			}
		}
	}

	if err := envconfig.Process(ctx, config); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}

// Validate checks the settings every sync command depends on.
func (c *Config) Validate() error {
	if c.Spotify.ClientID == "" || c.Spotify.ClientSecret == "" {
		return fmt.Errorf("%w: spotify client_id and client_secret must be set", ErrMissingCredentials)
	}
	if c.Database.Path == "" {
		return fmt.Errorf("%w: database path is empty", ErrInvalidConfig)
	}
	if c.Sync.Concurrency <= 0 {
		return fmt.Errorf("%w: sync concurrency must be positive", ErrInvalidConfig)
	}
	if c.Sync.PlaceholderTrack == "" {
		return fmt.Errorf("%w: sync placeholder_track is empty", ErrInvalidConfig)
	}
	return nil
}

// SaveConfig writes config to path as TOML, replacing any existing file.
func SaveConfig(path string, config *Config) error {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(config); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// CreateConfigFile creates a config.toml file at the specified path using the embedded example config.
func CreateConfigFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%w: config file at %s", ErrAlreadyExists, path)
	}

	if err := os.WriteFile(path, exampleConf, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
