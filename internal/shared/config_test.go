package shared

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestConfig(t *testing.T) {
	t.Run("DefaultConfig", func(t *testing.T) {
		config := DefaultConfig()

		if config.Database.Path != "./spotlabel.db" {
			t.Errorf("expected database path ./spotlabel.db, got %s", config.Database.Path)
		}
		if config.Server.Port != 3000 {
			t.Errorf("expected server port 3000, got %d", config.Server.Port)
		}
		if config.Spotify.BaseURL != "https://api.spotify.com/v1" {
			t.Errorf("expected spotify base URL, got %s", config.Spotify.BaseURL)
		}
		if config.Sync.Concurrency != 4 {
			t.Errorf("expected sync concurrency 4, got %d", config.Sync.Concurrency)
		}
		if config.Sync.PlaceholderTrack == "" {
			t.Error("expected a default placeholder track")
		}
		if config.Spotify.TokenMargin().Seconds() != 60 {
			t.Errorf("expected 60s token margin, got %v", config.Spotify.TokenMargin())
		}
	})

	t.Run("CreateConfigFile", func(t *testing.T) {
		configPath := filepath.Join(t.TempDir(), "config.toml")

		if err := CreateConfigFile(configPath); err != nil {
			t.Fatalf("failed to create config file: %v", err)
		}

		config, err := LoadConfig(configPath)
		if err != nil {
			t.Fatalf("failed to load created config: %v", err)
		}
		if config.Database.Path != DefaultConfig().Database.Path {
			t.Errorf("created config database path doesn't match default")
		}

		err = CreateConfigFile(configPath)
		if !errors.Is(err, ErrAlreadyExists) {
			t.Errorf("expected ErrAlreadyExists creating config twice, got %v", err)
		}
	})

	t.Run("LoadConfig", func(t *testing.T) {
		configPath := filepath.Join(t.TempDir(), "config.toml")
		testConfig := `[database]
path = "/custom/path.db"

[spotify]
client_id = "test_client_id"
client_secret = "test_secret"

[sync]
concurrency = 8
`
		if err := os.WriteFile(configPath, []byte(testConfig), 0644); err != nil {
			t.Fatalf("failed to write test config: %v", err)
		}

		config, err := LoadConfig(configPath)
		if err != nil {
			t.Fatalf("failed to load config: %v", err)
		}

		if config.Database.Path != "/custom/path.db" {
			t.Errorf("expected database path /custom/path.db, got %s", config.Database.Path)
		}
		if config.Sync.Concurrency != 8 {
			t.Errorf("expected concurrency 8, got %d", config.Sync.Concurrency)
		}
		if config.Server.Port != 3000 {
			t.Errorf("expected default server port to survive partial file, got %d", config.Server.Port)
		}
		if err := config.Validate(); err != nil {
			t.Errorf("expected valid config, got %v", err)
		}
	})

	t.Run("LoadConfig Missing File", func(t *testing.T) {
		_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.toml"))
		if !errors.Is(err, ErrMissingConfig) {
			t.Errorf("expected ErrMissingConfig, got %v", err)
		}
	})

	t.Run("LoadConfig Malformed", func(t *testing.T) {
		configPath := filepath.Join(t.TempDir(), "config.toml")
		if err := os.WriteFile(configPath, []byte("[database\npath="), 0644); err != nil {
			t.Fatalf("failed to write test config: %v", err)
		}

		_, err := LoadConfig(configPath)
		if !errors.Is(err, ErrInvalidConfig) {
			t.Errorf("expected ErrInvalidConfig, got %v", err)
		}
	})

	t.Run("ApplyEnv", func(t *testing.T) {
		dir := t.TempDir()
		envFile := filepath.Join(dir, ".env")
		if err := os.WriteFile(envFile, []byte("SPOTLABEL_SPOTIFY_CLIENT_SECRET=from_dotenv\n"), 0644); err != nil {
			t.Fatalf("failed to write env file: %v", err)
		}
		t.Cleanup(func() { os.Unsetenv("SPOTLABEL_SPOTIFY_CLIENT_SECRET") })
		t.Setenv("SPOTLABEL_SYNC_CONCURRENCY", "2")

		config := DefaultConfig()
		if err := ApplyEnv(context.Background(), config, envFile); err != nil {
			t.Fatalf("failed to apply env: %v", err)
		}

		if config.Spotify.ClientSecret != "from_dotenv" {
			t.Errorf("expected client secret from .env, got %s", config.Spotify.ClientSecret)
		}
		if config.Sync.Concurrency != 2 {
			t.Errorf("expected concurrency 2 from env, got %d", config.Sync.Concurrency)
		}
		if config.Spotify.ClientID != "your_spotify_client_id" {
			t.Errorf("expected unset variables to keep file values, got %s", config.Spotify.ClientID)
		}
	})

	t.Run("SaveConfig", func(t *testing.T) {
		configPath := filepath.Join(t.TempDir(), "config.toml")
		config := DefaultConfig()
		config.Spotify.DefaultUser = "spotify-user"

		if err := SaveConfig(configPath, config); err != nil {
			t.Fatalf("failed to save config: %v", err)
		}

		loaded, err := LoadConfig(configPath)
		if err != nil {
			t.Fatalf("failed to load saved config: %v", err)
		}
		if loaded.Spotify.DefaultUser != "spotify-user" {
			t.Errorf("expected default user to persist, got %q", loaded.Spotify.DefaultUser)
		}
	})

	t.Run("Validate", func(t *testing.T) {
		config := DefaultConfig()
		config.Spotify.ClientSecret = ""
		if err := config.Validate(); !errors.Is(err, ErrMissingCredentials) {
			t.Errorf("expected ErrMissingCredentials, got %v", err)
		}

		config = DefaultConfig()
		config.Sync.Concurrency = 0
		if err := config.Validate(); !errors.Is(err, ErrInvalidConfig) {
			t.Errorf("expected ErrInvalidConfig, got %v", err)
		}
	})
}
