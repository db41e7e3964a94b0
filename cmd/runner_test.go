package main

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"

	"github.com/desertthunder/spotlabel/internal/models"
	"github.com/desertthunder/spotlabel/internal/repositories"
	"github.com/desertthunder/spotlabel/internal/shared"
	tu "github.com/desertthunder/spotlabel/internal/testing"
)

var epoch = time.Date(2025, time.March, 14, 12, 0, 0, 0, time.UTC)

// cliEnv runs commands against a migrated in-memory database and a fake Spotify.
type cliEnv struct {
	runner     *Runner
	out        *bytes.Buffer
	db         *sql.DB
	repos      *repositories.Repositories
	fake       *tu.FakeSpotify
	config     *shared.Config
	configPath string
}

func newCLI(t *testing.T) *cliEnv {
	t.Helper()

	fake := tu.NewFakeSpotify(t, "access-0")
	db := tu.NewTestDatabase(t)

	config := shared.DefaultConfig()
	config.Spotify.ClientID = fake.ClientID
	config.Spotify.ClientSecret = fake.ClientSecret
	config.Spotify.BaseURL = fake.BaseURL()
	config.Spotify.AuthURL = fake.AuthURL()
	config.Spotify.TokenURL = fake.TokenURL()
	config.Spotify.RequestsPerSecond = 0
	config.Database.Path = ":memory:"
	config.Log.Level = "error"

	out := &bytes.Buffer{}
	configPath := filepath.Join(t.TempDir(), "config.toml")

	return &cliEnv{
		runner: NewRunner(RunnerOpts{
			Config:     config,
			ConfigPath: configPath,
			EnvFile:    filepath.Join(t.TempDir(), ".env"),
			HTTPClient: fake.Server.Client(),
			Logger:     log.New(io.Discard),
			Output:     out,
			DB:         db,
		}),
		out:        out,
		db:         db,
		repos:      repositories.New(db),
		fake:       fake,
		config:     config,
		configPath: configPath,
	}
}

func (c *cliEnv) run(args ...string) error {
	return c.runner.command().Run(context.Background(), append([]string{"spotlabel"}, args...))
}

func (c *cliEnv) mustRun(t *testing.T, args ...string) string {
	t.Helper()
	c.out.Reset()
	if err := c.run(args...); err != nil {
		t.Fatalf("spotlabel %s: %v", strings.Join(args, " "), err)
	}
	return c.out.String()
}

// addUser stores u1 with the token the fake accepts.
func (c *cliEnv) addUser(t *testing.T) {
	t.Helper()
	err := c.repos.Users.Upsert(context.Background(), &models.User{
		ID:             c.fake.UserID,
		DisplayName:    c.fake.DisplayName,
		AccessToken:    "access-0",
		RefreshToken:   "refresh-0",
		TokenExpiresAt: time.Now().Add(time.Hour),
	})
	if err != nil {
		t.Fatalf("failed to store user: %v", err)
	}
}

// addFavorites serves three saved tracks, the newest explicit.
func (c *cliEnv) addFavorites() {
	c.fake.AddArtists(
		tu.FakeArtist{ID: "ar1", Name: "Slowdive", Genres: []string{"shoegaze"}},
		tu.FakeArtist{ID: "ar2", Name: "Deftones", Genres: []string{"alt metal"}},
	)
	c.fake.SetSaved(
		tu.FakeTrack{ID: "t1", Name: "Sugar for the Pill", Explicit: true, AddedAt: epoch, AlbumID: "al1", AlbumName: "Slowdive", ReleaseDate: "2017-05-05", ArtistIDs: []string{"ar1"}},
		tu.FakeTrack{ID: "t2", Name: "Digital Bath", AddedAt: epoch.Add(-time.Hour), AlbumID: "al2", AlbumName: "White Pony", ReleaseDate: "2000-06-20", ArtistIDs: []string{"ar2"}},
		tu.FakeTrack{ID: "t3", Name: "Alison", AddedAt: epoch.Add(-2 * time.Hour), AlbumID: "al3", AlbumName: "Souvlaki", ReleaseDate: "1993", ArtistIDs: []string{"ar1"}},
	)
}

func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to find a free port: %v", err)
	}
	defer ln.Close()
	return ln.Addr().(*net.TCPAddr).Port
}

func TestRunner(t *testing.T) {
	t.Run("NewRunner", func(t *testing.T) {
		t.Run("With All Dependencies Provided", func(t *testing.T) {
			config := shared.DefaultConfig()
			logger := shared.NewLogger(nil)
			output := &bytes.Buffer{}
			httpClient := &http.Client{}

			runner := NewRunner(RunnerOpts{
				Config:     config,
				ConfigPath: "/test/path/config.toml",
				Logger:     logger,
				Output:     output,
				HTTPClient: httpClient,
			})

			if runner.config != config {
				t.Error("expected config to be set")
			}
			if runner.configPath != "/test/path/config.toml" {
				t.Errorf("expected configPath to be set, got %s", runner.configPath)
			}
			if runner.logger != logger {
				t.Error("expected logger to be set")
			}
			if runner.output != output {
				t.Error("expected output to be set")
			}
			if runner.httpClient != httpClient {
				t.Error("expected httpClient to be set")
			}
		})

		t.Run("Defaults", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{})

			if runner.logger == nil {
				t.Error("expected default logger to be set")
			}
			if runner.output != os.Stdout {
				t.Error("expected output to default to os.Stdout")
			}
			if runner.httpClient != http.DefaultClient {
				t.Error("expected httpClient to default to http.DefaultClient")
			}
			if runner.metrics == nil || runner.openBrowser == nil {
				t.Error("expected metrics and browser launcher defaults")
			}
		})
	})

	t.Run("writeJSON", func(t *testing.T) {
		t.Run("Writes Formatted JSON", func(t *testing.T) {
			output := &bytes.Buffer{}
			runner := NewRunner(RunnerOpts{Output: output})

			if err := runner.writeJSON(map[string]string{"key": "value"}, true); err != nil {
				t.Fatalf("expected no error, got %v", err)
			}

			result := output.String()
			if !strings.Contains(result, `"key": "value"`) {
				t.Errorf("expected formatted JSON, got %s", result)
			}
			if !strings.HasSuffix(result, "\n") {
				t.Error("expected output to end with newline")
			}
		})

		t.Run("Writes Compact JSON", func(t *testing.T) {
			output := &bytes.Buffer{}
			runner := NewRunner(RunnerOpts{Output: output})

			if err := runner.writeJSON(map[string]string{"key": "value"}, false); err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if got := output.String(); got != `{"key":"value"}`+"\n" {
				t.Errorf("unexpected output %q", got)
			}
		})

		t.Run("Marshal Error", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{Output: &bytes.Buffer{}})

			err := runner.writeJSON(make(chan int), false)
			if err == nil || !strings.Contains(err.Error(), "failed to marshal JSON") {
				t.Errorf("expected marshal error, got %v", err)
			}
		})

		t.Run("Write Failure", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{Output: &tu.FWriter{}})

			err := runner.writeJSON(map[string]string{"key": "value"}, false)
			if err == nil || !strings.Contains(err.Error(), "failed to write output") {
				t.Errorf("expected write error, got %v", err)
			}
		})
	})

	t.Run("writePlain", func(t *testing.T) {
		output := &bytes.Buffer{}
		runner := NewRunner(RunnerOpts{Output: output})

		if err := runner.writePlain("hello %s", "world"); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if output.String() != "hello world" {
			t.Errorf("expected 'hello world', got %q", output.String())
		}

		failing := NewRunner(RunnerOpts{Output: &tu.FWriter{}})
		if err := failing.writePlain("test"); err == nil {
			t.Error("expected error from failing writer")
		}
	})

	t.Run("register", func(t *testing.T) {
		commands := NewRunner(RunnerOpts{}).register()

		names := []string{}
		for _, cmd := range commands {
			names = append(names, cmd.Name)
		}
		if strings.Join(names, ",") != "setup,auth,sync,labels" {
			t.Errorf("unexpected commands %v", names)
		}
	})
}

func TestPrepare(t *testing.T) {
	t.Run("Loads Config File And Env Overrides", func(t *testing.T) {
		dir := t.TempDir()
		configPath := filepath.Join(dir, "config.toml")
		if err := os.WriteFile(configPath, []byte("[sync]\nconcurrency = 7\n\n[log]\nlevel = \"warn\"\n"), 0644); err != nil {
			t.Fatalf("failed to write config: %v", err)
		}
		envPath := filepath.Join(dir, ".env")
		if err := os.WriteFile(envPath, []byte("SPOTLABEL_SPOTIFY_CLIENT_ID=from-dotenv\n"), 0644); err != nil {
			t.Fatalf("failed to write .env: %v", err)
		}
		t.Setenv("SPOTLABEL_SPOTIFY_CLIENT_ID", "")
		os.Unsetenv("SPOTLABEL_SPOTIFY_CLIENT_ID")
		t.Setenv("SPOTLABEL_DATABASE_PATH", filepath.Join(dir, "env.db"))

		logger := log.New(io.Discard)
		runner := NewRunner(RunnerOpts{Logger: logger, Output: &bytes.Buffer{}})
		err := runner.command().Run(context.Background(), []string{"spotlabel", "--config", configPath, "--env-file", envPath, "setup", "database"})
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}

		if runner.config.Sync.Concurrency != 7 {
			t.Errorf("expected concurrency from file, got %d", runner.config.Sync.Concurrency)
		}
		if runner.config.Spotify.ClientID != "from-dotenv" {
			t.Errorf("expected client id from .env, got %q", runner.config.Spotify.ClientID)
		}
		if runner.config.Database.Path != filepath.Join(dir, "env.db") {
			t.Errorf("expected database path from env, got %q", runner.config.Database.Path)
		}
		if logger.GetLevel() != log.WarnLevel {
			t.Errorf("expected warn level, got %v", logger.GetLevel())
		}
		tu.AssertFileExists(t, filepath.Join(dir, "env.db"))
	})

	t.Run("Invalid Config", func(t *testing.T) {
		configPath := filepath.Join(t.TempDir(), "config.toml")
		if err := os.WriteFile(configPath, []byte("not = [valid"), 0644); err != nil {
			t.Fatalf("failed to write config: %v", err)
		}

		runner := NewRunner(RunnerOpts{Logger: log.New(io.Discard), Output: &bytes.Buffer{}})
		err := runner.command().Run(context.Background(), []string{"spotlabel", "--config", configPath, "setup", "database"})
		if !errors.Is(err, shared.ErrInvalidConfig) {
			t.Errorf("expected ErrInvalidConfig, got %v", err)
		}
	})

	t.Run("Invalid Log Level", func(t *testing.T) {
		c := newCLI(t)
		c.config.Log.Level = "loud"

		if err := c.run("auth", "status"); !errors.Is(err, shared.ErrInvalidConfig) {
			t.Errorf("expected ErrInvalidConfig, got %v", err)
		}
	})
}

func TestSetupDatabase(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.toml")
	config := shared.DefaultConfig()
	config.Database.Path = filepath.Join(dir, "spotlabel.db")
	out := &bytes.Buffer{}

	runner := NewRunner(RunnerOpts{Config: config, ConfigPath: configPath, Logger: log.New(io.Discard), Output: out})
	if err := runner.command().Run(context.Background(), []string{"spotlabel", "setup", "database"}); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	tu.AssertFileExists(t, configPath)
	if !strings.Contains(out.String(), "schema version") {
		t.Errorf("unexpected output %s", out.String())
	}

	db, err := shared.NewDatabase(config.Database.Path)
	if err != nil {
		t.Fatalf("failed to reopen database: %v", err)
	}
	defer db.Close()
	if err := shared.CheckMigrationStatus(db); err != nil {
		t.Errorf("expected migrated database, got %v", err)
	}
}

func TestAuth(t *testing.T) {
	t.Run("Login", func(t *testing.T) {
		c := newCLI(t)
		port := freePort(t)
		c.config.Server.Host = "127.0.0.1"
		c.config.Server.Port = port
		c.config.Spotify.RedirectURI = "http://127.0.0.1:" + strconv.Itoa(port) + "/callback"

		var wg sync.WaitGroup
		c.runner.openBrowser = func(url string) error {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if resp, err := c.fake.Server.Client().Get(url); err == nil {
					resp.Body.Close()
				}
			}()
			return nil
		}

		out := c.mustRun(t, "auth", "login", "--timeout", "10s")
		wg.Wait()

		if !strings.Contains(out, "Logged in as Test User (u1)") {
			t.Errorf("unexpected output %s", out)
		}

		user, err := c.repos.Users.Get(context.Background(), "u1")
		if err != nil {
			t.Fatalf("expected stored user, got %v", err)
		}
		if user.AccessToken != "access-1" || user.RefreshToken != "refresh-1" || user.ImageURL == "" {
			t.Errorf("unexpected user %+v", user)
		}

		saved, err := shared.LoadConfig(c.configPath)
		if err != nil {
			t.Fatalf("expected saved config, got %v", err)
		}
		if saved.Spotify.DefaultUser != "u1" {
			t.Errorf("expected default user u1, got %q", saved.Spotify.DefaultUser)
		}
	})

	t.Run("Login Without Credentials", func(t *testing.T) {
		c := newCLI(t)
		c.config.Spotify.ClientSecret = ""

		if err := c.run("auth", "login"); !errors.Is(err, shared.ErrMissingCredentials) {
			t.Errorf("expected ErrMissingCredentials, got %v", err)
		}
	})

	t.Run("Login Timeout", func(t *testing.T) {
		c := newCLI(t)
		c.config.Server.Port = freePort(t)
		c.runner.openBrowser = func(string) error { return errors.New("no browser") }

		err := c.run("auth", "login", "--timeout", "50ms")
		if !errors.Is(err, shared.ErrTimeout) {
			t.Errorf("expected ErrTimeout, got %v", err)
		}
		if !strings.Contains(c.out.String(), c.fake.AuthURL()) {
			t.Errorf("expected the authorization URL to be printed, got %s", c.out.String())
		}
	})

	t.Run("Status", func(t *testing.T) {
		c := newCLI(t)
		if out := c.mustRun(t, "auth", "status"); !strings.Contains(out, "Not authenticated") {
			t.Errorf("unexpected output %s", out)
		}

		c.addUser(t)
		out := c.mustRun(t, "auth", "status")
		if !strings.Contains(out, "Test User (u1)") || !strings.Contains(out, "valid for") {
			t.Errorf("unexpected output %s", out)
		}
	})
}

func TestSync(t *testing.T) {
	t.Run("Pull Then Push", func(t *testing.T) {
		c := newCLI(t)
		c.addUser(t)
		c.addFavorites()

		out := c.mustRun(t, "sync", "pull")
		if !strings.Contains(out, "New favorites: 3") {
			t.Errorf("unexpected pull output %s", out)
		}

		c.mustRun(t, "labels", "create", "--name", "Loud", "--criteria", "explicit")
		c.mustRun(t, "labels", "create", "--name", "Shoegaze", "--criteria", `genre = "shoegaze"`)

		out = c.mustRun(t, "sync", "push", "--user", "u1")
		if !strings.Contains(out, "Playlists created: 2") || !strings.Contains(out, "Playlists pushed: 2") {
			t.Errorf("unexpected push output %s", out)
		}
		if c.fake.PlaylistCount() != 2 {
			t.Errorf("expected 2 playlists, got %d", c.fake.PlaylistCount())
		}

		out = c.mustRun(t, "labels", "list")
		if !strings.Contains(out, "Playlist: created") {
			t.Errorf("expected playlist ids in listing, got %s", out)
		}
	})

	t.Run("Unknown User", func(t *testing.T) {
		c := newCLI(t)
		c.addUser(t)

		if err := c.run("sync", "pull", "--user", "nobody"); !errors.Is(err, shared.ErrNotAuthenticated) {
			t.Errorf("expected ErrNotAuthenticated, got %v", err)
		}
	})

	t.Run("No Stored User", func(t *testing.T) {
		c := newCLI(t)

		if err := c.run("sync", "push"); !errors.Is(err, shared.ErrNotAuthenticated) {
			t.Errorf("expected ErrNotAuthenticated, got %v", err)
		}
	})

	t.Run("Pushes Metrics", func(t *testing.T) {
		var mu sync.Mutex
		var paths []string
		gateway := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			mu.Lock()
			paths = append(paths, r.Method+" "+r.URL.Path)
			mu.Unlock()
			w.WriteHeader(http.StatusOK)
		}))
		defer gateway.Close()

		c := newCLI(t)
		c.config.Metrics.PushgatewayURL = gateway.URL
		c.addUser(t)
		c.addFavorites()

		c.mustRun(t, "sync", "pull")

		mu.Lock()
		defer mu.Unlock()
		if len(paths) != 1 || paths[0] != "POST /metrics/job/spotlabel/user/u1" {
			t.Errorf("unexpected pushgateway requests %v", paths)
		}
	})
}

func TestLabelsCommands(t *testing.T) {
	t.Run("Create Rejects Invalid Criteria", func(t *testing.T) {
		c := newCLI(t)
		c.addUser(t)

		if err := c.run("labels", "create", "--name", "Bad", "--criteria", `artst = "x"`); !errors.Is(err, shared.ErrInvalidCriteria) {
			t.Errorf("expected ErrInvalidCriteria, got %v", err)
		}
	})

	t.Run("Tag Show And Untag", func(t *testing.T) {
		c := newCLI(t)
		c.addUser(t)
		c.addFavorites()
		c.mustRun(t, "sync", "pull")
		c.mustRun(t, "labels", "create", "--name", "Keepers")

		labels, err := c.repos.Labels.List(context.Background(), "u1")
		if err != nil || len(labels) != 1 {
			t.Fatalf("expected one label, got %v %v", labels, err)
		}
		id := labels[0].ID

		c.mustRun(t, "labels", "tag", "--id", id, "--track", "t2")

		out := c.mustRun(t, "labels", "show", "--id", id, "--format", "json")
		if !strings.Contains(out, `"spotify_id": "t2"`) || strings.Contains(out, `"spotify_id": "t1"`) {
			t.Errorf("unexpected show output %s", out)
		}

		c.mustRun(t, "labels", "untag", "--id", id, "--track", "t2")
		if err := c.run("labels", "untag", "--id", id, "--track", "t2"); !errors.Is(err, shared.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("Criteria", func(t *testing.T) {
		c := newCLI(t)
		c.addUser(t)
		c.mustRun(t, "labels", "create", "--name", "Loud", "--criteria", "explicit")
		labels, _ := c.repos.Labels.List(context.Background(), "u1")
		id := labels[0].ID

		if err := c.run("labels", "criteria", "--id", id); !errors.Is(err, shared.ErrInvalidArgument) {
			t.Errorf("expected ErrInvalidArgument without --criteria or --static, got %v", err)
		}

		c.mustRun(t, "labels", "criteria", "--id", id, "--criteria", "not explicit")
		label, _ := c.repos.Labels.Get(context.Background(), "u1", id)
		if label.Criteria == nil || *label.Criteria != "not explicit" {
			t.Errorf("expected updated criteria, got %v", label.Criteria)
		}

		c.mustRun(t, "labels", "criteria", "--id", id, "--static")
		label, _ = c.repos.Labels.Get(context.Background(), "u1", id)
		if label.IsSmart() {
			t.Error("expected label to be static")
		}
	})

	t.Run("Validate", func(t *testing.T) {
		c := newCLI(t)

		out := c.mustRun(t, "labels", "validate", `ARTIST == "a" OR Title ~ "b"`)
		if !strings.Contains(out, `Parsed: (artist = "a" or name ~ "b")`) {
			t.Errorf("unexpected output %s", out)
		}

		c.out.Reset()
		err := c.run("labels", "validate", `artist = "unterminated`)
		if !errors.Is(err, shared.ErrInvalidCriteria) {
			t.Errorf("expected ErrInvalidCriteria, got %v", err)
		}
		if !strings.Contains(c.out.String(), "^") {
			t.Errorf("expected a position marker, got %s", c.out.String())
		}
	})

	t.Run("Export", func(t *testing.T) {
		c := newCLI(t)
		c.addUser(t)
		c.addFavorites()
		c.mustRun(t, "sync", "pull")
		c.mustRun(t, "labels", "create", "--name", "Loud", "--criteria", "explicit")

		dir := filepath.Join(t.TempDir(), "export")
		out := c.mustRun(t, "labels", "export", "--format", "csv", "--output", dir)
		if !strings.Contains(out, "Labels: 1/1 exported") {
			t.Errorf("unexpected output %s", out)
		}
		tu.AssertFileExists(t, filepath.Join(dir, "export_manifest.json"))
	})
}
