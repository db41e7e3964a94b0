package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/charmbracelet/log"
	"github.com/urfave/cli/v3"

	"github.com/desertthunder/spotlabel/internal/metrics"
	"github.com/desertthunder/spotlabel/internal/models"
	"github.com/desertthunder/spotlabel/internal/repositories"
	"github.com/desertthunder/spotlabel/internal/services"
	"github.com/desertthunder/spotlabel/internal/shared"
	"github.com/desertthunder/spotlabel/internal/tasks"
	"github.com/desertthunder/spotlabel/internal/telemetry"
)

// Runner holds all dependencies for CLI commands and provides methods for each command action.
type Runner struct {
	config      *shared.Config
	configPath  string
	envFile     string
	httpClient  *http.Client
	logger      *log.Logger
	output      io.Writer
	metrics     *metrics.Metrics
	openBrowser func(string) error

	db       *sql.DB
	ownsDB   bool
	repos    *repositories.Repositories
	shutdown func(context.Context) error
}

// RunnerOpts contains configuration options for creating a Runner.
//
// A nil Config is loaded from ConfigPath before the first command runs. A nil DB is opened
// from the configured database path when a command first needs it.
type RunnerOpts struct {
	Config      *shared.Config
	ConfigPath  string
	EnvFile     string
	HTTPClient  *http.Client
	Logger      *log.Logger
	Output      io.Writer
	Metrics     *metrics.Metrics
	DB          *sql.DB
	OpenBrowser func(string) error
}

// NewRunner creates a new Runner with the provided configuration
func NewRunner(opts RunnerOpts) *Runner {
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = http.DefaultClient
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.New()
	}
	if opts.OpenBrowser == nil {
		opts.OpenBrowser = shared.OpenBrowser
	}

	return &Runner{
		config:      opts.Config,
		configPath:  opts.ConfigPath,
		envFile:     opts.EnvFile,
		httpClient:  opts.HTTPClient,
		logger:      opts.Logger,
		output:      opts.Output,
		metrics:     opts.Metrics,
		openBrowser: opts.OpenBrowser,
		db:          opts.DB,
	}
}

// command builds the root command.
func (r *Runner) command() *cli.Command {
	return &cli.Command{
		Name:    "spotlabel",
		Usage:   "Label your Spotify favorites and keep a playlist per label",
		Version: "0.1.0",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to configuration file",
				Value:   "config.toml",
			},
			&cli.StringFlag{
				Name:  "env-file",
				Usage: "Path to a .env file with SPOTLABEL_* overrides",
				Value: ".env",
			},
		},
		Before:   r.prepare,
		After:    r.finish,
		Commands: r.register(),
	}
}

func (r *Runner) register() []*cli.Command {
	commands := []*cli.Command{}
	for _, fn := range [](func(*Runner) *cli.Command){
		setupCommand, authCommand, syncCommand, labelsCommand,
	} {
		commands = append(commands, fn(r))
	}

	return commands
}

// prepare loads the configuration, applies environment overrides and starts tracing.
func (r *Runner) prepare(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	if r.configPath == "" || cmd.IsSet("config") {
		r.configPath = cmd.String("config")
	}
	if r.envFile == "" || cmd.IsSet("env-file") {
		r.envFile = cmd.String("env-file")
	}

	if r.config == nil {
		config, err := shared.LoadConfig(r.configPath)
		switch {
		case errors.Is(err, shared.ErrMissingConfig):
			r.logger.Debug("config file not found, using defaults", "path", r.configPath)
			config = shared.DefaultConfig()
		case err != nil:
			return ctx, err
		}
		r.config = config
	}

	if err := shared.ApplyEnv(ctx, r.config, r.envFile); err != nil {
		return ctx, err
	}
	if err := shared.SetLogLevel(r.logger, r.config.Log.Level); err != nil {
		return ctx, err
	}

	shutdown, err := telemetry.Init(ctx, r.config.Telemetry.ServiceName, r.config.Telemetry.OTLPEndpoint)
	if err != nil {
		return ctx, err
	}
	r.shutdown = shutdown
	return ctx, nil
}

// finish flushes traces and closes the database if the runner opened it.
func (r *Runner) finish(ctx context.Context, _ *cli.Command) error {
	var errs []error
	if r.shutdown != nil {
		errs = append(errs, r.shutdown(ctx))
	}
	if r.ownsDB && r.db != nil {
		errs = append(errs, r.db.Close())
		r.db, r.repos, r.ownsDB = nil, nil, false
	}
	return errors.Join(errs...)
}

// store returns the repositories, opening the configured database on first use.
// The schema must already be migrated.
func (r *Runner) store() (*repositories.Repositories, error) {
	if r.repos != nil {
		return r.repos, nil
	}

	if r.db == nil {
		db, err := shared.NewDatabase(r.config.Database.Path)
		if err != nil {
			return nil, err
		}
		shared.ConfigureDatabase(db, r.config.Database.Path, r.config.Database.MaxOpenConns, r.config.Database.MaxIdleConns)
		r.db, r.ownsDB = db, true
	}

	if err := shared.CheckMigrationStatus(r.db); err != nil {
		return nil, err
	}

	r.repos = repositories.New(r.db)
	return r.repos, nil
}

// tokenManager builds the token manager from the Spotify credentials in the configuration.
func (r *Runner) tokenManager(users models.UserStore) (*services.TokenManager, error) {
	cfg := r.config.Spotify
	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, fmt.Errorf("%w: spotify client_id and client_secret must be set", shared.ErrMissingCredentials)
	}

	return services.NewTokenManager(services.Credentials{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		RedirectURI:  cfg.RedirectURI,
		AuthURL:      cfg.AuthURL,
		TokenURL:     cfg.TokenURL,
	}, users, services.TokenManagerOptions{
		Margin:     cfg.TokenMargin(),
		HTTPClient: r.client(),
		Logger:     r.logger,
		Metrics:    r.metrics,
	}), nil
}

// spotify builds the Web API endpoints on top of a client authorized by tokens.
func (r *Runner) spotify(tokens *services.TokenManager) *services.Spotify {
	client := services.NewClient(tokens, services.ClientOptions{
		BaseURL:           r.config.Spotify.BaseURL,
		HTTPClient:        r.client(),
		RequestsPerSecond: r.config.Spotify.RequestsPerSecond,
		Logger:            r.logger,
		Metrics:           r.metrics,
	})
	return services.NewSpotify(client)
}

// client returns the HTTP client with the configured timeout applied.
func (r *Runner) client() *http.Client {
	c := *r.httpClient
	if c.Timeout == 0 {
		c.Timeout = r.config.Spotify.Timeout()
	}
	return &c
}

// user resolves the user a command acts for: the --user flag, then the configured default user,
// then the only stored user.
func (r *Runner) user(ctx context.Context, cmd *cli.Command, users *repositories.UserRepository) (*models.User, error) {
	id := cmd.String("user")
	if id == "" {
		id = r.config.Spotify.DefaultUser
	}

	if id == "" {
		all, err := users.List(ctx)
		if err != nil {
			return nil, err
		}
		if len(all) != 1 {
			return nil, fmt.Errorf("%w: %d stored users, pass --user or run 'spotlabel auth login'", shared.ErrNotAuthenticated, len(all))
		}
		return all[0], nil
	}

	user, err := users.Get(ctx, id)
	if errors.Is(err, shared.ErrNotFound) {
		return nil, fmt.Errorf("%w: user %s (run 'spotlabel auth login')", shared.ErrNotAuthenticated, id)
	}
	return user, err
}

// pushMetrics sends the run's metrics to the configured Pushgateway. Failures are logged.
func (r *Runner) pushMetrics(ctx context.Context, userID string) {
	cfg := r.config.Metrics
	if err := r.metrics.Push(ctx, cfg.PushgatewayURL, cfg.Job, map[string]string{"user": userID}); err != nil {
		r.logger.Warn("failed to push metrics", "error", err)
	}
}

func (r *Runner) writeJSON(data any, pretty bool) error {
	output, err := shared.MarshalJSON(data, pretty)
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	if _, err := r.output.Write(output); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}

	if _, err := r.output.Write([]byte("\n")); err != nil {
		return fmt.Errorf("failed to write newline: %w", err)
	}

	return nil
}

func (r *Runner) writePlain(format string, args ...any) error {
	text := fmt.Sprintf(format, args...)
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainln(format string, args ...any) error {
	text := "\n" + fmt.Sprintf(format, args...) + "\n"
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainHeader(title string) {
	r.writePlain("═══════════════════════════════════════\n")
	r.writePlain("%v\n", title)
	r.writePlain("═══════════════════════════════════════\n")
}

// progress prints updates until the returned stop function is called.
func (r *Runner) progress() (chan tasks.ProgressUpdate, func()) {
	ch := make(chan tasks.ProgressUpdate, 50)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for update := range ch {
			r.logger.Debug("progress", "phase", update.Phase, "step", update.Step, "total", update.Total)
			r.writePlain("  %s\n", update.Message)
		}
	}()
	return ch, func() {
		close(ch)
		<-done
	}
}
