package main

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/desertthunder/spotlabel/internal/models"
	"github.com/desertthunder/spotlabel/internal/server"
	"github.com/desertthunder/spotlabel/internal/services"
	"github.com/desertthunder/spotlabel/internal/shared"
)

const loginTimeout = 2 * time.Minute

// AuthLogin performs the authorization code flow and stores the authorized user.
//
// Starts the local callback server, opens the browser to the authorization URL and waits for the
// callback. The exchanged tokens are used to fetch the profile, the user is upserted with the
// tokens and becomes the default user in the config file.
func (r *Runner) AuthLogin(ctx context.Context, cmd *cli.Command) error {
	repos, err := r.store()
	if err != nil {
		return err
	}

	tokens, err := r.tokenManager(repos.Users)
	if err != nil {
		return err
	}

	set, err := r.authorize(ctx, tokens, cmd.Duration("timeout"))
	if err != nil {
		return err
	}

	user := &models.User{
		AccessToken:    set.AccessToken,
		RefreshToken:   set.RefreshToken,
		TokenExpiresAt: set.ExpiresAt,
	}
	profile, err := r.spotify(tokens).Profile(ctx, services.NewSession(user))
	if err != nil {
		return fmt.Errorf("failed to fetch profile: %w", err)
	}

	user.ID = profile.ID
	user.DisplayName = profile.DisplayName
	user.ImageURL = profile.ImageURL()
	if err := repos.Users.Upsert(ctx, user); err != nil {
		return err
	}

	r.config.Spotify.DefaultUser = user.ID
	if r.configPath != "" {
		if err := shared.SaveConfig(r.configPath, r.config); err != nil {
			r.logger.Warn("failed to save default user", "error", err)
		}
	}

	r.logger.Info("login complete", "user", user.ID)
	r.writePlainln("✓ Logged in as %s (%s)", user.DisplayName, user.ID)
	r.writePlain("You can now run: spotlabel sync pull\n")
	return nil
}

// authorize runs the callback server until one authorization result arrives.
func (r *Runner) authorize(ctx context.Context, tokens *services.TokenManager, timeout time.Duration) (services.TokenSet, error) {
	state, err := shared.GenerateState()
	if err != nil {
		return services.TokenSet{}, fmt.Errorf("failed to generate state token: %w", err)
	}

	handler := server.NewOAuthHandler(tokens, state, r.logger)
	addr := net.JoinHostPort(r.config.Server.Host, strconv.Itoa(r.config.Server.Port))

	srv, err := server.Listen(addr, server.NewRouter(r.logger, handler), r.logger)
	if err != nil {
		return services.TokenSet{}, err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			r.logger.Warn("error shutting down server", "error", err)
		}
	}()

	authURL := tokens.AuthURL(state)
	r.writePlain("→ Opening browser for Spotify authorization...\n")
	if err := r.openBrowser(authURL); err != nil {
		r.logger.Warnf("failed to open browser automatically %v", err)
		r.writePlainln("⚠ Could not open browser automatically.")
		r.writePlain("Please open this URL in your browser:\n%s\n\n", authURL)
	}

	if timeout <= 0 {
		timeout = loginTimeout
	}
	r.writePlain("→ Waiting for authorization (%s timeout)...\n", timeout)

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case result := <-handler.Result():
		if result.Error() != nil {
			return services.TokenSet{}, fmt.Errorf("authorization failed: %w", result.Error())
		}
		return result.Tokens, nil
	case <-timer.C:
		return services.TokenSet{}, fmt.Errorf("%w: authorization timed out after %s", shared.ErrTimeout, timeout)
	case <-ctx.Done():
		return services.TokenSet{}, ctx.Err()
	}
}

// AuthStatus prints every stored user with its token expiry.
func (r *Runner) AuthStatus(ctx context.Context, cmd *cli.Command) error {
	repos, err := r.store()
	if err != nil {
		return err
	}

	users, err := repos.Users.List(ctx)
	if err != nil {
		return err
	}
	if len(users) == 0 {
		return r.writePlain("✗ Not authenticated (run 'spotlabel auth login')\n")
	}

	now := time.Now()
	for _, u := range users {
		marker := " "
		if u.ID == r.config.Spotify.DefaultUser {
			marker = "*"
		}

		expiry := "expired, refreshed on next sync"
		if now.Before(u.TokenExpiresAt) {
			expiry = "valid for " + u.TokenExpiresAt.Sub(now).Round(time.Second).String()
		}
		r.writePlain("%s %s (%s)\n", marker, u.DisplayName, u.ID)
		r.writePlain("  Token: %s (expires %s)\n", expiry, u.TokenExpiresAt.Local().Format(time.RFC1123))
	}
	return nil
}
