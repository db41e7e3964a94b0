package services

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	spotifyauth "github.com/zmb3/spotify/v2/auth"
	"golang.org/x/oauth2"

	"github.com/desertthunder/spotlabel/internal/metrics"
	"github.com/desertthunder/spotlabel/internal/models"
	"github.com/desertthunder/spotlabel/internal/shared"
)

// DefaultTokenMargin is subtracted from a token's lifetime when it is minted.
const DefaultTokenMargin = 60 * time.Second

const defaultTokenLifetime = time.Hour

// Scopes requested at login.
var Scopes = []string{
	spotifyauth.ScopeUserReadPrivate,
	spotifyauth.ScopeUserLibraryRead,
	spotifyauth.ScopePlaylistModifyPrivate,
	spotifyauth.ScopePlaylistModifyPublic,
}

// Clock reports the current time.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// Credentials identify the application to the Spotify accounts service.
// Empty AuthURL and TokenURL default to Spotify's endpoints.
type Credentials struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
	AuthURL      string
	TokenURL     string
}

// TokenSet is a token pair with the instant the access token should be treated as expired.
type TokenSet struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}

// TokenManagerOptions tunes a [TokenManager]. Zero values select defaults.
type TokenManagerOptions struct {
	Clock      Clock
	Margin     time.Duration
	HTTPClient *http.Client
	Logger     *log.Logger
	Metrics    *metrics.Metrics
}

// TokenManager keeps a session's access token valid, refreshing it before use when expired.
type TokenManager struct {
	config     *oauth2.Config
	users      models.UserStore
	clock      Clock
	margin     time.Duration
	httpClient *http.Client
	logger     *log.Logger
	metrics    *metrics.Metrics
}

// NewTokenManager creates a TokenManager that persists refreshed tokens through users.
func NewTokenManager(creds Credentials, users models.UserStore, opts TokenManagerOptions) *TokenManager {
	authURL, tokenURL := creds.AuthURL, creds.TokenURL
	if authURL == "" {
		authURL = spotifyauth.AuthURL
	}
	if tokenURL == "" {
		tokenURL = spotifyauth.TokenURL
	}

	m := &TokenManager{
		config: &oauth2.Config{
			ClientID:     creds.ClientID,
			ClientSecret: creds.ClientSecret,
			RedirectURL:  creds.RedirectURI,
			Scopes:       Scopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:   authURL,
				TokenURL:  tokenURL,
				AuthStyle: oauth2.AuthStyleInHeader,
			},
		},
		users:      users,
		clock:      opts.Clock,
		margin:     opts.Margin,
		httpClient: opts.HTTPClient,
		logger:     opts.Logger,
		metrics:    opts.Metrics,
	}

	if m.clock == nil {
		m.clock = systemClock{}
	}
	if m.margin <= 0 {
		m.margin = DefaultTokenMargin
	}
	if m.logger == nil {
		m.logger = log.Default()
	}
	if m.metrics == nil {
		m.metrics = metrics.New()
	}
	return m
}

// AuthURL returns the authorization URL the user visits to grant access.
func (m *TokenManager) AuthURL(state string) string {
	return m.config.AuthCodeURL(state)
}

// Exchange trades an authorization code for a token pair.
func (m *TokenManager) Exchange(ctx context.Context, code string) (TokenSet, error) {
	tok, err := m.config.Exchange(m.oauthContext(ctx), code)
	if err != nil {
		return TokenSet{}, fmt.Errorf("%w: failed to exchange code: %v", shared.ErrAuthFailed, err)
	}
	if tok.RefreshToken == "" {
		return TokenSet{}, fmt.Errorf("%w: token response has no refresh token", shared.ErrAuthFailed)
	}
	return m.mint(tok, ""), nil
}

// EnsureValidToken returns an access token for sess that is not expired, refreshing it first when needed.
//
// A refresh is persisted through the UserStore before the session is updated. A rejected refresh
// token yields an error wrapping [shared.ErrRefreshFailed]; it is never retried.
func (m *TokenManager) EnsureValidToken(ctx context.Context, sess *Session) (string, error) {
	access, refresh, expiresAt := sess.Token()
	if access != "" && m.clock.Now().Before(expiresAt) {
		return access, nil
	}

	if refresh == "" {
		return "", fmt.Errorf("%w: user %s", shared.ErrNoRefreshToken, sess.UserID)
	}

	set, err := m.Refresh(ctx, refresh)
	if err != nil {
		return "", err
	}

	if err := m.users.UpdateToken(ctx, sess.UserID, set.AccessToken, set.RefreshToken, set.ExpiresAt); err != nil {
		return "", fmt.Errorf("failed to persist refreshed token: %w", err)
	}
	sess.update(set)

	m.metrics.TokenRefreshes.Inc()
	m.logger.Debug("refreshed access token", "user", sess.UserID, "expires_at", set.ExpiresAt.Format(time.RFC3339))
	return set.AccessToken, nil
}

// Refresh exchanges a refresh token for a new token pair. A response without a new
// refresh token keeps the old one.
func (m *TokenManager) Refresh(ctx context.Context, refreshToken string) (TokenSet, error) {
	src := m.config.TokenSource(m.oauthContext(ctx), &oauth2.Token{RefreshToken: refreshToken})

	tok, err := src.Token()
	if err != nil {
		return TokenSet{}, fmt.Errorf("%w: %v", shared.ErrRefreshFailed, err)
	}
	return m.mint(tok, refreshToken), nil
}

// mint computes the expiry of a freshly issued token with the safety margin applied.
func (m *TokenManager) mint(tok *oauth2.Token, previousRefresh string) TokenSet {
	lifetime := time.Duration(tok.ExpiresIn) * time.Second
	if lifetime <= 0 {
		lifetime = defaultTokenLifetime
	}

	refresh := tok.RefreshToken
	if refresh == "" {
		refresh = previousRefresh
	}

	return TokenSet{
		AccessToken:  tok.AccessToken,
		RefreshToken: refresh,
		ExpiresAt:    m.clock.Now().Add(lifetime - m.margin),
	}
}

func (m *TokenManager) oauthContext(ctx context.Context) context.Context {
	if m.httpClient == nil {
		return ctx
	}
	return context.WithValue(ctx, oauth2.HTTPClient, m.httpClient)
}
