package services

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"

	"github.com/desertthunder/spotlabel/internal/metrics"
	"github.com/desertthunder/spotlabel/internal/models"
	"github.com/desertthunder/spotlabel/internal/shared"
	tu "github.com/desertthunder/spotlabel/internal/testing"
)

var epoch = time.Date(2025, time.March, 14, 12, 0, 0, 0, time.UTC)

// memUsers records token writes.
type memUsers struct {
	mu     sync.Mutex
	users  map[string]*models.User
	writes []TokenSet
}

func newMemUsers() *memUsers {
	return &memUsers{users: make(map[string]*models.User)}
}

func (s *memUsers) Get(_ context.Context, id string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return u, nil
}

func (s *memUsers) List(context.Context) ([]*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.User
	for _, u := range s.users {
		out = append(out, u)
	}
	return out, nil
}

func (s *memUsers) Upsert(_ context.Context, user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[user.ID] = user
	return nil
}

func (s *memUsers) UpdateToken(_ context.Context, _ string, access, refresh string, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writes = append(s.writes, TokenSet{AccessToken: access, RefreshToken: refresh, ExpiresAt: expiresAt})
	return nil
}

func (s *memUsers) Writes() []TokenSet {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]TokenSet(nil), s.writes...)
}

type fixture struct {
	fake    *tu.FakeSpotify
	users   *memUsers
	clock   *tu.StubClock
	metrics *metrics.Metrics
	tokens  *TokenManager
	client  *Client
	spotify *Spotify
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		fake:    tu.NewFakeSpotify(t, "access-0"),
		users:   newMemUsers(),
		clock:   tu.NewStubClock(epoch),
		metrics: metrics.New(),
	}
	logger := log.New(io.Discard)

	f.tokens = NewTokenManager(Credentials{
		ClientID:     f.fake.ClientID,
		ClientSecret: f.fake.ClientSecret,
		RedirectURI:  "http://127.0.0.1:3000/callback",
		AuthURL:      f.fake.AuthURL(),
		TokenURL:     f.fake.TokenURL(),
	}, f.users, TokenManagerOptions{
		Clock:      f.clock,
		HTTPClient: f.fake.Server.Client(),
		Logger:     logger,
		Metrics:    f.metrics,
	})
	f.client = NewClient(f.tokens, ClientOptions{
		BaseURL:    f.fake.BaseURL(),
		HTTPClient: f.fake.Server.Client(),
		Logger:     logger,
		Metrics:    f.metrics,
	})
	f.spotify = NewSpotify(f.client)
	return f
}

// validSession carries the token the fake server accepts initially.
func (f *fixture) validSession() *Session {
	return NewSession(&models.User{
		ID:             "u1",
		AccessToken:    "access-0",
		RefreshToken:   "refresh-0",
		TokenExpiresAt: epoch.Add(time.Hour),
	})
}

func (f *fixture) expiredSession() *Session {
	return NewSession(&models.User{
		ID:             "u1",
		AccessToken:    "stale",
		RefreshToken:   "refresh-0",
		TokenExpiresAt: epoch.Add(-time.Minute),
	})
}
