package services

import (
	"sync"
	"time"

	"github.com/desertthunder/spotlabel/internal/models"
)

// Session is the token state of one user for the duration of one operation.
//
// It is created from the stored user at the start of a sync and passed down every call chain,
// so a refresh performed by one request is seen by the requests that follow it.
// The mutex only protects the fields; two goroutines may still both decide to refresh.
type Session struct {
	UserID string

	mu           sync.RWMutex
	accessToken  string
	refreshToken string
	expiresAt    time.Time
}

// NewSession creates a session carrying the user's stored tokens.
func NewSession(user *models.User) *Session {
	return &Session{
		UserID:       user.ID,
		accessToken:  user.AccessToken,
		refreshToken: user.RefreshToken,
		expiresAt:    user.TokenExpiresAt,
	}
}

// Token returns the current token pair and the instant the access token must be refreshed.
func (s *Session) Token() (accessToken, refreshToken string, expiresAt time.Time) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.accessToken, s.refreshToken, s.expiresAt
}

func (s *Session) update(set TokenSet) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accessToken = set.AccessToken
	s.refreshToken = set.RefreshToken
	s.expiresAt = set.ExpiresAt
}
