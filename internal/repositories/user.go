package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/georgysavva/scany/v2/sqlscan"

	"github.com/desertthunder/spotlabel/internal/models"
	"github.com/desertthunder/spotlabel/internal/shared"
)

const userColumns = `id, display_name, image_url, access_token, refresh_token, token_expires_at, created_at, updated_at`

// UserRepository implements [models.UserStore].
type UserRepository struct {
	db *sql.DB
}

// NewUserRepository creates a new UserRepository with the given database connection
func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

// Get retrieves a user by Spotify user id.
func (r *UserRepository) Get(ctx context.Context, id string) (*models.User, error) {
	var user models.User
	err := sqlscan.Get(ctx, r.db, &user, `SELECT `+userColumns+` FROM users WHERE id = ?`, id)
	if sqlscan.NotFound(err) {
		return nil, fmt.Errorf("%w: user %s", shared.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &user, nil
}

// List returns every stored user.
func (r *UserRepository) List(ctx context.Context) ([]*models.User, error) {
	var users []*models.User
	if err := sqlscan.Select(ctx, r.db, &users, `SELECT `+userColumns+` FROM users ORDER BY display_name, id`); err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	return users, nil
}

// Upsert inserts the user or replaces its profile and token pair.
func (r *UserRepository) Upsert(ctx context.Context, user *models.User) error {
	if err := user.Validate(); err != nil {
		return err
	}

	now := time.Now().UTC()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	user.UpdatedAt = now

	query := `
		INSERT INTO users (` + userColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			display_name = excluded.display_name,
			image_url = excluded.image_url,
			access_token = excluded.access_token,
			refresh_token = excluded.refresh_token,
			token_expires_at = excluded.token_expires_at,
			updated_at = excluded.updated_at
	`

	_, err := r.db.ExecContext(ctx, query,
		user.ID,
		user.DisplayName,
		user.ImageURL,
		user.AccessToken,
		user.RefreshToken,
		user.TokenExpiresAt.UTC(),
		user.CreatedAt,
		user.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert user: %w", err)
	}
	return nil
}

// UpdateToken writes only the token columns of a user.
func (r *UserRepository) UpdateToken(ctx context.Context, id, accessToken, refreshToken string, expiresAt time.Time) error {
	query := `
		UPDATE users
		SET access_token = ?, refresh_token = ?, token_expires_at = ?, updated_at = ?
		WHERE id = ?
	`

	result, err := r.db.ExecContext(ctx, query, accessToken, refreshToken, expiresAt.UTC(), time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to update token: %w", err)
	}
	return expectAffected(result, "user", id)
}
