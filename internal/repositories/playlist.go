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

// PlaylistRepository implements [models.PlaylistStore].
type PlaylistRepository struct {
	db *sql.DB
}

// NewPlaylistRepository creates a new PlaylistRepository with the given database connection
func NewPlaylistRepository(db *sql.DB) *PlaylistRepository {
	return &PlaylistRepository{db: db}
}

// Create records the playlist provisioned for a label. Each label has at most one playlist.
func (r *PlaylistRepository) Create(ctx context.Context, playlist *models.Playlist) error {
	if err := playlist.Validate(); err != nil {
		return err
	}

	playlist.ID = shared.GenerateID()
	playlist.CreatedAt = time.Now().UTC()

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO playlists (id, user_id, label_id, spotify_id, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, playlist.ID, playlist.UserID, playlist.LabelID, playlist.SpotifyID, playlist.CreatedAt)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: playlist for label %s", shared.ErrAlreadyExists, playlist.LabelID)
	}
	if err != nil {
		return fmt.Errorf("failed to insert playlist: %w", err)
	}
	return nil
}

// GetByLabel retrieves the playlist provisioned for a label.
func (r *PlaylistRepository) GetByLabel(ctx context.Context, labelID string) (*models.Playlist, error) {
	var playlist models.Playlist
	err := sqlscan.Get(ctx, r.db, &playlist,
		`SELECT id, user_id, label_id, spotify_id, created_at FROM playlists WHERE label_id = ?`, labelID)
	if sqlscan.NotFound(err) {
		return nil, fmt.Errorf("%w: playlist for label %s", shared.ErrNotFound, labelID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get playlist: %w", err)
	}
	return &playlist, nil
}

type labelPlaylistRow struct {
	Label    models.Label    `db:"label"`
	Playlist models.Playlist `db:"playlist"`
}

// ListWithLabels returns every provisioned playlist of the user paired with its label.
func (r *PlaylistRepository) ListWithLabels(ctx context.Context, userID string) ([]*models.LabelPlaylist, error) {
	query := `
		SELECT
			l.id AS "label.id", l.user_id AS "label.user_id", l.name AS "label.name",
			l.criteria AS "label.criteria", l.created_at AS "label.created_at", l.updated_at AS "label.updated_at",
			p.id AS "playlist.id", p.user_id AS "playlist.user_id", p.label_id AS "playlist.label_id",
			p.spotify_id AS "playlist.spotify_id", p.created_at AS "playlist.created_at"
		FROM playlists p
		JOIN labels l ON l.id = p.label_id
		WHERE p.user_id = ?
		ORDER BY l.name
	`

	var rows []*labelPlaylistRow
	if err := sqlscan.Select(ctx, r.db, &rows, query, userID); err != nil {
		return nil, fmt.Errorf("failed to list playlists: %w", err)
	}

	pairs := make([]*models.LabelPlaylist, len(rows))
	for i, row := range rows {
		pairs[i] = &models.LabelPlaylist{Label: &row.Label, Playlist: &row.Playlist}
	}
	return pairs, nil
}
