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

// trackSelect reads tracks (t) joined with their album (al) and a comma-separated artist list.
const trackSelect = `
	SELECT t.id, t.user_id, t.spotify_id, t.name, t.album_id, t.explicit, t.favorited_at, t.created_at,
		al.name AS album_name,
		al.release_date AS release_date,
		COALESCE((
			SELECT group_concat(ar.name, ', ')
			FROM track_artists ta
			JOIN artists ar ON ar.id = ta.artist_id
			WHERE ta.track_id = t.id
		), '') AS artist_names
	FROM tracks t
	JOIN albums al ON al.id = t.album_id
`

// TrackRepository implements [models.TrackStore].
type TrackRepository struct {
	db *sql.DB
}

// NewTrackRepository creates a new TrackRepository with the given database connection
func NewTrackRepository(db *sql.DB) *TrackRepository {
	return &TrackRepository{db: db}
}

// Create inserts a track and its artist links in one transaction, assigning a new id.
func (r *TrackRepository) Create(ctx context.Context, track *models.Track) error {
	if err := track.Validate(); err != nil {
		return err
	}

	track.ID = shared.GenerateID()
	track.CreatedAt = time.Now().UTC()

	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO tracks (id, user_id, spotify_id, name, album_id, explicit, favorited_at, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`,
			track.ID,
			track.UserID,
			track.SpotifyID,
			track.Name,
			track.AlbumID,
			track.Explicit,
			track.FavoritedAt.UTC(),
			track.CreatedAt,
		)
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: track %s", shared.ErrAlreadyExists, track.SpotifyID)
		}
		if err != nil {
			return fmt.Errorf("failed to insert track %s: %w", track.SpotifyID, err)
		}

		for i, artistID := range track.ArtistIDs {
			_, err := tx.ExecContext(ctx,
				`INSERT INTO track_artists (track_id, artist_id, position) VALUES (?, ?, ?) ON CONFLICT DO NOTHING`,
				track.ID, artistID, i,
			)
			if err != nil {
				return fmt.Errorf("failed to link artist %s to track %s: %w", artistID, track.SpotifyID, err)
			}
		}
		return nil
	})
}

// ExistingSpotifyIDs reports which of spotifyIDs the user already has stored.
func (r *TrackRepository) ExistingSpotifyIDs(ctx context.Context, userID string, spotifyIDs []string) (map[string]bool, error) {
	existing := make(map[string]bool)
	if len(spotifyIDs) == 0 {
		return existing, nil
	}

	var found []string
	query := `SELECT spotify_id FROM tracks WHERE user_id = ? AND spotify_id IN (` + placeholders(len(spotifyIDs)) + `)`
	args := append([]any{userID}, toArgs(spotifyIDs)...)
	if err := sqlscan.Select(ctx, r.db, &found, query, args...); err != nil {
		return nil, fmt.Errorf("failed to query existing tracks: %w", err)
	}

	for _, id := range found {
		existing[id] = true
	}
	return existing, nil
}

// GetBySpotifyID retrieves a user's track by its Spotify id.
func (r *TrackRepository) GetBySpotifyID(ctx context.Context, userID, spotifyID string) (*models.Track, error) {
	var track models.Track
	err := sqlscan.Get(ctx, r.db, &track, trackSelect+` WHERE t.user_id = ? AND t.spotify_id = ?`, userID, spotifyID)
	if sqlscan.NotFound(err) {
		return nil, fmt.Errorf("%w: track %s", shared.ErrNotFound, spotifyID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get track: %w", err)
	}
	return &track, nil
}

// FindByFilter returns the user's tracks matching filter, most recently favorited first.
// A nil filter matches every track.
func (r *TrackRepository) FindByFilter(ctx context.Context, userID string, filter models.TrackFilter) ([]*models.Track, error) {
	query := trackSelect + ` WHERE t.user_id = ?`
	args := []any{userID}

	if filter != nil {
		predicate, filterArgs := filter.SQL()
		if predicate != "" {
			query += ` AND (` + predicate + `)`
			args = append(args, filterArgs...)
		}
	}
	query += ` ORDER BY t.favorited_at DESC, t.id`

	var tracks []*models.Track
	if err := sqlscan.Select(ctx, r.db, &tracks, query, args...); err != nil {
		return nil, fmt.Errorf("failed to query tracks: %w", err)
	}
	return tracks, nil
}

// FindByLabel returns the tracks tagged with a static label, most recently favorited first.
func (r *TrackRepository) FindByLabel(ctx context.Context, labelID string) ([]*models.Track, error) {
	query := trackSelect + `
		JOIN track_labels tl ON tl.track_id = t.id
		WHERE tl.label_id = ?
		ORDER BY t.favorited_at DESC, t.id
	`

	var tracks []*models.Track
	if err := sqlscan.Select(ctx, r.db, &tracks, query, labelID); err != nil {
		return nil, fmt.Errorf("failed to query label tracks: %w", err)
	}
	return tracks, nil
}

// Count returns how many tracks the user has stored.
func (r *TrackRepository) Count(ctx context.Context, userID string) (int, error) {
	var count int
	if err := sqlscan.Get(ctx, r.db, &count, `SELECT COUNT(*) FROM tracks WHERE user_id = ?`, userID); err != nil {
		return 0, fmt.Errorf("failed to count tracks: %w", err)
	}
	return count, nil
}
