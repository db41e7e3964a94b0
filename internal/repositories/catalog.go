package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/georgysavva/scany/v2/sqlscan"

	"github.com/desertthunder/spotlabel/internal/models"
)

// AlbumRepository implements [models.AlbumStore].
type AlbumRepository struct {
	db *sql.DB
}

// NewAlbumRepository creates a new AlbumRepository with the given database connection
func NewAlbumRepository(db *sql.DB) *AlbumRepository {
	return &AlbumRepository{db: db}
}

// UpsertMany inserts albums in one transaction, skipping ids that already exist.
func (r *AlbumRepository) UpsertMany(ctx context.Context, albums []*models.Album) error {
	if len(albums) == 0 {
		return nil
	}

	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO albums (id, name, release_date, image_url, created_at)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(id) DO NOTHING
		`)
		if err != nil {
			return fmt.Errorf("failed to prepare album insert: %w", err)
		}
		defer stmt.Close()

		now := time.Now().UTC()
		for _, album := range albums {
			if err := album.Validate(); err != nil {
				return err
			}
			if _, err := stmt.ExecContext(ctx, album.ID, album.Name, album.ReleaseDate, album.ImageURL, now); err != nil {
				return fmt.Errorf("failed to insert album %s: %w", album.ID, err)
			}
		}
		return nil
	})
}

// Get retrieves an album by Spotify id.
func (r *AlbumRepository) Get(ctx context.Context, id string) (*models.Album, error) {
	var album models.Album
	err := sqlscan.Get(ctx, r.db, &album, `SELECT id, name, release_date, image_url, created_at FROM albums WHERE id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get album %s: %w", id, err)
	}
	return &album, nil
}

// ArtistRepository implements [models.ArtistStore].
type ArtistRepository struct {
	db *sql.DB
}

// NewArtistRepository creates a new ArtistRepository with the given database connection
func NewArtistRepository(db *sql.DB) *ArtistRepository {
	return &ArtistRepository{db: db}
}

// FindMissing returns the ids from ids that have no artist row, preserving input order.
func (r *ArtistRepository) FindMissing(ctx context.Context, ids []string) ([]string, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	var known []string
	query := `SELECT id FROM artists WHERE id IN (` + placeholders(len(ids)) + `)`
	if err := sqlscan.Select(ctx, r.db, &known, query, toArgs(ids)...); err != nil {
		return nil, fmt.Errorf("failed to query artists: %w", err)
	}

	seen := make(map[string]bool, len(known)+len(ids))
	for _, id := range known {
		seen[id] = true
	}

	var missing []string
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			missing = append(missing, id)
		}
	}
	return missing, nil
}

// CreateMany inserts artists in one transaction, skipping ids that already exist.
func (r *ArtistRepository) CreateMany(ctx context.Context, artists []*models.Artist) error {
	if len(artists) == 0 {
		return nil
	}

	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO artists (id, name, genres, created_at)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(id) DO NOTHING
		`)
		if err != nil {
			return fmt.Errorf("failed to prepare artist insert: %w", err)
		}
		defer stmt.Close()

		now := time.Now().UTC()
		for _, artist := range artists {
			if err := artist.Validate(); err != nil {
				return err
			}
			if _, err := stmt.ExecContext(ctx, artist.ID, artist.Name, artist.Genres, now); err != nil {
				return fmt.Errorf("failed to insert artist %s: %w", artist.ID, err)
			}
		}
		return nil
	})
}

// Get retrieves an artist by Spotify id.
func (r *ArtistRepository) Get(ctx context.Context, id string) (*models.Artist, error) {
	var artist models.Artist
	err := sqlscan.Get(ctx, r.db, &artist, `SELECT id, name, genres, created_at FROM artists WHERE id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get artist %s: %w", id, err)
	}
	return &artist, nil
}
