package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/mattn/go-sqlite3"

	"github.com/desertthunder/spotlabel/internal/shared"
)

// Repositories bundles every store over a single database handle.
type Repositories struct {
	Users     *UserRepository
	Albums    *AlbumRepository
	Artists   *ArtistRepository
	Tracks    *TrackRepository
	Labels    *LabelRepository
	Playlists *PlaylistRepository
}

// New creates all repositories for db.
func New(db *sql.DB) *Repositories {
	return &Repositories{
		Users:     NewUserRepository(db),
		Albums:    NewAlbumRepository(db),
		Artists:   NewArtistRepository(db),
		Tracks:    NewTrackRepository(db),
		Labels:    NewLabelRepository(db),
		Playlists: NewPlaylistRepository(db),
	}
}

// placeholders returns "?, ?, ..." with n markers.
func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func toArgs(values []string) []any {
	args := make([]any, len(values))
	for i, v := range values {
		args[i] = v
	}
	return args
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}

// expectAffected returns an error wrapping [shared.ErrNotFound] when result touched no rows.
func expectAffected(result sql.Result, what, id string) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: %s %s", shared.ErrNotFound, what, id)
	}
	return nil
}

// withTx runs fn in a transaction, committing when it returns nil.
func withTx(ctx context.Context, db *sql.DB, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
