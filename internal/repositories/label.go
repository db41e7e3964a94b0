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

const labelColumns = `l.id, l.user_id, l.name, l.criteria, l.created_at, l.updated_at`

// LabelRepository implements [models.LabelStore].
type LabelRepository struct {
	db *sql.DB
}

// NewLabelRepository creates a new LabelRepository with the given database connection
func NewLabelRepository(db *sql.DB) *LabelRepository {
	return &LabelRepository{db: db}
}

// Create inserts a label with a generated id. Names are unique per user.
func (r *LabelRepository) Create(ctx context.Context, label *models.Label) error {
	if err := label.Validate(); err != nil {
		return err
	}

	label.ID = shared.GenerateID()
	now := time.Now().UTC()
	label.CreatedAt = now
	label.UpdatedAt = now

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO labels (id, user_id, name, criteria, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, label.ID, label.UserID, label.Name, label.Criteria, label.CreatedAt, label.UpdatedAt)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: label %q", shared.ErrAlreadyExists, label.Name)
	}
	if err != nil {
		return fmt.Errorf("failed to insert label: %w", err)
	}
	return nil
}

// Get retrieves one of the user's labels by id.
func (r *LabelRepository) Get(ctx context.Context, userID, id string) (*models.Label, error) {
	var label models.Label
	err := sqlscan.Get(ctx, r.db, &label, `SELECT `+labelColumns+` FROM labels l WHERE l.user_id = ? AND l.id = ?`, userID, id)
	if sqlscan.NotFound(err) {
		return nil, fmt.Errorf("%w: label %s", shared.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get label: %w", err)
	}
	return &label, nil
}

// List returns the user's labels ordered by name.
func (r *LabelRepository) List(ctx context.Context, userID string) ([]*models.Label, error) {
	var labels []*models.Label
	err := sqlscan.Select(ctx, r.db, &labels, `SELECT `+labelColumns+` FROM labels l WHERE l.user_id = ? ORDER BY l.name`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list labels: %w", err)
	}
	return labels, nil
}

// ListWithoutPlaylist returns the user's labels that have no provisioned playlist.
func (r *LabelRepository) ListWithoutPlaylist(ctx context.Context, userID string) ([]*models.Label, error) {
	query := `
		SELECT ` + labelColumns + `
		FROM labels l
		LEFT JOIN playlists p ON p.label_id = l.id
		WHERE l.user_id = ? AND p.id IS NULL
		ORDER BY l.name
	`

	var labels []*models.Label
	if err := sqlscan.Select(ctx, r.db, &labels, query, userID); err != nil {
		return nil, fmt.Errorf("failed to list labels without playlist: %w", err)
	}
	return labels, nil
}

// UpdateCriteria replaces a label's criteria. A nil criteria turns the label static.
func (r *LabelRepository) UpdateCriteria(ctx context.Context, userID, id string, criteria *string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE labels SET criteria = ?, updated_at = ? WHERE user_id = ? AND id = ?`,
		criteria, time.Now().UTC(), userID, id,
	)
	if err != nil {
		return fmt.Errorf("failed to update label criteria: %w", err)
	}
	return expectAffected(result, "label", id)
}

// AddTrack tags a track with a label. Tagging twice is a no-op.
func (r *LabelRepository) AddTrack(ctx context.Context, labelID, trackID string) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO track_labels (track_id, label_id, created_at) VALUES (?, ?, ?) ON CONFLICT DO NOTHING`,
		trackID, labelID, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to tag track: %w", err)
	}
	return nil
}

// RemoveTrack removes a label from a track.
func (r *LabelRepository) RemoveTrack(ctx context.Context, labelID, trackID string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM track_labels WHERE track_id = ? AND label_id = ?`, trackID, labelID)
	if err != nil {
		return fmt.Errorf("failed to untag track: %w", err)
	}
	return expectAffected(result, "tag on track", trackID)
}
