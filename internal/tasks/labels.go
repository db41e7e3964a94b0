package tasks

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/desertthunder/spotlabel/internal/criteria"
	"github.com/desertthunder/spotlabel/internal/models"
	"github.com/desertthunder/spotlabel/internal/shared"
)

// Labels manages a user's labels and the tags of static labels.
type Labels struct {
	labels models.LabelStore
	tracks models.TrackStore
	logger *log.Logger
}

// NewLabels creates a Labels service over the given stores.
func NewLabels(labels models.LabelStore, tracks models.TrackStore, logger *log.Logger) *Labels {
	if logger == nil {
		logger = log.Default()
	}
	return &Labels{labels: labels, tracks: tracks, logger: logger}
}

// CreateLabel saves a new label. A non-nil criteria makes it smart and must compile.
func (l *Labels) CreateLabel(ctx context.Context, userID, name string, crit *string) (*models.Label, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: label name", shared.ErrMissingArgument)
	}

	crit, err := checkCriteria(crit)
	if err != nil {
		return nil, err
	}

	label := &models.Label{UserID: userID, Name: name, Criteria: crit}
	if err := l.labels.Create(ctx, label); err != nil {
		return nil, err
	}

	l.logger.Info("created label", "user", userID, "label", name, "smart", label.IsSmart())
	return label, nil
}

// UpdateCriteria replaces a label's criteria after checking it compiles. nil makes the label static.
func (l *Labels) UpdateCriteria(ctx context.Context, userID, labelID string, crit *string) error {
	crit, err := checkCriteria(crit)
	if err != nil {
		return err
	}
	return l.labels.UpdateCriteria(ctx, userID, labelID, crit)
}

// Get returns one of the user's labels.
func (l *Labels) Get(ctx context.Context, userID, labelID string) (*models.Label, error) {
	return l.labels.Get(ctx, userID, labelID)
}

// List returns the user's labels ordered by name.
func (l *Labels) List(ctx context.Context, userID string) ([]*models.Label, error) {
	return l.labels.List(ctx, userID)
}

// Tag adds one of the user's favorited tracks to a static label.
func (l *Labels) Tag(ctx context.Context, userID, labelID, spotifyID string) error {
	label, track, err := l.tagTarget(ctx, userID, labelID, spotifyID)
	if err != nil {
		return err
	}
	if err := l.labels.AddTrack(ctx, label.ID, track.ID); err != nil {
		return err
	}
	l.logger.Debug("tagged track", "user", userID, "label", label.Name, "track", spotifyID)
	return nil
}

// Untag removes a track from a static label.
func (l *Labels) Untag(ctx context.Context, userID, labelID, spotifyID string) error {
	label, track, err := l.tagTarget(ctx, userID, labelID, spotifyID)
	if err != nil {
		return err
	}
	return l.labels.RemoveTrack(ctx, label.ID, track.ID)
}

// Resolve returns a label and its effective tracks, newest favorite first. Unlike a push,
// a criteria failure is returned.
func (l *Labels) Resolve(ctx context.Context, userID, labelID string) (*models.Label, []*models.Track, error) {
	label, err := l.labels.Get(ctx, userID, labelID)
	if err != nil {
		return nil, nil, err
	}

	tracks, err := resolveTracks(ctx, l.tracks, label)
	if err != nil {
		return label, nil, fmt.Errorf("failed to resolve label %q: %w", label.Name, err)
	}
	return label, tracks, nil
}

func (l *Labels) tagTarget(ctx context.Context, userID, labelID, spotifyID string) (*models.Label, *models.Track, error) {
	label, err := l.labels.Get(ctx, userID, labelID)
	if err != nil {
		return nil, nil, err
	}
	if label.IsSmart() {
		return nil, nil, fmt.Errorf("%w: %q", shared.ErrSmartLabel, label.Name)
	}

	track, err := l.tracks.GetBySpotifyID(ctx, userID, spotifyID)
	if err != nil {
		return nil, nil, err
	}
	return label, track, nil
}

// checkCriteria trims criteria text and rejects text that does not compile.
func checkCriteria(crit *string) (*string, error) {
	if crit == nil {
		return nil, nil
	}

	text := strings.TrimSpace(*crit)
	if text == "" {
		return nil, fmt.Errorf("%w: criteria is empty", shared.ErrInvalidCriteria)
	}

	if _, err := criteria.Compile(text); err != nil {
		return nil, err
	}
	return &text, nil
}
