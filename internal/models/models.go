package models

import (
	"context"
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/desertthunder/spotlabel/internal/shared"
)

// User is a Spotify account. ID is the Spotify user id.
type User struct {
	ID             string    `db:"id"`
	DisplayName    string    `db:"display_name"`
	ImageURL       string    `db:"image_url"`
	AccessToken    string    `db:"access_token"`
	RefreshToken   string    `db:"refresh_token"`
	TokenExpiresAt time.Time `db:"token_expires_at"`
	CreatedAt      time.Time `db:"created_at"`
	UpdatedAt      time.Time `db:"updated_at"`
}

func (u *User) Validate() error {
	if u.ID == "" {
		return fmt.Errorf("%w: user id is required", shared.ErrValidation)
	}
	if u.AccessToken == "" || u.RefreshToken == "" {
		return fmt.Errorf("%w: user %s has no token pair", shared.ErrValidation, u.ID)
	}
	return nil
}

// Album is created on first encounter and never updated.
type Album struct {
	ID          string    `db:"id"`
	Name        string    `db:"name"`
	ReleaseDate string    `db:"release_date"`
	ImageURL    string    `db:"image_url"`
	CreatedAt   time.Time `db:"created_at"`
}

func (a *Album) Validate() error {
	if a.ID == "" || a.Name == "" {
		return fmt.Errorf("%w: album requires id and name", shared.ErrValidation)
	}
	return nil
}

// Genres is a list of genre names stored as a JSON array.
type Genres []string

// Value implements [driver.Valuer].
func (g Genres) Value() (driver.Value, error) {
	if g == nil {
		return "[]", nil
	}
	b, err := json.Marshal([]string(g))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements [sql.Scanner].
func (g *Genres) Scan(src any) error {
	var data []byte
	switch v := src.(type) {
	case nil:
		*g = Genres{}
		return nil
	case string:
		data = []byte(v)
	case []byte:
		data = v
	default:
		return fmt.Errorf("unsupported genres column type %T", src)
	}

	var out []string
	if err := json.Unmarshal(data, &out); err != nil {
		return fmt.Errorf("failed to decode genres: %w", err)
	}
	*g = out
	return nil
}

// Artist is created on first encounter and never updated.
type Artist struct {
	ID        string    `db:"id"`
	Name      string    `db:"name"`
	Genres    Genres    `db:"genres"`
	CreatedAt time.Time `db:"created_at"`
}

func (a *Artist) Validate() error {
	if a.ID == "" || a.Name == "" {
		return fmt.Errorf("%w: artist requires id and name", shared.ErrValidation)
	}
	return nil
}

// Track is a user's favorited track.
//
// AlbumName, ReleaseDate and ArtistNames are read-only and filled by track queries.
type Track struct {
	ID          string    `db:"id"`
	UserID      string    `db:"user_id"`
	SpotifyID   string    `db:"spotify_id"`
	Name        string    `db:"name"`
	AlbumID     string    `db:"album_id"`
	Explicit    bool      `db:"explicit"`
	FavoritedAt time.Time `db:"favorited_at"`
	CreatedAt   time.Time `db:"created_at"`

	AlbumName   string `db:"album_name"`
	ReleaseDate string `db:"release_date"`
	ArtistNames string `db:"artist_names"`

	// ArtistIDs orders the track's artists for insertion.
	ArtistIDs []string `db:"-"`
}

func (t *Track) Validate() error {
	switch {
	case t.UserID == "":
		return fmt.Errorf("%w: track requires a user", shared.ErrValidation)
	case t.SpotifyID == "":
		return fmt.Errorf("%w: track requires a spotify id", shared.ErrValidation)
	case t.AlbumID == "":
		return fmt.Errorf("%w: track %s has no album", shared.ErrValidation, t.SpotifyID)
	case t.FavoritedAt.IsZero():
		return fmt.Errorf("%w: track %s has no favorited time", shared.ErrValidation, t.SpotifyID)
	}
	return nil
}

// Label groups tracks. A label with nil Criteria is static and its tracks come from explicit tags;
// otherwise it is smart and its tracks are whatever the criteria select.
type Label struct {
	ID        string    `db:"id"`
	UserID    string    `db:"user_id"`
	Name      string    `db:"name"`
	Criteria  *string   `db:"criteria"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

// IsSmart reports whether the label is criteria-driven.
func (l *Label) IsSmart() bool {
	return l.Criteria != nil
}

func (l *Label) Validate() error {
	if l.UserID == "" {
		return fmt.Errorf("%w: label requires a user", shared.ErrValidation)
	}
	if strings.TrimSpace(l.Name) == "" {
		return fmt.Errorf("%w: label name is required", shared.ErrValidation)
	}
	return nil
}

// Playlist links a label to the Spotify playlist that materializes it.
type Playlist struct {
	ID        string    `db:"id"`
	UserID    string    `db:"user_id"`
	LabelID   string    `db:"label_id"`
	SpotifyID string    `db:"spotify_id"`
	CreatedAt time.Time `db:"created_at"`
}

func (p *Playlist) Validate() error {
	if p.UserID == "" || p.LabelID == "" || p.SpotifyID == "" {
		return fmt.Errorf("%w: playlist requires user, label and spotify id", shared.ErrValidation)
	}
	return nil
}

// LabelPlaylist pairs a label with its provisioned playlist.
type LabelPlaylist struct {
	Label    *Label
	Playlist *Playlist
}

// TrackFilter is a parameterized SQL predicate over the tracks table (alias t) joined with albums (alias al).
type TrackFilter interface {
	SQL() (string, []any)
}

// UserStore persists users and their tokens.
type UserStore interface {
	Get(ctx context.Context, id string) (*User, error)
	List(ctx context.Context) ([]*User, error)
	Upsert(ctx context.Context, user *User) error
	UpdateToken(ctx context.Context, id, accessToken, refreshToken string, expiresAt time.Time) error
}

// AlbumStore inserts albums, skipping ones already stored.
type AlbumStore interface {
	UpsertMany(ctx context.Context, albums []*Album) error
}

// ArtistStore inserts artists and reports which ids are unknown.
type ArtistStore interface {
	FindMissing(ctx context.Context, ids []string) ([]string, error)
	CreateMany(ctx context.Context, artists []*Artist) error
}

// TrackStore persists favorited tracks.
type TrackStore interface {
	Create(ctx context.Context, track *Track) error
	ExistingSpotifyIDs(ctx context.Context, userID string, spotifyIDs []string) (map[string]bool, error)
	GetBySpotifyID(ctx context.Context, userID, spotifyID string) (*Track, error)
	FindByFilter(ctx context.Context, userID string, filter TrackFilter) ([]*Track, error)
	FindByLabel(ctx context.Context, labelID string) ([]*Track, error)
	Count(ctx context.Context, userID string) (int, error)
}

// LabelStore persists labels and static label membership.
type LabelStore interface {
	Create(ctx context.Context, label *Label) error
	Get(ctx context.Context, userID, id string) (*Label, error)
	List(ctx context.Context, userID string) ([]*Label, error)
	ListWithoutPlaylist(ctx context.Context, userID string) ([]*Label, error)
	UpdateCriteria(ctx context.Context, userID, id string, criteria *string) error
	AddTrack(ctx context.Context, labelID, trackID string) error
	RemoveTrack(ctx context.Context, labelID, trackID string) error
}

// PlaylistStore persists label playlists.
type PlaylistStore interface {
	Create(ctx context.Context, playlist *Playlist) error
	GetByLabel(ctx context.Context, labelID string) (*Playlist, error)
	ListWithLabels(ctx context.Context, userID string) ([]*LabelPlaylist, error)
}
