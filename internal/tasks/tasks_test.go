package tasks

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/charmbracelet/log"

	"github.com/desertthunder/spotlabel/internal/metrics"
	"github.com/desertthunder/spotlabel/internal/models"
	"github.com/desertthunder/spotlabel/internal/repositories"
	"github.com/desertthunder/spotlabel/internal/services"
	tu "github.com/desertthunder/spotlabel/internal/testing"
)

var epoch = time.Date(2025, time.March, 14, 12, 0, 0, 0, time.UTC)

type env struct {
	db      *sql.DB
	repos   *repositories.Repositories
	fake    *tu.FakeSpotify
	metrics *metrics.Metrics
	engine  *Engine
	labels  *Labels
	sess    *services.Session
}

func newEnv(t *testing.T) *env {
	t.Helper()

	db := tu.NewTestDatabase(t)
	repos := repositories.New(db)
	fake := tu.NewFakeSpotify(t, "access-0")
	m := metrics.New()
	logger := log.New(io.Discard)

	user := &models.User{
		ID:             "u1",
		DisplayName:    "Test User",
		AccessToken:    "access-0",
		RefreshToken:   "refresh-0",
		TokenExpiresAt: time.Now().Add(time.Hour),
	}
	if err := repos.Users.Upsert(context.Background(), user); err != nil {
		t.Fatalf("failed to create user: %v", err)
	}

	tokens := services.NewTokenManager(services.Credentials{
		ClientID:     fake.ClientID,
		ClientSecret: fake.ClientSecret,
		TokenURL:     fake.TokenURL(),
	}, repos.Users, services.TokenManagerOptions{
		HTTPClient: fake.Server.Client(),
		Logger:     logger,
		Metrics:    m,
	})
	client := services.NewClient(tokens, services.ClientOptions{
		BaseURL:    fake.BaseURL(),
		HTTPClient: fake.Server.Client(),
		Logger:     logger,
		Metrics:    m,
	})

	stores := Stores{
		Albums:    repos.Albums,
		Artists:   repos.Artists,
		Tracks:    repos.Tracks,
		Labels:    repos.Labels,
		Playlists: repos.Playlists,
	}

	return &env{
		db:      db,
		repos:   repos,
		fake:    fake,
		metrics: m,
		engine:  NewEngine(services.NewSpotify(client), stores, Options{Logger: logger, Metrics: m}),
		labels:  NewLabels(repos.Labels, repos.Tracks, logger),
		sess:    services.NewSession(user),
	}
}

// feed returns n saved tracks, newest first, spread over three albums and four artists.
func feed(n int) []tu.FakeTrack {
	tracks := make([]tu.FakeTrack, n)
	for i := range tracks {
		tracks[i] = tu.FakeTrack{
			ID:          fmt.Sprintf("t%02d", i),
			Name:        fmt.Sprintf("Track %d", i),
			Explicit:    i%2 == 0,
			AddedAt:     epoch.Add(-time.Duration(i) * time.Hour),
			AlbumID:     fmt.Sprintf("al%d", i%3),
			AlbumName:   fmt.Sprintf("Album %d", i%3),
			ReleaseDate: fmt.Sprintf("199%d", i%3),
			ArtistIDs:   []string{fmt.Sprintf("ar%d", i%4)},
		}
	}
	return tracks
}

func (e *env) addFeedArtists() {
	for i := range 4 {
		e.fake.AddArtists(tu.FakeArtist{ID: fmt.Sprintf("ar%d", i), Name: fmt.Sprintf("Artist %d", i), Genres: []string{"rock"}})
	}
}

// seedTracks stores n tracks for u1 directly, newest first: s00 is favorited at epoch.
// Even tracks are by Slowdive, odd tracks by My Bloody Valentine.
func (e *env) seedTracks(t *testing.T, n int) []*models.Track {
	t.Helper()
	ctx := context.Background()

	if err := e.repos.Albums.UpsertMany(ctx, []*models.Album{{ID: "al1", Name: "Souvlaki", ReleaseDate: "1993-05-17"}}); err != nil {
		t.Fatalf("failed to create album: %v", err)
	}
	err := e.repos.Artists.CreateMany(ctx, []*models.Artist{
		{ID: "slowdive", Name: "Slowdive", Genres: models.Genres{"shoegaze"}},
		{ID: "mbv", Name: "My Bloody Valentine", Genres: models.Genres{"shoegaze", "noise pop"}},
	})
	if err != nil {
		t.Fatalf("failed to create artists: %v", err)
	}

	tracks := make([]*models.Track, n)
	for i := range tracks {
		artist := "slowdive"
		if i%2 == 1 {
			artist = "mbv"
		}
		tracks[i] = &models.Track{
			UserID:      "u1",
			SpotifyID:   fmt.Sprintf("s%02d", i),
			Name:        fmt.Sprintf("Song %d", i),
			AlbumID:     "al1",
			Explicit:    i < 50,
			FavoritedAt: epoch.Add(-time.Duration(i) * time.Minute),
			ArtistIDs:   []string{artist},
		}
		if err := e.repos.Tracks.Create(ctx, tracks[i]); err != nil {
			t.Fatalf("failed to create track: %v", err)
		}
	}
	return tracks
}

func (e *env) createLabel(t *testing.T, name string, criteria *string) *models.Label {
	t.Helper()
	label, err := e.labels.CreateLabel(context.Background(), "u1", name, criteria)
	if err != nil {
		t.Fatalf("failed to create label %s: %v", name, err)
	}
	return label
}

// totalChanges is the number of rows modified on the test database's single connection.
func (e *env) totalChanges(t *testing.T) int {
	t.Helper()
	var n int
	if err := e.db.QueryRow(`SELECT total_changes()`).Scan(&n); err != nil {
		t.Fatalf("failed to read total_changes: %v", err)
	}
	return n
}

func uris(ids ...string) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = services.TrackURI(id)
	}
	return out
}

func ptr(s string) *string { return &s }
