// Spotify Web API endpoints used by the sync engine.
//
// Response types follow https://developer.spotify.com/documentation/web-api/reference/
package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/desertthunder/spotlabel/internal/shared"
)

const (
	// MaxArtistIDs is the largest batch accepted by the several-artists endpoint.
	MaxArtistIDs = 50
	// MaxPlaylistItems is the largest batch accepted by the playlist item endpoints.
	MaxPlaylistItems = 100
)

// TrackURI returns the Spotify URI of a track id.
func TrackURI(id string) string {
	return "spotify:track:" + id
}

// Image is an image resource.
type Image struct {
	URL    string `json:"url"`
	Height int    `json:"height"`
	Width  int    `json:"width"`
}

// Profile is the current user's profile.
type Profile struct {
	ID          string  `json:"id"`
	DisplayName string  `json:"display_name"`
	Images      []Image `json:"images"`
}

func (p *Profile) Validate() error {
	if p.ID == "" {
		return errors.New("profile has no id")
	}
	return nil
}

// ImageURL returns the first avatar URL, if any.
func (p *Profile) ImageURL() string {
	if len(p.Images) == 0 {
		return ""
	}
	return p.Images[0].URL
}

// SimpleArtist is an artist reference embedded in a track.
type SimpleArtist struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// SimpleAlbum is an album embedded in a track.
type SimpleAlbum struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	ReleaseDate string  `json:"release_date"`
	Images      []Image `json:"images"`
}

// ImageURL returns the first cover URL, if any.
func (a *SimpleAlbum) ImageURL() string {
	if len(a.Images) == 0 {
		return ""
	}
	return a.Images[0].URL
}

// Track is a full track object.
type Track struct {
	ID       string         `json:"id"`
	Name     string         `json:"name"`
	Explicit bool           `json:"explicit"`
	Album    SimpleAlbum    `json:"album"`
	Artists  []SimpleArtist `json:"artists"`
}

// SavedTrack is a track in the user's library with the time it was saved.
type SavedTrack struct {
	AddedAt time.Time `json:"added_at"`
	Track   Track     `json:"track"`
}

// SavedTracksPage is one page of the user's library, newest first.
type SavedTracksPage struct {
	Items  []SavedTrack `json:"items"`
	Limit  int          `json:"limit"`
	Offset int          `json:"offset"`
	Total  int          `json:"total"`
	Next   *string      `json:"next"`
}

func (p *SavedTracksPage) Validate() error {
	for i, item := range p.Items {
		switch {
		case item.Track.ID == "":
			return fmt.Errorf("item %d has no track id", i)
		case item.AddedAt.IsZero():
			return fmt.Errorf("track %s has no added_at", item.Track.ID)
		case item.Track.Album.ID == "" || item.Track.Album.Name == "":
			return fmt.Errorf("track %s has no album", item.Track.ID)
		}
		for _, artist := range item.Track.Artists {
			if artist.ID == "" {
				return fmt.Errorf("track %s has an artist without id", item.Track.ID)
			}
		}
	}
	return nil
}

// HasMore reports whether the feed may continue past this page.
func (p *SavedTracksPage) HasMore() bool {
	return p.Next != nil && *p.Next != ""
}

// Artist is a full artist object.
type Artist struct {
	ID     string   `json:"id"`
	Name   string   `json:"name"`
	Genres []string `json:"genres"`
}

type severalArtists struct {
	Artists []*Artist `json:"artists"`
}

func (r *severalArtists) Validate() error {
	for i, artist := range r.Artists {
		if artist == nil || artist.ID == "" || artist.Name == "" {
			return fmt.Errorf("artist %d is missing or incomplete", i)
		}
	}
	return nil
}

type createdPlaylist struct {
	ID string `json:"id"`
}

func (r *createdPlaylist) Validate() error {
	if r.ID == "" {
		return errors.New("created playlist has no id")
	}
	return nil
}

type snapshot struct {
	SnapshotID string `json:"snapshot_id"`
}

func (r *snapshot) Validate() error {
	if r.SnapshotID == "" {
		return errors.New("response has no snapshot_id")
	}
	return nil
}

// Spotify exposes the typed endpoints on top of a [Client].
type Spotify struct {
	client *Client
}

// NewSpotify creates the endpoint wrapper for client.
func NewSpotify(client *Client) *Spotify {
	return &Spotify{client: client}
}

// Profile returns the current user's profile.
func (s *Spotify) Profile(ctx context.Context, sess *Session) (*Profile, error) {
	var profile Profile
	err := s.client.Call(ctx, sess, func() (*Request, error) {
		return &Request{Endpoint: "profile", Method: http.MethodGet, Path: "/me"}, nil
	}, &profile)
	if err != nil {
		return nil, err
	}
	return &profile, nil
}

// SavedTracks returns one page of the user's saved tracks, newest first.
func (s *Spotify) SavedTracks(ctx context.Context, sess *Session, offset, limit int) (*SavedTracksPage, error) {
	var page SavedTracksPage
	err := s.client.Call(ctx, sess, func() (*Request, error) {
		if limit <= 0 || limit > 50 {
			return nil, fmt.Errorf("%w: saved tracks limit %d outside 1..50", shared.ErrInvalidArgument, limit)
		}
		query := url.Values{}
		query.Set("limit", strconv.Itoa(limit))
		query.Set("offset", strconv.Itoa(offset))
		return &Request{Endpoint: "saved_tracks", Method: http.MethodGet, Path: "/me/tracks", Query: query}, nil
	}, &page)
	if err != nil {
		return nil, err
	}
	return &page, nil
}

// SeveralArtists returns full artist objects for up to [MaxArtistIDs] ids, in request order.
func (s *Spotify) SeveralArtists(ctx context.Context, sess *Session, ids []string) ([]*Artist, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	var resp severalArtists
	err := s.client.Call(ctx, sess, func() (*Request, error) {
		if len(ids) > MaxArtistIDs {
			return nil, fmt.Errorf("%w: %d artist ids exceeds %d", shared.ErrInvalidArgument, len(ids), MaxArtistIDs)
		}
		query := url.Values{}
		query.Set("ids", strings.Join(ids, ","))
		return &Request{Endpoint: "artists", Method: http.MethodGet, Path: "/artists", Query: query}, nil
	}, &resp)
	if err != nil {
		return nil, err
	}
	return resp.Artists, nil
}

// CreatePlaylist creates a playlist owned by userID and returns its id.
func (s *Spotify) CreatePlaylist(ctx context.Context, sess *Session, userID, name, description string, public bool) (string, error) {
	var resp createdPlaylist
	err := s.client.Call(ctx, sess, func() (*Request, error) {
		return &Request{
			Endpoint: "create_playlist",
			Method:   http.MethodPost,
			Path:     "/users/" + url.PathEscape(userID) + "/playlists",
			Body: map[string]any{
				"name":        name,
				"description": description,
				"public":      public,
			},
		}, nil
	}, &resp)
	if err != nil {
		return "", err
	}
	return resp.ID, nil
}

// ReplacePlaylistTracks replaces every item of a playlist with uris and returns the snapshot id.
func (s *Spotify) ReplacePlaylistTracks(ctx context.Context, sess *Session, playlistID string, uris []string) (string, error) {
	return s.playlistItems(ctx, sess, "replace_playlist_tracks", http.MethodPut, playlistID, uris, map[string]any{"uris": uris})
}

// AddPlaylistTracks appends uris to a playlist and returns the snapshot id.
func (s *Spotify) AddPlaylistTracks(ctx context.Context, sess *Session, playlistID string, uris []string) (string, error) {
	return s.playlistItems(ctx, sess, "add_playlist_tracks", http.MethodPost, playlistID, uris, map[string]any{"uris": uris})
}

// RemovePlaylistTracks removes every occurrence of uris from a playlist and returns the snapshot id.
func (s *Spotify) RemovePlaylistTracks(ctx context.Context, sess *Session, playlistID string, uris []string) (string, error) {
	tracks := make([]map[string]string, len(uris))
	for i, uri := range uris {
		tracks[i] = map[string]string{"uri": uri}
	}
	return s.playlistItems(ctx, sess, "remove_playlist_tracks", http.MethodDelete, playlistID, uris, map[string]any{"tracks": tracks})
}

func (s *Spotify) playlistItems(ctx context.Context, sess *Session, endpoint, method, playlistID string, uris []string, body any) (string, error) {
	var resp snapshot
	err := s.client.Call(ctx, sess, func() (*Request, error) {
		if len(uris) > MaxPlaylistItems {
			return nil, fmt.Errorf("%w: %d items exceeds %d", shared.ErrInvalidArgument, len(uris), MaxPlaylistItems)
		}
		return &Request{
			Endpoint: endpoint,
			Method:   method,
			Path:     "/playlists/" + url.PathEscape(playlistID) + "/tracks",
			Body:     body,
		}, nil
	}, &resp)
	if err != nil {
		return "", err
	}
	return resp.SnapshotID, nil
}
