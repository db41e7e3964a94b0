package testing

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
)

// FakeTrack is a saved track served by [FakeSpotify].
type FakeTrack struct {
	ID          string
	Name        string
	Explicit    bool
	AddedAt     time.Time
	AlbumID     string
	AlbumName   string
	ReleaseDate string
	ArtistIDs   []string
}

// FakeArtist is an artist served by [FakeSpotify].
type FakeArtist struct {
	ID     string
	Name   string
	Genres []string
}

// RecordedRequest is one request received by [FakeSpotify].
type RecordedRequest struct {
	Method        string
	Path          string
	Query         string
	Authorization string
	Body          []byte
}

// URIs decodes the uris of a replace or append body, or the tracks of a remove body.
func (r RecordedRequest) URIs() []string {
	var body struct {
		URIs   []string `json:"uris"`
		Tracks []struct {
			URI string `json:"uri"`
		} `json:"tracks"`
	}
	_ = json.Unmarshal(r.Body, &body)
	if len(body.Tracks) > 0 {
		uris := make([]string, len(body.Tracks))
		for i, t := range body.Tracks {
			uris[i] = t.URI
		}
		return uris
	}
	return body.URIs
}

// FakeSpotify is an in-process Spotify Web API and accounts service.
//
// Saved tracks are held newest first. Every issued access token is revoked when a new one is
// minted, so a request that succeeds after a refresh proves the new token was used.
type FakeSpotify struct {
	Server *httptest.Server

	ClientID     string
	ClientSecret string
	UserID       string
	DisplayName  string

	mu          sync.Mutex
	saved       []FakeTrack
	artists     map[string]FakeArtist
	playlists   map[string][]string
	names       map[string]string
	requests    []RecordedRequest
	tokens      map[string]bool
	refreshes   int
	issued      int
	rejectGrant bool
	rotate      bool
	created     int
	codes       int
	failures    map[string]int
}

// NewFakeSpotify starts a fake server that is closed with the test. accessToken is accepted
// until the first refresh.
func NewFakeSpotify(t *testing.T, accessToken string) *FakeSpotify {
	t.Helper()

	f := &FakeSpotify{
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		UserID:       "u1",
		DisplayName:  "Test User",
		artists:      make(map[string]FakeArtist),
		playlists:    make(map[string][]string),
		names:        make(map[string]string),
		tokens:       map[string]bool{accessToken: true},
		failures:     make(map[string]int),
	}

	r := chi.NewRouter()
	r.Use(f.record)
	r.Get("/authorize", f.grant)
	r.Post("/api/token", f.token)
	r.Route("/v1", func(r chi.Router) {
		r.Use(f.authorize)
		r.Get("/me", f.profile)
		r.Get("/me/tracks", f.savedTracks)
		r.Get("/artists", f.severalArtists)
		r.Post("/users/{user}/playlists", f.createPlaylist)
		r.Put("/playlists/{id}/tracks", f.replaceItems)
		r.Post("/playlists/{id}/tracks", f.addItems)
		r.Delete("/playlists/{id}/tracks", f.removeItems)
	})

	f.Server = httptest.NewServer(r)
	t.Cleanup(f.Server.Close)
	return f
}

// BaseURL is the Web API root.
func (f *FakeSpotify) BaseURL() string { return f.Server.URL + "/v1" }

// TokenURL is the accounts token endpoint.
func (f *FakeSpotify) TokenURL() string { return f.Server.URL + "/api/token" }

// AuthURL is the accounts authorize endpoint. It is never served.
func (f *FakeSpotify) AuthURL() string { return f.Server.URL + "/authorize" }

// SetSaved replaces the saved-track feed. tracks must be newest first.
func (f *FakeSpotify) SetSaved(tracks ...FakeTrack) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saved = slices.Clone(tracks)
}

// PrependSaved favorites tracks newer than everything already saved.
func (f *FakeSpotify) PrependSaved(tracks ...FakeTrack) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saved = append(slices.Clone(tracks), f.saved...)
}

// AddArtists registers artists for the several-artists endpoint.
func (f *FakeSpotify) AddArtists(artists ...FakeArtist) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, a := range artists {
		f.artists[a.ID] = a
	}
}

// AddPlaylist registers an existing playlist with the given items.
func (f *FakeSpotify) AddPlaylist(id string, uris ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.playlists[id] = slices.Clone(uris)
}

// Playlist returns the current items of a playlist and whether it exists.
func (f *FakeSpotify) Playlist(id string) ([]string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	items, ok := f.playlists[id]
	return slices.Clone(items), ok
}

// PlaylistName returns the name a playlist was created with.
func (f *FakeSpotify) PlaylistName(id string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.names[id]
}

// PlaylistCount returns the number of playlists known to the server.
func (f *FakeSpotify) PlaylistCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.playlists)
}

// Requests returns every request received so far, optionally only those matching method and path.
func (f *FakeSpotify) Requests(method, path string) []RecordedRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []RecordedRequest
	for _, r := range f.requests {
		if (method == "" || r.Method == method) && (path == "" || r.Path == path) {
			out = append(out, r)
		}
	}
	return out
}

// PlaylistRequests returns the item requests received for one playlist in order.
func (f *FakeSpotify) PlaylistRequests(id string) []RecordedRequest {
	return f.Requests("", "/v1/playlists/"+id+"/tracks")
}

// Refreshes returns the number of refresh-token grants served.
func (f *FakeSpotify) Refreshes() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.refreshes
}

// RejectGrants makes the token endpoint answer every grant with invalid_grant.
func (f *FakeSpotify) RejectGrants() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rejectGrant = true
}

// RotateRefreshTokens makes refresh grants return a new refresh token.
func (f *FakeSpotify) RotateRefreshTokens() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rotate = true
}

// Fail makes every request to method and path answer with status.
func (f *FakeSpotify) Fail(method, path string, status int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[method+" "+path] = status
}

func (f *FakeSpotify) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		r.Body = io.NopCloser(strings.NewReader(string(body)))

		f.mu.Lock()
		f.requests = append(f.requests, RecordedRequest{
			Method:        r.Method,
			Path:          r.URL.Path,
			Query:         r.URL.RawQuery,
			Authorization: r.Header.Get("Authorization"),
			Body:          body,
		})
		status, failing := f.failures[r.Method+" "+r.URL.Path]
		f.mu.Unlock()

		if failing {
			writeJSON(w, status, map[string]any{
				"error": map[string]any{"status": status, "message": "forced failure"},
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (f *FakeSpotify) authorize(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")

		f.mu.Lock()
		valid := ok && f.tokens[token]
		f.mu.Unlock()

		if !valid {
			writeJSON(w, http.StatusUnauthorized, map[string]any{
				"error": map[string]any{"status": 401, "message": "The access token expired"},
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// grant approves every authorization request and redirects back with a fresh code.
func (f *FakeSpotify) grant(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	target, err := url.Parse(q.Get("redirect_uri"))
	if q.Get("client_id") != f.ClientID || err != nil || target.Host == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_request"})
		return
	}

	f.mu.Lock()
	f.codes++
	code := fmt.Sprintf("code-%d", f.codes)
	f.mu.Unlock()

	values := target.Query()
	values.Set("code", code)
	values.Set("state", q.Get("state"))
	target.RawQuery = values.Encode()
	http.Redirect(w, r, target.String(), http.StatusFound)
}

func (f *FakeSpotify) token(w http.ResponseWriter, r *http.Request) {
	id, secret, ok := r.BasicAuth()
	if !ok || id != f.ClientID || secret != f.ClientSecret {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid_client"})
		return
	}
	if err := r.ParseForm(); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_request"})
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.rejectGrant {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error":             "invalid_grant",
			"error_description": "Refresh token revoked",
		})
		return
	}

	f.issued++
	access := fmt.Sprintf("access-%d", f.issued)
	f.tokens = map[string]bool{access: true}

	resp := map[string]any{
		"access_token": access,
		"token_type":   "Bearer",
		"expires_in":   3600,
		"scope":        "user-library-read playlist-modify-private",
	}

	switch r.PostForm.Get("grant_type") {
	case "refresh_token":
		f.refreshes++
		if f.rotate {
			resp["refresh_token"] = fmt.Sprintf("refresh-%d", f.issued)
		}
	case "authorization_code":
		if r.PostForm.Get("code") == "" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_grant"})
			return
		}
		resp["refresh_token"] = fmt.Sprintf("refresh-%d", f.issued)
	default:
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unsupported_grant_type"})
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (f *FakeSpotify) profile(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"id":           f.UserID,
		"display_name": f.DisplayName,
		"images":       []map[string]any{{"url": "https://i.scdn.co/image/avatar", "height": 300, "width": 300}},
	})
}

func (f *FakeSpotify) savedTracks(w http.ResponseWriter, r *http.Request) {
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || limit < 1 || limit > 50 || offset < 0 {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": map[string]any{"status": 400, "message": "Invalid limit"}})
		return
	}

	f.mu.Lock()
	total := len(f.saved)
	start := min(offset, total)
	end := min(offset+limit, total)
	page := slices.Clone(f.saved[start:end])
	f.mu.Unlock()

	items := make([]map[string]any, len(page))
	for i, t := range page {
		artists := make([]map[string]any, len(t.ArtistIDs))
		for j, id := range t.ArtistIDs {
			artists[j] = map[string]any{"id": id, "name": id, "type": "artist"}
		}
		items[i] = map[string]any{
			"added_at": t.AddedAt.UTC().Format(time.RFC3339),
			"track": map[string]any{
				"id":       t.ID,
				"name":     t.Name,
				"explicit": t.Explicit,
				"album": map[string]any{
					"id":           t.AlbumID,
					"name":         t.AlbumName,
					"release_date": t.ReleaseDate,
					"images":       []map[string]any{{"url": "https://i.scdn.co/image/" + t.AlbumID}},
				},
				"artists": artists,
			},
		}
	}

	var next any
	if end < total {
		next = fmt.Sprintf("%s/v1/me/tracks?offset=%d&limit=%d", f.Server.URL, end, limit)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"items":  items,
		"limit":  limit,
		"offset": offset,
		"total":  total,
		"next":   next,
	})
}

func (f *FakeSpotify) severalArtists(w http.ResponseWriter, r *http.Request) {
	ids := strings.Split(r.URL.Query().Get("ids"), ",")
	if len(ids) > 50 {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": map[string]any{"status": 400, "message": "Too many ids requested"}})
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	artists := make([]any, len(ids))
	for i, id := range ids {
		a, ok := f.artists[id]
		if !ok {
			artists[i] = nil
			continue
		}
		genres := a.Genres
		if genres == nil {
			genres = []string{}
		}
		artists[i] = map[string]any{"id": a.ID, "name": a.Name, "genres": genres}
	}
	writeJSON(w, http.StatusOK, map[string]any{"artists": artists})
}

func (f *FakeSpotify) createPlaylist(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name   string `json:"name"`
		Public bool   `json:"public"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Name == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": map[string]any{"status": 400, "message": "Missing name"}})
		return
	}

	f.mu.Lock()
	f.created++
	id := fmt.Sprintf("created%d", f.created)
	f.playlists[id] = []string{}
	f.names[id] = body.Name
	f.mu.Unlock()

	writeJSON(w, http.StatusCreated, map[string]any{"id": id, "name": body.Name, "public": body.Public})
}

func (f *FakeSpotify) replaceItems(w http.ResponseWriter, r *http.Request) {
	f.editItems(w, r, func(_ []string, uris []string) []string { return uris })
}

func (f *FakeSpotify) addItems(w http.ResponseWriter, r *http.Request) {
	f.editItems(w, r, func(items []string, uris []string) []string { return append(items, uris...) })
}

func (f *FakeSpotify) removeItems(w http.ResponseWriter, r *http.Request) {
	f.editItems(w, r, func(items []string, uris []string) []string {
		return slices.DeleteFunc(items, func(item string) bool { return slices.Contains(uris, item) })
	})
}

func (f *FakeSpotify) editItems(w http.ResponseWriter, r *http.Request, apply func(items, uris []string) []string) {
	id := chi.URLParam(r, "id")
	body, _ := io.ReadAll(r.Body)
	uris := RecordedRequest{Body: body}.URIs()
	if len(uris) > 100 {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": map[string]any{"status": 400, "message": "Too many items"}})
		return
	}

	f.mu.Lock()
	items, ok := f.playlists[id]
	if ok {
		f.playlists[id] = apply(slices.Clone(items), slices.Clone(uris))
	}
	f.mu.Unlock()

	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]any{"error": map[string]any{"status": 404, "message": "Not found."}})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"snapshot_id": fmt.Sprintf("snap-%s-%d", id, time.Now().UnixNano())})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
