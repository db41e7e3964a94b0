package tasks

import (
	"context"
	"errors"
	"net/http"
	"slices"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/desertthunder/spotlabel/internal/models"
	"github.com/desertthunder/spotlabel/internal/services"
	"github.com/desertthunder/spotlabel/internal/shared"
	tu "github.com/desertthunder/spotlabel/internal/testing"
)

func playlistOf(t *testing.T, e *env, label *models.Label) string {
	t.Helper()
	playlist, err := e.repos.Playlists.GetByLabel(context.Background(), label.ID)
	if err != nil {
		t.Fatalf("expected playlist for %s: %v", label.Name, err)
	}
	return playlist.SpotifyID
}

func TestPushPlaylists(t *testing.T) {
	ctx := context.Background()

	t.Run("Provisions Missing Playlists Once", func(t *testing.T) {
		e := newEnv(t)
		keep := e.createLabel(t, "Keepers", nil)
		e.createLabel(t, "Shoegaze", ptr(`genre = "shoegaze"`))

		result, err := e.engine.PushPlaylists(ctx, e.sess, nil)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if result.Provisioned != 2 || result.Pushed != 2 || result.Skipped != 0 {
			t.Errorf("unexpected result %+v", result)
		}
		if n := tu.CountRows(t, e.db, "playlists"); n != 2 {
			t.Errorf("expected 2 stored playlists, got %d", n)
		}
		if name := e.fake.PlaylistName(playlistOf(t, e, keep)); name != "Keepers (spotlabel)" {
			t.Errorf("unexpected playlist name %q", name)
		}

		created := e.fake.Requests(http.MethodPost, "/v1/users/u1/playlists")
		if len(created) != 2 {
			t.Fatalf("expected 2 create calls, got %d", len(created))
		}

		again, err := e.engine.PushPlaylists(ctx, e.sess, nil)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if again.Provisioned != 0 || again.Pushed != 2 {
			t.Errorf("expected no provisioning on the second push, got %+v", again)
		}
		if n := len(e.fake.Requests(http.MethodPost, "/v1/users/u1/playlists")); n != 2 {
			t.Errorf("expected no new create calls, got %d", n)
		}
		if got := testutil.ToFloat64(e.metrics.PlaylistsMade); got != 2 {
			t.Errorf("expected 2 provisioned counted, got %v", got)
		}
	})

	t.Run("Playlists Are Private", func(t *testing.T) {
		e := newEnv(t)
		e.createLabel(t, "Keepers", nil)

		if _, err := e.engine.PushPlaylists(ctx, e.sess, nil); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		body := string(e.fake.Requests(http.MethodPost, "/v1/users/u1/playlists")[0].Body)
		if !strings.Contains(body, `"public":false`) || !strings.Contains(body, `Generated by spotlabel from label \"Keepers\"`) {
			t.Errorf("expected private playlist, got %s", body)
		}
	})

	t.Run("Fifty Tracks Is One Replace", func(t *testing.T) {
		e := newEnv(t)
		e.seedTracks(t, 51)
		label := e.createLabel(t, "Explicit", ptr("explicit = true"))

		if _, err := e.engine.PushPlaylists(ctx, e.sess, nil); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}

		reqs := e.fake.PlaylistRequests(playlistOf(t, e, label))
		if len(reqs) != 1 || reqs[0].Method != http.MethodPut {
			t.Fatalf("expected a single replace, got %d requests", len(reqs))
		}
		got := reqs[0].URIs()
		if len(got) != 50 || got[0] != "spotify:track:s00" || got[49] != "spotify:track:s49" {
			t.Errorf("expected 50 uris newest first, got %d starting %v", len(got), got[:1])
		}
	})

	t.Run("Fifty One Tracks Is Replace Then Append", func(t *testing.T) {
		e := newEnv(t)
		e.seedTracks(t, 51)
		label := e.createLabel(t, "Everything", ptr("explicit or not explicit"))

		if _, err := e.engine.PushPlaylists(ctx, e.sess, nil); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}

		id := playlistOf(t, e, label)
		reqs := e.fake.PlaylistRequests(id)
		if len(reqs) != 2 {
			t.Fatalf("expected 2 requests, got %d", len(reqs))
		}
		if reqs[0].Method != http.MethodPut || len(reqs[0].URIs()) != 50 {
			t.Errorf("expected replace of 50, got %s of %d", reqs[0].Method, len(reqs[0].URIs()))
		}
		if reqs[1].Method != http.MethodPost || !slices.Equal(reqs[1].URIs(), uris("s50")) {
			t.Errorf("expected append of the oldest track, got %s %v", reqs[1].Method, reqs[1].URIs())
		}

		items, _ := e.fake.Playlist(id)
		if len(items) != 51 {
			t.Errorf("expected 51 items, got %d", len(items))
		}
	})

	t.Run("Empty Label Round Trip", func(t *testing.T) {
		e := newEnv(t)
		label := e.createLabel(t, "Nothing Yet", nil)

		if _, err := e.engine.PushPlaylists(ctx, e.sess, nil); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}

		id := playlistOf(t, e, label)
		reqs := e.fake.PlaylistRequests(id)
		if len(reqs) != 2 {
			t.Fatalf("expected replace then remove, got %d requests", len(reqs))
		}
		placeholder := uris(DefaultPlaceholderTrack)
		if reqs[0].Method != http.MethodPut || !slices.Equal(reqs[0].URIs(), placeholder) {
			t.Errorf("expected replace with the placeholder, got %s %v", reqs[0].Method, reqs[0].URIs())
		}
		if reqs[1].Method != http.MethodDelete || !slices.Equal(reqs[1].URIs(), placeholder) {
			t.Errorf("expected removal of the placeholder, got %s %v", reqs[1].Method, reqs[1].URIs())
		}
		if items, _ := e.fake.Playlist(id); len(items) != 0 {
			t.Errorf("expected an empty playlist, got %v", items)
		}
	})

	t.Run("Static Label Uses Tags", func(t *testing.T) {
		e := newEnv(t)
		e.seedTracks(t, 4)
		label := e.createLabel(t, "Keepers", nil)
		for _, id := range []string{"s03", "s01"} {
			if err := e.labels.Tag(ctx, "u1", label.ID, id); err != nil {
				t.Fatalf("failed to tag %s: %v", id, err)
			}
		}

		if _, err := e.engine.PushPlaylists(ctx, e.sess, nil); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if items, _ := e.fake.Playlist(playlistOf(t, e, label)); !slices.Equal(items, uris("s01", "s03")) {
			t.Errorf("expected tagged tracks newest first, got %v", items)
		}
		if got := testutil.ToFloat64(e.metrics.PlaylistPushes.WithLabelValues("static")); got != 1 {
			t.Errorf("expected one static push, got %v", got)
		}
	})

	t.Run("Smart Label Ignores Tags", func(t *testing.T) {
		e := newEnv(t)
		tracks := e.seedTracks(t, 4)
		label := e.createLabel(t, "Slowdive", ptr(`artist = "slowdive"`))
		tu.MustExec(t, e.db, `INSERT INTO track_labels (track_id, label_id) VALUES (?, ?)`, tracks[1].ID, label.ID)

		if _, err := e.engine.PushPlaylists(ctx, e.sess, nil); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if items, _ := e.fake.Playlist(playlistOf(t, e, label)); !slices.Equal(items, uris("s00", "s02")) {
			t.Errorf("expected only criteria matches, got %v", items)
		}
	})

	t.Run("Invalid Criteria Pushes Empty Without Aborting", func(t *testing.T) {
		e := newEnv(t)
		e.seedTracks(t, 2)
		good := e.createLabel(t, "All", ptr("explicit"))
		tu.MustExec(t, e.db, `INSERT INTO labels (id, user_id, name, criteria) VALUES ('broken', 'u1', 'Broken', 'artst = "x"')`)

		result, err := e.engine.PushPlaylists(ctx, e.sess, nil)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if result.Pushed != 2 || result.Skipped != 1 {
			t.Errorf("unexpected result %+v", result)
		}

		broken := playlistOf(t, e, &models.Label{ID: "broken", Name: "Broken"})
		if items, _ := e.fake.Playlist(broken); len(items) != 0 {
			t.Errorf("expected broken label to be pushed empty, got %v", items)
		}
		if items, _ := e.fake.Playlist(playlistOf(t, e, good)); len(items) != 2 {
			t.Errorf("expected sibling label to be pushed, got %v", items)
		}
		if got := testutil.ToFloat64(e.metrics.CriteriaErrors); got != 1 {
			t.Errorf("expected one criteria error counted, got %v", got)
		}
	})

	t.Run("Existing Playlist Contents Replaced", func(t *testing.T) {
		e := newEnv(t)
		e.seedTracks(t, 3)
		label := e.createLabel(t, "Recent", ptr(`added >= "2025-03-14"`))
		e.fake.AddPlaylist("existing", uris("stale1", "stale2")...)
		if err := e.repos.Playlists.Create(ctx, &models.Playlist{UserID: "u1", LabelID: label.ID, SpotifyID: "existing"}); err != nil {
			t.Fatalf("failed to store playlist: %v", err)
		}

		result, err := e.engine.PushPlaylists(ctx, e.sess, nil)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if result.Provisioned != 0 {
			t.Errorf("expected no provisioning, got %d", result.Provisioned)
		}
		if items, _ := e.fake.Playlist("existing"); !slices.Equal(items, uris("s00", "s01", "s02")) {
			t.Errorf("expected stale items replaced, got %v", items)
		}
	})

	t.Run("Provisioning Failure Aborts", func(t *testing.T) {
		e := newEnv(t)
		e.createLabel(t, "Keepers", nil)
		e.fake.Fail(http.MethodPost, "/v1/users/u1/playlists", http.StatusForbidden)

		_, err := e.engine.PushPlaylists(ctx, e.sess, nil)
		if !errors.Is(err, shared.ErrAPIRequest) {
			t.Errorf("expected ErrAPIRequest, got %v", err)
		}
		if n := tu.CountRows(t, e.db, "playlists"); n != 0 {
			t.Errorf("expected no stored playlist, got %d", n)
		}
	})

	t.Run("Upload Failure Aborts", func(t *testing.T) {
		e := newEnv(t)
		label := e.createLabel(t, "Keepers", nil)
		e.fake.AddPlaylist("gone")
		if err := e.repos.Playlists.Create(ctx, &models.Playlist{UserID: "u1", LabelID: label.ID, SpotifyID: "gone"}); err != nil {
			t.Fatalf("failed to store playlist: %v", err)
		}
		e.fake.Fail(http.MethodPut, "/v1/playlists/gone/tracks", http.StatusNotFound)

		if _, err := e.engine.PushPlaylists(ctx, e.sess, nil); !errors.Is(err, shared.ErrAPIRequest) {
			t.Errorf("expected ErrAPIRequest, got %v", err)
		}
	})

	t.Run("Expired Token Refreshed Once For The Whole Push", func(t *testing.T) {
		e := newEnv(t)
		e.createLabel(t, "One", nil)
		e.createLabel(t, "Two", nil)
		if err := e.repos.Users.UpdateToken(ctx, "u1", "access-0", "refresh-0", epoch); err != nil {
			t.Fatalf("failed to expire token: %v", err)
		}
		user, err := e.repos.Users.Get(ctx, "u1")
		if err != nil {
			t.Fatalf("failed to get user: %v", err)
		}
		e.sess = services.NewSession(user)
		e.engine.concurrency = 1

		if _, err := e.engine.PushPlaylists(ctx, e.sess, nil); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if n := e.fake.Refreshes(); n != 1 {
			t.Errorf("expected one refresh, got %d", n)
		}

		stored, err := e.repos.Users.Get(ctx, "u1")
		if err != nil {
			t.Fatalf("failed to get user: %v", err)
		}
		if stored.AccessToken != "access-1" || !stored.TokenExpiresAt.After(epoch) {
			t.Errorf("expected refreshed token persisted, got %q until %v", stored.AccessToken, stored.TokenExpiresAt)
		}
	})
}
