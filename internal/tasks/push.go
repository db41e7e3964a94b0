package tasks

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/desertthunder/spotlabel/internal/criteria"
	"github.com/desertthunder/spotlabel/internal/models"
	"github.com/desertthunder/spotlabel/internal/services"
	"github.com/desertthunder/spotlabel/internal/shared"
)

// PushPlaylists materializes every label of the user as a Spotify playlist.
//
// Labels without a playlist get one first. Then each playlist's contents are replaced with the
// label's tracks, newest favorite first. A smart label whose criteria fail to compile or query is
// pushed as an empty playlist and logged; every other failure aborts the push.
func (e *Engine) PushPlaylists(ctx context.Context, sess *services.Session, progress chan<- ProgressUpdate) (result *PushResult, err error) {
	ctx, span := e.tracer.Start(ctx, "tasks.PushPlaylists", trace.WithAttributes(attribute.String("user", sess.UserID)))
	defer func(start time.Time) { e.observe(span, "push", start, err) }(time.Now())

	result = &PushResult{}

	provisioned, err := e.provision(ctx, sess, progress)
	result.Provisioned = provisioned
	if err != nil {
		return result, err
	}

	pairs, err := e.stores.Playlists.ListWithLabels(ctx, sess.UserID)
	if err != nil {
		return result, err
	}

	var pushed, skipped atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)

	for i, pair := range pairs {
		g.Go(func() error {
			ok, err := e.pushPlaylist(gctx, sess, pair)
			if err != nil {
				return err
			}
			pushed.Add(1)
			if !ok {
				skipped.Add(1)
			}
			sendProgress(progress, pushedUpdate(i+1, len(pairs), pair.Label.Name))
			return nil
		})
	}

	err = g.Wait()
	result.Pushed = int(pushed.Load())
	result.Skipped = int(skipped.Load())
	if err != nil {
		return result, err
	}

	e.logger.Info("pushed playlists", "user", sess.UserID,
		"provisioned", result.Provisioned, "pushed", result.Pushed, "skipped", result.Skipped)
	return result, nil
}

// provision creates a private playlist for each label that lacks one and records the mapping.
func (e *Engine) provision(ctx context.Context, sess *services.Session, progress chan<- ProgressUpdate) (int, error) {
	labels, err := e.stores.Labels.ListWithoutPlaylist(ctx, sess.UserID)
	if err != nil {
		return 0, err
	}

	var created atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)

	for i, label := range labels {
		g.Go(func() error {
			id, err := e.api.CreatePlaylist(gctx, sess, sess.UserID, playlistName(label), playlistDescription(label), false)
			if err != nil {
				return fmt.Errorf("failed to create playlist for label %q: %w", label.Name, err)
			}

			playlist := &models.Playlist{UserID: sess.UserID, LabelID: label.ID, SpotifyID: id}
			if err := e.stores.Playlists.Create(gctx, playlist); err != nil {
				return err
			}

			created.Add(1)
			e.metrics.PlaylistsMade.Inc()
			e.logger.Debug("provisioned playlist", "user", sess.UserID, "label", label.Name, "playlist", id)
			sendProgress(progress, provisionedUpdate(i+1, len(labels), label.Name))
			return nil
		})
	}

	err = g.Wait()
	return int(created.Load()), err
}

// pushPlaylist replaces one playlist's contents. ok is false when a smart label fell back to no tracks.
func (e *Engine) pushPlaylist(ctx context.Context, sess *services.Session, pair *models.LabelPlaylist) (ok bool, err error) {
	label, playlist := pair.Label, pair.Playlist
	ctx, span := e.tracer.Start(ctx, "tasks.pushPlaylist", trace.WithAttributes(
		attribute.String("label", label.Name),
		attribute.String("playlist", playlist.SpotifyID),
		attribute.Bool("smart", label.IsSmart()),
	))
	defer span.End()

	logger := e.logger.With("user", sess.UserID, "label", label.Name, "playlist", playlist.SpotifyID)

	ok = true
	tracks, err := resolveTracks(ctx, e.stores.Tracks, label)
	if err != nil {
		if !label.IsSmart() {
			return false, err
		}
		logger.Warn("criteria failed, pushing empty playlist", "criteria", *label.Criteria, "err", err)
		e.metrics.CriteriaErrors.Inc()
		span.RecordError(err)
		tracks, ok = nil, false
	}

	uris := make([]string, len(tracks))
	for i, t := range tracks {
		uris[i] = services.TrackURI(t.SpotifyID)
	}
	span.SetAttributes(attribute.Int("tracks", len(uris)))

	if err := e.upload(ctx, sess, playlist.SpotifyID, uris); err != nil {
		return false, fmt.Errorf("failed to push label %q: %w", label.Name, err)
	}

	e.metrics.PlaylistPushes.WithLabelValues(labelKind(label)).Inc()
	logger.Debug("pushed playlist", "tracks", len(uris))
	return ok, nil
}

// upload replaces a playlist's items with uris in chunks: the first chunk replaces, the rest append.
// An empty set is sent as the placeholder track, which is then removed.
func (e *Engine) upload(ctx context.Context, sess *services.Session, playlistID string, uris []string) error {
	empty := len(uris) == 0
	if empty {
		uris = []string{services.TrackURI(e.placeholder)}
	}

	for i, chunk := range shared.Chunk(uris, ChunkSize) {
		var err error
		if i == 0 {
			_, err = e.api.ReplacePlaylistTracks(ctx, sess, playlistID, chunk)
		} else {
			_, err = e.api.AddPlaylistTracks(ctx, sess, playlistID, chunk)
		}
		if err != nil {
			return err
		}
	}

	if empty {
		if _, err := e.api.RemovePlaylistTracks(ctx, sess, playlistID, uris); err != nil {
			return err
		}
	}
	return nil
}

// resolveTracks returns a label's effective tracks, newest favorite first. Smart labels
// consult only their criteria; static labels only their tags.
func resolveTracks(ctx context.Context, tracks models.TrackStore, label *models.Label) ([]*models.Track, error) {
	if !label.IsSmart() {
		return tracks.FindByLabel(ctx, label.ID)
	}

	filter, err := criteria.Compile(*label.Criteria)
	if err != nil {
		return nil, err
	}
	return tracks.FindByFilter(ctx, label.UserID, filter)
}

func labelKind(label *models.Label) string {
	if label.IsSmart() {
		return "smart"
	}
	return "static"
}
