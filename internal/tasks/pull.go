package tasks

import (
	"context"
	"fmt"
	"slices"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/desertthunder/spotlabel/internal/models"
	"github.com/desertthunder/spotlabel/internal/services"
	"github.com/desertthunder/spotlabel/internal/shared"
)

// PullFavorites copies the user's newest saved tracks into the store.
//
// Pages are requested newest first and applied oldest first. The first page holds
// [InitialPageSize] tracks; while a page is entirely new and the feed continues, the next
// page starts after it and holds [GrowthPageSize]. The first page containing a known track ends
// the pull. Any failure aborts, leaving earlier pages committed.
func (e *Engine) PullFavorites(ctx context.Context, sess *services.Session, progress chan<- ProgressUpdate) (result *PullResult, err error) {
	ctx, span := e.tracer.Start(ctx, "tasks.PullFavorites", trace.WithAttributes(attribute.String("user", sess.UserID)))
	defer func(start time.Time) { e.observe(span, "pull", start, err) }(time.Now())

	logger := e.logger.With("user", sess.UserID)
	result = &PullResult{}
	offset, limit := 0, InitialPageSize

	for {
		sendProgress(progress, fetchPageUpdate(result.Pages+1, offset, limit))

		page, err := e.api.SavedTracks(ctx, sess, offset, limit)
		if err != nil {
			return result, fmt.Errorf("failed to fetch favorites at offset %d: %w", offset, err)
		}
		result.Pages++
		result.Fetched += len(page.Items)
		e.metrics.PagesFetched.Inc()

		inserted, known, err := e.applyPage(ctx, sess, page)
		if err != nil {
			return result, err
		}
		result.Inserted += inserted
		sendProgress(progress, pageAppliedUpdate(result.Pages, len(page.Items), inserted))

		logger.Debug("applied favorites page", "offset", offset, "limit", limit, "items", len(page.Items), "inserted", inserted)

		if known > 0 || len(page.Items) < limit || !page.HasMore() {
			break
		}
		offset += limit
		limit = GrowthPageSize
	}

	logger.Info("pulled favorites", "pages", result.Pages, "fetched", result.Fetched, "inserted", result.Inserted)
	return result, nil
}

// applyPage stores one page and reports how many tracks were inserted and how many were already known.
func (e *Engine) applyPage(ctx context.Context, sess *services.Session, page *services.SavedTracksPage) (inserted, known int, err error) {
	ctx, span := e.tracer.Start(ctx, "tasks.applyPage", trace.WithAttributes(
		attribute.Int("offset", page.Offset),
		attribute.Int("items", len(page.Items)),
	))
	defer span.End()

	if len(page.Items) == 0 {
		return 0, 0, nil
	}

	items := slices.Clone(page.Items)
	slices.Reverse(items)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return e.storeAlbums(gctx, items) })
	g.Go(func() error { return e.storeArtists(gctx, sess, items) })
	if err := g.Wait(); err != nil {
		return 0, 0, err
	}

	candidates := buildTracks(sess.UserID, items)
	ids := make([]string, len(candidates))
	for i, t := range candidates {
		ids[i] = t.SpotifyID
	}

	existing, err := e.stores.Tracks.ExistingSpotifyIDs(ctx, sess.UserID, ids)
	if err != nil {
		return 0, 0, err
	}

	for _, track := range candidates {
		if existing[track.SpotifyID] {
			known++
			continue
		}
		if err := e.stores.Tracks.Create(ctx, track); err != nil {
			return inserted, known, err
		}
		existing[track.SpotifyID] = true
		inserted++
		e.metrics.TracksInserted.Inc()
	}
	return inserted, known, nil
}

func (e *Engine) storeAlbums(ctx context.Context, items []services.SavedTrack) error {
	seen := make(map[string]bool, len(items))
	albums := make([]*models.Album, 0, len(items))
	for _, item := range items {
		al := item.Track.Album
		if seen[al.ID] {
			continue
		}
		seen[al.ID] = true
		albums = append(albums, &models.Album{
			ID:          al.ID,
			Name:        al.Name,
			ReleaseDate: al.ReleaseDate,
			ImageURL:    al.ImageURL(),
		})
	}
	return e.stores.Albums.UpsertMany(ctx, albums)
}

// storeArtists looks up and inserts the artists the store does not know yet, in batches.
func (e *Engine) storeArtists(ctx context.Context, sess *services.Session, items []services.SavedTrack) error {
	var ids []string
	for _, item := range items {
		for _, a := range item.Track.Artists {
			ids = append(ids, a.ID)
		}
	}

	missing, err := e.stores.Artists.FindMissing(ctx, ids)
	if err != nil {
		return err
	}

	for _, batch := range shared.Chunk(missing, services.MaxArtistIDs) {
		found, err := e.api.SeveralArtists(ctx, sess, batch)
		if err != nil {
			return fmt.Errorf("failed to look up artists: %w", err)
		}

		artists := make([]*models.Artist, len(found))
		for i, a := range found {
			artists[i] = &models.Artist{ID: a.ID, Name: a.Name, Genres: models.Genres(a.Genres)}
		}
		if err := e.stores.Artists.CreateMany(ctx, artists); err != nil {
			return err
		}
		e.metrics.ArtistsFetched.Add(float64(len(artists)))
	}
	return nil
}

func buildTracks(userID string, items []services.SavedTrack) []*models.Track {
	tracks := make([]*models.Track, 0, len(items))
	seen := make(map[string]bool, len(items))
	for _, item := range items {
		if seen[item.Track.ID] {
			continue
		}
		seen[item.Track.ID] = true

		artistIDs := make([]string, len(item.Track.Artists))
		for i, a := range item.Track.Artists {
			artistIDs[i] = a.ID
		}
		tracks = append(tracks, &models.Track{
			UserID:      userID,
			SpotifyID:   item.Track.ID,
			Name:        item.Track.Name,
			AlbumID:     item.Track.Album.ID,
			Explicit:    item.Track.Explicit,
			FavoritedAt: item.AddedAt.UTC(),
			ArtistIDs:   artistIDs,
		})
	}
	return tracks
}
