package tasks

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/desertthunder/spotlabel/internal/metrics"
	"github.com/desertthunder/spotlabel/internal/models"
	"github.com/desertthunder/spotlabel/internal/services"
	"github.com/desertthunder/spotlabel/internal/telemetry"
)

const (
	// InitialPageSize is the first favorites page requested by a pull.
	InitialPageSize = 5
	// GrowthPageSize is the page size once a pull finds a fully new page.
	GrowthPageSize = 25
	// ChunkSize is the number of track URIs sent per playlist call.
	ChunkSize = 50
	// DefaultPlaceholderTrack keeps a replace call valid when a label resolves to no tracks.
	DefaultPlaceholderTrack = "4uLU6hMCjMI75M1A2tKUQC"
	// PlaylistSuffix marks playlists created by spotlabel.
	PlaylistSuffix = " (spotlabel)"
	// DefaultConcurrency bounds concurrent provisioning and pushes.
	DefaultConcurrency = 4
)

// API is the subset of the Spotify Web API the engine calls.
type API interface {
	SavedTracks(ctx context.Context, sess *services.Session, offset, limit int) (*services.SavedTracksPage, error)
	SeveralArtists(ctx context.Context, sess *services.Session, ids []string) ([]*services.Artist, error)
	CreatePlaylist(ctx context.Context, sess *services.Session, userID, name, description string, public bool) (string, error)
	ReplacePlaylistTracks(ctx context.Context, sess *services.Session, playlistID string, uris []string) (string, error)
	AddPlaylistTracks(ctx context.Context, sess *services.Session, playlistID string, uris []string) (string, error)
	RemovePlaylistTracks(ctx context.Context, sess *services.Session, playlistID string, uris []string) (string, error)
}

var _ API = (*services.Spotify)(nil)

// Stores groups the persistence the engine writes through.
type Stores struct {
	Albums    models.AlbumStore
	Artists   models.ArtistStore
	Tracks    models.TrackStore
	Labels    models.LabelStore
	Playlists models.PlaylistStore
}

// Options tunes an [Engine]. Zero values select defaults.
type Options struct {
	Concurrency      int
	PlaceholderTrack string
	Logger           *log.Logger
	Metrics          *metrics.Metrics
}

// PullResult summarizes a favorites pull.
type PullResult struct {
	Pages    int // Pages fetched
	Fetched  int // Saved tracks received
	Inserted int // Tracks new to the store
}

// PushResult summarizes a playlist push.
type PushResult struct {
	Provisioned int // Playlists created for labels that had none
	Pushed      int // Playlists whose contents were replaced
	Skipped     int // Smart labels pushed empty because their criteria failed
}

// Engine runs the favorites pull and the playlist push for one user session.
type Engine struct {
	api         API
	stores      Stores
	concurrency int
	placeholder string
	logger      *log.Logger
	metrics     *metrics.Metrics
	tracer      trace.Tracer
}

// NewEngine creates an Engine calling api and persisting through stores.
func NewEngine(api API, stores Stores, opts Options) *Engine {
	e := &Engine{
		api:         api,
		stores:      stores,
		concurrency: opts.Concurrency,
		placeholder: opts.PlaceholderTrack,
		logger:      opts.Logger,
		metrics:     opts.Metrics,
		tracer:      telemetry.Tracer(),
	}
	if e.concurrency <= 0 {
		e.concurrency = DefaultConcurrency
	}
	if e.placeholder == "" {
		e.placeholder = DefaultPlaceholderTrack
	}
	if e.logger == nil {
		e.logger = log.Default()
	}
	if e.metrics == nil {
		e.metrics = metrics.New()
	}
	return e
}

// sendProgress sends a progress update through the channel without blocking.
func sendProgress(progress chan<- ProgressUpdate, update ProgressUpdate) {
	if progress == nil {
		return
	}
	select {
	case progress <- update:
	default:
	}
}

// observe records an operation's duration and ends its span with err.
func (e *Engine) observe(span trace.Span, operation string, start time.Time, err error) {
	e.metrics.SyncDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func playlistName(label *models.Label) string {
	return label.Name + PlaylistSuffix
}

func playlistDescription(label *models.Label) string {
	return fmt.Sprintf("Generated by spotlabel from label %q", label.Name)
}
