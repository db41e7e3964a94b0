// Package metrics defines the Prometheus collectors for sync runs.
//
// spotlabel runs as a one-shot CLI, so collectors live on a dedicated registry that is
// pushed to a Pushgateway at the end of a command instead of being scraped.
package metrics

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

const namespace = "spotlabel"

// Metrics holds every collector and the registry they are registered on.
type Metrics struct {
	Registry *prometheus.Registry

	APIRequests    *prometheus.CounterVec
	TokenRefreshes prometheus.Counter
	PagesFetched   prometheus.Counter
	TracksInserted prometheus.Counter
	ArtistsFetched prometheus.Counter
	PlaylistsMade  prometheus.Counter
	PlaylistPushes *prometheus.CounterVec
	CriteriaErrors prometheus.Counter
	SyncDuration   *prometheus.HistogramVec
}

// New creates the collectors on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		APIRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "api_requests_total",
			Help:      "Spotify Web API requests by endpoint and HTTP status code.",
		}, []string{"endpoint", "code"}),
		TokenRefreshes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "token_refreshes_total",
			Help:      "Access token refreshes performed.",
		}),
		PagesFetched: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "favorites_pages_total",
			Help:      "Saved-track pages fetched by favorites pull.",
		}),
		TracksInserted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tracks_inserted_total",
			Help:      "Favorited tracks inserted into the local store.",
		}),
		ArtistsFetched: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "artists_fetched_total",
			Help:      "Artists looked up because they were missing locally.",
		}),
		PlaylistsMade: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "playlists_provisioned_total",
			Help:      "Playlists created for labels that had none.",
		}),
		PlaylistPushes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "playlist_pushes_total",
			Help:      "Label playlists whose contents were replaced, by label kind.",
		}, []string{"kind"}),
		CriteriaErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "criteria_errors_total",
			Help:      "Smart labels skipped because their criteria failed to compile or query.",
		}),
		SyncDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "sync_duration_seconds",
			Help:      "Duration of sync operations.",
			Buckets:   prometheus.ExponentialBuckets(0.25, 2, 10),
		}, []string{"operation"}),
	}

	m.Registry.MustRegister(
		m.APIRequests,
		m.TokenRefreshes,
		m.PagesFetched,
		m.TracksInserted,
		m.ArtistsFetched,
		m.PlaylistsMade,
		m.PlaylistPushes,
		m.CriteriaErrors,
		m.SyncDuration,
	)
	return m
}

// Push sends the registry to a Pushgateway. An empty url is a no-op.
func (m *Metrics) Push(ctx context.Context, url, job string, groupings map[string]string) error {
	if url == "" {
		return nil
	}
	if job == "" {
		job = namespace
	}

	pusher := push.New(url, job).Gatherer(m.Registry)
	for name, value := range groupings {
		pusher = pusher.Grouping(name, value)
	}

	if err := pusher.AddContext(ctx); err != nil {
		return fmt.Errorf("failed to push metrics: %w", err)
	}
	return nil
}
