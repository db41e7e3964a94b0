package main

import (
	"context"

	"github.com/urfave/cli/v3"

	"github.com/desertthunder/spotlabel/internal/services"
	"github.com/desertthunder/spotlabel/internal/shared"
	"github.com/desertthunder/spotlabel/internal/tasks"
)

// syncRun is what a sync command needs: the engine and the session of the user it acts for.
type syncRun struct {
	engine *tasks.Engine
	sess   *services.Session
}

func (r *Runner) newSyncRun(ctx context.Context, cmd *cli.Command) (*syncRun, error) {
	repos, err := r.store()
	if err != nil {
		return nil, err
	}

	user, err := r.user(ctx, cmd, repos.Users)
	if err != nil {
		return nil, err
	}

	tokens, err := r.tokenManager(repos.Users)
	if err != nil {
		return nil, err
	}

	engine := tasks.NewEngine(r.spotify(tokens), tasks.Stores{
		Albums:    repos.Albums,
		Artists:   repos.Artists,
		Tracks:    repos.Tracks,
		Labels:    repos.Labels,
		Playlists: repos.Playlists,
	}, tasks.Options{
		Concurrency:      r.config.Sync.Concurrency,
		PlaceholderTrack: r.config.Sync.PlaceholderTrack,
		Logger:           shared.WithLogger(r.logger, "user", user.ID),
		Metrics:          r.metrics,
	})

	return &syncRun{engine: engine, sess: services.NewSession(user)}, nil
}

// SyncPull pulls newly favorited tracks for the user.
func (r *Runner) SyncPull(ctx context.Context, cmd *cli.Command) error {
	run, err := r.newSyncRun(ctx, cmd)
	if err != nil {
		return err
	}
	defer r.pushMetrics(ctx, run.sess.UserID)

	r.writePlain("Pulling favorites for %s...\n", run.sess.UserID)
	progress, stop := r.progress()
	result, err := run.engine.PullFavorites(ctx, run.sess, progress)
	stop()
	if err != nil {
		return err
	}

	r.writePlain("\n")
	r.writePlainHeader("Pull Complete!")
	r.writePlain("Pages fetched: %d\n", result.Pages)
	r.writePlain("Tracks seen: %d\n", result.Fetched)
	r.writePlain("New favorites: %d\n", result.Inserted)
	return nil
}

// SyncPush provisions missing label playlists and replaces every label playlist's contents.
func (r *Runner) SyncPush(ctx context.Context, cmd *cli.Command) error {
	run, err := r.newSyncRun(ctx, cmd)
	if err != nil {
		return err
	}
	defer r.pushMetrics(ctx, run.sess.UserID)

	r.writePlain("Pushing label playlists for %s...\n", run.sess.UserID)
	progress, stop := r.progress()
	result, err := run.engine.PushPlaylists(ctx, run.sess, progress)
	stop()
	if err != nil {
		return err
	}

	r.writePlain("\n")
	r.writePlainHeader("Push Complete!")
	r.writePlain("Playlists created: %d\n", result.Provisioned)
	r.writePlain("Playlists pushed: %d\n", result.Pushed)
	if result.Skipped > 0 {
		r.writePlain("⚠ %d smart label(s) pushed empty because their criteria failed (see log)\n", result.Skipped)
	}
	return nil
}
