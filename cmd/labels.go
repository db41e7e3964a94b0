package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/desertthunder/spotlabel/internal/criteria"
	"github.com/desertthunder/spotlabel/internal/formatter"
	"github.com/desertthunder/spotlabel/internal/models"
	"github.com/desertthunder/spotlabel/internal/shared"
	"github.com/desertthunder/spotlabel/internal/tasks"
)

// labelRow is the listing of one label.
type labelRow struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	Kind     string  `json:"kind"`
	Criteria *string `json:"criteria,omitempty"`
	Playlist string  `json:"playlist,omitempty"`
}

// labels returns the label service and the user a labels command acts for.
func (r *Runner) labels(ctx context.Context, cmd *cli.Command) (*tasks.Labels, *models.User, error) {
	repos, err := r.store()
	if err != nil {
		return nil, nil, err
	}

	user, err := r.user(ctx, cmd, repos.Users)
	if err != nil {
		return nil, nil, err
	}

	return tasks.NewLabels(repos.Labels, repos.Tracks, shared.WithLogger(r.logger, "user", user.ID)), user, nil
}

// LabelsList prints the user's labels with their kind and playlist.
func (r *Runner) LabelsList(ctx context.Context, cmd *cli.Command) error {
	svc, user, err := r.labels(ctx, cmd)
	if err != nil {
		return err
	}

	labels, err := svc.List(ctx, user.ID)
	if err != nil {
		return err
	}

	pairs, err := r.repos.Playlists.ListWithLabels(ctx, user.ID)
	if err != nil {
		return err
	}
	playlists := make(map[string]string, len(pairs))
	for _, p := range pairs {
		playlists[p.Label.ID] = p.Playlist.SpotifyID
	}

	rows := make([]labelRow, len(labels))
	for i, l := range labels {
		rows[i] = labelRow{ID: l.ID, Name: l.Name, Kind: kind(l), Criteria: l.Criteria, Playlist: playlists[l.ID]}
	}

	if cmd.Bool("json") {
		return r.writeJSON(rows, true)
	}

	if len(rows) == 0 {
		return r.writePlain("No labels yet. Create one with: spotlabel labels create --name <name>\n")
	}

	r.writePlain("Found %d labels:\n\n", len(rows))
	for i, row := range rows {
		r.writePlain("%d. %s (%s)\n", i+1, row.Name, row.Kind)
		r.writePlain("   ID: %s\n", row.ID)
		if row.Criteria != nil {
			r.writePlain("   Criteria: %s\n", *row.Criteria)
		}
		if row.Playlist != "" {
			r.writePlain("   Playlist: %s\n", row.Playlist)
		} else {
			r.writePlain("   Playlist: not yet pushed\n")
		}
		r.writePlain("\n")
	}
	return nil
}

// LabelsCreate creates a label. --criteria makes it smart.
func (r *Runner) LabelsCreate(ctx context.Context, cmd *cli.Command) error {
	svc, user, err := r.labels(ctx, cmd)
	if err != nil {
		return err
	}

	var crit *string
	if cmd.IsSet("criteria") {
		text := cmd.String("criteria")
		crit = &text
	}

	label, err := svc.CreateLabel(ctx, user.ID, cmd.String("name"), crit)
	if err != nil {
		return err
	}

	r.writePlain("✓ Created %s label %q\n", kind(label), label.Name)
	r.writePlain("  ID: %s\n", label.ID)
	return nil
}

// LabelsTag adds a favorited track to a static label.
func (r *Runner) LabelsTag(ctx context.Context, cmd *cli.Command) error {
	svc, user, err := r.labels(ctx, cmd)
	if err != nil {
		return err
	}

	if err := svc.Tag(ctx, user.ID, cmd.String("id"), cmd.String("track")); err != nil {
		return err
	}
	return r.writePlain("✓ Tagged %s\n", cmd.String("track"))
}

// LabelsUntag removes a track from a static label.
func (r *Runner) LabelsUntag(ctx context.Context, cmd *cli.Command) error {
	svc, user, err := r.labels(ctx, cmd)
	if err != nil {
		return err
	}

	if err := svc.Untag(ctx, user.ID, cmd.String("id"), cmd.String("track")); err != nil {
		return err
	}
	return r.writePlain("✓ Untagged %s\n", cmd.String("track"))
}

// LabelsCriteria replaces a label's criteria, or removes it with --static.
func (r *Runner) LabelsCriteria(ctx context.Context, cmd *cli.Command) error {
	static := cmd.Bool("static")
	if static == cmd.IsSet("criteria") {
		return fmt.Errorf("%w: pass exactly one of --criteria or --static", shared.ErrInvalidArgument)
	}

	svc, user, err := r.labels(ctx, cmd)
	if err != nil {
		return err
	}

	var crit *string
	if !static {
		text := cmd.String("criteria")
		crit = &text
	}

	if err := svc.UpdateCriteria(ctx, user.ID, cmd.String("id"), crit); err != nil {
		return err
	}

	if static {
		return r.writePlain("✓ Label is now static\n")
	}
	return r.writePlain("✓ Criteria updated\n")
}

// LabelsValidate checks a criteria expression and prints its normalized form.
func (r *Runner) LabelsValidate(ctx context.Context, cmd *cli.Command) error {
	text := cmd.StringArg("criteria")
	if strings.TrimSpace(text) == "" {
		return fmt.Errorf("%w: criteria", shared.ErrMissingArgument)
	}

	filter, err := criteria.Compile(text)
	if err != nil {
		var cerr *criteria.Error
		if errors.As(err, &cerr) {
			r.writePlain("✗ %s\n", text)
			r.writePlain("  %s^\n", strings.Repeat(" ", cerr.Pos))
		}
		return err
	}

	r.writePlain("✓ Valid criteria\n")
	r.writePlain("  Parsed: %s\n", filter)
	return nil
}

// LabelsShow prints a label and its effective tracks in the requested format.
func (r *Runner) LabelsShow(ctx context.Context, cmd *cli.Command) error {
	svc, user, err := r.labels(ctx, cmd)
	if err != nil {
		return err
	}

	label, tracks, err := svc.Resolve(ctx, user.ID, cmd.String("id"))
	if err != nil {
		return err
	}

	out, err := formatter.Render(&formatter.LabelExport{Label: label, Tracks: tracks}, cmd.String("format"))
	if err != nil {
		return err
	}
	_, err = r.output.Write(out)
	return err
}

// LabelsExport writes every label to its own file plus a manifest.
func (r *Runner) LabelsExport(ctx context.Context, cmd *cli.Command) error {
	svc, user, err := r.labels(ctx, cmd)
	if err != nil {
		return err
	}

	r.writePlain("Exporting labels...\n")
	progress, stop := r.progress()
	result, err := svc.Export(ctx, user.ID, progress, tasks.ExportOpts{
		Format:     cmd.String("format"),
		OutputDir:  cmd.String("output"),
		NumWorkers: int(cmd.Int("workers")),
	})
	stop()
	if err != nil {
		return err
	}

	r.writePlain("\n")
	r.writePlainHeader("Export Complete!")
	r.writePlain("Format: %s\n", result.Format)
	r.writePlain("Output: %s\n", result.OutputDirectory)
	r.writePlain("Labels: %d/%d exported\n", result.Succeeded, result.Total)
	if result.Failed > 0 {
		r.writePlain("Failed: %d\n", result.Failed)
	}
	r.writePlain("Manifest: %s\n", result.ManifestPath)
	return nil
}

func kind(l *models.Label) string {
	if l.IsSmart() {
		return "smart"
	}
	return "static"
}
