// submodule cmd contains command definitions
package main

import "github.com/urfave/cli/v3"

func userFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "user",
		Aliases: []string{"u"},
		Usage:   "Spotify user id (default: spotify.default_user, or the only stored user)",
	}
}

func labelFlag() cli.Flag {
	return &cli.StringFlag{
		Name:     "id",
		Usage:    "Label ID",
		Required: true,
	}
}

func trackFlag() cli.Flag {
	return &cli.StringFlag{
		Name:     "track",
		Aliases:  []string{"t"},
		Usage:    "Spotify track ID of a favorited track",
		Required: true,
	}
}

// setupCommand handles setup operations for the database.
func setupCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "setup",
		Usage: "Setup and configuration commands",
		Commands: []*cli.Command{
			{
				Name:   "database",
				Usage:  "Create the config file if missing, then initialize the database and run migrations",
				Action: r.SetupDatabase,
			},
		},
	}
}

// authCommand handles authentication operations
func authCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "auth",
		Usage: "Manage Spotify authentication",
		Commands: []*cli.Command{
			{
				Name:  "login",
				Usage: "Authorize spotlabel with Spotify and store the user's tokens",
				Flags: []cli.Flag{
					&cli.DurationFlag{
						Name:  "timeout",
						Usage: "How long to wait for the authorization callback",
						Value: loginTimeout,
					},
				},
				Action: r.AuthLogin,
			},
			{
				Name:   "status",
				Usage:  "Show stored users and token expiry",
				Action: r.AuthStatus,
			},
		},
	}
}

// syncCommand handles the two sync directions.
func syncCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "sync",
		Usage: "Synchronize favorites and label playlists",
		Commands: []*cli.Command{
			{
				Name:   "pull",
				Usage:  "Pull newly favorited tracks from Spotify",
				Flags:  []cli.Flag{userFlag()},
				Action: r.SyncPull,
			},
			{
				Name:   "push",
				Usage:  "Create missing label playlists and replace their contents",
				Flags:  []cli.Flag{userFlag()},
				Action: r.SyncPush,
			},
		},
	}
}

// labelsCommand handles label management.
func labelsCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "labels",
		Aliases: []string{"label", "l"},
		Usage:   "Manage labels",
		Commands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List labels",
				Flags: []cli.Flag{
					userFlag(),
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Output raw JSON",
					},
				},
				Action: r.LabelsList,
			},
			{
				Name:  "create",
				Usage: "Create a static label, or a smart label with --criteria",
				Flags: []cli.Flag{
					userFlag(),
					&cli.StringFlag{
						Name:     "name",
						Aliases:  []string{"n"},
						Usage:    "Label name",
						Required: true,
					},
					&cli.StringFlag{
						Name:  "criteria",
						Usage: `Criteria expression, e.g. 'artist = "Slowdive" and not explicit'`,
					},
				},
				Action: r.LabelsCreate,
			},
			{
				Name:   "tag",
				Usage:  "Add a favorited track to a static label",
				Flags:  []cli.Flag{userFlag(), labelFlag(), trackFlag()},
				Action: r.LabelsTag,
			},
			{
				Name:   "untag",
				Usage:  "Remove a track from a static label",
				Flags:  []cli.Flag{userFlag(), labelFlag(), trackFlag()},
				Action: r.LabelsUntag,
			},
			{
				Name:  "criteria",
				Usage: "Replace a label's criteria (--static makes it static)",
				Flags: []cli.Flag{
					userFlag(),
					labelFlag(),
					&cli.StringFlag{
						Name:  "criteria",
						Usage: "New criteria expression",
					},
					&cli.BoolFlag{
						Name:  "static",
						Usage: "Remove the criteria",
					},
				},
				Action: r.LabelsCriteria,
			},
			{
				Name:  "validate",
				Usage: "Check a criteria expression without saving it",
				Arguments: []cli.Argument{
					&cli.StringArg{Name: "criteria"},
				},
				Action: r.LabelsValidate,
			},
			{
				Name:  "show",
				Usage: "Show a label and the tracks it currently selects",
				Flags: []cli.Flag{
					userFlag(),
					labelFlag(),
					&cli.StringFlag{
						Name:    "format",
						Aliases: []string{"f"},
						Usage:   "Output format: txt, markdown, csv, json",
						Value:   "txt",
					},
				},
				Action: r.LabelsShow,
			},
			{
				Name:  "export",
				Usage: "Export every label to files with a manifest",
				Flags: []cli.Flag{
					userFlag(),
					&cli.StringFlag{
						Name:    "format",
						Aliases: []string{"f"},
						Usage:   "Output format: txt, markdown, csv, json",
						Value:   "csv",
					},
					&cli.StringFlag{
						Name:    "output",
						Aliases: []string{"o"},
						Usage:   "Output directory (default: spotlabel_export_{timestamp})",
					},
					&cli.IntFlag{
						Name:  "workers",
						Usage: "Concurrent export workers",
						Value: 4,
					},
				},
				Action: r.LabelsExport,
			},
		},
	}
}
