package main

import (
	"time"

	"github.com/urfave/cli/v3"
)

// setupCommand handles database setup and migrations.
func setupCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "setup",
		Usage: "Setup and configuration commands",
		Commands: []*cli.Command{
			{
				Name:   "database",
				Usage:  "Create the config file if missing, the working directories and the database",
				Action: r.SetupDatabase,
			},
			{
				Name:   "migrations",
				Usage:  "List applied database migrations",
				Action: r.SetupMigrations,
			},
			{
				Name:   "rollback",
				Usage:  "Roll back the most recent migration",
				Action: r.SetupRollback,
			},
		},
	}
}

// authCommand handles Google Drive authentication.
func authCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "auth",
		Usage: "Manage Google Drive authentication",
		Commands: []*cli.Command{
			{
				Name:  "login",
				Usage: "Authorize tfx in the browser and save the token",
				Flags: []cli.Flag{
					&cli.DurationFlag{
						Name:  "timeout",
						Usage: "How long to wait for the browser callback",
						Value: 2 * time.Minute,
					},
				},
				Action: r.AuthLogin,
			},
			{
				Name:  "status",
				Usage: "Show the account the saved token belongs to",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Output as JSON",
					},
				},
				Action: r.AuthStatus,
			},
		},
	}
}

// archivesCommand handles the remote Takeout folder and the stored archives.
func archivesCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "archives",
		Aliases: []string{"a"},
		Usage:   "List and import Takeout archives",
		Commands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List the remote Takeout folder",
				Flags: []cli.Flag{
					folderFlag(),
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Output as JSON",
					},
				},
				Action: r.ArchivesList,
			},
			{
				Name:   "import",
				Usage:  "Store one archive per remote file, skipping those already stored",
				Flags:  []cli.Flag{folderFlag()},
				Action: r.ArchivesImport,
			},
			{
				Name:  "show",
				Usage: "Show stored archives, or the entries of one archive",
				Arguments: []cli.Argument{
					&cli.StringArg{Name: "name"},
				},
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Output as JSON",
					},
				},
				Action: r.ArchivesShow,
			},
		},
	}
}

func folderFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "folder",
		Aliases: []string{"f"},
		Usage:   "Remote folder id (defaults to remote.folder_id)",
	}
}

// runCommand runs the pipeline scheduler.
func runCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "run",
		Usage: "Download, extract and file archives until interrupted",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "once",
				Usage: "Stop once no stage has anything left to do",
			},
			&cli.BoolFlag{
				Name:  "metrics",
				Usage: "Serve /metrics, /healthz and /status (also enabled by server.enabled)",
			},
		},
		Action: r.Run,
	}
}

// statusCommand reports entity counts and failures.
func statusCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "status",
		Usage: "Show archive and file counts by status",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "format",
				Usage: "Output format: text, markdown, csv, json or tree",
				Value: "text",
			},
			&cli.BoolFlag{
				Name:  "failed",
				Usage: "Only show failed and parked entities",
			},
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "Write the report to a file instead of stdout",
			},
		},
		Action: r.Status,
	}
}

// exportCommand handles the media record catalog.
func exportCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "export",
		Usage: "Export filed media",
		Commands: []*cli.Command{
			{
				Name:  "catalog",
				Usage: "Write media records to a parquet file",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "output",
						Aliases: []string{"o"},
						Usage:   "Parquet file to write",
						Value:   "catalog.parquet",
					},
					&cli.StringFlag{
						Name:  "since",
						Usage: "Only records captured on or after this date (YYYY-MM-DD)",
					},
				},
				Action: r.ExportCatalog,
			},
			{
				Name:  "inspect",
				Usage: "Print the rows of a catalog file",
				Arguments: []cli.Argument{
					&cli.StringArg{Name: "path", Value: "catalog.parquet"},
				},
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "limit",
						Usage: "Rows to print, 0 for all",
						Value: 20,
					},
				},
				Action: r.ExportInspect,
			},
		},
	}
}

// watchCommand runs the pipeline under the interactive monitor.
func watchCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "watch",
		Usage: "Run the pipeline with a live terminal monitor",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "log",
				Usage: "Log file while the monitor owns the terminal",
				Value: "./tmp/tfx-watch.log",
			},
			&cli.BoolFlag{
				Name:  "paused",
				Usage: "Open the monitor with the scheduler stopped",
			},
		},
		Action: r.Watch,
	}
}
