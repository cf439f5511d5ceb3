package main

import (
	"context"
	"fmt"
	"os"

	"github.com/desertthunder/tfx/internal/shared"
	"github.com/urfave/cli/v3"
)

// SetupDatabase creates the config file from the template when missing, the working directories,
// and the database with every migration applied.
func (r *Runner) SetupDatabase(ctx context.Context, cmd *cli.Command) error {
	configPath := r.configPath
	if configPath == "" {
		configPath = "config.toml"
	}

	if _, err := os.Stat(configPath); err != nil {
		r.logger.Info("config file not found, creating from template", "path", configPath)
		if err := shared.CreateConfigFile(configPath); err != nil {
			r.logger.Warn("failed to create config file, using current settings", "error", err)
		} else {
			r.logger.Info("config file created", "path", configPath)
			if config, err := shared.LoadConfig(configPath); err != nil {
				r.logger.Warn("failed to load created config, using current settings", "error", err)
			} else {
				r.config = config
			}
		}
	}

	paths := r.config.Paths
	if err := shared.EnsureDirs(paths.Downloads, paths.Extract, paths.Library); err != nil {
		return fmt.Errorf("failed to create working directories: %w", err)
	}

	r.logger.Info("initializing database", "path", r.config.Database.Path)
	if _, err := r.openDB(); err != nil {
		return err
	}

	r.logger.Infof("setup complete for database: %v", r.config.Database.Path)
	r.writePlain("✓ Database ready at %s\n", r.config.Database.Path)
	r.writePlain("  downloads: %s\n  extract:   %s\n  library:   %s\n", paths.Downloads, paths.Extract, paths.Library)
	return nil
}

// SetupMigrations lists the applied migrations.
func (r *Runner) SetupMigrations(ctx context.Context, cmd *cli.Command) error {
	db, err := r.connect()
	if err != nil {
		return err
	}

	applied, err := shared.MigrationStatus(db)
	if err != nil {
		return err
	}

	if len(applied) == 0 {
		return r.writePlain("No migrations applied\n")
	}
	for _, m := range applied {
		r.writePlain("%04d  %s\n", m.Version, m.AppliedAt.Local().Format("2006-01-02 15:04:05"))
	}
	return nil
}

// SetupRollback reverts the most recent migration.
func (r *Runner) SetupRollback(ctx context.Context, cmd *cli.Command) error {
	db, err := r.connect()
	if err != nil {
		return err
	}

	if err := shared.RollbackMigration(db); err != nil {
		return fmt.Errorf("failed to roll back: %w", err)
	}

	r.logger.Info("rolled back latest migration", "database", r.config.Database.Path)
	return r.writePlain("✓ Rolled back the latest migration\n")
}
