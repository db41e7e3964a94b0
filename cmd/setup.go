package main

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/desertthunder/spotlabel/internal/shared"
)

// SetupDatabase creates the config file when it is missing, then initializes the database and runs migrations.
func (r *Runner) SetupDatabase(ctx context.Context, cmd *cli.Command) error {
	if r.configPath != "" {
		if _, err := os.Stat(r.configPath); os.IsNotExist(err) {
			r.logger.Info("config file not found, creating from template", "path", r.configPath)
			if err := shared.CreateConfigFile(r.configPath); err != nil {
				r.logger.Warn("failed to create config file, using defaults", "error", err)
			} else {
				r.writePlain("✓ Config file created at %s\n", r.configPath)
			}
		}
	}

	if r.db == nil {
		r.logger.Info("initializing database", "path", r.config.Database.Path)

		db, err := shared.NewDatabase(r.config.Database.Path)
		if err != nil {
			return fmt.Errorf("failed to create database: %w", err)
		}
		shared.ConfigureDatabase(db, r.config.Database.Path, r.config.Database.MaxOpenConns, r.config.Database.MaxIdleConns)
		r.db, r.ownsDB = db, true
	}

	r.logger.Info("running database migrations")
	if err := shared.RunMigrations(r.db); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	current, _, err := shared.MigrationVersion(r.db)
	if err != nil {
		return err
	}

	r.logger.Infof("setup complete for database: %v", r.config.Database.Path)
	return r.writePlain("✓ Database %s is at schema version %d\n", r.config.Database.Path, current)
}
