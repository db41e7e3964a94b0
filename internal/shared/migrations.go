package shared

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// RunMigrations runs all pending migrations to bring the database to the latest version.
//
// The caller owns db. The migrate instance stays open: closing it closes the connection.
func RunMigrations(db *sql.DB) error {
	m, err := newMigrate(db)
	if err != nil {
		return err
	}

	if err := m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			return nil
		}
		return fmt.Errorf("migration failed: %w", err)
	}
	return nil
}

// RollbackMigration rolls back the most recent migration.
func RollbackMigration(db *sql.DB) error {
	m, err := newMigrate(db)
	if err != nil {
		return err
	}

	if _, _, err := m.Version(); errors.Is(err, migrate.ErrNilVersion) {
		return fmt.Errorf("no migrations to rollback")
	}

	if err := m.Steps(-1); err != nil {
		return fmt.Errorf("rollback failed: %w", err)
	}
	return nil
}

// MigrationVersion reports the applied schema version and the latest version embedded in the binary.
func MigrationVersion(db *sql.DB) (current, latest uint, err error) {
	m, err := newMigrate(db)
	if err != nil {
		return 0, 0, err
	}

	latest, err = latestVersion()
	if err != nil {
		return 0, 0, err
	}

	current, dirty, err := m.Version()
	if err != nil {
		if errors.Is(err, migrate.ErrNilVersion) {
			return 0, latest, nil
		}
		return 0, 0, fmt.Errorf("failed to get database version: %w", err)
	}
	if dirty {
		return current, latest, fmt.Errorf("database is in dirty state at version %d", current)
	}
	return current, latest, nil
}

// CheckMigrationStatus returns nil when the database schema is at the latest embedded version.
func CheckMigrationStatus(db *sql.DB) error {
	current, latest, err := MigrationVersion(db)
	if err != nil {
		return err
	}

	switch {
	case current == 0:
		return fmt.Errorf("database has no schema version (run `spotlabel setup database`)")
	case current < latest:
		return fmt.Errorf("database is at version %d but latest is %d", current, latest)
	case current > latest:
		return fmt.Errorf("database version %d is ahead of binary version %d", current, latest)
	}
	return nil
}

func newMigrate(db *sql.DB) (*migrate.Migrate, error) {
	sourceDriver, err := iofs.New(migrationFiles, "migrations")
	if err != nil {
		return nil, fmt.Errorf("failed to create source driver: %w", err)
	}

	dbDriver, err := sqlite3.WithInstance(db, &sqlite3.Config{})
	if err != nil {
		sourceDriver.Close()
		return nil, fmt.Errorf("failed to create database driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite3", dbDriver)
	if err != nil {
		sourceDriver.Close()
		return nil, fmt.Errorf("failed to create migrate instance: %w", err)
	}
	return m, nil
}

func latestVersion() (uint, error) {
	src, err := iofs.New(migrationFiles, "migrations")
	if err != nil {
		return 0, fmt.Errorf("failed to read migration files: %w", err)
	}
	defer src.Close()
	return lastVersion(src)
}

func lastVersion(src source.Driver) (uint, error) {
	version, err := src.First()
	if err != nil {
		return 0, err
	}

	for {
		next, err := src.Next(version)
		if err != nil {
			return version, nil
		}
		version = next
	}
}
