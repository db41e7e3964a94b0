package shared

import (
	"testing"
)

func TestMigrations(t *testing.T) {
	t.Run("RunMigrations And Rollback", func(t *testing.T) {
		db, err := NewDatabase(":memory:")
		if err != nil {
			t.Fatalf("failed to create database: %v", err)
		}
		defer db.Close()

		if err := CheckMigrationStatus(db); err == nil {
			t.Error("expected unmigrated database to report a status error")
		}

		if err := RunMigrations(db); err != nil {
			t.Fatalf("failed to run migrations: %v", err)
		}
		if err := RunMigrations(db); err != nil {
			t.Fatalf("expected second run to be a no-op, got %v", err)
		}

		if err := CheckMigrationStatus(db); err != nil {
			t.Errorf("expected migrated database to be current, got %v", err)
		}

		for _, table := range []string{"users", "albums", "artists", "tracks", "track_artists", "labels", "track_labels", "playlists"} {
			if _, err := db.Exec("SELECT 1 FROM " + table + " LIMIT 1"); err != nil {
				t.Errorf("%s table should exist after migrations: %v", table, err)
			}
		}

		if err := RollbackMigration(db); err != nil {
			t.Fatalf("failed to rollback migration: %v", err)
		}

		if _, err := db.Exec("SELECT 1 FROM users LIMIT 1"); err == nil {
			t.Error("users table should not exist after rollback")
		}
	})

	t.Run("Foreign Keys Enforced", func(t *testing.T) {
		db, err := NewDatabase(":memory:")
		if err != nil {
			t.Fatalf("failed to create database: %v", err)
		}
		defer db.Close()

		if err := RunMigrations(db); err != nil {
			t.Fatalf("failed to run migrations: %v", err)
		}

		_, err = db.Exec(`INSERT INTO tracks (id, user_id, spotify_id, name, album_id, favorited_at)
			VALUES ('t1', 'missing', 's1', 'Song', 'missing', CURRENT_TIMESTAMP)`)
		if err == nil {
			t.Error("expected foreign key violation inserting orphan track")
		}
	})

	t.Run("MigrationVersion", func(t *testing.T) {
		db, err := NewDatabase(":memory:")
		if err != nil {
			t.Fatalf("failed to create database: %v", err)
		}
		defer db.Close()

		current, latest, err := MigrationVersion(db)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if current != 0 || latest == 0 {
			t.Errorf("expected current=0 and latest>0, got %d/%d", current, latest)
		}
	})
}
