package db

import (
	"path/filepath"
	"strings"
	"testing"
)

func TestNewDB_MigratesSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "results.db")
	database, err := NewDB(path)
	if err != nil {
		t.Fatalf("NewDB: %v", err)
	}
	defer database.Close()

	for _, table := range []string{"flow_runs", "flow_reports"} {
		var count int
		err := database.QueryRow(`
			SELECT COUNT(*) FROM sqlite_master
			WHERE type='table' AND name=?`, table).Scan(&count)
		if err != nil {
			t.Fatalf("checking table %s: %v", table, err)
		}
		if count != 1 {
			t.Errorf("table %s missing after migration", table)
		}
	}

	version, dirty, err := database.MigrateVersion()
	if err != nil {
		t.Fatalf("MigrateVersion: %v", err)
	}
	if version != 1 || dirty {
		t.Errorf("version = %d dirty = %v, want 1 false", version, dirty)
	}
}

func TestNewDB_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "results.db")
	first, err := NewDB(path)
	if err != nil {
		t.Fatalf("NewDB: %v", err)
	}
	first.Close()

	// Reopening an already-migrated database must not fail.
	second, err := NewDB(path)
	if err != nil {
		t.Fatalf("NewDB reopen: %v", err)
	}
	second.Close()
}

func TestMigrateDown(t *testing.T) {
	path := filepath.Join(t.TempDir(), "results.db")
	database, err := NewDB(path)
	if err != nil {
		t.Fatalf("NewDB: %v", err)
	}
	defer database.Close()

	if err := database.MigrateDown(); err != nil {
		t.Fatalf("MigrateDown: %v", err)
	}
	var count int
	err = database.QueryRow(`
		SELECT COUNT(*) FROM sqlite_master
		WHERE type='table' AND name='flow_runs'`).Scan(&count)
	if err != nil {
		t.Fatalf("checking table: %v", err)
	}
	if count != 0 {
		t.Error("flow_runs still present after rollback")
	}
}

func TestPragmas(t *testing.T) {
	path := filepath.Join(t.TempDir(), "results.db")
	database, err := OpenDB(path)
	if err != nil {
		t.Fatalf("OpenDB: %v", err)
	}
	defer database.Close()

	var journalMode string
	if err := database.QueryRow("PRAGMA journal_mode").Scan(&journalMode); err != nil {
		t.Fatalf("PRAGMA journal_mode: %v", err)
	}
	if !strings.EqualFold(journalMode, "wal") {
		t.Errorf("journal_mode = %q, want wal", journalMode)
	}

	var fk int
	if err := database.QueryRow("PRAGMA foreign_keys").Scan(&fk); err != nil {
		t.Fatalf("PRAGMA foreign_keys: %v", err)
	}
	if fk != 1 {
		t.Errorf("foreign_keys = %d, want 1", fk)
	}
}

func TestMigrationFiles(t *testing.T) {
	files, err := MigrationFiles()
	if err != nil {
		t.Fatalf("MigrationFiles: %v", err)
	}
	if len(files) == 0 {
		t.Fatal("no embedded migration files")
	}
	for _, name := range files {
		if !strings.HasSuffix(name, ".up.sql") && !strings.HasSuffix(name, ".down.sql") {
			t.Errorf("unexpected migration file %s", name)
		}
	}
}
