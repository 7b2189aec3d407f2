package sqlite

import (
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/jykim94/SceneFlowZoo/internal/db"
)

// setupTestDB creates a migrated results database in a temp directory.
// Using the real migrations keeps these tests in sync with the schema.
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	path := filepath.Join(t.TempDir(), "test.db")
	database, err := db.NewDB(path)
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	return database.DB
}
