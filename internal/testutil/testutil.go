package testutil

import (
	"context"
	"database/sql"
	"testing"

	"github.com/iliyamo/drone-fleet-maintenance/internal/database"
)

// OpenInMemoryDB opens an in-memory SQLite database and applies migrations.
// The name isolates databases between tests; the DB is closed on cleanup.
func OpenInMemoryDB(t *testing.T, name string) *sql.DB {
	t.Helper()
	// shared cache keeps one database across pool connections
	d, err := database.Open(database.DriverSQLite, "file:"+name+"?mode=memory&cache=shared")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { _ = d.Close() })
	if _, err := database.Migrate(context.Background(), d, database.DriverSQLite); err != nil {
		t.Fatalf("migrate test db: %v", err)
	}
	return d
}
