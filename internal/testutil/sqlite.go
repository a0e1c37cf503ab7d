package testutil

import (
	"database/sql"
	"fmt"
	"testing"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// SetupSQLite opens a private in-memory SQLite database. It is limited to a
// single connection so every query sees the same memory database.
// The connection is closed when the test completes.
func SetupSQLite(t *testing.T) *sql.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		t.Fatalf("failed to open sqlite connection: %v", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		t.Fatalf("failed to ping sqlite: %v", err)
	}

	t.Cleanup(func() {
		db.Close()
	})
	return db
}

// CountRows returns the number of rows in table.
func CountRows(t *testing.T, db *sql.DB, table string) int {
	t.Helper()

	var n int
	if err := db.QueryRow("SELECT COUNT(*) FROM " + table).Scan(&n); err != nil {
		t.Fatalf("failed to count rows of %s: %v", table, err)
	}
	return n
}
