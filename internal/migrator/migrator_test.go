package migrator

import (
	"context"
	"database/sql"
	"maps"
	"path/filepath"
	"slices"
	"testing"
	"time"

	"github.com/hlop3z/pgphase/internal/alerr"
	"github.com/hlop3z/pgphase/internal/changeset"
	"github.com/hlop3z/pgphase/internal/dblock"
	"github.com/hlop3z/pgphase/internal/lockfile"
	"github.com/hlop3z/pgphase/internal/migfile"
	"github.com/hlop3z/pgphase/internal/testutil"
)

func fixture() []migfile.Migration {
	return []migfile.Migration{
		{
			Name: "20260101000000-001-expand-users", Phase: changeset.Expand, Transaction: true,
			Up:   []string{`CREATE TABLE users (id INTEGER PRIMARY KEY)`},
			Down: []string{`DROP TABLE users`},
		},
		{
			Name: "20260101000000-002-expand-index", Phase: changeset.Expand,
			DependsOn: "20260101000000-001-expand-users",
			Up:        []string{`CREATE INDEX users_id_idx ON users (id)`},
			Down:      []string{`DROP INDEX users_id_idx`},
		},
		{
			Name: "20260101000000-003-contract-legacy", Phase: changeset.Contract, Transaction: true,
			DependsOn: "20260101000000-002-expand-index",
			Up:        []string{`CREATE TABLE legacy_gone (id INTEGER)`},
			Down:      []string{`DROP TABLE legacy_gone`},
		},
	}
}

func setup(t *testing.T, ms []migfile.Migration, opts ...Option) (*Migrator, *sql.DB, string) {
	t.Helper()
	db := testutil.SetupSQLite(t)
	dir := filepath.Join(t.TempDir(), "migrations")
	if _, err := migfile.Write(dir, ms); err != nil {
		t.Fatalf("migfile.Write: %v", err)
	}
	opts = append([]Option{WithSQLite(), WithLocker(&dblock.Local{})}, opts...)
	return New(db, dir, opts...), db, dir
}

func tableExists(t *testing.T, db *sql.DB, name string) bool {
	t.Helper()
	var n int
	if err := db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?`, name).Scan(&n); err != nil {
		t.Fatal(err)
	}
	return n > 0
}

func TestUp(t *testing.T) {
	ctx := context.Background()
	m, db, _ := setup(t, fixture())

	done, err := m.Up(ctx)
	testutil.AssertNoError(t, err)
	if len(done) != 3 {
		t.Fatalf("Up() applied %v, want 3 migrations", done)
	}
	if !tableExists(t, db, "users") || !tableExists(t, db, "legacy_gone") {
		t.Error("migrations did not run")
	}
	if n := testutil.CountRows(t, db, HistoryTable); n != 3 {
		t.Errorf("history has %d rows, want 3", n)
	}

	// A rerun must neither add history rows nor touch the recorded times.
	if _, err := db.Exec("UPDATE " + HistoryTable + " SET executed_at = '2020-01-01 00:00:00'"); err != nil {
		t.Fatal(err)
	}
	recorded := executedAt(t, db)

	again, err := m.Up(ctx)
	testutil.AssertNoError(t, err)
	if len(again) != 0 {
		t.Errorf("second Up() applied %v", again)
	}
	if n := testutil.CountRows(t, db, HistoryTable); n != 3 {
		t.Errorf("history has %d rows after rerun, want 3", n)
	}
	if got := executedAt(t, db); !maps.Equal(got, recorded) {
		t.Errorf("executed_at = %v, want %v", got, recorded)
	}
}

func executedAt(t *testing.T, db *sql.DB) map[string]string {
	t.Helper()
	rows, err := db.Query("SELECT name, executed_at FROM " + HistoryTable)
	if err != nil {
		t.Fatal(err)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var name, at string
		if err := rows.Scan(&name, &at); err != nil {
			t.Fatal(err)
		}
		out[name] = at
	}
	if err := rows.Err(); err != nil {
		t.Fatal(err)
	}
	return out
}

func TestUp_PhaseFilter(t *testing.T) {
	ctx := context.Background()
	m, db, _ := setup(t, fixture())

	done, err := m.Up(ctx, changeset.Expand)
	testutil.AssertNoError(t, err)
	if len(done) != 2 || tableExists(t, db, "legacy_gone") {
		t.Errorf("expand run applied %v", done)
	}

	pending, err := m.Pending(ctx)
	testutil.AssertNoError(t, err)
	if len(pending) != 1 || pending[0].Phase != changeset.Contract {
		t.Errorf("Pending() = %+v", pending)
	}
}

func TestUp_UnmetDependency(t *testing.T) {
	ctx := context.Background()
	m, db, _ := setup(t, fixture())

	_, err := m.Up(ctx, changeset.Contract)
	testutil.AssertError(t, err, alerr.ErrMigrationDependency)
	if tableExists(t, db, "legacy_gone") {
		t.Error("a refused run must not execute anything")
	}

	ms := fixture()[:1]
	ms[0].DependsOn = "20251231000000-001-expand-elsewhere"
	m2, _, _ := setup(t, ms)
	_, err = m2.Up(ctx)
	testutil.AssertError(t, err, alerr.ErrMigrationDependency)
}

func TestUp_FailureStopsRun(t *testing.T) {
	ctx := context.Background()
	ms := fixture()
	ms[1].Up = []string{`CREATE TABLE broken (`}
	ms[1].Transaction = true
	m, db, _ := setup(t, ms)

	done, err := m.Up(ctx)
	testutil.AssertError(t, err, alerr.ErrMigrationFailed)
	if !alerr.Is(err, alerr.ErrSQLExecution) {
		t.Errorf("cause must be the statement failure: %v", err)
	}
	if !slices.Equal(done, []string{ms[0].Name}) {
		t.Errorf("Up() applied %v before failing", done)
	}
	if n := testutil.CountRows(t, db, HistoryTable); n != 1 {
		t.Errorf("history has %d rows, want 1", n)
	}
	if tableExists(t, db, "legacy_gone") {
		t.Error("later migrations must not run after a failure")
	}
}

func TestUp_LockFile(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	lockPath := filepath.Join(root, lockfile.DefaultName)
	m, _, dir := setup(t, fixture(), WithLockFile(lockPath))
	if err := lockfile.Write(dir, lockPath); err != nil {
		t.Fatal(err)
	}

	testutil.WriteFile(t, filepath.Join(dir, fixture()[0].Filename()), `migration({up: ["CREATE TABLE other (id INTEGER)"]})`)
	_, err := m.Up(ctx)
	testutil.AssertError(t, err, alerr.ErrMigrationChecksum)
}

func TestDown(t *testing.T) {
	ctx := context.Background()
	m, db, _ := setup(t, fixture())
	if _, err := m.Up(ctx); err != nil {
		t.Fatal(err)
	}

	done, err := m.Down(ctx, 0)
	testutil.AssertNoError(t, err)
	if !slices.Equal(done, []string{"20260101000000-003-contract-legacy"}) {
		t.Errorf("Down(0) reverted %v", done)
	}
	if tableExists(t, db, "legacy_gone") {
		t.Error("down statements did not run")
	}

	done, err = m.Down(ctx, 5)
	testutil.AssertNoError(t, err)
	if len(done) != 2 || done[0] != "20260101000000-002-expand-index" {
		t.Errorf("Down(5) reverted %v", done)
	}
	if tableExists(t, db, "users") || testutil.CountRows(t, db, HistoryTable) != 0 {
		t.Error("everything must be reverted")
	}

	done, err = m.Down(ctx, 1)
	testutil.AssertNoError(t, err)
	if len(done) != 0 {
		t.Errorf("Down() on empty history reverted %v", done)
	}
}

func TestStatus(t *testing.T) {
	ctx := context.Background()
	m, db, _ := setup(t, fixture())
	if _, err := m.Up(ctx, changeset.Expand); err != nil {
		t.Fatal(err)
	}
	if _, err := db.Exec(`INSERT INTO pgphase_migrations (name) VALUES ('20250101000000-001-expand-old')`); err != nil {
		t.Fatal(err)
	}

	states, err := m.Status(ctx)
	testutil.AssertNoError(t, err)
	if len(states) != 4 {
		t.Fatalf("Status() = %d entries, want 4", len(states))
	}
	if !states[0].Missing || !states[0].Applied {
		t.Errorf("orphan row = %+v", states[0])
	}
	if !states[1].Applied || states[1].ExecutedAt.IsZero() {
		t.Errorf("applied file = %+v", states[1])
	}
	if states[3].Applied || states[3].Phase != changeset.Contract {
		t.Errorf("pending file = %+v", states[3])
	}
}

func TestParseExecutedAt(t *testing.T) {
	want := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	for _, v := range []any{want, "2026-01-02 03:04:05", []byte("2026-01-02T03:04:05Z")} {
		if got := parseExecutedAt(v); !got.Equal(want) {
			t.Errorf("parseExecutedAt(%v) = %v", v, got)
		}
	}
	if got := parseExecutedAt(nil); !got.IsZero() {
		t.Errorf("parseExecutedAt(nil) = %v", got)
	}
}
