package push

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"

	"github.com/hlop3z/pgphase/internal/alerr"
	"github.com/hlop3z/pgphase/internal/changeset"
	"github.com/hlop3z/pgphase/internal/dblock"
	"github.com/hlop3z/pgphase/internal/testutil"
)

func cs(phase changeset.Phase, transactional bool, up ...string) changeset.Changeset {
	return changeset.Changeset{
		Type:             changeset.TypeCreateTable,
		Phase:            phase,
		SchemaName:       "public",
		Up:               up,
		NonTransactional: !transactional,
	}
}

func tableExists(t *testing.T, e *Executor, name string) bool {
	t.Helper()
	var n int
	err := e.db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?`, name).Scan(&n)
	if err != nil {
		t.Fatal(err)
	}
	return n > 0
}

func newExecutor(t *testing.T) *Executor {
	t.Helper()
	return NewExecutor(testutil.SetupSQLite(t), WithLocker(&dblock.Local{}))
}

func TestPush(t *testing.T) {
	e := newExecutor(t)
	err := e.Push(context.Background(), []changeset.Changeset{
		cs(changeset.Expand, true, `CREATE TABLE users (id INTEGER)`),
		cs(changeset.Expand, false, `CREATE INDEX users_id_idx ON users (id)`),
		cs(changeset.Alter, true, `ALTER TABLE users ADD COLUMN email TEXT`),
	})
	testutil.AssertNoError(t, err)
	if !tableExists(t, e, "users") {
		t.Error("users was not created")
	}
}

func TestPush_FailureRollsBackGroup(t *testing.T) {
	e := newExecutor(t)
	err := e.Push(context.Background(), []changeset.Changeset{
		cs(changeset.Expand, true, `CREATE TABLE a (id INTEGER)`),
		cs(changeset.Expand, true, `CREATE TABLE b (id INTEGER)`, `CREATE TABLE b (id INTEGER)`),
		cs(changeset.Alter, true, `CREATE TABLE c (id INTEGER)`),
	})
	testutil.AssertError(t, err, alerr.ErrSQLExecution)

	var ae *alerr.Error
	if !errors.As(err, &ae) {
		t.Fatalf("error %T is not *alerr.Error", err)
	}
	ctx := ae.GetContext()
	if ctx["sql"] != `CREATE TABLE b (id INTEGER)` || ctx["phase"] != "expand" {
		t.Errorf("error context = %v", ctx)
	}
	for _, name := range []string{"a", "b", "c"} {
		if tableExists(t, e, name) {
			t.Errorf("table %s must not exist", name)
		}
	}
}

func TestPush_NonTransactionalSplitsSegments(t *testing.T) {
	e := newExecutor(t)
	err := e.Push(context.Background(), []changeset.Changeset{
		cs(changeset.Expand, true, `CREATE TABLE a (id INTEGER)`),
		cs(changeset.Expand, false, `CREATE INDEX a_id_idx ON a (id)`),
		cs(changeset.Expand, true, `CREATE TABLE a (id INTEGER)`),
	})
	testutil.AssertError(t, err, alerr.ErrSQLExecution)

	// The first segment committed before the bare statement ran.
	if !tableExists(t, e, "a") {
		t.Error("first segment was rolled back")
	}
}

func TestPush_Empty(t *testing.T) {
	e := newExecutor(t)
	testutil.AssertNoError(t, e.Push(context.Background(), nil))
}

func TestPush_Cancelled(t *testing.T) {
	e := newExecutor(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := e.Push(ctx, []changeset.Changeset{cs(changeset.Expand, true, `CREATE TABLE a (id INTEGER)`)}); err == nil {
		t.Fatal("Push() with a cancelled context must fail")
	}
}

func TestDryRun(t *testing.T) {
	got := DryRun([]changeset.Changeset{
		cs(changeset.Expand, true, "s1", "s2"),
		cs(changeset.Expand, false, "i1"),
		{Phase: changeset.Expand, Up: []string{"e1"}},
	})
	want := []string{
		"-- expand public", "s1", "s2",
		"-- expand public (no transaction)", "i1",
		"-- expand", "e1",
	}
	if !slices.Equal(got, want) {
		t.Errorf("DryRun() = %q, want %q", got, want)
	}
}

func TestSQLState(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"lib/pq", &pq.Error{Code: "42P01"}, "42P01"},
		{"pgx", &pgconn.PgError{Code: "23505"}, "23505"},
		{"wrapped", fmt.Errorf("exec: %w", &pq.Error{Code: "55P03"}), "55P03"},
		{"other", fmt.Errorf("boom"), ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SQLState(tt.err); got != tt.want {
				t.Errorf("SQLState() = %q, want %q", got, tt.want)
			}
		})
	}
}
