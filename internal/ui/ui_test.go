package ui

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/gdamore/tcell/v2"

	"github.com/hlop3z/pgphase/internal/alerr"
	"github.com/hlop3z/pgphase/internal/changeset"
	"github.com/hlop3z/pgphase/internal/migrator"
	"github.com/hlop3z/pgphase/internal/rename"
)

func TestMain(m *testing.M) {
	SetColors(false)
	m.Run()
}

func candidate() rename.Candidate {
	return rename.Candidate{
		Kind:   rename.KindColumn,
		Schema: "public",
		Table:  "users",
		Added:  "mail",
		Removed: []rename.Scored{
			{Name: "email", Score: 0.9},
			{Name: "legacy_mail", Score: 0.4},
		},
	}
}

func TestStylesPlain(t *testing.T) {
	for _, f := range []func(string) string{Error, Warning, Note, Help, Success, Primary, Dim, Bold} {
		if got := f("text"); got != "text" {
			t.Errorf("styled text without colors = %q", got)
		}
	}
	if got := Badge("APPLIED", colorSuccess); got != "[APPLIED]" {
		t.Errorf("Badge() = %q", got)
	}
}

func TestTable(t *testing.T) {
	tb := NewTable("NAME", "STATUS")
	tb.AddRow("20240101000000-001-expand-users", "applied")
	tb.AddRow("short")

	lines := strings.Split(strings.TrimRight(tb.String(), "\n"), "\n")
	if len(lines) != 4 {
		t.Fatalf("table lines = %d, want 4:\n%s", len(lines), tb.String())
	}
	if !strings.HasPrefix(lines[0], "NAME"+strings.Repeat(" ", len("20240101000000-001-expand-users")-len("NAME"))+"  STATUS") {
		t.Errorf("header not aligned: %q", lines[0])
	}
	if strings.HasSuffix(lines[3], " ") {
		t.Errorf("trailing padding on last cell: %q", lines[3])
	}
}

func TestFormatError(t *testing.T) {
	err := alerr.Wrap(alerr.ErrSQLExecution, errors.New("relation \"users\" does not exist"), "failed to execute statement").
		WithTable("public", "users").
		WithSQL("ALTER TABLE users ADD COLUMN bio text").
		WithHelp("check the schema")

	got := FormatError(err)
	for _, want := range []string{
		"error[E4001]: failed to execute statement",
		"| table: public.users",
		"| ALTER TABLE users ADD COLUMN bio text",
		"cause: relation \"users\" does not exist",
		"help: check the schema",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("FormatError() missing %q:\n%s", want, got)
		}
	}
	if strings.Contains(got, "helps:") {
		t.Errorf("helps leaked into the detail block:\n%s", got)
	}

	if got := FormatError(errors.New("boom")); got != "error: boom\n" {
		t.Errorf("FormatError(plain) = %q", got)
	}
	if FormatError(nil) != "" {
		t.Error("FormatError(nil) should be empty")
	}
}

func TestFormatPlan(t *testing.T) {
	if got := FormatPlan(nil, false); !strings.Contains(got, "up to date") {
		t.Errorf("FormatPlan(nil) = %q", got)
	}

	cs := []changeset.Changeset{
		{Type: changeset.TypeCreateColumn, Phase: changeset.Expand, SchemaName: "public", TableName: "users",
			Up: []string{`ALTER TABLE "users" ADD COLUMN "bio" text`}},
		{Type: changeset.TypeCreateIndex, Phase: changeset.Expand, SchemaName: "public", TableName: "users",
			NonTransactional: true, Up: []string{`CREATE INDEX CONCURRENTLY ...`}},
		{Type: changeset.TypeDropColumn, Phase: changeset.Contract, SchemaName: "public", TableName: "users",
			Up:       []string{`ALTER TABLE "users" DROP COLUMN "legacy"`},
			Warnings: []changeset.Warning{{Kind: changeset.Destructive, Schema: "public", Table: "users", Column: "legacy", Message: "column is dropped", RowCount: 12}}},
	}
	got := FormatPlan(cs, true)
	for _, want := range []string{
		"public · expand (transaction)",
		"public · expand (no transaction)",
		"public · contract (transaction)",
		"+ createColumn users",
		"- dropColumn users",
		`ADD COLUMN "bio" text`,
		"warning: destructive: column is dropped (users.legacy), 12 rows",
		"3 changesets in 3 groups",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("FormatPlan() missing %q:\n%s", want, got)
		}
	}
	if strings.Contains(FormatPlan(cs, false), "ADD COLUMN") {
		t.Error("FormatPlan() without sql printed statements")
	}
}

func TestFormatStatus(t *testing.T) {
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	got := FormatStatus([]migrator.State{
		{Name: "20240501120000-001-expand-users", Phase: changeset.Expand, Applied: true, ExecutedAt: at},
		{Name: "20240501120000-002-contract-users", Phase: changeset.Contract},
		{Name: "20240401000000-001-expand-gone", Applied: true, ExecutedAt: at, Missing: true},
	})
	for _, want := range []string{"[APPLIED]", "[PENDING]", "[MISSING]", "2024-05-01 12:00:00", "contract", "2 applied, 1 pending"} {
		if !strings.Contains(got, want) {
			t.Errorf("FormatStatus() missing %q:\n%s", want, got)
		}
	}
	if !strings.Contains(FormatStatus(nil), "No migrations") {
		t.Error("FormatStatus(nil) should say there are no migrations")
	}
}

func TestFormatRenames(t *testing.T) {
	got := FormatRenames(map[string]rename.Renames{
		"billing": {Tables: []rename.Rename{{From: "bills", To: "invoices"}}},
		"public":  {Columns: map[string][]rename.Rename{"users": {{From: "email", To: "mail"}}}},
	})
	want := "  rename table billing.bills -> invoices\n  rename column users.email -> mail\n"
	if got != want {
		t.Errorf("FormatRenames() =\n%s\nwant\n%s", got, want)
	}
}

func TestLineResolver(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"default is best match", "\n", "email"},
		{"second option", "2\n", "legacy_mail"},
		{"create", "3\n", ""},
		{"retry after bad input", "x\n9\n1\n", "email"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			r := NewLineResolver(strings.NewReader(tt.input), &out)
			d, err := r.Resolve(context.Background(), candidate())
			if err != nil {
				t.Fatalf("Resolve() error = %v", err)
			}
			if d.From != tt.want {
				t.Errorf("From = %q, want %q", d.From, tt.want)
			}
			if !strings.Contains(out.String(), "Is column users.mail new or renamed?") {
				t.Errorf("question missing:\n%s", out.String())
			}
		})
	}

	r := NewLineResolver(strings.NewReader(""), &bytes.Buffer{})
	_, err := r.Resolve(context.Background(), candidate())
	if !alerr.Is(err, alerr.ErrRenameUnresolved) {
		t.Errorf("Resolve() at EOF error = %v", err)
	}
}

func TestPicker(t *testing.T) {
	screen := tcell.NewSimulationScreen("UTF-8")
	screen.SetSize(80, 24)

	type result struct {
		d   rename.Decision
		err error
	}
	done := make(chan result, 1)
	go func() {
		d, err := Picker{Screen: screen}.Resolve(context.Background(), candidate())
		done <- result{d, err}
	}()
	go func() {
		time.Sleep(200 * time.Millisecond)
		screen.InjectKey(tcell.KeyRune, '2', tcell.ModNone)
	}()

	select {
	case r := <-done:
		if r.err != nil {
			t.Fatalf("Resolve() error = %v", r.err)
		}
		if r.d.From != "legacy_mail" {
			t.Errorf("From = %q, want legacy_mail", r.d.From)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("picker did not return")
	}
}

func TestDetail(t *testing.T) {
	got := Detail(changeset.Changeset{
		Type:             changeset.TypeCreateIndex,
		Phase:            changeset.Expand,
		Priority:         9,
		NonTransactional: true,
		Up:               []string{"CREATE INDEX CONCURRENTLY a"},
		Down:             []string{"DROP INDEX CONCURRENTLY a"},
	})
	for _, want := range []string{"createIndex  phase=expand priority=9 (no transaction)", "CREATE INDEX CONCURRENTLY a;", "-- down\nDROP INDEX CONCURRENTLY a;"} {
		if !strings.Contains(got, want) {
			t.Errorf("Detail() missing %q:\n%s", want, got)
		}
	}
}
