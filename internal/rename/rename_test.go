package rename

import (
	"context"
	"math"
	"testing"

	"github.com/hlop3z/pgphase/internal/alerr"
	"github.com/hlop3z/pgphase/internal/snapshot"
)

func table(name string, cols ...string) *snapshot.TableInfo {
	t := snapshot.NewTable(name)
	for _, c := range cols {
		t.AddColumn(&snapshot.ColumnInfo{Name: c, DataType: "text", Nullable: true})
	}
	return t
}

func snap(tables ...*snapshot.TableInfo) *snapshot.Snapshot {
	s := snapshot.New("public")
	for _, t := range tables {
		s.Tables[t.Name] = t
	}
	return s
}

func TestReconcile_ColumnRename(t *testing.T) {
	remote := snap(table("users", "a", "b"))
	local := snap(table("users", "b", "c"))

	r, err := Reconcile(context.Background(), remote, local, Static{
		Columns: map[string]map[string]string{"users": {"c": "a"}},
	})
	if err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}
	got := r.Columns["users"]
	if len(got) != 1 || got[0] != (Rename{From: "a", To: "c"}) {
		t.Fatalf("column renames = %+v", got)
	}
	if from, ok := r.ColumnFrom("users", "c"); !ok || from != "a" {
		t.Errorf("ColumnFrom = %q, %v", from, ok)
	}
	if to, ok := r.ColumnTo("users", "a"); !ok || to != "c" {
		t.Errorf("ColumnTo = %q, %v", to, ok)
	}
}

func TestReconcile_TableRenameThenColumns(t *testing.T) {
	remote := snap(table("posts", "id", "title"))
	local := snap(table("articles", "id", "headline"))

	r, err := Reconcile(context.Background(), remote, local, Static{
		Tables:  map[string]string{"articles": "posts"},
		Columns: map[string]map[string]string{"articles": {"headline": "title"}},
	})
	if err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}
	if from, ok := r.TableFrom("articles"); !ok || from != "posts" {
		t.Errorf("TableFrom = %q, %v", from, ok)
	}
	if to, ok := r.TableTo("posts"); !ok || to != "articles" {
		t.Errorf("TableTo = %q, %v", to, ok)
	}
	if _, ok := r.ColumnFrom("articles", "headline"); !ok {
		t.Error("column rename on a renamed table was not reconciled")
	}
}

func TestReconcile_CreateAll(t *testing.T) {
	remote := snap(table("users", "a"))
	local := snap(table("users", "c"))

	r, err := Reconcile(context.Background(), remote, local, CreateAll{})
	if err != nil {
		t.Fatal(err)
	}
	if !r.IsEmpty() {
		t.Errorf("expected no renames, got %+v", r)
	}
}

func TestReconcile_StrictFails(t *testing.T) {
	remote := snap(table("users", "a"))
	local := snap(table("users", "c"))

	_, err := Reconcile(context.Background(), remote, local, Strict{})
	if !alerr.Is(err, alerr.ErrRenameUnresolved) {
		t.Fatalf("err = %v, want %s", err, alerr.ErrRenameUnresolved)
	}
}

func TestReconcile_NoAmbiguityNoQuestions(t *testing.T) {
	remote := snap(table("users", "a", "b"))
	local := snap(table("users", "a", "b", "c"))

	asked := 0
	_, err := Reconcile(context.Background(), remote, local, ResolverFunc(func(context.Context, Candidate) (Decision, error) {
		asked++
		return Decision{}, nil
	}))
	if err != nil {
		t.Fatal(err)
	}
	if asked != 0 {
		t.Errorf("resolver asked %d times for a pure addition", asked)
	}
}

func TestReconcile_RemovedNameClaimedOnce(t *testing.T) {
	remote := snap(table("users", "a"))
	local := snap(table("users", "b", "c"))

	var seen []Candidate
	r, err := Reconcile(context.Background(), remote, local, ResolverFunc(func(_ context.Context, c Candidate) (Decision, error) {
		seen = append(seen, c)
		return Decision{From: "a"}, nil
	}))
	if err != nil {
		t.Fatal(err)
	}
	if len(seen) != 1 {
		t.Fatalf("resolver asked %d times, want 1 (pool empties after first claim)", len(seen))
	}
	if len(r.Columns["users"]) != 1 || r.Columns["users"][0].To != "b" {
		t.Errorf("renames = %+v", r.Columns)
	}
}

func TestReconcile_IgnoresUnknownDecision(t *testing.T) {
	remote := snap(table("users", "a"))
	local := snap(table("users", "c"))

	r, err := Reconcile(context.Background(), remote, local, ResolverFunc(func(context.Context, Candidate) (Decision, error) {
		return Decision{From: "zzz"}, nil
	}))
	if err != nil {
		t.Fatal(err)
	}
	if !r.IsEmpty() {
		t.Errorf("decision naming a non-candidate must be ignored, got %+v", r)
	}
}

func TestReconcile_CandidatesRankedBySimilarity(t *testing.T) {
	remote := snap(table("users", "full_name", "zip"))
	local := snap(table("users", "fullname"))

	var got Candidate
	_, err := Reconcile(context.Background(), remote, local, ResolverFunc(func(_ context.Context, c Candidate) (Decision, error) {
		got = c
		return Decision{}, nil
	}))
	if err != nil {
		t.Fatal(err)
	}
	if len(got.Removed) != 2 || got.Removed[0].Name != "full_name" {
		t.Errorf("ranking = %+v", got.Removed)
	}
}

func TestAuto(t *testing.T) {
	c := Candidate{Added: "fullname", Removed: []Scored{{Name: "full_name", Score: 0.9}}}
	d, _ := Auto{}.Resolve(context.Background(), c)
	if d.From != "full_name" {
		t.Errorf("Auto picked %q", d.From)
	}

	c.Removed[0].Score = 0.3
	d, _ = Auto{}.Resolve(context.Background(), c)
	if d.From != "" {
		t.Errorf("Auto should not rename below threshold, got %q", d.From)
	}
}

func TestJaroWinkler(t *testing.T) {
	tests := []struct {
		a, b string
		want float64
	}{
		{"same", "same", 1.0},
		{"", "abc", 0.0},
		{"MARTHA", "MARHTA", 0.961},
		{"DIXON", "DICKSONX", 0.813},
	}
	for _, tt := range tests {
		got := JaroWinkler(tt.a, tt.b)
		if math.Abs(got-tt.want) > 0.001 {
			t.Errorf("JaroWinkler(%q, %q) = %.3f, want %.3f", tt.a, tt.b, got, tt.want)
		}
	}
}
