package drift

import (
	"slices"
	"strings"
	"testing"

	"github.com/hlop3z/pgphase/internal/snapshot"
)

func users() *snapshot.Snapshot {
	s := snapshot.New("public")
	t := snapshot.NewTable("users")
	t.AddColumn(&snapshot.ColumnInfo{Name: "id", DataType: "bigserial"})
	t.AddColumn(&snapshot.ColumnInfo{Name: "email", DataType: "text", Nullable: true})
	t.AddColumn(&snapshot.ColumnInfo{Name: "created_at", DataType: "timestamp with time zone", Default: snapshot.Hashed("now()", "now()")})
	s.Tables["users"] = t
	s.PrimaryKeys.Put("users", "users_pkey", snapshot.Definition{SQL: `PRIMARY KEY ("id")`})
	s.Indexes.Put("users", "users_email_idx", snapshot.Hashed("email", `CREATE INDEX ...`))
	s.Enums["role"] = []string{"user", "admin"}
	return s
}

func TestFingerprint_Empty(t *testing.T) {
	a, err := Fingerprint(snapshot.New("public"))
	if err != nil {
		t.Fatal(err)
	}
	b, err := Fingerprint(nil)
	if err != nil {
		t.Fatal(err)
	}
	if a.Root == "" || a.Root != b.Root {
		t.Errorf("empty roots = %q, %q", a.Root, b.Root)
	}
}

func TestFingerprint_Deterministic(t *testing.T) {
	a, err := Fingerprint(users())
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 10; i++ {
		b, err := Fingerprint(users())
		if err != nil {
			t.Fatal(err)
		}
		if a.Root != b.Root {
			t.Fatalf("run %d root = %s, want %s", i, b.Root, a.Root)
		}
	}
	if len(a.Tables["users"].Objects) != 5 {
		t.Errorf("users objects = %v", a.Tables["users"].Objects)
	}
}

func TestFingerprint_Changes(t *testing.T) {
	base, err := Fingerprint(users())
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name   string
		mutate func(*snapshot.Snapshot)
	}{
		{"column type", func(s *snapshot.Snapshot) { s.Tables["users"].Columns["email"].DataType = "varchar(255)" }},
		{"nullability", func(s *snapshot.Snapshot) { s.Tables["users"].Columns["email"].Nullable = false }},
		{"default hash", func(s *snapshot.Snapshot) {
			s.Tables["users"].Columns["created_at"].Default = snapshot.Hashed("clock_timestamp()", "clock_timestamp()")
		}},
		{"new column", func(s *snapshot.Snapshot) {
			s.Tables["users"].AddColumn(&snapshot.ColumnInfo{Name: "name", DataType: "text"})
		}},
		{"index", func(s *snapshot.Snapshot) {
			s.Indexes.Put("users", "users_email_idx", snapshot.Hashed("lower(email)", ""))
		}},
		{"enum value", func(s *snapshot.Snapshot) { s.Enums["role"] = append(s.Enums["role"], "owner") }},
		{"extension", func(s *snapshot.Snapshot) { s.Extensions["pgcrypto"] = true }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := users()
			tt.mutate(s)
			got, err := Fingerprint(s)
			if err != nil {
				t.Fatal(err)
			}
			if got.Root == base.Root {
				t.Error("root did not change")
			}
		})
	}
}

func TestFingerprint_IgnoresCatalogText(t *testing.T) {
	a, _ := Fingerprint(users())

	s := users()
	// The catalog spells hashed objects differently; the hash decides.
	s.Indexes.Put("users", "users_email_idx", snapshot.Definition{Hash: snapshot.Hash("email"), SQL: "CREATE INDEX users_email_idx ON public.users USING btree (email)"})
	s.Tables["users"].Columns["email"].VolatileDefault = snapshot.VolatilityUnknown
	b, _ := Fingerprint(s)

	if a.Root != b.Root {
		t.Error("equal definitions must fingerprint equally")
	}
}

func TestCompare(t *testing.T) {
	expected := users()
	actual := users()
	actual.Tables["users"].Columns["email"].DataType = "varchar(255)"
	delete(actual.Tables["users"].Columns, "created_at")
	actual.Tables["legacy"] = snapshot.NewTable("legacy")
	expected.Tables["orders"] = snapshot.NewTable("orders")
	delete(actual.Enums, "role")

	e, _ := Fingerprint(expected)
	a, _ := Fingerprint(actual)
	c := Compare(e, a)

	if c.Match {
		t.Fatal("Compare() reported a match")
	}
	if !slices.Equal(c.MissingTables, []string{"orders"}) || !slices.Equal(c.ExtraTables, []string{"legacy"}) {
		t.Errorf("tables: missing %v, extra %v", c.MissingTables, c.ExtraTables)
	}
	if len(c.Tables) != 1 {
		t.Fatalf("modified tables = %d, want 1", len(c.Tables))
	}
	td := c.Tables[0]
	if !slices.Equal(td.Missing, []string{"column:created_at"}) || !slices.Equal(td.Modified, []string{"column:email"}) {
		t.Errorf("table diff = %+v", td)
	}
	if !slices.Equal(c.MissingTypes, []string{"enum:role"}) {
		t.Errorf("missing types = %v", c.MissingTypes)
	}
}

func TestDetect(t *testing.T) {
	stats := snapshot.New("stats")
	stats.Tables["hits"] = snapshot.NewTable("hits")

	res, err := Detect([]*snapshot.Snapshot{users(), stats}, []*snapshot.Snapshot{users()})
	if err != nil {
		t.Fatal(err)
	}
	if !res.HasDrift || len(res.Comparisons) != 2 {
		t.Fatalf("Detect() = %+v", res)
	}
	if !res.Comparisons[0].Match || res.Comparisons[1].Schema != "stats" {
		t.Errorf("comparisons = %+v, %+v", res.Comparisons[0], res.Comparisons[1])
	}

	out := Format(res)
	if !strings.Contains(out, "stats") || !strings.Contains(out, "- hits") {
		t.Errorf("Format() =\n%s", out)
	}

	clean, err := Detect([]*snapshot.Snapshot{users()}, []*snapshot.Snapshot{users()})
	if err != nil {
		t.Fatal(err)
	}
	if clean.HasDrift || !strings.Contains(Format(clean), "matches") {
		t.Errorf("clean Detect() = %+v", clean)
	}
}
