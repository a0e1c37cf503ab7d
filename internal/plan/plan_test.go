package plan

import (
	"context"
	"regexp"
	"slices"
	"strings"
	"testing"

	"github.com/hlop3z/pgphase/internal/alerr"
	"github.com/hlop3z/pgphase/internal/changeset"
	"github.com/hlop3z/pgphase/internal/compile"
	"github.com/hlop3z/pgphase/internal/rename"
	"github.com/hlop3z/pgphase/internal/snapshot"
	"github.com/hlop3z/pgphase/internal/testutil"
	"github.com/hlop3z/pgphase/pkg/schema"
)

// static serves fixed snapshots.
type static struct {
	schemas []string
	snaps   map[string]*snapshot.Snapshot
}

func (s static) ManagedSchemas(context.Context) ([]string, error) {
	return s.schemas, nil
}

func (s static) Introspect(_ context.Context, name string) (*snapshot.Snapshot, error) {
	if snap, ok := s.snaps[name]; ok {
		return snap, nil
	}
	return snapshot.New(name), nil
}

func project(cols ...*schema.Column) *schema.Project {
	if len(cols) == 0 {
		cols = []*schema.Column{
			{Name: "id", Type: "bigint", NotNull: true},
			{Name: "email", Type: "text"},
		}
	}
	return &schema.Project{Schemas: []*schema.Schema{{
		Name: "public",
		Tables: []*schema.Table{{
			Name:       "users",
			Columns:    cols,
			PrimaryKey: []string{"id"},
		}},
	}}}
}

// deployed returns an inspector whose database already holds p.
func deployed(t *testing.T, p *schema.Project) static {
	t.Helper()
	insp := static{snaps: map[string]*snapshot.Snapshot{"": compile.Extensions(p)}}
	for _, s := range p.Schemas {
		snap, err := compile.Compile(s, compile.Options{})
		if err != nil {
			t.Fatalf("Compile(%s) error = %v", s.Name, err)
		}
		insp.schemas = append(insp.schemas, s.Name)
		insp.snaps[s.Name] = snap
	}
	return insp
}

func types(p *Plan) []changeset.Type {
	out := make([]changeset.Type, len(p.Changesets))
	for i, c := range p.Changesets {
		out[i] = c.Type
	}
	return out
}

func TestBuild_UpToDate(t *testing.T) {
	p, err := Build(context.Background(), deployed(t, project()), project(), Options{})
	testutil.AssertNoError(t, err)
	if !p.IsEmpty() {
		t.Errorf("Build() = %v, want no changes", types(p))
	}
	if len(p.Remote) != 2 || len(p.Local) != 2 {
		t.Errorf("snapshots: remote %d, local %d", len(p.Remote), len(p.Local))
	}
}

func TestBuild_EmptyDatabase(t *testing.T) {
	p, err := Build(context.Background(), static{}, project(), Options{})
	testutil.AssertNoError(t, err)

	got := types(p)
	if len(got) == 0 || got[0] != changeset.TypeCreateSchema {
		t.Fatalf("Build() = %v, want createSchema first", got)
	}
	if !slices.Contains(got, changeset.TypeCreateTable) {
		t.Errorf("Build() = %v, want createTable", got)
	}
}

func TestBuild_AddColumn(t *testing.T) {
	current := project()
	wanted := project(
		&schema.Column{Name: "id", Type: "bigint", NotNull: true},
		&schema.Column{Name: "email", Type: "text"},
		&schema.Column{Name: "bio", Type: "text"},
	)

	p, err := Build(context.Background(), deployed(t, current), wanted, Options{})
	testutil.AssertNoError(t, err)

	if got := types(p); !slices.Equal(got, []changeset.Type{changeset.TypeCreateColumn}) {
		t.Fatalf("Build() = %v", got)
	}
	if down := p.Down(); len(down) != 1 || len(down[0].Down) == 0 {
		t.Errorf("Down() = %+v", down)
	}
	if groups := p.Groups(); len(groups) != 1 {
		t.Errorf("Groups() = %d, want 1", len(groups))
	}
}

func TestBuild_RenameColumn(t *testing.T) {
	current := project()
	wanted := project(
		&schema.Column{Name: "id", Type: "bigint", NotNull: true},
		&schema.Column{Name: "mail", Type: "text"},
	)
	insp := deployed(t, current)

	_, err := Build(context.Background(), insp, wanted, Options{})
	testutil.AssertError(t, err, alerr.ErrRenameUnresolved)

	p, err := Build(context.Background(), insp, wanted, Options{
		Resolver: rename.Static{Columns: map[string]map[string]string{"users": {"mail": "email"}}},
	})
	testutil.AssertNoError(t, err)
	if got := types(p); !slices.Equal(got, []changeset.Type{changeset.TypeRenameColumn}) {
		t.Fatalf("Build() = %v, want a single rename", got)
	}
	if from, ok := p.Renames["public"].ColumnFrom("users", "mail"); !ok || from != "email" {
		t.Errorf("Renames = %+v", p.Renames)
	}

	p, err = Build(context.Background(), insp, wanted, Options{Resolver: rename.CreateAll{}})
	testutil.AssertNoError(t, err)
	got := types(p)
	if !slices.Contains(got, changeset.TypeCreateColumn) || !slices.Contains(got, changeset.TypeDropColumn) {
		t.Errorf("Build() with CreateAll = %v", got)
	}
}

var (
	renameColumnStmt     = regexp.MustCompile(`^ALTER TABLE "(\w+)" RENAME COLUMN "(\w+)" TO "(\w+)"$`)
	renameConstraintStmt = regexp.MustCompile(`^ALTER TABLE "(\w+)" RENAME CONSTRAINT "(\w+)" TO "(\w+)"$`)
	renameIndexStmt      = regexp.MustCompile(`^ALTER INDEX "(\w+)" RENAME TO "(\w+)"$`)
	commentIndexStmt     = regexp.MustCompile(`^COMMENT ON INDEX "(\w+)" IS '(\w+)'$`)
)

// applyRenames plays rename statements against snap the way Postgres would
// and the way the next introspection would read it back: definitions follow
// the new column names, index hashes come from comments.
func applyRenames(t *testing.T, snap *snapshot.Snapshot, stmts []string) {
	t.Helper()
	for _, stmt := range stmts {
		switch {
		case renameColumnStmt.MatchString(stmt):
			m := renameColumnStmt.FindStringSubmatch(stmt)
			table, from, to := m[1], m[2], m[3]
			old := snap.Tables[table]
			renamed := snapshot.NewTable(table)
			for _, c := range old.OrderedColumns() {
				if c.Name == from {
					c.Name = to
				}
				renamed.AddColumn(c)
			}
			snap.Tables[table] = renamed
			for _, cat := range snap.Categories() {
				for name, def := range cat.Objects[table] {
					def.SQL = strings.ReplaceAll(def.SQL, `"`+from+`"`, `"`+to+`"`)
					cat.Objects[table][name] = def
				}
			}
		case renameConstraintStmt.MatchString(stmt):
			m := renameConstraintStmt.FindStringSubmatch(stmt)
			moved := false
			for _, cat := range snap.Categories() {
				if def, ok := cat.Objects.Get(m[1], m[2]); ok {
					delete(cat.Objects[m[1]], m[2])
					cat.Objects.Put(m[1], m[3], def)
					moved = true
				}
			}
			if !moved {
				t.Fatalf("%s: no such constraint", stmt)
			}
		case renameIndexStmt.MatchString(stmt):
			m := renameIndexStmt.FindStringSubmatch(stmt)
			table, def := findIndex(t, snap, m[1])
			delete(snap.Indexes[table], m[1])
			def.SQL = strings.Replace(def.SQL, `"`+m[1]+`"`, `"`+m[2]+`"`, 1)
			snap.Indexes.Put(table, m[2], def)
		case commentIndexStmt.MatchString(stmt):
			m := commentIndexStmt.FindStringSubmatch(stmt)
			table, def := findIndex(t, snap, m[1])
			def.Hash = m[2]
			snap.Indexes.Put(table, m[1], def)
		default:
			t.Fatalf("unexpected statement %q", stmt)
		}
	}
}

func findIndex(t *testing.T, snap *snapshot.Snapshot, name string) (string, snapshot.Definition) {
	t.Helper()
	for table, objs := range snap.Indexes {
		if def, ok := objs[name]; ok {
			return table, def
		}
	}
	t.Fatalf("no index %q", name)
	return "", snapshot.Definition{}
}

func TestBuild_RenameColumnRenamesDerivedObjects(t *testing.T) {
	indexed := func(column string) *schema.Project {
		p := project(
			&schema.Column{Name: "id", Type: "bigint", NotNull: true},
			&schema.Column{Name: column, Type: "text"},
		)
		users := p.Schemas[0].Tables[0]
		users.Unique = []schema.Unique{{Columns: []string{column}}}
		users.Indexes = []schema.Index{{Columns: []string{"id", column}}}
		return p
	}
	insp := deployed(t, indexed("email"))
	wanted := indexed("mail")

	p, err := Build(context.Background(), insp, wanted, Options{
		Resolver: rename.Static{Columns: map[string]map[string]string{"users": {"mail": "email"}}},
	})
	testutil.AssertNoError(t, err)
	if got := types(p); !slices.Equal(got, []changeset.Type{changeset.TypeRenameColumn}) {
		t.Fatalf("Build() = %v, want a single rename", got)
	}
	up := p.Changesets[0].Up
	for _, want := range []string{
		`ALTER TABLE "users" RENAME CONSTRAINT "users_email_key" TO "users_mail_key"`,
		`ALTER INDEX "users_id_email_idx" RENAME TO "users_id_mail_idx"`,
	} {
		if !slices.Contains(up, want) {
			t.Errorf("up = %q, missing %q", up, want)
		}
	}

	// Planning again against the renamed database finds nothing to do.
	applyRenames(t, insp.snaps["public"], up)
	again, err := Build(context.Background(), insp, wanted, Options{})
	testutil.AssertNoError(t, err)
	if !again.IsEmpty() {
		t.Errorf("Build() after rename = %v, want no changes", types(again))
		for _, c := range again.Changesets {
			t.Logf("%s: %q", c.Type, c.Up)
		}
	}

	// Down restores the original names and hashes.
	applyRenames(t, insp.snaps["public"], p.Changesets[0].Down)
	back, err := Build(context.Background(), insp, indexed("email"), Options{})
	testutil.AssertNoError(t, err)
	if !back.IsEmpty() {
		t.Errorf("Build() after down = %v, want no changes", types(back))
	}
}

func TestBuild_CrossSchemaForeignKeyFollowsTableRename(t *testing.T) {
	shop := func(users string) *schema.Project {
		return &schema.Project{Schemas: []*schema.Schema{
			{Name: "public", Tables: []*schema.Table{{
				Name:       users,
				Columns:    []*schema.Column{{Name: "id", Type: "bigint", NotNull: true}},
				PrimaryKey: []string{"id"},
			}}},
			{Name: "billing", Tables: []*schema.Table{{
				Name:    "invoices",
				Columns: []*schema.Column{{Name: "id", Type: "bigint"}, {Name: "user_id", Type: "bigint"}},
				ForeignKeys: []schema.ForeignKey{{
					Columns:    []string{"user_id"},
					References: schema.Reference{Schema: "public", Table: users, Columns: []string{"id"}},
				}},
			}}},
		}}
	}

	p, err := Build(context.Background(), deployed(t, shop("accounts")), shop("users"), Options{
		Resolver: rename.Static{Tables: map[string]string{"users": "accounts"}},
	})
	testutil.AssertNoError(t, err)
	if got := types(p); !slices.Equal(got, []changeset.Type{changeset.TypeRenameTable}) {
		t.Errorf("Build() = %v, want a single table rename", got)
	}
	if _, ok := p.Renames["billing"]; ok {
		t.Errorf("Renames = %+v, billing renamed nothing", p.Renames)
	}
}

func TestBuild_DropSchema(t *testing.T) {
	insp := deployed(t, project())
	insp.schemas = append(insp.schemas, "legacy")
	legacy := snapshot.New("legacy")
	legacy.Tables["old"] = snapshot.NewTable("old")
	insp.snaps["legacy"] = legacy

	p, err := Build(context.Background(), insp, project(), Options{})
	testutil.AssertNoError(t, err)
	if got := types(p); !slices.Equal(got, []changeset.Type{changeset.TypeDropSchema}) {
		t.Fatalf("Build() = %v, want a single dropSchema", got)
	}
	if p.Changesets[0].Phase != changeset.Contract {
		t.Errorf("dropSchema phase = %s", p.Changesets[0].Phase)
	}
	if w := p.Warnings(); len(w) == 0 || w[0].Kind != changeset.Destructive {
		t.Errorf("Warnings() = %+v", w)
	}
}

func TestBuild_InvalidProject(t *testing.T) {
	bad := project(&schema.Column{Name: "id", Type: "no_such_type"})
	_, err := Build(context.Background(), static{}, bad, Options{})
	if err == nil {
		t.Fatal("Build() accepted an invalid project")
	}
}

func TestBuild_Deterministic(t *testing.T) {
	p := &schema.Project{
		Extensions: []string{"pgcrypto"},
		Schemas: []*schema.Schema{
			{Name: "billing", Tables: []*schema.Table{{
				Name:    "invoices",
				Columns: []*schema.Column{{Name: "id", Type: "bigint"}, {Name: "user_id", Type: "bigint"}},
				ForeignKeys: []schema.ForeignKey{{
					Columns:    []string{"user_id"},
					References: schema.Reference{Schema: "public", Table: "users", Columns: []string{"id"}},
				}},
			}}},
			project().Schemas[0],
		},
	}

	first, err := Build(context.Background(), static{}, p, Options{})
	testutil.AssertNoError(t, err)
	if !slices.Equal(first.SchemaOrder, []string{"public", "billing"}) {
		t.Errorf("SchemaOrder = %v", first.SchemaOrder)
	}
	for i := 0; i < 5; i++ {
		again, err := Build(context.Background(), static{}, p, Options{})
		testutil.AssertNoError(t, err)
		if !slices.EqualFunc(first.Changesets, again.Changesets, func(a, b changeset.Changeset) bool {
			return slices.Equal(a.Up, b.Up) && slices.Equal(a.Down, b.Down)
		}) {
			t.Fatalf("run %d produced a different plan", i)
		}
	}
}
