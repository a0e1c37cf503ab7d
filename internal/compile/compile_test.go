package compile

import (
	"strings"
	"testing"

	"github.com/hlop3z/pgphase/internal/alerr"
	"github.com/hlop3z/pgphase/internal/rename"
	"github.com/hlop3z/pgphase/internal/snapshot"
	"github.com/hlop3z/pgphase/pkg/schema"
)

func usersSchema() *schema.Schema {
	return &schema.Schema{
		Name:  "public",
		Enums: []*schema.Enum{{Name: "role", Values: []string{"user", "admin"}}},
		Tables: []*schema.Table{
			{
				Name: "users",
				Columns: []*schema.Column{
					{Name: "id", Type: "int", Identity: schema.IdentityAlways},
					{Name: "email", Type: "varchar(255)", NotNull: true},
					{Name: "role", Type: "role", Default: schema.Literal("user")},
					{Name: "createdAt", Type: "timestamptz", Default: schema.SQL("now()")},
				},
				PrimaryKey: []string{"id"},
				Unique:     []schema.Unique{{Columns: []string{"email"}}},
				Indexes:    []schema.Index{{Columns: []string{"createdAt"}}},
				Triggers: []schema.Trigger{{
					Timing: "before", Events: []string{"update"}, Function: "moddatetime(updated_at)",
				}},
			},
			{
				Name: "orders",
				Columns: []*schema.Column{
					{Name: "id", Type: "bigserial"},
					{Name: "userId", Type: "integer", NotNull: true},
					{Name: "total", Type: "numeric(10, 2)"},
				},
				PrimaryKey: []string{"id"},
				Checks:     []schema.Check{{Expression: "total >= 0"}},
				ForeignKeys: []schema.ForeignKey{{
					Columns:    []string{"userId"},
					References: schema.Reference{Table: "users", Columns: []string{"id"}},
					OnDelete:   "cascade",
				}},
			},
		},
	}
}

func TestCompile_Tables(t *testing.T) {
	snap, err := Compile(usersSchema(), Options{CamelCase: true})
	if err != nil {
		t.Fatalf("Compile() error = %v", err)
	}

	users := snap.Tables["users"]
	if users == nil {
		t.Fatal("users table missing")
	}
	if got := users.Order; strings.Join(got, ",") != "id,email,role,created_at" {
		t.Errorf("column order = %v", got)
	}

	id := users.Columns["id"]
	if id.DataType != "integer" || id.Identity != snapshot.IdentityAlways || id.Nullable {
		t.Errorf("id = %+v", id)
	}
	email := users.Columns["email"]
	if email.DataType != "character varying(255)" || email.Nullable || email.CharacterMaximumLength != 255 {
		t.Errorf("email = %+v", email)
	}
	role := users.Columns["role"]
	if !role.IsEnum || role.DataType != "role" || role.Default.SQL != "'user'" {
		t.Errorf("role = %+v", role)
	}
	if role.VolatileDefault != snapshot.VolatilityNo {
		t.Errorf("literal default volatility = %s", role.VolatileDefault)
	}
	created := users.Columns["created_at"]
	if created.DataType != "timestamp with time zone" || created.VolatileDefault != snapshot.VolatilityYes {
		t.Errorf("created_at = %+v", created)
	}
	if created.Default.Hash != snapshot.Hash("now()") {
		t.Errorf("default hash = %q", created.Default.Hash)
	}

	orders := snap.Tables["orders"]
	if c := orders.Columns["id"]; c.DataType != "bigserial" || c.Nullable {
		t.Errorf("orders.id = %+v", c)
	}
	if c := orders.Columns["total"]; c.DataType != "numeric(10,2)" || c.NumericScale != 2 {
		t.Errorf("orders.total = %+v", c)
	}
}

func TestCompile_Objects(t *testing.T) {
	snap, err := Compile(usersSchema(), Options{CamelCase: true})
	if err != nil {
		t.Fatalf("Compile() error = %v", err)
	}

	if def, ok := snap.PrimaryKeys.Get("users", "users_pkey"); !ok || def.SQL != `PRIMARY KEY ("id")` {
		t.Errorf("users pkey = %+v, %v", def, ok)
	}
	if def, ok := snap.Uniques.Get("users", "users_email_key"); !ok || def.SQL != `UNIQUE ("email")` {
		t.Errorf("users unique = %+v, %v", def, ok)
	}

	idx, ok := snap.Indexes.Get("users", "users_created_at_idx")
	if !ok {
		t.Fatalf("index missing: %+v", snap.Indexes)
	}
	if idx.SQL != `CREATE INDEX "users_created_at_idx" ON "users" USING btree ("created_at")` {
		t.Errorf("index SQL = %s", idx.SQL)
	}
	if idx.Hash != snapshot.Hash(`USING btree ("created_at")`) {
		t.Error("index hash must cover only the body")
	}

	trg, ok := snap.Triggers.Get("users", "users_before_update_trg")
	if !ok {
		t.Fatalf("trigger missing: %+v", snap.Triggers)
	}
	want := `CREATE TRIGGER "users_before_update_trg" BEFORE UPDATE ON "users" FOR EACH ROW EXECUTE FUNCTION moddatetime(updated_at)`
	if trg.SQL != want {
		t.Errorf("trigger SQL = %s", trg.SQL)
	}

	fk, ok := snap.ForeignKeys.Get("orders", "orders_user_id_fkey")
	if !ok {
		t.Fatalf("fk missing: %+v", snap.ForeignKeys)
	}
	if fk.SQL != `FOREIGN KEY ("user_id") REFERENCES "users" ("id") ON DELETE CASCADE ON UPDATE NO ACTION` {
		t.Errorf("fk SQL = %s", fk.SQL)
	}

	var check snapshot.Definition
	for _, def := range snap.Checks["orders"] {
		check = def
	}
	if check.SQL != "CHECK (total >= 0)" || check.Hash != snapshot.Hash("total >= 0") {
		t.Errorf("check = %+v", check)
	}
}

func TestCompile_Deterministic(t *testing.T) {
	a, err := Compile(usersSchema(), Options{})
	if err != nil {
		t.Fatal(err)
	}
	b, _ := Compile(usersSchema(), Options{})
	for name, tbl := range a.Tables {
		if strings.Join(tbl.Order, ",") != strings.Join(b.Tables[name].Order, ",") {
			t.Errorf("column order differs for %s", name)
		}
	}
	for table, objs := range a.Indexes {
		for name, def := range objs {
			if other, _ := b.Indexes.Get(table, name); !def.Equal(other) {
				t.Errorf("index %s differs between runs", name)
			}
		}
	}
}

func TestCompile_RenamesUseExistingNames(t *testing.T) {
	s := usersSchema()
	opts := Options{
		CamelCase: true,
		Renames: map[string]rename.Renames{
			"public": {
				Tables:  []rename.Rename{{From: "accounts", To: "users"}},
				Columns: map[string][]rename.Rename{"users": {{From: "mail", To: "email"}}},
			},
		},
	}
	snap, err := Compile(s, opts)
	if err != nil {
		t.Fatal(err)
	}

	if _, ok := snap.Tables["users"]; ok {
		t.Error("renamed table should compile under its existing name")
	}
	accounts := snap.Tables["accounts"]
	if accounts == nil {
		t.Fatal("accounts missing")
	}
	if _, ok := accounts.Columns["mail"]; !ok {
		t.Errorf("columns = %v", accounts.Order)
	}
	if _, ok := snap.Uniques.Get("accounts", "accounts_mail_key"); !ok {
		t.Errorf("derived names should follow existing names: %+v", snap.Uniques)
	}
	fk, _ := snap.ForeignKeys.Get("orders", "orders_user_id_fkey")
	if !strings.Contains(fk.SQL, `REFERENCES "accounts"`) {
		t.Errorf("fk should reference the existing table name: %s", fk.SQL)
	}
}

func TestCompile_ColumnRenameTargets(t *testing.T) {
	s := usersSchema()
	s.Tables[0].Indexes = append(s.Tables[0].Indexes, schema.Index{Columns: []string{"email"}})
	snap, err := Compile(s, Options{
		CamelCase: true,
		Renames: map[string]rename.Renames{
			"public": {Columns: map[string][]rename.Rename{"users": {{From: "mail", To: "email"}}}},
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	want, err := Compile(usersSchema(), Options{CamelCase: true})
	if err != nil {
		t.Fatal(err)
	}

	key := snap.Targets["users"]["users_mail_key"]
	if key.Category != snapshot.CategoryUnique || key.Name != "users_email_key" {
		t.Errorf("unique target = %+v", key)
	}
	if _, ok := want.Uniques.Get("users", key.Name); !ok {
		t.Errorf("target %q is not the declared name", key.Name)
	}

	idx := snap.Targets["users"]["users_mail_idx"]
	if idx.Name != "users_email_idx" {
		t.Errorf("index target = %+v", idx)
	}
	current, _ := snap.Indexes.Get("users", "users_mail_idx")
	if idx.Definition.Hash == "" || idx.Definition.Hash == current.Hash {
		t.Errorf("index target hash %q, current %q", idx.Definition.Hash, current.Hash)
	}

	// Objects over untouched columns keep their names.
	if _, ok := snap.Targets["users"]["users_created_at_idx"]; ok {
		t.Error("unrelated index should have no target")
	}
	if len(want.Targets) != 0 {
		t.Errorf("compile without renames recorded targets: %+v", want.Targets)
	}
}

func TestCompile_InvalidType(t *testing.T) {
	s := &schema.Schema{Name: "public", Tables: []*schema.Table{{
		Name:    "t",
		Columns: []*schema.Column{{Name: "c", Type: "strnig"}},
	}}}
	_, err := Compile(s, Options{})
	if !alerr.Is(err, alerr.ErrInvalidType) {
		t.Fatalf("err = %v, want %s", err, alerr.ErrInvalidType)
	}
}

func TestCompile_DuplicatePhysicalName(t *testing.T) {
	s := &schema.Schema{Name: "public", Tables: []*schema.Table{{
		Name: "t",
		Columns: []*schema.Column{
			{Name: "userId", Type: "int"},
			{Name: "user_id", Type: "int"},
		},
	}}}
	_, err := Compile(s, Options{CamelCase: true})
	if !alerr.Is(err, alerr.ErrSchemaDuplicate) {
		t.Fatalf("err = %v, want %s", err, alerr.ErrSchemaDuplicate)
	}
}

func TestExtensions(t *testing.T) {
	snap := Extensions(&schema.Project{Extensions: []string{"moddatetime", "pg_trgm"}})
	if snap.SchemaName != "" || !snap.Extensions["pg_trgm"] || len(snap.Extensions) != 2 {
		t.Errorf("extensions = %+v", snap.Extensions)
	}
}

func TestCanonicalType(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"int", "integer", true},
		{"INT4", "integer", true},
		{"bigint", "bigint", true},
		{"varchar(255)", "character varying(255)", true},
		{"varchar", "character varying", true},
		{"char", "character(1)", true},
		{"numeric(10, 2)", "numeric(10,2)", true},
		{"numeric(10)", "numeric(10)", true},
		{"timestamptz", "timestamp with time zone", true},
		{"timestamp(3) with time zone", "timestamp(3) with time zone", true},
		{"timestamptz(6)", "timestamp(6) with time zone", true},
		{"timestamp", "timestamp without time zone", true},
		{"time(2)", "time(2) without time zone", true},
		{"double precision", "double precision", true},
		{"text[]", "text[]", true},
		{"int[][]", "integer[][]", true},
		{"serial", "serial", true},
		{"serial[]", "", false},
		{"uuid(3)", "", false},
		{"string", "", false},
	}
	for _, tt := range tests {
		got, ok := canonicalType(tt.in)
		if ok != tt.ok || got != tt.want {
			t.Errorf("canonicalType(%q) = %q, %v; want %q, %v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}

func TestVolatility(t *testing.T) {
	if volatility("gen_random_uuid()") != snapshot.VolatilityYes {
		t.Error("gen_random_uuid should be volatile")
	}
	if volatility("'x'") != snapshot.VolatilityNo {
		t.Error("literal should not be volatile")
	}
}
