// Package compile turns the declarative schema graph into a normalized
// snapshot that can be compared with an introspected one.
package compile

import (
	"fmt"
	"sort"
	"strings"

	"github.com/hlop3z/pgphase/internal/alerr"
	"github.com/hlop3z/pgphase/internal/rename"
	"github.com/hlop3z/pgphase/internal/snapshot"
	"github.com/hlop3z/pgphase/internal/strutil"
	"github.com/hlop3z/pgphase/pkg/schema"
)

// Options controls compilation.
type Options struct {
	// CamelCase converts logical camelCase names to snake_case.
	CamelCase bool

	// Renames, keyed by schema name. When set, renamed tables and columns
	// are compiled under their existing names so the differ only sees
	// genuine structural changes.
	Renames map[string]rename.Renames
}

// volatileFunctions make a default expression volatile.
var volatileFunctions = []string{
	"now(", "current_timestamp", "clock_timestamp(", "statement_timestamp(",
	"transaction_timestamp(", "timeofday(", "random(", "gen_random_uuid(",
	"uuid_generate_v1(", "uuid_generate_v4(", "nextval(",
}

type compiler struct {
	schema *schema.Schema
	opts   Options
	snap   *snapshot.Snapshot
}

// Compile compiles one declared schema.
func Compile(s *schema.Schema, opts Options) (*snapshot.Snapshot, error) {
	c := &compiler{schema: s, opts: opts, snap: snapshot.New(s.Name)}
	c.snap.CamelCase = opts.CamelCase

	for _, e := range s.Enums {
		name := c.name(e.Name)
		if _, dup := c.snap.Enums[name]; dup {
			return nil, alerr.Newf(alerr.ErrSchemaDuplicate, "enum %q declared twice", name).
				With("schema", s.Name)
		}
		c.snap.Enums[name] = append([]string(nil), e.Values...)
	}

	for _, t := range s.Tables {
		if err := c.table(t); err != nil {
			return nil, err
		}
	}
	return c.snap, nil
}

// Extensions compiles the database level snapshot.
func Extensions(p *schema.Project) *snapshot.Snapshot {
	snap := snapshot.New("")
	for _, ext := range p.Extensions {
		snap.Extensions[ext] = true
	}
	return snap
}

// name applies the naming convention.
func (c *compiler) name(logical string) string {
	if c.opts.CamelCase {
		return strutil.ToSnakeCase(logical)
	}
	return logical
}

// tableName returns the declared physical name and the name to compile under.
func (c *compiler) tableName(schemaName, logical string) (declared, current string) {
	declared = c.name(logical)
	if from, ok := c.opts.Renames[schemaName].TableFrom(declared); ok {
		return declared, from
	}
	return declared, declared
}

func (c *compiler) columnName(schemaName, declaredTable, logical string) string {
	declared := c.name(logical)
	if from, ok := c.opts.Renames[schemaName].ColumnFrom(declaredTable, declared); ok {
		return from
	}
	return declared
}

func (c *compiler) columnNames(schemaName, declaredTable string, logical []string) []string {
	out := make([]string, len(logical))
	for i, l := range logical {
		out[i] = c.columnName(schemaName, declaredTable, l)
	}
	return out
}

func (c *compiler) table(t *schema.Table) error {
	declared, name := c.tableName(c.schema.Name, t.Name)
	if _, dup := c.snap.Tables[name]; dup {
		return alerr.Newf(alerr.ErrSchemaDuplicate, "table %q declared twice", name).
			WithTable(c.schema.Name, name)
	}
	qualified := strutil.Qualify(c.schema.Name, name)

	pk := make(map[string]bool, len(t.PrimaryKey))
	for _, col := range t.PrimaryKey {
		pk[c.name(col)] = true
	}

	info := snapshot.NewTable(name)
	for _, col := range t.Columns {
		ci, err := c.column(col, pk[c.name(col.Name)])
		if err != nil {
			return err.WithTable(c.schema.Name, name)
		}
		ci.Name = c.columnName(c.schema.Name, declared, col.Name)
		if _, dup := info.Columns[ci.Name]; dup {
			return alerr.Newf(alerr.ErrSchemaDuplicate, "column %q declared twice", ci.Name).
				WithTable(c.schema.Name, name)
		}
		info.AddColumn(ci)
	}
	c.snap.Tables[name] = info

	cols := func(logical []string) []string { return c.columnNames(c.schema.Name, declared, logical) }

	if len(t.PrimaryKey) > 0 {
		c.snap.PrimaryKeys.Put(name, strutil.Identifier(name, "pkey"), snapshot.Definition{
			SQL: fmt.Sprintf("PRIMARY KEY (%s)", strutil.QuoteIdents(cols(t.PrimaryKey))),
		})
	}

	// Objects over a renamed column change name, and indexes change hash,
	// once the rename is applied.
	columnRenames := len(c.opts.Renames[c.schema.Name].Columns[declared]) > 0

	for _, u := range t.Unique {
		phys := cols(u.Columns)
		objName := c.objectName(u.Name, name, phys, "key")
		c.snap.Uniques.Put(name, objName, snapshot.Definition{
			SQL: fmt.Sprintf("UNIQUE (%s)", strutil.QuoteIdents(phys)),
		})
		if columnRenames {
			c.track(name, objName, snapshot.Definition{}, snapshot.Target{
				Category: snapshot.CategoryUnique,
				Name:     c.objectName(u.Name, declared, c.names(u.Columns), "key"),
			})
		}
	}

	for _, ck := range t.Checks {
		hash := snapshot.Hash(ck.Expression)
		objName := ck.Name
		if objName == "" {
			objName = strutil.Identifier(name, hash[:8], "check")
		}
		c.snap.Checks.Put(name, objName, snapshot.Definition{
			Hash: hash,
			SQL:  fmt.Sprintf("CHECK (%s)", ck.Expression),
		})
	}

	for _, fk := range t.ForeignKeys {
		phys := cols(fk.Columns)
		objName := c.objectName(fk.Name, name, phys, "fkey")
		c.snap.ForeignKeys.Put(name, objName, c.foreignKey(fk, phys))
		if columnRenames {
			c.track(name, objName, snapshot.Definition{}, snapshot.Target{
				Category: snapshot.CategoryForeignKey,
				Name:     c.objectName(fk.Name, declared, c.names(fk.Columns), "fkey"),
			})
		}
	}

	for _, idx := range t.Indexes {
		phys := cols(idx.Columns)
		objName := c.objectName(idx.Name, name, phys, "idx")
		def := indexDefinition(objName, qualified, idx, phys)
		c.snap.Indexes.Put(name, objName, def)
		if columnRenames {
			declCols := c.names(idx.Columns)
			targetName := c.objectName(idx.Name, declared, declCols, "idx")
			c.track(name, objName, def, snapshot.Target{
				Category:   snapshot.CategoryIndex,
				Name:       targetName,
				Definition: indexDefinition(targetName, strutil.Qualify(c.schema.Name, declared), idx, declCols),
			})
		}
	}

	for _, tr := range t.Triggers {
		objName, def := triggerDefinition(name, qualified, tr)
		c.snap.Triggers.Put(name, objName, def)
	}
	return nil
}

// names applies the naming convention without renames.
func (c *compiler) names(logical []string) []string {
	out := make([]string, len(logical))
	for i, l := range logical {
		out[i] = c.name(l)
	}
	return out
}

// track records the target of an object whose name or hash differs from
// the one it is compiled under.
func (c *compiler) track(table, name string, def snapshot.Definition, target snapshot.Target) {
	if target.Name != name || target.Definition.Hash != def.Hash {
		c.snap.PutTarget(table, name, target)
	}
}

func (c *compiler) objectName(explicit, table string, cols []string, suffix string) string {
	if explicit != "" {
		return explicit
	}
	parts := append([]string{table}, cols...)
	return strutil.Identifier(append(parts, suffix)...)
}

func (c *compiler) column(col *schema.Column, inPrimaryKey bool) (*snapshot.ColumnInfo, *alerr.Error) {
	ci := &snapshot.ColumnInfo{
		Nullable:        !col.NotNull && !inPrimaryKey,
		VolatileDefault: snapshot.VolatilityNo,
	}

	if enum := c.name(col.Type); c.isEnum(enum) {
		ci.DataType = enum
		ci.IsEnum = true
	} else {
		dt, ok := canonicalType(col.Type)
		if !ok {
			return nil, alerr.Newf(alerr.ErrInvalidType, "unsupported column type %q", col.Type).
				WithColumn(col.Name)
		}
		ci.DataType = dt
	}
	if serialTypes[ci.DataType] {
		ci.Nullable = false
	}
	ci.ParseModifiers()

	switch strings.ToLower(col.Identity) {
	case "":
	case schema.IdentityAlways:
		ci.Identity = snapshot.IdentityAlways
		ci.Nullable = false
	case schema.IdentityByDefault:
		ci.Identity = snapshot.IdentityByDefault
		ci.Nullable = false
	default:
		return nil, alerr.Newf(alerr.ErrSchemaInvalid, "unknown identity mode %q", col.Identity).
			WithColumn(col.Name)
	}

	if col.Default != nil {
		text, err := defaultSQL(col.Default)
		if err != nil {
			return nil, err.WithColumn(col.Name)
		}
		ci.Default = snapshot.Hashed(text, text)
		ci.VolatileDefault = volatility(text)
	}
	return ci, nil
}

func (c *compiler) isEnum(name string) bool {
	_, ok := c.snap.Enums[name]
	return ok
}

func defaultSQL(d *schema.Default) (string, *alerr.Error) {
	if d.SQL != "" {
		return d.SQL, nil
	}
	switch v := d.Value.(type) {
	case string:
		return strutil.QuoteLiteral(v), nil
	case bool:
		if v {
			return "true", nil
		}
		return "false", nil
	case int, int32, int64, uint, uint32, uint64, float32, float64:
		return fmt.Sprint(v), nil
	case nil:
		return "NULL", nil
	default:
		return "", alerr.Newf(alerr.ErrSchemaInvalid, "unsupported default literal %T", d.Value)
	}
}

func volatility(expr string) snapshot.Volatility {
	lower := strings.ToLower(expr)
	for _, fn := range volatileFunctions {
		if strings.Contains(lower, fn) {
			return snapshot.VolatilityYes
		}
	}
	return snapshot.VolatilityNo
}

var refActions = map[string]string{
	"":            "NO ACTION",
	"no action":   "NO ACTION",
	"restrict":    "RESTRICT",
	"cascade":     "CASCADE",
	"set null":    "SET NULL",
	"set default": "SET DEFAULT",
}

func (c *compiler) foreignKey(fk schema.ForeignKey, cols []string) snapshot.Definition {
	refSchema := fk.References.Schema
	if refSchema == "" {
		refSchema = c.schema.Name
	}
	declaredRef, refTable := c.tableName(refSchema, fk.References.Table)
	refCols := c.columnNames(refSchema, declaredRef, fk.References.Columns)

	return snapshot.Definition{SQL: ForeignKeySQL(cols, refSchema, refTable, refCols,
		refActions[strings.ToLower(fk.OnDelete)], refActions[strings.ToLower(fk.OnUpdate)])}
}

// ForeignKeySQL renders the canonical foreign key definition shared by the
// compiler and the introspector.
func ForeignKeySQL(cols []string, refSchema, refTable string, refCols []string, onDelete, onUpdate string) string {
	return fmt.Sprintf("FOREIGN KEY (%s) REFERENCES %s (%s) ON DELETE %s ON UPDATE %s",
		strutil.QuoteIdents(cols), strutil.Qualify(refSchema, refTable), strutil.QuoteIdents(refCols),
		onDelete, onUpdate)
}

func indexDefinition(name, qualified string, idx schema.Index, cols []string) snapshot.Definition {
	using := strings.ToLower(idx.Using)
	if using == "" {
		using = "btree"
	}
	body := fmt.Sprintf("USING %s (%s)", using, strutil.QuoteIdents(cols))
	if idx.Where != "" {
		body += " WHERE " + idx.Where
	}
	create := "CREATE INDEX"
	if idx.Unique {
		create = "CREATE UNIQUE INDEX"
		body = "UNIQUE " + body
	}
	return snapshot.Definition{
		Hash: snapshot.Hash(body),
		SQL:  fmt.Sprintf("%s %s ON %s %s", create, strutil.QuoteIdent(name), qualified, strings.TrimPrefix(body, "UNIQUE ")),
	}
}

func triggerDefinition(table, qualified string, tr schema.Trigger) (string, snapshot.Definition) {
	timing := strings.ToUpper(strings.Join(strings.Fields(tr.Timing), " "))
	events := make([]string, len(tr.Events))
	for i, e := range tr.Events {
		events[i] = strings.ToUpper(e)
	}
	sort.Strings(events)
	forEach := strings.ToUpper(tr.ForEach)
	if forEach == "" {
		forEach = "ROW"
	}

	name := tr.Name
	if name == "" {
		parts := []string{table}
		parts = append(parts, strings.Fields(strings.ToLower(timing))...)
		for _, e := range events {
			parts = append(parts, strings.ToLower(e))
		}
		name = strutil.Identifier(append(parts, "trg")...)
	}

	body := fmt.Sprintf("%s %s", timing, strings.Join(events, " OR "))
	tail := "FOR EACH " + forEach
	if tr.Condition != "" {
		tail += fmt.Sprintf(" WHEN (%s)", tr.Condition)
	}
	tail += " EXECUTE FUNCTION " + tr.Function

	return name, snapshot.Definition{
		Hash: snapshot.Hash(body + " " + tail),
		SQL:  fmt.Sprintf("CREATE TRIGGER %s %s ON %s %s", strutil.QuoteIdent(name), body, qualified, tail),
	}
}
