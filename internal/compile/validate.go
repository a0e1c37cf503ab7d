package compile

import (
	"strings"

	"github.com/hlop3z/pgphase/internal/alerr"
	"github.com/hlop3z/pgphase/internal/strutil"
	"github.com/hlop3z/pgphase/pkg/schema"
)

var triggerTimings = map[string]bool{"BEFORE": true, "AFTER": true, "INSTEAD OF": true}

var triggerEvents = map[string]bool{"INSERT": true, "UPDATE": true, "DELETE": true, "TRUNCATE": true}

// Validate checks the declared project before anything is compiled or
// executed. It returns the first problem found.
func Validate(p *schema.Project, camelCase bool) error {
	v := &validator{project: p, opts: Options{CamelCase: camelCase}}
	return v.run()
}

type validator struct {
	project *schema.Project
	opts    Options
}

func (v *validator) name(logical string) string {
	return (&compiler{opts: v.opts}).name(logical)
}

func (v *validator) run() error {
	seen := make(map[string]bool)
	for _, s := range v.project.Schemas {
		if err := identifier("schema", s.Name); err != nil {
			return err
		}
		if seen[s.Name] {
			return alerr.Newf(alerr.ErrSchemaDuplicate, "schema %q declared twice", s.Name)
		}
		seen[s.Name] = true
	}

	for _, s := range v.project.Schemas {
		for _, e := range s.Enums {
			if err := v.enum(s, e); err != nil {
				return err
			}
		}
		for _, t := range s.Tables {
			if err := v.table(s, t); err != nil {
				return err
			}
		}
	}
	return nil
}

func identifier(kind, name string) *alerr.Error {
	if name == "" {
		return alerr.Newf(alerr.ErrInvalidIdentifier, "%s name is empty", kind)
	}
	if len(name) > strutil.MaxIdentifierLength {
		return alerr.Newf(alerr.ErrInvalidIdentifier, "%s name %q exceeds %d characters", kind, name, strutil.MaxIdentifierLength)
	}
	return nil
}

func (v *validator) enum(s *schema.Schema, e *schema.Enum) error {
	if err := identifier("enum", v.name(e.Name)); err != nil {
		return err.With("schema", s.Name)
	}
	if len(e.Values) == 0 {
		return alerr.Newf(alerr.ErrSchemaInvalid, "enum %q has no values", e.Name).With("schema", s.Name)
	}
	values := make(map[string]bool, len(e.Values))
	for _, val := range e.Values {
		if values[val] {
			return alerr.Newf(alerr.ErrSchemaDuplicate, "enum %q repeats value %q", e.Name, val).With("schema", s.Name)
		}
		values[val] = true
	}
	return nil
}

func (v *validator) table(s *schema.Schema, t *schema.Table) error {
	if err := identifier("table", v.name(t.Name)); err != nil {
		return err.With("schema", s.Name)
	}
	if len(t.Columns) == 0 {
		return alerr.Newf(alerr.ErrSchemaInvalid, "table %q has no columns", t.Name).WithTable(s.Name, t.Name)
	}

	for _, col := range t.Columns {
		if err := identifier("column", v.name(col.Name)); err != nil {
			return err.WithTable(s.Name, t.Name)
		}
		if s.Enum(col.Type) != nil {
			continue
		}
		if _, ok := canonicalType(col.Type); !ok {
			return alerr.Newf(alerr.ErrInvalidType, "unsupported column type %q", col.Type).
				WithTable(s.Name, t.Name).WithColumn(col.Name)
		}
	}

	if err := v.columns(s, t, "primary key", t.PrimaryKey); err != nil {
		return err
	}
	for _, u := range t.Unique {
		if err := v.columns(s, t, "unique constraint", u.Columns); err != nil {
			return err
		}
	}
	for _, idx := range t.Indexes {
		if err := v.columns(s, t, "index", idx.Columns); err != nil {
			return err
		}
	}
	for _, ck := range t.Checks {
		if strings.TrimSpace(ck.Expression) == "" {
			return alerr.New(alerr.ErrSchemaInvalid, "check constraint has no expression").WithTable(s.Name, t.Name)
		}
	}
	for _, fk := range t.ForeignKeys {
		if err := v.foreignKey(s, t, fk); err != nil {
			return err
		}
	}
	for _, tr := range t.Triggers {
		if err := v.trigger(s, t, tr); err != nil {
			return err
		}
	}
	return nil
}

func (v *validator) columns(s *schema.Schema, t *schema.Table, what string, cols []string) error {
	if what != "primary key" && len(cols) == 0 {
		return alerr.Newf(alerr.ErrSchemaInvalid, "%s lists no columns", what).WithTable(s.Name, t.Name)
	}
	for _, col := range cols {
		if t.Column(col) == nil {
			e := alerr.Newf(alerr.ErrSchemaInvalid, "%s references unknown column %q", what, col).
				WithTable(s.Name, t.Name)
			if hint := alerr.SuggestSimilar(col, columnNames(t)); hint != "" {
				e.WithHelp(hint)
			}
			return e
		}
	}
	return nil
}

func (v *validator) foreignKey(s *schema.Schema, t *schema.Table, fk schema.ForeignKey) error {
	if err := v.columns(s, t, "foreign key", fk.Columns); err != nil {
		return err
	}

	refSchemaName := fk.References.Schema
	if refSchemaName == "" {
		refSchemaName = s.Name
	}
	refSchema := v.project.Schema(refSchemaName)
	if refSchema == nil {
		e := alerr.Newf(alerr.ErrMissingReference, "foreign key references undeclared schema %q", refSchemaName).
			WithTable(s.Name, t.Name)
		if hint := alerr.SuggestSimilar(refSchemaName, v.project.SchemaNames()); hint != "" {
			e.WithHelp(hint)
		}
		return e
	}

	ref := refSchema.Table(fk.References.Table)
	if ref == nil {
		e := alerr.Newf(alerr.ErrMissingReference, "foreign key references undeclared table %q", fk.References.Table).
			WithTable(s.Name, t.Name).
			With("references", refSchemaName+"."+fk.References.Table)
		if hint := alerr.SuggestSimilar(fk.References.Table, tableNames(refSchema)); hint != "" {
			e.WithHelp(hint)
		}
		return e
	}

	if len(fk.References.Columns) != len(fk.Columns) {
		return alerr.Newf(alerr.ErrSchemaInvalid, "foreign key has %d columns but references %d",
			len(fk.Columns), len(fk.References.Columns)).WithTable(s.Name, t.Name)
	}
	for _, col := range fk.References.Columns {
		if ref.Column(col) == nil {
			return alerr.Newf(alerr.ErrMissingReference, "foreign key references unknown column %q", col).
				WithTable(s.Name, t.Name).
				With("references", refSchemaName+"."+ref.Name)
		}
	}
	if _, ok := refActions[strings.ToLower(fk.OnDelete)]; !ok {
		return alerr.Newf(alerr.ErrSchemaInvalid, "unknown ON DELETE action %q", fk.OnDelete).WithTable(s.Name, t.Name)
	}
	if _, ok := refActions[strings.ToLower(fk.OnUpdate)]; !ok {
		return alerr.Newf(alerr.ErrSchemaInvalid, "unknown ON UPDATE action %q", fk.OnUpdate).WithTable(s.Name, t.Name)
	}
	return nil
}

func (v *validator) trigger(s *schema.Schema, t *schema.Table, tr schema.Trigger) error {
	timing := strings.ToUpper(strings.Join(strings.Fields(tr.Timing), " "))
	if !triggerTimings[timing] {
		return alerr.Newf(alerr.ErrSchemaInvalid, "unknown trigger timing %q", tr.Timing).WithTable(s.Name, t.Name)
	}
	if len(tr.Events) == 0 {
		return alerr.New(alerr.ErrSchemaInvalid, "trigger lists no events").WithTable(s.Name, t.Name)
	}
	for _, e := range tr.Events {
		if !triggerEvents[strings.ToUpper(e)] {
			return alerr.Newf(alerr.ErrSchemaInvalid, "unknown trigger event %q", e).WithTable(s.Name, t.Name)
		}
	}
	if strings.TrimSpace(tr.Function) == "" {
		return alerr.New(alerr.ErrSchemaInvalid, "trigger has no function").WithTable(s.Name, t.Name)
	}
	return nil
}

func columnNames(t *schema.Table) []string {
	out := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		out[i] = c.Name
	}
	return out
}

func tableNames(s *schema.Schema) []string {
	out := make([]string, len(s.Tables))
	for i, t := range s.Tables {
		out[i] = t.Name
	}
	return out
}
