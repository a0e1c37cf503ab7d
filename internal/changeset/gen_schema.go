package changeset

import (
	"fmt"
	"slices"

	"github.com/hlop3z/pgphase/internal/diff"
	"github.com/hlop3z/pgphase/internal/strutil"
)

func (g *generator) schemaCreate(d diff.Diff) []Changeset {
	name := d.Path[1]
	return []Changeset{{
		Type:       TypeCreateSchema,
		Priority:   PriorityCreateSchema,
		Phase:      Expand,
		SchemaName: name,
		Up:         createSchema(name),
		Down:       []string{fmt.Sprintf("DROP SCHEMA IF EXISTS %s CASCADE", strutil.QuoteIdent(name))},
	}}
}

// schemaDrop removes a whole managed schema with everything in it as a
// single changeset.
func (g *generator) schemaDrop(d diff.Diff) []Changeset {
	name := d.Path[1]
	return []Changeset{{
		Type:       TypeDropSchema,
		Priority:   PriorityDropSchema,
		Phase:      Contract,
		SchemaName: name,
		Up:         []string{fmt.Sprintf("DROP SCHEMA IF EXISTS %s CASCADE", strutil.QuoteIdent(name))},
		Down:       createSchema(name),
		Warnings:   []Warning{warn(Destructive, name, "", "", "schema %q and all of its objects are dropped", name)},
	}}
}

func (g *generator) extensionCreate(d diff.Diff) []Changeset {
	name := d.Path[1]
	return []Changeset{{
		Type:       TypeCreateExtension,
		Priority:   PriorityCreateExtension,
		Phase:      Expand,
		SchemaName: g.ctx.Schema,
		Up:         []string{fmt.Sprintf("CREATE EXTENSION IF NOT EXISTS %s", strutil.QuoteIdent(name))},
		Down:       []string{fmt.Sprintf("DROP EXTENSION IF EXISTS %s", strutil.QuoteIdent(name))},
	}}
}

func (g *generator) extensionDrop(d diff.Diff) []Changeset {
	name := d.Path[1]
	return []Changeset{{
		Type:       TypeDropExtension,
		Priority:   PriorityDropExtension,
		Phase:      Contract,
		SchemaName: g.ctx.Schema,
		Up:         []string{fmt.Sprintf("DROP EXTENSION IF EXISTS %s", strutil.QuoteIdent(name))},
		Down:       []string{fmt.Sprintf("CREATE EXTENSION IF NOT EXISTS %s", strutil.QuoteIdent(name))},
	}}
}

func (g *generator) enumCreate(d diff.Diff) []Changeset {
	name := d.Path[1]
	values, ok := d.Value.([]string)
	if !ok || len(values) == 0 {
		return g.skip(d, "enum without values")
	}
	return []Changeset{{
		Type:       TypeCreateEnum,
		Priority:   PriorityCreateEnum,
		Phase:      Expand,
		SchemaName: g.ctx.Schema,
		Up:         g.createEnum(name, values),
		Down:       []string{fmt.Sprintf("DROP TYPE IF EXISTS %s", g.qualify(name))},
	}}
}

func (g *generator) enumDrop(d diff.Diff) []Changeset {
	name := d.Path[1]
	values, ok := d.OldValue.([]string)
	if !ok || len(values) == 0 {
		return g.skip(d, "enum without values")
	}
	return []Changeset{{
		Type:       TypeDropEnum,
		Priority:   PriorityDropEnum,
		Phase:      Contract,
		SchemaName: g.ctx.Schema,
		Up:         []string{fmt.Sprintf("DROP TYPE IF EXISTS %s", g.qualify(name))},
		Down:       g.createEnum(name, values),
	}}
}

// enumChange adds the new labels of an enum. Postgres cannot remove or
// reorder labels, so those changes are skipped. Added labels cannot be
// removed either, which leaves the down side empty.
func (g *generator) enumChange(d diff.Diff) []Changeset {
	name := d.Path[1]
	newValues, ok1 := d.Value.([]string)
	oldValues, ok2 := d.OldValue.([]string)
	if !ok1 || !ok2 {
		return g.skip(d, "malformed enum values")
	}

	for _, v := range oldValues {
		if !slices.Contains(newValues, v) {
			return g.skip(d, "enum labels cannot be removed")
		}
	}

	// Walk backwards so every BEFORE target already exists.
	var up []string
	for i := len(newValues) - 1; i >= 0; i-- {
		v := newValues[i]
		if slices.Contains(oldValues, v) {
			continue
		}
		stmt := fmt.Sprintf("ALTER TYPE %s ADD VALUE IF NOT EXISTS %s", g.qualify(name), strutil.QuoteLiteral(v))
		if i < len(newValues)-1 {
			stmt += " BEFORE " + strutil.QuoteLiteral(newValues[i+1])
		}
		up = append(up, stmt)
	}
	if len(up) == 0 {
		return g.skip(d, "enum labels cannot be reordered")
	}

	return []Changeset{{
		Type:             TypeAddEnumValues,
		Priority:         PriorityChangeEnum,
		Phase:            Expand,
		SchemaName:       g.ctx.Schema,
		Up:               up,
		Down:             []string{},
		NonTransactional: true,
	}}
}
