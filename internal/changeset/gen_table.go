package changeset

import (
	"fmt"

	"github.com/hlop3z/pgphase/internal/diff"
	"github.com/hlop3z/pgphase/internal/snapshot"
	"github.com/hlop3z/pgphase/internal/strutil"
)

func (g *generator) tableCreate(d diff.Diff) []Changeset {
	name := d.Path[1]
	t, ok := tableValue(d.Value)
	if !ok {
		return g.skip(d, "missing table definition")
	}
	return []Changeset{{
		Type:             TypeCreateTable,
		Priority:         PriorityCreateTable,
		Phase:            Expand,
		SchemaName:       g.ctx.Schema,
		TableName:        name,
		CurrentTableName: name,
		Up:               g.createTable(name, t),
		Down:             []string{fmt.Sprintf("DROP TABLE %s", g.qualify(name))},
	}}
}

func (g *generator) tableDrop(d diff.Diff) []Changeset {
	name := d.Path[1]
	t, ok := tableValue(d.OldValue)
	if !ok {
		return g.skip(d, "missing table definition")
	}
	return []Changeset{{
		Type:             TypeDropTable,
		Priority:         PriorityDropTable,
		Phase:            Contract,
		SchemaName:       g.ctx.Schema,
		TableName:        name,
		CurrentTableName: name,
		Up:               []string{fmt.Sprintf("DROP TABLE %s", g.qualify(name))},
		Down:             g.createTable(name, t),
		Warnings:         []Warning{warn(Destructive, g.ctx.Schema, name, "", "table is dropped with its rows")},
	}}
}

// columnCreate adds a column. A NOT NULL column without a default cannot be
// added to a populated table in one step, so it is added nullable in Expand
// and constrained in a following Alter changeset.
func (g *generator) columnCreate(d diff.Diff) []Changeset {
	table, column := d.Path[1], d.Path[2]
	c, ok := columnValue(d.Value)
	if !ok {
		return g.skip(d, "missing column definition")
	}

	twoStep := !c.Nullable && c.Default.IsZero() && c.Identity == snapshot.IdentityNone && !serialTypes[c.DataType]
	add := *c
	if twoStep {
		add.Nullable = true
	}

	up := []string{g.alterTable(table, "ADD COLUMN %s", g.columnDefinition(column, &add))}
	if c.Identity == snapshot.IdentityNone && !c.Default.IsZero() {
		up = append(up, g.columnComment(table, column, c.Default.Hash))
	}

	var warnings []Warning
	switch {
	case serialTypes[c.DataType]:
		warnings = append(warnings, warn(Blocking, g.ctx.Schema, table, column, "adding a %s column rewrites the table", c.DataType))
	case c.Identity != snapshot.IdentityNone:
		warnings = append(warnings, warn(Blocking, g.ctx.Schema, table, column, "adding an identity column rewrites the table"))
	case c.VolatileDefault == snapshot.VolatilityYes:
		warnings = append(warnings, warn(Blocking, g.ctx.Schema, table, column, "volatile default %s rewrites the table", c.Default.SQL))
	}

	out := []Changeset{{
		Type:             TypeCreateColumn,
		Priority:         PriorityColumn,
		Phase:            Expand,
		SchemaName:       g.ctx.Schema,
		TableName:        g.ctx.newTable(table),
		CurrentTableName: table,
		Up:               up,
		Down:             []string{g.alterTable(table, "DROP COLUMN %s", strutil.QuoteIdent(column))},
		Warnings:         warnings,
	}}

	if twoStep {
		current := g.ctx.address(table, Alter)
		out = append(out, Changeset{
			Type:             TypeSetNotNull,
			Priority:         PriorityColumn,
			Phase:            Alter,
			SchemaName:       g.ctx.Schema,
			TableName:        current,
			CurrentTableName: current,
			Up:               []string{g.alterColumn(current, column, "SET NOT NULL")},
			Down:             []string{g.alterColumn(current, column, "DROP NOT NULL")},
			Warnings:         []Warning{warn(MightFail, g.ctx.Schema, current, column, "existing rows must not be NULL")},
		})
	}
	return out
}

func (g *generator) columnDrop(d diff.Diff) []Changeset {
	table, column := d.Path[1], d.Path[2]
	c, ok := columnValue(d.OldValue)
	if !ok {
		return g.skip(d, "missing column definition")
	}
	current := g.ctx.address(table, Contract)

	down := []string{g.alterTable(current, "ADD COLUMN %s", g.columnDefinition(column, c))}
	if c.Identity == snapshot.IdentityNone && !c.Default.IsZero() {
		down = append(down, g.columnComment(current, column, c.Default.Hash))
	}
	return []Changeset{{
		Type:             TypeDropColumn,
		Priority:         PriorityDropColumn,
		Phase:            Contract,
		SchemaName:       g.ctx.Schema,
		TableName:        current,
		CurrentTableName: current,
		Up:               []string{g.alterTable(current, "DROP COLUMN %s", strutil.QuoteIdent(column))},
		Down:             down,
		Warnings:         []Warning{warn(Destructive, g.ctx.Schema, current, column, "column is dropped with its data")},
	}}
}

// alterTarget resolves the post-rename table and column of a column change.
func (g *generator) alterTarget(d diff.Diff) (table, column string) {
	return g.ctx.address(d.Path[1], Alter), g.ctx.addressColumn(d.Path[1], d.Path[2], Alter)
}

func (g *generator) columnChange(d diff.Diff, typ Type, up, down []string, warnings ...Warning) []Changeset {
	table, _ := g.alterTarget(d)
	return []Changeset{{
		Type:             typ,
		Priority:         PriorityColumn,
		Phase:            Alter,
		SchemaName:       g.ctx.Schema,
		TableName:        table,
		CurrentTableName: table,
		Up:               up,
		Down:             down,
		Warnings:         warnings,
	}}
}

func (g *generator) columnDataType(d diff.Diff) []Changeset {
	c, ok1 := columnValue(d.Value)
	old, ok2 := columnValue(d.OldValue)
	if !ok1 || !ok2 {
		return g.skip(d, "missing column definition")
	}
	if serialTypes[c.DataType] || serialTypes[old.DataType] {
		return g.skip(d, "serial pseudo-types cannot be altered")
	}

	table, column := g.alterTarget(d)
	q := strutil.QuoteIdent(column)
	newType, oldType := g.columnType(c), g.columnType(old)
	return g.columnChange(d, TypeChangeColumnType,
		[]string{g.alterColumn(table, column, "TYPE %s USING %s::%s", newType, q, newType)},
		[]string{g.alterColumn(table, column, "TYPE %s USING %s::%s", oldType, q, oldType)},
		warn(Blocking, g.ctx.Schema, table, column, "type change from %s to %s rewrites the table", old.DataType, c.DataType),
	)
}

func (g *generator) columnDefault(d diff.Diff) []Changeset {
	c, ok1 := columnValue(d.Value)
	old, ok2 := columnValue(d.OldValue)
	if !ok1 || !ok2 {
		return g.skip(d, "missing column definition")
	}
	table, column := g.alterTarget(d)

	set := func(def snapshot.Definition) []string {
		if def.IsZero() {
			return []string{
				g.alterColumn(table, column, "DROP DEFAULT"),
				g.columnComment(table, column, ""),
			}
		}
		return []string{
			g.alterColumn(table, column, "SET DEFAULT %s", def.SQL),
			g.columnComment(table, column, def.Hash),
		}
	}

	var warnings []Warning
	if c.VolatileDefault == snapshot.VolatilityYes {
		warnings = append(warnings, warn(Blocking, g.ctx.Schema, table, column, "volatile default %s", c.Default.SQL))
	}
	return g.columnChange(d, TypeChangeColumnDefault, set(c.Default), set(old.Default), warnings...)
}

func (g *generator) columnNullable(d diff.Diff) []Changeset {
	c, ok := columnValue(d.Value)
	if !ok {
		return g.skip(d, "missing column definition")
	}
	table, column := g.alterTarget(d)

	if c.Nullable {
		return g.columnChange(d, TypeDropNotNull,
			[]string{g.alterColumn(table, column, "DROP NOT NULL")},
			[]string{g.alterColumn(table, column, "SET NOT NULL")},
		)
	}
	return g.columnChange(d, TypeSetNotNull,
		[]string{g.alterColumn(table, column, "SET NOT NULL")},
		[]string{g.alterColumn(table, column, "DROP NOT NULL")},
		warn(MightFail, g.ctx.Schema, table, column, "existing rows must not be NULL"),
	)
}

func (g *generator) columnIdentity(d diff.Diff) []Changeset {
	c, ok1 := columnValue(d.Value)
	old, ok2 := columnValue(d.OldValue)
	if !ok1 || !ok2 {
		return g.skip(d, "missing column definition")
	}
	table, column := g.alterTarget(d)

	to := func(from, target string) string {
		switch {
		case target == snapshot.IdentityNone:
			return g.alterColumn(table, column, "DROP IDENTITY IF EXISTS")
		case from == snapshot.IdentityNone:
			return g.alterColumn(table, column, "ADD GENERATED %s AS IDENTITY", target)
		default:
			return g.alterColumn(table, column, "SET GENERATED %s", target)
		}
	}
	return g.columnChange(d, TypeChangeColumnIdentity,
		[]string{to(old.Identity, c.Identity)},
		[]string{to(c.Identity, old.Identity)},
	)
}
