package changeset

import (
	"fmt"
	"strings"

	"github.com/hlop3z/pgphase/internal/snapshot"
	"github.com/hlop3z/pgphase/internal/strutil"
)

// renames emits one changeset per table rename and per column rename.
// They run in Alter, after Expand has added everything under the old names.
func (g *generator) renames() []Changeset {
	var out []Changeset
	for _, rn := range g.ctx.Renames.Tables {
		out = append(out, g.tableRename(rn.From, rn.To))
	}
	for _, table := range snapshot.SortedKeys(g.ctx.Renames.Columns) {
		cols := g.ctx.Renames.Columns[table]
		for i, rn := range cols {
			cs := g.columnRename(table, rn.From, rn.To)
			// Objects can span several renamed columns; they follow the last.
			if i == len(cols)-1 {
				up, down := g.columnTargets(table)
				cs.Up = append(cs.Up, up...)
				cs.Down = append(cs.Down, down...)
			}
			out = append(out, cs)
		}
	}
	return out
}

// renamedObject maps an object name derived from a renamed table to the
// name it gets after the rename.
func (g *generator) renamedObject(table, name string) string {
	to, ok := g.ctx.Renames.TableTo(table)
	if !ok {
		return name
	}
	suffix, found := strings.CutPrefix(name, table+"_")
	if !found {
		return name
	}
	return strutil.Identifier(to, suffix)
}

type objectRename struct {
	category, from, to string
}

// derivedRenames lists the objects of table whose generated names embed the
// table name.
func (g *generator) derivedRenames(table string) []objectRename {
	if g.ctx.Local == nil {
		return nil
	}
	var out []objectRename
	for _, cat := range g.ctx.Local.Categories() {
		for _, name := range snapshot.SortedKeys(cat.Objects[table]) {
			if to := g.renamedObject(table, name); to != name {
				out = append(out, objectRename{category: cat.Name, from: name, to: to})
			}
		}
	}
	return out
}

func (g *generator) renameObject(table string, o objectRename, from, to string) string {
	switch o.category {
	case snapshot.CategoryIndex:
		return fmt.Sprintf("ALTER INDEX %s RENAME TO %s", g.qualify(from), strutil.QuoteIdent(to))
	case snapshot.CategoryTrigger:
		return fmt.Sprintf("ALTER TRIGGER %s ON %s RENAME TO %s", strutil.QuoteIdent(from), g.qualify(table), strutil.QuoteIdent(to))
	default:
		return g.alterTable(table, "RENAME CONSTRAINT %s TO %s", strutil.QuoteIdent(from), strutil.QuoteIdent(to))
	}
}

func (g *generator) tableRename(from, to string) Changeset {
	objects := g.derivedRenames(from)

	up := []string{g.alterTable(from, "RENAME TO %s", strutil.QuoteIdent(to))}
	for _, o := range objects {
		up = append(up, g.renameObject(to, o, o.from, o.to))
	}
	down := []string{g.alterTable(to, "RENAME TO %s", strutil.QuoteIdent(from))}
	for _, o := range objects {
		down = append(down, g.renameObject(from, o, o.to, o.from))
	}

	return Changeset{
		Type:             TypeRenameTable,
		Priority:         PriorityRenameTable,
		Phase:            Alter,
		SchemaName:       g.ctx.Schema,
		TableName:        to,
		CurrentTableName: from,
		Up:               up,
		Down:             down,
		Warnings: []Warning{
			warn(BackwardIncompatible, g.ctx.Schema, to, "", "table renamed from %q", from),
		},
	}
}

// columnRename runs after table renames, so table is the declared name.
func (g *generator) columnRename(table, from, to string) Changeset {
	return Changeset{
		Type:             TypeRenameColumn,
		Priority:         PriorityRenameColumn,
		Phase:            Alter,
		SchemaName:       g.ctx.Schema,
		TableName:        table,
		CurrentTableName: table,
		Up:               []string{g.alterTable(table, "RENAME COLUMN %s TO %s", strutil.QuoteIdent(from), strutil.QuoteIdent(to))},
		Down:             []string{g.alterTable(table, "RENAME COLUMN %s TO %s", strutil.QuoteIdent(to), strutil.QuoteIdent(from))},
		Warnings: []Warning{
			warn(BackwardIncompatible, g.ctx.Schema, table, to, "column renamed from %q", from),
		},
	}
}

// columnTargets renames the objects of table whose generated names embed a
// renamed column and stamps index comments with the hash of the renamed
// definition. table is the declared name.
func (g *generator) columnTargets(table string) (up, down []string) {
	if g.ctx.Local == nil {
		return nil, nil
	}
	current := table
	if from, ok := g.ctx.Renames.TableFrom(table); ok {
		current = from
	}
	targets := g.ctx.Local.Targets[current]
	for _, name := range snapshot.SortedKeys(targets) {
		t := targets[name]
		// Table renames run first and already moved the name to the new prefix.
		from := g.renamedObject(current, name)
		if from != t.Name {
			o := objectRename{category: t.Category, from: from, to: t.Name}
			up = append(up, g.renameObject(table, o, from, t.Name))
			down = append(down, g.renameObject(table, o, t.Name, from))
		}
		if t.Category != snapshot.CategoryIndex {
			continue
		}
		if old, _ := g.ctx.Local.Indexes.Get(current, name); old.Hash != t.Definition.Hash {
			up = append(up, g.indexComment(t.Name, t.Definition.Hash))
			down = append(down, g.indexComment(from, old.Hash))
		}
	}
	return up, down
}
