package changeset

import (
	"fmt"

	"github.com/hlop3z/pgphase/internal/diff"
	"github.com/hlop3z/pgphase/internal/snapshot"
	"github.com/hlop3z/pgphase/internal/strutil"
)

type constraintKind struct {
	create, drop, change                  Type
	priority, dropPriority                int
	validate, hashComment, mightFailOnAdd bool
	label                                 string
}

var constraintKinds = map[diff.Kind]constraintKind{}

func init() {
	pk := constraintKind{
		create: TypeCreatePrimaryKey, drop: TypeDropPrimaryKey, change: TypeChangePrimaryKey,
		priority: PriorityPrimaryKey, dropPriority: PriorityDropPrimaryKey,
		mightFailOnAdd: true, label: "primary key",
	}
	unique := constraintKind{
		create: TypeCreateUnique, drop: TypeDropUnique, change: TypeChangeUnique,
		priority: PriorityUnique, dropPriority: PriorityDropUnique,
		mightFailOnAdd: true, label: "unique constraint",
	}
	check := constraintKind{
		create: TypeCreateCheck, drop: TypeDropCheck, change: TypeChangeCheck,
		priority: PriorityCheck, dropPriority: PriorityDropCheck,
		validate: true, hashComment: true, label: "check constraint",
	}
	fk := constraintKind{
		create: TypeCreateForeignKey, drop: TypeDropForeignKey, change: TypeChangeForeignKey,
		priority: PriorityForeignKey, dropPriority: PriorityDropForeignKey,
		validate: true, label: "foreign key",
	}
	for k, v := range map[diff.Kind]constraintKind{
		diff.KindPrimaryKeyCreate: pk, diff.KindPrimaryKeyDrop: pk, diff.KindPrimaryKeyChange: pk,
		diff.KindUniqueCreate: unique, diff.KindUniqueDrop: unique, diff.KindUniqueChange: unique,
		diff.KindCheckCreate: check, diff.KindCheckDrop: check, diff.KindCheckChange: check,
		diff.KindForeignKeyCreate: fk, diff.KindForeignKeyDrop: fk, diff.KindForeignKeyChange: fk,
	} {
		constraintKinds[k] = v
	}
}

// addConstraint renders ADD CONSTRAINT. Checks and foreign keys are added
// NOT VALID and validated separately so the scan does not hold the
// exclusive lock.
func (g *generator) addConstraint(k constraintKind, table, name string, def snapshot.Definition) []string {
	q := strutil.QuoteIdent(name)
	if !k.validate {
		return []string{g.alterTable(table, "ADD CONSTRAINT %s %s", q, def.SQL)}
	}
	stmts := []string{
		g.alterTable(table, "ADD CONSTRAINT %s %s NOT VALID", q, def.SQL),
		g.alterTable(table, "VALIDATE CONSTRAINT %s", q),
	}
	if k.hashComment && def.Hash != "" {
		stmts = append(stmts, fmt.Sprintf("COMMENT ON CONSTRAINT %s ON %s IS %s", q, g.qualify(table), strutil.QuoteLiteral(def.Hash)))
	}
	return stmts
}

func (g *generator) dropConstraint(table, name string) string {
	return g.alterTable(table, "DROP CONSTRAINT %s", strutil.QuoteIdent(name))
}

func (g *generator) constraint(d diff.Diff) []Changeset {
	k := constraintKinds[d.Kind]
	table, name := d.Path[1], d.Path[2]

	switch d.Type {
	case diff.Create:
		def, ok := definitionValue(d.Value)
		if !ok {
			return g.skip(d, "missing definition")
		}
		var warnings []Warning
		if k.mightFailOnAdd && g.ctx.tableExists(table) {
			warnings = append(warnings, warn(MightFail, g.ctx.Schema, table, "", "existing rows must satisfy the new %s", k.label))
		}
		return []Changeset{{
			Type:             k.create,
			Priority:         k.priority,
			Phase:            Expand,
			SchemaName:       g.ctx.Schema,
			TableName:        g.ctx.newTable(table),
			CurrentTableName: table,
			Up:               g.addConstraint(k, table, name, def),
			Down:             []string{g.dropConstraint(table, name)},
			Warnings:         warnings,
		}}

	case diff.Remove:
		def, ok := definitionValue(d.OldValue)
		if !ok {
			return g.skip(d, "missing definition")
		}
		current := g.ctx.address(table, Contract)
		return []Changeset{{
			Type:             k.drop,
			Priority:         k.dropPriority,
			Phase:            Contract,
			SchemaName:       g.ctx.Schema,
			TableName:        current,
			CurrentTableName: current,
			Up:               []string{g.dropConstraint(current, name)},
			Down:             g.addConstraint(k, current, name, def),
		}}

	case diff.Change:
		def, ok1 := definitionValue(d.Value)
		old, ok2 := definitionValue(d.OldValue)
		if !ok1 || !ok2 {
			return g.skip(d, "missing definition")
		}
		current := g.ctx.address(table, Alter)
		newName := g.renamedObject(table, name)
		var warnings []Warning
		if k.mightFailOnAdd {
			warnings = append(warnings, warn(MightFail, g.ctx.Schema, current, "", "existing rows must satisfy the changed %s", k.label))
		}
		return []Changeset{{
			Type:             k.change,
			Priority:         k.priority,
			Phase:            Alter,
			SchemaName:       g.ctx.Schema,
			TableName:        current,
			CurrentTableName: current,
			Up:               append([]string{g.dropConstraint(current, newName)}, g.addConstraint(k, current, newName, def)...),
			Down:             append([]string{g.dropConstraint(current, newName)}, g.addConstraint(k, current, newName, old)...),
			Warnings:         warnings,
		}}
	}
	return g.skip(d, "unexpected diff type")
}

// -----------------------------------------------------------------------------
// Indexes
// -----------------------------------------------------------------------------

func (g *generator) createIndex(def snapshot.Definition, name string) ([]string, bool) {
	create, ok := concurrentIndex(def.SQL)
	if !ok {
		return nil, false
	}
	stmts := []string{create}
	if def.Hash != "" {
		stmts = append(stmts, g.indexComment(name, def.Hash))
	}
	return stmts, true
}

func (g *generator) dropIndex(name string) string {
	return fmt.Sprintf("DROP INDEX CONCURRENTLY IF EXISTS %s", g.qualify(name))
}

func (g *generator) indexCreate(d diff.Diff) []Changeset {
	table, name := d.Path[1], d.Path[2]
	def, ok := definitionValue(d.Value)
	if !ok {
		return g.skip(d, "missing definition")
	}
	up, ok := g.createIndex(def, name)
	if !ok {
		return g.skip(d, "unparsable index definition")
	}
	return []Changeset{{
		Type:             TypeCreateIndex,
		Priority:         PriorityIndex,
		Phase:            Expand,
		SchemaName:       g.ctx.Schema,
		TableName:        g.ctx.newTable(table),
		CurrentTableName: table,
		Up:               up,
		Down:             []string{g.dropIndex(name)},
		NonTransactional: true,
	}}
}

func (g *generator) indexDrop(d diff.Diff) []Changeset {
	table, name := d.Path[1], d.Path[2]
	def, ok := definitionValue(d.OldValue)
	if !ok {
		return g.skip(d, "missing definition")
	}
	current := g.ctx.address(table, Contract)
	def.SQL = g.retarget(def.SQL, table, current, name, name)
	down, ok := g.createIndex(def, name)
	if !ok {
		return g.skip(d, "unparsable index definition")
	}
	return []Changeset{{
		Type:             TypeDropIndex,
		Priority:         PriorityDropIndex,
		Phase:            Contract,
		SchemaName:       g.ctx.Schema,
		TableName:        current,
		CurrentTableName: current,
		Up:               []string{g.dropIndex(name)},
		Down:             down,
		NonTransactional: true,
	}}
}

func (g *generator) indexChange(d diff.Diff) []Changeset {
	table, name := d.Path[1], d.Path[2]
	def, ok1 := definitionValue(d.Value)
	old, ok2 := definitionValue(d.OldValue)
	if !ok1 || !ok2 {
		return g.skip(d, "missing definition")
	}
	current := g.ctx.address(table, Alter)
	newName := g.renamedObject(table, name)
	def.SQL = g.retarget(def.SQL, table, current, name, newName)
	old.SQL = g.retarget(old.SQL, table, current, name, newName)

	create, ok1 := g.createIndex(def, newName)
	restore, ok2 := g.createIndex(old, newName)
	if !ok1 || !ok2 {
		return g.skip(d, "unparsable index definition")
	}
	return []Changeset{{
		Type:             TypeChangeIndex,
		Priority:         PriorityIndex,
		Phase:            Alter,
		SchemaName:       g.ctx.Schema,
		TableName:        current,
		CurrentTableName: current,
		Up:               append([]string{g.dropIndex(newName)}, create...),
		Down:             append([]string{g.dropIndex(newName)}, restore...),
		NonTransactional: true,
	}}
}

// -----------------------------------------------------------------------------
// Triggers
// -----------------------------------------------------------------------------

func (g *generator) createTrigger(table, name string, def snapshot.Definition) []string {
	stmts := []string{def.SQL}
	if def.Hash != "" {
		stmts = append(stmts, fmt.Sprintf("COMMENT ON TRIGGER %s ON %s IS %s",
			strutil.QuoteIdent(name), g.qualify(table), strutil.QuoteLiteral(def.Hash)))
	}
	return stmts
}

func (g *generator) dropTrigger(table, name string) string {
	return fmt.Sprintf("DROP TRIGGER IF EXISTS %s ON %s", strutil.QuoteIdent(name), g.qualify(table))
}

func (g *generator) triggerCreate(d diff.Diff) []Changeset {
	table, name := d.Path[1], d.Path[2]
	def, ok := definitionValue(d.Value)
	if !ok || !isTriggerDefinition(def.SQL) {
		return g.skip(d, "unparsable trigger definition")
	}
	return []Changeset{{
		Type:             TypeCreateTrigger,
		Priority:         PriorityTrigger,
		Phase:            Expand,
		SchemaName:       g.ctx.Schema,
		TableName:        g.ctx.newTable(table),
		CurrentTableName: table,
		Up:               g.createTrigger(table, name, def),
		Down:             []string{g.dropTrigger(table, name)},
	}}
}

func (g *generator) triggerDrop(d diff.Diff) []Changeset {
	table, name := d.Path[1], d.Path[2]
	def, ok := definitionValue(d.OldValue)
	if !ok || !isTriggerDefinition(def.SQL) {
		return g.skip(d, "unparsable trigger definition")
	}
	current := g.ctx.address(table, Contract)
	def.SQL = g.retarget(def.SQL, table, current, name, name)
	return []Changeset{{
		Type:             TypeDropTrigger,
		Priority:         PriorityDropTrigger,
		Phase:            Contract,
		SchemaName:       g.ctx.Schema,
		TableName:        current,
		CurrentTableName: current,
		Up:               []string{g.dropTrigger(current, name)},
		Down:             g.createTrigger(current, name, def),
	}}
}

func (g *generator) triggerChange(d diff.Diff) []Changeset {
	table, name := d.Path[1], d.Path[2]
	def, ok1 := definitionValue(d.Value)
	old, ok2 := definitionValue(d.OldValue)
	if !ok1 || !ok2 || !isTriggerDefinition(def.SQL) || !isTriggerDefinition(old.SQL) {
		return g.skip(d, "unparsable trigger definition")
	}
	current := g.ctx.address(table, Alter)
	newName := g.renamedObject(table, name)
	def.SQL = g.retarget(def.SQL, table, current, name, newName)
	old.SQL = g.retarget(old.SQL, table, current, name, newName)
	return []Changeset{{
		Type:             TypeChangeTrigger,
		Priority:         PriorityTrigger,
		Phase:            Alter,
		SchemaName:       g.ctx.Schema,
		TableName:        current,
		CurrentTableName: current,
		Up:               append([]string{g.dropTrigger(current, newName)}, g.createTrigger(current, newName, def)...),
		Down:             append([]string{g.dropTrigger(current, newName)}, g.createTrigger(current, newName, old)...),
	}}
}
