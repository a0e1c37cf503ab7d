package changeset

import (
	"fmt"
	"strings"

	"github.com/hlop3z/pgphase/internal/snapshot"
	"github.com/hlop3z/pgphase/internal/strutil"
)

var serialTypes = map[string]bool{"serial": true, "bigserial": true, "smallserial": true}

func (g *generator) qualify(name string) string {
	return strutil.Qualify(g.ctx.Schema, name)
}

// columnType renders the type of c, qualifying enum types.
func (g *generator) columnType(c *snapshot.ColumnInfo) string {
	if c.IsEnum {
		return g.qualify(c.DataType)
	}
	return c.DataType
}

// columnDefinition renders a column for CREATE TABLE and ADD COLUMN.
func (g *generator) columnDefinition(name string, c *snapshot.ColumnInfo) string {
	var b strings.Builder
	b.WriteString(strutil.QuoteIdent(name))
	b.WriteByte(' ')
	b.WriteString(g.columnType(c))

	implicitNotNull := serialTypes[c.DataType]
	switch {
	case c.Identity != snapshot.IdentityNone:
		fmt.Fprintf(&b, " GENERATED %s AS IDENTITY", c.Identity)
		implicitNotNull = true
	case !c.Default.IsZero():
		b.WriteString(" DEFAULT ")
		b.WriteString(c.Default.SQL)
	}
	if !c.Nullable && !implicitNotNull {
		b.WriteString(" NOT NULL")
	}
	return b.String()
}

// createTable renders CREATE TABLE plus the ownership marker and the hash
// comments of column defaults.
func (g *generator) createTable(name string, t *snapshot.TableInfo) []string {
	q := g.qualify(name)
	defs := make([]string, 0, len(t.Order))
	for _, c := range t.OrderedColumns() {
		defs = append(defs, "  "+g.columnDefinition(c.Name, c))
	}
	stmts := []string{
		fmt.Sprintf("CREATE TABLE %s (\n%s\n)", q, strings.Join(defs, ",\n")),
		fmt.Sprintf("COMMENT ON TABLE %s IS %s", q, strutil.QuoteLiteral(snapshot.Marker)),
	}
	for _, c := range t.OrderedColumns() {
		if c.Identity == snapshot.IdentityNone && !c.Default.IsZero() {
			stmts = append(stmts, g.columnComment(name, c.Name, c.Default.Hash))
		}
	}
	return stmts
}

func (g *generator) columnComment(table, column, hash string) string {
	value := "NULL"
	if hash != "" {
		value = strutil.QuoteLiteral(hash)
	}
	return fmt.Sprintf("COMMENT ON COLUMN %s.%s IS %s", g.qualify(table), strutil.QuoteIdent(column), value)
}

func (g *generator) indexComment(name, hash string) string {
	value := "NULL"
	if hash != "" {
		value = strutil.QuoteLiteral(hash)
	}
	return fmt.Sprintf("COMMENT ON INDEX %s IS %s", g.qualify(name), value)
}

func (g *generator) alterTable(table, format string, args ...any) string {
	return fmt.Sprintf("ALTER TABLE %s ", g.qualify(table)) + fmt.Sprintf(format, args...)
}

func (g *generator) alterColumn(table, column, format string, args ...any) string {
	return g.alterTable(table, "ALTER COLUMN %s ", strutil.QuoteIdent(column)) + fmt.Sprintf(format, args...)
}

func (g *generator) createEnum(name string, values []string) []string {
	literals := make([]string, len(values))
	for i, v := range values {
		literals[i] = strutil.QuoteLiteral(v)
	}
	q := g.qualify(name)
	return []string{
		fmt.Sprintf("CREATE TYPE %s AS ENUM (%s)", q, strings.Join(literals, ", ")),
		fmt.Sprintf("COMMENT ON TYPE %s IS %s", q, strutil.QuoteLiteral(snapshot.Marker)),
	}
}

func createSchema(name string) []string {
	q := strutil.QuoteIdent(name)
	return []string{
		fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", q),
		fmt.Sprintf("COMMENT ON SCHEMA %s IS %s", q, strutil.QuoteLiteral(snapshot.Marker)),
	}
}

// concurrentIndex rewrites a CREATE [UNIQUE] INDEX statement to build
// concurrently and tolerate an existing index. ok is false when sql is not
// an index definition.
func concurrentIndex(sql string) (string, bool) {
	for _, prefix := range []string{"CREATE UNIQUE INDEX ", "CREATE INDEX "} {
		if rest, found := strings.CutPrefix(sql, prefix); found {
			rest = strings.TrimPrefix(rest, "CONCURRENTLY ")
			rest = strings.TrimPrefix(rest, "IF NOT EXISTS ")
			return prefix + "CONCURRENTLY IF NOT EXISTS " + rest, true
		}
	}
	return "", false
}

func isTriggerDefinition(sql string) bool {
	return strings.HasPrefix(sql, "CREATE TRIGGER ") || strings.HasPrefix(sql, "CREATE CONSTRAINT TRIGGER ")
}

// retarget points an index or trigger definition at a renamed table and
// object name. Definitions come either from the compiler, fully quoted, or
// from pg_get_indexdef and pg_get_triggerdef, which qualify the table and
// quote only where needed.
func (g *generator) retarget(sql, oldTable, newTable, oldName, newName string) string {
	if oldTable != newTable {
		sql = replaceToken(sql, "ON", g.tableSpellings(oldTable), g.qualify(newTable))
	}
	if oldName != newName {
		sql = replaceToken(sql, "", []string{strutil.QuoteIdent(oldName), oldName}, strutil.QuoteIdent(newName))
	}
	return sql
}

// tableSpellings lists the ways a definition can refer to table.
func (g *generator) tableSpellings(table string) []string {
	schemaName := g.ctx.Schema
	if schemaName == "" {
		schemaName = strutil.DefaultSchema
	}
	tables := []string{strutil.QuoteIdent(table), table}
	var out []string
	for _, s := range []string{strutil.QuoteIdent(schemaName), schemaName} {
		for _, t := range tables {
			out = append(out, s+"."+t)
		}
	}
	return append(out, tables...)
}

// replaceToken replaces the first of spellings found as a whole token,
// optionally preceded by keyword.
func replaceToken(sql, keyword string, spellings []string, to string) string {
	prefix := " "
	if keyword != "" {
		prefix = " " + keyword + " "
	}
	for _, from := range spellings {
		if old := prefix + from + " "; strings.Contains(sql, old) {
			return strings.Replace(sql, old, prefix+to+" ", 1)
		}
	}
	return sql
}
