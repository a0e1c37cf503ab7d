package introspect

import (
	"context"
	"database/sql"
	"strings"

	"github.com/hlop3z/pgphase/internal/compile"
	"github.com/hlop3z/pgphase/internal/snapshot"
	"github.com/hlop3z/pgphase/internal/strutil"
)

// Arrays are flattened with array_to_string and the unit separator so names
// containing commas survive.
const listSeparator = "\x1f"

// attnames renders the ordered column names of a constraint key array.
func attnames(keys, rel string) string {
	return `array_to_string(ARRAY(
		SELECT a.attname FROM unnest(` + keys + `) WITH ORDINALITY k(attnum, ord)
		JOIN pg_attribute a ON a.attrelid = ` + rel + ` AND a.attnum = k.attnum
		ORDER BY k.ord), chr(31))`
}

const managedSchemasQuery = `
	SELECT nspname FROM pg_namespace
	WHERE obj_description(oid, 'pg_namespace') = $1
	ORDER BY nspname
`

const extensionsQuery = `SELECT extname FROM pg_extension ORDER BY extname`

const columnsQuery = `
	SELECT
		c.relname,
		a.attname,
		format_type(a.atttypid, a.atttypmod),
		NOT a.attnotnull,
		pg_get_expr(d.adbin, d.adrelid),
		a.attidentity::text,
		t.typtype::text = 'e',
		t.typname,
		col_description(c.oid, a.attnum),
		pg_get_serial_sequence(quote_ident(n.nspname) || '.' || quote_ident(c.relname), a.attname) IS NOT NULL
	FROM pg_attribute a
	JOIN pg_class c ON c.oid = a.attrelid
	JOIN pg_namespace n ON n.oid = c.relnamespace
	JOIN pg_type t ON t.oid = a.atttypid
	LEFT JOIN pg_attrdef d ON d.adrelid = a.attrelid AND d.adnum = a.attnum
	WHERE n.nspname = $1
		AND c.relkind IN ('r', 'p')
		AND a.attnum > 0
		AND NOT a.attisdropped
		AND obj_description(c.oid, 'pg_class') = $2
	ORDER BY c.relname, a.attnum
`

var constraintsQuery = `
	SELECT cl.relname, con.conname, ` + attnames("con.conkey", "con.conrelid") + `
	FROM pg_constraint con
	JOIN pg_class cl ON cl.oid = con.conrelid
	JOIN pg_namespace n ON n.oid = cl.relnamespace
	WHERE n.nspname = $1 AND con.contype::text = $2
	ORDER BY 1, 2
`

const checksQuery = `
	SELECT cl.relname, con.conname, pg_get_constraintdef(con.oid), obj_description(con.oid, 'pg_constraint')
	FROM pg_constraint con
	JOIN pg_class cl ON cl.oid = con.conrelid
	JOIN pg_namespace n ON n.oid = cl.relnamespace
	WHERE n.nspname = $1 AND con.contype = 'c'
	ORDER BY 1, 2
`

var foreignKeysQuery = `
	SELECT
		cl.relname,
		con.conname,
		` + attnames("con.conkey", "con.conrelid") + `,
		rn.nspname,
		rc.relname,
		` + attnames("con.confkey", "con.confrelid") + `,
		con.confdeltype::text,
		con.confupdtype::text
	FROM pg_constraint con
	JOIN pg_class cl ON cl.oid = con.conrelid
	JOIN pg_namespace n ON n.oid = cl.relnamespace
	JOIN pg_class rc ON rc.oid = con.confrelid
	JOIN pg_namespace rn ON rn.oid = rc.relnamespace
	WHERE n.nspname = $1 AND con.contype = 'f'
	ORDER BY 1, 2
`

// Indexes backing primary key, unique and exclusion constraints belong to
// their constraint and are not listed.
const indexesQuery = `
	SELECT t.relname, i.relname, pg_get_indexdef(i.oid), obj_description(i.oid, 'pg_class')
	FROM pg_index ix
	JOIN pg_class i ON i.oid = ix.indexrelid
	JOIN pg_class t ON t.oid = ix.indrelid
	JOIN pg_namespace n ON n.oid = t.relnamespace
	WHERE n.nspname = $1
		AND NOT EXISTS (
			SELECT 1 FROM pg_constraint con
			WHERE con.conindid = ix.indexrelid AND con.contype IN ('p', 'u', 'x')
		)
	ORDER BY 1, 2
`

const triggersQuery = `
	SELECT c.relname, tg.tgname, pg_get_triggerdef(tg.oid), obj_description(tg.oid, 'pg_trigger')
	FROM pg_trigger tg
	JOIN pg_class c ON c.oid = tg.tgrelid
	JOIN pg_namespace n ON n.oid = c.relnamespace
	WHERE n.nspname = $1 AND NOT tg.tgisinternal
	ORDER BY 1, 2
`

const enumsQuery = `
	SELECT t.typname, array_to_string(ARRAY(
		SELECT e.enumlabel FROM pg_enum e
		WHERE e.enumtypid = t.oid
		ORDER BY e.enumsortorder), chr(31))
	FROM pg_type t
	JOIN pg_namespace n ON n.oid = t.typnamespace
	WHERE n.nspname = $1 AND t.typtype = 'e' AND obj_description(t.oid, 'pg_type') = $2
	ORDER BY 1
`

func (r *reader) extensions(ctx context.Context) (map[string]bool, error) {
	out := make(map[string]bool)
	err := r.query(ctx, snapshot.CategoryExtension, extensionsQuery, func(rows *sql.Rows) error {
		var name string
		if err := rows.Scan(&name); err != nil {
			return err
		}
		if !r.skipped(defaultSkippedExtensions, name) && !r.skipped(r.opts.Skip.Extensions, name) {
			out[name] = true
		}
		return nil
	})
	return out, err
}

func (r *reader) tables(ctx context.Context) (map[string]*snapshot.TableInfo, error) {
	out := make(map[string]*snapshot.TableInfo)
	err := r.query(ctx, snapshot.CategoryTable, columnsQuery, func(rows *sql.Rows) error {
		var (
			raw   rawColumn
			table string
		)
		if err := rows.Scan(&table, &raw.Name, &raw.DataType, &raw.Nullable, &raw.Default,
			&raw.Identity, &raw.IsEnum, &raw.TypeName, &raw.Comment, &raw.Serial); err != nil {
			return err
		}
		if r.skipped(r.opts.Skip.Tables, table) {
			return nil
		}
		t, ok := out[table]
		if !ok {
			t = snapshot.NewTable(table)
			out[table] = t
		}
		t.AddColumn(raw.column())
		return nil
	}, r.schema, r.opts.marker())
	return out, err
}

func (r *reader) constraints(ctx context.Context, contype string) (snapshot.ObjectMap, error) {
	category, keyword := snapshot.CategoryPrimaryKey, "PRIMARY KEY"
	if contype == "u" {
		category, keyword = snapshot.CategoryUnique, "UNIQUE"
	}
	out := make(snapshot.ObjectMap)
	err := r.query(ctx, category, constraintsQuery, func(rows *sql.Rows) error {
		var table, name, cols string
		if err := rows.Scan(&table, &name, &cols); err != nil {
			return err
		}
		out.Put(table, name, snapshot.Definition{
			SQL: keyword + " (" + strutil.QuoteIdents(splitList(cols)) + ")",
		})
		return nil
	}, r.schema, contype)
	return out, err
}

func (r *reader) checks(ctx context.Context) (snapshot.ObjectMap, error) {
	out := make(snapshot.ObjectMap)
	err := r.query(ctx, snapshot.CategoryCheck, checksQuery, func(rows *sql.Rows) error {
		var table, name, def string
		var comment sql.NullString
		if err := rows.Scan(&table, &name, &def, &comment); err != nil {
			return err
		}
		out.Put(table, name, commented(comment, strings.TrimSuffix(def, " NOT VALID")))
		return nil
	}, r.schema)
	return out, err
}

func (r *reader) foreignKeys(ctx context.Context) (snapshot.ObjectMap, error) {
	out := make(snapshot.ObjectMap)
	err := r.query(ctx, snapshot.CategoryForeignKey, foreignKeysQuery, func(rows *sql.Rows) error {
		var table, name, cols, refSchema, refTable, refCols, onDelete, onUpdate string
		if err := rows.Scan(&table, &name, &cols, &refSchema, &refTable, &refCols, &onDelete, &onUpdate); err != nil {
			return err
		}
		out.Put(table, name, snapshot.Definition{
			SQL: compile.ForeignKeySQL(splitList(cols), refSchema, refTable, splitList(refCols),
				referentialAction(onDelete), referentialAction(onUpdate)),
		})
		return nil
	}, r.schema)
	return out, err
}

func (r *reader) indexes(ctx context.Context) (snapshot.ObjectMap, error) {
	return r.commentedObjects(ctx, snapshot.CategoryIndex, indexesQuery)
}

func (r *reader) triggers(ctx context.Context) (snapshot.ObjectMap, error) {
	return r.commentedObjects(ctx, snapshot.CategoryTrigger, triggersQuery)
}

// commentedObjects reads (table, name, definition, comment) rows.
func (r *reader) commentedObjects(ctx context.Context, category, query string) (snapshot.ObjectMap, error) {
	out := make(snapshot.ObjectMap)
	err := r.query(ctx, category, query, func(rows *sql.Rows) error {
		var table, name, def string
		var comment sql.NullString
		if err := rows.Scan(&table, &name, &def, &comment); err != nil {
			return err
		}
		out.Put(table, name, commented(comment, def))
		return nil
	}, r.schema)
	return out, err
}

func (r *reader) enums(ctx context.Context) (map[string][]string, error) {
	out := make(map[string][]string)
	err := r.query(ctx, snapshot.CategoryEnum, enumsQuery, func(rows *sql.Rows) error {
		var name, values string
		if err := rows.Scan(&name, &values); err != nil {
			return err
		}
		if !r.skipped(r.opts.Skip.Enums, name) {
			out[name] = splitList(values)
		}
		return nil
	}, r.schema, r.opts.marker())
	return out, err
}
