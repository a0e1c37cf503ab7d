// Package introspect reads the live structure of a Postgres schema from the
// system catalogs and reduces it to a snapshot.Snapshot.
//
// Only objects tagged with the ownership marker are read: tables, enums and
// schemas created by pgphase carry it in their comment. Catalog categories
// are independent and are queried concurrently over the shared pool.
package introspect

import (
	"context"
	"database/sql"
	"slices"

	"golang.org/x/sync/errgroup"

	"github.com/hlop3z/pgphase/internal/alerr"
	"github.com/hlop3z/pgphase/internal/snapshot"
)

// Options controls introspection.
type Options struct {
	// CamelCase is recorded on the snapshot; catalog names are physical.
	CamelCase bool

	// Skip lists externally managed objects that are never read.
	Skip Skip

	// Marker overrides the ownership comment. Empty means snapshot.Marker.
	Marker string
}

// Skip lists objects, per category, that introspection ignores.
type Skip struct {
	Tables     []string `yaml:"tables,omitempty"`
	Extensions []string `yaml:"extensions,omitempty"`
	Enums      []string `yaml:"enums,omitempty"`
}

func (o Options) marker() string {
	if o.Marker != "" {
		return o.Marker
	}
	return snapshot.Marker
}

// defaultSkippedExtensions are installed in every database.
var defaultSkippedExtensions = []string{"plpgsql"}

// Queryer is the part of *sql.DB introspection needs.
type Queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	PingContext(ctx context.Context) error
}

// Introspect reads one schema. The database level snapshot, holding only the
// installed extensions, is read when schemaName is empty.
func Introspect(ctx context.Context, db Queryer, schemaName string, opts Options) (*snapshot.Snapshot, error) {
	if err := db.PingContext(ctx); err != nil {
		return nil, alerr.Wrap(alerr.ErrSQLConnection, err, "database is not reachable").
			WithOp("introspect")
	}

	snap := snapshot.New(schemaName)
	snap.CamelCase = opts.CamelCase
	r := &reader{db: db, schema: schemaName, opts: opts}

	if schemaName == "" {
		exts, err := r.extensions(ctx)
		if err != nil {
			return nil, err
		}
		snap.Extensions = exts
		return snap, nil
	}

	var (
		tables            map[string]*snapshot.TableInfo
		pks, uniques      snapshot.ObjectMap
		checks, fks       snapshot.ObjectMap
		indexes, triggers snapshot.ObjectMap
		enums             map[string][]string
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		tables, err = r.tables(gctx)
		return err
	})
	g.Go(func() (err error) {
		pks, err = r.constraints(gctx, "p")
		return err
	})
	g.Go(func() (err error) {
		uniques, err = r.constraints(gctx, "u")
		return err
	})
	g.Go(func() (err error) {
		checks, err = r.checks(gctx)
		return err
	})
	g.Go(func() (err error) {
		fks, err = r.foreignKeys(gctx)
		return err
	})
	g.Go(func() (err error) {
		indexes, err = r.indexes(gctx)
		return err
	})
	g.Go(func() (err error) {
		triggers, err = r.triggers(gctx)
		return err
	})
	g.Go(func() (err error) {
		enums, err = r.enums(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	snap.Tables = tables
	snap.Enums = enums
	snap.PrimaryKeys = managed(pks, tables)
	snap.Uniques = managed(uniques, tables)
	snap.Checks = managed(checks, tables)
	snap.ForeignKeys = managed(fks, tables)
	snap.Indexes = managed(indexes, tables)
	snap.Triggers = managed(triggers, tables)
	return snap, nil
}

// managed drops the objects of tables that are not owned by pgphase.
func managed(objects snapshot.ObjectMap, tables map[string]*snapshot.TableInfo) snapshot.ObjectMap {
	out := make(snapshot.ObjectMap, len(objects))
	for table, objs := range objects {
		if _, ok := tables[table]; ok {
			out[table] = objs
		}
	}
	return out
}

// ManagedSchemas lists the schemas tagged with the ownership marker.
func ManagedSchemas(ctx context.Context, db Queryer, opts Options) ([]string, error) {
	rows, err := db.QueryContext(ctx, managedSchemasQuery, opts.marker())
	if err != nil {
		return nil, alerr.WrapIntrospection(err, snapshot.CategorySchema, "")
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, alerr.WrapIntrospection(err, snapshot.CategorySchema, "")
		}
		out = append(out, name)
	}
	if err := rows.Err(); err != nil {
		return nil, alerr.WrapIntrospection(err, snapshot.CategorySchema, "")
	}
	return out, nil
}

type reader struct {
	db     Queryer
	schema string
	opts   Options
}

func (r *reader) skipped(list []string, name string) bool {
	return slices.Contains(list, name)
}

// query runs a catalog query and hands every row to scan.
func (r *reader) query(ctx context.Context, category, query string, scan func(*sql.Rows) error, args ...any) error {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return alerr.WrapIntrospection(err, category, r.schema)
	}
	defer rows.Close()

	for rows.Next() {
		if err := scan(rows); err != nil {
			return alerr.WrapIntrospection(err, category, r.schema)
		}
	}
	if err := rows.Err(); err != nil {
		return alerr.WrapIntrospection(err, category, r.schema)
	}
	return nil
}
