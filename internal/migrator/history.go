package migrator

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hlop3z/pgphase/internal/alerr"
	"github.com/hlop3z/pgphase/internal/push"
	"github.com/hlop3z/pgphase/internal/strutil"
)

// HistoryTable records every applied migration:
//
//	CREATE TABLE pgphase_migrations (
//	    name        text PRIMARY KEY,
//	    executed_at timestamp NOT NULL DEFAULT CURRENT_TIMESTAMP
//	)
const HistoryTable = "pgphase_migrations"

// Applied is one row of the history table.
type Applied struct {
	Name       string
	ExecutedAt time.Time
}

// history reads and writes the history table on one connection.
type history struct {
	table  string
	sqlite bool
}

func (h history) placeholder() string {
	if h.sqlite {
		return "?"
	}
	return "$1"
}

func (h history) ensure(ctx context.Context, ex push.Execer) error {
	query := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
    name        text PRIMARY KEY,
    executed_at timestamp NOT NULL DEFAULT CURRENT_TIMESTAMP
)`, strutil.QuoteIdent(h.table))
	if _, err := ex.ExecContext(ctx, query); err != nil {
		return alerr.Wrap(alerr.ErrSQLExecution, err, "failed to create migrations table").WithSQL(query)
	}
	return nil
}

// applied returns the history ordered by name.
func (h history) applied(ctx context.Context, conn *sql.Conn) ([]Applied, error) {
	query := fmt.Sprintf("SELECT name, executed_at FROM %s ORDER BY name ASC", strutil.QuoteIdent(h.table))
	rows, err := conn.QueryContext(ctx, query)
	if err != nil {
		return nil, alerr.Wrap(alerr.ErrSQLExecution, err, "failed to query applied migrations").WithSQL(query)
	}
	defer rows.Close()

	var out []Applied
	for rows.Next() {
		var a Applied
		var executedAt any
		if err := rows.Scan(&a.Name, &executedAt); err != nil {
			return nil, alerr.Wrap(alerr.ErrSQLExecution, err, "failed to scan migration row")
		}
		a.ExecutedAt = parseExecutedAt(executedAt)
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, alerr.Wrap(alerr.ErrSQLExecution, err, "error iterating migration rows")
	}
	return out, nil
}

func (h history) record(ctx context.Context, ex push.Execer, name string) error {
	query := fmt.Sprintf("INSERT INTO %s (name) VALUES (%s)", strutil.QuoteIdent(h.table), h.placeholder())
	if _, err := ex.ExecContext(ctx, query, name); err != nil {
		return alerr.Wrap(alerr.ErrSQLExecution, err, "failed to record applied migration").
			With("migration", name).
			WithSQL(query)
	}
	return nil
}

func (h history) remove(ctx context.Context, ex push.Execer, name string) error {
	query := fmt.Sprintf("DELETE FROM %s WHERE name = %s", strutil.QuoteIdent(h.table), h.placeholder())
	res, err := ex.ExecContext(ctx, query, name)
	if err != nil {
		return alerr.Wrap(alerr.ErrSQLExecution, err, "failed to remove migration record").
			With("migration", name).
			WithSQL(query)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return alerr.New(alerr.ErrMigrationNotFound, "migration not found in history table").With("migration", name)
	}
	return nil
}

// parseExecutedAt accepts the driver's timestamp; SQLite may hand back text.
func parseExecutedAt(val any) time.Time {
	switch t := val.(type) {
	case time.Time:
		return t
	case []byte:
		return parseExecutedAt(string(t))
	case string:
		for _, layout := range []string{time.RFC3339Nano, "2006-01-02 15:04:05", "2006-01-02T15:04:05"} {
			if parsed, err := time.Parse(layout, t); err == nil {
				return parsed
			}
		}
	}
	return time.Time{}
}
