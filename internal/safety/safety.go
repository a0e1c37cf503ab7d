// Package safety enriches changeset warnings with live row counts so a
// reviewer can tell a risky change on an empty table from one on a large
// table.
package safety

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"slices"

	"github.com/hlop3z/pgphase/internal/changeset"
	"github.com/hlop3z/pgphase/internal/strutil"
)

// MaxCount caps a row count; a warning showing MaxCount rows means at least
// that many.
const MaxCount = 1_000_000

// Queryer is satisfied by *sql.DB, *sql.Conn and *sql.Tx.
type Queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// counted reports whether warnings of kind get a row count.
func counted(kind changeset.WarningKind) bool {
	return kind == changeset.Destructive || kind == changeset.MightFail
}

// Annotate returns a copy of cs whose Destructive and MightFail warnings
// carry the row count of their table. Tables that cannot be counted, such as
// ones the changesets create, keep a count of -1. Order and content are
// otherwise unchanged.
func Annotate(ctx context.Context, db Queryer, cs []changeset.Changeset) []changeset.Changeset {
	out := slices.Clone(cs)
	counts := make(map[string]int64)

	for i, c := range out {
		if len(c.Warnings) == 0 {
			continue
		}
		warnings := slices.Clone(c.Warnings)
		for j, w := range warnings {
			if !counted(w.Kind) || w.Table == "" {
				continue
			}
			table := w.Table
			if w.Table == c.TableName && c.CurrentTableName != "" {
				table = c.CurrentTableName
			}
			name := strutil.Qualify(w.Schema, table)

			n, ok := counts[name]
			if !ok {
				n = countRows(ctx, db, name)
				counts[name] = n
			}
			warnings[j].RowCount = n
		}
		out[i].Warnings = warnings
	}
	return out
}

func countRows(ctx context.Context, db Queryer, qualified string) int64 {
	query := fmt.Sprintf("SELECT COUNT(*) FROM (SELECT 1 FROM %s LIMIT %d) AS sample", qualified, MaxCount)
	var n int64
	if err := db.QueryRowContext(ctx, query).Scan(&n); err != nil {
		slog.Debug("row count unavailable", "table", qualified, "error", err)
		return -1
	}
	return n
}
