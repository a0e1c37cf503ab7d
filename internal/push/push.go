// Package push applies changesets directly to a live database without
// writing migration files.
//
// Changesets run in the order given, one group at a time on a single
// dedicated connection. A transactional group runs inside its own
// transaction; a non-transactional group runs on the bare connection. The
// first failure rolls back the open transaction and aborts the run.
package push

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/hlop3z/pgphase/internal/alerr"
	"github.com/hlop3z/pgphase/internal/changeset"
	"github.com/hlop3z/pgphase/internal/dblock"
)

// Executor runs changesets against a database.
type Executor struct {
	db     *sql.DB
	locker dblock.Locker
	logger *slog.Logger
}

// Option configures an Executor.
type Option func(*Executor)

// WithLocker replaces the default Postgres advisory lock.
func WithLocker(l dblock.Locker) Option {
	return func(e *Executor) { e.locker = l }
}

// WithLogger sets the logger; the default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(e *Executor) { e.logger = l }
}

// NewExecutor returns an Executor holding the advisory lock while it runs.
func NewExecutor(db *sql.DB, opts ...Option) *Executor {
	e := &Executor{
		db:     db,
		locker: dblock.NewAdvisory(dblock.DefaultName, 0),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Push executes ordered changesets. Later groups are not attempted after a
// failure.
func (e *Executor) Push(ctx context.Context, cs []changeset.Changeset) error {
	groups := changeset.Groups(cs)
	if len(groups) == 0 {
		return nil
	}

	runID := uuid.NewString()
	log := e.logger.With("run", runID)

	return WithConn(ctx, e.db, e.locker, log, func(conn *sql.Conn) error {
		for _, g := range groups {
			start := time.Now()
			log.Info("executing phase",
				"schema", g.Schema,
				"phase", g.Phase.String(),
				"transaction", g.Transactional,
				"changesets", len(g.Changesets),
			)
			if err := Exec(ctx, conn, g.Up(), g.Transactional, nil); err != nil {
				var ae *alerr.Error
				if errors.As(err, &ae) {
					ae.With("schema", g.Schema).With("phase", g.Phase.String())
				}
				log.Error("phase failed", "schema", g.Schema, "phase", g.Phase.String(), "error", err)
				return err
			}
			log.Debug("phase done", "schema", g.Schema, "phase", g.Phase.String(), "elapsed", time.Since(start))
		}
		return nil
	})
}

// DryRun returns the statements Push would execute, with a comment line
// introducing every group.
func DryRun(cs []changeset.Changeset) []string {
	var out []string
	for _, g := range changeset.Groups(cs) {
		header := fmt.Sprintf("-- %s", g.Phase)
		if g.Schema != "" {
			header += " " + g.Schema
		}
		if !g.Transactional {
			header += " (no transaction)"
		}
		out = append(out, header)
		out = append(out, g.Up()...)
	}
	return out
}

// WithConn takes a dedicated connection from db, holds the lock on it while
// fn runs, then releases both.
func WithConn(ctx context.Context, db *sql.DB, locker dblock.Locker, log *slog.Logger, fn func(conn *sql.Conn) error) error {
	conn, err := db.Conn(ctx)
	if err != nil {
		return alerr.Wrap(alerr.ErrSQLConnection, err, "failed to open connection")
	}
	defer conn.Close()

	if locker != nil {
		if err := locker.Lock(ctx, conn); err != nil {
			return err
		}
		defer func() {
			// The run context may be cancelled; release on a fresh one.
			releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := locker.Unlock(releaseCtx, conn); err != nil {
				log.Warn("failed to release lock", "error", err)
			}
		}()
	}
	return fn(conn)
}

// Execer is satisfied by *sql.Conn and *sql.Tx.
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Exec runs statements on conn, inside a transaction when transactional is
// set. after, when not nil, runs last on the same transaction or connection;
// the migrator uses it to record bookkeeping atomically with the statements.
func Exec(ctx context.Context, conn *sql.Conn, stmts []string, transactional bool, after func(context.Context, Execer) error) error {
	if !transactional {
		if err := execAll(ctx, conn, stmts); err != nil {
			return err
		}
		if after != nil {
			if err := after(ctx, conn); err != nil {
				return alerr.Wrap(alerr.ErrSQLExecution, err, "failed to finish statements")
			}
		}
		return nil
	}

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return alerr.Wrap(alerr.ErrSQLTransaction, err, "failed to begin transaction")
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	if err := execAll(ctx, tx, stmts); err != nil {
		return err
	}
	if after != nil {
		if err := after(ctx, tx); err != nil {
			return alerr.Wrap(alerr.ErrSQLExecution, err, "failed to finish statements")
		}
	}
	if err := tx.Commit(); err != nil {
		return alerr.Wrap(alerr.ErrSQLTransaction, err, "failed to commit transaction")
	}
	committed = true
	return nil
}

func execAll(ctx context.Context, ex Execer, stmts []string) error {
	for _, stmt := range stmts {
		if _, err := ex.ExecContext(ctx, stmt); err != nil {
			e := alerr.Wrap(alerr.ErrSQLExecution, err, "failed to execute statement").WithSQL(stmt)
			if state := SQLState(err); state != "" {
				e.With("sqlstate", state)
			}
			return e
		}
	}
	return nil
}
