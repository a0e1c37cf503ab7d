// Package migrator applies and reverts migration files and records them in
// the pgphase_migrations history table.
//
// Migrations run one at a time in file name order on a single connection
// that holds the advisory lock. Each migration runs in its own transaction
// unless its file declares transaction: false; its history row is written in
// the same transaction.
package migrator

import (
	"context"
	"database/sql"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hlop3z/pgphase/internal/alerr"
	"github.com/hlop3z/pgphase/internal/changeset"
	"github.com/hlop3z/pgphase/internal/dblock"
	"github.com/hlop3z/pgphase/internal/lockfile"
	"github.com/hlop3z/pgphase/internal/migfile"
	"github.com/hlop3z/pgphase/internal/push"
)

// Migrator runs the migration files of one directory.
type Migrator struct {
	db       *sql.DB
	dir      string
	lockPath string
	locker   dblock.Locker
	logger   *slog.Logger
	history  history
}

// Option configures a Migrator.
type Option func(*Migrator)

// WithLocker replaces the default Postgres advisory lock.
func WithLocker(l dblock.Locker) Option {
	return func(m *Migrator) { m.locker = l }
}

// WithLogger sets the logger; the default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(m *Migrator) { m.logger = l }
}

// WithLockFile verifies migration files against the lock file at path
// before applying them. A missing lock file disables the check.
func WithLockFile(path string) Option {
	return func(m *Migrator) { m.lockPath = path }
}

// WithSQLite switches bookkeeping queries to SQLite placeholders. Tests use
// it with an in-memory database.
func WithSQLite() Option {
	return func(m *Migrator) { m.history.sqlite = true }
}

// New returns a Migrator for the migration files in dir.
func New(db *sql.DB, dir string, opts ...Option) *Migrator {
	m := &Migrator{
		db:      db,
		dir:     dir,
		locker:  dblock.NewAdvisory(dblock.DefaultName, 0),
		logger:  slog.Default(),
		history: history{table: HistoryTable},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// State is the status of one migration.
type State struct {
	Name       string
	Phase      changeset.Phase
	Applied    bool
	ExecutedAt time.Time
	// Missing marks a recorded migration whose file is gone.
	Missing bool
}

// Status lists every migration file and every recorded migration, in name
// order.
func (m *Migrator) Status(ctx context.Context) ([]State, error) {
	files, err := migfile.LoadDir(m.dir)
	if err != nil {
		return nil, err
	}

	var applied []Applied
	err = push.WithConn(ctx, m.db, nil, m.logger, func(conn *sql.Conn) error {
		if err := m.history.ensure(ctx, conn); err != nil {
			return err
		}
		applied, err = m.history.applied(ctx, conn)
		return err
	})
	if err != nil {
		return nil, err
	}

	byName := make(map[string]Applied, len(applied))
	for _, a := range applied {
		byName[a.Name] = a
	}
	out := make([]State, 0, len(files))
	seen := make(map[string]bool, len(files))
	for _, f := range files {
		seen[f.Name] = true
		a, ok := byName[f.Name]
		out = append(out, State{Name: f.Name, Phase: f.Phase, Applied: ok, ExecutedAt: a.ExecutedAt})
	}
	for _, a := range applied {
		if !seen[a.Name] {
			out = append(out, State{Name: a.Name, Applied: true, ExecutedAt: a.ExecutedAt, Missing: true})
		}
	}
	slices.SortStableFunc(out, func(a, b State) int { return strings.Compare(a.Name, b.Name) })
	return out, nil
}

// Pending returns the unapplied migrations in file name order, limited to
// phases when any are given.
func (m *Migrator) Pending(ctx context.Context, phases ...changeset.Phase) ([]migfile.Migration, error) {
	files, err := migfile.LoadDir(m.dir)
	if err != nil {
		return nil, err
	}
	var pending []migfile.Migration
	err = push.WithConn(ctx, m.db, nil, m.logger, func(conn *sql.Conn) error {
		pending, err = m.pending(ctx, conn, files, phases)
		return err
	})
	return pending, err
}

func (m *Migrator) pending(ctx context.Context, conn *sql.Conn, files []migfile.Migration, phases []changeset.Phase) ([]migfile.Migration, error) {
	if err := m.history.ensure(ctx, conn); err != nil {
		return nil, err
	}
	applied, err := m.history.applied(ctx, conn)
	if err != nil {
		return nil, err
	}
	done := make(map[string]bool, len(applied))
	for _, a := range applied {
		done[a.Name] = true
	}

	var out []migfile.Migration
	for _, f := range files {
		if done[f.Name] {
			continue
		}
		if len(phases) > 0 && !slices.Contains(phases, f.Phase) {
			continue
		}
		out = append(out, f)
	}
	return out, nil
}

// checkDependencies refuses the run when a migration depends on one that is
// neither applied nor earlier in the same run.
func (m *Migrator) checkDependencies(ctx context.Context, conn *sql.Conn, run []migfile.Migration) error {
	applied, err := m.history.applied(ctx, conn)
	if err != nil {
		return err
	}
	ready := make(map[string]bool, len(applied)+len(run))
	for _, a := range applied {
		ready[a.Name] = true
	}
	for _, mig := range run {
		if mig.DependsOn != "" && !ready[mig.DependsOn] {
			return alerr.New(alerr.ErrMigrationDependency, "migration depends on a migration that has not run").
				With("migration", mig.Name).
				With("depends_on", mig.DependsOn).
				WithHelp("apply the earlier migration first or widen the phase filter")
		}
		ready[mig.Name] = true
	}
	return nil
}

// Up applies pending migrations, limited to phases when any are given, and
// returns the names it applied. Running Up again applies nothing.
func (m *Migrator) Up(ctx context.Context, phases ...changeset.Phase) ([]string, error) {
	if m.lockPath != "" {
		if err := lockfile.Verify(m.dir, m.lockPath); err != nil {
			return nil, err
		}
	}
	files, err := migfile.LoadDir(m.dir)
	if err != nil {
		return nil, err
	}

	log := m.logger.With("run", uuid.NewString())
	var done []string
	err = push.WithConn(ctx, m.db, m.locker, log, func(conn *sql.Conn) error {
		run, err := m.pending(ctx, conn, files, phases)
		if err != nil {
			return err
		}
		if err := m.checkDependencies(ctx, conn, run); err != nil {
			return err
		}

		for _, mig := range run {
			start := time.Now()
			log.Info("applying migration", "migration", mig.Name, "phase", mig.Phase.String(), "transaction", mig.Transaction)
			record := func(ctx context.Context, ex push.Execer) error {
				return m.history.record(ctx, ex, mig.Name)
			}
			if err := push.Exec(ctx, conn, mig.Up, mig.Transaction, record); err != nil {
				log.Error("migration failed", "migration", mig.Name, "error", err)
				return alerr.Wrap(alerr.ErrMigrationFailed, err, "migration failed").
					With("migration", mig.Name).
					With("direction", "up")
			}
			log.Debug("migration applied", "migration", mig.Name, "elapsed", time.Since(start))
			done = append(done, mig.Name)
		}
		return nil
	})
	return done, err
}

// Down reverts the most recently applied migrations, newest first, and
// returns the names it reverted. steps below one reverts one migration.
func (m *Migrator) Down(ctx context.Context, steps int) ([]string, error) {
	if steps < 1 {
		steps = 1
	}
	files, err := migfile.LoadDir(m.dir)
	if err != nil {
		return nil, err
	}
	byName := make(map[string]migfile.Migration, len(files))
	for _, f := range files {
		byName[f.Name] = f
	}

	log := m.logger.With("run", uuid.NewString())
	var done []string
	err = push.WithConn(ctx, m.db, m.locker, log, func(conn *sql.Conn) error {
		if err := m.history.ensure(ctx, conn); err != nil {
			return err
		}
		applied, err := m.history.applied(ctx, conn)
		if err != nil {
			return err
		}
		slices.Reverse(applied)
		if steps < len(applied) {
			applied = applied[:steps]
		}

		for _, a := range applied {
			mig, ok := byName[a.Name]
			if !ok {
				return alerr.New(alerr.ErrMigrationNotFound, "applied migration has no file").
					With("migration", a.Name).
					With("dir", m.dir)
			}
			if len(mig.Down) == 0 {
				log.Warn("migration has no down statements", "migration", mig.Name)
			}
			log.Info("reverting migration", "migration", mig.Name, "phase", mig.Phase.String())
			remove := func(ctx context.Context, ex push.Execer) error {
				return m.history.remove(ctx, ex, mig.Name)
			}
			if err := push.Exec(ctx, conn, mig.Down, mig.Transaction, remove); err != nil {
				log.Error("revert failed", "migration", mig.Name, "error", err)
				return alerr.Wrap(alerr.ErrMigrationFailed, err, "migration failed").
					With("migration", mig.Name).
					With("direction", "down")
			}
			done = append(done, mig.Name)
		}
		return nil
	})
	return done, err
}
