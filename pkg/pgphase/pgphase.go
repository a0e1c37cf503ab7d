// Package pgphase is the public API of the pgphase schema tool. It compares
// a declared Postgres project with a live database and either applies the
// difference directly or writes it as phased migration files.
package pgphase

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/hlop3z/pgphase/internal/alerr"
	"github.com/hlop3z/pgphase/internal/changeset"
	"github.com/hlop3z/pgphase/internal/drift"
	"github.com/hlop3z/pgphase/internal/introspect"
	"github.com/hlop3z/pgphase/internal/lockfile"
	"github.com/hlop3z/pgphase/internal/migfile"
	"github.com/hlop3z/pgphase/internal/migrator"
	"github.com/hlop3z/pgphase/internal/plan"
	"github.com/hlop3z/pgphase/internal/push"
	"github.com/hlop3z/pgphase/internal/safety"
	"github.com/hlop3z/pgphase/internal/snapshot"
	"github.com/hlop3z/pgphase/pkg/schema"
)

// Client ties the planning pipeline to one database.
//
// Example:
//
//	client, err := pgphase.New(
//	    pgphase.WithDatabaseURL("postgres://localhost/app"),
//	    pgphase.WithSchemaFile("schema.yaml"),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	p, err := client.Plan(ctx, nil)
//	...
//	err = client.Push(ctx, p)
type Client struct {
	db     *sql.DB
	config *Config
	owned  bool
}

func defaults() *Config {
	return &Config{
		Driver:        DriverPQ,
		SchemaFile:    "./schema.yaml",
		MigrationsDir: "./migrations",
		Timeout:       30 * time.Second,
	}
}

func configure(opts []Option) *Config {
	cfg := defaults()
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.LockFile == "" {
		cfg.LockFile = filepath.Join(cfg.MigrationsDir, lockfile.DefaultName)
	}
	return cfg
}

// New opens and pings the database described by the options.
func New(opts ...Option) (*Client, error) {
	cfg := configure(opts)
	if cfg.DatabaseURL == "" {
		return nil, ErrMissingDatabaseURL
	}
	if cfg.Driver != DriverPQ && cfg.Driver != DriverPGX {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedDriver, cfg.Driver)
	}

	db, err := sql.Open(cfg.Driver, cfg.DatabaseURL)
	if err != nil {
		return nil, connectionError(err, cfg)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, connectionError(err, cfg)
	}
	return &Client{db: db, config: cfg, owned: true}, nil
}

// NewWithDB wraps an open database. Close leaves db open. A nil db gives a
// client that can only load and validate schemas.
func NewWithDB(db *sql.DB, opts ...Option) *Client {
	return &Client{db: db, config: configure(opts)}
}

func connectionError(err error, cfg *Config) error {
	return alerr.Wrap(alerr.ErrSQLConnection, err, "failed to connect to database").
		With("url", redactURL(cfg.DatabaseURL)).
		With("driver", cfg.Driver)
}

// redactURL hides the password of a connection URL.
func redactURL(url string) string {
	start := strings.Index(url, "://")
	if start == -1 {
		return url
	}
	start += 3
	end := strings.Index(url[start:], "@")
	if end == -1 {
		return url
	}
	end += start
	creds := url[start:end]
	if i := strings.Index(creds, ":"); i != -1 {
		return url[:start] + creds[:i] + ":***@" + url[end+1:]
	}
	return url
}

// Close closes the database if New opened it.
func (c *Client) Close() error {
	if c.owned && c.db != nil {
		return c.db.Close()
	}
	return nil
}

// DB returns the underlying pool.
func (c *Client) DB() *sql.DB { return c.db }

// Config returns a copy of the configuration.
func (c *Client) Config() Config { return *c.config }

func (c *Client) requireDB() error {
	if c.db == nil {
		return ErrNoDatabase
	}
	return nil
}

// LoadSchema reads the configured schema file.
func (c *Client) LoadSchema() (*schema.Project, error) {
	return schema.LoadFile(c.config.SchemaFile)
}

// Check validates project without touching the database. A nil project is
// loaded from the schema file.
func (c *Client) Check(project *schema.Project) error {
	project, err := c.project(project)
	if err != nil {
		return err
	}
	_, err = plan.Build(context.Background(), offline{}, project, plan.Options{CamelCase: c.config.CamelCase, Logger: c.config.Logger})
	return err
}

func (c *Client) project(p *schema.Project) (*schema.Project, error) {
	if p != nil {
		return p, nil
	}
	return c.LoadSchema()
}

func (c *Client) inspector() (plan.Inspector, error) {
	if c.config.inspector != nil {
		return c.config.inspector, nil
	}
	if err := c.requireDB(); err != nil {
		return nil, err
	}
	return plan.Live{DB: c.db, Options: introspect.Options{
		CamelCase: c.config.CamelCase,
		Skip:      c.config.Skip,
	}}, nil
}

// Plan computes the changesets that bring the database to project. A nil
// project is loaded from the schema file. Warnings carry row counts when a
// database is attached.
func (c *Client) Plan(ctx context.Context, project *schema.Project) (*plan.Plan, error) {
	project, err := c.project(project)
	if err != nil {
		return nil, err
	}
	insp, err := c.inspector()
	if err != nil {
		return nil, err
	}
	p, err := plan.Build(ctx, insp, project, plan.Options{
		CamelCase:   c.config.CamelCase,
		Debug:       c.config.Debug,
		Resolver:    c.config.Resolver,
		SchemaOrder: c.config.SchemaOrder,
		Logger:      c.config.Logger,
	})
	if err != nil {
		return nil, err
	}
	if c.db != nil {
		p.Changesets = safety.Annotate(ctx, c.db, p.Changesets)
	}
	return p, nil
}

// Push applies a plan directly, phase by phase.
func (c *Client) Push(ctx context.Context, p *plan.Plan) error {
	if err := c.requireDB(); err != nil {
		return err
	}
	opts := []push.Option{push.WithLogger(c.config.Logger)}
	if c.config.locker != nil {
		opts = append(opts, push.WithLocker(c.config.locker))
	}
	return push.NewExecutor(c.db, opts...).Push(ctx, p.Changesets)
}

// DryRun returns the statements Push would execute.
func (c *Client) DryRun(p *plan.Plan) []string {
	return push.DryRun(p.Changesets)
}

// Generate writes one migration file per execution group of p, chained
// after the newest existing migration, and refreshes the lock file. It
// returns the written paths.
func (c *Client) Generate(p *plan.Plan, description string) ([]string, error) {
	if p.IsEmpty() {
		return nil, nil
	}
	previous, err := migfile.Last(c.config.MigrationsDir)
	if err != nil {
		return nil, err
	}
	ms := migfile.FromGroups(p.Groups(), time.Now().UTC(), description, previous)
	paths, err := migfile.Write(c.config.MigrationsDir, ms)
	if err != nil {
		return nil, err
	}
	if err := c.Lock(); err != nil {
		return paths, err
	}
	c.config.Logger.Info("migrations generated", "count", len(paths), "dir", c.config.MigrationsDir)
	return paths, nil
}

// Lock rewrites the lock file from the current migration files.
func (c *Client) Lock() error {
	return lockfile.Write(c.config.MigrationsDir, c.config.LockFile)
}

// VerifyLock compares the migration files against the lock file.
func (c *Client) VerifyLock() (*lockfile.Result, error) {
	return lockfile.Check(c.config.MigrationsDir, c.config.LockFile)
}

func (c *Client) migrator() (*migrator.Migrator, error) {
	if err := c.requireDB(); err != nil {
		return nil, err
	}
	opts := []migrator.Option{
		migrator.WithLogger(c.config.Logger),
		migrator.WithLockFile(c.config.LockFile),
	}
	if c.config.locker != nil {
		opts = append(opts, migrator.WithLocker(c.config.locker))
	}
	if c.config.sqlite {
		opts = append(opts, migrator.WithSQLite())
	}
	return migrator.New(c.db, c.config.MigrationsDir, opts...), nil
}

// MigrateUp applies pending migration files, limited to phases when any
// are given. It returns the applied names.
func (c *Client) MigrateUp(ctx context.Context, phases ...changeset.Phase) ([]string, error) {
	m, err := c.migrator()
	if err != nil {
		return nil, err
	}
	return m.Up(ctx, phases...)
}

// MigrateDown reverts the newest applied migrations.
func (c *Client) MigrateDown(ctx context.Context, steps int) ([]string, error) {
	m, err := c.migrator()
	if err != nil {
		return nil, err
	}
	return m.Down(ctx, steps)
}

// Status lists every migration with its applied state.
func (c *Client) Status(ctx context.Context) ([]migrator.State, error) {
	m, err := c.migrator()
	if err != nil {
		return nil, err
	}
	return m.Status(ctx)
}

// Pending lists unapplied migrations.
func (c *Client) Pending(ctx context.Context, phases ...changeset.Phase) ([]migfile.Migration, error) {
	m, err := c.migrator()
	if err != nil {
		return nil, err
	}
	return m.Pending(ctx, phases...)
}

// Drift fingerprints the declared and live snapshots of p.
func (c *Client) Drift(p *plan.Plan) (*drift.Result, error) {
	return drift.Detect(p.Local, p.Remote)
}

// offline is an Inspector for an empty database; Check uses it to run
// validation and compilation without a connection.
type offline struct{}

func (offline) ManagedSchemas(context.Context) ([]string, error) { return nil, nil }

func (offline) Introspect(_ context.Context, name string) (*snapshot.Snapshot, error) {
	return snapshot.New(name), nil
}
