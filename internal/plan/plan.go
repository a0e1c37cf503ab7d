// Package plan runs the compute pipeline: it introspects the database,
// compiles the declared project, reconciles renames, diffs both sides and
// returns the ordered changesets.
package plan

import (
	"context"
	"errors"
	"log/slog"
	"slices"

	"github.com/hlop3z/pgphase/internal/changeset"
	"github.com/hlop3z/pgphase/internal/compile"
	"github.com/hlop3z/pgphase/internal/diff"
	"github.com/hlop3z/pgphase/internal/introspect"
	"github.com/hlop3z/pgphase/internal/rename"
	"github.com/hlop3z/pgphase/internal/snapshot"
	"github.com/hlop3z/pgphase/internal/topo"
	"github.com/hlop3z/pgphase/pkg/schema"
)

// Inspector reads the current state of the database.
type Inspector interface {
	// ManagedSchemas lists the schemas the tool owns.
	ManagedSchemas(ctx context.Context) ([]string, error)
	// Introspect reads one schema; "" reads the database level snapshot.
	Introspect(ctx context.Context, schemaName string) (*snapshot.Snapshot, error)
}

// Live inspects a database through catalog queries.
type Live struct {
	DB      introspect.Queryer
	Options introspect.Options
}

// ManagedSchemas implements Inspector.
func (l Live) ManagedSchemas(ctx context.Context) ([]string, error) {
	return introspect.ManagedSchemas(ctx, l.DB, l.Options)
}

// Introspect implements Inspector.
func (l Live) Introspect(ctx context.Context, schemaName string) (*snapshot.Snapshot, error) {
	return introspect.Introspect(ctx, l.DB, schemaName, l.Options)
}

// Options controls planning.
type Options struct {
	CamelCase bool
	Debug     bool

	// Resolver answers rename questions. Nil means rename.Strict.
	Resolver rename.Resolver

	// SchemaOrder overrides the schema priority derived from cross-schema
	// foreign keys. Schemas missing from it sort last.
	SchemaOrder []string

	Logger *slog.Logger
}

func (o Options) logger() *slog.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return slog.Default()
}

// Plan is the outcome of one pipeline run.
type Plan struct {
	// Changesets in up order.
	Changesets  []changeset.Changeset
	SchemaOrder []string
	// Renames chosen per schema.
	Renames map[string]rename.Renames
	// Remote and Local hold the snapshots that were compared, database
	// level first. Local snapshots carry the declared names.
	Remote []*snapshot.Snapshot
	Local  []*snapshot.Snapshot
}

// IsEmpty reports whether the database already matches the project.
func (p *Plan) IsEmpty() bool {
	return len(p.Changesets) == 0
}

// Down returns the changesets in down order.
func (p *Plan) Down() []changeset.Changeset {
	return changeset.Reverse(p.Changesets)
}

// Groups splits the changesets into execution units.
func (p *Plan) Groups() []changeset.Group {
	return changeset.Groups(p.Changesets)
}

// Warnings lists the warnings of every changeset in order.
func (p *Plan) Warnings() []changeset.Warning {
	return changeset.Warnings(p.Changesets)
}

// Build runs the pipeline. Validation errors surface before the database is
// touched.
func Build(ctx context.Context, insp Inspector, project *schema.Project, opts Options) (*Plan, error) {
	log := opts.logger()
	if err := compile.Validate(project, opts.CamelCase); err != nil {
		return nil, err
	}

	order := opts.SchemaOrder
	if len(order) == 0 {
		var err error
		order, err = topo.Schemas(project)
		if errors.Is(err, topo.ErrCircularDependency) {
			log.Warn("schemas reference each other; using declaration order", "schemas", order)
		} else if err != nil {
			return nil, err
		}
	}

	remoteSchemas, err := insp.ManagedSchemas(ctx)
	if err != nil {
		return nil, err
	}
	remoteDB, err := insp.Introspect(ctx, "")
	if err != nil {
		return nil, err
	}
	localDB := compile.Extensions(project)

	p := &Plan{
		SchemaOrder: order,
		Renames:     make(map[string]rename.Renames),
		Remote:      []*snapshot.Snapshot{remoteDB},
		Local:       []*snapshot.Snapshot{localDB},
	}

	// Database level: schemas and extensions.
	dbDiffs := diff.Schemas(remoteSchemas, project.SchemaNames())
	dbDiffs = append(dbDiffs, diff.Compute(remoteDB, localDB)...)
	all := changeset.Generate(changeset.Context{
		CamelCase: opts.CamelCase,
		Debug:     opts.Debug,
		Logger:    log,
	}, dbDiffs)

	// Dropped schemas go away with a single cascade; their tables are not
	// diffed one by one. Renames are settled for every schema before any is
	// diffed, since a foreign key compiles against the existing names of the
	// schema it references.
	staged := make([]*stage, 0, len(project.Schemas))
	for _, s := range project.Schemas {
		st, err := p.reconcile(ctx, insp, s, slices.Contains(remoteSchemas, s.Name), opts, log)
		if err != nil {
			return nil, err
		}
		staged = append(staged, st)
	}
	for _, st := range staged {
		cs, err := p.generate(st, opts, log)
		if err != nil {
			return nil, err
		}
		all = append(all, cs...)
	}

	p.Changesets = changeset.Order(all, order)
	log.Debug("plan built", "changesets", len(p.Changesets), "schemas", len(project.Schemas))
	return p, nil
}

// stage is one schema between rename reconciliation and diffing.
type stage struct {
	schema  *schema.Schema
	remote  *snapshot.Snapshot
	local   *snapshot.Snapshot
	renames rename.Renames
}

func (p *Plan) reconcile(ctx context.Context, insp Inspector, s *schema.Schema, exists bool, opts Options, log *slog.Logger) (*stage, error) {
	remote := snapshot.New(s.Name)
	remote.CamelCase = opts.CamelCase
	if exists {
		var err error
		remote, err = insp.Introspect(ctx, s.Name)
		if err != nil {
			return nil, err
		}
	}

	local, err := compile.Compile(s, compile.Options{CamelCase: opts.CamelCase})
	if err != nil {
		return nil, err
	}
	p.Remote = append(p.Remote, remote)
	p.Local = append(p.Local, local)

	resolver := opts.Resolver
	if resolver == nil {
		resolver = rename.Strict{}
	}
	renames, err := rename.Reconcile(ctx, remote, local, resolver)
	if err != nil {
		return nil, err
	}
	if !renames.IsEmpty() {
		p.Renames[s.Name] = renames
		log.Info("renames chosen", "schema", s.Name, "tables", len(renames.Tables), "columns", len(renames.Columns))
	}
	return &stage{schema: s, remote: remote, local: local, renames: renames}, nil
}

func (p *Plan) generate(st *stage, opts Options, log *slog.Logger) ([]changeset.Changeset, error) {
	// Compile again under the existing names so only true deltas remain.
	aligned := st.local
	if len(p.Renames) > 0 {
		var err error
		aligned, err = compile.Compile(st.schema, compile.Options{
			CamelCase: opts.CamelCase,
			Renames:   p.Renames,
		})
		if err != nil {
			return nil, err
		}
	}

	diffs := diff.Compute(st.remote, aligned)
	return changeset.Generate(changeset.Context{
		Schema:    st.schema.Name,
		CamelCase: opts.CamelCase,
		Debug:     opts.Debug,
		Renames:   st.renames,
		Remote:    st.remote,
		Local:     aligned,
		Logger:    log,
	}, diffs), nil
}
