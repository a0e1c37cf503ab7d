package rename

import (
	"context"
	"strings"

	"github.com/hlop3z/pgphase/internal/alerr"
)

// ResolverFunc adapts a function to the Resolver interface.
type ResolverFunc func(ctx context.Context, c Candidate) (Decision, error)

// Resolve calls f.
func (f ResolverFunc) Resolve(ctx context.Context, c Candidate) (Decision, error) {
	return f(ctx, c)
}

// CreateAll never renames: every added name is a new object.
type CreateAll struct{}

// Resolve implements Resolver.
func (CreateAll) Resolve(context.Context, Candidate) (Decision, error) {
	return Decision{}, nil
}

// Strict refuses to guess. Any ambiguity is an ErrRenameUnresolved error, so
// non-interactive runs fail instead of dropping data.
type Strict struct{}

// Resolve implements Resolver.
func (Strict) Resolve(_ context.Context, c Candidate) (Decision, error) {
	names := make([]string, len(c.Removed))
	for i, s := range c.Removed {
		names[i] = s.Name
	}
	e := alerr.Newf(alerr.ErrRenameUnresolved, "%s %q may be a rename", c.Kind, c.Added).
		With("schema", c.Schema).
		With("candidates", strings.Join(names, ", ")).
		WithHelp("declare the rename explicitly or run interactively")
	if c.Table != "" {
		e.With("table", c.Table)
	}
	return Decision{}, e
}

// Static answers from caller supplied maps of new name -> old name.
// Anything not listed is treated as new.
type Static struct {
	Tables  map[string]string
	Columns map[string]map[string]string // table -> new column -> old column
}

// Resolve implements Resolver.
func (s Static) Resolve(_ context.Context, c Candidate) (Decision, error) {
	var from string
	switch c.Kind {
	case KindTable:
		from = s.Tables[c.Added]
	case KindColumn:
		from = s.Columns[c.Table][c.Added]
	}
	if from == "" || !c.Has(from) {
		return Decision{}, nil
	}
	return Decision{From: from}, nil
}

// DefaultThreshold is the minimum score Auto accepts.
const DefaultThreshold = 0.8

// Auto picks the best ranked removed name when its score reaches Threshold.
type Auto struct {
	Threshold float64
}

// Resolve implements Resolver.
func (a Auto) Resolve(_ context.Context, c Candidate) (Decision, error) {
	threshold := a.Threshold
	if threshold == 0 {
		threshold = DefaultThreshold
	}
	if len(c.Removed) == 0 || c.Removed[0].Score < threshold {
		return Decision{}, nil
	}
	return Decision{From: c.Removed[0].Name}, nil
}
