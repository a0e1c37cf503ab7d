// Package rename reconciles tables and columns that disappeared from the
// live database with ones that appeared in the declared schema, turning
// drop+create pairs into renames when a Resolver says so.
package rename

import (
	"context"
	"sort"

	"github.com/hlop3z/pgphase/internal/snapshot"
)

// Rename maps an existing name to its new name.
type Rename struct {
	From string
	To   string
}

// Renames holds the decisions for one schema. Column renames are keyed by
// the new (declared) table name.
type Renames struct {
	Tables  []Rename
	Columns map[string][]Rename
}

// IsEmpty reports whether no rename was chosen.
func (r Renames) IsEmpty() bool {
	if len(r.Tables) > 0 {
		return false
	}
	for _, cols := range r.Columns {
		if len(cols) > 0 {
			return false
		}
	}
	return true
}

// TableFrom returns the existing name of a table declared as to.
func (r Renames) TableFrom(to string) (string, bool) {
	for _, rn := range r.Tables {
		if rn.To == to {
			return rn.From, true
		}
	}
	return "", false
}

// TableTo returns the declared name of an existing table.
func (r Renames) TableTo(from string) (string, bool) {
	for _, rn := range r.Tables {
		if rn.From == from {
			return rn.To, true
		}
	}
	return "", false
}

// ColumnFrom returns the existing name of a column declared as to on table.
func (r Renames) ColumnFrom(table, to string) (string, bool) {
	for _, rn := range r.Columns[table] {
		if rn.To == to {
			return rn.From, true
		}
	}
	return "", false
}

// ColumnTo returns the declared name of an existing column on table.
func (r Renames) ColumnTo(table, from string) (string, bool) {
	for _, rn := range r.Columns[table] {
		if rn.From == from {
			return rn.To, true
		}
	}
	return "", false
}

// Kind tells tables and columns apart in a Candidate.
type Kind string

const (
	KindTable  Kind = "table"
	KindColumn Kind = "column"
)

// Scored is a removed name ranked against an added one.
type Scored struct {
	Name  string
	Score float64
}

// Candidate is one added name plus the removed names it might have been.
// Removed is ordered best match first.
type Candidate struct {
	Kind    Kind
	Schema  string
	Table   string
	Added   string
	Removed []Scored
}

// Has reports whether name is among the removed names.
func (c Candidate) Has(name string) bool {
	for _, s := range c.Removed {
		if s.Name == name {
			return true
		}
	}
	return false
}

// Decision is the answer for one Candidate. An empty From means the added
// name is a genuinely new object.
type Decision struct {
	From string
}

// Resolver decides whether an added name is a rename.
type Resolver interface {
	Resolve(ctx context.Context, c Candidate) (Decision, error)
}

// Reconcile asks r about every added table and column for which removed
// names exist, then returns the chosen renames. Each removed name can be
// claimed once.
func Reconcile(ctx context.Context, remote, local *snapshot.Snapshot, r Resolver) (Renames, error) {
	out := Renames{Columns: make(map[string][]Rename)}

	removed, added := setDelta(snapshot.SortedKeys(remote.Tables), snapshot.SortedKeys(local.Tables))
	tables, err := reconcileNames(ctx, r, removed, added, func(name string) Candidate {
		return Candidate{Kind: KindTable, Schema: local.SchemaName, Added: name}
	}, func(from, to string) float64 {
		return scoreTable(remote.Tables[from], local.Tables[to])
	})
	if err != nil {
		return Renames{}, err
	}
	out.Tables = tables

	for _, table := range local.TableNames() {
		existing := table
		if from, ok := out.TableFrom(table); ok {
			existing = from
		}
		rt, ok := remote.Tables[existing]
		if !ok {
			continue
		}
		lt := local.Tables[table]

		removed, added := setDelta(rt.Order, lt.Order)
		cols, err := reconcileNames(ctx, r, removed, added, func(name string) Candidate {
			return Candidate{Kind: KindColumn, Schema: local.SchemaName, Table: table, Added: name}
		}, func(from, to string) float64 {
			return scoreColumn(rt, lt, from, to)
		})
		if err != nil {
			return Renames{}, err
		}
		if len(cols) > 0 {
			out.Columns[table] = cols
		}
	}
	return out, nil
}

func reconcileNames(
	ctx context.Context,
	r Resolver,
	removed, added []string,
	candidate func(string) Candidate,
	score func(from, to string) float64,
) ([]Rename, error) {
	if len(removed) == 0 || len(added) == 0 {
		return nil, nil
	}

	pool := append([]string(nil), removed...)
	var out []Rename
	for _, name := range added {
		if len(pool) == 0 {
			break
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		c := candidate(name)
		c.Removed = rank(pool, func(from string) float64 { return score(from, name) })

		d, err := r.Resolve(ctx, c)
		if err != nil {
			return nil, err
		}
		if d.From == "" || !c.Has(d.From) {
			continue
		}
		out = append(out, Rename{From: d.From, To: name})
		pool = without(pool, d.From)
	}
	return out, nil
}

func rank(pool []string, score func(string) float64) []Scored {
	out := make([]Scored, len(pool))
	for i, name := range pool {
		out[i] = Scored{Name: name, Score: score(name)}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// setDelta returns names only in remote and names only in local, keeping
// the input order.
func setDelta(remote, local []string) (removed, added []string) {
	inLocal := make(map[string]bool, len(local))
	for _, n := range local {
		inLocal[n] = true
	}
	inRemote := make(map[string]bool, len(remote))
	for _, n := range remote {
		inRemote[n] = true
		if !inLocal[n] {
			removed = append(removed, n)
		}
	}
	for _, n := range local {
		if !inRemote[n] {
			added = append(added, n)
		}
	}
	return removed, added
}

func without(pool []string, name string) []string {
	out := pool[:0:0]
	for _, n := range pool {
		if n != name {
			out = append(out, n)
		}
	}
	return out
}
