package changeset

import (
	"slices"
	"sort"
)

// Order sorts changesets for up execution: by schema rank, then phase, then
// priority. Schemas missing from schemaPriority sort after the ranked ones.
// Database level changesets (empty SchemaName) run before every schema,
// except their Contract removals which run after every schema.
// The sort is stable, so equal keys keep generation order.
func Order(cs []Changeset, schemaPriority []string) []Changeset {
	out := slices.Clone(cs)
	rank := schemaRanks(schemaPriority)
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		ra, rb := rank(a), rank(b)
		if ra != rb {
			return ra < rb
		}
		if a.Phase != b.Phase {
			return a.Phase < b.Phase
		}
		return a.Priority < b.Priority
	})
	return out
}

// Reverse returns changesets in down order: the exact reverse of Order.
func Reverse(cs []Changeset) []Changeset {
	out := slices.Clone(cs)
	slices.Reverse(out)
	return out
}

func schemaRanks(schemaPriority []string) func(Changeset) int {
	ranks := make(map[string]int, len(schemaPriority))
	for i, s := range schemaPriority {
		if _, seen := ranks[s]; !seen {
			ranks[s] = i
		}
	}
	unranked := len(schemaPriority)
	return func(c Changeset) int {
		if c.SchemaName == "" {
			if c.Phase == Contract {
				return unranked + 1
			}
			return -1
		}
		if r, ok := ranks[c.SchemaName]; ok {
			return r
		}
		return unranked
	}
}

// Group is a maximal run of ordered changesets that share a schema, a phase
// and a transaction mode. Groups are the unit of execution and of migration
// files.
type Group struct {
	Schema        string
	Phase         Phase
	Transactional bool
	Changesets    []Changeset
}

// Up returns the up statements of the group in order.
func (g Group) Up() []string {
	var out []string
	for _, c := range g.Changesets {
		out = append(out, c.Up...)
	}
	return out
}

// Down returns the statements that revert the group, last changeset first.
func (g Group) Down() []string {
	var out []string
	for i := len(g.Changesets) - 1; i >= 0; i-- {
		out = append(out, g.Changesets[i].Down...)
	}
	return out
}

// Groups splits ordered changesets into groups.
func Groups(cs []Changeset) []Group {
	var out []Group
	for _, c := range cs {
		n := len(out)
		if n > 0 {
			last := &out[n-1]
			if last.Schema == c.SchemaName && last.Phase == c.Phase && last.Transactional == c.Transactional() {
				last.Changesets = append(last.Changesets, c)
				continue
			}
		}
		out = append(out, Group{
			Schema:        c.SchemaName,
			Phase:         c.Phase,
			Transactional: c.Transactional(),
			Changesets:    []Changeset{c},
		})
	}
	return out
}
