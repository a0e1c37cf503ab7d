package drift

import (
	"github.com/hlop3z/pgphase/internal/snapshot"
)

// Result compares the declared schema with the live database, schema by
// schema.
type Result struct {
	HasDrift    bool
	Comparisons []*Comparison
}

// Detect fingerprints both sides and compares them per schema. A schema
// present on one side only is compared against an empty snapshot.
func Detect(expected, actual []*snapshot.Snapshot) (*Result, error) {
	exp := bySchema(expected)
	act := bySchema(actual)

	seen := make(map[string]bool, len(exp)+len(act))
	for name := range exp {
		seen[name] = true
	}
	for name := range act {
		seen[name] = true
	}

	res := &Result{}
	for _, name := range snapshot.SortedKeys(seen) {
		e, err := Fingerprint(orEmpty(exp[name], name))
		if err != nil {
			return nil, err
		}
		a, err := Fingerprint(orEmpty(act[name], name))
		if err != nil {
			return nil, err
		}
		c := Compare(e, a)
		if !c.Match {
			res.HasDrift = true
		}
		res.Comparisons = append(res.Comparisons, c)
	}
	return res, nil
}

func bySchema(snaps []*snapshot.Snapshot) map[string]*snapshot.Snapshot {
	out := make(map[string]*snapshot.Snapshot, len(snaps))
	for _, s := range snaps {
		if s != nil {
			out[s.SchemaName] = s
		}
	}
	return out
}

func orEmpty(s *snapshot.Snapshot, name string) *snapshot.Snapshot {
	if s == nil {
		return snapshot.New(name)
	}
	return s
}
