package changeset

import "fmt"

// WarningKind classifies deployment risk. Warnings are advisory only.
type WarningKind string

const (
	// Destructive changes drop data-bearing structure.
	Destructive WarningKind = "destructive"
	// Blocking changes take long locks or rewrite the table.
	Blocking WarningKind = "blocking"
	// MightFail changes fail when existing rows violate them.
	MightFail WarningKind = "mightFail"
	// BackwardIncompatible changes break code that uses the old names.
	BackwardIncompatible WarningKind = "backwardIncompatible"
)

// Warning describes the risk of a changeset.
type Warning struct {
	Kind    WarningKind
	Schema  string
	Table   string
	Column  string
	Message string

	// RowCount is filled in by safety annotation; -1 means unknown.
	RowCount int64
}

func (w Warning) String() string {
	target := w.Table
	if w.Column != "" {
		target += "." + w.Column
	}
	if w.Schema != "" && w.Schema != "public" {
		target = w.Schema + "." + target
	}
	s := fmt.Sprintf("%s: %s (%s)", w.Kind, w.Message, target)
	if w.RowCount > 0 {
		s += fmt.Sprintf(", %d rows", w.RowCount)
	}
	return s
}

func warn(kind WarningKind, schema, table, column, format string, args ...any) Warning {
	return Warning{
		Kind:     kind,
		Schema:   schema,
		Table:    table,
		Column:   column,
		Message:  fmt.Sprintf(format, args...),
		RowCount: -1,
	}
}

// HasWarning reports whether the changeset carries a warning of kind.
func (c Changeset) HasWarning(kind WarningKind) bool {
	for _, w := range c.Warnings {
		if w.Kind == kind {
			return true
		}
	}
	return false
}

// Warnings collects the warnings of all changesets in order.
func Warnings(cs []Changeset) []Warning {
	var out []Warning
	for _, c := range cs {
		out = append(out, c.Warnings...)
	}
	return out
}
