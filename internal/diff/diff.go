// Package diff compares two normalized snapshots and lists the structural
// differences between them. Comparison is purely name keyed: a renamed
// object shows up as a removal plus a creation unless renames were applied
// before compiling.
package diff

import (
	"slices"
	"strings"

	"github.com/hlop3z/pgphase/internal/snapshot"
)

// Type is the nature of a difference.
type Type string

const (
	Create Type = "CREATE"
	Remove Type = "REMOVE"
	Change Type = "CHANGE"
)

// Diff is one difference between the live database (old) and the declared
// schema (new).
type Diff struct {
	Kind     Kind
	Type     Type
	Path     []string
	Value    any
	OldValue any
}

// String renders the diff for logs.
func (d Diff) String() string {
	return string(d.Type) + " " + strings.Join(d.Path, ".")
}

func newDiff(typ Type, path []string, value, old any) Diff {
	return Diff{Kind: Classify(path, typ), Type: typ, Path: path, Value: value, OldValue: old}
}

// Compute lists the changes that turn remote into local. Keys are visited in
// sorted order so identical inputs produce an identical list.
func Compute(remote, local *snapshot.Snapshot) []Diff {
	var out []Diff
	out = append(out, extensions(remote.Extensions, local.Extensions)...)
	out = append(out, enums(remote.Enums, local.Enums)...)
	out = append(out, tables(remote.Tables, local.Tables)...)

	rc, lc := remote.Categories(), local.Categories()
	for i := range lc {
		out = append(out, objects(lc[i].Name, rc[i].Objects, lc[i].Objects)...)
	}
	return out
}

// Schemas compares the managed schema names of the database with the
// declared ones.
func Schemas(remote, local []string) []Diff {
	var out []Diff
	r := make(map[string]bool, len(remote))
	for _, s := range remote {
		r[s] = true
	}
	l := make(map[string]bool, len(local))
	for _, s := range local {
		l[s] = true
	}
	for _, s := range sortedUnion(r, l) {
		switch {
		case !r[s]:
			out = append(out, newDiff(Create, []string{snapshot.CategorySchema, s}, s, nil))
		case !l[s]:
			out = append(out, newDiff(Remove, []string{snapshot.CategorySchema, s}, nil, s))
		}
	}
	return out
}

func extensions(remote, local map[string]bool) []Diff {
	var out []Diff
	for _, name := range sortedUnion(remote, local) {
		switch {
		case !remote[name]:
			out = append(out, newDiff(Create, []string{snapshot.CategoryExtension, name}, name, nil))
		case !local[name]:
			out = append(out, newDiff(Remove, []string{snapshot.CategoryExtension, name}, nil, name))
		}
	}
	return out
}

func enums(remote, local map[string][]string) []Diff {
	var out []Diff
	for _, name := range sortedUnion(remote, local) {
		rv, inRemote := remote[name]
		lv, inLocal := local[name]
		path := []string{snapshot.CategoryEnum, name}
		switch {
		case !inRemote:
			out = append(out, newDiff(Create, path, lv, nil))
		case !inLocal:
			out = append(out, newDiff(Remove, path, nil, rv))
		case !slices.Equal(rv, lv):
			out = append(out, newDiff(Change, path, lv, rv))
		}
	}
	return out
}

func tables(remote, local map[string]*snapshot.TableInfo) []Diff {
	var out []Diff
	for _, name := range sortedUnion(remote, local) {
		rt, inRemote := remote[name]
		lt, inLocal := local[name]
		path := []string{snapshot.CategoryTable, name}
		switch {
		case !inRemote:
			out = append(out, newDiff(Create, path, lt, nil))
		case !inLocal:
			out = append(out, newDiff(Remove, path, nil, rt))
		default:
			out = append(out, columns(name, rt, lt)...)
		}
	}
	return out
}

func columns(table string, remote, local *snapshot.TableInfo) []Diff {
	var out []Diff

	// Creations follow declaration order so added columns keep their position.
	for _, name := range local.Order {
		if _, ok := remote.Columns[name]; !ok {
			out = append(out, newDiff(Create, []string{snapshot.CategoryTable, table, name}, local.Columns[name], nil))
		}
	}
	for _, name := range snapshot.SortedKeys(remote.Columns) {
		rc := remote.Columns[name]
		lc, ok := local.Columns[name]
		if !ok {
			out = append(out, newDiff(Remove, []string{snapshot.CategoryTable, table, name}, nil, rc))
			continue
		}
		out = append(out, columnChanges(table, name, rc, lc)...)
	}
	return out
}

func columnChanges(table, name string, remote, local *snapshot.ColumnInfo) []Diff {
	var out []Diff
	path := func(attr string) []string { return []string{snapshot.CategoryTable, table, name, attr} }

	if remote.DataType != local.DataType {
		out = append(out, newDiff(Change, path(AttrDataType), local, remote))
	}
	if !remote.Default.Equal(local.Default) {
		out = append(out, newDiff(Change, path(AttrDefault), local, remote))
	}
	if remote.Nullable != local.Nullable {
		out = append(out, newDiff(Change, path(AttrNullable), local, remote))
	}
	if remote.Identity != local.Identity {
		out = append(out, newDiff(Change, path(AttrIdentity), local, remote))
	}
	return out
}

// objects compares one two level object map. A table present on one side
// only expands into one diff per object.
func objects(category string, remote, local snapshot.ObjectMap) []Diff {
	var out []Diff
	for _, table := range sortedUnion(remote, local) {
		ro, lo := remote[table], local[table]
		for _, name := range sortedUnion(ro, lo) {
			rd, inRemote := ro[name]
			ld, inLocal := lo[name]
			path := []string{category, table, name}
			switch {
			case !inRemote:
				out = append(out, newDiff(Create, path, ld, nil))
			case !inLocal:
				out = append(out, newDiff(Remove, path, nil, rd))
			case !rd.Equal(ld):
				out = append(out, newDiff(Change, path, ld, rd))
			}
		}
	}
	return out
}

func sortedUnion[V any](a, b map[string]V) []string {
	keys := make([]string, 0, len(a)+len(b))
	for k := range a {
		keys = append(keys, k)
	}
	for k := range b {
		if _, ok := a[k]; !ok {
			keys = append(keys, k)
		}
	}
	slices.Sort(keys)
	return keys
}
