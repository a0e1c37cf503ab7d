// Package drift fingerprints snapshots with merkle trees so the live
// database can be compared against the declared schema without running a
// full diff.
package drift

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"slices"
	"strings"

	"github.com/cbergoon/merkletree"

	"github.com/hlop3z/pgphase/internal/alerr"
	"github.com/hlop3z/pgphase/internal/snapshot"
)

// SchemaHash is the fingerprint of one snapshot.
type SchemaHash struct {
	Schema string
	Root   string
	Tables map[string]*TableHash
	// Types covers enums and extensions, keyed "enum:<name>" and
	// "extension:<name>".
	Types map[string]string
}

// TableHash is the fingerprint of one table. Objects maps
// "<category>:<name>" to a hash; columns use the category "column".
type TableHash struct {
	Name    string
	Hash    string
	Objects map[string]string
}

// leaf implements merkletree.Content.
type leaf struct {
	key  string
	hash string
}

func (l leaf) CalculateHash() ([]byte, error) {
	h := sha256.Sum256([]byte(l.key + "=" + l.hash))
	return h[:], nil
}

func (l leaf) Equals(other merkletree.Content) (bool, error) {
	o, ok := other.(leaf)
	if !ok {
		return false, nil
	}
	return l.key == o.key && l.hash == o.hash, nil
}

// Fingerprint computes the merkle root of s. The root changes whenever a
// column, an object definition, an enum or an extension changes; it does not
// depend on map iteration order.
func Fingerprint(s *snapshot.Snapshot) (*SchemaHash, error) {
	out := &SchemaHash{Tables: make(map[string]*TableHash), Types: make(map[string]string)}
	if s == nil {
		out.Root = emptyHash()
		return out, nil
	}
	out.Schema = s.SchemaName

	var leaves []merkletree.Content
	for _, name := range s.TableNames() {
		th := tableHash(s, name)
		out.Tables[name] = th
		leaves = append(leaves, leaf{key: "table:" + name, hash: th.Hash})
	}
	for _, name := range snapshot.SortedKeys(s.Enums) {
		key := "enum:" + name
		out.Types[key] = hashString(strings.Join(s.Enums[name], ","))
		leaves = append(leaves, leaf{key: key, hash: out.Types[key]})
	}
	for _, name := range snapshot.SortedKeys(s.Extensions) {
		key := "extension:" + name
		out.Types[key] = hashString(name)
		leaves = append(leaves, leaf{key: key, hash: out.Types[key]})
	}

	if len(leaves) == 0 {
		out.Root = emptyHash()
		return out, nil
	}
	tree, err := merkletree.NewTree(leaves)
	if err != nil {
		return nil, alerr.Wrap(alerr.EInternalError, err, "failed to build merkle tree").With("schema", s.SchemaName)
	}
	out.Root = hex.EncodeToString(tree.MerkleRoot())
	return out, nil
}

func tableHash(s *snapshot.Snapshot, name string) *TableHash {
	th := &TableHash{Name: name, Objects: make(map[string]string)}
	t := s.Tables[name]
	for _, col := range snapshot.SortedKeys(t.Columns) {
		th.Objects["column:"+col] = columnHash(t.Columns[col])
	}
	for _, c := range s.Categories() {
		for obj, def := range c.Objects[name] {
			th.Objects[c.Name+":"+obj] = hashString(definitionKey(def))
		}
	}

	keys := snapshot.SortedKeys(th.Objects)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+th.Objects[k])
	}
	th.Hash = hashString("table:" + name + "|" + strings.Join(parts, "|"))
	return th
}

// definitionKey mirrors snapshot.Definition.Equal: hashed objects compare by
// hash, structural ones by SQL.
func definitionKey(d snapshot.Definition) string {
	if d.Hash != "" {
		return "hash:" + d.Hash
	}
	return "sql:" + d.SQL
}

// columnHash leaves out default volatility, which the catalog cannot
// report, and the modifiers derived from the type.
func columnHash(c *snapshot.ColumnInfo) string {
	return hashString(fmt.Sprintf("type:%s|nullable:%v|identity:%s|enum:%v|default:%s",
		c.DataType, c.Nullable, c.Identity, c.IsEnum, definitionKey(c.Default)))
}

func hashString(s string) string {
	h := sha256.Sum256([]byte(s))
	return hex.EncodeToString(h[:])
}

func emptyHash() string {
	return hashString("empty_schema")
}

// Comparison is the result of comparing two fingerprints of one schema.
type Comparison struct {
	Schema        string
	Match         bool
	ExpectedRoot  string
	ActualRoot    string
	MissingTables []string // declared, absent from the database
	ExtraTables   []string // in the database, not declared
	Tables        []*TableDiff
	MissingTypes  []string
	ExtraTypes    []string
	ModifiedTypes []string
}

// TableDiff lists the objects of one table that differ. Entries use the
// "<category>:<name>" keys of TableHash.Objects.
type TableDiff struct {
	Name     string
	Missing  []string
	Extra    []string
	Modified []string
}

// Compare reports how actual differs from expected. Matching roots
// short-circuit the walk.
func Compare(expected, actual *SchemaHash) *Comparison {
	c := &Comparison{
		Schema:       expected.Schema,
		Match:        expected.Root == actual.Root,
		ExpectedRoot: expected.Root,
		ActualRoot:   actual.Root,
	}
	if c.Match {
		return c
	}

	for _, name := range snapshot.SortedKeys(expected.Tables) {
		et := expected.Tables[name]
		at, ok := actual.Tables[name]
		switch {
		case !ok:
			c.MissingTables = append(c.MissingTables, name)
		case et.Hash != at.Hash:
			td := &TableDiff{Name: name}
			td.Missing, td.Extra, td.Modified = compareMaps(et.Objects, at.Objects)
			c.Tables = append(c.Tables, td)
		}
	}
	for _, name := range snapshot.SortedKeys(actual.Tables) {
		if _, ok := expected.Tables[name]; !ok {
			c.ExtraTables = append(c.ExtraTables, name)
		}
	}
	c.MissingTypes, c.ExtraTypes, c.ModifiedTypes = compareMaps(expected.Types, actual.Types)
	return c
}

func compareMaps(expected, actual map[string]string) (missing, extra, modified []string) {
	for k, h := range expected {
		ah, ok := actual[k]
		switch {
		case !ok:
			missing = append(missing, k)
		case ah != h:
			modified = append(modified, k)
		}
	}
	for k := range actual {
		if _, ok := expected[k]; !ok {
			extra = append(extra, k)
		}
	}
	slices.Sort(missing)
	slices.Sort(extra)
	slices.Sort(modified)
	return missing, extra, modified
}
