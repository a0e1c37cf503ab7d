// Package snapshot defines the normalized schema that both the live database
// and the declared schema are reduced to before they are compared.
//
// Every map is keyed by physical name (after the naming convention was
// applied). Index, constraint and trigger maps are two level:
// table name -> object name -> canonical definition.
package snapshot

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"sort"
	"strconv"
)

// Marker is the comment that tags tables, schemas and enums owned by pgphase.
const Marker = "pgphase"

// HashLength is the number of hex characters kept from the SHA-256 digest.
const HashLength = 16

// Volatility records whether a column default is a volatile expression.
type Volatility string

const (
	VolatilityUnknown Volatility = "unknown"
	VolatilityYes     Volatility = "yes"
	VolatilityNo      Volatility = "no"
)

// Identity modes of a column.
const (
	IdentityNone      = ""
	IdentityAlways    = "ALWAYS"
	IdentityByDefault = "BY DEFAULT"
)

// Definition is the canonical form of an object that carries SQL.
//
// Expression-bearing objects (defaults, indexes, checks, triggers) have a
// Hash that is also stored in the object's database comment; they compare
// by hash. Structural objects (primary keys, unique constraints, foreign
// keys) leave Hash empty and compare by SQL.
type Definition struct {
	Hash string
	SQL  string
}

// IsZero reports whether d is unset.
func (d Definition) IsZero() bool { return d.Hash == "" && d.SQL == "" }

// Equal compares by hash when either side carries one, else by SQL.
func (d Definition) Equal(o Definition) bool {
	if d.Hash != "" || o.Hash != "" {
		return d.Hash == o.Hash
	}
	return d.SQL == o.SQL
}

// String renders the <hash>:<canonical text> form.
func (d Definition) String() string {
	if d.Hash == "" {
		return d.SQL
	}
	return d.Hash + ":" + d.SQL
}

// Hash returns the short SHA-256 hex digest of canonical text.
func Hash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])[:HashLength]
}

// Hashed builds a Definition whose hash is computed from key.
func Hashed(key, sql string) Definition {
	return Definition{Hash: Hash(key), SQL: sql}
}

var hashComment = regexp.MustCompile(`^[0-9a-f]{16}$`)

// IsHash reports whether a database comment holds a definition hash.
func IsHash(comment string) bool {
	return hashComment.MatchString(comment)
}

// ColumnInfo describes a single column.
type ColumnInfo struct {
	Name            string
	DataType        string
	Default         Definition
	VolatileDefault Volatility
	Nullable        bool
	Identity        string
	IsEnum          bool

	// Modifiers parsed from DataType; informational only.
	CharacterMaximumLength int
	NumericPrecision       int
	NumericScale           int
	DatetimePrecision      int
}

// TableInfo holds the columns of one table in declaration order.
type TableInfo struct {
	Name    string
	Columns map[string]*ColumnInfo
	Order   []string
}

// NewTable returns an empty table.
func NewTable(name string) *TableInfo {
	return &TableInfo{Name: name, Columns: make(map[string]*ColumnInfo)}
}

// AddColumn appends c, replacing a column with the same name in place.
func (t *TableInfo) AddColumn(c *ColumnInfo) {
	if _, ok := t.Columns[c.Name]; !ok {
		t.Order = append(t.Order, c.Name)
	}
	t.Columns[c.Name] = c
}

// OrderedColumns returns columns in declaration order.
func (t *TableInfo) OrderedColumns() []*ColumnInfo {
	out := make([]*ColumnInfo, 0, len(t.Order))
	for _, name := range t.Order {
		out = append(out, t.Columns[name])
	}
	return out
}

// ObjectMap is table name -> object name -> definition.
type ObjectMap map[string]map[string]Definition

// Put stores a definition, creating the table entry when needed.
func (m ObjectMap) Put(table, name string, def Definition) {
	inner, ok := m[table]
	if !ok {
		inner = make(map[string]Definition)
		m[table] = inner
	}
	inner[name] = def
}

// Get looks up a definition.
func (m ObjectMap) Get(table, name string) (Definition, bool) {
	def, ok := m[table][name]
	return def, ok
}

// Snapshot is the normalized schema of one Postgres schema. The database
// level snapshot (SchemaName "") only carries extensions.
type Snapshot struct {
	SchemaName  string
	CamelCase   bool
	Tables      map[string]*TableInfo
	PrimaryKeys ObjectMap
	Uniques     ObjectMap
	Checks      ObjectMap
	ForeignKeys ObjectMap
	Indexes     ObjectMap
	Triggers    ObjectMap
	Enums       map[string][]string
	Extensions  map[string]bool

	// Targets is only filled by a compile that keeps renamed columns under
	// their existing names. It is not compared.
	Targets map[string]map[string]Target
}

// Target is the name and definition a generated object takes once the
// pending column renames of its table are applied.
type Target struct {
	Category   string
	Name       string
	Definition Definition
}

// PutTarget records the target of an object, keyed like ObjectMap.
func (s *Snapshot) PutTarget(table, name string, t Target) {
	if s.Targets == nil {
		s.Targets = make(map[string]map[string]Target)
	}
	inner, ok := s.Targets[table]
	if !ok {
		inner = make(map[string]Target)
		s.Targets[table] = inner
	}
	inner[name] = t
}

// New returns an empty snapshot for a schema.
func New(schemaName string) *Snapshot {
	return &Snapshot{
		SchemaName:  schemaName,
		Tables:      make(map[string]*TableInfo),
		PrimaryKeys: make(ObjectMap),
		Uniques:     make(ObjectMap),
		Checks:      make(ObjectMap),
		ForeignKeys: make(ObjectMap),
		Indexes:     make(ObjectMap),
		Triggers:    make(ObjectMap),
		Enums:       make(map[string][]string),
		Extensions:  make(map[string]bool),
	}
}

// Categories lists the per-table object maps in diff order.
func (s *Snapshot) Categories() []Category {
	return []Category{
		{CategoryPrimaryKey, s.PrimaryKeys},
		{CategoryUnique, s.Uniques},
		{CategoryCheck, s.Checks},
		{CategoryForeignKey, s.ForeignKeys},
		{CategoryIndex, s.Indexes},
		{CategoryTrigger, s.Triggers},
	}
}

// Category names used as the first path segment of a diff.
const (
	CategorySchema     = "schema"
	CategoryExtension  = "extension"
	CategoryEnum       = "enum"
	CategoryTable      = "table"
	CategoryPrimaryKey = "primaryKey"
	CategoryUnique     = "unique"
	CategoryCheck      = "check"
	CategoryForeignKey = "foreignKey"
	CategoryIndex      = "index"
	CategoryTrigger    = "trigger"
)

// Category pairs a category name with its object map.
type Category struct {
	Name    string
	Objects ObjectMap
}

// TableNames returns table names in sorted order.
func (s *Snapshot) TableNames() []string {
	return SortedKeys(s.Tables)
}

// SortedKeys returns the keys of m in ascending order.
func SortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

var typeModifiers = regexp.MustCompile(`^[a-z ]+\((\d+)(?:,\s*(\d+))?\)`)

// ParseModifiers fills the length/precision/scale fields from DataType.
func (c *ColumnInfo) ParseModifiers() {
	m := typeModifiers.FindStringSubmatch(c.DataType)
	if m == nil {
		return
	}
	first, _ := strconv.Atoi(m[1])
	switch {
	case hasPrefix(c.DataType, "character"), hasPrefix(c.DataType, "bit"):
		c.CharacterMaximumLength = first
	case hasPrefix(c.DataType, "numeric"):
		c.NumericPrecision = first
		if m[2] != "" {
			c.NumericScale, _ = strconv.Atoi(m[2])
		}
	case hasPrefix(c.DataType, "timestamp"), hasPrefix(c.DataType, "time"), hasPrefix(c.DataType, "interval"):
		c.DatetimePrecision = first
	}
}

func hasPrefix(s, prefix string) bool {
	return len(s) >= len(prefix) && s[:len(prefix)] == prefix
}
