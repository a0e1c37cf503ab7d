// Package schema is the declarative, code-defined description of a target
// database. A Project lists schemas; each schema owns enums and tables; each
// table owns columns, keys, constraints, indexes and triggers.
//
// Names are logical. When the camelCase convention is enabled the compiler
// converts them to snake_case physical names.
//
//	project := &schema.Project{
//		Schemas: []*schema.Schema{{
//			Name: "public",
//			Tables: []*schema.Table{{
//				Name: "users",
//				Columns: []*schema.Column{
//					{Name: "id", Type: "integer", Identity: schema.IdentityAlways},
//					{Name: "email", Type: "varchar(255)", NotNull: true},
//					{Name: "createdAt", Type: "timestamptz", Default: schema.SQL("now()")},
//				},
//				PrimaryKey: []string{"id"},
//			}},
//		}},
//	}
package schema

// Identity modes accepted in Column.Identity.
const (
	IdentityAlways    = "always"
	IdentityByDefault = "by default"
)

// Project is the whole declared database.
type Project struct {
	Extensions []string  `yaml:"extensions,omitempty"`
	Schemas    []*Schema `yaml:"schemas"`
}

// Schema is one Postgres schema.
type Schema struct {
	Name   string   `yaml:"name"`
	Enums  []*Enum  `yaml:"enums,omitempty"`
	Tables []*Table `yaml:"tables,omitempty"`
}

// Enum is a Postgres enum type. Values keep declaration order.
type Enum struct {
	Name   string   `yaml:"name"`
	Values []string `yaml:"values"`
}

// Table is a managed table.
type Table struct {
	Name        string       `yaml:"name"`
	Columns     []*Column    `yaml:"columns"`
	PrimaryKey  []string     `yaml:"primaryKey,omitempty"`
	Unique      []Unique     `yaml:"unique,omitempty"`
	Checks      []Check      `yaml:"checks,omitempty"`
	Indexes     []Index      `yaml:"indexes,omitempty"`
	ForeignKeys []ForeignKey `yaml:"foreignKeys,omitempty"`
	Triggers    []Trigger    `yaml:"triggers,omitempty"`
}

// Column is a table column. Type accepts Postgres type names and the usual
// aliases (int, varchar(n), timestamptz, ...) or the name of a declared enum.
type Column struct {
	Name     string   `yaml:"name"`
	Type     string   `yaml:"type"`
	NotNull  bool     `yaml:"notNull,omitempty"`
	Default  *Default `yaml:"default,omitempty"`
	Identity string   `yaml:"identity,omitempty"`
}

// Default is a column default: either a literal Value or a raw SQL expression.
type Default struct {
	Value any    `yaml:"value,omitempty"`
	SQL   string `yaml:"sql,omitempty"`
}

// SQL returns a default backed by a raw SQL expression.
func SQL(expr string) *Default { return &Default{SQL: expr} }

// Literal returns a default backed by a literal value.
func Literal(v any) *Default { return &Default{Value: v} }

// Unique is a unique constraint. An empty Name derives one.
type Unique struct {
	Name    string   `yaml:"name,omitempty"`
	Columns []string `yaml:"columns"`
}

// Check is a check constraint over a SQL boolean expression.
type Check struct {
	Name       string `yaml:"name,omitempty"`
	Expression string `yaml:"expression"`
}

// Index is a secondary index.
type Index struct {
	Name    string   `yaml:"name,omitempty"`
	Columns []string `yaml:"columns"`
	Unique  bool     `yaml:"unique,omitempty"`
	Using   string   `yaml:"using,omitempty"`
	Where   string   `yaml:"where,omitempty"`
}

// ForeignKey references columns of another table, possibly in another schema.
type ForeignKey struct {
	Name       string    `yaml:"name,omitempty"`
	Columns    []string  `yaml:"columns"`
	References Reference `yaml:"references"`
	OnDelete   string    `yaml:"onDelete,omitempty"`
	OnUpdate   string    `yaml:"onUpdate,omitempty"`
}

// Reference is the target of a foreign key. An empty Schema means the
// schema that declares the foreign key.
type Reference struct {
	Schema  string   `yaml:"schema,omitempty"`
	Table   string   `yaml:"table"`
	Columns []string `yaml:"columns"`
}

// Trigger fires Function on Events at Timing. Triggers are keyed by firing
// time and event, so an empty Name derives one from them.
type Trigger struct {
	Name      string   `yaml:"name,omitempty"`
	Timing    string   `yaml:"timing"`
	Events    []string `yaml:"events"`
	ForEach   string   `yaml:"forEach,omitempty"`
	Function  string   `yaml:"function"`
	Condition string   `yaml:"condition,omitempty"`
}

// Schema returns the schema with the given name, or nil.
func (p *Project) Schema(name string) *Schema {
	for _, s := range p.Schemas {
		if s.Name == name {
			return s
		}
	}
	return nil
}

// SchemaNames returns declared schema names in declaration order.
func (p *Project) SchemaNames() []string {
	names := make([]string, len(p.Schemas))
	for i, s := range p.Schemas {
		names[i] = s.Name
	}
	return names
}

// Table returns the table with the given logical name, or nil.
func (s *Schema) Table(name string) *Table {
	for _, t := range s.Tables {
		if t.Name == name {
			return t
		}
	}
	return nil
}

// Enum returns the enum with the given name, or nil.
func (s *Schema) Enum(name string) *Enum {
	for _, e := range s.Enums {
		if e.Name == name {
			return e
		}
	}
	return nil
}

// Column returns the column with the given logical name, or nil.
func (t *Table) Column(name string) *Column {
	for _, c := range t.Columns {
		if c.Name == name {
			return c
		}
	}
	return nil
}
