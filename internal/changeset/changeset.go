// Package changeset turns structural differences into ordered, reversible
// units of DDL. Each Changeset carries its up and down statements, the
// deployment phase it belongs to, a priority that orders it within the
// phase, and advisory warnings.
package changeset

import (
	"log/slog"

	"github.com/hlop3z/pgphase/internal/rename"
	"github.com/hlop3z/pgphase/internal/snapshot"
)

// Phase is the deployment phase of a changeset.
type Phase int

const (
	// Expand changesets only add structure and are safe while old
	// application code is still running.
	Expand Phase = iota
	// Alter changesets lock or rewrite existing structure.
	Alter
	// Contract changesets remove structure that application code no
	// longer uses.
	Contract
	// Data changesets move rows; they are written by hand.
	Data
)

var phaseNames = [...]string{"expand", "alter", "contract", "data"}

func (p Phase) String() string {
	if int(p) < len(phaseNames) {
		return phaseNames[p]
	}
	return "unknown"
}

// ParsePhase parses a phase name. ok is false for unknown names.
func ParsePhase(s string) (Phase, bool) {
	for i, name := range phaseNames {
		if name == s {
			return Phase(i), true
		}
	}
	return 0, false
}

// Type names the operation a changeset performs.
type Type string

const (
	TypeCreateExtension      Type = "createExtension"
	TypeDropExtension        Type = "dropExtension"
	TypeCreateSchema         Type = "createSchema"
	TypeDropSchema           Type = "dropSchema"
	TypeCreateEnum           Type = "createEnum"
	TypeDropEnum             Type = "dropEnum"
	TypeAddEnumValues        Type = "addEnumValues"
	TypeCreateTable          Type = "createTable"
	TypeDropTable            Type = "dropTable"
	TypeRenameTable          Type = "renameTable"
	TypeCreateColumn         Type = "createColumn"
	TypeDropColumn           Type = "dropColumn"
	TypeRenameColumn         Type = "renameColumn"
	TypeChangeColumnType     Type = "changeColumnType"
	TypeChangeColumnDefault  Type = "changeColumnDefault"
	TypeSetNotNull           Type = "setNotNull"
	TypeDropNotNull          Type = "dropNotNull"
	TypeChangeColumnIdentity Type = "changeColumnIdentity"
	TypeCreateIndex          Type = "createIndex"
	TypeDropIndex            Type = "dropIndex"
	TypeChangeIndex          Type = "changeIndex"
	TypeCreatePrimaryKey     Type = "createPrimaryKey"
	TypeDropPrimaryKey       Type = "dropPrimaryKey"
	TypeChangePrimaryKey     Type = "changePrimaryKey"
	TypeCreateUnique         Type = "createUnique"
	TypeDropUnique           Type = "dropUnique"
	TypeChangeUnique         Type = "changeUnique"
	TypeCreateCheck          Type = "createCheck"
	TypeDropCheck            Type = "dropCheck"
	TypeChangeCheck          Type = "changeCheck"
	TypeCreateForeignKey     Type = "createForeignKey"
	TypeDropForeignKey       Type = "dropForeignKey"
	TypeChangeForeignKey     Type = "changeForeignKey"
	TypeCreateTrigger        Type = "createTrigger"
	TypeDropTrigger          Type = "dropTrigger"
	TypeChangeTrigger        Type = "changeTrigger"
)

// Priority bands. Lower runs first on up. Creates follow dependency order;
// drop bands mirror them after all creates so dependents go first.
const (
	PriorityCreateExtension = 0
	PriorityCreateSchema    = 1
	PriorityCreateEnum      = 2
	PriorityCreateTable     = 3
	PriorityRenameTable     = 4
	PriorityRenameColumn    = 5
	PriorityColumn          = 6
	PriorityIndex           = 7
	PriorityPrimaryKey      = 8
	PriorityUnique          = 9
	PriorityCheck           = 10
	PriorityForeignKey      = 11
	PriorityTrigger         = 12
	PriorityChangeEnum      = 13

	PriorityDropTrigger    = 1001
	PriorityDropForeignKey = 1002
	PriorityDropCheck      = 1003
	PriorityDropUnique     = 1004
	PriorityDropPrimaryKey = 1005
	PriorityDropIndex      = 1006
	PriorityDropColumn     = 1007
	PriorityDropTable      = 1008
	PriorityDropEnum       = 1009
	PriorityDropSchema     = 1010
	PriorityDropExtension  = 1011
)

// Changeset is one reversible unit of DDL.
//
// TableName is the declared table name; CurrentTableName is the name the
// statements address when they run, which differs from TableName for
// changesets that execute before a table rename.
type Changeset struct {
	Type             Type
	Priority         int
	Phase            Phase
	SchemaName       string
	TableName        string
	CurrentTableName string
	Up               []string
	Down             []string
	Warnings         []Warning
	// NonTransactional marks statements that cannot run inside a
	// transaction block.
	NonTransactional bool
}

// Transactional reports whether the changeset can run inside a transaction.
func (c Changeset) Transactional() bool { return !c.NonTransactional }

// Context is the explicit input shared by all generators of one schema.
type Context struct {
	Schema    string
	CamelCase bool
	Debug     bool
	Renames   rename.Renames
	Remote    *snapshot.Snapshot
	Local     *snapshot.Snapshot
	Logger    *slog.Logger
}

func (c *Context) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.Default()
}

// newTable maps an existing table name to its declared name.
func (c *Context) newTable(table string) string {
	if to, ok := c.Renames.TableTo(table); ok {
		return to
	}
	return table
}

// newColumn maps an existing column name to its declared name.
func (c *Context) newColumn(table, column string) string {
	if to, ok := c.Renames.ColumnTo(c.newTable(table), column); ok {
		return to
	}
	return column
}

// address returns the table name statements of the given phase must use.
// Expand runs before renames, everything else after.
func (c *Context) address(table string, phase Phase) string {
	if phase == Expand {
		return table
	}
	return c.newTable(table)
}

// addressColumn is address for column names.
func (c *Context) addressColumn(table, column string, phase Phase) string {
	if phase == Expand {
		return column
	}
	return c.newColumn(table, column)
}

// tableExists reports whether a table is already present in the database.
func (c *Context) tableExists(table string) bool {
	if c.Remote == nil {
		return false
	}
	_, ok := c.Remote.Tables[table]
	return ok
}
