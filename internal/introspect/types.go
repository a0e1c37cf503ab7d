package introspect

import (
	"database/sql"
	"strings"

	"github.com/hlop3z/pgphase/internal/snapshot"
)

// rawColumn is one row of the column catalog query.
type rawColumn struct {
	Name     string
	DataType string // format_type() spelling
	Nullable bool
	Default  sql.NullString
	Identity string // pg_attribute.attidentity: "", "a" or "d"
	IsEnum   bool
	TypeName string
	Comment  sql.NullString
	Serial   bool // owns a sequence
}

// serialTypes maps the integer type of a sequence backed column to the serial
// pseudo-type it was declared with.
var serialTypes = map[string]string{
	"integer":  "serial",
	"bigint":   "bigserial",
	"smallint": "smallserial",
}

func (raw rawColumn) column() *snapshot.ColumnInfo {
	c := &snapshot.ColumnInfo{
		Name:            raw.Name,
		DataType:        raw.DataType,
		Nullable:        raw.Nullable,
		VolatileDefault: snapshot.VolatilityUnknown,
	}

	switch raw.Identity {
	case "a":
		c.Identity = snapshot.IdentityAlways
	case "d":
		c.Identity = snapshot.IdentityByDefault
	}

	if raw.IsEnum {
		c.DataType = raw.TypeName
		c.IsEnum = true
	}

	// Serial columns own their sequence and default to nextval(); they
	// compare as the pseudo-type with no default.
	if serial, ok := serialTypes[raw.DataType]; ok && raw.Serial && c.Identity == snapshot.IdentityNone &&
		strings.HasPrefix(raw.Default.String, "nextval(") {
		c.DataType = serial
		c.ParseModifiers()
		return c
	}

	if raw.Default.Valid && c.Identity == snapshot.IdentityNone {
		c.Default = commented(raw.Comment, raw.Default.String)
	}
	c.ParseModifiers()
	return c
}

// commented builds the definition of an object whose hash may be stored in
// its comment. Objects without a hash comment hash their catalog text, which
// never matches a compiled hash and so shows up as a change.
func commented(comment sql.NullString, text string) snapshot.Definition {
	if comment.Valid && snapshot.IsHash(comment.String) {
		return snapshot.Definition{Hash: comment.String, SQL: text}
	}
	return snapshot.Hashed(text, text)
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, listSeparator)
}

// referentialAction decodes pg_constraint.confdeltype / confupdtype.
func referentialAction(code string) string {
	switch code {
	case "r":
		return "RESTRICT"
	case "c":
		return "CASCADE"
	case "n":
		return "SET NULL"
	case "d":
		return "SET DEFAULT"
	default:
		return "NO ACTION"
	}
}
