package compile

import (
	"fmt"
	"regexp"
	"strings"
)

// baseTypes maps accepted spellings to the name format_type() reports.
var baseTypes = map[string]string{
	"int":                         "integer",
	"int4":                        "integer",
	"integer":                     "integer",
	"int8":                        "bigint",
	"bigint":                      "bigint",
	"int2":                        "smallint",
	"smallint":                    "smallint",
	"serial":                      "serial",
	"serial4":                     "serial",
	"bigserial":                   "bigserial",
	"serial8":                     "bigserial",
	"smallserial":                 "smallserial",
	"serial2":                     "smallserial",
	"text":                        "text",
	"varchar":                     "character varying",
	"character varying":           "character varying",
	"char":                        "character",
	"character":                   "character",
	"bool":                        "boolean",
	"boolean":                     "boolean",
	"float4":                      "real",
	"real":                        "real",
	"float8":                      "double precision",
	"double":                      "double precision",
	"double precision":            "double precision",
	"numeric":                     "numeric",
	"decimal":                     "numeric",
	"date":                        "date",
	"timestamp":                   "timestamp without time zone",
	"timestamp without time zone": "timestamp without time zone",
	"timestamptz":                 "timestamp with time zone",
	"timestamp with time zone":    "timestamp with time zone",
	"time":                        "time without time zone",
	"time without time zone":      "time without time zone",
	"timetz":                      "time with time zone",
	"time with time zone":         "time with time zone",
	"interval":                    "interval",
	"uuid":                        "uuid",
	"json":                        "json",
	"jsonb":                       "jsonb",
	"bytea":                       "bytea",
	"inet":                        "inet",
	"cidr":                        "cidr",
	"macaddr":                     "macaddr",
	"money":                       "money",
	"xml":                         "xml",
	"tsvector":                    "tsvector",
	"bit":                         "bit",
	"varbit":                      "bit varying",
	"bit varying":                 "bit varying",
}

// serialTypes need no explicit default and are NOT NULL.
var serialTypes = map[string]bool{"serial": true, "bigserial": true, "smallserial": true}

var typePattern = regexp.MustCompile(`^([a-z][a-z0-9 ]*?)\s*(?:\(\s*(\d+)\s*(?:,\s*(\d+)\s*)?\))?(\s+with(?:out)?\s+time\s+zone)?$`)

// canonicalType normalizes a declared type to the format_type() spelling.
// The boolean result is false when raw is not a known base type.
func canonicalType(raw string) (string, bool) {
	t := strings.ToLower(strings.Join(strings.Fields(raw), " "))

	array := ""
	for strings.HasSuffix(t, "[]") {
		array += "[]"
		t = strings.TrimSpace(strings.TrimSuffix(t, "[]"))
	}

	m := typePattern.FindStringSubmatch(t)
	if m == nil {
		return "", false
	}
	base, p, s, zone := m[1], m[2], m[3], strings.TrimSpace(m[4])
	if zone != "" {
		base += " " + strings.Join(strings.Fields(zone), " ")
	}

	name, ok := baseTypes[base]
	if !ok {
		return "", false
	}
	if serialTypes[name] && array != "" {
		return "", false
	}

	switch {
	case p == "":
		if name == "character" || name == "bit" {
			name += "(1)"
		}
	case strings.HasPrefix(name, "timestamp ") || strings.HasPrefix(name, "time "):
		// format_type places the precision after the base word.
		word, rest, _ := strings.Cut(name, " ")
		name = fmt.Sprintf("%s(%s) %s", word, p, rest)
	case name == "numeric" && s != "":
		name = fmt.Sprintf("numeric(%s,%s)", p, s)
	case name == "character varying", name == "character", name == "numeric",
		name == "bit", name == "bit varying", name == "interval":
		name = fmt.Sprintf("%s(%s)", name, p)
	default:
		return "", false
	}
	return name + array, true
}
