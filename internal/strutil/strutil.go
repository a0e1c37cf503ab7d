// Package strutil provides case conversion and SQL identifier helpers shared
// by the compiler, the changeset generators and the migration renderer.
package strutil

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"unicode"
)

// MaxIdentifierLength is the Postgres NAMEDATALEN limit minus the terminator.
const MaxIdentifierLength = 63

// DefaultSchema is left unqualified in generated SQL.
const DefaultSchema = "public"

// -----------------------------------------------------------------------------
// Case Conversion
// -----------------------------------------------------------------------------

// ToSnakeCase converts a string to snake_case.
// Examples: userName -> user_name, UserName -> user_name, HTTPServer -> http_server
func ToSnakeCase(s string) string {
	if s == "" {
		return ""
	}

	var b strings.Builder
	b.Grow(len(s) + 4)

	runes := []rune(s)
	for i, r := range runes {
		switch {
		case unicode.IsUpper(r):
			if i > 0 {
				prev := runes[i-1]
				if unicode.IsLower(prev) || unicode.IsDigit(prev) {
					b.WriteByte('_')
				} else if i+1 < len(runes) && unicode.IsLower(runes[i+1]) && prev != '_' {
					b.WriteByte('_')
				}
			}
			b.WriteRune(unicode.ToLower(r))
		case r == '-' || r == ' ':
			b.WriteByte('_')
		default:
			b.WriteRune(r)
		}
	}

	return b.String()
}

// Slug turns free text into a lowercase dash separated file name fragment.
// Example: "Add user roles!" -> "add-user-roles"
func Slug(s string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(ToSnakeCase(s)) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if dash && b.Len() > 0 {
				b.WriteByte('-')
			}
			b.WriteRune(r)
			dash = false
			continue
		}
		dash = true
	}
	return b.String()
}

// -----------------------------------------------------------------------------
// SQL Naming
// -----------------------------------------------------------------------------

// QuoteIdent quotes a SQL identifier with double quotes, escaping embedded quotes.
func QuoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// QuoteIdents quotes each name and joins them with ", ".
func QuoteIdents(names []string) string {
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = QuoteIdent(n)
	}
	return strings.Join(quoted, ", ")
}

// Qualify returns the quoted, schema qualified name of an object.
// Objects in the default schema stay unqualified.
// Example: Qualify("public", "users") -> "users" (quoted)
// Example: Qualify("stats", "hits") -> "stats"."hits"
func Qualify(schema, name string) string {
	if schema == "" || schema == DefaultSchema {
		return QuoteIdent(name)
	}
	return QuoteIdent(schema) + "." + QuoteIdent(name)
}

// QuoteLiteral renders s as a SQL string literal.
func QuoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// Identifier joins parts with underscores and keeps the result within the
// Postgres identifier limit. Overlong names are cut and suffixed with a
// short hash of the full name so they stay unique.
// Example: Identifier("users", "email", "key") -> "users_email_key"
func Identifier(parts ...string) string {
	name := strings.Join(parts, "_")
	if len(name) <= MaxIdentifierLength {
		return name
	}
	sum := sha256.Sum256([]byte(name))
	suffix := hex.EncodeToString(sum[:])[:8]
	return name[:MaxIdentifierLength-len(suffix)-1] + "_" + suffix
}
