package ui

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/hlop3z/pgphase/internal/alerr"
)

// Keys shown in dedicated places rather than in the detail block.
var reservedKeys = map[string]bool{"file": true, "line": true, "helps": true, "sql": true}

// FormatError renders err in a compiler-diagnostic style:
//
//	error[E3005]: column "mail" may be a rename
//	   |
//	   | schema: public
//	   | table: users
//	help: declare the rename explicitly or run interactively
func FormatError(err error) string {
	if err == nil {
		return ""
	}
	var ae *alerr.Error
	if !errors.As(err, &ae) {
		return Error("error") + ": " + err.Error() + "\n"
	}

	var b strings.Builder
	b.WriteString(Error("error"))
	b.WriteString("[" + Error(string(ae.GetCode())) + "]: ")
	b.WriteString(ae.GetMessage())
	b.WriteString("\n")

	ctx := ae.GetContext()
	if file, ok := ctx["file"].(string); ok && file != "" {
		loc := file
		if line, ok := ctx["line"].(int); ok && line > 0 {
			loc = fmt.Sprintf("%s:%d", file, line)
		}
		b.WriteString("  " + Primary("-->") + " " + Bold(loc) + "\n")
	}

	keys := make([]string, 0, len(ctx))
	for k := range ctx {
		if !reservedKeys[k] {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	if len(keys) > 0 {
		b.WriteString("   " + Primary("|") + "\n")
		for _, k := range keys {
			fmt.Fprintf(&b, "   %s %s: %v\n", Primary("|"), k, ctx[k])
		}
	}
	if sql, ok := ctx["sql"].(string); ok && sql != "" {
		b.WriteString("   " + Primary("|") + "\n")
		for _, line := range strings.Split(sql, "\n") {
			b.WriteString("   " + Primary("|") + " " + Dim(line) + "\n")
		}
	}

	if cause := ae.GetCause(); cause != nil {
		b.WriteString(Note("cause") + ": " + causeMessage(cause) + "\n")
	}
	for _, h := range ae.Helps() {
		b.WriteString(Help("help") + ": " + h + "\n")
	}
	return b.String()
}

// causeMessage cuts the Go stack frames goja appends to script errors.
func causeMessage(err error) string {
	msg := err.Error()
	if i := strings.Index(msg, " at github.com"); i != -1 {
		msg = strings.TrimSpace(msg[:i])
	}
	return msg
}

// FormatWarning renders a single warning line.
func FormatWarning(msg string) string {
	return Warning("warning") + ": " + msg + "\n"
}
