// Package migfile renders changeset groups as JavaScript migration files and
// reads them back.
//
// A migration file is a single call:
//
//	migration({
//	  name: "20260101120000-001-expand-add-orders",
//	  phase: "expand",
//	  transaction: true,
//	  dependsOn: null,
//	  up: [`CREATE TABLE ...`],
//	  down: [`DROP TABLE ...`],
//	});
//
// Files are evaluated in a restricted goja runtime, so a hand-edited file may
// build its statement lists with plain JavaScript.
package migfile

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"text/template"
	"time"

	"github.com/dop251/goja"

	"github.com/hlop3z/pgphase/internal/alerr"
	"github.com/hlop3z/pgphase/internal/changeset"
	"github.com/hlop3z/pgphase/internal/jsutil"
	"github.com/hlop3z/pgphase/internal/strutil"
)

// Ext is the migration file extension.
const Ext = ".js"

// TimestampFormat is the UTC timestamp that prefixes migration names.
const TimestampFormat = "20060102150405"

// Migration is the content of one migration file.
type Migration struct {
	Name        string
	Phase       changeset.Phase
	Transaction bool
	// DependsOn names the migration that must have run first; empty for
	// none.
	DependsOn string
	Up        []string
	Down      []string
}

// Filename returns the file name the migration is written under.
func (m Migration) Filename() string {
	return m.Name + Ext
}

// FromGroups builds one migration per group, named
// <timestamp>-<seq>-<phase>-<slug>. The first migration depends on previous
// and each later one on the migration before it.
func FromGroups(groups []changeset.Group, at time.Time, description, previous string) []Migration {
	slug := strutil.Slug(description)
	if slug == "" {
		slug = "schema"
	}
	stamp := at.UTC().Format(TimestampFormat)

	out := make([]Migration, 0, len(groups))
	for i, g := range groups {
		m := Migration{
			Name:        fmt.Sprintf("%s-%03d-%s-%s", stamp, i+1, g.Phase, slug),
			Phase:       g.Phase,
			Transaction: g.Transactional,
			DependsOn:   previous,
			Up:          g.Up(),
			Down:        g.Down(),
		}
		out = append(out, m)
		previous = m.Name
	}
	return out
}

var fileTemplate = template.Must(template.New("migration").Funcs(template.FuncMap{
	"str": strconv.Quote,
	"tl":  templateLiteral,
}).Parse(`// Generated by pgphase.
migration({
  name: {{str .Name}},
  phase: {{str .Phase.String}},
  transaction: {{.Transaction}},
  dependsOn: {{if .DependsOn}}{{str .DependsOn}}{{else}}null{{end}},
  up: [{{range .Up}}
    ` + "`{{tl .}}`" + `,{{end}}
  ],
  down: [{{range .Down}}
    ` + "`{{tl .}}`" + `,{{end}}
  ],
});
`))

// templateLiteral escapes s for the body of a JavaScript template literal.
// Carriage returns are escaped because template literals normalize CRLF.
func templateLiteral(s string) string {
	r := strings.NewReplacer(
		`\`, `\\`,
		"`", "\\`",
		"${", `\${`,
		"\r", `\r`,
	)
	return r.Replace(s)
}

// Render returns the file content of m.
func Render(m Migration) ([]byte, error) {
	var buf bytes.Buffer
	if err := fileTemplate.Execute(&buf, m); err != nil {
		return nil, alerr.Wrap(alerr.EInternalError, err, "failed to render migration").With("migration", m.Name)
	}
	return buf.Bytes(), nil
}

// Write renders every migration into dir and returns the written paths. An
// existing file is never overwritten.
func Write(dir string, ms []Migration) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, alerr.Wrap(alerr.EInternalError, err, "failed to create migrations directory").With("dir", dir)
	}

	paths := make([]string, 0, len(ms))
	for _, m := range ms {
		data, err := Render(m)
		if err != nil {
			return paths, err
		}
		path := filepath.Join(dir, m.Filename())
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if err != nil {
			return paths, alerr.Wrap(alerr.EInternalError, err, "failed to create migration file").With("file", path)
		}
		_, err = f.Write(data)
		if cerr := f.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			return paths, alerr.Wrap(alerr.EInternalError, err, "failed to write migration file").With("file", path)
		}
		paths = append(paths, path)
	}
	return paths, nil
}

// Parse evaluates a migration file. name is the file name; it provides the
// migration name when the file does not declare one.
func Parse(name string, src []byte) (Migration, error) {
	return parse(name, src, jsutil.DefaultTimeout)
}

func parse(name string, src []byte, timeout time.Duration) (Migration, error) {
	vm := jsutil.NewRuntime()

	var def *goja.Object
	err := vm.Set("migration", func(call goja.FunctionCall) goja.Value {
		obj, ok := call.Argument(0).(*goja.Object)
		if !ok {
			panic(vm.NewTypeError("migration() expects an object"))
		}
		if def != nil {
			panic(vm.NewTypeError("migration() called more than once"))
		}
		def = obj
		return goja.Undefined()
	})
	if err != nil {
		return Migration{}, alerr.Wrap(alerr.EInternalError, err, "failed to prepare runtime")
	}

	if err := jsutil.Run(vm, name, string(src), timeout); err != nil {
		return Migration{}, err
	}
	if def == nil {
		return Migration{}, invalid(name, "file does not call migration()")
	}
	return decode(name, def)
}

func decode(file string, def *goja.Object) (Migration, error) {
	stem := strings.TrimSuffix(filepath.Base(file), Ext)
	m := Migration{Name: stem, Transaction: true}

	if name, ok := jsutil.GetString(def, "name"); ok {
		if name != stem {
			return m, invalid(file, "declared name %q does not match the file name", name)
		}
	}

	phase := changeset.Expand.String()
	if jsutil.Has(def, "phase") {
		s, ok := jsutil.GetString(def, "phase")
		if !ok {
			return m, invalid(file, "phase must be a string")
		}
		phase = s
	}
	p, ok := changeset.ParsePhase(phase)
	if !ok {
		return m, invalid(file, "unknown phase %q", phase)
	}
	m.Phase = p

	if jsutil.Has(def, "transaction") {
		tx, ok := jsutil.GetBool(def, "transaction")
		if !ok {
			return m, invalid(file, "transaction must be a boolean")
		}
		m.Transaction = tx
	}

	if jsutil.Has(def, "dependsOn") {
		dep, ok := jsutil.GetString(def, "dependsOn")
		if !ok {
			return m, invalid(file, "dependsOn must be a string or null")
		}
		m.DependsOn = dep
	}

	up, ok := jsutil.GetStringArray(def, "up")
	if !ok {
		return m, invalid(file, "up must be an array of strings")
	}
	m.Up = up

	if jsutil.Has(def, "down") {
		down, ok := jsutil.GetStringArray(def, "down")
		if !ok {
			return m, invalid(file, "down must be an array of strings")
		}
		m.Down = down
	}
	return m, nil
}

func invalid(file, format string, args ...any) error {
	return alerr.Newf(alerr.ErrMigrationNotFound, format, args...).With("file", file)
}

// ParseFile reads and evaluates the migration file at path.
func ParseFile(path string) (Migration, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Migration{}, alerr.Wrap(alerr.ErrMigrationNotFound, err, "failed to read migration file").With("file", path)
	}
	return Parse(filepath.Base(path), data)
}

// LoadDir parses every migration file in dir, in file name order. A missing
// directory holds no migrations.
func LoadDir(dir string) ([]Migration, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, alerr.Wrap(alerr.ErrMigrationNotFound, err, "failed to read migrations directory").With("dir", dir)
	}

	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), Ext) {
			names = append(names, e.Name())
		}
	}
	slices.Sort(names)

	out := make([]Migration, 0, len(names))
	for _, name := range names {
		m, err := ParseFile(filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}

// Last returns the name of the newest migration in dir, or "" when there is
// none. Generated migrations depend on it.
func Last(dir string) (string, error) {
	ms, err := LoadDir(dir)
	if err != nil || len(ms) == 0 {
		return "", err
	}
	return ms[len(ms)-1].Name, nil
}
