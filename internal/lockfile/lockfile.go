// Package lockfile pins the content of migration files with SHA-256
// checksums stored in pgphase.lock.
//
// The file holds an aggregate checksum on its first line followed by one
// "<checksum> <filename>" line per migration, sorted by file name.
package lockfile

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/hlop3z/pgphase/internal/alerr"
	"github.com/hlop3z/pgphase/internal/migfile"
)

// DefaultName is the lock file name, kept next to pgphase.yaml.
const DefaultName = "pgphase.lock"

// Entry is the checksum of one migration file.
type Entry struct {
	Filename string
	Checksum string
}

// File is a parsed lock file.
type File struct {
	Aggregate string
	Entries   []Entry
}

// Read parses the lock file at path. A missing file yields nil, nil.
func Read(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, alerr.Wrap(alerr.ErrMigrationChecksum, err, "failed to read lock file").With("file", path)
	}

	text := strings.TrimSpace(string(data))
	if text == "" {
		return nil, alerr.New(alerr.ErrMigrationChecksum, "lock file is empty").With("file", path)
	}
	lines := strings.Split(text, "\n")

	lf := &File{Aggregate: strings.TrimSpace(lines[0])}
	for _, line := range lines[1:] {
		sum, name, ok := strings.Cut(strings.TrimSpace(line), " ")
		if !ok {
			continue
		}
		lf.Entries = append(lf.Entries, Entry{Filename: strings.TrimSpace(name), Checksum: sum})
	}
	return lf, nil
}

// Write records the current checksums of the migration files in dir.
func Write(dir, lockPath string) error {
	entries, err := scan(dir)
	if err != nil {
		return err
	}

	var sb strings.Builder
	sb.WriteString(aggregate(entries) + "\n")
	for _, e := range entries {
		fmt.Fprintf(&sb, "%s %s\n", e.Checksum, e.Filename)
	}

	if err := os.MkdirAll(filepath.Dir(lockPath), 0o755); err != nil {
		return alerr.Wrap(alerr.EInternalError, err, "failed to create lock file directory")
	}
	if err := os.WriteFile(lockPath, []byte(sb.String()), 0o644); err != nil {
		return alerr.Wrap(alerr.EInternalError, err, "failed to write lock file").With("file", lockPath)
	}
	return nil
}

// Result is a file by file comparison of a migrations directory against its
// lock file.
type Result struct {
	LockExists bool
	New        []string // on disk, not locked
	Removed    []string // locked, not on disk
	Modified   []string // checksum differs
	Verified   []string
}

// Valid reports whether every file matches the lock.
func (r *Result) Valid() bool {
	return r.LockExists && len(r.New) == 0 && len(r.Removed) == 0 && len(r.Modified) == 0
}

// Check compares the migration files in dir against the lock file.
func Check(dir, lockPath string) (*Result, error) {
	lf, err := Read(lockPath)
	if err != nil {
		return nil, err
	}
	res := &Result{}
	if lf == nil {
		return res, nil
	}
	res.LockExists = true

	entries, err := scan(dir)
	if err != nil {
		return nil, err
	}

	locked := make(map[string]string, len(lf.Entries))
	for _, e := range lf.Entries {
		locked[e.Filename] = e.Checksum
	}
	onDisk := make(map[string]bool, len(entries))
	for _, e := range entries {
		onDisk[e.Filename] = true
		sum, ok := locked[e.Filename]
		switch {
		case !ok:
			res.New = append(res.New, e.Filename)
		case sum != e.Checksum:
			res.Modified = append(res.Modified, e.Filename)
		default:
			res.Verified = append(res.Verified, e.Filename)
		}
	}
	for _, e := range lf.Entries {
		if !onDisk[e.Filename] {
			res.Removed = append(res.Removed, e.Filename)
		}
	}
	return res, nil
}

// Verify returns an error when the migration files in dir disagree with the
// lock file. Without a lock file there is nothing to verify.
func Verify(dir, lockPath string) error {
	res, err := Check(dir, lockPath)
	if err != nil {
		return err
	}
	if !res.LockExists || res.Valid() {
		return nil
	}

	e := alerr.New(alerr.ErrMigrationChecksum, "migration files do not match the lock file").With("lock", lockPath)
	if len(res.Modified) > 0 {
		e.With("modified", strings.Join(res.Modified, ", "))
	}
	if len(res.New) > 0 {
		e.With("new", strings.Join(res.New, ", "))
	}
	if len(res.Removed) > 0 {
		e.With("removed", strings.Join(res.Removed, ", "))
	}
	return e.WithHelp("run 'pgphase lock' after reviewing the changed files")
}

func scan(dir string) ([]Entry, error) {
	dirEntries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, alerr.Wrap(alerr.ErrMigrationNotFound, err, "failed to read migrations directory").With("dir", dir)
	}

	var entries []Entry
	for _, de := range dirEntries {
		if de.IsDir() || !strings.HasSuffix(de.Name(), migfile.Ext) {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, de.Name()))
		if err != nil {
			return nil, alerr.Wrap(alerr.ErrMigrationNotFound, err, "failed to read migration file").With("file", de.Name())
		}
		sum := sha256.Sum256(data)
		entries = append(entries, Entry{Filename: de.Name(), Checksum: hex.EncodeToString(sum[:])})
	}
	slices.SortFunc(entries, func(a, b Entry) int { return strings.Compare(a.Filename, b.Filename) })
	return entries, nil
}

func aggregate(entries []Entry) string {
	h := sha256.New()
	for _, e := range entries {
		h.Write([]byte(e.Checksum))
	}
	return hex.EncodeToString(h.Sum(nil))
}
