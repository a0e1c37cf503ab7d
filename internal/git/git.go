// Package git reports whether migration files are committed. Migration files
// are only safe to apply elsewhere once they are in version control, so
// status and migrate point out the ones that are not.
package git

import (
	"bytes"
	"context"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"

	"github.com/hlop3z/pgphase/internal/alerr"
)

// Status is the git state of one file.
type Status int

const (
	StatusUnknown Status = iota
	StatusUntracked
	StatusModified
	StatusStaged
	StatusDeleted
)

var statusNames = [...]string{"unknown", "untracked", "modified", "staged", "deleted"}

func (s Status) String() string {
	if int(s) < len(statusNames) {
		return statusNames[s]
	}
	return "unknown"
}

// FileStatus is a file that differs from HEAD.
type FileStatus struct {
	Path   string
	Status Status
}

// Repo runs git inside one work tree.
type Repo struct {
	root string
}

// Open finds the work tree containing path.
func Open(ctx context.Context, path string) (*Repo, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, alerr.Wrap(alerr.EInternalError, err, "failed to resolve path")
	}
	cmd := exec.CommandContext(ctx, "git", "rev-parse", "--show-toplevel")
	cmd.Dir = abs
	out, err := cmd.Output()
	if err != nil {
		return nil, alerr.Newf(alerr.ErrNotGitRepo, "not a git repository: %s", abs)
	}
	return &Repo{root: strings.TrimSpace(string(out))}, nil
}

// Root returns the top level directory of the work tree.
func (r *Repo) Root() string { return r.root }

// Uncommitted lists files under dir whose name ends in one of exts and
// that differ from HEAD. A missing dir has nothing uncommitted.
func (r *Repo) Uncommitted(ctx context.Context, dir string, exts ...string) ([]FileStatus, error) {
	rel, err := r.relative(dir)
	if err != nil {
		return nil, nil
	}
	// -uall lists files inside untracked directories one by one.
	out, err := r.run(ctx, "status", "--porcelain", "-uall", "--", rel)
	if err != nil {
		return nil, err
	}

	var files []FileStatus
	for _, line := range strings.Split(out, "\n") {
		if len(line) < 4 {
			continue
		}
		code, path := line[:2], strings.TrimSpace(line[3:])
		if i := strings.Index(path, " -> "); i != -1 {
			path = path[i+4:]
		}
		if !hasExt(path, exts) {
			continue
		}
		files = append(files, FileStatus{
			Path:   filepath.Join(r.root, filepath.FromSlash(path)),
			Status: parseCode(code),
		})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	return files, nil
}

func parseCode(code string) Status {
	switch {
	case code[0] == '?' || code[1] == '?':
		return StatusUntracked
	case code[0] == 'D' || code[1] == 'D':
		return StatusDeleted
	case code[1] == 'M':
		return StatusModified
	case code[0] == 'A' || code[0] == 'M' || code[0] == 'R':
		return StatusStaged
	default:
		return StatusModified
	}
}

func hasExt(path string, exts []string) bool {
	if len(exts) == 0 {
		return true
	}
	for _, ext := range exts {
		if strings.HasSuffix(path, ext) {
			return true
		}
	}
	return false
}

func (r *Repo) relative(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	rel, err := filepath.Rel(r.root, abs)
	if err != nil {
		return "", err
	}
	return filepath.ToSlash(rel), nil
}

func (r *Repo) run(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = r.root

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", alerr.New(alerr.ErrGit, strings.TrimSpace(stderr.String())).
			With("command", "git "+strings.Join(args, " "))
	}
	return stdout.String(), nil
}
