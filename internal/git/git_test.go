package git

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/hlop3z/pgphase/internal/alerr"
)

func initGitRepo(t *testing.T, dir string) {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not installed")
	}
	runGitCmd(t, dir, "init")
	runGitCmd(t, dir, "config", "user.email", "test@test.com")
	runGitCmd(t, dir, "config", "user.name", "Test User")
}

func runGitCmd(t *testing.T, dir string, args ...string) {
	t.Helper()
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	if out, err := cmd.CombinedOutput(); err != nil {
		t.Fatalf("git %v failed: %v\n%s", args, err, out)
	}
}

func createFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func TestOpen_NotARepo(t *testing.T) {
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not installed")
	}
	_, err := Open(context.Background(), t.TempDir())
	if alerr.GetErrorCode(err) != alerr.ErrNotGitRepo {
		t.Errorf("Open() error = %v, want %s", err, alerr.ErrNotGitRepo)
	}
}

func TestUncommitted(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	initGitRepo(t, dir)
	migrations := filepath.Join(dir, "migrations")

	createFile(t, filepath.Join(migrations, "a.js"), "export default {}")
	createFile(t, filepath.Join(migrations, "b.js"), "export default {}")
	runGitCmd(t, dir, "add", ".")
	runGitCmd(t, dir, "commit", "-m", "initial")

	repo, err := Open(ctx, migrations)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	files, err := repo.Uncommitted(ctx, migrations, ".js")
	if err != nil {
		t.Fatalf("Uncommitted() error = %v", err)
	}
	if len(files) != 0 {
		t.Fatalf("clean tree reported %v", files)
	}

	createFile(t, filepath.Join(migrations, "a.js"), "export default { up: [] }")
	createFile(t, filepath.Join(migrations, "c.js"), "export default {}")
	createFile(t, filepath.Join(migrations, "notes.txt"), "ignored")
	if err := os.Remove(filepath.Join(migrations, "b.js")); err != nil {
		t.Fatal(err)
	}

	files, err = repo.Uncommitted(ctx, migrations, ".js")
	if err != nil {
		t.Fatalf("Uncommitted() error = %v", err)
	}
	want := map[string]Status{"a.js": StatusModified, "b.js": StatusDeleted, "c.js": StatusUntracked}
	if len(files) != len(want) {
		t.Fatalf("Uncommitted() = %v, want %d files", files, len(want))
	}
	for _, f := range files {
		if got := want[filepath.Base(f.Path)]; got != f.Status {
			t.Errorf("%s status = %s, want %s", filepath.Base(f.Path), f.Status, got)
		}
	}
}

func TestUncommitted_MissingDir(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	initGitRepo(t, dir)

	repo, err := Open(ctx, dir)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	files, err := repo.Uncommitted(ctx, filepath.Join(dir, "migrations"), ".js")
	if err != nil || len(files) != 0 {
		t.Errorf("Uncommitted() = %v, %v", files, err)
	}
}

func TestParseCode(t *testing.T) {
	tests := []struct {
		code string
		want Status
	}{
		{"??", StatusUntracked},
		{" M", StatusModified},
		{"MM", StatusModified},
		{"M ", StatusStaged},
		{"A ", StatusStaged},
		{" D", StatusDeleted},
		{"D ", StatusDeleted},
	}
	for _, tt := range tests {
		if got := parseCode(tt.code); got != tt.want {
			t.Errorf("parseCode(%q) = %s, want %s", tt.code, got, tt.want)
		}
	}
}
