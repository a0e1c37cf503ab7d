package testutil

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/hlop3z/pgphase/internal/alerr"
)

// -----------------------------------------------------------------------------
// SQL Assertions
// -----------------------------------------------------------------------------

var whitespace = regexp.MustCompile(`\s+`)

// NormalizeSQL collapses whitespace, trims and upper-cases a statement.
func NormalizeSQL(sql string) string {
	return strings.ToUpper(strings.TrimSpace(whitespace.ReplaceAllString(sql, " ")))
}

// AssertSQL compares two SQL strings after normalizing them.
func AssertSQL(t *testing.T, got, want string) {
	t.Helper()

	if NormalizeSQL(got) != NormalizeSQL(want) {
		t.Errorf("SQL mismatch:\ngot:  %s\nwant: %s", got, want)
	}
}

// AssertStatements compares statement lists after normalizing each one.
func AssertStatements(t *testing.T, got, want []string) {
	t.Helper()

	if len(got) != len(want) {
		t.Errorf("got %d statements, want %d:\ngot:  %q\nwant: %q", len(got), len(want), got, want)
		return
	}
	for i := range got {
		if NormalizeSQL(got[i]) != NormalizeSQL(want[i]) {
			t.Errorf("statement %d mismatch:\ngot:  %s\nwant: %s", i, got[i], want[i])
		}
	}
}

// -----------------------------------------------------------------------------
// Error Assertions
// -----------------------------------------------------------------------------

// AssertError checks that an error has the expected error code.
func AssertError(t *testing.T, err error, code alerr.Code) {
	t.Helper()

	if err == nil {
		t.Errorf("expected error with code %s, got nil", code)
		return
	}
	if got := alerr.GetErrorCode(err); got != code {
		t.Errorf("expected error code %s, got %s\nerror: %v", code, got, err)
	}
}

// AssertNoError fails the test immediately when err is not nil.
func AssertNoError(t *testing.T, err error) {
	t.Helper()

	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
}

// AssertErrorContains checks that an error message contains a substring.
func AssertErrorContains(t *testing.T, err error, substr string) {
	t.Helper()

	if err == nil {
		t.Errorf("expected error containing %q, got nil", substr)
		return
	}
	if !strings.Contains(err.Error(), substr) {
		t.Errorf("error message does not contain %q\ngot: %v", substr, err)
	}
}

// -----------------------------------------------------------------------------
// Files
// -----------------------------------------------------------------------------

// WriteFile writes content to a file, creating parent directories as needed.
func WriteFile(t *testing.T, path, content string) {
	t.Helper()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("failed to create parent directories: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write file: %v", err)
	}
}
