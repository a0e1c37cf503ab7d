// Package alerr provides standardized error handling for pgphase.
// All errors have stable, machine-readable codes, structured context, and proper wrapping.
package alerr

import (
	"errors"
	"fmt"
	"runtime"
	"sort"
	"strings"
)

// Code represents a stable, machine-readable error code.
// Format: E{category}{number} where category is 1-9 and number is 001-999.
type Code string

// Error codes organized by category.
const (
	// Schema errors (E1xxx) - problems with declarative schema definitions
	ErrSchemaInvalid   Code = "E1001" // Schema definition is malformed
	ErrSchemaDuplicate Code = "E1003" // Two objects compile to the same physical name

	// Validation errors (E2xxx)
	ErrInvalidIdentifier Code = "E2001" // Identifier is empty or too long
	ErrMissingReference  Code = "E2003" // Foreign key targets an undeclared table
	ErrInvalidType       Code = "E2005" // Column data type is not supported

	// Migration errors (E3xxx)
	ErrMigrationFailed     Code = "E3001" // Migration execution failed
	ErrMigrationNotFound   Code = "E3002" // Migration file not found or unreadable
	ErrMigrationChecksum   Code = "E3004" // Migration file changed after lock
	ErrRenameUnresolved    Code = "E3005" // Rename ambiguity without a resolving policy
	ErrMigrationDependency Code = "E3006" // Declared predecessor has not run

	// SQL errors (E4xxx)
	ErrSQLExecution   Code = "E4001" // SQL statement failed to execute
	ErrSQLConnection  Code = "E4002" // Database connection failed
	ErrSQLTransaction Code = "E4003" // Transaction operation failed
	ErrLock           Code = "E4004" // Advisory lock could not be taken

	// Migration file runtime errors (E5xxx)
	ErrJSExecution Code = "E5001" // Migration file evaluation failed

	// Introspection errors (E6xxx)
	ErrIntrospection Code = "E6001" // Catalog query failed

	// Git errors (E7xxx)
	ErrNotGitRepo Code = "E7001" // Path is not inside a git work tree
	ErrGit        Code = "E7002" // git command failed

	// Configuration errors (E8xxx)
	ErrConfig Code = "E8001" // Configuration is missing or invalid

	// Internal errors (E9xxx)
	EInternalError Code = "E9001"
)

// Error is the standard error type for pgphase.
type Error struct {
	code    Code
	message string
	context map[string]any
	cause   error
	stack   string
}

// Error returns the formatted error string.
// Format:
//
//	[E4001] failed to execute statement
//	  sql: ALTER TABLE "users" ADD COLUMN "role" text
//	  cause: pq: column "role" already exists
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteString(fmt.Sprintf("[%s] %s", e.code, e.message))

	// Sorted for deterministic output
	if len(e.context) > 0 {
		keys := make([]string, 0, len(e.context))
		for k := range e.context {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		for _, k := range keys {
			b.WriteString(fmt.Sprintf("\n  %s: %v", k, e.context[k]))
		}
	}

	if e.cause != nil {
		b.WriteString(fmt.Sprintf("\n  cause: %v", e.cause))
	}

	return b.String()
}

// Unwrap returns the underlying cause error for errors.Unwrap compatibility.
func (e *Error) Unwrap() error {
	return e.cause
}

// Is reports whether target is an *Error carrying the same code.
func (e *Error) Is(target error) bool {
	if target == nil {
		return false
	}

	var targetErr *Error
	if errors.As(target, &targetErr) {
		return e.code == targetErr.code
	}

	return false
}

// GetCode returns the error code.
func (e *Error) GetCode() Code {
	return e.code
}

// GetMessage returns the error message.
func (e *Error) GetMessage() string {
	return e.message
}

// GetContext returns the error context map.
func (e *Error) GetContext() map[string]any {
	return e.context
}

// GetCause returns the underlying cause error.
func (e *Error) GetCause() error {
	return e.cause
}

// GetStack returns the stack trace captured at construction.
func (e *Error) GetStack() string {
	return e.stack
}

// With adds a key-value pair to the error context.
func (e *Error) With(key string, value any) *Error {
	if e.context == nil {
		e.context = make(map[string]any)
	}
	e.context[key] = value
	return e
}

// WithTable adds table context to the error.
// Format: "schema.table" or just "table" if schema is empty.
func (e *Error) WithTable(schema, table string) *Error {
	if schema != "" {
		return e.With("table", schema+"."+table)
	}
	return e.With("table", table)
}

// WithColumn adds column context to the error.
func (e *Error) WithColumn(name string) *Error {
	return e.With("column", name)
}

// WithSQL adds SQL statement context to the error.
func (e *Error) WithSQL(sql string) *Error {
	return e.With("sql", sql)
}

// WithOp records the pipeline operation that failed.
func (e *Error) WithOp(op string) *Error {
	return e.With("op", op)
}

// WithHelp adds a help suggestion to the error.
func (e *Error) WithHelp(help string) *Error {
	helps, _ := e.context["helps"].([]string)
	helps = append(helps, help)
	return e.With("helps", helps)
}

// Helps returns all help suggestions attached to this error.
func (e *Error) Helps() []string {
	helps, _ := e.context["helps"].([]string)
	return helps
}

func captureStack(skip int) string {
	const maxDepth = 32
	var pcs [maxDepth]uintptr
	n := runtime.Callers(skip, pcs[:])
	if n == 0 {
		return ""
	}

	var b strings.Builder
	frames := runtime.CallersFrames(pcs[:n])
	for {
		frame, more := frames.Next()
		if !strings.Contains(frame.File, "runtime/") {
			b.WriteString(fmt.Sprintf("%s\n\t%s:%d\n", frame.Function, frame.File, frame.Line))
		}
		if !more {
			break
		}
	}
	return b.String()
}

// New creates a new Error with the given code and message.
func New(code Code, msg string) *Error {
	return &Error{
		code:    code,
		message: msg,
		context: make(map[string]any),
		stack:   captureStack(3),
	}
}

// Newf creates a new Error with the given code and formatted message.
func Newf(code Code, format string, args ...any) *Error {
	return &Error{
		code:    code,
		message: fmt.Sprintf(format, args...),
		context: make(map[string]any),
		stack:   captureStack(3),
	}
}

// Wrap creates a new Error that wraps an existing error.
func Wrap(code Code, err error, msg string) *Error {
	if err == nil {
		return New(code, msg)
	}
	return &Error{
		code:    code,
		message: msg,
		context: make(map[string]any),
		cause:   err,
		stack:   captureStack(3),
	}
}

// Wrapf creates a new Error that wraps an existing error with a formatted message.
func Wrapf(code Code, err error, format string, args ...any) *Error {
	return Wrap(code, err, fmt.Sprintf(format, args...))
}

// GetErrorCode extracts the error code from an error chain.
// Returns empty string if no code is found.
func GetErrorCode(err error) Code {
	if err == nil {
		return ""
	}

	var e *Error
	if errors.As(err, &e) {
		return e.code
	}

	return ""
}

// Is checks if an error has the specified code.
func Is(err error, code Code) bool {
	return GetErrorCode(err) == code
}

// WrapSQL creates an ErrSQLExecution error with table context.
// Example: WrapSQL(err, "introspect columns", "users")
func WrapSQL(err error, op string, table string) *Error {
	e := Wrap(ErrSQLExecution, err, "failed to "+op)
	if table != "" {
		e.WithTable("", table)
	}
	return e
}

// WrapIntrospection creates an ErrIntrospection error for a catalog category.
func WrapIntrospection(err error, category, schema string) *Error {
	return Wrap(ErrIntrospection, err, "failed to introspect "+category).
		With("schema", schema)
}
