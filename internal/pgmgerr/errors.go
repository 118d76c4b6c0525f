// Package pgmgerr implements the structured error taxonomy of §7: every
// failure path returns one of these concrete types instead of an opaque
// string, so callers can branch on error category with errors.As.
package pgmgerr

import (
	"fmt"
	"strings"

	"github.com/jackc/pgconn"
)

// ParseError reports SQL that pg_query (or the PL/pgSQL parser) could not
// parse.
type ParseError struct {
	File    string
	Line    int
	Column  int
	Message string
	Err     error
}

func (e *ParseError) Error() string {
	if e.File != "" {
		return fmt.Sprintf("failed to parse SQL in %s:%d: %s", e.File, e.Line, e.Message)
	}
	return fmt.Sprintf("failed to parse SQL: %s", e.Message)
}

func (e *ParseError) Unwrap() error { return e.Err }

// SchemaConflict covers duplicate objects, forbidden overloads, and cycles
// in the dependency graph — anything that makes the desired state
// internally inconsistent before any DDL runs.
type SchemaConflict struct {
	Reason string
}

func (e *SchemaConflict) Error() string { return "schema conflict: " + e.Reason }

// StateStoreError wraps a failure reading or writing the pgmg.* tables.
type StateStoreError struct {
	Op  string
	Err error
}

func (e *StateStoreError) Error() string {
	return fmt.Sprintf("state store %s: %v", e.Op, e.Err)
}

func (e *StateStoreError) Unwrap() error { return e.Err }

// DatabaseError wraps a wire-protocol/DDL execution failure, attaching the
// object/file/line context the caller had at the point of execution and,
// when the server supplied one, its error position. Position is stored as
// the server reported it (a character offset into the failing statement)
// and is not translated into a line; Line is the line the caller passed,
// the statement's start line.
type DatabaseError struct {
	SQLState string
	Message  string
	Detail   string
	Hint     string
	Severity string
	Position int32 // 0 if unavailable
	Object   string
	File     string
	Line     int
	Err      error
}

func (e *DatabaseError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "database error [%s]: %s", e.SQLState, e.Message)
	if e.Object != "" {
		fmt.Fprintf(&b, " (object %s)", e.Object)
	}
	if e.File != "" {
		fmt.Fprintf(&b, " at %s:%d", e.File, e.Line)
	}
	if e.Detail != "" {
		fmt.Fprintf(&b, "; detail: %s", e.Detail)
	}
	if e.Hint != "" {
		fmt.Fprintf(&b, "; hint: %s", e.Hint)
	}
	return b.String()
}

func (e *DatabaseError) Unwrap() error { return e.Err }

// NewDatabaseError builds a DatabaseError from a pgx/pgconn error, pulling
// out the structured SQLSTATE/position fields when the driver supplied a
// *pgconn.PgError and falling back to a bare message otherwise.
func NewDatabaseError(err error, object, file string, line int) *DatabaseError {
	de := &DatabaseError{Message: err.Error(), Object: object, File: file, Line: line, Err: err}
	var pgErr *pgconn.PgError
	if asPgError(err, &pgErr) {
		de.SQLState = pgErr.Code
		de.Message = pgErr.Message
		de.Detail = pgErr.Detail
		de.Hint = pgErr.Hint
		de.Severity = pgErr.Severity
		de.Position = pgErr.Position
	}
	return de
}

func asPgError(err error, target **pgconn.PgError) bool {
	for err != nil {
		if pe, ok := err.(*pgconn.PgError); ok {
			*target = pe
			return true
		}
		unwrapper, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = unwrapper.Unwrap()
	}
	return false
}

// LockTimeout is returned when the advisory lock could not be acquired
// within the configured timeout.
type LockTimeout struct {
	Seconds int
}

func (e *LockTimeout) Error() string {
	return fmt.Sprintf("timed out after %ds waiting for the advisory lock; another reconciliation may be in progress", e.Seconds)
}

// LockLost is returned when the session holding the advisory lock died.
type LockLost struct {
	Reason string
}

func (e *LockLost) Error() string { return "advisory lock session lost: " + e.Reason }

// CheckFailed is returned when the PL/pgSQL policy hook reported at least
// one error-severity finding.
type CheckFailed struct {
	Errors   int
	Warnings int
}

func (e *CheckFailed) Error() string {
	return fmt.Sprintf("policy check failed: %d error(s), %d warning(s)", e.Errors, e.Warnings)
}

// MigrationFailed reports which migration and which statement within it
// failed.
type MigrationFailed struct {
	Migration      string
	StatementIndex int
	Err            error
}

func (e *MigrationFailed) Error() string {
	return fmt.Sprintf("migration %s failed at statement %d: %v", e.Migration, e.StatementIndex, e.Err)
}

func (e *MigrationFailed) Unwrap() error { return e.Err }

// RenderCaret renders the offending line of source with a caret marker
// under the failing column, UTF-8 character aware, for the diagnostics
// format in §6.
func RenderCaret(source string, line, col int) string {
	lines := strings.Split(source, "\n")
	if line < 1 || line > len(lines) {
		return ""
	}
	text := lines[line-1]
	runes := []rune(text)
	if col < 1 {
		col = 1
	}
	if col > len(runes)+1 {
		col = len(runes) + 1
	}
	caret := strings.Repeat(" ", col-1) + "^"
	return text + "\n" + caret
}
