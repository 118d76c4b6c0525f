// Package checkhook defines the optional post-apply policy check: a
// PL/pgSQL function the operator may register that runs inside the same
// transaction as the apply, after every create/recreate but before commit,
// and can veto the transaction by reporting error-severity findings. pgmg
// ships no policy logic of its own — this is an external contract the
// database owner fills in, not something the core enforces opinions about.
package checkhook

import (
	"context"
	"database/sql"

	"github.com/lib/pq"
)

// Severity classifies one finding from a check run.
type Severity string

const (
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Finding is one reported issue from the check hook.
type Finding struct {
	Severity Severity
	Message  string
	Object   string
}

// Hook runs a policy check inside an in-progress apply transaction,
// receiving the set of functions the apply modified and the soft
// dependents that might call them, so the hook can target its checks.
type Hook interface {
	Check(ctx context.Context, tx *sql.Tx, modifiedFunctions, softDependents []string) ([]Finding, error)
}

// NoOp is the default Hook when no check function is configured.
type NoOp struct{}

func (NoOp) Check(context.Context, *sql.Tx, []string, []string) ([]Finding, error) {
	return nil, nil
}

// FunctionHook invokes a single SQL-callable check function by name,
// expecting it to return rows of (severity, message, object).
type FunctionHook struct {
	FunctionName string
}

func (h FunctionHook) Check(ctx context.Context, tx *sql.Tx, modifiedFunctions, softDependents []string) ([]Finding, error) {
	rows, err := tx.QueryContext(ctx,
		`SELECT severity, message, object FROM `+h.FunctionName+`($1, $2)`,
		pq.Array(modifiedFunctions), pq.Array(softDependents))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var findings []Finding
	for rows.Next() {
		var f Finding
		var severity string
		if err := rows.Scan(&severity, &f.Message, &f.Object); err != nil {
			return nil, err
		}
		f.Severity = Severity(severity)
		findings = append(findings, f)
	}
	return findings, rows.Err()
}

// CountBySeverity splits findings into error and warning counts, matching
// the shape pgmgerr.CheckFailed reports.
func CountBySeverity(findings []Finding) (errors, warnings int) {
	for _, f := range findings {
		switch f.Severity {
		case SeverityError:
			errors++
		case SeverityWarning:
			warnings++
		}
	}
	return errors, warnings
}
