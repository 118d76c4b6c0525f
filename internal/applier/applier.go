// Package applier executes a PlanResult against a live database inside a
// single transaction: pending migrations first, then the dependency-graph
// reconciliation itself split into a drop-for-update pass, a delete pass,
// and a create/recreate pass, with an optional policy check hook run
// before commit. Every phase runs inside that one transaction, so a
// reconciliation either lands in full or not at all; the advisory lock is
// held by the caller on a separate session for the duration.
package applier

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"github.com/ZakSingh/pgmg/internal/checkhook"
	"github.com/ZakSingh/pgmg/internal/depgraph"
	"github.com/ZakSingh/pgmg/internal/objmodel"
	"github.com/ZakSingh/pgmg/internal/pgmgerr"
	"github.com/ZakSingh/pgmg/internal/pgmglog"
	"github.com/ZakSingh/pgmg/internal/planner"
	"github.com/ZakSingh/pgmg/internal/quoting"
	"github.com/ZakSingh/pgmg/internal/statestore"
)

// Result summarizes what an Apply invocation did, for the CLI to report
// and for callers embedding pkg/pgmg to log structurally.
type Result struct {
	RunID         string
	MigrationsRun []string
	Created       []objmodel.ObjectRef
	Updated       []objmodel.ObjectRef
	Deleted       []objmodel.ObjectRef
	CheckFindings []checkhook.Finding
}

// Applier runs plans against a database.
type Applier struct {
	store *statestore.Store
	hook  checkhook.Hook
	log   *pgmglog.Logger
	// TestMode skips statements that reach outside the reconciled
	// transaction's reach in a throwaway test database — currently just
	// pg_cron registration, which requires the cron background worker to
	// be running in the same cluster.
	TestMode bool
}

// New builds an Applier. hook may be checkhook.NoOp{} when no policy
// function is configured.
func New(store *statestore.Store, hook checkhook.Hook, log *pgmglog.Logger) *Applier {
	if hook == nil {
		hook = checkhook.NoOp{}
	}
	return &Applier{store: store, hook: hook, log: log}
}

// Apply runs plan against db inside one transaction. The caller is
// responsible for holding the advisory lock for the duration of this call.
func (a *Applier) Apply(ctx context.Context, db *sql.DB, plan *planner.PlanResult) (*Result, error) {
	runID := uuid.New().String()
	log := a.log.With("run_id", runID)
	result := &Result{RunID: runID}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, pgmgerr.NewDatabaseError(err, "begin transaction", "", 0)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	hasChanges := len(plan.Changes) > 0
	hasMigrations := len(plan.NewMigrations) > 0

	// The pre-drop pass exists so that a migration which alters a table
	// pgmg also manages (e.g. renaming a column a generated view reads)
	// doesn't fail because the view is still attached: dependent objects
	// that are about to be recreated anyway are dropped before migrations
	// run, and recreated afterward in the normal create phase. It only
	// makes sense to run when both migrations and code-object changes are
	// present — if there are no migrations there is nothing to protect
	// against, and if there are no changes there is nothing to pre-drop.
	if hasMigrations && hasChanges {
		if err := a.preDrop(ctx, tx, plan, log); err != nil {
			return nil, err
		}
	}

	for _, m := range plan.NewMigrations {
		if err := a.runMigration(ctx, tx, m); err != nil {
			return nil, err
		}
		if err := a.store.RecordMigration(ctx, tx, m.Name, m.Checksum); err != nil {
			return nil, err
		}
		result.MigrationsRun = append(result.MigrationsRun, m.Name)
		log.Info("applied migration", "name", m.Name)
	}

	deleteOrder, err := plan.Graph.TopoDeletionOrder()
	if err != nil {
		return nil, &pgmgerr.SchemaConflict{Reason: err.Error()}
	}

	// Phase A: drop objects being updated, in deletion (reverse-topo)
	// order, so a dependent is gone before the thing it depends on is
	// touched.
	updatesForDrop := changesByAction(plan.Changes, planner.ActionUpdate)
	for _, ref := range orderedRefs(deleteOrder, updatesForDrop) {
		if err := a.dropObject(ctx, tx, ref, updatesForDrop[ref], log); err != nil {
			return nil, err
		}
	}

	// Phase B: delete objects no longer declared anywhere. Comments are
	// dropped first regardless of topo position (a comment has no
	// dependents of its own to protect), and a failure dropping a comment
	// whose target already disappeared is swallowed via savepoint rather
	// than failing the whole apply, since COMMENT ON a dropped object is
	// harmless drift, not a correctness problem.
	toDelete := changesByAction(plan.Changes, planner.ActionDelete)
	commentDeletes, otherDeletes := splitComments(toDelete)
	for ref, obj := range commentDeletes {
		if err := a.dropCommentTolerant(ctx, tx, ref, obj, log); err != nil {
			return nil, err
		}
		if err := a.store.Delete(ctx, tx, ref); err != nil {
			return nil, err
		}
		result.Deleted = append(result.Deleted, ref)
	}
	for _, ref := range orderedRefs(deleteOrder, otherDeletes) {
		if err := a.dropObject(ctx, tx, ref, otherDeletes[ref], log); err != nil {
			return nil, err
		}
		if err := a.store.Delete(ctx, tx, ref); err != nil {
			return nil, err
		}
		result.Deleted = append(result.Deleted, ref)
	}

	// Phase C: create and recreate, in creation (topo) order.
	createOrder, err := plan.Graph.TopoCreationOrder()
	if err != nil {
		return nil, &pgmgerr.SchemaConflict{Reason: err.Error()}
	}
	creates := changesByAction(plan.Changes, planner.ActionCreate)
	updates := changesByAction(plan.Changes, planner.ActionUpdate)
	for _, ref := range createOrder {
		obj, isCreate := creates[ref]
		objU, isUpdate := updates[ref]
		if !isCreate && !isUpdate {
			continue
		}
		target := obj
		if isUpdate {
			target = objU
		}
		if err := a.createObject(ctx, tx, target, log); err != nil {
			return nil, err
		}
		if err := a.store.Upsert(ctx, tx, target); err != nil {
			return nil, err
		}
		if err := a.store.ReplaceDependencies(ctx, tx, target.Ref(), plan.Graph.DependenciesOf(target.Ref())); err != nil {
			return nil, err
		}
		if isCreate {
			result.Created = append(result.Created, ref)
		} else {
			result.Updated = append(result.Updated, ref)
		}
	}

	findings, err := a.hook.Check(ctx, tx, functionNames(result), softDependentNames(plan.Graph, result))
	if err != nil {
		return nil, &pgmgerr.StateStoreError{Op: "check hook", Err: err}
	}
	result.CheckFindings = findings
	errCount, warnCount := checkhook.CountBySeverity(findings)
	if errCount > 0 {
		return nil, &pgmgerr.CheckFailed{Errors: errCount, Warnings: warnCount}
	}

	if err := tx.Commit(); err != nil {
		return nil, pgmgerr.NewDatabaseError(err, "commit", "", 0)
	}
	committed = true
	log.Info("apply complete",
		"migrations", len(result.MigrationsRun),
		"created", len(result.Created),
		"updated", len(result.Updated),
		"deleted", len(result.Deleted),
	)
	return result, nil
}

func (a *Applier) preDrop(ctx context.Context, tx *sql.Tx, plan *planner.PlanResult, log *pgmglog.Logger) error {
	deleteOrder, err := plan.Graph.TopoDeletionOrder()
	if err != nil {
		return &pgmgerr.SchemaConflict{Reason: err.Error()}
	}
	updates := changesByAction(plan.Changes, planner.ActionUpdate)
	for _, ref := range orderedRefs(deleteOrder, updates) {
		log.Debug("pre-drop before migrations", "object", ref.String())
		if err := a.dropObject(ctx, tx, ref, updates[ref], log); err != nil {
			return err
		}
	}
	return nil
}

func (a *Applier) runMigration(ctx context.Context, tx *sql.Tx, m planner.Migration) error {
	for i, stmt := range m.Statements {
		if _, err := tx.ExecContext(ctx, stmt.SQL); err != nil {
			return &pgmgerr.MigrationFailed{
				Migration:      m.Name,
				StatementIndex: i,
				Err:            pgmgerr.NewDatabaseError(err, m.Name, m.Path, stmt.StartLine),
			}
		}
	}
	return nil
}

func (a *Applier) createObject(ctx context.Context, tx *sql.Tx, obj *objmodel.ManagedObject, log *pgmglog.Logger) error {
	if a.TestMode && obj.Kind == objmodel.KindCronJob {
		log.Debug("skipping cron job in test mode", "object", obj.Ref().String())
		return nil
	}
	log.Debug("creating object", "object", obj.Ref().String())
	if _, err := tx.ExecContext(ctx, obj.DDL); err != nil {
		return pgmgerr.NewDatabaseError(err, obj.Ref().String(), obj.SourceFile, obj.StartLine)
	}
	return nil
}

func (a *Applier) dropObject(ctx context.Context, tx *sql.Tx, ref objmodel.ObjectRef, obj *objmodel.ManagedObject, log *pgmglog.Logger) error {
	if overloadable(ref.Kind) {
		stmts, err := overloadDropStatements(ctx, tx, ref)
		if err != nil {
			return pgmgerr.NewDatabaseError(err, ref.String(), "", 0)
		}
		for _, stmt := range stmts {
			log.Debug("dropping overload", "object", ref.String(), "statement", stmt)
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return pgmgerr.NewDatabaseError(err, ref.String(), "", 0)
			}
		}
		return nil
	}
	stmt, ok := dropStatement(ref, obj)
	if !ok {
		return nil
	}
	log.Debug("dropping object", "object", ref.String())
	if _, err := tx.ExecContext(ctx, stmt); err != nil {
		return pgmgerr.NewDatabaseError(err, ref.String(), "", 0)
	}
	return nil
}

// overloadable reports whether kind can have multiple overloads sharing a
// schema-qualified name, in which case a name-only DROP would either drop
// the wrong overload or fail outright without an argument-type list.
func overloadable(kind objmodel.ObjectKind) bool {
	switch kind {
	case objmodel.KindFunction, objmodel.KindProcedure, objmodel.KindAggregate, objmodel.KindOperator:
		return true
	}
	return false
}

// overloadDropStatements queries the live catalog for every existing
// overload sharing ref's schema and name and returns one DROP per overload,
// each qualified with that overload's own argument (or operand) types.
// Nothing is derived from the desired object's DDL: a rename or signature
// change means the old overloads being replaced are not the ones pgmg is
// about to create, so they have to be found by asking Postgres what is
// actually there.
func overloadDropStatements(ctx context.Context, tx *sql.Tx, ref objmodel.ObjectRef) ([]string, error) {
	schema := ref.Name.Schema
	if schema == "" {
		schema = "public"
	}
	switch ref.Kind {
	case objmodel.KindFunction:
		return functionOverloadDrops(ctx, tx, schema, ref.Name.Name, "DROP FUNCTION", 'f')
	case objmodel.KindProcedure:
		return functionOverloadDrops(ctx, tx, schema, ref.Name.Name, "DROP PROCEDURE", 'p')
	case objmodel.KindAggregate:
		return functionOverloadDrops(ctx, tx, schema, ref.Name.Name, "DROP AGGREGATE", 'a')
	case objmodel.KindOperator:
		return operatorOverloadDrops(ctx, tx, schema, ref.Name.Name)
	}
	return nil, nil
}

// functionOverloadDrops handles pg_proc-backed kinds (function, procedure,
// aggregate), which all share the same identity-argument rendering via
// pg_get_function_identity_arguments.
func functionOverloadDrops(ctx context.Context, tx *sql.Tx, schema, name, dropKeyword string, prokind byte) ([]string, error) {
	rows, err := tx.QueryContext(ctx, `
		SELECT pg_get_function_identity_arguments(p.oid)
		FROM pg_proc p
		JOIN pg_namespace n ON p.pronamespace = n.oid
		WHERE n.nspname = $1 AND p.proname = $2 AND p.prokind = $3
	`, schema, name, string(prokind))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var stmts []string
	qualified := quoting.Qualified(schema, name)
	for rows.Next() {
		var args string
		if err := rows.Scan(&args); err != nil {
			return nil, err
		}
		stmts = append(stmts, fmt.Sprintf("%s IF EXISTS %s(%s)", dropKeyword, qualified, args))
	}
	return stmts, rows.Err()
}

// operatorOverloadDrops looks up every operator sharing schema.name and
// renders a DROP OPERATOR for each, since Postgres requires the left and
// right operand types (or NONE, for a unary operator) rather than accepting
// a bare name.
func operatorOverloadDrops(ctx context.Context, tx *sql.Tx, schema, name string) ([]string, error) {
	rows, err := tx.QueryContext(ctx, `
		SELECT tl.typname, tr.typname
		FROM pg_operator o
		JOIN pg_namespace n ON o.oprnamespace = n.oid
		LEFT JOIN pg_type tl ON o.oprleft = tl.oid
		LEFT JOIN pg_type tr ON o.oprright = tr.oid
		WHERE n.nspname = $1 AND o.oprname = $2
	`, schema, name)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var stmts []string
	qualified := quoting.Qualified(schema, name)
	for rows.Next() {
		var left, right sql.NullString
		if err := rows.Scan(&left, &right); err != nil {
			return nil, err
		}
		leftType, rightType := "NONE", "NONE"
		if left.Valid {
			leftType = left.String
		}
		if right.Valid {
			rightType = right.String
		}
		stmts = append(stmts, fmt.Sprintf("DROP OPERATOR IF EXISTS %s(%s, %s)", qualified, leftType, rightType))
	}
	return stmts, rows.Err()
}

// dropCommentTolerant drops a comment's backing object's comment inside a
// savepoint, releasing it on success and rolling back to it (rather than
// failing the whole apply) if the underlying object is already gone.
func (a *Applier) dropCommentTolerant(ctx context.Context, tx *sql.Tx, ref objmodel.ObjectRef, obj *objmodel.ManagedObject, log *pgmglog.Logger) error {
	const sp = "pgmg_comment_drop"
	if _, err := tx.ExecContext(ctx, "SAVEPOINT "+sp); err != nil {
		return pgmgerr.NewDatabaseError(err, ref.String(), "", 0)
	}
	stmt, ok := dropStatement(ref, obj)
	if !ok {
		_, _ = tx.ExecContext(ctx, "RELEASE SAVEPOINT "+sp)
		return nil
	}
	if _, err := tx.ExecContext(ctx, stmt); err != nil {
		log.Warn("comment target missing, ignoring", "object", ref.String(), "error", err.Error())
		if _, rbErr := tx.ExecContext(ctx, "ROLLBACK TO SAVEPOINT "+sp); rbErr != nil {
			return pgmgerr.NewDatabaseError(rbErr, ref.String(), "", 0)
		}
		return nil
	}
	_, err := tx.ExecContext(ctx, "RELEASE SAVEPOINT "+sp)
	return err
}

// dropStatement renders the DROP statement for ref, consulting obj (the
// desired object for an update, or the last-recorded one for a delete)
// when the ref alone doesn't carry enough information — a Trigger's DROP
// needs its parent table, which lives in obj.Dependencies, and a Comment's
// "drop" is really a COMMENT ON <target's own SQL keyword> ... IS NULL,
// reusing the keyword captured in the comment's own recorded DDL. Returns
// false if obj is nil and the kind can't be dropped by ref alone.
func dropStatement(ref objmodel.ObjectRef, obj *objmodel.ManagedObject) (string, bool) {
	q := ref.Name.Escaped()
	switch ref.Kind {
	case objmodel.KindTrigger:
		if obj == nil {
			return "", false
		}
		relations := obj.Dependencies.SortedRelations()
		if len(relations) == 0 {
			return "", false
		}
		return fmt.Sprintf("DROP TRIGGER IF EXISTS %s ON %s", quoting.Identifier(ref.Name.Name), relations[0].Escaped()), true
	case objmodel.KindComment:
		// Only object-level comments (TABLE, VIEW, FUNCTION, ...) round
		// trip through this path; COLUMN and TRIGGER comments use a
		// two-part target (table.column, trigger ON table) that q's plain
		// qualified-name rendering doesn't produce, and fall through to
		// false like any other comment kind this can't confidently drop.
		if obj == nil {
			return "", false
		}
		keyword, ok := commentObjectKeyword(obj.DDL)
		if !ok {
			return "", false
		}
		switch keyword {
		case "COLUMN", "TRIGGER":
			return "", false
		}
		return fmt.Sprintf("COMMENT ON %s %s IS NULL", keyword, q), true
	}
	// Function, Procedure, Aggregate, and Operator never reach here: they
	// can share a schema-qualified name across overloads, so dropObject
	// routes them through overloadDropStatements instead, which queries the
	// catalog for every existing overload rather than guessing one name-only
	// DROP. No CASCADE below either: an unmanaged dependent on one of these
	// should block the drop, not be silently swept away with it.
	switch ref.Kind {
	case objmodel.KindTable:
		return fmt.Sprintf("DROP TABLE IF EXISTS %s", q), true
	case objmodel.KindView:
		return fmt.Sprintf("DROP VIEW IF EXISTS %s", q), true
	case objmodel.KindMaterializedView:
		return fmt.Sprintf("DROP MATERIALIZED VIEW IF EXISTS %s", q), true
	case objmodel.KindType:
		return fmt.Sprintf("DROP TYPE IF EXISTS %s", q), true
	case objmodel.KindDomain:
		return fmt.Sprintf("DROP DOMAIN IF EXISTS %s", q), true
	case objmodel.KindIndex:
		return fmt.Sprintf("DROP INDEX IF EXISTS %s", q), true
	case objmodel.KindCronJob:
		return fmt.Sprintf("SELECT cron.unschedule(%s)", quoting.Literal(ref.Name.Name)), true
	}
	return "", false
}

// commentObjectKeyword extracts the SQL object-type keyword (TABLE,
// FUNCTION, COLUMN, ...) from a recorded "COMMENT ON <keyword> ... IS
// '...'" statement, so a comment's removal can target the same object
// type without re-deriving it from the comment's own ObjectKind (which
// doesn't distinguish, e.g., a column comment from a table comment).
func commentObjectKeyword(ddl string) (string, bool) {
	m := commentKeywordRe.FindStringSubmatch(ddl)
	if m == nil {
		return "", false
	}
	return strings.ToUpper(m[1]), true
}

var commentKeywordRe = regexp.MustCompile(`(?is)^\s*comment\s+on\s+(column|table|view|materialized\s+view|function|procedure|type|domain|index|trigger|aggregate|operator)\s`)

func changesByAction(changes []planner.Change, action planner.ChangeAction) map[objmodel.ObjectRef]*objmodel.ManagedObject {
	out := map[objmodel.ObjectRef]*objmodel.ManagedObject{}
	for _, c := range changes {
		if c.Action == action {
			out[c.Ref] = c.Object
		}
	}
	return out
}

// orderedRefs filters order down to the refs present in set, preserving
// order's relative sequence.
func orderedRefs(order []objmodel.ObjectRef, set map[objmodel.ObjectRef]*objmodel.ManagedObject) []objmodel.ObjectRef {
	var out []objmodel.ObjectRef
	for _, ref := range order {
		if _, ok := set[ref]; ok {
			out = append(out, ref)
		}
	}
	return out
}

func splitComments(set map[objmodel.ObjectRef]*objmodel.ManagedObject) (comments, others map[objmodel.ObjectRef]*objmodel.ManagedObject) {
	comments = map[objmodel.ObjectRef]*objmodel.ManagedObject{}
	others = map[objmodel.ObjectRef]*objmodel.ManagedObject{}
	for ref, obj := range set {
		if ref.Kind == objmodel.KindComment {
			comments[ref] = obj
		} else {
			others[ref] = obj
		}
	}
	return comments, others
}

func functionNames(r *Result) []string {
	var out []string
	for _, ref := range append(append([]objmodel.ObjectRef{}, r.Created...), r.Updated...) {
		if ref.Kind.IsFunctionLike() {
			out = append(out, ref.Name.String())
		}
	}
	return out
}

// softDependentNames collects the names of every object holding a soft
// (name-lookup) edge onto a created or updated object, deduplicated — the
// check hook examines these alongside the objects themselves because a
// soft dependent references its target by name rather than through a
// structural dependency that would already have forced its own recreation.
func softDependentNames(g *depgraph.Graph, r *Result) []string {
	seen := map[objmodel.ObjectRef]struct{}{}
	var out []string
	for _, ref := range append(append([]objmodel.ObjectRef{}, r.Created...), r.Updated...) {
		for _, dep := range g.SoftDependents(ref) {
			if _, ok := seen[dep]; ok {
				continue
			}
			seen[dep] = struct{}{}
			out = append(out, dep.Name.String())
		}
	}
	return out
}
