// Package analyzer turns one already-split SQL statement into a
// *objmodel.ManagedObject: its kind, its qualified name, its ddl_hash, and
// the relation/function/type dependency set a later statement in the same
// or a different file might reference. It never touches the database;
// builtin-catalog filtering is applied by the caller via catalog.Filter.
package analyzer

import (
	"fmt"
	"regexp"
	"strings"

	pg_query "github.com/pganalyze/pg_query_go/v5"

	"github.com/ZakSingh/pgmg/internal/objmodel"
	"github.com/ZakSingh/pgmg/internal/pgmgerr"
	"github.com/ZakSingh/pgmg/pkg/sqlsplit"
)

// Analyzer classifies statements and extracts their dependency sets. It is
// stateless; callers run builtin-catalog filtering and duplicate detection
// themselves once every statement in a source tree has been identified.
type Analyzer struct{}

// New returns a stateless Analyzer.
func New() *Analyzer { return &Analyzer{} }

// Identify parses one SQL statement and builds its ManagedObject record.
// sourceFile and the statement's StartLine/EndLine are carried through
// unchanged for diagnostics and for the planner's deterministic sort.
func (a *Analyzer) Identify(sourceFile string, stmt sqlsplit.Statement) (*objmodel.ManagedObject, error) {
	result, err := pg_query.Parse(stmt.SQL)
	if err != nil {
		return nil, &pgmgerr.ParseError{
			File:    sourceFile,
			Line:    stmt.StartLine,
			Message: err.Error(),
			Err:     err,
		}
	}
	if len(result.Stmts) != 1 || result.Stmts[0].Stmt == nil {
		return nil, &pgmgerr.ParseError{
			File:    sourceFile,
			Line:    stmt.StartLine,
			Message: fmt.Sprintf("expected exactly one statement, got %d", len(result.Stmts)),
		}
	}
	root := result.Stmts[0].Stmt

	kind, name, err := classify(root, stmt.SQL)
	if err != nil {
		return nil, &pgmgerr.ParseError{File: sourceFile, Line: stmt.StartLine, Message: err.Error(), Err: err}
	}
	if kind == "" {
		return nil, &pgmgerr.ParseError{
			File:    sourceFile,
			Line:    stmt.StartLine,
			Message: "statement is not a recognized managed-object DDL form",
		}
	}

	deps := collectDependencies(root)

	if kind.IsFunctionLike() {
		bodyDeps, err := functionBodyDependencies(root, stmt.SQL)
		if err != nil {
			return nil, &pgmgerr.ParseError{File: sourceFile, Line: stmt.StartLine, Message: err.Error(), Err: err}
		}
		deps.Merge(bodyDeps)
	}

	filterSelfReference(&deps, kind, name)

	return &objmodel.ManagedObject{
		Kind:         kind,
		Name:         name,
		DDL:          stmt.SQL,
		DDLHash:      ddlHash(stmt.SQL),
		Dependencies: deps,
		SourceFile:   sourceFile,
		StartLine:    stmt.StartLine,
		EndLine:      stmt.EndLine,
	}, nil
}

var cronCallRe = regexp.MustCompile(`(?is)^\s*select\s+cron\.(schedule|schedule_in_database)\s*\(\s*'([^']+)'`)
var cronUnscheduleRe = regexp.MustCompile(`(?is)^\s*select\s+cron\.unschedule\s*\(\s*'([^']+)'`)

// classify determines the ObjectKind and qualified name of a parsed
// statement. An empty ObjectKind with a nil error means "not a statement
// kind pgmg manages" (e.g. GRANT, plain SELECT); the caller surfaces that
// as a parse error so unrecognized DDL never passes through silently.
func classify(root *pg_query.Node, rawSQL string) (objmodel.ObjectKind, objmodel.QualifiedName, error) {
	switch n := root.Node.(type) {
	case *pg_query.Node_CreateStmt:
		return objmodel.KindTable, rangeVarName(n.CreateStmt.Relation), nil

	case *pg_query.Node_ViewStmt:
		return objmodel.KindView, rangeVarName(n.ViewStmt.View), nil

	case *pg_query.Node_CreateTableAsStmt:
		cta := n.CreateTableAsStmt
		var rel *pg_query.RangeVar
		if cta.Into != nil {
			rel = cta.Into.Rel
		}
		if cta.Objtype == pg_query.ObjectType_OBJECT_MATVIEW {
			return objmodel.KindMaterializedView, rangeVarName(rel), nil
		}
		return objmodel.KindTable, rangeVarName(rel), nil

	case *pg_query.Node_CreateFunctionStmt:
		cf := n.CreateFunctionStmt
		name := objectNameFromNodes(cf.Funcname)
		if cf.IsProcedure {
			return objmodel.KindProcedure, name, nil
		}
		return objmodel.KindFunction, name, nil

	case *pg_query.Node_CompositeTypeStmt:
		return objmodel.KindType, rangeVarName(n.CompositeTypeStmt.Typevar), nil

	case *pg_query.Node_CreateEnumStmt:
		return objmodel.KindType, objectNameFromNodes(n.CreateEnumStmt.TypeName), nil

	case *pg_query.Node_CreateRangeStmt:
		return objmodel.KindType, objectNameFromNodes(n.CreateRangeStmt.TypeName), nil

	case *pg_query.Node_CreateDomainStmt:
		return objmodel.KindDomain, objectNameFromNodes(n.CreateDomainStmt.Domainname), nil

	case *pg_query.Node_IndexStmt:
		idx := n.IndexStmt
		schema := ""
		if idx.Relation != nil {
			schema = idx.Relation.Schemaname
		}
		return objmodel.KindIndex, objmodel.QualifiedName{Schema: schema, Name: idx.Idxname}, nil

	case *pg_query.Node_CreateTrigStmt:
		trig := n.CreateTrigStmt
		schema := ""
		if trig.Relation != nil {
			schema = trig.Relation.Schemaname
		}
		return objmodel.KindTrigger, objmodel.QualifiedName{Schema: schema, Name: trig.Trigname}, nil

	case *pg_query.Node_CommentStmt:
		return objmodel.KindComment, commentTargetName(n.CommentStmt), nil

	case *pg_query.Node_DefineStmt:
		def := n.DefineStmt
		name := objectNameFromNodes(def.Defnames)
		switch def.Kind {
		case pg_query.ObjectType_OBJECT_AGGREGATE:
			return objmodel.KindAggregate, name, nil
		case pg_query.ObjectType_OBJECT_OPERATOR:
			return objmodel.KindOperator, operatorName(def.Defnames), nil
		}
		return "", objmodel.QualifiedName{}, nil

	case *pg_query.Node_SelectStmt:
		if m := cronCallRe.FindStringSubmatch(rawSQL); m != nil {
			return objmodel.KindCronJob, objmodel.QualifiedName{Name: m[2]}, nil
		}
		if m := cronUnscheduleRe.FindStringSubmatch(rawSQL); m != nil {
			return objmodel.KindCronJob, objmodel.QualifiedName{Name: m[1]}, nil
		}
		return "", objmodel.QualifiedName{}, nil

	default:
		return "", objmodel.QualifiedName{}, nil
	}
}

// operatorName renders an operator's Defnames (which for an operator is a
// single-element list holding the symbolic operator, e.g. "===") as a
// QualifiedName keyed on that symbol rather than collapsing it through the
// schema-qualification rule ordinary identifiers use.
func operatorName(nodes []*pg_query.Node) objmodel.QualifiedName {
	parts := stringNodes(nodes)
	if len(parts) == 0 {
		return objmodel.QualifiedName{}
	}
	if len(parts) == 1 {
		return objmodel.QualifiedName{Name: parts[0]}
	}
	return objmodel.QualifiedName{Schema: strings.Join(parts[:len(parts)-1], "."), Name: parts[len(parts)-1]}
}

// commentTargetName derives the identity of the object a COMMENT ON
// statement documents, and uses it as the Comment record's own Name.
// CommentStmt's Object field is a oneof over several shapes depending on
// Objtype; the name-list, plain-string, function-with-args, and type-name
// shapes are handled, and any other shape yields an empty name.
func commentTargetName(c *pg_query.CommentStmt) objmodel.QualifiedName {
	if c.Object == nil {
		return objmodel.QualifiedName{}
	}
	switch t := c.Object.Node.(type) {
	case *pg_query.Node_List:
		if name, ok := qualifiedFromNameNodes(t.List.Items); ok {
			return name
		}
	case *pg_query.Node_String_:
		if t.String_ != nil {
			return objmodel.QualifiedName{Name: t.String_.Sval}
		}
	case *pg_query.Node_ObjectWithArgs:
		if t.ObjectWithArgs != nil {
			return objectNameFromNodes(t.ObjectWithArgs.Objname)
		}
	case *pg_query.Node_TypeName:
		if name, ok := qualifiedFromNameNodes(t.TypeName.Names); ok {
			return name
		}
	}
	return objmodel.QualifiedName{}
}

// filterSelfReference removes an object's own name from its dependency
// sets (the Relation field of a CreateStmt is the table being defined, not
// a dependency on itself, and the same pattern applies to views, indexes,
// and functions). Triggers are exempted: the function it fires is a
// genuine dependency even in the rare case its name collides with the
// trigger's own, and the invariant that a Trigger's dependency set holds
// exactly one relation (its parent table) plus its function must survive
// this pass untouched.
func filterSelfReference(deps *objmodel.Dependencies, kind objmodel.ObjectKind, name objmodel.QualifiedName) {
	if kind == objmodel.KindTrigger {
		return
	}
	delete(deps.Relations, name)
	delete(deps.Types, name)
	delete(deps.Functions, name)
}

var dollarBodyRe = regexp.MustCompile(`(?is)\bAS\s+(\$[A-Za-z_]*\$)(.*?)\$[A-Za-z_]*\$`)
var quotedBodyRe = regexp.MustCompile(`(?is)\bAS\s+'((?:[^']|'')*)'`)
var languageRe = regexp.MustCompile(`(?is)\bLANGUAGE\s+(\w+)`)

// functionBodyDependencies extracts the body text of a CREATE FUNCTION or
// CREATE PROCEDURE statement and recurses into it: a plpgsql body is walked
// with collectPlpgsqlDependencies, a sql body is split with sqlsplit and
// each statement parsed and walked like any top-level statement. Any other
// language (c, plpython3u, ...) has an opaque body pgmg cannot introspect,
// so it contributes no additional dependencies beyond the signature-level
// ones the generic walk already found (parameter and return types).
func functionBodyDependencies(root *pg_query.Node, rawSQL string) (objmodel.Dependencies, error) {
	deps := objmodel.NewDependencies()

	lang := "sql"
	if m := languageRe.FindStringSubmatch(rawSQL); m != nil {
		lang = strings.ToLower(m[1])
	}

	body, ok := extractFunctionBody(rawSQL)
	if !ok {
		return deps, nil
	}

	switch lang {
	case "plpgsql":
		bodyDeps, err := collectPlpgsqlDependencies(rawSQL)
		if err != nil {
			return deps, fmt.Errorf("parsing plpgsql body: %w", err)
		}
		deps.Merge(bodyDeps)
	case "sql":
		for _, inner := range sqlsplit.Split(body) {
			result, err := pg_query.Parse(inner.SQL)
			if err != nil {
				// A fragment of a SQL-language body (e.g. a bare RETURN
				// expression in the new-style "AS RETURN expr" form) may
				// not be parseable as a standalone statement; that's fine,
				// it contributes no relation/function/type references
				// beyond what the signature already carries.
				continue
			}
			for _, stmt := range result.Stmts {
				if stmt.Stmt != nil {
					deps.Merge(collectDependencies(stmt.Stmt))
				}
			}
		}
	}
	return deps, nil
}

// extractFunctionBody pulls the literal body text out of a CREATE
// FUNCTION/PROCEDURE statement's AS clause, trying the dollar-quoted form
// first (the overwhelming majority of real-world functions) and falling
// back to a plain single-quoted string.
func extractFunctionBody(rawSQL string) (string, bool) {
	if m := dollarBodyRe.FindStringSubmatch(rawSQL); m != nil {
		return m[2], true
	}
	if m := quotedBodyRe.FindStringSubmatch(rawSQL); m != nil {
		return strings.ReplaceAll(m[1], "''", "'"), true
	}
	return "", false
}
