package analyzer

import (
	"encoding/json"

	pg_query "github.com/pganalyze/pg_query_go/v5"

	"github.com/ZakSingh/pgmg/internal/objmodel"
)

// collectPlpgsqlDependencies parses a PL/pgSQL function body with
// pg_query.ParsePlPgSqlToJSON and walks the resulting JSON tree for embedded
// SQL expressions (PLpgSQL_expr.query, which each get parsed and walked as
// their own statement) and variable declarations (PLpgSQL_var.datatype,
// which names a type). Unlike the top-level AST, ParsePlPgSqlToJSON returns
// plain JSON rather than typed nodes, since the plpgsql parser is a
// separate grammar bolted onto the core one.
func collectPlpgsqlDependencies(functionDDL string) (objmodel.Dependencies, error) {
	deps := objmodel.NewDependencies()

	raw, err := pg_query.ParsePlPgSqlToJSON(functionDDL)
	if err != nil {
		return deps, err
	}

	var functions []map[string]any
	if err := json.Unmarshal([]byte(raw), &functions); err != nil {
		return deps, err
	}

	for _, fn := range functions {
		walkPlpgsqlJSON(fn, &deps)
	}
	return deps, nil
}

func walkPlpgsqlJSON(node any, deps *objmodel.Dependencies) {
	switch v := node.(type) {
	case map[string]any:
		if expr, ok := v["PLpgSQL_expr"]; ok {
			if exprObj, ok := expr.(map[string]any); ok {
				if query, ok := exprObj["query"].(string); ok && query != "" {
					collectEmbeddedSQL(query, deps)
				}
			}
		}
		if varObj, ok := v["PLpgSQL_var"]; ok {
			if vm, ok := varObj.(map[string]any); ok {
				if dt, ok := vm["datatype"].(map[string]any); ok {
					if t, ok := dt["PLpgSQL_type"].(map[string]any); ok {
						if typname, ok := t["typname"].(string); ok && typname != "" {
							if name, ok := parseBareTypeName(typname); ok {
								deps.AddType(name)
							}
						}
					}
				}
			}
		}
		for _, child := range v {
			walkPlpgsqlJSON(child, deps)
		}
	case []any:
		for _, child := range v {
			walkPlpgsqlJSON(child, deps)
		}
	}
}

// collectEmbeddedSQL parses one SQL fragment found inside a PL/pgSQL body
// (e.g. the query in "SELECT x INTO y FROM z") and merges its dependencies.
// Fragments that don't parse on their own (bare expressions like "x + 1" or
// "a()", which plpgsql also reports as PLpgSQL_expr) are parsed again
// wrapped in SELECT; a fragment that still doesn't parse (e.g. an
// assignment "x := 1") is skipped.
func collectEmbeddedSQL(query string, deps *objmodel.Dependencies) {
	result, err := pg_query.Parse(query)
	if err != nil {
		result, err = pg_query.Parse("SELECT " + query)
		if err != nil {
			return
		}
	}
	for _, stmt := range result.Stmts {
		if stmt.Stmt == nil {
			continue
		}
		deps.Merge(collectDependencies(stmt.Stmt))
	}
}

// parseBareTypeName turns a plpgsql-reported type name (already a plain
// string like "integer" or "myschema.mytype") into a QualifiedName without
// invoking the full SQL parser.
func parseBareTypeName(typname string) (objmodel.QualifiedName, bool) {
	if typname == "" {
		return objmodel.QualifiedName{}, false
	}
	schema, name := splitLastDot(typname)
	return objmodel.QualifiedName{Schema: schema, Name: name}, true
}

func splitLastDot(s string) (schema, name string) {
	idx := -1
	for i := 0; i < len(s); i++ {
		if s[i] == '.' {
			idx = i
		}
	}
	if idx < 0 {
		return "", s
	}
	return s[:idx], s[idx+1:]
}
