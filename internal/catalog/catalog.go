// Package catalog snapshots the server's built-in functions, types, and
// relations so the analyzer can filter them out of extracted dependencies.
// The snapshot is read-only after construction: one query per category at
// planner startup, plus a static list of SQL parser special forms that
// never appear in pg_proc because they are implemented directly in
// PostgreSQL's grammar.
package catalog

import (
	"context"
	"database/sql"

	"github.com/ZakSingh/pgmg/internal/objmodel"
)

// builtinOIDThreshold is the conventional boundary below which catalog OIDs
// belong to objects created at initdb time.
const builtinOIDThreshold = 16384

// parserSpecialForms are SQL constructs implemented as grammar productions
// rather than pg_proc entries, so no catalog query will ever surface them.
var parserSpecialForms = []string{
	"coalesce", "nullif", "greatest", "least",
	"current_date", "current_time", "current_timestamp", "localtime", "localtimestamp",
	"current_user", "current_role", "session_user", "user", "current_catalog", "current_schema",
	"row", "array",
	"xmlelement", "xmlforest", "xmlpi", "xmlroot", "xmlexists",
	"grouping",
	"overlay", "position", "substring", "trim", "extract",
	"cast", "collation", "default",
}

// Catalog exposes read-only membership queries over builtin functions,
// types, and relations.
type Catalog struct {
	functions map[objmodel.QualifiedName]struct{}
	types     map[objmodel.QualifiedName]struct{}
	relations map[objmodel.QualifiedName]struct{}
}

// Empty returns a catalog with no entries besides the static parser
// special forms; useful in unit tests that don't have a live database.
func Empty() *Catalog {
	c := &Catalog{
		functions: map[objmodel.QualifiedName]struct{}{},
		types:     map[objmodel.QualifiedName]struct{}{},
		relations: map[objmodel.QualifiedName]struct{}{},
	}
	for _, f := range parserSpecialForms {
		c.functions[objmodel.QualifiedName{Name: f}] = struct{}{}
	}
	return c
}

// Load builds a Catalog by querying the server's system catalogs.
func Load(ctx context.Context, db *sql.DB) (*Catalog, error) {
	c := Empty()

	rows, err := db.QueryContext(ctx, `
		SELECT n.nspname, p.proname
		FROM pg_proc p
		JOIN pg_namespace n ON p.pronamespace = n.oid
		WHERE n.nspname IN ('pg_catalog', 'information_schema')
		   OR p.oid < $1
		GROUP BY n.nspname, p.proname
	`, builtinOIDThreshold)
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		var schema, name string
		if err := rows.Scan(&schema, &name); err != nil {
			rows.Close()
			return nil, err
		}
		c.functions[objmodel.QualifiedName{Schema: schema, Name: name}] = struct{}{}
		if schema == "pg_catalog" {
			c.functions[objmodel.QualifiedName{Name: name}] = struct{}{}
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	rows.Close()

	rows, err = db.QueryContext(ctx, `
		SELECT n.nspname, t.typname
		FROM pg_type t
		JOIN pg_namespace n ON t.typnamespace = n.oid
		WHERE n.nspname IN ('pg_catalog', 'information_schema')
		   OR t.oid < $1
	`, builtinOIDThreshold)
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		var schema, name string
		if err := rows.Scan(&schema, &name); err != nil {
			rows.Close()
			return nil, err
		}
		c.types[objmodel.QualifiedName{Schema: schema, Name: name}] = struct{}{}
		if schema == "pg_catalog" {
			c.types[objmodel.QualifiedName{Name: name}] = struct{}{}
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	rows.Close()

	rows, err = db.QueryContext(ctx, `
		SELECT schemaname, tablename FROM pg_tables WHERE schemaname IN ('pg_catalog', 'information_schema')
		UNION ALL
		SELECT schemaname, viewname FROM pg_views WHERE schemaname IN ('pg_catalog', 'information_schema')
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var schema, name string
		if err := rows.Scan(&schema, &name); err != nil {
			return nil, err
		}
		c.relations[objmodel.QualifiedName{Schema: schema, Name: name}] = struct{}{}
	}
	return c, rows.Err()
}

func (c *Catalog) IsBuiltinFunction(n objmodel.QualifiedName) bool {
	_, ok := c.functions[n]
	if !ok && n.Schema != "" {
		_, ok = c.functions[objmodel.QualifiedName{Name: n.Name}]
	}
	return ok
}

func (c *Catalog) IsBuiltinType(n objmodel.QualifiedName) bool {
	_, ok := c.types[n]
	if !ok && n.Schema != "" {
		_, ok = c.types[objmodel.QualifiedName{Name: n.Name}]
	}
	return ok
}

func (c *Catalog) IsBuiltinRelation(n objmodel.QualifiedName) bool {
	_, ok := c.relations[n]
	return ok
}

// Filter removes builtin entries from a Dependencies set, returning a new
// value (the input is not mutated).
func (c *Catalog) Filter(deps objmodel.Dependencies) objmodel.Dependencies {
	out := objmodel.NewDependencies()
	for n := range deps.Relations {
		if !c.IsBuiltinRelation(n) {
			out.AddRelation(n)
		}
	}
	for n := range deps.Functions {
		if !c.IsBuiltinFunction(n) {
			out.AddFunction(n)
		}
	}
	for n := range deps.Types {
		if !c.IsBuiltinType(n) {
			out.AddType(n)
		}
	}
	return out
}
