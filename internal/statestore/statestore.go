// Package statestore persists the last-applied shape of every managed
// object in a dedicated "pgmg" schema, so the planner can diff desired
// state against what was actually applied rather than re-deriving it from
// fallible introspection of the live catalog.
package statestore

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ZakSingh/pgmg/internal/objmodel"
	"github.com/ZakSingh/pgmg/internal/pgmgerr"
)

// Store reads and writes the pgmg schema's bookkeeping tables.
type Store struct {
	db *sql.DB
}

// New wraps an existing *sql.DB. The caller owns the connection's
// lifecycle; Store never closes it.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Migrate creates the pgmg schema and its tables if they don't already
// exist. It is safe to call on every startup.
func (s *Store) Migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE SCHEMA IF NOT EXISTS pgmg`,
		`CREATE TABLE IF NOT EXISTS pgmg.applied_migrations (
			name         text PRIMARY KEY,
			applied_at   timestamptz NOT NULL DEFAULT now(),
			checksum     text NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS pgmg.managed_objects (
			kind         text NOT NULL,
			schema_name  text NOT NULL,
			object_name  text NOT NULL,
			ddl          text NOT NULL,
			ddl_hash     text NOT NULL,
			source_file  text NOT NULL,
			updated_at   timestamptz NOT NULL DEFAULT now(),
			PRIMARY KEY (kind, schema_name, object_name)
		)`,
		`CREATE TABLE IF NOT EXISTS pgmg.dependencies (
			from_kind    text NOT NULL,
			from_schema  text NOT NULL,
			from_name    text NOT NULL,
			to_kind      text NOT NULL,
			to_schema    text NOT NULL,
			to_name      text NOT NULL,
			edge_kind    text NOT NULL,
			PRIMARY KEY (from_kind, from_schema, from_name, to_kind, to_schema, to_name)
		)`,
	}
	for _, q := range stmts {
		if _, err := s.db.ExecContext(ctx, q); err != nil {
			return &pgmgerr.StateStoreError{Op: "migrate", Err: err}
		}
	}
	return nil
}

// AppliedMigrations returns the set of migration names already recorded,
// keyed by name, for the planner to subtract from the on-disk migration
// list.
func (s *Store) AppliedMigrations(ctx context.Context) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name, checksum FROM pgmg.applied_migrations`)
	if err != nil {
		return nil, &pgmgerr.StateStoreError{Op: "read applied_migrations", Err: err}
	}
	defer rows.Close()

	out := map[string]string{}
	for rows.Next() {
		var name, checksum string
		if err := rows.Scan(&name, &checksum); err != nil {
			return nil, &pgmgerr.StateStoreError{Op: "scan applied_migrations", Err: err}
		}
		out[name] = checksum
	}
	return out, rows.Err()
}

// RecordMigration marks a migration as applied within tx.
func (s *Store) RecordMigration(ctx context.Context, tx *sql.Tx, name, checksum string) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO pgmg.applied_migrations (name, checksum) VALUES ($1, $2)
		ON CONFLICT (name) DO UPDATE SET checksum = EXCLUDED.checksum, applied_at = now()
	`, name, checksum)
	if err != nil {
		return &pgmgerr.StateStoreError{Op: "record migration " + name, Err: err}
	}
	return nil
}

// ManagedObjects returns every object recorded from the previous apply,
// keyed by ObjectRef, for the planner's diff pass.
func (s *Store) ManagedObjects(ctx context.Context) (map[objmodel.ObjectRef]*objmodel.ManagedObject, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT kind, schema_name, object_name, ddl, ddl_hash, source_file
		FROM pgmg.managed_objects
	`)
	if err != nil {
		return nil, &pgmgerr.StateStoreError{Op: "read managed_objects", Err: err}
	}
	defer rows.Close()

	out := map[objmodel.ObjectRef]*objmodel.ManagedObject{}
	for rows.Next() {
		var kind, schema, name, ddl, hash, sourceFile string
		if err := rows.Scan(&kind, &schema, &name, &ddl, &hash, &sourceFile); err != nil {
			return nil, &pgmgerr.StateStoreError{Op: "scan managed_objects", Err: err}
		}
		obj := &objmodel.ManagedObject{
			Kind:         objmodel.ObjectKind(kind),
			Name:         objmodel.QualifiedName{Schema: schema, Name: name},
			DDL:          ddl,
			DDLHash:      hash,
			SourceFile:   sourceFile,
			Dependencies: objmodel.NewDependencies(),
		}
		out[obj.Ref()] = obj
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	depRows, err := s.db.QueryContext(ctx, `
		SELECT from_kind, from_schema, from_name, to_kind, to_schema, to_name
		FROM pgmg.dependencies
	`)
	if err != nil {
		return nil, &pgmgerr.StateStoreError{Op: "read dependencies", Err: err}
	}
	defer depRows.Close()
	for depRows.Next() {
		var fromKind, fromSchema, fromName, toKind, toSchema, toName string
		if err := depRows.Scan(&fromKind, &fromSchema, &fromName, &toKind, &toSchema, &toName); err != nil {
			return nil, &pgmgerr.StateStoreError{Op: "scan dependencies", Err: err}
		}
		to := objmodel.ObjectRef{Kind: objmodel.ObjectKind(toKind), Name: objmodel.QualifiedName{Schema: toSchema, Name: toName}}
		obj, ok := out[to]
		if !ok {
			continue
		}
		from := objmodel.QualifiedName{Schema: fromSchema, Name: fromName}
		switch objmodel.ObjectKind(fromKind) {
		case objmodel.KindTable, objmodel.KindView, objmodel.KindMaterializedView:
			obj.Dependencies.AddRelation(from)
		case objmodel.KindFunction, objmodel.KindProcedure:
			obj.Dependencies.AddFunction(from)
		case objmodel.KindType, objmodel.KindDomain:
			obj.Dependencies.AddType(from)
		}
	}
	return out, depRows.Err()
}

// Upsert records obj as the current recorded shape for its ref within tx.
func (s *Store) Upsert(ctx context.Context, tx *sql.Tx, obj *objmodel.ManagedObject) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO pgmg.managed_objects (kind, schema_name, object_name, ddl, ddl_hash, source_file, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, now())
		ON CONFLICT (kind, schema_name, object_name) DO UPDATE SET
			ddl = EXCLUDED.ddl,
			ddl_hash = EXCLUDED.ddl_hash,
			source_file = EXCLUDED.source_file,
			updated_at = now()
	`, string(obj.Kind), obj.Name.Schema, obj.Name.Name, obj.DDL, obj.DDLHash, obj.SourceFile)
	if err != nil {
		return &pgmgerr.StateStoreError{Op: fmt.Sprintf("upsert %s", obj.Ref()), Err: err}
	}
	return nil
}

// Delete removes the recorded shape for ref within tx.
func (s *Store) Delete(ctx context.Context, tx *sql.Tx, ref objmodel.ObjectRef) error {
	_, err := tx.ExecContext(ctx, `
		DELETE FROM pgmg.managed_objects WHERE kind = $1 AND schema_name = $2 AND object_name = $3
	`, string(ref.Kind), ref.Name.Schema, ref.Name.Name)
	if err != nil {
		return &pgmgerr.StateStoreError{Op: fmt.Sprintf("delete %s", ref), Err: err}
	}
	return nil
}

// ReplaceDependencies overwrites the recorded edge set for ref within tx —
// the rows whose to_* columns name ref, i.e. its prerequisites, which is
// what edges holds — called once per object on every successful
// create/recreate.
func (s *Store) ReplaceDependencies(ctx context.Context, tx *sql.Tx, ref objmodel.ObjectRef, edges []objmodel.Edge) error {
	_, err := tx.ExecContext(ctx, `
		DELETE FROM pgmg.dependencies WHERE to_kind = $1 AND to_schema = $2 AND to_name = $3
	`, string(ref.Kind), ref.Name.Schema, ref.Name.Name)
	if err != nil {
		return &pgmgerr.StateStoreError{Op: "clear dependencies for " + ref.String(), Err: err}
	}
	for _, e := range edges {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO pgmg.dependencies (from_kind, from_schema, from_name, to_kind, to_schema, to_name, edge_kind)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT DO NOTHING
		`, string(e.From.Kind), e.From.Name.Schema, e.From.Name.Name,
			string(e.To.Kind), e.To.Name.Schema, e.To.Name.Name, string(e.Kind))
		if err != nil {
			return &pgmgerr.StateStoreError{Op: "record dependency " + e.From.String() + "->" + e.To.String(), Err: err}
		}
	}
	return nil
}
