package analyzer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZakSingh/pgmg/internal/objmodel"
	"github.com/ZakSingh/pgmg/pkg/sqlsplit"
)

func identify(t *testing.T, sql string) *objmodel.ManagedObject {
	t.Helper()
	a := New()
	stmt := sqlsplit.Statement{SQL: sql, StartLine: 1, EndLine: 1}
	obj, err := a.Identify("test.sql", stmt)
	require.NoError(t, err)
	return obj
}

func TestIdentifyTable(t *testing.T) {
	obj := identify(t, `CREATE TABLE public.users (id int PRIMARY KEY, name text)`)
	assert.Equal(t, objmodel.KindTable, obj.Kind)
	assert.Equal(t, objmodel.QualifiedName{Schema: "public", Name: "users"}, obj.Name)
	assert.NotEmpty(t, obj.DDLHash)
}

func TestIdentifyViewCollectsRelationDependency(t *testing.T) {
	obj := identify(t, `CREATE VIEW active_users AS SELECT * FROM users WHERE id > 0`)
	assert.Equal(t, objmodel.KindView, obj.Kind)
	assert.Equal(t, objmodel.QualifiedName{Name: "active_users"}, obj.Name)
	_, ok := obj.Dependencies.Relations[objmodel.QualifiedName{Name: "users"}]
	assert.True(t, ok, "expected a dependency on the users relation")
}

func TestIdentifyMaterializedView(t *testing.T) {
	obj := identify(t, `CREATE MATERIALIZED VIEW mv AS SELECT * FROM users`)
	assert.Equal(t, objmodel.KindMaterializedView, obj.Kind)
}

func TestIdentifyFunctionCollectsCallDependency(t *testing.T) {
	obj := identify(t, `CREATE FUNCTION wrapper() RETURNS int LANGUAGE sql AS $$ SELECT inner_fn() $$`)
	assert.Equal(t, objmodel.KindFunction, obj.Kind)
	_, ok := obj.Dependencies.Functions[objmodel.QualifiedName{Name: "inner_fn"}]
	assert.True(t, ok, "expected a dependency on inner_fn")
}

func TestIdentifyProcedure(t *testing.T) {
	obj := identify(t, `CREATE PROCEDURE do_thing() LANGUAGE sql AS $$ SELECT 1 $$`)
	assert.Equal(t, objmodel.KindProcedure, obj.Kind)
}

func TestIdentifyEnumType(t *testing.T) {
	obj := identify(t, `CREATE TYPE mood AS ENUM ('happy', 'sad')`)
	assert.Equal(t, objmodel.KindType, obj.Kind)
	assert.Equal(t, objmodel.QualifiedName{Name: "mood"}, obj.Name)
}

func TestIdentifyDomain(t *testing.T) {
	obj := identify(t, `CREATE DOMAIN positive_int AS integer CHECK (VALUE > 0)`)
	assert.Equal(t, objmodel.KindDomain, obj.Kind)
}

func TestIdentifyTriggerKeepsFunctionAndRelation(t *testing.T) {
	obj := identify(t, `CREATE TRIGGER set_updated_at BEFORE UPDATE ON users FOR EACH ROW EXECUTE FUNCTION touch_updated_at()`)
	assert.Equal(t, objmodel.KindTrigger, obj.Kind)
	_, hasRel := obj.Dependencies.Relations[objmodel.QualifiedName{Name: "users"}]
	_, hasFn := obj.Dependencies.Functions[objmodel.QualifiedName{Name: "touch_updated_at"}]
	assert.True(t, hasRel)
	assert.True(t, hasFn)
}

func TestIdentifyComment(t *testing.T) {
	obj := identify(t, `COMMENT ON TABLE users IS 'application users'`)
	assert.Equal(t, objmodel.KindComment, obj.Kind)
	assert.Equal(t, objmodel.QualifiedName{Name: "users"}, obj.Name)
}

func TestIdentifyUnrecognizedStatementErrors(t *testing.T) {
	a := New()
	_, err := a.Identify("test.sql", sqlsplit.Statement{SQL: "GRANT SELECT ON users TO reader", StartLine: 1})
	assert.Error(t, err)
}

func TestSelfReferenceIsFiltered(t *testing.T) {
	obj := identify(t, `CREATE VIEW self_ref AS SELECT 1`)
	_, ok := obj.Dependencies.Relations[objmodel.QualifiedName{Name: "self_ref"}]
	assert.False(t, ok)
}

func TestDDLHashStableAcrossLineCommentDifferences(t *testing.T) {
	a := New()
	s1 := sqlsplit.Statement{SQL: "CREATE TABLE t (id int)", StartLine: 1}
	s2 := sqlsplit.Statement{SQL: "CREATE TABLE t (id int) -- trailing comment", StartLine: 1}
	o1, err := a.Identify("a.sql", s1)
	require.NoError(t, err)
	o2, err := a.Identify("b.sql", s2)
	require.NoError(t, err)
	assert.Equal(t, o1.DDLHash, o2.DDLHash)
}
