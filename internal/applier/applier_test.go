package applier

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ZakSingh/pgmg/internal/depgraph"
	"github.com/ZakSingh/pgmg/internal/objmodel"
)

func ref(kind objmodel.ObjectKind, name string) objmodel.ObjectRef {
	return objmodel.ObjectRef{Kind: kind, Name: objmodel.QualifiedName{Name: name}}
}

func TestDropStatementTable(t *testing.T) {
	stmt, ok := dropStatement(ref(objmodel.KindTable, "users"), nil)
	assert.True(t, ok)
	assert.Equal(t, `DROP TABLE IF EXISTS "users"`, stmt)
}

func TestDropStatementView(t *testing.T) {
	stmt, ok := dropStatement(ref(objmodel.KindView, "active_users"), nil)
	assert.True(t, ok)
	assert.Equal(t, `DROP VIEW IF EXISTS "active_users"`, stmt)
}

func TestOverloadableCoversSharedNameKinds(t *testing.T) {
	assert.True(t, overloadable(objmodel.KindFunction))
	assert.True(t, overloadable(objmodel.KindProcedure))
	assert.True(t, overloadable(objmodel.KindAggregate))
	assert.True(t, overloadable(objmodel.KindOperator))
	assert.False(t, overloadable(objmodel.KindTable))
}

func TestDropStatementCronJobUsesUnschedule(t *testing.T) {
	stmt, ok := dropStatement(ref(objmodel.KindCronJob, "nightly-vacuum"), nil)
	assert.True(t, ok)
	assert.Equal(t, `SELECT cron.unschedule('nightly-vacuum')`, stmt)
}

func TestDropStatementTriggerNeedsObject(t *testing.T) {
	_, ok := dropStatement(ref(objmodel.KindTrigger, "set_updated_at"), nil)
	assert.False(t, ok, "a trigger can't be dropped without its parent table")
}

func TestDropStatementTriggerUsesParentTable(t *testing.T) {
	obj := &objmodel.ManagedObject{
		Kind:         objmodel.KindTrigger,
		Name:         objmodel.QualifiedName{Name: "set_updated_at"},
		Dependencies: objmodel.NewDependencies(),
	}
	obj.Dependencies.AddRelation(objmodel.QualifiedName{Name: "users"})

	stmt, ok := dropStatement(ref(objmodel.KindTrigger, "set_updated_at"), obj)
	assert.True(t, ok)
	assert.Equal(t, `DROP TRIGGER IF EXISTS "set_updated_at" ON "users"`, stmt)
}

func TestDropStatementCommentUsesKeywordFromRecordedDDL(t *testing.T) {
	obj := &objmodel.ManagedObject{
		Kind:         objmodel.KindComment,
		Name:         objmodel.QualifiedName{Name: "users"},
		DDL:          `COMMENT ON TABLE users IS 'application users'`,
		Dependencies: objmodel.NewDependencies(),
	}
	stmt, ok := dropStatement(ref(objmodel.KindComment, "users"), obj)
	assert.True(t, ok)
	assert.Equal(t, `COMMENT ON TABLE "users" IS NULL`, stmt)
}

func TestDropStatementColumnCommentIsUnsupported(t *testing.T) {
	obj := &objmodel.ManagedObject{
		Kind:         objmodel.KindComment,
		Name:         objmodel.QualifiedName{Name: "users"},
		DDL:          `COMMENT ON COLUMN users.id IS 'primary key'`,
		Dependencies: objmodel.NewDependencies(),
	}
	_, ok := dropStatement(ref(objmodel.KindComment, "users"), obj)
	assert.False(t, ok)
}

func TestSplitCommentsSeparatesCommentKind(t *testing.T) {
	commentRef := ref(objmodel.KindComment, "users")
	tableRef := ref(objmodel.KindTable, "users")
	set := map[objmodel.ObjectRef]*objmodel.ManagedObject{
		commentRef: {Kind: objmodel.KindComment},
		tableRef:   {Kind: objmodel.KindTable},
	}
	comments, others := splitComments(set)
	assert.Contains(t, comments, commentRef)
	assert.Contains(t, others, tableRef)
	assert.NotContains(t, comments, tableRef)
}

func TestOrderedRefsFiltersAndPreservesOrder(t *testing.T) {
	a, b, c := ref(objmodel.KindTable, "a"), ref(objmodel.KindTable, "b"), ref(objmodel.KindTable, "c")
	order := []objmodel.ObjectRef{a, b, c}
	set := map[objmodel.ObjectRef]*objmodel.ManagedObject{c: {}, a: {}}
	assert.Equal(t, []objmodel.ObjectRef{a, c}, orderedRefs(order, set))
}

func TestSoftDependentNamesCollectsCallersOfChangedFunction(t *testing.T) {
	callee := &objmodel.ManagedObject{Kind: objmodel.KindFunction, Name: objmodel.QualifiedName{Name: "callee"}}
	caller := &objmodel.ManagedObject{Kind: objmodel.KindFunction, Name: objmodel.QualifiedName{Name: "caller"}}

	g := depgraph.New()
	g.AddNode(callee)
	g.AddNode(caller)
	g.AddEdge(callee.Ref(), caller.Ref(), objmodel.EdgeSoft)

	result := &Result{Updated: []objmodel.ObjectRef{callee.Ref()}}
	assert.Equal(t, []string{"caller"}, softDependentNames(g, result))
}

func TestSoftDependentNamesDedupesAcrossChangedObjects(t *testing.T) {
	a := &objmodel.ManagedObject{Kind: objmodel.KindFunction, Name: objmodel.QualifiedName{Name: "a"}}
	b := &objmodel.ManagedObject{Kind: objmodel.KindFunction, Name: objmodel.QualifiedName{Name: "b"}}
	caller := &objmodel.ManagedObject{Kind: objmodel.KindFunction, Name: objmodel.QualifiedName{Name: "caller"}}

	g := depgraph.New()
	g.AddNode(a)
	g.AddNode(b)
	g.AddNode(caller)
	g.AddEdge(a.Ref(), caller.Ref(), objmodel.EdgeSoft)
	g.AddEdge(b.Ref(), caller.Ref(), objmodel.EdgeSoft)

	result := &Result{Created: []objmodel.ObjectRef{a.Ref(), b.Ref()}}
	assert.Equal(t, []string{"caller"}, softDependentNames(g, result))
}
