package planner

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZakSingh/pgmg/internal/objmodel"
)

func managed(kind objmodel.ObjectKind, name, hash string) *objmodel.ManagedObject {
	return &objmodel.ManagedObject{
		Kind: kind, Name: objmodel.QualifiedName{Name: name}, DDLHash: hash,
		Dependencies: objmodel.NewDependencies(),
	}
}

func TestDiffObjectsCreate(t *testing.T) {
	desired := []*objmodel.ManagedObject{managed(objmodel.KindTable, "t", "h1")}
	changes := diffObjects(desired, map[objmodel.ObjectRef]*objmodel.ManagedObject{})
	require.Len(t, changes, 1)
	assert.Equal(t, ActionCreate, changes[0].Action)
}

func TestDiffObjectsUnchangedProducesNoChange(t *testing.T) {
	obj := managed(objmodel.KindTable, "t", "h1")
	desired := []*objmodel.ManagedObject{obj}
	recorded := map[objmodel.ObjectRef]*objmodel.ManagedObject{obj.Ref(): obj}
	changes := diffObjects(desired, recorded)
	assert.Empty(t, changes)
}

func TestDiffObjectsHashChangedProducesUpdate(t *testing.T) {
	ref := objmodel.ObjectRef{Kind: objmodel.KindTable, Name: objmodel.QualifiedName{Name: "t"}}
	desired := []*objmodel.ManagedObject{managed(objmodel.KindTable, "t", "h2")}
	recorded := map[objmodel.ObjectRef]*objmodel.ManagedObject{ref: managed(objmodel.KindTable, "t", "h1")}
	changes := diffObjects(desired, recorded)
	require.Len(t, changes, 1)
	assert.Equal(t, ActionUpdate, changes[0].Action)
}

func TestDiffObjectsMissingFromDesiredProducesDelete(t *testing.T) {
	ref := objmodel.ObjectRef{Kind: objmodel.KindTable, Name: objmodel.QualifiedName{Name: "gone"}}
	prior := managed(objmodel.KindTable, "gone", "h1")
	recorded := map[objmodel.ObjectRef]*objmodel.ManagedObject{ref: prior}
	changes := diffObjects(nil, recorded)
	require.Len(t, changes, 1)
	assert.Equal(t, ActionDelete, changes[0].Action)
	assert.Same(t, prior, changes[0].Object)
}

func TestEdgeKindForFunctionCallingFunctionIsSoft(t *testing.T) {
	assert.Equal(t, objmodel.EdgeSoft, edgeKindFor(objmodel.KindFunction))
	assert.Equal(t, objmodel.EdgeSoft, edgeKindFor(objmodel.KindProcedure))
}

func TestEdgeKindForNonFunctionDependentIsHard(t *testing.T) {
	assert.Equal(t, objmodel.EdgeHard, edgeKindFor(objmodel.KindView))
	assert.Equal(t, objmodel.EdgeHard, edgeKindFor(objmodel.KindTrigger))
	assert.Equal(t, objmodel.EdgeHard, edgeKindFor(objmodel.KindTable))
}

func TestBuildGraphOrdersViewAfterTable(t *testing.T) {
	table := managed(objmodel.KindTable, "users", "h1")
	view := managed(objmodel.KindView, "active_users", "h2")
	view.Dependencies.AddRelation(objmodel.QualifiedName{Name: "users"})

	g := buildGraph([]*objmodel.ManagedObject{table, view})
	order, err := g.TopoCreationOrder()
	require.NoError(t, err)
	require.Len(t, order, 2)
	assert.Equal(t, table.Ref(), order[0])
	assert.Equal(t, view.Ref(), order[1])
}

func TestBuildGraphViewRowTypeIsHardDependency(t *testing.T) {
	view := managed(objmodel.KindView, "v", "h1")
	consumer := managed(objmodel.KindFunction, "consumes_v_row", "h2")
	consumer.Dependencies.AddType(objmodel.QualifiedName{Name: "v"})

	g := buildGraph([]*objmodel.ManagedObject{view, consumer})
	affected := g.AffectedBy([]objmodel.ObjectRef{view.Ref()})
	assert.Contains(t, affected, consumer.Ref())
}
