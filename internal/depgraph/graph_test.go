package depgraph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZakSingh/pgmg/internal/objmodel"
)

func obj(kind objmodel.ObjectKind, name string) *objmodel.ManagedObject {
	return &objmodel.ManagedObject{Kind: kind, Name: objmodel.QualifiedName{Name: name}}
}

func TestTopoCreationOrderRespectsEdges(t *testing.T) {
	g := New()
	table := g.AddNode(obj(objmodel.KindTable, "users"))
	view := g.AddNode(obj(objmodel.KindView, "active_users"))
	g.AddEdge(table, view, objmodel.EdgeHard)

	order, err := g.TopoCreationOrder()
	require.NoError(t, err)
	require.Len(t, order, 2)
	assert.Equal(t, table, order[0])
	assert.Equal(t, view, order[1])
}

func TestTopoDeletionOrderIsReversed(t *testing.T) {
	g := New()
	table := g.AddNode(obj(objmodel.KindTable, "users"))
	view := g.AddNode(obj(objmodel.KindView, "active_users"))
	g.AddEdge(table, view, objmodel.EdgeHard)

	order, err := g.TopoDeletionOrder()
	require.NoError(t, err)
	require.Len(t, order, 2)
	assert.Equal(t, view, order[0])
	assert.Equal(t, table, order[1])
}

func TestHasCyclesDetectsCycle(t *testing.T) {
	g := New()
	a := g.AddNode(obj(objmodel.KindFunction, "a"))
	b := g.AddNode(obj(objmodel.KindFunction, "b"))
	g.AddEdge(a, b, objmodel.EdgeSoft)
	g.AddEdge(b, a, objmodel.EdgeSoft)

	cycle, found := g.HasCycles()
	assert.True(t, found)
	assert.Len(t, cycle, 2)
}

func TestHasCyclesFalseOnDAG(t *testing.T) {
	g := New()
	a := g.AddNode(obj(objmodel.KindTable, "a"))
	b := g.AddNode(obj(objmodel.KindView, "b"))
	g.AddEdge(a, b, objmodel.EdgeHard)

	_, found := g.HasCycles()
	assert.False(t, found)
}

func TestAffectedByFollowsHardEdgesOnly(t *testing.T) {
	g := New()
	table := g.AddNode(obj(objmodel.KindTable, "t"))
	view := g.AddNode(obj(objmodel.KindView, "v"))
	fn := g.AddNode(obj(objmodel.KindFunction, "f"))
	caller := g.AddNode(obj(objmodel.KindFunction, "caller"))

	g.AddEdge(table, view, objmodel.EdgeHard)
	g.AddEdge(fn, caller, objmodel.EdgeSoft)

	affected := g.AffectedBy([]objmodel.ObjectRef{table, fn})
	assert.ElementsMatch(t, []objmodel.ObjectRef{view}, affected)
}

func TestAffectedByExcludesRoots(t *testing.T) {
	g := New()
	table := g.AddNode(obj(objmodel.KindTable, "t"))
	view := g.AddNode(obj(objmodel.KindView, "v"))
	g.AddEdge(table, view, objmodel.EdgeHard)

	affected := g.AffectedBy([]objmodel.ObjectRef{table, view})
	assert.NotContains(t, affected, table)
	assert.NotContains(t, affected, view)
}

func TestDependenciesOfReturnsInboundEdges(t *testing.T) {
	g := New()
	table := g.AddNode(obj(objmodel.KindTable, "t"))
	view := g.AddNode(obj(objmodel.KindView, "v"))
	g.AddEdge(table, view, objmodel.EdgeHard)

	deps := g.DependenciesOf(view)
	require.Len(t, deps, 1)
	assert.Equal(t, table, deps[0].From)
	assert.Equal(t, view, deps[0].To)
	assert.Equal(t, objmodel.EdgeHard, deps[0].Kind)
}

func TestAddEdgeToUnregisteredRefIsDropped(t *testing.T) {
	g := New()
	table := g.AddNode(obj(objmodel.KindTable, "t"))
	ghost := objmodel.ObjectRef{Kind: objmodel.KindView, Name: objmodel.QualifiedName{Name: "ghost"}}

	g.AddEdge(table, ghost, objmodel.EdgeHard)

	order, err := g.TopoCreationOrder()
	require.NoError(t, err)
	assert.Len(t, order, 1)
}

func TestSignatureStableAcrossInsertionOrder(t *testing.T) {
	g1 := New()
	a := g1.AddNode(obj(objmodel.KindTable, "a"))
	b := g1.AddNode(obj(objmodel.KindTable, "b"))
	g1.AddEdge(a, b, objmodel.EdgeHard)

	g2 := New()
	b2 := g2.AddNode(obj(objmodel.KindTable, "b"))
	a2 := g2.AddNode(obj(objmodel.KindTable, "a"))
	g2.AddEdge(a2, b2, objmodel.EdgeHard)

	sig1, err := g1.Signature()
	require.NoError(t, err)
	sig2, err := g2.Signature()
	require.NoError(t, err)
	assert.Equal(t, sig1, sig2)
}
