// Package depgraph builds the object dependency graph the planner uses to
// order DDL and to find which objects must be recreated when a hard
// dependency changes shape. Nodes are stored in a flat arena and referenced
// by index rather than by pointer, so the graph carries no cycles at the
// Go value level even when the domain graph itself is cyclic (a state the
// planner must detect and reject, not something the data structure should
// make unrepresentable to detect).
package depgraph

import (
	"fmt"
	"sort"
	"strings"

	"github.com/ZakSingh/pgmg/internal/objmodel"
)

// nodeID is an index into Graph.nodes. The zero value is a real node's
// index (the first AddNode call gets 0), so a missing map entry is
// indistinguishable from it; lookups therefore go through the ids map with
// its ok result rather than ever trusting a bare zero value.
type nodeID int

type node struct {
	ref  objmodel.ObjectRef
	obj  *objmodel.ManagedObject
	out  []edge // edges from this node
	in   []edge // edges into this node
	seq  int    // insertion order, for deterministic tie-breaking
}

type edge struct {
	to   nodeID
	kind objmodel.EdgeKind
}

// Graph is the dependency graph over a planned set of managed objects.
type Graph struct {
	nodes []node
	ids   map[objmodel.ObjectRef]nodeID
}

// New returns an empty Graph.
func New() *Graph {
	return &Graph{ids: map[objmodel.ObjectRef]nodeID{}}
}

// AddNode registers obj as a vertex, returning its ref. Calling AddNode
// twice for the same ref is a no-op (the first registration wins) so
// callers can add an object and its declared dependents without tracking
// which ones have already been inserted.
func (g *Graph) AddNode(obj *objmodel.ManagedObject) objmodel.ObjectRef {
	ref := obj.Ref()
	if _, ok := g.ids[ref]; ok {
		return ref
	}
	id := nodeID(len(g.nodes))
	g.nodes = append(g.nodes, node{ref: ref, obj: obj, seq: int(id)})
	g.ids[ref] = id
	return ref
}

// AddEdge records that from must exist before to, with the given
// recreation semantics. Both refs must already have been added with
// AddNode; an edge to an object pgmg isn't managing (e.g. a reference to a
// table that lives outside any tracked source) is silently dropped, since
// there is nothing to order it against.
func (g *Graph) AddEdge(from, to objmodel.ObjectRef, kind objmodel.EdgeKind) {
	fromID, ok := g.ids[from]
	if !ok {
		return
	}
	toID, ok := g.ids[to]
	if !ok {
		return
	}
	g.nodes[fromID].out = append(g.nodes[fromID].out, edge{to: toID, kind: kind})
	g.nodes[toID].in = append(g.nodes[toID].in, edge{to: fromID, kind: kind})
}

// Object returns the ManagedObject registered for ref, if any.
func (g *Graph) Object(ref objmodel.ObjectRef) (*objmodel.ManagedObject, bool) {
	id, ok := g.ids[ref]
	if !ok {
		return nil, false
	}
	return g.nodes[id].obj, true
}

// Refs returns every registered object reference in insertion order.
func (g *Graph) Refs() []objmodel.ObjectRef {
	out := make([]objmodel.ObjectRef, len(g.nodes))
	for i, n := range g.nodes {
		out[i] = n.ref
	}
	return out
}

// HasCycles reports whether the graph contains a dependency cycle, via
// three-color DFS. Cycle detection runs over every edge kind: a cycle
// through even a single soft edge still means no order exists in which
// every prerequisite is satisfied before its dependent, which pgmg treats
// as a SchemaConflict rather than silently picking an arbitrary order.
func (g *Graph) HasCycles() ([]objmodel.ObjectRef, bool) {
	const (
		white = iota
		gray
		black
	)
	color := make([]int, len(g.nodes))
	var path []nodeID

	var visit func(nodeID) []objmodel.ObjectRef
	visit = func(id nodeID) []objmodel.ObjectRef {
		color[id] = gray
		path = append(path, id)
		for _, e := range sortedOut(g.nodes[id]) {
			switch color[e.to] {
			case gray:
				cycle := []objmodel.ObjectRef{}
				start := indexOf(path, e.to)
				for _, p := range path[start:] {
					cycle = append(cycle, g.nodes[p].ref)
				}
				return cycle
			case white:
				if found := visit(e.to); found != nil {
					return found
				}
			}
		}
		path = path[:len(path)-1]
		color[id] = black
		return nil
	}

	for id := range g.nodes {
		if color[id] == white {
			if cycle := visit(nodeID(id)); cycle != nil {
				return cycle, true
			}
		}
	}
	return nil, false
}

func indexOf(path []nodeID, id nodeID) int {
	for i, p := range path {
		if p == id {
			return i
		}
	}
	return 0
}

func sortedOut(n node) []edge {
	out := make([]edge, len(n.out))
	copy(out, n.out)
	sort.Slice(out, func(i, j int) bool { return out[i].to < out[j].to })
	return out
}

// TopoCreationOrder returns objects in an order where every prerequisite
// (on either a hard or soft edge) appears before its dependent. Ties break
// on insertion order, so two independent runs over the same input produce
// byte-identical plans.
func (g *Graph) TopoCreationOrder() ([]objmodel.ObjectRef, error) {
	indegree := make([]int, len(g.nodes))
	for _, n := range g.nodes {
		for _, e := range n.out {
			indegree[e.to]++
		}
	}

	var ready []nodeID
	for id := range g.nodes {
		if indegree[id] == 0 {
			ready = append(ready, nodeID(id))
		}
	}
	sort.Slice(ready, func(i, j int) bool { return ready[i] < ready[j] })

	var order []objmodel.ObjectRef
	for len(ready) > 0 {
		id := ready[0]
		ready = ready[1:]
		order = append(order, g.nodes[id].ref)

		var unlocked []nodeID
		for _, e := range sortedOut(g.nodes[id]) {
			indegree[e.to]--
			if indegree[e.to] == 0 {
				unlocked = append(unlocked, e.to)
			}
		}
		ready = append(ready, unlocked...)
		sort.Slice(ready, func(i, j int) bool { return ready[i] < ready[j] })
	}

	if len(order) != len(g.nodes) {
		cycle, _ := g.HasCycles()
		return nil, fmt.Errorf("dependency graph has a cycle: %s", formatCycle(cycle))
	}
	return order, nil
}

// TopoDeletionOrder returns objects in reverse creation order: a dependent
// must be dropped before the thing it depends on.
func (g *Graph) TopoDeletionOrder() ([]objmodel.ObjectRef, error) {
	order, err := g.TopoCreationOrder()
	if err != nil {
		return nil, err
	}
	reversed := make([]objmodel.ObjectRef, len(order))
	for i, r := range order {
		reversed[len(order)-1-i] = r
	}
	return reversed, nil
}

// HardDependents returns the set of objects that hold a hard (structural)
// edge pointing at ref, directly — objects that must be dropped and
// recreated if ref itself is dropped and recreated.
func (g *Graph) HardDependents(ref objmodel.ObjectRef) []objmodel.ObjectRef {
	id, ok := g.ids[ref]
	if !ok {
		return nil
	}
	var out []objmodel.ObjectRef
	for _, e := range g.nodes[id].out {
		if e.kind == objmodel.EdgeHard {
			out = append(out, g.nodes[e.to].ref)
		}
	}
	sort.Slice(out, func(i, j int) bool { return g.nodes[g.ids[out[i]]].seq < g.nodes[g.ids[out[j]]].seq })
	return out
}

// SoftDependents returns the set of objects that hold a soft (name-lookup)
// edge pointing at ref, directly — callers the check hook should examine
// alongside ref itself, since they reference it by name rather than by a
// structural dependency that would already force their own recreation.
func (g *Graph) SoftDependents(ref objmodel.ObjectRef) []objmodel.ObjectRef {
	id, ok := g.ids[ref]
	if !ok {
		return nil
	}
	var out []objmodel.ObjectRef
	for _, e := range g.nodes[id].out {
		if e.kind == objmodel.EdgeSoft {
			out = append(out, g.nodes[e.to].ref)
		}
	}
	sort.Slice(out, func(i, j int) bool { return g.nodes[g.ids[out[i]]].seq < g.nodes[g.ids[out[j]]].seq })
	return out
}

// AffectedBy returns the transitive closure of objects reachable by
// following hard-dependent edges outward from roots, excluding the roots
// themselves — every object that must be recreated because something in
// roots is being recreated.
func (g *Graph) AffectedBy(roots []objmodel.ObjectRef) []objmodel.ObjectRef {
	visited := map[nodeID]bool{}
	rootSet := map[nodeID]bool{}
	var queue []nodeID
	for _, r := range roots {
		if id, ok := g.ids[r]; ok {
			rootSet[id] = true
			queue = append(queue, id)
		}
	}

	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		for _, e := range g.nodes[id].out {
			if e.kind != objmodel.EdgeHard {
				continue
			}
			if !visited[e.to] {
				visited[e.to] = true
				queue = append(queue, e.to)
			}
		}
	}

	var out []objmodel.ObjectRef
	for id := range visited {
		if !rootSet[id] {
			out = append(out, g.nodes[id].ref)
		}
	}
	sort.Slice(out, func(i, j int) bool { return g.nodes[g.ids[out[i]]].seq < g.nodes[g.ids[out[j]]].seq })
	return out
}

// DependenciesOf returns the edges pointing into ref — its prerequisites —
// as full Edge values, for recording into the state store's dependency
// table.
func (g *Graph) DependenciesOf(ref objmodel.ObjectRef) []objmodel.Edge {
	id, ok := g.ids[ref]
	if !ok {
		return nil
	}
	out := make([]objmodel.Edge, 0, len(g.nodes[id].in))
	for _, e := range g.nodes[id].in {
		out = append(out, objmodel.Edge{From: g.nodes[e.to].ref, To: ref, Kind: e.kind})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].From.String() < out[j].From.String() })
	return out
}

func formatCycle(cycle []objmodel.ObjectRef) string {
	parts := make([]string, len(cycle))
	for i, r := range cycle {
		parts[i] = r.String()
	}
	return strings.Join(parts, " -> ")
}
