package planner

import (
	"github.com/ZakSingh/pgmg/internal/depgraph"
	"github.com/ZakSingh/pgmg/internal/objmodel"
)

// ChangeAction classifies how an object's desired state compares to what
// the state store recorded from the previous apply.
type ChangeAction string

const (
	ActionCreate ChangeAction = "create"
	ActionUpdate ChangeAction = "update"
	ActionDelete ChangeAction = "delete"
)

// Change is one object pgmg must create, recreate, or drop to reconcile
// desired state with recorded state.
type Change struct {
	Action ChangeAction
	Ref    objmodel.ObjectRef
	// Object is the desired object for Create/Update, or the last-recorded
	// object for Delete (its DDL and dependency set are what the applier
	// needs to know how to drop it, e.g. a trigger's parent table).
	Object *objmodel.ManagedObject
}

// diffObjects compares the desired object set against what the state store
// recorded, returning one Change per object whose ddl_hash differs (or is
// new, or has disappeared). Untouched objects produce no Change at all —
// idempotent re-runs over an unmodified tree plan zero changes.
func diffObjects(desired []*objmodel.ManagedObject, recorded map[objmodel.ObjectRef]*objmodel.ManagedObject) []Change {
	seen := map[objmodel.ObjectRef]bool{}
	var changes []Change

	for _, obj := range desired {
		ref := obj.Ref()
		seen[ref] = true
		prior, existed := recorded[ref]
		switch {
		case !existed:
			changes = append(changes, Change{Action: ActionCreate, Ref: ref, Object: obj})
		case prior.DDLHash != obj.DDLHash:
			changes = append(changes, Change{Action: ActionUpdate, Ref: ref, Object: obj})
		}
	}

	for ref, prior := range recorded {
		if !seen[ref] {
			changes = append(changes, Change{Action: ActionDelete, Ref: ref, Object: prior})
		}
	}
	return changes
}

// edgeKindFor decides whether a function-reference edge is structural (Hard)
// or a runtime name lookup (Soft), based on the kind of the dependent, not
// the dependency: a function or procedure calling another function resolves
// it by name at call time, so the callee's body can change without forcing
// the caller to be recreated. Every other kind of object referencing a
// function — a view's column expression, a trigger's EXECUTE FUNCTION, a
// column default — bakes that function into its own definition at creation
// time, so it must be recreated when the function is.
func edgeKindFor(dependentKind objmodel.ObjectKind) objmodel.EdgeKind {
	if dependentKind.IsFunctionLike() {
		return objmodel.EdgeSoft
	}
	return objmodel.EdgeHard
}

// buildGraph registers every desired object as a node and adds an edge
// from each of its dependencies to itself, so TopoCreationOrder places
// prerequisites first. Relation and type dependencies are always Hard:
// a view's column list and a composite value's row type are fixed at
// creation time from the tables, views, and types they read.
func buildGraph(desired []*objmodel.ManagedObject) *depgraph.Graph {
	g := depgraph.New()
	for _, obj := range desired {
		g.AddNode(obj)
	}

	byRelation := indexByName(desired, objmodel.KindTable, objmodel.KindView, objmodel.KindMaterializedView)
	byFunction := indexByName(desired, objmodel.KindFunction, objmodel.KindProcedure)
	// Tables, views, and materialized views all carry an implicit composite
	// row type in Postgres, so a "type" reference to one of them is just as
	// real a dependency as a reference to an explicit CREATE TYPE/DOMAIN.
	byType := indexByName(desired, objmodel.KindType, objmodel.KindDomain, objmodel.KindView, objmodel.KindMaterializedView, objmodel.KindTable)

	for _, obj := range desired {
		to := obj.Ref()
		for _, n := range obj.Dependencies.SortedRelations() {
			if from, ok := byRelation[n]; ok {
				g.AddEdge(from, to, objmodel.EdgeHard)
			}
		}
		for _, n := range obj.Dependencies.SortedFunctions() {
			if from, ok := byFunction[n]; ok {
				g.AddEdge(from, to, edgeKindFor(obj.Kind))
			}
		}
		for _, n := range obj.Dependencies.SortedTypes() {
			if from, ok := byType[n]; ok {
				g.AddEdge(from, to, objmodel.EdgeHard)
			}
		}
	}
	return g
}

func indexByName(objs []*objmodel.ManagedObject, kinds ...objmodel.ObjectKind) map[objmodel.QualifiedName]objmodel.ObjectRef {
	want := map[objmodel.ObjectKind]bool{}
	for _, k := range kinds {
		want[k] = true
	}
	out := map[objmodel.QualifiedName]objmodel.ObjectRef{}
	for _, obj := range objs {
		if want[obj.Kind] {
			out[obj.Name] = obj.Ref()
		}
	}
	return out
}
