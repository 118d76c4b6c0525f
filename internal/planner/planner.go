// Package planner computes a PlanResult: the pending migrations, the set
// of object changes needed to reconcile desired state with what was last
// applied, and the dependency graph those changes must be ordered by. It
// never opens a transaction or executes DDL — that's the applier's job —
// so Plan itself only reads from its connection and never mutates
// anything.
package planner

import (
	"context"
	"fmt"

	"github.com/google/go-cmp/cmp"

	"github.com/ZakSingh/pgmg/internal/analyzer"
	"github.com/ZakSingh/pgmg/internal/catalog"
	"github.com/ZakSingh/pgmg/internal/depgraph"
	"github.com/ZakSingh/pgmg/internal/objmodel"
	"github.com/ZakSingh/pgmg/internal/pgmgerr"
	"github.com/ZakSingh/pgmg/internal/statestore"
)

// PlanResult is the full output of a planning pass.
type PlanResult struct {
	NewMigrations []Migration
	Changes       []Change
	Graph         *depgraph.Graph
	// Idempotent is true when Changes is empty and no migrations are
	// pending: applying this plan would do nothing.
	Idempotent bool
}

// Planner computes plans against a fixed catalog snapshot and state store.
type Planner struct {
	catalog *catalog.Catalog
	store   *statestore.Store
	az      *analyzer.Analyzer
}

// New builds a Planner. cat may be catalog.Empty() in tests that have no
// live database to snapshot builtins from.
func New(cat *catalog.Catalog, store *statestore.Store) *Planner {
	return &Planner{catalog: cat, store: store, az: analyzer.New()}
}

// Plan scans migrationsDir and codeDir, diffs the result against recorded
// state, and returns the full reconciliation plan.
func (p *Planner) Plan(ctx context.Context, migrationsDir, codeDir string) (*PlanResult, error) {
	migrations, err := scanMigrations(ctx, migrationsDir, p.store)
	if err != nil {
		return nil, err
	}

	desired, err := scanCodeDir(codeDir, p.az)
	if err != nil {
		return nil, err
	}
	if err := checkDuplicates(desired); err != nil {
		return nil, err
	}
	for _, obj := range desired {
		obj.Dependencies = p.catalog.Filter(obj.Dependencies)
	}

	recorded, err := p.store.ManagedObjects(ctx)
	if err != nil {
		return nil, err
	}

	changes := diffObjects(desired, recorded)
	graph := buildGraph(desired)

	if cycle, ok := graph.HasCycles(); ok {
		return nil, &pgmgerr.SchemaConflict{Reason: fmt.Sprintf("dependency cycle: %v", cycle)}
	}

	changes = augmentWithHardDependents(changes, graph, desired)

	return &PlanResult{
		NewMigrations: migrations,
		Changes:       changes,
		Graph:         graph,
		Idempotent:    len(migrations) == 0 && cmp.Equal(changes, []Change(nil)),
	}, nil
}

// checkDuplicates rejects a desired set that declares the same object ref
// twice, which would otherwise silently let the second declaration clobber
// the first in the diff and graph stages, and rejects a function and a
// procedure sharing one qualified name, since overloading is not supported.
func checkDuplicates(desired []*objmodel.ManagedObject) error {
	seen := map[objmodel.ObjectRef]string{}
	functionLike := map[objmodel.QualifiedName]objmodel.ObjectRef{}
	for _, obj := range desired {
		ref := obj.Ref()
		if prior, ok := seen[ref]; ok {
			return &pgmgerr.SchemaConflict{
				Reason: fmt.Sprintf("%s is declared twice: %s and %s", ref, prior, obj.SourceFile),
			}
		}
		seen[ref] = obj.SourceFile
		if obj.Kind.IsFunctionLike() {
			if prior, ok := functionLike[obj.Name]; ok {
				return &pgmgerr.SchemaConflict{
					Reason: fmt.Sprintf("%s overloads %s; overloading is not supported", ref, prior),
				}
			}
			functionLike[obj.Name] = ref
		}
	}
	return nil
}

// augmentWithHardDependents walks out from every Create/Update change
// along hard edges and adds an Update for each transitively-affected
// object whose own ddl_hash hasn't changed but which must still be dropped
// and recreated because a structural prerequisite is.
func augmentWithHardDependents(changes []Change, graph *depgraph.Graph, desired []*objmodel.ManagedObject) []Change {
	byRef := map[objmodel.ObjectRef]*objmodel.ManagedObject{}
	for _, obj := range desired {
		byRef[obj.Ref()] = obj
	}

	already := map[objmodel.ObjectRef]bool{}
	for _, c := range changes {
		already[c.Ref] = true
	}

	var roots []objmodel.ObjectRef
	for _, c := range changes {
		if c.Action == ActionCreate || c.Action == ActionUpdate {
			roots = append(roots, c.Ref)
		}
	}

	for _, ref := range graph.AffectedBy(roots) {
		if already[ref] {
			continue
		}
		obj, ok := byRef[ref]
		if !ok {
			continue
		}
		// obj's own ddl_hash is unchanged; it is recreated solely because
		// a hard prerequisite is being recreated, not because its content
		// differs from what's recorded.
		changes = append(changes, Change{Action: ActionUpdate, Ref: ref, Object: obj})
		already[ref] = true
	}
	return changes
}
