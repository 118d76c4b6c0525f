package analyzer

import (
	"reflect"

	pg_query "github.com/pganalyze/pg_query_go/v5"

	"github.com/ZakSingh/pgmg/internal/objmodel"
)

// collectDependencies walks every node reachable from root and accumulates
// relation, function, and type references into deps. The generated AST has
// several hundred node kinds; rather than hand-write a traversal arm per
// kind (which silently misses new kinds as pg_query.Node grows), this walks
// the struct via reflection and type-switches on the handful of node shapes
// that carry a name worth recording — RangeVar for relations, FuncCall,
// CoalesceExpr, and a trigger's EXECUTE FUNCTION name for functions,
// TypeName for types (which reaches TypeCast
// targets, column types, domain base types, and function parameter/return
// types uniformly, since they are all just a *TypeName field somewhere in
// the tree) — while still recursing into every field so nothing nested
// (CTEs, subqueries, CASE branches, constraint expressions) is missed.
func collectDependencies(root *pg_query.Node) objmodel.Dependencies {
	deps := objmodel.NewDependencies()
	walkValue(reflect.ValueOf(root), &deps, map[unsafePtr]bool{})
	return deps
}

// unsafePtr is used purely as a map key to break reference cycles the
// generated protobuf structs don't actually have, but reflect-based
// recursion should still guard against defensively.
type unsafePtr = uintptr

func walkValue(v reflect.Value, deps *objmodel.Dependencies, seen map[unsafePtr]bool) {
	if !v.IsValid() {
		return
	}
	switch v.Kind() {
	case reflect.Ptr:
		if v.IsNil() {
			return
		}
		ptr := v.Pointer()
		if seen[ptr] {
			return
		}
		seen[ptr] = true
		extract(v.Interface(), deps)
		walkValue(v.Elem(), deps, seen)
	case reflect.Interface:
		if v.IsNil() {
			return
		}
		walkValue(v.Elem(), deps, seen)
	case reflect.Slice, reflect.Array:
		for i := 0; i < v.Len(); i++ {
			walkValue(v.Index(i), deps, seen)
		}
	case reflect.Map:
		for _, k := range v.MapKeys() {
			walkValue(v.MapIndex(k), deps, seen)
		}
	case reflect.Struct:
		for i := 0; i < v.NumField(); i++ {
			f := v.Field(i)
			if f.CanInterface() {
				walkValue(f, deps, seen)
			}
		}
	}
}

// extract records a dependency for the handful of node types whose
// presence anywhere in the tree means "this statement references X".
func extract(x interface{}, deps *objmodel.Dependencies) {
	switch n := x.(type) {
	case *pg_query.RangeVar:
		if n.Relname != "" {
			deps.AddRelation(objmodel.QualifiedName{Schema: n.Schemaname, Name: n.Relname})
		}
	case *pg_query.FuncCall:
		if name, ok := qualifiedFromNameNodes(n.Funcname); ok {
			deps.AddFunction(name)
		}
	case *pg_query.CreateTrigStmt:
		// The EXECUTE FUNCTION target is a bare name list, not a FuncCall.
		if name, ok := qualifiedFromNameNodes(n.Funcname); ok {
			deps.AddFunction(name)
		}
	case *pg_query.CoalesceExpr:
		deps.AddFunction(objmodel.QualifiedName{Name: "coalesce"})
	case *pg_query.MinMaxExpr:
		// GREATEST/LEAST are parser special forms (builtin catalog handles
		// filtering); record them uniformly with other pseudo-functions.
		switch n.Op {
		case pg_query.MinMaxOp_IS_GREATEST:
			deps.AddFunction(objmodel.QualifiedName{Name: "greatest"})
		case pg_query.MinMaxOp_IS_LEAST:
			deps.AddFunction(objmodel.QualifiedName{Name: "least"})
		}
	case *pg_query.TypeName:
		if name, ok := qualifiedFromNameNodes(n.Names); ok {
			deps.AddType(name)
		}
	}
}
