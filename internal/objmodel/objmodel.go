// Package objmodel holds the plain data types shared by every reconciliation
// component: qualified names, the closed object-kind variant, dependency
// sets, and the ManagedObject record the analyzer produces and the planner
// and applier consume. Nothing in this package touches the filesystem or
// the database; it is pure data plus equality and formatting helpers.
package objmodel

import (
	"fmt"
	"sort"

	"github.com/ZakSingh/pgmg/internal/quoting"
)

// QualifiedName is a schema-qualified (or unqualified) identifier. Two
// names compare equal iff both components match exactly: an unqualified
// name is never treated as equal to the same name qualified with "public".
type QualifiedName struct {
	Schema string // empty means unqualified
	Name   string
}

func (q QualifiedName) String() string {
	if q.Schema == "" {
		return q.Name
	}
	return q.Schema + "." + q.Name
}

// Escaped renders the name using double-quoted, internally-escaped
// identifiers, e.g. `"public"."my_view"`.
func (q QualifiedName) Escaped() string {
	if q.Schema == "" {
		return quoting.Identifier(q.Name)
	}
	return quoting.Identifier(q.Schema) + "." + quoting.Identifier(q.Name)
}

func (q QualifiedName) Less(o QualifiedName) bool {
	if q.Schema != o.Schema {
		return q.Schema < o.Schema
	}
	return q.Name < o.Name
}

// ObjectKind is the closed variant of object kinds the tool manages.
type ObjectKind string

const (
	KindTable            ObjectKind = "table"
	KindView             ObjectKind = "view"
	KindMaterializedView ObjectKind = "materialized_view"
	KindFunction         ObjectKind = "function"
	KindProcedure        ObjectKind = "procedure"
	KindType             ObjectKind = "type"
	KindDomain           ObjectKind = "domain"
	KindIndex            ObjectKind = "index"
	KindTrigger          ObjectKind = "trigger"
	KindComment          ObjectKind = "comment"
	KindCronJob          ObjectKind = "cron_job"
	KindAggregate        ObjectKind = "aggregate"
	KindOperator         ObjectKind = "operator"
)

// IsFunctionLike reports whether kind participates in the no-overload rule
// and the function-style drop/recreate semantics.
func (k ObjectKind) IsFunctionLike() bool {
	return k == KindFunction || k == KindProcedure
}

// ObjectRef identifies an object by kind and name; it is the node key of
// the dependency graph and the primary key of managed_objects.
type ObjectRef struct {
	Kind ObjectKind
	Name QualifiedName
}

func (r ObjectRef) String() string {
	return fmt.Sprintf("%s:%s", r.Kind, r.Name)
}

// Dependencies is the set of inbound references a ManagedObject carries,
// split by reference category. Sets are deduplicated; order is irrelevant
// until a caller asks for a deterministic slice via Sorted*.
type Dependencies struct {
	Relations map[QualifiedName]struct{}
	Functions map[QualifiedName]struct{}
	Types     map[QualifiedName]struct{}
}

// NewDependencies returns an initialized, empty Dependencies value.
func NewDependencies() Dependencies {
	return Dependencies{
		Relations: map[QualifiedName]struct{}{},
		Functions: map[QualifiedName]struct{}{},
		Types:     map[QualifiedName]struct{}{},
	}
}

func (d *Dependencies) AddRelation(n QualifiedName) {
	if d.Relations == nil {
		d.Relations = map[QualifiedName]struct{}{}
	}
	if n.Name == "" {
		return
	}
	d.Relations[n] = struct{}{}
}

func (d *Dependencies) AddFunction(n QualifiedName) {
	if d.Functions == nil {
		d.Functions = map[QualifiedName]struct{}{}
	}
	if n.Name == "" {
		return
	}
	d.Functions[n] = struct{}{}
}

func (d *Dependencies) AddType(n QualifiedName) {
	if d.Types == nil {
		d.Types = map[QualifiedName]struct{}{}
	}
	if n.Name == "" {
		return
	}
	d.Types[n] = struct{}{}
}

// Merge unions other into d.
func (d *Dependencies) Merge(other Dependencies) {
	for n := range other.Relations {
		d.AddRelation(n)
	}
	for n := range other.Functions {
		d.AddFunction(n)
	}
	for n := range other.Types {
		d.AddType(n)
	}
}

func (d Dependencies) SortedRelations() []QualifiedName { return sortedKeys(d.Relations) }
func (d Dependencies) SortedFunctions() []QualifiedName { return sortedKeys(d.Functions) }
func (d Dependencies) SortedTypes() []QualifiedName     { return sortedKeys(d.Types) }

func sortedKeys(m map[QualifiedName]struct{}) []QualifiedName {
	out := make([]QualifiedName, 0, len(m))
	for n := range m {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Less(out[j]) })
	return out
}

// ManagedObject is the output of the analyzer for one DDL statement.
type ManagedObject struct {
	Kind         ObjectKind
	Name         QualifiedName
	DDL          string
	DDLHash      string
	Dependencies Dependencies
	SourceFile   string
	StartLine    int
	EndLine      int
}

func (m ManagedObject) Ref() ObjectRef {
	return ObjectRef{Kind: m.Kind, Name: m.Name}
}

// EdgeKind distinguishes structural (Hard) from name-lookup (Soft) edges.
type EdgeKind string

const (
	EdgeHard EdgeKind = "hard"
	EdgeSoft EdgeKind = "soft"
)

// Edge is a dependency-graph edge: From must exist before To, with the
// given recreation semantics.
type Edge struct {
	From ObjectRef
	To   ObjectRef
	Kind EdgeKind
}
