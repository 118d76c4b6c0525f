package analyzer

import (
	pg_query "github.com/pganalyze/pg_query_go/v5"

	"github.com/ZakSingh/pgmg/internal/objmodel"
)

// qualifiedFromNameNodes turns a pg_query name list — the representation
// used for both TypeName.Names and FuncCall.Funcname — into a QualifiedName.
// A one-element list is bare; a two-element list is schema-qualified
// (including the "pg_catalog" prefix the parser injects for some built-in
// types); a longer list such as catalog.schema.name keeps only its last two
// elements as schema and name.
func qualifiedFromNameNodes(nodes []*pg_query.Node) (objmodel.QualifiedName, bool) {
	parts := stringNodes(nodes)
	if len(parts) == 0 {
		return objmodel.QualifiedName{}, false
	}
	last := parts[len(parts)-1]
	if last == "" {
		return objmodel.QualifiedName{}, false
	}
	if len(parts) >= 2 {
		return objmodel.QualifiedName{Schema: parts[len(parts)-2], Name: last}, true
	}
	return objmodel.QualifiedName{Name: last}, true
}

// stringNodes extracts the String value from each node in a pg_query name
// list, skipping anything that isn't a plain string node.
func stringNodes(nodes []*pg_query.Node) []string {
	out := make([]string, 0, len(nodes))
	for _, n := range nodes {
		if n == nil {
			continue
		}
		if s, ok := n.Node.(*pg_query.Node_String_); ok && s.String_ != nil {
			out = append(out, s.String_.Sval)
		}
	}
	return out
}

// rangeVarName builds a QualifiedName from a RangeVar, used where a
// statement's subject relation must be read explicitly rather than via the
// generic walk (e.g. to exclude it from its own dependency set).
func rangeVarName(rv *pg_query.RangeVar) objmodel.QualifiedName {
	if rv == nil {
		return objmodel.QualifiedName{}
	}
	return objmodel.QualifiedName{Schema: rv.Schemaname, Name: rv.Relname}
}

// objectNameFromNodes builds a QualifiedName for object kinds (functions,
// procedures, aggregates, operators) whose own identity is a Funcname-style
// node list rather than a RangeVar.
func objectNameFromNodes(nodes []*pg_query.Node) objmodel.QualifiedName {
	name, _ := qualifiedFromNameNodes(nodes)
	return name
}
