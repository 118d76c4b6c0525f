package depgraph

import (
	"fmt"
	"sort"
	"strings"

	"github.com/ZakSingh/pgmg/internal/objmodel"
)

// kindStyle maps an ObjectKind to the Graphviz shape/color pair used when
// rendering a plan, one combination per kind so a large graph is still
// visually scannable at a glance.
var kindStyle = map[objmodel.ObjectKind]struct{ shape, color string }{
	objmodel.KindTable:            {"box", "lightblue"},
	objmodel.KindView:              {"ellipse", "lightyellow"},
	objmodel.KindMaterializedView: {"ellipse", "gold"},
	objmodel.KindFunction:         {"component", "lightgreen"},
	objmodel.KindProcedure:        {"component", "palegreen"},
	objmodel.KindType:             {"diamond", "plum"},
	objmodel.KindDomain:           {"diamond", "orchid"},
	objmodel.KindIndex:            {"note", "lightgrey"},
	objmodel.KindTrigger:          {"cds", "lightsalmon"},
	objmodel.KindComment:          {"plaintext", "white"},
	objmodel.KindCronJob:          {"hexagon", "lightpink"},
	objmodel.KindAggregate:        {"component", "khaki"},
	objmodel.KindOperator:         {"octagon", "thistle"},
}

// ToDot renders the graph as Graphviz DOT source. Output is deterministic:
// nodes are emitted in insertion order and edges sorted by the insertion
// order of their source node, then of their target node, so the same plan
// always produces byte-identical DOT text.
func (g *Graph) ToDot() string {
	var b strings.Builder
	b.WriteString("digraph pgmg {\n")
	b.WriteString("  rankdir=LR;\n")
	b.WriteString("  node [style=filled, fontsize=10];\n")

	for _, n := range g.nodes {
		style := kindStyle[n.ref.Kind]
		if style.shape == "" {
			style = struct{ shape, color string }{"box", "white"}
		}
		fmt.Fprintf(&b, "  %q [label=%q, shape=%s, fillcolor=%s];\n",
			nodeKey(n.ref), n.ref.Name.String(), style.shape, style.color)
	}

	type renderEdge struct {
		from, to nodeID
		kind     objmodel.EdgeKind
	}
	var edges []renderEdge
	for id, n := range g.nodes {
		for _, e := range n.out {
			edges = append(edges, renderEdge{from: nodeID(id), to: e.to, kind: e.kind})
		}
	}
	sort.Slice(edges, func(i, j int) bool {
		if edges[i].from != edges[j].from {
			return edges[i].from < edges[j].from
		}
		return edges[i].to < edges[j].to
	})

	for _, e := range edges {
		style := "solid"
		if e.kind == objmodel.EdgeSoft {
			style = "dashed"
		}
		fmt.Fprintf(&b, "  %q -> %q [style=%s];\n",
			nodeKey(g.nodes[e.from].ref), nodeKey(g.nodes[e.to].ref), style)
	}

	b.WriteString("}\n")
	return b.String()
}

func nodeKey(ref objmodel.ObjectRef) string {
	return string(ref.Kind) + ":" + ref.Name.String()
}
