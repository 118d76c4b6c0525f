package depgraph

import (
	"github.com/mitchellh/hashstructure/v2"

	"github.com/ZakSingh/pgmg/internal/objmodel"
)

// signatureEdge is a stable, hashstructure-friendly projection of one of
// the graph's edges (ids and map iteration order are not
// part of a Graph's public identity, only which refs point at which).
type signatureEdge struct {
	From objmodel.ObjectRef
	To   objmodel.ObjectRef
	Kind objmodel.EdgeKind
}

// Signature returns a structural hash of the graph's refs and edges,
// independent of insertion order, so two plans built from the same desired
// state hash identically even if directory scanning visited files in a
// different order.
func (g *Graph) Signature() (uint64, error) {
	refs := g.Refs()
	edges := make([]signatureEdge, 0)
	for _, n := range g.nodes {
		for _, e := range n.out {
			edges = append(edges, signatureEdge{From: n.ref, To: g.nodes[e.to].ref, Kind: e.kind})
		}
	}

	payload := struct {
		Refs  []objmodel.ObjectRef
		Edges []signatureEdge
	}{Refs: refs, Edges: edges}

	return hashstructure.Hash(payload, hashstructure.FormatV2, &hashstructure.HashOptions{
		SlicesAsSets: true,
	})
}
