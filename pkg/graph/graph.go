// Copyright 2025 venslabs
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package graph builds the deduplicated dependency graph of a project.
//
// A Graph is an arena keyed by component identity: every identity has
// exactly one node, and edges reference identities rather than nodes.
package graph

import (
	"cmp"
	"encoding/json"
	"slices"

	"github.com/samber/lo"

	"github.com/venslabs/depgraph/pkg/coordinate"
)

// Status is the resolution outcome of a node.
type Status string

const (
	// Resolved nodes had their children resolved (possibly none).
	Resolved Status = "resolved"
	// Failed nodes could not be resolved; Err holds the reason.
	Failed Status = "failed"
	// Pruned nodes were kept but not expanded because of their scope or depth.
	Pruned Status = "pruned"
)

// Node is one component of the graph. Requested lists every version
// requested for the identity in ascending order; Overridden is set when more
// than one version was requested and conflict resolution picked one. Nodes
// are not modified once Build has returned.
type Node struct {
	Coordinate coordinate.Coordinate `json:"coordinate"`
	Requested  []string              `json:"requested"`
	Scope      coordinate.Scope      `json:"scope"`
	Depth      int                   `json:"depth"`
	Children   []coordinate.Identity `json:"children,omitempty"`
	Status     Status                `json:"status"`
	Err        string                `json:"error,omitempty"`
	Licenses   []string              `json:"licenses,omitempty"`
	Overridden bool                  `json:"overridden,omitempty"`
}

// Identity returns the identity of the node.
func (n *Node) Identity() coordinate.Identity {
	return n.Coordinate.Identity()
}

// Edge is a dependency from Parent to Child. Back edges close a cycle.
type Edge struct {
	Parent coordinate.Identity `json:"parent"`
	Child  coordinate.Identity `json:"child"`
	Back   bool                `json:"back,omitempty"`
}

func compareEdges(a, b Edge) int {
	return cmp.Or(cmp.Compare(a.Parent, b.Parent), cmp.Compare(a.Child, b.Child))
}

// Graph is the result of Build. Removing the back edges leaves it acyclic.
type Graph struct {
	nodes  map[coordinate.Identity]*Node
	edges  []Edge
	roots  []coordinate.Identity
	cycles []Edge
}

func newGraph() *Graph {
	return &Graph{nodes: make(map[coordinate.Identity]*Node)}
}

// Node returns the node of an identity.
func (g *Graph) Node(id coordinate.Identity) (*Node, bool) {
	n, ok := g.nodes[id]
	return n, ok
}

// Len returns the number of nodes.
func (g *Graph) Len() int {
	return len(g.nodes)
}

// Nodes returns every node sorted by identity.
func (g *Graph) Nodes() []*Node {
	ids := lo.Keys(g.nodes)
	slices.Sort(ids)
	return lo.Map(ids, func(id coordinate.Identity, _ int) *Node { return g.nodes[id] })
}

// Edges returns every edge, back edges included, sorted by parent then child.
func (g *Graph) Edges() []Edge {
	return slices.Clone(g.edges)
}

// Roots returns the identities of the root nodes, sorted.
func (g *Graph) Roots() []coordinate.Identity {
	return slices.Clone(g.roots)
}

// Cycles returns the back edges, sorted.
func (g *Graph) Cycles() []Edge {
	return slices.Clone(g.cycles)
}

// Children returns the child identities of id, sorted.
func (g *Graph) Children(id coordinate.Identity) []coordinate.Identity {
	if n, ok := g.nodes[id]; ok {
		return slices.Clone(n.Children)
	}
	return nil
}

// Failed returns the nodes whose resolution failed, sorted by identity.
func (g *Graph) Failed() []*Node {
	return lo.Filter(g.Nodes(), func(n *Node, _ int) bool { return n.Status == Failed })
}

// TopologicalOrder returns the identities with every parent before its
// children. Back edges are ignored; ties are broken by identity.
func (g *Graph) TopologicalOrder() []coordinate.Identity {
	indegree := make(map[coordinate.Identity]int, len(g.nodes))
	for id := range g.nodes {
		indegree[id] = 0
	}
	out := make(map[coordinate.Identity][]coordinate.Identity)
	for _, e := range g.edges {
		if e.Back {
			continue
		}
		indegree[e.Child]++
		out[e.Parent] = append(out[e.Parent], e.Child)
	}

	var ready []coordinate.Identity
	for id, d := range indegree {
		if d == 0 {
			ready = append(ready, id)
		}
	}
	slices.Sort(ready)

	order := make([]coordinate.Identity, 0, len(g.nodes))
	for len(ready) > 0 {
		id := ready[0]
		ready = ready[1:]
		order = append(order, id)
		var freed []coordinate.Identity
		for _, c := range out[id] {
			indegree[c]--
			if indegree[c] == 0 {
				freed = append(freed, c)
			}
		}
		if len(freed) > 0 {
			ready = append(ready, freed...)
			slices.Sort(ready)
		}
	}
	return order
}

// wireGraph is the JSON form of a Graph.
type wireGraph struct {
	Roots []coordinate.Identity `json:"roots"`
	Nodes []*Node               `json:"nodes"`
	Edges []Edge                `json:"edges"`
}

func (g *Graph) MarshalJSON() ([]byte, error) {
	return json.Marshal(wireGraph{Roots: g.roots, Nodes: g.Nodes(), Edges: g.edges})
}

func (g *Graph) UnmarshalJSON(b []byte) error {
	var w wireGraph
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	*g = *newGraph()
	for _, n := range w.Nodes {
		g.nodes[n.Identity()] = n
	}
	g.roots = w.Roots
	g.edges = w.Edges
	slices.SortFunc(g.edges, compareEdges)
	for _, e := range g.edges {
		if e.Back {
			g.cycles = append(g.cycles, e)
		}
	}
	return nil
}
