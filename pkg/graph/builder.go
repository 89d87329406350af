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

package graph

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"

	"github.com/venslabs/depgraph/pkg/coordinate"
	"github.com/venslabs/depgraph/pkg/metrics"
	"github.com/venslabs/depgraph/pkg/versioncmp"
)

// DefaultConcurrency bounds the parallel ResolveChildren calls of one level.
const DefaultConcurrency = 8

var (
	// ErrInvalidRoot is returned by Build for unusable root declarations.
	ErrInvalidRoot = errors.New("invalid root declaration")
	// ErrUnresolvable is returned by resolvers that do not know a coordinate.
	ErrUnresolvable = errors.New("coordinate cannot be resolved")
)

// Resolver returns the direct dependencies of a resolved coordinate.
type Resolver interface {
	ResolveChildren(ctx context.Context, c coordinate.Coordinate) ([]coordinate.Declaration, error)
}

// ResolverFunc adapts a function to Resolver.
type ResolverFunc func(ctx context.Context, c coordinate.Coordinate) ([]coordinate.Declaration, error)

func (f ResolverFunc) ResolveChildren(ctx context.Context, c coordinate.Coordinate) ([]coordinate.Declaration, error) {
	return f(ctx, c)
}

// ResolutionFailure records why the children of a node could not be
// resolved. Its text is stored in Node.Err.
type ResolutionFailure struct {
	Identity coordinate.Identity
	Err      error
}

func (e *ResolutionFailure) Error() string {
	return fmt.Sprintf("resolve %s: %v", e.Identity, e.Err)
}

func (e *ResolutionFailure) Unwrap() error { return e.Err }

type options struct {
	concurrency   int
	excludeScopes map[coordinate.Scope]bool
	maxDepth      int
	metrics       *metrics.Metrics
}

// Option configures Build.
type Option func(*options)

// WithConcurrency bounds the parallel resolver calls. Values below 1 use
// DefaultConcurrency.
func WithConcurrency(n int) Option {
	return func(o *options) { o.concurrency = n }
}

// WithExcludedScopes keeps nodes whose effective scope is one of scopes but
// does not expand them.
func WithExcludedScopes(scopes ...coordinate.Scope) Option {
	return func(o *options) {
		for _, s := range scopes {
			o.excludeScopes[s] = true
		}
	}
}

// WithMaxDepth stops expansion at depth n; roots are at depth 1. Zero means
// unlimited.
func WithMaxDepth(n int) Option {
	return func(o *options) { o.maxDepth = n }
}

// WithMetrics records resolution counters.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// request is one observed declaration of a dependency.
type request struct {
	parent coordinate.Identity
	decl   coordinate.Declaration
}

type resolution struct {
	children []coordinate.Declaration
	err      error
}

// Build resolves the transitive dependencies of roots breadth first.
//
// Each identity gets exactly one node. The version of a node is chosen by
// nearest-to-root: requests at the smallest depth win, and among those the
// highest version under the ecosystem's comparator wins. All requests of a
// level are collected before they are reduced, so the result does not depend
// on the order of roots or resolver output.
//
// A resolver error marks only that node as failed. When ctx is done, nodes
// not yet expanded are marked failed with the context error and the
// partially built graph is returned without error. The only error returned
// is ErrInvalidRoot.
func Build(ctx context.Context, roots []coordinate.Declaration, resolver Resolver, opts ...Option) (*Graph, error) {
	o := options{concurrency: DefaultConcurrency, excludeScopes: make(map[coordinate.Scope]bool)}
	for _, f := range opts {
		f(&o)
	}
	if o.concurrency < 1 {
		o.concurrency = DefaultConcurrency
	}
	if err := validateRoots(roots); err != nil {
		return nil, err
	}

	b := &builder{
		g:        newGraph(),
		resolver: resolver,
		opts:     o,
		edgeSet:  make(map[Edge]bool),
	}
	level := make([]request, 0, len(roots))
	for _, r := range roots {
		r.Scope = coordinate.Inherit("", r.Scope)
		level = append(level, request{decl: r})
	}

	for depth := 1; len(level) > 0; depth++ {
		expand := b.reduce(level, depth)
		if depth == 1 {
			b.g.roots = lo.Uniq(lo.Map(level, func(r request, _ int) coordinate.Identity { return r.decl.Coordinate.Identity() }))
			slices.Sort(b.g.roots)
		}
		level = b.expand(ctx, expand)
	}

	b.finish()
	if n := len(b.g.cycles); n > 0 {
		slog.InfoContext(ctx, "Dependency cycles detected", "count", n)
		o.metrics.ObserveCycles(n)
	}
	return b.g, nil
}

func validateRoots(roots []coordinate.Declaration) error {
	if len(roots) == 0 {
		return fmt.Errorf("%w: no roots", ErrInvalidRoot)
	}
	for _, r := range roots {
		if err := r.Coordinate.Validate(); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidRoot, err)
		}
	}
	return nil
}

type builder struct {
	g        *Graph
	resolver Resolver
	opts     options
	edgeSet  map[Edge]bool
}

func (b *builder) addEdge(parent, child coordinate.Identity) {
	e := Edge{Parent: parent, Child: child}
	if b.edgeSet[e] {
		return
	}
	b.edgeSet[e] = true
	b.g.edges = append(b.g.edges, e)
}

// reduce creates the nodes first requested at depth and returns the
// identities to expand, sorted.
func (b *builder) reduce(level []request, depth int) []coordinate.Identity {
	pending := make(map[coordinate.Identity][]request)
	for _, r := range level {
		id := r.decl.Coordinate.Identity()
		if r.parent != "" {
			b.addEdge(r.parent, id)
		}
		if n, ok := b.g.nodes[id]; ok {
			// already placed at a shallower depth
			b.observeLateRequest(n, r.decl.Coordinate.Version)
			continue
		}
		pending[id] = append(pending[id], r)
	}

	ids := lo.Keys(pending)
	slices.Sort(ids)
	var expand []coordinate.Identity
	for _, id := range ids {
		n := b.place(pending[id], depth)
		b.g.nodes[id] = n
		switch {
		case n.Status == Failed:
			b.opts.metrics.ObserveResolution(true)
		case b.opts.excludeScopes[n.Scope], b.opts.maxDepth > 0 && depth >= b.opts.maxDepth:
			n.Status = Pruned
			b.opts.metrics.ObservePruned()
		default:
			expand = append(expand, id)
		}
	}
	return expand
}

// place reduces the requests of one identity at one depth to a node.
func (b *builder) place(reqs []request, depth int) *Node {
	c := versioncmp.For(reqs[0].decl.Coordinate.Ecosystem)
	slices.SortStableFunc(reqs, func(x, y request) int {
		return cmp.Or(
			versioncmp.Strict(c, x.decl.Coordinate.Version, y.decl.Coordinate.Version),
			cmp.Compare(x.decl.Coordinate.Type, y.decl.Coordinate.Type),
			cmp.Compare(x.parent, y.parent),
			cmp.Compare(x.decl.Scope.Rank(), y.decl.Scope.Rank()),
		)
	})

	versions := lo.Uniq(lo.FilterMap(reqs, func(r request, _ int) (string, bool) {
		v := r.decl.Coordinate.Version
		return v, strings.TrimSpace(v) != ""
	}))
	versioncmp.Sort(c, versions)
	winner := versioncmp.Max(c, versions...)

	scope := reqs[0].decl.Scope
	var licenses []string
	coord := reqs[0].decl.Coordinate
	for _, r := range reqs {
		scope = coordinate.Stronger(scope, r.decl.Scope)
		if r.decl.Coordinate.Version == winner {
			coord = r.decl.Coordinate
			licenses = append(licenses, r.decl.Licenses...)
		}
	}
	licenses = lo.Uniq(licenses)
	slices.Sort(licenses)

	n := &Node{
		Coordinate: coord.WithVersion(winner),
		Requested:  versions,
		Scope:      scope,
		Depth:      depth,
		Status:     Resolved,
		Licenses:   licenses,
		Overridden: len(versions) > 1,
	}
	if err := n.Coordinate.Validate(); err != nil {
		n.Status = Failed
		n.Err = (&ResolutionFailure{Identity: n.Identity(), Err: err}).Error()
	}
	return n
}

func (b *builder) observeLateRequest(n *Node, version string) {
	if strings.TrimSpace(version) == "" || slices.Contains(n.Requested, version) {
		return
	}
	n.Requested = append(n.Requested, version)
	versioncmp.Sort(versioncmp.For(n.Coordinate.Ecosystem), n.Requested)
	n.Overridden = true
}

// expand resolves the children of ids in parallel and returns the requests
// of the next level. Results are merged by the calling goroutine only.
func (b *builder) expand(ctx context.Context, ids []coordinate.Identity) []request {
	results := make([]resolution, len(ids))
	var eg errgroup.Group
	eg.SetLimit(b.opts.concurrency)
	for i, id := range ids {
		coord := b.g.nodes[id].Coordinate
		eg.Go(func() error {
			if err := ctx.Err(); err != nil {
				results[i].err = err
				return nil
			}
			children, err := b.resolver.ResolveChildren(ctx, coord)
			results[i] = resolution{children: children, err: err}
			return nil
		})
	}
	_ = eg.Wait()

	var next []request
	for i, id := range ids {
		n := b.g.nodes[id]
		r := results[i]
		if r.err != nil {
			fail := &ResolutionFailure{Identity: id, Err: r.err}
			n.Status = Failed
			n.Err = fail.Error()
			b.opts.metrics.ObserveResolution(true)
			slog.DebugContext(ctx, "Resolution failed", "identity", id, "version", n.Coordinate.Version, "error", r.err)
			continue
		}
		b.opts.metrics.ObserveResolution(false)
		for _, d := range r.children {
			if strings.TrimSpace(d.Coordinate.Name) == "" {
				slog.WarnContext(ctx, "Ignoring dependency without a name", "parent", id)
				continue
			}
			d.Scope = coordinate.Inherit(n.Scope, d.Scope)
			next = append(next, request{parent: id, decl: d})
		}
	}
	return next
}

// finish sorts children and edges and marks the edges that close a cycle.
func (b *builder) finish() {
	g := b.g
	for _, e := range g.edges {
		p := g.nodes[e.Parent]
		p.Children = append(p.Children, e.Child)
	}
	for _, n := range g.nodes {
		slices.Sort(n.Children)
	}
	slices.SortFunc(g.edges, compareEdges)

	back := backEdges(g)
	for i := range g.edges {
		if back[Edge{Parent: g.edges[i].Parent, Child: g.edges[i].Child}] {
			g.edges[i].Back = true
			g.cycles = append(g.cycles, g.edges[i])
		}
	}
}

// backEdges runs a depth-first search from the sorted roots, visiting
// children in sorted order, and returns the edges that reach a node on the
// current path.
func backEdges(g *Graph) map[Edge]bool {
	const (
		white = iota
		grey
		black
	)
	type frame struct {
		id   coordinate.Identity
		next int
	}
	state := make(map[coordinate.Identity]int, len(g.nodes))
	back := make(map[Edge]bool)

	visit := func(root coordinate.Identity) {
		if state[root] != white {
			return
		}
		state[root] = grey
		stack := []frame{{id: root}}
		for len(stack) > 0 {
			top := len(stack) - 1
			children := g.nodes[stack[top].id].Children
			if stack[top].next == len(children) {
				state[stack[top].id] = black
				stack = stack[:top]
				continue
			}
			parent, child := stack[top].id, children[stack[top].next]
			stack[top].next++
			switch state[child] {
			case grey:
				back[Edge{Parent: parent, Child: child}] = true
			case white:
				state[child] = grey
				stack = append(stack, frame{id: child})
			}
		}
	}
	for _, r := range g.roots {
		visit(r)
	}
	// every node is reachable from a root; this only guards hand-made graphs
	for _, n := range g.Nodes() {
		visit(n.Identity())
	}
	return back
}
