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

// Package matcher correlates graph nodes with the advisories that affect
// their resolved version.
package matcher

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/venslabs/depgraph/pkg/advisory"
	"github.com/venslabs/depgraph/pkg/coordinate"
	"github.com/venslabs/depgraph/pkg/graph"
	"github.com/venslabs/depgraph/pkg/metrics"
	"github.com/venslabs/depgraph/pkg/purl"
	"github.com/venslabs/depgraph/pkg/scorer"
	"github.com/venslabs/depgraph/pkg/versioncmp"
)

// DefaultConcurrency bounds the parallel node lookups of MatchGraph.
const DefaultConcurrency = 8

// ErrLookupIndeterminate reports that a store could not answer. An
// indeterminate result is never the same as "no advisories".
var ErrLookupIndeterminate = errors.New("advisory lookup indeterminate")

// IndeterminateError carries the key whose lookup failed.
type IndeterminateError struct {
	Key string
	Err error
}

func (e *IndeterminateError) Error() string {
	return fmt.Sprintf("lookup %s: %v", e.Key, e.Err)
}

func (e *IndeterminateError) Unwrap() error { return e.Err }

func (e *IndeterminateError) Is(target error) bool { return target == ErrLookupIndeterminate }

// Match returns the advisories affecting version of the component
// identified by id, sorted by ID. Every lookup key of id is queried and
// results are deduplicated by advisory ID. A failing lookup yields an
// *IndeterminateError and no advisories.
func Match(ctx context.Context, id purl.NormalizedID, ecosystem, version string, store advisory.Store) ([]advisory.Advisory, error) {
	c := versioncmp.For(ecosystem)
	seen := make(map[string]bool)
	var out []advisory.Advisory
	for _, key := range id.Keys() {
		list, err := store.Lookup(ctx, key)
		if err != nil {
			return nil, &IndeterminateError{Key: key, Err: err}
		}
		for _, a := range list {
			if seen[a.ID] || !a.Affects(version, c) {
				continue
			}
			seen[a.ID] = true
			out = append(out, a)
		}
	}
	slices.SortFunc(out, func(a, b advisory.Advisory) int { return cmp.Compare(a.ID, b.ID) })
	return out, nil
}

// NodeResult is the match outcome of one node.
type NodeResult struct {
	Identity      coordinate.Identity
	ID            purl.NormalizedID
	Advisories    []advisory.Advisory
	Indeterminate bool
	Err           string
}

// Result holds the node results of MatchGraph, sorted by identity.
type Result struct {
	Nodes []NodeResult
}

// Indeterminate returns the identities whose lookup failed.
func (r Result) Indeterminate() []coordinate.Identity {
	var out []coordinate.Identity
	for _, n := range r.Nodes {
		if n.Indeterminate {
			out = append(out, n.Identity)
		}
	}
	return out
}

type options struct {
	concurrency int
	cpe         bool
	metrics     *metrics.Metrics
}

type Option func(*options)

// WithConcurrency bounds the parallel lookups. Values below 1 use
// DefaultConcurrency.
func WithConcurrency(n int) Option {
	return func(o *options) { o.concurrency = n }
}

// WithCPE enables CPE alias lookups. Enabled by default.
func WithCPE(enabled bool) Option {
	return func(o *options) { o.cpe = enabled }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// MatchGraph matches every node of g that has a version, skipping failed
// nodes. A failed lookup marks only its node indeterminate; MatchGraph
// itself does not fail. When ctx is done, unfinished nodes are marked
// indeterminate.
func MatchGraph(ctx context.Context, g *graph.Graph, store advisory.Store, opts ...Option) Result {
	o := options{concurrency: DefaultConcurrency, cpe: true}
	for _, f := range opts {
		f(&o)
	}
	if o.concurrency < 1 {
		o.concurrency = DefaultConcurrency
	}

	var nodes []*graph.Node
	for _, n := range g.Nodes() {
		if n.Status != graph.Failed {
			nodes = append(nodes, n)
		}
	}

	results := make([]NodeResult, len(nodes))
	var eg errgroup.Group
	eg.SetLimit(o.concurrency)
	for i, n := range nodes {
		eg.Go(func() error {
			results[i] = matchNode(ctx, n, store, o)
			return nil
		})
	}
	_ = eg.Wait()
	return Result{Nodes: results}
}

func matchNode(ctx context.Context, n *graph.Node, store advisory.Store, o options) NodeResult {
	id := purl.Normalize(n.Coordinate, purl.WithCPE(o.cpe))
	r := NodeResult{Identity: n.Identity(), ID: id}
	if err := ctx.Err(); err != nil {
		r.Indeterminate, r.Err = true, err.Error()
		o.metrics.ObserveLookup(metrics.LookupIndeterminate, 0)
		return r
	}

	start := time.Now()
	list, err := Match(ctx, id, n.Coordinate.Ecosystem, n.Coordinate.Version, store)
	switch {
	case err != nil:
		r.Indeterminate, r.Err = true, err.Error()
		o.metrics.ObserveLookup(metrics.LookupIndeterminate, time.Since(start))
		slog.WarnContext(ctx, "Advisory lookup failed", "identity", r.Identity, "error", err)
	case len(list) > 0:
		r.Advisories = list
		o.metrics.ObserveLookup(metrics.LookupHit, time.Since(start))
	default:
		o.metrics.ObserveLookup(metrics.LookupMiss, time.Since(start))
	}
	return r
}

// Finding is one advisory affecting one node, with its score.
type Finding struct {
	Identity coordinate.Identity `json:"identity"`
	Advisory advisory.Advisory   `json:"advisory"`
	Score    scorer.Score        `json:"score"`
}

// Findings scores every matched advisory. The order follows r.
func Findings(r Result, s *scorer.Scorer) []Finding {
	var out []Finding
	for _, n := range r.Nodes {
		for _, a := range n.Advisories {
			out = append(out, Finding{Identity: n.Identity, Advisory: a, Score: s.Score(a)})
		}
	}
	return out
}
