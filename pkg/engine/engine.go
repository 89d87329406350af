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

// Package engine runs an analysis end to end: graph construction, advisory
// matching, scoring, license checks and document assembly.
package engine

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/venslabs/depgraph/pkg/advisory"
	"github.com/venslabs/depgraph/pkg/config"
	"github.com/venslabs/depgraph/pkg/coordinate"
	"github.com/venslabs/depgraph/pkg/graph"
	"github.com/venslabs/depgraph/pkg/license"
	"github.com/venslabs/depgraph/pkg/matcher"
	"github.com/venslabs/depgraph/pkg/metrics"
	"github.com/venslabs/depgraph/pkg/sbom"
	"github.com/venslabs/depgraph/pkg/scorer"
)

// Engine holds the collaborators and settings of an analysis.
type Engine struct {
	resolver      graph.Resolver
	store         advisory.Store
	scorer        *scorer.Scorer
	metrics       *metrics.Metrics
	concurrency   int
	maxDepth      int
	excludeScopes []coordinate.Scope
	cpe           bool
	timeout       time.Duration
	now           func() time.Time
}

type Option func(*Engine)

// WithScorer sets the scorer. Defaults to one without overrides.
func WithScorer(s *scorer.Scorer) Option {
	return func(e *Engine) { e.scorer = s }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithConcurrency bounds resolver and store fan-out.
func WithConcurrency(n int) Option {
	return func(e *Engine) { e.concurrency = n }
}

func WithMaxDepth(n int) Option {
	return func(e *Engine) { e.maxDepth = n }
}

func WithExcludedScopes(scopes ...coordinate.Scope) Option {
	return func(e *Engine) { e.excludeScopes = scopes }
}

func WithCPE(enabled bool) Option {
	return func(e *Engine) { e.cpe = enabled }
}

// WithTimeout bounds a whole analysis. Zero means no limit.
func WithTimeout(d time.Duration) Option {
	return func(e *Engine) { e.timeout = d }
}

// WithClock sets the source of document timestamps.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// FromConfig maps the settings of c to options.
func FromConfig(c *config.Config) ([]Option, error) {
	scopes, err := c.Scopes()
	if err != nil {
		return nil, err
	}
	return []Option{
		WithScorer(scorer.New(scorer.WithOverrides(c.Overrides()))),
		WithConcurrency(c.Concurrency),
		WithMaxDepth(c.MaxDepth),
		WithExcludedScopes(scopes...),
		WithCPE(c.CPE()),
		WithTimeout(c.Timeout),
	}, nil
}

// New returns an engine resolving with resolver and matching against store.
func New(resolver graph.Resolver, store advisory.Store, opts ...Option) *Engine {
	e := &Engine{
		resolver:    resolver,
		store:       store,
		concurrency: graph.DefaultConcurrency,
		cpe:         true,
		now:         func() time.Time { return time.Now().UTC() },
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Request is the input of an analysis. Subject is the analyzed project,
// when known.
type Request struct {
	Roots   []coordinate.Declaration
	Subject *coordinate.Declaration
}

// Result carries the intermediate products next to the document.
type Result struct {
	Graph    *graph.Graph
	Match    matcher.Result
	Findings []matcher.Finding
	Document *sbom.Document
}

// Analyze runs an analysis. It only fails on invalid roots; resolution and
// lookup failures are reported in the document. When the timeout expires,
// the partial result assembled so far is returned with its unfinished
// entries flagged.
func (e *Engine) Analyze(ctx context.Context, req Request) (*Result, error) {
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	g, err := graph.Build(ctx, req.Roots, e.resolver,
		graph.WithConcurrency(e.concurrency),
		graph.WithMaxDepth(e.maxDepth),
		graph.WithExcludedScopes(e.excludeScopes...),
		graph.WithMetrics(e.metrics),
	)
	if err != nil {
		return nil, err
	}

	match := matcher.MatchGraph(ctx, g, e.store,
		matcher.WithConcurrency(e.concurrency),
		matcher.WithCPE(e.cpe),
		matcher.WithMetrics(e.metrics),
	)
	findings := matcher.Findings(match, e.scorer)
	for _, f := range findings {
		if f.Score.Unknown {
			e.metrics.ObserveFinding("unknown")
			continue
		}
		e.metrics.ObserveFinding(strings.ToLower(string(f.Score.Band)))
	}

	var licenseOpts []license.Option
	assembleOpts := []sbom.Option{
		sbom.WithTimestamp(e.now()),
		sbom.WithMatchResult(match),
		sbom.WithCPE(e.cpe),
	}
	if req.Subject != nil {
		licenseOpts = append(licenseOpts, license.WithProject(*req.Subject))
		assembleOpts = append(assembleOpts, sbom.WithSubject(req.Subject.Coordinate))
	}
	assembleOpts = append(assembleOpts, sbom.WithLicenseCollisions(license.Detect(g, licenseOpts...)))
	doc := sbom.Assemble(g, findings, assembleOpts...)

	slog.InfoContext(ctx, "Analysis finished",
		"components", len(doc.Components),
		"findings", len(findings),
		"unresolved", len(doc.Unresolved),
		"indeterminate", len(doc.Indeterminate),
		"cycles", len(doc.Cycles))
	return &Result{Graph: g, Match: match, Findings: findings, Document: doc}, nil
}

// Exceeds reports whether d has a finding at or above band. A component
// whose advisory lookup failed may hide a finding of any band, so an
// indeterminate entry exceeds every band.
func Exceeds(d *sbom.Document, band scorer.Band) bool {
	if len(d.Indeterminate) > 0 {
		return true
	}
	top, ok := d.MaxBand()
	return ok && top.Rank() >= band.Rank()
}
