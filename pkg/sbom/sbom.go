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

// Package sbom assembles a dependency graph and its findings into a
// deterministic, serializer-neutral document.
package sbom

import (
	"cmp"
	"encoding/json"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/venslabs/depgraph/pkg/coordinate"
	"github.com/venslabs/depgraph/pkg/graph"
	"github.com/venslabs/depgraph/pkg/license"
	"github.com/venslabs/depgraph/pkg/matcher"
	"github.com/venslabs/depgraph/pkg/purl"
	"github.com/venslabs/depgraph/pkg/scorer"
)

// Component is one node of the graph. Unresolved components are
// placeholders for nodes whose resolution failed; Reason says why.
type Component struct {
	BOMRef        string                `json:"bomRef"`
	Identity      coordinate.Identity   `json:"identity"`
	Coordinate    coordinate.Coordinate `json:"coordinate"`
	PURL          string                `json:"purl"`
	CPE           string                `json:"cpe,omitempty"`
	Scope         coordinate.Scope      `json:"scope"`
	Depth         int                   `json:"depth"`
	Licenses      []string              `json:"licenses,omitempty"`
	Requested     []string              `json:"requested,omitempty"`
	Overridden    bool                  `json:"overridden,omitempty"`
	Status        graph.Status          `json:"status"`
	Unresolved    bool                  `json:"unresolved,omitempty"`
	Reason        string                `json:"reason,omitempty"`
	Indeterminate bool                  `json:"indeterminate,omitempty"`
}

// Dependency is an edge between two components. Back edges close a cycle.
type Dependency struct {
	Parent coordinate.Identity `json:"parent"`
	Child  coordinate.Identity `json:"child"`
	Back   bool                `json:"back,omitempty"`
}

// FindingSet groups the findings of one component. An indeterminate set
// may be empty: its advisories are unknown, not absent.
type FindingSet struct {
	Identity      coordinate.Identity `json:"identity"`
	Findings      []matcher.Finding   `json:"findings,omitempty"`
	Indeterminate bool                `json:"indeterminate,omitempty"`
	Reason        string              `json:"reason,omitempty"`
}

// Document is the assembled result of an analysis. Every slice is sorted,
// so two documents built from the same inputs encode identically.
type Document struct {
	SerialNumber      string                `json:"serialNumber"`
	Timestamp         time.Time             `json:"timestamp"`
	Subject           *Component            `json:"subject,omitempty"`
	Roots             []coordinate.Identity `json:"roots"`
	Components        []Component           `json:"components"`
	Dependencies      []Dependency          `json:"dependencies"`
	Findings          []FindingSet          `json:"findings,omitempty"`
	Cycles            []Dependency          `json:"cycles,omitempty"`
	Unresolved        []coordinate.Identity `json:"unresolved,omitempty"`
	Indeterminate     []coordinate.Identity `json:"indeterminate,omitempty"`
	LicenseCollisions []license.Collision   `json:"licenseCollisions,omitempty"`
}

// Component returns the component of an identity.
func (d *Document) Component(id coordinate.Identity) (Component, bool) {
	i, ok := slices.BinarySearchFunc(d.Components, id, func(c Component, id coordinate.Identity) int {
		return cmp.Compare(c.Identity, id)
	})
	if !ok {
		return Component{}, false
	}
	return d.Components[i], true
}

// Counts returns the number of findings per band. Unknown scores are not
// counted.
func (d *Document) Counts() map[scorer.Band]int {
	out := make(map[scorer.Band]int)
	for _, fs := range d.Findings {
		for _, f := range fs.Findings {
			if !f.Score.Unknown {
				out[f.Score.Band]++
			}
		}
	}
	return out
}

// MaxBand returns the highest band among known scores, and false when there
// are no scored findings.
func (d *Document) MaxBand() (scorer.Band, bool) {
	best, found := scorer.None, false
	for b := range d.Counts() {
		if !found || b.Rank() > best.Rank() {
			best, found = b, true
		}
	}
	return best, found
}

type options struct {
	timestamp  time.Time
	subject    *coordinate.Coordinate
	match      *matcher.Result
	collisions []license.Collision
	cpe        bool
}

type Option func(*options)

// WithTimestamp sets the document timestamp. Defaults to the current time.
func WithTimestamp(t time.Time) Option {
	return func(o *options) { o.timestamp = t }
}

// WithSubject records the component the document describes.
func WithSubject(c coordinate.Coordinate) Option {
	return func(o *options) { o.subject = &c }
}

// WithMatchResult flags the components whose advisory lookup was
// indeterminate.
func WithMatchResult(r matcher.Result) Option {
	return func(o *options) { o.match = &r }
}

// WithLicenseCollisions attaches license compatibility findings.
func WithLicenseCollisions(c []license.Collision) Option {
	return func(o *options) { o.collisions = c }
}

// WithCPE controls whether components carry a CPE alias. Enabled by default.
func WithCPE(enabled bool) Option {
	return func(o *options) { o.cpe = enabled }
}

// Assemble builds the document of g and its findings. Findings for
// identities not in g are dropped.
func Assemble(g *graph.Graph, findings []matcher.Finding, opts ...Option) *Document {
	o := options{cpe: true}
	for _, f := range opts {
		f(&o)
	}
	if o.timestamp.IsZero() {
		o.timestamp = time.Now().UTC()
	}

	reasons := make(map[coordinate.Identity]string)
	if o.match != nil {
		for _, n := range o.match.Nodes {
			if n.Indeterminate {
				reasons[n.Identity] = n.Err
			}
		}
	}

	d := &Document{Timestamp: o.timestamp, Roots: g.Roots()}
	usedRefs := make(map[string]bool)
	for _, n := range g.Nodes() {
		c := component(n, o.cpe)
		if usedRefs[c.BOMRef] {
			// two identities folding to the same package URL
			c.BOMRef = string(c.Identity)
		}
		usedRefs[c.BOMRef] = true
		if _, ok := reasons[c.Identity]; ok {
			c.Indeterminate = true
		}
		d.Components = append(d.Components, c)
		if c.Unresolved {
			d.Unresolved = append(d.Unresolved, c.Identity)
		}
		if c.Indeterminate {
			d.Indeterminate = append(d.Indeterminate, c.Identity)
		}
	}
	if o.subject != nil {
		s := component(&graph.Node{Coordinate: *o.subject, Status: graph.Resolved}, o.cpe)
		d.Subject = &s
	}

	for _, e := range g.Edges() {
		dep := Dependency{Parent: e.Parent, Child: e.Child, Back: e.Back}
		d.Dependencies = append(d.Dependencies, dep)
		if dep.Back {
			d.Cycles = append(d.Cycles, dep)
		}
	}

	d.Findings = findingSets(g, findings, reasons)
	d.LicenseCollisions = slices.Clone(o.collisions)
	license.SortCollisions(d.LicenseCollisions)
	d.SerialNumber = serialNumber(d)
	return d
}

func component(n *graph.Node, cpe bool) Component {
	id := purl.Normalize(n.Coordinate, purl.WithCPE(cpe))
	c := Component{
		BOMRef:     id.PURL,
		Identity:   n.Identity(),
		Coordinate: n.Coordinate,
		PURL:       id.PURL,
		CPE:        id.CPE,
		Scope:      n.Scope,
		Depth:      n.Depth,
		Licenses:   n.Licenses,
		Requested:  n.Requested,
		Overridden: n.Overridden,
		Status:     n.Status,
	}
	if n.Status == graph.Failed {
		c.Unresolved = true
		c.Reason = n.Err
	}
	return c
}

func findingSets(g *graph.Graph, findings []matcher.Finding, reasons map[coordinate.Identity]string) []FindingSet {
	sets := make(map[coordinate.Identity]*FindingSet)
	get := func(id coordinate.Identity) *FindingSet {
		if s, ok := sets[id]; ok {
			return s
		}
		s := &FindingSet{Identity: id}
		sets[id] = s
		return s
	}
	for _, f := range findings {
		if _, ok := g.Node(f.Identity); !ok {
			slog.Warn("Dropping finding for unknown component", "identity", f.Identity, "advisory", f.Advisory.ID)
			continue
		}
		s := get(f.Identity)
		if slices.ContainsFunc(s.Findings, func(x matcher.Finding) bool { return x.Advisory.ID == f.Advisory.ID }) {
			continue
		}
		s.Findings = append(s.Findings, f)
	}
	for id, reason := range reasons {
		s := get(id)
		s.Indeterminate = true
		s.Reason = reason
	}

	ids := lo.Keys(sets)
	slices.Sort(ids)
	out := make([]FindingSet, 0, len(ids))
	for _, id := range ids {
		s := sets[id]
		slices.SortFunc(s.Findings, compareFindings)
		out = append(out, *s)
	}
	return out
}

// compareFindings orders by severity, highest first, then by advisory ID.
func compareFindings(a, b matcher.Finding) int {
	return cmp.Or(cmp.Compare(b.Score.Rank(), a.Score.Rank()), cmp.Compare(a.Advisory.ID, b.Advisory.ID))
}

// serialNumber derives a name-based UUID from the document content, so
// identical inputs get identical serial numbers.
func serialNumber(d *Document) string {
	clone := *d
	clone.SerialNumber = ""
	clone.Timestamp = time.Time{}
	b, err := json.Marshal(&clone)
	if err != nil {
		return uuid.NewString()
	}
	return "urn:uuid:" + uuid.NewSHA1(uuid.NameSpaceURL, b).String()
}
