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

package manifest

import (
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strings"

	"github.com/samber/lo"

	"github.com/venslabs/depgraph/pkg/api/types"
	"github.com/venslabs/depgraph/pkg/coordinate"
	"github.com/venslabs/depgraph/pkg/purl"
	"github.com/venslabs/depgraph/pkg/sbom"
)

// FromCycloneDX turns a CycloneDX JSON SBOM into a manifest. The subject's
// dependencies become the direct dependencies, or, when the SBOM does not
// list them, every component nothing else depends on. Every component gets
// an entry in the resolution table, so the graph reproduces the SBOM's
// dependency tree.
func FromCycloneDX(r io.Reader) (*Manifest, error) {
	var (
		subject    *types.SBOMComponent
		components []types.SBOMComponent
		deps       = make(map[string][]string)
	)
	err := sbom.StreamCycloneDX(r, sbom.StreamHandler{
		Subject: func(c types.SBOMComponent) error {
			subject = &c
			return nil
		},
		Component: func(c types.SBOMComponent) error {
			components = append(components, c)
			return nil
		},
		Dependency: func(d types.SBOMDependency) error {
			deps[d.Ref] = append(deps[d.Ref], d.DependsOn...)
			return nil
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read CycloneDX SBOM: %w", err)
	}

	byRef := make(map[string]Entry, len(components))
	m := &Manifest{Packages: make(map[string][]Entry, len(components))}
	for _, c := range components {
		e, ok := entryOf(c)
		if !ok {
			slog.Warn("Skipping component without a package URL", "bom-ref", c.BOMRef, "name", c.Name)
			continue
		}
		byRef[lo.Ternary(c.BOMRef != "", c.BOMRef, c.PURL)] = e
		m.Packages[e.PURL] = []Entry{}
	}

	children := func(ref string) []Entry {
		var out []Entry
		for _, d := range deps[ref] {
			if e, ok := byRef[d]; ok {
				out = append(out, e)
			}
		}
		return out
	}
	for ref, e := range byRef {
		m.Packages[e.PURL] = append(m.Packages[e.PURL], children(ref)...)
	}

	if subject != nil {
		m.Project = subject.PURL
		m.ProjectLicenses = subject.LicenseIDs()
		m.Dependencies = children(subject.BOMRef)
	}
	if len(m.Dependencies) == 0 {
		m.Dependencies = orphans(byRef, deps, subject)
	}
	slices.SortFunc(m.Dependencies, compareEntries)
	m.Dependencies = slices.CompactFunc(m.Dependencies, func(a, b Entry) bool { return a.PURL == b.PURL })
	for k := range m.Packages {
		slices.SortFunc(m.Packages[k], compareEntries)
		m.Packages[k] = slices.CompactFunc(m.Packages[k], func(a, b Entry) bool { return a.PURL == b.PURL })
	}
	if len(m.Dependencies) == 0 {
		return nil, fmt.Errorf("CycloneDX SBOM has no components with a package URL")
	}
	return m, nil
}

// orphans returns the components no other component depends on.
func orphans(byRef map[string]Entry, deps map[string][]string, subject *types.SBOMComponent) []Entry {
	depended := make(map[string]bool)
	for ref, list := range deps {
		if subject != nil && ref == subject.BOMRef {
			continue
		}
		for _, d := range list {
			depended[d] = true
		}
	}
	var out []Entry
	for ref, e := range byRef {
		if !depended[ref] {
			out = append(out, e)
		}
	}
	return out
}

func entryOf(c types.SBOMComponent) (Entry, bool) {
	p := c.PURL
	if p == "" {
		if c.Name == "" || c.Version == "" {
			return Entry{}, false
		}
		p = purl.Normalize(coordinate.Coordinate{Namespace: c.Group, Name: c.Name, Version: c.Version}, purl.WithCPE(false)).PURL
	}
	return Entry{PURL: p, Scope: c.Scope, Licenses: c.LicenseIDs()}, true
}

func compareEntries(a, b Entry) int {
	return strings.Compare(a.PURL, b.PURL)
}
