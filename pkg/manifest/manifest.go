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

// Package manifest reads the dependency declarations an analysis starts
// from: a YAML manifest or an existing CycloneDX SBOM.
package manifest

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/samber/lo"
	"go.yaml.in/yaml/v3"

	"github.com/venslabs/depgraph/pkg/coordinate"
	"github.com/venslabs/depgraph/pkg/purl"
)

// Format names an input format.
type Format string

const (
	FormatAuto      Format = "auto"
	FormatManifest  Format = "manifest"
	FormatCycloneDX Format = "cyclonedx"
)

// Manifest lists the direct dependencies of a project and, optionally, a
// static resolution table mapping a package URL to its own dependencies.
//
// Example YAML:
//
//	project: pkg:maven/org.acme/app@1.0.0
//	dependencies:
//	  - purl: pkg:maven/org.acme/libx@1.2.0
//	    scope: runtime
//	    licenses: [Apache-2.0]
//	packages:
//	  pkg:maven/org.acme/libx@1.2.0:
//	    - purl: pkg:maven/org.acme/liby@2.0.0
type Manifest struct {
	Project         string             `yaml:"project,omitempty"`
	ProjectLicenses []string           `yaml:"projectLicenses,omitempty"`
	Dependencies    []Entry            `yaml:"dependencies"`
	Packages        map[string][]Entry `yaml:"packages,omitempty"`
}

// Entry is one declared dependency.
type Entry struct {
	PURL     string   `yaml:"purl"`
	Scope    string   `yaml:"scope,omitempty"`
	Licenses []string `yaml:"licenses,omitempty"`
}

// Declaration parses e.
func (e Entry) Declaration() (coordinate.Declaration, error) {
	c, err := purl.Parse(strings.TrimSpace(e.PURL))
	if err != nil {
		return coordinate.Declaration{}, err
	}
	s, err := coordinate.ParseScope(e.Scope)
	if err != nil {
		return coordinate.Declaration{}, fmt.Errorf("%s: %w", e.PURL, err)
	}
	return coordinate.Declaration{Coordinate: c, Scope: s, Licenses: e.Licenses}, nil
}

// Parse decodes a YAML manifest. Unknown fields are rejected.
func Parse(r io.Reader) (*Manifest, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	var m Manifest
	if err := dec.Decode(&m); err != nil {
		if err == io.EOF {
			return nil, fmt.Errorf("empty manifest")
		}
		return nil, fmt.Errorf("failed to decode manifest: %w", err)
	}
	return &m, nil
}

// Load reads the manifest at path. FormatAuto treats .json files as
// CycloneDX SBOMs and anything else as a YAML manifest.
func Load(path string, f Format) (*Manifest, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if f == FormatAuto || f == "" {
		f = FormatManifest
		if strings.EqualFold(filepath.Ext(path), ".json") {
			f = FormatCycloneDX
		}
	}
	switch f {
	case FormatManifest:
		return Parse(bytes.NewReader(b))
	case FormatCycloneDX:
		return FromCycloneDX(bytes.NewReader(b))
	}
	return nil, fmt.Errorf("unknown input format %q", f)
}

// Subject returns the project coordinate, or nil when none is declared.
func (m *Manifest) Subject() (*coordinate.Declaration, error) {
	if m.Project == "" {
		return nil, nil
	}
	c, err := purl.Parse(m.Project)
	if err != nil {
		return nil, fmt.Errorf("project: %w", err)
	}
	if c.Type == coordinate.Library {
		c.Type = coordinate.Application
	}
	return &coordinate.Declaration{Coordinate: c, Licenses: m.ProjectLicenses}, nil
}

// Roots returns the direct dependencies.
func (m *Manifest) Roots() ([]coordinate.Declaration, error) {
	out := make([]coordinate.Declaration, 0, len(m.Dependencies))
	for i, e := range m.Dependencies {
		d, err := e.Declaration()
		if err != nil {
			return nil, fmt.Errorf("dependencies[%d]: %w", i, err)
		}
		out = append(out, d)
	}
	return out, nil
}

// Coordinates returns every coordinate named by m: the project, the direct
// dependencies and the resolution table, deduplicated and sorted.
func (m *Manifest) Coordinates() ([]coordinate.Coordinate, error) {
	var out []coordinate.Coordinate
	add := func(s string) error {
		c, err := purl.Parse(s)
		if err != nil {
			return err
		}
		out = append(out, c)
		return nil
	}
	entries := slices.Clone(m.Dependencies)
	for _, list := range m.Packages {
		entries = append(entries, list...)
	}
	for _, e := range entries {
		if err := add(e.PURL); err != nil {
			return nil, err
		}
	}
	for k := range m.Packages {
		if err := add(k); err != nil {
			return nil, err
		}
	}
	out = lo.Uniq(out)
	slices.SortFunc(out, func(a, b coordinate.Coordinate) int { return strings.Compare(a.String(), b.String()) })
	return out, nil
}
