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

package outputhandler

import (
	"io"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/CycloneDX/cyclonedx-go"

	"github.com/venslabs/depgraph/pkg/coordinate"
	"github.com/venslabs/depgraph/pkg/sbom"
)

// CycloneDX property names.
const (
	PropertyUnresolved       = "depgraph:unresolved"
	PropertyIndeterminate    = "depgraph:indeterminate"
	PropertyOverridesVersion = "depgraph:overridesVersion"
	PropertyScope            = "depgraph:scope"
	PropertyDepth            = "depgraph:depth"
	PropertyLicenseCollision = "depgraph:licenseCollision"
)

// NewCycloneDXOutputHandler returns an OutputHandler that emits a CycloneDX
// JSON BOM with components, dependencies and vulnerabilities on Close.
func NewCycloneDXOutputHandler(w io.Writer) OutputHandler {
	return &cycloneDXWriter{w: w}
}

type cycloneDXWriter struct {
	single
	w      io.Writer
	closed bool
}

func (c *cycloneDXWriter) Close() error {
	if c.closed || c.doc == nil {
		return nil
	}
	enc := cyclonedx.NewBOMEncoder(c.w, cyclonedx.BOMFileFormatJSON)
	enc.SetPretty(true)
	if err := enc.Encode(ToCycloneDX(c.doc)); err != nil {
		return err
	}
	c.closed = true
	return nil
}

// ToCycloneDX converts d to a CycloneDX BOM. Unresolved and indeterminate
// components are kept and flagged with properties.
func ToCycloneDX(d *sbom.Document) *cyclonedx.BOM {
	bom := cyclonedx.NewBOM()
	bom.SerialNumber = d.SerialNumber
	bom.Metadata = &cyclonedx.Metadata{
		Timestamp: d.Timestamp.UTC().Format(time.RFC3339),
		Tools: &cyclonedx.ToolsChoice{
			Components: &[]cyclonedx.Component{{Type: cyclonedx.ComponentTypeApplication, Name: "depgraph"}},
		},
	}
	if d.Subject != nil {
		subject := component(*d.Subject)
		bom.Metadata.Component = &subject
	}

	refs := make(map[coordinate.Identity]string, len(d.Components))
	for _, c := range d.Components {
		refs[c.Identity] = c.BOMRef
	}
	collisions := make(map[coordinate.Identity][]string)
	for _, lc := range d.LicenseCollisions {
		collisions[lc.Child] = append(collisions[lc.Child], lc.String())
	}

	components := make([]cyclonedx.Component, 0, len(d.Components))
	for _, c := range d.Components {
		cc := component(c)
		for _, s := range collisions[c.Identity] {
			cc.Properties = appendProperty(cc.Properties, PropertyLicenseCollision, s)
		}
		components = append(components, cc)
	}
	bom.Components = &components

	bom.Dependencies = dependencies(d, refs)
	if vulns := vulnerabilities(d, refs); len(vulns) > 0 {
		bom.Vulnerabilities = &vulns
	}
	return bom
}

func component(c sbom.Component) cyclonedx.Component {
	cc := cyclonedx.Component{
		BOMRef:     c.BOMRef,
		Type:       componentType(c.Coordinate.Type),
		Group:      c.Coordinate.Namespace,
		Name:       c.Coordinate.Name,
		Version:    c.Coordinate.Version,
		PackageURL: c.PURL,
		CPE:        c.CPE,
		Scope:      componentScope(c.Scope),
	}
	if len(c.Licenses) > 0 {
		licenses := make(cyclonedx.Licenses, 0, len(c.Licenses))
		for _, l := range c.Licenses {
			if strings.ContainsAny(l, " ()") {
				licenses = append(licenses, cyclonedx.LicenseChoice{Expression: l})
				continue
			}
			licenses = append(licenses, cyclonedx.LicenseChoice{License: &cyclonedx.License{ID: l}})
		}
		cc.Licenses = &licenses
	}

	var props *[]cyclonedx.Property
	if c.Scope != "" {
		props = appendProperty(props, PropertyScope, string(c.Scope))
	}
	if c.Depth > 0 {
		props = appendProperty(props, PropertyDepth, strconv.Itoa(c.Depth))
	}
	if c.Unresolved {
		props = appendProperty(props, PropertyUnresolved, c.Reason)
	}
	if c.Indeterminate {
		props = appendProperty(props, PropertyIndeterminate, "true")
	}
	if c.Overridden {
		props = appendProperty(props, PropertyOverridesVersion, strings.Join(otherVersions(c), ","))
	}
	cc.Properties = props
	return cc
}

func appendProperty(props *[]cyclonedx.Property, name, value string) *[]cyclonedx.Property {
	if props == nil {
		props = &[]cyclonedx.Property{}
	}
	*props = append(*props, cyclonedx.Property{Name: name, Value: value})
	return props
}

func componentType(t coordinate.Type) cyclonedx.ComponentType {
	switch t {
	case coordinate.Application:
		return cyclonedx.ComponentTypeApplication
	case coordinate.Framework:
		return cyclonedx.ComponentTypeFramework
	case coordinate.Container:
		return cyclonedx.ComponentTypeContainer
	case coordinate.File:
		return cyclonedx.ComponentTypeFile
	}
	return cyclonedx.ComponentTypeLibrary
}

func componentScope(s coordinate.Scope) cyclonedx.Scope {
	switch s {
	case coordinate.Optional:
		return cyclonedx.ScopeOptional
	case coordinate.Build, coordinate.Test:
		return cyclonedx.ScopeExcluded
	}
	return cyclonedx.ScopeRequired
}

// dependencies lists every component once, in component order, with its
// direct dependencies sorted by reference. Back edges are kept.
func dependencies(d *sbom.Document, refs map[coordinate.Identity]string) *[]cyclonedx.Dependency {
	children := make(map[coordinate.Identity][]string)
	for _, dep := range d.Dependencies {
		children[dep.Parent] = append(children[dep.Parent], refs[dep.Child])
	}
	out := make([]cyclonedx.Dependency, 0, len(d.Components)+1)
	if d.Subject != nil {
		roots := make([]string, 0, len(d.Roots))
		for _, r := range d.Roots {
			roots = append(roots, refs[r])
		}
		slices.Sort(roots)
		out = append(out, cyclonedx.Dependency{Ref: d.Subject.BOMRef, Dependencies: &roots})
	}
	for _, c := range d.Components {
		dep := cyclonedx.Dependency{Ref: c.BOMRef}
		if list := children[c.Identity]; len(list) > 0 {
			slices.Sort(list)
			dep.Dependencies = &list
		}
		out = append(out, dep)
	}
	return &out
}

func vulnerabilities(d *sbom.Document, refs map[coordinate.Identity]string) []cyclonedx.Vulnerability {
	var out []cyclonedx.Vulnerability
	for _, fs := range d.Findings {
		ref := refs[fs.Identity]
		for _, f := range fs.Findings {
			a := f.Advisory
			v := cyclonedx.Vulnerability{
				BOMRef:      a.ID + "/" + ref,
				ID:          a.ID,
				Description: a.Summary,
				Detail:      a.Description,
				Ratings:     &[]cyclonedx.VulnerabilityRating{f.Score.CycloneDX()},
				Affects:     &[]cyclonedx.Affects{{Ref: ref}},
			}
			if !a.Published.IsZero() {
				v.Published = a.Published.UTC().Format(time.RFC3339)
			}
			if !a.Modified.IsZero() {
				v.Updated = a.Modified.UTC().Format(time.RFC3339)
			}
			if cwes := cweNumbers(a.CWEs); len(cwes) > 0 {
				v.CWEs = &cwes
			}
			if len(a.References) > 0 {
				advisories := make([]cyclonedx.Advisory, 0, len(a.References))
				for _, u := range a.References {
					advisories = append(advisories, cyclonedx.Advisory{URL: u})
				}
				v.Advisories = &advisories
			}
			if len(a.Aliases) > 0 {
				aliases := make([]cyclonedx.VulnerabilityReference, 0, len(a.Aliases))
				for _, alias := range a.Aliases {
					aliases = append(aliases, cyclonedx.VulnerabilityReference{ID: alias})
				}
				v.References = &aliases
			}
			out = append(out, v)
		}
	}
	return out
}

// cweNumbers turns "CWE-79" into 79, dropping entries that are not CWE ids.
func cweNumbers(cwes []string) []int {
	var out []int
	for _, c := range cwes {
		n, err := strconv.Atoi(strings.TrimPrefix(strings.ToUpper(c), "CWE-"))
		if err == nil {
			out = append(out, n)
		}
	}
	return out
}
