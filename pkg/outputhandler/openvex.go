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
	"fmt"
	"io"

	"github.com/openvex/go-vex/pkg/vex"

	"github.com/venslabs/depgraph/pkg/sbom"
)

// IndeterminateVulnerability names the statement issued for components
// whose advisories could not be looked up.
const IndeterminateVulnerability = "depgraph:indeterminate"

// NewOpenVEXOutputHandler returns an OutputHandler that emits an OpenVEX
// document on Close: one affected statement per finding and one
// under_investigation statement per indeterminate component.
func NewOpenVEXOutputHandler(w io.Writer) OutputHandler {
	return &openVEXWriter{w: w}
}

type openVEXWriter struct {
	single
	w io.Writer
}

func (o *openVEXWriter) Close() error {
	if o.doc == nil {
		return nil
	}
	doc, err := ToOpenVEX(o.doc)
	if err != nil {
		return err
	}
	return doc.ToJSON(o.w)
}

// ToOpenVEX converts d to an OpenVEX document. The document ID is derived
// from its content.
func ToOpenVEX(d *sbom.Document) (*vex.VEX, error) {
	doc := vex.New()
	doc.Author = "depgraph"
	ts := d.Timestamp
	doc.Timestamp = &ts
	doc.Statements = make([]vex.Statement, 0)

	for _, fs := range d.Findings {
		c, ok := d.Component(fs.Identity)
		if !ok {
			continue
		}
		if fs.Indeterminate {
			doc.Statements = append(doc.Statements, vex.Statement{
				Vulnerability: vex.Vulnerability{Name: vex.VulnerabilityID(IndeterminateVulnerability)},
				Products:      products(d, c),
				Status:        vex.StatusUnderInvestigation,
				StatusNotes:   fmt.Sprintf("advisory lookup failed: %s", fs.Reason),
			})
		}
		for _, f := range fs.Findings {
			aliases := make([]vex.VulnerabilityID, 0, len(f.Advisory.Aliases))
			for _, a := range f.Advisory.Aliases {
				aliases = append(aliases, vex.VulnerabilityID(a))
			}
			doc.Statements = append(doc.Statements, vex.Statement{
				Vulnerability: vex.Vulnerability{
					Name:        vex.VulnerabilityID(f.Advisory.ID),
					Description: f.Advisory.Summary,
					Aliases:     aliases,
				},
				Products:        products(d, c),
				Status:          vex.StatusAffected,
				ImpactStatement: fmt.Sprintf("severity %s", f.Score),
				ActionStatement: "Review the affected component and upgrade to a version outside the affected ranges.",
			})
		}
	}

	if _, err := doc.GenerateCanonicalID(); err != nil {
		return nil, fmt.Errorf("failed to generate document id: %w", err)
	}
	return &doc, nil
}

// products names the analyzed subject as the product and c as its
// subcomponent, or c alone when the document has no subject.
func products(d *sbom.Document, c sbom.Component) []vex.Product {
	sub := vex.Component{
		ID:          c.PURL,
		Identifiers: map[vex.IdentifierType]string{vex.PURL: c.PURL},
	}
	if d.Subject == nil {
		return []vex.Product{{Component: sub}}
	}
	return []vex.Product{{
		Component: vex.Component{
			ID:          d.Subject.PURL,
			Identifiers: map[vex.IdentifierType]string{vex.PURL: d.Subject.PURL},
		},
		Subcomponents: []vex.Subcomponent{{Component: sub}},
	}}
}
