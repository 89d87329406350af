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
	"strconv"
	"strings"
	"time"

	spdxjson "github.com/spdx/tools-golang/json"
	"github.com/spdx/tools-golang/spdx/v2/common"
	"github.com/spdx/tools-golang/spdx/v2/v2_3"

	"github.com/venslabs/depgraph/pkg/coordinate"
	"github.com/venslabs/depgraph/pkg/sbom"
)

const (
	spdxNoAssertion = "NOASSERTION"
	spdxDocumentID  = "DOCUMENT"
	spdxSubjectID   = "RootPackage"
)

// NewSPDXOutputHandler returns an OutputHandler that emits an SPDX 2.3 JSON
// document with one package per component and DEPENDS_ON relationships.
func NewSPDXOutputHandler(w io.Writer) OutputHandler {
	return &spdxWriter{w: w}
}

type spdxWriter struct {
	single
	w      io.Writer
	closed bool
}

func (s *spdxWriter) Close() error {
	if s.closed || s.doc == nil {
		return nil
	}
	if err := spdxjson.Write(ToSPDX(s.doc), s.w); err != nil {
		return fmt.Errorf("failed to write SPDX document: %w", err)
	}
	s.closed = true
	return nil
}

// ToSPDX converts d to an SPDX 2.3 document. The subject, when set, is the
// described package; otherwise the document describes every root.
// Unresolved, indeterminate and overridden components and license
// collisions are reported as package annotations, advisories as SECURITY
// external references.
func ToSPDX(d *sbom.Document) *v2_3.Document {
	created := d.Timestamp.UTC().Format(time.RFC3339)
	doc := &v2_3.Document{
		SPDXVersion:       "SPDX-2.3",
		DataLicense:       "CC0-1.0",
		SPDXIdentifier:    spdxDocumentID,
		DocumentName:      "depgraph-analysis",
		DocumentNamespace: "https://venslabs.dev/depgraph/spdx/" + strings.TrimPrefix(d.SerialNumber, "urn:uuid:"),
		CreationInfo: &v2_3.CreationInfo{
			Creators: []common.Creator{{CreatorType: "Tool", Creator: "depgraph"}},
			Created:  created,
		},
	}
	document := common.MakeDocElementID("", spdxDocumentID)

	ids := make(map[coordinate.Identity]common.ElementID, len(d.Components))
	for i, c := range d.Components {
		ids[c.Identity] = common.ElementID("Package-" + strconv.Itoa(i+1))
	}
	findings := make(map[coordinate.Identity]sbom.FindingSet, len(d.Findings))
	for _, fs := range d.Findings {
		findings[fs.Identity] = fs
	}
	collisions := make(map[coordinate.Identity][]string)
	for _, lc := range d.LicenseCollisions {
		collisions[lc.Child] = append(collisions[lc.Child], lc.String())
	}

	if d.Subject != nil {
		doc.DocumentName = d.Subject.Coordinate.Name + "@" + d.Subject.Coordinate.Version
		doc.Packages = append(doc.Packages, spdxPackage(*d.Subject, spdxSubjectID, created))
		doc.Relationships = append(doc.Relationships, &v2_3.Relationship{
			RefA:         document,
			RefB:         common.MakeDocElementID("", spdxSubjectID),
			Relationship: "DESCRIBES",
		})
		for _, r := range d.Roots {
			doc.Relationships = append(doc.Relationships, &v2_3.Relationship{
				RefA:         common.MakeDocElementID("", spdxSubjectID),
				RefB:         common.MakeDocElementID("", string(ids[r])),
				Relationship: "DEPENDS_ON",
			})
		}
	} else {
		for _, r := range d.Roots {
			doc.Relationships = append(doc.Relationships, &v2_3.Relationship{
				RefA:         document,
				RefB:         common.MakeDocElementID("", string(ids[r])),
				Relationship: "DESCRIBES",
			})
		}
	}

	for _, c := range d.Components {
		p := spdxPackage(c, ids[c.Identity], created)
		for _, f := range findings[c.Identity].Findings {
			p.PackageExternalReferences = append(p.PackageExternalReferences, &v2_3.PackageExternalReference{
				Category:           "SECURITY",
				RefType:            "advisory",
				Locator:            "https://osv.dev/vulnerability/" + f.Advisory.ID,
				ExternalRefComment: f.Advisory.ID + " " + f.Score.String(),
			})
		}
		for _, s := range collisions[c.Identity] {
			p.Annotations = append(p.Annotations, spdxAnnotation(created, PropertyLicenseCollision, s))
		}
		doc.Packages = append(doc.Packages, p)
	}

	for _, dep := range d.Dependencies {
		rel := &v2_3.Relationship{
			RefA:         common.MakeDocElementID("", string(ids[dep.Parent])),
			RefB:         common.MakeDocElementID("", string(ids[dep.Child])),
			Relationship: "DEPENDS_ON",
		}
		if dep.Back {
			rel.RelationshipComment = "cycle"
		}
		doc.Relationships = append(doc.Relationships, rel)
	}
	return doc
}

func spdxPackage(c sbom.Component, id common.ElementID, created string) *v2_3.Package {
	p := &v2_3.Package{
		PackageName:               c.Coordinate.Name,
		PackageSPDXIdentifier:     id,
		PackageVersion:            c.Coordinate.Version,
		PackageDownloadLocation:   spdxNoAssertion,
		FilesAnalyzed:             false,
		IsFilesAnalyzedTagPresent: true,
		PackageLicenseConcluded:   spdxNoAssertion,
		PackageLicenseDeclared:    spdxLicense(c.Licenses),
		PackageCopyrightText:      spdxNoAssertion,
		PrimaryPackagePurpose:     spdxPurpose(c.Coordinate.Type),
	}
	if c.PURL != "" {
		p.PackageExternalReferences = append(p.PackageExternalReferences, &v2_3.PackageExternalReference{
			Category: "PACKAGE-MANAGER",
			RefType:  "purl",
			Locator:  c.PURL,
		})
	}
	if c.CPE != "" {
		p.PackageExternalReferences = append(p.PackageExternalReferences, &v2_3.PackageExternalReference{
			Category: "SECURITY",
			RefType:  "cpe23Type",
			Locator:  c.CPE,
		})
	}
	if c.Unresolved {
		p.Annotations = append(p.Annotations, spdxAnnotation(created, PropertyUnresolved, c.Reason))
	}
	if c.Indeterminate {
		p.Annotations = append(p.Annotations, spdxAnnotation(created, PropertyIndeterminate, "advisory lookup failed"))
	}
	if c.Overridden {
		p.Annotations = append(p.Annotations, spdxAnnotation(created, PropertyOverridesVersion, strings.Join(otherVersions(c), ",")))
	}
	return p
}

func spdxAnnotation(created, name, value string) v2_3.Annotation {
	return v2_3.Annotation{
		Annotator:         common.Annotator{AnnotatorType: "Tool", Annotator: "depgraph"},
		AnnotationDate:    created,
		AnnotationType:    "OTHER",
		AnnotationComment: name + ": " + value,
	}
}

// spdxLicense joins declared licenses into one expression.
func spdxLicense(licenses []string) string {
	if len(licenses) == 0 {
		return spdxNoAssertion
	}
	parts := make([]string, 0, len(licenses))
	for _, l := range licenses {
		if strings.Contains(l, " ") && len(licenses) > 1 {
			l = "(" + l + ")"
		}
		parts = append(parts, l)
	}
	return strings.Join(parts, " AND ")
}

func spdxPurpose(t coordinate.Type) string {
	switch t {
	case coordinate.Application:
		return "APPLICATION"
	case coordinate.Framework:
		return "FRAMEWORK"
	case coordinate.Container:
		return "CONTAINER"
	case coordinate.File:
		return "FILE"
	}
	return "LIBRARY"
}
