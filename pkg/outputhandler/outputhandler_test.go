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
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/CycloneDX/cyclonedx-go"
	"github.com/openvex/go-vex/pkg/vex"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/venslabs/depgraph/pkg/advisory"
	"github.com/venslabs/depgraph/pkg/coordinate"
	"github.com/venslabs/depgraph/pkg/graph"
	"github.com/venslabs/depgraph/pkg/matcher"
	"github.com/venslabs/depgraph/pkg/sbom"
	"github.com/venslabs/depgraph/pkg/scorer"
	"github.com/venslabs/depgraph/pkg/versionrange"
)

func npm(name, version string, licenses ...string) coordinate.Declaration {
	return coordinate.Declaration{Coordinate: coordinate.Coordinate{Ecosystem: "npm", Name: name, Version: version}, Licenses: licenses}
}

// testDocument analyzes app -> {util@2.0.0, web@1.0.0} where web requests
// util@1.0.0 and a missing package, util depends back on web, util has a
// critical advisory and the lookup for web fails.
func testDocument(t *testing.T) *sbom.Document {
	t.Helper()
	children := map[string][]coordinate.Declaration{
		"web":  {npm("util", "1.0.0"), npm("missing", "0.1.0")},
		"util": {npm("web", "1.0.0")},
	}
	resolver := graph.ResolverFunc(func(_ context.Context, c coordinate.Coordinate) ([]coordinate.Declaration, error) {
		if c.Name == "missing" {
			return nil, graph.ErrUnresolvable
		}
		return children[c.Name], nil
	})
	g, err := graph.Build(context.Background(), []coordinate.Declaration{npm("web", "1.0.0", "MIT"), npm("util", "2.0.0", "Apache-2.0")}, resolver)
	require.NoError(t, err)

	store := advisory.StoreFunc(func(_ context.Context, key string) ([]advisory.Advisory, error) {
		switch key {
		case "pkg:npm/web":
			return nil, advisory.ErrUnavailable
		case "pkg:npm/util":
			return []advisory.Advisory{{
				ID:             "CVE-2024-1000",
				Aliases:        []string{"GHSA-aaaa-bbbb-cccc"},
				Summary:        "Prototype pollution",
				Affected:       []versionrange.Range{versionrange.AnyVersion()},
				SeverityVector: "CVSS:3.1/AV:N/AC:L/PR:N/UI:N/S:U/C:H/I:H/A:H",
				References:     []string{"https://example.com/CVE-2024-1000"},
				CWEs:           []string{"CWE-1321"},
			}}, nil
		}
		return nil, nil
	})
	r := matcher.MatchGraph(context.Background(), g, store)
	return sbom.Assemble(g, matcher.Findings(r, scorer.New()),
		sbom.WithTimestamp(time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)),
		sbom.WithSubject(coordinate.Coordinate{Ecosystem: "npm", Name: "app", Version: "1.0.0"}),
		sbom.WithMatchResult(r),
	)
}

func TestFormatFromPath(t *testing.T) {
	tests := map[string]Format{
		"out.cdx.json":         FormatCycloneDX,
		"bom.json":             FormatCycloneDX,
		"out.openvex.json":     FormatOpenVEX,
		"/tmp/report.vex.json": FormatOpenVEX,
		"sbom.spdx.json":       FormatSPDX,
		"doc.json":             FormatJSON,
		"deps.tree":            FormatTree,
		"-":                    FormatTable,
		"report.txt":           FormatTable,
	}
	for path, want := range tests {
		t.Run(path, func(t *testing.T) {
			assert.Equal(t, want, FormatFromPath(path))
		})
	}
}

func TestNew(t *testing.T) {
	for _, f := range Formats {
		h, err := New(f, &bytes.Buffer{}, "")
		require.NoError(t, err)
		assert.NotNil(t, h)
	}
	_, err := New("xml", &bytes.Buffer{}, "")
	assert.Error(t, err)
}

func TestCycloneDX(t *testing.T) {
	var buf bytes.Buffer
	h := NewCycloneDXOutputHandler(&buf)
	d := testDocument(t)
	require.NoError(t, h.HandleDocument(d))
	assert.ErrorIs(t, h.HandleDocument(d), ErrDocumentHandled)
	require.NoError(t, h.Close())

	var bom cyclonedx.BOM
	require.NoError(t, cyclonedx.NewBOMDecoder(&buf, cyclonedx.BOMFileFormatJSON).Decode(&bom))
	assert.Equal(t, d.SerialNumber, bom.SerialNumber)
	require.NotNil(t, bom.Metadata.Component)
	assert.Equal(t, "pkg:npm/app@1.0.0", bom.Metadata.Component.PackageURL)

	require.NotNil(t, bom.Components)
	require.Len(t, *bom.Components, 3)
	props := func(purl string) map[string]string {
		out := make(map[string]string)
		for _, c := range *bom.Components {
			if c.PackageURL != purl || c.Properties == nil {
				continue
			}
			for _, p := range *c.Properties {
				out[p.Name] = p.Value
			}
		}
		return out
	}
	assert.Contains(t, props("pkg:npm/missing@0.1.0")[PropertyUnresolved], "cannot be resolved")
	assert.Equal(t, "true", props("pkg:npm/web@1.0.0")[PropertyIndeterminate])
	assert.Equal(t, "1.0.0", props("pkg:npm/util@2.0.0")[PropertyOverridesVersion])

	require.NotNil(t, bom.Dependencies)
	assert.Len(t, *bom.Dependencies, 4)
	assert.Equal(t, "pkg:npm/app@1.0.0", (*bom.Dependencies)[0].Ref)
	assert.Equal(t, []string{"pkg:npm/util@2.0.0", "pkg:npm/web@1.0.0"}, *(*bom.Dependencies)[0].Dependencies)

	require.NotNil(t, bom.Vulnerabilities)
	require.Len(t, *bom.Vulnerabilities, 1)
	v := (*bom.Vulnerabilities)[0]
	assert.Equal(t, "CVE-2024-1000", v.ID)
	assert.Equal(t, []int{1321}, *v.CWEs)
	assert.Equal(t, "pkg:npm/util@2.0.0", (*v.Affects)[0].Ref)
	rating := (*v.Ratings)[0]
	assert.Equal(t, cyclonedx.SeverityCritical, rating.Severity)
	assert.Equal(t, cyclonedx.ScoringMethodCVSSv31, rating.Method)
	require.NotNil(t, rating.Score)
	assert.InDelta(t, 9.8, *rating.Score, 0.001)
}

func TestOpenVEX(t *testing.T) {
	var buf bytes.Buffer
	h := NewOpenVEXOutputHandler(&buf)
	require.NoError(t, h.HandleDocument(testDocument(t)))
	require.NoError(t, h.Close())

	var doc vex.VEX
	require.NoError(t, json.Unmarshal(buf.Bytes(), &doc))
	assert.NotEmpty(t, doc.ID)
	require.Len(t, doc.Statements, 2)

	byStatus := make(map[vex.Status]vex.Statement)
	for _, s := range doc.Statements {
		byStatus[s.Status] = s
	}
	affected := byStatus[vex.StatusAffected]
	assert.Equal(t, vex.VulnerabilityID("CVE-2024-1000"), affected.Vulnerability.Name)
	require.Len(t, affected.Products, 1)
	assert.Equal(t, "pkg:npm/app@1.0.0", affected.Products[0].ID)
	assert.Equal(t, "pkg:npm/util@2.0.0", affected.Products[0].Subcomponents[0].ID)

	pending := byStatus[vex.StatusUnderInvestigation]
	assert.Equal(t, "pkg:npm/web@1.0.0", pending.Products[0].Subcomponents[0].ID)
	assert.Contains(t, pending.StatusNotes, "advisory lookup failed")
}

func TestOpenVEXDeterministicID(t *testing.T) {
	a, err := ToOpenVEX(testDocument(t))
	require.NoError(t, err)
	b, err := ToOpenVEX(testDocument(t))
	require.NoError(t, err)
	assert.Equal(t, a.ID, b.ID)
}

func TestSPDX(t *testing.T) {
	var buf bytes.Buffer
	h := NewSPDXOutputHandler(&buf)
	d := testDocument(t)
	require.NoError(t, h.HandleDocument(d))
	assert.ErrorIs(t, h.HandleDocument(d), ErrDocumentHandled)
	require.NoError(t, h.Close())

	type spdxRef struct {
		Category string `json:"referenceCategory"`
		Type     string `json:"referenceType"`
		Locator  string `json:"referenceLocator"`
	}
	type spdxAnnotation struct {
		Type    string `json:"annotationType"`
		Comment string `json:"comment"`
	}
	type spdxPackage struct {
		ID          string           `json:"SPDXID"`
		Name        string           `json:"name"`
		Version     string           `json:"versionInfo"`
		License     string           `json:"licenseDeclared"`
		Refs        []spdxRef        `json:"externalRefs"`
		Annotations []spdxAnnotation `json:"annotations"`
	}
	var doc struct {
		Version       string        `json:"spdxVersion"`
		ID            string        `json:"SPDXID"`
		Name          string        `json:"name"`
		Namespace     string        `json:"documentNamespace"`
		Packages      []spdxPackage `json:"packages"`
		Relationships []struct {
			A    string `json:"spdxElementId"`
			B    string `json:"relatedSpdxElement"`
			Type string `json:"relationshipType"`
		} `json:"relationships"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &doc))
	assert.Equal(t, "SPDX-2.3", doc.Version)
	assert.Equal(t, "SPDXRef-DOCUMENT", doc.ID)
	assert.Equal(t, "app@1.0.0", doc.Name)
	assert.NotEmpty(t, doc.Namespace)

	// subject plus three components
	require.Len(t, doc.Packages, 4)
	byPURL := make(map[string]spdxPackage)
	for _, p := range doc.Packages {
		for _, r := range p.Refs {
			if r.Type == "purl" {
				byPURL[r.Locator] = p
			}
		}
	}
	require.Len(t, byPURL, 4)
	assert.Equal(t, "SPDXRef-RootPackage", byPURL["pkg:npm/app@1.0.0"].ID)
	assert.Equal(t, "MIT", byPURL["pkg:npm/web@1.0.0"].License)

	comments := func(purl string) []string {
		var out []string
		for _, a := range byPURL[purl].Annotations {
			assert.Equal(t, "OTHER", a.Type)
			out = append(out, a.Comment)
		}
		return out
	}
	require.Len(t, comments("pkg:npm/missing@0.1.0"), 1)
	assert.Contains(t, comments("pkg:npm/missing@0.1.0")[0], PropertyUnresolved)
	assert.Contains(t, comments("pkg:npm/web@1.0.0"), PropertyIndeterminate+": advisory lookup failed")
	assert.Contains(t, comments("pkg:npm/util@2.0.0"), PropertyOverridesVersion+": 1.0.0")

	var advisories []string
	for _, r := range byPURL["pkg:npm/util@2.0.0"].Refs {
		if r.Category == "SECURITY" && r.Type == "advisory" {
			advisories = append(advisories, r.Locator)
		}
	}
	assert.Equal(t, []string{"https://osv.dev/vulnerability/CVE-2024-1000"}, advisories)

	rels := make(map[string]int)
	edges := make(map[[2]string]bool)
	for _, r := range doc.Relationships {
		rels[r.Type]++
		edges[[2]string{r.A, r.B}] = true
	}
	// DOCUMENT DESCRIBES app; app -> {util, web}; web -> {missing, util}; util -> web
	assert.Equal(t, map[string]int{"DESCRIBES": 1, "DEPENDS_ON": 5}, rels)
	assert.True(t, edges[[2]string{"SPDXRef-DOCUMENT", "SPDXRef-RootPackage"}])
	assert.True(t, edges[[2]string{byPURL["pkg:npm/web@1.0.0"].ID, byPURL["pkg:npm/missing@0.1.0"].ID}])
	assert.True(t, edges[[2]string{byPURL["pkg:npm/util@2.0.0"].ID, byPURL["pkg:npm/web@1.0.0"].ID}])
}

func TestSPDXWithoutSubject(t *testing.T) {
	d := testDocument(t)
	d.Subject = nil
	doc := ToSPDX(d)
	require.Len(t, doc.Packages, 3)
	var describes int
	for _, r := range doc.Relationships {
		if r.Relationship == "DESCRIBES" {
			describes++
		}
	}
	assert.Equal(t, len(d.Roots), describes)
	assert.Equal(t, "depgraph-analysis", doc.DocumentName)
}

func TestTable(t *testing.T) {
	var buf bytes.Buffer
	h := NewTableOutputHandler(&buf)
	require.NoError(t, h.HandleDocument(testDocument(t)))
	require.NoError(t, h.Close())

	out := buf.String()
	assert.Contains(t, out, "CVE-2024-1000")
	assert.Contains(t, out, "npm:util")
	assert.Contains(t, out, "npm:missing")
	assert.Contains(t, out, "INDETERMINATE")
	assert.Contains(t, out, "3 components, 3 dependencies, 1 cycles, 1 unresolved, 1 indeterminate")
	assert.Contains(t, out, "CRITICAL 1")
}

func TestTree(t *testing.T) {
	var buf bytes.Buffer
	h := NewTreeOutputHandler(&buf)
	require.NoError(t, h.HandleDocument(testDocument(t)))
	require.NoError(t, h.Close())

	want := `pkg:npm/app@1.0.0
  npm:util@2.0.0 (overrides 1.0.0; 1 advisories, max CRITICAL (9.8))
    npm:web@1.0.0 (advisories indeterminate)
      npm:missing@0.1.0 (unresolved: resolve npm:missing: coordinate cannot be resolved)
      npm:util@2.0.0 (overrides 1.0.0; 1 advisories, max CRITICAL (9.8)) (cycle)
  npm:web@1.0.0 (advisories indeterminate) (*)
`
	assert.Equal(t, want, buf.String())
}

func TestJSON(t *testing.T) {
	var buf bytes.Buffer
	h := NewJSONOutputHandler(&buf)
	d := testDocument(t)
	require.NoError(t, h.HandleDocument(d))
	require.NoError(t, h.Close())

	var got sbom.Document
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, d.SerialNumber, got.SerialNumber)
	assert.Equal(t, d.Unresolved, got.Unresolved)
	assert.Len(t, got.Components, len(d.Components))
}
