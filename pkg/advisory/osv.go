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

package advisory

import (
	"strings"

	"github.com/samber/lo"

	"github.com/venslabs/depgraph/pkg/api/types"
	"github.com/venslabs/depgraph/pkg/coordinate"
	"github.com/venslabs/depgraph/pkg/purl"
	"github.com/venslabs/depgraph/pkg/versionrange"
)

// OSV ecosystem names mapped to package-URL types.
var osvEcosystems = map[string]string{
	"maven":       "maven",
	"npm":         "npm",
	"go":          "golang",
	"pypi":        "pypi",
	"crates.io":   "cargo",
	"nuget":       "nuget",
	"rubygems":    "gem",
	"packagist":   "composer",
	"pub":         "pub",
	"hex":         "hex",
	"conancenter": "conan",
}

// PURLType maps an OSV ecosystem ("Maven", "Go", "crates.io") to a package
// URL type. Unknown ecosystems map to their lowercase name.
func PURLType(osvEcosystem string) string {
	e := strings.ToLower(osvEcosystem)
	// "Debian:11" and friends
	e, _, _ = strings.Cut(e, ":")
	if t, ok := osvEcosystems[e]; ok {
		return t
	}
	return e
}

// KeyForPackage returns the store key of an OSV package: its purl when given,
// otherwise one derived from the ecosystem and name.
func KeyForPackage(p types.OSVPackage) string {
	if p.PURL != "" {
		return purl.VersionlessKey(p.PURL)
	}
	c := coordinate.Coordinate{Ecosystem: PURLType(p.Ecosystem), Name: p.Name}
	switch c.Ecosystem {
	case "maven":
		// group:artifact
		if g, a, ok := strings.Cut(p.Name, ":"); ok {
			c.Namespace, c.Name = g, a
		}
	case "npm", "golang", "composer":
		if i := strings.LastIndex(p.Name, "/"); i > 0 {
			c.Namespace, c.Name = p.Name[:i], p.Name[i+1:]
		}
	}
	return purl.Normalize(c, purl.WithCPE(false)).Key
}

// FromOSV converts an OSV entry into one advisory per affected package.
// GIT ranges are ignored; explicit version lists become exact ranges.
func FromOSV(e types.OSVEntry) []Keyed {
	if !e.Withdrawn.IsZero() {
		return nil
	}
	refs := lo.Uniq(lo.Map(e.References, func(r types.OSVReference, _ int) string { return r.URL }))
	var cwes []string
	if e.DatabaseSpecific != nil {
		cwes = e.DatabaseSpecific.CWEIDs
	}

	var out []Keyed
	for _, aff := range e.Affected {
		a := Advisory{
			ID:             e.ID,
			Aliases:        e.Aliases,
			Kind:           Vulnerability,
			Summary:        e.Summary,
			Description:    e.Details,
			Affected:       rangesFromOSV(aff),
			SeverityVector: pickVector(aff.Severities, e.Severities),
			References:     refs,
			CWEs:           cwes,
			Published:      e.Published,
			Modified:       e.Modified,
		}
		out = append(out, Keyed{Key: KeyForPackage(aff.Package), Advisory: a})
	}
	return out
}

func rangesFromOSV(aff types.OSVAffected) []versionrange.Range {
	var out []versionrange.Range
	for _, r := range aff.Ranges {
		if strings.EqualFold(r.Type, "GIT") {
			continue
		}
		introduced, open := "", false
		for _, ev := range r.Events {
			switch {
			case ev.Introduced != "":
				if open {
					out = append(out, versionrange.FromEvents(introduced, "", ""))
				}
				introduced, open = ev.Introduced, true
			case ev.Fixed != "":
				out = append(out, versionrange.FromEvents(introduced, ev.Fixed, ""))
				open = false
			case ev.LastAffected != "":
				out = append(out, versionrange.FromEvents(introduced, "", ev.LastAffected))
				open = false
			}
		}
		if open {
			out = append(out, versionrange.FromEvents(introduced, "", ""))
		}
	}
	for _, v := range aff.Versions {
		out = append(out, versionrange.ExactVersion(v))
	}
	return out
}

// pickVector prefers CVSS v3 over v2, package-level severities over
// entry-level ones. Vectors of other types are kept as a last resort so the
// scorer can report them as unsupported.
func pickVector(sets ...[]types.OSVSeverity) string {
	for _, want := range []string{"CVSS_V3", "CVSS_V2"} {
		for _, set := range sets {
			for _, s := range set {
				if strings.EqualFold(s.Type, want) && s.Score != "" {
					return s.Score
				}
			}
		}
	}
	for _, set := range sets {
		for _, s := range set {
			if s.Score != "" {
				return s.Score
			}
		}
	}
	return ""
}
