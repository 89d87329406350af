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

// Package versioncmp orders version strings per ecosystem.
//
// Every comparator defines an order over all strings, including malformed
// ones:
//   - versions that parse are compared numerically segment by segment, and a
//     pre-release sorts before the release with the same numeric prefix;
//   - versions that do not parse sort after every parsable version and are
//     compared lexicographically among themselves.
//
// Compare reports 0 for semantically equal versions ("1.0" and "1.0.0").
// Callers that need a strict order (picking one winner among requests) use
// Max or Sort, which break such ties lexicographically.
package versioncmp

import (
	"regexp"
	"slices"
	"strings"
	"sync"

	pep440 "github.com/aquasecurity/go-pep440-version"
	"github.com/hashicorp/go-version"
)

// Comparator orders two version strings: negative when a < b, zero when
// equal, positive when a > b.
type Comparator interface {
	Compare(a, b string) int
}

// Semver is the default comparator.
type Semver struct{}

func (Semver) Compare(a, b string) int {
	return compareNormalized(a, b)
}

// Maven understands the release qualifiers used by Maven artifacts:
// "1.0.RELEASE", "1.0.Final" and "1.0.GA" equal "1.0", "-SNAPSHOT" is a
// pre-release and dot-separated qualifiers ("1.0.RC1") are pre-releases.
type Maven struct{}

var (
	mavenReleaseSuffix = regexp.MustCompile(`(?i)[.-](release|final|ga)$`)
	mavenDotQualifier  = regexp.MustCompile(`\.([A-Za-z])`)
)

func (Maven) Compare(a, b string) int {
	return compareNormalized(normalizeMaven(a), normalizeMaven(b))
}

func normalizeMaven(v string) string {
	v = mavenReleaseSuffix.ReplaceAllString(v, "")
	return mavenDotQualifier.ReplaceAllString(v, "-$1")
}

// Go strips the "+incompatible" marker of pre-module major versions.
type Go struct{}

func (Go) Compare(a, b string) int {
	return compareNormalized(strings.TrimSuffix(a, "+incompatible"), strings.TrimSuffix(b, "+incompatible"))
}

// PyPI follows PEP 440: "1.0.dev1" < "1.0rc1" < "1.0" < "1.0.post1" < "1.1".
// Strings PEP 440 rejects fall back to the shared unparsable order.
type PyPI struct{}

func (PyPI) Compare(a, b string) int {
	va, errA := pep440.Parse(a)
	vb, errB := pep440.Parse(b)
	switch {
	case errA == nil && errB == nil:
		return va.Compare(vb)
	case errA == nil:
		return -1
	case errB == nil:
		return 1
	default:
		return strings.Compare(a, b)
	}
}

func compareNormalized(a, b string) int {
	va, errA := version.NewVersion(a)
	vb, errB := version.NewVersion(b)
	switch {
	case errA == nil && errB == nil:
		return va.Compare(vb)
	case errA == nil:
		return -1
	case errB == nil:
		return 1
	default:
		return strings.Compare(a, b)
	}
}

// Valid reports whether v parses as a semantic version.
func Valid(v string) bool {
	_, err := version.NewVersion(v)
	return err == nil
}

var (
	mu       sync.RWMutex
	registry = map[string]Comparator{
		"maven":  Maven{},
		"golang": Go{},
		"pypi":   PyPI{},
	}
)

// Register installs the comparator used for an ecosystem.
func Register(ecosystem string, c Comparator) {
	mu.Lock()
	defer mu.Unlock()
	registry[strings.ToLower(ecosystem)] = c
}

// For returns the comparator for an ecosystem, defaulting to Semver.
func For(ecosystem string) Comparator {
	mu.RLock()
	defer mu.RUnlock()
	if c, ok := registry[strings.ToLower(ecosystem)]; ok {
		return c
	}
	return Semver{}
}

// Strict orders a and b with c and breaks ties lexicographically, so two
// distinct strings never compare equal.
func Strict(c Comparator, a, b string) int {
	if r := c.Compare(a, b); r != 0 {
		return r
	}
	return strings.Compare(a, b)
}

// Max returns the greatest version under Strict. It returns "" for an empty
// input. The result does not depend on the order of vs.
func Max(c Comparator, vs ...string) string {
	if len(vs) == 0 {
		return ""
	}
	best := vs[0]
	for _, v := range vs[1:] {
		if Strict(c, v, best) > 0 {
			best = v
		}
	}
	return best
}

// Sort sorts vs in ascending order under Strict.
func Sort(c Comparator, vs []string) {
	slices.SortFunc(vs, func(a, b string) int { return Strict(c, a, b) })
}
