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

// Package purl maps coordinates to the identifiers advisory feeds are keyed by.
//
// The full package URL preserves the canonical coordinate exactly, so
// Parse(Normalize(c).PURL) returns c.Canonical() for every coordinate with a
// known type. Type-specific case folding, such as lowercasing npm names, is
// applied to the lookup Key only.
package purl

import (
	"fmt"
	"strings"

	"github.com/package-url/packageurl-go"

	"github.com/venslabs/depgraph/pkg/coordinate"
)

// typeQualifier carries non-library component types.
const typeQualifier = "type"

// NormalizedID holds the identifiers of one coordinate.
type NormalizedID struct {
	// PURL is the full package URL, version included.
	PURL string
	// Key is the version-less package URL without qualifiers. Advisory stores
	// are keyed by it.
	Key string
	// CPE is a CPE 2.3 alias, empty when the ecosystem does not need one.
	CPE string
}

// Keys returns the lookup keys in query order: Key, then the CPE alias if any.
func (n NormalizedID) Keys() []string {
	if n.CPE == "" {
		return []string{n.Key}
	}
	return []string{n.Key, n.CPE}
}

type options struct {
	cpe bool
}

// Option configures Normalize.
type Option func(*options)

// WithCPE enables or disables the CPE alias. Enabled by default.
func WithCPE(enabled bool) Option {
	return func(o *options) { o.cpe = enabled }
}

// Normalize computes the identifiers of c. It is a pure function of c.
func Normalize(c coordinate.Coordinate, opts ...Option) NormalizedID {
	o := options{cpe: true}
	for _, f := range opts {
		f(&o)
	}

	c = c.Canonical()
	eco := ecosystem(c.Ecosystem)
	var q packageurl.Qualifiers
	if c.Type != coordinate.Library {
		q = packageurl.Qualifiers{{Key: typeQualifier, Value: string(c.Type)}}
	}
	full := packageurl.NewPackageURL(eco, c.Namespace, c.Name, c.Version, q, "")

	id := NormalizedID{
		PURL: full.ToString(),
		Key:  versionlessKey(eco, c.Namespace, c.Name),
	}
	if o.cpe && needsCPE(eco) {
		id.CPE = CPE(c)
	}
	return id
}

func ecosystem(e string) string {
	e = strings.ToLower(e)
	if e == "" {
		return packageurl.TypeGeneric
	}
	return e
}

func versionlessKey(eco, namespace, name string) string {
	p := packageurl.NewPackageURL(eco, namespace, name, "", nil, "")
	canonical := *p
	// Normalize applies the purl type rules (case folding, pypi dashes). Types
	// whose rules need qualifiers (conan channels) keep the raw form.
	if err := canonical.Normalize(); err != nil {
		return p.ToString()
	}
	return canonical.ToString()
}

// Parse recovers the coordinate encoded in a package URL.
func Parse(s string) (coordinate.Coordinate, error) {
	rest, ok := strings.CutPrefix(s, "pkg:")
	if !ok {
		return coordinate.Coordinate{}, fmt.Errorf("invalid purl %q: scheme is not \"pkg\"", s)
	}
	rest = strings.TrimLeft(rest, "/")
	typ, path, ok := strings.Cut(rest, "/")
	if !ok || typ == "" {
		return coordinate.Coordinate{}, fmt.Errorf("invalid purl %q: missing type or name", s)
	}
	// Parse under the generic type so FromString does not fold case; the
	// ecosystem is restored afterwards.
	p, err := packageurl.FromString("pkg:" + packageurl.TypeGeneric + "/" + path)
	if err != nil {
		return coordinate.Coordinate{}, fmt.Errorf("invalid purl %q: %w", s, err)
	}

	c := coordinate.Coordinate{
		Ecosystem: typ,
		Namespace: p.Namespace,
		Name:      p.Name,
		Version:   p.Version,
	}
	if t, ok := p.Qualifiers.Map()[typeQualifier]; ok {
		c.Type, err = coordinate.ParseType(t)
		if err != nil {
			return coordinate.Coordinate{}, fmt.Errorf("invalid purl %q: %w", s, err)
		}
	}
	return c.Canonical(), nil
}

// VersionlessKey returns the lookup key of a package URL string: the
// canonical package URL without version, qualifiers or subpath. Strings that
// do not parse are returned with everything after '@' removed.
func VersionlessKey(s string) string {
	c, err := Parse(s)
	if err != nil {
		if i := strings.IndexByte(s, '@'); i >= 0 {
			return s[:i]
		}
		return s
	}
	return versionlessKey(ecosystem(c.Ecosystem), c.Namespace, c.Name)
}

// MustParse is like Parse but panics on error. Intended for tests and
// static tables.
func MustParse(s string) coordinate.Coordinate {
	c, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return c
}
