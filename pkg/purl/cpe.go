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

package purl

import (
	"strings"

	"github.com/package-url/packageurl-go"

	"github.com/venslabs/depgraph/pkg/coordinate"
)

// Ecosystems whose advisories are commonly published against CPE names
// (NVD) rather than package names.
var cpeEcosystems = map[string]bool{
	packageurl.TypeMaven:   true,
	packageurl.TypeGeneric: true,
	packageurl.TypeConan:   true,
	packageurl.TypeNuget:   true,
}

func needsCPE(eco string) bool { return cpeEcosystems[eco] }

// Reverse-DNS prefixes skipped when deriving a vendor from a Java group.
var groupPrefixes = map[string]bool{
	"org": true, "com": true, "net": true, "io": true, "dev": true, "de": true, "fr": true,
}

// CPE returns the CPE 2.3 formatted string of a coordinate's application:
//
//	cpe:2.3:a:<vendor>:<product>:<version>:*:*:*:*:*:*:*
//
// The vendor is taken from the namespace: the first segment after a
// reverse-DNS prefix for dotted groups (org.apache.logging.log4j -> apache),
// otherwise the last path segment. With no namespace the product name is
// also used as the vendor.
func CPE(c coordinate.Coordinate) string {
	product := cpeEscape(c.Name)
	vendor := product
	if v := vendorOf(c.Namespace); v != "" {
		vendor = cpeEscape(v)
	}
	version := "*"
	if c.Version != "" {
		version = cpeEscape(c.Version)
	}
	return strings.Join([]string{"cpe", "2.3", "a", vendor, product, version, "*", "*", "*", "*", "*", "*", "*"}, ":")
}

func vendorOf(namespace string) string {
	if namespace == "" {
		return ""
	}
	segs := strings.Split(namespace, "/")
	last := segs[len(segs)-1]
	if !strings.Contains(last, ".") {
		return last
	}
	parts := strings.Split(last, ".")
	if len(parts) > 1 && groupPrefixes[strings.ToLower(parts[0])] {
		return parts[1]
	}
	return parts[0]
}

// cpeEscape lowercases s, replaces whitespace with '_' and quotes the
// characters that are special in a CPE 2.3 formatted string.
func cpeEscape(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_', r == '-', r == '.':
			b.WriteRune(r)
		case r == ' ' || r == '\t':
			b.WriteByte('_')
		case r < 0x80:
			b.WriteByte('\\')
			b.WriteRune(r)
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}
