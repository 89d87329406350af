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

// Package coordinate holds the canonical identity of a software component.
package coordinate

import (
	"fmt"
	"slices"
	"strings"
)

// Type classifies a component. The zero value is Library.
type Type string

const (
	Library     Type = ""
	Application Type = "application"
	Framework   Type = "framework"
	Container   Type = "container"
	File        Type = "file"
)

// Types lists the known component types.
var Types = []Type{Library, Application, Framework, Container, File}

// ParseType accepts the CycloneDX spelling of a component type ("library",
// "application", ...). An empty string is Library.
func ParseType(s string) (Type, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "library":
		return Library, nil
	case "application":
		return Application, nil
	case "framework":
		return Framework, nil
	case "container":
		return Container, nil
	case "file":
		return File, nil
	}
	return Library, fmt.Errorf("unknown component type %q", s)
}

func (t Type) String() string {
	if t == Library {
		return "library"
	}
	return string(t)
}

// GenericEcosystem is used when a coordinate carries no ecosystem.
const GenericEcosystem = "generic"

// Coordinate is an immutable component identity. Equality is structural.
//
// Ecosystem is the package-URL type of the component ("maven", "npm",
// "golang", ...). Namespace may be empty for flat-namespace ecosystems.
type Coordinate struct {
	Ecosystem string
	Namespace string
	Name      string
	Version   string
	Type      Type
}

// Identity is the version-independent key of a component: one node per
// identity exists in a dependency graph.
type Identity string

// Identity returns "<ecosystem>:<namespace>/<name>", or "<ecosystem>:<name>"
// when the namespace is empty.
// The ecosystem and namespace are taken from Canonical, so "Maven" and
// "maven" name the same component.
func (c Coordinate) Identity() Identity {
	c = c.Canonical()
	eco := c.Ecosystem
	if eco == "" {
		eco = GenericEcosystem
	}
	if c.Namespace == "" {
		return Identity(eco + ":" + c.Name)
	}
	return Identity(eco + ":" + c.Namespace + "/" + c.Name)
}

// Canonical returns c with the ecosystem lowercased, the generic ecosystem
// spelled as "", empty namespace segments dropped and the type in its
// canonical spelling. Unknown types are left as given; Validate reports them.
func (c Coordinate) Canonical() Coordinate {
	c.Ecosystem = strings.ToLower(strings.TrimSpace(c.Ecosystem))
	if c.Ecosystem == GenericEcosystem {
		c.Ecosystem = ""
	}
	if strings.Contains(c.Namespace, "/") {
		segs := slices.DeleteFunc(strings.Split(c.Namespace, "/"), func(s string) bool { return s == "" })
		c.Namespace = strings.Join(segs, "/")
	}
	if t, err := ParseType(string(c.Type)); err == nil {
		c.Type = t
	}
	return c
}

// WithVersion returns a copy of c with the version replaced.
func (c Coordinate) WithVersion(v string) Coordinate {
	c.Version = v
	return c
}

// Validate checks the resolved-node invariant: name and version are set,
// the type is known and the namespace has no empty segment.
func (c Coordinate) Validate() error {
	if _, err := ParseType(string(c.Type)); err != nil {
		return fmt.Errorf("coordinate %q: %w", c.String(), err)
	}
	if c.Namespace != "" && slices.Contains(strings.Split(c.Namespace, "/"), "") {
		return fmt.Errorf("coordinate %q: empty namespace segment in %q", c.String(), c.Namespace)
	}
	if strings.TrimSpace(c.Name) == "" {
		return fmt.Errorf("coordinate %q: empty name", c.String())
	}
	if strings.TrimSpace(c.Version) == "" {
		return fmt.Errorf("coordinate %q: empty version", c.String())
	}
	return nil
}

func (c Coordinate) String() string {
	return string(c.Identity()) + "@" + c.Version
}
