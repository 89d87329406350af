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

package coordinate

import (
	"fmt"
	"strings"
)

// Scope says when a dependency is needed. Scopes are ordered from the
// strongest (Runtime) to the weakest (Optional).
type Scope string

const (
	Runtime  Scope = "runtime"
	Build    Scope = "build"
	Test     Scope = "test"
	Optional Scope = "optional"
)

var scopeRank = map[Scope]int{
	Runtime:  0,
	Build:    1,
	Test:     2,
	Optional: 3,
}

// ParseScope maps ecosystem scope names onto Scope. Maven "compile" and npm
// "dependencies" are runtime; "provided", "system" and "dev" are build or
// test dependencies. An empty string is Runtime.
func ParseScope(s string) (Scope, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "runtime", "compile", "required", "prod", "production":
		return Runtime, nil
	case "build", "provided", "system", "import", "dev", "development":
		return Build, nil
	case "test":
		return Test, nil
	case "optional", "excluded":
		return Optional, nil
	}
	return Runtime, fmt.Errorf("unknown scope %q", s)
}

// Rank orders scopes; lower is stronger. Unknown scopes rank as Runtime.
func (s Scope) Rank() int {
	return scopeRank[s]
}

// Stronger returns the stronger of two scopes.
func Stronger(a, b Scope) Scope {
	if b.Rank() < a.Rank() {
		return b
	}
	return a
}

// Weaker returns the weaker of two scopes.
func Weaker(a, b Scope) Scope {
	if b.Rank() > a.Rank() {
		return b
	}
	return a
}

// Inherit returns the effective scope of a child declared with scope child
// under a parent with scope parent.
func Inherit(parent, child Scope) Scope {
	if child == "" {
		child = Runtime
	}
	if parent == "" {
		return child
	}
	return Weaker(parent, child)
}

// Declaration is one requested dependency: a coordinate, the scope it was
// requested in and the licenses declared for it.
type Declaration struct {
	Coordinate Coordinate
	Scope      Scope
	Licenses   []string
}
