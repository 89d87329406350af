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

package sbom

import (
	"slices"

	"github.com/venslabs/depgraph/pkg/coordinate"
)

// Change is a component present in both documents with different versions.
type Change struct {
	Identity coordinate.Identity `json:"identity"`
	From     string              `json:"from"`
	To       string              `json:"to"`
}

// Delta is the difference between two documents. NewFindings lists, per
// identity, the advisory IDs found in the newer document only.
type Delta struct {
	Added       []Component                      `json:"added,omitempty"`
	Removed     []Component                      `json:"removed,omitempty"`
	Changed     []Change                         `json:"changed,omitempty"`
	NewFindings map[coordinate.Identity][]string `json:"newFindings,omitempty"`
}

// Empty reports whether the documents have the same components, versions
// and findings.
func (d Delta) Empty() bool {
	return len(d.Added) == 0 && len(d.Removed) == 0 && len(d.Changed) == 0 && len(d.NewFindings) == 0
}

// Diff compares document a (older) with b (newer).
func Diff(a, b *Document) Delta {
	var delta Delta
	for _, cb := range b.Components {
		ca, ok := a.Component(cb.Identity)
		switch {
		case !ok:
			delta.Added = append(delta.Added, cb)
		case ca.Coordinate.Version != cb.Coordinate.Version:
			delta.Changed = append(delta.Changed, Change{Identity: cb.Identity, From: ca.Coordinate.Version, To: cb.Coordinate.Version})
		}
	}
	for _, ca := range a.Components {
		if _, ok := b.Component(ca.Identity); !ok {
			delta.Removed = append(delta.Removed, ca)
		}
	}

	old := make(map[coordinate.Identity][]string)
	for _, fs := range a.Findings {
		for _, f := range fs.Findings {
			old[fs.Identity] = append(old[fs.Identity], f.Advisory.ID)
		}
	}
	for _, fs := range b.Findings {
		for _, f := range fs.Findings {
			if slices.Contains(old[fs.Identity], f.Advisory.ID) {
				continue
			}
			if delta.NewFindings == nil {
				delta.NewFindings = make(map[coordinate.Identity][]string)
			}
			delta.NewFindings[fs.Identity] = append(delta.NewFindings[fs.Identity], f.Advisory.ID)
		}
	}
	return delta
}
