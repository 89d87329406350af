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
	"strings"

	"github.com/venslabs/depgraph/pkg/coordinate"
	"github.com/venslabs/depgraph/pkg/graph"
	"github.com/venslabs/depgraph/pkg/sbom"
)

type treeOutputHandler struct {
	w    io.Writer
	docs []*sbom.Document
}

// NewTreeOutputHandler prints the dependency tree, one component per line,
// indented by depth. A component already printed is shown again with "(*)"
// and not expanded; an edge closing a cycle is marked "(cycle)".
func NewTreeOutputHandler(w io.Writer) OutputHandler {
	return &treeOutputHandler{w: w}
}

func (h *treeOutputHandler) HandleDocument(d *sbom.Document) error {
	h.docs = append(h.docs, d)
	return nil
}

func (h *treeOutputHandler) Close() error {
	for _, d := range h.docs {
		if err := WriteTree(h.w, d); err != nil {
			return err
		}
	}
	return nil
}

// WriteTree writes the tree of d to w.
func WriteTree(w io.Writer, d *sbom.Document) error {
	type edge struct {
		child coordinate.Identity
		back  bool
	}
	children := make(map[coordinate.Identity][]edge)
	for _, dep := range d.Dependencies {
		children[dep.Parent] = append(children[dep.Parent], edge{child: dep.Child, back: dep.Back})
	}
	findings := make(map[coordinate.Identity]sbom.FindingSet, len(d.Findings))
	for _, fs := range d.Findings {
		findings[fs.Identity] = fs
	}

	var b strings.Builder
	if d.Subject != nil {
		fmt.Fprintf(&b, "%s\n", d.Subject.PURL)
	}
	printed := make(map[coordinate.Identity]bool)
	var walk func(id coordinate.Identity, depth int, back bool)
	walk = func(id coordinate.Identity, depth int, back bool) {
		c, _ := d.Component(id)
		b.WriteString(strings.Repeat("  ", depth))
		fmt.Fprintf(&b, "%s@%s", id, c.Coordinate.Version)
		if c.Scope != "" && c.Scope != coordinate.Runtime {
			fmt.Fprintf(&b, " [%s]", c.Scope)
		}
		b.WriteString(annotations(c, findings[id]))
		switch {
		case back:
			b.WriteString(" (cycle)\n")
			return
		case printed[id]:
			b.WriteString(" (*)\n")
			return
		}
		b.WriteString("\n")
		printed[id] = true
		for _, e := range children[id] {
			walk(e.child, depth+1, e.back)
		}
	}
	indent := 0
	if d.Subject != nil {
		indent = 1
	}
	for _, r := range d.Roots {
		walk(r, indent, false)
	}
	_, err := io.WriteString(w, b.String())
	return err
}

func annotations(c sbom.Component, fs sbom.FindingSet) string {
	var parts []string
	if c.Overridden {
		parts = append(parts, "overrides "+strings.Join(otherVersions(c), ","))
	}
	if c.Unresolved {
		parts = append(parts, "unresolved: "+c.Reason)
	}
	if c.Status == graph.Pruned {
		parts = append(parts, "not expanded")
	}
	if fs.Indeterminate {
		parts = append(parts, "advisories indeterminate")
	}
	if n := len(fs.Findings); n > 0 {
		parts = append(parts, fmt.Sprintf("%d advisories, max %s", n, fs.Findings[0].Score))
	}
	if len(parts) == 0 {
		return ""
	}
	return " (" + strings.Join(parts, "; ") + ")"
}

func otherVersions(c sbom.Component) []string {
	var out []string
	for _, v := range c.Requested {
		if v != c.Coordinate.Version {
			out = append(out, v)
		}
	}
	return out
}
