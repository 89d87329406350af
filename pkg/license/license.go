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

// Package license detects license incompatibilities along dependency edges.
package license

import (
	"cmp"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/samber/lo"

	"github.com/venslabs/depgraph/pkg/coordinate"
	"github.com/venslabs/depgraph/pkg/graph"
)

// Kind classifies a collision.
type Kind string

const (
	// Copyleft: the child is under a strong copyleft license the parent
	// license does not satisfy.
	Copyleft Kind = "copyleft"
	// WeakCopyleft: a weak copyleft library pulls in a child under another
	// license.
	WeakCopyleft Kind = "weak-copyleft"
	// Incompatible: the pair is known not to combine.
	Incompatible Kind = "incompatible"
)

var copyleft = []string{
	"GPL-3.0-only", "GPL-3.0-or-later",
	"GPL-2.0-only", "GPL-2.0-or-later",
	"GPL-1.0-only", "GPL-1.0-or-later",
	"AGPL-3.0-only", "AGPL-3.0-or-later",
	"EPL-1.0", "MPL-2.0", "NGPL", "Ms-RL", "ODbL",
	"RPL-1.5", "RPSL-1.0", "OCLC-2.0",
}

var weakCopyleft = []string{
	"LGPL-3.0-only", "LGPL-3.0-or-later",
	"LGPL-2.1-only", "LGPL-2.1-or-later",
	"LGPL-2.0-only", "LGPL-2.0-or-later",
	"MPL-1.1", "CPL-1.0", "CDDL-1.0", "YPL-1.1", "SPL-1.0", "Nokia", "APL-1.0",
}

// gplFamily groups GPL licenses that may be combined with each other.
var gplFamily = map[string]string{
	"GPL-1.0-only":      "gpl1",
	"GPL-1.0-or-later":  "gpl1",
	"GPL-2.0-only":      "gpl2",
	"GPL-2.0-or-later":  "gpl2",
	"GPL-3.0-only":      "gpl3",
	"GPL-3.0-or-later":  "gpl3",
	"AGPL-3.0-only":     "gpl3",
	"AGPL-3.0-or-later": "gpl3",
}

// Deprecated SPDX ids and common spellings.
var aliases = map[string]string{
	"GPL-2.0":                         "GPL-2.0-only",
	"GPL-2.0+":                        "GPL-2.0-or-later",
	"GPL-3.0":                         "GPL-3.0-only",
	"GPL-3.0+":                        "GPL-3.0-or-later",
	"LGPL-2.1":                        "LGPL-2.1-only",
	"LGPL-2.1+":                       "LGPL-2.1-or-later",
	"LGPL-3.0":                        "LGPL-3.0-only",
	"LGPL-3.0+":                       "LGPL-3.0-or-later",
	"AGPL-3.0":                        "AGPL-3.0-only",
	"APACHE-2.0":                      "Apache-2.0",
	"APACHE 2.0":                      "Apache-2.0",
	"THE APACHE LICENSE, VERSION 2.0": "Apache-2.0",
	"MIT LICENSE":                     "MIT",
}

// Canonical returns the SPDX id of a license id or common spelling.
func Canonical(id string) string {
	id = strings.TrimSpace(id)
	if c, ok := aliases[strings.ToUpper(id)]; ok {
		return c
	}
	return id
}

// Collision is one incompatible license pair on a dependency edge.
type Collision struct {
	Parent        coordinate.Identity `json:"parent"`
	ParentLicense string              `json:"parentLicense"`
	Child         coordinate.Identity `json:"child"`
	ChildLicense  string              `json:"childLicense"`
	Kind          Kind                `json:"kind"`
	Cause         string              `json:"cause"`
}

func (c Collision) String() string {
	return fmt.Sprintf("%s (%s) -> %s (%s): %s", c.Parent, c.ParentLicense, c.Child, c.ChildLicense, c.Cause)
}

// Check compares the license of a parent with the license of one of its
// dependencies. application is set when the parent is the analyzed project
// itself rather than a library. It returns false when the pair is
// compatible or when either license is unknown.
func Check(parent, child string, application bool) (Kind, string, bool) {
	parent, child = Canonical(parent), Canonical(child)
	if parent == "" || child == "" || parent == child {
		return "", "", false
	}
	pf, pGPL := gplFamily[parent]
	cf, cGPL := gplFamily[child]
	switch {
	case pGPL && cGPL:
		if pf != cf && !strings.HasSuffix(child, "-or-later") && !strings.HasSuffix(parent, "-or-later") {
			return Incompatible, fmt.Sprintf("%s cannot be combined with %s", child, parent), true
		}
		return "", "", false
	case child == "Apache-2.0" && (pf == "gpl1" || pf == "gpl2"):
		return Incompatible, fmt.Sprintf("Apache-2.0 is not compatible with %s", parent), true
	case slices.Contains(copyleft, child) && !slices.Contains(copyleft, parent):
		return Copyleft, fmt.Sprintf("child license %s is copyleft, parent license %s is not", child, parent), true
	case !application && slices.Contains(weakCopyleft, parent) && !slices.Contains(weakCopyleft, child) && !slices.Contains(copyleft, child):
		return WeakCopyleft, fmt.Sprintf("parent license %s is weak copyleft, child license %s is not", parent, child), true
	}
	return "", "", false
}

type options struct {
	project *coordinate.Declaration
}

type Option func(*options)

// WithProject checks the licenses of the analyzed project against the roots
// of the graph.
func WithProject(d coordinate.Declaration) Option {
	return func(o *options) { o.project = &d }
}

// Detect walks every edge of g and returns the incompatible license pairs,
// sorted. Failed nodes and back edges are skipped.
func Detect(g *graph.Graph, opts ...Option) []Collision {
	var o options
	for _, f := range opts {
		f(&o)
	}

	var out []Collision
	if o.project != nil {
		pid := o.project.Coordinate.Identity()
		for _, r := range g.Roots() {
			n, ok := g.Node(r)
			if !ok || n.Status == graph.Failed {
				continue
			}
			out = append(out, pairs(pid, o.project.Licenses, n, true)...)
		}
	}
	for _, e := range g.Edges() {
		if e.Back {
			continue
		}
		p, pok := g.Node(e.Parent)
		c, cok := g.Node(e.Child)
		if !pok || !cok || p.Status == graph.Failed || c.Status == graph.Failed {
			continue
		}
		out = append(out, pairs(p.Identity(), p.Licenses, c, false)...)
	}
	out = lo.Uniq(out)
	SortCollisions(out)
	if len(out) > 0 {
		slog.Info("License collisions detected", "count", len(out))
	}
	return out
}

func pairs(parent coordinate.Identity, licenses []string, child *graph.Node, application bool) []Collision {
	var out []Collision
	for _, pl := range licenses {
		for _, cl := range child.Licenses {
			kind, cause, ok := Check(pl, cl, application)
			if !ok {
				continue
			}
			out = append(out, Collision{
				Parent:        parent,
				ParentLicense: Canonical(pl),
				Child:         child.Identity(),
				ChildLicense:  Canonical(cl),
				Kind:          kind,
				Cause:         cause,
			})
		}
	}
	return out
}

// SortCollisions orders collisions by parent, child, then licenses.
func SortCollisions(c []Collision) {
	slices.SortFunc(c, func(a, b Collision) int {
		return cmp.Or(
			cmp.Compare(a.Parent, b.Parent),
			cmp.Compare(a.Child, b.Child),
			cmp.Compare(a.ParentLicense, b.ParentLicense),
			cmp.Compare(a.ChildLicense, b.ChildLicense),
		)
	})
}
