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

package manifest

import (
	"context"
	"fmt"
	"slices"

	"github.com/venslabs/depgraph/pkg/coordinate"
	"github.com/venslabs/depgraph/pkg/graph"
	"github.com/venslabs/depgraph/pkg/purl"
)

// StaticResolver resolves children from a fixed table keyed by
// coordinate. When the table is strict, a coordinate missing from it is
// graph.ErrUnresolvable; otherwise it has no children.
type StaticResolver struct {
	table  map[string][]coordinate.Declaration
	strict bool
}

var _ graph.Resolver = (*StaticResolver)(nil)

// Resolver builds the resolver of m's packages table. A manifest without a
// table lists direct dependencies only, and every coordinate is a leaf.
func (m *Manifest) Resolver() (*StaticResolver, error) {
	r := &StaticResolver{table: make(map[string][]coordinate.Declaration, len(m.Packages)), strict: m.Packages != nil}
	for k, entries := range m.Packages {
		c, err := purl.Parse(k)
		if err != nil {
			return nil, fmt.Errorf("packages: %w", err)
		}
		children := make([]coordinate.Declaration, 0, len(entries))
		for i, e := range entries {
			d, err := e.Declaration()
			if err != nil {
				return nil, fmt.Errorf("packages[%s][%d]: %w", k, i, err)
			}
			children = append(children, d)
		}
		r.table[key(c)] = children
	}
	return r, nil
}

// NewStaticResolver returns a strict resolver over table.
func NewStaticResolver(table map[coordinate.Coordinate][]coordinate.Declaration) *StaticResolver {
	r := &StaticResolver{table: make(map[string][]coordinate.Declaration, len(table)), strict: true}
	for c, children := range table {
		r.table[key(c)] = children
	}
	return r
}

func key(c coordinate.Coordinate) string {
	return c.String()
}

func (r *StaticResolver) ResolveChildren(ctx context.Context, c coordinate.Coordinate) ([]coordinate.Declaration, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	children, ok := r.table[key(c)]
	if !ok {
		if r.strict {
			return nil, fmt.Errorf("%w: %s", graph.ErrUnresolvable, c)
		}
		return nil, nil
	}
	return slices.Clone(children), nil
}

// Len returns the number of coordinates in the table.
func (r *StaticResolver) Len() int {
	return len(r.table)
}
