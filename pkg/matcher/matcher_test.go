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

package matcher

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/venslabs/depgraph/pkg/advisory"
	"github.com/venslabs/depgraph/pkg/advisory/memstore"
	"github.com/venslabs/depgraph/pkg/coordinate"
	"github.com/venslabs/depgraph/pkg/graph"
	"github.com/venslabs/depgraph/pkg/purl"
	"github.com/venslabs/depgraph/pkg/scorer"
	"github.com/venslabs/depgraph/pkg/versionrange"
)

func ranges(t *testing.T, expr string) []versionrange.Range {
	t.Helper()
	r, err := versionrange.ParseAll(expr)
	require.NoError(t, err)
	return r
}

func TestMatch(t *testing.T) {
	store := memstore.New(
		advisory.Keyed{Key: "pkg:npm/libx", Advisory: advisory.Advisory{ID: "ADV-2", Affected: ranges(t, ">=1.0.0,<2.0.0")}},
		advisory.Keyed{Key: "pkg:npm/libx", Advisory: advisory.Advisory{ID: "ADV-1", Affected: ranges(t, "[1.5.0,1.6.0)")}},
		advisory.Keyed{Key: "pkg:npm/libx", Advisory: advisory.Advisory{ID: "ADV-3"}},
	)

	tests := []struct {
		version string
		want    []string
	}{
		{"1.5.0", []string{"ADV-1", "ADV-2"}},
		{"1.0.0", []string{"ADV-2"}},
		{"2.0.0", nil},
		{"0.9.0", nil},
	}
	for _, tt := range tests {
		t.Run(tt.version, func(t *testing.T) {
			c := coordinate.Coordinate{Ecosystem: "npm", Name: "libx", Version: tt.version}
			got, err := Match(context.Background(), purl.Normalize(c), "npm", tt.version, store)
			require.NoError(t, err)
			var ids []string
			for _, a := range got {
				ids = append(ids, a.ID)
			}
			assert.Equal(t, tt.want, ids)
		})
	}
}

func TestMatchCPEAliasDeduplicates(t *testing.T) {
	c := coordinate.Coordinate{Ecosystem: "maven", Namespace: "org.acme", Name: "libx", Version: "1.5.0"}
	id := purl.Normalize(c)
	require.NotEmpty(t, id.CPE)

	adv := advisory.Advisory{ID: "CVE-2024-0001", Affected: ranges(t, "[1.0,2.0)")}
	store := memstore.New(
		advisory.Keyed{Key: id.Key, Advisory: adv},
		advisory.Keyed{Key: id.CPE, Advisory: adv},
		advisory.Keyed{Key: id.CPE, Advisory: advisory.Advisory{ID: "CVE-2024-0002", Affected: ranges(t, "1.5.0")}},
	)
	got, err := Match(context.Background(), id, "maven", "1.5.0", store)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "CVE-2024-0001", got[0].ID)
	assert.Equal(t, "CVE-2024-0002", got[1].ID)
}

func TestMatchIndeterminate(t *testing.T) {
	store := advisory.StoreFunc(func(ctx context.Context, key string) ([]advisory.Advisory, error) {
		return nil, fmt.Errorf("%w: connection refused", advisory.ErrUnavailable)
	})
	c := coordinate.Coordinate{Ecosystem: "npm", Name: "libx", Version: "1.0.0"}
	got, err := Match(context.Background(), purl.Normalize(c), "npm", "1.0.0", store)
	assert.Nil(t, got)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrLookupIndeterminate)
	assert.ErrorIs(t, err, advisory.ErrUnavailable)

	var ie *IndeterminateError
	require.True(t, errors.As(err, &ie))
	assert.Equal(t, "pkg:npm/libx", ie.Key)
}

func buildFlat(t *testing.T, names ...string) *graph.Graph {
	t.Helper()
	var roots []coordinate.Declaration
	for _, n := range names {
		roots = append(roots, coordinate.Declaration{Coordinate: coordinate.Coordinate{Ecosystem: "npm", Name: n, Version: "1.0.0"}})
	}
	g, err := graph.Build(context.Background(), roots, graph.ResolverFunc(func(context.Context, coordinate.Coordinate) ([]coordinate.Declaration, error) {
		return nil, nil
	}))
	require.NoError(t, err)
	return g
}

func TestMatchGraphOneUnavailable(t *testing.T) {
	var names []string
	for i := range 10 {
		names = append(names, fmt.Sprintf("pkg%d", i))
	}
	g := buildFlat(t, names...)

	vulnerable := advisory.Advisory{ID: "ADV", Affected: ranges(t, "<2.0.0"), SeverityVector: "CVSS:3.1/AV:N/AC:L/PR:N/UI:N/S:U/C:H/I:H/A:H"}
	store := advisory.StoreFunc(func(ctx context.Context, key string) ([]advisory.Advisory, error) {
		if key == "pkg:npm/pkg7" {
			return nil, advisory.ErrUnavailable
		}
		return []advisory.Advisory{vulnerable}, nil
	})

	res := MatchGraph(context.Background(), g, store, WithConcurrency(3))
	require.Len(t, res.Nodes, 10)
	assert.Equal(t, []coordinate.Identity{"npm:pkg7"}, res.Indeterminate())
	for _, n := range res.Nodes {
		if n.Identity == "npm:pkg7" {
			assert.Empty(t, n.Advisories)
			assert.NotEmpty(t, n.Err)
			continue
		}
		assert.False(t, n.Indeterminate)
		require.Len(t, n.Advisories, 1, n.Identity)
	}

	findings := Findings(res, scorer.New())
	assert.Len(t, findings, 9)
	assert.Equal(t, scorer.Critical, findings[0].Score.Band)
}

func TestMatchGraphCanceled(t *testing.T) {
	g := buildFlat(t, "a", "b")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res := MatchGraph(ctx, g, memstore.New())
	assert.Equal(t, []coordinate.Identity{"npm:a", "npm:b"}, res.Indeterminate())
}

func TestMatchGraphSkipsFailedNodes(t *testing.T) {
	roots := []coordinate.Declaration{{Coordinate: coordinate.Coordinate{Ecosystem: "npm", Name: "app", Version: "1.0.0"}}}
	g, err := graph.Build(context.Background(), roots, graph.ResolverFunc(func(_ context.Context, c coordinate.Coordinate) ([]coordinate.Declaration, error) {
		if c.Name == "app" {
			return []coordinate.Declaration{{Coordinate: coordinate.Coordinate{Ecosystem: "npm", Name: "broken", Version: "1.0.0"}}}, nil
		}
		return nil, graph.ErrUnresolvable
	}))
	require.NoError(t, err)

	res := MatchGraph(context.Background(), g, memstore.New())
	require.Len(t, res.Nodes, 1)
	assert.Equal(t, coordinate.Identity("npm:app"), res.Nodes[0].Identity)
}
