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

package snapshot

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/venslabs/depgraph/pkg/coordinate"
	"github.com/venslabs/depgraph/pkg/graph"
	"github.com/venslabs/depgraph/pkg/sbom"
)

func document(t *testing.T, version string, at time.Time) *sbom.Document {
	t.Helper()
	root := coordinate.Declaration{Coordinate: coordinate.Coordinate{Ecosystem: "npm", Name: "a", Version: version}}
	g, err := graph.Build(context.Background(), []coordinate.Declaration{root}, graph.ResolverFunc(
		func(context.Context, coordinate.Coordinate) ([]coordinate.Declaration, error) { return nil, nil }))
	require.NoError(t, err)
	return sbom.Assemble(g, nil, sbom.WithTimestamp(at))
}

func TestStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snapshots.db")
	s, err := Open(path)
	require.NoError(t, err)

	t0 := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	first, err := s.Save("app", document(t, "1.0.0", t0))
	require.NoError(t, err)
	assert.Equal(t, "00000001", first.ID)
	assert.Equal(t, 1, first.Components)

	_, err = s.Save("other", document(t, "1.0.0", t0))
	require.NoError(t, err)
	second, err := s.Save("app", document(t, "2.0.0", t0.Add(time.Hour)))
	require.NoError(t, err)
	assert.Equal(t, "00000003", second.ID)

	entries, err := s.List()
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, []string{"app", "other", "app"}, []string{entries[0].Name, entries[1].Name, entries[2].Name})

	latest, err := s.Latest("app")
	require.NoError(t, err)
	assert.Equal(t, second.ID, latest.ID)
	_, err = s.Latest("missing")
	assert.ErrorIs(t, err, ErrNotFound)

	d, err := s.Get("1")
	require.NoError(t, err)
	assert.Equal(t, first.SerialNumber, d.SerialNumber)
	assert.Equal(t, "1.0.0", d.Components[0].Coordinate.Version)

	_, err = s.Get("42")
	assert.ErrorIs(t, err, ErrNotFound)

	// survives a reopen
	require.NoError(t, s.Close())
	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close() //nolint:errcheck
	d, err = s.Get(second.ID)
	require.NoError(t, err)
	assert.Equal(t, "2.0.0", d.Components[0].Coordinate.Version)

	delta := sbom.Diff(mustGet(t, s, first.ID), d)
	assert.Equal(t, []sbom.Change{{Identity: "npm:a", From: "1.0.0", To: "2.0.0"}}, delta.Changed)
}

func mustGet(t *testing.T, s *Store, id string) *sbom.Document {
	t.Helper()
	d, err := s.Get(id)
	require.NoError(t, err)
	return d
}
