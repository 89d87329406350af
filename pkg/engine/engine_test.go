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

package engine

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/venslabs/depgraph/pkg/advisory"
	"github.com/venslabs/depgraph/pkg/advisory/memstore"
	"github.com/venslabs/depgraph/pkg/config"
	"github.com/venslabs/depgraph/pkg/coordinate"
	"github.com/venslabs/depgraph/pkg/graph"
	"github.com/venslabs/depgraph/pkg/manifest"
	"github.com/venslabs/depgraph/pkg/metrics"
	"github.com/venslabs/depgraph/pkg/scorer"
	"github.com/venslabs/depgraph/pkg/versionrange"
)

var fixedTime = time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)

func npm(name, version string) coordinate.Coordinate {
	return coordinate.Coordinate{Ecosystem: "npm", Name: name, Version: version}
}

func decl(name, version string, licenses ...string) coordinate.Declaration {
	return coordinate.Declaration{Coordinate: npm(name, version), Licenses: licenses}
}

func testResolver() *manifest.StaticResolver {
	return manifest.NewStaticResolver(map[coordinate.Coordinate][]coordinate.Declaration{
		npm("web", "1.0.0"):      {decl("lodash", "4.17.20"), decl("gpl-lib", "1.0.0", "GPL-3.0-only")},
		npm("lodash", "4.17.20"): nil,
		npm("gpl-lib", "1.0.0"):  nil,
	})
}

func testStore() *memstore.Store {
	return memstore.New(advisory.Keyed{Key: "pkg:npm/lodash", Advisory: advisory.Advisory{
		ID:             "GHSA-35jh-r3h4-6jhm",
		Aliases:        []string{"CVE-2021-23337"},
		Affected:       []versionrange.Range{versionrange.FromEvents("0", "4.17.21", "")},
		SeverityVector: "CVSS:3.1/AV:N/AC:L/PR:H/UI:N/S:U/C:H/I:H/A:H",
	}})
}

func TestAnalyze(t *testing.T) {
	m := metrics.New()
	subject := decl("app", "1.0.0", "MIT")
	subject.Coordinate.Type = coordinate.Application
	e := New(testResolver(), testStore(), WithClock(func() time.Time { return fixedTime }), WithMetrics(m))

	res, err := e.Analyze(context.Background(), Request{
		Roots:   []coordinate.Declaration{decl("web", "1.0.0", "MIT")},
		Subject: &subject,
	})
	require.NoError(t, err)

	assert.Equal(t, 3, res.Graph.Len())
	require.Len(t, res.Findings, 1)
	assert.Equal(t, "GHSA-35jh-r3h4-6jhm", res.Findings[0].Advisory.ID)
	assert.Equal(t, scorer.High, res.Findings[0].Score.Band)

	d := res.Document
	assert.True(t, d.Timestamp.Equal(fixedTime))
	require.NotNil(t, d.Subject)
	assert.Equal(t, "app", d.Subject.Coordinate.Name)
	assert.Len(t, d.Components, 3)
	assert.Empty(t, d.Unresolved)
	assert.Empty(t, d.Indeterminate)
	assert.NotEmpty(t, d.LicenseCollisions)

	assert.True(t, Exceeds(d, scorer.High))
	assert.False(t, Exceeds(d, scorer.Critical))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Findings.WithLabelValues("high")))
}

func TestAnalyzeOverrides(t *testing.T) {
	s := scorer.New(scorer.WithOverrides(map[string]string{
		"CVE-2021-23337": "CVSS:3.1/AV:N/AC:L/PR:N/UI:N/S:U/C:H/I:H/A:H",
	}))
	e := New(testResolver(), testStore(), WithScorer(s))
	res, err := e.Analyze(context.Background(), Request{Roots: []coordinate.Declaration{decl("web", "1.0.0")}})
	require.NoError(t, err)
	require.Len(t, res.Findings, 1)
	assert.Equal(t, scorer.Critical, res.Findings[0].Score.Band)
	assert.Nil(t, res.Document.Subject)
}

func TestAnalyzeIndeterminate(t *testing.T) {
	store := advisory.StoreFunc(func(context.Context, string) ([]advisory.Advisory, error) {
		return nil, advisory.ErrUnavailable
	})
	e := New(testResolver(), store)
	res, err := e.Analyze(context.Background(), Request{Roots: []coordinate.Declaration{decl("web", "1.0.0")}})
	require.NoError(t, err)
	assert.Empty(t, res.Findings)
	assert.Len(t, res.Document.Indeterminate, 3)
	// no scored finding, but failed lookups still trip every band
	_, ok := res.Document.MaxBand()
	assert.False(t, ok)
	assert.True(t, Exceeds(res.Document, scorer.Critical))
	assert.True(t, Exceeds(res.Document, scorer.None))
}

func TestAnalyzeInvalidRoots(t *testing.T) {
	e := New(testResolver(), testStore())
	_, err := e.Analyze(context.Background(), Request{})
	assert.Error(t, err)
}

func TestAnalyzeTimeout(t *testing.T) {
	resolver := graph.ResolverFunc(func(ctx context.Context, c coordinate.Coordinate) ([]coordinate.Declaration, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	e := New(resolver, testStore(), WithTimeout(10*time.Millisecond))
	res, err := e.Analyze(context.Background(), Request{Roots: []coordinate.Declaration{decl("web", "1.0.0")}})
	require.NoError(t, err)
	assert.Len(t, res.Document.Unresolved, 1)
}

func TestFromConfig(t *testing.T) {
	c, err := config.Parse([]byte("concurrency: 2\nexcludeScopes: [test]\ncpeAliases: false\nvectors:\n  CVE-2021-23337: \"CVSS:3.1/AV:N/AC:L/PR:N/UI:N/S:U/C:H/I:H/A:H\"\n"))
	require.NoError(t, err)
	opts, err := FromConfig(c)
	require.NoError(t, err)

	e := New(testResolver(), testStore(), opts...)
	assert.Equal(t, 2, e.concurrency)
	assert.False(t, e.cpe)
	assert.Equal(t, []coordinate.Scope{coordinate.Test}, e.excludeScopes)

	res, err := e.Analyze(context.Background(), Request{Roots: []coordinate.Declaration{decl("web", "1.0.0")}})
	require.NoError(t, err)
	require.Len(t, res.Findings, 1)
	assert.Equal(t, scorer.Critical, res.Findings[0].Score.Band)
}

func TestOpenStore(t *testing.T) {
	testCases := []struct {
		name    string
		cfg     config.Store
		wantErr bool
	}{
		{name: "osvdir", cfg: config.Store{Kind: config.StoreOSVDir, Path: t.TempDir()}},
		{name: "default", cfg: config.Store{Path: t.TempDir()}},
		{name: "memory cached", cfg: config.Store{Kind: config.StoreMemory, Cache: true}},
		{name: "osvapi", cfg: config.Store{Kind: config.StoreOSVAPI, URL: "http://127.0.0.1:1"}},
		{name: "sqlite", cfg: config.Store{Kind: config.StoreSQLite, Path: filepath.Join(t.TempDir(), "db.sqlite")}},
		{name: "unknown", cfg: config.Store{Kind: "redis"}, wantErr: true},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			store, closer, err := OpenStore(tc.cfg)
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.NotNil(t, store)
			assert.NoError(t, closer.Close())
		})
	}
}

func TestOpenStoreMemoryEmpty(t *testing.T) {
	store, _, err := OpenStore(config.Store{Kind: config.StoreMemory})
	require.NoError(t, err)
	list, err := store.Lookup(context.Background(), "pkg:npm/lodash")
	require.NoError(t, err)
	assert.Empty(t, list)
	assert.False(t, errors.Is(err, advisory.ErrUnavailable))
}
