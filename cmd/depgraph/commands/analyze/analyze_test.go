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

package analyze

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/venslabs/depgraph/pkg/sbom"
	"github.com/venslabs/depgraph/pkg/snapshot"
)

const testManifest = `project: pkg:maven/org.acme/app@1.0.0
dependencies:
  - purl: pkg:maven/org.acme/libx@1.2.0
    licenses: [Apache-2.0]
packages:
  pkg:maven/org.acme/libx@1.2.0:
    - purl: pkg:maven/org.acme/liby@2.0.0
  pkg:maven/org.acme/liby@2.0.0: []
`

const testAdvisory = `{
  "id": "GHSA-1234",
  "aliases": ["CVE-2024-0001"],
  "affected": [{
    "package": {"ecosystem": "Maven", "name": "org.acme:libx"},
    "ranges": [{"type": "ECOSYSTEM", "events": [{"introduced": "0"}, {"fixed": "1.5.0"}]}]
  }],
  "severity": [{"type": "CVSS_V3", "score": "CVSS:3.1/AV:N/AC:L/PR:N/UI:N/S:U/C:H/I:H/A:H"}]
}`

type fixture struct {
	dir      string
	manifest string
	osvDir   string
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	dir := t.TempDir()
	f := fixture{dir: dir, manifest: filepath.Join(dir, "manifest.yaml"), osvDir: filepath.Join(dir, "osv")}
	require.NoError(t, os.WriteFile(f.manifest, []byte(testManifest), 0o644))
	require.NoError(t, os.MkdirAll(f.osvDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(f.osvDir, "GHSA-1234.json"), []byte(testAdvisory), 0o644))
	return f
}

func run(args ...string) error {
	cmd := New()
	cmd.SetArgs(args)
	return cmd.ExecuteContext(context.Background())
}

func TestAnalyze(t *testing.T) {
	f := newFixture(t)
	out := filepath.Join(f.dir, "result.json")
	db := filepath.Join(f.dir, "snapshots.db")

	require.NoError(t, run("--store", "osvdir:"+f.osvDir, "--snapshot", db, f.manifest, out))

	b, err := os.ReadFile(out)
	require.NoError(t, err)
	var d sbom.Document
	require.NoError(t, json.Unmarshal(b, &d))
	assert.Len(t, d.Components, 2)
	require.Len(t, d.Findings, 1)
	assert.Equal(t, "GHSA-1234", d.Findings[0].Findings[0].Advisory.ID)
	require.NotNil(t, d.Subject)
	assert.Equal(t, "app", d.Subject.Coordinate.Name)

	s, err := snapshot.Open(db)
	require.NoError(t, err)
	defer s.Close() //nolint:errcheck
	e, err := s.Latest("pkg:maven/org.acme/app@1.0.0")
	require.NoError(t, err)
	assert.Equal(t, 2, e.Components)
	assert.Equal(t, 1, e.Findings)
}

func TestAnalyzeFailOn(t *testing.T) {
	f := newFixture(t)
	cfg := filepath.Join(f.dir, "config.yaml")
	require.NoError(t, os.WriteFile(cfg, []byte("store:\n  kind: osvdir\n  path: "+f.osvDir+"\nfailOn: critical\n"), 0o644))
	out := filepath.Join(f.dir, "bom.cdx.json")

	err := run("--config-file", cfg, f.manifest, out)
	require.ErrorIs(t, err, ErrFailOn)

	// The output is written before failing.
	b, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Contains(t, string(b), "GHSA-1234")
}

func TestAnalyzeSPDX(t *testing.T) {
	f := newFixture(t)
	out := filepath.Join(f.dir, "sbom.spdx.json")
	require.NoError(t, run("--store", "osvdir:"+f.osvDir, f.manifest, out))

	b, err := os.ReadFile(out)
	require.NoError(t, err)
	var doc map[string]any
	require.NoError(t, json.Unmarshal(b, &doc))
	assert.Equal(t, "SPDX-2.3", doc["spdxVersion"])
	assert.Len(t, doc["packages"], 3)
	assert.Contains(t, string(b), "pkg:maven/org.acme/libx@1.2.0")
	assert.Contains(t, string(b), "https://osv.dev/vulnerability/GHSA-1234")
}

func TestAnalyzeFailOnUnavailableStore(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	f := newFixture(t)
	cfg := filepath.Join(f.dir, "config.yaml")
	require.NoError(t, os.WriteFile(cfg, []byte("store:\n  kind: osvapi\n  url: "+srv.URL+"\nfailOn: critical\n"), 0o644))
	out := filepath.Join(f.dir, "result.json")

	err := run("--config-file", cfg, f.manifest, out)
	require.ErrorIs(t, err, ErrFailOn)

	b, err := os.ReadFile(out)
	require.NoError(t, err)
	var d sbom.Document
	require.NoError(t, json.Unmarshal(b, &d))
	assert.Empty(t, d.Findings)
	assert.NotEmpty(t, d.Indeterminate)
}

func TestAnalyzeErrors(t *testing.T) {
	f := newFixture(t)
	out := filepath.Join(f.dir, "out.json")
	testCases := []struct {
		name string
		args []string
	}{
		{name: "missing manifest", args: []string{filepath.Join(f.dir, "missing.yaml"), out}},
		{name: "bad store", args: []string{"--store", "redis", f.manifest, out}},
		{name: "bad output format", args: []string{"--store", "memory", "--output-format", "xml", f.manifest, out}},
		{name: "bad input format", args: []string{"--input-format", "spdx", f.manifest, out}},
		{name: "missing config", args: []string{"--config-file", filepath.Join(f.dir, "none.yaml"), f.manifest, out}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Error(t, run(tc.args...))
		})
	}
}
