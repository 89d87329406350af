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

package osvdir

import (
	"context"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/venslabs/depgraph/pkg/advisory"
)

const ghsa = `{
  "id": "GHSA-1234",
  "aliases": ["CVE-2024-0001"],
  "affected": [{
    "package": {"ecosystem": "Maven", "name": "org.acme:libx"},
    "ranges": [{"type": "ECOSYSTEM", "events": [{"introduced": "0"}, {"fixed": "1.5.0"}]}]
  }],
  "severity": [{"type": "CVSS_V3", "score": "CVSS:3.1/AV:N/AC:L/PR:N/UI:N/S:U/C:H/I:H/A:H"}]
}`

func newFs(t *testing.T) afero.Fs {
	t.Helper()
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/db/maven/GHSA-1234.json", []byte(ghsa), 0o644))
	require.NoError(t, afero.WriteFile(fs, "/db/maven/README.md", []byte("ignored"), 0o644))
	require.NoError(t, afero.WriteFile(fs, "/db/npm/broken.json", []byte("{"), 0o644))
	return fs
}

func TestLookup(t *testing.T) {
	s := New("/db", WithFs(newFs(t)))
	got, err := s.Lookup(context.Background(), "pkg:maven/org.acme/libx")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "GHSA-1234", got[0].ID)
	assert.Equal(t, []string{"CVE-2024-0001"}, got[0].Aliases)

	all, err := s.All(context.Background())
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestStrict(t *testing.T) {
	s := New("/db", WithFs(newFs(t)), WithStrict(true))
	_, err := s.Lookup(context.Background(), "pkg:maven/org.acme/libx")
	require.Error(t, err)
	assert.ErrorIs(t, err, advisory.ErrUnavailable)
}

func TestMissingDirectory(t *testing.T) {
	s := New("/nope", WithFs(afero.NewMemMapFs()))
	_, err := s.Lookup(context.Background(), "pkg:npm/a")
	assert.ErrorIs(t, err, advisory.ErrUnavailable)
}
