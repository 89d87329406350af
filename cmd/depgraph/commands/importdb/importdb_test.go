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

package importdb

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/venslabs/depgraph/pkg/advisory/sqlstore"
)

const testAdvisory = `{
  "id": "GHSA-1234",
  "aliases": ["CVE-2024-0001"],
  "affected": [
    {"package": {"ecosystem": "Maven", "name": "org.acme:libx"}, "versions": ["1.2.0"]},
    {"package": {"ecosystem": "npm", "name": "libx"}, "versions": ["1.2.0"]}
  ]
}`

func TestImport(t *testing.T) {
	dir := t.TempDir()
	osv := filepath.Join(dir, "osv")
	require.NoError(t, os.MkdirAll(osv, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(osv, "GHSA-1234.json"), []byte(testAdvisory), 0o644))
	db := filepath.Join(dir, "advisories.db")

	cmd := New()
	cmd.SetArgs([]string{osv, db})
	require.NoError(t, cmd.ExecuteContext(context.Background()))

	s, err := sqlstore.Open(sqlstore.Config{DSN: db})
	require.NoError(t, err)
	defer s.Close() //nolint:errcheck
	all, err := s.All(context.Background())
	require.NoError(t, err)
	assert.Len(t, all, 2)

	got, err := s.Lookup(context.Background(), "pkg:npm/libx")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "GHSA-1234", got[0].ID)
}

func TestImportMissingDir(t *testing.T) {
	dir := t.TempDir()
	cmd := New()
	cmd.SetArgs([]string{filepath.Join(dir, "missing"), filepath.Join(dir, "advisories.db")})
	assert.Error(t, cmd.ExecuteContext(context.Background()))
}
