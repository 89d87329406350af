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

package osvapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/venslabs/depgraph/pkg/advisory"
	"github.com/venslabs/depgraph/pkg/api/types"
)

func TestLookup(t *testing.T) {
	var queries []types.OSVQuery
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/query", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		var q types.OSVQuery
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&q))
		queries = append(queries, q)

		resp := types.OSVQueryResponse{}
		switch q.PageToken {
		case "":
			resp.Vulns = []types.OSVEntry{{
				ID: "GHSA-1",
				Affected: []types.OSVAffected{
					{Package: types.OSVPackage{Ecosystem: "npm", Name: "lodash"}},
					{Package: types.OSVPackage{Ecosystem: "npm", Name: "lodash-es"}},
				},
			}}
			resp.NextPageToken = "p2"
		case "p2":
			resp.Vulns = []types.OSVEntry{{
				ID:       "GHSA-2",
				Affected: []types.OSVAffected{{Package: types.OSVPackage{PURL: "pkg:npm/lodash"}}},
			}}
		}
		assert.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
	defer ts.Close()

	c := New(WithURL(ts.URL+"/"), WithHTTPClient(ts.Client()))
	got, err := c.Lookup(context.Background(), "pkg:npm/lodash")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "GHSA-1", got[0].ID)
	assert.Equal(t, "GHSA-2", got[1].ID)

	require.Len(t, queries, 2)
	assert.Equal(t, "pkg:npm/lodash", queries[0].Package.PURL)
	assert.Equal(t, "p2", queries[1].PageToken)
}

func TestLookupUnavailable(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	defer ts.Close()

	c := New(WithURL(ts.URL), WithHTTPClient(ts.Client()))
	_, err := c.Lookup(context.Background(), "pkg:npm/lodash")
	require.Error(t, err)
	assert.ErrorIs(t, err, advisory.ErrUnavailable)
}

func TestLookupCPEKey(t *testing.T) {
	c := New(WithURL("http://127.0.0.1:0"))
	got, err := c.Lookup(context.Background(), "cpe:2.3:a:acme:libx:*:*:*:*:*:*:*:*")
	require.NoError(t, err)
	assert.Empty(t, got)
}
