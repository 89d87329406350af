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

// Package osvapi looks advisories up through the OSV HTTP query API.
package osvapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/venslabs/depgraph/pkg/advisory"
	"github.com/venslabs/depgraph/pkg/api/types"
)

// DefaultURL is the public OSV API.
const DefaultURL = "https://api.osv.dev"

// maxPages bounds pagination of a single lookup.
const maxPages = 20

// Option configures a Client.
type Option func(*Client)

// WithURL sets the API base URL.
func WithURL(u string) Option {
	return func(c *Client) { c.url = strings.TrimSuffix(u, "/") }
}

// WithHTTPClient sets the HTTP client used for queries.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// Client implements advisory.Store. Only package URL keys are queried; CPE
// keys have no OSV equivalent and yield no advisories.
type Client struct {
	url  string
	http *http.Client
}

func New(opts ...Option) *Client {
	c := &Client{
		url:  DefaultURL,
		http: &http.Client{Timeout: 30 * time.Second},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *Client) Lookup(ctx context.Context, key string) ([]advisory.Advisory, error) {
	if !strings.HasPrefix(key, "pkg:") {
		return nil, nil
	}
	var out []advisory.Advisory
	q := types.OSVQuery{Package: types.OSVPackage{PURL: key}}
	for range maxPages {
		resp, err := c.query(ctx, q)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %w", advisory.ErrUnavailable, key, err)
		}
		for _, e := range resp.Vulns {
			for _, k := range advisory.FromOSV(e) {
				// an entry may list several packages
				if k.Key == key {
					out = append(out, k.Advisory)
				}
			}
		}
		if resp.NextPageToken == "" {
			return out, nil
		}
		q.PageToken = resp.NextPageToken
	}
	return nil, fmt.Errorf("%w: %s: too many result pages", advisory.ErrUnavailable, key)
}

func (c *Client) query(ctx context.Context, q types.OSVQuery) (*types.OSVQueryResponse, error) {
	body, err := json.Marshal(q)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url+"/v1/query", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("OSV API request failed: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("OSV API returned status: %s", resp.Status)
	}
	var r types.OSVQueryResponse
	if err := json.NewDecoder(resp.Body).Decode(&r); err != nil {
		return nil, fmt.Errorf("failed to decode OSV response: %w", err)
	}
	return &r, nil
}
