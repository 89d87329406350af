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

// Package advisory defines vulnerability and licensing records and the store
// they are looked up in.
package advisory

import (
	"context"
	"errors"
	"slices"
	"time"

	"github.com/venslabs/depgraph/pkg/versioncmp"
	"github.com/venslabs/depgraph/pkg/versionrange"
)

// Kind distinguishes vulnerability advisories from licensing findings.
type Kind string

const (
	Vulnerability Kind = "vulnerability"
	License       Kind = "license"
)

// Advisory is one vulnerability or licensing record. It is not modified
// after it has been loaded.
type Advisory struct {
	ID             string               `json:"id"`
	Aliases        []string             `json:"aliases,omitempty"`
	Kind           Kind                 `json:"kind,omitempty"`
	Summary        string               `json:"summary,omitempty"`
	Description    string               `json:"description,omitempty"`
	Affected       []versionrange.Range `json:"affected,omitempty"`
	SeverityVector string               `json:"severityVector,omitempty"`
	References     []string             `json:"references,omitempty"`
	CWEs           []string             `json:"cwes,omitempty"`
	Published      time.Time            `json:"published,omitzero"`
	Modified       time.Time            `json:"modified,omitzero"`
}

// Affects reports whether any affected range contains version.
func (a Advisory) Affects(version string, c versioncmp.Comparator) bool {
	return slices.ContainsFunc(a.Affected, func(r versionrange.Range) bool {
		return r.Contains(version, c)
	})
}

// Keyed pairs an advisory with the store key it is filed under.
type Keyed struct {
	Key      string
	Advisory Advisory
}

// ErrUnavailable is wrapped by stores that cannot answer a lookup. It is
// distinct from a successful lookup with no results.
var ErrUnavailable = errors.New("advisory store unavailable")

// Store looks up the advisories filed under a key (a version-less package
// URL or a CPE string). No results is (nil, nil); a store that cannot answer
// returns an error wrapping ErrUnavailable.
type Store interface {
	Lookup(ctx context.Context, key string) ([]Advisory, error)
}

// StoreFunc adapts a function to Store.
type StoreFunc func(ctx context.Context, key string) ([]Advisory, error)

func (f StoreFunc) Lookup(ctx context.Context, key string) ([]Advisory, error) {
	return f(ctx, key)
}

// Source enumerates every advisory it holds. Stores that can be imported
// from implement it.
type Source interface {
	All(ctx context.Context) ([]Keyed, error)
}
