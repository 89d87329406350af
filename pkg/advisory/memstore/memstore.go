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

// Package memstore is an in-memory advisory store.
package memstore

import (
	"context"
	"slices"
	"strings"
	"sync"

	"github.com/samber/lo"

	"github.com/venslabs/depgraph/pkg/advisory"
)

// Store keeps advisories in a map keyed by store key. It is safe for
// concurrent use.
type Store struct {
	mu   sync.RWMutex
	byID map[string][]advisory.Advisory
}

// New returns a store holding entries.
func New(entries ...advisory.Keyed) *Store {
	s := &Store{byID: make(map[string][]advisory.Advisory)}
	for _, e := range entries {
		s.Add(e.Key, e.Advisory)
	}
	return s
}

// Add files a under key, replacing an advisory with the same ID.
func (s *Store) Add(key string, a advisory.Advisory) {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := slices.DeleteFunc(s.byID[key], func(x advisory.Advisory) bool { return x.ID == a.ID })
	s.byID[key] = append(list, a)
}

func (s *Store) Lookup(ctx context.Context, key string) ([]advisory.Advisory, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.byID[key]), nil
}

// All returns every advisory sorted by key then ID.
func (s *Store) All(ctx context.Context) ([]advisory.Keyed, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := lo.Keys(s.byID)
	slices.Sort(keys)
	var out []advisory.Keyed
	for _, k := range keys {
		list := slices.Clone(s.byID[k])
		slices.SortFunc(list, func(a, b advisory.Advisory) int { return strings.Compare(a.ID, b.ID) })
		for _, a := range list {
			out = append(out, advisory.Keyed{Key: k, Advisory: a})
		}
	}
	return out, nil
}

// Len returns the number of keys.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID)
}
