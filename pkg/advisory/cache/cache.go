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

// Package cache memoizes advisory lookups of another store.
package cache

import (
	"context"
	"slices"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/venslabs/depgraph/pkg/advisory"
)

// Store wraps a backend. Concurrent lookups of one key reach the backend
// once; successful results are kept for the lifetime of the Store and
// failures are not cached.
type Store struct {
	backend advisory.Store

	mu      sync.RWMutex
	entries map[string][]advisory.Advisory
	group   singleflight.Group
}

func New(backend advisory.Store) *Store {
	return &Store{backend: backend, entries: make(map[string][]advisory.Advisory)}
}

func (s *Store) Lookup(ctx context.Context, key string) ([]advisory.Advisory, error) {
	s.mu.RLock()
	cached, ok := s.entries[key]
	s.mu.RUnlock()
	if ok {
		return slices.Clone(cached), nil
	}

	// The flight outlives the caller that started it: waiters that joined
	// later still get the result when the first caller is cancelled.
	ch := s.group.DoChan(key, func() (any, error) {
		res, err := s.backend.Lookup(context.WithoutCancel(ctx), key)
		if err != nil {
			return nil, err
		}
		s.mu.Lock()
		s.entries[key] = res
		s.mu.Unlock()
		return res, nil
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-ch:
		if r.Err != nil {
			return nil, r.Err
		}
		return slices.Clone(r.Val.([]advisory.Advisory)), nil
	}
}

// Len returns the number of cached keys.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
