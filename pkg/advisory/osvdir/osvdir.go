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

// Package osvdir serves advisories from a directory tree of OSV JSON files,
// such as an unpacked OSV ecosystem export or a vuln-list checkout.
package osvdir

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/spf13/afero"

	"github.com/venslabs/depgraph/pkg/advisory"
	"github.com/venslabs/depgraph/pkg/advisory/memstore"
	"github.com/venslabs/depgraph/pkg/api/types"
)

type option func(*Store)

// WithFs sets the filesystem the directory is read from. Defaults to the OS
// filesystem.
func WithFs(fs afero.Fs) option {
	return func(s *Store) { s.fs = fs }
}

// WithStrict makes a single undecodable file fail the whole load instead of
// being skipped with a warning.
func WithStrict(strict bool) option {
	return func(s *Store) { s.strict = strict }
}

// Store lazily indexes the directory on first use.
type Store struct {
	dir    string
	fs     afero.Fs
	strict bool

	once  sync.Once
	index *memstore.Store
	err   error
}

// New returns a store reading OSV files below dir.
func New(dir string, opts ...option) *Store {
	s := &Store{dir: dir, fs: afero.NewOsFs()}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Store) load(ctx context.Context) (*memstore.Store, error) {
	s.once.Do(func() {
		s.index, s.err = s.walk(ctx)
		if s.err == nil {
			slog.DebugContext(ctx, "Indexed OSV directory", "dir", s.dir, "packages", s.index.Len())
		}
	})
	return s.index, s.err
}

func (s *Store) walk(ctx context.Context) (*memstore.Store, error) {
	idx := memstore.New()
	if ok, err := afero.DirExists(s.fs, s.dir); err != nil || !ok {
		return nil, fmt.Errorf("%w: OSV directory %s not found", advisory.ErrUnavailable, s.dir)
	}
	err := afero.Walk(s.fs, s.dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return fmt.Errorf("file walk error: %w", err)
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if info.IsDir() || filepath.Ext(path) != ".json" {
			return nil
		}
		b, err := afero.ReadFile(s.fs, path)
		if err != nil {
			return fmt.Errorf("file open error (%s): %w", path, err)
		}
		var e types.OSVEntry
		if err := json.Unmarshal(b, &e); err != nil {
			if s.strict {
				return fmt.Errorf("unable to decode JSON (%s): %w", path, err)
			}
			slog.WarnContext(ctx, "Skipping undecodable OSV file", "path", path, "error", err)
			return nil
		}
		for _, k := range advisory.FromOSV(e) {
			idx.Add(k.Key, k.Advisory)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: walk %s: %w", advisory.ErrUnavailable, s.dir, err)
	}
	return idx, nil
}

func (s *Store) Lookup(ctx context.Context, key string) ([]advisory.Advisory, error) {
	idx, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	return idx.Lookup(ctx, key)
}

func (s *Store) All(ctx context.Context) ([]advisory.Keyed, error) {
	idx, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	return idx.All(ctx)
}
