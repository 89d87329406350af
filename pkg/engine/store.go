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
	"fmt"
	"io"

	"github.com/venslabs/depgraph/pkg/advisory"
	"github.com/venslabs/depgraph/pkg/advisory/cache"
	"github.com/venslabs/depgraph/pkg/advisory/memstore"
	"github.com/venslabs/depgraph/pkg/advisory/osvapi"
	"github.com/venslabs/depgraph/pkg/advisory/osvdir"
	"github.com/venslabs/depgraph/pkg/advisory/sqlstore"
	"github.com/venslabs/depgraph/pkg/config"
)

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// OpenStore opens the advisory store described by cfg. The returned closer
// releases database connections and must be called once the store is no
// longer used.
func OpenStore(cfg config.Store) (advisory.Store, io.Closer, error) {
	var (
		store  advisory.Store
		closer io.Closer = nopCloser{}
	)
	switch cfg.Kind {
	case config.StoreOSVDir, "":
		store = osvdir.New(cfg.Path)
	case config.StoreSQLite, config.StorePostgres:
		s, err := sqlstore.Open(sqlstore.Config{Driver: string(cfg.Kind), DSN: dsn(cfg)})
		if err != nil {
			return nil, nil, err
		}
		store, closer = s, s
	case config.StoreOSVAPI:
		var opts []osvapi.Option
		if cfg.URL != "" {
			opts = append(opts, osvapi.WithURL(cfg.URL))
		}
		store = osvapi.New(opts...)
	case config.StoreMemory:
		store = memstore.New()
	default:
		return nil, nil, fmt.Errorf("unknown store kind %q", cfg.Kind)
	}
	if cfg.Cache {
		store = cache.New(store)
	}
	return store, closer, nil
}

func dsn(cfg config.Store) string {
	if cfg.DSN != "" {
		return cfg.DSN
	}
	return cfg.Path
}
