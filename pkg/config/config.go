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

// Package config loads the analysis settings file.
package config

import (
	"fmt"
	"os"
	"slices"
	"strings"
	"time"

	"go.yaml.in/yaml/v3"

	"github.com/venslabs/depgraph/pkg/coordinate"
	"github.com/venslabs/depgraph/pkg/envutil"
	"github.com/venslabs/depgraph/pkg/owasp"
	"github.com/venslabs/depgraph/pkg/scorer"
)

// StoreKind selects the advisory store backend.
type StoreKind string

const (
	StoreOSVDir   StoreKind = "osvdir"
	StoreSQLite   StoreKind = "sqlite"
	StorePostgres StoreKind = "postgres"
	StoreOSVAPI   StoreKind = "osvapi"
	StoreMemory   StoreKind = "memory"
)

// StoreKinds lists the accepted store kinds.
var StoreKinds = []StoreKind{StoreOSVDir, StoreSQLite, StorePostgres, StoreOSVAPI, StoreMemory}

const (
	DefaultConcurrency = 8
	DefaultTimeout     = 5 * time.Minute
)

// Config represents the structure of the config.yaml provided by users.
//
// Example YAML:
//
//	store:
//	  kind: osvdir          # osvdir | sqlite | postgres | osvapi | memory
//	  path: ./advisories    # directory (osvdir) or database file (sqlite)
//	  dsn: postgres://...   # postgres only
//	  url: https://api.osv.dev
//	  cache: true
//	concurrency: 8
//	timeout: 5m
//	maxDepth: 0             # 0 = unlimited
//	excludeScopes: [test]
//	cpeAliases: true
//	vectors:
//	  CVE-2024-0001: "CVSS:3.1/AV:N/AC:L/PR:N/UI:N/S:U/C:H/I:H/A:H"
//	owasp:
//	  GHSA-xxxx-yyyy-zzzz:
//	    threatAgent: 5      # 0..9
//	    vulnerability: 6
//	    technicalImpact: 7
//	    businessImpact: 4
//	failOn: high
//
// Vectors and owasp entries are keyed by advisory ID or alias and override
// the severity published with the advisory. An owasp entry is turned into an
// OWASP Risk Rating vector; an explicit vector for the same ID wins.
type Config struct {
	Store         Store                 `yaml:"store"`
	Concurrency   int                   `yaml:"concurrency"`
	Timeout       time.Duration         `yaml:"timeout"`
	MaxDepth      int                   `yaml:"maxDepth"`
	ExcludeScopes []string              `yaml:"excludeScopes"`
	CPEAliases    *bool                 `yaml:"cpeAliases"`
	Vectors       map[string]string     `yaml:"vectors"`
	OWASP         map[string]OWASPEntry `yaml:"owasp"`
	FailOn        string                `yaml:"failOn"`
}

// Store configures the advisory store.
type Store struct {
	Kind  StoreKind `yaml:"kind"`
	Path  string    `yaml:"path"`
	DSN   string    `yaml:"dsn"`
	URL   string    `yaml:"url"`
	Cache bool      `yaml:"cache"`
}

// OWASPEntry holds the four aggregated OWASP Risk Rating factors, each in
// [0,9].
type OWASPEntry struct {
	ThreatAgent     *float64 `yaml:"threatAgent"`
	Vulnerability   *float64 `yaml:"vulnerability"`
	TechnicalImpact *float64 `yaml:"technicalImpact"`
	BusinessImpact  *float64 `yaml:"businessImpact"`
}

// Default returns the settings used without a config file.
func Default() *Config {
	return &Config{
		Store:       Store{Kind: StoreOSVDir, Path: "advisories", Cache: true},
		Concurrency: DefaultConcurrency,
		Timeout:     DefaultTimeout,
	}
}

// Load parses a config.yaml file from the given path, fills defaults,
// applies environment overrides and validates the result.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(b)
}

// Parse is Load for an in-memory file.
func Parse(b []byte) (*Config, error) {
	c := Default()
	if err := yaml.Unmarshal(b, c); err != nil {
		return nil, err
	}
	c.ApplyEnv()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// ApplyEnv applies $DEPGRAPH_CONCURRENCY and $DEPGRAPH_TIMEOUT.
func (c *Config) ApplyEnv() {
	c.Concurrency = envutil.Int("DEPGRAPH_CONCURRENCY", c.Concurrency)
	c.Timeout = envutil.Duration("DEPGRAPH_TIMEOUT", c.Timeout)
}

// Validate fails on the first invalid setting.
func (c *Config) Validate() error {
	if c.Store.Kind == "" {
		c.Store.Kind = StoreOSVDir
	}
	if !slices.Contains(StoreKinds, c.Store.Kind) {
		return fmt.Errorf("unknown store kind %q (valid values: %v)", c.Store.Kind, StoreKinds)
	}
	if c.Store.Kind == StorePostgres && c.Store.DSN == "" {
		return fmt.Errorf("store kind %q requires a dsn", c.Store.Kind)
	}
	if c.Concurrency < 1 {
		return fmt.Errorf("concurrency must be at least 1, got %d", c.Concurrency)
	}
	if c.Timeout < 0 {
		return fmt.Errorf("timeout must not be negative, got %s", c.Timeout)
	}
	if c.MaxDepth < 0 {
		return fmt.Errorf("maxDepth must not be negative, got %d", c.MaxDepth)
	}
	if _, err := c.Scopes(); err != nil {
		return err
	}
	if _, _, err := c.FailOnBand(); err != nil {
		return err
	}
	for id, v := range c.Vectors {
		if s := scorer.ForVector(v); s.Unknown {
			return fmt.Errorf("vector for %s: %s", id, s.Reason)
		}
	}
	for id, e := range c.OWASP {
		if e.ThreatAgent == nil || e.Vulnerability == nil || e.TechnicalImpact == nil || e.BusinessImpact == nil {
			return fmt.Errorf("owasp entry for %s must have threatAgent, vulnerability, technicalImpact and businessImpact", id)
		}
		for _, f := range []float64{*e.ThreatAgent, *e.Vulnerability, *e.TechnicalImpact, *e.BusinessImpact} {
			if !inRange09(f) {
				return fmt.Errorf("owasp factors for %s must be between 0 and 9 (OWASP native scale)", id)
			}
		}
	}
	return nil
}

// Scopes returns the excluded scopes.
func (c *Config) Scopes() ([]coordinate.Scope, error) {
	var out []coordinate.Scope
	for _, s := range c.ExcludeScopes {
		scope, err := coordinate.ParseScope(s)
		if err != nil {
			return nil, fmt.Errorf("excludeScopes: %w", err)
		}
		out = append(out, scope)
	}
	return out, nil
}

// FailOnBand returns the band at which an analysis fails, and false when
// failOn is not set.
func (c *Config) FailOnBand() (scorer.Band, bool, error) {
	if strings.TrimSpace(c.FailOn) == "" {
		return scorer.None, false, nil
	}
	b, err := scorer.ParseBand(c.FailOn)
	if err != nil {
		return scorer.None, false, fmt.Errorf("failOn: %w", err)
	}
	return b, true, nil
}

// CPE reports whether CPE aliases are looked up. Defaults to true.
func (c *Config) CPE() bool {
	return c.CPEAliases == nil || *c.CPEAliases
}

// Overrides returns the analyst-supplied vectors keyed by advisory ID.
func (c *Config) Overrides() map[string]string {
	out := make(map[string]string, len(c.Vectors)+len(c.OWASP))
	for id, e := range c.OWASP {
		out[id] = owasp.FromAggregatedScores(*e.ThreatAgent, *e.Vulnerability, *e.TechnicalImpact, *e.BusinessImpact).String()
	}
	for id, v := range c.Vectors {
		out[id] = v
	}
	return out
}

func inRange09(v float64) bool { return v >= 0 && v <= 9 }

// ParseStore parses a store flag of the form KIND[:LOCATION], where the
// location is a path for osvdir and sqlite, a connection string for
// postgres and a base URL for osvapi.
func ParseStore(s string) (Store, error) {
	kind, location, _ := strings.Cut(strings.TrimSpace(s), ":")
	st := Store{Kind: StoreKind(strings.ToLower(kind))}
	switch st.Kind {
	case StoreOSVDir, StoreSQLite:
		st.Path = location
	case StorePostgres:
		if location == "" {
			return Store{}, fmt.Errorf("store kind %q requires a dsn", st.Kind)
		}
		st.DSN = location
	case StoreOSVAPI:
		st.URL = location
	case StoreMemory:
	default:
		return Store{}, fmt.Errorf("unknown store kind %q (valid values: %v)", kind, StoreKinds)
	}
	return st, nil
}
