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

// Package metrics holds the Prometheus collectors of an analysis run.
// Methods are safe to call on a nil *Metrics.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Lookup results.
const (
	LookupHit           = "hit"
	LookupMiss          = "miss"
	LookupIndeterminate = "indeterminate"
)

// Metrics represents the collection of engine metrics.
type Metrics struct {
	Registry *prometheus.Registry

	NodesResolved      prometheus.Counter
	ResolutionFailures prometheus.Counter
	NodesPruned        prometheus.Counter
	Cycles             prometheus.Counter
	AdvisoryLookups    *prometheus.CounterVec
	LookupDuration     prometheus.Histogram
	Findings           *prometheus.CounterVec
}

// New creates the collectors and registers them on a fresh registry.
func New() *Metrics {
	m := &Metrics{Registry: prometheus.NewRegistry()}

	m.NodesResolved = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "depgraph_nodes_resolved_total",
			Help: "Total number of dependency nodes whose children were resolved",
		},
	)

	m.ResolutionFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "depgraph_resolution_failures_total",
			Help: "Total number of dependency nodes whose resolution failed",
		},
	)

	m.NodesPruned = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "depgraph_nodes_pruned_total",
			Help: "Total number of dependency nodes not expanded because of scope or depth",
		},
	)

	m.Cycles = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "depgraph_cycles_total",
			Help: "Total number of cycle-closing edges detected",
		},
	)

	m.AdvisoryLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "depgraph_advisory_lookups_total",
			Help: "Total number of advisory lookups per node",
		},
		[]string{"result"},
	)

	m.LookupDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "depgraph_advisory_lookup_duration_seconds",
			Help:    "Duration of advisory lookups in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	m.Findings = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "depgraph_findings_total",
			Help: "Total number of findings per severity band",
		},
		[]string{"band"},
	)

	m.Registry.MustRegister(
		m.NodesResolved,
		m.ResolutionFailures,
		m.NodesPruned,
		m.Cycles,
		m.AdvisoryLookups,
		m.LookupDuration,
		m.Findings,
	)
	return m
}

func (m *Metrics) ObserveResolution(failed bool) {
	if m == nil {
		return
	}
	if failed {
		m.ResolutionFailures.Inc()
		return
	}
	m.NodesResolved.Inc()
}

func (m *Metrics) ObservePruned() {
	if m == nil {
		return
	}
	m.NodesPruned.Inc()
}

func (m *Metrics) ObserveCycles(n int) {
	if m == nil {
		return
	}
	m.Cycles.Add(float64(n))
}

// ObserveLookup records one node lookup with its result and duration.
func (m *Metrics) ObserveLookup(result string, d time.Duration) {
	if m == nil {
		return
	}
	m.AdvisoryLookups.WithLabelValues(result).Inc()
	m.LookupDuration.Observe(d.Seconds())
}

func (m *Metrics) ObserveFinding(band string) {
	if m == nil {
		return
	}
	m.Findings.WithLabelValues(band).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}
