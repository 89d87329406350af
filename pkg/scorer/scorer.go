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

// Package scorer turns advisory severity vectors into numeric scores and
// qualitative bands.
package scorer

import (
	"fmt"
	"strings"

	"github.com/CycloneDX/cyclonedx-go"

	"github.com/venslabs/depgraph/pkg/advisory"
	"github.com/venslabs/depgraph/pkg/cvss"
	"github.com/venslabs/depgraph/pkg/owasp"
)

// Method names the formula a score was computed with.
type Method string

const (
	MethodCVSSv2  Method = "CVSSv2"
	MethodCVSSv3  Method = "CVSSv3"
	MethodCVSSv31 Method = "CVSSv31"
	MethodOWASP   Method = "OWASP"
)

// Score is the severity of one advisory. An Unknown score has no Numeric
// value and band NONE; a confirmed zero score has Numeric pointing at 0.
type Score struct {
	Numeric *float64 `json:"score,omitempty"`
	Band    Band     `json:"band"`
	Unknown bool     `json:"unknown,omitempty"`
	Vector  string   `json:"vector,omitempty"`
	Method  Method   `json:"method,omitempty"`
	Reason  string   `json:"reason,omitempty"`
}

func (s Score) String() string {
	if s.Unknown {
		return "UNKNOWN"
	}
	return fmt.Sprintf("%s (%.1f)", s.Band, *s.Numeric)
}

// Rank orders scores for sorting: known scores by band, unknown scores
// below NONE.
func (s Score) Rank() int {
	if s.Unknown {
		return -1
	}
	return s.Band.Rank()
}

// CycloneDX converts s to a CycloneDX vulnerability rating.
func (s Score) CycloneDX() cyclonedx.VulnerabilityRating {
	r := cyclonedx.VulnerabilityRating{Vector: s.Vector}
	if s.Unknown {
		r.Severity = cyclonedx.SeverityUnknown
		r.Justification = s.Reason
	} else {
		score := *s.Numeric
		r.Score = &score
		r.Severity = cyclonedx.Severity(strings.ToLower(string(s.Band)))
	}
	switch s.Method {
	case MethodCVSSv2:
		r.Method = cyclonedx.ScoringMethodCVSSv2
	case MethodCVSSv3:
		r.Method = cyclonedx.ScoringMethodCVSSv3
	case MethodCVSSv31:
		r.Method = cyclonedx.ScoringMethodCVSSv31
	case MethodOWASP:
		r.Method = cyclonedx.ScoringMethodOWASP
	}
	return r
}

func known(v float64, vector string, m Method) Score {
	return Score{Numeric: &v, Band: BandFor(v), Vector: vector, Method: m}
}

func unknown(vector, reason string) Score {
	return Score{Band: None, Unknown: true, Vector: vector, Reason: reason}
}

// ForVector scores a CVSS v2, CVSS v3.x or OWASP Risk Rating vector. It is a
// pure function of its input.
func ForVector(vector string) Score {
	vector = strings.TrimSpace(vector)
	if vector == "" {
		return unknown("", "no severity vector")
	}
	if owasp.IsVector(vector) {
		v, err := owasp.Parse(vector)
		if err != nil {
			return unknown(vector, err.Error())
		}
		return known(v.Score(), vector, MethodOWASP)
	}
	score, ver, err := cvss.BaseScore(vector)
	if err != nil {
		return unknown(vector, err.Error())
	}
	switch ver {
	case cvss.V2:
		return known(score, vector, MethodCVSSv2)
	case cvss.V30:
		return known(score, vector, MethodCVSSv3)
	default:
		return known(score, vector, MethodCVSSv31)
	}
}

// Scorer scores advisories, preferring analyst-supplied vectors over the
// advisory's own. The zero value and a nil *Scorer have no overrides.
type Scorer struct {
	overrides map[string]string
}

type Option func(*Scorer)

// WithOverrides sets vectors keyed by advisory ID or alias.
func WithOverrides(vectors map[string]string) Option {
	return func(s *Scorer) {
		for id, v := range vectors {
			s.overrides[id] = v
		}
	}
}

func New(opts ...Option) *Scorer {
	s := &Scorer{overrides: make(map[string]string)}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Score returns the severity of a.
func (s *Scorer) Score(a advisory.Advisory) Score {
	if s != nil {
		for _, id := range append([]string{a.ID}, a.Aliases...) {
			if v, ok := s.overrides[id]; ok {
				return ForVector(v)
			}
		}
	}
	return ForVector(a.SeverityVector)
}
