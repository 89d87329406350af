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

// Package owasp implements OWASP Risk Rating vectors.
package owasp

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ErrMalformedVector is wrapped by Parse errors.
var ErrMalformedVector = errors.New("malformed OWASP risk rating vector")

// Vector represents an OWASP Risk Rating vector in standard format.
// Format: SL:5/M:4/O:7/S:6/ED:7/EE:5/A:6/ID:8/LC:2/LI:3/LAV:5/LAC:7/FD:1/RD:2/NC:2/PV:3
//
// Vector components (all 0-9):
//   - Threat Agent Factors (4): SL (SkillLevel), M (Motive), O (Opportunity), S (Size)
//   - Vulnerability Factors (4): ED (EaseOfDiscovery), EE (EaseOfExploit), A (Awareness), ID (IntrusionDetection)
//   - Technical Impact Factors (4): LC (LossOfConfidentiality), LI (LossOfIntegrity), LAV (LossOfAvailability), LAC (LossOfAccountability)
//   - Business Impact Factors (4): FD (FinancialDamage), RD (ReputationDamage), NC (NonCompliance), PV (PrivacyViolation)
//
// Reference: https://owasp.org/www-community/OWASP_Risk_Rating_Methodology
type Vector struct {
	// Threat Agent Factors
	SkillLevel  int // SL: 0-9
	Motive      int // M: 0-9
	Opportunity int // O: 0-9
	Size        int // S: 0-9

	// Vulnerability Factors
	EaseOfDiscovery    int // ED: 0-9
	EaseOfExploit      int // EE: 0-9
	Awareness          int // A: 0-9
	IntrusionDetection int // ID: 0-9

	// Technical Impact Factors
	LossOfConfidentiality int // LC: 0-9
	LossOfIntegrity       int // LI: 0-9
	LossOfAvailability    int // LAV: 0-9
	LossOfAccountability  int // LAC: 0-9

	// Business Impact Factors
	FinancialDamage  int // FD: 0-9
	ReputationDamage int // RD: 0-9
	NonCompliance    int // NC: 0-9
	PrivacyViolation int // PV: 0-9
}

// metrics lists the vector keys in canonical order.
var metrics = []string{"SL", "M", "O", "S", "ED", "EE", "A", "ID", "LC", "LI", "LAV", "LAC", "FD", "RD", "NC", "PV"}

func (v *Vector) fields() []*int {
	return []*int{
		&v.SkillLevel, &v.Motive, &v.Opportunity, &v.Size,
		&v.EaseOfDiscovery, &v.EaseOfExploit, &v.Awareness, &v.IntrusionDetection,
		&v.LossOfConfidentiality, &v.LossOfIntegrity, &v.LossOfAvailability, &v.LossOfAccountability,
		&v.FinancialDamage, &v.ReputationDamage, &v.NonCompliance, &v.PrivacyViolation,
	}
}

// String returns the vector in standard OWASP RR format.
func (v *Vector) String() string {
	return fmt.Sprintf("SL:%d/M:%d/O:%d/S:%d/ED:%d/EE:%d/A:%d/ID:%d/LC:%d/LI:%d/LAV:%d/LAC:%d/FD:%d/RD:%d/NC:%d/PV:%d",
		v.SkillLevel, v.Motive, v.Opportunity, v.Size,
		v.EaseOfDiscovery, v.EaseOfExploit, v.Awareness, v.IntrusionDetection,
		v.LossOfConfidentiality, v.LossOfIntegrity, v.LossOfAvailability, v.LossOfAccountability,
		v.FinancialDamage, v.ReputationDamage, v.NonCompliance, v.PrivacyViolation)
}

// IsVector reports whether s looks like an OWASP vector rather than a CVSS
// one. It does not validate s.
func IsVector(s string) bool {
	return strings.HasPrefix(strings.TrimSpace(s), "SL:")
}

// Parse reads a vector in standard format. Every factor must be present
// exactly once with a value in 0-9; the order is free.
func Parse(s string) (*Vector, error) {
	v := &Vector{}
	fields := v.fields()
	seen := make(map[string]bool, len(metrics))
	for _, part := range strings.Split(strings.TrimSpace(s), "/") {
		key, val, ok := strings.Cut(part, ":")
		if !ok {
			return nil, fmt.Errorf("%w: component %q is not KEY:VALUE", ErrMalformedVector, part)
		}
		idx := indexOf(key)
		if idx < 0 {
			return nil, fmt.Errorf("%w: unknown factor %q", ErrMalformedVector, key)
		}
		if seen[key] {
			return nil, fmt.Errorf("%w: duplicate factor %q", ErrMalformedVector, key)
		}
		seen[key] = true
		n, err := strconv.Atoi(val)
		if err != nil || n < 0 || n > 9 {
			return nil, fmt.Errorf("%w: factor %s=%q is not in 0-9", ErrMalformedVector, key, val)
		}
		*fields[idx] = n
	}
	if len(seen) != len(metrics) {
		for _, m := range metrics {
			if !seen[m] {
				return nil, fmt.Errorf("%w: missing factor %s", ErrMalformedVector, m)
			}
		}
	}
	return v, nil
}

func indexOf(key string) int {
	for i, m := range metrics {
		if m == key {
			return i
		}
	}
	return -1
}

func mean(vals ...int) float64 {
	sum := 0
	for _, v := range vals {
		sum += v
	}
	return float64(sum) / float64(len(vals))
}

// Likelihood is the mean of the threat agent and vulnerability factors (0-9).
func (v *Vector) Likelihood() float64 {
	return mean(v.SkillLevel, v.Motive, v.Opportunity, v.Size,
		v.EaseOfDiscovery, v.EaseOfExploit, v.Awareness, v.IntrusionDetection)
}

// Impact is the greater of the technical and business impact means (0-9).
func (v *Vector) Impact() float64 {
	technical := mean(v.LossOfConfidentiality, v.LossOfIntegrity, v.LossOfAvailability, v.LossOfAccountability)
	business := mean(v.FinancialDamage, v.ReputationDamage, v.NonCompliance, v.PrivacyViolation)
	return math.Max(technical, business)
}

// Score returns likelihood times impact scaled from 0-81 to 0-10, rounded to
// one decimal.
func (v *Vector) Score() float64 {
	return math.Round(v.Likelihood()*v.Impact()/81*100) / 10
}

// FromAggregatedScores creates an OWASP RR vector from aggregated scores.
// This is a pragmatic approach when detailed 16-factor scoring is not available.
//
// The function distributes the aggregated scores across the individual factors:
//   - ThreatAgent score (0-9) is distributed across SL, M, O, S
//   - Vulnerability score (0-9) is distributed across ED, EE, A, ID
//   - TechnicalImpact score (0-9) is distributed across LC, LI, LAV, LAC
//   - BusinessImpact score (0-9) is distributed across FD, RD, NC, PV
func FromAggregatedScores(threatAgent, vulnerability, technicalImpact, businessImpact float64) *Vector {
	ta := clamp09(int(math.Round(threatAgent)))
	vul := clamp09(int(math.Round(vulnerability)))
	tech := clamp09(int(math.Round(technicalImpact)))
	bus := clamp09(int(math.Round(businessImpact)))

	return &Vector{
		SkillLevel:  ta,
		Motive:      ta,
		Opportunity: ta,
		Size:        ta,

		EaseOfDiscovery:    vul,
		EaseOfExploit:      vul,
		Awareness:          vul,
		IntrusionDetection: 9 - vul, // Inverse: high vuln score = low detection

		LossOfConfidentiality: tech,
		LossOfIntegrity:       tech,
		LossOfAvailability:    tech,
		LossOfAccountability:  tech,

		FinancialDamage:  bus,
		ReputationDamage: bus,
		NonCompliance:    bus,
		PrivacyViolation: bus,
	}
}

// clamp09 ensures a value is within 0-9 range
func clamp09(val int) int {
	if val < 0 {
		return 0
	}
	if val > 9 {
		return 9
	}
	return val
}
