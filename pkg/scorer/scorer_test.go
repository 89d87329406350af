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

package scorer

import (
	"testing"

	"github.com/CycloneDX/cyclonedx-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/venslabs/depgraph/pkg/advisory"
)

func TestForVector(t *testing.T) {
	tests := []struct {
		name    string
		vector  string
		score   float64
		band    Band
		method  Method
		unknown bool
	}{
		{name: "critical v3.1", vector: "CVSS:3.1/AV:N/AC:L/PR:N/UI:N/S:U/C:H/I:H/A:H", score: 9.8, band: Critical, method: MethodCVSSv31},
		{name: "medium v3.1", vector: "CVSS:3.1/AV:L/AC:L/PR:N/UI:R/S:U/C:N/I:N/A:H", score: 5.5, band: Medium, method: MethodCVSSv31},
		{name: "v3.0", vector: "CVSS:3.0/AV:N/AC:L/PR:L/UI:R/S:C/C:L/I:L/A:N", score: 5.4, band: Medium, method: MethodCVSSv3},
		{name: "v2", vector: "AV:N/AC:L/Au:N/C:P/I:P/A:P", score: 7.5, band: High, method: MethodCVSSv2},
		{name: "confirmed zero", vector: "CVSS:3.1/AV:N/AC:L/PR:N/UI:N/S:U/C:N/I:N/A:N", score: 0, band: None, method: MethodCVSSv31},
		{name: "owasp", vector: "SL:9/M:9/O:9/S:9/ED:9/EE:9/A:9/ID:9/LC:9/LI:9/LAV:9/LAC:9/FD:9/RD:9/NC:9/PV:9", score: 10, band: Critical, method: MethodOWASP},
		{name: "absent", vector: "", unknown: true},
		{name: "missing base metric", vector: "CVSS:3.1/AV:N/AC:L/PR:N/UI:N/S:U/C:H/I:H", unknown: true},
		{name: "bad owasp", vector: "SL:9", unknown: true},
		{name: "not a vector", vector: "HIGH", unknown: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := ForVector(tt.vector)
			if tt.unknown {
				assert.True(t, s.Unknown)
				assert.Nil(t, s.Numeric)
				assert.Equal(t, None, s.Band)
				assert.NotEmpty(t, s.Reason)
				assert.Equal(t, "UNKNOWN", s.String())
				return
			}
			require.NotNil(t, s.Numeric)
			assert.False(t, s.Unknown)
			assert.InDelta(t, tt.score, *s.Numeric, 1e-9)
			assert.Equal(t, tt.band, s.Band)
			assert.Equal(t, tt.method, s.Method)
		})
	}
}

func TestUnknownDistinctFromZero(t *testing.T) {
	zero := ForVector("CVSS:3.1/AV:N/AC:L/PR:N/UI:N/S:U/C:N/I:N/A:N")
	unknown := ForVector("")
	assert.NotEqual(t, zero, unknown)
	assert.Greater(t, zero.Rank(), unknown.Rank())
	assert.Equal(t, "NONE (0.0)", zero.String())
}

func TestBands(t *testing.T) {
	tests := map[float64]Band{0: None, 0.1: Low, 3.9: Low, 4: Medium, 6.9: Medium, 7: High, 8.9: High, 9: Critical, 10: Critical}
	for score, want := range tests {
		assert.Equal(t, want, BandFor(score), "%v", score)
	}
	for i, b := range Bands {
		assert.Equal(t, i, b.Rank())
		parsed, err := ParseBand(string(b))
		require.NoError(t, err)
		assert.Equal(t, b, parsed)
	}
	b, err := ParseBand("moderate")
	require.NoError(t, err)
	assert.Equal(t, Medium, b)
	_, err = ParseBand("severe")
	assert.Error(t, err)
}

func TestScorerOverrides(t *testing.T) {
	s := New(WithOverrides(map[string]string{
		"CVE-2024-0001": "CVSS:3.1/AV:N/AC:L/PR:N/UI:N/S:U/C:H/I:H/A:H",
	}))
	a := advisory.Advisory{ID: "GHSA-xxxx", Aliases: []string{"CVE-2024-0001"}, SeverityVector: "AV:N/AC:M/Au:N/C:N/I:P/A:N"}
	assert.Equal(t, Critical, s.Score(a).Band)

	var nilScorer *Scorer
	assert.Equal(t, Medium, nilScorer.Score(a).Band)
}

func TestCycloneDX(t *testing.T) {
	r := ForVector("CVSS:3.1/AV:N/AC:L/PR:N/UI:N/S:U/C:H/I:H/A:H").CycloneDX()
	require.NotNil(t, r.Score)
	assert.InDelta(t, 9.8, *r.Score, 1e-9)
	assert.Equal(t, cyclonedx.SeverityCritical, r.Severity)
	assert.Equal(t, cyclonedx.ScoringMethodCVSSv31, r.Method)

	u := ForVector("garbage").CycloneDX()
	assert.Nil(t, u.Score)
	assert.Equal(t, cyclonedx.SeverityUnknown, u.Severity)
	assert.NotEmpty(t, u.Justification)
}
