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
	"fmt"
	"strings"
)

// Band is a qualitative severity.
type Band string

const (
	None     Band = "NONE"
	Low      Band = "LOW"
	Medium   Band = "MEDIUM"
	High     Band = "HIGH"
	Critical Band = "CRITICAL"
)

// Bands lists every band from the lowest to the highest.
var Bands = []Band{None, Low, Medium, High, Critical}

var bandRank = map[Band]int{None: 0, Low: 1, Medium: 2, High: 3, Critical: 4}

// Rank orders bands from NONE (0) to CRITICAL (4).
func (b Band) Rank() int {
	return bandRank[b]
}

// ParseBand parses a band name, case-insensitively. "moderate" is accepted
// as an alias of MEDIUM, as used by GitHub advisories.
func ParseBand(s string) (Band, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "NONE":
		return None, nil
	case "LOW":
		return Low, nil
	case "MEDIUM", "MODERATE":
		return Medium, nil
	case "HIGH":
		return High, nil
	case "CRITICAL":
		return Critical, nil
	}
	return None, fmt.Errorf("unknown severity band %q", s)
}

// BandFor maps a score in [0,10] to its band.
func BandFor(score float64) Band {
	switch {
	case score <= 0:
		return None
	case score < 4:
		return Low
	case score < 7:
		return Medium
	case score < 9:
		return High
	default:
		return Critical
	}
}
