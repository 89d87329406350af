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

// Package cvss computes CVSS v2 and v3 base scores from vector strings.
package cvss

import (
	"errors"
	"fmt"
	"strings"

	cvssv2 "github.com/goark/go-cvss/v2/metric"
	cvssv3 "github.com/goark/go-cvss/v3/metric"
)

// ErrMalformedVector is wrapped by every parse error.
var ErrMalformedVector = errors.New("malformed CVSS vector")

// Version identifies the CVSS version of a vector.
type Version string

const (
	V2  Version = "2.0"
	V30 Version = "3.0"
	V31 Version = "3.1"
)

// Detect returns the version a vector is written in. v3 vectors carry a
// "CVSS:3.x/" prefix; v2 vectors start with "AV:" and use "Au:".
func Detect(vector string) (Version, bool) {
	v := strings.TrimSpace(vector)
	switch {
	case strings.HasPrefix(v, "CVSS:3.1/"):
		return V31, true
	case strings.HasPrefix(v, "CVSS:3.0/"):
		return V30, true
	case strings.HasPrefix(v, "CVSS:2.0/"):
		return V2, true
	}
	v = strings.TrimSuffix(strings.TrimPrefix(v, "("), ")")
	if strings.HasPrefix(v, "AV:") && strings.Contains(v, "/Au:") {
		return V2, true
	}
	return "", false
}

// BaseScore dispatches on the vector version.
func BaseScore(vector string) (float64, Version, error) {
	ver, ok := Detect(vector)
	if !ok {
		return 0, "", fmt.Errorf("%w: unrecognized vector %q", ErrMalformedVector, vector)
	}
	var (
		score float64
		err   error
	)
	if ver == V2 {
		score, err = BaseScoreV2(vector)
	} else {
		score, err = BaseScoreV3(vector)
	}
	return score, ver, err
}

// BaseScoreV3 computes the base score of a CVSS v3.0 or v3.1 vector.
// Temporal and environmental metrics are validated and then ignored.
func BaseScoreV3(vector string) (float64, error) {
	v := strings.TrimSpace(vector)
	if ver, ok := Detect(v); !ok || ver == V2 {
		return 0, fmt.Errorf("%w: %q is not a CVSS v3 vector", ErrMalformedVector, vector)
	}
	m, err := cvssv3.NewEnvironmental().Decode(v)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrMalformedVector, err)
	}
	return m.BaseMetrics().Score(), nil
}

// BaseScoreV2 computes the base score of a CVSS v2 vector, with or without
// surrounding parentheses or a "CVSS:2.0/" prefix. Metrics must appear in
// the canonical order.
func BaseScoreV2(vector string) (float64, error) {
	v := strings.TrimSpace(vector)
	v = strings.TrimPrefix(v, "CVSS:2.0/")
	v = strings.TrimSuffix(strings.TrimPrefix(v, "("), ")")
	m, err := cvssv2.NewEnvironmental().Decode(v)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrMalformedVector, err)
	}
	return m.BaseMetrics().Score(), nil
}
