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

// Package versionrange parses and evaluates affected-version expressions.
//
// Supported forms:
//
//	*                 any version
//	1.2.* / 1.2.x     prefix wildcard
//	1.2.3 / =1.2.3    exact version
//	>=1.0.0,<2.0.0    conjunction of comparators (comma or space separated)
//	[1.0,2.0)         Maven interval; either bound may be empty: (,1.5] [1.2,)
//	[1.2]             Maven exact version
//
// ParseAll additionally splits "||" alternatives.
package versionrange

import (
	"fmt"
	"strings"

	"github.com/venslabs/depgraph/pkg/versioncmp"
)

// Kind is the shape of a range.
type Kind int

const (
	Interval Kind = iota
	Exact
	Any
	Prefix
)

// Bound is one end of an interval. An unset bound is unbounded.
type Bound struct {
	Version   string `json:"version,omitempty" yaml:"version,omitempty"`
	Inclusive bool   `json:"inclusive,omitempty" yaml:"inclusive,omitempty"`
}

// Range is an immutable version range.
type Range struct {
	Kind  Kind
	Lower *Bound
	Upper *Bound
	// Exact holds the version of an Exact range, or the prefix of a Prefix range.
	Exact string
}

// AnyVersion matches every version.
func AnyVersion() Range { return Range{Kind: Any} }

// ExactVersion matches only v (compared semantically).
func ExactVersion(v string) Range { return Range{Kind: Exact, Exact: v} }

// Between builds an interval. Empty versions mean unbounded.
func Between(lower string, lowerInclusive bool, upper string, upperInclusive bool) Range {
	r := Range{Kind: Interval}
	if lower != "" {
		r.Lower = &Bound{Version: lower, Inclusive: lowerInclusive}
	}
	if upper != "" {
		r.Upper = &Bound{Version: upper, Inclusive: upperInclusive}
	}
	return r
}

// FromEvents converts an OSV-style event pair to a range. introduced "0" or
// "" is unbounded below; fixed is exclusive; lastAffected is inclusive and is
// used only when fixed is empty.
func FromEvents(introduced, fixed, lastAffected string) Range {
	if introduced == "0" {
		introduced = ""
	}
	switch {
	case fixed != "":
		return Between(introduced, true, fixed, false)
	case lastAffected != "":
		return Between(introduced, true, lastAffected, true)
	default:
		return Between(introduced, true, "", false)
	}
}

// Contains reports whether version v lies within r under comparator c.
func (r Range) Contains(v string, c versioncmp.Comparator) bool {
	switch r.Kind {
	case Any:
		return true
	case Exact:
		return c.Compare(v, r.Exact) == 0
	case Prefix:
		return v == r.Exact || strings.HasPrefix(v, r.Exact+".")
	}
	if r.Lower != nil {
		cmp := c.Compare(v, r.Lower.Version)
		if cmp < 0 || (cmp == 0 && !r.Lower.Inclusive) {
			return false
		}
	}
	if r.Upper != nil {
		cmp := c.Compare(v, r.Upper.Version)
		if cmp > 0 || (cmp == 0 && !r.Upper.Inclusive) {
			return false
		}
	}
	return true
}

// String renders r in comparator form; Parse(r.String()) yields an
// equivalent range.
func (r Range) String() string {
	switch r.Kind {
	case Any:
		return "*"
	case Exact:
		return "=" + r.Exact
	case Prefix:
		return r.Exact + ".*"
	}
	var parts []string
	if r.Lower != nil {
		op := ">"
		if r.Lower.Inclusive {
			op = ">="
		}
		parts = append(parts, op+r.Lower.Version)
	}
	if r.Upper != nil {
		op := "<"
		if r.Upper.Inclusive {
			op = "<="
		}
		parts = append(parts, op+r.Upper.Version)
	}
	if len(parts) == 0 {
		return "*"
	}
	return strings.Join(parts, ",")
}

// ParseAll parses an expression that may hold "||" alternatives.
func ParseAll(expr string) ([]Range, error) {
	var out []Range
	for _, alt := range strings.Split(expr, "||") {
		r, err := Parse(alt)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

// Parse parses a single range expression.
func Parse(expr string) (Range, error) {
	s := strings.TrimSpace(expr)
	switch {
	case s == "" || s == "*" || s == "x":
		return AnyVersion(), nil
	case strings.HasPrefix(s, "[") || strings.HasPrefix(s, "("):
		return parseInterval(s)
	case strings.HasSuffix(s, ".*") || strings.HasSuffix(s, ".x"):
		p := s[:len(s)-2]
		if p == "" || strings.ContainsAny(p, "<>=, ") {
			return Range{}, fmt.Errorf("invalid wildcard range %q", expr)
		}
		return Range{Kind: Prefix, Exact: p}, nil
	}
	return parseComparators(s, expr)
}

func parseInterval(s string) (Range, error) {
	if len(s) < 2 {
		return Range{}, fmt.Errorf("invalid interval %q", s)
	}
	open, close := s[0], s[len(s)-1]
	if close != ']' && close != ')' {
		return Range{}, fmt.Errorf("invalid interval %q: missing closing bracket", s)
	}
	body := s[1 : len(s)-1]
	parts := strings.Split(body, ",")
	switch len(parts) {
	case 1:
		v := strings.TrimSpace(parts[0])
		if open != '[' || close != ']' || v == "" {
			return Range{}, fmt.Errorf("invalid interval %q: a single version must use [v]", s)
		}
		return ExactVersion(v), nil
	case 2:
		lo, hi := strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1])
		if lo == "" && hi == "" {
			return AnyVersion(), nil
		}
		return Between(lo, open == '[', hi, close == ']'), nil
	}
	return Range{}, fmt.Errorf("invalid interval %q: too many bounds", s)
}

func parseComparators(s, expr string) (Range, error) {
	type term struct{ op, v string }
	var terms []term
	fields := strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == ' ' || r == '\t' })
	for i := 0; i < len(fields); i++ {
		op := leadingOperator(fields[i])
		v := fields[i][len(op):]
		// tolerate ">= 1.0" written with a space
		if v == "" && op != "" && i+1 < len(fields) {
			i++
			v = fields[i]
		}
		if v == "" {
			return Range{}, fmt.Errorf("invalid range %q: operator %q without version", expr, op)
		}
		terms = append(terms, term{op, v})
	}

	r := Range{Kind: Interval}
	for _, t := range terms {
		op, v := t.op, t.v
		switch op {
		case "", "=", "==":
			if len(terms) != 1 {
				return Range{}, fmt.Errorf("invalid range %q: exact version mixed with comparators", expr)
			}
			return ExactVersion(v), nil
		case ">", ">=":
			if r.Lower != nil {
				return Range{}, fmt.Errorf("invalid range %q: duplicate lower bound", expr)
			}
			r.Lower = &Bound{Version: v, Inclusive: op == ">="}
		case "<", "<=":
			if r.Upper != nil {
				return Range{}, fmt.Errorf("invalid range %q: duplicate upper bound", expr)
			}
			r.Upper = &Bound{Version: v, Inclusive: op == "<="}
		default:
			return Range{}, fmt.Errorf("invalid range %q: unknown operator %q", expr, op)
		}
	}
	return r, nil
}

func leadingOperator(s string) string {
	for _, op := range []string{">=", "<=", "==", "!=", ">", "<", "="} {
		if strings.HasPrefix(s, op) {
			return op
		}
	}
	return ""
}

// MarshalText encodes r in its String form.
func (r Range) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// UnmarshalText parses a single range expression.
func (r *Range) UnmarshalText(b []byte) error {
	parsed, err := Parse(string(b))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}
