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

package sbom

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/venslabs/depgraph/pkg/api/types"
)

// StreamHandler receives the parts of a CycloneDX document as they are
// decoded. Nil callbacks skip their section.
type StreamHandler struct {
	// Subject is called with metadata.component.
	Subject func(types.SBOMComponent) error
	// Component is called for every entry of the components array.
	Component func(types.SBOMComponent) error
	// Dependency is called for every entry of the dependencies array.
	Dependency func(types.SBOMDependency) error
}

// StreamCycloneDX performs a single-pass streaming parse of a CycloneDX JSON
// document. It never holds more than one component or dependency in
// memory; sections without a handler are skipped token by token.
//
// Components are passed with ParentPURL set to the subject's purl when the
// metadata section precedes them.
func StreamCycloneDX(r io.Reader, h StreamHandler) error {
	dec := json.NewDecoder(r)
	if err := expectDelim(dec, '{', "CycloneDX JSON: expected object start"); err != nil {
		return err
	}

	parentPURL := ""
	for dec.More() {
		t, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := t.(string)
		if !ok {
			return fmt.Errorf("invalid key token")
		}

		switch {
		case key == "metadata":
			subject, err := readSubject(dec)
			if err != nil {
				return err
			}
			if subject != nil {
				parentPURL = subject.PURL
				if h.Subject != nil {
					if err := h.Subject(*subject); err != nil {
						return err
					}
				}
			}

		case key == "components" && h.Component != nil:
			err := streamArray(dec, "components", func() error {
				var c types.SBOMComponent
				if err := dec.Decode(&c); err != nil {
					return err
				}
				c.ParentPURL = parentPURL
				return h.Component(c)
			})
			if err != nil {
				return err
			}

		case key == "dependencies" && h.Dependency != nil:
			err := streamArray(dec, "dependencies", func() error {
				var d types.SBOMDependency
				if err := dec.Decode(&d); err != nil {
					return err
				}
				return h.Dependency(d)
			})
			if err != nil {
				return err
			}

		default:
			if err := skipAny(dec); err != nil {
				return err
			}
		}
	}
	// Consume '}' of the root object
	_, err := dec.Token()
	return err
}

// readSubject decodes metadata.component and skips the rest of metadata.
func readSubject(dec *json.Decoder) (*types.SBOMComponent, error) {
	if err := expectDelim(dec, '{', "invalid metadata object"); err != nil {
		return nil, err
	}
	var subject *types.SBOMComponent
	for dec.More() {
		tk, err := dec.Token()
		if err != nil {
			return nil, err
		}
		mkey, ok := tk.(string)
		if !ok {
			return nil, fmt.Errorf("invalid metadata key")
		}
		if mkey != "component" {
			if err := skipAny(dec); err != nil {
				return nil, err
			}
			continue
		}
		var c types.SBOMComponent
		if err := dec.Decode(&c); err != nil {
			return nil, err
		}
		subject = &c
	}
	// Consume '}' for metadata
	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	return subject, nil
}

func streamArray(dec *json.Decoder, name string, each func() error) error {
	if err := expectDelim(dec, '[', "invalid "+name+" array"); err != nil {
		return err
	}
	for dec.More() {
		if err := each(); err != nil {
			return err
		}
	}
	// Consume closing ']'
	_, err := dec.Token()
	return err
}

func expectDelim(dec *json.Decoder, want json.Delim, msg string) error {
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != want {
		return fmt.Errorf("%s", msg)
	}
	return nil
}

// skipAny consumes the next JSON value in full (scalar, object, or array).
func skipAny(dec *json.Decoder) error {
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	d, isDelim := tok.(json.Delim)
	if !isDelim || (d != '{' && d != '[') {
		return nil
	}
	// Track nested delimiters using a simple depth counter.
	depth := 1
	for depth > 0 {
		t, err := dec.Token()
		if err != nil {
			return err
		}
		if dd, ok := t.(json.Delim); ok {
			switch dd {
			case '{', '[':
				depth++
			case '}', ']':
				depth--
			}
		}
	}
	return nil
}
