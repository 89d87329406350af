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

// Package outputhandler serializes analysis documents.
package outputhandler

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/venslabs/depgraph/pkg/sbom"
)

// OutputHandler receives assembled documents and writes them on Close.
type OutputHandler interface {
	HandleDocument(*sbom.Document) error
	Close() error
}

// Format names an output format.
type Format string

const (
	FormatAuto      Format = "auto"
	FormatCycloneDX Format = "cyclonedx"
	FormatOpenVEX   Format = "openvex"
	FormatSPDX      Format = "spdx"
	FormatTable     Format = "table"
	FormatTree      Format = "tree"
	FormatJSON      Format = "json"
)

// Formats lists the formats accepted by New.
var Formats = []Format{FormatCycloneDX, FormatOpenVEX, FormatSPDX, FormatTable, FormatTree, FormatJSON}

// ErrDocumentHandled is returned by handlers that write a single document
// when they receive a second one.
var ErrDocumentHandled = errors.New("output handler already received a document")

// FormatFromPath guesses the format of an output path. Unknown extensions
// and "-" (stdout) map to the table format.
func FormatFromPath(path string) Format {
	base := strings.ToLower(filepath.Base(path))
	switch {
	case strings.HasSuffix(base, ".openvex.json"), strings.HasSuffix(base, ".vex.json"):
		return FormatOpenVEX
	case strings.HasSuffix(base, ".cdx.json"), strings.HasSuffix(base, ".bom.json"), base == "bom.json":
		return FormatCycloneDX
	case strings.HasSuffix(base, ".spdx.json"):
		return FormatSPDX
	case strings.HasSuffix(base, ".json"):
		return FormatJSON
	case strings.HasSuffix(base, ".tree"), strings.HasSuffix(base, ".tree.txt"):
		return FormatTree
	}
	return FormatTable
}

// New returns the handler of format f writing to w. FormatAuto resolves
// against path.
func New(f Format, w io.Writer, path string) (OutputHandler, error) {
	if f == FormatAuto || f == "" {
		f = FormatFromPath(path)
	}
	switch f {
	case FormatCycloneDX:
		return NewCycloneDXOutputHandler(w), nil
	case FormatOpenVEX:
		return NewOpenVEXOutputHandler(w), nil
	case FormatSPDX:
		return NewSPDXOutputHandler(w), nil
	case FormatTable:
		return NewTableOutputHandler(w), nil
	case FormatTree:
		return NewTreeOutputHandler(w), nil
	case FormatJSON:
		return NewJSONOutputHandler(w), nil
	}
	return nil, fmt.Errorf("unknown output format %q (valid values: %v)", f, Formats)
}

// single holds the one document of handlers that write a single file.
type single struct {
	doc *sbom.Document
}

func (s *single) HandleDocument(d *sbom.Document) error {
	if s.doc != nil {
		return ErrDocumentHandled
	}
	s.doc = d
	return nil
}
