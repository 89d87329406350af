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

package outputhandler

import (
	"fmt"
	"io"
	"os"

	"github.com/aquasecurity/table"
	"github.com/aquasecurity/tml"

	"github.com/venslabs/depgraph/pkg/sbom"
	"github.com/venslabs/depgraph/pkg/scorer"
)

type tableOutputHandler struct {
	w    io.Writer
	docs []*sbom.Document
}

// NewTableOutputHandler renders findings, unresolved and indeterminate
// components as a terminal table. A nil writer means stdout.
func NewTableOutputHandler(w io.Writer) OutputHandler {
	if w == nil {
		w = os.Stdout
	}
	return &tableOutputHandler{w: w}
}

func (h *tableOutputHandler) HandleDocument(d *sbom.Document) error {
	h.docs = append(h.docs, d)
	return nil
}

func (h *tableOutputHandler) Close() error {
	for _, d := range h.docs {
		h.render(d)
	}
	return nil
}

func (h *tableOutputHandler) render(d *sbom.Document) {
	t := table.New(h.w)
	t.SetHeaders("Package", "Version", "Vulnerability ID", "Severity", "Score", "Status")

	for _, fs := range d.Findings {
		c, ok := d.Component(fs.Identity)
		if !ok {
			continue
		}
		for _, f := range fs.Findings {
			score := "-"
			if !f.Score.Unknown {
				score = fmt.Sprintf("%.1f", *f.Score.Numeric)
			}
			t.AddRow(
				string(c.Identity),
				c.Coordinate.Version,
				f.Advisory.ID,
				colorSeverity(f.Score),
				score,
				"affected",
			)
		}
	}
	for _, id := range d.Indeterminate {
		c, _ := d.Component(id)
		t.AddRow(string(id), c.Coordinate.Version, "-", tml.Sprintf("<magenta>INDETERMINATE</magenta>"), "-", "lookup failed")
	}
	for _, id := range d.Unresolved {
		c, _ := d.Component(id)
		t.AddRow(string(id), c.Coordinate.Version, "-", "-", "-", tml.Sprintf("<yellow>unresolved</yellow>"))
	}
	t.Render()

	counts := d.Counts()
	fmt.Fprintf(h.w, "%d components, %d dependencies, %d cycles, %d unresolved, %d indeterminate\n",
		len(d.Components), len(d.Dependencies), len(d.Cycles), len(d.Unresolved), len(d.Indeterminate))
	fmt.Fprintf(h.w, "Findings: CRITICAL %d, HIGH %d, MEDIUM %d, LOW %d, NONE %d\n",
		counts[scorer.Critical], counts[scorer.High], counts[scorer.Medium], counts[scorer.Low], counts[scorer.None])
	for _, lc := range d.LicenseCollisions {
		fmt.Fprintf(h.w, "License collision (%s): %s\n", lc.Kind, lc)
	}
}

func colorSeverity(s scorer.Score) string {
	if s.Unknown {
		return tml.Sprintf("<dim>UNKNOWN</dim>")
	}
	switch s.Band {
	case scorer.Critical:
		return tml.Sprintf("<red><bold>CRITICAL</bold></red>")
	case scorer.High:
		return tml.Sprintf("<red>HIGH</red>")
	case scorer.Medium:
		return tml.Sprintf("<yellow>MEDIUM</yellow>")
	case scorer.Low:
		return tml.Sprintf("<blue>LOW</blue>")
	default:
		return string(s.Band)
	}
}
