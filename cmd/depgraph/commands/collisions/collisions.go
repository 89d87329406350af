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

package collisions

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/aquasecurity/table"
	"github.com/spf13/cobra"

	"github.com/venslabs/depgraph/pkg/collision"
	"github.com/venslabs/depgraph/pkg/manifest"
)

func New() *cobra.Command {
	cmd := &cobra.Command{
		Use:                   "collisions MANIFEST",
		Short:                 "Report packages with near-identical names",
		Long:                  "Report pairs of distinct packages named in a manifest or CycloneDX SBOM whose names are nearly identical, such as the same library published in two ecosystems or a typosquatted name.",
		Example:               Example(),
		Args:                  cobra.ExactArgs(1),
		RunE:                  action,
		DisableFlagsInUseLine: true,
	}

	flags := cmd.Flags()
	flags.String("input-format", string(manifest.FormatAuto), "Input format ([auto manifest cyclonedx])")
	flags.Float64("threshold", collision.DefaultThreshold, "Minimal name similarity in [0,1]")
	flags.Int("neighbors", collision.DefaultNeighbors, "Neighbors examined per package")
	flags.Bool("cross-ecosystem", false, "Only report pairs from different ecosystems")
	flags.Bool("json", false, "Print the pairs as JSON")

	return cmd
}

func Example() string {
	return "depgraph collisions --cross-ecosystem --threshold 0.9 bom.cdx.json"
}

func action(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	flags := cmd.Flags()

	inputFormat, _ := flags.GetString("input-format")
	m, err := manifest.Load(args[0], manifest.Format(inputFormat))
	if err != nil {
		return fmt.Errorf("failed to load %q: %w", args[0], err)
	}
	coords, err := m.Coordinates()
	if err != nil {
		return err
	}

	threshold, _ := flags.GetFloat64("threshold")
	if threshold < 0 || threshold > 1 {
		return fmt.Errorf("threshold must be between 0 and 1, got %v", threshold)
	}
	neighbors, _ := flags.GetInt("neighbors")
	cross, _ := flags.GetBool("cross-ecosystem")
	pairs := collision.Detect(coords,
		collision.WithThreshold(threshold),
		collision.WithNeighbors(neighbors),
		collision.WithCrossEcosystemOnly(cross),
	)
	slog.DebugContext(ctx, "Name collisions detected", "packages", len(coords), "pairs", len(pairs))

	w := cmd.OutOrStdout()
	if asJSON, _ := flags.GetBool("json"); asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(pairs)
	}
	t := table.New(w)
	t.SetHeaders("Package", "Similar Package", "Similarity", "Cross-Ecosystem")
	for _, p := range pairs {
		t.AddRow(string(p.A), string(p.B), fmt.Sprintf("%.4f", p.Similarity), fmt.Sprint(p.CrossEcosystem))
	}
	t.Render()
	return nil
}
