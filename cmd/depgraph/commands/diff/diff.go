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

package diff

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"slices"

	"github.com/spf13/cobra"

	"github.com/venslabs/depgraph/pkg/coordinate"
	"github.com/venslabs/depgraph/pkg/sbom"
	"github.com/venslabs/depgraph/pkg/snapshot"
)

func New() *cobra.Command {
	cmd := &cobra.Command{
		Use:                   "diff OLD NEW",
		Short:                 "Compare two analysis documents",
		Long:                  "Compare the components and findings of two documents. OLD and NEW are JSON documents written by \"analyze --output-format json\", or snapshot IDs when --snapshot is set.",
		Example:               Example(),
		Args:                  cobra.ExactArgs(2),
		RunE:                  action,
		DisableFlagsInUseLine: true,
	}

	flags := cmd.Flags()
	flags.String("snapshot", "", "Read OLD and NEW from this snapshot database")
	flags.Bool("json", false, "Print the difference as JSON")
	flags.Bool("exit-code", false, "Exit with an error when the documents differ")

	return cmd
}

func Example() string {
	return "depgraph diff --snapshot snapshots.db 1 2"
}

func action(cmd *cobra.Command, args []string) error {
	flags := cmd.Flags()
	db, _ := flags.GetString("snapshot")

	var (
		a, b *sbom.Document
		err  error
	)
	if db != "" {
		a, b, err = fromSnapshots(db, args[0], args[1])
	} else {
		a, b, err = fromFiles(args[0], args[1])
	}
	if err != nil {
		return err
	}

	delta := sbom.Diff(a, b)
	w := cmd.OutOrStdout()
	if asJSON, _ := flags.GetBool("json"); asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(delta); err != nil {
			return err
		}
	} else {
		printDelta(w, delta)
	}

	if exitCode, _ := flags.GetBool("exit-code"); exitCode && !delta.Empty() {
		return fmt.Errorf("documents differ")
	}
	return nil
}

func fromSnapshots(db, oldID, newID string) (*sbom.Document, *sbom.Document, error) {
	s, err := snapshot.Open(db)
	if err != nil {
		return nil, nil, err
	}
	defer s.Close() //nolint:errcheck
	a, err := s.Get(oldID)
	if err != nil {
		return nil, nil, err
	}
	b, err := s.Get(newID)
	if err != nil {
		return nil, nil, err
	}
	return a, b, nil
}

func fromFiles(oldPath, newPath string) (*sbom.Document, *sbom.Document, error) {
	a, err := readDocument(oldPath)
	if err != nil {
		return nil, nil, err
	}
	b, err := readDocument(newPath)
	if err != nil {
		return nil, nil, err
	}
	return a, b, nil
}

func readDocument(path string) (*sbom.Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close() //nolint:errcheck
	var d sbom.Document
	if err := json.NewDecoder(f).Decode(&d); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return &d, nil
}

func printDelta(w io.Writer, d sbom.Delta) {
	if d.Empty() {
		fmt.Fprintln(w, "No differences")
		return
	}
	for _, c := range d.Added {
		fmt.Fprintf(w, "+ %s@%s\n", c.Identity, c.Coordinate.Version)
	}
	for _, c := range d.Removed {
		fmt.Fprintf(w, "- %s@%s\n", c.Identity, c.Coordinate.Version)
	}
	for _, c := range d.Changed {
		fmt.Fprintf(w, "~ %s %s -> %s\n", c.Identity, c.From, c.To)
	}
	ids := make([]coordinate.Identity, 0, len(d.NewFindings))
	for id := range d.NewFindings {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	for _, id := range ids {
		for _, adv := range d.NewFindings[id] {
			fmt.Fprintf(w, "! %s %s\n", id, adv)
		}
	}
}
