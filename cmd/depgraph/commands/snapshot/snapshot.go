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

package snapshot

import (
	"fmt"
	"strconv"
	"time"

	"github.com/aquasecurity/table"
	"github.com/spf13/cobra"

	"github.com/venslabs/depgraph/pkg/outputhandler"
	"github.com/venslabs/depgraph/pkg/snapshot"
)

func New() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Inspect saved analysis snapshots",
		Args:  cobra.NoArgs,
	}
	cmd.AddCommand(newListCommand(), newShowCommand())
	return cmd
}

func Example() string {
	return "depgraph snapshot show snapshots.db 3 --output-format tree"
}

func newListCommand() *cobra.Command {
	return &cobra.Command{
		Use:                   "list DB",
		Short:                 "List the snapshots of a database",
		Args:                  cobra.ExactArgs(1),
		RunE:                  listAction,
		DisableFlagsInUseLine: true,
	}
}

func newShowCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:                   "show DB ID",
		Short:                 "Print a saved document",
		Example:               Example(),
		Args:                  cobra.ExactArgs(2),
		RunE:                  showAction,
		DisableFlagsInUseLine: true,
	}
	cmd.Flags().String("output-format", string(outputhandler.FormatTable), fmt.Sprintf("Output format %v", outputhandler.Formats))
	return cmd
}

func listAction(cmd *cobra.Command, args []string) error {
	s, err := snapshot.Open(args[0])
	if err != nil {
		return err
	}
	defer s.Close() //nolint:errcheck

	entries, err := s.List()
	if err != nil {
		return err
	}
	t := table.New(cmd.OutOrStdout())
	t.SetHeaders("ID", "Name", "Timestamp", "Components", "Findings", "Unresolved", "Indeterminate")
	for _, e := range entries {
		t.AddRow(
			e.ID,
			e.Name,
			e.Timestamp.UTC().Format(time.RFC3339),
			strconv.Itoa(e.Components),
			strconv.Itoa(e.Findings),
			strconv.Itoa(e.Unresolved),
			strconv.Itoa(e.Indeterminate),
		)
	}
	t.Render()
	return nil
}

func showAction(cmd *cobra.Command, args []string) error {
	s, err := snapshot.Open(args[0])
	if err != nil {
		return err
	}
	defer s.Close() //nolint:errcheck

	d, err := s.Get(args[1])
	if err != nil {
		return err
	}
	format, _ := cmd.Flags().GetString("output-format")
	h, err := outputhandler.New(outputhandler.Format(format), cmd.OutOrStdout(), "-")
	if err != nil {
		return err
	}
	if err := h.HandleDocument(d); err != nil {
		return err
	}
	return h.Close()
}
