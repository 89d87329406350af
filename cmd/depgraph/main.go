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

package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/venslabs/depgraph/cmd/depgraph/commands/analyze"
	"github.com/venslabs/depgraph/cmd/depgraph/commands/collisions"
	"github.com/venslabs/depgraph/cmd/depgraph/commands/diff"
	"github.com/venslabs/depgraph/cmd/depgraph/commands/importdb"
	"github.com/venslabs/depgraph/cmd/depgraph/commands/snapshot"
	"github.com/venslabs/depgraph/cmd/depgraph/version"
	"github.com/venslabs/depgraph/pkg/envutil"
)

var logLevel = new(slog.LevelVar)

func main() {
	setLogger("text")
	if err := newRootCommand().Execute(); err != nil {
		slog.Error("Error", "error", err)
		os.Exit(1)
	}
}

func setLogger(format string) {
	opts := &slog.HandlerOptions{Level: logLevel}
	var h slog.Handler = slog.NewTextHandler(os.Stderr, opts)
	if format == "json" {
		h = slog.NewJSONHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(h))
}

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "depgraph",
		Short:         "Resolve dependency graphs and correlate them with known vulnerabilities",
		Example:       analyze.Example(),
		Version:       version.GetVersion(),
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	flags := cmd.PersistentFlags()

	// CLI flag > DEBUG env var > default (false)
	flags.Bool("debug", envutil.Bool("DEBUG", false), "debug mode [$DEBUG]")
	flags.String("log-format", "text", "Log format (text, json)")

	cmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		format, _ := cmd.Flags().GetString("log-format")
		switch format {
		case "text", "json":
			setLogger(format)
		default:
			return fmt.Errorf("unknown log format %q", format)
		}
		if debug, _ := cmd.Flags().GetBool("debug"); debug {
			logLevel.Set(slog.LevelDebug)
		}
		return nil
	}

	cmd.AddCommand(
		analyze.New(),
		importdb.New(),
		snapshot.New(),
		diff.New(),
		collisions.New(),
	)
	return cmd
}
