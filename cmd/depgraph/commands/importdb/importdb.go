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

package importdb

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/venslabs/depgraph/pkg/advisory/osvdir"
	"github.com/venslabs/depgraph/pkg/advisory/sqlstore"
)

func New() *cobra.Command {
	cmd := &cobra.Command{
		Use:                   "import-db OSV_DIR DB",
		Short:                 "Import OSV advisories into a SQL advisory store",
		Long:                  "Import every OSV JSON file found under OSV_DIR into a SQLite database file or, with --driver postgres, into the PostgreSQL database named by the DB connection string.",
		Example:               Example(),
		Args:                  cobra.ExactArgs(2),
		RunE:                  action,
		DisableFlagsInUseLine: true,
	}

	flags := cmd.Flags()
	flags.String("driver", "sqlite", "Database driver (sqlite, postgres)")
	flags.Bool("strict", false, "Fail on undecodable OSV files instead of skipping them")

	return cmd
}

func Example() string {
	return "depgraph import-db ./osv advisories.db"
}

func action(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	flags := cmd.Flags()
	dir, dsn := args[0], args[1]

	driver, _ := flags.GetString("driver")
	strict, _ := flags.GetBool("strict")

	entries, err := osvdir.New(dir, osvdir.WithStrict(strict)).All(ctx)
	if err != nil {
		return err
	}
	slog.DebugContext(ctx, "OSV directory loaded", "dir", dir, "entries", len(entries))

	db, err := sqlstore.Open(sqlstore.Config{Driver: driver, DSN: dsn})
	if err != nil {
		return err
	}
	defer db.Close() //nolint:errcheck

	n, err := db.Import(ctx, entries)
	if err != nil {
		return fmt.Errorf("failed to import %s: %w", dir, err)
	}
	slog.InfoContext(ctx, "Advisories imported", "count", n, "db", dsn)
	return nil
}
