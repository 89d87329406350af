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

package analyze

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/venslabs/depgraph/pkg/config"
	"github.com/venslabs/depgraph/pkg/engine"
	"github.com/venslabs/depgraph/pkg/manifest"
	"github.com/venslabs/depgraph/pkg/metrics"
	"github.com/venslabs/depgraph/pkg/outputhandler"
	"github.com/venslabs/depgraph/pkg/sbom"
	"github.com/venslabs/depgraph/pkg/snapshot"
)

// ErrFailOn is returned after the output is written when a finding reaches
// the failOn band or an advisory lookup failed.
var ErrFailOn = errors.New("findings reached the failOn severity")

func New() *cobra.Command {
	cmd := &cobra.Command{
		Use:                   "analyze MANIFEST OUTPUT",
		Short:                 "Resolve a dependency graph and report its vulnerabilities",
		Long:                  "Resolve the dependency graph of a manifest or CycloneDX SBOM, match every component against an advisory store and write the assembled document. OUTPUT may be \"-\" for stdout.",
		Example:               Example(),
		Args:                  cobra.ExactArgs(2),
		RunE:                  action,
		DisableFlagsInUseLine: true,
	}

	flags := cmd.Flags()
	flags.String("config-file", "", "Path to config.yaml file")
	flags.String("input-format", string(manifest.FormatAuto), "Input format ([auto manifest cyclonedx])")
	flags.String("output-format", string(outputhandler.FormatAuto), fmt.Sprintf("Output format (auto %v)", outputhandler.Formats))
	flags.String("store", "", "Advisory store as KIND[:LOCATION], overriding the config file (e.g. sqlite:advisories.db, osvapi:https://api.osv.dev)")
	flags.Int("concurrency", config.DefaultConcurrency, "Maximum parallel resolutions and lookups [$DEPGRAPH_CONCURRENCY]")
	flags.Duration("timeout", config.DefaultTimeout, "Analysis timeout, 0 for none [$DEPGRAPH_TIMEOUT]")
	flags.Int("max-depth", 0, "Maximum graph depth, 0 for unlimited")
	flags.String("snapshot", "", "Save the document to this snapshot database")
	flags.String("snapshot-name", "", "Snapshot name (defaults to the project package URL or MANIFEST)")
	flags.String("metrics-addr", "", "Serve Prometheus metrics on this address during the analysis (e.g. :9090)")

	return cmd
}

func Example() string {
	return "depgraph analyze --config-file config.yaml --store sqlite:advisories.db manifest.yaml bom.cdx.json"
}

func action(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	flags := cmd.Flags()
	inputPath, outputPath := args[0], args[1]

	// Fail fast on the config before resolving anything.
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	inputFormat, _ := flags.GetString("input-format")
	m, err := manifest.Load(inputPath, manifest.Format(inputFormat))
	if err != nil {
		return fmt.Errorf("failed to load %q: %w", inputPath, err)
	}
	roots, err := m.Roots()
	if err != nil {
		return err
	}
	subject, err := m.Subject()
	if err != nil {
		return err
	}
	resolver, err := m.Resolver()
	if err != nil {
		return err
	}
	slog.DebugContext(ctx, "Manifest loaded", "roots", len(roots), "packages", resolver.Len())

	store, closer, err := engine.OpenStore(cfg.Store)
	if err != nil {
		return err
	}
	defer closer.Close() //nolint:errcheck

	opts, err := engine.FromConfig(cfg)
	if err != nil {
		return err
	}
	if addr, _ := flags.GetString("metrics-addr"); addr != "" {
		mt := metrics.New()
		stop := serveMetrics(ctx, addr, mt)
		defer stop()
		opts = append(opts, engine.WithMetrics(mt))
	}

	res, err := engine.New(resolver, store, opts...).Analyze(ctx, engine.Request{Roots: roots, Subject: subject})
	if err != nil {
		return err
	}

	outputFormat, _ := flags.GetString("output-format")
	if err := write(res.Document, outputhandler.Format(outputFormat), outputPath); err != nil {
		return err
	}

	if db, _ := flags.GetString("snapshot"); db != "" {
		name, _ := flags.GetString("snapshot-name")
		if name == "" {
			name = m.Project
		}
		if name == "" {
			name = inputPath
		}
		if err := save(db, name, res.Document); err != nil {
			return err
		}
	}

	band, ok, _ := cfg.FailOnBand()
	if ok && engine.Exceeds(res.Document, band) {
		if n := len(res.Document.Indeterminate); n > 0 {
			slog.WarnContext(ctx, "Advisory lookups failed, findings may be missing", "indeterminate", n, "failOn", band)
		}
		return fmt.Errorf("%w (%s)", ErrFailOn, band)
	}
	return nil
}

// loadConfig reads --config-file, or the defaults, and applies the flags
// that were set explicitly.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	flags := cmd.Flags()
	cfg := config.Default()
	if path, _ := flags.GetString("config-file"); path != "" {
		var err error
		if cfg, err = config.Load(path); err != nil {
			return nil, fmt.Errorf("failed to load config file %q: %w", path, err)
		}
	} else {
		cfg.ApplyEnv()
	}

	if flags.Changed("store") {
		s, _ := flags.GetString("store")
		st, err := config.ParseStore(s)
		if err != nil {
			return nil, err
		}
		st.Cache = cfg.Store.Cache
		cfg.Store = st
	}
	if flags.Changed("concurrency") {
		cfg.Concurrency, _ = flags.GetInt("concurrency")
	}
	if flags.Changed("timeout") {
		cfg.Timeout, _ = flags.GetDuration("timeout")
	}
	if flags.Changed("max-depth") {
		cfg.MaxDepth, _ = flags.GetInt("max-depth")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func write(d *sbom.Document, f outputhandler.Format, path string) error {
	var w io.Writer = os.Stdout
	if path != "-" {
		fw, err := os.Create(path)
		if err != nil {
			return err
		}
		defer fw.Close() //nolint:errcheck
		w = fw
	}
	if f == outputhandler.FormatAuto || f == "" {
		f = outputhandler.FormatFromPath(path)
		slog.Debug("Automatically choosing output format", "format", f)
	}
	h, err := outputhandler.New(f, w, path)
	if err != nil {
		return err
	}
	if err := h.HandleDocument(d); err != nil {
		return err
	}
	return h.Close()
}

func save(db, name string, d *sbom.Document) error {
	s, err := snapshot.Open(db)
	if err != nil {
		return err
	}
	defer s.Close() //nolint:errcheck
	e, err := s.Save(name, d)
	if err != nil {
		return err
	}
	slog.Info("Snapshot saved", "id", e.ID, "name", e.Name)
	return nil
}

// serveMetrics serves mt until the returned function is called.
func serveMetrics(ctx context.Context, addr string, mt *metrics.Metrics) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", mt.Handler())
	server := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		slog.InfoContext(ctx, "Serving metrics", "addr", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.ErrorContext(ctx, "Metrics server failed", "error", err)
		}
	}()
	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}
}
