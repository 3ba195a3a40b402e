// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/AleutianAI/similarity/pkg/logging"
	"github.com/AleutianAI/similarity/services/similarity/analyzer"
	"github.com/AleutianAI/similarity/services/similarity/config"
	"github.com/AleutianAI/similarity/services/similarity/report"
	"github.com/AleutianAI/similarity/services/similarity/telemetry"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

// exitError carries a process exit status without an error message.
type exitError struct {
	code int
}

func (e *exitError) Error() string {
	return fmt.Sprintf("exit status %d", e.code)
}

// cliFlags holds raw flag values. Only flags the user changed are copied
// onto the loaded configuration.
type cliFlags struct {
	configPath string

	threshold          float64
	workers            int
	renameCost         float64
	minLines           int
	maxNodes           int
	minTokens          int
	noSizePenalty      bool
	filterFunction     string
	filterFunctionBody string
	noFunctions        bool
	noFast             bool

	types               bool
	experimentalTypes   bool
	typesOnly           bool
	interfacesOnly      bool
	allowCrossKind      bool
	structuralWeight    float64
	namingWeight        float64
	includeTypeLiterals bool

	overlap             bool
	experimentalOverlap bool
	overlapMinWindow    int
	overlapMaxWindow    int
	overlapTolerance    float64
	overlapSameFile     bool

	extensions  []string
	exclude     []string
	noGitignore bool

	format             string
	print              bool
	failOnDuplicates   bool
	reportSyntaxErrors bool
	logLevel           string

	traceExporter  string
	metricExporter string
	otlpEndpoint   string
	metricsAddr    string
}

// newRootCmd builds the command with its own flag set, so tests can run
// it in-process.
func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	cmd, _ := newCommand(stdout, stderr)
	return cmd
}

func newCommand(stdout, stderr io.Writer) (*cobra.Command, *cliFlags) {
	f := &cliFlags{}

	cmd := &cobra.Command{
		Use:   "similarity [paths...]",
		Short: "Find structurally similar code in TypeScript and JavaScript",
		Long: `similarity compares function bodies, type declarations and statement
windows by tree edit distance and reports the pairs above a threshold.

Configuration is layered: flags > SIMILARITY_* environment > config file > defaults.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, f, args, stdout, stderr)
		},
	}
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	d := config.Default()
	fl := cmd.Flags()

	fl.StringVarP(&f.configPath, "config", "c", "", "Path to a YAML or JSON config file")

	fl.Float64VarP(&f.threshold, "threshold", "t", d.Threshold, "Similarity threshold (0.0-1.0)")
	fl.IntVar(&f.workers, "workers", 0, "Parallel workers (0 = number of CPUs)")
	fl.Float64VarP(&f.renameCost, "rename-cost", "r", d.Functions.RenameCost, "Cost of renaming a node (0.0-1.0)")
	fl.IntVarP(&f.minLines, "min-lines", "m", d.Functions.MinLines, "Minimum lines for a function to be considered")
	fl.IntVar(&f.maxNodes, "max-nodes", d.Functions.MaxNodes, "Skip functions with more AST nodes than this (0 disables the limit)")
	fl.IntVar(&f.minTokens, "min-tokens", 0, "Minimum tokens for a function to be considered (overrides --min-lines)")
	fl.BoolVar(&f.noSizePenalty, "no-size-penalty", false, "Disable the penalty for functions of very different size")
	fl.StringVar(&f.filterFunction, "filter-function", "", "Only compare functions whose name contains this substring")
	fl.StringVar(&f.filterFunctionBody, "filter-function-body", "", "Only compare functions whose body contains this substring")
	fl.BoolVar(&f.noFunctions, "no-functions", false, "Disable function similarity")
	fl.BoolVar(&f.noFast, "no-fast", false, "Disable the pre-filter and compare every pair exhaustively")

	fl.BoolVar(&f.types, "types", false, "Enable type similarity")
	fl.BoolVar(&f.experimentalTypes, "experimental-types", false, "Alias for --types")
	fl.BoolVar(&f.typesOnly, "types-only", false, "Compare type aliases only")
	fl.BoolVar(&f.interfacesOnly, "interfaces-only", false, "Compare interfaces only")
	fl.BoolVar(&f.allowCrossKind, "allow-cross-kind", false, "Compare interfaces with type aliases")
	fl.Float64Var(&f.structuralWeight, "structural-weight", d.Types.StructuralWeight, "Weight of structural similarity for types")
	fl.Float64Var(&f.namingWeight, "naming-weight", d.Types.NamingWeight, "Weight of name similarity for types")
	fl.BoolVar(&f.includeTypeLiterals, "include-type-literals", false, "Match inline object types against declared types")

	fl.BoolVar(&f.overlap, "overlap", false, "Enable overlap detection between statement windows")
	fl.BoolVar(&f.experimentalOverlap, "experimental-overlap", false, "Alias for --overlap")
	fl.IntVar(&f.overlapMinWindow, "overlap-min-window", d.Overlap.MinWindowSize, "Minimum window size in nodes")
	fl.IntVar(&f.overlapMaxWindow, "overlap-max-window", d.Overlap.MaxWindowSize, "Maximum window size in nodes")
	fl.Float64Var(&f.overlapTolerance, "overlap-size-tolerance", d.Overlap.SizeTolerance, "Allowed relative size difference of compared windows")
	fl.BoolVar(&f.overlapSameFile, "overlap-same-file", false, "Also report overlaps within a single file")

	fl.StringSliceVarP(&f.extensions, "extensions", "e", nil, "File extensions to scan (default: per analyzer)")
	fl.StringSliceVar(&f.exclude, "exclude", nil, "Glob patterns to exclude (repeatable)")
	fl.BoolVar(&f.noGitignore, "no-gitignore", false, "Do not honor .gitignore files")

	fl.StringVarP(&f.format, "format", "f", d.Output.Format, "Output format: text, json, markdown")
	fl.BoolVarP(&f.print, "print", "p", false, "Print the code of each reported pair")
	fl.BoolVar(&f.failOnDuplicates, "fail-on-duplicates", false, "Exit with status 1 when duplicates are found")
	fl.BoolVar(&f.reportSyntaxErrors, "report-syntax-errors", false, "Report files with syntax errors")
	fl.StringVar(&f.logLevel, "log-level", d.Output.LogLevel, "Log level: debug, info, warn, error")

	fl.StringVar(&f.traceExporter, "trace-exporter", d.Telemetry.TraceExporter, "Trace exporter: none, stdout, otlp")
	fl.StringVar(&f.metricExporter, "metric-exporter", d.Telemetry.MetricExporter, "Metric exporter: none, stdout, prometheus")
	fl.StringVar(&f.otlpEndpoint, "otlp-endpoint", d.Telemetry.OTLPEndpoint, "OTLP gRPC endpoint for traces")
	fl.StringVar(&f.metricsAddr, "metrics-addr", "", "Serve /metrics on this address (requires --metric-exporter prometheus)")

	_ = fl.MarkHidden("experimental-types")
	_ = fl.MarkHidden("experimental-overlap")
	cmd.MarkFlagsMutuallyExclusive("types-only", "interfaces-only")

	return cmd, f
}

// applyFlags copies changed flags onto cfg.
func applyFlags(fs *pflag.FlagSet, f *cliFlags, cfg *config.Config) {
	changed := fs.Changed

	if changed("threshold") {
		cfg.Threshold = f.threshold
	}
	if changed("workers") {
		cfg.Workers = f.workers
	}
	if changed("rename-cost") {
		cfg.Functions.RenameCost = f.renameCost
	}
	if changed("min-lines") {
		cfg.Functions.MinLines = f.minLines
	}
	if changed("max-nodes") {
		cfg.Functions.MaxNodes = f.maxNodes
	}
	if changed("min-tokens") {
		cfg.Functions.MinTokens = f.minTokens
	}
	if changed("no-size-penalty") {
		cfg.Functions.SizePenalty = !f.noSizePenalty
	}
	if changed("filter-function") {
		cfg.Functions.FilterFunction = f.filterFunction
	}
	if changed("filter-function-body") {
		cfg.Functions.FilterFunctionBody = f.filterFunctionBody
	}
	if changed("no-functions") {
		cfg.Functions.Enabled = !f.noFunctions
	}
	if changed("no-fast") {
		cfg.Functions.Fast = !f.noFast
	}

	if changed("types") || changed("experimental-types") {
		cfg.Types.Enabled = f.types || f.experimentalTypes
	}
	switch {
	case f.typesOnly:
		cfg.Types.Kinds = "aliases"
	case f.interfacesOnly:
		cfg.Types.Kinds = "interfaces"
	}
	if changed("allow-cross-kind") {
		cfg.Types.AllowCrossKind = f.allowCrossKind
	}
	if changed("structural-weight") {
		cfg.Types.StructuralWeight = f.structuralWeight
	}
	if changed("naming-weight") {
		cfg.Types.NamingWeight = f.namingWeight
	}
	if changed("include-type-literals") {
		cfg.Types.IncludeTypeLiterals = f.includeTypeLiterals
	}

	if changed("overlap") || changed("experimental-overlap") {
		cfg.Overlap.Enabled = f.overlap || f.experimentalOverlap
	}
	if changed("overlap-min-window") {
		cfg.Overlap.MinWindowSize = f.overlapMinWindow
	}
	if changed("overlap-max-window") {
		cfg.Overlap.MaxWindowSize = f.overlapMaxWindow
	}
	if changed("overlap-size-tolerance") {
		cfg.Overlap.SizeTolerance = f.overlapTolerance
	}
	if changed("overlap-same-file") {
		cfg.Overlap.SameFile = f.overlapSameFile
	}

	if changed("extensions") {
		cfg.Discovery.Extensions = f.extensions
	}
	if changed("exclude") {
		cfg.Discovery.Exclude = append(cfg.Discovery.Exclude, f.exclude...)
	}
	if changed("no-gitignore") {
		cfg.Discovery.RespectGitignore = !f.noGitignore
	}

	if changed("format") {
		cfg.Output.Format = f.format
	}
	if changed("print") {
		cfg.Output.Print = f.print
	}
	if changed("fail-on-duplicates") {
		cfg.Output.FailOnDuplicates = f.failOnDuplicates
	}
	if changed("report-syntax-errors") {
		cfg.Output.ReportSyntaxErrors = f.reportSyntaxErrors
	}
	if changed("log-level") {
		cfg.Output.LogLevel = f.logLevel
	}

	if changed("trace-exporter") {
		cfg.Telemetry.TraceExporter = f.traceExporter
	}
	if changed("metric-exporter") {
		cfg.Telemetry.MetricExporter = f.metricExporter
	}
	if changed("otlp-endpoint") {
		cfg.Telemetry.OTLPEndpoint = f.otlpEndpoint
	}
	if changed("metrics-addr") {
		cfg.Telemetry.MetricsAddr = f.metricsAddr
	}
}

func run(cmd *cobra.Command, f *cliFlags, args []string, stdout, stderr io.Writer) error {
	cfg, err := config.Load(f.configPath)
	if err != nil {
		return err
	}
	applyFlags(cmd.Flags(), f, &cfg)

	level, err := logging.ParseLevel(cfg.Output.LogLevel)
	if err != nil {
		return err
	}
	logger := logging.New(logging.Config{Level: level, Service: "similarity", Writer: stderr})
	slog.SetDefault(logger.Slog())

	warnings, err := cfg.Resolve()
	if errors.Is(err, config.ErrNoAnalyzer) {
		fmt.Fprintln(stderr, config.NoAnalyzerHint)
		return &exitError{code: 1}
	}
	if err != nil {
		return err
	}
	for _, w := range warnings {
		logger.Warn(w.Message, "field", w.Field)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdown, err := initTelemetry(ctx, cfg, stderr, logger)
	if err != nil {
		return err
	}
	defer shutdown()

	paths := args
	if len(paths) == 0 {
		paths = []string{"."}
	}

	rep, err := analyzer.New(cfg, analyzer.WithLogger(logger.Slog())).Run(ctx, paths)
	if err != nil {
		return err
	}
	for _, w := range warnings {
		rep.Warnings = append(rep.Warnings, w.Message)
	}

	format, err := report.ParseFormat(cfg.Output.Format)
	if err != nil {
		return err
	}
	baseDir, _ := os.Getwd()
	formatter, err := report.NewFormatter(format, report.Options{
		Print:   cfg.Output.Print,
		Color:   report.IsTerminal(stdout),
		BaseDir: baseDir,
	})
	if err != nil {
		return err
	}
	if err := formatter.FormatStreaming(rep, stdout); err != nil {
		return fmt.Errorf("write report: %w", err)
	}

	if cfg.Output.FailOnDuplicates && rep.HasDuplicates() {
		return &exitError{code: 1}
	}
	return nil
}

// initTelemetry installs the configured exporters and, when requested,
// the /metrics endpoint. The returned function flushes everything.
func initTelemetry(ctx context.Context, cfg config.Config, stderr io.Writer, logger *logging.Logger) (func(), error) {
	tcfg := telemetry.DefaultConfig()
	tcfg.ServiceVersion = version
	tcfg.TraceExporter = cfg.Telemetry.TraceExporter
	tcfg.MetricExporter = cfg.Telemetry.MetricExporter
	tcfg.OTLPEndpoint = cfg.Telemetry.OTLPEndpoint
	tcfg.OTLPInsecure = cfg.Telemetry.OTLPInsecure
	tcfg.Writer = stderr

	shutdownTelemetry, err := telemetry.Init(ctx, tcfg)
	if err != nil {
		return nil, fmt.Errorf("init telemetry: %w", err)
	}

	stopMetrics := func() error { return nil }
	if cfg.Telemetry.MetricsAddr != "" {
		stop, addr, err := telemetry.ServeMetrics(ctx, cfg.Telemetry.MetricsAddr)
		if err != nil {
			_ = shutdownTelemetry(context.Background())
			return nil, fmt.Errorf("serve metrics: %w", err)
		}
		logger.Info("serving metrics", "addr", addr.String())
		stopMetrics = stop
	}

	return func() {
		wait := cfg.Telemetry.ShutdownWait
		if wait <= 0 {
			wait = config.Default().Telemetry.ShutdownWait
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), wait)
		defer cancel()
		if err := stopMetrics(); err != nil {
			logger.Warn("metrics server shutdown failed", "error", err.Error())
		}
		if err := shutdownTelemetry(shutdownCtx); err != nil {
			logger.Warn("telemetry shutdown failed", "error", err.Error())
		}
	}, nil
}
