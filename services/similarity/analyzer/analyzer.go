// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package analyzer runs the similarity pipeline over a set of paths.
//
// # Pipeline
//
//  1. Discover source files (discovery)
//  2. Read, parse, and extract every file in parallel (ast, extract)
//  3. Run the enabled engines in parallel (funcsim, typesim, overlap)
//  4. Aggregate into a normalized report (report)
//
// A file that fails to read, parse, or extract becomes a diagnostic on
// the report. It never aborts the run or affects other files.
package analyzer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/similarity/services/similarity/ast"
	"github.com/AleutianAI/similarity/services/similarity/config"
	"github.com/AleutianAI/similarity/services/similarity/discovery"
	"github.com/AleutianAI/similarity/services/similarity/extract"
	"github.com/AleutianAI/similarity/services/similarity/funcsim"
	"github.com/AleutianAI/similarity/services/similarity/overlap"
	"github.com/AleutianAI/similarity/services/similarity/report"
	"github.com/AleutianAI/similarity/services/similarity/telemetry"
	"github.com/AleutianAI/similarity/services/similarity/typesim"
)

// Pipeline stages recorded on diagnostics.
const (
	StageDiscover = "discover"
	StageRead     = "read"
	StageParse    = "parse"
	StageExtract  = "extract"
)

// ErrNilContext is returned when Run is called with a nil context.
var ErrNilContext = errors.New("ctx must not be nil")

// Analyzer runs the configured engines over source files.
//
// # Thread Safety
//
// Safe for concurrent use. Each Run owns its own state.
type Analyzer struct {
	cfg      config.Config
	registry *ast.ParserRegistry
	logger   *slog.Logger
}

// Option configures an Analyzer.
type Option func(*Analyzer)

// WithRegistry replaces the default tree-sitter parser registry.
func WithRegistry(r *ast.ParserRegistry) Option {
	return func(a *Analyzer) {
		if r != nil {
			a.registry = r
		}
	}
}

// WithLogger sets the logger. Nil keeps slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(a *Analyzer) {
		if l != nil {
			a.logger = l
		}
	}
}

// New creates an Analyzer for a resolved configuration.
//
// # Inputs
//
//   - cfg: Configuration, already passed through Config.Resolve.
//   - opts: Optional overrides.
//
// # Outputs
//
//   - *Analyzer: Ready to Run.
func New(cfg config.Config, opts ...Option) *Analyzer {
	a := &Analyzer{
		cfg:    cfg,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.registry == nil {
		a.registry = ast.NewDefaultRegistry(ast.WithMaxFileSize(cfg.Discovery.MaxFileSize))
	}
	return a
}

// fileResult is the per-file outcome of the parse stage.
type fileResult struct {
	path      string
	source    []byte
	tree      *ast.Tree
	extracted *extract.Result
	diag      *report.Diagnostic
}

// Run analyzes paths and returns the report.
//
// # Description
//
// Discovers files with the union of the extensions of every enabled
// engine, parses each file once, and feeds functions and windows from
// function-extension files and types from type-extension files to the
// engines. The report is normalized before it is returned.
//
// # Inputs
//
//   - ctx: Cancellation for every stage. Must not be nil.
//   - paths: Files or directories.
//
// # Outputs
//
//   - *report.Report: Results, per-file diagnostics, and stats.
//   - error: Non-nil for no paths, invalid engine options, or
//     cancellation. Per-file failures are never returned here.
func (a *Analyzer) Run(ctx context.Context, paths []string) (rep *report.Report, err error) {
	if ctx == nil {
		return nil, ErrNilContext
	}

	sections := report.Sections{
		Functions: a.cfg.Functions.Enabled,
		Types:     a.cfg.Types.Enabled,
		Overlap:   a.cfg.Overlap.Enabled,
	}

	ctx, span := startRunSpan(ctx, len(paths), sections)
	defer span.End()
	start := time.Now()
	defer func() {
		if rep == nil {
			setSpanResult(span, 0, 0, err)
			return
		}
		setSpanResult(span, rep.Stats.Files, rep.Total(), err)
		recordRunMetrics(ctx, rep.Stats.Duration, rep.Stats.Parsed, len(rep.Functions), len(rep.Types)+len(rep.Literals), len(rep.Overlaps))
	}()

	logger := telemetry.LoggerWithTrace(ctx, a.logger)
	rep = report.New(sections)

	funcExts, typeExts := a.extensions()
	var wanted [][]string
	if sections.Functions || sections.Overlap {
		wanted = append(wanted, funcExts)
	}
	if sections.Types {
		wanted = append(wanted, typeExts)
	}

	found, err := discovery.Discover(ctx, paths, discovery.Options{
		Extensions:       discovery.Union(wanted...),
		Exclude:          a.cfg.Discovery.Exclude,
		RespectGitignore: a.cfg.Discovery.RespectGitignore,
		MaxFileSize:      a.cfg.Discovery.MaxFileSize,
	})
	if err != nil {
		return nil, fmt.Errorf("discover: %w", err)
	}
	for _, p := range found.Missing {
		rep.Warnings = append(rep.Warnings, fmt.Sprintf("path not found: %s", p))
	}
	for _, p := range found.InvalidPatterns {
		rep.Warnings = append(rep.Warnings, fmt.Sprintf("invalid exclude pattern: %s", p))
	}
	for _, s := range found.Skipped {
		rep.Diagnostics = append(rep.Diagnostics, a.diagnostic(ctx, s.Path, StageDiscover, s.Err))
	}

	files, err := a.parseAll(ctx, found.Files)
	if err != nil {
		return nil, err
	}

	var (
		units    []extract.CodeUnit
		types    []extract.TypeDefinition
		literals []extract.TypeLiteralDefinition
		trees    = make(map[string]*ast.Tree)
	)
	if a.cfg.Output.Print {
		rep.Sources = make(map[string][]byte, len(files))
	}
	for i := range files {
		f := &files[i]
		if f.diag != nil {
			rep.Diagnostics = append(rep.Diagnostics, *f.diag)
			continue
		}
		rep.Stats.Parsed++
		if rep.Sources != nil {
			rep.Sources[f.path] = f.source
		}
		if discovery.HasExtension(f.path, funcExts) {
			if sections.Functions {
				units = append(units, f.extracted.Functions...)
			}
			if sections.Overlap {
				trees[f.path] = f.tree
			}
		}
		if sections.Types && discovery.HasExtension(f.path, typeExts) {
			types = append(types, f.extracted.Types...)
			literals = append(literals, f.extracted.Literals...)
		}
	}
	rep.Stats.Files = len(found.Files)
	rep.Stats.Functions = len(units)
	rep.Stats.Types = len(types)
	rep.Stats.Literals = len(literals)

	logger.Info("files parsed",
		slog.Int("files", rep.Stats.Files),
		slog.Int("parsed", rep.Stats.Parsed),
		slog.Int("functions", len(units)),
		slog.Int("types", len(types)),
	)

	if err := a.runEngines(ctx, rep, units, types, literals, trees); err != nil {
		return nil, err
	}

	rep.Stats.Duration = time.Since(start)
	rep.Normalize()
	return rep, nil
}

// extensions returns the function and type extension sets. A configured
// list replaces both defaults.
func (a *Analyzer) extensions() (funcExts, typeExts []string) {
	if len(a.cfg.Discovery.Extensions) > 0 {
		return a.cfg.Discovery.Extensions, a.cfg.Discovery.Extensions
	}
	return discovery.FunctionExtensions, discovery.TypeExtensions
}

// parseAll reads, parses, and extracts files on a bounded worker pool.
// Results keep the order of paths.
func (a *Analyzer) parseAll(ctx context.Context, paths []string) ([]fileResult, error) {
	ctx, span := startStageSpan(ctx, "parse")
	defer span.End()

	results := make([]fileResult, len(paths))
	opts := extract.Options{IncludeTypeLiterals: a.cfg.Types.Enabled && a.cfg.Types.IncludeTypeLiterals}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.workers())
	for i, path := range paths {
		i, path := i, path
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = a.parseFile(gctx, path, opts)
			return nil
		})
	}
	err := g.Wait()
	if err == nil {
		// Workers report a canceled parse as a diagnostic.
		err = ctx.Err()
	}
	if err != nil {
		setSpanResult(span, len(paths), 0, err)
		return nil, fmt.Errorf("parse files: %w", err)
	}
	setSpanResult(span, len(paths), 0, nil)
	return results, nil
}

func (a *Analyzer) parseFile(ctx context.Context, path string, opts extract.Options) fileResult {
	res := fileResult{path: path}
	fail := func(stage string, err error) fileResult {
		d := a.diagnostic(ctx, path, stage, err)
		res.diag = &d
		return res
	}

	source, err := os.ReadFile(path)
	if err != nil {
		return fail(StageRead, err)
	}
	res.source = source

	parser, ok := a.registry.ForPath(path)
	if !ok {
		return fail(StageParse, fmt.Errorf("%s: %w", path, ast.ErrUnsupportedLanguage))
	}
	tree, err := parser.Parse(ctx, source, path)
	if err != nil {
		return fail(StageParse, err)
	}
	res.tree = tree

	extracted, err := extract.Extract(tree, opts)
	if err != nil {
		return fail(StageExtract, err)
	}
	res.extracted = extracted
	return res
}

// diagnostic records a per-file failure and logs it unless suppressed.
func (a *Analyzer) diagnostic(ctx context.Context, path, stage string, err error) report.Diagnostic {
	d := report.NewDiagnostic(path, stage, err, a.cfg.Output.ReportSyntaxErrors)
	recordFileFailure(ctx, stage)
	logger := telemetry.LoggerWithTrace(ctx, a.logger)
	if d.Suppressed {
		logger.Debug("syntax error suppressed", slog.String("file", path), slog.String("error", d.Message))
	} else {
		logger.Warn("file skipped", slog.String("file", path), slog.String("stage", stage), slog.String("error", d.Message))
	}
	return d
}

// runEngines runs the enabled engines concurrently. Each engine writes
// only its own report field.
func (a *Analyzer) runEngines(
	ctx context.Context,
	rep *report.Report,
	units []extract.CodeUnit,
	types []extract.TypeDefinition,
	literals []extract.TypeLiteralDefinition,
	trees map[string]*ast.Tree,
) error {
	ctx, span := startStageSpan(ctx, "engines")
	defer span.End()

	g, gctx := errgroup.WithContext(ctx)

	if rep.Sections.Functions {
		g.Go(func() error {
			candidates := extract.FilterFunctions(units, a.cfg.MinSize())
			pairs, err := funcsim.FindSimilar(gctx, candidates, a.cfg.FunctionOptions())
			if err != nil {
				return fmt.Errorf("function similarity: %w", err)
			}
			rep.Functions = append(rep.Functions, pairs...)
			return nil
		})
	}

	if rep.Sections.Types {
		g.Go(func() error {
			defs := extract.FilterTypes(types, a.cfg.KindFilter())
			opts := a.cfg.TypeOptions()
			pairs, err := typesim.FindSimilar(gctx, defs, a.cfg.Threshold, opts)
			if err != nil {
				return fmt.Errorf("type similarity: %w", err)
			}
			rep.Types = append(rep.Types, pairs...)

			if !a.cfg.Types.IncludeTypeLiterals || len(literals) == 0 {
				return nil
			}
			litPairs, err := typesim.FindLiteralMatches(gctx, literals, defs, a.cfg.Threshold, opts)
			if err != nil {
				return fmt.Errorf("type literal similarity: %w", err)
			}
			rep.Literals = append(rep.Literals, litPairs...)
			return nil
		})
	}

	if rep.Sections.Overlap {
		g.Go(func() error {
			matches, err := overlap.FindOverlaps(gctx, trees, a.cfg.OverlapOptions())
			if err != nil {
				return fmt.Errorf("overlap detection: %w", err)
			}
			rep.Overlaps = append(rep.Overlaps, matches...)
			return nil
		})
	}

	err := g.Wait()
	setSpanResult(span, len(trees), len(rep.Functions)+len(rep.Types)+len(rep.Literals)+len(rep.Overlaps), err)
	return err
}

func (a *Analyzer) workers() int {
	if a.cfg.Workers > 0 {
		return a.cfg.Workers
	}
	return runtime.GOMAXPROCS(0)
}
