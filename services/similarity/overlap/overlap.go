// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package overlap finds similar runs of statements across files,
// independent of function and type boundaries.
//
// # Description
//
// Each file is cut into windows of consecutive sibling statements. Windows
// from different files are compared with the same tree edit distance the
// function engine uses, without the size penalty. Matches nested inside
// larger accepted matches for the same file pair are suppressed.
//
// # Containment Rule
//
// For each file pair, candidate matches are ranked by node count desc,
// then similarity desc, then source and target position. A candidate is
// accepted unless every node of its source window AND every node of its
// target window is already covered by previously accepted matches of that
// file pair. Coverage is kept per side in roaring bitmaps over arena node
// indices.
package overlap

import (
	"context"
	"errors"
	"fmt"
	"math"
	"runtime"
	"sort"
	"time"

	"github.com/RoaringBitmap/roaring/v2"
	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/similarity/services/similarity/apted"
	"github.com/AleutianAI/similarity/services/similarity/ast"
	"github.com/AleutianAI/similarity/services/similarity/prefilter"
)

var (
	// ErrInvalidWindow is returned for window bounds that cannot hold a
	// window.
	ErrInvalidWindow = errors.New("invalid window bounds")

	// ErrInvalidThreshold is returned for a threshold outside [0, 1].
	ErrInvalidThreshold = errors.New("threshold must be within [0, 1]")

	// ErrInvalidTolerance is returned for a size tolerance outside [0, 1].
	ErrInvalidTolerance = errors.New("size tolerance must be within [0, 1]")
)

// Options configures overlap detection.
type Options struct {
	MinWindowSize int
	MaxWindowSize int
	Threshold     float64

	// SizeTolerance is the largest accepted |n1-n2| / max(n1, n2).
	SizeTolerance float64

	// SameFile also compares disjoint windows within one file.
	SameFile bool

	RenameCost float64

	// Fast enables the size index and fingerprint pre-filter.
	Fast bool

	// Workers bounds concurrent file pairs. Zero means GOMAXPROCS.
	Workers int
}

// DefaultOptions returns windows of 8-25 nodes, tolerance 0.25,
// threshold 0.87 and rename cost 0.3.
func DefaultOptions() Options {
	return Options{
		MinWindowSize: 8,
		MaxWindowSize: 25,
		Threshold:     0.87,
		SizeTolerance: 0.25,
		RenameCost:    apted.DefaultRenameCost,
		Fast:          true,
	}
}

// Validate checks the option ranges.
func (o Options) Validate() error {
	if o.MinWindowSize < 1 || o.MaxWindowSize < o.MinWindowSize {
		return fmt.Errorf("%w: min %d, max %d", ErrInvalidWindow, o.MinWindowSize, o.MaxWindowSize)
	}
	if o.Threshold < 0 || o.Threshold > 1 {
		return fmt.Errorf("%w: %v", ErrInvalidThreshold, o.Threshold)
	}
	if o.SizeTolerance < 0 || o.SizeTolerance > 1 {
		return fmt.Errorf("%w: %v", ErrInvalidTolerance, o.SizeTolerance)
	}
	return nil
}

func (o Options) workers() int {
	if o.Workers > 0 {
		return o.Workers
	}
	return runtime.GOMAXPROCS(0)
}

// Match is a pair of similar windows. SourceFile sorts before
// TargetFile; in a same-file match the source window comes first.
type Match struct {
	SourceFile string  `json:"source_file"`
	TargetFile string  `json:"target_file"`
	Source     Window  `json:"source"`
	Target     Window  `json:"target"`
	Similarity float64 `json:"similarity"`
	NodeCount  int     `json:"node_count"`
	NodeType   string  `json:"node_type"`
}

// fileWindows holds the windows of one file and their fingerprints.
type fileWindows struct {
	path    string
	tree    *ast.Tree
	windows []Window
	fps     []prefilter.Fingerprint
	index   *prefilter.SizeIndex
}

// FindOverlaps compares windows across the given files.
//
// # Description
//
// Every unordered file pair is scanned on the worker pool. For a window
// pair, the size tolerance is checked first, then the fingerprint bound
// in fast mode, then the tree edit distance. The containment rule (see
// package doc) runs per file pair before results are merged.
//
// # Inputs
//
//   - ctx: Context for cancellation.
//   - files: Parsed trees keyed by path.
//   - opts: Detection settings.
//
// # Outputs
//
//   - []Match: Sorted by similarity desc, node count desc, then position.
//   - error: Non-nil for invalid options or cancellation.
//
// # Thread Safety
//
// Safe for concurrent use. Trees are only read.
func FindOverlaps(ctx context.Context, files map[string]*ast.Tree, opts Options) (matches []Match, err error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	ctx, span := startFindSpan(ctx, len(files), opts)
	defer span.End()
	start := time.Now()
	var stats scanStats
	defer func() {
		setFindSpanResult(span, len(matches), err)
		recordFindMetrics(ctx, time.Since(start), stats, len(matches))
	}()

	prepared := prepare(files, opts)
	for i := range prepared {
		stats.windows += len(prepared[i].windows)
	}

	type job struct{ a, b int }
	var jobs []job
	for i := range prepared {
		if opts.SameFile {
			jobs = append(jobs, job{i, i})
		}
		for j := i + 1; j < len(prepared); j++ {
			jobs = append(jobs, job{i, j})
		}
	}

	results := make([][]Match, len(jobs))
	jobStats := make([]scanStats, len(jobs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.workers())
	for k, jb := range jobs {
		k, jb := k, jb
		g.Go(func() error {
			found, st, err := scanPair(gctx, &prepared[jb.a], &prepared[jb.b], opts)
			if err != nil {
				return err
			}
			results[k] = found
			jobStats[k] = st
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("scan overlaps: %w", err)
	}

	for k := range results {
		stats.compared += jobStats[k].compared
		stats.suppressed += jobStats[k].suppressed
		matches = append(matches, results[k]...)
	}
	SortMatches(matches)
	return matches, nil
}

// FindOverlapsBetween compares the windows of two files.
func FindOverlapsBetween(ctx context.Context, a, b *ast.Tree, opts Options) ([]Match, error) {
	return FindOverlaps(ctx, map[string]*ast.Tree{a.Path: a, b.Path: b}, opts)
}

// FindOverlapsInSources parses each source with the registry and scans
// the files that parsed.
//
// # Outputs
//
//   - []Match: As FindOverlaps.
//   - map[string]error: Per-file parse failures. Those files are skipped.
//   - error: Non-nil for invalid options or cancellation.
func FindOverlapsInSources(ctx context.Context, registry *ast.ParserRegistry, sources map[string][]byte, opts Options) ([]Match, map[string]error, error) {
	trees := make(map[string]*ast.Tree, len(sources))
	failed := make(map[string]error)
	for path, content := range sources {
		parser, ok := registry.ForPath(path)
		if !ok {
			failed[path] = fmt.Errorf("%s: %w", path, ast.ErrUnsupportedLanguage)
			continue
		}
		tree, err := parser.Parse(ctx, content, path)
		if err != nil {
			failed[path] = err
			continue
		}
		trees[path] = tree
	}
	matches, err := FindOverlaps(ctx, trees, opts)
	return matches, failed, err
}

func prepare(files map[string]*ast.Tree, opts Options) []fileWindows {
	paths := make([]string, 0, len(files))
	for p, tree := range files {
		if tree != nil {
			paths = append(paths, p)
		}
	}
	sort.Strings(paths)

	out := make([]fileWindows, len(paths))
	for i, p := range paths {
		fw := fileWindows{path: p, tree: files[p]}
		fw.windows = EnumerateWindows(fw.tree, opts.MinWindowSize, opts.MaxWindowSize)
		if opts.Fast {
			fw.fps = make([]prefilter.Fingerprint, len(fw.windows))
			fw.index = prefilter.NewSizeIndex(len(fw.windows))
			for w := range fw.windows {
				fw.fps[w] = prefilter.New(fw.windows[w].View(fw.tree))
				fw.index.Add(w, fw.windows[w].NodeCount)
			}
			fw.index.Freeze()
		}
		out[i] = fw
	}
	return out
}

type scanStats struct {
	windows    int
	compared   int
	suppressed int
}

// withinTolerance reports whether |n1-n2| / max(n1, n2) <= tol.
func withinTolerance(n1, n2 int, tol float64) bool {
	hi := n1
	if n2 > hi {
		hi = n2
	}
	if hi == 0 {
		return true
	}
	diff := n1 - n2
	if diff < 0 {
		diff = -diff
	}
	return float64(diff)/float64(hi) <= tol+1e-12
}

// partners returns the target windows worth comparing with source w.
func partners(src, dst *fileWindows, w int, opts Options) []int {
	if !opts.Fast {
		all := make([]int, len(dst.windows))
		for i := range all {
			all[i] = i
		}
		return all
	}
	minRatio := math.Max(1-opts.SizeTolerance, prefilter.MinSizeRatio(opts.Threshold, false)) - 1e-9
	if minRatio < 0 {
		minRatio = 0
	}
	return dst.index.Candidates(src.windows[w].NodeCount, minRatio)
}

func scanPair(ctx context.Context, src, dst *fileWindows, opts Options) ([]Match, scanStats, error) {
	var st scanStats
	same := src == dst
	rename := apted.ScaleCost(opts.RenameCost)
	pf := prefilter.Options{RenameCost: opts.RenameCost}

	var candidates []Match
	for i := range src.windows {
		if err := ctx.Err(); err != nil {
			return nil, st, err
		}
		ws := &src.windows[i]
		for _, j := range partners(src, dst, i, opts) {
			wt := &dst.windows[j]
			if same && (j <= i || !ws.Disjoint(wt)) {
				continue
			}
			if !withinTolerance(ws.NodeCount, wt.NodeCount, opts.SizeTolerance) {
				continue
			}
			if opts.Fast && !prefilter.MightMatch(src.fps[i], dst.fps[j], opts.Threshold, pf) {
				continue
			}
			st.compared++
			d := apted.Distance(ws.View(src.tree), wt.View(dst.tree), rename)
			sim := apted.Normalize(d, ws.NodeCount, wt.NodeCount)
			if sim < opts.Threshold {
				continue
			}
			first, second := ws, wt
			if same && wt.Start < ws.Start {
				first, second = wt, ws
			}
			count := first.NodeCount
			if second.NodeCount > count {
				count = second.NodeCount
			}
			candidates = append(candidates, Match{
				SourceFile: src.path,
				TargetFile: dst.path,
				Source:     *first,
				Target:     *second,
				Similarity: sim,
				NodeCount:  count,
				NodeType:   first.NodeType,
			})
		}
	}

	accepted := suppressContained(candidates)
	st.suppressed = len(candidates) - len(accepted)
	return accepted, st, nil
}

// suppressContained applies the containment rule to the candidates of
// one file pair.
func suppressContained(candidates []Match) []Match {
	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := &candidates[i], &candidates[j]
		if a.NodeCount != b.NodeCount {
			return a.NodeCount > b.NodeCount
		}
		if a.Similarity != b.Similarity {
			return a.Similarity > b.Similarity
		}
		alo, ahi := spanOrder(a)
		blo, bhi := spanOrder(b)
		if alo != blo {
			return spanLess(alo, blo)
		}
		return spanLess(ahi, bhi)
	})

	srcCov, dstCov := roaring.New(), roaring.New()
	var out []Match
	for _, m := range candidates {
		if covered(srcCov, m.Source) && covered(dstCov, m.Target) {
			continue
		}
		srcCov.AddRange(uint64(m.Source.Start), uint64(m.Source.End))
		dstCov.AddRange(uint64(m.Target.Start), uint64(m.Target.End))
		out = append(out, m)
	}
	return out
}

type span struct{ start, end int }

func spanLess(a, b span) bool {
	if a.start != b.start {
		return a.start < b.start
	}
	return a.end < b.end
}

// spanOrder returns the match's two spans, smaller first, so ties order
// the same whichever file is the source.
func spanOrder(m *Match) (lo, hi span) {
	lo, hi = span{m.Source.Start, m.Source.End}, span{m.Target.Start, m.Target.End}
	if spanLess(hi, lo) {
		lo, hi = hi, lo
	}
	return lo, hi
}

func covered(cov *roaring.Bitmap, w Window) bool {
	r := roaring.New()
	r.AddRange(uint64(w.Start), uint64(w.End))
	return cov.AndCardinality(r) == uint64(w.End-w.Start)
}

// SortMatches orders matches by similarity desc, node count desc, then
// source and target position.
func SortMatches(matches []Match) {
	sort.SliceStable(matches, func(i, j int) bool {
		a, b := &matches[i], &matches[j]
		if a.Similarity != b.Similarity {
			return a.Similarity > b.Similarity
		}
		if a.NodeCount != b.NodeCount {
			return a.NodeCount > b.NodeCount
		}
		if a.SourceFile != b.SourceFile {
			return a.SourceFile < b.SourceFile
		}
		if a.Source.Start != b.Source.Start {
			return a.Source.Start < b.Source.Start
		}
		if a.Source.End != b.Source.End {
			return a.Source.End < b.Source.End
		}
		if a.TargetFile != b.TargetFile {
			return a.TargetFile < b.TargetFile
		}
		if a.Target.Start != b.Target.Start {
			return a.Target.Start < b.Target.Start
		}
		return a.Target.End < b.Target.End
	})
}
