// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package funcsim finds structurally similar functions.
//
// # Description
//
// Two functions are compared by the tree edit distance between their
// bodies, normalized to [0, 1] and optionally scaled down when the
// bodies differ in size. FindSimilar compares every eligible pair, or
// only the pairs that survive the fingerprint pre-filter in fast mode.
// Both modes return the same pairs.
package funcsim

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/similarity/services/similarity/apted"
	"github.com/AleutianAI/similarity/services/similarity/extract"
	"github.com/AleutianAI/similarity/services/similarity/prefilter"
)

var (
	// ErrInvalidThreshold is returned for a threshold outside [0, 1].
	ErrInvalidThreshold = errors.New("threshold must be within [0, 1]")

	// ErrInvalidRenameCost is returned for a rename cost outside [0, 1].
	ErrInvalidRenameCost = errors.New("rename cost must be within [0, 1]")

	// ErrInvalidMaxNodes is returned for a negative node limit.
	ErrInvalidMaxNodes = errors.New("max nodes must not be negative")
)

// DefaultThreshold is the minimum similarity reported by default.
const DefaultThreshold = 0.87

// DefaultMaxNodes caps the body size compared by FindSimilar. Distance
// tables grow with the product of both sizes.
const DefaultMaxNodes = 4000

// Options are the comparator settings.
type Options struct {
	// RenameCost is the cost of relabeling a node whose kind matches.
	RenameCost float64

	// SizePenalty scales similarity by sqrt(min/max) of the body sizes.
	SizePenalty bool
}

// DefaultOptions returns rename cost 0.3 with the size penalty on.
func DefaultOptions() Options {
	return Options{RenameCost: apted.DefaultRenameCost, SizePenalty: true}
}

func (o Options) prefilter() prefilter.Options {
	return prefilter.Options{RenameCost: o.RenameCost, SizePenalty: o.SizePenalty}
}

// Compare returns the similarity of two function bodies in [0, 1].
//
// # Description
//
// similarity = 1 - TED(a, b) / max(|a|, |b|), times sqrt(min/max) when
// the size penalty is on. The result is symmetric and Compare(a, a) is 1.
func Compare(a, b *extract.CodeUnit, opts Options) float64 {
	if a.Body.Tree == nil || b.Body.Tree == nil {
		return 0
	}
	n1, n2 := a.Body.Len(), b.Body.Len()
	d := apted.Distance(a.Body, b.Body, apted.ScaleCost(opts.RenameCost))
	sim := apted.Normalize(d, n1, n2)
	if opts.SizePenalty {
		sim *= apted.SizePenalty(n1, n2)
	}
	return sim
}

// FindOptions configures FindSimilar.
type FindOptions struct {
	Options

	// Threshold is the minimum similarity of a reported pair.
	Threshold float64

	// Fast enables the fingerprint pre-filter.
	Fast bool

	// NameFilter keeps pairs where either qualified name contains it.
	NameFilter string

	// BodyFilter keeps pairs where either body text contains it.
	BodyFilter string

	// Workers bounds concurrent comparisons. Zero means GOMAXPROCS.
	Workers int

	// MaxNodes skips units whose body has more nodes. Zero means no limit.
	MaxNodes int
}

// DefaultFindOptions returns the default search settings.
func DefaultFindOptions() FindOptions {
	return FindOptions{
		Options:   DefaultOptions(),
		Threshold: DefaultThreshold,
		Fast:      true,
		MaxNodes:  DefaultMaxNodes,
	}
}

func (o FindOptions) validate() error {
	if o.Threshold < 0 || o.Threshold > 1 {
		return fmt.Errorf("%w: %v", ErrInvalidThreshold, o.Threshold)
	}
	if o.RenameCost < 0 || o.RenameCost > 1 {
		return fmt.Errorf("%w: %v", ErrInvalidRenameCost, o.RenameCost)
	}
	if o.MaxNodes < 0 {
		return fmt.Errorf("%w: %d", ErrInvalidMaxNodes, o.MaxNodes)
	}
	return nil
}

func (o FindOptions) workers() int {
	if o.Workers > 0 {
		return o.Workers
	}
	return runtime.GOMAXPROCS(0)
}

// matches reports whether a unit passes the name and body filters.
func (o FindOptions) matches(u *extract.CodeUnit) bool {
	if o.NameFilter != "" && !strings.Contains(u.QualifiedName(), o.NameFilter) {
		return false
	}
	if o.BodyFilter != "" && !strings.Contains(u.Content, o.BodyFilter) {
		return false
	}
	return true
}

// oversized reports whether a unit exceeds MaxNodes.
func (o FindOptions) oversized(u *extract.CodeUnit) bool {
	return o.MaxNodes > 0 && u.Body.Tree != nil && u.Body.Len() > o.MaxNodes
}

// Pair is two similar functions. A sorts before B.
type Pair struct {
	A          extract.CodeUnit `json:"a"`
	B          extract.CodeUnit `json:"b"`
	Similarity float64          `json:"similarity"`
}

// FindSimilar returns every pair of units whose similarity reaches
// opts.Threshold.
//
// # Description
//
// Candidate pairs are (i, j) with i < j, skipping pairs where one unit
// is nested inside the other in the same file. Name and body filters
// prune candidates before any comparison; a pair survives when either
// side passes. In fast mode, the size index and fingerprint bound drop
// pairs that provably cannot reach the threshold. Units with more than
// opts.MaxNodes body nodes are logged and left out.
//
// # Inputs
//
//   - ctx: Context for cancellation.
//   - units: Functions to compare. Not modified.
//   - opts: Search settings.
//
// # Outputs
//
//   - []Pair: Sorted by similarity desc, then A, then B.
//   - error: Non-nil for invalid options or cancellation.
//
// # Thread Safety
//
// Safe for concurrent use. Comparisons run on up to opts.Workers
// goroutines.
func FindSimilar(ctx context.Context, units []extract.CodeUnit, opts FindOptions) (pairs []Pair, err error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}

	ctx, span := startFindSpan(ctx, len(units), opts)
	defer span.End()
	start := time.Now()
	var compared int64
	defer func() {
		setFindSpanResult(span, len(pairs), err)
		recordFindMetrics(ctx, time.Since(start), compared, len(pairs))
	}()

	skip := make([]bool, len(units))
	for i := range units {
		if opts.oversized(&units[i]) {
			skip[i] = true
			slog.Warn("function too large to compare",
				slog.String("file", units[i].FilePath),
				slog.String("function", units[i].QualifiedName()),
				slog.Int("nodes", units[i].Body.Len()),
				slog.Int("max_nodes", opts.MaxNodes),
			)
		}
	}
	candidates := buildCandidates(units, skip, opts)

	rows := make([][]Pair, len(units))
	counts := make([]int64, len(units))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.workers())
	for i, row := range candidates {
		if len(row) == 0 {
			continue
		}
		i, row := i, row
		g.Go(func() error {
			for _, j := range row {
				if err := gctx.Err(); err != nil {
					return err
				}
				counts[i]++
				sim := Compare(&units[i], &units[j], opts.Options)
				if sim >= opts.Threshold {
					rows[i] = append(rows[i], newPair(&units[i], &units[j], sim))
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("compare functions: %w", err)
	}

	for i := range rows {
		compared += counts[i]
		pairs = append(pairs, rows[i]...)
	}
	SortPairs(pairs)
	return pairs, nil
}

// buildCandidates returns, for each unit i, the partners j > i to compare.
// Units marked in skip get no partners.
func buildCandidates(units []extract.CodeUnit, skip []bool, opts FindOptions) [][]int {
	n := len(units)
	filtered := opts.NameFilter != "" || opts.BodyFilter != ""
	passes := make([]bool, n)
	for i := range units {
		passes[i] = !filtered || opts.matches(&units[i])
	}

	eligible := func(i, j int) bool {
		if skip[i] || skip[j] {
			return false
		}
		if !passes[i] && !passes[j] {
			return false
		}
		return !units[i].Encloses(&units[j]) && !units[j].Encloses(&units[i])
	}

	out := make([][]int, n)
	if !opts.Fast {
		for i := 0; i < n; i++ {
			for j := i + 1; j < n; j++ {
				if eligible(i, j) {
					out[i] = append(out[i], j)
				}
			}
		}
		return out
	}

	fps := make([]prefilter.Fingerprint, n)
	index := prefilter.NewSizeIndex(n)
	for i := range units {
		if units[i].Body.Tree == nil {
			continue
		}
		fps[i] = prefilter.New(units[i].Body)
		index.Add(i, fps[i].Size)
	}
	index.Freeze()

	minRatio := prefilter.MinSizeRatio(opts.Threshold, opts.SizePenalty)
	pf := opts.prefilter()
	for i := range units {
		if units[i].Body.Tree == nil {
			continue
		}
		for _, j := range index.Candidates(fps[i].Size, minRatio) {
			if j <= i || !eligible(i, j) {
				continue
			}
			if prefilter.MightMatch(fps[i], fps[j], opts.Threshold, pf) {
				out[i] = append(out[i], j)
			}
		}
		sort.Ints(out[i])
	}
	return out
}

func newPair(a, b *extract.CodeUnit, sim float64) Pair {
	if b.Less(a) {
		a, b = b, a
	}
	return Pair{A: *a, B: *b, Similarity: sim}
}

// SortPairs orders pairs by similarity desc, then by A, then by B.
func SortPairs(pairs []Pair) {
	sort.SliceStable(pairs, func(i, j int) bool {
		pi, pj := &pairs[i], &pairs[j]
		if pi.Similarity != pj.Similarity {
			return pi.Similarity > pj.Similarity
		}
		if pi.A.Less(&pj.A) || pj.A.Less(&pi.A) {
			return pi.A.Less(&pj.A)
		}
		return pi.B.Less(&pj.B)
	})
}
