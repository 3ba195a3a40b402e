// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package typesim

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/similarity/services/similarity/extract"
)

// Pair is two similar type definitions. A sorts before B.
type Pair struct {
	A      extract.TypeDefinition `json:"a"`
	B      extract.TypeDefinition `json:"b"`
	Result Result                 `json:"result"`
}

// LiteralPair is a type literal similar to a named definition.
type LiteralPair struct {
	Literal    extract.TypeLiteralDefinition `json:"literal"`
	Definition extract.TypeDefinition        `json:"definition"`
	Result     Result                        `json:"result"`
}

// FindSimilar returns every pair of definitions scoring at least
// threshold.
//
// # Description
//
// Each unordered pair is scored once. Pairs of different kinds are
// skipped unless opts.AllowCrossKind is set. Rows are scored on up to
// GOMAXPROCS goroutines; the output order is independent of scheduling.
//
// # Outputs
//
//   - []Pair: Sorted by similarity desc, then A, then B.
//   - error: Non-nil only on cancellation.
func FindSimilar(ctx context.Context, types []extract.TypeDefinition, threshold float64, opts Options) ([]Pair, error) {
	rows := make([][]Pair, len(types))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i := range types {
		i := i
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			for j := i + 1; j < len(types); j++ {
				res, err := Compare(&types[i], &types[j], opts)
				if errors.Is(err, ErrCrossKind) {
					continue
				}
				if res.Similarity < threshold {
					continue
				}
				a, b := &types[i], &types[j]
				if b.Less(a) {
					// Differences are directional; recompute for the
					// canonical orientation.
					a, b = b, a
					res, _ = Compare(a, b, opts)
				}
				rows[i] = append(rows[i], Pair{A: *a, B: *b, Result: res})
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("compare types: %w", err)
	}

	var pairs []Pair
	for _, row := range rows {
		pairs = append(pairs, row...)
	}
	SortPairs(pairs)
	return pairs, nil
}

// FindLiteralMatches returns every (literal, definition) pair scoring at
// least threshold.
func FindLiteralMatches(ctx context.Context, literals []extract.TypeLiteralDefinition, defs []extract.TypeDefinition, threshold float64, opts Options) ([]LiteralPair, error) {
	rows := make([][]LiteralPair, len(literals))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i := range literals {
		i := i
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			for j := range defs {
				res := CompareLiteral(&literals[i], &defs[j], opts)
				if res.Similarity >= threshold {
					rows[i] = append(rows[i], LiteralPair{Literal: literals[i], Definition: defs[j], Result: res})
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("compare type literals: %w", err)
	}

	var pairs []LiteralPair
	for _, row := range rows {
		pairs = append(pairs, row...)
	}
	SortLiteralPairs(pairs)
	return pairs, nil
}

// SortPairs orders pairs by similarity desc, then A, then B.
func SortPairs(pairs []Pair) {
	sort.SliceStable(pairs, func(i, j int) bool {
		pi, pj := &pairs[i], &pairs[j]
		if pi.Result.Similarity != pj.Result.Similarity {
			return pi.Result.Similarity > pj.Result.Similarity
		}
		if pi.A.Less(&pj.A) || pj.A.Less(&pi.A) {
			return pi.A.Less(&pj.A)
		}
		return pi.B.Less(&pj.B)
	})
}

// SortLiteralPairs orders pairs by similarity desc, then literal, then
// definition.
func SortLiteralPairs(pairs []LiteralPair) {
	sort.SliceStable(pairs, func(i, j int) bool {
		pi, pj := &pairs[i], &pairs[j]
		if pi.Result.Similarity != pj.Result.Similarity {
			return pi.Result.Similarity > pj.Result.Similarity
		}
		if pi.Literal.Less(&pj.Literal) || pj.Literal.Less(&pi.Literal) {
			return pi.Literal.Less(&pj.Literal)
		}
		return pi.Definition.Less(&pj.Definition)
	})
}
