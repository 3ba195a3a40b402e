// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package prefilter

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/similarity/services/similarity/apted"
	"github.com/AleutianAI/similarity/services/similarity/ast"
)

var testKinds = []string{"block", "if", "return", "call", "identifier", "number", "binary", "for"}

// randomTree builds a random preorder arena with n nodes.
func randomTree(rng *rand.Rand, n int) *ast.Tree {
	tree := &ast.Tree{}
	var add func(parent, budget int) int
	add = func(parent, budget int) int {
		idx := len(tree.Nodes)
		kind := testKinds[rng.Intn(len(testKinds))]
		tree.Nodes = append(tree.Nodes, ast.Node{
			Kind:   kind,
			Value:  string(rune('a' + rng.Intn(3))),
			Parent: parent,
		})
		remaining := budget - 1
		var children []int
		for remaining > 0 {
			size := 1 + rng.Intn(remaining)
			children = append(children, add(idx, size))
			remaining -= size
		}
		tree.Nodes[idx].Children = children
		tree.Nodes[idx].Size = len(tree.Nodes) - idx
		return idx
	}
	add(-1, n)
	return tree
}

func TestMightMatch_NeverRejectsAcceptedPair(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	thresholds := []float64{0.3, 0.5, 0.7, 0.87, 0.95}

	for iter := 0; iter < 300; iter++ {
		a := randomTree(rng, 2+rng.Intn(14)).Subtree(0)
		b := randomTree(rng, 2+rng.Intn(14)).Subtree(0)
		fa, fb := New(a), New(b)

		for _, rename := range []float64{0, 0.3, 1} {
			d := apted.Distance(a, b, apted.ScaleCost(rename))
			require.GreaterOrEqual(t, d, DistanceLowerBound(fa, fb, apted.ScaleCost(rename)),
				"lower bound exceeds exact distance")

			for _, penalty := range []bool{false, true} {
				sim := apted.Normalize(d, a.Len(), b.Len())
				if penalty {
					sim *= apted.SizePenalty(a.Len(), b.Len())
				}
				opts := Options{RenameCost: rename, SizePenalty: penalty}
				for _, th := range thresholds {
					if sim >= th {
						assert.True(t, MightMatch(fa, fb, th, opts),
							"false negative: sim=%.4f th=%.2f rename=%.1f penalty=%v", sim, th, rename, penalty)
					}
				}
			}
		}
	}
}

func TestMightMatch_RejectsDissimilarSizes(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	small := New(randomTree(rng, 5).Subtree(0))
	large := New(randomTree(rng, 50).Subtree(0))

	opts := Options{RenameCost: 0.3, SizePenalty: true}
	assert.False(t, MightMatch(small, large, 0.87, opts))
	assert.False(t, MightMatch(large, small, 0.87, opts))
	assert.True(t, MightMatch(small, small, 1.0, opts))
}

func TestFingerprint_Counts(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	tree := randomTree(rng, 20)
	fp := New(tree.Subtree(0))

	assert.Equal(t, 20, fp.Size)
	total := 0
	for _, c := range fp.Bins {
		total += int(c)
	}
	assert.Equal(t, 20, total)
	assert.Equal(t, 20, fp.common(fp))
}

func TestSizeIndex_Candidates(t *testing.T) {
	idx := NewSizeIndex(8)
	sizes := []int{10, 12, 20, 9, 100, 11}
	for id, size := range sizes {
		idx.Add(id, size)
	}
	idx.Freeze()
	idx.Add(99, 10)
	assert.Equal(t, len(sizes), idx.Len())

	got := idx.Candidates(10, 0.8)
	// sizes within [8, 12.5]: 9 (id 3), 10 (id 0), 11 (id 5), 12 (id 1)
	assert.Equal(t, []int{3, 0, 5, 1}, got)

	assert.Len(t, idx.Candidates(10, 0), len(sizes))
	assert.Empty(t, NewSizeIndex(0).Candidates(10, 0.5))
}

func TestMinSizeRatio_Sound(t *testing.T) {
	for _, th := range []float64{0.5, 0.87, 0.99} {
		plain := MinSizeRatio(th, false)
		penalized := MinSizeRatio(th, true)
		assert.LessOrEqual(t, plain, th)
		assert.Greater(t, penalized, plain, "penalty tightens the ratio")
		// A pair exactly at the penalized ratio can at best reach threshold.
		r := penalized + 1e-9
		assert.InDelta(t, th, r*apted.SizePenalty(int(r*1e6), 1e6), 1e-4)
	}
	assert.Equal(t, 0.0, MinSizeRatio(0, true))
}
