// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package apted computes tree edit distance between arena tree views.
//
// # Description
//
// Distances are computed with the keyroot dynamic program of Zhang and
// Shasha over postorder arrays. All costs are integers scaled by Unit so
// the result is exact and Distance(a, b) == Distance(b, a) bit for bit.
//
// Insertion and deletion cost Unit. Relabeling a node costs 0 when kind
// and value agree, the configured rename cost when only the value
// differs, and Unit when the kinds differ.
//
// # Thread Safety
//
// All functions are pure. Views are only read.
package apted

import (
	"math"

	"github.com/AleutianAI/similarity/services/similarity/ast"
)

// Unit is the integer cost of one insertion or deletion.
const Unit = 1000

// DefaultRenameCost is the default relabel cost as a fraction of Unit.
const DefaultRenameCost = 0.3

// syntheticKind labels the implicit root of a forest view.
const syntheticKind = "\x00forest"

// ScaleCost converts a fractional cost in [0, 1] to integer units.
func ScaleCost(c float64) int {
	if c <= 0 {
		return 0
	}
	if c >= 1 {
		return Unit
	}
	return int(math.Round(c * Unit))
}

// postorder is the flattened form of a view consumed by the DP.
type postorder struct {
	kinds  []string
	values []string
	// lml is the postorder index of each node's leftmost leaf descendant.
	lml      []int32
	keyroots []int32
}

func flatten(v ast.View) *postorder {
	n := v.Len()
	if v.Synthetic {
		n++
	}
	p := &postorder{
		kinds:  make([]string, 0, n),
		values: make([]string, 0, n),
		lml:    make([]int32, 0, n),
	}

	nodes := v.Tree.Nodes
	var visit func(i int) int32
	visit = func(i int) int32 {
		leftmost := int32(-1)
		for _, c := range nodes[i].Children {
			l := visit(c)
			if leftmost < 0 {
				leftmost = l
			}
		}
		idx := int32(len(p.kinds))
		if leftmost < 0 {
			leftmost = idx
		}
		p.kinds = append(p.kinds, nodes[i].Kind)
		p.values = append(p.values, nodes[i].Value)
		p.lml = append(p.lml, leftmost)
		return leftmost
	}

	leftmost := int32(-1)
	for _, r := range v.Roots {
		l := visit(r)
		if leftmost < 0 {
			leftmost = l
		}
	}
	if v.Synthetic {
		idx := int32(len(p.kinds))
		if leftmost < 0 {
			leftmost = idx
		}
		p.kinds = append(p.kinds, syntheticKind)
		p.values = append(p.values, "")
		p.lml = append(p.lml, leftmost)
	}

	// A keyroot is the highest node sharing its leftmost leaf.
	seen := make(map[int32]bool, len(p.lml))
	for i := len(p.lml) - 1; i >= 0; i-- {
		if !seen[p.lml[i]] {
			seen[p.lml[i]] = true
			p.keyroots = append(p.keyroots, int32(i))
		}
	}
	// ascending order
	for i, j := 0, len(p.keyroots)-1; i < j; i, j = i+1, j-1 {
		p.keyroots[i], p.keyroots[j] = p.keyroots[j], p.keyroots[i]
	}
	return p
}

// Distance returns the tree edit distance between a and b in integer
// cost units.
//
// # Inputs
//
//   - a, b: Views to compare. A forest view compares as a tree whose
//     root is a synthetic node shared by both sides.
//   - renameCost: Relabel cost in units, see ScaleCost.
//
// # Outputs
//
//   - int: Minimum edit cost. Zero when the views are identical.
func Distance(a, b ast.View, renameCost int) int {
	pa, pb := flatten(a), flatten(b)
	n1, n2 := len(pa.kinds), len(pb.kinds)
	if n1 == 0 {
		return n2 * Unit
	}
	if n2 == 0 {
		return n1 * Unit
	}

	td := make([]int32, n1*n2)
	fd := make([]int32, (n1+1)*(n2+1))
	cols := n2 + 1

	for _, i := range pa.keyroots {
		for _, j := range pb.keyroots {
			li, lj := pa.lml[i], pb.lml[j]
			m := int(i-li) + 2
			n := int(j-lj) + 2

			fd[0] = 0
			for x := 1; x < m; x++ {
				fd[x*cols] = fd[(x-1)*cols] + Unit
			}
			for y := 1; y < n; y++ {
				fd[y] = fd[y-1] + Unit
			}

			for x := 1; x < m; x++ {
				i1 := li + int32(x) - 1
				for y := 1; y < n; y++ {
					j1 := lj + int32(y) - 1
					del := fd[(x-1)*cols+y] + Unit
					ins := fd[x*cols+y-1] + Unit
					best := del
					if ins < best {
						best = ins
					}
					if pa.lml[i1] == li && pb.lml[j1] == lj {
						rel := fd[(x-1)*cols+y-1] + int32(relabel(pa, pb, i1, j1, renameCost))
						if rel < best {
							best = rel
						}
						fd[x*cols+y] = best
						td[int(i1)*n2+int(j1)] = best
					} else {
						p := int(pa.lml[i1] - li)
						q := int(pb.lml[j1] - lj)
						sub := fd[p*cols+q] + td[int(i1)*n2+int(j1)]
						if sub < best {
							best = sub
						}
						fd[x*cols+y] = best
					}
				}
			}
		}
	}

	return int(td[(n1-1)*n2+(n2-1)])
}

func relabel(a, b *postorder, i, j int32, renameCost int) int {
	if a.kinds[i] != b.kinds[j] {
		return Unit
	}
	if a.values[i] != b.values[j] {
		return renameCost
	}
	return 0
}

// Normalize turns a distance into a similarity in [0, 1].
//
// # Description
//
// similarity = 1 - distance / (Unit * max(n1, n2)), where n1 and n2 are
// the real node counts of the two views. Both the exact comparator and
// the pre-filter bound go through this function so that an upper bound
// on distance maps to a lower bound on similarity with no rounding skew.
func Normalize(distance, n1, n2 int) float64 {
	maxSize := n1
	if n2 > maxSize {
		maxSize = n2
	}
	if maxSize == 0 {
		return 1
	}
	sim := 1 - float64(distance)/float64(Unit*maxSize)
	if sim < 0 {
		return 0
	}
	if sim > 1 {
		return 1
	}
	return sim
}

// Similarity returns the normalized similarity of two views.
func Similarity(a, b ast.View, renameCost float64) float64 {
	d := Distance(a, b, ScaleCost(renameCost))
	return Normalize(d, a.Len(), b.Len())
}

// SizePenalty returns the multiplicative penalty applied for differing
// unit sizes: sqrt(min/max). Returns 1 for equal sizes.
func SizePenalty(n1, n2 int) float64 {
	lo, hi := n1, n2
	if lo > hi {
		lo, hi = hi, lo
	}
	if hi == 0 {
		return 1
	}
	return math.Sqrt(float64(lo) / float64(hi))
}
