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
	"github.com/cespare/xxhash/v2"

	"github.com/AleutianAI/similarity/services/similarity/apted"
	"github.com/AleutianAI/similarity/services/similarity/ast"
)

// NumBins is the number of histogram bins in a Fingerprint.
const NumBins = 64

// matchEpsilon absorbs float rounding when comparing against a threshold.
const matchEpsilon = 1e-9

// Fingerprint is a cheap structural summary of a view.
//
// # Description
//
// Fingerprint records the node count and a histogram of node kinds
// hashed into NumBins bins. Two views can share at most
// Σ min(binA, binB) same-kind node pairs, which bounds how much of an
// edit script can be free. Bin collisions only raise that count, so the
// bound stays valid.
//
// # Thread Safety
//
// This type is immutable after creation.
type Fingerprint struct {
	// Size is the number of real nodes in the view.
	Size int

	// Bins counts nodes per hashed kind.
	Bins [NumBins]uint32
}

// Options mirrors the comparator settings the bound must respect.
type Options struct {
	// RenameCost is the relabel cost in [0, 1].
	RenameCost float64

	// SizePenalty applies apted.SizePenalty to the bound.
	SizePenalty bool
}

// New builds the fingerprint of a view.
func New(v ast.View) Fingerprint {
	var fp Fingerprint
	nodes := v.Tree.Nodes
	v.Walk(func(i int) {
		fp.Bins[kindBin(nodes[i].Kind)]++
		fp.Size++
	})
	return fp
}

func kindBin(kind string) int {
	return int(xxhash.Sum64String(kind) % NumBins)
}

// common returns the number of node pairs that could share a kind.
func (fp Fingerprint) common(other Fingerprint) int {
	total := 0
	for k := 0; k < NumBins; k++ {
		a, b := fp.Bins[k], other.Bins[k]
		if b < a {
			a = b
		}
		total += int(a)
	}
	return total
}

// DistanceLowerBound returns a lower bound on the edit distance between
// the views behind two fingerprints, in apted cost units.
//
// # Description
//
// Any edit script maps some m <= min(n1, n2) node pairs, deletes and
// inserts the rest, and pays at least renameCost for every mapped pair
// whose kinds differ. At most `common` mapped pairs can share a kind, so
//
//	cost >= n1 + n2 - 2m + r * max(0, m - common)
//
// which is smallest at m = min(n1, n2).
func DistanceLowerBound(a, b Fingerprint, renameCost int) int {
	lo, hi := a.Size, b.Size
	if lo > hi {
		lo, hi = hi, lo
	}
	lb := (hi - lo) * apted.Unit
	if unmatched := lo - a.common(b); unmatched > 0 {
		lb += unmatched * renameCost
	}
	return lb
}

// UpperBound returns an upper bound on the similarity the exact
// comparator can report for the pair.
func UpperBound(a, b Fingerprint, opts Options) float64 {
	lb := DistanceLowerBound(a, b, apted.ScaleCost(opts.RenameCost))
	ub := apted.Normalize(lb, a.Size, b.Size)
	if opts.SizePenalty {
		ub *= apted.SizePenalty(a.Size, b.Size)
	}
	return ub
}

// MightMatch reports whether the pair could reach threshold.
//
// # Description
//
// MightMatch never rejects a pair the exact comparator would accept.
// It may accept pairs the comparator then rejects.
//
// # Inputs
//
//   - a, b: Fingerprints of the two views.
//   - threshold: Minimum similarity in [0, 1].
//   - opts: Comparator settings.
//
// # Outputs
//
//   - bool: False only when the pair is provably below threshold.
func MightMatch(a, b Fingerprint, threshold float64, opts Options) bool {
	return UpperBound(a, b, opts) >= threshold-matchEpsilon
}
