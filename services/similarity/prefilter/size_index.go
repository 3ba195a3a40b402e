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
	"math"
	"sort"
)

// SizeIndex finds candidate partners by node count.
//
// # Description
//
// Similarity can never exceed min(n1,n2)/max(n1,n2), and the size
// penalty multiplies in a further sqrt of that ratio. SizeIndex keeps
// entries sorted by size so a query only touches entries whose ratio
// can still reach the threshold, instead of comparing every pair.
//
// # Thread Safety
//
// Build the index with Add, then call Freeze once. Queries on a frozen
// index are safe for concurrent use.
type SizeIndex struct {
	entries []sizeEntry
	frozen  bool
}

type sizeEntry struct {
	size int
	id   int
}

// NewSizeIndex creates an empty index with room for capacity entries.
func NewSizeIndex(capacity int) *SizeIndex {
	return &SizeIndex{entries: make([]sizeEntry, 0, capacity)}
}

// Add records that unit id has the given node count.
// Calls after Freeze are ignored.
func (s *SizeIndex) Add(id, size int) {
	if s.frozen {
		return
	}
	s.entries = append(s.entries, sizeEntry{size: size, id: id})
}

// Freeze sorts the index. Further Adds are ignored.
func (s *SizeIndex) Freeze() {
	sort.SliceStable(s.entries, func(i, j int) bool {
		if s.entries[i].size != s.entries[j].size {
			return s.entries[i].size < s.entries[j].size
		}
		return s.entries[i].id < s.entries[j].id
	})
	s.frozen = true
}

// Len returns the number of indexed entries.
func (s *SizeIndex) Len() int {
	return len(s.entries)
}

// MinSizeRatio returns the smallest min/max size ratio at which a pair
// can still reach threshold.
//
// # Inputs
//
//   - threshold: Minimum similarity in [0, 1].
//   - sizePenalty: Whether the comparator applies apted.SizePenalty.
//
// # Outputs
//
//   - float64: Ratio in [0, 1]. Pairs below it cannot match.
func MinSizeRatio(threshold float64, sizePenalty bool) float64 {
	if threshold <= 0 {
		return 0
	}
	if sizePenalty {
		// ratio * sqrt(ratio) >= t
		return math.Pow(threshold, 2.0/3.0) - matchEpsilon
	}
	return threshold - matchEpsilon
}

// Candidates returns the ids of entries whose size is within minRatio
// of size, in (size, id) order.
//
// # Inputs
//
//   - size: Node count of the query unit.
//   - minRatio: Smallest acceptable min/max ratio, see MinSizeRatio.
//
// # Outputs
//
//   - []int: Candidate ids. The caller filters out the query itself.
func (s *SizeIndex) Candidates(size int, minRatio float64) []int {
	if len(s.entries) == 0 {
		return nil
	}
	lo, hi := 0, math.MaxInt
	if minRatio > 0 {
		lo = int(math.Ceil(float64(size)*minRatio - matchEpsilon))
		hi = int(math.Floor(float64(size)/minRatio + matchEpsilon))
	}

	start := sort.Search(len(s.entries), func(i int) bool {
		return s.entries[i].size >= lo
	})
	var out []int
	for i := start; i < len(s.entries) && s.entries[i].size <= hi; i++ {
		out = append(out, s.entries[i].id)
	}
	return out
}
