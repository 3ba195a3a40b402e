// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package typesim scores the similarity of type declarations.
//
// # Description
//
// A score blends a structural part, computed over property names, types
// and optionality, with a naming part, computed from the declaration
// names and the property name sets. The blend uses two weights that are
// expected to sum to 1.
package typesim

import (
	"errors"
	"math"
	"sort"
	"strings"

	"github.com/agnivade/levenshtein"

	"github.com/AleutianAI/similarity/services/similarity/extract"
)

// ErrCrossKind is returned when an interface is compared to an alias
// without Options.AllowCrossKind.
var ErrCrossKind = errors.New("cross-kind comparison not allowed")

// Property match scores.
const (
	scoreExact          = 1.0
	scoreOptionalityOff = 0.8
	scoreTypeOff        = 0.5
	scoreBothOff        = 0.3
)

// Naming blend.
const (
	nameWeight     = 0.7
	propNameWeight = 0.3
)

// Options configures a comparison.
type Options struct {
	// AllowCrossKind permits interface vs alias comparisons.
	AllowCrossKind bool

	StructuralWeight float64
	NamingWeight     float64
}

// DefaultOptions returns weights 0.6 / 0.4 with cross-kind disabled.
func DefaultOptions() Options {
	return Options{StructuralWeight: 0.6, NamingWeight: 0.4}
}

// TypeMismatch is a shared property whose declared types differ.
type TypeMismatch struct {
	Property string `json:"property"`
	Type1    string `json:"type1"`
	Type2    string `json:"type2"`
}

// Differences lists how two property sets disagree. Every list is
// sorted by property name.
type Differences struct {
	// Missing holds properties of the left operand absent on the right.
	Missing []string `json:"missing,omitempty"`

	// Extra holds properties of the right operand absent on the left.
	Extra []string `json:"extra,omitempty"`

	TypeMismatches         []TypeMismatch `json:"type_mismatches,omitempty"`
	OptionalityDifferences []string       `json:"optionality_differences,omitempty"`
}

// Empty reports whether no difference was found.
func (d Differences) Empty() bool {
	return len(d.Missing) == 0 && len(d.Extra) == 0 &&
		len(d.TypeMismatches) == 0 && len(d.OptionalityDifferences) == 0
}

// Result is the outcome of one comparison.
type Result struct {
	Similarity  float64     `json:"similarity"`
	Structural  float64     `json:"structural"`
	Naming      float64     `json:"naming"`
	Differences Differences `json:"differences"`
}

// Compare scores two type definitions.
//
// # Description
//
// Structural score: over the union of property names, a property present
// on both sides scores 1 when type and optionality agree, 0.8 when only
// optionality differs, 0.5 when only the type differs, and 0.3 when both
// differ; absent properties score 0; the sum is divided by the union
// size. Definitions without properties compare their alias body text.
//
// Naming score: 0.7 * normalized Levenshtein similarity of the
// lowercased names + 0.3 * Jaccard similarity of the property names.
//
// Similarity = StructuralWeight * structural + NamingWeight * naming,
// clamped to [0, 1]. The score is symmetric.
//
// # Outputs
//
//   - Result: Scores and differences. Differences are computed even when
//     a weight is zero.
//   - error: ErrCrossKind for kind mismatch without AllowCrossKind.
func Compare(a, b *extract.TypeDefinition, opts Options) (Result, error) {
	if a.Kind != b.Kind && !opts.AllowCrossKind {
		return Result{}, ErrCrossKind
	}
	structural, diff := structuralScore(a.Properties, b.Properties, a.Body, b.Body)
	naming := nameWeight*nameSimilarity(a.Name, b.Name) +
		propNameWeight*propertyNameJaccard(a.Properties, b.Properties)
	return Result{
		Similarity:  blend(structural, naming, opts),
		Structural:  structural,
		Naming:      naming,
		Differences: diff,
	}, nil
}

// CompareLiteral scores a type literal against a definition. The literal
// is the left operand. The kind restriction does not apply.
//
// Literals have no name, so the naming score is the Jaccard similarity
// of the property names alone.
func CompareLiteral(lit *extract.TypeLiteralDefinition, def *extract.TypeDefinition, opts Options) Result {
	structural, diff := structuralScore(lit.Properties, def.Properties, "", def.Body)
	naming := propertyNameJaccard(lit.Properties, def.Properties)
	return Result{
		Similarity:  blend(structural, naming, opts),
		Structural:  structural,
		Naming:      naming,
		Differences: diff,
	}
}

func blend(structural, naming float64, opts Options) float64 {
	return clamp01(opts.StructuralWeight*structural + opts.NamingWeight*naming)
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

// typeKey normalizes a type annotation for equality checks.
func typeKey(s string) string {
	return strings.Join(strings.Fields(strings.TrimSuffix(strings.TrimSpace(s), ";")), "")
}

func indexProperties(props []extract.Property) map[string]extract.Property {
	m := make(map[string]extract.Property, len(props))
	for _, p := range props {
		if _, ok := m[p.Name]; !ok {
			m[p.Name] = p
		}
	}
	return m
}

func structuralScore(a, b []extract.Property, bodyA, bodyB string) (float64, Differences) {
	var diff Differences
	if len(a) == 0 && len(b) == 0 {
		if typeKey(bodyA) == typeKey(bodyB) {
			return 1, diff
		}
		return 0, diff
	}

	left, right := indexProperties(a), indexProperties(b)
	union := len(left)
	// Counted per bucket so the sum does not depend on map order.
	var exact, optOff, typeOff, bothOff int
	for name, pa := range left {
		pb, ok := right[name]
		if !ok {
			diff.Missing = append(diff.Missing, name)
			continue
		}
		sameType := typeKey(pa.Type) == typeKey(pb.Type)
		sameOpt := pa.Optional == pb.Optional
		if !sameType {
			diff.TypeMismatches = append(diff.TypeMismatches, TypeMismatch{Property: name, Type1: pa.Type, Type2: pb.Type})
		}
		if !sameOpt {
			diff.OptionalityDifferences = append(diff.OptionalityDifferences, name)
		}
		switch {
		case sameType && sameOpt:
			exact++
		case sameType:
			optOff++
		case sameOpt:
			typeOff++
		default:
			bothOff++
		}
	}
	for name := range right {
		if _, ok := left[name]; !ok {
			diff.Extra = append(diff.Extra, name)
			union++
		}
	}

	sort.Strings(diff.Missing)
	sort.Strings(diff.Extra)
	sort.Strings(diff.OptionalityDifferences)
	sort.Slice(diff.TypeMismatches, func(i, j int) bool {
		return diff.TypeMismatches[i].Property < diff.TypeMismatches[j].Property
	})
	total := float64(exact)*scoreExact + float64(optOff)*scoreOptionalityOff +
		float64(typeOff)*scoreTypeOff + float64(bothOff)*scoreBothOff
	return total / float64(union), diff
}

// nameSimilarity is 1 - levenshtein / max length on lowercased names.
func nameSimilarity(a, b string) float64 {
	a, b = strings.ToLower(a), strings.ToLower(b)
	la, lb := len([]rune(a)), len([]rune(b))
	longest := la
	if lb > longest {
		longest = lb
	}
	if longest == 0 {
		return 1
	}
	return 1 - float64(levenshtein.ComputeDistance(a, b))/float64(longest)
}

// propertyNameJaccard is |A ∩ B| / |A ∪ B| over property names. Two
// empty sets are identical.
func propertyNameJaccard(a, b []extract.Property) float64 {
	left, right := indexProperties(a), indexProperties(b)
	if len(left) == 0 && len(right) == 0 {
		return 1
	}
	shared := 0
	for name := range left {
		if _, ok := right[name]; ok {
			shared++
		}
	}
	return float64(shared) / float64(len(left)+len(right)-shared)
}
