// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package report aggregates engine results and renders them.
//
// A Report is filled by the analyzer, normalized once, then handed to a
// Formatter. Normalization makes the output independent of worker
// completion order.
package report

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/AleutianAI/similarity/services/similarity/ast"
	"github.com/AleutianAI/similarity/services/similarity/funcsim"
	"github.com/AleutianAI/similarity/services/similarity/overlap"
	"github.com/AleutianAI/similarity/services/similarity/typesim"
)

// Sections records which analyzers ran. A disabled section is not
// rendered at all, an enabled one with no results prints its
// "No ... found!" line.
type Sections struct {
	Functions bool `json:"functions"`
	Types     bool `json:"types"`
	Overlap   bool `json:"overlap"`
}

// Diagnostic is a per-file failure collected during a run.
type Diagnostic struct {
	File  string `json:"file"`
	Stage string `json:"stage"`
	Err   error  `json:"-"`

	// Message is Err rendered, kept for serialization.
	Message string `json:"message"`

	// Suppressed diagnostics are kept in the report but not shown.
	Suppressed bool `json:"suppressed,omitempty"`
}

// NewDiagnostic builds a diagnostic for a failed file.
//
// Syntax errors are suppressed unless showSyntax is set. Every other
// failure is always visible.
func NewDiagnostic(file, stage string, err error, showSyntax bool) Diagnostic {
	d := Diagnostic{File: file, Stage: stage, Err: err}
	if err != nil {
		d.Message = err.Error()
		d.Suppressed = ast.IsSyntaxError(err) && !showSyntax
	}
	return d
}

// String renders the diagnostic as "Error in path: message".
func (d Diagnostic) String() string {
	return fmt.Sprintf("Error in %s: %s", d.File, d.Message)
}

// Stats summarizes the work done by a run.
type Stats struct {
	Files     int           `json:"files"`
	Parsed    int           `json:"parsed"`
	Functions int           `json:"functions"`
	Types     int           `json:"types"`
	Literals  int           `json:"literals"`
	Duration  time.Duration `json:"duration_ns"`
}

// Report is the aggregated result of one analysis run.
//
// # Thread Safety
//
// Not safe for concurrent mutation. The analyzer fills it from a single
// goroutine after its worker pools have finished.
type Report struct {
	RunID       string                `json:"run_id"`
	Sections    Sections              `json:"sections"`
	Functions   []funcsim.Pair        `json:"functions"`
	Types       []typesim.Pair        `json:"types"`
	Literals    []typesim.LiteralPair `json:"literals"`
	Overlaps    []overlap.Match       `json:"overlaps"`
	Diagnostics []Diagnostic          `json:"diagnostics,omitempty"`
	Warnings    []string              `json:"warnings,omitempty"`
	Stats       Stats                 `json:"stats"`

	// Sources holds file contents for printing overlap code.
	Sources map[string][]byte `json:"-"`
}

// New creates an empty report with a fresh run ID.
func New(sections Sections) *Report {
	return &Report{
		RunID:     uuid.NewString(),
		Sections:  sections,
		Functions: []funcsim.Pair{},
		Types:     []typesim.Pair{},
		Literals:  []typesim.LiteralPair{},
		Overlaps:  []overlap.Match{},
	}
}

// Normalize removes duplicate entries and sorts every list.
//
// # Description
//
// Pairs are deduplicated by their identity keys: a function pair by both
// units' (file, name, span), a type pair by both definitions, an overlap
// by both window ranges. The first occurrence wins. Lists are then
// sorted by similarity descending with canonical keys as tiebreakers,
// and diagnostics by file then stage.
func (r *Report) Normalize() {
	r.Functions = dedupe(r.Functions, func(p *funcsim.Pair) string {
		return unitKey(p.A.FilePath, p.A.QualifiedName(), p.A.StartLine, p.A.EndLine) + "|" +
			unitKey(p.B.FilePath, p.B.QualifiedName(), p.B.StartLine, p.B.EndLine)
	})
	funcsim.SortPairs(r.Functions)

	r.Types = dedupe(r.Types, func(p *typesim.Pair) string {
		return unitKey(p.A.FilePath, p.A.Name, p.A.StartLine, p.A.EndLine) + "|" +
			unitKey(p.B.FilePath, p.B.Name, p.B.StartLine, p.B.EndLine)
	})
	typesim.SortPairs(r.Types)

	r.Literals = dedupe(r.Literals, func(p *typesim.LiteralPair) string {
		return unitKey(p.Literal.FilePath, p.Literal.Name, p.Literal.StartLine, p.Literal.EndLine) + "|" +
			unitKey(p.Definition.FilePath, p.Definition.Name, p.Definition.StartLine, p.Definition.EndLine)
	})
	typesim.SortLiteralPairs(r.Literals)

	r.Overlaps = dedupe(r.Overlaps, func(m *overlap.Match) string {
		return fmt.Sprintf("%s[%d,%d)|%s[%d,%d)",
			m.SourceFile, m.Source.Start, m.Source.End,
			m.TargetFile, m.Target.Start, m.Target.End)
	})
	overlap.SortMatches(r.Overlaps)

	sort.SliceStable(r.Diagnostics, func(i, j int) bool {
		if r.Diagnostics[i].File != r.Diagnostics[j].File {
			return r.Diagnostics[i].File < r.Diagnostics[j].File
		}
		return r.Diagnostics[i].Stage < r.Diagnostics[j].Stage
	})
}

// Total is the number of reported duplicates across all sections.
func (r *Report) Total() int {
	return len(r.Functions) + len(r.Types) + len(r.Literals) + len(r.Overlaps)
}

// HasDuplicates reports whether anything was found.
func (r *Report) HasDuplicates() bool {
	return r.Total() > 0
}

// Visible returns the diagnostics that are not suppressed.
func (r *Report) Visible() []Diagnostic {
	var out []Diagnostic
	for _, d := range r.Diagnostics {
		if !d.Suppressed {
			out = append(out, d)
		}
	}
	return out
}

func unitKey(path, name string, start, end int) string {
	return fmt.Sprintf("%s:%s:%d-%d", path, name, start, end)
}

func dedupe[T any](items []T, key func(*T) string) []T {
	if len(items) < 2 {
		return items
	}
	seen := make(map[string]struct{}, len(items))
	out := items[:0]
	for i := range items {
		k := key(&items[i])
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, items[i])
	}
	return out
}
