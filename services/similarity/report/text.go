// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/AleutianAI/similarity/services/similarity/extract"
	"github.com/AleutianAI/similarity/services/similarity/funcsim"
	"github.com/AleutianAI/similarity/services/similarity/overlap"
	"github.com/AleutianAI/similarity/services/similarity/typesim"
)

// Styles
var (
	headingStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("39"))

	detailStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("6"))

	filePathStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("212"))

	similarityStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("42"))

	statsStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196"))
)

var separator = strings.Repeat("-", 60)

// TextFormatter renders the console output.
//
// # Description
//
// Lines follow the classic layout: a "Similarity:" line per pair
// followed by one "path:line | Lstart-end ..." line per side, grouped
// under "=== ... ===" section headings with a total at the end of each
// section. With Options.Print the code or type details of each side are
// printed under the pair.
//
// # Thread Safety
//
// Safe for concurrent use; Format holds no state between calls.
type TextFormatter struct {
	opts Options
}

// NewTextFormatter creates a text formatter.
func NewTextFormatter(opts Options) *TextFormatter {
	return &TextFormatter{opts: opts}
}

// Name returns the format name.
func (f *TextFormatter) Name() FormatType {
	return FormatText
}

// Format converts the report to text.
func (f *TextFormatter) Format(r *Report) (string, error) {
	var sb strings.Builder
	if err := f.FormatStreaming(r, &sb); err != nil {
		return "", err
	}
	return sb.String(), nil
}

// FormatStreaming writes the text report to w.
func (f *TextFormatter) FormatStreaming(r *Report, w io.Writer) error {
	t := &textWriter{w: w, opts: f.opts}

	t.line("Analyzing code similarity...")
	t.line("")
	for _, d := range r.Visible() {
		t.line(t.paint(errorStyle, d.String()))
	}

	first := true
	section := func(title string, body func()) {
		if !first {
			t.line("")
			t.line(separator)
			t.line("")
		}
		first = false
		t.line(t.paint(headingStyle, "=== "+title+" ==="))
		body()
	}

	if r.Sections.Functions {
		section("Function Similarity", func() { t.functions(r.Functions) })
	}
	if r.Sections.Types {
		section("Type Similarity", func() { t.types(r.Types, r.Literals) })
	}
	if r.Sections.Overlap {
		section("Overlap Detection", func() { t.overlaps(r.Overlaps, r.Sources) })
	}
	return t.err
}

// textWriter accumulates the first write error.
type textWriter struct {
	w    io.Writer
	opts Options
	err  error
}

func (t *textWriter) line(s string) {
	if t.err != nil {
		return
	}
	_, t.err = io.WriteString(t.w, s+"\n")
}

func (t *textWriter) linef(format string, args ...any) {
	t.line(fmt.Sprintf(format, args...))
}

func (t *textWriter) paint(style lipgloss.Style, s string) string {
	if !t.opts.Color {
		return s
	}
	return style.Render(s)
}

func (t *textWriter) location(path string, start int) string {
	return t.paint(filePathStyle, fmt.Sprintf("%s:%d", relPath(t.opts.BaseDir, path), start))
}

func (t *textWriter) similarity(s string) {
	t.line("")
	t.line(t.paint(similarityStyle, s))
}

func (t *textWriter) functions(pairs []funcsim.Pair) {
	if len(pairs) == 0 {
		t.line("")
		t.line("No duplicate functions found!")
		return
	}
	t.line("")
	t.line("Similar functions found:")
	t.line(separator)

	for i := range pairs {
		p := &pairs[i]
		t.similarity(fmt.Sprintf("Similarity: %.2f%%", p.Similarity*100))
		for _, u := range []*extract.CodeUnit{&p.A, &p.B} {
			t.linef("  %s | L%d-%d similar-function: %s",
				t.location(u.FilePath, u.StartLine), u.StartLine, u.EndLine, u.QualifiedName())
		}
		if t.opts.Print {
			for _, u := range []*extract.CodeUnit{&p.A, &p.B} {
				t.line("")
				t.line(t.paint(detailStyle, fmt.Sprintf("--- %s (%s:%d) ---",
					u.QualifiedName(), relPath(t.opts.BaseDir, u.FilePath), u.StartLine)))
				t.line(u.Content)
			}
		}
	}
	t.line("")
	t.line(t.paint(statsStyle, fmt.Sprintf("Total duplicate pairs found: %d", len(pairs))))
}

func (t *textWriter) types(pairs []typesim.Pair, literals []typesim.LiteralPair) {
	if len(pairs) == 0 && len(literals) == 0 {
		t.line("")
		t.line("No similar types found!")
		return
	}

	if len(pairs) > 0 {
		t.line("")
		t.line("Similar types found:")
		t.line(separator)
		for i := range pairs {
			p := &pairs[i]
			t.typeScore(p.Result)
			t.typeSide(&p.A)
			t.typeSide(&p.B)
			if t.opts.Print {
				t.typeDetails(&p.A)
				t.typeDetails(&p.B)
				t.differences(p.Result.Differences)
			}
		}
		t.line("")
		t.line(t.paint(statsStyle, fmt.Sprintf("Total similar type pairs found: %d", len(pairs))))
	}

	if len(literals) > 0 {
		t.line("")
		t.line("Type literals similar to type definitions:")
		t.line(separator)
		for i := range literals {
			p := &literals[i]
			t.typeScore(p.Result)
			t.linef("  %s | L%d similar-type-literal: %s",
				t.location(p.Literal.FilePath, p.Literal.StartLine), p.Literal.StartLine, p.Literal.Name)
			t.typeSide(&p.Definition)
			if t.opts.Print {
				t.literalDetails(&p.Literal)
				t.typeDetails(&p.Definition)
				t.differences(p.Result.Differences)
			}
		}
		t.line("")
		t.line(t.paint(statsStyle, fmt.Sprintf("Total type literal pairs found: %d", len(literals))))
	}
}

func (t *textWriter) typeScore(res typesim.Result) {
	t.similarity(fmt.Sprintf("Similarity: %.2f%% (structural: %.2f%%, naming: %.2f%%)",
		res.Similarity*100, res.Structural*100, res.Naming*100))
}

func (t *textWriter) typeSide(d *extract.TypeDefinition) {
	t.linef("  %s | L%d-%d similar-type: %s (%s)",
		t.location(d.FilePath, d.StartLine), d.StartLine, d.EndLine, d.Name, d.Kind)
}

func (t *textWriter) typeDetails(d *extract.TypeDefinition) {
	t.line("")
	t.line(t.paint(detailStyle, fmt.Sprintf("--- %s (%s) ---", d.Name, d.Kind)))
	if len(d.Generics) > 0 {
		t.linef("Generics: <%s>", strings.Join(d.Generics, ", "))
	}
	if len(d.Extends) > 0 {
		t.linef("Extends: %s", strings.Join(d.Extends, ", "))
	}
	if d.Body != "" && len(d.Properties) == 0 {
		t.linef("Type: %s", d.Body)
	}
	t.properties(d.Properties)
}

func (t *textWriter) literalDetails(l *extract.TypeLiteralDefinition) {
	t.line("")
	t.line(t.paint(detailStyle, fmt.Sprintf("--- %s (type literal) ---", l.Name)))
	t.linef("Context: %s", l.Context.Label())
	t.properties(l.Properties)
}

func (t *textWriter) properties(props []extract.Property) {
	if len(props) == 0 {
		return
	}
	t.line("Properties:")
	for _, p := range props {
		t.line("  " + p.String())
	}
}

func (t *textWriter) differences(d typesim.Differences) {
	if len(d.Missing) > 0 {
		t.linef("Missing properties: %s", strings.Join(d.Missing, ", "))
	}
	if len(d.Extra) > 0 {
		t.linef("Extra properties: %s", strings.Join(d.Extra, ", "))
	}
	if len(d.TypeMismatches) > 0 {
		t.line("Type mismatches:")
		for _, m := range d.TypeMismatches {
			t.linef("  %s: %s vs %s", m.Property, m.Type1, m.Type2)
		}
	}
	if len(d.OptionalityDifferences) > 0 {
		t.linef("Optionality differences: %s", strings.Join(d.OptionalityDifferences, ", "))
	}
}

func (t *textWriter) overlaps(matches []overlap.Match, sources map[string][]byte) {
	if len(matches) == 0 {
		t.line("")
		t.line("No code overlaps found!")
		return
	}
	t.line("")
	t.line("Code overlaps found:")
	t.line(separator)

	for i := range matches {
		m := &matches[i]
		t.similarity(fmt.Sprintf("Similarity: %.2f%% | %d nodes | %s", m.Similarity*100, m.NodeCount, m.NodeType))
		t.linef("  %s | L%d-%d in function: %s",
			t.location(m.SourceFile, m.Source.StartLine), m.Source.StartLine, m.Source.EndLine, m.Source.Function)
		t.linef("  %s | L%d-%d in function: %s",
			t.location(m.TargetFile, m.Target.StartLine), m.Target.StartLine, m.Target.EndLine, m.Target.Function)

		if !t.opts.Print {
			continue
		}
		src, okSrc := sources[m.SourceFile]
		dst, okDst := sources[m.TargetFile]
		if !okSrc || !okDst {
			continue
		}
		t.line("")
		t.line(t.paint(detailStyle, "--- Source Code ---"))
		if code, ok := codeLines(src, m.Source.StartLine, m.Source.EndLine); ok {
			t.line(code)
		}
		t.line("")
		t.line(t.paint(detailStyle, "--- Target Code ---"))
		if code, ok := codeLines(dst, m.Target.StartLine, m.Target.EndLine); ok {
			t.line(code)
		}
	}
	t.line("")
	t.line(t.paint(statsStyle, fmt.Sprintf("Total overlaps found: %d", len(matches))))
}
