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

	"github.com/charmbracelet/glamour"

	"github.com/AleutianAI/similarity/services/similarity/extract"
)

const defaultWrapWidth = 100

// MarkdownFormatter formats reports as Markdown.
//
// With Options.Color set the markdown is rendered for the terminal
// through glamour; otherwise the raw markdown is written.
type MarkdownFormatter struct {
	opts Options
}

// NewMarkdownFormatter creates a new Markdown formatter.
func NewMarkdownFormatter(opts Options) *MarkdownFormatter {
	return &MarkdownFormatter{opts: opts}
}

// Name returns the format name.
func (f *MarkdownFormatter) Name() FormatType {
	return FormatMarkdown
}

// Format converts the report to Markdown.
func (f *MarkdownFormatter) Format(r *Report) (string, error) {
	md := f.markdown(r)
	if !f.opts.Color {
		return md, nil
	}

	width := f.opts.Width
	if width <= 0 {
		width = defaultWrapWidth
	}
	renderer, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return "", fmt.Errorf("create markdown renderer: %w", err)
	}
	out, err := renderer.Render(md)
	if err != nil {
		return "", fmt.Errorf("render markdown: %w", err)
	}
	return out, nil
}

// FormatStreaming writes Markdown to a writer.
func (f *MarkdownFormatter) FormatStreaming(r *Report, w io.Writer) error {
	out, err := f.Format(r)
	if err != nil {
		return err
	}
	_, err = io.WriteString(w, out)
	return err
}

func (f *MarkdownFormatter) markdown(r *Report) string {
	var sb strings.Builder
	path := func(p string) string { return relPath(f.opts.BaseDir, p) }

	sb.WriteString("# Code Similarity Report\n\n")
	fmt.Fprintf(&sb, "Run `%s`: %d files, %d duplicates.\n", r.RunID, r.Stats.Files, r.Total())

	if diags := r.Visible(); len(diags) > 0 {
		sb.WriteString("\n## Errors\n\n")
		for _, d := range diags {
			fmt.Fprintf(&sb, "- `%s`: %s\n", path(d.File), d.Message)
		}
	}

	if r.Sections.Functions {
		sb.WriteString("\n## Function Similarity\n\n")
		if len(r.Functions) == 0 {
			sb.WriteString("No duplicate functions found.\n")
		} else {
			sb.WriteString("| Similarity | First | Second |\n")
			sb.WriteString("|------------|-------|--------|\n")
			for _, p := range r.Functions {
				fmt.Fprintf(&sb, "| %.2f%% | `%s` %s:%d-%d | `%s` %s:%d-%d |\n",
					p.Similarity*100,
					p.A.QualifiedName(), path(p.A.FilePath), p.A.StartLine, p.A.EndLine,
					p.B.QualifiedName(), path(p.B.FilePath), p.B.StartLine, p.B.EndLine)
			}
		}
	}

	if r.Sections.Types {
		sb.WriteString("\n## Type Similarity\n\n")
		if len(r.Types) == 0 && len(r.Literals) == 0 {
			sb.WriteString("No similar types found.\n")
		}
		if len(r.Types) > 0 {
			sb.WriteString("| Similarity | Structural | Naming | First | Second |\n")
			sb.WriteString("|------------|------------|--------|-------|--------|\n")
			for _, p := range r.Types {
				fmt.Fprintf(&sb, "| %.2f%% | %.2f%% | %.2f%% | %s | %s |\n",
					p.Result.Similarity*100, p.Result.Structural*100, p.Result.Naming*100,
					typeCell(&p.A, path), typeCell(&p.B, path))
			}
		}
		if len(r.Literals) > 0 {
			sb.WriteString("\n### Type literals\n\n")
			for _, p := range r.Literals {
				fmt.Fprintf(&sb, "- **%.2f%%** `%s` (%s, %s:%d) resembles %s\n",
					p.Result.Similarity*100, p.Literal.Name, p.Literal.Context.Label(),
					path(p.Literal.FilePath), p.Literal.StartLine, typeCell(&p.Definition, path))
			}
		}
	}

	if r.Sections.Overlap {
		sb.WriteString("\n## Overlap Detection\n\n")
		if len(r.Overlaps) == 0 {
			sb.WriteString("No code overlaps found.\n")
		} else {
			sb.WriteString("| Similarity | Nodes | Kind | Source | Target |\n")
			sb.WriteString("|------------|-------|------|--------|--------|\n")
			for _, m := range r.Overlaps {
				fmt.Fprintf(&sb, "| %.2f%% | %d | `%s` | %s:%d-%d (%s) | %s:%d-%d (%s) |\n",
					m.Similarity*100, m.NodeCount, m.NodeType,
					path(m.SourceFile), m.Source.StartLine, m.Source.EndLine, m.Source.Function,
					path(m.TargetFile), m.Target.StartLine, m.Target.EndLine, m.Target.Function)
			}
		}
	}
	return sb.String()
}

func typeCell(d *extract.TypeDefinition, path func(string) string) string {
	return fmt.Sprintf("`%s` (%s) %s:%d-%d", d.Name, d.Kind, path(d.FilePath), d.StartLine, d.EndLine)
}
