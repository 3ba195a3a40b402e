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
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/mattn/go-isatty"
)

// FormatType represents the type of output format.
type FormatType string

const (
	// FormatText is the line-oriented console output (default).
	FormatText FormatType = "text"

	// FormatJSON is full JSON output.
	FormatJSON FormatType = "json"

	// FormatMarkdown is heading/list output.
	FormatMarkdown FormatType = "markdown"
)

// ErrUnknownFormat is returned for an unsupported format name.
var ErrUnknownFormat = errors.New("unknown output format")

// Formatter renders a report.
type Formatter interface {
	// Format converts the report to a string.
	Format(r *Report) (string, error)

	// FormatStreaming writes the formatted report to w.
	FormatStreaming(r *Report, w io.Writer) error

	// Name returns the format name.
	Name() FormatType
}

// Options controls rendering.
type Options struct {
	// Print includes code and type details for each pair.
	Print bool

	// Color enables terminal styling. Set it from IsTerminal.
	Color bool

	// BaseDir makes printed paths relative. Empty keeps them as is.
	BaseDir string

	// Width is the wrap width for rendered markdown. 0 means 100.
	Width int
}

// ParseFormat maps a format name to its FormatType.
func ParseFormat(name string) (FormatType, error) {
	switch FormatType(strings.ToLower(strings.TrimSpace(name))) {
	case "", FormatText:
		return FormatText, nil
	case FormatJSON:
		return FormatJSON, nil
	case FormatMarkdown, "md":
		return FormatMarkdown, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownFormat, name)
	}
}

// NewFormatter creates the formatter for a format type.
func NewFormatter(format FormatType, opts Options) (Formatter, error) {
	switch format {
	case FormatText, "":
		return NewTextFormatter(opts), nil
	case FormatJSON:
		return NewJSONFormatter(), nil
	case FormatMarkdown:
		return NewMarkdownFormatter(opts), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
}

// IsTerminal reports whether w is a terminal.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// relPath shortens path against base when it lies beneath it.
func relPath(base, path string) string {
	if base == "" {
		return path
	}
	rel, err := filepath.Rel(base, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return path
	}
	return rel
}

// codeLines returns lines [start, end] of src, 1-based and inclusive.
func codeLines(src []byte, start, end int) (string, bool) {
	lines := strings.Split(strings.TrimRight(string(src), "\n"), "\n")
	if start < 1 || start > len(lines) || end > len(lines) || end < start {
		return "", false
	}
	return strings.Join(lines[start-1:end], "\n"), true
}
