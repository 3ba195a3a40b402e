// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ast

import (
	"context"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

const (
	// DefaultMaxFileSize is the largest source file a parser accepts.
	DefaultMaxFileSize = 10 * 1024 * 1024

	// WarnFileSize is the size above which parsing logs a warning.
	WarnFileSize = 1024 * 1024
)

// Parser turns source text into an arena Tree.
//
// Description:
//
//	Parser implementations wrap a concrete front-end (tree-sitter today)
//	and hand back the parser-agnostic Tree used by every engine.
//
// Inputs:
//
//	ctx      - Context for cancellation.
//	content  - Raw source bytes. Must be valid UTF-8.
//	filePath - Path recorded on the tree and in errors.
//
// Outputs:
//
//	*Tree - The parsed tree. Nil when err is non-nil.
//	error - *SyntaxError for malformed source, *ParseError or a sentinel
//	        for other failures.
//
// Thread Safety:
//
//	Implementations must be safe for concurrent use.
type Parser interface {
	Parse(ctx context.Context, content []byte, filePath string) (*Tree, error)

	// Language returns the canonical lowercase language name.
	Language() string

	// Extensions returns handled file extensions including the leading dot.
	Extensions() []string
}

// ParserRegistry manages parser instances by language and file extension.
//
// Description:
//
//	ParserRegistry provides a central lookup mechanism for finding the appropriate
//	parser for a given file or language.
//
// Thread Safety:
//
//	ParserRegistry is fully thread-safe. Registration uses write locks,
//	lookups use read locks.
type ParserRegistry struct {
	mu sync.RWMutex

	byLanguage  map[string]Parser
	byExtension map[string]Parser
}

// NewParserRegistry creates a new empty ParserRegistry.
func NewParserRegistry() *ParserRegistry {
	return &ParserRegistry{
		byLanguage:  make(map[string]Parser),
		byExtension: make(map[string]Parser),
	}
}

// NewDefaultRegistry returns a registry with the TypeScript and
// JavaScript parsers registered.
func NewDefaultRegistry(opts ...TreeSitterOption) *ParserRegistry {
	r := NewParserRegistry()
	r.Register(NewTypeScriptParser(opts...))
	r.Register(NewJavaScriptParser(opts...))
	return r
}

// Register adds a parser to the registry.
//
// The parser is registered under its Language() name and all its Extensions().
// Existing registrations are overwritten. Nil parsers are ignored.
func (r *ParserRegistry) Register(parser Parser) {
	if parser == nil {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.byLanguage[parser.Language()] = parser
	for _, ext := range parser.Extensions() {
		r.byExtension[ext] = parser
	}
}

// GetByLanguage returns the parser for the given language name.
func (r *ParserRegistry) GetByLanguage(language string) (Parser, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	parser, ok := r.byLanguage[language]
	return parser, ok
}

// GetByExtension returns the parser for the given file extension.
//
// Parameters:
//   - ext: The file extension including the dot (e.g., ".ts"). Case-sensitive.
func (r *ParserRegistry) GetByExtension(ext string) (Parser, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	parser, ok := r.byExtension[ext]
	return parser, ok
}

// ForPath returns the parser registered for the extension of path.
func (r *ParserRegistry) ForPath(path string) (Parser, bool) {
	return r.GetByExtension(strings.ToLower(filepath.Ext(path)))
}

// Extensions returns all registered file extensions, sorted.
func (r *ParserRegistry) Extensions() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	extensions := make([]string, 0, len(r.byExtension))
	for ext := range r.byExtension {
		extensions = append(extensions, ext)
	}
	sort.Strings(extensions)
	return extensions
}
