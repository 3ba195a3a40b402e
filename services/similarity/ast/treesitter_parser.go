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
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/typescript/tsx"
	"github.com/smacker/go-tree-sitter/typescript/typescript"
)

// TreeSitterOption configures a TreeSitterParser instance.
type TreeSitterOption func(*TreeSitterParser)

// WithMaxFileSize sets the maximum file size the parser will accept.
//
// Parameters:
//   - bytes: Maximum file size in bytes. Non-positive values are ignored.
//
// Example:
//
//	parser := NewTypeScriptParser(WithMaxFileSize(5 * 1024 * 1024)) // 5MB limit
func WithMaxFileSize(bytes int64) TreeSitterOption {
	return func(p *TreeSitterParser) {
		if bytes > 0 {
			p.maxFileSize = bytes
		}
	}
}

// TreeSitterParser implements Parser for TypeScript and JavaScript.
//
// Description:
//
//	TreeSitterParser parses source with tree-sitter and converts the
//	concrete syntax tree into an arena Tree. Each Parse call creates its
//	own tree-sitter parser, so one instance serves many goroutines.
//
// Thread Safety:
//
//	TreeSitterParser instances are safe for concurrent use.
type TreeSitterParser struct {
	language    string
	extensions  []string
	maxFileSize int64
}

// NewTypeScriptParser creates a parser for .ts, .tsx, .mts and .cts files.
//
// The TSX grammar is selected for .tsx files, the TypeScript grammar
// otherwise.
func NewTypeScriptParser(opts ...TreeSitterOption) *TreeSitterParser {
	return newTreeSitterParser("typescript", []string{".ts", ".tsx", ".mts", ".cts"}, opts)
}

// NewJavaScriptParser creates a parser for .js, .jsx, .mjs and .cjs files.
func NewJavaScriptParser(opts ...TreeSitterOption) *TreeSitterParser {
	return newTreeSitterParser("javascript", []string{".js", ".jsx", ".mjs", ".cjs"}, opts)
}

func newTreeSitterParser(language string, extensions []string, opts []TreeSitterOption) *TreeSitterParser {
	p := &TreeSitterParser{
		language:    language,
		extensions:  extensions,
		maxFileSize: DefaultMaxFileSize,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Parse parses content into an arena Tree.
//
// Description:
//
//	Validates size and encoding, runs tree-sitter, rejects trees that
//	contain ERROR or MISSING nodes with a *SyntaxError, and builds the
//	arena.
//
// Inputs:
//   - ctx: Context for cancellation. Checked before and after parsing.
//     Tree-sitter parsing itself cannot be interrupted mid-parse.
//   - content: Raw source code bytes. Must be valid UTF-8.
//   - filePath: Path to the file (for error reporting).
//
// Outputs:
//   - *Tree: The arena tree. Nil on error.
//   - error: Non-nil for failures:
//   - ErrFileTooLarge: Content exceeds maxFileSize
//   - ErrInvalidContent: Content is not valid UTF-8
//   - *SyntaxError: Source contains syntax errors
//   - *ParseError: Tree-sitter failed
//   - Context errors: Context was canceled or timed out
//
// Thread Safety:
//
//	This method is safe for concurrent use.
func (p *TreeSitterParser) Parse(ctx context.Context, content []byte, filePath string) (tree *Tree, err error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("parse canceled before start: %w", err)
	}

	ctx, span := startParseSpan(ctx, p.language, filePath, len(content))
	defer span.End()
	start := time.Now()
	defer func() {
		nodes := 0
		if tree != nil {
			nodes = len(tree.Nodes)
		}
		setParseSpanResult(span, nodes, err)
		recordParseMetrics(ctx, p.language, time.Since(start), nodes, err)
	}()

	if int64(len(content)) > p.maxFileSize {
		return nil, fmt.Errorf("%w: size %d exceeds limit %d", ErrFileTooLarge, len(content), p.maxFileSize)
	}

	if len(content) > WarnFileSize {
		slog.Warn("parsing large file",
			slog.String("file", filePath),
			slog.Int("size_bytes", len(content)))
	}

	if !utf8.Valid(content) {
		return nil, fmt.Errorf("%w: content is not valid UTF-8", ErrInvalidContent)
	}

	parser := sitter.NewParser()
	parser.SetLanguage(p.grammarFor(filePath))

	st, err := parser.ParseCtx(ctx, nil, content)
	if err != nil {
		return nil, &ParseError{
			FilePath: filePath,
			Message:  "tree-sitter parse failed",
			Cause:    fmt.Errorf("%w: %v", ErrParseFailed, err),
		}
	}
	defer st.Close()

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("parse canceled after tree-sitter: %w", err)
	}

	root := st.RootNode()
	if root == nil {
		return nil, &ParseError{FilePath: filePath, Message: "tree-sitter returned nil root node", Cause: ErrParseFailed}
	}

	if root.HasError() {
		return nil, syntaxErrorFor(root, filePath)
	}

	tree = Build(sitterNode{n: root}, content, filePath)
	tree.Language = p.language
	return tree, nil
}

// Language returns the canonical language name for this parser.
func (p *TreeSitterParser) Language() string {
	return p.language
}

// Extensions returns the file extensions this parser handles.
func (p *TreeSitterParser) Extensions() []string {
	out := make([]string, len(p.extensions))
	copy(out, p.extensions)
	return out
}

func (p *TreeSitterParser) grammarFor(filePath string) *sitter.Language {
	if p.language == "javascript" {
		return javascript.GetLanguage()
	}
	// Use TSX grammar for .tsx files, TypeScript grammar otherwise
	if strings.HasSuffix(strings.ToLower(filePath), ".tsx") {
		return tsx.GetLanguage()
	}
	return typescript.GetLanguage()
}

// syntaxErrorFor locates the first ERROR or MISSING node under root.
func syntaxErrorFor(root *sitter.Node, filePath string) *SyntaxError {
	var first *sitter.Node
	count := 0

	var walk func(n *sitter.Node)
	walk = func(n *sitter.Node) {
		if n.IsError() || n.IsMissing() {
			count++
			if first == nil {
				first = n
			}
			return
		}
		if !n.HasError() {
			return
		}
		for i := 0; i < int(n.ChildCount()); i++ {
			if c := n.Child(i); c != nil {
				walk(c)
			}
		}
	}
	walk(root)

	if first == nil {
		return NewSyntaxError(filePath, 0, 0, 1)
	}
	pt := first.StartPoint()
	return NewSyntaxError(filePath, int(pt.Row)+1, int(pt.Column)+1, count)
}

// sitterNode adapts *sitter.Node to SyntaxNode.
type sitterNode struct {
	n *sitter.Node
}

func (s sitterNode) Kind() string    { return s.n.Type() }
func (s sitterNode) IsNamed() bool   { return s.n.IsNamed() }
func (s sitterNode) ChildCount() int { return int(s.n.ChildCount()) }
func (s sitterNode) StartByte() int  { return int(s.n.StartByte()) }
func (s sitterNode) EndByte() int    { return int(s.n.EndByte()) }
func (s sitterNode) StartLine() int  { return int(s.n.StartPoint().Row) + 1 }
func (s sitterNode) EndLine() int    { return int(s.n.EndPoint().Row) + 1 }

func (s sitterNode) Child(i int) SyntaxNode {
	c := s.n.Child(i)
	if c == nil {
		return nil
	}
	return sitterNode{n: c}
}

var _ Parser = (*TreeSitterParser)(nil)
