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
	"errors"
	"strings"
	"sync"
	"testing"
)

const typescriptSample = `// leading comment
export interface User {
    readonly id: number;
    name: string;
    email?: string;
}

export async function loadUser(id: string): Promise<User> {
    const total = count + 1;
    return fetchUser(id);
}
`

func findKind(tree *Tree, kind string) int {
	for i := range tree.Nodes {
		if tree.Nodes[i].Kind == kind {
			return i
		}
	}
	return -1
}

func TestTreeSitterParser_Parse_EmptyFile(t *testing.T) {
	parser := NewTypeScriptParser()
	tree, err := parser.Parse(context.Background(), []byte(""), "empty.ts")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tree == nil {
		t.Fatal("expected non-nil tree")
	}
	if tree.Language != "typescript" {
		t.Errorf("expected language 'typescript', got %q", tree.Language)
	}
	if len(tree.Nodes) != 1 || tree.Nodes[0].Kind != "program" {
		t.Errorf("expected a lone program node, got %d nodes", len(tree.Nodes))
	}
}

func TestTreeSitterParser_Parse_BuildsPreorderArena(t *testing.T) {
	tree, err := NewTypeScriptParser().Parse(context.Background(), []byte(typescriptSample), "user.ts")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if tree.Nodes[0].Size != len(tree.Nodes) {
		t.Errorf("root size %d, want %d", tree.Nodes[0].Size, len(tree.Nodes))
	}
	for i := range tree.Nodes {
		n := &tree.Nodes[i]
		if n.StartLine > n.EndLine {
			t.Errorf("node %d (%s): start line %d after end line %d", i, n.Kind, n.StartLine, n.EndLine)
		}
		for _, c := range n.Children {
			if tree.Nodes[c].Parent != i {
				t.Errorf("child %d of %d has parent %d", c, i, tree.Nodes[c].Parent)
			}
			if !tree.Contains(i, c) {
				t.Errorf("child %d outside subtree of %d", c, i)
			}
		}
		if n.Kind == "comment" {
			t.Errorf("comment node %d kept in arena", i)
		}
	}
}

func TestTreeSitterParser_Parse_RecordsModifiersAndOperators(t *testing.T) {
	tree, err := NewTypeScriptParser().Parse(context.Background(), []byte(typescriptSample), "user.ts")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	fn := findKind(tree, "function_declaration")
	if fn < 0 {
		t.Fatal("function_declaration not found")
	}
	if !tree.Nodes[fn].HasModifier("async") {
		t.Errorf("expected async modifier, got %v", tree.Nodes[fn].Modifiers)
	}

	bin := findKind(tree, "binary_expression")
	if bin < 0 {
		t.Fatal("binary_expression not found")
	}
	if tree.Nodes[bin].Value != "+" {
		t.Errorf("expected operator '+', got %q", tree.Nodes[bin].Value)
	}

	optional := 0
	for i := range tree.Nodes {
		if tree.Nodes[i].Kind == "property_signature" && tree.Nodes[i].HasModifier("?") {
			optional++
		}
	}
	if optional != 1 {
		t.Errorf("expected 1 optional property, got %d", optional)
	}
}

func TestTreeSitterParser_Parse_LeafValues(t *testing.T) {
	tree, err := NewTypeScriptParser().Parse(context.Background(), []byte("const answer = 42;"), "a.ts")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	id := findKind(tree, "identifier")
	num := findKind(tree, "number")
	if id < 0 || num < 0 {
		t.Fatal("identifier or number missing")
	}
	if tree.Nodes[id].Value != "answer" {
		t.Errorf("identifier value %q", tree.Nodes[id].Value)
	}
	if tree.Nodes[num].Value != "42" {
		t.Errorf("number value %q", tree.Nodes[num].Value)
	}
	// const answer = 42 ;
	if got := tree.Nodes[0].Tokens; got != 5 {
		t.Errorf("expected 5 tokens, got %d", got)
	}
}

func TestTreeSitterParser_Parse_SyntaxError(t *testing.T) {
	_, err := NewTypeScriptParser().Parse(context.Background(), []byte("function broken( {\n  return 1\n"), "broken.ts")
	if err == nil {
		t.Fatal("expected syntax error")
	}
	if !IsSyntaxError(err) {
		t.Fatalf("expected SyntaxError, got %T: %v", err, err)
	}
	if !IsParseError(err) {
		t.Error("SyntaxError should also match ParseError")
	}
	var syn *SyntaxError
	if !errors.As(err, &syn) {
		t.Fatal("errors.As failed")
	}
	if syn.Line == 0 || syn.FilePath != "broken.ts" {
		t.Errorf("unexpected location %s:%d", syn.FilePath, syn.Line)
	}
	if !strings.Contains(err.Error(), "Parse errors") {
		t.Errorf("unexpected message %q", err.Error())
	}
}

func TestTreeSitterParser_Parse_InvalidUTF8(t *testing.T) {
	_, err := NewTypeScriptParser().Parse(context.Background(), []byte{0xff, 0xfe, 0xfd}, "bad.ts")
	if !errors.Is(err, ErrInvalidContent) {
		t.Fatalf("expected ErrInvalidContent, got %v", err)
	}
}

func TestTreeSitterParser_Parse_FileTooLarge(t *testing.T) {
	parser := NewTypeScriptParser(WithMaxFileSize(8))
	_, err := parser.Parse(context.Background(), []byte("const x = 1234567890;"), "big.ts")
	if !errors.Is(err, ErrFileTooLarge) {
		t.Fatalf("expected ErrFileTooLarge, got %v", err)
	}
}

func TestTreeSitterParser_Parse_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewTypeScriptParser().Parse(ctx, []byte("const x = 1;"), "a.ts")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestTreeSitterParser_Parse_TSXAndJavaScript(t *testing.T) {
	tsxSrc := "export const View = () => <div className=\"x\">hi</div>;\n"
	tree, err := NewTypeScriptParser().Parse(context.Background(), []byte(tsxSrc), "view.tsx")
	if err != nil {
		t.Fatalf("tsx parse failed: %v", err)
	}
	if findKind(tree, "jsx_element") < 0 {
		t.Error("expected jsx_element in tsx tree")
	}

	jsSrc := "function add(a, b) { return a + b; }\n"
	tree, err = NewJavaScriptParser().Parse(context.Background(), []byte(jsSrc), "add.js")
	if err != nil {
		t.Fatalf("js parse failed: %v", err)
	}
	if tree.Language != "javascript" {
		t.Errorf("language %q", tree.Language)
	}
}

func TestTreeSitterParser_ConcurrentParse(t *testing.T) {
	parser := NewTypeScriptParser()
	var wg sync.WaitGroup
	errs := make(chan error, 16)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := parser.Parse(context.Background(), []byte(typescriptSample), "user.ts"); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("concurrent parse failed: %v", err)
	}
}

func TestParserRegistry_DefaultRegistry(t *testing.T) {
	r := NewDefaultRegistry()

	p, ok := r.ForPath("src/app.TSX")
	if !ok || p.Language() != "typescript" {
		t.Errorf("expected typescript parser for .tsx, got %v", p)
	}
	p, ok = r.ForPath("lib/index.cjs")
	if !ok || p.Language() != "javascript" {
		t.Errorf("expected javascript parser for .cjs, got %v", p)
	}
	if _, ok := r.ForPath("main.go"); ok {
		t.Error("unexpected parser for .go")
	}
	if _, ok := r.GetByLanguage("javascript"); !ok {
		t.Error("javascript not registered by language")
	}

	exts := r.Extensions()
	if len(exts) != 8 {
		t.Errorf("expected 8 extensions, got %v", exts)
	}
}
