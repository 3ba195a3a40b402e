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
	"strings"
)

// maxValueLen caps the leaf text stored on a node.
const maxValueLen = 64

// SyntaxNode is the minimal view of a parsed syntax tree that Build needs.
//
// # Description
//
// Any front-end parser can satisfy SyntaxNode. The comparison engines
// never see a SyntaxNode; they only see the arena Tree produced by Build.
//
// Lines are 1-indexed. Byte offsets index the source passed to Build.
type SyntaxNode interface {
	// Kind returns the grammar node type, e.g. "if_statement".
	Kind() string

	// IsNamed reports whether the node is a named grammar node.
	// Anonymous nodes are punctuation, keywords, and operators.
	IsNamed() bool

	// ChildCount returns the number of direct children.
	ChildCount() int

	// Child returns the i-th direct child.
	Child(i int) SyntaxNode

	// StartByte returns the byte offset where the node begins.
	StartByte() int

	// EndByte returns the byte offset where the node ends (exclusive).
	EndByte() int

	// StartLine returns the 1-indexed first line of the node.
	StartLine() int

	// EndLine returns the 1-indexed last line of the node.
	EndLine() int
}

// Node is a single arena entry.
//
// Children and Parent are indices into Tree.Nodes. Nodes are stored in
// preorder, so the subtree rooted at index i occupies [i, i+Size).
type Node struct {
	// Kind is the grammar node type.
	Kind string

	// Value is the leaf text for leaves and the operator for operator
	// expressions. Empty for other interior nodes.
	Value string

	// Modifiers holds anonymous marker tokens attached to the node,
	// e.g. "?", "readonly", "async", "static", "const".
	Modifiers []string

	// Parent is the index of the parent node, -1 for the root.
	Parent int

	// Children are the indices of named children in source order.
	Children []int

	StartByte int
	EndByte   int
	StartLine int
	EndLine   int

	// Size is the number of nodes in the subtree, including this one.
	Size int

	// Tokens is the number of source tokens (named and anonymous leaves)
	// covered by the subtree.
	Tokens int
}

// HasModifier reports whether the node carries the given marker token.
func (n *Node) HasModifier(m string) bool {
	for _, mod := range n.Modifiers {
		if mod == m {
			return true
		}
	}
	return false
}

// Tree is an immutable arena of nodes built from one source file.
//
// # Thread Safety
//
// A Tree is never mutated after Build returns and may be shared across
// goroutines without synchronization.
type Tree struct {
	// Path is the file the tree was parsed from.
	Path string

	// Language is the canonical language of the source.
	Language string

	// Source is the raw source text.
	Source []byte

	// Nodes holds every named node in preorder. Nodes[0] is the root.
	Nodes []Node
}

// Root returns the index of the root node, or -1 for an empty tree.
func (t *Tree) Root() int {
	if t == nil || len(t.Nodes) == 0 {
		return -1
	}
	return 0
}

// Text returns the source text covered by node i.
func (t *Tree) Text(i int) string {
	n := &t.Nodes[i]
	return string(t.Source[n.StartByte:n.EndByte])
}

// NormalizedText returns the source text of node i with runs of
// whitespace collapsed to a single space.
func (t *Tree) NormalizedText(i int) string {
	return NormalizeSpace(t.Text(i))
}

// ChildOfKind returns the first named child of i with one of the given
// kinds, or -1.
func (t *Tree) ChildOfKind(i int, kinds ...string) int {
	for _, c := range t.Nodes[i].Children {
		for _, k := range kinds {
			if t.Nodes[c].Kind == k {
				return c
			}
		}
	}
	return -1
}

// Ancestor returns the nearest ancestor of i with one of the given kinds,
// or -1.
func (t *Tree) Ancestor(i int, kinds ...string) int {
	for p := t.Nodes[i].Parent; p >= 0; p = t.Nodes[p].Parent {
		for _, k := range kinds {
			if t.Nodes[p].Kind == k {
				return p
			}
		}
	}
	return -1
}

// Contains reports whether node j lies in the subtree of node i.
func (t *Tree) Contains(i, j int) bool {
	return j >= i && j < i+t.Nodes[i].Size
}

// Subtree returns a rooted view of the subtree at i.
func (t *Tree) Subtree(i int) View {
	return View{Tree: t, Roots: []int{i}}
}

// Forest returns a view of consecutive sibling subtrees under a synthetic
// root. The synthetic root is not counted by View.Len.
func (t *Tree) Forest(roots []int) View {
	return View{Tree: t, Roots: roots, Synthetic: true}
}

// View is a read-only window onto part of a Tree.
//
// # Description
//
// A View is either a single rooted subtree or, when Synthetic is set, an
// ordered forest of sibling subtrees that the comparator treats as
// children of an implicit root. Views are values and are cheap to copy.
type View struct {
	Tree      *Tree
	Roots     []int
	Synthetic bool
}

// Len returns the number of real nodes in the view.
func (v View) Len() int {
	total := 0
	for _, r := range v.Roots {
		total += v.Tree.Nodes[r].Size
	}
	return total
}

// Span returns the first and last line covered by the view.
func (v View) Span() (start, end int) {
	if len(v.Roots) == 0 {
		return 0, 0
	}
	first := &v.Tree.Nodes[v.Roots[0]]
	last := &v.Tree.Nodes[v.Roots[len(v.Roots)-1]]
	return first.StartLine, last.EndLine
}

// Walk calls fn for every real node of the view in preorder.
func (v View) Walk(fn func(i int)) {
	for _, r := range v.Roots {
		end := r + v.Tree.Nodes[r].Size
		for i := r; i < end; i++ {
			fn(i)
		}
	}
}

// markerTokens are anonymous tokens recorded as node modifiers.
var markerTokens = map[string]bool{
	"?":        true,
	"readonly": true,
	"async":    true,
	"static":   true,
	"*":        true,
	"abstract": true,
	"declare":  true,
	"export":   true,
	"default":  true,
	"get":      true,
	"set":      true,
	"const":    true,
	"let":      true,
	"var":      true,
}

// operatorKinds are node kinds whose Value is their operator token.
var operatorKinds = map[string]bool{
	"binary_expression":               true,
	"unary_expression":                true,
	"update_expression":               true,
	"assignment_expression":           true,
	"augmented_assignment_expression": true,
}

// skippedKinds never enter the arena.
var skippedKinds = map[string]bool{
	"comment":      true,
	"html_comment": true,
}

// Build converts a syntax tree into an arena Tree.
//
// # Description
//
// Only named nodes become arena nodes. Anonymous children contribute to
// token counts, operator values, and modifiers. Comments are dropped.
//
// # Inputs
//
//   - root: Root of the parsed syntax tree. Must not be nil.
//   - source: Source text the byte offsets refer to.
//   - path: File path recorded on the tree.
//
// # Outputs
//
//   - *Tree: The arena tree. Never nil.
func Build(root SyntaxNode, source []byte, path string) *Tree {
	b := &builder{
		tree: &Tree{Path: path, Source: source},
	}
	b.tree.Nodes = make([]Node, 0, 256)
	b.add(root, -1)
	return b.tree
}

type builder struct {
	tree *Tree
}

// add appends n and its named descendants and returns the index of n.
func (b *builder) add(n SyntaxNode, parent int) int {
	idx := len(b.tree.Nodes)
	b.tree.Nodes = append(b.tree.Nodes, Node{
		Kind:      n.Kind(),
		Parent:    parent,
		StartByte: n.StartByte(),
		EndByte:   n.EndByte(),
		StartLine: n.StartLine(),
		EndLine:   n.EndLine(),
	})

	var children []int
	var modifiers []string
	operator := ""
	tokens := 0
	count := n.ChildCount()

	for i := 0; i < count; i++ {
		child := n.Child(i)
		if child == nil {
			continue
		}
		kind := child.Kind()
		if skippedKinds[kind] {
			continue
		}
		if child.IsNamed() {
			c := b.add(child, idx)
			children = append(children, c)
			tokens += b.tree.Nodes[c].Tokens
			continue
		}
		tokens += anonymousTokens(child)
		if markerTokens[kind] {
			modifiers = append(modifiers, kind)
		}
		if operator == "" && isOperator(kind) {
			operator = kind
		}
	}

	node := &b.tree.Nodes[idx]
	node.Children = children
	node.Modifiers = modifiers
	node.Size = len(b.tree.Nodes) - idx

	switch {
	case len(children) == 0:
		node.Value = leafValue(b.tree.Source, node.StartByte, node.EndByte)
		if tokens == 0 {
			tokens = 1
		}
	case operatorKinds[node.Kind]:
		node.Value = operator
	}
	node.Tokens = tokens

	return idx
}

// anonymousTokens counts leaves under an anonymous node.
func anonymousTokens(n SyntaxNode) int {
	count := n.ChildCount()
	if count == 0 {
		return 1
	}
	total := 0
	for i := 0; i < count; i++ {
		if c := n.Child(i); c != nil {
			total += anonymousTokens(c)
		}
	}
	return total
}

// isOperator reports whether an anonymous token is an operator rather
// than punctuation.
func isOperator(kind string) bool {
	switch kind {
	case "(", ")", "[", "]", "{", "}", ";", ",", ".", ":", "?.":
		return false
	}
	for _, r := range kind {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') {
			// keyword operators
			return kind == "typeof" || kind == "void" || kind == "delete" ||
				kind == "instanceof" || kind == "in"
		}
	}
	return true
}

func leafValue(source []byte, start, end int) string {
	if start < 0 || end > len(source) || start >= end {
		return ""
	}
	v := NormalizeSpace(string(source[start:end]))
	if len(v) > maxValueLen {
		if r := []rune(v); len(r) > maxValueLen {
			v = string(r[:maxValueLen])
		}
	}
	return v
}

// NormalizeSpace collapses runs of whitespace to a single space and trims
// the result.
func NormalizeSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
