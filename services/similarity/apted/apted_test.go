// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package apted

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/similarity/services/similarity/ast"
)

// tnode describes a test tree: kind, value, children.
type tnode struct {
	kind     string
	value    string
	children []tnode
}

func n(kind string, children ...tnode) tnode { return tnode{kind: kind, children: children} }

func leaf(kind, value string) tnode { return tnode{kind: kind, value: value} }

// build lays a tnode out as a preorder arena.
func build(root tnode) *ast.Tree {
	tree := &ast.Tree{}
	var add func(t tnode, parent int) int
	add = func(t tnode, parent int) int {
		idx := len(tree.Nodes)
		tree.Nodes = append(tree.Nodes, ast.Node{Kind: t.kind, Value: t.value, Parent: parent, StartLine: 1, EndLine: 1})
		var children []int
		for _, c := range t.children {
			children = append(children, add(c, idx))
		}
		tree.Nodes[idx].Children = children
		tree.Nodes[idx].Size = len(tree.Nodes) - idx
		return idx
	}
	add(root, -1)
	return tree
}

func view(root tnode) ast.View {
	return build(root).Subtree(0)
}

func TestDistance_Identical(t *testing.T) {
	a := n("block", n("return", n("call", leaf("id", "f"), leaf("id", "x"))))
	assert.Equal(t, 0, Distance(view(a), view(a), ScaleCost(0.3)))
	assert.Equal(t, 1.0, Similarity(view(a), view(a), 0.3))
}

func TestDistance_Rename(t *testing.T) {
	a := n("block", n("return", leaf("id", "x")))
	b := n("block", n("return", leaf("id", "y")))

	assert.Equal(t, 300, Distance(view(a), view(b), ScaleCost(0.3)))
	assert.Equal(t, 0, Distance(view(a), view(b), ScaleCost(0)))
	assert.InDelta(t, 1-0.3/3, Similarity(view(a), view(b), 0.3), 1e-12)
}

func TestDistance_KindChangeCostsFullUnit(t *testing.T) {
	a := n("block", leaf("number", "1"))
	b := n("block", leaf("string", "1"))
	assert.Equal(t, Unit, Distance(view(a), view(b), ScaleCost(0.3)))
}

func TestDistance_InsertDelete(t *testing.T) {
	a := n("block", leaf("id", "x"))
	b := n("block", leaf("id", "x"), leaf("id", "y"), leaf("id", "z"))
	assert.Equal(t, 2*Unit, Distance(view(a), view(b), ScaleCost(0.3)))
}

func TestDistance_ClassicZhangShasha(t *testing.T) {
	// f(d(a c(b)) e) -> f(c(d(a b)) e): distance 2 with unit costs.
	t1 := n("f", n("d", leaf("a", ""), n("c", leaf("b", ""))), leaf("e", ""))
	t2 := n("f", n("c", n("d", leaf("a", ""), leaf("b", ""))), leaf("e", ""))
	assert.Equal(t, 2*Unit, Distance(view(t1), view(t2), Unit))
}

func TestDistance_Symmetric(t *testing.T) {
	trees := []tnode{
		n("block", n("if", leaf("id", "a"), n("block", n("return", leaf("number", "1"))))),
		n("block", n("for", leaf("id", "i"), n("block", leaf("id", "b"))), n("return", leaf("id", "c"))),
		n("block", n("return", n("binary", leaf("id", "a"), leaf("id", "b")))),
		n("block"),
	}
	for i := range trees {
		for j := range trees {
			a, b := view(trees[i]), view(trees[j])
			assert.Equal(t, Distance(a, b, 300), Distance(b, a, 300), "pair %d,%d", i, j)
		}
	}
}

func TestDistance_Forest(t *testing.T) {
	root := n("program",
		n("stmt", leaf("id", "a")),
		n("stmt", leaf("id", "b")),
		n("stmt", leaf("id", "c")),
	)
	tree := build(root)
	kids := tree.Nodes[0].Children

	ab := tree.Forest(kids[0:2])
	bc := tree.Forest(kids[1:3])
	require.Equal(t, 4, ab.Len())

	assert.Equal(t, 0, Distance(ab, ab, 300))
	// two renames
	assert.Equal(t, 600, Distance(ab, bc, 300))
	assert.InDelta(t, 1-0.6/4, Similarity(ab, bc, 0.3), 1e-12)
}

func TestNormalizeAndPenalty(t *testing.T) {
	assert.Equal(t, 1.0, Normalize(0, 0, 0))
	assert.Equal(t, 0.0, Normalize(10*Unit, 2, 3))
	assert.InDelta(t, 0.5, Normalize(2*Unit, 4, 2), 1e-12)

	assert.Equal(t, 1.0, SizePenalty(5, 5))
	assert.InDelta(t, 0.5, SizePenalty(4, 16), 1e-12)
	assert.Equal(t, SizePenalty(3, 12), SizePenalty(12, 3))

	assert.Equal(t, 300, ScaleCost(0.3))
	assert.Equal(t, 0, ScaleCost(-1))
	assert.Equal(t, Unit, ScaleCost(2))
}

func TestDistance_RealSource(t *testing.T) {
	parser := ast.NewTypeScriptParser()
	a, err := parser.Parse(context.Background(), []byte("function f(a) { if (a > 1) { return a * 2; } return 0; }"), "a.ts")
	require.NoError(t, err)
	b, err := parser.Parse(context.Background(), []byte("function g(b) { if (b > 1) { return b * 2; } return 0; }"), "b.ts")
	require.NoError(t, err)

	bodyA := a.Subtree(a.ChildOfKind(1, "statement_block"))
	bodyB := b.Subtree(b.ChildOfKind(1, "statement_block"))

	sim := Similarity(bodyA, bodyB, 0.3)
	assert.Greater(t, sim, 0.9)
	assert.Less(t, sim, 1.0)
	assert.Equal(t, 1.0, Similarity(bodyA, bodyB, 0))
}
