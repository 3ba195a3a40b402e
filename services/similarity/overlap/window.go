// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package overlap

import (
	"github.com/AleutianAI/similarity/services/similarity/ast"
	"github.com/AleutianAI/similarity/services/similarity/extract"
)

// TopLevel is the Function name of windows outside any function.
const TopLevel = "(top-level)"

// boundaryKinds are the nodes whose children start windows.
var boundaryKinds = map[string]bool{
	"program":         true,
	"statement_block": true,
	"switch_case":     true,
	"switch_default":  true,
	"class_body":      true,
}

// Window is a run of consecutive sibling statements.
//
// Roots are the statement nodes. Because siblings are adjacent in
// preorder, the window covers the node range [Start, End).
type Window struct {
	Roots     []int  `json:"-"`
	Start     int    `json:"start"`
	End       int    `json:"end"`
	NodeCount int    `json:"node_count"`
	NodeType  string `json:"node_type"`
	StartLine int    `json:"start_line"`
	EndLine   int    `json:"end_line"`
	Function  string `json:"function"`
}

// View returns the window as a forest view of tree.
func (w *Window) View(tree *ast.Tree) ast.View {
	return tree.Forest(w.Roots)
}

// Disjoint reports whether two windows of the same tree share no node.
func (w *Window) Disjoint(other *Window) bool {
	return w.End <= other.Start || other.End <= w.Start
}

// EnumerateWindows lists the windows of a tree.
//
// # Description
//
// A window starts at a child of a statement container (program, block,
// switch case, class body) and extends over the following siblings
// while its node count stays at or below maxSize. Every prefix whose
// node count is within [minSize, maxSize] is a window. A single
// statement larger than maxSize yields no window of its own; its nested
// blocks are enumerated instead.
//
// # Inputs
//
//   - tree: Parsed file.
//   - minSize, maxSize: Node count bounds, inclusive.
//
// # Outputs
//
//   - []Window: In preorder of the starting statement, shorter first.
func EnumerateWindows(tree *ast.Tree, minSize, maxSize int) []Window {
	if tree == nil || minSize > maxSize {
		return nil
	}
	var out []Window
	for p := range tree.Nodes {
		if !boundaryKinds[tree.Nodes[p].Kind] {
			continue
		}
		children := tree.Nodes[p].Children
		for s := range children {
			count := 0
			for e := s; e < len(children); e++ {
				count += tree.Nodes[children[e]].Size
				if count > maxSize {
					break
				}
				if count >= minSize {
					out = append(out, newWindow(tree, children[s:e+1], count))
				}
			}
		}
	}
	return out
}

func newWindow(tree *ast.Tree, roots []int, count int) Window {
	first, last := &tree.Nodes[roots[0]], &tree.Nodes[roots[len(roots)-1]]
	fn := extract.FunctionName(tree, tree.Nodes[roots[0]].Parent)
	if fn == "" {
		fn = TopLevel
	}
	return Window{
		Roots:     roots,
		Start:     roots[0],
		End:       roots[len(roots)-1] + last.Size,
		NodeCount: count,
		NodeType:  dominantKind(tree, roots),
		StartLine: first.StartLine,
		EndLine:   last.EndLine,
		Function:  fn,
	}
}

// dominantKind returns the root kind covering the most nodes. Ties go to
// the kind seen first.
func dominantKind(tree *ast.Tree, roots []int) string {
	weights := make(map[string]int, len(roots))
	best, bestWeight := "", -1
	for _, r := range roots {
		weights[tree.Nodes[r].Kind] += tree.Nodes[r].Size
	}
	for _, r := range roots {
		k := tree.Nodes[r].Kind
		if weights[k] > bestWeight {
			best, bestWeight = k, weights[k]
		}
	}
	return best
}
