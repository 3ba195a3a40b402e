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
	"context"
	"fmt"
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/similarity/services/similarity/ast"
)

const alphaSrc = `function alpha(list: number[]) {
  const out: number[] = [];
  for (const x of list) {
    out.push(x * 2);
  }
  return out;
}
`

const betaSrc = `function beta(list: number[]) {
  const out: number[] = [];
  for (const x of list) {
    out.push(x * 2);
  }
  return out;
}
`

const gammaSrc = `const limit = 10;
let count = 0;
while (count < limit) {
  if (count % 2 === 0) {
    console.log("even", count);
  } else {
    console.log("odd", count);
  }
  count++;
}
switch (count) {
  case 1:
    console.log("one");
    break;
  default:
    console.log("many", count, limit);
}
`

func parse(t *testing.T, path, src string) *ast.Tree {
	t.Helper()
	tree, err := ast.NewTypeScriptParser().Parse(context.Background(), []byte(src), path)
	require.NoError(t, err)
	return tree
}

func TestEnumerateWindows_Bounds(t *testing.T) {
	for _, src := range []string{alphaSrc, gammaSrc} {
		tree := parse(t, "w.ts", src)
		for _, bounds := range [][2]int{{1, 3}, {8, 25}, {5, 10}} {
			windows := EnumerateWindows(tree, bounds[0], bounds[1])
			require.NotEmpty(t, windows)
			for _, w := range windows {
				assert.GreaterOrEqual(t, w.NodeCount, bounds[0])
				assert.LessOrEqual(t, w.NodeCount, bounds[1])
				assert.Equal(t, w.NodeCount, w.End-w.Start)
				assert.Equal(t, w.NodeCount, w.View(tree).Len())
				assert.LessOrEqual(t, w.StartLine, w.EndLine)
				assert.NotEmpty(t, w.NodeType)
				for k := 1; k < len(w.Roots); k++ {
					prev := w.Roots[k-1]
					assert.Equal(t, prev+tree.Nodes[prev].Size, w.Roots[k], "roots must be adjacent siblings")
				}
			}
		}
	}
	assert.Nil(t, EnumerateWindows(nil, 1, 5))
	assert.Nil(t, EnumerateWindows(parse(t, "w.ts", alphaSrc), 10, 5))
}

func TestEnumerateWindows_FunctionNames(t *testing.T) {
	tree := parse(t, "w.ts", alphaSrc+gammaSrc)
	var sawAlpha, sawTop bool
	for _, w := range EnumerateWindows(tree, 2, 40) {
		switch w.Function {
		case "alpha":
			sawAlpha = true
		case TopLevel:
			sawTop = true
		}
	}
	assert.True(t, sawAlpha)
	assert.True(t, sawTop)
}

func TestEnumerateWindows_ClassBodyLabel(t *testing.T) {
	src := `class Repo {
  limit = 10;
  items: number[] = [];
  find(id: number) {
    return this.items.filter((x) => x === id);
  }
}
`
	tree := parse(t, "repo.ts", src)
	var sawClass bool
	for _, w := range EnumerateWindows(tree, 1, 40) {
		if tree.Nodes[tree.Nodes[w.Roots[0]].Parent].Kind != "class_body" {
			continue
		}
		sawClass = true
		assert.Equal(t, "Repo", w.Function, "window at line %d", w.StartLine)
	}
	assert.True(t, sawClass)
}

func TestFindOverlaps_IdenticalBodies(t *testing.T) {
	files := map[string]*ast.Tree{
		"b.ts": parse(t, "b.ts", betaSrc),
		"a.ts": parse(t, "a.ts", alphaSrc),
	}

	opts := DefaultOptions()
	matches, err := FindOverlaps(context.Background(), files, opts)
	require.NoError(t, err)
	require.NotEmpty(t, matches)

	for _, m := range matches {
		assert.Equal(t, "a.ts", m.SourceFile)
		assert.Equal(t, "b.ts", m.TargetFile)
		assert.GreaterOrEqual(t, m.Similarity, opts.Threshold)
		assert.GreaterOrEqual(t, m.NodeCount, opts.MinWindowSize)
		assert.LessOrEqual(t, m.NodeCount, opts.MaxWindowSize)
		assert.True(t, withinTolerance(m.Source.NodeCount, m.Target.NodeCount, opts.SizeTolerance))
		assert.Equal(t, "alpha", m.Source.Function)
		assert.Equal(t, "beta", m.Target.Function)
	}
}

func TestFindOverlaps_ContainmentKeepsLargest(t *testing.T) {
	files := map[string]*ast.Tree{
		"a.ts": parse(t, "a.ts", alphaSrc),
		"b.ts": parse(t, "b.ts", betaSrc),
	}
	opts := DefaultOptions()
	opts.MaxWindowSize = 80

	matches, err := FindOverlaps(context.Background(), files, opts)
	require.NoError(t, err)
	require.Len(t, matches, 1, "every smaller window lies inside the whole-function match")
	assert.Equal(t, "function_declaration", matches[0].NodeType)
	assert.Equal(t, TopLevel, matches[0].Source.Function)
	assert.Less(t, matches[0].Similarity, 1.0)
}

func TestSuppressContained(t *testing.T) {
	win := func(start, end int) Window {
		return Window{Start: start, End: end, NodeCount: end - start}
	}
	match := func(src, dst Window, sim float64) Match {
		n := src.NodeCount
		if dst.NodeCount > n {
			n = dst.NodeCount
		}
		return Match{Source: src, Target: dst, Similarity: sim, NodeCount: n}
	}

	candidates := []Match{
		match(win(2, 10), win(2, 10), 1.0),   // inside the big match on both sides
		match(win(0, 20), win(0, 20), 0.9),   // largest
		match(win(2, 10), win(30, 38), 0.95), // target not covered
		match(win(25, 33), win(5, 13), 0.9),  // source not covered
	}
	kept := suppressContained(candidates)
	require.Len(t, kept, 3)
	assert.Equal(t, 0, kept[0].Source.Start)
	for _, m := range kept {
		assert.False(t, m.Source.Start == 2 && m.Target.Start == 2)
	}
}

func TestFindOverlaps_FastMatchesExhaustive(t *testing.T) {
	files := map[string]*ast.Tree{
		"a.ts": parse(t, "a.ts", alphaSrc),
		"b.ts": parse(t, "b.ts", betaSrc),
		"c.ts": parse(t, "c.ts", gammaSrc),
		"d.ts": parse(t, "d.ts", gammaSrc+alphaSrc),
	}
	for _, threshold := range []float64{0.5, 0.7, 0.87} {
		for _, tol := range []float64{0.1, 0.25, 0.5} {
			opts := DefaultOptions()
			opts.Threshold = threshold
			opts.SizeTolerance = tol

			opts.Fast = true
			fast, err := FindOverlaps(context.Background(), files, opts)
			require.NoError(t, err)

			opts.Fast = false
			slow, err := FindOverlaps(context.Background(), files, opts)
			require.NoError(t, err)

			assert.Equal(t, matchKeys(slow), matchKeys(fast), "threshold %.2f tolerance %.2f", threshold, tol)
		}
	}
}

func TestFindOverlaps_SameFile(t *testing.T) {
	src := alphaSrc + "\n" + betaSrc
	files := map[string]*ast.Tree{"both.ts": parse(t, "both.ts", src)}

	opts := DefaultOptions()
	matches, err := FindOverlaps(context.Background(), files, opts)
	require.NoError(t, err)
	assert.Empty(t, matches, "same-file scanning is off by default")

	opts.SameFile = true
	matches, err = FindOverlaps(context.Background(), files, opts)
	require.NoError(t, err)
	require.NotEmpty(t, matches)
	for _, m := range matches {
		assert.Equal(t, m.SourceFile, m.TargetFile)
		assert.True(t, m.Source.Disjoint(&m.Target))
		assert.Less(t, m.Source.Start, m.Target.Start)
	}
}

func TestFindOverlapsBetween(t *testing.T) {
	a := parse(t, "a.ts", alphaSrc)
	b := parse(t, "b.ts", betaSrc)

	between, err := FindOverlapsBetween(context.Background(), a, b, DefaultOptions())
	require.NoError(t, err)
	all, err := FindOverlaps(context.Background(), map[string]*ast.Tree{"a.ts": a, "b.ts": b}, DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, matchKeys(all), matchKeys(between))
}

func TestFindOverlaps_Symmetric(t *testing.T) {
	repeated := func(stmt string, n int) string {
		return strings.Repeat(stmt+"\n", n)
	}
	tests := []struct {
		name string
		x, y string
	}{
		{name: "renamed function", x: alphaSrc, y: betaSrc},
		{name: "unrelated files", x: alphaSrc, y: gammaSrc},
		{name: "identical files", x: gammaSrc, y: gammaSrc},
		{name: "repeated calls", x: repeated("x(1);", 20), y: repeated("x(1);", 15)},
		{name: "interleaved runs", x: repeated("x(1);\ny(2);", 10), y: repeated("y(2);\nx(1);", 8) + repeated("x(1);", 4)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			forward, err := FindOverlapsBetween(context.Background(),
				parse(t, "a.ts", tt.x), parse(t, "b.ts", tt.y), DefaultOptions())
			require.NoError(t, err)
			backward, err := FindOverlapsBetween(context.Background(),
				parse(t, "a.ts", tt.y), parse(t, "b.ts", tt.x), DefaultOptions())
			require.NoError(t, err)

			want := make([]string, 0, len(forward))
			for _, m := range forward {
				want = append(want, spanKey(m.Source, m.Target, m))
			}
			got := make([]string, 0, len(backward))
			for _, m := range backward {
				got = append(got, spanKey(m.Target, m.Source, m))
			}
			sort.Strings(want)
			sort.Strings(got)
			assert.Equal(t, want, got)
		})
	}
}

func TestFindOverlapsInSources_IsolatesFailures(t *testing.T) {
	sources := map[string][]byte{
		"a.ts":      []byte(alphaSrc),
		"b.ts":      []byte(betaSrc),
		"notes.txt": []byte("hello"),
		"bad.ts":    []byte("function (( {"),
	}
	matches, failed, err := FindOverlapsInSources(context.Background(), ast.NewDefaultRegistry(), sources, DefaultOptions())
	require.NoError(t, err)
	assert.NotEmpty(t, matches)
	require.Len(t, failed, 2)
	assert.True(t, ast.IsUnsupportedLanguage(failed["notes.txt"]))
	assert.True(t, ast.IsSyntaxError(failed["bad.ts"]))
}

func TestOptions_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Options)
		want   error
	}{
		{"zero min", func(o *Options) { o.MinWindowSize = 0 }, ErrInvalidWindow},
		{"max below min", func(o *Options) { o.MaxWindowSize = 4 }, ErrInvalidWindow},
		{"threshold", func(o *Options) { o.Threshold = 2 }, ErrInvalidThreshold},
		{"tolerance", func(o *Options) { o.SizeTolerance = -1 }, ErrInvalidTolerance},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := DefaultOptions()
			tt.mutate(&opts)
			_, err := FindOverlaps(context.Background(), nil, opts)
			assert.ErrorIs(t, err, tt.want)
		})
	}
	assert.NoError(t, DefaultOptions().Validate())
}

func matchKeys(matches []Match) []string {
	keys := make([]string, 0, len(matches))
	for _, m := range matches {
		keys = append(keys, fmt.Sprintf("%s[%d,%d)|%s[%d,%d)|%.6f",
			m.SourceFile, m.Source.Start, m.Source.End,
			m.TargetFile, m.Target.Start, m.Target.End, m.Similarity))
	}
	return keys
}

// spanKey identifies a match by its x-side and y-side spans.
func spanKey(x, y Window, m Match) string {
	return fmt.Sprintf("[%d,%d)|[%d,%d)|%.6f|%d", x.Start, x.End, y.Start, y.End, m.Similarity, m.NodeCount)
}
