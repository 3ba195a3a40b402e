// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package typesim

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/similarity/services/similarity/ast"
	"github.com/AleutianAI/similarity/services/similarity/extract"
)

func prop(name, typ string) extract.Property {
	return extract.Property{Name: name, Type: typ}
}

func def(name string, kind extract.TypeKind, props ...extract.Property) extract.TypeDefinition {
	return extract.TypeDefinition{FilePath: "types.ts", Name: name, Kind: kind, Properties: props, StartLine: 1, EndLine: 1}
}

func TestCompare_CrossKindScenario(t *testing.T) {
	iface := def("Entity", extract.TypeInterface, prop("id", "string"))
	alias := def("Entity", extract.TypeAlias, prop("id", "string"))
	alias.FilePath = "other.ts"

	_, err := Compare(&iface, &alias, DefaultOptions())
	assert.ErrorIs(t, err, ErrCrossKind)

	pairs, err := FindSimilar(context.Background(), []extract.TypeDefinition{iface, alias}, 0.87, DefaultOptions())
	require.NoError(t, err)
	assert.Empty(t, pairs)

	opts := DefaultOptions()
	opts.AllowCrossKind = true
	pairs, err = FindSimilar(context.Background(), []extract.TypeDefinition{iface, alias}, 0.87, opts)
	require.NoError(t, err)
	require.Len(t, pairs, 1)
	assert.Equal(t, 1.0, pairs[0].Result.Structural)
	assert.True(t, pairs[0].Result.Differences.Empty())
}

func TestCompare_StructuralScores(t *testing.T) {
	base := def("A", extract.TypeInterface, prop("id", "string"), prop("n", "number"))

	tests := []struct {
		name  string
		other extract.TypeDefinition
		want  float64
	}{
		{"identical", def("B", extract.TypeInterface, prop("id", "string"), prop("n", "number")), 1.0},
		{"whitespace in types ignored", def("B", extract.TypeInterface, prop("id", " string "), prop("n", "number")), 1.0},
		{"optionality differs", def("B", extract.TypeInterface, prop("id", "string"),
			extract.Property{Name: "n", Type: "number", Optional: true}), (1 + 0.8) / 2},
		{"type differs", def("B", extract.TypeInterface, prop("id", "number"), prop("n", "number")), (0.5 + 1) / 2},
		{"both differ", def("B", extract.TypeInterface, prop("id", "string"),
			extract.Property{Name: "n", Type: "string", Optional: true}), (1 + 0.3) / 2},
		{"extra property", def("B", extract.TypeInterface, prop("id", "string"), prop("n", "number"), prop("x", "x")), 2.0 / 3},
		{"disjoint", def("B", extract.TypeInterface, prop("q", "string")), 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := Compare(&base, &tt.other, DefaultOptions())
			require.NoError(t, err)
			assert.InDelta(t, tt.want, res.Structural, 1e-12)
		})
	}
}

func TestCompare_Differences(t *testing.T) {
	a := def("User", extract.TypeInterface,
		prop("id", "string"),
		prop("name", "string"),
		extract.Property{Name: "age", Type: "number", Optional: true},
	)
	b := def("Person", extract.TypeInterface,
		prop("id", "number"),
		prop("age", "number"),
		prop("email", "string"),
	)

	res, err := Compare(&a, &b, DefaultOptions())
	require.NoError(t, err)
	d := res.Differences
	assert.Equal(t, []string{"name"}, d.Missing)
	assert.Equal(t, []string{"email"}, d.Extra)
	assert.Equal(t, []TypeMismatch{{Property: "id", Type1: "string", Type2: "number"}}, d.TypeMismatches)
	assert.Equal(t, []string{"age"}, d.OptionalityDifferences)

	// Differences survive a zero structural weight.
	res, err = Compare(&a, &b, Options{StructuralWeight: 0, NamingWeight: 1})
	require.NoError(t, err)
	assert.False(t, res.Differences.Empty())
}

func TestCompare_SymmetryAndIdentity(t *testing.T) {
	types := []extract.TypeDefinition{
		def("User", extract.TypeInterface, prop("id", "string"), prop("name", "string")),
		def("UserData", extract.TypeInterface, prop("id", "string"), prop("name", "string"), prop("email", "string")),
		def("Order", extract.TypeInterface, prop("id", "number"), extract.Property{Name: "total", Type: "number", Optional: true}),
		def("Empty", extract.TypeInterface),
	}
	opts := DefaultOptions()
	for i := range types {
		res, err := Compare(&types[i], &types[i], opts)
		require.NoError(t, err)
		assert.InDelta(t, 1.0, res.Similarity, 1e-12, types[i].Name)
		for j := range types {
			ab, err := Compare(&types[i], &types[j], opts)
			require.NoError(t, err)
			ba, err := Compare(&types[j], &types[i], opts)
			require.NoError(t, err)
			assert.Equal(t, ab.Similarity, ba.Similarity)
			assert.Equal(t, ab.Structural, ba.Structural)
			assert.Equal(t, ab.Naming, ba.Naming)
			assert.Equal(t, ab.Differences.Missing, ba.Differences.Extra)
		}
	}
}

func TestCompare_WeightSensitivity(t *testing.T) {
	a := def("Customer", extract.TypeInterface, prop("id", "string"), prop("name", "string"))
	b := def("Client", extract.TypeInterface, prop("id", "string"), prop("name", "string"))

	prevContribution := -1.0
	for _, w := range []float64{0, 0.2, 0.4, 0.6, 0.8, 1.0} {
		res, err := Compare(&a, &b, Options{StructuralWeight: 1 - w, NamingWeight: w})
		require.NoError(t, err)
		contribution := w * res.Naming
		assert.GreaterOrEqual(t, contribution, prevContribution)
		prevContribution = contribution
		assert.Equal(t, 1.0, res.Structural)
	}
}

func TestCompare_AliasBodies(t *testing.T) {
	a := extract.TypeDefinition{Name: "Status", Kind: extract.TypeAlias, Body: "'on' | 'off'"}
	b := extract.TypeDefinition{Name: "State", Kind: extract.TypeAlias, Body: "'on'  |  'off'"}
	c := extract.TypeDefinition{Name: "Mode", Kind: extract.TypeAlias, Body: "number"}

	res, err := Compare(&a, &b, DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, 1.0, res.Structural)

	res, err = Compare(&a, &c, DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, 0.0, res.Structural)

	e1 := def("A", extract.TypeInterface)
	e2 := def("B", extract.TypeInterface)
	res, err = Compare(&e1, &e2, DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, 1.0, res.Structural)
}

func TestNameSimilarity(t *testing.T) {
	assert.Equal(t, 1.0, nameSimilarity("User", "user"))
	assert.InDelta(t, 1-2.0/6, nameSimilarity("Users", "UserID"), 1e-12)
	assert.Equal(t, 1.0, nameSimilarity("", ""))
	assert.Equal(t, 0.0, nameSimilarity("abc", "xyz"))
}

func TestFindLiteralMatches(t *testing.T) {
	src := `interface Options {
  path: string;
  force?: boolean;
}

interface Unrelated {
  color: string;
  size: number;
}

function save(opts: { path: string; force?: boolean }) {}
`
	tree, err := ast.NewTypeScriptParser().Parse(context.Background(), []byte(src), "save.ts")
	require.NoError(t, err)
	res, err := extract.Extract(tree, extract.Options{IncludeTypeLiterals: true})
	require.NoError(t, err)
	require.Len(t, res.Literals, 1)
	require.Len(t, res.Types, 2)

	pairs, err := FindLiteralMatches(context.Background(), res.Literals, res.Types, 0.8, DefaultOptions())
	require.NoError(t, err)
	require.Len(t, pairs, 1)
	assert.Equal(t, "Options", pairs[0].Definition.Name)
	assert.Equal(t, "save.opts", pairs[0].Literal.Name)
	assert.Equal(t, 1.0, pairs[0].Result.Similarity)
}

func TestFindSimilar_Ordering(t *testing.T) {
	types := []extract.TypeDefinition{
		{FilePath: "b.ts", Name: "User", Kind: extract.TypeInterface, StartLine: 3, Properties: []extract.Property{prop("id", "string"), prop("name", "string")}},
		{FilePath: "a.ts", Name: "UserInfo", Kind: extract.TypeInterface, StartLine: 1, Properties: []extract.Property{prop("id", "string"), prop("name", "string")}},
		{FilePath: "c.ts", Name: "Users", Kind: extract.TypeInterface, StartLine: 1, Properties: []extract.Property{prop("id", "string"), prop("name", "string")}},
	}
	pairs, err := FindSimilar(context.Background(), types, 0.5, DefaultOptions())
	require.NoError(t, err)
	require.Len(t, pairs, 3)
	for i, p := range pairs {
		assert.True(t, p.A.Less(&p.B))
		if i > 0 {
			assert.GreaterOrEqual(t, pairs[i-1].Result.Similarity, p.Result.Similarity)
		}
	}
	// User vs Users has the closest names.
	assert.Equal(t, "User", pairs[0].A.Name)
	assert.Equal(t, "Users", pairs[0].B.Name)
}
