// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFilterFunctions(t *testing.T) {
	units := []CodeUnit{
		{Name: "tiny", LineCount: 2, TokenCount: 40},
		{Name: "short", LineCount: 3, TokenCount: 4},
		{Name: "long", LineCount: 10, TokenCount: 90},
	}

	tests := []struct {
		name string
		min  MinSize
		want []string
	}{
		{"lines only", MinSize{Lines: 3}, []string{"short", "long"}},
		{"tokens only", MinSize{Tokens: 5}, []string{"tiny", "long"}},
		{"tokens win over lines", MinSize{Lines: 3, Tokens: 5}, []string{"tiny", "long"}},
		{"no limits", MinSize{}, []string{"tiny", "short", "long"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got []string
			for _, u := range FilterFunctions(units, tt.min) {
				got = append(got, u.Name)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFilterTypes(t *testing.T) {
	types := []TypeDefinition{
		{Name: "A", Kind: TypeInterface},
		{Name: "B", Kind: TypeAlias},
		{Name: "C", Kind: TypeInterface},
	}

	assert.Len(t, FilterTypes(types, AllKinds), 3)

	aliases := FilterTypes(types, AliasesOnly)
	assert.Len(t, aliases, 1)
	assert.Equal(t, "B", aliases[0].Name)

	ifaces := FilterTypes(types, InterfacesOnly)
	assert.Len(t, ifaces, 2)
	assert.Equal(t, "interfaces", InterfacesOnly.String())
}

func TestCodeUnit_Ordering(t *testing.T) {
	a := &CodeUnit{FilePath: "a.ts", StartLine: 5, Name: "z"}
	b := &CodeUnit{FilePath: "a.ts", StartLine: 9, Name: "a"}
	c := &CodeUnit{FilePath: "b.ts", StartLine: 1, Name: "a"}

	assert.True(t, a.Less(b))
	assert.True(t, b.Less(c))
	assert.False(t, c.Less(a))
}
