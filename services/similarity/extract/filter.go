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

// MinSize is the minimum size a function must have to be compared.
//
// Tokens and Lines are mutually exclusive. When Tokens > 0 only the
// token rule applies; otherwise Lines applies. Zero disables a rule.
type MinSize struct {
	Lines  int
	Tokens int
}

// Allows reports whether u meets the minimum size.
func (m MinSize) Allows(u *CodeUnit) bool {
	if m.Tokens > 0 {
		return u.TokenCount >= m.Tokens
	}
	return u.LineCount >= m.Lines
}

// FilterFunctions returns the units that meet minSize, in input order.
func FilterFunctions(units []CodeUnit, minSize MinSize) []CodeUnit {
	out := make([]CodeUnit, 0, len(units))
	for i := range units {
		if minSize.Allows(&units[i]) {
			out = append(out, units[i])
		}
	}
	return out
}

// KindFilter restricts which type declarations are compared.
type KindFilter int

const (
	// AllKinds keeps interfaces and aliases.
	AllKinds KindFilter = iota

	// AliasesOnly keeps type aliases.
	AliasesOnly

	// InterfacesOnly keeps interfaces.
	InterfacesOnly
)

// String returns the filter name used in configuration.
func (k KindFilter) String() string {
	switch k {
	case AliasesOnly:
		return "aliases"
	case InterfacesOnly:
		return "interfaces"
	default:
		return "all"
	}
}

// FilterTypes returns the definitions allowed by filter, in input order.
func FilterTypes(types []TypeDefinition, filter KindFilter) []TypeDefinition {
	if filter == AllKinds {
		return types
	}
	want := TypeAlias
	if filter == InterfacesOnly {
		want = TypeInterface
	}
	out := make([]TypeDefinition, 0, len(types))
	for _, t := range types {
		if t.Kind == want {
			out = append(out, t)
		}
	}
	return out
}
