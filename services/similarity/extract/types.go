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
	"fmt"

	"github.com/AleutianAI/similarity/services/similarity/ast"
)

// UnitKind classifies an extracted function.
type UnitKind string

const (
	// KindFunction is a function or generator declaration.
	KindFunction UnitKind = "function"

	// KindMethod is a class or object method.
	KindMethod UnitKind = "method"

	// KindArrow is an arrow function bound to a name.
	KindArrow UnitKind = "arrow"

	// KindExpression is a function expression bound to a name.
	KindExpression UnitKind = "expression"
)

// CodeUnit is a function extracted from one source file.
//
// # Description
//
// Identity is (FilePath, Name, StartLine, EndLine). Body is a view of
// the function body inside the file's arena tree and is what the
// function engine compares. A CodeUnit is never mutated after Extract
// returns.
type CodeUnit struct {
	FilePath  string   `json:"file_path"`
	Name      string   `json:"name"`
	Kind      UnitKind `json:"kind"`
	StartLine int      `json:"start_line"`
	EndLine   int      `json:"end_line"`

	// ParentName is the enclosing class for methods.
	ParentName string `json:"parent_name,omitempty"`

	// Params holds parameter names in declaration order.
	Params []string `json:"params,omitempty"`

	// TokenCount counts source tokens of the whole function.
	TokenCount int `json:"token_count"`

	// LineCount is EndLine - StartLine + 1.
	LineCount int `json:"line_count"`

	// Node is the arena index of the function node.
	Node int `json:"-"`

	// Body is the function body view.
	Body ast.View `json:"-"`

	// Content is the source text of the function.
	Content string `json:"-"`
}

// QualifiedName returns Parent.Name for methods and Name otherwise.
func (u *CodeUnit) QualifiedName() string {
	if u.ParentName != "" {
		return u.ParentName + "." + u.Name
	}
	return u.Name
}

// Less orders units by file path, start line, then name.
func (u *CodeUnit) Less(other *CodeUnit) bool {
	if u.FilePath != other.FilePath {
		return u.FilePath < other.FilePath
	}
	if u.StartLine != other.StartLine {
		return u.StartLine < other.StartLine
	}
	if u.EndLine != other.EndLine {
		return u.EndLine < other.EndLine
	}
	return u.QualifiedName() < other.QualifiedName()
}

// Encloses reports whether other lies inside u in the same file.
func (u *CodeUnit) Encloses(other *CodeUnit) bool {
	if u.FilePath != other.FilePath || u.Body.Tree == nil || u.Body.Tree != other.Body.Tree {
		return false
	}
	return u.Body.Tree.Contains(u.Node, other.Node)
}

// TypeKind distinguishes interfaces from type aliases.
type TypeKind string

const (
	TypeInterface TypeKind = "interface"
	TypeAlias     TypeKind = "type"
)

// Property is one member of an object-shaped type.
type Property struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Optional bool   `json:"optional,omitempty"`
	Readonly bool   `json:"readonly,omitempty"`
}

// String renders the property the way it is declared.
func (p Property) String() string {
	s := p.Name
	if p.Readonly {
		s = "readonly " + s
	}
	if p.Optional {
		s += "?"
	}
	return s + ": " + p.Type
}

// TypeDefinition is an interface or type alias declaration.
type TypeDefinition struct {
	FilePath   string     `json:"file_path"`
	Name       string     `json:"name"`
	Kind       TypeKind   `json:"kind"`
	Generics   []string   `json:"generics,omitempty"`
	Extends    []string   `json:"extends,omitempty"`
	Properties []Property `json:"properties,omitempty"`
	StartLine  int        `json:"start_line"`
	EndLine    int        `json:"end_line"`

	// Body is the normalized text of a non-object alias, e.g. "'a' | 'b'".
	Body string `json:"body,omitempty"`
}

// Less orders definitions by file path, start line, then name.
func (d *TypeDefinition) Less(other *TypeDefinition) bool {
	if d.FilePath != other.FilePath {
		return d.FilePath < other.FilePath
	}
	if d.StartLine != other.StartLine {
		return d.StartLine < other.StartLine
	}
	return d.Name < other.Name
}

// LiteralContextKind says where a type literal appears.
type LiteralContextKind string

const (
	ContextFunctionReturn      LiteralContextKind = "function_return"
	ContextFunctionParameter   LiteralContextKind = "function_parameter"
	ContextVariableDeclaration LiteralContextKind = "variable_declaration"
	ContextArrowFunctionReturn LiteralContextKind = "arrow_function_return"
)

// LiteralContext names the declaration a type literal is attached to.
type LiteralContext struct {
	Kind LiteralContextKind `json:"kind"`

	// Name is the function or variable name.
	Name string `json:"name"`

	// ParamName is set for ContextFunctionParameter.
	ParamName string `json:"param_name,omitempty"`
}

// Label renders the context for humans, e.g. "Function 'f' return type".
func (c LiteralContext) Label() string {
	switch c.Kind {
	case ContextFunctionReturn:
		return fmt.Sprintf("Function '%s' return type", c.Name)
	case ContextFunctionParameter:
		return fmt.Sprintf("Function '%s' parameter '%s'", c.Name, c.ParamName)
	case ContextVariableDeclaration:
		return fmt.Sprintf("Variable '%s' type annotation", c.Name)
	case ContextArrowFunctionReturn:
		return fmt.Sprintf("Arrow function '%s' return type", c.Name)
	default:
		return c.Name
	}
}

// TypeLiteralDefinition is an anonymous object type found in a
// signature or variable annotation.
type TypeLiteralDefinition struct {
	FilePath   string         `json:"file_path"`
	Name       string         `json:"name"`
	Properties []Property     `json:"properties,omitempty"`
	StartLine  int            `json:"start_line"`
	EndLine    int            `json:"end_line"`
	Context    LiteralContext `json:"context"`
}

// Less orders literals by file path, start line, then name.
func (l *TypeLiteralDefinition) Less(other *TypeLiteralDefinition) bool {
	if l.FilePath != other.FilePath {
		return l.FilePath < other.FilePath
	}
	if l.StartLine != other.StartLine {
		return l.StartLine < other.StartLine
	}
	return l.Name < other.Name
}

// literalName derives the display name of a literal from its context.
func literalName(c LiteralContext) string {
	switch c.Kind {
	case ContextFunctionParameter:
		return c.Name + "." + c.ParamName
	case ContextFunctionReturn, ContextArrowFunctionReturn:
		return c.Name + "()"
	default:
		return c.Name
	}
}

// Result is everything extracted from one file.
type Result struct {
	FilePath  string
	Functions []CodeUnit
	Types     []TypeDefinition
	Literals  []TypeLiteralDefinition
}
