// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package extract pulls comparable units out of parsed TypeScript and
// JavaScript trees: functions, type declarations, and type literals.
package extract

import (
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"strings"

	"github.com/AleutianAI/similarity/services/similarity/ast"
)

// ErrNilTree is returned when Extract is given no tree.
var ErrNilTree = errors.New("nil tree")

// Options controls what Extract collects.
type Options struct {
	// IncludeTypeLiterals collects anonymous object types found in
	// signatures and variable annotations.
	IncludeTypeLiterals bool
}

// Node kinds the extractor dispatches on.
const (
	kindFunctionDecl     = "function_declaration"
	kindGeneratorDecl    = "generator_function_declaration"
	kindFunctionExpr     = "function_expression"
	kindFunctionLegacy   = "function"
	kindGeneratorExpr    = "generator_function"
	kindArrow            = "arrow_function"
	kindMethod           = "method_definition"
	kindDeclarator       = "variable_declarator"
	kindFieldDefinition  = "public_field_definition"
	kindInterface        = "interface_declaration"
	kindTypeAlias        = "type_alias_declaration"
	kindObjectType       = "object_type"
	kindInterfaceBody    = "interface_body"
	kindTypeAnnotation   = "type_annotation"
	kindFormalParameters = "formal_parameters"
	kindStatementBlock   = "statement_block"
	kindPair             = "pair"
	kindObject           = "object"
	kindExport           = "export_statement"
)

// defaultExportName names anonymous default-exported functions.
const defaultExportName = "default"

var classKinds = []string{"class_declaration", "abstract_class_declaration", "class"}

var nameKinds = []string{"identifier", "property_identifier", "private_property_identifier", "type_identifier"}

// Extract collects functions, types, and optionally type literals from
// a tree.
//
// # Description
//
// Walks the arena in preorder, so every output slice is in source order.
// Anonymous callbacks are not extracted; a function needs a declaration
// name, a binding variable, a class field, an object key, or a method
// name. An anonymous default export is named "default".
//
// # Inputs
//
//   - tree: Parsed file. Must not be nil.
//   - opts: Extraction options.
//
// # Outputs
//
//   - *Result: Extracted units. Never nil on success.
//   - error: *ast.ExtractionError when the tree cannot be walked.
//
// # Thread Safety
//
// Safe for concurrent use. The tree is only read.
func Extract(tree *ast.Tree, opts Options) (result *Result, err error) {
	if tree == nil {
		return nil, &ast.ExtractionError{Stage: "tree", Cause: ErrNilTree}
	}

	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			slog.Error("panic during extraction",
				slog.String("file", tree.Path),
				slog.Any("panic", r),
				slog.String("stack", string(buf[:n])),
			)
			result = nil
			err = &ast.ExtractionError{FilePath: tree.Path, Stage: "walk", Cause: fmt.Errorf("panic: %v", r)}
		}
	}()

	x := &extractor{tree: tree, opts: opts}
	x.result = &Result{FilePath: tree.Path}
	for i := range tree.Nodes {
		x.visit(i)
	}
	return x.result, nil
}

type extractor struct {
	tree   *ast.Tree
	opts   Options
	result *Result
}

func (x *extractor) visit(i int) {
	switch x.tree.Nodes[i].Kind {
	case kindFunctionDecl, kindGeneratorDecl:
		x.addFunction(i, KindFunction, x.nameOf(i), "")
	case kindFunctionExpr, kindFunctionLegacy, kindGeneratorExpr:
		if name, parent := x.bindingName(i); name != "" {
			x.addFunction(i, KindExpression, name, parent)
		}
	case kindArrow:
		if name, parent := x.bindingName(i); name != "" {
			x.addFunction(i, KindArrow, name, parent)
		}
	case kindMethod:
		x.addFunction(i, KindMethod, x.nameOf(i), x.methodOwner(i))
	case kindInterface:
		x.addInterface(i)
	case kindTypeAlias:
		x.addAlias(i)
	case kindObjectType:
		if x.opts.IncludeTypeLiterals {
			x.addLiteral(i)
		}
	}
}

// nameOf returns the text of the first name-like child of i.
func (x *extractor) nameOf(i int) string {
	if c := x.tree.ChildOfKind(i, nameKinds...); c >= 0 {
		return x.tree.Text(c)
	}
	return ""
}

// bindingName names a function expression by what it is assigned to.
// Returns the class name as parent for class fields.
func (x *extractor) bindingName(i int) (name, parent string) {
	p := x.tree.Nodes[i].Parent
	if p < 0 {
		return "", ""
	}
	switch x.tree.Nodes[p].Kind {
	case kindDeclarator:
		if c := x.tree.ChildOfKind(p, "identifier"); c >= 0 {
			return x.tree.Text(c), ""
		}
	case kindFieldDefinition, "field_definition":
		return x.nameOf(p), x.className(p)
	case kindPair:
		if key := x.keyName(p); key != "" {
			return key, x.objectOwner(p)
		}
	}
	// Named function expressions keep their own name.
	if k := x.tree.Nodes[i].Kind; k != kindArrow {
		if c := x.tree.ChildOfKind(i, "identifier"); c >= 0 {
			return x.tree.Text(c), ""
		}
	}
	if x.tree.Nodes[p].Kind == kindExport && x.tree.Nodes[p].HasModifier("default") {
		return defaultExportName, ""
	}
	return "", ""
}

// keyName returns the key of an object pair. Computed keys have no name.
func (x *extractor) keyName(pair int) string {
	children := x.tree.Nodes[pair].Children
	if len(children) == 0 {
		return ""
	}
	k := children[0]
	switch x.tree.Nodes[k].Kind {
	case "property_identifier", "private_property_identifier", "identifier", "number":
		return x.tree.Text(k)
	case "string":
		return strings.Trim(x.tree.Text(k), "'\"`")
	}
	return ""
}

// objectOwner names the object literal holding member by the variable
// it is assigned to, or returns "".
func (x *extractor) objectOwner(member int) string {
	obj := x.tree.Nodes[member].Parent
	if obj < 0 || x.tree.Nodes[obj].Kind != kindObject {
		return ""
	}
	d := x.tree.Nodes[obj].Parent
	if d < 0 || x.tree.Nodes[d].Kind != kindDeclarator {
		return ""
	}
	if c := x.tree.ChildOfKind(d, "identifier"); c >= 0 {
		return x.tree.Text(c)
	}
	return ""
}

// methodOwner is the class of a class method or the variable of an
// object literal method.
func (x *extractor) methodOwner(i int) string {
	if p := x.tree.Nodes[i].Parent; p >= 0 && x.tree.Nodes[p].Kind == kindObject {
		return x.objectOwner(i)
	}
	return x.className(i)
}

func (x *extractor) className(i int) string {
	c := x.tree.Ancestor(i, classKinds...)
	if c < 0 {
		return ""
	}
	return x.nameOf(c)
}

// bodyOf returns the body node of a function, or -1.
func (x *extractor) bodyOf(i int) int {
	if x.tree.Nodes[i].Kind == kindArrow {
		children := x.tree.Nodes[i].Children
		if len(children) == 0 {
			return -1
		}
		return children[len(children)-1]
	}
	return x.tree.ChildOfKind(i, kindStatementBlock)
}

func (x *extractor) addFunction(i int, kind UnitKind, name, parent string) {
	if name == "" {
		return
	}
	body := x.bodyOf(i)
	if body < 0 {
		return
	}
	n := &x.tree.Nodes[i]
	x.result.Functions = append(x.result.Functions, CodeUnit{
		FilePath:   x.tree.Path,
		Name:       name,
		Kind:       kind,
		StartLine:  n.StartLine,
		EndLine:    n.EndLine,
		ParentName: parent,
		Params:     x.params(i),
		TokenCount: n.Tokens,
		LineCount:  n.EndLine - n.StartLine + 1,
		Node:       i,
		Body:       x.tree.Subtree(body),
		Content:    x.tree.Text(i),
	})
}

func (x *extractor) params(fn int) []string {
	fp := x.tree.ChildOfKind(fn, kindFormalParameters)
	if fp < 0 {
		// x => ...
		if x.tree.Nodes[fn].Kind == kindArrow {
			if c := x.tree.ChildOfKind(fn, "identifier"); c >= 0 {
				return []string{x.tree.Text(c)}
			}
		}
		return nil
	}
	var out []string
	for _, p := range x.tree.Nodes[fp].Children {
		if name := x.paramName(p); name != "" {
			out = append(out, name)
		}
	}
	return out
}

// paramName returns the bound name of a parameter node.
func (x *extractor) paramName(p int) string {
	node := &x.tree.Nodes[p]
	switch node.Kind {
	case "identifier":
		return x.tree.Text(p)
	case "required_parameter", "optional_parameter", "assignment_pattern", "rest_pattern":
		for _, c := range node.Children {
			switch x.tree.Nodes[c].Kind {
			case "accessibility_modifier", "override_modifier", "decorator", kindTypeAnnotation:
				continue
			}
			return x.paramName(c)
		}
		return ""
	default:
		return x.tree.NormalizedText(p)
	}
}

func (x *extractor) addInterface(i int) {
	n := &x.tree.Nodes[i]
	def := TypeDefinition{
		FilePath:  x.tree.Path,
		Name:      x.nameOf(i),
		Kind:      TypeInterface,
		Generics:  x.generics(i),
		StartLine: n.StartLine,
		EndLine:   n.EndLine,
	}
	for _, c := range n.Children {
		switch x.tree.Nodes[c].Kind {
		case "extends_type_clause", "extends_clause":
			for _, e := range x.tree.Nodes[c].Children {
				def.Extends = append(def.Extends, x.tree.NormalizedText(e))
			}
		case kindObjectType, kindInterfaceBody:
			def.Properties = x.properties(c)
		}
	}
	x.result.Types = append(x.result.Types, def)
}

func (x *extractor) addAlias(i int) {
	n := &x.tree.Nodes[i]
	def := TypeDefinition{
		FilePath:  x.tree.Path,
		Name:      x.nameOf(i),
		Kind:      TypeAlias,
		Generics:  x.generics(i),
		StartLine: n.StartLine,
		EndLine:   n.EndLine,
	}
	if len(n.Children) > 0 {
		value := n.Children[len(n.Children)-1]
		if x.tree.Nodes[value].Kind == kindObjectType {
			def.Properties = x.properties(value)
		} else {
			def.Body = x.tree.NormalizedText(value)
		}
	}
	x.result.Types = append(x.result.Types, def)
}

func (x *extractor) generics(i int) []string {
	tp := x.tree.ChildOfKind(i, "type_parameters")
	if tp < 0 {
		return nil
	}
	var out []string
	for _, p := range x.tree.Nodes[tp].Children {
		if name := x.nameOf(p); name != "" {
			out = append(out, name)
		}
	}
	return out
}

// properties reads the members of an object_type or interface_body.
func (x *extractor) properties(body int) []Property {
	var props []Property
	for _, m := range x.tree.Nodes[body].Children {
		node := &x.tree.Nodes[m]
		switch node.Kind {
		case "property_signature":
			prop := Property{
				Optional: node.HasModifier("?"),
				Readonly: node.HasModifier("readonly"),
			}
			for _, c := range node.Children {
				if x.tree.Nodes[c].Kind == kindTypeAnnotation {
					prop.Type = annotationText(x.tree, c)
				} else if prop.Name == "" {
					prop.Name = x.tree.NormalizedText(c)
				}
			}
			if prop.Type == "" {
				prop.Type = "any"
			}
			props = append(props, prop)
		case "method_signature":
			prop := Property{Optional: node.HasModifier("?")}
			if len(node.Children) > 0 {
				name := node.Children[0]
				prop.Name = x.tree.NormalizedText(name)
				sig := string(x.tree.Source[x.tree.Nodes[name].EndByte:node.EndByte])
				sig = strings.TrimRight(strings.TrimLeft(sig, "? \t\n"), ";, \t\n")
				prop.Type = ast.NormalizeSpace(sig)
			}
			props = append(props, prop)
		case "index_signature":
			prop := Property{Readonly: node.HasModifier("readonly")}
			if ta := x.tree.ChildOfKind(m, kindTypeAnnotation); ta >= 0 {
				prop.Type = annotationText(x.tree, ta)
				prop.Name = ast.NormalizeSpace(string(x.tree.Source[node.StartByte:x.tree.Nodes[ta].StartByte]))
				prop.Name = strings.TrimPrefix(prop.Name, "readonly ")
			} else {
				prop.Name = x.tree.NormalizedText(m)
			}
			props = append(props, prop)
		}
	}
	return props
}

// annotationText strips the leading colon of a type annotation.
func annotationText(tree *ast.Tree, i int) string {
	return ast.NormalizeSpace(strings.TrimPrefix(strings.TrimSpace(tree.Text(i)), ":"))
}

func (x *extractor) addLiteral(i int) {
	ctx, ok := x.literalContext(i)
	if !ok {
		return
	}
	n := &x.tree.Nodes[i]
	x.result.Literals = append(x.result.Literals, TypeLiteralDefinition{
		FilePath:   x.tree.Path,
		Name:       literalName(ctx),
		Properties: x.properties(i),
		StartLine:  n.StartLine,
		EndLine:    n.EndLine,
		Context:    ctx,
	})
}

// literalContext finds the declaration an object_type annotates.
// Only literals that are the whole annotation qualify.
func (x *extractor) literalContext(i int) (LiteralContext, bool) {
	ann := x.tree.Nodes[i].Parent
	if ann < 0 || x.tree.Nodes[ann].Kind != kindTypeAnnotation {
		return LiteralContext{}, false
	}
	owner := x.tree.Nodes[ann].Parent
	if owner < 0 {
		return LiteralContext{}, false
	}

	switch kind := x.tree.Nodes[owner].Kind; kind {
	case kindFunctionDecl, kindGeneratorDecl, kindFunctionExpr, kindFunctionLegacy, kindMethod:
		name := x.functionName(owner)
		if name == "" {
			return LiteralContext{}, false
		}
		return LiteralContext{Kind: ContextFunctionReturn, Name: name}, true
	case kindArrow:
		name, _ := x.bindingName(owner)
		if name == "" {
			return LiteralContext{}, false
		}
		return LiteralContext{Kind: ContextArrowFunctionReturn, Name: name}, true
	case "required_parameter", "optional_parameter":
		fp := x.tree.Nodes[owner].Parent
		if fp < 0 || x.tree.Nodes[fp].Kind != kindFormalParameters {
			return LiteralContext{}, false
		}
		name := x.functionName(x.tree.Nodes[fp].Parent)
		if name == "" {
			return LiteralContext{}, false
		}
		return LiteralContext{Kind: ContextFunctionParameter, Name: name, ParamName: x.paramName(owner)}, true
	case kindDeclarator:
		c := x.tree.ChildOfKind(owner, "identifier")
		if c < 0 {
			return LiteralContext{}, false
		}
		return LiteralContext{Kind: ContextVariableDeclaration, Name: x.tree.Text(c)}, true
	}
	return LiteralContext{}, false
}

// functionName names any function-like node, or returns "".
func (x *extractor) functionName(fn int) string {
	if fn < 0 {
		return ""
	}
	switch x.tree.Nodes[fn].Kind {
	case kindFunctionDecl, kindGeneratorDecl, kindMethod:
		return x.nameOf(fn)
	case kindFunctionExpr, kindFunctionLegacy, kindGeneratorExpr, kindArrow:
		name, _ := x.bindingName(fn)
		return name
	}
	return ""
}

// FunctionName returns the qualified name of the function that encloses
// node i. Inside a class but outside its methods, the class name is
// returned. Returns "" at top level.
func FunctionName(tree *ast.Tree, i int) string {
	x := &extractor{tree: tree}
	for p := i; p >= 0; p = tree.Nodes[p].Parent {
		switch tree.Nodes[p].Kind {
		case kindFunctionDecl, kindGeneratorDecl:
			return x.nameOf(p)
		case kindMethod:
			if owner := x.methodOwner(p); owner != "" {
				return owner + "." + x.nameOf(p)
			}
			return x.nameOf(p)
		case kindFunctionExpr, kindFunctionLegacy, kindGeneratorExpr, kindArrow:
			if name, parent := x.bindingName(p); name != "" {
				if parent != "" {
					return parent + "." + name
				}
				return name
			}
		case "class_declaration", "abstract_class_declaration", "class":
			if name := x.nameOf(p); name != "" {
				return name
			}
		}
	}
	return ""
}
