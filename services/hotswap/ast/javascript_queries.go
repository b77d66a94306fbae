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
	sitter "github.com/smacker/go-tree-sitter"
)

// JavaScript Tree-sitter Node Types
//
// This file documents the tree-sitter node types used by Parser for function
// discovery. The parser uses direct node traversal rather than tree-sitter's
// query language.
//
// Reference: https://github.com/tree-sitter/tree-sitter-javascript

// Node type constants for JavaScript AST traversal.
//
// Arrow functions and method definitions are not listed: arrows keep
// a lexical `this` and method shorthand cannot be replaced by an expression.
// The walker descends into them like any other node, so function
// expressions nested inside are still found.
const (
	// Function declarations (statements that bind a name in the enclosing scope)
	jsNodeFunctionDeclaration   = "function_declaration"
	jsNodeGeneratorFunctionDecl = "generator_function_declaration"

	// Function expressions. Older grammar releases call the plain expression
	// "function", newer ones "function_expression"; both are accepted. The
	// `function` keyword token shares the older name, so only named nodes
	// are considered.
	jsNodeFunction           = "function"
	jsNodeFunctionExpression = "function_expression"
	jsNodeGeneratorFunction  = "generator_function"

	// Parents from which an anonymous expression takes its name.
	jsNodeVariableDeclarator = "variable_declarator"
	jsNodeAssignment         = "assignment_expression"
	jsNodePair               = "pair"

	// Binding targets usable as an inferred name.
	jsNodeIdentifier         = "identifier"
	jsNodePropertyIdentifier = "property_identifier"

	// Error nodes
	jsNodeError = "ERROR"
)

// Field names used to reach child nodes.
const (
	jsFieldName  = "name"
	jsFieldLeft  = "left"
	jsFieldKey   = "key"
	jsFieldValue = "value"
	jsFieldRight = "right"
)

// functionKind maps a tree-sitter node type to the kind of function it
// represents. The boolean is false for nodes that are not rewritable functions.
func functionKind(nodeType string) (Kind, bool) {
	switch nodeType {
	case jsNodeFunctionDeclaration, jsNodeGeneratorFunctionDecl:
		return KindDeclaration, true
	case jsNodeFunction, jsNodeFunctionExpression, jsNodeGeneratorFunction:
		return KindExpression, true
	default:
		return 0, false
	}
}

// inferredName returns the name an anonymous function expression receives
// from its position: `var f = function () {}`, `f = function () {}` and
// `{f: function () {}}` all name it "f". Empty when nothing is inferred.
func inferredName(parent, fn *sitter.Node, content []byte) string {
	var target *sitter.Node
	switch parent.Type() {
	case jsNodeVariableDeclarator:
		if value := parent.ChildByFieldName(jsFieldValue); value != nil && value.Equal(fn) {
			target = parent.ChildByFieldName(jsFieldName)
		}
	case jsNodeAssignment:
		if right := parent.ChildByFieldName(jsFieldRight); right != nil && right.Equal(fn) {
			target = parent.ChildByFieldName(jsFieldLeft)
		}
	case jsNodePair:
		if value := parent.ChildByFieldName(jsFieldValue); value != nil && value.Equal(fn) {
			target = parent.ChildByFieldName(jsFieldKey)
		}
	}
	if target == nil {
		return ""
	}
	switch target.Type() {
	case jsNodeIdentifier, jsNodePropertyIdentifier:
		return string(content[target.StartByte():target.EndByte()])
	default:
		return ""
	}
}
