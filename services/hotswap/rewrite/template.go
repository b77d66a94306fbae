// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package rewrite

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/AleutianAI/hotswap/services/hotswap/ast"
)

// HostObject is the global through which trampolines reach the registry.
//
// It must expose Revision(contextID, blockID) returning the block's current
// revision, and Code(contextID, blockID) returning the block's current code.
const HostObject = "__hotswap"

// ErrUnknownKind is returned for a node kind with no trampoline template.
var ErrUnknownKind = errors.New("no trampoline template for node kind")

// Target describes the function node a trampoline stands in for.
type Target struct {
	// Kind is the syntactic form of the node.
	Kind ast.Kind

	// Name is the node's own identifier, empty when anonymous.
	Name string

	// InferredName is set on an anonymous expression trampoline as its
	// `name` property.
	InferredName string

	// Lines is the number of newlines in the node text.
	Lines int

	ContextID string
	BlockID   string
}

// Trampoline returns the replacement text for a function node.
//
// Description:
//
//	The generated function reads the block revision through HostObject,
//	compares it with the revision cached on its own cache holder, recompiles
//	the block code with a direct eval (so the unit closes over the
//	trampoline's lexical scope) when the registry is newer, and forwards the
//	receiver and all arguments to the cached unit.
//
//	The cache holder is a function declared next to the trampoline. Both are
//	instantiated together, so every instance of the trampoline (one per run
//	of the enclosing scope or block) has its own cache.
//
//	A declaration stays a hoisted declaration bound to the same name. An
//	expression stays an expression; a named expression keeps its name, which
//	binds the trampoline itself for recursive calls.
//
//	The text carries as many newlines as the node it replaces, so the
//	surrounding source keeps its line numbers.
//
// Outputs:
//
//	string - The trampoline source.
//	error  - ErrUnknownKind for a kind without a template.
func Trampoline(t Target) (string, error) {
	holder := "__hs_c_" + t.BlockID
	body := dispatchBody(t.ContextID, t.BlockID, holder, t.Lines)

	switch t.Kind {
	case ast.KindDeclaration:
		return declarationTemplate(t.Name, holder, body), nil
	case ast.KindExpression:
		return expressionTemplate(t.Name, t.InferredName, holder, body), nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnknownKind, t.Kind)
	}
}

func dispatchBody(contextID, blockID, holder string, lines int) string {
	args := strconv.Quote(contextID) + ", " + strconv.Quote(blockID)

	var b strings.Builder
	b.WriteString("{ var __hs_r = ")
	b.WriteString(HostObject + ".Revision(" + args + "); ")
	b.WriteString("if (__hs_r > (" + holder + ".v || 0)) { ")
	b.WriteString(holder + ".u = eval(" + HostObject + ".Code(" + args + ")); ")
	b.WriteString(holder + ".v = __hs_r; } ")
	b.WriteString("return " + holder + ".u.apply(this, arguments);")
	b.WriteString(strings.Repeat("\n", lines))
	b.WriteString(" }")
	return b.String()
}

func holderDecl(holder string) string {
	return "function " + holder + "() {}"
}

// declarationTemplate keeps the hoisted binding. The holder is a sibling
// declaration, hoisted and instantiated with the trampoline.
func declarationTemplate(name, holder, body string) string {
	return holderDecl(holder) + "function " + name + "() " + body
}

// expressionTemplate wraps the trampoline in an immediately invoked scope
// holding the cache holder, so each evaluation of the expression yields a
// new instance with its own cache.
func expressionTemplate(name, inferred, holder, body string) string {
	fn := "function () " + body
	switch {
	case name != "":
		fn = "function " + name + "() " + body
	case inferred != "":
		fn = "Object.defineProperty(" + fn + ", \"name\", { value: " + strconv.Quote(inferred) + " })"
	}
	return "((function () { " + holderDecl(holder) + " return " + fn + "; })())"
}
