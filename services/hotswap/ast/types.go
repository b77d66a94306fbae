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

import "fmt"

// Kind distinguishes the two syntactic forms a rewritable function can take.
//
// The two cases need different trampoline templates: a declaration binds its
// name in the enclosing scope (hoisted), an expression produces a value at
// the point of evaluation.
type Kind int

const (
	// KindDeclaration is a function declaration statement: `function f() {}`.
	KindDeclaration Kind = iota + 1

	// KindExpression is a function expression, named or anonymous:
	// `(function () {})`, `var f = function g() {}`.
	KindExpression
)

// String returns the lowercase name of the kind.
func (k Kind) String() string {
	switch k {
	case KindDeclaration:
		return "declaration"
	case KindExpression:
		return "expression"
	default:
		return "unknown"
	}
}

// Range is a half-open byte range [Start, End) in a source text.
type Range struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Key returns the canonical string form of the range, used as a lookup key
// when aligning ranges across revisions.
func (r Range) Key() string {
	return fmt.Sprintf("%d:%d", r.Start, r.End)
}

// Len returns the number of bytes covered by the range.
func (r Range) Len() int {
	return r.End - r.Start
}

// Contains reports whether other lies entirely within r.
func (r Range) Contains(other Range) bool {
	return other.Start >= r.Start && other.End <= r.End
}

// FunctionNode is one function discovered in a source text.
//
// Offsets are byte offsets into the source that was parsed. Children holds
// the function nodes nested directly inside this one (at any syntactic depth,
// but with no other function node in between), in source order.
type FunctionNode struct {
	// Kind is the syntactic form of the function.
	Kind Kind

	// Name is the function's own identifier, empty for anonymous expressions.
	Name string

	// Span is the byte range of the whole function node.
	Span Range

	// NameSpan is the byte range of the identifier. Zero when Name is empty.
	NameSpan Range

	// InferredName is the name an anonymous expression takes from the
	// variable, assignment target or property it is bound to.
	InferredName string

	// Children are the directly nested function nodes.
	Children []*FunctionNode
}

// HasName reports whether the function carries its own identifier.
func (n *FunctionNode) HasName() bool {
	return n.Name != ""
}

// Tree is the function forest of one source text.
type Tree struct {
	// Source is the text the tree was built from.
	Source string

	// Roots are the outermost function nodes in source order.
	Roots []*FunctionNode

	// Count is the total number of function nodes in the forest.
	Count int
}

// Walk visits every function node in post-order: children before their
// parent, siblings in source order.
func (t *Tree) Walk(fn func(*FunctionNode)) {
	for _, root := range t.Roots {
		walkPostOrder(root, fn)
	}
}

func walkPostOrder(n *FunctionNode, fn func(*FunctionNode)) {
	for _, child := range n.Children {
		walkPostOrder(child, fn)
	}
	fn(n)
}

// Nodes returns every function node in post-order.
func (t *Tree) Nodes() []*FunctionNode {
	nodes := make([]*FunctionNode, 0, t.Count)
	t.Walk(func(n *FunctionNode) {
		nodes = append(nodes, n)
	})
	return nodes
}
