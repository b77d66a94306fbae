// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package rewrite turns every function node of a source text into a
// trampoline and reconstructs the code each trampoline compiles.
package rewrite

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/AleutianAI/hotswap/services/hotswap/ast"
)

// ErrEmptyBlockID is returned when the assigner yields no block ID.
var ErrEmptyBlockID = errors.New("empty block id")

// Assigner returns the block ID a node is bound to.
//
// It is called once per node, in post-order.
type Assigner func(node *ast.FunctionNode) string

// Unit is one rewritten function node.
type Unit struct {
	// Node is the function node in the parsed source.
	Node *ast.FunctionNode

	// BlockID is the block the node is bound to.
	BlockID string

	// Code is the block code: the node text without its own name, child
	// functions already replaced by their trampolines, in parentheses.
	Code string

	// Trampoline is the text that replaces the node in its parent.
	Trampoline string
}

// Result is a rewritten source text.
type Result struct {
	// Source is the complete text with every root function replaced by its
	// trampoline.
	Source string

	// Units lists every function node in post-order.
	Units []Unit
}

// edit replaces a byte range of a node's text.
type edit struct {
	span ast.Range
	text string
}

// Rewrite rewrites every function node of tree.
//
// Description:
//
//	Nodes are processed bottom-up: a node's code is built after all of its
//	children were replaced, so compiling a parent's code yields trampolines
//	for its children rather than their original text. The node's own name
//	is removed by its byte span, which leaves identically named inner
//	references untouched.
//
// Inputs:
//
//	tree      - The parsed source.
//	contextID - Context embedded in every trampoline.
//	assign    - Chooses the block ID of each node.
//
// Outputs:
//
//	*Result - The rewritten source and one Unit per node.
//	error   - Non-nil if a node cannot be rewritten.
//
// Thread Safety: Safe for concurrent use if assign is.
func Rewrite(tree *ast.Tree, contextID string, assign Assigner) (*Result, error) {
	if tree == nil {
		return nil, errors.New("tree must not be nil")
	}

	w := &writer{
		source:    tree.Source,
		contextID: contextID,
		assign:    assign,
		units:     make([]Unit, 0, tree.Count),
	}

	edits := make([]edit, 0, len(tree.Roots))
	for _, root := range tree.Roots {
		trampoline, err := w.rewrite(root)
		if err != nil {
			return nil, err
		}
		edits = append(edits, edit{span: root.Span, text: trampoline})
	}

	return &Result{
		Source: splice(tree.Source, ast.Range{Start: 0, End: len(tree.Source)}, edits),
		Units:  w.units,
	}, nil
}

type writer struct {
	source    string
	contextID string
	assign    Assigner
	units     []Unit
}

// rewrite emits the units of a node's subtree and returns the node's trampoline.
func (w *writer) rewrite(node *ast.FunctionNode) (string, error) {
	edits := make([]edit, 0, len(node.Children)+1)
	if node.HasName() {
		edits = append(edits, edit{span: node.NameSpan})
	}
	for _, child := range node.Children {
		trampoline, err := w.rewrite(child)
		if err != nil {
			return "", err
		}
		edits = append(edits, edit{span: child.Span, text: trampoline})
	}

	blockID := w.assign(node)
	if blockID == "" {
		return "", fmt.Errorf("%w: node at %s", ErrEmptyBlockID, node.Span.Key())
	}

	trampoline, err := Trampoline(Target{
		Kind:         node.Kind,
		Name:         node.Name,
		InferredName: node.InferredName,
		Lines:        strings.Count(w.source[node.Span.Start:node.Span.End], "\n"),
		ContextID:    w.contextID,
		BlockID:      blockID,
	})
	if err != nil {
		return "", err
	}

	w.units = append(w.units, Unit{
		Node:       node,
		BlockID:    blockID,
		Code:       "(" + splice(w.source, node.Span, edits) + ")",
		Trampoline: trampoline,
	})
	return trampoline, nil
}

// splice returns source[within] with the given non-overlapping edits applied.
func splice(source string, within ast.Range, edits []edit) string {
	sort.Slice(edits, func(i, j int) bool {
		return edits[i].span.Start < edits[j].span.Start
	})

	var b strings.Builder
	b.Grow(within.Len())

	pos := within.Start
	for _, e := range edits {
		b.WriteString(source[pos:e.span.Start])
		b.WriteString(e.text)
		pos = e.span.End
	}
	b.WriteString(source[pos:within.End])
	return b.String()
}
