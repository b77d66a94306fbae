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
	"context"
	"fmt"
	"log/slog"
	"time"
	"unicode/utf8"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/javascript"
)

const (
	// DefaultMaxFileSize is the default upper bound on source size (10 MiB).
	DefaultMaxFileSize int64 = 10 * 1024 * 1024

	// WarnFileSize is the size above which a warning is logged before parsing.
	WarnFileSize = 1024 * 1024
)

// ParserOption configures a Parser instance.
type ParserOption func(*Parser)

// WithMaxFileSize sets the maximum source size the parser will accept.
//
// Parameters:
//   - bytes: Maximum size in bytes. Non-positive values are ignored.
func WithMaxFileSize(bytes int64) ParserOption {
	return func(p *Parser) {
		if bytes > 0 {
			p.maxFileSize = bytes
		}
	}
}

// Parser discovers function nodes in JavaScript source.
//
// Description:
//
//	Parser uses tree-sitter to build a syntax tree and extracts every
//	rewritable function node (declarations and expressions, including
//	generator and async forms) with its byte range and the byte range of
//	its own identifier. Arrow functions and method shorthand are skipped,
//	but functions nested inside them are still discovered.
//
//	Unlike a symbol extractor, Parser is not error tolerant: any syntax
//	error makes Parse fail, because a partial function forest cannot be
//	rewritten safely.
//
// Thread Safety:
//
//	Parser instances are safe for concurrent use. Each Parse call creates
//	its own tree-sitter parser internally.
type Parser struct {
	maxFileSize int64
}

// NewParser creates a new Parser with the given options.
func NewParser(opts ...ParserOption) *Parser {
	p := &Parser{maxFileSize: DefaultMaxFileSize}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Parse builds the function forest of the given source.
//
// Description:
//
//	Parses content with the tree-sitter JavaScript grammar and returns the
//	function nodes as a forest mirroring their nesting.
//
// Inputs:
//   - ctx: Context for cancellation. Checked before and after parsing.
//     Tree-sitter parsing itself cannot be interrupted mid-parse.
//   - label: Identifies the source in errors (file name or context ID).
//   - content: Raw JavaScript source bytes. Must be valid UTF-8.
//
// Outputs:
//   - *Tree: The function forest. Never nil on success.
//   - error: Non-nil on failure:
//   - ErrFileTooLarge: content exceeds the configured limit
//   - ErrInvalidContent: content is not valid UTF-8
//   - *ParseError wrapping ErrSyntax: the source has a syntax error
//   - context errors: ctx was canceled
//
// Thread Safety:
//
//	This method is safe for concurrent use.
func (p *Parser) Parse(ctx context.Context, label string, content []byte) (_ *Tree, err error) {
	start := time.Now()
	ctx, span := startParseSpan(ctx, label, len(content))
	defer span.End()

	count := 0
	defer func() {
		recordParseMetrics(ctx, time.Since(start), count, err == nil)
	}()

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("parse canceled before start: %w", err)
	}

	if int64(len(content)) > p.maxFileSize {
		return nil, &ParseError{
			Label:   label,
			Message: fmt.Sprintf("size %d exceeds limit %d", len(content), p.maxFileSize),
			Cause:   ErrFileTooLarge,
		}
	}

	if len(content) > WarnFileSize {
		slog.Warn("parsing large source",
			slog.String("label", label),
			slog.Int("size_bytes", len(content)))
	}

	if !utf8.Valid(content) {
		return nil, &ParseError{
			Label:   label,
			Message: "content is not valid UTF-8",
			Cause:   ErrInvalidContent,
		}
	}

	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(javascript.GetLanguage())

	tree, err := parser.ParseCtx(ctx, nil, content)
	if err != nil {
		return nil, fmt.Errorf("tree-sitter parse failed: %w", err)
	}
	defer tree.Close()

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("parse canceled after tree-sitter: %w", err)
	}

	root := tree.RootNode()
	if root == nil {
		return nil, &ParseError{Label: label, Message: "tree-sitter returned nil root node", Cause: ErrSyntax}
	}

	if root.HasError() {
		return nil, syntaxError(label, root, content)
	}

	result := &Tree{Source: string(content)}
	result.Roots = p.collect(root, content, &result.Count)
	count = result.Count

	return result, nil
}

// collect returns the outermost function nodes below node, each carrying its
// own nested functions.
func (p *Parser) collect(node *sitter.Node, content []byte, count *int) []*FunctionNode {
	var found []*FunctionNode
	for i := 0; i < int(node.ChildCount()); i++ {
		child := node.Child(i)
		if child == nil || !child.IsNamed() {
			continue
		}

		kind, ok := functionKind(child.Type())
		if !ok {
			found = append(found, p.collect(child, content, count)...)
			continue
		}

		fn := &FunctionNode{
			Kind: kind,
			Span: Range{Start: int(child.StartByte()), End: int(child.EndByte())},
		}
		if name := child.ChildByFieldName(jsFieldName); name != nil {
			fn.Name = string(content[name.StartByte():name.EndByte()])
			fn.NameSpan = Range{Start: int(name.StartByte()), End: int(name.EndByte())}
		} else if kind == KindExpression {
			fn.InferredName = inferredName(node, child, content)
		}
		fn.Children = p.collect(child, content, count)
		*count++

		found = append(found, fn)
	}
	return found
}

// syntaxError builds a ParseError pointing at the first error or missing node.
func syntaxError(label string, root *sitter.Node, content []byte) *ParseError {
	errNode := findFirstError(root)
	if errNode == nil {
		return &ParseError{Label: label, Message: "source contains syntax errors", Cause: ErrSyntax}
	}

	message := "unexpected input"
	if errNode.IsMissing() {
		message = fmt.Sprintf("missing %s", errNode.Type())
	} else if end := int(errNode.EndByte()); end <= len(content) {
		snippet := string(content[errNode.StartByte():end])
		if len(snippet) > 40 {
			snippet = snippet[:40] + "..."
		}
		message = fmt.Sprintf("unexpected %q", snippet)
	}

	return &ParseError{
		Label:   label,
		Line:    int(errNode.StartPoint().Row) + 1,
		Column:  int(errNode.StartPoint().Column),
		Offset:  int(errNode.StartByte()),
		Message: message,
		Cause:   ErrSyntax,
	}
}

// findFirstError returns the first ERROR or MISSING node in document order.
func findFirstError(node *sitter.Node) *sitter.Node {
	if node == nil {
		return nil
	}
	if node.Type() == jsNodeError || node.IsMissing() {
		return node
	}
	if !node.HasError() {
		return nil
	}
	for i := 0; i < int(node.ChildCount()); i++ {
		if found := findFirstError(node.Child(i)); found != nil {
			return found
		}
	}
	return nil
}
