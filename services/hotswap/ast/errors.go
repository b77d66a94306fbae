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
	"errors"
	"fmt"
)

// Sentinel errors for parse failure conditions.
//
// These errors can be checked using errors.Is() to determine the
// category of failure without inspecting error messages.
var (
	// ErrSyntax indicates that the source contains at least one syntax error.
	// The concrete error is a *ParseError carrying the first error location.
	ErrSyntax = errors.New("syntax error")

	// ErrInvalidContent indicates that the provided content cannot be parsed
	// at all (for example it is not valid UTF-8).
	ErrInvalidContent = errors.New("invalid content")

	// ErrFileTooLarge indicates that the content exceeds the parser's size limit.
	ErrFileTooLarge = errors.New("source too large")
)

// ParseError provides detailed information about a parse failure.
//
// ParseError wraps an underlying error with the location of the first
// offending node. It can be unwrapped to access the underlying cause.
//
// Example:
//
//	tree, err := parser.Parse(ctx, []byte(src))
//	if err != nil {
//	    var parseErr *ParseError
//	    if errors.As(err, &parseErr) {
//	        fmt.Printf("line %d col %d: %s\n", parseErr.Line, parseErr.Column, parseErr.Message)
//	    }
//	}
type ParseError struct {
	// Label identifies the source being parsed (a file name or a context ID).
	Label string

	// Line is the 1-indexed line number where the error occurred.
	// May be 0 if the error is not associated with a specific line.
	Line int

	// Column is the 0-indexed column where the error occurred.
	Column int

	// Offset is the byte offset of the offending node.
	Offset int

	// Message describes the error in human-readable form.
	Message string

	// Cause is the underlying error that triggered this parse error.
	Cause error
}

// Error returns a formatted error message including the location.
//
// Format depends on available location information:
//   - With line:    "label:10:5: unexpected token"
//   - Without line: "label: unexpected token"
func (e *ParseError) Error() string {
	label := e.Label
	if label == "" {
		label = "<source>"
	}
	if e.Line > 0 {
		return fmt.Sprintf("%s:%d:%d: %s", label, e.Line, e.Column, e.Message)
	}
	return fmt.Sprintf("%s: %s", label, e.Message)
}

// Unwrap returns the underlying cause error.
func (e *ParseError) Unwrap() error {
	return e.Cause
}

// IsParseError checks if an error is or wraps a ParseError.
func IsParseError(err error) bool {
	var parseErr *ParseError
	return errors.As(err, &parseErr)
}
