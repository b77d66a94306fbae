// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package hotswap

import (
	"errors"
	"fmt"
)

// Error kinds. Every *SourceError matches exactly one of them with errors.Is.
var (
	// ErrParse indicates the source could not be decomposed into functions.
	ErrParse = errors.New("parse failure")

	// ErrExecution indicates the runtime rejected or threw while compiling or
	// running code.
	ErrExecution = errors.New("execution failure")
)

// Usage errors.
var (
	// ErrNilRegistry is returned by Submit without a registry.
	ErrNilRegistry = errors.New("registry must not be nil")

	// ErrRuntimeBound is returned when a runtime already serves another registry.
	ErrRuntimeBound = errors.New("runtime is bound to a different registry")

	// ErrNotFunction is returned by Call for a value that cannot be invoked.
	ErrNotFunction = errors.New("value is not a function")
)

// SourceError reports a parse or execution failure together with the
// offending text.
type SourceError struct {
	// Kind is ErrParse or ErrExecution.
	Kind error

	// Label names the session the source belongs to.
	Label string

	// Source is the text that failed: the submitted source for parse
	// failures, the rewritten code for execution failures.
	Source string

	// Err is the underlying parser or runtime error.
	Err error
}

// Error implements error.
func (e *SourceError) Error() string {
	return fmt.Sprintf("%s: %v: %v", e.Label, e.Kind, e.Err)
}

// Unwrap exposes both the kind and the cause to errors.Is and errors.As.
func (e *SourceError) Unwrap() []error {
	return []error{e.Kind, e.Err}
}
