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
	"log/slog"
	"time"

	"github.com/AleutianAI/hotswap/services/hotswap/ast"
	"github.com/AleutianAI/hotswap/services/hotswap/diff"
	"github.com/dop251/goja"
)

// DefaultName labels sessions created without WithName.
const DefaultName = "hotswap"

// Option configures a Session.
type Option func(*options)

type options struct {
	evaluator     Evaluator
	granularity   diff.Granularity
	diffTimeout   time.Duration
	runtime       *goja.Runtime
	logger        *slog.Logger
	maxSourceSize int64
	name          string
}

func defaultOptions() options {
	return options{
		evaluator:     RuntimeEvaluator,
		granularity:   diff.Character,
		maxSourceSize: ast.DefaultMaxFileSize,
		name:          DefaultName,
	}
}

// WithEvaluator replaces the compile-and-execute service used for the
// top-level source. Trampolines always compile block code with a direct
// eval in their own scope.
func WithEvaluator(e Evaluator) Option {
	return func(o *options) {
		if e != nil {
			o.evaluator = e
		}
	}
}

// WithDiffGranularity selects character (default) or line diffs for
// matching functions across updates.
func WithDiffGranularity(g diff.Granularity) Option {
	return func(o *options) {
		o.granularity = g
	}
}

// WithDiffTimeout bounds edit-script computation. Zero means no deadline.
func WithDiffTimeout(d time.Duration) Option {
	return func(o *options) {
		o.diffTimeout = d
	}
}

// WithRuntime evaluates into an existing runtime instead of a new one.
//
// The runtime must not be used concurrently with the session.
func WithRuntime(rt *goja.Runtime) Option {
	return func(o *options) {
		o.runtime = rt
	}
}

// WithLogger sets the logger receiving parse and execution diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithMaxSourceSize limits the size of submitted sources in bytes.
func WithMaxSourceSize(n int64) Option {
	return func(o *options) {
		if n > 0 {
			o.maxSourceSize = n
		}
	}
}

// WithName labels the session in diagnostics, script positions and spans.
func WithName(name string) Option {
	return func(o *options) {
		if name != "" {
			o.name = name
		}
	}
}
