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
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/AleutianAI/hotswap/services/hotswap/ast"
	"github.com/AleutianAI/hotswap/services/hotswap/diff"
	"github.com/AleutianAI/hotswap/services/hotswap/match"
	"github.com/AleutianAI/hotswap/services/hotswap/registry"
	"github.com/AleutianAI/hotswap/services/hotswap/telemetry"
	"github.com/dop251/goja"
	"go.opentelemetry.io/otel/attribute"
)

// Session is one submitted source and its evaluation context.
//
// Thread Safety: All methods are safe for concurrent use. Every access to
// the runtime happens under the session lock, so a runtime shared through
// WithRuntime must not be used elsewhere while a call is in progress.
type Session struct {
	mu sync.Mutex

	id      string
	name    string
	reg     *registry.Registry
	rt      *goja.Runtime
	parser  *ast.Parser
	matcher *match.Matcher
	eval    Evaluator
	logger  *slog.Logger

	source   string
	revision int64
	result   goja.Value
	last     *match.Plan
}

// Submit evaluates source as a new context of reg.
//
// Description:
//
//	Every function of source is registered as a block at revision 1 and
//	replaced by a trampoline. The rewritten source is then run by the
//	evaluator and its completion value kept as the session result.
//	Functions created by that run stay connected to the registry, so later
//	calls to Update change their behavior in place.
//
// Inputs:
//
//	ctx - Context for parsing and tracing.
//	reg - The registry holding the blocks. Must not be nil.
//	source - JavaScript source text.
//	opts - Session options.
//
// Outputs:
//
//	*Session - The session. Nil on error.
//	error - A *SourceError for parse and execution failures.
//
// Limitations:
//
//	When the evaluation itself fails the context remains registered with
//	its blocks, since functions defined before the failing statement may
//	already be reachable from the runtime.
func Submit(ctx context.Context, reg *registry.Registry, source string, opts ...Option) (_ *Session, err error) {
	if reg == nil {
		return nil, ErrNilRegistry
	}

	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	s := &Session{
		name:   o.name,
		reg:    reg,
		rt:     o.runtime,
		parser: ast.NewParser(ast.WithMaxFileSize(o.maxSourceSize)),
		eval:   o.evaluator,
		logger: o.logger,
	}
	if s.rt == nil {
		s.rt = goja.New()
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	s.matcher = match.New(diff.New(o.granularity, diff.WithTimeout(o.diffTimeout)), reg.NextBlockID)

	ctx, span := startSessionSpan(ctx, "Submit", "", s.name)
	defer span.End()
	defer func() {
		recordSubmit(ctx, err == nil)
		if err != nil {
			telemetry.RecordError(span, err)
		}
	}()

	if err := bindHost(s.rt, reg); err != nil {
		return nil, err
	}

	tree, err := s.parse(ctx, source)
	if err != nil {
		return nil, err
	}

	s.id = reg.NewContext()
	span.SetAttributes(attribute.String("context_id", s.id))

	plan, err := s.matcher.Plan(match.Input{
		ContextID: s.id,
		Revision:  1,
		Tree:      tree,
	})
	if err != nil {
		return nil, err
	}
	if err := s.validate(plan); err != nil {
		return nil, err
	}
	if err := reg.Apply(s.id, plan.ChangeSet()); err != nil {
		return nil, fmt.Errorf("commit context %s: %w", s.id, err)
	}
	recordPlan(ctx, plan)

	s.source = source
	s.revision = 1
	s.last = plan

	result, err := s.eval.Evaluate(s.rt, s.name, plan.Source)
	if err != nil {
		return nil, s.executionFailure(plan.Source, err)
	}
	s.result = result

	s.logger.Debug("source submitted",
		slog.String("label", s.name),
		slog.String("context_id", s.id),
		slog.Int("blocks", len(plan.Entries)))

	return s, nil
}

// Update swaps the session's functions over to newSource.
//
// Description:
//
//	Functions of newSource whose text range is the exact image of a live
//	block's range under the edit script keep that block's identity and
//	get its code replaced. All other functions become new blocks; live
//	blocks without a counterpart are retired. Top-level statements of
//	newSource are not run. Functions already handed out by earlier
//	evaluations pick up the new code on their next call.
//
//	Nothing is committed unless every block code compiles, so a failed
//	update leaves the registry, the revision and the stored source as
//	they were.
//
// Outputs:
//
//	error - A *SourceError for parse and compile failures, or ctx's error.
func (s *Session) Update(ctx context.Context, newSource string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.update(ctx, newSource)
}

// UpdatePatch applies a unified diff to the current source and updates the
// session with the result.
//
// Outputs:
//
//	error - diff.ErrInvalidPatch or diff.ErrPatchMismatch when the patch
//	        cannot be applied, otherwise as Update.
func (s *Session) UpdatePatch(ctx context.Context, patch string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	patched, err := diff.ApplyPatch(s.source, patch)
	if err != nil {
		return fmt.Errorf("patch %s: %w", s.name, err)
	}
	return s.update(ctx, patched)
}

// Plan reports what Update(ctx, newSource) would do without committing it.
//
// Block IDs assigned to new functions in the plan are consumed; a later
// Update assigns fresh ones.
func (s *Session) Plan(ctx context.Context, newSource string) (*match.Plan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ctx, span := startSessionSpan(ctx, "Plan", s.id, s.name)
	defer span.End()

	tree, err := s.parse(ctx, newSource)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	return s.plan(tree)
}

func (s *Session) update(ctx context.Context, newSource string) (err error) {
	start := time.Now()
	ctx, span := startSessionSpan(ctx, "Update", s.id, s.name)
	defer span.End()
	defer func() {
		recordUpdate(ctx, time.Since(start), err == nil)
		if err != nil {
			telemetry.RecordError(span, err)
		}
	}()

	tree, err := s.parse(ctx, newSource)
	if err != nil {
		return err
	}

	plan, err := s.plan(tree)
	if err != nil {
		return err
	}
	if err := s.validate(plan); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("update canceled before commit: %w", err)
	}
	if err := s.reg.Apply(s.id, plan.ChangeSet()); err != nil {
		return fmt.Errorf("commit revision %d: %w", plan.Revision, err)
	}
	recordPlan(ctx, plan)

	s.source = newSource
	s.revision = plan.Revision
	s.last = plan

	span.SetAttributes(
		attribute.Int64("revision", plan.Revision),
		attribute.Int("matched", plan.Matched()),
		attribute.Int("added", plan.Added()),
		attribute.Int("retired", len(plan.Retired)),
	)
	s.logger.Debug("source updated",
		slog.String("label", s.name),
		slog.String("context_id", s.id),
		slog.Int64("revision", plan.Revision),
		slog.Int("matched", plan.Matched()),
		slog.Int("added", plan.Added()),
		slog.Int("retired", len(plan.Retired)))

	return nil
}

func (s *Session) plan(tree *ast.Tree) (*match.Plan, error) {
	return s.matcher.Plan(match.Input{
		ContextID:  s.id,
		Revision:   s.revision + 1,
		PrevSource: s.source,
		Live:       s.reg.Live(s.id),
		Tree:       tree,
	})
}

// parse parses source, logging and wrapping failures as ErrParse.
func (s *Session) parse(ctx context.Context, source string) (*ast.Tree, error) {
	tree, err := s.parser.Parse(ctx, s.name, []byte(source))
	if err == nil {
		return tree, nil
	}
	if ctx.Err() != nil {
		return nil, err
	}

	s.logger.Error("error parsing source",
		slog.String("label", s.name),
		slog.String("source", source),
		slog.String("error", err.Error()))
	return nil, &SourceError{Kind: ErrParse, Label: s.name, Source: source, Err: err}
}

// validate compiles every block code of plan without running it.
func (s *Session) validate(plan *match.Plan) error {
	for _, e := range plan.Entries {
		if _, err := goja.Compile(s.name, e.Code, false); err != nil {
			return s.executionFailure(e.Code, err)
		}
	}
	return nil
}

func (s *Session) executionFailure(code string, err error) error {
	s.logger.Error("error evaluating code",
		slog.String("label", s.name),
		slog.String("code", code),
		slog.String("error", err.Error()))
	return &SourceError{Kind: ErrExecution, Label: s.name, Source: code, Err: err}
}

// Call invokes fn with args converted by the session runtime.
//
// A thrown exception is returned as a *SourceError matching ErrExecution.
func (s *Session) Call(fn goja.Value, args ...any) (goja.Value, error) {
	callable, ok := goja.AssertFunction(fn)
	if !ok {
		return nil, ErrNotFunction
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	values := make([]goja.Value, len(args))
	for i, a := range args {
		values[i] = s.rt.ToValue(a)
	}

	v, err := callable(goja.Undefined(), values...)
	if err != nil {
		return nil, &SourceError{Kind: ErrExecution, Label: s.name, Err: err}
	}
	return v, nil
}

// Run evaluates code in the session runtime without rewriting it.
//
// It is meant for driving the functions of the session, for example
// calling a global defined by the submitted source.
func (s *Session) Run(code string) (goja.Value, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, err := s.rt.RunString(code)
	if err != nil {
		return nil, &SourceError{Kind: ErrExecution, Label: s.name, Source: code, Err: err}
	}
	return v, nil
}

// Get returns a global of the session runtime, or nil if it is not set.
func (s *Session) Get(name string) goja.Value {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.rt.Get(name)
}

// Result returns the completion value of the submitted source.
func (s *Session) Result() goja.Value {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.result
}

// LastPlan returns the plan of the most recent commit.
func (s *Session) LastPlan() *match.Plan {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.last
}

// Blocks returns a snapshot of every block of the session, retired ones
// included.
func (s *Session) Blocks() []registry.Block {
	return s.reg.Blocks(s.id)
}

// ID returns the context ID.
func (s *Session) ID() string {
	return s.id
}

// Name returns the session label.
func (s *Session) Name() string {
	return s.name
}

// Revision returns the revision of the last commit.
func (s *Session) Revision() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.revision
}

// Source returns the source of the last commit.
func (s *Session) Source() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.source
}

// Runtime returns the runtime the session evaluates into.
func (s *Session) Runtime() *goja.Runtime {
	return s.rt
}
