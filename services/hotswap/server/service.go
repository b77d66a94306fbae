// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/AleutianAI/hotswap/services/hotswap"
	"github.com/AleutianAI/hotswap/services/hotswap/diff"
	"github.com/AleutianAI/hotswap/services/hotswap/match"
	"github.com/AleutianAI/hotswap/services/hotswap/registry"
	"github.com/dop251/goja"
)

// Service owns the registry, the shared runtime and every session created
// through the API.
//
// Thread Safety: Safe for concurrent use. Runtime access is funneled
// through the Worker.
type Service struct {
	reg     *registry.Registry
	worker  *Worker
	handles *HandleStore
	events  *EventHub
	opts    []hotswap.Option

	mu       sync.RWMutex
	sessions map[string]*hotswap.Session
}

// NewService creates a service evaluating into a fresh runtime. opts are
// applied to every session before the per-request options.
func NewService(opts ...hotswap.Option) *Service {
	return &Service{
		reg:      registry.New(),
		worker:   NewWorker(goja.New()),
		handles:  NewHandleStore(),
		events:   NewEventHub(),
		opts:     opts,
		sessions: make(map[string]*hotswap.Session),
	}
}

// Close stops the runtime worker and ends every event stream.
func (s *Service) Close() {
	s.worker.Stop()
	s.events.Close()
}

// Subscribe streams the summary of every revision committed to a context
// from now on. The returned function ends the subscription.
func (s *Service) Subscribe(contextID string) (<-chan match.Summary, func(), error) {
	if _, err := s.session(contextID); err != nil {
		return nil, nil, err
	}
	ch, cancel := s.events.Subscribe(contextID)
	return ch, cancel, nil
}

// Submit evaluates a new source.
func (s *Service) Submit(ctx context.Context, req SubmitRequest) (SubmitResponse, error) {
	g, err := diff.ParseGranularity(req.DiffGranularity)
	if err != nil {
		return SubmitResponse{}, err
	}

	out, err := s.worker.Do(ctx, func(rt *goja.Runtime) (any, error) {
		opts := append([]hotswap.Option{}, s.opts...)
		opts = append(opts,
			hotswap.WithRuntime(rt),
			hotswap.WithDiffGranularity(g),
			hotswap.WithName(req.Name),
		)
		sess, err := hotswap.Submit(ctx, s.reg, req.Source, opts...)
		if err != nil {
			return nil, err
		}

		s.mu.Lock()
		s.sessions[sess.ID()] = sess
		s.mu.Unlock()

		resp := SubmitResponse{ContextID: sess.ID(), Revision: sess.Revision()}
		resp.Result, resp.Handle = s.export(sess, sess.Result())
		return resp, nil
	})
	if err != nil {
		return SubmitResponse{}, err
	}
	return out.(SubmitResponse), nil
}

// Update swaps the functions of a context over to a new source.
func (s *Service) Update(ctx context.Context, contextID string, req UpdateRequest) (match.Summary, error) {
	return s.commit(ctx, contextID, func(sess *hotswap.Session) error {
		return sess.Update(ctx, req.Source)
	})
}

// Patch applies a unified diff to the current source of a context.
func (s *Service) Patch(ctx context.Context, contextID string, req PatchRequest) (match.Summary, error) {
	return s.commit(ctx, contextID, func(sess *hotswap.Session) error {
		return sess.UpdatePatch(ctx, req.Patch)
	})
}

func (s *Service) commit(ctx context.Context, contextID string, apply func(*hotswap.Session) error) (match.Summary, error) {
	sess, err := s.session(contextID)
	if err != nil {
		return match.Summary{}, err
	}

	out, err := s.worker.Do(ctx, func(*goja.Runtime) (any, error) {
		if err := apply(sess); err != nil {
			return nil, err
		}
		return sess.LastPlan().Summary(), nil
	})
	if err != nil {
		return match.Summary{}, err
	}

	summary := out.(match.Summary)
	s.events.Publish(summary)
	return summary, nil
}

// Plan reports what an update would do without committing it.
func (s *Service) Plan(ctx context.Context, contextID string, req UpdateRequest) (match.Summary, error) {
	sess, err := s.session(contextID)
	if err != nil {
		return match.Summary{}, err
	}

	plan, err := sess.Plan(ctx, req.Source)
	if err != nil {
		return match.Summary{}, err
	}
	return plan.Summary(), nil
}

// Blocks lists every block of a context.
func (s *Service) Blocks(contextID string) (BlocksResponse, error) {
	sess, err := s.session(contextID)
	if err != nil {
		return BlocksResponse{}, err
	}
	return BlocksResponse{
		ContextID: sess.ID(),
		Revision:  sess.Revision(),
		Blocks:    sess.Blocks(),
	}, nil
}

// Call invokes the function pinned under a handle.
func (s *Service) Call(ctx context.Context, handleID string, req CallRequest) (CallResponse, error) {
	sess, fn, err := s.handles.Get(handleID)
	if err != nil {
		return CallResponse{}, fmt.Errorf("%w: %s", err, handleID)
	}

	out, err := s.worker.Do(ctx, func(*goja.Runtime) (any, error) {
		v, err := sess.Call(fn, req.Args...)
		if err != nil {
			return nil, err
		}
		var resp CallResponse
		resp.Result, resp.Handle = s.export(sess, v)
		return resp, nil
	})
	if err != nil {
		return CallResponse{}, err
	}
	return out.(CallResponse), nil
}

// Health reports occupancy counters.
func (s *Service) Health() HealthResponse {
	stats := s.reg.Stats()
	return HealthResponse{
		Status:   "healthy",
		Version:  ServiceVersion,
		Contexts: stats.Contexts,
		Blocks:   stats.Blocks,
		Handles:  s.handles.Len(),
	}
}

func (s *Service) session(contextID string) (*hotswap.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[contextID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", registry.ErrUnknownContext, contextID)
	}
	return sess, nil
}

// export converts a runtime value for the wire. Functions are pinned and
// returned as a handle; other values are encoded as JSON, falling back to
// their string form when they cannot be encoded. Must run on the worker.
func (s *Service) export(sess *hotswap.Session, v goja.Value) (json.RawMessage, string) {
	if v == nil || goja.IsUndefined(v) {
		return nil, ""
	}
	if _, ok := goja.AssertFunction(v); ok {
		return nil, s.handles.Put(sess, v)
	}

	data, err := json.Marshal(v.Export())
	if err != nil {
		slog.Debug("result not encodable as JSON",
			slog.String("context_id", sess.ID()),
			slog.String("error", err.Error()))
		data, _ = json.Marshal(v.String())
	}
	return data, ""
}
