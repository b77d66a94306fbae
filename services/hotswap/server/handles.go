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
	"errors"
	"sync"

	"github.com/AleutianAI/hotswap/services/hotswap"
	"github.com/AleutianAI/hotswap/services/hotswap/registry"
	"github.com/dop251/goja"
)

// ErrUnknownHandle is returned for a handle that was never issued.
var ErrUnknownHandle = errors.New("unknown handle")

// handle pins a function value so clients can call it later.
type handle struct {
	session *hotswap.Session
	fn      goja.Value
}

// HandleStore maps handle IDs ("h-0", "h-1", ...) to function values.
//
// Handles are never released: a pinned function keeps its whole closure
// alive for the lifetime of the server.
type HandleStore struct {
	ids *registry.Counter

	mu      sync.RWMutex
	handles map[string]handle
}

// NewHandleStore creates an empty store.
func NewHandleStore() *HandleStore {
	return &HandleStore{
		ids:     registry.NewCounter("h-"),
		handles: make(map[string]handle),
	}
}

// Put pins fn and returns its handle ID.
func (s *HandleStore) Put(session *hotswap.Session, fn goja.Value) string {
	id := s.ids.Next()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.handles[id] = handle{session: session, fn: fn}
	return id
}

// Get returns the function and owning session of a handle.
func (s *HandleStore) Get(id string) (*hotswap.Session, goja.Value, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	h, ok := s.handles[id]
	if !ok {
		return nil, nil, ErrUnknownHandle
	}
	return h.session, h.fn, nil
}

// Len returns the number of pinned handles.
func (s *HandleStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.handles)
}
