// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package registry stores the versioned function blocks of every hot-swap
// context.
//
// A Registry is an explicitly owned object: sessions and the trampolines they
// generate hold a reference to it, so independent registries (for example one
// per test) never observe each other's blocks.
package registry

import (
	"errors"
	"fmt"
	"sync"

	"github.com/AleutianAI/hotswap/services/hotswap/ast"
)

// Sentinel errors returned by Registry operations.
var (
	// ErrUnknownContext indicates that a context ID was never issued by this registry.
	ErrUnknownContext = errors.New("unknown context")

	// ErrUnknownBlock indicates that a block ID does not exist in the context.
	ErrUnknownBlock = errors.New("unknown block")

	// ErrDuplicateBlock indicates an attempt to add a block whose ID already exists.
	ErrDuplicateBlock = errors.New("duplicate block")
)

// Block is the registry entry tracking one function node's identity, code
// and revision across updates.
//
// The ID never changes after creation. A block whose Current flag is false is
// retained so that outstanding trampolines keep returning its last code.
type Block struct {
	// ID is the stable block identifier ("f0", "f1", ...).
	ID string `json:"id"`

	// ContextID is the owning context.
	ContextID string `json:"context_id"`

	// Code is the parenthesised, name-stripped function source that a
	// trampoline compiles.
	Code string `json:"code"`

	// Revision is the context revision at which Code became current.
	Revision int64 `json:"revision"`

	// Range is the node's byte range in the latest source where the block
	// was current.
	Range ast.Range `json:"range"`

	// Kind is the syntactic form of the node the block was last seen as.
	Kind ast.Kind `json:"kind"`

	// Name is the node's own identifier, empty for anonymous functions.
	Name string `json:"name,omitempty"`

	// Current is false once the node no longer exists in the latest source.
	Current bool `json:"current"`

	// Compiles counts how many times a trampoline fetched Code to compile it.
	Compiles int64 `json:"compiles"`
}

// BlockUpdate is an in-place mutation of an existing block.
type BlockUpdate struct {
	ID       string
	Code     string
	Revision int64
	Range    ast.Range
	Kind     ast.Kind
	Name     string
}

// ChangeSet is the complete set of mutations produced by one submit or
// update. It is applied atomically by Registry.Apply.
type ChangeSet struct {
	// Updated are existing blocks matched to a node of the new source.
	Updated []BlockUpdate

	// Added are blocks created for nodes with no previous identity.
	Added []Block

	// Retired are IDs of previously current blocks absent from the new source.
	Retired []string
}

// Empty reports whether the change set carries no mutation at all.
func (cs ChangeSet) Empty() bool {
	return len(cs.Updated) == 0 && len(cs.Added) == 0 && len(cs.Retired) == 0
}

// Stats summarises registry occupancy.
type Stats struct {
	Contexts int `json:"contexts"`
	Blocks   int `json:"blocks"`
	Current  int `json:"current"`
}

type contextEntry struct {
	blocks map[string]*Block
	order  []string
}

// Registry maps context IDs to their blocks.
//
// Description:
//
//	The outer map is append-only: contexts are never removed. Inner maps
//	grow monotonically; blocks are updated or flagged, never deleted.
//
// Thread Safety:
//
//	Registry is fully thread-safe. Reads of a block's fields happen under a
//	read lock and mutations of a whole change set under a single write lock,
//	so readers never observe a partially applied update.
type Registry struct {
	mu       sync.RWMutex
	contexts map[string]*contextEntry

	contextIDs *Counter
	blockIDs   *Counter
}

// New creates an empty registry with its own identifier counters.
func New() *Registry {
	return &Registry{
		contexts:   make(map[string]*contextEntry),
		contextIDs: NewCounter("c"),
		blockIDs:   NewCounter("f"),
	}
}

// NewContext issues a fresh context ID and creates its (empty) block map.
func (r *Registry) NewContext() string {
	id := r.contextIDs.Next()

	r.mu.Lock()
	defer r.mu.Unlock()
	r.contexts[id] = &contextEntry{blocks: make(map[string]*Block)}
	return id
}

// NextBlockID issues a fresh block ID. IDs handed out for a change set that
// is never applied are simply skipped.
func (r *Registry) NextBlockID() string {
	return r.blockIDs.Next()
}

// Apply commits a change set to a context.
//
// Description:
//
//	Every mutation is validated before any is applied: an unknown block in
//	Updated or Retired, or an already existing ID in Added, rejects the whole
//	change set and leaves the registry untouched.
//
// Inputs:
//
//	contextID - The context to mutate. Must have been issued by NewContext.
//	cs        - The mutations to apply.
//
// Outputs:
//
//	error - ErrUnknownContext, ErrUnknownBlock or ErrDuplicateBlock (wrapped).
//
// Thread Safety: Safe for concurrent use.
func (r *Registry) Apply(contextID string, cs ChangeSet) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.contexts[contextID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownContext, contextID)
	}

	for _, u := range cs.Updated {
		if _, ok := entry.blocks[u.ID]; !ok {
			return fmt.Errorf("update %s/%s: %w", contextID, u.ID, ErrUnknownBlock)
		}
	}
	for _, id := range cs.Retired {
		if _, ok := entry.blocks[id]; !ok {
			return fmt.Errorf("retire %s/%s: %w", contextID, id, ErrUnknownBlock)
		}
	}
	seen := make(map[string]bool, len(cs.Added))
	for _, b := range cs.Added {
		if _, ok := entry.blocks[b.ID]; ok || seen[b.ID] {
			return fmt.Errorf("add %s/%s: %w", contextID, b.ID, ErrDuplicateBlock)
		}
		seen[b.ID] = true
	}

	for _, u := range cs.Updated {
		b := entry.blocks[u.ID]
		b.Code = u.Code
		b.Revision = u.Revision
		b.Range = u.Range
		b.Kind = u.Kind
		b.Name = u.Name
		b.Current = true
	}
	for _, id := range cs.Retired {
		entry.blocks[id].Current = false
	}
	for _, b := range cs.Added {
		block := b
		block.ContextID = contextID
		block.Current = true
		entry.blocks[block.ID] = &block
		entry.order = append(entry.order, block.ID)
	}

	return nil
}

// Revision returns the revision of a block's current code.
//
// The boolean is false when the context or block does not exist.
func (r *Registry) Revision(contextID, blockID string) (int64, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	b := r.lookup(contextID, blockID)
	if b == nil {
		return 0, false
	}
	return b.Revision, true
}

// Compile hands out a block's code for compilation and counts the request.
//
// The code and the revision it belongs to are read together, so a caller
// caching the compiled unit under the returned revision never mislabels it.
func (r *Registry) Compile(contextID, blockID string) (code string, revision int64, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	b := r.lookup(contextID, blockID)
	if b == nil {
		return "", 0, false
	}
	b.Compiles++
	return b.Code, b.Revision, true
}

// Block returns a copy of one block.
func (r *Registry) Block(contextID, blockID string) (Block, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	b := r.lookup(contextID, blockID)
	if b == nil {
		return Block{}, false
	}
	return *b, true
}

// Blocks returns copies of every block of a context in creation order.
func (r *Registry) Blocks(contextID string) []Block {
	return r.collect(contextID, false)
}

// Live returns copies of the current blocks of a context in creation order.
func (r *Registry) Live(contextID string) []Block {
	return r.collect(contextID, true)
}

// HasContext reports whether the context was issued by this registry.
func (r *Registry) HasContext(contextID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.contexts[contextID]
	return ok
}

// Stats returns occupancy counters across all contexts.
func (r *Registry) Stats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stats := Stats{Contexts: len(r.contexts)}
	for _, entry := range r.contexts {
		stats.Blocks += len(entry.blocks)
		for _, b := range entry.blocks {
			if b.Current {
				stats.Current++
			}
		}
	}
	return stats
}

func (r *Registry) collect(contextID string, currentOnly bool) []Block {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, ok := r.contexts[contextID]
	if !ok {
		return nil
	}
	blocks := make([]Block, 0, len(entry.order))
	for _, id := range entry.order {
		b := entry.blocks[id]
		if currentOnly && !b.Current {
			continue
		}
		blocks = append(blocks, *b)
	}
	return blocks
}

// lookup must be called with r.mu held.
func (r *Registry) lookup(contextID, blockID string) *Block {
	entry, ok := r.contexts[contextID]
	if !ok {
		return nil
	}
	return entry.blocks[blockID]
}
