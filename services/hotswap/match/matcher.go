// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package match aligns the function nodes of a new source revision with the
// blocks of the previous one.
//
// A new node inherits an existing block only when both endpoints of that
// block's previous range survive the edit script and land exactly on the
// node's range. Anything less is treated as a new function.
package match

import (
	"errors"
	"fmt"

	"github.com/AleutianAI/hotswap/services/hotswap/ast"
	"github.com/AleutianAI/hotswap/services/hotswap/diff"
	"github.com/AleutianAI/hotswap/services/hotswap/registry"
	"github.com/AleutianAI/hotswap/services/hotswap/rewrite"
)

// ErrNilTree is returned when Plan is called without a parsed source.
var ErrNilTree = errors.New("tree must not be nil")

// IDSource issues fresh block IDs.
type IDSource func() string

// Matcher produces update plans.
//
// Thread Safety: Safe for concurrent use if the IDSource is.
type Matcher struct {
	differ *diff.Differ
	ids    IDSource
}

// New creates a Matcher that diffs with differ and allocates IDs from ids.
func New(differ *diff.Differ, ids IDSource) *Matcher {
	return &Matcher{differ: differ, ids: ids}
}

// Input is everything a plan is computed from.
type Input struct {
	// ContextID is the owning context.
	ContextID string

	// Revision is the revision the plan commits.
	Revision int64

	// PrevSource is the last committed source. Empty on first submission.
	PrevSource string

	// Live are the context's current blocks, with ranges in PrevSource.
	Live []registry.Block

	// Tree is the parsed new source.
	Tree *ast.Tree
}

// Plan computes the plan for one revision.
//
// Description:
//
//	The previous ranges of live blocks are mapped through the offset
//	survival of PrevSource to Tree.Source and keyed by "start:end". Nodes
//	are visited in post-order; a node whose own range key is present takes
//	over that block, every other node gets a fresh ID. Live blocks left
//	unclaimed are retired. Nothing is committed.
//
// Inputs:
//
//	in - The plan input.
//
// Outputs:
//
//	*Plan - The plan, with the rewritten source.
//	error - Non-nil if the tree cannot be rewritten.
func (m *Matcher) Plan(in Input) (*Plan, error) {
	if in.Tree == nil {
		return nil, ErrNilTree
	}

	plan := &Plan{
		ContextID: in.ContextID,
		Revision:  in.Revision,
		matched:   make(map[string]ast.Range),
	}

	byRange := make(map[string]registry.Block, len(in.Live))
	if len(in.Live) > 0 {
		survival := m.differ.Survival(in.PrevSource, in.Tree.Source)
		plan.Diff = survival.Stats()

		for _, b := range in.Live {
			start, end, ok := survival.MapRange(b.Range.Start, b.Range.End)
			if !ok {
				continue
			}
			byRange[ast.Range{Start: start, End: end}.Key()] = b
		}
	}

	assign := func(node *ast.FunctionNode) string {
		key := node.Span.Key()
		if b, ok := byRange[key]; ok {
			delete(byRange, key)
			plan.matched[b.ID] = b.Range
			return b.ID
		}
		return m.ids()
	}

	res, err := rewrite.Rewrite(in.Tree, in.ContextID, assign)
	if err != nil {
		return nil, fmt.Errorf("rewrite revision %d: %w", in.Revision, err)
	}
	plan.Source = res.Source

	for _, u := range res.Units {
		prev, matched := plan.matched[u.BlockID]
		plan.Entries = append(plan.Entries, Entry{
			Unit:      u,
			Matched:   matched,
			PrevRange: prev,
		})
	}
	for _, b := range in.Live {
		if _, ok := plan.matched[b.ID]; !ok {
			plan.Retired = append(plan.Retired, b.ID)
		}
	}

	return plan, nil
}
