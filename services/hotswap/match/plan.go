// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package match

import (
	"github.com/AleutianAI/hotswap/services/hotswap/ast"
	"github.com/AleutianAI/hotswap/services/hotswap/diff"
	"github.com/AleutianAI/hotswap/services/hotswap/registry"
	"github.com/AleutianAI/hotswap/services/hotswap/rewrite"
)

// Entry is the outcome for one function node of the new source.
type Entry struct {
	rewrite.Unit

	// Matched is true when the node took over an existing block.
	Matched bool

	// PrevRange is the block's range in the previous source. Zero when new.
	PrevRange ast.Range
}

// Plan is an uncommitted set of block mutations for one revision.
type Plan struct {
	ContextID string
	Revision  int64

	// Source is the rewritten new source.
	Source string

	// Entries holds one entry per function node, in post-order.
	Entries []Entry

	// Retired lists previously live blocks absent from the new source.
	Retired []string

	// Diff summarises the edit script. Zero on first submission.
	Diff diff.Stats

	matched map[string]ast.Range
}

// Matched returns the number of nodes bound to existing blocks.
func (p *Plan) Matched() int {
	return len(p.matched)
}

// Added returns the number of nodes that received a new block.
func (p *Plan) Added() int {
	return len(p.Entries) - len(p.matched)
}

// ChangeSet converts the plan into registry mutations.
func (p *Plan) ChangeSet() registry.ChangeSet {
	var cs registry.ChangeSet
	for _, e := range p.Entries {
		if e.Matched {
			cs.Updated = append(cs.Updated, registry.BlockUpdate{
				ID:       e.BlockID,
				Code:     e.Code,
				Revision: p.Revision,
				Range:    e.Node.Span,
				Kind:     e.Node.Kind,
				Name:     e.Node.Name,
			})
			continue
		}
		cs.Added = append(cs.Added, registry.Block{
			ID:       e.BlockID,
			Code:     e.Code,
			Revision: p.Revision,
			Range:    e.Node.Span,
			Kind:     e.Node.Kind,
			Name:     e.Node.Name,
		})
	}
	cs.Retired = append(cs.Retired, p.Retired...)
	return cs
}

// Summary is the serialisable form of a plan.
type Summary struct {
	ContextID string         `json:"context_id"`
	Revision  int64          `json:"revision"`
	Matched   []BlockSummary `json:"matched"`
	Added     []BlockSummary `json:"added"`
	Retired   []string       `json:"retired"`
	Diff      diff.Stats     `json:"diff"`
}

// BlockSummary describes one entry of a plan.
type BlockSummary struct {
	ID        string    `json:"id"`
	Kind      string    `json:"kind"`
	Name      string    `json:"name,omitempty"`
	Range     ast.Range `json:"range"`
	PrevRange ast.Range `json:"prev_range,omitempty"`
}

// Summary returns the serialisable form of the plan.
func (p *Plan) Summary() Summary {
	s := Summary{
		ContextID: p.ContextID,
		Revision:  p.Revision,
		Matched:   []BlockSummary{},
		Added:     []BlockSummary{},
		Retired:   append([]string{}, p.Retired...),
		Diff:      p.Diff,
	}
	for _, e := range p.Entries {
		bs := BlockSummary{
			ID:    e.BlockID,
			Kind:  e.Node.Kind.String(),
			Name:  e.Node.Name,
			Range: e.Node.Span,
		}
		if e.Matched {
			bs.PrevRange = e.PrevRange
			s.Matched = append(s.Matched, bs)
		} else {
			s.Added = append(s.Added, bs)
		}
	}
	return s
}
