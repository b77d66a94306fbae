// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package diff computes edit scripts between two revisions of a source text
// and answers offset-survival queries over them.
//
// It also applies unified patches, so a revision can be expressed as a
// change to the previous one instead of as a complete text.
package diff

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// ErrUnknownGranularity is returned by ParseGranularity for unsupported names.
var ErrUnknownGranularity = errors.New("unknown diff granularity")

// Granularity selects the resolution of the edit script.
type Granularity int

const (
	// Character diffs individual characters. Most precise, the default.
	Character Granularity = iota

	// Line diffs whole lines. Faster on large sources, but any edit inside a
	// line makes the entire line a changed region.
	Line
)

// String returns the configuration name of the granularity.
func (g Granularity) String() string {
	switch g {
	case Character:
		return "character"
	case Line:
		return "line"
	default:
		return fmt.Sprintf("granularity(%d)", int(g))
	}
}

// ParseGranularity converts a configuration name into a Granularity.
//
// The empty string selects Character.
func ParseGranularity(name string) (Granularity, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "character", "char":
		return Character, nil
	case "line":
		return Line, nil
	default:
		return Character, fmt.Errorf("%w: %q", ErrUnknownGranularity, name)
	}
}

// Option configures a Differ.
type Option func(*Differ)

// WithTimeout bounds the time spent searching for a minimal edit script.
//
// When the deadline passes the engine returns a valid but possibly
// non-minimal script, which can only make matching more conservative.
// Zero means no deadline.
func WithTimeout(d time.Duration) Option {
	return func(df *Differ) {
		if d >= 0 {
			df.timeout = d
		}
	}
}

// Differ computes edit scripts at a fixed granularity.
//
// Thread Safety: Safe for concurrent use. Each call uses its own engine.
type Differ struct {
	granularity Granularity
	timeout     time.Duration
}

// New creates a Differ.
func New(g Granularity, opts ...Option) *Differ {
	d := &Differ{granularity: g}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Granularity returns the configured granularity.
func (d *Differ) Granularity() Granularity {
	return d.granularity
}

// Edits returns the edit script transforming oldText into newText.
func (d *Differ) Edits(oldText, newText string) []diffmatchpatch.Diff {
	dmp := diffmatchpatch.New()
	dmp.DiffTimeout = d.timeout

	if d.granularity == Line {
		a, b, lines := dmp.DiffLinesToChars(oldText, newText)
		edits := dmp.DiffMain(a, b, false)
		return dmp.DiffCharsToLines(edits, lines)
	}
	return dmp.DiffMain(oldText, newText, false)
}

// Survival computes the offset mapping from oldText to newText.
func (d *Differ) Survival(oldText, newText string) *Survival {
	return NewSurvival(d.Edits(oldText, newText))
}

// segment is one run of the edit script, positioned in both texts.
type segment struct {
	op       diffmatchpatch.Operation
	oldStart int
	oldEnd   int
	newStart int
	newEnd   int
}

// Stats summarises an edit script in bytes.
type Stats struct {
	Equal    int `json:"equal"`
	Inserted int `json:"inserted"`
	Deleted  int `json:"deleted"`
}

// Survival maps byte offsets of an old text to byte offsets of a new text.
//
// Description:
//
//	An offset survives when the byte at that offset lies inside an unchanged
//	region of the edit script; it then maps to the same relative position in
//	that region of the new text. Offsets inside deleted regions do not
//	survive. The end-of-text offset survives only when the old text ends
//	with an unchanged region, and maps to the end of that region in the new
//	text.
//
// Thread Safety: Immutable after construction; safe for concurrent reads.
type Survival struct {
	segments []segment // old-text-bearing runs only, ordered by oldStart
	oldLen   int
	stats    Stats

	endSurvives bool
	endImage    int
}

// NewSurvival builds the offset mapping for an edit script.
func NewSurvival(edits []diffmatchpatch.Diff) *Survival {
	s := &Survival{}
	oldPos, newPos := 0, 0

	for _, e := range edits {
		n := len(e.Text)
		if n == 0 {
			continue
		}
		switch e.Type {
		case diffmatchpatch.DiffEqual:
			s.segments = append(s.segments, segment{
				op: e.Type, oldStart: oldPos, oldEnd: oldPos + n,
				newStart: newPos, newEnd: newPos + n,
			})
			oldPos += n
			newPos += n
			s.stats.Equal += n
		case diffmatchpatch.DiffDelete:
			s.segments = append(s.segments, segment{
				op: e.Type, oldStart: oldPos, oldEnd: oldPos + n,
				newStart: newPos, newEnd: newPos,
			})
			oldPos += n
			s.stats.Deleted += n
		case diffmatchpatch.DiffInsert:
			newPos += n
			s.stats.Inserted += n
		}
	}

	s.oldLen = oldPos
	if n := len(s.segments); n > 0 && s.segments[n-1].op == diffmatchpatch.DiffEqual {
		s.endSurvives = true
		s.endImage = s.segments[n-1].newEnd
	}
	return s
}

// Map returns the image of an old-text offset in the new text.
//
// The boolean is false when the offset does not survive or is out of range.
func (s *Survival) Map(offset int) (int, bool) {
	if offset < 0 || offset > s.oldLen {
		return 0, false
	}
	if offset == s.oldLen {
		return s.endImage, s.endSurvives
	}

	i := sort.Search(len(s.segments), func(i int) bool {
		return s.segments[i].oldEnd > offset
	})
	if i == len(s.segments) {
		return 0, false
	}
	seg := s.segments[i]
	if seg.op != diffmatchpatch.DiffEqual {
		return 0, false
	}
	return seg.newStart + (offset - seg.oldStart), true
}

// MapRange maps both endpoints of [start, end). Both must survive.
func (s *Survival) MapRange(start, end int) (int, int, bool) {
	ns, ok := s.Map(start)
	if !ok {
		return 0, 0, false
	}
	ne, ok := s.Map(end)
	if !ok {
		return 0, 0, false
	}
	return ns, ne, true
}

// Stats returns byte counts for the edit script.
func (s *Survival) Stats() Stats {
	return s.stats
}
