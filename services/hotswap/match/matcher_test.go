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
	"context"
	"testing"

	"github.com/AleutianAI/hotswap/services/hotswap/ast"
	"github.com/AleutianAI/hotswap/services/hotswap/diff"
	"github.com/AleutianAI/hotswap/services/hotswap/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fixture drives a matcher against a real registry, one revision at a time.
type fixture struct {
	t        *testing.T
	reg      *registry.Registry
	ctxID    string
	matcher  *Matcher
	source   string
	revision int64
}

func newFixture(t *testing.T, g diff.Granularity) *fixture {
	reg := registry.New()
	return &fixture{
		t:       t,
		reg:     reg,
		ctxID:   reg.NewContext(),
		matcher: New(diff.New(g), reg.NextBlockID),
	}
}

func (f *fixture) plan(src string) *Plan {
	f.t.Helper()
	tree, err := ast.NewParser().Parse(context.Background(), "test.js", []byte(src))
	require.NoError(f.t, err)

	plan, err := f.matcher.Plan(Input{
		ContextID:  f.ctxID,
		Revision:   f.revision + 1,
		PrevSource: f.source,
		Live:       f.reg.Live(f.ctxID),
		Tree:       tree,
	})
	require.NoError(f.t, err)
	return plan
}

func (f *fixture) commit(src string) *Plan {
	f.t.Helper()
	plan := f.plan(src)
	require.NoError(f.t, f.reg.Apply(f.ctxID, plan.ChangeSet()))
	f.source = src
	f.revision++
	return plan
}

func ids(entries []Entry) []string {
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.BlockID)
	}
	return out
}

func TestMatcher_FirstSubmission(t *testing.T) {
	f := newFixture(t, diff.Character)
	plan := f.commit("(function outer() { return function inner() {} })")

	assert.Equal(t, []string{"f0", "f1"}, ids(plan.Entries))
	assert.Equal(t, 0, plan.Matched())
	assert.Equal(t, 2, plan.Added())
	assert.Empty(t, plan.Retired)
	assert.Equal(t, diff.Stats{}, plan.Diff)
}

func TestMatcher_ShiftedSourceKeepsIdentity(t *testing.T) {
	f := newFixture(t, diff.Character)
	f.commit("function a() { return 1 }")

	plan := f.commit("// header\nfunction a() { return 1 }")
	require.Len(t, plan.Entries, 1)
	e := plan.Entries[0]
	assert.True(t, e.Matched)
	assert.Equal(t, "f0", e.BlockID)
	assert.Equal(t, ast.Range{Start: 0, End: 25}, e.PrevRange)
	assert.Equal(t, ast.Range{Start: 10, End: 35}, e.Node.Span)

	b, _ := f.reg.Block(f.ctxID, "f0")
	assert.Equal(t, int64(2), b.Revision)
	assert.Equal(t, e.Node.Span, b.Range)
}

func TestMatcher_BodyEditKeepsIdentity(t *testing.T) {
	f := newFixture(t, diff.Character)
	f.commit("function add(x,y){return x-y}")

	plan := f.commit("function add(x,y){return x+y}")
	require.Len(t, plan.Entries, 1)
	assert.True(t, plan.Entries[0].Matched)

	b, _ := f.reg.Block(f.ctxID, "f0")
	assert.Equal(t, "(function (x,y){return x+y})", b.Code)
}

func TestMatcher_RemovedNodeIsRetired(t *testing.T) {
	f := newFixture(t, diff.Character)
	f.commit("(function () {\n  return function () { return \"hello\" }\n})()")

	plan := f.commit("(function () {\n  return\n})()")
	assert.Equal(t, []string{"f0"}, plan.Retired)
	assert.Equal(t, 1, plan.Matched())

	b, ok := f.reg.Block(f.ctxID, "f0")
	require.True(t, ok, "retired blocks are kept")
	assert.False(t, b.Current)
	assert.Equal(t, `(function () { return "hello" })`, b.Code)
}

func TestMatcher_RetiredBlocksAreNotRevived(t *testing.T) {
	f := newFixture(t, diff.Character)
	withInner := "(function () {\n  return function () { return 1 }\n})"
	f.commit(withInner)
	f.commit("(function () {\n  return\n})")

	plan := f.commit(withInner)
	assert.Equal(t, 1, plan.Added())
	assert.Equal(t, "f2", plan.Entries[0].BlockID, "a re-added node gets a new identity")
}

func TestMatcher_SingleSurvivingEndpointIsNewBlock(t *testing.T) {
	f := newFixture(t, diff.Character)
	f.commit("x = [function () { return 1 }, 2]")

	// The byte after the function is deleted, so only its start survives.
	plan := f.commit("x = [function () { return 1 }][2]")
	require.Len(t, plan.Entries, 1)
	assert.False(t, plan.Entries[0].Matched)
	assert.Equal(t, "f1", plan.Entries[0].BlockID)
	assert.Equal(t, []string{"f0"}, plan.Retired)

	old, _ := f.reg.Block(f.ctxID, "f0")
	assert.Equal(t, "(function () { return 1 })", old.Code)
	assert.Equal(t, int64(1), old.Revision, "old block keeps its code and revision")
}

func TestMatcher_SurvivingImageMustEqualNodeRange(t *testing.T) {
	f := newFixture(t, diff.Character)
	f.commit("(function () { return 1 })")

	// Both endpoints survive, but the old end maps past the new node.
	plan := f.commit("(function () { return 1 }, 2)")
	require.Len(t, plan.Entries, 1)
	assert.False(t, plan.Entries[0].Matched)
	assert.Equal(t, []string{"f0"}, plan.Retired)
}

func TestMatcher_LineGranularity(t *testing.T) {
	oldSrc := "var a = function () { return 1 }\nvar b = function () { return 2 }\n"
	newSrc := "var a = function () { return 1 }\nvar b = function () { return 3 }\n"

	f := newFixture(t, diff.Line)
	f.commit(oldSrc)
	plan := f.commit(newSrc)

	require.Len(t, plan.Entries, 2)
	assert.True(t, plan.Entries[0].Matched, "untouched line keeps identity")
	assert.False(t, plan.Entries[1].Matched, "edited line is a changed region")
	assert.Equal(t, []string{"f1"}, plan.Retired)

	c := newFixture(t, diff.Character)
	c.commit(oldSrc)
	plan = c.commit(newSrc)
	assert.Equal(t, 2, plan.Matched(), "character granularity keeps both")
}

func TestPlan_ChangeSetAndSummary(t *testing.T) {
	f := newFixture(t, diff.Character)
	// The trailing semicolon is deleted, so b's end does not survive.
	f.commit("function a() {}\nfunction b() {};")

	plan := f.plan("function a() { return 1 }\nfunction c() {}")
	cs := plan.ChangeSet()

	require.Len(t, cs.Updated, 1)
	assert.Equal(t, "f0", cs.Updated[0].ID)
	assert.Equal(t, int64(2), cs.Updated[0].Revision)
	require.Len(t, cs.Added, 1)
	assert.Equal(t, "c", cs.Added[0].Name)
	assert.Equal(t, []string{"f1"}, cs.Retired)

	s := plan.Summary()
	assert.Equal(t, f.ctxID, s.ContextID)
	require.Len(t, s.Matched, 1)
	assert.Equal(t, "declaration", s.Matched[0].Kind)
	assert.Equal(t, ast.Range{Start: 0, End: 15}, s.Matched[0].PrevRange)
	require.Len(t, s.Added, 1)
	assert.Equal(t, []string{"f1"}, s.Retired)

	// Planning does not commit.
	b, _ := f.reg.Block(f.ctxID, "f1")
	assert.True(t, b.Current)
}

func TestMatcher_NilTree(t *testing.T) {
	m := New(diff.New(diff.Character), registry.New().NextBlockID)
	_, err := m.Plan(Input{})
	assert.ErrorIs(t, err, ErrNilTree)
}
