// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/AleutianAI/hotswap/services/hotswap"
	"github.com/AleutianAI/hotswap/services/hotswap/config"
	"github.com/AleutianAI/hotswap/services/hotswap/diff"
	"github.com/AleutianAI/hotswap/services/hotswap/match"
	"github.com/dop251/goja"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// syncBuffer is a bytes.Buffer safe for the watch goroutines.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestTextOutput(t *testing.T) {
	var buf bytes.Buffer
	assert.True(t, textOutput(&buf, "text"))
	assert.False(t, textOutput(&buf, "json"))
	assert.False(t, textOutput(&buf, "auto"))

	f, err := os.CreateTemp(t.TempDir(), "log")
	require.NoError(t, err)
	defer f.Close()
	assert.False(t, textOutput(f, "auto"))
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, config.LogConfig{Level: "warn", Format: "json"})

	logger.Info("hidden")
	logger.Warn("shown", "k", "v")

	var record map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	assert.Equal(t, "shown", record["msg"])
	assert.Equal(t, "v", record["k"])
}

func TestFormatValue(t *testing.T) {
	rt := goja.New()
	eval := func(code string) goja.Value {
		v, err := rt.RunString(code)
		require.NoError(t, err)
		return v
	}

	tests := []struct {
		name string
		v    goja.Value
		want string
	}{
		{"nil", nil, "undefined"},
		{"undefined", goja.Undefined(), "undefined"},
		{"null", goja.Null(), "null"},
		{"number", eval("2 + 3"), "5"},
		{"string", eval("'abc'"), "abc"},
		{"object", eval("({a: 1})"), `{"a":1}`},
		{"array", eval("[1, 'x']"), `[1,"x"]`},
		{"function", eval("(function () {})"), "[Function]"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, formatValue(tt.v))
		})
	}
}

func TestSessionOptions(t *testing.T) {
	c := config.Default()
	opts, err := sessionOptions(c, nil)
	require.NoError(t, err)
	assert.Len(t, opts, 4)

	c.Diff.Granularity = "word"
	_, err = sessionOptions(c, nil)
	assert.ErrorIs(t, err, diff.ErrUnknownGranularity)
}

func TestRunFile(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "add.js", "function add(a, b) { return a + b }\nadd(2, 3)\n")

	var out bytes.Buffer
	require.NoError(t, runFile(context.Background(), &out, config.Default(), runOptions{path: path}))
	assert.Equal(t, "5\n", out.String())

	out.Reset()
	require.NoError(t, runFile(context.Background(), &out, config.Default(), runOptions{path: path, call: "add(20, 22)"}))
	assert.Equal(t, "42\n", out.String())
}

func TestRunFile_Errors(t *testing.T) {
	dir := t.TempDir()
	var out bytes.Buffer

	err := runFile(context.Background(), &out, config.Default(), runOptions{path: filepath.Join(dir, "missing.js")})
	assert.ErrorIs(t, err, os.ErrNotExist)

	path := writeFile(t, dir, "broken.js", "function (")
	err = runFile(context.Background(), &out, config.Default(), runOptions{path: path})
	assert.ErrorIs(t, err, hotswap.ErrParse)

	path = writeFile(t, dir, "throws.js", "function f() {}\n")
	err = runFile(context.Background(), &out, config.Default(), runOptions{path: path, call: "f.g.h"})
	assert.ErrorIs(t, err, hotswap.ErrExecution)
	assert.Empty(t, out.String())
}

func TestRunFile_Watch(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "f.js", "function f() { return 1 }\nvar keep = f;\n")

	c := config.Default()
	c.Watch.Debounce = 50 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	out := &syncBuffer{}
	done := make(chan error, 1)
	go func() {
		done <- runFile(ctx, out, c, runOptions{path: path, call: "keep()", watch: true})
	}()

	require.Eventually(t, func() bool {
		return out.String() == "1\n"
	}, 2*time.Second, 10*time.Millisecond)

	// Give the watcher time to subscribe before the first write.
	time.Sleep(100 * time.Millisecond)
	writeFile(t, dir, "f.js", "function f() { return 2 }\nvar keep = f;\n")

	assert.Eventually(t, func() bool {
		return strings.HasSuffix(out.String(), "2\n")
	}, 3*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("runFile did not return after cancel")
	}
}

func TestPlanFiles(t *testing.T) {
	dir := t.TempDir()
	oldPath := writeFile(t, dir, "old.js", "function a() { return 1 }\n")
	newPath := writeFile(t, dir, "new.js", "function a() { return 1 }\nfunction b() { return 2 }\n")

	var out bytes.Buffer
	require.NoError(t, planFiles(context.Background(), &out, config.Default(), oldPath, newPath, "", "json"))

	var s match.Summary
	require.NoError(t, json.Unmarshal(out.Bytes(), &s))
	assert.Equal(t, int64(2), s.Revision)
	require.Len(t, s.Matched, 1)
	assert.Equal(t, "a", s.Matched[0].Name)
	require.Len(t, s.Added, 1)
	assert.Equal(t, "b", s.Added[0].Name)
	assert.Empty(t, s.Retired)

	out.Reset()
	require.NoError(t, planFiles(context.Background(), &out, config.Default(), oldPath, newPath, "", "text"))
	assert.Contains(t, out.String(), "revision 2: 1 matched, 1 added, 0 retired")
	assert.Contains(t, out.String(), "(was 0:25)")
}

func TestPlanFiles_Patch(t *testing.T) {
	dir := t.TempDir()
	oldPath := writeFile(t, dir, "old.js", "function a() { return 1 }\n")
	patch := writeFile(t, dir, "add-b.diff", "@@ -1,1 +1,2 @@\n function a() { return 1 }\n+function b() { return 2 }\n")

	var out bytes.Buffer
	require.NoError(t, planFiles(context.Background(), &out, config.Default(), oldPath, "", patch, "json"))

	var s match.Summary
	require.NoError(t, json.Unmarshal(out.Bytes(), &s))
	assert.Len(t, s.Matched, 1)
	assert.Len(t, s.Added, 1)
}

func TestPlanFiles_DoesNotExecute(t *testing.T) {
	dir := t.TempDir()
	oldPath := writeFile(t, dir, "old.js", "throw new Error('ran');\nfunction a() {}\n")
	newPath := writeFile(t, dir, "new.js", "throw new Error('ran');\n")

	var out bytes.Buffer
	require.NoError(t, planFiles(context.Background(), &out, config.Default(), oldPath, newPath, "", "json"))

	var s match.Summary
	require.NoError(t, json.Unmarshal(out.Bytes(), &s))
	assert.Len(t, s.Retired, 1)
}

func TestPlanFiles_Errors(t *testing.T) {
	dir := t.TempDir()
	oldPath := writeFile(t, dir, "old.js", "function a() {}\n")
	ctx := context.Background()
	var out bytes.Buffer

	assert.ErrorIs(t, planFiles(ctx, &out, config.Default(), oldPath, "", "", "text"), ErrPlanInput)
	assert.ErrorIs(t, planFiles(ctx, &out, config.Default(), oldPath, oldPath, oldPath, "text"), ErrPlanInput)
	assert.ErrorIs(t, planFiles(ctx, &out, config.Default(), oldPath, oldPath, "", "yaml"), ErrUnknownFormat)

	patch := writeFile(t, dir, "bad.diff", "@@ -1,1 +1,1 @@\n-function z() {}\n+function y() {}\n")
	assert.ErrorIs(t, planFiles(ctx, &out, config.Default(), oldPath, "", patch, "text"), diff.ErrPatchMismatch)
}

func TestServeAPI_StopsOnCancel(t *testing.T) {
	c := config.Default()
	c.Server.Addr = "127.0.0.1:0"
	c.Telemetry.MetricExporter = "none"
	c.Telemetry.TraceExporter = "none"

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	var logs bytes.Buffer
	logger := newLogger(&logs, config.LogConfig{Level: "info", Format: "text"})
	require.NoError(t, serveAPI(ctx, c, logger))
	assert.Contains(t, logs.String(), "Shutting down")
}

func TestConfigInitCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hotswap.yaml")

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs([]string{"config", "init", path})
	defer rootCmd.SetArgs(nil)

	require.NoError(t, rootCmd.Execute())
	assert.Contains(t, out.String(), "Wrote "+path)

	loaded, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, config.Default().Server.Addr, loaded.Server.Addr)
}
