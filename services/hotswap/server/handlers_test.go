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
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/AleutianAI/hotswap/services/hotswap/config"
	"github.com/AleutianAI/hotswap/services/hotswap/match"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func testConfig() config.ServerConfig {
	cfg := config.Default().Server
	cfg.RateLimit = 0
	cfg.CallTimeout = 2 * time.Second
	return cfg
}

func newTestServer(t *testing.T, cfg config.ServerConfig) http.Handler {
	t.Helper()
	svc := NewService()
	t.Cleanup(svc.Close)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(cfg, svc, WithLogger(logger)).Handler()
}

func do(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func TestSubmitUpdateCall(t *testing.T) {
	h := newTestServer(t, testConfig())

	w := do(t, h, http.MethodPost, "/v1/hotswap/contexts", SubmitRequest{
		Source: "(function add(x, y) { return x - y })",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	submitted := decode[SubmitResponse](t, w)
	assert.Equal(t, int64(1), submitted.Revision)
	assert.Empty(t, submitted.Result)
	require.NotEmpty(t, submitted.Handle)

	callPath := "/v1/hotswap/handles/" + submitted.Handle + "/call"
	w = do(t, h, http.MethodPost, callPath, CallRequest{Args: []any{2, 3}})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.JSONEq(t, "-1", string(decode[CallResponse](t, w).Result))

	w = do(t, h, http.MethodPut, "/v1/hotswap/contexts/"+submitted.ContextID, UpdateRequest{
		Source: "(function add(x, y) { return x + y })",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	summary := decode[match.Summary](t, w)
	assert.Equal(t, int64(2), summary.Revision)
	assert.Len(t, summary.Matched, 1)
	assert.Empty(t, summary.Added)

	w = do(t, h, http.MethodPost, callPath, CallRequest{Args: []any{2, 3}})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.JSONEq(t, "5", string(decode[CallResponse](t, w).Result))
}

func TestSubmit_ValueResult(t *testing.T) {
	h := newTestServer(t, testConfig())

	w := do(t, h, http.MethodPost, "/v1/hotswap/contexts", SubmitRequest{Source: `({ a: 1, b: "two" })`})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	resp := decode[SubmitResponse](t, w)
	assert.JSONEq(t, `{"a":1,"b":"two"}`, string(resp.Result))
	assert.Empty(t, resp.Handle)
}

func TestSubmit_Errors(t *testing.T) {
	h := newTestServer(t, testConfig())

	tests := []struct {
		name   string
		body   any
		status int
		code   string
	}{
		{name: "missing source", body: map[string]string{}, status: http.StatusBadRequest, code: "INVALID_REQUEST"},
		{name: "bad granularity", body: SubmitRequest{Source: "1", DiffGranularity: "word"}, status: http.StatusBadRequest, code: "INVALID_REQUEST"},
		{name: "parse error", body: SubmitRequest{Source: "1.1.1"}, status: http.StatusUnprocessableEntity, code: "PARSE_ERROR"},
		{name: "runtime error", body: SubmitRequest{Source: "a.b.c"}, status: http.StatusUnprocessableEntity, code: "EXECUTION_ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, h, http.MethodPost, "/v1/hotswap/contexts", tt.body)
			assert.Equal(t, tt.status, w.Code, w.Body.String())
			assert.Equal(t, tt.code, decode[ErrorResponse](t, w).Code)
		})
	}
}

func TestUpdate_UnknownContext(t *testing.T) {
	h := newTestServer(t, testConfig())

	w := do(t, h, http.MethodPut, "/v1/hotswap/contexts/c404", UpdateRequest{Source: "1"})
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "CONTEXT_NOT_FOUND", decode[ErrorResponse](t, w).Code)

	w = do(t, h, http.MethodGet, "/v1/hotswap/contexts/c404/blocks", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestPatchPlanBlocks(t *testing.T) {
	h := newTestServer(t, testConfig())

	w := do(t, h, http.MethodPost, "/v1/hotswap/contexts", SubmitRequest{
		Source: "function f() {\n  return 1\n}\n",
		Name:   "f.js",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	id := decode[SubmitResponse](t, w).ContextID

	w = do(t, h, http.MethodPost, "/v1/hotswap/contexts/"+id+"/plan", UpdateRequest{
		Source: "function f() {\n  return 1\n}\nfunction g() {}\n",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	plan := decode[match.Summary](t, w)
	assert.Len(t, plan.Matched, 1)
	assert.Len(t, plan.Added, 1)

	w = do(t, h, http.MethodPost, "/v1/hotswap/contexts/"+id+"/patch", PatchRequest{
		Patch: "@@ -1,3 +1,3 @@\n function f() {\n-  return 1\n+  return 2\n }\n",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, int64(2), decode[match.Summary](t, w).Revision)

	w = do(t, h, http.MethodPost, "/v1/hotswap/contexts/"+id+"/patch", PatchRequest{
		Patch: "@@ -1,3 +1,3 @@\n function g() {\n-  return 1\n+  return 2\n }\n",
	})
	assert.Equal(t, http.StatusConflict, w.Code, w.Body.String())

	w = do(t, h, http.MethodGet, "/v1/hotswap/contexts/"+id+"/blocks", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	blocks := decode[BlocksResponse](t, w)
	assert.Equal(t, int64(2), blocks.Revision)
	require.Len(t, blocks.Blocks, 1)
	assert.Equal(t, "f", blocks.Blocks[0].Name)
	assert.Contains(t, blocks.Blocks[0].Code, "return 2")
}

func TestCall_Errors(t *testing.T) {
	cfg := testConfig()
	cfg.CallTimeout = 200 * time.Millisecond
	h := newTestServer(t, cfg)

	w := do(t, h, http.MethodPost, "/v1/hotswap/handles/h-99/call", CallRequest{})
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "HANDLE_NOT_FOUND", decode[ErrorResponse](t, w).Code)

	w = do(t, h, http.MethodPost, "/v1/hotswap/contexts", SubmitRequest{
		Source: "(function spin(n) { if (n) { while (true) {} } throw new Error('boom') })",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	handle := decode[SubmitResponse](t, w).Handle

	w = do(t, h, http.MethodPost, "/v1/hotswap/handles/"+handle+"/call", CallRequest{Args: []any{0}})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Contains(t, decode[ErrorResponse](t, w).Details, "boom")

	w = do(t, h, http.MethodPost, "/v1/hotswap/handles/"+handle+"/call", CallRequest{Args: []any{1}})
	assert.Equal(t, http.StatusGatewayTimeout, w.Code)

	// the worker is usable again after the interrupted call
	w = do(t, h, http.MethodPost, "/v1/hotswap/contexts", SubmitRequest{Source: "40 + 2"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.JSONEq(t, "42", string(decode[SubmitResponse](t, w).Result))
}

func TestRequestID(t *testing.T) {
	h := newTestServer(t, testConfig())

	w := do(t, h, http.MethodGet, "/v1/hotswap/health", nil)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))

	req := httptest.NewRequest(http.MethodGet, "/v1/hotswap/health", nil)
	req.Header.Set("X-Request-ID", "fixed-id")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, "fixed-id", rec.Header().Get("X-Request-ID"))
}

func TestHealth(t *testing.T) {
	h := newTestServer(t, testConfig())

	do(t, h, http.MethodPost, "/v1/hotswap/contexts", SubmitRequest{Source: "(function() {})"})

	w := do(t, h, http.MethodGet, "/v1/hotswap/health", nil)
	require.Equal(t, http.StatusOK, w.Code)
	health := decode[HealthResponse](t, w)
	assert.Equal(t, "healthy", health.Status)
	assert.Equal(t, 1, health.Contexts)
	assert.Equal(t, 1, health.Blocks)
	assert.Equal(t, 1, health.Handles)
}

func TestRateLimit(t *testing.T) {
	cfg := testConfig()
	cfg.RateLimit = 0.001
	cfg.Burst = 1
	h := newTestServer(t, cfg)

	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/v1/hotswap/health", nil).Code)

	w := do(t, h, http.MethodGet, "/v1/hotswap/health", nil)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "RATE_LIMITED", decode[ErrorResponse](t, w).Code)
}

func TestBodyLimit(t *testing.T) {
	cfg := testConfig()
	cfg.MaxBodyBytes = 64
	h := newTestServer(t, cfg)

	w := do(t, h, http.MethodPost, "/v1/hotswap/contexts", SubmitRequest{Source: strings.Repeat("1;", 100)})
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	svc := NewService()
	t.Cleanup(svc.Close)
	metrics := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		io.WriteString(w, "hotswap_submit_total 1\n")
	})
	h := New(testConfig(), svc, WithMetricsHandler(metrics)).Handler()

	w := do(t, h, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "hotswap_submit_total")
}
