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
	"encoding/json"

	"github.com/AleutianAI/hotswap/services/hotswap/registry"
)

// SubmitRequest is the request body for POST /v1/hotswap/contexts.
type SubmitRequest struct {
	// Source is the JavaScript to evaluate.
	Source string `json:"source" binding:"required"`

	// DiffGranularity is "character" (default) or "line".
	DiffGranularity string `json:"diff_granularity" binding:"omitempty,oneof=character char line"`

	// Name labels the context in diagnostics.
	Name string `json:"name" binding:"omitempty,max=256"`
}

// SubmitResponse is the response for POST /v1/hotswap/contexts.
type SubmitResponse struct {
	ContextID string `json:"context_id"`
	Revision  int64  `json:"revision"`

	// Result is the completion value of the source, when it is not a
	// function.
	Result json.RawMessage `json:"result,omitempty"`

	// Handle identifies the completion value when it is a function.
	Handle string `json:"handle,omitempty"`
}

// UpdateRequest is the request body for PUT /v1/hotswap/contexts/:id and
// POST /v1/hotswap/contexts/:id/plan.
type UpdateRequest struct {
	Source string `json:"source" binding:"required"`
}

// PatchRequest is the request body for POST /v1/hotswap/contexts/:id/patch.
type PatchRequest struct {
	// Patch is a single-file unified diff against the current source.
	Patch string `json:"patch" binding:"required"`
}

// BlocksResponse is the response for GET /v1/hotswap/contexts/:id/blocks.
type BlocksResponse struct {
	ContextID string           `json:"context_id"`
	Revision  int64            `json:"revision"`
	Blocks    []registry.Block `json:"blocks"`
}

// CallRequest is the request body for POST /v1/hotswap/handles/:id/call.
type CallRequest struct {
	Args []any `json:"args" binding:"omitempty,max=64"`
}

// CallResponse is the response for POST /v1/hotswap/handles/:id/call.
type CallResponse struct {
	Result json.RawMessage `json:"result,omitempty"`
	Handle string          `json:"handle,omitempty"`
}

// HealthResponse is the response for GET /v1/hotswap/health.
type HealthResponse struct {
	Status   string `json:"status"`
	Version  string `json:"version"`
	Contexts int    `json:"contexts"`
	Blocks   int    `json:"blocks"`
	Handles  int    `json:"handles"`
}

// ErrorResponse represents an error response.
type ErrorResponse struct {
	// Error is the error message.
	Error string `json:"error"`

	// Code is the error code (optional).
	Code string `json:"code,omitempty"`

	// Details provides additional error context (optional).
	Details string `json:"details,omitempty"`
}
