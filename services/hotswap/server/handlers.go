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
	"errors"
	"log/slog"
	"net/http"

	"github.com/AleutianAI/hotswap/services/hotswap"
	"github.com/AleutianAI/hotswap/services/hotswap/diff"
	"github.com/AleutianAI/hotswap/services/hotswap/registry"
	"github.com/gin-gonic/gin"
)

// ServiceVersion is the hotswap service version.
const ServiceVersion = "0.1.0"

// Handlers contains the HTTP handlers for the hotswap API.
type Handlers struct {
	svc    *Service
	logger *slog.Logger
}

// NewHandlers creates handlers for the given service.
func NewHandlers(svc *Service, logger *slog.Logger) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{svc: svc, logger: logger}
}

func (h *Handlers) requestLogger(c *gin.Context, handler string) *slog.Logger {
	return h.logger.With(requestIDKey, c.GetString(requestIDKey), "handler", handler)
}

// HandleSubmit handles POST /v1/hotswap/contexts.
//
// Description:
//
//	Evaluates a source in a new context. A function result is pinned and
//	returned as a handle for later calls.
//
// Request Body:
//
//	SubmitRequest
//
// Response:
//
//	201 Created: SubmitResponse
//	400 Bad Request: Validation error
//	422 Unprocessable Entity: Parse or execution failure
func (h *Handlers) HandleSubmit(c *gin.Context) {
	logger := h.requestLogger(c, "HandleSubmit")

	var req SubmitRequest
	if !h.bind(c, logger, &req) {
		return
	}

	resp, err := h.svc.Submit(c.Request.Context(), req)
	if err != nil {
		h.fail(c, logger, err)
		return
	}

	logger.Info("Context submitted", "context_id", resp.ContextID)
	c.JSON(http.StatusCreated, resp)
}

// HandleUpdate handles PUT /v1/hotswap/contexts/:id.
//
// Response:
//
//	200 OK: match.Summary of the committed revision
//	404 Not Found: Unknown context
//	422 Unprocessable Entity: Parse or compile failure, nothing committed
func (h *Handlers) HandleUpdate(c *gin.Context) {
	logger := h.requestLogger(c, "HandleUpdate")

	var req UpdateRequest
	if !h.bind(c, logger, &req) {
		return
	}

	resp, err := h.svc.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		h.fail(c, logger, err)
		return
	}

	logger.Info("Context updated",
		"context_id", resp.ContextID,
		"revision", resp.Revision,
		"matched", len(resp.Matched),
		"added", len(resp.Added),
		"retired", len(resp.Retired))
	c.JSON(http.StatusOK, resp)
}

// HandlePatch handles POST /v1/hotswap/contexts/:id/patch.
func (h *Handlers) HandlePatch(c *gin.Context) {
	logger := h.requestLogger(c, "HandlePatch")

	var req PatchRequest
	if !h.bind(c, logger, &req) {
		return
	}

	resp, err := h.svc.Patch(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		h.fail(c, logger, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// HandlePlan handles POST /v1/hotswap/contexts/:id/plan.
//
// Reports matched, added and retired blocks without committing.
func (h *Handlers) HandlePlan(c *gin.Context) {
	logger := h.requestLogger(c, "HandlePlan")

	var req UpdateRequest
	if !h.bind(c, logger, &req) {
		return
	}

	resp, err := h.svc.Plan(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		h.fail(c, logger, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// HandleBlocks handles GET /v1/hotswap/contexts/:id/blocks.
func (h *Handlers) HandleBlocks(c *gin.Context) {
	resp, err := h.svc.Blocks(c.Param("id"))
	if err != nil {
		h.fail(c, h.requestLogger(c, "HandleBlocks"), err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// HandleCall handles POST /v1/hotswap/handles/:id/call.
//
// Response:
//
//	200 OK: CallResponse
//	404 Not Found: Unknown handle
//	422 Unprocessable Entity: The function threw
//	504 Gateway Timeout: The call exceeded the job timeout and was interrupted
func (h *Handlers) HandleCall(c *gin.Context) {
	logger := h.requestLogger(c, "HandleCall")

	var req CallRequest
	if c.Request.ContentLength != 0 && !h.bind(c, logger, &req) {
		return
	}

	resp, err := h.svc.Call(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		h.fail(c, logger, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// HandleHealth handles GET /v1/hotswap/health.
func (h *Handlers) HandleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, h.svc.Health())
}

// bind decodes and validates the JSON body, writing a 4xx response on
// failure.
func (h *Handlers) bind(c *gin.Context, logger *slog.Logger, req any) bool {
	err := c.ShouldBindJSON(req)
	if err == nil {
		return true
	}

	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		logger.Warn("Request body too large", "limit", tooLarge.Limit)
		c.JSON(http.StatusRequestEntityTooLarge, ErrorResponse{
			Error: "Request body too large",
			Code:  "BODY_TOO_LARGE",
		})
		return false
	}

	logger.Warn("Invalid request body", "error", err)
	c.JSON(http.StatusBadRequest, ErrorResponse{
		Error:   "Invalid request body",
		Code:    "INVALID_REQUEST",
		Details: err.Error(),
	})
	return false
}

// fail maps service errors to status codes.
func (h *Handlers) fail(c *gin.Context, logger *slog.Logger, err error) {
	status, code := classify(err)
	if status >= http.StatusInternalServerError {
		logger.Error("Request failed", "error", err)
	} else {
		logger.Warn("Request rejected", "error", err)
	}
	c.JSON(status, ErrorResponse{
		Error:   http.StatusText(status),
		Code:    code,
		Details: err.Error(),
	})
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, registry.ErrUnknownContext):
		return http.StatusNotFound, "CONTEXT_NOT_FOUND"
	case errors.Is(err, ErrUnknownHandle):
		return http.StatusNotFound, "HANDLE_NOT_FOUND"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "TIMEOUT"
	case errors.Is(err, context.Canceled):
		return http.StatusRequestTimeout, "CANCELED"
	case errors.Is(err, hotswap.ErrParse):
		return http.StatusUnprocessableEntity, "PARSE_ERROR"
	case errors.Is(err, hotswap.ErrExecution):
		return http.StatusUnprocessableEntity, "EXECUTION_ERROR"
	case errors.Is(err, diff.ErrPatchMismatch):
		return http.StatusConflict, "PATCH_MISMATCH"
	case errors.Is(err, diff.ErrInvalidPatch), errors.Is(err, diff.ErrPatchFileCount):
		return http.StatusBadRequest, "INVALID_PATCH"
	case errors.Is(err, diff.ErrUnknownGranularity):
		return http.StatusBadRequest, "INVALID_GRANULARITY"
	case errors.Is(err, hotswap.ErrNotFunction):
		return http.StatusBadRequest, "NOT_A_FUNCTION"
	case errors.Is(err, ErrWorkerStopped):
		return http.StatusServiceUnavailable, "UNAVAILABLE"
	default:
		return http.StatusInternalServerError, "INTERNAL"
	}
}
