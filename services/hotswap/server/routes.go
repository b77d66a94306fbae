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
	"github.com/gin-gonic/gin"
)

// RegisterRoutes registers all hotswap routes with the router.
//
// Description:
//
//	Registers all /v1/hotswap/* endpoints with the given Gin router group.
//	The router group should already have any required middleware applied.
//
// Endpoints:
//
//	POST /v1/hotswap/contexts - Submit a source
//	PUT  /v1/hotswap/contexts/:id - Update a context
//	POST /v1/hotswap/contexts/:id/patch - Update a context with a unified diff
//	POST /v1/hotswap/contexts/:id/plan - Dry-run an update
//	GET  /v1/hotswap/contexts/:id/blocks - List blocks
//	GET  /v1/hotswap/contexts/:id/events - WebSocket stream of committed revisions
//	POST /v1/hotswap/handles/:id/call - Call a pinned function
//	GET  /v1/hotswap/health - Health check
func RegisterRoutes(rg *gin.RouterGroup, handlers *Handlers) {
	hs := rg.Group("/hotswap")
	{
		hs.POST("/contexts", handlers.HandleSubmit)
		hs.PUT("/contexts/:id", handlers.HandleUpdate)
		hs.POST("/contexts/:id/patch", handlers.HandlePatch)
		hs.POST("/contexts/:id/plan", handlers.HandlePlan)
		hs.GET("/contexts/:id/blocks", handlers.HandleBlocks)
		hs.GET("/contexts/:id/events", handlers.HandleEvents)

		hs.POST("/handles/:id/call", handlers.HandleCall)

		hs.GET("/health", handlers.HandleHealth)
	}
}
