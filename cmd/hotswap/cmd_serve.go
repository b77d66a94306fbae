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
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/AleutianAI/hotswap/services/hotswap/config"
	"github.com/AleutianAI/hotswap/services/hotswap/server"
	"github.com/AleutianAI/hotswap/services/hotswap/telemetry"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func serve(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c := cfg
	if serveAddr != "" {
		c.Server.Addr = serveAddr
		if err := config.Validate(c); err != nil {
			return err
		}
	}
	return serveAPI(ctx, c, slog.Default())
}

// serveAPI runs the HTTP API until ctx is canceled.
func serveAPI(ctx context.Context, c config.Config, logger *slog.Logger) error {
	stack, err := telemetry.Init(ctx, c.Telemetry)
	if err != nil {
		return fmt.Errorf("failed to initialise telemetry: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := stack.Shutdown(flushCtx); err != nil {
			logger.Warn("Telemetry shutdown failed", "error", err)
		}
	}()

	opts, err := sessionOptions(c, logger)
	if err != nil {
		return err
	}
	svc := server.NewService(opts...)
	defer svc.Close()

	if c.Log.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	srvOpts := []server.Option{server.WithLogger(logger)}
	if h := stack.MetricsHandler(); h != nil {
		srvOpts = append(srvOpts, server.WithMetricsHandler(h))
	}
	srv := server.New(c.Server, svc, srvOpts...)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		stats := svc.Health()
		logger.Info("Shutting down",
			"contexts", stats.Contexts,
			"blocks", stats.Blocks,
			"handles", stats.Handles,
			"version", server.ServiceVersion)
		return nil
	})
	return g.Wait()
}
