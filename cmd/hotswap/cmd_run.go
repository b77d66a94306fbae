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
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/AleutianAI/hotswap/services/hotswap"
	"github.com/AleutianAI/hotswap/services/hotswap/config"
	"github.com/AleutianAI/hotswap/services/hotswap/diff"
	"github.com/AleutianAI/hotswap/services/hotswap/registry"
	"github.com/AleutianAI/hotswap/services/hotswap/watch"
	"github.com/dop251/goja"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func runSource(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return runFile(ctx, cmd.OutOrStdout(), cfg, runOptions{
		path:  args[0],
		call:  callExpr,
		watch: watchSource,
	})
}

type runOptions struct {
	path  string
	call  string
	watch bool
}

// runFile submits the file at ro.path and prints its result. In watch mode
// it blocks until ctx is canceled, applying each save as a new revision.
func runFile(ctx context.Context, out io.Writer, c config.Config, ro runOptions) error {
	logger := slog.Default().With("path", ro.path)

	opts, err := sessionOptions(c, logger)
	if err != nil {
		return err
	}
	opts = append(opts, hotswap.WithName(filepath.Base(ro.path)))

	source, err := os.ReadFile(ro.path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", ro.path, err)
	}

	sess, err := hotswap.Submit(ctx, registry.New(), string(source), opts...)
	if err != nil {
		return err
	}
	if err := report(out, sess, ro.call); err != nil {
		return err
	}
	if !ro.watch {
		return nil
	}
	return watchFile(ctx, out, sess, c.Watch, ro, logger)
}

// watchFile applies saves of ro.path to sess until ctx is canceled.
//
// The watcher only signals; updates run on their own goroutine so a slow
// top-level script does not stall the event loop. Signals arriving during an
// update coalesce into one follow-up update.
func watchFile(ctx context.Context, out io.Writer, sess *hotswap.Session, wc config.WatchConfig, ro runOptions, logger *slog.Logger) error {
	pending := make(chan struct{}, 1)

	w, err := watch.New(ro.path, func(_ context.Context, change watch.Change) {
		if change.Op == watch.OpRemove {
			logger.Warn("Source removed, keeping the last revision")
			return
		}
		select {
		case pending <- struct{}{}:
		default:
		}
	}, watch.WithDebounce(wc.Debounce), watch.WithLogger(logger))
	if err != nil {
		return err
	}
	defer w.Close()

	logger.Info("Watching for changes", "context_id", sess.ID())

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return w.Run(gctx)
	})
	g.Go(func() error {
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-pending:
			}
			if err := applyRevision(gctx, out, sess, ro, logger); err != nil {
				logger.Error("Revision rejected", "error", err)
			}
		}
	})
	return g.Wait()
}

func applyRevision(ctx context.Context, out io.Writer, sess *hotswap.Session, ro runOptions, logger *slog.Logger) error {
	source, err := os.ReadFile(ro.path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", ro.path, err)
	}
	if string(source) == sess.Source() {
		return nil
	}
	if err := sess.Update(ctx, string(source)); err != nil {
		return err
	}

	plan := sess.LastPlan()
	logger.Info("Revision applied",
		"revision", sess.Revision(),
		"matched", plan.Matched(),
		"added", plan.Added(),
		"retired", len(plan.Retired))

	if ro.call == "" {
		return nil
	}
	return report(out, sess, ro.call)
}

// report prints the value of call, or the submission result when call is
// empty.
func report(out io.Writer, sess *hotswap.Session, call string) error {
	v := sess.Result()
	if call != "" {
		var err error
		if v, err = sess.Run(call); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintln(out, formatValue(v))
	return err
}

func formatValue(v goja.Value) string {
	switch {
	case v == nil || goja.IsUndefined(v):
		return "undefined"
	case goja.IsNull(v):
		return "null"
	}
	if _, ok := goja.AssertFunction(v); ok {
		return "[Function]"
	}

	exported := v.Export()
	if s, ok := exported.(string); ok {
		return s
	}
	data, err := json.Marshal(exported)
	if err != nil {
		return v.String()
	}
	return string(data)
}

// sessionOptions translates the configuration into session options.
func sessionOptions(c config.Config, logger *slog.Logger) ([]hotswap.Option, error) {
	g, err := diff.ParseGranularity(c.Diff.Granularity)
	if err != nil {
		return nil, err
	}
	return []hotswap.Option{
		hotswap.WithDiffGranularity(g),
		hotswap.WithDiffTimeout(c.Diff.Timeout),
		hotswap.WithMaxSourceSize(c.Source.MaxBytes),
		hotswap.WithLogger(logger),
	}, nil
}
