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
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/AleutianAI/hotswap/services/hotswap"
	"github.com/AleutianAI/hotswap/services/hotswap/config"
	"github.com/AleutianAI/hotswap/services/hotswap/diff"
	"github.com/AleutianAI/hotswap/services/hotswap/match"
	"github.com/AleutianAI/hotswap/services/hotswap/registry"
	"github.com/dop251/goja"
	"github.com/spf13/cobra"
)

var (
	// ErrPlanInput is returned when plan gets both or neither of NEW and --patch.
	ErrPlanInput = errors.New("plan needs exactly one of NEW or --patch")

	// ErrUnknownFormat is returned for an unsupported --format.
	ErrUnknownFormat = errors.New("unknown output format")
)

// skipEvaluation stands in for the runtime so planning never executes code.
// Rewritten units are still compiled.
var skipEvaluation = hotswap.EvaluatorFunc(func(*goja.Runtime, string, string) (goja.Value, error) {
	return goja.Undefined(), nil
})

func planSources(cmd *cobra.Command, args []string) error {
	newPath := ""
	if len(args) == 2 {
		newPath = args[1]
	}
	return planFiles(cmd.Context(), cmd.OutOrStdout(), cfg, args[0], newPath, patchPath, planFormat)
}

// planFiles prints the plan of the second revision of oldPath's context.
func planFiles(ctx context.Context, out io.Writer, c config.Config, oldPath, newPath, patch, format string) error {
	if (newPath == "") == (patch == "") {
		return ErrPlanInput
	}
	if format != "text" && format != "json" {
		return fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}

	oldSource, err := os.ReadFile(oldPath)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", oldPath, err)
	}

	var newSource string
	if patch != "" {
		data, err := os.ReadFile(patch)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", patch, err)
		}
		if newSource, err = diff.ApplyPatch(string(oldSource), string(data)); err != nil {
			return fmt.Errorf("patch %s: %w", patch, err)
		}
	} else {
		data, err := os.ReadFile(newPath)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", newPath, err)
		}
		newSource = string(data)
	}

	opts, err := sessionOptions(c, slog.Default().With("path", oldPath))
	if err != nil {
		return err
	}
	opts = append(opts,
		hotswap.WithName(filepath.Base(oldPath)),
		hotswap.WithEvaluator(skipEvaluation))

	sess, err := hotswap.Submit(ctx, registry.New(), string(oldSource), opts...)
	if err != nil {
		return err
	}
	plan, err := sess.Plan(ctx, newSource)
	if err != nil {
		return err
	}
	return writePlan(out, plan.Summary(), format)
}

func writePlan(out io.Writer, s match.Summary, format string) error {
	if format == "json" {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(s)
	}

	fmt.Fprintf(out, "revision %d: %d matched, %d added, %d retired (%d equal, %d inserted, %d deleted bytes)\n",
		s.Revision, len(s.Matched), len(s.Added), len(s.Retired),
		s.Diff.Equal, s.Diff.Inserted, s.Diff.Deleted)

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	for _, b := range s.Matched {
		fmt.Fprintf(tw, "matched\t%s\t%s\t%s\t%s\t(was %s)\n", b.ID, b.Kind, displayName(b.Name), b.Range.Key(), b.PrevRange.Key())
	}
	for _, b := range s.Added {
		fmt.Fprintf(tw, "added\t%s\t%s\t%s\t%s\t\n", b.ID, b.Kind, displayName(b.Name), b.Range.Key())
	}
	for _, id := range s.Retired {
		fmt.Fprintf(tw, "retired\t%s\t\t\t\t\n", id)
	}
	return tw.Flush()
}

func displayName(name string) string {
	if name == "" {
		return "(anonymous)"
	}
	return name
}
