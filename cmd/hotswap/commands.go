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
	"fmt"
	"log/slog"

	"github.com/AleutianAI/hotswap/services/hotswap/config"
	"github.com/spf13/cobra"
)

// --- Global Command Variables ---
var (
	configPath string
	cfg        config.Config

	watchSource bool
	callExpr    string
	lineDiff    bool
	patchPath   string
	planFormat  string
	serveAddr   string

	rootCmd = &cobra.Command{
		Use:   "hotswap",
		Short: "Run JavaScript with live function replacement",
		Long: `hotswap evaluates a JavaScript source and keeps every function in it
replaceable. Later revisions of the source swap function bodies in place,
so references already handed out pick up the new code on their next call.`,
		SilenceUsage:      true,
		PersistentPreRunE: loadConfig,
	}

	runCmd = &cobra.Command{
		Use:   "run FILE",
		Short: "Evaluate a file and print its result",
		Long: `Evaluates FILE and prints the completion value, or the value of --call.
With --watch every save of FILE is applied as a new revision of the same
context and --call is evaluated again.`,
		Args: cobra.ExactArgs(1),
		RunE: runSource, // Defined in cmd_run.go
	}

	planCmd = &cobra.Command{
		Use:   "plan OLD [NEW]",
		Short: "Show which functions survive from OLD to NEW",
		Long: `Prints the matched, added and retired functions of NEW relative to OLD.
NEW may be replaced by a unified diff against OLD with --patch. No code is
executed.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: planSources, // Defined in cmd_plan.go
	}

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Serve the hotswap HTTP API",
		Args:  cobra.NoArgs,
		RunE:  serve, // Defined in cmd_serve.go
	}

	configCmd = &cobra.Command{
		Use:   "config",
		Short: "Manage the hotswap configuration file",
	}
	configInitCmd = &cobra.Command{
		Use:   "init PATH",
		Short: "Write the default configuration to PATH",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := config.WriteDefault(args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", args[0])
			return nil
		},
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "",
		"Path to a hotswap.yaml file (defaults are used when empty)")

	runCmd.Flags().BoolVarP(&watchSource, "watch", "w", false, "Apply every save of FILE as a new revision")
	runCmd.Flags().StringVar(&callExpr, "call", "", "Expression to evaluate and print after each revision")
	runCmd.Flags().BoolVar(&lineDiff, "line-diff", false, "Align revisions line by line instead of by character")

	planCmd.Flags().StringVar(&patchPath, "patch", "", "Unified diff to apply to OLD instead of reading NEW")
	planCmd.Flags().BoolVar(&lineDiff, "line-diff", false, "Align revisions line by line instead of by character")
	planCmd.Flags().StringVarP(&planFormat, "format", "f", "text", "Output format: text or json")

	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (overrides server.addr)")

	configCmd.AddCommand(configInitCmd)
	rootCmd.AddCommand(runCmd, planCmd, serveCmd, configCmd)
}

// loadConfig reads --config and installs the process logger.
func loadConfig(cmd *cobra.Command, _ []string) error {
	c, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if lineDiff {
		c.Diff.Granularity = "line"
	}
	cfg = c
	slog.SetDefault(newLogger(cmd.ErrOrStderr(), cfg.Log))
	return nil
}
