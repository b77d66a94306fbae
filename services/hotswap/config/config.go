// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config holds the settings of the hotswap CLI and server.
package config

import (
	"time"

	"github.com/AleutianAI/hotswap/services/hotswap/ast"
	"github.com/AleutianAI/hotswap/services/hotswap/telemetry"
)

// Config is the root of hotswap.yaml.
type Config struct {
	Diff      DiffConfig       `yaml:"diff"`
	Source    SourceConfig     `yaml:"source"`
	Log       LogConfig        `yaml:"log"`
	Watch     WatchConfig      `yaml:"watch"`
	Server    ServerConfig     `yaml:"server"`
	Telemetry telemetry.Config `yaml:"telemetry"`
}

// DiffConfig controls how function identity is carried across updates.
type DiffConfig struct {
	// Granularity is "character" or "line".
	Granularity string `yaml:"granularity" validate:"omitempty,oneof=character char line"`

	// Timeout bounds edit-script computation. Zero disables the deadline.
	Timeout time.Duration `yaml:"timeout" validate:"gte=0"`
}

// SourceConfig limits submitted sources.
type SourceConfig struct {
	MaxBytes int64 `yaml:"max_bytes" validate:"gt=0"`
}

// LogConfig selects the slog handler.
type LogConfig struct {
	Level string `yaml:"level" validate:"oneof=debug info warn error"`

	// Format is "text", "json", or "auto" (text on a terminal).
	Format string `yaml:"format" validate:"oneof=auto text json"`
}

// WatchConfig controls file watching for `hotswap run --watch`.
type WatchConfig struct {
	// Debounce coalesces bursts of writes into a single update.
	Debounce time.Duration `yaml:"debounce" validate:"gte=0"`
}

// ServerConfig controls `hotswap serve`.
type ServerConfig struct {
	Addr string `yaml:"addr" validate:"required,hostname_port"`

	// RateLimit is the sustained number of requests per second. Zero
	// disables throttling.
	RateLimit float64 `yaml:"rate_limit" validate:"gte=0"`
	Burst     int     `yaml:"burst" validate:"gte=0"`

	// MaxBodyBytes caps request bodies.
	MaxBodyBytes int64 `yaml:"max_body_bytes" validate:"gt=0"`

	// CallTimeout bounds a single job on the runtime worker.
	CallTimeout time.Duration `yaml:"call_timeout" validate:"gt=0"`

	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" validate:"gt=0"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Diff: DiffConfig{
			Granularity: "character",
		},
		Source: SourceConfig{
			MaxBytes: ast.DefaultMaxFileSize,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "auto",
		},
		Watch: WatchConfig{
			Debounce: 100 * time.Millisecond,
		},
		Server: ServerConfig{
			Addr:            "127.0.0.1:8087",
			RateLimit:       50,
			Burst:           100,
			MaxBodyBytes:    ast.DefaultMaxFileSize + 64*1024,
			CallTimeout:     10 * time.Second,
			ShutdownTimeout: 5 * time.Second,
		},
		Telemetry: telemetry.DefaultConfig(),
	}
}
