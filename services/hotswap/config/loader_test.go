// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "hotswap.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoad_EmptyPathReturnsDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_OverridesDefaults(t *testing.T) {
	path := writeFile(t, `
diff:
  granularity: line
  timeout: 250ms
watch:
  debounce: 1s
server:
  addr: "0.0.0.0:9000"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "line", cfg.Diff.Granularity)
	assert.Equal(t, 250*time.Millisecond, cfg.Diff.Timeout)
	assert.Equal(t, time.Second, cfg.Watch.Debounce)
	assert.Equal(t, "0.0.0.0:9000", cfg.Server.Addr)

	// untouched sections keep their defaults
	assert.Equal(t, Default().Log, cfg.Log)
	assert.Equal(t, Default().Server.CallTimeout, cfg.Server.CallTimeout)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{name: "granularity", content: "diff:\n  granularity: word\n"},
		{name: "log level", content: "log:\n  level: verbose\n"},
		{name: "address", content: "server:\n  addr: nowhere\n"},
		{name: "sample rate", content: "telemetry:\n  sample_rate: 2\n"},
		{name: "source size", content: "source:\n  max_bytes: 0\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeFile(t, tt.content))
			assert.ErrorIs(t, err, ErrInvalid)
		})
	}
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)

	_, err = Load(writeFile(t, "diff: [unclosed"))
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrInvalid)
}

func TestWriteDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "hotswap.yaml")
	require.NoError(t, WriteDefault(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var cfg Config
	require.NoError(t, yaml.Unmarshal(data, &cfg))
	assert.Equal(t, Default(), cfg)
}

func TestLogConfig_SlogLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, LogConfig{Level: "debug"}.SlogLevel())
	assert.Equal(t, slog.LevelInfo, LogConfig{Level: "info"}.SlogLevel())
	assert.Equal(t, slog.LevelWarn, LogConfig{Level: "warn"}.SlogLevel())
	assert.Equal(t, slog.LevelError, LogConfig{Level: "error"}.SlogLevel())
}
