// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package telemetry provides OpenTelemetry-based observability for hotswap.
//
// This package initializes the OTel SDK with opinionated defaults for tracing
// and metrics, while allowing backend flexibility through exporter configuration.
//
// # Philosophy
//
// OpenTelemetry IS the abstraction layer. Packages use otel.Tracer() and
// otel.Meter() directly; users swap backends by changing exporter
// configuration, not code.
//
// # Trace Backend
//
// Traces go to an OTLP receiver over gRPC, to stdout, or nowhere. The CLI
// defaults to "none" so a local run needs no collector.
//
// # Metrics Backend (default: Prometheus)
//
// Metrics are exposed at /metrics for scraping when the prometheus exporter
// is selected. Each Stack owns its registry, which also carries the Go
// runtime and process collectors. See Stack.MetricsHandler.
//
// # Logging
//
// Uses slog for structured logging. LoggerWithTrace injects trace_id and
// span_id into log entries for correlation.
//
// # Usage
//
//	cfg := telemetry.DefaultConfig()
//	stack, err := telemetry.Init(ctx, cfg)
//	if err != nil {
//	    return fmt.Errorf("init telemetry: %w", err)
//	}
//	defer stack.Shutdown(ctx)
//
// # Environment Variables
//
//   - OTEL_EXPORTER_OTLP_ENDPOINT: OTLP endpoint (default: localhost:4317)
//   - OTEL_TRACES_EXPORTER: otlp, stdout, or none (default: none)
//   - OTEL_METRICS_EXPORTER: prometheus, stdout, or none (default: prometheus)
//   - HOTSWAP_ENV: environment name (default: development)
//
// # Thread Safety
//
// All exported functions are safe for concurrent use after Init() returns.
package telemetry
