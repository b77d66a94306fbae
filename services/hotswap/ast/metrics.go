// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ast

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Package-level tracer and meter for function discovery.
var (
	tracer = otel.Tracer("hotswap.ast")
	meter  = otel.Meter("hotswap.ast")
)

// Metrics for parse operations.
var (
	parseLatency   metric.Float64Histogram
	parseTotal     metric.Int64Counter
	functionsFound metric.Int64Histogram
	parseErrors    metric.Int64Counter

	metricsOnce sync.Once
	metricsErr  error
)

// initMetrics initializes the metrics. Safe to call multiple times.
func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		parseLatency, err = meter.Float64Histogram(
			"hotswap_parse_duration_seconds",
			metric.WithDescription("Duration of function discovery parses"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		parseTotal, err = meter.Int64Counter(
			"hotswap_parse_total",
			metric.WithDescription("Total number of parse operations"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		functionsFound, err = meter.Int64Histogram(
			"hotswap_parse_functions",
			metric.WithDescription("Number of function nodes discovered per parse"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		parseErrors, err = meter.Int64Counter(
			"hotswap_parse_errors_total",
			metric.WithDescription("Total number of failed parses"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

// recordParseMetrics records metrics for a parse operation.
func recordParseMetrics(ctx context.Context, duration time.Duration, functionCount int, success bool) {
	if err := initMetrics(); err != nil {
		return // Silently skip if metrics init failed
	}

	attrs := metric.WithAttributes(attribute.Bool("success", success))
	parseLatency.Record(ctx, duration.Seconds(), attrs)
	parseTotal.Add(ctx, 1, attrs)

	if success {
		functionsFound.Record(ctx, int64(functionCount))
	} else {
		parseErrors.Add(ctx, 1)
	}
}

// startParseSpan creates a span for a parse operation.
func startParseSpan(ctx context.Context, label string, contentSize int) (context.Context, trace.Span) {
	return tracer.Start(ctx, "ast.Parser.Parse",
		trace.WithAttributes(
			attribute.String("label", label),
			attribute.Int("content_size", contentSize),
		),
	)
}
