// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package hotswap

import (
	"context"
	"sync"
	"time"

	"github.com/AleutianAI/hotswap/services/hotswap/match"
	"github.com/AleutianAI/hotswap/services/hotswap/telemetry"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "hotswap"

var meter = otel.Meter("hotswap")

// Metrics for sessions.
var (
	submitTotal    metric.Int64Counter
	updateTotal    metric.Int64Counter
	updateLatency  metric.Float64Histogram
	blockOutcomes  metric.Int64Counter
	recompileTotal metric.Int64Counter

	metricsOnce sync.Once
	metricsErr  error
)

// initMetrics initializes the metrics. Safe to call multiple times.
func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		submitTotal, err = meter.Int64Counter(
			"hotswap_submit_total",
			metric.WithDescription("Total number of submissions"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		updateTotal, err = meter.Int64Counter(
			"hotswap_update_total",
			metric.WithDescription("Total number of updates"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		updateLatency, err = meter.Float64Histogram(
			"hotswap_update_duration_seconds",
			metric.WithDescription("Duration of updates from parse to commit"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		blockOutcomes, err = meter.Int64Counter(
			"hotswap_blocks_total",
			metric.WithDescription("Blocks matched, added and retired by commits"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		recompileTotal, err = meter.Int64Counter(
			"hotswap_recompiles_total",
			metric.WithDescription("Block code handed to trampolines for compilation"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

func recordSubmit(ctx context.Context, success bool) {
	if err := initMetrics(); err != nil {
		return
	}
	submitTotal.Add(ctx, 1, metric.WithAttributes(attribute.Bool("success", success)))
}

func recordUpdate(ctx context.Context, duration time.Duration, success bool) {
	if err := initMetrics(); err != nil {
		return
	}
	attrs := metric.WithAttributes(attribute.Bool("success", success))
	updateTotal.Add(ctx, 1, attrs)
	updateLatency.Record(ctx, duration.Seconds(), attrs)
}

func recordPlan(ctx context.Context, plan *match.Plan) {
	if err := initMetrics(); err != nil {
		return
	}
	blockOutcomes.Add(ctx, int64(plan.Matched()), metric.WithAttributes(attribute.String("outcome", "matched")))
	blockOutcomes.Add(ctx, int64(plan.Added()), metric.WithAttributes(attribute.String("outcome", "added")))
	blockOutcomes.Add(ctx, int64(len(plan.Retired)), metric.WithAttributes(attribute.String("outcome", "retired")))
}

func recordRecompile(ctx context.Context) {
	if err := initMetrics(); err != nil {
		return
	}
	recompileTotal.Add(ctx, 1)
}

func startSessionSpan(ctx context.Context, op, contextID, name string) (context.Context, trace.Span) {
	return telemetry.StartSpan(ctx, tracerName, "Session."+op,
		trace.WithAttributes(
			attribute.String("context_id", contextID),
			attribute.String("name", name),
		),
	)
}
