// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package telemetry

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	promexporter "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// Errors returned by Init.
var (
	// ErrNilContext is returned when Init is called with a nil context.
	ErrNilContext = errors.New("telemetry: nil context")

	// ErrUnknownExporter is returned for an unsupported exporter name.
	ErrUnknownExporter = errors.New("telemetry: unknown exporter type")
)

// Exporter names. "" is treated as ExporterNone.
const (
	ExporterNone       = "none"
	ExporterStdout     = "stdout"
	ExporterOTLP       = "otlp"
	ExporterPrometheus = "prometheus"
)

// Config is the telemetry section of hotswap.yaml.
type Config struct {
	ServiceName    string `json:"service_name" yaml:"service_name"`
	ServiceVersion string `json:"service_version" yaml:"service_version"`
	Environment    string `json:"environment" yaml:"environment"`

	// TraceExporter is "otlp", "stdout" or "none".
	TraceExporter string `json:"trace_exporter" yaml:"trace_exporter" validate:"omitempty,oneof=otlp stdout none"`

	// MetricExporter is "prometheus", "stdout" or "none".
	MetricExporter string `json:"metric_exporter" yaml:"metric_exporter" validate:"omitempty,oneof=prometheus stdout none"`

	// OTLPEndpoint is the gRPC trace receiver, host:port.
	OTLPEndpoint string `json:"otlp_endpoint" yaml:"otlp_endpoint"`
	OTLPInsecure bool   `json:"otlp_insecure" yaml:"otlp_insecure"`

	// SampleRate is the fraction of root spans sampled. Child spans follow
	// their parent.
	SampleRate float64 `json:"sample_rate" yaml:"sample_rate" validate:"gte=0,lte=1"`
}

// DefaultConfig returns the defaults for a local hotswap process. Traces
// are off so `hotswap run` needs no collector; metrics are scraped from
// /metrics when serving.
//
// Environment overrides: HOTSWAP_ENV, OTEL_TRACES_EXPORTER,
// OTEL_METRICS_EXPORTER, OTEL_EXPORTER_OTLP_ENDPOINT.
func DefaultConfig() Config {
	return Config{
		ServiceName:    "hotswap",
		ServiceVersion: "0.1.0",
		Environment:    envOr("HOTSWAP_ENV", "development"),
		TraceExporter:  envOr("OTEL_TRACES_EXPORTER", ExporterNone),
		MetricExporter: envOr("OTEL_METRICS_EXPORTER", ExporterPrometheus),
		OTLPEndpoint:   envOr("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
		OTLPInsecure:   true,
		SampleRate:     1.0,
	}
}

func envOr(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

// Stack is an installed set of providers.
type Stack struct {
	tracer  *sdktrace.TracerProvider
	meter   *sdkmetric.MeterProvider
	metrics http.Handler
}

// Init builds the providers selected by cfg and installs them as the otel
// globals, together with the W3C trace-context and baggage propagators.
//
// Description:
//
//	Disabled signals keep the otel no-op providers, so instrumented code
//	never checks whether telemetry is on. The prometheus exporter writes to
//	a registry owned by the Stack, exposed through MetricsHandler along
//	with Go runtime and process collectors.
//
// Outputs:
//
//	*Stack - Call Shutdown on exit to flush exporters.
//	error  - ErrUnknownExporter for an unsupported name, or an exporter
//	         construction failure.
//
// Thread Safety: Call once at startup.
func Init(ctx context.Context, cfg Config) (*Stack, error) {
	if ctx == nil {
		return nil, ErrNilContext
	}

	res := resource.NewWithAttributes("",
		attribute.String("service.name", cfg.ServiceName),
		attribute.String("service.version", cfg.ServiceVersion),
		attribute.String("deployment.environment", cfg.Environment),
		attribute.Int("process.pid", os.Getpid()),
	)

	s := &Stack{}
	if err := s.initTraces(ctx, cfg, res); err != nil {
		return nil, err
	}
	if err := s.initMetrics(cfg, res); err != nil {
		_ = s.Shutdown(ctx)
		return nil, err
	}

	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	if s.tracer != nil {
		otel.SetTracerProvider(s.tracer)
	}
	if s.meter != nil {
		otel.SetMeterProvider(s.meter)
	}
	return s, nil
}

func (s *Stack) initTraces(ctx context.Context, cfg Config, res *resource.Resource) error {
	var (
		exporter sdktrace.SpanExporter
		err      error
	)
	switch cfg.TraceExporter {
	case "", ExporterNone:
		return nil
	case ExporterOTLP:
		opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.OTLPEndpoint)}
		if cfg.OTLPInsecure {
			opts = append(opts, otlptracegrpc.WithInsecure())
		}
		exporter, err = otlptracegrpc.New(ctx, opts...)
	case ExporterStdout:
		// stdout carries command output; spans go to stderr.
		exporter, err = stdouttrace.New(stdouttrace.WithWriter(os.Stderr))
	default:
		return fmt.Errorf("%w: trace %q", ErrUnknownExporter, cfg.TraceExporter)
	}
	if err != nil {
		return fmt.Errorf("create %s trace exporter: %w", cfg.TraceExporter, err)
	}

	s.tracer = sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler(cfg.SampleRate)),
	)
	return nil
}

func (s *Stack) initMetrics(cfg Config, res *resource.Resource) error {
	var reader sdkmetric.Reader
	switch cfg.MetricExporter {
	case "", ExporterNone:
		return nil
	case ExporterPrometheus:
		reg := prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		exporter, err := promexporter.New(promexporter.WithRegisterer(reg))
		if err != nil {
			return fmt.Errorf("create prometheus exporter: %w", err)
		}
		reader = exporter
		s.metrics = promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
	case ExporterStdout:
		exporter, err := stdoutmetric.New(stdoutmetric.WithWriter(os.Stderr))
		if err != nil {
			return fmt.Errorf("create stdout metric exporter: %w", err)
		}
		reader = sdkmetric.NewPeriodicReader(exporter)
	default:
		return fmt.Errorf("%w: metric %q", ErrUnknownExporter, cfg.MetricExporter)
	}

	s.meter = sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(reader),
	)
	return nil
}

// sampler samples root spans at rate and follows the parent otherwise.
func sampler(rate float64) sdktrace.Sampler {
	var root sdktrace.Sampler
	switch {
	case rate >= 1:
		root = sdktrace.AlwaysSample()
	case rate <= 0:
		root = sdktrace.NeverSample()
	default:
		root = sdktrace.TraceIDRatioBased(rate)
	}
	return sdktrace.ParentBased(root)
}

// MetricsHandler serves the prometheus registry of the stack. Nil unless the
// prometheus exporter is selected.
func (s *Stack) MetricsHandler() http.Handler {
	return s.metrics
}

// Shutdown flushes and stops the providers.
func (s *Stack) Shutdown(ctx context.Context) error {
	var errs []error
	if s.tracer != nil {
		errs = append(errs, s.tracer.Shutdown(ctx))
	}
	if s.meter != nil {
		errs = append(errs, s.meter.Shutdown(ctx))
	}
	return errors.Join(errs...)
}
