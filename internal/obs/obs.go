// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package obs wires the process-wide OpenTelemetry tracer/meter providers
// and the Prometheus registry, matching the tracer-plus-metrics pattern
// every instrumented package in the teacher's routing/providers/llm
// packages repeats (package-level promauto metrics, a package-level
// otel.Tracer, spans started per operation). Individual packages keep
// owning their own metric vars; this package only owns process wiring
// and the few cross-cutting metrics that don't belong to one component.
package obs

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	stdoutmetric "go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	stdouttrace "go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
)

// Shutdown flushes and stops the providers Setup installed. Safe to call
// once; callers typically defer it from main.
type Shutdown func(context.Context) error

// Setup installs a global TracerProvider exporting spans to stdout (no
// OTLP collector is assumed to be running anywhere this core deploys, per
// SPEC_FULL.md's observability section) and returns a Shutdown to flush
// on process exit. serviceName tags every span's resource attributes.
func Setup(ctx context.Context, serviceName string) (Shutdown, error) {
	exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
	if err != nil {
		return nil, fmt.Errorf("obs: creating stdout trace exporter: %w", err)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceName(serviceName)),
	)
	if err != nil {
		return nil, fmt.Errorf("obs: building resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)

	metricExporter, err := stdoutmetric.New()
	if err != nil {
		return nil, fmt.Errorf("obs: creating stdout metric exporter: %w", err)
	}
	mp := metric.NewMeterProvider(
		metric.WithReader(metric.NewPeriodicReader(metricExporter)),
		metric.WithResource(res),
	)
	otel.SetMeterProvider(mp)

	return func(ctx context.Context) error {
		if err := tp.Shutdown(ctx); err != nil {
			return fmt.Errorf("obs: shutting down tracer provider: %w", err)
		}
		if err := mp.Shutdown(ctx); err != nil {
			return fmt.Errorf("obs: shutting down meter provider: %w", err)
		}
		return nil
	}, nil
}

// Tracer returns a named tracer off the globally installed TracerProvider,
// the same `otel.Tracer("<dotted.name>")` idiom escalating_router.go uses
// at package scope. Safe to call before Setup — otel.Tracer falls back to
// a no-op implementation until a real TracerProvider is installed.
func Tracer(name string) trace.Tracer {
	return otel.Tracer(name)
}
