// Package observability bootstraps the OpenTelemetry tracer provider used to
// wrap façade calls and operator executions, grounded on the reference
// engine's internal/observability/otel.go InitOTLP. Trimmed to the
// trace-only path — this domain's periodic numeric series are already
// served by the Prometheus counters in pkg/engine (see DESIGN.md), so no
// OTLP metric exporter is wired.
package observability

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	tracepkg "go.opentelemetry.io/otel/trace"

	"github.com/user/procengine/internal/config"
)

// Tracer is the process-wide tracer procengine's façade and operator loop
// pull spans from.
var Tracer tracepkg.Tracer = otel.Tracer("procengine")

// InitOTLP initializes the OpenTelemetry SDK's tracer provider. If
// cfg.OTLPEndpoint is empty, tracing is a no-op and Shutdown does nothing —
// mirroring InitOTLP's own empty-endpoint short circuit.
func InitOTLP(ctx context.Context, cfg config.ObservabilityConfig) (func(context.Context) error, error) {
	if cfg.OTLPEndpoint == "" {
		return func(context.Context) error { return nil }, nil
	}

	res, err := resource.New(ctx, resource.WithAttributes(semconv.ServiceName(cfg.ServiceName)))
	if err != nil {
		return nil, fmt.Errorf("procengine: build otel resource: %w", err)
	}

	opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.OTLPEndpoint)}
	if cfg.OTLPInsecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}
	exporter, err := otlptracegrpc.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("procengine: build otlp trace exporter: %w", err)
	}

	tp := trace.NewTracerProvider(trace.WithBatcher(exporter), trace.WithResource(res))
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))
	Tracer = tp.Tracer("procengine")

	return tp.Shutdown, nil
}
