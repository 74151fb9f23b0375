package observability

import (
	"context"
	"testing"

	"github.com/user/procengine/internal/config"
)

func TestInitOTLP_EmptyEndpointIsNoop(t *testing.T) {
	shutdown, err := InitOTLP(context.Background(), config.ObservabilityConfig{})
	if err != nil {
		t.Fatalf("InitOTLP: %v", err)
	}
	if shutdown == nil {
		t.Fatalf("expected a non-nil no-op shutdown func")
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("no-op shutdown must never error, got %v", err)
	}
}

func TestInitOTLP_ConfiguredEndpointBuildsProvider(t *testing.T) {
	shutdown, err := InitOTLP(context.Background(), config.ObservabilityConfig{
		OTLPEndpoint: "localhost:4317",
		OTLPInsecure: true,
		ServiceName:  "procengine-test",
	})
	if err != nil {
		t.Fatalf("InitOTLP: %v", err)
	}
	t.Cleanup(func() { _ = shutdown(context.Background()) })

	if Tracer == nil {
		t.Fatalf("Tracer must be set once a provider is installed")
	}

	ctx, span := Tracer.Start(context.Background(), "test-span")
	if !span.SpanContext().IsValid() {
		t.Fatalf("expected a valid span context from the installed tracer")
	}
	span.End()
	_ = ctx
}
