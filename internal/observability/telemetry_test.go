package observability_test

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel"

	"github.com/bobmcallan/hcm-mcp/internal/config"
	"github.com/bobmcallan/hcm-mcp/internal/observability"
)

func TestSetup_DisabledIsNoop(t *testing.T) {
	origTP := otel.GetTracerProvider()
	t.Cleanup(func() { otel.SetTracerProvider(origTP) })

	shutdown, err := observability.Setup(context.Background(), config.TelemetryConfig{Enabled: false}, "hcm-mcp")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if otel.GetTracerProvider() != origTP {
		t.Error("Disabled telemetry must not replace the global tracer provider")
	}
	if err := shutdown(context.Background()); err != nil {
		t.Errorf("Noop shutdown must not fail: %v", err)
	}
}

func TestSetup_EnabledInstallsProvider(t *testing.T) {
	origTP := otel.GetTracerProvider()
	t.Cleanup(func() { otel.SetTracerProvider(origTP) })

	cfg := config.TelemetryConfig{Enabled: true, Endpoint: "localhost:4318"}
	shutdown, err := observability.Setup(context.Background(), cfg, "hcm-mcp")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if otel.GetTracerProvider() == origTP {
		t.Error("Enabled telemetry must install a real tracer provider")
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	shutdown(ctx) // nothing exported; shutdown outcome is not asserted
}
