package tracing

import (
	"context"
	"testing"
	"time"

	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/nextlevelbuilder/autoreply/internal/config"
)

func TestInitDisabled(t *testing.T) {
	for _, cfg := range []config.TelemetryConfig{
		{Enabled: false, Endpoint: "localhost:4317"},
		{Enabled: true, Endpoint: ""},
	} {
		shutdown, err := Init(context.Background(), cfg, "test")
		if err != nil {
			t.Fatalf("Init(%+v) = %v", cfg, err)
		}
		if err := shutdown(context.Background()); err != nil {
			t.Errorf("shutdown = %v", err)
		}
	}
}

func TestInitUnknownProtocol(t *testing.T) {
	_, err := Init(context.Background(), config.TelemetryConfig{
		Enabled: true, Endpoint: "localhost:4317", Protocol: "carrier-pigeon",
	}, "test")
	if err == nil {
		t.Error("Init() with unknown protocol = nil error")
	}
}

func TestInitInstallsProvider(t *testing.T) {
	prev := otel.GetTracerProvider()
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	tests := []struct {
		name string
		cfg  config.TelemetryConfig
	}{
		{"grpc", config.TelemetryConfig{Enabled: true, Endpoint: "127.0.0.1:4317", Insecure: true}},
		{"http url", config.TelemetryConfig{Enabled: true, Endpoint: "http://127.0.0.1:4318", Protocol: "http"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			shutdown, err := Init(context.Background(), tt.cfg, "test")
			if err != nil {
				t.Fatalf("Init() = %v", err)
			}
			if _, ok := otel.GetTracerProvider().(*sdktrace.TracerProvider); !ok {
				t.Errorf("global provider = %T, want *sdktrace.TracerProvider", otel.GetTracerProvider())
			}
			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			shutdown(ctx)
		})
	}
}
