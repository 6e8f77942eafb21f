package otel_test

import (
	"context"
	"testing"

	"github.com/openintentos/openintent/internal/otel"
)

func TestInitDisabledIsNoOp(t *testing.T) {
	ctx := context.Background()
	p, err := otel.Init(ctx, otel.Config{Enabled: false})
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	if p.Tracer == nil || p.Meter == nil {
		t.Fatal("disabled provider must still expose tracer and meter")
	}

	_, span := p.Tracer.Start(ctx, "test.span")
	span.End()

	if err := p.Shutdown(ctx); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}

func TestInitStdoutExporter(t *testing.T) {
	ctx := context.Background()
	p, err := otel.Init(ctx, otel.Config{Enabled: true, Exporter: "stdout"})
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	defer func() { _ = p.Shutdown(ctx) }()

	if p.TracerProvider == nil {
		t.Fatal("expected real tracer provider")
	}
}

func TestInitRejectsUnknownExporter(t *testing.T) {
	if _, err := otel.Init(context.Background(), otel.Config{Enabled: true, Exporter: "carrier-pigeon"}); err == nil {
		t.Fatal("expected error for unknown exporter")
	}
}

func TestNewMetrics(t *testing.T) {
	ctx := context.Background()
	p, err := otel.Init(ctx, otel.Config{Enabled: false})
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	m, err := otel.NewMetrics(p.Meter)
	if err != nil {
		t.Fatalf("new metrics: %v", err)
	}
	if m.TokensUsed == nil || m.StepsExecuted == nil {
		t.Fatal("instruments not created")
	}

	m.TokensUsed.Add(ctx, 42)
	m.DevTasksActive.Add(ctx, 1)
	m.DevTasksActive.Add(ctx, -1)
}
