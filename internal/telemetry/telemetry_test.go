package telemetry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/suzieq/ceo-office/internal/config"
)

func TestInitDisabledIsNoop(t *testing.T) {
	p, err := Init(context.Background(), config.TelemetryConfig{Enabled: false})
	if err != nil {
		t.Fatal(err)
	}
	if p.Tracer == nil || p.Metrics == nil {
		t.Fatal("expected noop tracer and metrics")
	}
	ctx, span := p.StartSpan(context.Background(), "test")
	span.End()
	p.Metrics.RecordBrainCall(ctx, time.Now(), errors.New("boom"))
	p.Metrics.RecordTick(ctx, "ran")
	if err := p.Shutdown(ctx); err != nil {
		t.Fatal(err)
	}
}

func TestInitStdoutExporter(t *testing.T) {
	p, err := Init(context.Background(), config.TelemetryConfig{Enabled: true, Exporter: "stdout", ServiceName: "suzieq-test"})
	if err != nil {
		t.Fatal(err)
	}
	defer p.Shutdown(context.Background())
	p.Metrics.RecordTask(context.Background(), "done")
}

func TestInitRejectsUnknownExporter(t *testing.T) {
	if _, err := Init(context.Background(), config.TelemetryConfig{Enabled: true, Exporter: "zipkin"}); err == nil {
		t.Fatal("expected error for unknown exporter")
	}
}

func TestNilReceiversAreSafe(t *testing.T) {
	var m *Metrics
	m.RecordRecall(context.Background(), 3)
	var p *Provider
	_, span := p.StartSpan(context.Background(), "nil")
	span.End()
	if err := p.Shutdown(context.Background()); err != nil {
		t.Fatal(err)
	}
}
