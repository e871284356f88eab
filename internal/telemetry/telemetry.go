// Package telemetry wires OpenTelemetry traces and metrics for the office.
// When disabled every provider is a no-op.
package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
	nooptrace "go.opentelemetry.io/otel/trace/noop"

	"github.com/suzieq/ceo-office/internal/config"
)

const (
	// ScopeName is the instrumentation scope for traces and metrics.
	ScopeName = "suzieq"
	// Version is reported as a resource attribute.
	Version = "v0.3.0"
)

// Span attribute keys.
var (
	AttrDepartment = attribute.Key("suzieq.department")
	AttrRole       = attribute.Key("suzieq.role")
	AttrSource     = attribute.Key("suzieq.source")
	AttrTaskID     = attribute.Key("suzieq.task.id")
	AttrTool       = attribute.Key("suzieq.tool")
	AttrStatus     = attribute.Key("status")
)

// Provider owns the tracer and meter providers.
type Provider struct {
	Tracer   trace.Tracer
	Meter    metric.Meter
	Metrics  *Metrics
	shutdown func(context.Context) error
}

// Init sets up telemetry. Shutdown must be called on exit.
func Init(ctx context.Context, cfg config.TelemetryConfig) (*Provider, error) {
	if !cfg.Enabled {
		return Noop(), nil
	}

	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = ScopeName
	}
	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(serviceName),
			attribute.String("suzieq.version", Version),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("create resource: %w", err)
	}

	exporter, err := createExporter(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create exporter: %w", err)
	}

	sampleRate := cfg.SampleRate
	if sampleRate <= 0 {
		sampleRate = 1.0
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(sampleRate))),
	)
	otel.SetTracerProvider(tp)

	mp := sdkmetric.NewMeterProvider(sdkmetric.WithResource(res))
	meter := mp.Meter(ScopeName)
	metrics, err := NewMetrics(meter)
	if err != nil {
		return nil, fmt.Errorf("create metrics: %w", err)
	}

	return &Provider{
		Tracer:  tp.Tracer(ScopeName),
		Meter:   meter,
		Metrics: metrics,
		shutdown: func(ctx context.Context) error {
			tErr := tp.Shutdown(ctx)
			mErr := mp.Shutdown(ctx)
			if tErr != nil {
				return tErr
			}
			return mErr
		},
	}, nil
}

// Noop returns a provider that records nothing.
func Noop() *Provider {
	meter := noop.NewMeterProvider().Meter(ScopeName)
	// Instrument creation on a noop meter cannot fail.
	metrics, _ := NewMetrics(meter)
	return &Provider{
		Tracer:   nooptrace.NewTracerProvider().Tracer(ScopeName),
		Meter:    meter,
		Metrics:  metrics,
		shutdown: func(context.Context) error { return nil },
	}
}

// Shutdown flushes and stops the providers.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p == nil || p.shutdown == nil {
		return nil
	}
	return p.shutdown(ctx)
}

// StartSpan starts an internal span. A nil provider yields a no-op span.
func (p *Provider) StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	tracer := trace.Tracer(nooptrace.NewTracerProvider().Tracer(ScopeName))
	if p != nil && p.Tracer != nil {
		tracer = p.Tracer
	}
	return tracer.Start(ctx, name,
		trace.WithAttributes(attrs...),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
}

func createExporter(ctx context.Context, cfg config.TelemetryConfig) (sdktrace.SpanExporter, error) {
	switch cfg.Exporter {
	case "otlp-http":
		endpoint := cfg.Endpoint
		if endpoint == "" {
			endpoint = "localhost:4318"
		}
		return otlptracehttp.New(ctx,
			otlptracehttp.WithEndpoint(endpoint),
			otlptracehttp.WithInsecure(),
		)
	case "stdout", "":
		return stdouttrace.New(stdouttrace.WithPrettyPrint())
	default:
		return nil, fmt.Errorf("unknown exporter: %s (supported: otlp-http, stdout)", cfg.Exporter)
	}
}

// Metrics holds the office's instruments. All record methods are nil-safe.
type Metrics struct {
	BrainCalls    metric.Int64Counter
	BrainFailures metric.Int64Counter
	BrainDuration metric.Float64Histogram
	RecallResults metric.Int64Histogram
	AutonomyTicks metric.Int64Counter
	AutonomyTasks metric.Int64Counter
}

// NewMetrics creates all instruments from meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}
	var err error

	if m.BrainCalls, err = meter.Int64Counter("suzieq.brain.calls",
		metric.WithDescription("Decision service calls"),
	); err != nil {
		return nil, err
	}
	if m.BrainFailures, err = meter.Int64Counter("suzieq.brain.failures",
		metric.WithDescription("Decision service calls that failed"),
	); err != nil {
		return nil, err
	}
	if m.BrainDuration, err = meter.Float64Histogram("suzieq.brain.duration",
		metric.WithDescription("Decision service call duration in seconds"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}
	if m.RecallResults, err = meter.Int64Histogram("suzieq.recall.results",
		metric.WithDescription("Memories returned per recall"),
	); err != nil {
		return nil, err
	}
	if m.AutonomyTicks, err = meter.Int64Counter("suzieq.autonomy.ticks",
		metric.WithDescription("Autonomy ticks by outcome"),
	); err != nil {
		return nil, err
	}
	if m.AutonomyTasks, err = meter.Int64Counter("suzieq.autonomy.tasks",
		metric.WithDescription("Autonomy tasks executed by status"),
	); err != nil {
		return nil, err
	}
	return m, nil
}

// RecordBrainCall records one decision service call.
func (m *Metrics) RecordBrainCall(ctx context.Context, start time.Time, err error) {
	if m == nil {
		return
	}
	m.BrainCalls.Add(ctx, 1)
	m.BrainDuration.Record(ctx, time.Since(start).Seconds())
	if err != nil {
		m.BrainFailures.Add(ctx, 1)
	}
}

// RecordRecall records the size of a recall result.
func (m *Metrics) RecordRecall(ctx context.Context, n int) {
	if m == nil {
		return
	}
	m.RecallResults.Record(ctx, int64(n))
}

// RecordTick records one autonomy tick outcome (ran, off, busy, error).
func (m *Metrics) RecordTick(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	m.AutonomyTicks.Add(ctx, 1, metric.WithAttributes(AttrStatus.String(outcome)))
}

// RecordTask records one executed task.
func (m *Metrics) RecordTask(ctx context.Context, status string) {
	if m == nil {
		return
	}
	m.AutonomyTasks.Add(ctx, 1, metric.WithAttributes(AttrStatus.String(status)))
}
