package telemetry

import (
	"context"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"

	"github.com/a2aforge/meshbus/core"
)

// OTelTelemetry implements core.Telemetry against the OpenTelemetry SDK's
// in-process tracer/meter providers. It deliberately stops at the SDK
// boundary: no OTLP/gRPC exporter is configured, because shipping
// spans and metrics to a backend is the host's concern. A host that
// wants span export registers its own sdktrace.SpanProcessor on the
// *sdktrace.TracerProvider this type exposes. The *sdkmetric.MeterProvider
// is built without readers, and RecordMetric does not record through it.
type OTelTelemetry struct {
	serviceName string
	tracer      trace.Tracer
	tp          *sdktrace.TracerProvider
	mp          *sdkmetric.MeterProvider

	mu      sync.Mutex
	metrics map[string]float64 // last-recorded value per metric name, for inspection/tests
}

// NewOTelTelemetry builds an OTelTelemetry with fresh, exporter-less
// SDK providers named serviceName.
func NewOTelTelemetry(serviceName string) *OTelTelemetry {
	tp := sdktrace.NewTracerProvider()
	mp := sdkmetric.NewMeterProvider()
	return &OTelTelemetry{
		serviceName: serviceName,
		tracer:      tp.Tracer(serviceName),
		tp:          tp,
		mp:          mp,
		metrics:     make(map[string]float64),
	}
}

// TracerProvider exposes the underlying SDK provider so a host can
// attach a real span processor/exporter.
func (o *OTelTelemetry) TracerProvider() *sdktrace.TracerProvider { return o.tp }

// MeterProvider exposes the underlying SDK meter provider. It has no
// readers, and RecordMetric values are not recorded through it.
func (o *OTelTelemetry) MeterProvider() *sdkmetric.MeterProvider { return o.mp }

// StartSpan starts a span named name as a child of any span already in
// ctx, implementing core.Telemetry. The bus and agent call this around
// processMessage/coordination execution regardless of whether a real
// exporter is attached.
func (o *OTelTelemetry) StartSpan(ctx context.Context, name string) (context.Context, core.Span) {
	newCtx, span := o.tracer.Start(ctx, name)
	return newCtx, &otelSpan{span: span}
}

// RecordMetric records value under name, implementing core.Telemetry.
// The value is kept in an in-memory last-value map keyed by name alone,
// readable through LastMetric; labels are ignored, and no SDK
// instrument is recorded, so nothing reaches MeterProvider().
func (o *OTelTelemetry) RecordMetric(name string, value float64, labels map[string]string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.metrics[name] = value
}

// LastMetric returns the most recently recorded value for name, for
// tests that assert telemetry was invoked.
func (o *OTelTelemetry) LastMetric(name string) (float64, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	v, ok := o.metrics[name]
	return v, ok
}

// Shutdown flushes and stops the underlying SDK providers.
func (o *OTelTelemetry) Shutdown(ctx context.Context) error {
	if err := o.tp.Shutdown(ctx); err != nil {
		return err
	}
	return o.mp.Shutdown(ctx)
}

// otelSpan adapts an OpenTelemetry trace.Span to core.Span.
type otelSpan struct {
	span trace.Span
}

func (s *otelSpan) End() { s.span.End() }

func (s *otelSpan) SetAttribute(key string, value interface{}) {
	s.span.SetAttributes(attribute.String(key, fmt.Sprintf("%v", value)))
}

func (s *otelSpan) RecordError(err error) {
	if err != nil {
		s.span.RecordError(err)
	}
}
