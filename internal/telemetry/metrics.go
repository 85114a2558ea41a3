package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/calendarpress/calendar-engine"

// Metrics records render outcomes. A nil *Metrics records nothing.
type Metrics struct {
	renders   metric.Int64Counter
	duration  metric.Float64Histogram
	fallbacks metric.Int64Counter
}

// NewMetrics creates the instruments on meter, or on the global meter
// provider when meter is nil
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	if meter == nil {
		meter = otel.Meter(instrumentationName)
	}

	renders, err := meter.Int64Counter("calendar.renders",
		metric.WithDescription("Completed render attempts by status"))
	if err != nil {
		return nil, err
	}
	duration, err := meter.Float64Histogram("calendar.render.duration",
		metric.WithDescription("Wall time of one render"),
		metric.WithUnit("s"))
	if err != nil {
		return nil, err
	}
	fallbacks, err := meter.Int64Counter("calendar.fallbacks",
		metric.WithDescription("Degraded paths taken while rendering (font tiers, skipped images, encoder fallback)"))
	if err != nil {
		return nil, err
	}

	return &Metrics{renders: renders, duration: duration, fallbacks: fallbacks}, nil
}

// RecordRender counts one render and its duration
func (m *Metrics) RecordRender(ctx context.Context, status string, d time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("status", status))
	m.renders.Add(ctx, 1, attrs)
	m.duration.Record(ctx, d.Seconds(), attrs)
}

// RecordFallback counts one degraded path, e.g. kind "font" detail "system"
func (m *Metrics) RecordFallback(ctx context.Context, kind, detail string) {
	if m == nil {
		return
	}
	m.fallbacks.Add(ctx, 1, metric.WithAttributes(
		attribute.String("kind", kind),
		attribute.String("detail", detail),
	))
}
