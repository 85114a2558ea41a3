package telemetry

import (
	"context"
	"testing"
	"time"

	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Aggregation {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("collect: %v", err)
	}
	out := make(map[string]metricdata.Aggregation)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			out[m.Name] = m.Data
		}
	}
	return out
}

func TestMetricsRecord(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer provider.Shutdown(context.Background())

	m, err := NewMetrics(provider.Meter("test"))
	if err != nil {
		t.Fatal(err)
	}

	ctx := context.Background()
	m.RecordRender(ctx, "completed", 2*time.Second)
	m.RecordRender(ctx, "failed", time.Second)
	m.RecordFallback(ctx, "font", "embedded")
	m.RecordFallback(ctx, "font", "embedded")
	m.RecordFallback(ctx, "encoder", "psd_jpeg")

	data := collect(t, reader)

	renders, ok := data["calendar.renders"].(metricdata.Sum[int64])
	if !ok || len(renders.DataPoints) != 2 {
		t.Fatalf("renders = %#v", data["calendar.renders"])
	}

	fallbacks, ok := data["calendar.fallbacks"].(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("fallbacks = %#v", data["calendar.fallbacks"])
	}
	embedded := attribute.NewSet(attribute.String("kind", "font"), attribute.String("detail", "embedded"))
	found := false
	for _, dp := range fallbacks.DataPoints {
		if dp.Attributes.Equals(&embedded) {
			found = true
			if dp.Value != 2 {
				t.Errorf("font fallbacks = %d, want 2", dp.Value)
			}
		}
	}
	if !found {
		t.Error("font fallback series missing")
	}

	duration, ok := data["calendar.render.duration"].(metricdata.Histogram[float64])
	if !ok {
		t.Fatalf("duration = %#v", data["calendar.render.duration"])
	}
	var count uint64
	var sum float64
	for _, dp := range duration.DataPoints {
		count += dp.Count
		sum += dp.Sum
	}
	if count != 2 || sum != 3 {
		t.Errorf("duration count=%d sum=%v, want 2 and 3s", count, sum)
	}
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	m.RecordRender(context.Background(), "completed", time.Second)
	m.RecordFallback(context.Background(), "font", "system")
}

func TestInitWithoutEndpoint(t *testing.T) {
	shutdown, err := Init(context.Background(), Config{}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Errorf("no-op shutdown failed: %v", err)
	}
}
