package otel_test

import (
	"context"
	"testing"
	"time"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace/noop"

	bridgeotel "github.com/petal-labs/toolbridge/otel"
	"github.com/petal-labs/toolbridge/tool"
)

func newTestMeter() (*metric.ManualReader, *metric.MeterProvider) {
	reader := metric.NewManualReader()
	mp := metric.NewMeterProvider(metric.WithReader(reader))
	return reader, mp
}

func newTestTracer() (*tracetest.InMemoryExporter, *sdktrace.TracerProvider) {
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSyncer(exporter),
	)
	return exporter, tp
}

func collectMetrics(t *testing.T, reader *metric.ManualReader) *metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("failed to collect metrics: %v", err)
	}
	return &rm
}

func findMetric(rm *metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for _, scope := range rm.ScopeMetrics {
		for i := range scope.Metrics {
			if scope.Metrics[i].Name == name {
				return &scope.Metrics[i]
			}
		}
	}
	return nil
}

func sumOf(t *testing.T, m *metricdata.Metrics) int64 {
	t.Helper()
	sum, ok := m.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("%s type = %T, want Sum[int64]", m.Name, m.Data)
	}
	var total int64
	for _, point := range sum.DataPoints {
		total += point.Value
	}
	return total
}

func TestToolObserverRecordsMetrics(t *testing.T) {
	reader, mp := newTestMeter()
	observer, err := bridgeotel.NewToolObserver(mp.Meter("test-tool-observer"), noop.NewTracerProvider().Tracer("test"))
	if err != nil {
		t.Fatalf("NewToolObserver() error = %v", err)
	}

	observer.ObserveInvoke(tool.InvokeObservation{
		ToolName:         "openlibrary.search",
		ManualName:       "openlibrary",
		CallTemplateType: tool.CallTemplateHTTP,
		Duration:         120 * time.Millisecond,
		Success:          false,
		ErrorCode:        tool.ErrorCodeInvocationFailed,
	})
	observer.ObserveInvoke(tool.InvokeObservation{ToolName: "openlibrary.search", Success: true})
	observer.ObserveDiscovery(tool.DiscoveryObservation{Operation: "load", Listed: 4, Translated: 3, Skipped: 1, Returned: 3})

	rm := collectMetrics(t, reader)

	invocations := findMetric(rm, bridgeotel.MetricInvocations)
	if invocations == nil {
		t.Fatalf("%s metric not found", bridgeotel.MetricInvocations)
	}
	if got := sumOf(t, invocations); got != 2 {
		t.Fatalf("invocations = %d, want 2", got)
	}

	latency := findMetric(rm, bridgeotel.MetricLatency)
	if latency == nil {
		t.Fatalf("%s metric not found", bridgeotel.MetricLatency)
	}
	if _, ok := latency.Data.(metricdata.Histogram[float64]); !ok {
		t.Fatalf("latency type = %T, want Histogram[float64]", latency.Data)
	}

	runs := findMetric(rm, bridgeotel.MetricDiscoveryRuns)
	if runs == nil || sumOf(t, runs) != 1 {
		t.Fatalf("%s = %v, want 1", bridgeotel.MetricDiscoveryRuns, runs)
	}
	skipped := findMetric(rm, bridgeotel.MetricDiscoverySkipped)
	if skipped == nil || sumOf(t, skipped) != 1 {
		t.Fatalf("%s = %v, want 1", bridgeotel.MetricDiscoverySkipped, skipped)
	}
}

func TestToolObserverRecordsSpans(t *testing.T) {
	_, mp := newTestMeter()
	exporter, tp := newTestTracer()
	observer, err := bridgeotel.NewToolObserver(mp.Meter("test"), tp.Tracer("test"))
	if err != nil {
		t.Fatalf("NewToolObserver() error = %v", err)
	}

	observer.ObserveInvoke(tool.InvokeObservation{
		ToolName:  "weather.get",
		Duration:  50 * time.Millisecond,
		ErrorCode: tool.ErrorCodeResultAdaptation,
	})
	observer.ObserveDiscovery(tool.DiscoveryObservation{Operation: "search", Query: "book"})

	spans := exporter.GetSpans()
	if len(spans) != 2 {
		t.Fatalf("spans = %d, want 2", len(spans))
	}
	if spans[0].Name != "tool.invoke" {
		t.Fatalf("span[0].Name = %q, want tool.invoke", spans[0].Name)
	}
	if spans[0].Status.Code != codes.Error || spans[0].Status.Description != tool.ErrorCodeResultAdaptation {
		t.Fatalf("span[0].Status = %+v, want error", spans[0].Status)
	}
	if got := spans[0].EndTime.Sub(spans[0].StartTime); got != 50*time.Millisecond {
		t.Fatalf("span[0] duration = %v, want 50ms", got)
	}
	if spans[1].Name != "discovery.search" || spans[1].Status.Code != codes.Ok {
		t.Fatalf("span[1] = %q %+v, want ok discovery.search", spans[1].Name, spans[1].Status)
	}
}

func TestToolObserverFromToolPackage(t *testing.T) {
	reader, mp := newTestMeter()
	observer, err := bridgeotel.NewToolObserver(mp.Meter("test"), nil)
	if err != nil {
		t.Fatalf("NewToolObserver() error = %v", err)
	}
	tool.SetObserver(observer)
	t.Cleanup(func() { tool.SetObserver(nil) })

	tool.ReportDiscovery(tool.DiscoveryObservation{Operation: "load"})

	rm := collectMetrics(t, reader)
	runs := findMetric(rm, bridgeotel.MetricDiscoveryRuns)
	if runs == nil || sumOf(t, runs) != 1 {
		t.Fatal("discovery run not recorded through tool.ReportDiscovery")
	}
}

func TestSetupSummaryAndShutdown(t *testing.T) {
	telemetry, err := bridgeotel.Setup(context.Background(), bridgeotel.Config{})
	if err != nil {
		t.Fatalf("Setup() error = %v", err)
	}
	tool.ReportDiscovery(tool.DiscoveryObservation{Operation: "search", Skipped: 2})

	summary, err := telemetry.Summary(context.Background())
	if err != nil {
		t.Fatalf("Summary() error = %v", err)
	}
	if summary[bridgeotel.MetricDiscoveryRuns] != 1 || summary[bridgeotel.MetricDiscoverySkipped] != 2 {
		t.Fatalf("Summary() = %v", summary)
	}
	if err := telemetry.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}
}
