package otel

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	otelapi "go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/petal-labs/toolbridge/tool"
)

const instrumentationName = "github.com/petal-labs/toolbridge"

// Config controls process telemetry.
type Config struct {
	// OTLPEndpoint is an OTLP/HTTP traces URL. Empty disables trace export.
	OTLPEndpoint string
	Logger       *slog.Logger
}

// Telemetry owns the providers installed by Setup.
type Telemetry struct {
	reader         *metric.ManualReader
	meterProvider  *metric.MeterProvider
	tracerProvider *sdktrace.TracerProvider
	logger         *slog.Logger
}

// Setup installs meter and tracer providers globally and registers a
// ToolObserver with the tool package. Metrics are held in memory and can be
// read back with Summary.
func Setup(ctx context.Context, cfg Config) (*Telemetry, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	reader := metric.NewManualReader()
	meterProvider := metric.NewMeterProvider(metric.WithReader(reader))

	traceOpts := []sdktrace.TracerProviderOption{}
	if endpoint := strings.TrimSpace(cfg.OTLPEndpoint); endpoint != "" {
		exporter, err := otlptracehttp.New(ctx, otlptracehttp.WithEndpointURL(endpoint))
		if err != nil {
			_ = meterProvider.Shutdown(ctx)
			return nil, fmt.Errorf("otel: create otlp exporter: %w", err)
		}
		traceOpts = append(traceOpts, sdktrace.WithBatcher(exporter))
		logger.Debug("otel: exporting traces", "endpoint", endpoint)
	}
	tracerProvider := sdktrace.NewTracerProvider(traceOpts...)

	otelapi.SetMeterProvider(meterProvider)
	otelapi.SetTracerProvider(tracerProvider)

	observer, err := NewToolObserver(
		meterProvider.Meter(instrumentationName),
		tracerProvider.Tracer(instrumentationName),
	)
	if err != nil {
		_ = meterProvider.Shutdown(ctx)
		_ = tracerProvider.Shutdown(ctx)
		return nil, fmt.Errorf("otel: create tool observer: %w", err)
	}
	tool.SetObserver(observer)

	return &Telemetry{
		reader:         reader,
		meterProvider:  meterProvider,
		tracerProvider: tracerProvider,
		logger:         logger,
	}, nil
}

// Summary returns counter totals and histogram counts by metric name.
func (t *Telemetry) Summary(ctx context.Context) (map[string]int64, error) {
	var rm metricdata.ResourceMetrics
	if err := t.reader.Collect(ctx, &rm); err != nil {
		return nil, fmt.Errorf("otel: collect metrics: %w", err)
	}
	out := make(map[string]int64)
	for _, scope := range rm.ScopeMetrics {
		for _, m := range scope.Metrics {
			switch data := m.Data.(type) {
			case metricdata.Sum[int64]:
				for _, point := range data.DataPoints {
					out[m.Name] += point.Value
				}
			case metricdata.Histogram[float64]:
				for _, point := range data.DataPoints {
					out[m.Name] += int64(point.Count)
				}
			}
		}
	}
	return out, nil
}

// Shutdown detaches the tool observer and flushes both providers.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	tool.SetObserver(nil)
	return errors.Join(
		t.tracerProvider.Shutdown(ctx),
		t.meterProvider.Shutdown(ctx),
	)
}
