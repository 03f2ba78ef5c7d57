// Package otel records tool invocations and discovery passes into
// OpenTelemetry metrics and spans.
package otel

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/petal-labs/toolbridge/tool"
)

// Metric names recorded by ToolObserver.
const (
	MetricInvocations      = "toolbridge.tool.invocations"
	MetricLatency          = "toolbridge.tool.latency"
	MetricDiscoveryRuns    = "toolbridge.discovery.runs"
	MetricDiscoverySkipped = "toolbridge.discovery.skipped"
)

// ToolObserver implements tool.Observer on top of a meter and a tracer.
type ToolObserver struct {
	tracer trace.Tracer

	invocations metric.Int64Counter
	latency     metric.Float64Histogram
	discoveries metric.Int64Counter
	skipped     metric.Int64Counter
}

// NewToolObserver creates a tool observer bound to the provided meter/tracer.
// A nil tracer disables spans.
func NewToolObserver(meter metric.Meter, tracer trace.Tracer) (*ToolObserver, error) {
	invocations, err := meter.Int64Counter(
		MetricInvocations,
		metric.WithDescription("Number of tool invocations"),
	)
	if err != nil {
		return nil, err
	}
	latency, err := meter.Float64Histogram(
		MetricLatency,
		metric.WithDescription("Tool invocation latency in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}
	discoveries, err := meter.Int64Counter(
		MetricDiscoveryRuns,
		metric.WithDescription("Number of load and search passes"),
	)
	if err != nil {
		return nil, err
	}
	skipped, err := meter.Int64Counter(
		MetricDiscoverySkipped,
		metric.WithDescription("Number of descriptors skipped as malformed"),
	)
	if err != nil {
		return nil, err
	}

	return &ToolObserver{
		tracer:      tracer,
		invocations: invocations,
		latency:     latency,
		discoveries: discoveries,
		skipped:     skipped,
	}, nil
}

// ObserveInvoke records one invocation result.
func (o *ToolObserver) ObserveInvoke(observation tool.InvokeObservation) {
	if o == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String("tool_name", observation.ToolName),
		attribute.String("manual", observation.ManualName),
		attribute.String("call_template_type", observation.CallTemplateType),
		attribute.Bool("success", observation.Success),
	}
	if observation.ErrorCode != "" {
		attrs = append(attrs, attribute.String("error_code", observation.ErrorCode))
	}

	ctx := context.Background()
	options := metric.WithAttributes(attrs...)
	o.invocations.Add(ctx, 1, options)
	o.latency.Record(ctx, observation.Duration.Seconds(), options)

	o.span(ctx, "tool.invoke", observation.Duration, observation.ErrorCode, attrs)
}

// ObserveDiscovery records one load or search pass.
func (o *ToolObserver) ObserveDiscovery(observation tool.DiscoveryObservation) {
	if o == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String("operation", observation.Operation),
		attribute.Int("listed", observation.Listed),
		attribute.Int("returned", observation.Returned),
	}
	if observation.ErrorCode != "" {
		attrs = append(attrs, attribute.String("error_code", observation.ErrorCode))
	}

	ctx := context.Background()
	o.discoveries.Add(ctx, 1, metric.WithAttributes(attrs[0]))
	if observation.Skipped > 0 {
		o.skipped.Add(ctx, int64(observation.Skipped), metric.WithAttributes(attrs[0]))
	}

	if observation.Query != "" {
		attrs = append(attrs, attribute.String("query", observation.Query))
	}
	o.span(ctx, "discovery."+observation.Operation, observation.Duration, observation.ErrorCode, attrs)
}

// span records an already finished operation, backdating its start.
func (o *ToolObserver) span(ctx context.Context, name string, elapsed time.Duration, errorCode string, attrs []attribute.KeyValue) {
	if o.tracer == nil {
		return
	}
	end := time.Now()
	_, span := o.tracer.Start(ctx, name,
		trace.WithAttributes(attrs...),
		trace.WithTimestamp(end.Add(-elapsed)),
	)
	if errorCode != "" {
		span.SetStatus(codes.Error, errorCode)
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End(trace.WithTimestamp(end))
}

var _ tool.Observer = (*ToolObserver)(nil)
