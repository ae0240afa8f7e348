// Package observability provides a workflow.RunEmitter backed by
// OpenTelemetry metrics.
package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/eric2umeh/techignite-jobs/workflow"
)

// meterName is the instrumentation scope name for workflow metrics.
const meterName = "github.com/eric2umeh/techignite-jobs"

// MetricsEmitter records run and step lifecycle metrics using the global
// OTel MeterProvider. If no MeterProvider is configured, noop instruments
// are used and the emitter becomes a pass-through.
//
// Instruments:
//   - workflow.runs (Int64Counter): run terminations, with attributes
//     kind and state ("completed", "cancelled", "failed")
//   - workflow.run.duration (Float64Histogram): trigger-to-completion
//     time in seconds, with attribute kind
//   - workflow.step.duration (Float64Histogram): step execution time in
//     seconds, with attributes kind, step and status ("ok" or "error")
type MetricsEmitter struct {
	runs         metric.Int64Counter
	runDuration  metric.Float64Histogram
	stepDuration metric.Float64Histogram
}

var _ workflow.RunEmitter = (*MetricsEmitter)(nil)

// NewMetricsEmitter creates a MetricsEmitter on the global MeterProvider.
func NewMetricsEmitter() *MetricsEmitter {
	return NewMetricsEmitterWithMeter(otel.Meter(meterName))
}

// NewMetricsEmitterWithMeter creates a MetricsEmitter using the provided
// meter. This variant allows injecting a specific MeterProvider for
// testing.
func NewMetricsEmitterWithMeter(meter metric.Meter) *MetricsEmitter {
	// Instruments are created once at construction time. On error, the
	// OTel API returns noop instruments so the emitter degrades
	// gracefully.
	runs, rErr := meter.Int64Counter(
		"workflow.runs",
		metric.WithDescription("Total number of workflow run terminations"),
		metric.WithUnit("{run}"),
	)
	_ = rErr // noop fallback guaranteed by OTel API contract

	runDuration, dErr := meter.Float64Histogram(
		"workflow.run.duration",
		metric.WithDescription("Trigger-to-completion time of workflow runs in seconds"),
		metric.WithUnit("s"),
	)
	_ = dErr

	stepDuration, sErr := meter.Float64Histogram(
		"workflow.step.duration",
		metric.WithDescription("Execution time of workflow action steps in seconds"),
		metric.WithUnit("s"),
	)
	_ = sErr

	return &MetricsEmitter{
		runs:         runs,
		runDuration:  runDuration,
		stepDuration: stepDuration,
	}
}

func (m *MetricsEmitter) EmitRunStarted(ctx context.Context, run *workflow.Run) {
	// Started runs are observable as the gap between terminations and
	// triggers; no dedicated instrument.
}

func (m *MetricsEmitter) EmitRunCompleted(ctx context.Context, run *workflow.Run, elapsed time.Duration) {
	attrs := metric.WithAttributes(
		attribute.String("kind", run.Kind),
		attribute.String("state", string(workflow.RunStateCompleted)),
	)
	m.runs.Add(ctx, 1, attrs)
	m.runDuration.Record(ctx, elapsed.Seconds(), metric.WithAttributes(
		attribute.String("kind", run.Kind),
	))
}

func (m *MetricsEmitter) EmitRunCancelled(ctx context.Context, run *workflow.Run) {
	m.runs.Add(ctx, 1, metric.WithAttributes(
		attribute.String("kind", run.Kind),
		attribute.String("state", string(workflow.RunStateCancelled)),
	))
}

func (m *MetricsEmitter) EmitRunFailed(ctx context.Context, run *workflow.Run, err error) {
	m.runs.Add(ctx, 1, metric.WithAttributes(
		attribute.String("kind", run.Kind),
		attribute.String("state", string(workflow.RunStateFailed)),
	))
}

func (m *MetricsEmitter) EmitStepCompleted(ctx context.Context, run *workflow.Run, stepName string, elapsed time.Duration) {
	m.stepDuration.Record(ctx, elapsed.Seconds(), metric.WithAttributes(
		attribute.String("kind", run.Kind),
		attribute.String("step", stepName),
		attribute.String("status", "ok"),
	))
}

func (m *MetricsEmitter) EmitStepFailed(ctx context.Context, run *workflow.Run, stepName string, err error) {
	m.stepDuration.Record(ctx, 0, metric.WithAttributes(
		attribute.String("kind", run.Kind),
		attribute.String("step", stepName),
		attribute.String("status", "error"),
	))
}
