package hook

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/xraph/courier/broker"
	"github.com/xraph/courier/id"
)

// metricsScope is the instrumentation scope name for courier metrics.
const metricsScope = "github.com/xraph/courier"

// Compile-time interface checks.
var (
	_ Hook         = (*MetricsHook)(nil)
	_ Submitted    = (*MetricsHook)(nil)
	_ SubmitFailed = (*MetricsHook)(nil)
	_ CronFired    = (*MetricsHook)(nil)
)

// MetricsHook records submission-side metrics through OpenTelemetry. It
// complements the execution-side metrics middleware: together they
// observe both ends of the pipeline.
//
// Instruments:
//   - courier.submissions (Int64Counter): accepted and rejected
//     submissions, with attributes: task, queue, outcome
//   - courier.cron.fires (Int64Counter): periodic entry firings,
//     with attribute: entry
type MetricsHook struct {
	submissions metric.Int64Counter
	cronFires   metric.Int64Counter
}

// NewMetrics creates a MetricsHook using the global OTel MeterProvider.
// If none is configured, noop instruments are used.
func NewMetrics() *MetricsHook {
	return NewMetricsWithMeter(otel.Meter(metricsScope))
}

// NewMetricsWithMeter creates a MetricsHook using the provided meter.
// This variant allows injecting a specific MeterProvider for testing.
func NewMetricsWithMeter(meter metric.Meter) *MetricsHook {
	submissions, sErr := meter.Int64Counter(
		"courier.submissions",
		metric.WithDescription("Total number of task submissions"),
		metric.WithUnit("{submission}"),
	)
	_ = sErr // noop fallback guaranteed by OTel API contract

	cronFires, cErr := meter.Int64Counter(
		"courier.cron.fires",
		metric.WithDescription("Total number of periodic entry firings"),
		metric.WithUnit("{fire}"),
	)
	_ = cErr // noop fallback guaranteed by OTel API contract

	return &MetricsHook{submissions: submissions, cronFires: cronFires}
}

// Name implements Hook.
func (h *MetricsHook) Name() string { return "metrics" }

// OnSubmitted implements Submitted.
func (h *MetricsHook) OnSubmitted(ctx context.Context, msg *broker.Message) error {
	h.submissions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("task", msg.Task),
		attribute.String("queue", msg.Queue),
		attribute.String("outcome", "accepted"),
	))
	return nil
}

// OnSubmitFailed implements SubmitFailed.
func (h *MetricsHook) OnSubmitFailed(ctx context.Context, taskName string, _ error) error {
	h.submissions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("task", taskName),
		attribute.String("outcome", "rejected"),
	))
	return nil
}

// OnCronFired implements CronFired.
func (h *MetricsHook) OnCronFired(ctx context.Context, entryName string, _ id.JobID) error {
	h.cronFires.Add(ctx, 1, metric.WithAttributes(
		attribute.String("entry", entryName),
	))
	return nil
}
