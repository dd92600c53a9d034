package hook_test

import (
	"context"
	"errors"
	"testing"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/xraph/courier/broker"
	"github.com/xraph/courier/hook"
	"github.com/xraph/courier/id"
)

func setupTestMeter() (*sdkmetric.ManualReader, *sdkmetric.MeterProvider) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	return reader, mp
}

func findMetric(rm metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == name {
				return &sm.Metrics[i]
			}
		}
	}
	return nil
}

func TestMetricsHook_CountsSubmissions(t *testing.T) {
	reader, mp := setupTestMeter()
	h := hook.NewMetricsWithMeter(mp.Meter("test"))
	ctx := context.Background()

	msg := &broker.Message{ID: id.NewJobID(), Task: "send-email", Queue: "default"}
	if err := h.OnSubmitted(ctx, msg); err != nil {
		t.Fatalf("OnSubmitted: %v", err)
	}
	if err := h.OnSubmitFailed(ctx, "send-email", errors.New("bad args")); err != nil {
		t.Fatalf("OnSubmitFailed: %v", err)
	}

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(ctx, &rm); err != nil {
		t.Fatalf("collect: %v", err)
	}

	metric := findMetric(rm, "courier.submissions")
	if metric == nil {
		t.Fatal("courier.submissions metric not found")
	}
	sum, ok := metric.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatal("expected Sum[int64] data type")
	}

	// One accepted and one rejected data point.
	if len(sum.DataPoints) != 2 {
		t.Fatalf("expected 2 data points, got %d", len(sum.DataPoints))
	}
	outcomes := map[string]int64{}
	for _, dp := range sum.DataPoints {
		for _, attr := range dp.Attributes.ToSlice() {
			if string(attr.Key) == "outcome" {
				outcomes[attr.Value.AsString()] = dp.Value
			}
		}
	}
	if outcomes["accepted"] != 1 || outcomes["rejected"] != 1 {
		t.Fatalf("outcomes = %v, want accepted=1 rejected=1", outcomes)
	}
}

func TestMetricsHook_CountsCronFires(t *testing.T) {
	reader, mp := setupTestMeter()
	h := hook.NewMetricsWithMeter(mp.Meter("test"))
	ctx := context.Background()

	if err := h.OnCronFired(ctx, "nightly", id.NewJobID()); err != nil {
		t.Fatalf("OnCronFired: %v", err)
	}

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(ctx, &rm); err != nil {
		t.Fatalf("collect: %v", err)
	}

	metric := findMetric(rm, "courier.cron.fires")
	if metric == nil {
		t.Fatal("courier.cron.fires metric not found")
	}
	sum, ok := metric.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatal("expected Sum[int64] data type")
	}
	if len(sum.DataPoints) != 1 || sum.DataPoints[0].Value != 1 {
		t.Fatalf("expected a single data point with value 1, got %+v", sum.DataPoints)
	}
}

func TestMetricsHook_DefaultNoopSafe(t *testing.T) {
	// Creating the hook without a global provider must not panic.
	h := hook.NewMetrics()
	msg := &broker.Message{ID: id.NewJobID(), Task: "t", Queue: "q"}
	if err := h.OnSubmitted(context.Background(), msg); err != nil {
		t.Fatalf("OnSubmitted: %v", err)
	}
}
