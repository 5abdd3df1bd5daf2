package metrics

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"limbo/internal/infra/config"
)

func newTestRecorder(t *testing.T) (*Recorder, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	rec, err := NewRecorder(mp)
	require.NoError(t, err)
	return rec, reader
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	return rm
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

func TestRecorder_ToolCalls(t *testing.T) {
	rec, reader := newTestRecorder(t)
	ctx := context.Background()

	rec.RecordToolCall(ctx, "search", "success")
	rec.RecordToolCall(ctx, "search", "success")
	rec.RecordToolCall(ctx, "search", "error")

	m := findMetric(collect(t, reader), "limbo.tool.calls")
	require.NotNil(t, m)
	sum, ok := m.Data.(metricdata.Sum[int64])
	require.True(t, ok)

	got := map[string]int64{}
	for _, dp := range sum.DataPoints {
		status, _ := dp.Attributes.Value(attribute.Key("status"))
		got[status.AsString()] = dp.Value
	}
	assert.Equal(t, map[string]int64{"success": 2, "error": 1}, got)
}

func TestRecorder_GenerationDuration(t *testing.T) {
	rec, reader := newTestRecorder(t)

	rec.RecordGeneration(context.Background(), "echo", "done", 1500*time.Millisecond)

	rm := collect(t, reader)
	hist := findMetric(rm, "limbo.generation.duration")
	require.NotNil(t, hist)
	data, ok := hist.Data.(metricdata.Histogram[float64])
	require.True(t, ok)
	require.Len(t, data.DataPoints, 1)
	assert.Equal(t, uint64(1), data.DataPoints[0].Count)
	assert.InDelta(t, 1.5, data.DataPoints[0].Sum, 0.001)

	assert.NotNil(t, findMetric(rm, "limbo.generations"))
}

func TestRecorder_NilSafe(t *testing.T) {
	var rec *Recorder
	ctx := context.Background()
	assert.NotPanics(t, func() {
		rec.RecordGeneration(ctx, "x", "done", time.Second)
		rec.RecordIteration(ctx, "x")
		rec.RecordToolCall(ctx, "t", "success")
		rec.RecordHookFailure(ctx, "p", "OnActivate")
	})
}

func TestSetup_Disabled(t *testing.T) {
	rec, shutdown, err := Setup(context.Background(), config.MetricsConfig{}, slog.Default())
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.NoError(t, shutdown(context.Background()))
}
