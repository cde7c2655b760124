package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Metrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	out := map[string]metricdata.Metrics{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			out[m.Name] = m
		}
	}
	return out
}

func TestMetricsRecordFrames(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer provider.Shutdown(context.Background())

	m, err := NewMetricsWithMeter(provider.Meter("test"), func() float64 { return 29.5 })
	require.NoError(t, err)
	defer m.Close()

	ctx := context.Background()
	m.FramePresented(ctx)
	m.FramePresented(ctx)
	m.FrameSkipped(ctx, "backend")

	got := collect(t, reader)

	presented := got["edgeview.frames.presented"].Data.(metricdata.Sum[int64])
	require.Len(t, presented.DataPoints, 1)
	assert.Equal(t, int64(2), presented.DataPoints[0].Value)

	skipped := got["edgeview.frames.skipped"].Data.(metricdata.Sum[int64])
	require.Len(t, skipped.DataPoints, 1)
	assert.Equal(t, int64(1), skipped.DataPoints[0].Value)
	reason, ok := skipped.DataPoints[0].Attributes.Value(attribute.Key("reason"))
	require.True(t, ok)
	assert.Equal(t, "backend", reason.AsString())

	fps := got["edgeview.fps"].Data.(metricdata.Gauge[float64])
	require.Len(t, fps.DataPoints, 1)
	assert.Equal(t, 29.5, fps.DataPoints[0].Value)
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.FramePresented(context.Background())
	m.FrameSkipped(context.Background(), "x")
	assert.NoError(t, m.Close())
}
