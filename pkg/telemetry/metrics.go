// Package telemetry exports pipeline metrics with OpenTelemetry.
package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/intothevoid/edgeview/pkg/pipeline"

// Metrics records presented and skipped frames and observes the frame rate.
// A nil *Metrics records nothing.
type Metrics struct {
	presented metric.Int64Counter
	skipped   metric.Int64Counter
	reg       metric.Registration
}

// NewMetrics registers the instruments on the global meter provider.
func NewMetrics(fps func() float64) (*Metrics, error) {
	return NewMetricsWithMeter(otel.Meter(instrumentationName), fps)
}

func NewMetricsWithMeter(meter metric.Meter, fps func() float64) (*Metrics, error) {
	presented, err := meter.Int64Counter("edgeview.frames.presented",
		metric.WithDescription("Frames processed and drawn"),
		metric.WithUnit("{frames}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create presented counter: %w", err)
	}

	skipped, err := meter.Int64Counter("edgeview.frames.skipped",
		metric.WithDescription("Frames dropped before drawing"),
		metric.WithUnit("{frames}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create skipped counter: %w", err)
	}

	gauge, err := meter.Float64ObservableGauge("edgeview.fps",
		metric.WithDescription("Frames per second over the last interval"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create fps gauge: %w", err)
	}

	reg, err := meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		o.ObserveFloat64(gauge, fps())
		return nil
	}, gauge)
	if err != nil {
		return nil, fmt.Errorf("failed to register fps callback: %w", err)
	}

	return &Metrics{presented: presented, skipped: skipped, reg: reg}, nil
}

func (m *Metrics) FramePresented(ctx context.Context) {
	if m == nil {
		return
	}
	m.presented.Add(ctx, 1)
}

// FrameSkipped counts a dropped frame tagged with why it was dropped.
func (m *Metrics) FrameSkipped(ctx context.Context, reason string) {
	if m == nil {
		return
	}
	m.skipped.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}

// Close unregisters the fps callback.
func (m *Metrics) Close() error {
	if m == nil {
		return nil
	}
	return m.reg.Unregister()
}
