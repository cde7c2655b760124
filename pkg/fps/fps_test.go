package fps

import (
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
)

func TestFPSZeroBeforeFirstInterval(t *testing.T) {
	mock := clock.NewMock()
	tr := NewTrackerWithClock(mock)

	assert.Equal(t, 0.0, tr.FPS())

	for i := 0; i < 10; i++ {
		mock.Add(50 * time.Millisecond)
		tr.OnFrame()
	}
	assert.Equal(t, 0.0, tr.FPS(), "500ms have passed, no interval completed yet")
}

func TestFPSConvergesToConstantRate(t *testing.T) {
	tests := []struct {
		name string
		rate int
	}{
		{"30fps", 30},
		{"25fps", 25},
		{"10fps", 10},
		{"1fps", 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := clock.NewMock()
			tr := NewTrackerWithClock(mock)
			step := time.Second / time.Duration(tt.rate)

			// Three seconds of frames at a constant rate.
			for i := 0; i < 3*tt.rate; i++ {
				mock.Add(step)
				tr.OnFrame()
			}
			assert.InDelta(t, float64(tt.rate), tr.FPS(), 0.5)
		})
	}
}

func TestFPSResetsEachInterval(t *testing.T) {
	mock := clock.NewMock()
	tr := NewTrackerWithClock(mock)

	// First interval: 20 frames over one second.
	for i := 0; i < 20; i++ {
		mock.Add(50 * time.Millisecond)
		tr.OnFrame()
	}
	assert.InDelta(t, 20.0, tr.FPS(), 0.01)

	// Second interval: 5 frames over one second. The old count must not leak in.
	for i := 0; i < 5; i++ {
		mock.Add(200 * time.Millisecond)
		tr.OnFrame()
	}
	assert.InDelta(t, 5.0, tr.FPS(), 0.01)
}

func TestFPSUsesActualElapsedTime(t *testing.T) {
	mock := clock.NewMock()
	tr := NewTrackerWithClock(mock)

	tr.OnFrame()
	tr.OnFrame()
	mock.Add(2 * time.Second)
	tr.OnFrame()

	// 3 frames across 2000ms.
	assert.InDelta(t, 1.5, tr.FPS(), 0.001)
}
