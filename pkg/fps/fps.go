package fps

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// Interval is how often the reported rate is recomputed.
const Interval = time.Second

// Tracker turns a stream of frame events into a frames-per-second value
// recomputed once per Interval. There is no smoothing across intervals.
type Tracker struct {
	clock clock.Clock

	mu         sync.Mutex
	frameCount int
	lastTime   time.Time
	fps        float64
}

// NewTracker creates a tracker using the wall clock.
func NewTracker() *Tracker {
	return NewTrackerWithClock(clock.New())
}

// NewTrackerWithClock creates a tracker reading time from c.
func NewTrackerWithClock(c clock.Clock) *Tracker {
	return &Tracker{
		clock:    c,
		lastTime: c.Now(),
	}
}

// OnFrame records one displayed frame.
func (t *Tracker) OnFrame() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.frameCount++
	now := t.clock.Now()
	elapsed := now.Sub(t.lastTime)

	if elapsed >= Interval {
		elapsedMS := float64(elapsed) / float64(time.Millisecond)
		t.fps = float64(t.frameCount) * 1000 / elapsedMS
		t.frameCount = 0
		t.lastTime = now
	}
}

// FPS returns the last computed rate, 0 until the first interval completes.
func (t *Tracker) FPS() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.fps
}
