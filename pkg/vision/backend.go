// Package vision defines the frame processing boundary and the helpers
// shared by its implementations.
package vision

import (
	"errors"
	"fmt"
	"sync"
)

// BytesPerPixel of the RGBA frames crossing the boundary.
const BytesPerPixel = 4

var (
	// ErrNotInitialized is returned when a frame arrives before Initialize
	// or after Teardown.
	ErrNotInitialized = errors.New("vision: backend not initialized")
	// ErrFrameSize is returned for frames that do not match the configured size.
	ErrFrameSize = errors.New("vision: frame size mismatch")
)

// EdgeColor is painted on edge pixels; everything else becomes opaque black.
var EdgeColor = [4]byte{0, 255, 255, 255}

// Backend processes RGBA frames.
//
// ProcessFrame borrows frame for the duration of the call only. The
// returned slice is newly allocated and owned by the caller. A nil result
// means the frame should be skipped.
type Backend interface {
	Initialize(width, height int) error
	ProcessFrame(frame []byte) ([]byte, error)
	SetProcessingMode(enabled bool)
	UpdateSize(width, height int)
	Teardown()
}

// Base keeps the size and mode bookkeeping every backend needs. Its
// zero value has processing enabled once initialized.
type Base struct {
	mu          sync.Mutex
	width       int
	height      int
	raw         bool
	initialized bool
}

func (b *Base) Initialize(width, height int) error {
	if width <= 0 || height <= 0 {
		return fmt.Errorf("vision: invalid frame size %dx%d", width, height)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.width, b.height = width, height
	b.initialized = true
	return nil
}

func (b *Base) SetProcessingMode(enabled bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.raw = !enabled
}

// UpdateSize is ignored for invalid sizes.
func (b *Base) UpdateSize(width, height int) {
	if width <= 0 || height <= 0 {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.width, b.height = width, height
}

func (b *Base) Teardown() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.initialized = false
}

// Params is a consistent view of the bookkeeping for one frame.
type Params struct {
	Width      int
	Height     int
	Processing bool
}

// Check validates frame against the current size and returns the
// parameters to process it with.
func (b *Base) Check(frame []byte) (Params, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.initialized {
		return Params{}, ErrNotInitialized
	}
	if want := b.width * b.height * BytesPerPixel; len(frame) != want {
		return Params{}, fmt.Errorf("%w: got %d bytes, want %d", ErrFrameSize, len(frame), want)
	}
	return Params{Width: b.width, Height: b.height, Processing: !b.raw}, nil
}

// Clone returns a copy of frame.
func Clone(frame []byte) []byte {
	out := make([]byte, len(frame))
	copy(out, frame)
	return out
}

// PaintEdges turns a single channel edge mask into an RGBA frame. Non-zero
// mask values become EdgeColor.
func PaintEdges(mask []byte) []byte {
	out := make([]byte, len(mask)*BytesPerPixel)
	for i, m := range mask {
		px := out[i*BytesPerPixel : i*BytesPerPixel+BytesPerPixel]
		if m > 0 {
			copy(px, EdgeColor[:])
		} else {
			px[3] = 255
		}
	}
	return out
}

// Passthrough returns every frame unchanged, whatever the mode.
type Passthrough struct {
	Base
}

var _ Backend = (*Passthrough)(nil)

func NewPassthrough() *Passthrough { return &Passthrough{} }

func (p *Passthrough) ProcessFrame(frame []byte) ([]byte, error) {
	if _, err := p.Check(frame); err != nil {
		return nil, err
	}
	return Clone(frame), nil
}
