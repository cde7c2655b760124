package camera

import (
	"fmt"
	"sync"
)

// BytesPerPixel is the RGBA frame layout used everywhere in the pipeline.
const BytesPerPixel = 4

// Surface is the output target of a capture session. It keeps only the
// latest frame and signals consumers that a new one arrived; signals
// coalesce, so a slow consumer always sees the newest frame.
type Surface struct {
	mu     sync.RWMutex
	width  int
	height int
	frame  []byte
	seq    uint64

	updated chan struct{}
}

// NewSurface creates a surface with the given default buffer size.
func NewSurface(width, height int) *Surface {
	return &Surface{
		width:   width,
		height:  height,
		updated: make(chan struct{}, 1),
	}
}

// SetDefaultBufferSize changes the frame size the surface accepts. The
// current frame is dropped because it no longer matches.
func (s *Surface) SetDefaultBufferSize(width, height int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if width == s.width && height == s.height {
		return
	}
	s.width = width
	s.height = height
	s.frame = nil
}

// Size returns the current buffer size.
func (s *Surface) Size() (width, height int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.width, s.height
}

// FrameLen is the byte length of one frame at the current size.
func (s *Surface) FrameLen() int {
	w, h := s.Size()
	return w * h * BytesPerPixel
}

// Write stores a copy of frame and signals an update.
func (s *Surface) Write(frame []byte) error {
	s.mu.Lock()
	want := s.width * s.height * BytesPerPixel
	if len(frame) != want {
		s.mu.Unlock()
		return fmt.Errorf("camera: frame is %d bytes, surface expects %d", len(frame), want)
	}
	if cap(s.frame) < want {
		s.frame = make([]byte, want)
	}
	s.frame = s.frame[:want]
	copy(s.frame, frame)
	s.seq++
	s.mu.Unlock()

	select {
	case s.updated <- struct{}{}:
	default:
	}
	return nil
}

// Latest returns a copy of the newest frame and its sequence number. The
// copy belongs to the caller. nil is returned before the first frame.
func (s *Surface) Latest() ([]byte, uint64) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.frame == nil {
		return nil, s.seq
	}
	out := make([]byte, len(s.frame))
	copy(out, s.frame)
	return out, s.seq
}

// Updated delivers one signal per burst of writes.
func (s *Surface) Updated() <-chan struct{} {
	return s.updated
}
