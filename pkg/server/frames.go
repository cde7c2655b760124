package server

import (
	"bytes"
	"errors"
	"image"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/disintegration/imaging"
)

// staleAfter is how old the newest frame may be before it is withheld.
const staleAfter = 5 * time.Second

var (
	errNoFrame    = errors.New("no frame available yet")
	errStaleFrame = errors.New("frame is stale (>5s old)")
)

// FrameStore keeps the newest presented frame and encodes it to JPEG on
// demand. It implements pipeline.Display.
type FrameStore struct {
	clock   clock.Clock
	quality int

	mu       sync.Mutex
	img      image.Image
	seq      uint64
	at       time.Time
	jpeg     []byte
	jpegSeq  uint64
	notifyCh chan struct{}
}

func NewFrameStore(quality int) *FrameStore {
	return NewFrameStoreWithClock(quality, clock.New())
}

func NewFrameStoreWithClock(quality int, c clock.Clock) *FrameStore {
	return &FrameStore{clock: c, quality: quality, notifyCh: make(chan struct{})}
}

// Show stores img. The pipeline hands over a fresh image per frame, so it
// is kept without copying.
func (s *FrameStore) Show(img image.Image) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.img = img
	s.seq++
	s.at = s.clock.Now()
	close(s.notifyCh)
	s.notifyCh = make(chan struct{})
}

// Next returns a channel closed when the next frame is shown.
func (s *FrameStore) Next() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.notifyCh
}

// JPEG returns the newest frame encoded as JPEG with its sequence number.
// It is safe for concurrent use; the result must not be modified.
func (s *FrameStore) JPEG() ([]byte, uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.img == nil {
		return nil, 0, errNoFrame
	}
	if s.clock.Since(s.at) > staleAfter {
		return nil, 0, errStaleFrame
	}
	if s.jpeg != nil && s.jpegSeq == s.seq {
		return s.jpeg, s.seq, nil
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, s.img, imaging.JPEG, imaging.JPEGQuality(s.quality)); err != nil {
		return nil, 0, err
	}
	s.jpeg = buf.Bytes()
	s.jpegSeq = s.seq
	return s.jpeg, s.seq, nil
}
