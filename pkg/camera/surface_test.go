package camera

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSurfaceRejectsWrongSize(t *testing.T) {
	s := NewSurface(2, 2)
	assert.Error(t, s.Write(make([]byte, 15)))

	frame, seq := s.Latest()
	assert.Nil(t, frame)
	assert.Zero(t, seq)
}

func TestSurfaceLatestIsACopy(t *testing.T) {
	s := NewSurface(1, 1)
	require.NoError(t, s.Write([]byte{1, 2, 3, 4}))

	frame, seq := s.Latest()
	assert.Equal(t, []byte{1, 2, 3, 4}, frame)
	assert.Equal(t, uint64(1), seq)

	frame[0] = 99
	again, _ := s.Latest()
	assert.Equal(t, byte(1), again[0])
}

func TestSurfaceSignalsCoalesce(t *testing.T) {
	s := NewSurface(1, 1)
	for i := 0; i < 5; i++ {
		require.NoError(t, s.Write([]byte{byte(i), 0, 0, 255}))
	}

	<-s.Updated()
	select {
	case <-s.Updated():
		t.Fatal("burst of writes must produce a single signal")
	default:
	}

	frame, seq := s.Latest()
	assert.Equal(t, byte(4), frame[0])
	assert.Equal(t, uint64(5), seq)
}

func TestSurfaceResizeDropsFrame(t *testing.T) {
	s := NewSurface(1, 1)
	require.NoError(t, s.Write([]byte{1, 2, 3, 4}))

	s.SetDefaultBufferSize(2, 1)
	frame, _ := s.Latest()
	assert.Nil(t, frame)
	assert.Equal(t, 8, s.FrameLen())
	assert.NoError(t, s.Write(make([]byte, 8)))
}
