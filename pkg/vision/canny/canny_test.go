package canny

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/intothevoid/edgeview/pkg/vision"
)

// split draws a black left half and a white right half.
func split(w, h int) []byte {
	buf := make([]byte, w*h*4)
	for y := 0; y < h; y++ {
		for x := w / 2; x < w; x++ {
			o := (y*w + x) * 4
			buf[o], buf[o+1], buf[o+2] = 255, 255, 255
		}
		for x := 0; x < w; x++ {
			buf[(y*w+x)*4+3] = 255
		}
	}
	return buf
}

func TestDetectsVerticalEdge(t *testing.T) {
	p := New(zaptest.NewLogger(t))
	require.NoError(t, p.Initialize(32, 16))
	defer p.Teardown()

	out, err := p.ProcessFrame(split(32, 16))
	require.NoError(t, err)
	require.Len(t, out, 32*16*4)

	row := 8 * 32 * 4
	edgeAt := func(x int) bool {
		px := out[row+x*4 : row+x*4+4]
		return px[0] == 0 && px[1] == 255 && px[2] == 255 && px[3] == 255
	}
	assert.True(t, edgeAt(15) || edgeAt(16), "no edge on the boundary")
	assert.False(t, edgeAt(2))
	assert.False(t, edgeAt(29))
	assert.Equal(t, []byte{0, 0, 0, 255}, out[row:row+4])
}

func TestRawModeCopiesInput(t *testing.T) {
	p := New(zaptest.NewLogger(t))
	require.NoError(t, p.Initialize(4, 4))
	defer p.Teardown()

	p.SetProcessingMode(false)
	in := split(4, 4)
	out, err := p.ProcessFrame(in)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestRejectsWrongSizeAndTornDown(t *testing.T) {
	p := New(zaptest.NewLogger(t))
	require.NoError(t, p.Initialize(4, 4))

	_, err := p.ProcessFrame(make([]byte, 10))
	assert.ErrorIs(t, err, vision.ErrFrameSize)

	p.Teardown()
	_, err = p.ProcessFrame(split(4, 4))
	assert.ErrorIs(t, err, vision.ErrNotInitialized)
}
