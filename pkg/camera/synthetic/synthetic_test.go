package synthetic

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/intothevoid/edgeview/pkg/camera"
)

func TestPlaceholderFrame(t *testing.T) {
	frame := PlaceholderFrame(4, 2, 300)
	require.Len(t, frame, 4*2*4)

	// Red follows the tick, green the column, blue the row.
	assert.Equal(t, byte(300%256), frame[0])
	assert.Equal(t, byte(0), frame[1])
	assert.Equal(t, byte(0), frame[2])
	assert.Equal(t, byte(255), frame[3])

	last := frame[len(frame)-4:]
	assert.Equal(t, byte(3*255/4), last[1])
	assert.Equal(t, byte(1*255/2), last[2])
}

func TestControllerStreamsSyntheticFrames(t *testing.T) {
	m := NewManager(Config{FPS: 100})
	c := camera.NewController(m, zaptest.NewLogger(t))
	defer c.Cleanup()

	require.NoError(t, c.Initialize(context.Background()))
	surface := camera.NewSurface(8, 6)
	require.NoError(t, c.StartCamera(surface, 8, 6))

	select {
	case <-surface.Updated():
	case <-time.After(2 * time.Second):
		t.Fatal("no synthetic frame arrived")
	}
	frame, _ := surface.Latest()
	assert.Len(t, frame, 8*6*4)

	require.NoError(t, c.StopCamera())
	assert.False(t, m.InUse("0"))
}

func TestSelectsBackFacingDevice(t *testing.T) {
	m := NewManager(Config{Devices: []DeviceSpec{
		{ID: "front", Facing: camera.FacingFront},
		{ID: "usb", Facing: camera.FacingExternal},
		{ID: "rear", Facing: camera.FacingBack},
	}})
	c := camera.NewController(m, zaptest.NewLogger(t))
	defer c.Cleanup()

	require.NoError(t, c.Initialize(context.Background()))
	assert.Equal(t, "rear", c.CameraID())
}

func TestZeroBackCamerasIsNotFatal(t *testing.T) {
	m := NewManager(Config{Devices: []DeviceSpec{{ID: "front", Facing: camera.FacingFront}}})
	c := camera.NewController(m, zaptest.NewLogger(t))
	defer c.Cleanup()

	assert.ErrorIs(t, c.Initialize(context.Background()), camera.ErrNoCamera)
	assert.Empty(t, c.CameraID())
	assert.ErrorIs(t, c.StartCamera(camera.NewSurface(2, 2), 2, 2), camera.ErrNoCamera)
}

func TestOpenErrorAndDisconnect(t *testing.T) {
	m := NewManager(Config{OpenError: errors.New("busy")})
	_, err := m.Open(context.Background(), "0", nil)
	assert.EqualError(t, err, "busy")

	m = NewManager(Config{FPS: 50})
	c := camera.NewController(m, zaptest.NewLogger(t))
	defer c.Cleanup()

	var lastErr error
	done := make(chan struct{}, 8)
	c.SetStateListener(func(s camera.State, err error) {
		if s == camera.StateIdle && err != nil {
			lastErr = err
			done <- struct{}{}
		}
	})
	require.NoError(t, c.Initialize(context.Background()))
	require.NoError(t, c.StartCamera(camera.NewSurface(2, 2), 2, 2))
	require.Eventually(t, func() bool { return c.State() == camera.StateStreaming }, 2*time.Second, 5*time.Millisecond)

	m.Disconnect("0")
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("disconnect not reported")
	}
	assert.ErrorIs(t, lastErr, camera.ErrDisconnected)
	assert.False(t, m.InUse("0"))
	assert.Equal(t, camera.StateIdle, c.State())
}
