package edgeview

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/intothevoid/edgeview/pkg/camera"
	"github.com/intothevoid/edgeview/pkg/camera/cvcam"
	"github.com/intothevoid/edgeview/pkg/camera/synthetic"
	"github.com/intothevoid/edgeview/pkg/config"
	"github.com/intothevoid/edgeview/pkg/pipeline"
	"github.com/intothevoid/edgeview/pkg/vision"
	"github.com/intothevoid/edgeview/pkg/vision/canny"
	"github.com/intothevoid/edgeview/pkg/vision/sobel"
)

func syntheticConfig() config.Config {
	cfg := config.Default()
	cfg.Source = config.SourceSynthetic
	cfg.Backend = config.BackendSobel
	cfg.Width, cfg.Height = 32, 24
	cfg.CaptureFPS = 60
	cfg.HTTPAddr = ""
	cfg.GrantCamera = true
	return cfg
}

func TestSelectors(t *testing.T) {
	log := zaptest.NewLogger(t)
	cfg := config.Default()

	assert.IsType(t, &cvcam.Manager{}, NewManager(cfg, log))
	cfg.Source = config.SourceSynthetic
	assert.IsType(t, &synthetic.Manager{}, NewManager(cfg, log))

	assert.IsType(t, &canny.Processor{}, NewBackend(cfg, log))
	cfg.Backend = config.BackendSobel
	assert.IsType(t, &sobel.Processor{}, NewBackend(cfg, log))
	cfg.Backend = config.BackendPassthrough
	assert.IsType(t, &vision.Passthrough{}, NewBackend(cfg, log))
}

func TestSyntheticPipelineEndToEnd(t *testing.T) {
	a, err := New(context.Background(), syntheticConfig(), zaptest.NewLogger(t))
	require.NoError(t, err)
	assert.Nil(t, a.Server)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, a.Pipeline.Start(ctx))
	a.Pipeline.OnSurfaceAvailable(32, 24)

	done := make(chan error, 1)
	go func() { done <- a.Serve(ctx) }()

	require.Eventually(t, func() bool {
		_, _, err := a.Frames.JPEG()
		return err == nil
	}, 5*time.Second, 10*time.Millisecond)

	st := a.Pipeline.Status()
	assert.Equal(t, camera.StateStreaming.String(), st.CameraState)
	assert.False(t, st.Degraded)
	assert.Positive(t, st.Presented)

	cancel()
	require.NoError(t, <-done)
	a.Pipeline.OnSurfaceDestroyed()
	require.NoError(t, a.Close(context.Background()))
}

func TestPermissionRequiredWithoutGrant(t *testing.T) {
	cfg := syntheticConfig()
	cfg.GrantCamera = false
	a, err := New(context.Background(), cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	defer a.Close(context.Background())

	assert.ErrorIs(t, a.Pipeline.Start(context.Background()), pipeline.ErrPermissionDenied)
}
