// Package pipeline connects the camera, the processing backend and the
// presenter, and reports the resulting frame rate and health.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/intothevoid/edgeview/pkg/camera"
	"github.com/intothevoid/edgeview/pkg/fps"
	"github.com/intothevoid/edgeview/pkg/render"
	"github.com/intothevoid/edgeview/pkg/telemetry"
	"github.com/intothevoid/edgeview/pkg/vision"
)

var (
	// ErrPermissionDenied is returned by Start when camera access is refused.
	ErrPermissionDenied = errors.New("pipeline: camera permission required")
	// ErrBackendInit marks a processing backend that failed to initialize.
	ErrBackendInit = errors.New("pipeline: processing backend initialization failed")
)

// Display receives every presented frame. The image is not reused.
type Display interface {
	Show(img image.Image)
}

// Orchestrator is the only component that talks to the processing backend.
type Orchestrator struct {
	logger     *zap.Logger
	controller *camera.Controller
	backend    vision.Backend
	view       *render.View
	surface    *camera.Surface
	gate       PermissionGate
	tracker    *fps.Tracker
	metrics    *telemetry.Metrics

	// frameMu serializes frame processing with surface lifecycle events.
	frameMu sync.Mutex

	mu            sync.Mutex
	displays      []Display
	processing    bool
	width, height int
	// pending is a size reported before the surface became available.
	pending       [2]int
	surfaceActive bool
	backendReady  bool
	closed        bool
	cameraErr     error
	backendErr    error
	renderErr     error
	presented     uint64
	skipped       uint64
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

func WithPermissionGate(g PermissionGate) Option {
	return func(o *Orchestrator) { o.gate = g }
}

func WithTracker(t *fps.Tracker) Option {
	return func(o *Orchestrator) { o.tracker = t }
}

func WithMetrics(m *telemetry.Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

func WithDisplays(d ...Display) Option {
	return func(o *Orchestrator) { o.displays = append(o.displays, d...) }
}

// WithProcessing sets the initial mode. Processing is on by default.
func WithProcessing(enabled bool) Option {
	return func(o *Orchestrator) { o.processing = enabled }
}

// New creates an orchestrator. It registers itself as the controller's
// state listener.
func New(controller *camera.Controller, backend vision.Backend, target render.Target, logger *zap.Logger, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		logger:     logger.Named("pipeline"),
		controller: controller,
		backend:    backend,
		view:       render.NewView(target, logger),
		surface:    camera.NewSurface(0, 0),
		gate:       AutoGrant(true),
		processing: true,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.tracker == nil {
		o.tracker = fps.NewTracker()
	}
	controller.SetStateListener(o.onCameraState)
	return o
}

// Surface is the camera output target frames are read from.
func (o *Orchestrator) Surface() *camera.Surface { return o.surface }

// Tracker returns the frame-rate tracker fed by presented frames.
func (o *Orchestrator) Tracker() *fps.Tracker { return o.tracker }

// AddDisplay registers another frame consumer.
func (o *Orchestrator) AddDisplay(d Display) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.displays = append(o.displays, d)
}

// Start requests camera permission and initializes the camera controller.
// A missing or inaccessible camera is not fatal; it shows up in Status.
func (o *Orchestrator) Start(ctx context.Context) error {
	granted, err := o.gate.RequestCamera(ctx)
	if err != nil {
		return fmt.Errorf("request camera permission: %w", err)
	}
	if !granted {
		o.logger.Error("Camera permission required")
		return ErrPermissionDenied
	}

	if err := o.controller.Initialize(ctx); err != nil {
		o.setCameraErr(err)
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
	}
	return nil
}

// OnSurfaceAvailable starts streaming into a new width x height surface.
// A size change that arrived first wins over width and height.
func (o *Orchestrator) OnSurfaceAvailable(width, height int) {
	o.frameMu.Lock()
	defer o.frameMu.Unlock()

	o.mu.Lock()
	if o.pending != [2]int{} {
		width, height = o.pending[0], o.pending[1]
		o.pending = [2]int{}
	}
	o.width, o.height = width, height
	o.surfaceActive = true
	processing := o.processing
	o.mu.Unlock()

	o.logger.Info("Surface available", zap.Int("width", width), zap.Int("height", height))

	if err := o.controller.StartCamera(o.surface, width, height); err != nil {
		o.setCameraErr(err)
	}

	if err := o.backend.Initialize(width, height); err != nil {
		o.logger.Error("Failed to initialize native components", zap.Error(err))
		o.mu.Lock()
		o.backendErr = fmt.Errorf("%w: %v", ErrBackendInit, err)
		o.mu.Unlock()
	} else {
		o.backend.SetProcessingMode(processing)
		o.mu.Lock()
		o.backendReady = true
		o.backendErr = nil
		o.mu.Unlock()
	}

	o.setupView(width, height)
}

func (o *Orchestrator) setupView(width, height int) {
	err := o.view.Create()
	o.mu.Lock()
	o.renderErr = err
	o.mu.Unlock()
	o.view.Change(width, height)
	o.view.Presenter().SetTextureSize(width, height)
}

// OnSurfaceSizeChanged rebinds the camera at the new size.
func (o *Orchestrator) OnSurfaceSizeChanged(width, height int) {
	o.frameMu.Lock()
	defer o.frameMu.Unlock()

	o.mu.Lock()
	active := o.surfaceActive
	same := width == o.width && height == o.height
	if active {
		o.width, o.height = width, height
	} else {
		o.pending = [2]int{width, height}
	}
	o.mu.Unlock()

	if !active {
		o.logger.Debug("Size change before surface available", zap.Int("width", width), zap.Int("height", height))
		return
	}
	if same {
		return
	}
	o.logger.Info("Surface size changed", zap.Int("width", width), zap.Int("height", height))

	o.backend.UpdateSize(width, height)
	o.view.Change(width, height)
	o.view.Presenter().SetTextureSize(width, height)

	if err := o.controller.StartCamera(o.surface, width, height); err != nil {
		o.setCameraErr(err)
	}
}

// OnSurfaceDestroyed stops the camera and tears the backend down once.
func (o *Orchestrator) OnSurfaceDestroyed() {
	o.frameMu.Lock()
	defer o.frameMu.Unlock()

	o.logger.Info("Surface destroyed")
	if err := o.controller.StopCamera(); err != nil {
		o.logger.Warn("Error stopping camera", zap.Error(err))
	}

	o.mu.Lock()
	o.surfaceActive = false
	o.pending = [2]int{}
	teardown := o.backendReady
	o.backendReady = false
	o.mu.Unlock()

	if teardown {
		o.backend.Teardown()
	}
	o.view.Destroy()
}

// OnSurfaceUpdated processes and presents the newest frame. Frames the
// backend declines are skipped: nothing is drawn and the FPS is not
// advanced, so the previous frame stays on screen.
func (o *Orchestrator) OnSurfaceUpdated(ctx context.Context) bool {
	o.frameMu.Lock()
	defer o.frameMu.Unlock()

	o.mu.Lock()
	ready := o.surfaceActive && o.backendReady && !o.closed
	o.mu.Unlock()
	if !ready {
		o.skip(ctx, "inactive")
		return false
	}

	frame, seq := o.surface.Latest()
	if frame == nil {
		o.skip(ctx, "no_frame")
		return false
	}

	out, err := o.backend.ProcessFrame(frame)
	if err != nil {
		o.logger.Debug("Frame processing failed", zap.Uint64("seq", seq), zap.Error(err))
		o.skip(ctx, "backend_error")
		return false
	}
	if out == nil {
		o.skip(ctx, "backend_empty")
		return false
	}

	if err := o.view.Presenter().UpdateTexture(out); err != nil {
		o.logger.Debug("Texture upload failed", zap.Uint64("seq", seq), zap.Error(err))
		o.skip(ctx, "upload")
		return false
	}
	img, err := o.view.Render()
	if err != nil {
		o.logger.Debug("Render failed", zap.Uint64("seq", seq), zap.Error(err))
		o.skip(ctx, "render")
		return false
	}

	o.mu.Lock()
	displays := append([]Display(nil), o.displays...)
	o.presented++
	o.mu.Unlock()

	for _, d := range displays {
		d.Show(img)
	}
	o.tracker.OnFrame()
	o.metrics.FramePresented(ctx)
	return true
}

func (o *Orchestrator) skip(ctx context.Context, reason string) {
	o.mu.Lock()
	o.skipped++
	o.mu.Unlock()
	o.metrics.FrameSkipped(ctx, reason)
}

// Run presents frames as the surface signals them until ctx is done.
// Processing happens inline, so a slow backend lowers the frame rate.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.logger.Debug("Render loop started")
	defer o.logger.Debug("Render loop stopped")
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-o.surface.Updated():
			o.OnSurfaceUpdated(ctx)
		}
	}
}

// ToggleProcessing flips between edge detection and the raw feed and
// returns the new mode.
func (o *Orchestrator) ToggleProcessing() bool {
	o.mu.Lock()
	o.processing = !o.processing
	enabled := o.processing
	o.mu.Unlock()

	o.backend.SetProcessingMode(enabled)
	o.logger.Info("Processing mode changed", zap.String("mode", ModeLabel(enabled)))
	return enabled
}

// Processing reports the current mode.
func (o *Orchestrator) Processing() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.processing
}

// Status reports mode, rate, camera state and whether the pipeline is
// degraded.
func (o *Orchestrator) Status() Status {
	cameraID := o.controller.CameraID()
	st := Status{
		FPS:         o.tracker.FPS(),
		CameraID:    cameraID,
		CameraState: o.controller.State().String(),
		SessionID:   o.controller.SessionID(),
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	st.Processing = o.processing
	st.Mode = ModeLabel(o.processing)
	st.Width, st.Height = o.width, o.height
	st.Presented, st.Skipped = o.presented, o.skipped

	switch {
	case o.cameraErr != nil:
		st.Degraded, st.Reason = true, "Camera unavailable: "+o.cameraErr.Error()
	case o.backendErr != nil:
		st.Degraded, st.Reason = true, o.backendErr.Error()
	case o.renderErr != nil:
		st.Degraded, st.Reason = true, o.renderErr.Error()
	}
	return st
}

// Close releases the camera, the backend and the presenter.
func (o *Orchestrator) Close() error {
	o.frameMu.Lock()
	defer o.frameMu.Unlock()

	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return nil
	}
	o.closed = true
	teardown := o.backendReady
	o.backendReady = false
	o.mu.Unlock()

	err := o.controller.Cleanup()
	if teardown {
		o.backend.Teardown()
	}
	o.view.Destroy()
	err = multierr.Append(err, o.metrics.Close())
	return err
}

func (o *Orchestrator) setCameraErr(err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.cameraErr = err
}

// onCameraState records camera failures for Status. It runs on the
// camera looper.
func (o *Orchestrator) onCameraState(s camera.State, err error) {
	o.logger.Debug("Camera state", zap.Stringer("state", s), zap.Error(err))
	o.mu.Lock()
	defer o.mu.Unlock()
	switch {
	case err != nil:
		o.cameraErr = err
	case s == camera.StateStreaming:
		o.cameraErr = nil
	}
}
