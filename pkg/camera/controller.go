package camera

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Controller owns one camera device and the looper that receives its
// callbacks. The published device/session pair lives behind mu. Opens run
// one at a time on the looper, so a device is never opened while an
// earlier one is still held.
type Controller struct {
	manager  Manager
	logger   *zap.Logger
	listener StateListener

	mu        sync.Mutex
	looper    *Looper
	ctx       context.Context
	cancel    context.CancelFunc
	cameraID  string
	device    Device
	session   Session
	sessionID string
	state     State
	// gen identifies the current binding. Callbacks carrying an older value
	// belong to a binding that was already stopped.
	gen     uint64
	cleaned bool
}

// NewController creates a controller over the platform camera manager.
func NewController(manager Manager, logger *zap.Logger) *Controller {
	return &Controller{
		manager: manager,
		logger:  logger.Named("camera"),
	}
}

// SetStateListener registers the transition observer. Call before Initialize.
func (c *Controller) SetStateListener(l StateListener) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listener = l
}

// Initialize starts the background looper and selects the first
// back-facing camera. There is no retry: on error the controller stays
// without a camera.
func (c *Controller) Initialize(ctx context.Context) error {
	c.mu.Lock()
	if c.cleaned {
		c.mu.Unlock()
		return ErrNotInitialized
	}
	if c.looper == nil {
		c.looper = NewLooper("CameraBackground")
		c.looper.Start()
		c.ctx, c.cancel = context.WithCancel(context.Background())
	}
	c.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	ids, err := c.manager.CameraIDs()
	if err != nil {
		c.logger.Error("Error setting up camera", zap.Error(err))
		return fmt.Errorf("%w: list cameras: %v", ErrCameraAccess, err)
	}

	for _, id := range ids {
		ch, err := c.manager.Characteristics(id)
		if err != nil {
			c.logger.Error("Error setting up camera", zap.String("camera_id", id), zap.Error(err))
			return fmt.Errorf("%w: characteristics of %s: %v", ErrCameraAccess, id, err)
		}
		if ch.LensFacing == FacingBack {
			c.mu.Lock()
			c.cameraID = id
			c.mu.Unlock()
			c.logger.Info("Camera selected", zap.String("camera_id", id), zap.String("name", ch.Name))
			return nil
		}
	}

	c.logger.Error("No back-facing camera found", zap.Int("devices", len(ids)))
	return ErrNoCamera
}

// CameraID returns the selected device, empty when none was found.
func (c *Controller) CameraID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cameraID
}

// State returns the current lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// SessionID identifies the streaming session, empty when not streaming.
func (c *Controller) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

// StartCamera opens the selected device asynchronously and streams into
// target at width x height. A previous binding is released first.
func (c *Controller) StartCamera(target *Surface, width, height int) error {
	c.mu.Lock()
	if c.looper == nil || c.cleaned {
		c.mu.Unlock()
		c.logger.Error("Camera start requested before initialization")
		return ErrNotInitialized
	}
	if c.cameraID == "" {
		c.mu.Unlock()
		c.logger.Error("Camera start requested without a camera")
		return ErrNoCamera
	}
	if width <= 0 || height <= 0 {
		c.mu.Unlock()
		return fmt.Errorf("camera: invalid target size %dx%d", width, height)
	}

	relErr := c.releaseLocked()
	c.gen++
	gen, id, looper := c.gen, c.cameraID, c.looper
	notify := c.transitionLocked(StateOpening, nil)
	c.mu.Unlock()
	notify()

	if relErr != nil {
		c.logger.Warn("Error releasing previous camera binding", zap.Error(relErr))
	}

	c.logger.Info("Opening camera",
		zap.String("camera_id", id),
		zap.Int("width", width),
		zap.Int("height", height),
	)

	if !looper.Post(func() { c.open(gen, id, target, width, height) }) {
		c.mu.Lock()
		notify := c.transitionLocked(StateIdle, ErrNotInitialized)
		c.mu.Unlock()
		notify()
		return ErrNotInitialized
	}
	return nil
}

// StopCamera closes the session, then the device. Safe when stopped.
func (c *Controller) StopCamera() error {
	c.mu.Lock()
	c.gen++
	err := c.releaseLocked()
	notify := func() {}
	if c.state != StateIdle {
		notify = c.transitionLocked(StateIdle, nil)
	}
	c.mu.Unlock()
	notify()

	if err != nil {
		c.logger.Warn("Error closing camera", zap.Error(err))
	}
	return err
}

// Cleanup stops the camera, then stops and joins the looper. No callback
// runs after it returns. It must not be called from a looper callback.
func (c *Controller) Cleanup() error {
	c.mu.Lock()
	if c.cleaned {
		c.mu.Unlock()
		return nil
	}
	c.cleaned = true
	looper, cancel := c.looper, c.cancel
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	err := c.StopCamera()

	if looper != nil {
		looper.QuitSafely()
		looper.Join()
	}
	c.logger.Debug("Camera controller cleaned up")
	return err
}

// open runs on the looper. The platform calls block, so mu is only held
// between them; the handles are published once the session is streaming.
// If the binding is stopped meanwhile, open closes what it created.
func (c *Controller) open(gen uint64, id string, target *Surface, width, height int) {
	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		return
	}
	ctx, looper := c.ctx, c.looper
	c.mu.Unlock()

	dev, err := c.manager.Open(ctx, id, &deviceListener{c: c, gen: gen, looper: looper})
	if err != nil {
		c.logger.Error("Error opening camera", zap.String("camera_id", id), zap.Error(err))
		c.abort(gen, nil, nil, fmt.Errorf("%w: open %s: %v", ErrCameraAccess, id, err))
		return
	}
	if !c.advance(gen, StateConfiguring) {
		c.discard(nil, dev)
		return
	}

	target.SetDefaultBufferSize(width, height)
	session, err := dev.CreateSession(ctx, []*Surface{target})
	if err != nil {
		c.logger.Error("Capture session configuration failed", zap.Error(err))
		c.abort(gen, nil, dev, fmt.Errorf("%w: configure: %v", ErrCameraAccess, err))
		return
	}

	req := NewCaptureRequest(TemplatePreview)
	req.AddTarget(target)
	req.AFMode = AFModeContinuousPicture

	if err := session.SetRepeatingRequest(req, looper); err != nil {
		c.logger.Error("Error creating capture session", zap.Error(err))
		c.abort(gen, session, dev, fmt.Errorf("%w: repeating request: %v", ErrCameraAccess, err))
		return
	}

	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		c.discard(session, dev)
		return
	}
	c.device, c.session = dev, session
	c.sessionID = uuid.NewString()
	sessionID := c.sessionID
	notify := c.transitionLocked(StateStreaming, nil)
	c.mu.Unlock()

	c.logger.Info("Camera streaming",
		zap.String("camera_id", id),
		zap.String("session_id", sessionID),
	)
	notify()
}

// advance moves a binding that is still current to s.
func (c *Controller) advance(gen uint64, s State) bool {
	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		return false
	}
	notify := c.transitionLocked(s, nil)
	c.mu.Unlock()
	notify()
	return true
}

// abort closes the handles of a failed open and returns a still current
// binding to Idle with cause.
func (c *Controller) abort(gen uint64, session Session, dev Device, cause error) {
	c.discard(session, dev)
	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		return
	}
	notify := c.transitionLocked(StateIdle, cause)
	c.mu.Unlock()
	notify()
}

// discard closes handles that were never published, session first.
func (c *Controller) discard(session Session, dev Device) {
	var err error
	if session != nil {
		err = multierr.Append(err, session.Close())
	}
	if dev != nil {
		err = multierr.Append(err, dev.Close())
	}
	if err != nil {
		c.logger.Warn("Error releasing camera binding", zap.Error(err))
	}
}

// onDeviceFailure runs on the looper after a disconnect or device error.
func (c *Controller) onDeviceFailure(gen uint64, d Device, cause error) {
	c.mu.Lock()
	if gen != c.gen || c.device != d {
		c.mu.Unlock()
		if err := d.Close(); err != nil {
			c.logger.Debug("Error closing stale camera device", zap.Error(err))
		}
		return
	}
	c.logger.Error("Camera error", zap.String("camera_id", d.ID()), zap.Error(cause))
	c.releaseLocked()
	notify := c.transitionLocked(StateIdle, cause)
	c.mu.Unlock()
	notify()
}

// releaseLocked closes the session before the device and clears both.
func (c *Controller) releaseLocked() error {
	var err error
	if c.session != nil {
		err = multierr.Append(err, c.session.Close())
		c.session = nil
	}
	if c.device != nil {
		err = multierr.Append(err, c.device.Close())
		c.device = nil
	}
	c.sessionID = ""
	return err
}

// transitionLocked records the new state and returns the notification to
// run once mu is released.
func (c *Controller) transitionLocked(s State, err error) func() {
	c.state = s
	l := c.listener
	if l == nil {
		return func() {}
	}
	return func() { l(s, err) }
}

type deviceListener struct {
	c      *Controller
	gen    uint64
	looper *Looper
}

func (l *deviceListener) OnDisconnected(d Device) {
	l.post(d, ErrDisconnected)
}

func (l *deviceListener) OnError(d Device, err error) {
	l.post(d, fmt.Errorf("%w: %v", ErrCameraAccess, err))
}

// post may run while the looper holds the controller lock, so it only queues.
func (l *deviceListener) post(d Device, cause error) {
	if !l.looper.Post(func() { l.c.onDeviceFailure(l.gen, d, cause) }) {
		_ = d.Close()
	}
}

// DeliverFrame posts one frame to every target of req on looper. Session
// implementations call it for each captured frame.
func DeliverFrame(looper *Looper, req *CaptureRequest, frame []byte, onErr func(error)) bool {
	targets := req.Targets
	return looper.Post(func() {
		for _, t := range targets {
			if err := t.Write(frame); err != nil && onErr != nil {
				onErr(err)
			}
		}
	})
}
