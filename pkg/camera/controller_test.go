package camera

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"
)

type fakeManager struct {
	mu         sync.Mutex
	ids        []string
	facing     map[string]Facing
	idsErr     error
	openErr    error
	sessionErr error
	closeErr   error
	// openGate, when set, holds Open until it is closed.
	openGate chan struct{}

	events    []string
	openCount int
	maxOpen   int
	devices   []*fakeDevice
	requests  []*CaptureRequest
}

func newFakeManager(ids ...string) *fakeManager {
	return &fakeManager{ids: ids, facing: map[string]Facing{}}
}

func (m *fakeManager) record(e string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, e)
}

func (m *fakeManager) Events() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.events...)
}

func (m *fakeManager) OpenDevices() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.openCount
}

func (m *fakeManager) CameraIDs() ([]string, error) {
	return m.ids, m.idsErr
}

func (m *fakeManager) Characteristics(id string) (Characteristics, error) {
	return Characteristics{LensFacing: m.facing[id], Name: "fake " + id}, nil
}

func (m *fakeManager) Open(ctx context.Context, id string, l DeviceListener) (Device, error) {
	m.record("device:open")
	if m.openGate != nil {
		<-m.openGate
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.openErr != nil {
		return nil, m.openErr
	}
	m.openCount++
	if m.openCount > m.maxOpen {
		m.maxOpen = m.openCount
	}
	d := &fakeDevice{m: m, id: id, listener: l}
	m.devices = append(m.devices, d)
	return d, nil
}

type fakeDevice struct {
	m        *fakeManager
	id       string
	listener DeviceListener
	closed   bool
}

func (d *fakeDevice) ID() string { return d.id }

func (d *fakeDevice) CreateSession(ctx context.Context, outputs []*Surface) (Session, error) {
	d.m.record("session:create")
	if d.m.sessionErr != nil {
		return nil, d.m.sessionErr
	}
	return &fakeSession{m: d.m}, nil
}

func (d *fakeDevice) Close() error {
	d.m.mu.Lock()
	defer d.m.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true
	d.m.openCount--
	d.m.events = append(d.m.events, "device:close")
	return d.m.closeErr
}

type fakeSession struct {
	m *fakeManager
}

func (s *fakeSession) SetRepeatingRequest(req *CaptureRequest, looper *Looper) error {
	s.m.mu.Lock()
	s.m.requests = append(s.m.requests, req)
	s.m.mu.Unlock()
	s.m.record("session:repeating")

	frame := make([]byte, req.Targets[0].FrameLen())
	for i := range frame {
		frame[i] = 7
	}
	DeliverFrame(looper, req, frame, nil)
	return nil
}

func (s *fakeSession) Close() error {
	s.m.record("session:close")
	return nil
}

type stateLog struct {
	mu     sync.Mutex
	states []State
	errs   []error
}

func (l *stateLog) listen(s State, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.states = append(l.states, s)
	l.errs = append(l.errs, err)
}

func (l *stateLog) last() (State, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.states) == 0 {
		return StateIdle, nil
	}
	return l.states[len(l.states)-1], l.errs[len(l.errs)-1]
}

func (l *stateLog) all() []State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]State(nil), l.states...)
}

func newTestController(t *testing.T, m *fakeManager) (*Controller, *stateLog) {
	t.Helper()
	c := NewController(m, zaptest.NewLogger(t))
	log := &stateLog{}
	c.SetStateListener(log.listen)
	t.Cleanup(func() { _ = c.Cleanup() })
	return c, log
}

func waitForState(t *testing.T, c *Controller, want State) {
	t.Helper()
	require.Eventually(t, func() bool { return c.State() == want }, 2*time.Second, 5*time.Millisecond,
		"controller never reached %s", want)
}

func TestInitializeSelectsFirstBackCamera(t *testing.T) {
	m := newFakeManager("0", "1", "2")
	m.facing["0"] = FacingFront
	m.facing["1"] = FacingBack
	m.facing["2"] = FacingBack

	c, _ := newTestController(t, m)
	require.NoError(t, c.Initialize(context.Background()))
	assert.Equal(t, "1", c.CameraID())
}

func TestNoBackCameraLeavesControllerUnusable(t *testing.T) {
	m := newFakeManager("0")
	m.facing["0"] = FacingFront

	core, logs := observer.New(zapcore.ErrorLevel)
	c := NewController(m, zap.New(core))
	defer c.Cleanup()

	err := c.Initialize(context.Background())
	assert.ErrorIs(t, err, ErrNoCamera)
	assert.Empty(t, c.CameraID())

	err = c.StartCamera(NewSurface(4, 4), 4, 4)
	assert.ErrorIs(t, err, ErrNoCamera)
	assert.Equal(t, StateIdle, c.State())
	assert.Empty(t, m.Events(), "nothing may be opened")
	assert.GreaterOrEqual(t, logs.FilterMessage("Camera start requested without a camera").Len(), 1)
}

func TestInitializeAccessError(t *testing.T) {
	m := newFakeManager()
	m.idsErr = errors.New("service unavailable")

	c, _ := newTestController(t, m)
	err := c.Initialize(context.Background())
	assert.ErrorIs(t, err, ErrCameraAccess)
	assert.Empty(t, c.CameraID())
}

func TestStartCameraBeforeInitialize(t *testing.T) {
	c, _ := newTestController(t, newFakeManager("0"))
	assert.ErrorIs(t, c.StartCamera(NewSurface(2, 2), 2, 2), ErrNotInitialized)
}

func TestStartCameraStreamsIntoSurface(t *testing.T) {
	m := newFakeManager("0")
	c, log := newTestController(t, m)
	require.NoError(t, c.Initialize(context.Background()))

	surface := NewSurface(1, 1)
	require.NoError(t, c.StartCamera(surface, 4, 2))

	select {
	case <-surface.Updated():
	case <-time.After(2 * time.Second):
		t.Fatal("no frame delivered")
	}
	frame, seq := surface.Latest()
	assert.Len(t, frame, 4*2*BytesPerPixel)
	assert.Equal(t, uint64(1), seq)
	assert.Equal(t, byte(7), frame[0])

	waitForState(t, c, StateStreaming)
	require.Eventually(t, func() bool { return len(log.all()) == 3 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, []State{StateOpening, StateConfiguring, StateStreaming}, log.all())
	assert.NotEmpty(t, c.SessionID())

	m.mu.Lock()
	req := m.requests[0]
	m.mu.Unlock()
	assert.Equal(t, AFModeContinuousPicture, req.AFMode)
	assert.Equal(t, TemplatePreview, req.Template)
	assert.Equal(t, []*Surface{surface}, req.Targets)
}

func TestStopClosesSessionBeforeDevice(t *testing.T) {
	m := newFakeManager("0")
	c, _ := newTestController(t, m)
	require.NoError(t, c.Initialize(context.Background()))
	require.NoError(t, c.StartCamera(NewSurface(2, 2), 2, 2))
	waitForState(t, c, StateStreaming)

	require.NoError(t, c.StopCamera())
	assert.Equal(t, StateIdle, c.State())
	assert.Empty(t, c.SessionID())
	assert.Equal(t, []string{
		"device:open", "session:create", "session:repeating", "session:close", "device:close",
	}, m.Events())

	// Stopping again is a no-op.
	require.NoError(t, c.StopCamera())
	assert.Len(t, m.Events(), 5)
}

func TestStartStopStartRepeats(t *testing.T) {
	m := newFakeManager("0")
	c, _ := newTestController(t, m)
	require.NoError(t, c.Initialize(context.Background()))

	surface := NewSurface(2, 2)
	for i := 0; i < 5; i++ {
		require.NoError(t, c.StartCamera(surface, 2, 2))
		waitForState(t, c, StateStreaming)
		require.NoError(t, c.StopCamera())
		assert.Equal(t, 0, m.OpenDevices())
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	assert.Equal(t, 1, m.maxOpen, "a new open must never overlap an open device")
}

func TestStartCameraReleasesPreviousBinding(t *testing.T) {
	m := newFakeManager("0")
	c, _ := newTestController(t, m)
	require.NoError(t, c.Initialize(context.Background()))

	require.NoError(t, c.StartCamera(NewSurface(2, 2), 2, 2))
	waitForState(t, c, StateStreaming)
	require.NoError(t, c.StartCamera(NewSurface(3, 3), 3, 3))
	waitForState(t, c, StateStreaming)

	assert.Equal(t, 1, m.OpenDevices())
	m.mu.Lock()
	defer m.mu.Unlock()
	assert.Equal(t, 1, m.maxOpen)
}

func TestStopBeforePendingOpenSkipsIt(t *testing.T) {
	m := newFakeManager("0")
	c, _ := newTestController(t, m)
	require.NoError(t, c.Initialize(context.Background()))

	// Occupy the looper so the open stays queued.
	block := make(chan struct{})
	c.looper.Post(func() { <-block })

	require.NoError(t, c.StartCamera(NewSurface(2, 2), 2, 2))
	require.NoError(t, c.StopCamera())
	close(block)

	// Drain the looper and make sure the stale open never ran.
	done := make(chan struct{})
	c.looper.Post(func() { close(done) })
	<-done
	assert.Empty(t, m.Events())
	assert.Equal(t, StateIdle, c.State())
}

func TestOpenFailureReturnsToIdle(t *testing.T) {
	m := newFakeManager("0")
	m.openErr = errors.New("camera in use")
	c, log := newTestController(t, m)
	require.NoError(t, c.Initialize(context.Background()))

	require.NoError(t, c.StartCamera(NewSurface(2, 2), 2, 2))
	require.Eventually(t, func() bool {
		s, err := log.last()
		return s == StateIdle && err != nil
	}, 2*time.Second, 5*time.Millisecond)

	_, err := log.last()
	assert.ErrorIs(t, err, ErrCameraAccess)
	assert.Equal(t, 0, m.OpenDevices())
}

func TestConfigureFailureClosesDevice(t *testing.T) {
	m := newFakeManager("0")
	m.sessionErr = errors.New("bad surface")
	c, log := newTestController(t, m)
	require.NoError(t, c.Initialize(context.Background()))

	require.NoError(t, c.StartCamera(NewSurface(2, 2), 2, 2))
	require.Eventually(t, func() bool {
		s, err := log.last()
		return s == StateIdle && err != nil
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, 0, m.OpenDevices())
	assert.Equal(t, []string{"device:open", "session:create", "device:close"}, m.Events())
}

func TestConfigureFailureLogsCloseError(t *testing.T) {
	m := newFakeManager("0")
	m.sessionErr = errors.New("bad surface")
	m.closeErr = errors.New("device busy")

	core, logs := observer.New(zapcore.WarnLevel)
	c := NewController(m, zap.New(core))
	defer c.Cleanup()
	require.NoError(t, c.Initialize(context.Background()))

	require.NoError(t, c.StartCamera(NewSurface(2, 2), 2, 2))
	require.Eventually(t, func() bool {
		return logs.FilterMessage("Error releasing camera binding").Len() == 1
	}, 2*time.Second, 5*time.Millisecond)
	entry := logs.FilterMessage("Error releasing camera binding").All()[0]
	assert.Contains(t, entry.ContextMap()["error"], "device busy")
	assert.Equal(t, StateIdle, c.State())
}

func TestSlowOpenDoesNotBlockReaders(t *testing.T) {
	m := newFakeManager("0")
	m.openGate = make(chan struct{})
	c, log := newTestController(t, m)
	require.NoError(t, c.Initialize(context.Background()))

	require.NoError(t, c.StartCamera(NewSurface(2, 2), 2, 2))
	require.Eventually(t, func() bool { return len(m.Events()) == 1 }, 2*time.Second, 5*time.Millisecond)

	done := make(chan struct{})
	go func() {
		defer close(done)
		assert.Equal(t, StateOpening, c.State())
		assert.Equal(t, "0", c.CameraID())
		assert.Empty(t, c.SessionID())
		assert.NoError(t, c.StopCamera())
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		close(m.openGate)
		t.Fatal("readers blocked behind an open in flight")
	}
	assert.Equal(t, StateIdle, c.State())

	// The open finishes after the stop and must close its own device.
	close(m.openGate)
	require.Eventually(t, func() bool {
		return len(m.Events()) == 2
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"device:open", "device:close"}, m.Events())
	assert.Equal(t, 0, m.OpenDevices())
	assert.Equal(t, StateIdle, c.State())
	assert.Equal(t, []State{StateOpening, StateIdle}, log.all())
}

func TestDeviceErrorReleasesHandles(t *testing.T) {
	m := newFakeManager("0")
	c, log := newTestController(t, m)
	require.NoError(t, c.Initialize(context.Background()))
	require.NoError(t, c.StartCamera(NewSurface(2, 2), 2, 2))
	waitForState(t, c, StateStreaming)

	m.mu.Lock()
	dev := m.devices[0]
	m.mu.Unlock()
	dev.listener.OnError(dev, errors.New("fatal device error"))

	require.Eventually(t, func() bool {
		s, err := log.last()
		return s == StateIdle && err != nil
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, 0, m.OpenDevices())

	// No automatic reopen.
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, StateIdle, c.State())
}

func TestDisconnectAfterStopIsIgnored(t *testing.T) {
	m := newFakeManager("0")
	c, log := newTestController(t, m)
	require.NoError(t, c.Initialize(context.Background()))
	require.NoError(t, c.StartCamera(NewSurface(2, 2), 2, 2))
	waitForState(t, c, StateStreaming)

	m.mu.Lock()
	dev := m.devices[0]
	m.mu.Unlock()
	require.NoError(t, c.StopCamera())
	n := len(log.all())

	dev.listener.OnDisconnected(dev)
	done := make(chan struct{})
	c.looper.Post(func() { close(done) })
	<-done

	assert.Len(t, log.all(), n, "stale disconnect must not produce a transition")
}

func TestCleanupIsIdempotent(t *testing.T) {
	m := newFakeManager("0")
	c, _ := newTestController(t, m)
	require.NoError(t, c.Initialize(context.Background()))
	require.NoError(t, c.StartCamera(NewSurface(2, 2), 2, 2))
	waitForState(t, c, StateStreaming)

	require.NoError(t, c.Cleanup())
	require.NoError(t, c.Cleanup())
	assert.Equal(t, 0, m.OpenDevices())
	assert.False(t, c.looper.Post(func() {}), "looper must be stopped")
	assert.ErrorIs(t, c.StartCamera(NewSurface(2, 2), 2, 2), ErrNotInitialized)
}

func TestCleanupWithoutInitialize(t *testing.T) {
	c := NewController(newFakeManager(), zaptest.NewLogger(t))
	assert.NoError(t, c.Cleanup())
	assert.NoError(t, c.Cleanup())
}
