// Package synthetic provides a camera that generates placeholder frames.
// It stands in for real hardware during development, headless runs and tests.
package synthetic

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/intothevoid/edgeview/pkg/camera"
)

// DeviceSpec describes one simulated device.
type DeviceSpec struct {
	ID     string
	Facing camera.Facing
	Name   string
}

// Config holds synthetic camera configuration
type Config struct {
	Devices []DeviceSpec
	FPS     int
	// OpenError, when set, makes every Open fail with it.
	OpenError error
}

// Manager implements camera.Manager without hardware.
type Manager struct {
	cfg Config

	mu      sync.Mutex
	devices map[string]*device
}

// NewManager creates a manager. With no devices configured a single
// back-facing camera "0" is simulated.
func NewManager(cfg Config) *Manager {
	if len(cfg.Devices) == 0 {
		cfg.Devices = []DeviceSpec{{ID: "0", Facing: camera.FacingBack, Name: "Synthetic Camera"}}
	}
	if cfg.FPS <= 0 {
		cfg.FPS = 30
	}
	return &Manager{cfg: cfg, devices: make(map[string]*device)}
}

func (m *Manager) CameraIDs() ([]string, error) {
	ids := make([]string, 0, len(m.cfg.Devices))
	for _, d := range m.cfg.Devices {
		ids = append(ids, d.ID)
	}
	return ids, nil
}

func (m *Manager) Characteristics(id string) (camera.Characteristics, error) {
	for _, d := range m.cfg.Devices {
		if d.ID == id {
			return camera.Characteristics{LensFacing: d.Facing, Name: d.Name}, nil
		}
	}
	return camera.Characteristics{}, fmt.Errorf("synthetic: unknown camera %q", id)
}

func (m *Manager) Open(ctx context.Context, id string, listener camera.DeviceListener) (camera.Device, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if m.cfg.OpenError != nil {
		return nil, m.cfg.OpenError
	}
	if _, err := m.Characteristics(id); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, busy := m.devices[id]; busy {
		return nil, fmt.Errorf("synthetic: camera %q already in use", id)
	}
	d := &device{m: m, id: id, listener: listener, fps: m.cfg.FPS}
	m.devices[id] = d
	return d, nil
}

// Disconnect simulates the device being unplugged.
func (m *Manager) Disconnect(id string) {
	m.mu.Lock()
	d := m.devices[id]
	m.mu.Unlock()
	if d != nil {
		d.listener.OnDisconnected(d)
	}
}

// InUse reports whether id is currently open.
func (m *Manager) InUse(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.devices[id]
	return ok
}

type device struct {
	m        *Manager
	id       string
	listener camera.DeviceListener
	fps      int

	mu      sync.Mutex
	session *session
	closed  bool
}

func (d *device) ID() string { return d.id }

func (d *device) CreateSession(ctx context.Context, outputs []*camera.Surface) (camera.Session, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, camera.ErrClosed
	}
	if len(outputs) == 0 {
		return nil, fmt.Errorf("synthetic: session needs an output surface")
	}
	if d.session != nil {
		d.session.Close()
	}
	d.session = &session{fps: d.fps, stop: make(chan struct{})}
	return d.session, nil
}

// Close also closes the active session; a session cannot outlive its device.
func (d *device) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	s := d.session
	d.session = nil
	d.mu.Unlock()

	if s != nil {
		s.Close()
	}
	d.m.mu.Lock()
	delete(d.m.devices, d.id)
	d.m.mu.Unlock()
	return nil
}

type session struct {
	fps int

	mu      sync.Mutex
	running bool
	stop    chan struct{}
	once    sync.Once
	wg      sync.WaitGroup
}

func (s *session) SetRepeatingRequest(req *camera.CaptureRequest, looper *camera.Looper) error {
	if len(req.Targets) == 0 {
		return fmt.Errorf("synthetic: capture request has no target")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	select {
	case <-s.stop:
		return camera.ErrClosed
	default:
	}
	if s.running {
		return fmt.Errorf("synthetic: repeating request already active")
	}
	s.running = true

	s.wg.Add(1)
	go s.captureLoop(req, looper)
	return nil
}

// captureLoop produces frames at the configured rate until Close.
func (s *session) captureLoop(req *camera.CaptureRequest, looper *camera.Looper) {
	defer s.wg.Done()

	ticker := time.NewTicker(time.Second / time.Duration(s.fps))
	defer ticker.Stop()

	var tick int
	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			width, height := req.Targets[0].Size()
			frame := PlaceholderFrame(width, height, tick)
			tick++
			if !camera.DeliverFrame(looper, req, frame, nil) {
				return
			}
		}
	}
}

func (s *session) Close() error {
	s.once.Do(func() { close(s.stop) })
	s.wg.Wait()
	return nil
}

// PlaceholderFrame renders an RGBA gradient whose red channel moves with tick.
func PlaceholderFrame(width, height, tick int) []byte {
	frame := make([]byte, width*height*camera.BytesPerPixel)
	red := byte(tick % 256)

	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			offset := (y*width + x) * camera.BytesPerPixel
			frame[offset] = red
			frame[offset+1] = byte((x * 255) / width)
			frame[offset+2] = byte((y * 255) / height)
			frame[offset+3] = 255
		}
	}
	return frame
}
