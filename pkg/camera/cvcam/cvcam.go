// Package cvcam exposes OpenCV capture devices as cameras.
package cvcam

import (
	"context"
	"fmt"
	"image"
	"slices"
	"strconv"
	"sync"

	"go.uber.org/zap"
	"gocv.io/x/gocv"

	"github.com/intothevoid/edgeview/pkg/camera"
)

// maxReadFailures is the number of consecutive failed reads treated as an
// unplugged device.
const maxReadFailures = 30

// Config holds OpenCV camera configuration
type Config struct {
	// Devices lists the OpenCV device indices to expose.
	Devices []int
	// Front marks device indices that face the user.
	Front []int
}

// Manager implements camera.Manager on top of gocv.VideoCapture.
type Manager struct {
	cfg    Config
	logger *zap.Logger
}

// NewManager creates a manager; with no devices configured index 0 is used.
func NewManager(cfg Config, logger *zap.Logger) *Manager {
	if len(cfg.Devices) == 0 {
		cfg.Devices = []int{0}
	}
	return &Manager{cfg: cfg, logger: logger.Named("cvcam")}
}

func (m *Manager) CameraIDs() ([]string, error) {
	ids := make([]string, 0, len(m.cfg.Devices))
	for _, d := range m.cfg.Devices {
		ids = append(ids, strconv.Itoa(d))
	}
	return ids, nil
}

func (m *Manager) Characteristics(id string) (camera.Characteristics, error) {
	index, err := m.index(id)
	if err != nil {
		return camera.Characteristics{}, err
	}
	facing := camera.FacingBack
	if slices.Contains(m.cfg.Front, index) {
		facing = camera.FacingFront
	}
	return camera.Characteristics{
		LensFacing: facing,
		Name:       fmt.Sprintf("OpenCV device %d", index),
	}, nil
}

func (m *Manager) Open(ctx context.Context, id string, listener camera.DeviceListener) (camera.Device, error) {
	index, err := m.index(id)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	webcam, err := gocv.VideoCaptureDevice(index)
	if err != nil {
		return nil, fmt.Errorf("failed to open device: %v", err)
	}
	if !webcam.IsOpened() {
		webcam.Close()
		return nil, fmt.Errorf("device %d is not available", index)
	}

	return &device{
		id:       id,
		webcam:   webcam,
		listener: listener,
		logger:   m.logger.With(zap.String("camera_id", id)),
	}, nil
}

func (m *Manager) index(id string) (int, error) {
	index, err := strconv.Atoi(id)
	if err != nil || !slices.Contains(m.cfg.Devices, index) {
		return 0, fmt.Errorf("cvcam: unknown camera %q", id)
	}
	return index, nil
}

type device struct {
	id       string
	webcam   *gocv.VideoCapture
	listener camera.DeviceListener
	logger   *zap.Logger

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
		return nil, fmt.Errorf("cvcam: session needs an output surface")
	}

	// Ask the driver for the target size; frames are resized anyway.
	width, height := outputs[0].Size()
	d.webcam.Set(gocv.VideoCaptureFrameWidth, float64(width))
	d.webcam.Set(gocv.VideoCaptureFrameHeight, float64(height))

	if d.session != nil {
		d.session.Close()
	}
	d.session = &session{d: d, stop: make(chan struct{})}
	return d.session, nil
}

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
	return d.webcam.Close()
}

type session struct {
	d *device

	mu      sync.Mutex
	running bool
	stop    chan struct{}
	once    sync.Once
	wg      sync.WaitGroup
}

func (s *session) SetRepeatingRequest(req *camera.CaptureRequest, looper *camera.Looper) error {
	if len(req.Targets) == 0 {
		return fmt.Errorf("cvcam: capture request has no target")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	select {
	case <-s.stop:
		return camera.ErrClosed
	default:
	}
	if s.running {
		return fmt.Errorf("cvcam: repeating request already active")
	}
	s.running = true

	if req.AFMode == camera.AFModeContinuousPicture {
		s.d.webcam.Set(gocv.VideoCaptureAutoFocus, 1)
	}

	s.wg.Add(1)
	go s.captureLoop(req, looper)
	return nil
}

// captureLoop reads BGR frames, scales them to the target and converts to RGBA.
func (s *session) captureLoop(req *camera.CaptureRequest, looper *camera.Looper) {
	defer s.wg.Done()

	frame := gocv.NewMat()
	defer frame.Close()
	resized := gocv.NewMat()
	defer resized.Close()
	rgba := gocv.NewMat()
	defer rgba.Close()

	failures := 0
	for {
		select {
		case <-s.stop:
			return
		default:
		}

		if !s.d.webcam.Read(&frame) || frame.Empty() {
			failures++
			if failures >= maxReadFailures {
				s.d.logger.Warn("Camera stopped delivering frames", zap.Int("failures", failures))
				s.d.listener.OnDisconnected(s.d)
				return
			}
			continue
		}
		failures = 0

		width, height := req.Targets[0].Size()
		src := frame
		if frame.Cols() != width || frame.Rows() != height {
			gocv.Resize(frame, &resized, image.Pt(width, height), 0, 0, gocv.InterpolationLinear)
			src = resized
		}
		gocv.CvtColor(src, &rgba, gocv.ColorBGRToRGBA)

		if !camera.DeliverFrame(looper, req, rgba.ToBytes(), func(err error) {
			s.d.logger.Debug("Dropped frame", zap.Error(err))
		}) {
			return
		}
	}
}

func (s *session) Close() error {
	s.once.Do(func() { close(s.stop) })
	s.wg.Wait()
	return nil
}
