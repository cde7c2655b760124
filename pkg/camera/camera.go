package camera

import (
	"context"
	"errors"
)

var (
	// ErrNotInitialized is returned when the controller has no running looper.
	ErrNotInitialized = errors.New("camera: controller not initialized")
	// ErrNoCamera is returned when no back-facing device was found.
	ErrNoCamera = errors.New("camera: no back-facing camera")
	// ErrCameraAccess wraps device enumeration, open and configure failures.
	ErrCameraAccess = errors.New("camera: access error")
	// ErrDisconnected is reported when an open device goes away.
	ErrDisconnected = errors.New("camera: device disconnected")
	// ErrClosed is returned by operations on a closed device or session.
	ErrClosed = errors.New("camera: closed")
)

// Facing is the direction a lens points relative to the screen.
type Facing int

const (
	FacingBack Facing = iota
	FacingFront
	FacingExternal
)

func (f Facing) String() string {
	switch f {
	case FacingBack:
		return "back"
	case FacingFront:
		return "front"
	case FacingExternal:
		return "external"
	default:
		return "unknown"
	}
}

// Characteristics are the static properties of a camera device.
type Characteristics struct {
	LensFacing Facing
	Name       string
}

// Template selects the tuning of a capture request.
type Template int

const (
	TemplatePreview Template = iota
	TemplateStillCapture
)

// AFMode is the autofocus mode of a capture request.
type AFMode int

const (
	AFModeOff AFMode = iota
	AFModeAuto
	AFModeContinuousPicture
)

// CaptureRequest describes what a session should produce.
type CaptureRequest struct {
	Template Template
	Targets  []*Surface
	AFMode   AFMode
}

// NewCaptureRequest starts a request for the given template.
func NewCaptureRequest(t Template) *CaptureRequest {
	return &CaptureRequest{Template: t}
}

// AddTarget adds an output surface.
func (r *CaptureRequest) AddTarget(s *Surface) {
	r.Targets = append(r.Targets, s)
}

// Manager is the platform camera service.
type Manager interface {
	// CameraIDs lists the devices that can be opened.
	CameraIDs() ([]string, error)
	// Characteristics describes one device.
	Characteristics(id string) (Characteristics, error)
	// Open opens a device. The listener is invoked from any goroutine when an
	// open device disconnects or fails.
	Open(ctx context.Context, id string, listener DeviceListener) (Device, error)
}

// DeviceListener receives asynchronous device failures.
type DeviceListener interface {
	OnDisconnected(d Device)
	OnError(d Device, err error)
}

// Device is an open camera.
type Device interface {
	ID() string
	// CreateSession binds the device to its output surfaces.
	CreateSession(ctx context.Context, outputs []*Surface) (Session, error)
	Close() error
}

// Session is a configured device-to-surface binding.
type Session interface {
	// SetRepeatingRequest starts continuous capture. Every frame is delivered
	// to the request targets by a callback posted on looper.
	SetRepeatingRequest(req *CaptureRequest, looper *Looper) error
	Close() error
}
