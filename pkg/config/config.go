// Package config holds the runtime configuration shared by the GUI and
// headless binaries.
package config

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/urfave/cli/v2"
)

const (
	SourceOpenCV    = "opencv"
	SourceSynthetic = "synthetic"

	BackendCanny       = "canny"
	BackendSobel       = "sobel"
	BackendPassthrough = "passthrough"
)

const (
	flagSource       = "source"
	flagCameras      = "camera"
	flagFrontCameras = "front-camera"
	flagBackend      = "backend"
	flagWidth        = "width"
	flagHeight       = "height"
	flagCaptureFPS   = "capture-fps"
	flagRaw          = "raw"
	flagGrantCamera  = "grant-camera"
	flagHTTPAddr     = "http-addr"
	flagHTTPUser     = "http-user"
	flagHTTPPassword = "http-password"
	flagOTLPEndpoint = "otlp-endpoint"
	flagLogLevel     = "log-level"
	flagLogJSON      = "log-json"
	flagCannyLow     = "canny-low"
	flagCannyHigh    = "canny-high"
)

// Config is the complete runtime configuration.
type Config struct {
	Source       string
	CameraIDs    []int
	FrontCameras []int
	Backend      string

	Width      int
	Height     int
	CaptureFPS int

	// ProcessingEnabled is the initial mode; false starts on the raw feed.
	ProcessingEnabled bool
	// GrantCamera skips the interactive permission prompt.
	GrantCamera bool

	CannyLow  float64
	CannyHigh float64

	HTTPAddr     string
	HTTPUser     string
	HTTPPassword string

	OTLPEndpoint string

	LogLevel string
	LogJSON  bool
}

// Default returns the configuration used when no flags are given.
func Default() Config {
	return Config{
		Source:            SourceOpenCV,
		CameraIDs:         []int{0},
		Backend:           BackendCanny,
		Width:             640,
		Height:            480,
		CaptureFPS:        30,
		ProcessingEnabled: true,
		CannyLow:          50,
		CannyHigh:         150,
		HTTPAddr:          ":8080",
		LogLevel:          "info",
	}
}

// Validate reports every invalid field at once.
func (c Config) Validate() error {
	var errs []error
	if !slices.Contains([]string{SourceOpenCV, SourceSynthetic}, c.Source) {
		errs = append(errs, fmt.Errorf("unknown source %q", c.Source))
	}
	if !slices.Contains([]string{BackendCanny, BackendSobel, BackendPassthrough}, c.Backend) {
		errs = append(errs, fmt.Errorf("unknown backend %q", c.Backend))
	}
	if c.Width <= 0 || c.Height <= 0 {
		errs = append(errs, fmt.Errorf("invalid frame size %dx%d", c.Width, c.Height))
	}
	if c.CaptureFPS <= 0 {
		errs = append(errs, fmt.Errorf("capture fps must be positive, got %d", c.CaptureFPS))
	}
	if c.Source == SourceOpenCV && len(c.CameraIDs) == 0 {
		errs = append(errs, errors.New("at least one camera index is required"))
	}
	if c.CannyLow < 0 || c.CannyHigh < c.CannyLow {
		errs = append(errs, fmt.Errorf("invalid canny thresholds %.0f/%.0f", c.CannyLow, c.CannyHigh))
	}
	if (c.HTTPUser == "") != (c.HTTPPassword == "") {
		errs = append(errs, errors.New("http user and password must be set together"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

func env(name string) []string {
	return []string{"EDGEVIEW_" + strings.ToUpper(strings.ReplaceAll(name, "-", "_"))}
}

// Flags returns the command line flags for Config. Every flag can also be
// set through an EDGEVIEW_* environment variable.
func Flags() []cli.Flag {
	d := Default()
	return []cli.Flag{
		&cli.StringFlag{
			Name:    flagSource,
			Value:   d.Source,
			Usage:   "frame source: opencv or synthetic",
			EnvVars: env(flagSource),
		},
		&cli.IntSliceFlag{
			Name:    flagCameras,
			Value:   cli.NewIntSlice(d.CameraIDs...),
			Usage:   "OpenCV device `INDEX` to expose, repeatable",
			EnvVars: env(flagCameras),
		},
		&cli.IntSliceFlag{
			Name:    flagFrontCameras,
			Usage:   "OpenCV device `INDEX` facing the user, repeatable",
			EnvVars: env(flagFrontCameras),
		},
		&cli.StringFlag{
			Name:    flagBackend,
			Value:   d.Backend,
			Usage:   "processing backend: canny, sobel or passthrough",
			EnvVars: env(flagBackend),
		},
		&cli.IntFlag{
			Name:    flagWidth,
			Value:   d.Width,
			Usage:   "frame width",
			EnvVars: env(flagWidth),
		},
		&cli.IntFlag{
			Name:    flagHeight,
			Value:   d.Height,
			Usage:   "frame height",
			EnvVars: env(flagHeight),
		},
		&cli.IntFlag{
			Name:    flagCaptureFPS,
			Value:   d.CaptureFPS,
			Usage:   "synthetic source frame rate",
			EnvVars: env(flagCaptureFPS),
		},
		&cli.BoolFlag{
			Name:    flagRaw,
			Usage:   "start on the raw camera feed",
			EnvVars: env(flagRaw),
		},
		&cli.BoolFlag{
			Name:    flagGrantCamera,
			Usage:   "grant camera access without asking",
			EnvVars: env(flagGrantCamera),
		},
		&cli.Float64Flag{
			Name:    flagCannyLow,
			Value:   d.CannyLow,
			Usage:   "canny low threshold",
			EnvVars: env(flagCannyLow),
		},
		&cli.Float64Flag{
			Name:    flagCannyHigh,
			Value:   d.CannyHigh,
			Usage:   "canny high threshold",
			EnvVars: env(flagCannyHigh),
		},
		&cli.StringFlag{
			Name:    flagHTTPAddr,
			Value:   d.HTTPAddr,
			Usage:   "preview server listen address, empty to disable",
			EnvVars: env(flagHTTPAddr),
		},
		&cli.StringFlag{
			Name:    flagHTTPUser,
			Usage:   "preview server basic auth user",
			EnvVars: env(flagHTTPUser),
		},
		&cli.StringFlag{
			Name:    flagHTTPPassword,
			Usage:   "preview server basic auth password",
			EnvVars: env(flagHTTPPassword),
		},
		&cli.StringFlag{
			Name:    flagOTLPEndpoint,
			Usage:   "OTLP gRPC collector `HOST:PORT`, empty to disable metrics export",
			EnvVars: env(flagOTLPEndpoint),
		},
		&cli.StringFlag{
			Name:    flagLogLevel,
			Value:   d.LogLevel,
			Usage:   "log level",
			EnvVars: env(flagLogLevel),
		},
		&cli.BoolFlag{
			Name:    flagLogJSON,
			Usage:   "log as JSON",
			EnvVars: env(flagLogJSON),
		},
	}
}

// FromContext reads a validated Config from parsed flags.
func FromContext(c *cli.Context) (Config, error) {
	cfg := Config{
		Source:            c.String(flagSource),
		CameraIDs:         c.IntSlice(flagCameras),
		FrontCameras:      c.IntSlice(flagFrontCameras),
		Backend:           c.String(flagBackend),
		Width:             c.Int(flagWidth),
		Height:            c.Int(flagHeight),
		CaptureFPS:        c.Int(flagCaptureFPS),
		ProcessingEnabled: !c.Bool(flagRaw),
		GrantCamera:       c.Bool(flagGrantCamera),
		CannyLow:          c.Float64(flagCannyLow),
		CannyHigh:         c.Float64(flagCannyHigh),
		HTTPAddr:          c.String(flagHTTPAddr),
		HTTPUser:          c.String(flagHTTPUser),
		HTTPPassword:      c.String(flagHTTPPassword),
		OTLPEndpoint:      c.String(flagOTLPEndpoint),
		LogLevel:          c.String(flagLogLevel),
		LogJSON:           c.Bool(flagLogJSON),
	}
	return cfg, cfg.Validate()
}
