// Package edgeview assembles the camera, backend, pipeline and preview
// server from a config.Config.
package edgeview

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/intothevoid/edgeview/pkg/camera"
	"github.com/intothevoid/edgeview/pkg/camera/cvcam"
	"github.com/intothevoid/edgeview/pkg/camera/synthetic"
	"github.com/intothevoid/edgeview/pkg/config"
	"github.com/intothevoid/edgeview/pkg/fps"
	"github.com/intothevoid/edgeview/pkg/logger"
	"github.com/intothevoid/edgeview/pkg/pipeline"
	"github.com/intothevoid/edgeview/pkg/render/soft"
	"github.com/intothevoid/edgeview/pkg/server"
	"github.com/intothevoid/edgeview/pkg/telemetry"
	"github.com/intothevoid/edgeview/pkg/vision"
	"github.com/intothevoid/edgeview/pkg/vision/canny"
	"github.com/intothevoid/edgeview/pkg/vision/sobel"
)

const (
	serviceName = "edgeview"
	jpegQuality = 80
)

// App is a fully wired pipeline.
type App struct {
	Config   config.Config
	Pipeline *pipeline.Orchestrator
	Frames   *server.FrameStore
	// Server is nil when no listen address is configured.
	Server *server.Server
	Cron   *cron.Cron

	log               *zap.Logger
	shutdownTelemetry func(context.Context) error
}

// NewManager returns the camera manager selected by cfg.Source.
func NewManager(cfg config.Config, log *zap.Logger) camera.Manager {
	if cfg.Source == config.SourceSynthetic {
		return synthetic.NewManager(synthetic.Config{FPS: cfg.CaptureFPS})
	}
	return cvcam.NewManager(cvcam.Config{Devices: cfg.CameraIDs, Front: cfg.FrontCameras}, log)
}

// NewBackend returns the processing backend selected by cfg.Backend.
func NewBackend(cfg config.Config, log *zap.Logger) vision.Backend {
	switch cfg.Backend {
	case config.BackendSobel:
		return sobel.New(sobel.DefaultOptions, log)
	case config.BackendPassthrough:
		return vision.NewPassthrough()
	default:
		p := canny.New(log)
		p.SetThresholds(canny.Thresholds{
			Low:   float32(cfg.CannyLow),
			High:  float32(cfg.CannyHigh),
			Sigma: canny.DefaultThresholds.Sigma,
		})
		return p
	}
}

// New wires an App. Extra options are applied to the orchestrator after
// the defaults, e.g. a permission gate.
func New(ctx context.Context, cfg config.Config, log *zap.Logger, opts ...pipeline.Option) (*App, error) {
	a := &App{
		Config: cfg,
		Frames: server.NewFrameStore(jpegQuality),
		Cron:   cron.New(cron.WithLogger(&logger.CronLogger{Logger: log.Named("cron")})),
		log:    log,
	}

	if cfg.OTLPEndpoint != "" {
		shutdown, err := telemetry.Setup(ctx, serviceName, cfg.OTLPEndpoint)
		if err != nil {
			return nil, fmt.Errorf("setup telemetry: %w", err)
		}
		a.shutdownTelemetry = shutdown
		log.Info("Exporting metrics", zap.String("endpoint", cfg.OTLPEndpoint))
	}

	tracker := fps.NewTracker()
	metrics, err := telemetry.NewMetrics(tracker.FPS)
	if err != nil {
		log.Warn("Metrics disabled", zap.Error(err))
	}

	controller := camera.NewController(NewManager(cfg, log), log)
	defaults := []pipeline.Option{
		pipeline.WithTracker(tracker),
		pipeline.WithMetrics(metrics),
		pipeline.WithProcessing(cfg.ProcessingEnabled),
		pipeline.WithPermissionGate(pipeline.AutoGrant(cfg.GrantCamera)),
		pipeline.WithDisplays(a.Frames),
	}
	a.Pipeline = pipeline.New(controller, NewBackend(cfg, log), soft.New(cfg.Width, cfg.Height), log,
		append(defaults, opts...)...)

	if cfg.HTTPAddr != "" {
		a.Server = server.New(server.Options{
			Addr:     cfg.HTTPAddr,
			User:     cfg.HTTPUser,
			Password: cfg.HTTPPassword,
		}, a.Pipeline, a.Frames, log)
	}
	return a, nil
}

// Serve runs the render loop, the status scheduler and the preview server
// until ctx is done or one of them fails.
func (a *App) Serve(ctx context.Context) error {
	a.Cron.Start()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return a.Pipeline.Run(ctx)
	})
	if a.Server != nil {
		g.Go(func() error {
			return a.Server.Run(ctx)
		})
	}
	return g.Wait()
}

// Close stops everything started by New and Serve.
func (a *App) Close(ctx context.Context) error {
	stopped := a.Cron.Stop()
	select {
	case <-stopped.Done():
	case <-ctx.Done():
	}

	// Close also unregisters the metrics.
	err := a.Pipeline.Close()
	if a.shutdownTelemetry != nil {
		err = multierr.Append(err, a.shutdownTelemetry(ctx))
	}
	if err != nil {
		a.log.Error("Error shutting down", zap.Error(err))
	}
	return err
}
