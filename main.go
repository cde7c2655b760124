// Command edgeview-headless runs the capture and processing pipeline
// without a window and serves the result over HTTP.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/intothevoid/edgeview/pkg/config"
	"github.com/intothevoid/edgeview/pkg/edgeview"
	"github.com/intothevoid/edgeview/pkg/logger"
	"github.com/intothevoid/edgeview/pkg/pipeline"
)

// statusLogSpec is how often the headless runner logs its status.
const statusLogSpec = "@every 10s"

func main() {
	app := &cli.App{
		Name:   "edgeview-headless",
		Usage:  "stream camera frames through an edge detector to an MJPEG preview",
		Flags:  config.Flags(),
		Action: run,
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	cfg, err := config.FromContext(c)
	if err != nil {
		return err
	}
	log, err := logger.New(cfg.LogLevel, cfg.LogJSON)
	if err != nil {
		return err
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := edgeview.New(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.Close(shutdownCtx); err != nil {
			log.Warn("Error during shutdown", zap.Error(err))
		}
	}()

	if err := a.Pipeline.Start(ctx); err != nil {
		if errors.Is(err, pipeline.ErrPermissionDenied) {
			return fmt.Errorf("%w: pass --grant-camera to allow capture", err)
		}
		return err
	}

	if _, err := a.Pipeline.ScheduleStatus(a.Cron, statusLogSpec, func(st pipeline.Status) {
		fields := []zap.Field{
			zap.String("mode", st.Mode),
			zap.Float64("fps", st.FPS),
			zap.String("camera", st.CameraState),
			zap.Uint64("presented", st.Presented),
			zap.Uint64("skipped", st.Skipped),
		}
		if st.Degraded {
			log.Warn("Pipeline degraded", append(fields, zap.String("reason", st.Reason))...)
			return
		}
		log.Info("Pipeline status", fields...)
	}); err != nil {
		return err
	}

	a.Pipeline.OnSurfaceAvailable(cfg.Width, cfg.Height)
	defer a.Pipeline.OnSurfaceDestroyed()

	log.Info("EdgeView running",
		zap.String("source", cfg.Source),
		zap.String("backend", cfg.Backend),
		zap.String("http", cfg.HTTPAddr),
	)
	return a.Serve(ctx)
}
