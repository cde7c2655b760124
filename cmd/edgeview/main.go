package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/app"
	"fyne.io/fyne/v2/container"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/intothevoid/edgeview/pkg/config"
	"github.com/intothevoid/edgeview/pkg/edgeview"
	"github.com/intothevoid/edgeview/pkg/logger"
	"github.com/intothevoid/edgeview/pkg/pipeline"
	"github.com/intothevoid/edgeview/pkg/ui"
)

func main() {
	cliApp := &cli.App{
		Name:   "edgeview",
		Usage:  "live camera preview with edge detection",
		Flags:  config.Flags(),
		Action: run,
	}
	if err := cliApp.Run(os.Args); err != nil {
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

	// 1. Setup the Fyne UI App
	myApp := app.New()
	window := myApp.NewWindow("EdgeView")

	var gate pipeline.PermissionGate = &ui.PermissionDialog{Window: window}
	if cfg.GrantCamera {
		gate = pipeline.AutoGrant(true)
	}

	ctx, cancel := context.WithCancel(c.Context)
	defer cancel()

	// 2. Wire the pipeline
	a, err := edgeview.New(ctx, cfg, log, pipeline.WithPermissionGate(gate))
	if err != nil {
		return err
	}
	o := a.Pipeline

	// 3. Create widgets
	video := ui.NewVideoDisplay()
	controls := ui.NewControls(o.Processing(), o.ToggleProcessing)
	banner := ui.NewStatusBanner()
	o.AddDisplay(video)

	// Banner above the preview, controls below
	window.SetContent(container.NewBorder(banner, controls.Content(), nil, nil, video))
	window.Resize(fyne.NewSize(float32(cfg.Width), float32(cfg.Height)+64))
	window.SetOnClosed(func() {
		video.Destroy()
		cancel()
	})

	// 4. Ask for the camera, then start streaming in the background
	go func() {
		if err := o.Start(ctx); err != nil {
			if errors.Is(err, pipeline.ErrPermissionDenied) {
				ui.ShowPermissionRequired(window, myApp.Quit)
				return
			}
			log.Error("Failed to start", zap.Error(err))
			fyne.Do(myApp.Quit)
			return
		}

		if _, err := o.ScheduleStatus(a.Cron, pipeline.StatusSpec, func(st pipeline.Status) {
			controls.SetStatus(st)
			banner.SetStatus(st)
		}); err != nil {
			log.Error("Failed to schedule status", zap.Error(err))
		}

		video.Attach(o)
		if err := a.Serve(ctx); err != nil {
			log.Error("Pipeline stopped", zap.Error(err))
		}
	}()

	// 5. Run
	window.ShowAndRun()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	return a.Close(shutdownCtx)
}
