package ui

import (
	"fmt"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/widget"

	"github.com/intothevoid/edgeview/pkg/pipeline"
)

// Controls is the bar with the mode toggle and the FPS readout.
type Controls struct {
	toggle *widget.Button
	fps    *widget.Label
	box    *fyne.Container
}

// NewControls builds the bar. onToggle flips the mode and returns the new one.
func NewControls(processing bool, onToggle func() bool) *Controls {
	c := &Controls{fps: widget.NewLabel(FPSText(0))}
	c.toggle = widget.NewButton(ModeText(processing), func() {
		c.toggle.SetText(ModeText(onToggle()))
	})
	c.box = container.NewHBox(c.toggle, c.fps)
	return c
}

func (c *Controls) Content() fyne.CanvasObject { return c.box }

// SetStatus refreshes the FPS label. Safe from any goroutine.
func (c *Controls) SetStatus(st pipeline.Status) {
	fyne.Do(func() {
		c.fps.SetText(FPSText(st.FPS))
		c.toggle.SetText(ModeText(st.Processing))
	})
}

func ModeText(processing bool) string {
	return "Mode: " + pipeline.ModeLabel(processing)
}

func FPSText(fps float64) string {
	return fmt.Sprintf("FPS: %.1f", fps)
}
