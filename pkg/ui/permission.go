package ui

import (
	"context"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/dialog"
)

// PermissionDialog asks for camera access with a confirm dialog. It
// implements pipeline.PermissionGate and must not be called from the UI
// thread, since it blocks until the user answers.
type PermissionDialog struct {
	Window fyne.Window
}

func (d *PermissionDialog) RequestCamera(ctx context.Context) (bool, error) {
	answer := make(chan bool, 1)
	fyne.Do(func() {
		dialog.ShowConfirm("Camera access",
			"EdgeView needs the camera to show the live preview.\nAllow camera access?",
			func(ok bool) { answer <- ok },
			d.Window,
		)
	})

	select {
	case ok := <-answer:
		return ok, nil
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

// ShowPermissionRequired tells the user access was refused and calls
// onClosed once the message is dismissed.
func ShowPermissionRequired(w fyne.Window, onClosed func()) {
	fyne.Do(func() {
		d := dialog.NewInformation("EdgeView", "Camera permission required", w)
		d.SetOnClosed(onClosed)
		d.Show()
	})
}
