package ui

import (
	"image"
	"sync"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/widget"
	"github.com/bep/debounce"
)

// resizeSettle is how long the preview must keep its size before the
// camera is rebound to it.
const resizeSettle = 300 * time.Millisecond

// SurfaceListener receives the lifecycle of the preview area.
type SurfaceListener interface {
	OnSurfaceAvailable(width, height int)
	OnSurfaceSizeChanged(width, height int)
	OnSurfaceDestroyed()
}

// Custom widget for displaying video frames
type VideoDisplay struct {
	widget.BaseWidget

	// mu ensures we don't read / write the image at the same time
	mu    sync.Mutex
	image *canvas.Image

	listener  SurfaceListener
	debounced func(f func())
	available bool
	size      [2]int
}

// NewVideoDisplay is used to create widget instance
func NewVideoDisplay() *VideoDisplay {
	v := &VideoDisplay{
		debounced: debounce.New(resizeSettle),
	}
	v.ExtendBaseWidget(v)

	// Create the internal canvas image
	v.image = canvas.NewImageFromImage(nil)
	v.image.FillMode = canvas.ImageFillContain
	v.image.ScaleMode = canvas.ImageScaleFastest
	return v
}

// Show is a thread safe way to send a new image
func (v *VideoDisplay) Show(img image.Image) {
	fyne.Do(func() {
		v.mu.Lock()
		v.image.Image = img
		v.mu.Unlock()
		v.image.Refresh()
	})
}

// Attach starts reporting surface events to l. If the widget is already
// laid out, l sees the surface become available right away.
func (v *VideoDisplay) Attach(l SurfaceListener) {
	v.mu.Lock()
	v.listener = l
	w, h := v.size[0], v.size[1]
	fire := w > 0 && h > 0 && !v.available
	v.available = v.available || fire
	v.mu.Unlock()

	if fire {
		go l.OnSurfaceAvailable(w, h)
	}
}

// Destroy reports the surface as gone. Later frames are still accepted
// but nothing will produce them.
func (v *VideoDisplay) Destroy() {
	v.mu.Lock()
	available := v.available
	l := v.listener
	v.available = false
	v.mu.Unlock()
	if available && l != nil {
		l.OnSurfaceDestroyed()
	}
}

// resized runs on the UI thread from the renderer layout.
func (v *VideoDisplay) resized(s fyne.Size) {
	w, h := evenPixels(s.Width), evenPixels(s.Height)
	if w == 0 || h == 0 {
		return
	}

	v.mu.Lock()
	l := v.listener
	changed := v.size != [2]int{w, h}
	v.size = [2]int{w, h}
	first := l != nil && !v.available
	if l != nil {
		v.available = true
	}
	v.mu.Unlock()

	switch {
	case l == nil:
	case first:
		go l.OnSurfaceAvailable(w, h)
	case changed:
		v.debounced(func() { l.OnSurfaceSizeChanged(w, h) })
	}
}

// evenPixels rounds down to an even size, which capture drivers prefer.
func evenPixels(f float32) int {
	return int(f) &^ 1
}

// CreateRenderer is used to create a video renderer
func (v *VideoDisplay) CreateRenderer() fyne.WidgetRenderer {
	return &videoRenderer{v}
}

// videoRenderer implements the logic to draw the widget
type videoRenderer struct {
	v *VideoDisplay
}

// Destroy implements [fyne.WidgetRenderer].
func (r *videoRenderer) Destroy() {}

// MinSize implements [fyne.WidgetRenderer].
func (r *videoRenderer) MinSize() fyne.Size {
	return fyne.NewSize(320, 240)
}

// Objects implements [fyne.WidgetRenderer].
func (r *videoRenderer) Objects() []fyne.CanvasObject {
	return []fyne.CanvasObject{r.v.image}
}

// Refresh implements [fyne.WidgetRenderer].
func (r *videoRenderer) Refresh() {
	r.v.mu.Lock()
	defer r.v.mu.Unlock()
	r.v.image.Refresh()
}

func (r *videoRenderer) Layout(s fyne.Size) {
	r.v.image.Resize(s)
	r.v.resized(s)
}
