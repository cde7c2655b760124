package ui

import (
	"image/color"
	"sync"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/widget"

	"github.com/intothevoid/edgeview/pkg/pipeline"
)

var (
	bannerColor = color.NRGBA{R: 0xb0, G: 0x2a, B: 0x2a, A: 0xe6} // dark red, mostly opaque
	bannerText  = color.NRGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff}
)

// StatusBanner shows why the pipeline is degraded and hides itself otherwise.
type StatusBanner struct {
	widget.BaseWidget

	mu     sync.Mutex
	reason string

	background *canvas.Rectangle
	message    *canvas.Text
	root       *fyne.Container
}

func NewStatusBanner() *StatusBanner {
	b := &StatusBanner{}
	b.ExtendBaseWidget(b)

	b.background = canvas.NewRectangle(bannerColor)
	b.message = canvas.NewText("", bannerText)
	b.message.TextSize = 13
	b.message.Alignment = fyne.TextAlignCenter
	b.root = container.NewWithoutLayout(b.background, b.message)
	b.Hide()
	return b
}

// SetStatus updates the banner from a pipeline status.
func (b *StatusBanner) SetStatus(st pipeline.Status) {
	reason := ""
	if st.Degraded {
		reason = st.Reason
	}

	b.mu.Lock()
	if reason == b.reason {
		b.mu.Unlock()
		return
	}
	b.reason = reason
	b.mu.Unlock()

	fyne.Do(func() {
		b.message.Text = reason
		if reason == "" {
			b.Hide()
			return
		}
		b.Show()
		b.Refresh()
	})
}

func (b *StatusBanner) CreateRenderer() fyne.WidgetRenderer {
	return &bannerRenderer{b: b}
}

type bannerRenderer struct {
	b *StatusBanner
}

func (r *bannerRenderer) Destroy() {}

func (r *bannerRenderer) MinSize() fyne.Size {
	m := r.b.message.MinSize()
	return fyne.NewSize(m.Width+24, m.Height+12)
}

func (r *bannerRenderer) Objects() []fyne.CanvasObject {
	return []fyne.CanvasObject{r.b.root}
}

func (r *bannerRenderer) Refresh() {
	r.b.background.Refresh()
	r.b.message.Refresh()
	r.b.root.Refresh()
}

func (r *bannerRenderer) Layout(size fyne.Size) {
	r.b.root.Resize(size)
	r.b.background.Move(fyne.NewPos(0, 0))
	r.b.background.Resize(size)

	m := r.b.message.MinSize()
	r.b.message.Move(fyne.NewPos(0, (size.Height-m.Height)/2))
	r.b.message.Resize(fyne.NewSize(size.Width, m.Height))
}
