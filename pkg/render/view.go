package render

import (
	"image"

	"go.uber.org/zap"
)

// View binds a Target to a Presenter and forwards surface lifecycle
// events in the order a windowing toolkit delivers them.
type View struct {
	target    Target
	presenter *Presenter
}

func NewView(target Target, logger *zap.Logger) *View {
	return &View{target: target, presenter: NewPresenter(target, logger)}
}

func (v *View) Presenter() *Presenter { return v.presenter }

// Create runs when the surface first exists.
func (v *View) Create() error {
	return v.presenter.Setup()
}

// Change runs on every size change of the surface.
func (v *View) Change(width, height int) {
	v.target.Resize(width, height)
	v.presenter.OnSurfaceChanged(width, height)
}

// Render draws one frame and returns a copy of the framebuffer.
func (v *View) Render() (*image.RGBA, error) {
	if err := v.presenter.DrawFrame(); err != nil {
		return nil, err
	}
	return v.target.Snapshot(), nil
}

func (v *View) Destroy() {
	v.presenter.Release()
}
