// Package sobel is a pure Go edge detection backend built on imaging.
package sobel

import (
	"image"

	"github.com/disintegration/imaging"
	"go.uber.org/zap"

	"github.com/intothevoid/edgeview/pkg/vision"
)

var (
	kernelX = [9]float64{
		-1, 0, 1,
		-2, 0, 2,
		-1, 0, 1,
	}
	kernelY = [9]float64{
		-1, -2, -1,
		0, 0, 0,
		1, 2, 1,
	}
)

// Options tunes the detector.
type Options struct {
	Sigma     float64
	Threshold int
}

var DefaultOptions = Options{Sigma: 1.4, Threshold: 100}

// Processor marks pixels whose Sobel gradient magnitude reaches Threshold.
type Processor struct {
	vision.Base

	opts   Options
	logger *zap.Logger
}

var _ vision.Backend = (*Processor)(nil)

func New(opts Options, logger *zap.Logger) *Processor {
	return &Processor{opts: opts, logger: logger.Named("sobel")}
}

func (p *Processor) Initialize(width, height int) error {
	if err := p.Base.Initialize(width, height); err != nil {
		return err
	}
	p.logger.Info("Sobel processor initialized", zap.Int("width", width), zap.Int("height", height))
	return nil
}

func (p *Processor) ProcessFrame(frame []byte) ([]byte, error) {
	params, err := p.Check(frame)
	if err != nil {
		return nil, err
	}
	if !params.Processing {
		return vision.Clone(frame), nil
	}

	// imaging never writes to its source, so the borrowed frame is safe.
	src := &image.NRGBA{
		Pix:    frame,
		Stride: params.Width * vision.BytesPerPixel,
		Rect:   image.Rect(0, 0, params.Width, params.Height),
	}
	gray := imaging.Grayscale(src)
	if p.opts.Sigma > 0 {
		gray = imaging.Blur(gray, p.opts.Sigma)
	}

	gx := imaging.Convolve3x3(gray, kernelX, &imaging.ConvolveOptions{Abs: true})
	gy := imaging.Convolve3x3(gray, kernelY, &imaging.ConvolveOptions{Abs: true})

	mask := make([]byte, params.Width*params.Height)
	for i := range mask {
		// Grayscale keeps R == G == B, so the red channel is enough.
		mag := int(gx.Pix[i*vision.BytesPerPixel]) + int(gy.Pix[i*vision.BytesPerPixel])
		if mag >= p.opts.Threshold {
			mask[i] = 255
		}
	}
	return vision.PaintEdges(mask), nil
}

func (p *Processor) Teardown() {
	p.Base.Teardown()
	p.logger.Info("Sobel processor destroyed")
}
