// Package canny is the OpenCV edge detection backend.
package canny

import (
	"fmt"
	"image"
	"sync"

	"go.uber.org/zap"
	"gocv.io/x/gocv"

	"github.com/intothevoid/edgeview/pkg/vision"
)

// Thresholds holds the Canny hysteresis thresholds and the blur sigma.
type Thresholds struct {
	Low   float32
	High  float32
	Sigma float64
}

// DefaultThresholds work for indoor lighting.
var DefaultThresholds = Thresholds{Low: 50, High: 150, Sigma: 1.4}

// Processor detects edges with gray -> gaussian blur -> canny.
type Processor struct {
	vision.Base

	logger *zap.Logger

	mu         sync.Mutex
	thresholds Thresholds
	gray       gocv.Mat
	blurred    gocv.Mat
	edges      gocv.Mat
	allocated  bool
}

var _ vision.Backend = (*Processor)(nil)

func New(logger *zap.Logger) *Processor {
	return &Processor{logger: logger.Named("canny"), thresholds: DefaultThresholds}
}

// SetThresholds changes the detector parameters for subsequent frames.
func (p *Processor) SetThresholds(t Thresholds) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.thresholds = t
	p.logger.Info("Canny thresholds updated", zap.Float32("low", t.Low), zap.Float32("high", t.High))
}

func (p *Processor) Initialize(width, height int) error {
	if err := p.Base.Initialize(width, height); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.allocated {
		p.gray = gocv.NewMat()
		p.blurred = gocv.NewMat()
		p.edges = gocv.NewMat()
		p.allocated = true
	}
	p.logger.Info("OpenCV processor initialized", zap.Int("width", width), zap.Int("height", height))
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

	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.allocated {
		return nil, vision.ErrNotInitialized
	}

	input, err := gocv.NewMatFromBytes(params.Height, params.Width, gocv.MatTypeCV8UC4, frame)
	if err != nil {
		return nil, fmt.Errorf("canny: wrap frame: %w", err)
	}
	defer input.Close()

	gocv.CvtColor(input, &p.gray, gocv.ColorRGBAToGray)
	gocv.GaussianBlur(p.gray, &p.blurred, image.Pt(5, 5), p.thresholds.Sigma, 0, gocv.BorderDefault)
	gocv.Canny(p.blurred, &p.edges, p.thresholds.Low, p.thresholds.High)

	if p.edges.Empty() {
		p.logger.Warn("Edges Mat is empty after Canny")
		return nil, nil
	}
	return vision.PaintEdges(p.edges.ToBytes()), nil
}

func (p *Processor) Teardown() {
	p.Base.Teardown()
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.allocated {
		p.gray.Close()
		p.blurred.Close()
		p.edges.Close()
		p.allocated = false
	}
	p.logger.Info("OpenCV processor destroyed")
}
