// Package soft is a software render.Target. It understands the
// pass-through shaders the presenter uses and rasterises textured
// parallelograms with golang.org/x/image/draw.
package soft

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"math"

	"golang.org/x/image/draw"
	"golang.org/x/image/math/f64"

	"github.com/intothevoid/edgeview/pkg/render"
)

// ErrUnsupported is returned for draws outside what the device can rasterise.
var ErrUnsupported = errors.New("soft: unsupported draw")

type texture struct {
	img          *image.NRGBA
	minFilter    render.Enum
	magFilter    render.Enum
	wrapS, wrapT render.Enum
}

type attribArray struct {
	enabled bool
	size    int
	data    []float32
}

// Device implements render.Target on an in-memory framebuffer. It is not
// safe for concurrent use.
type Device struct {
	fb         *image.RGBA
	viewport   image.Rectangle
	clearColor color.RGBA

	next     uint32
	shaders  map[uint32]*shader
	programs map[uint32]*program
	textures map[uint32]*texture

	current    uint32
	activeUnit int
	units      map[int]uint32
	attribs    map[int]*attribArray
}

var _ render.Target = (*Device)(nil)

// New creates a device with a width x height framebuffer.
func New(width, height int) *Device {
	d := &Device{
		shaders:  make(map[uint32]*shader),
		programs: make(map[uint32]*program),
		textures: make(map[uint32]*texture),
		units:    make(map[int]uint32),
		attribs:  make(map[int]*attribArray),
	}
	d.Resize(width, height)
	return d
}

// Resize replaces the framebuffer and resets the viewport to cover it.
func (d *Device) Resize(width, height int) {
	d.fb = image.NewRGBA(image.Rect(0, 0, width, height))
	d.viewport = d.fb.Bounds()
}

// Snapshot returns a copy of the framebuffer.
func (d *Device) Snapshot() *image.RGBA {
	out := image.NewRGBA(d.fb.Bounds())
	copy(out.Pix, d.fb.Pix)
	return out
}

func (d *Device) ClearColor(r, g, b, a float32) {
	d.clearColor = color.RGBA{R: unit8(r * a), G: unit8(g * a), B: unit8(b * a), A: unit8(a)}
}

func (d *Device) Clear(mask render.Enum) {
	if mask&render.ColorBufferBit == 0 {
		return
	}
	draw.Draw(d.fb, d.fb.Bounds(), image.NewUniform(d.clearColor), image.Point{}, draw.Src)
}

// Viewport takes GL coordinates, origin at the bottom-left.
func (d *Device) Viewport(x, y, width, height int) {
	h := d.fb.Bounds().Dy()
	d.viewport = image.Rect(x, h-y-height, x+width, h-y)
}

func (d *Device) CompileShader(kind render.Enum, source string) (uint32, error) {
	s, err := compile(kind, source)
	if err != nil {
		return 0, err
	}
	d.next++
	d.shaders[d.next] = s
	return d.next, nil
}

func (d *Device) DeleteShader(name uint32) { delete(d.shaders, name) }

func (d *Device) LinkProgram(vertex, fragment uint32) (uint32, error) {
	p, err := link(d.shaders[vertex], d.shaders[fragment])
	if err != nil {
		return 0, err
	}
	d.next++
	d.programs[d.next] = p
	return d.next, nil
}

func (d *Device) DeleteProgram(name uint32) {
	delete(d.programs, name)
	if d.current == name {
		d.current = 0
	}
}

func (d *Device) UseProgram(name uint32) {
	if _, ok := d.programs[name]; ok || name == 0 {
		d.current = name
	}
}

func (d *Device) AttribLocation(name uint32, attr string) int {
	if p, ok := d.programs[name]; ok {
		return indexOf(p.attributes, attr)
	}
	return -1
}

func (d *Device) UniformLocation(name uint32, uniform string) int {
	if p, ok := d.programs[name]; ok {
		return indexOf(p.uniforms, uniform)
	}
	return -1
}

func (d *Device) EnableVertexAttribArray(location int) {
	if location < 0 {
		return
	}
	d.attrib(location).enabled = true
}

func (d *Device) DisableVertexAttribArray(location int) {
	if location < 0 {
		return
	}
	d.attrib(location).enabled = false
}

func (d *Device) VertexAttribPointer(location, size int, data []float32) {
	if location < 0 {
		return
	}
	a := d.attrib(location)
	a.size = size
	a.data = data
}

func (d *Device) attrib(location int) *attribArray {
	a, ok := d.attribs[location]
	if !ok {
		a = &attribArray{}
		d.attribs[location] = a
	}
	return a
}

func (d *Device) Uniform1i(location, value int) {
	if p, ok := d.programs[d.current]; ok && location >= 0 {
		p.values[location] = value
	}
}

func (d *Device) GenTexture() uint32 {
	d.next++
	d.textures[d.next] = &texture{
		minFilter: render.Linear,
		magFilter: render.Linear,
		wrapS:     render.Repeat,
		wrapT:     render.Repeat,
	}
	return d.next
}

func (d *Device) DeleteTexture(name uint32) {
	delete(d.textures, name)
	for unit, bound := range d.units {
		if bound == name {
			delete(d.units, unit)
		}
	}
}

func (d *Device) ActiveTexture(unit render.Enum) {
	d.activeUnit = int(unit - render.Texture0)
}

func (d *Device) BindTexture(target render.Enum, name uint32) {
	if target != render.Texture2D {
		return
	}
	d.units[d.activeUnit] = name
}

func (d *Device) TexParameter(target, name, param render.Enum) {
	t := d.bound(target)
	if t == nil {
		return
	}
	switch name {
	case render.TextureMinFilter:
		t.minFilter = param
	case render.TextureMagFilter:
		t.magFilter = param
	case render.TextureWrapS:
		t.wrapS = param
	case render.TextureWrapT:
		t.wrapT = param
	}
}

// TexImage2D copies RGBA pixels into the bound texture.
func (d *Device) TexImage2D(target render.Enum, width, height int, pixels []byte) error {
	t := d.bound(target)
	if t == nil {
		return fmt.Errorf("soft: no texture bound")
	}
	if width <= 0 || height <= 0 || len(pixels) != width*height*4 {
		return fmt.Errorf("soft: %d bytes for a %dx%d texture", len(pixels), width, height)
	}
	if t.img == nil || t.img.Rect.Dx() != width || t.img.Rect.Dy() != height {
		t.img = image.NewNRGBA(image.Rect(0, 0, width, height))
	}
	copy(t.img.Pix, pixels)
	return nil
}

func (d *Device) bound(target render.Enum) *texture {
	if target != render.Texture2D {
		return nil
	}
	return d.textures[d.units[d.activeUnit]]
}

// DrawArrays rasterises a 4-vertex triangle strip forming a parallelogram.
// An unbound or empty texture leaves the framebuffer untouched.
func (d *Device) DrawArrays(mode render.Enum, first, count int) error {
	p, ok := d.programs[d.current]
	if !ok {
		return fmt.Errorf("soft: no program in use")
	}
	if mode != render.TriangleStrip || count != 4 {
		return fmt.Errorf("%w: mode 0x%x with %d vertices", ErrUnsupported, uint32(mode), count)
	}

	pos, err := d.vertices(indexOf(p.attributes, p.position), first, count, 2)
	if err != nil {
		return err
	}
	uv, err := d.vertices(indexOf(p.attributes, p.texCoord), first, count, 2)
	if err != nil {
		return err
	}
	if !parallelogram(pos) || !parallelogram(uv) {
		return fmt.Errorf("%w: strip is not a parallelogram", ErrUnsupported)
	}

	t := d.textures[d.units[p.values[indexOf(p.uniforms, p.sampler)]]]
	if t == nil || t.img == nil {
		return nil
	}

	tw, th := float64(t.img.Rect.Dx()), float64(t.img.Rect.Dy())
	var src, dst [3][2]float64
	for i := 0; i < 3; i++ {
		src[i] = [2]float64{uv[i][0] * tw, uv[i][1] * th}
		dst[i] = d.toWindow(pos[i])
	}
	s2d, ok := solveAffine(src, dst)
	if !ok {
		return nil
	}

	var sampler draw.Interpolator = draw.NearestNeighbor
	filter := t.minFilter
	if math.Abs(s2d[0]*s2d[4]-s2d[1]*s2d[3]) >= 1 {
		filter = t.magFilter
	}
	if filter == render.Linear {
		sampler = draw.BiLinear
	}

	out := d.fb.SubImage(d.viewport).(*image.RGBA)
	sampler.Transform(out, s2d, t.img, t.img.Bounds(), draw.Src, nil)
	return nil
}

// vertices reads the first n components of count vertices from location.
func (d *Device) vertices(location, first, count, n int) ([][2]float64, error) {
	a, ok := d.attribs[location]
	if location < 0 || !ok || !a.enabled {
		return nil, fmt.Errorf("soft: attribute %d not enabled", location)
	}
	if a.size < n || len(a.data) < (first+count)*a.size {
		return nil, fmt.Errorf("soft: attribute %d has too few components", location)
	}
	out := make([][2]float64, count)
	for i := range out {
		base := (first + i) * a.size
		out[i] = [2]float64{float64(a.data[base]), float64(a.data[base+1])}
	}
	return out, nil
}

// toWindow maps normalised device coordinates to framebuffer pixels.
func (d *Device) toWindow(ndc [2]float64) [2]float64 {
	vp := d.viewport
	return [2]float64{
		float64(vp.Min.X) + (ndc[0]+1)/2*float64(vp.Dx()),
		float64(vp.Max.Y) - (ndc[1]+1)/2*float64(vp.Dy()),
	}
}

// parallelogram checks v3 == v1 + v2 - v0 for strip order.
func parallelogram(v [][2]float64) bool {
	const eps = 1e-6
	return math.Abs(v[3][0]-(v[1][0]+v[2][0]-v[0][0])) < eps &&
		math.Abs(v[3][1]-(v[1][1]+v[2][1]-v[0][1])) < eps
}

// solveAffine finds the transform mapping each src point onto dst.
func solveAffine(src, dst [3][2]float64) (f64.Aff3, bool) {
	det := src[0][0]*(src[1][1]-src[2][1]) -
		src[0][1]*(src[1][0]-src[2][0]) +
		(src[1][0]*src[2][1] - src[2][0]*src[1][1])
	if math.Abs(det) < 1e-12 {
		return f64.Aff3{}, false
	}

	solve := func(k int) (a, b, c float64) {
		r0, r1, r2 := dst[0][k], dst[1][k], dst[2][k]
		a = (r0*(src[1][1]-src[2][1]) - src[0][1]*(r1-r2) + (r1*src[2][1] - r2*src[1][1])) / det
		b = (src[0][0]*(r1-r2) - r0*(src[1][0]-src[2][0]) + (src[1][0]*r2 - src[2][0]*r1)) / det
		c = (src[0][0]*(src[1][1]*r2-src[2][1]*r1) -
			src[0][1]*(src[1][0]*r2-src[2][0]*r1) +
			r0*(src[1][0]*src[2][1]-src[2][0]*src[1][1])) / det
		return a, b, c
	}

	a, b, c := solve(0)
	dd, e, f := solve(1)
	return f64.Aff3{a, b, c, dd, e, f}, true
}

func unit8(v float32) uint8 {
	switch {
	case v <= 0:
		return 0
	case v >= 1:
		return 255
	}
	return uint8(v*255 + 0.5)
}
