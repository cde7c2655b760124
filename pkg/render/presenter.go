package render

import (
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

const bytesPerPixel = 4

var (
	// ErrNotReady is returned by draws and uploads when Setup has not
	// produced a usable program.
	ErrNotReady = errors.New("render: presenter not ready")
	// ErrBufferSize is returned when an upload does not match the texture size.
	ErrBufferSize = errors.New("render: buffer size mismatch")
)

// ShaderError reports a compile or link failure with the device's info log.
type ShaderError struct {
	Stage string
	Log   string
}

func (e *ShaderError) Error() string {
	return fmt.Sprintf("render: %s failed: %s", e.Stage, e.Log)
}

// Presenter owns the program and texture used to show frames.
type Presenter struct {
	dev    Device
	logger *zap.Logger

	mu            sync.Mutex
	program       uint32
	texture       uint32
	positionLoc   int
	texCoordLoc   int
	samplerLoc    int
	width, height int
	setupErr      error
}

func NewPresenter(dev Device, logger *zap.Logger) *Presenter {
	return &Presenter{dev: dev, logger: logger.Named("render")}
}

// Setup compiles and links the shaders and allocates the texture. On
// failure the presenter stays unusable and every draw returns ErrNotReady.
func (p *Presenter) Setup() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.releaseLocked()
	p.dev.ClearColor(0, 0, 0, 1)

	program, err := p.buildProgram()
	if err != nil {
		p.logger.Error("Error creating shader program", zap.Error(err))
		p.setupErr = err
		return err
	}
	p.program = program
	p.setupErr = nil

	p.positionLoc = p.dev.AttribLocation(program, "vPosition")
	p.texCoordLoc = p.dev.AttribLocation(program, "vTexCoord")
	p.samplerLoc = p.dev.UniformLocation(program, "uTexture")

	p.texture = p.dev.GenTexture()
	p.dev.BindTexture(Texture2D, p.texture)
	p.dev.TexParameter(Texture2D, TextureMinFilter, Linear)
	p.dev.TexParameter(Texture2D, TextureMagFilter, Linear)
	p.dev.TexParameter(Texture2D, TextureWrapS, ClampToEdge)
	p.dev.TexParameter(Texture2D, TextureWrapT, ClampToEdge)

	p.logger.Debug("Presenter ready", zap.Uint32("program", program), zap.Uint32("texture", p.texture))
	return nil
}

func (p *Presenter) buildProgram() (uint32, error) {
	vs, err := p.dev.CompileShader(VertexShader, vertexShaderSource)
	if err != nil {
		return 0, &ShaderError{Stage: "vertex shader compile", Log: err.Error()}
	}
	defer p.dev.DeleteShader(vs)

	fs, err := p.dev.CompileShader(FragmentShader, fragmentShaderSource)
	if err != nil {
		return 0, &ShaderError{Stage: "fragment shader compile", Log: err.Error()}
	}
	defer p.dev.DeleteShader(fs)

	program, err := p.dev.LinkProgram(vs, fs)
	if err != nil {
		return 0, &ShaderError{Stage: "program link", Log: err.Error()}
	}
	return program, nil
}

// Err returns the last Setup failure.
func (p *Presenter) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.setupErr
}

// Ready reports whether a program is available.
func (p *Presenter) Ready() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.program != 0
}

func (p *Presenter) OnSurfaceChanged(width, height int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.dev.Viewport(0, 0, width, height)
}

// SetTextureSize sets the resolution expected by UpdateTexture.
func (p *Presenter) SetTextureSize(width, height int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.width, p.height = width, height
}

func (p *Presenter) TextureSize() (int, int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.width, p.height
}

// UpdateTexture replaces the whole texture with buf. buf is not retained.
func (p *Presenter) UpdateTexture(buf []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.texture == 0 {
		return ErrNotReady
	}
	if want := p.width * p.height * bytesPerPixel; want == 0 || len(buf) != want {
		return fmt.Errorf("%w: got %d bytes, want %dx%dx%d", ErrBufferSize, len(buf), p.width, p.height, bytesPerPixel)
	}

	p.dev.BindTexture(Texture2D, p.texture)
	return p.dev.TexImage2D(Texture2D, p.width, p.height, buf)
}

// DrawFrame draws the texture over the whole viewport.
func (p *Presenter) DrawFrame() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.dev.Clear(ColorBufferBit)
	if p.program == 0 {
		return ErrNotReady
	}

	p.dev.UseProgram(p.program)

	p.dev.EnableVertexAttribArray(p.positionLoc)
	p.dev.VertexAttribPointer(p.positionLoc, 3, quadVertices)

	p.dev.EnableVertexAttribArray(p.texCoordLoc)
	p.dev.VertexAttribPointer(p.texCoordLoc, 2, quadTexCoords)

	p.dev.ActiveTexture(Texture0)
	p.dev.BindTexture(Texture2D, p.texture)
	p.dev.Uniform1i(p.samplerLoc, 0)

	err := p.dev.DrawArrays(TriangleStrip, 0, 4)

	p.dev.DisableVertexAttribArray(p.positionLoc)
	p.dev.DisableVertexAttribArray(p.texCoordLoc)
	return err
}

// Release deletes the program and texture.
func (p *Presenter) Release() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.releaseLocked()
}

func (p *Presenter) releaseLocked() {
	if p.texture != 0 {
		p.dev.DeleteTexture(p.texture)
		p.texture = 0
	}
	if p.program != 0 {
		p.dev.DeleteProgram(p.program)
		p.program = 0
	}
}
