// Package render draws camera frames as a textured full-screen quad on a
// GL ES 2.0 shaped device.
package render

import "image"

// Enum mirrors the GL enumerants the presenter needs.
type Enum uint32

const (
	ColorBufferBit Enum = 0x4000

	TriangleStrip Enum = 0x0005

	VertexShader   Enum = 0x8B31
	FragmentShader Enum = 0x8B30

	Texture2D Enum = 0x0DE1
	Texture0  Enum = 0x84C0

	TextureMagFilter Enum = 0x2800
	TextureMinFilter Enum = 0x2801
	TextureWrapS     Enum = 0x2802
	TextureWrapT     Enum = 0x2803

	Nearest     Enum = 0x2600
	Linear      Enum = 0x2601
	ClampToEdge Enum = 0x812F
	Repeat      Enum = 0x2901
)

// Device is the subset of GL ES 2.0 used to present frames. Like a GL
// context it is owned by a single goroutine at a time.
type Device interface {
	ClearColor(r, g, b, a float32)
	Clear(mask Enum)
	Viewport(x, y, width, height int)

	// CompileShader returns the shader name or the compiler info log as error.
	CompileShader(kind Enum, source string) (uint32, error)
	DeleteShader(shader uint32)
	// LinkProgram returns the program name or the linker info log as error.
	LinkProgram(vertex, fragment uint32) (uint32, error)
	DeleteProgram(program uint32)
	UseProgram(program uint32)

	AttribLocation(program uint32, name string) int
	UniformLocation(program uint32, name string) int
	EnableVertexAttribArray(location int)
	DisableVertexAttribArray(location int)
	VertexAttribPointer(location, size int, data []float32)
	Uniform1i(location, value int)

	GenTexture() uint32
	DeleteTexture(texture uint32)
	ActiveTexture(unit Enum)
	BindTexture(target Enum, texture uint32)
	TexParameter(target, name, param Enum)
	TexImage2D(target Enum, width, height int, pixels []byte) error

	DrawArrays(mode Enum, first, count int) error
}

// Target is a device with a readable framebuffer.
type Target interface {
	Device
	Resize(width, height int)
	Snapshot() *image.RGBA
}
