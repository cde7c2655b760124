package render

const vertexShaderSource = `
attribute vec4 vPosition;
attribute vec2 vTexCoord;
varying vec2 texCoord;

void main() {
    gl_Position = vPosition;
    texCoord = vTexCoord;
}
`

const fragmentShaderSource = `
precision mediump float;
varying vec2 texCoord;
uniform sampler2D uTexture;

void main() {
    gl_FragColor = texture2D(uTexture, texCoord);
}
`

// Full-screen quad as a triangle strip: bottom-left, bottom-right,
// top-left, top-right.
var quadVertices = []float32{
	-1, -1, 0,
	1, -1, 0,
	-1, 1, 0,
	1, 1, 0,
}

// Texture row 0 is the top of the frame, so t is flipped against y.
var quadTexCoords = []float32{
	0, 1,
	1, 1,
	0, 0,
	1, 0,
}
