package soft

import (
	"fmt"
	"regexp"

	"github.com/intothevoid/edgeview/pkg/render"
)

var (
	attributeRe = regexp.MustCompile(`(?m)^\s*attribute\s+(vec[234]|float)\s+(\w+)\s*;`)
	varyingRe   = regexp.MustCompile(`(?m)^\s*varying\s+(vec[234]|float)\s+(\w+)\s*;`)
	samplerRe   = regexp.MustCompile(`(?m)^\s*uniform\s+sampler2D\s+(\w+)\s*;`)
	mainRe      = regexp.MustCompile(`void\s+main\s*\(\s*(void)?\s*\)\s*\{`)
	positionRe  = regexp.MustCompile(`gl_Position\s*=\s*(\w+)\s*;`)
	assignRe    = regexp.MustCompile(`(\w+)\s*=\s*(\w+)\s*;`)
	fragColorRe = regexp.MustCompile(`gl_FragColor\s*=\s*texture2D\s*\(\s*(\w+)\s*,\s*(\w+)\s*\)\s*;`)
)

// shader is the parsed form of a pass-through vertex shader or a
// single-sampler fragment shader.
type shader struct {
	kind render.Enum

	attributes []string
	varyings   []string
	samplers   []string

	// vertex: attribute written to gl_Position and varying -> attribute copies
	position string
	copies   map[string]string

	// fragment: sampler and varying read by texture2D
	sampler string
	coord   string
}

func compile(kind render.Enum, src string) (*shader, error) {
	if kind != render.VertexShader && kind != render.FragmentShader {
		return nil, fmt.Errorf("ERROR: invalid shader type 0x%x", uint32(kind))
	}
	if !mainRe.MatchString(src) {
		return nil, fmt.Errorf("ERROR: 0:0: 'main' : function not defined")
	}

	s := &shader{kind: kind, copies: make(map[string]string)}
	for _, m := range varyingRe.FindAllStringSubmatch(src, -1) {
		s.varyings = append(s.varyings, m[2])
	}

	if kind == render.VertexShader {
		for _, m := range attributeRe.FindAllStringSubmatch(src, -1) {
			s.attributes = append(s.attributes, m[2])
		}
		m := positionRe.FindStringSubmatch(src)
		if m == nil {
			return nil, fmt.Errorf("ERROR: 0:0: 'gl_Position' : not written")
		}
		if !contains(s.attributes, m[1]) {
			return nil, fmt.Errorf("ERROR: 0:0: '%s' : undeclared identifier", m[1])
		}
		s.position = m[1]
		for _, m := range assignRe.FindAllStringSubmatch(src, -1) {
			if contains(s.varyings, m[1]) && contains(s.attributes, m[2]) {
				s.copies[m[1]] = m[2]
			}
		}
		return s, nil
	}

	if attributeRe.MatchString(src) {
		return nil, fmt.Errorf("ERROR: 0:0: 'attribute' : supported in vertex shaders only")
	}
	for _, m := range samplerRe.FindAllStringSubmatch(src, -1) {
		s.samplers = append(s.samplers, m[1])
	}
	m := fragColorRe.FindStringSubmatch(src)
	if m == nil {
		return nil, fmt.Errorf("ERROR: 0:0: 'gl_FragColor' : not written")
	}
	if !contains(s.samplers, m[1]) {
		return nil, fmt.Errorf("ERROR: 0:0: '%s' : undeclared identifier", m[1])
	}
	if !contains(s.varyings, m[2]) {
		return nil, fmt.Errorf("ERROR: 0:0: '%s' : undeclared identifier", m[2])
	}
	s.sampler, s.coord = m[1], m[2]
	return s, nil
}

// program is a linked vertex/fragment pair with resolved locations.
type program struct {
	attributes []string
	uniforms   []string
	values     map[int]int

	position string
	texCoord string
	sampler  string
}

func link(vs, fs *shader) (*program, error) {
	if vs == nil || vs.kind != render.VertexShader {
		return nil, fmt.Errorf("ERROR: missing vertex shader")
	}
	if fs == nil || fs.kind != render.FragmentShader {
		return nil, fmt.Errorf("ERROR: missing fragment shader")
	}
	for _, v := range fs.varyings {
		if !contains(vs.varyings, v) {
			return nil, fmt.Errorf("ERROR: varying '%s' not declared in vertex shader", v)
		}
	}
	texCoord, ok := vs.copies[fs.coord]
	if !ok {
		return nil, fmt.Errorf("ERROR: varying '%s' not written by vertex shader", fs.coord)
	}

	return &program{
		attributes: vs.attributes,
		uniforms:   fs.samplers,
		values:     make(map[int]int),
		position:   vs.position,
		texCoord:   texCoord,
		sampler:    fs.sampler,
	}, nil
}

func indexOf(list []string, name string) int {
	for i, v := range list {
		if v == name {
			return i
		}
	}
	return -1
}

func contains(list []string, name string) bool {
	return indexOf(list, name) >= 0
}
