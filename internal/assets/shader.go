package assets

import (
	"errors"
	"fmt"

	"github.com/gogpu/naga"
	"github.com/gogpu/naga/ir"
)

// ErrShaderInvalid is returned when WGSL fails to parse, lower or validate.
var ErrShaderInvalid = errors.New("assets: invalid shader")

// EntryPoint is a compute entry point declared by a shader.
type EntryPoint struct {
	Name      string
	Workgroup [3]uint32
}

// Shader is a loaded WGSL shader with its compute entry points.
type Shader struct {
	Path        string
	Source      string
	EntryPoints []EntryPoint
}

// EntryPoint looks up a compute entry point by name.
func (s *Shader) EntryPoint(name string) (EntryPoint, bool) {
	for _, ep := range s.EntryPoints {
		if ep.Name == name {
			return ep, true
		}
	}
	return EntryPoint{}, false
}

// ParseShader parses and validates WGSL source.
func ParseShader(path, source string) (*Shader, error) {
	eps, err := Reflect(source)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &Shader{Path: path, Source: source, EntryPoints: eps}, nil
}

// Reflect parses, lowers and validates WGSL with naga and returns the
// compute entry points it declares.
func Reflect(source string) ([]EntryPoint, error) {
	ast, err := naga.Parse(source)
	if err != nil {
		return nil, fmt.Errorf("%w: parse: %w", ErrShaderInvalid, err)
	}
	module, err := naga.LowerWithSource(ast, source)
	if err != nil {
		return nil, fmt.Errorf("%w: lower: %w", ErrShaderInvalid, err)
	}
	verrs, err := naga.Validate(module)
	if err != nil {
		return nil, fmt.Errorf("%w: validate: %w", ErrShaderInvalid, err)
	}
	if len(verrs) > 0 {
		return nil, fmt.Errorf("%w: %s (%d validation errors)", ErrShaderInvalid, verrs[0].Message, len(verrs))
	}

	var eps []EntryPoint
	for _, ep := range module.EntryPoints {
		if ep.Stage != ir.StageCompute {
			continue
		}
		eps = append(eps, EntryPoint{Name: ep.Name, Workgroup: ep.Workgroup})
	}
	return eps, nil
}
