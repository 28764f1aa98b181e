package life

import (
	"github.com/gogpu/smoothlife/backend/cpu"
)

// Binding indices in group 0.
const (
	bindingState   = 0
	bindingScratch = 1
	bindingSeed    = 2
	bindingParams  = 3
)

// Kernels returns the CPU implementations of the shader's entry points,
// keyed by entry point name.
func Kernels() map[string]cpu.Kernel {
	return map[string]cpu.Kernel{
		InitEntryPoint:   InitKernel,
		UpdateEntryPoint: UpdateKernel,
	}
}

// InitKernel copies the seed into the scratch texture.
func InitKernel(b *cpu.Bindings, id [3]uint32) {
	p, err := DecodeParams(b.Buffer(0, bindingParams))
	if err != nil || id[0] >= p.Width || id[1] >= p.Height {
		return
	}
	x, y := int(id[0]), int(id[1])
	v := b.Texture(0, bindingSeed).Load(x, y)[0]
	b.Texture(0, bindingScratch).Store(x, y, [4]float32{v, v, v, 1})
}

// UpdateKernel writes the next generation of one cell into the scratch
// texture.
func UpdateKernel(b *cpu.Bindings, id [3]uint32) {
	p, err := DecodeParams(b.Buffer(0, bindingParams))
	if err != nil || id[0] >= p.Width || id[1] >= p.Height {
		return
	}
	state := b.Texture(0, bindingState)
	load := func(x, y int) float32 { return state.Load(x, y)[0] }

	x, y := int(id[0]), int(id[1])
	v := nextCell(p.Rules, x, y, int(p.Width), int(p.Height), load)
	b.Texture(0, bindingScratch).Store(x, y, [4]float32{v, v, v, 1})
}

func nextCell(r Rules, x, y, width, height int, load func(x, y int) float32) float32 {
	m, n := stencilFor(r.OuterRadius, r.InnerRadius()).fillings(x, y, width, height, load)
	return r.Advance(load(x, y), n, m)
}

// Step computes one generation of field, a row-major width x height grid
// of fillings, without quantization. It is the single-threaded reference
// the kernels are checked against.
func Step(r Rules, width, height int, field []float32) []float32 {
	load := func(x, y int) float32 { return field[y*width+x] }
	next := make([]float32, len(field))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			next[y*width+x] = nextCell(r, x, y, width, height, load)
		}
	}
	return next
}
