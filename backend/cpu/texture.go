package cpu

import (
	"github.com/gogpu/smoothlife/gpucore"
)

// Texture is an RGBA8Unorm texture held in memory.
//
// Load and Store follow WGSL textureLoad/textureStore semantics for
// rgba8unorm: channels are read as byte/255 and written rounded to the
// nearest byte after clamping to [0, 1]. Coordinates outside the texture
// read zero and discard writes.
type Texture struct {
	width, height int
	usage         gpucore.TextureUsage
	pix           []byte
}

func newTexture(desc *gpucore.TextureDesc) *Texture {
	w, h := int(desc.Width), int(desc.Height)
	return &Texture{
		width:  w,
		height: h,
		usage:  desc.Usage,
		pix:    make([]byte, w*h*4),
	}
}

// Width returns the texture width in texels.
func (t *Texture) Width() int { return t.width }

// Height returns the texture height in texels.
func (t *Texture) Height() int { return t.height }

func (t *Texture) inBounds(x, y int) bool {
	return x >= 0 && y >= 0 && x < t.width && y < t.height
}

// Load returns the texel at (x, y) as normalized floats.
func (t *Texture) Load(x, y int) [4]float32 {
	if !t.inBounds(x, y) {
		return [4]float32{}
	}
	i := (y*t.width + x) * 4
	p := t.pix[i : i+4 : i+4]
	return [4]float32{
		float32(p[0]) / 255,
		float32(p[1]) / 255,
		float32(p[2]) / 255,
		float32(p[3]) / 255,
	}
}

// Store writes v to the texel at (x, y).
func (t *Texture) Store(x, y int, v [4]float32) {
	if !t.inBounds(x, y) {
		return
	}
	i := (y*t.width + x) * 4
	p := t.pix[i : i+4 : i+4]
	p[0] = unorm8(v[0])
	p[1] = unorm8(v[1])
	p[2] = unorm8(v[2])
	p[3] = unorm8(v[3])
}

func unorm8(v float32) byte {
	switch {
	case v != v || v <= 0: // NaN stores as zero
		return 0
	case v >= 1:
		return 255
	default:
		return byte(v*255 + 0.5)
	}
}
