package life

import (
	"github.com/aquilax/go-perlin"
)

// Perlin generator settings: octave weight, frequency step and octave
// count.
const (
	perlinAlpha   = 2.0
	perlinBeta    = 2.0
	perlinOctaves = 3
)

// Seed returns RGBA8 seed data for a width x height state image. Cells are
// alive where 2D Perlin noise exceeds a threshold, which forms blobs
// roughly radius pixels across with soft one-pixel edges.
func Seed(width, height uint32, seed int64, radius float32) []byte {
	p := perlin.NewPerlin(perlinAlpha, perlinBeta, perlinOctaves, seed)
	if radius <= 0 {
		radius = 1
	}
	scale := 1 / (2 * float64(radius))

	const threshold = 0.08
	data := make([]byte, int(width)*int(height)*4)
	for y := range int(height) {
		for x := range int(width) {
			n := p.Noise2D(float64(x)*scale+0.5, float64(y)*scale+0.5)
			v := min(max((n-threshold)*10+0.5, 0), 1)
			b := byte(v*255 + 0.5)
			i := (y*int(width) + x) * 4
			data[i], data[i+1], data[i+2], data[i+3] = b, b, b, 255
		}
	}
	return data
}
