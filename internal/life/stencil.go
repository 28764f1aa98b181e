package life

import (
	"math"
	"sync"
)

// tap is one neighbourhood sample with its inner disk and annulus weights.
type tap struct {
	dx, dy int
	wi, wo float32
}

// stencil is the antialiased neighbourhood of one (outer, inner) radius
// pair. Taps are ordered row by row, matching the shader's loop.
type stencil struct {
	taps  []tap
	mArea float32
	nArea float32
}

type stencilKey struct{ ra, ri float32 }

var stencils sync.Map // stencilKey -> *stencil

func stencilFor(ra, ri float32) *stencil {
	key := stencilKey{ra, ri}
	if s, ok := stencils.Load(key); ok {
		return s.(*stencil)
	}

	s := &stencil{}
	r := int(math.Ceil(float64(ra + 0.5)))
	for dy := -r; dy <= r; dy++ {
		for dx := -r; dx <= r; dx++ {
			d := float32(math.Sqrt(float64(dx*dx + dy*dy)))
			wi := min(max(ri+0.5-d, 0), 1)
			wo := min(max(ra+0.5-d, 0), 1) - wi
			if wi <= 0 && wo <= 0 {
				continue
			}
			s.taps = append(s.taps, tap{dx: dx, dy: dy, wi: wi, wo: wo})
			s.mArea += wi
			s.nArea += wo
		}
	}
	actual, _ := stencils.LoadOrStore(key, s)
	return actual.(*stencil)
}

// fillings returns the inner filling m and the annulus filling n around
// (x, y) on a width x height torus. load returns the filling of an
// in-bounds cell.
func (s *stencil) fillings(x, y, width, height int, load func(x, y int) float32) (m, n float32) {
	var mSum, nSum float32
	for _, t := range s.taps {
		v := load(wrap(x+t.dx, width), wrap(y+t.dy, height))
		mSum += t.wi * v
		nSum += t.wo * v
	}
	return mSum / max(s.mArea, 1e-6), nSum / max(s.nArea, 1e-6)
}

func wrap(v, n int) int {
	return ((v % n) + n) % n
}
