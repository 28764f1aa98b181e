package life

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// ErrInvalidRules is returned by Rules.Validate.
var ErrInvalidRules = errors.New("life: invalid rules")

// ParamsSize is the size in bytes of the Params uniform.
const ParamsSize = 48

// Rules are the SmoothLife parameters.
type Rules struct {
	// OuterRadius is the radius of the neighbourhood annulus in pixels.
	OuterRadius float32
	// InnerRatio is the inner disk radius as a fraction of OuterRadius.
	InnerRatio float32

	// B1 and B2 bound the birth interval, D1 and D2 the death interval.
	B1, B2 float32
	D1, D2 float32

	// AlphaN and AlphaM are the sigmoid widths for the neighbourhood and
	// the inner filling.
	AlphaN float32
	AlphaM float32

	// DT is the time step of the smooth update.
	DT float32
}

// DefaultRules returns the parameters from Rafler's SmoothLife paper.
func DefaultRules() Rules {
	return Rules{
		OuterRadius: 12,
		InnerRatio:  1.0 / 3.0,
		B1:          0.278,
		B2:          0.365,
		D1:          0.267,
		D2:          0.445,
		AlphaN:      0.028,
		AlphaM:      0.147,
		DT:          0.05,
	}
}

// InnerRadius returns OuterRadius * InnerRatio.
func (r Rules) InnerRadius() float32 {
	return r.OuterRadius * r.InnerRatio
}

func finite(v float32) bool {
	f := float64(v)
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

// Validate reports whether the rules describe a usable automaton.
func (r Rules) Validate() error {
	for _, v := range [...]float32{r.OuterRadius, r.InnerRatio, r.B1, r.B2, r.D1, r.D2, r.AlphaN, r.AlphaM, r.DT} {
		if !finite(v) {
			return fmt.Errorf("%w: non-finite parameter", ErrInvalidRules)
		}
	}
	switch {
	case r.OuterRadius <= 0:
		return fmt.Errorf("%w: outer radius %v", ErrInvalidRules, r.OuterRadius)
	case r.InnerRatio <= 0 || r.InnerRatio >= 1:
		return fmt.Errorf("%w: inner ratio %v not in (0, 1)", ErrInvalidRules, r.InnerRatio)
	case r.B1 > r.B2:
		return fmt.Errorf("%w: birth interval [%v, %v] inverted", ErrInvalidRules, r.B1, r.B2)
	case r.D1 > r.D2:
		return fmt.Errorf("%w: death interval [%v, %v] inverted", ErrInvalidRules, r.D1, r.D2)
	case r.AlphaN <= 0 || r.AlphaM <= 0:
		return fmt.Errorf("%w: sigmoid widths must be positive", ErrInvalidRules)
	case r.DT <= 0 || r.DT > 1:
		return fmt.Errorf("%w: dt %v not in (0, 1]", ErrInvalidRules, r.DT)
	}
	return nil
}

func sigma(x, a, alpha float32) float32 {
	return float32(1 / (1 + math.Exp(float64(-(x-a)*4/alpha))))
}

// Transition returns s(n, m): the target state for outer filling n and
// inner filling m.
func (r Rules) Transition(n, m float32) float32 {
	w := sigma(m, 0.5, r.AlphaM)
	lo := r.B1*(1-w) + r.D1*w
	hi := r.B2*(1-w) + r.D2*w
	return sigma(n, lo, r.AlphaN) * (1 - sigma(n, hi, r.AlphaN))
}

// Advance applies one smooth time step to filling f.
func (r Rules) Advance(f, n, m float32) float32 {
	next := f + r.DT*(2*r.Transition(n, m)-1)
	return min(max(next, 0), 1)
}

// Params is the uniform block shared by both entry points.
type Params struct {
	Rules  Rules
	Width  uint32
	Height uint32
	// Frame counts update dispatches recorded before this frame.
	Frame uint32
}

// Bytes encodes p in the shader's uniform layout.
func (p *Params) Bytes() []byte {
	b := make([]byte, ParamsSize)
	r := &p.Rules
	for i, v := range [...]float32{
		r.OuterRadius, r.InnerRadius(), r.B1, r.B2,
		r.D1, r.D2, r.AlphaN, r.AlphaM,
		r.DT,
	} {
		binary.LittleEndian.PutUint32(b[i*4:], math.Float32bits(v))
	}
	binary.LittleEndian.PutUint32(b[36:], p.Width)
	binary.LittleEndian.PutUint32(b[40:], p.Height)
	binary.LittleEndian.PutUint32(b[44:], p.Frame)
	return b
}

// DecodeParams decodes a uniform block written by Params.Bytes.
func DecodeParams(b []byte) (Params, error) {
	if len(b) < ParamsSize {
		return Params{}, fmt.Errorf("life: params: %d bytes, want %d", len(b), ParamsSize)
	}
	f := func(i int) float32 { return math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:])) }

	ra := f(0)
	var ratio float32
	if ra != 0 {
		ratio = f(1) / ra
	}
	return Params{
		Rules: Rules{
			OuterRadius: ra,
			InnerRatio:  ratio,
			B1:          f(2),
			B2:          f(3),
			D1:          f(4),
			D2:          f(5),
			AlphaN:      f(6),
			AlphaM:      f(7),
			DT:          f(8),
		},
		Width:  binary.LittleEndian.Uint32(b[36:]),
		Height: binary.LittleEndian.Uint32(b[40:]),
		Frame:  binary.LittleEndian.Uint32(b[44:]),
	}, nil
}
