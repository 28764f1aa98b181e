package life

import "testing"

func benchmarkStep(b *testing.B, width, height int) {
	r := DefaultRules()
	seed := Seed(uint32(width), uint32(height), 1, r.OuterRadius)
	field := make([]float32, width*height)
	for i := range field {
		field[i] = float32(seed[i*4]) / 255
	}

	b.ResetTimer()
	for b.Loop() {
		field = Step(r, width, height, field)
	}
}

func BenchmarkStep_128x64(b *testing.B) { benchmarkStep(b, 128, 64) }

func BenchmarkStep_300x150(b *testing.B) { benchmarkStep(b, 300, 150) }

func BenchmarkSeed_Default(b *testing.B) {
	for b.Loop() {
		_ = Seed(1200, 600, 1, 12)
	}
}
