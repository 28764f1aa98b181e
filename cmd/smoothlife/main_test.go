package main

import (
	"image"
	"image/png"
	"os"
	"path/filepath"
	"testing"
)

func TestNumbered(t *testing.T) {
	tests := []struct {
		path string
		n    int
		want string
	}{
		{"out.png", 3, "out-00003.png"},
		{"dir.v2/out", 12, "dir.v2/out-00012"},
		{"a/b.c/out.png", 100, "a/b.c/out-00100.png"},
	}
	for _, tt := range tests {
		if got := numbered(tt.path, tt.n); got != tt.want {
			t.Errorf("numbered(%q, %d) = %q, want %q", tt.path, tt.n, got, tt.want)
		}
	}
}

func TestScaleImage(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 10, 4))
	for i := range src.Pix {
		src.Pix[i] = 200
	}

	if got := scaleImage(src, 1); got != src {
		t.Error("scaleImage(1) should return the input")
	}
	got := scaleImage(src, 2.5)
	if got.Rect.Dx() != 25 || got.Rect.Dy() != 10 {
		t.Fatalf("scaleImage(2.5) size = %v", got.Rect)
	}
	if c := got.RGBAAt(12, 5); c.R < 199 || c.R > 201 || c.A < 199 || c.A > 201 {
		t.Errorf("scaled uniform image pixel = %v", c)
	}
}

func TestSavePNG(t *testing.T) {
	path := filepath.Join(t.TempDir(), "s.png")
	img := image.NewRGBA(image.Rect(0, 0, 3, 2))
	if err := savePNG(img, path); err != nil {
		t.Fatalf("savePNG() error = %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	cfg, err := png.DecodeConfig(f)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Width != 3 || cfg.Height != 2 {
		t.Errorf("decoded size = %dx%d", cfg.Width, cfg.Height)
	}
}
