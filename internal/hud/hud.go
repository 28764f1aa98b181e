// Package hud draws the frame-rate overlay onto simulation snapshots.
package hud

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"sync"

	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"

	"github.com/gogpu/smoothlife/internal/diag"
)

// Overlay layout.
const (
	// FontSize is the text size in pixels.
	FontSize = 20
	// Margin is the distance of the text box from the top-left corner.
	Margin = 10
)

// TextColor is the overlay text color, 90% grey.
var TextColor = color.RGBA{R: 230, G: 230, B: 230, A: 255}

var (
	faceOnce sync.Once
	face     font.Face
	faceErr  error

	// drawMu serializes use of face, which caches glyphs internally.
	drawMu sync.Mutex
)

func loadFace() (font.Face, error) {
	faceOnce.Do(func() {
		f, err := opentype.Parse(gobold.TTF)
		if err != nil {
			faceErr = fmt.Errorf("hud: parse font: %w", err)
			return
		}
		face, faceErr = opentype.NewFace(f, &opentype.FaceOptions{
			Size:    FontSize,
			DPI:     72,
			Hinting: font.HintingFull,
		})
		if faceErr != nil {
			faceErr = fmt.Errorf("hud: font face: %w", faceErr)
		}
	})
	return face, faceErr
}

// DrawText draws s with its top-left corner at (x, y).
func DrawText(dst draw.Image, s string, x, y int) error {
	f, err := loadFace()
	if err != nil {
		return err
	}

	drawMu.Lock()
	defer drawMu.Unlock()

	d := &font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(TextColor),
		Face: f,
		Dot:  fixed.P(x, y+f.Metrics().Ascent.Ceil()),
	}
	d.DrawString(s)
	return nil
}

// TextBounds returns the box DrawText covers for s drawn at (x, y).
func TextBounds(s string, x, y int) (image.Rectangle, error) {
	f, err := loadFace()
	if err != nil {
		return image.Rectangle{}, err
	}

	drawMu.Lock()
	defer drawMu.Unlock()

	m := f.Metrics()
	w := font.MeasureString(f, s).Ceil()
	return image.Rect(x, y, x+w, y+m.Ascent.Ceil()+m.Descent.Ceil()), nil
}

// DrawFPS draws the frame-rate overlay in the top-left corner of img.
func DrawFPS(img draw.Image, fps float64) error {
	return DrawText(img, diag.FormatFPS(fps), Margin, Margin)
}
