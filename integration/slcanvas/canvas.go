// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package slcanvas

import (
	"errors"
	"fmt"
	"image"

	"github.com/gogpu/gpucontext"

	"github.com/gogpu/smoothlife/internal/hud"
	"github.com/gogpu/smoothlife/internal/logging"
)

// Common errors returned by Canvas operations.
var (
	// ErrCanvasClosed is returned when operations are attempted on a closed canvas.
	ErrCanvasClosed = errors.New("slcanvas: canvas is closed")

	// ErrNilProvider is returned when a nil DeviceProvider is passed.
	ErrNilProvider = errors.New("slcanvas: nil DeviceProvider")

	// ErrNilSource is returned when a nil Source is passed.
	ErrNilSource = errors.New("slcanvas: nil Source")

	// ErrInvalidDrawContext is returned when the draw context is nil or the
	// texture it created cannot be drawn.
	ErrInvalidDrawContext = errors.New("slcanvas: dc must implement gpucontext.TextureDrawer")

	// ErrInvalidRenderer is returned when the draw context has no
	// gpucontext.TextureCreator.
	ErrInvalidRenderer = errors.New("slcanvas: renderer must implement gpucontext.TextureCreator")
)

// Source produces the image the canvas presents. *smoothlife.Simulation
// implements it.
type Source interface {
	Snapshot() (*image.RGBA, error)
}

// fpsSource is implemented by sources that report a frame rate.
type fpsSource interface {
	FPS() float64
}

// textureDestroyer matches gogpu.Texture.Destroy.
type textureDestroyer interface {
	Destroy()
}

// Canvas uploads simulation snapshots into a host texture and draws it.
type Canvas struct {
	src      Source
	provider gpucontext.DeviceProvider
	texture  gpucontext.Texture
	opts     RenderOptions
	closed   bool
}

// New creates a Canvas presenting src. The provider should come from
// gogpu.App.GPUContextProvider().
func New(src Source, provider gpucontext.DeviceProvider) (*Canvas, error) {
	if src == nil {
		return nil, ErrNilSource
	}
	if provider == nil {
		return nil, ErrNilProvider
	}
	return &Canvas{
		src:      src,
		provider: provider,
		opts:     DefaultRenderOptions(),
	}, nil
}

// SetOptions replaces the options used by RenderTo.
func (c *Canvas) SetOptions(opts RenderOptions) {
	c.opts = opts
}

// Options returns the options used by RenderTo.
func (c *Canvas) Options() RenderOptions {
	return c.opts
}

// Texture returns the current host texture, or nil before the first
// RenderTo.
func (c *Canvas) Texture() gpucontext.Texture {
	return c.texture
}

// Provider returns the DeviceProvider associated with this canvas.
// Returns nil if the canvas is closed.
func (c *Canvas) Provider() gpucontext.DeviceProvider {
	if c.closed {
		return nil
	}
	return c.provider
}

// frame takes a snapshot and applies the overlay.
func (c *Canvas) frame(opts RenderOptions) (*image.RGBA, error) {
	img, err := c.src.Snapshot()
	if err != nil {
		return nil, fmt.Errorf("slcanvas: snapshot: %w", err)
	}
	if opts.ShowFPS {
		if fs, ok := c.src.(fpsSource); ok {
			if err := hud.DrawFPS(img, fs.FPS()); err != nil {
				// The frame is still usable without the overlay.
				logging.Logger().Warn("slcanvas: fps overlay", "err", err)
			}
		}
	}
	return img, nil
}

// upload creates the texture on first use or after a size change and
// updates it in place otherwise.
func (c *Canvas) upload(dc gpucontext.TextureDrawer, img *image.RGBA) error {
	w, h := img.Rect.Dx(), img.Rect.Dy()

	if c.texture != nil && (c.texture.Width() != w || c.texture.Height() != h) {
		c.destroyTexture()
	}

	if c.texture != nil {
		updater, ok := c.texture.(gpucontext.TextureUpdater)
		if ok {
			if err := updater.UpdateData(img.Pix); err != nil {
				return fmt.Errorf("slcanvas: texture update failed: %w", err)
			}
			return nil
		}
		// No in-place update: recreate below.
		c.destroyTexture()
	}

	creator := dc.TextureCreator()
	if creator == nil {
		return ErrInvalidRenderer
	}
	tex, err := creator.NewTextureFromRGBA(w, h, img.Pix)
	if err != nil {
		return fmt.Errorf("slcanvas: NewTextureFromRGBA failed: %w", err)
	}
	c.texture = tex
	return nil
}

func (c *Canvas) destroyTexture() {
	if d, ok := c.texture.(textureDestroyer); ok {
		d.Destroy()
	}
	c.texture = nil
}

// Close releases the host texture. Close is idempotent.
func (c *Canvas) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	if c.texture != nil {
		c.destroyTexture()
	}
	c.provider = nil
	return nil
}
