// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package slcanvas

import (
	"github.com/gogpu/gpucontext"
)

// RenderOptions controls how the simulation is drawn.
type RenderOptions struct {
	// X, Y is the position to draw the texture (default: 0, 0).
	X, Y float32

	// ShowFPS draws the frame-rate overlay when the source reports one.
	ShowFPS bool
}

// DefaultRenderOptions returns options drawing at the origin with the
// frame-rate overlay enabled.
func DefaultRenderOptions() RenderOptions {
	return RenderOptions{ShowFPS: true}
}

// RenderTo snapshots the source, uploads it and draws it with the canvas
// options.
//
//	app.OnDraw(func(dc *gogpu.Context) {
//	    canvas.RenderTo(dc.AsTextureDrawer())
//	})
func (c *Canvas) RenderTo(dc gpucontext.TextureDrawer) error {
	return c.RenderToEx(dc, c.opts)
}

// RenderToEx is RenderTo with explicit options.
func (c *Canvas) RenderToEx(dc gpucontext.TextureDrawer, opts RenderOptions) error {
	if c.closed {
		return ErrCanvasClosed
	}
	if dc == nil {
		return ErrInvalidDrawContext
	}

	img, err := c.frame(opts)
	if err != nil {
		return err
	}
	if err := c.upload(dc, img); err != nil {
		return err
	}
	return dc.DrawTexture(c.texture, opts.X, opts.Y)
}
