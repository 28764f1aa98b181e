// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

// Package slcanvas presents a SmoothLife simulation in a gogpu window.
//
// The simulation writes its state into a GPU image. Canvas reads that image
// back each frame and hands it to the host renderer:
//
//	Simulation (state image) -> Snapshot (CPU) -> host Texture -> Window
//
// # Usage
//
//	canvas, err := slcanvas.New(sim, app.GPUContextProvider())
//	if err != nil {
//	    return err
//	}
//	defer canvas.Close()
//
//	app.OnDraw(func(dc *gogpu.Context) {
//	    _ = sim.Frame(ctx)
//	    _ = canvas.RenderTo(dc.AsTextureDrawer())
//	})
//
// The package depends only on gpucontext interfaces, so it does not import
// gogpu itself.
//
// Canvas is NOT safe for concurrent use.
package slcanvas
