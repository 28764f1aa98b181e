// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package render is the render world of a simulation: the GPU resources
// that survive across frames and the graph of nodes that records each
// frame's commands.
//
// # Frame Phases
//
// A frame moves through the render world in a fixed order:
//
//	Extract   main-world resources are copied in (World.Extract)
//	Prepare   image assets become GPU textures (Images.Prepare)
//	Process   queued pipelines compile (PipelineCache.Process)
//	Queue     bind groups are built from prepared resources
//	Update    nodes advance their state (Graph.Update)
//	Run       nodes record commands into the frame encoder (Graph.Run)
//
// The World and the graph are owned by the frame loop and are not safe for
// concurrent use; the pipeline cache compiles on worker goroutines but
// publishes results only from Process.
package render
