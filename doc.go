// Package smoothlife runs SmoothLife, a continuous-valued Game of Life, as
// a GPU compute pipeline.
//
// A Simulation owns a small render world: a shader asset server, a
// pipeline cache, a state image and a render graph with two nodes. The
// "smooth_life" node runs the shader's init entry point once the init
// pipeline is compiled, then the update entry point every frame after.
// The "camera_driver" node runs after it and hands the finished frame to
// registered presenters.
//
// # Quick Start
//
//	adapter, err := backend.OpenDefault()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer adapter.Close()
//
//	sim, err := smoothlife.New(adapter)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer sim.Close()
//
//	if err := sim.Run(ctx, 600); err != nil {
//	    log.Fatal(err)
//	}
//	img, err := sim.Snapshot()
//
// # Backends
//
// Any gpucore.GPUAdapter works. backend/native runs the WGSL shader on a
// real GPU through gogpu/wgpu. backend/cpu runs the same math as Go
// kernels, which New registers automatically.
//
// # Frame phases
//
// Frame runs, in order: frame-time diagnostics, asset server update,
// extract, image preparation, pipeline cache processing, bind group
// queueing, graph update, graph run and command submission.
//
// # Logging
//
// The package is silent by default. SetLogger enables log output for the
// package and all of its sub-packages.
package smoothlife
