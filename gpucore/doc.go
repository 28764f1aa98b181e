// Package gpucore provides the GPU abstraction the SmoothLife pipeline is
// written against.
//
// The [GPUAdapter] interface abstracts over backend implementations so the
// same compute pipeline runs on:
//   - gogpu/wgpu (Pure Go WebGPU: Vulkan, Metal, DX12, GLES, software)
//   - the CPU backend, which executes Go kernels registered for each
//     compute entry point
//
// # Architecture
//
//	               +-----------------+
//	               |    gpucore      |
//	               | (CommandEncoder)|
//	               +--------+--------+
//	                        |
//	         +--------------+--------------+
//	         |                             |
//	+--------v--------+          +--------v--------+
//	|   wgpu backend  |          |   cpu backend   |
//	|  (wgpu.Device)  |          |  (Go kernels)   |
//	+-----------------+          +-----------------+
//
// # Resource Management
//
// GPU resources are managed via opaque IDs ([BufferID], [TextureID], etc.).
// The [GPUAdapter] interface provides creation and destruction methods for
// each resource type. Adapters are responsible for tracking the mapping
// between IDs and actual GPU resources.
//
// # Command Recording
//
// Commands are recorded into a [CommandEncoder] independently of any
// backend and replayed by [GPUAdapter.Submit]:
//
//	enc := gpucore.NewCommandEncoder("frame")
//	pass, err := enc.BeginComputePass("smooth life")
//	if err != nil {
//	    return err
//	}
//	_ = pass.SetBindGroup(0, group)
//	_ = pass.SetPipeline(pipeline)
//	_ = pass.Dispatch(150, 75, 1)
//	_ = pass.End()
//	_ = enc.Finish()
//	err = adapter.Submit(enc)
package gpucore
