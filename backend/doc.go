// Package backend selects the compute backend a simulation runs on.
//
// Backends register a Factory from an init() function and are opened by
// name or by priority:
//
//	import (
//		"github.com/gogpu/smoothlife/backend"
//		_ "github.com/gogpu/smoothlife/backend/cpu"
//		_ "github.com/gogpu/smoothlife/backend/native"
//	)
//
//	// Best available: native GPU first, CPU kernels as the fallback.
//	adapter, err := backend.OpenDefault()
//
//	// Or a specific backend.
//	adapter, err := backend.Open(backend.BackendCPU)
//
// # Available Backends
//
//   - "native": gogpu/wgpu (Vulkan, Metal, DX12, GLES, software rasterizer)
//   - "cpu": Go kernels executed on a worker pool (always available)
package backend
