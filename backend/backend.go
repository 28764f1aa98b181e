package backend

import (
	"errors"

	"github.com/gogpu/smoothlife/gpucore"
)

// Backend name constants.
const (
	// BackendCPU is the name of the CPU backend that runs compute entry
	// points as Go kernels.
	BackendCPU = "cpu"
	// BackendNative is the name of the Pure Go GPU backend (gogpu/wgpu).
	BackendNative = "native"
)

// Common backend errors.
var (
	// ErrBackendNotAvailable is returned when a requested backend is not available.
	ErrBackendNotAvailable = errors.New("backend: not available")
)

// Factory opens a new adapter. A factory returns an error when its
// backend cannot run on this machine, for example when no GPU is present.
type Factory func() (gpucore.GPUAdapter, error)
