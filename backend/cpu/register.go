package cpu

import (
	"github.com/gogpu/smoothlife/backend"
	"github.com/gogpu/smoothlife/gpucore"
)

func init() {
	backend.Register(backend.BackendCPU, func() (gpucore.GPUAdapter, error) {
		return New(), nil
	})
}
