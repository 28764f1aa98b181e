//go:build !nogpu

package native

import (
	"github.com/gogpu/smoothlife/backend"
	"github.com/gogpu/smoothlife/gpucore"
)

func init() {
	backend.Register(backend.BackendNative, func() (gpucore.GPUAdapter, error) {
		a, err := New(nil)
		if err != nil {
			return nil, err
		}
		return a, nil
	})
}
