// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

//go:build !nogpu

package slcanvas

import (
	"errors"
	"fmt"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/wgpu"

	"github.com/gogpu/smoothlife/backend/native"
)

// ErrForeignDevice is returned when the provider's device is not a
// *wgpu.Device.
var ErrForeignDevice = errors.New("slcanvas: provider device is not a *wgpu.Device")

// SharedAdapter returns a native adapter running on the host's device, so
// the simulation computes on the same GPU that presents it. Closing the
// adapter leaves the host device alive.
func SharedAdapter(provider gpucontext.DeviceProvider) (*native.Adapter, error) {
	if provider == nil {
		return nil, ErrNilProvider
	}
	device, ok := provider.Device().(*wgpu.Device)
	if !ok || device == nil {
		return nil, fmt.Errorf("%w: %T", ErrForeignDevice, provider.Device())
	}
	info := provider.AdapterInfo()
	return native.FromDevice(device, wgpu.AdapterInfo{Name: info.Name})
}
