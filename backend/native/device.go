//go:build !nogpu

// Package native implements gpucore.GPUAdapter on gogpu/wgpu, the Pure Go
// WebGPU implementation (Vulkan, Metal, DX12, GLES and a software rasterizer).
package native

import (
	"errors"
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu"

	// Register every HAL backend available on this platform.
	_ "github.com/gogpu/wgpu/hal/allbackends"

	"github.com/gogpu/smoothlife/internal/logging"
)

// Errors returned while acquiring a device.
var (
	// ErrNoGPU is returned when no adapter could be acquired.
	ErrNoGPU = errors.New("native: no GPU adapter available")

	// ErrNoQueue is returned for devices created without a HAL queue.
	ErrNoQueue = errors.New("native: device has no queue")
)

// Options controls adapter selection.
type Options struct {
	// PowerPreference selects between integrated and discrete GPUs.
	PowerPreference gputypes.PowerPreference

	// ForceFallbackAdapter requests the software adapter. Without it New
	// rejects software adapters so callers fall back to backend/cpu.
	ForceFallbackAdapter bool

	// SPIRV compiles WGSL to SPIR-V with naga before handing it to the
	// driver instead of passing WGSL through.
	SPIRV bool
}

// GPUInfo contains information about the selected GPU.
type GPUInfo struct {
	// Name is the GPU name (e.g., "NVIDIA GeForce RTX 3080").
	Name string
	// Vendor is the GPU vendor.
	Vendor string
	// DeviceType is the type of GPU (discrete, integrated, etc.).
	DeviceType gputypes.DeviceType
	// Backend is the graphics API in use (Vulkan, Metal, DX12).
	Backend gputypes.Backend
	// Driver is the driver version string.
	Driver string
}

// String returns a human-readable description of the GPU.
func (g *GPUInfo) String() string {
	return fmt.Sprintf("%s (%s, %s)", g.Name, g.DeviceType, g.Backend)
}

// New acquires an instance, adapter and device and wraps them in an
// Adapter that owns them. opts may be nil.
func New(opts *Options) (*Adapter, error) {
	if opts == nil {
		opts = &Options{PowerPreference: gputypes.PowerPreferenceHighPerformance}
	}

	instance, err := wgpu.CreateInstance(nil)
	if err != nil {
		return nil, fmt.Errorf("%w: create instance: %w", ErrNoGPU, err)
	}

	adapter, err := instance.RequestAdapter(&wgpu.RequestAdapterOptions{
		PowerPreference:      opts.PowerPreference,
		ForceFallbackAdapter: opts.ForceFallbackAdapter,
	})
	if err != nil {
		instance.Release()
		return nil, fmt.Errorf("%w: request adapter: %w", ErrNoGPU, err)
	}

	if info := adapter.Info(); isSoftware(info) && !opts.ForceFallbackAdapter {
		adapter.Release()
		instance.Release()
		return nil, fmt.Errorf("%w: software adapter %q", ErrNoGPU, info.Name)
	}

	device, err := adapter.RequestDevice(&wgpu.DeviceDescriptor{Label: "smoothlife"})
	if err != nil {
		adapter.Release()
		instance.Release()
		return nil, fmt.Errorf("%w: request device: %w", ErrNoGPU, err)
	}

	a, err := newAdapter(device, adapter.Info(), adapter.Limits(), opts.SPIRV)
	if err != nil {
		device.Release()
		adapter.Release()
		instance.Release()
		return nil, err
	}
	a.instance = instance
	a.adapter = adapter
	a.owned = true

	logging.Logger().Info("native: GPU adapter selected", "gpu", a.info.String())
	return a, nil
}

// isSoftware reports whether info describes a CPU rasterizer rather than a
// hardware device.
func isSoftware(info wgpu.AdapterInfo) bool {
	return info.DeviceType == gputypes.DeviceTypeCPU || info.Backend == gputypes.BackendEmpty
}

// FromDevice wraps a device owned by a host application, for example the
// device a gogpu window renders with. Close leaves the device alive.
func FromDevice(device *wgpu.Device, info wgpu.AdapterInfo) (*Adapter, error) {
	if device == nil {
		return nil, ErrNoGPU
	}
	return newAdapter(device, info, device.Limits(), false)
}

func newAdapter(device *wgpu.Device, info wgpu.AdapterInfo, limits wgpu.Limits, spirv bool) (*Adapter, error) {
	queue := device.Queue()
	if queue == nil {
		return nil, ErrNoQueue
	}
	return &Adapter{
		device: device,
		queue:  queue,
		limits: limits,
		spirv:  spirv,
		info: GPUInfo{
			Name:       info.Name,
			Vendor:     info.Vendor,
			DeviceType: info.DeviceType,
			Backend:    info.Backend,
			Driver:     info.Driver,
		},
		shaders:          make(map[uint64]*wgpu.ShaderModule),
		textures:         make(map[uint64]*texture),
		buffers:          make(map[uint64]*wgpu.Buffer),
		bindGroupLayouts: make(map[uint64]*wgpu.BindGroupLayout),
		pipelineLayouts:  make(map[uint64]*wgpu.PipelineLayout),
		pipelines:        make(map[uint64]*wgpu.ComputePipeline),
		bindGroups:       make(map[uint64]*wgpu.BindGroup),
	}, nil
}
