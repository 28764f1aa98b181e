package gpucore

// GPUAdapter abstracts over different GPU backend implementations.
//
// This interface is the core abstraction that lets the simulation drive the
// same compute pipeline on a real device (gogpu/wgpu) or on the CPU.
// Implementations must be thread-safe for concurrent use.
//
// Resource lifecycle:
//   - Resources are created via Create* methods
//   - Resources must be explicitly destroyed via Destroy* methods
//   - Destroying a resource while in use is undefined behavior
//   - IDs become invalid after destruction and must not be reused
type GPUAdapter interface {
	// === Capabilities ===

	// Name identifies the backend and device, for logs.
	Name() string

	// SupportsCompute returns whether compute shaders are supported.
	SupportsCompute() bool

	// Capabilities reports device limits relevant to compute dispatch.
	Capabilities() AdapterCapabilities

	// === Shader Compilation ===

	// CreateShaderModule creates a shader module. Invalid source is
	// reported here.
	CreateShaderModule(src ShaderSource, label string) (ShaderModuleID, error)

	// DestroyShaderModule releases a shader module.
	DestroyShaderModule(id ShaderModuleID)

	// === Buffer Management ===

	// CreateBuffer creates a GPU buffer of size bytes.
	CreateBuffer(size uint64, usage BufferUsage, label string) (BufferID, error)

	// DestroyBuffer releases a GPU buffer.
	DestroyBuffer(id BufferID)

	// WriteBuffer writes data to a buffer at offset.
	WriteBuffer(id BufferID, offset uint64, data []byte) error

	// === Texture Management ===

	// CreateTexture creates a 2D GPU texture.
	CreateTexture(desc *TextureDesc) (TextureID, error)

	// DestroyTexture releases a GPU texture.
	DestroyTexture(id TextureID)

	// WriteTexture replaces the whole texture contents. data holds tightly
	// packed rows.
	WriteTexture(id TextureID, data []byte) error

	// ReadTexture reads the whole texture back as tightly packed rows.
	// This causes a GPU-CPU synchronization stall.
	ReadTexture(id TextureID) ([]byte, error)

	// === Pipeline Management ===

	// CreateBindGroupLayout creates a bind group layout.
	CreateBindGroupLayout(desc *BindGroupLayoutDesc) (BindGroupLayoutID, error)

	// DestroyBindGroupLayout releases a bind group layout.
	DestroyBindGroupLayout(id BindGroupLayoutID)

	// CreatePipelineLayout creates a pipeline layout from bind group layouts.
	CreatePipelineLayout(layouts []BindGroupLayoutID, label string) (PipelineLayoutID, error)

	// DestroyPipelineLayout releases a pipeline layout.
	DestroyPipelineLayout(id PipelineLayoutID)

	// CreateComputePipeline creates a compute pipeline.
	CreateComputePipeline(desc *ComputePipelineDesc) (ComputePipelineID, error)

	// DestroyComputePipeline releases a compute pipeline.
	DestroyComputePipeline(id ComputePipelineID)

	// CreateBindGroup creates a bind group.
	CreateBindGroup(desc *BindGroupDesc) (BindGroupID, error)

	// DestroyBindGroup releases a bind group.
	DestroyBindGroup(id BindGroupID)

	// === Command Execution ===

	// Submit executes the commands recorded in enc. The encoder must be
	// finished and is consumed by the call.
	Submit(enc *CommandEncoder) error

	// WaitIdle waits for all GPU operations to complete.
	WaitIdle() error

	// Close releases the device and every resource still alive.
	Close()
}

// AdapterCapabilities describes GPU adapter capabilities.
type AdapterCapabilities struct {
	// SupportsCompute indicates compute shader support.
	SupportsCompute bool

	// MaxWorkgroupSizeX is the maximum workgroup size in X dimension.
	MaxWorkgroupSizeX uint32

	// MaxWorkgroupSizeY is the maximum workgroup size in Y dimension.
	MaxWorkgroupSizeY uint32

	// MaxWorkgroupSizeZ is the maximum workgroup size in Z dimension.
	MaxWorkgroupSizeZ uint32

	// MaxComputeWorkgroupsPerDimension is the maximum workgroups per dispatch dimension.
	MaxComputeWorkgroupsPerDimension uint32

	// MaxTextureDimension2D is the largest texture edge the device accepts.
	MaxTextureDimension2D uint32
}

// DefaultCapabilities returns the WebGPU baseline limits.
func DefaultCapabilities() AdapterCapabilities {
	return AdapterCapabilities{
		SupportsCompute:                  true,
		MaxWorkgroupSizeX:                256,
		MaxWorkgroupSizeY:                256,
		MaxWorkgroupSizeZ:                64,
		MaxComputeWorkgroupsPerDimension: 65535,
		MaxTextureDimension2D:            8192,
	}
}
