package gpucore

// Resource IDs
//
// These opaque IDs represent GPU resources. Each adapter implementation
// maintains a mapping between IDs and actual backend resources.
// IDs are uint64 to accommodate various backend handle sizes.

// BufferID is an opaque handle to a GPU buffer.
type BufferID uint64

// TextureID is an opaque handle to a GPU texture.
type TextureID uint64

// ShaderModuleID is an opaque handle to a compiled shader module.
type ShaderModuleID uint64

// ComputePipelineID is an opaque handle to a compute pipeline.
type ComputePipelineID uint64

// BindGroupLayoutID is an opaque handle to a bind group layout.
type BindGroupLayoutID uint64

// BindGroupID is an opaque handle to a bind group.
type BindGroupID uint64

// PipelineLayoutID is an opaque handle to a pipeline layout.
type PipelineLayoutID uint64

// InvalidID is the zero value, representing an invalid/null resource.
const InvalidID = 0

// MaxBindGroups is the number of bind group slots a compute pass exposes.
const MaxBindGroups = 4

// BufferUsage is a bitmask specifying how a buffer will be used.
type BufferUsage uint32

// Buffer usage flags.
const (
	// BufferUsageMapRead indicates the buffer can be mapped for reading.
	BufferUsageMapRead BufferUsage = 1 << 0

	// BufferUsageCopySrc indicates the buffer can be used as a copy source.
	BufferUsageCopySrc BufferUsage = 1 << 2

	// BufferUsageCopyDst indicates the buffer can be used as a copy destination.
	BufferUsageCopyDst BufferUsage = 1 << 3

	// BufferUsageUniform indicates the buffer can be used as a uniform buffer.
	BufferUsageUniform BufferUsage = 1 << 6

	// BufferUsageStorage indicates the buffer can be used as a storage buffer.
	BufferUsageStorage BufferUsage = 1 << 7
)

// TextureFormat specifies the format of texture data.
type TextureFormat uint32

// Texture formats.
const (
	// TextureFormatRGBA8Unorm is 8-bit RGBA, normalized unsigned integer.
	TextureFormatRGBA8Unorm TextureFormat = iota + 1
)

// BytesPerPixel returns the texel size of the format in bytes.
func (f TextureFormat) BytesPerPixel() int {
	switch f {
	case TextureFormatRGBA8Unorm:
		return 4
	default:
		return 0
	}
}

// String returns the WGSL spelling of the format.
func (f TextureFormat) String() string {
	switch f {
	case TextureFormatRGBA8Unorm:
		return "rgba8unorm"
	default:
		return "unknown"
	}
}

// TextureUsage is a bitmask specifying how a texture will be used.
type TextureUsage uint32

// Texture usage flags.
const (
	// TextureUsageCopySrc indicates the texture can be used as a copy source.
	TextureUsageCopySrc TextureUsage = 1 << 0

	// TextureUsageCopyDst indicates the texture can be used as a copy destination.
	TextureUsageCopyDst TextureUsage = 1 << 1

	// TextureUsageTextureBinding indicates the texture can be bound as a sampled texture.
	TextureUsageTextureBinding TextureUsage = 1 << 2

	// TextureUsageStorageBinding indicates the texture can be bound as a storage texture.
	TextureUsageStorageBinding TextureUsage = 1 << 3
)

// BindingType specifies the type of a shader binding.
type BindingType uint32

// Binding types.
const (
	// BindingTypeUniformBuffer is a uniform buffer binding.
	BindingTypeUniformBuffer BindingType = iota + 1

	// BindingTypeStorageBuffer is a storage buffer binding (read-write).
	BindingTypeStorageBuffer

	// BindingTypeReadOnlyStorageBuffer is a read-only storage buffer binding.
	BindingTypeReadOnlyStorageBuffer

	// BindingTypeSampledTexture is a sampled texture binding (textureLoad).
	BindingTypeSampledTexture

	// BindingTypeStorageTexture is a storage texture binding.
	BindingTypeStorageTexture
)

// StorageTextureAccess is the access mode of a storage texture binding.
type StorageTextureAccess uint32

// Storage texture access modes.
const (
	StorageTextureAccessWriteOnly StorageTextureAccess = iota + 1
	StorageTextureAccessReadOnly
	StorageTextureAccessReadWrite
)

// ShaderSource carries shader code. Backends pick the representation they
// consume: WGSL for the CPU backend and wgpu, SPIR-V when precompiled.
type ShaderSource struct {
	WGSL  string
	SPIRV []uint32
}

// TextureDesc describes a 2D texture.
type TextureDesc struct {
	// Label is an optional debug label.
	Label string

	Width  uint32
	Height uint32
	Format TextureFormat
	Usage  TextureUsage
}

// ComputePipelineDesc describes a compute pipeline.
type ComputePipelineDesc struct {
	// Label is an optional debug label.
	Label string

	// Layout is the pipeline layout.
	Layout PipelineLayoutID

	// ShaderModule contains the compute shader.
	ShaderModule ShaderModuleID

	// EntryPoint is the name of the shader entry point function.
	EntryPoint string

	// Constants overrides pipeline-overridable constants by identifier.
	// The cpu backend ignores them; kernels read configuration from
	// their bindings.
	Constants map[string]float64
}

// BindGroupLayoutDesc describes a bind group layout.
type BindGroupLayoutDesc struct {
	// Label is an optional debug label.
	Label string

	// Entries defines the bindings in this layout.
	Entries []BindGroupLayoutEntry
}

// BindGroupLayoutEntry describes a single binding in a bind group layout.
// All bindings are visible to the compute stage.
type BindGroupLayoutEntry struct {
	// Binding is the binding index.
	Binding uint32

	// Type is the type of resource bound at this index.
	Type BindingType

	// MinBindingSize is the minimum buffer size for buffer bindings.
	// Set to 0 for non-buffer bindings.
	MinBindingSize uint64

	// StorageAccess and StorageFormat apply to storage texture bindings.
	StorageAccess StorageTextureAccess
	StorageFormat TextureFormat
}

// BindGroupEntry describes a single binding in a bind group.
type BindGroupEntry struct {
	// Binding is the binding index.
	Binding uint32

	// Buffer is the buffer to bind (for buffer bindings).
	Buffer BufferID

	// Offset is the offset into the buffer.
	Offset uint64

	// Size is the size of the buffer range to bind.
	// Use 0 to bind the entire buffer from offset.
	Size uint64

	// Texture is the texture to bind (for texture bindings).
	Texture TextureID
}

// BindGroupDesc describes a bind group.
type BindGroupDesc struct {
	// Label is an optional debug label.
	Label string

	// Layout is the bind group layout.
	Layout BindGroupLayoutID

	// Entries are the resource bindings.
	Entries []BindGroupEntry
}

// WorkgroupCount returns the number of workgroups needed to cover size
// invocations with workgroups of the given width.
func WorkgroupCount(size, workgroup uint32) uint32 {
	if workgroup == 0 {
		return 0
	}
	return (size + workgroup - 1) / workgroup
}
