//go:build !nogpu

package native

import (
	"errors"
	"fmt"
	"sync"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/naga"
	"github.com/gogpu/wgpu"

	"github.com/gogpu/smoothlife/gpucore"
	"github.com/gogpu/smoothlife/internal/logging"
)

// Errors returned by the adapter.
var (
	ErrClosed          = errors.New("native: adapter closed")
	ErrUnknownResource = errors.New("native: unknown resource")
	ErrDataSize        = errors.New("native: data size mismatch")
)

type texture struct {
	tex    *wgpu.Texture
	view   *wgpu.TextureView
	width  uint32
	height uint32
	usage  gpucore.TextureUsage
}

// Adapter implements gpucore.GPUAdapter using the public gogpu/wgpu API.
// It maps gpucore IDs to wgpu objects.
//
// Thread Safety: Adapter is safe for concurrent use from multiple goroutines.
// Resource maps are protected by mu; submissions are serialized by exec.
type Adapter struct {
	instance *wgpu.Instance
	adapter  *wgpu.Adapter
	device   *wgpu.Device
	queue    *wgpu.Queue
	owned    bool
	spirv    bool

	info   GPUInfo
	limits wgpu.Limits

	mu               sync.RWMutex
	nextID           uint64
	closed           bool
	shaders          map[uint64]*wgpu.ShaderModule
	textures         map[uint64]*texture
	buffers          map[uint64]*wgpu.Buffer
	bindGroupLayouts map[uint64]*wgpu.BindGroupLayout
	pipelineLayouts  map[uint64]*wgpu.PipelineLayout
	pipelines        map[uint64]*wgpu.ComputePipeline
	bindGroups       map[uint64]*wgpu.BindGroup

	exec     sync.Mutex
	inflight []*wgpu.CommandBuffer
}

// Info describes the GPU the adapter runs on.
func (a *Adapter) Info() GPUInfo { return a.info }

// Device returns the underlying device.
func (a *Adapter) Device() *wgpu.Device { return a.device }

// Name implements gpucore.GPUAdapter.
func (a *Adapter) Name() string { return "native: " + a.info.String() }

// SupportsCompute implements gpucore.GPUAdapter.
func (a *Adapter) SupportsCompute() bool {
	return a.limits.MaxComputeWorkgroupsPerDimension > 0
}

// Capabilities implements gpucore.GPUAdapter.
func (a *Adapter) Capabilities() gpucore.AdapterCapabilities {
	return gpucore.AdapterCapabilities{
		SupportsCompute:                  a.SupportsCompute(),
		MaxWorkgroupSizeX:                a.limits.MaxComputeWorkgroupSizeX,
		MaxWorkgroupSizeY:                a.limits.MaxComputeWorkgroupSizeY,
		MaxWorkgroupSizeZ:                a.limits.MaxComputeWorkgroupSizeZ,
		MaxComputeWorkgroupsPerDimension: a.limits.MaxComputeWorkgroupsPerDimension,
		MaxTextureDimension2D:            a.limits.MaxTextureDimension2D,
	}
}

// store registers a resource under a new id. The caller must hold a.mu.
func store[T any](a *Adapter, m map[uint64]T, v T) uint64 {
	a.nextID++
	m[a.nextID] = v
	return a.nextID
}

func (a *Adapter) checkOpen() error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return ErrClosed
	}
	return nil
}

// take removes and returns the resource registered under id.
func take[T any](a *Adapter, m map[uint64]T, id uint64) (T, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	v, ok := m[id]
	delete(m, id)
	return v, ok
}

// === Shader Compilation ===

// CreateShaderModule implements gpucore.GPUAdapter.
func (a *Adapter) CreateShaderModule(src gpucore.ShaderSource, label string) (gpucore.ShaderModuleID, error) {
	if err := a.checkOpen(); err != nil {
		return gpucore.InvalidID, err
	}
	desc := &wgpu.ShaderModuleDescriptor{Label: label, WGSL: src.WGSL, SPIRV: src.SPIRV}
	if a.spirv && desc.SPIRV == nil && desc.WGSL != "" {
		words, err := compileSPIRV(src.WGSL)
		if err != nil {
			return gpucore.InvalidID, fmt.Errorf("native: shader %q: %w", label, err)
		}
		desc.WGSL, desc.SPIRV = "", words
	}

	m, err := a.device.CreateShaderModule(desc)
	if err != nil {
		return gpucore.InvalidID, fmt.Errorf("native: shader %q: %w", label, err)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		m.Release()
		return gpucore.InvalidID, ErrClosed
	}
	return gpucore.ShaderModuleID(store(a, a.shaders, m)), nil
}

// compileSPIRV compiles WGSL to SPIR-V words with naga.
func compileSPIRV(source string) ([]uint32, error) {
	b, err := naga.Compile(source)
	if err != nil {
		return nil, err
	}
	words := make([]uint32, len(b)/4)
	for i := range words {
		words[i] = uint32(b[i*4]) |
			uint32(b[i*4+1])<<8 |
			uint32(b[i*4+2])<<16 |
			uint32(b[i*4+3])<<24
	}
	return words, nil
}

// DestroyShaderModule implements gpucore.GPUAdapter.
func (a *Adapter) DestroyShaderModule(id gpucore.ShaderModuleID) {
	if m, ok := take(a, a.shaders, uint64(id)); ok {
		m.Release()
	}
}

// === Buffer Management ===

func bufferUsage(u gpucore.BufferUsage) wgpu.BufferUsage {
	var out wgpu.BufferUsage
	if u&gpucore.BufferUsageMapRead != 0 {
		out |= wgpu.BufferUsageMapRead
	}
	if u&gpucore.BufferUsageCopySrc != 0 {
		out |= wgpu.BufferUsageCopySrc
	}
	if u&gpucore.BufferUsageCopyDst != 0 {
		out |= wgpu.BufferUsageCopyDst
	}
	if u&gpucore.BufferUsageUniform != 0 {
		out |= wgpu.BufferUsageUniform
	}
	if u&gpucore.BufferUsageStorage != 0 {
		out |= wgpu.BufferUsageStorage
	}
	return out
}

// CreateBuffer implements gpucore.GPUAdapter.
func (a *Adapter) CreateBuffer(size uint64, usage gpucore.BufferUsage, label string) (gpucore.BufferID, error) {
	if err := a.checkOpen(); err != nil {
		return gpucore.InvalidID, err
	}
	b, err := a.device.CreateBuffer(&wgpu.BufferDescriptor{Label: label, Size: size, Usage: bufferUsage(usage)})
	if err != nil {
		return gpucore.InvalidID, fmt.Errorf("native: buffer %q: %w", label, err)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		b.Release()
		return gpucore.InvalidID, ErrClosed
	}
	return gpucore.BufferID(store(a, a.buffers, b)), nil
}

// DestroyBuffer implements gpucore.GPUAdapter.
func (a *Adapter) DestroyBuffer(id gpucore.BufferID) {
	if b, ok := take(a, a.buffers, uint64(id)); ok {
		b.Release()
	}
}

// WriteBuffer implements gpucore.GPUAdapter.
func (a *Adapter) WriteBuffer(id gpucore.BufferID, offset uint64, data []byte) error {
	a.mu.RLock()
	b, ok := a.buffers[uint64(id)]
	a.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: buffer %d", ErrUnknownResource, id)
	}
	if err := a.queue.WriteBuffer(b, offset, data); err != nil {
		return fmt.Errorf("native: write buffer %d: %w", id, err)
	}
	return nil
}

// === Texture Management ===

func textureUsage(u gpucore.TextureUsage) wgpu.TextureUsage {
	var out wgpu.TextureUsage
	if u&gpucore.TextureUsageCopySrc != 0 {
		out |= wgpu.TextureUsageCopySrc
	}
	if u&gpucore.TextureUsageCopyDst != 0 {
		out |= wgpu.TextureUsageCopyDst
	}
	if u&gpucore.TextureUsageTextureBinding != 0 {
		out |= wgpu.TextureUsageTextureBinding
	}
	if u&gpucore.TextureUsageStorageBinding != 0 {
		out |= wgpu.TextureUsageStorageBinding
	}
	return out
}

func textureFormat(f gpucore.TextureFormat) (wgpu.TextureFormat, error) {
	switch f {
	case gpucore.TextureFormatRGBA8Unorm:
		return wgpu.TextureFormatRGBA8Unorm, nil
	default:
		return 0, fmt.Errorf("native: unsupported texture format %v", f)
	}
}

// CreateTexture implements gpucore.GPUAdapter.
func (a *Adapter) CreateTexture(desc *gpucore.TextureDesc) (gpucore.TextureID, error) {
	if err := a.checkOpen(); err != nil {
		return gpucore.InvalidID, err
	}
	format, err := textureFormat(desc.Format)
	if err != nil {
		return gpucore.InvalidID, err
	}

	tex, err := a.device.CreateTexture(&wgpu.TextureDescriptor{
		Label:         desc.Label,
		Size:          wgpu.Extent3D{Width: desc.Width, Height: desc.Height, DepthOrArrayLayers: 1},
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     wgpu.TextureDimension2D,
		Format:        format,
		Usage:         textureUsage(desc.Usage),
	})
	if err != nil {
		return gpucore.InvalidID, fmt.Errorf("native: texture %q: %w", desc.Label, err)
	}

	view, err := a.device.CreateTextureView(tex, &wgpu.TextureViewDescriptor{
		Label:           desc.Label + " view",
		Format:          format,
		Dimension:       gputypes.TextureViewDimension2D,
		Aspect:          gputypes.TextureAspectAll,
		MipLevelCount:   1,
		ArrayLayerCount: 1,
	})
	if err != nil {
		tex.Release()
		return gpucore.InvalidID, fmt.Errorf("native: texture view %q: %w", desc.Label, err)
	}

	t := &texture{tex: tex, view: view, width: desc.Width, height: desc.Height, usage: desc.Usage}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		view.Release()
		tex.Release()
		return gpucore.InvalidID, ErrClosed
	}
	return gpucore.TextureID(store(a, a.textures, t)), nil
}

// DestroyTexture implements gpucore.GPUAdapter.
func (a *Adapter) DestroyTexture(id gpucore.TextureID) {
	if t, ok := take(a, a.textures, uint64(id)); ok {
		t.view.Release()
		t.tex.Release()
	}
}

func (a *Adapter) texture(id gpucore.TextureID) (*texture, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	t, ok := a.textures[uint64(id)]
	if !ok {
		return nil, fmt.Errorf("%w: texture %d", ErrUnknownResource, id)
	}
	return t, nil
}

// WriteTexture implements gpucore.GPUAdapter.
func (a *Adapter) WriteTexture(id gpucore.TextureID, data []byte) error {
	t, err := a.texture(id)
	if err != nil {
		return err
	}
	rowBytes := t.width * 4
	if uint64(len(data)) != uint64(rowBytes)*uint64(t.height) {
		return fmt.Errorf("%w: texture %d wants %d bytes, got %d", ErrDataSize, id, rowBytes*t.height, len(data))
	}

	err = a.queue.WriteTexture(
		&wgpu.ImageCopyTexture{Texture: t.tex},
		data,
		&wgpu.ImageDataLayout{BytesPerRow: rowBytes, RowsPerImage: t.height},
		&wgpu.Extent3D{Width: t.width, Height: t.height, DepthOrArrayLayers: 1},
	)
	if err != nil {
		return fmt.Errorf("native: write texture %d: %w", id, err)
	}
	return nil
}

// === Pipeline Management ===

func layoutEntry(e gpucore.BindGroupLayoutEntry) (wgpu.BindGroupLayoutEntry, error) {
	out := wgpu.BindGroupLayoutEntry{Binding: e.Binding, Visibility: wgpu.ShaderStageCompute}
	switch e.Type {
	case gpucore.BindingTypeUniformBuffer:
		out.Buffer = &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeUniform, MinBindingSize: e.MinBindingSize}
	case gpucore.BindingTypeStorageBuffer:
		out.Buffer = &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeStorage, MinBindingSize: e.MinBindingSize}
	case gpucore.BindingTypeReadOnlyStorageBuffer:
		out.Buffer = &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeReadOnlyStorage, MinBindingSize: e.MinBindingSize}
	case gpucore.BindingTypeSampledTexture:
		out.Texture = &gputypes.TextureBindingLayout{
			SampleType:    gputypes.TextureSampleTypeFloat,
			ViewDimension: gputypes.TextureViewDimension2D,
		}
	case gpucore.BindingTypeStorageTexture:
		format, err := textureFormat(e.StorageFormat)
		if err != nil {
			return out, err
		}
		out.StorageTexture = &gputypes.StorageTextureBindingLayout{
			Access:        storageAccess(e.StorageAccess),
			Format:        format,
			ViewDimension: gputypes.TextureViewDimension2D,
		}
	default:
		return out, fmt.Errorf("native: unsupported binding type %d at binding %d", e.Type, e.Binding)
	}
	return out, nil
}

func storageAccess(a gpucore.StorageTextureAccess) gputypes.StorageTextureAccess {
	switch a {
	case gpucore.StorageTextureAccessReadOnly:
		return gputypes.StorageTextureAccessReadOnly
	case gpucore.StorageTextureAccessReadWrite:
		return gputypes.StorageTextureAccessReadWrite
	default:
		return gputypes.StorageTextureAccessWriteOnly
	}
}

// CreateBindGroupLayout implements gpucore.GPUAdapter.
func (a *Adapter) CreateBindGroupLayout(desc *gpucore.BindGroupLayoutDesc) (gpucore.BindGroupLayoutID, error) {
	if err := a.checkOpen(); err != nil {
		return gpucore.InvalidID, err
	}
	entries := make([]wgpu.BindGroupLayoutEntry, 0, len(desc.Entries))
	for _, e := range desc.Entries {
		le, err := layoutEntry(e)
		if err != nil {
			return gpucore.InvalidID, err
		}
		entries = append(entries, le)
	}

	l, err := a.device.CreateBindGroupLayout(&wgpu.BindGroupLayoutDescriptor{Label: desc.Label, Entries: entries})
	if err != nil {
		return gpucore.InvalidID, fmt.Errorf("native: bind group layout %q: %w", desc.Label, err)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		l.Release()
		return gpucore.InvalidID, ErrClosed
	}
	return gpucore.BindGroupLayoutID(store(a, a.bindGroupLayouts, l)), nil
}

// DestroyBindGroupLayout implements gpucore.GPUAdapter.
func (a *Adapter) DestroyBindGroupLayout(id gpucore.BindGroupLayoutID) {
	if l, ok := take(a, a.bindGroupLayouts, uint64(id)); ok {
		l.Release()
	}
}

// CreatePipelineLayout implements gpucore.GPUAdapter.
func (a *Adapter) CreatePipelineLayout(layouts []gpucore.BindGroupLayoutID, label string) (gpucore.PipelineLayoutID, error) {
	a.mu.RLock()
	bgls := make([]*wgpu.BindGroupLayout, 0, len(layouts))
	for _, id := range layouts {
		l, ok := a.bindGroupLayouts[uint64(id)]
		if !ok {
			a.mu.RUnlock()
			return gpucore.InvalidID, fmt.Errorf("%w: bind group layout %d", ErrUnknownResource, id)
		}
		bgls = append(bgls, l)
	}
	a.mu.RUnlock()

	pl, err := a.device.CreatePipelineLayout(&wgpu.PipelineLayoutDescriptor{Label: label, BindGroupLayouts: bgls})
	if err != nil {
		return gpucore.InvalidID, fmt.Errorf("native: pipeline layout %q: %w", label, err)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		pl.Release()
		return gpucore.InvalidID, ErrClosed
	}
	return gpucore.PipelineLayoutID(store(a, a.pipelineLayouts, pl)), nil
}

// DestroyPipelineLayout implements gpucore.GPUAdapter.
func (a *Adapter) DestroyPipelineLayout(id gpucore.PipelineLayoutID) {
	if pl, ok := take(a, a.pipelineLayouts, uint64(id)); ok {
		pl.Release()
	}
}

// CreateComputePipeline implements gpucore.GPUAdapter.
func (a *Adapter) CreateComputePipeline(desc *gpucore.ComputePipelineDesc) (gpucore.ComputePipelineID, error) {
	a.mu.RLock()
	layout, okLayout := a.pipelineLayouts[uint64(desc.Layout)]
	module, okModule := a.shaders[uint64(desc.ShaderModule)]
	a.mu.RUnlock()
	if !okLayout {
		return gpucore.InvalidID, fmt.Errorf("%w: pipeline layout %d", ErrUnknownResource, desc.Layout)
	}
	if !okModule {
		return gpucore.InvalidID, fmt.Errorf("%w: shader module %d", ErrUnknownResource, desc.ShaderModule)
	}

	p, err := a.device.CreateComputePipeline(&wgpu.ComputePipelineDescriptor{
		Label:      desc.Label,
		Layout:     layout,
		Module:     module,
		EntryPoint: desc.EntryPoint,
		Constants:  desc.Constants,
	})
	if err != nil {
		return gpucore.InvalidID, fmt.Errorf("native: compute pipeline %q: %w", desc.Label, err)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		p.Release()
		return gpucore.InvalidID, ErrClosed
	}
	return gpucore.ComputePipelineID(store(a, a.pipelines, p)), nil
}

// DestroyComputePipeline implements gpucore.GPUAdapter.
func (a *Adapter) DestroyComputePipeline(id gpucore.ComputePipelineID) {
	if p, ok := take(a, a.pipelines, uint64(id)); ok {
		p.Release()
	}
}

// CreateBindGroup implements gpucore.GPUAdapter.
func (a *Adapter) CreateBindGroup(desc *gpucore.BindGroupDesc) (gpucore.BindGroupID, error) {
	a.mu.RLock()
	layout, ok := a.bindGroupLayouts[uint64(desc.Layout)]
	if !ok {
		a.mu.RUnlock()
		return gpucore.InvalidID, fmt.Errorf("%w: bind group layout %d", ErrUnknownResource, desc.Layout)
	}
	entries := make([]wgpu.BindGroupEntry, 0, len(desc.Entries))
	for _, e := range desc.Entries {
		entry := wgpu.BindGroupEntry{Binding: e.Binding}
		switch {
		case e.Texture != gpucore.InvalidID:
			t, ok := a.textures[uint64(e.Texture)]
			if !ok {
				a.mu.RUnlock()
				return gpucore.InvalidID, fmt.Errorf("%w: texture %d", ErrUnknownResource, e.Texture)
			}
			entry.TextureView = t.view
		case e.Buffer != gpucore.InvalidID:
			b, ok := a.buffers[uint64(e.Buffer)]
			if !ok {
				a.mu.RUnlock()
				return gpucore.InvalidID, fmt.Errorf("%w: buffer %d", ErrUnknownResource, e.Buffer)
			}
			entry.Buffer, entry.Offset, entry.Size = b, e.Offset, e.Size
		}
		entries = append(entries, entry)
	}
	a.mu.RUnlock()

	bg, err := a.device.CreateBindGroup(&wgpu.BindGroupDescriptor{Label: desc.Label, Layout: layout, Entries: entries})
	if err != nil {
		return gpucore.InvalidID, fmt.Errorf("native: bind group %q: %w", desc.Label, err)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		bg.Release()
		return gpucore.InvalidID, ErrClosed
	}
	return gpucore.BindGroupID(store(a, a.bindGroups, bg)), nil
}

// DestroyBindGroup implements gpucore.GPUAdapter.
func (a *Adapter) DestroyBindGroup(id gpucore.BindGroupID) {
	if bg, ok := take(a, a.bindGroups, uint64(id)); ok {
		bg.Release()
	}
}

// WaitIdle implements gpucore.GPUAdapter.
func (a *Adapter) WaitIdle() error {
	if err := a.checkOpen(); err != nil {
		return err
	}
	a.exec.Lock()
	defer a.exec.Unlock()
	return a.drainLocked()
}

// Close implements gpucore.GPUAdapter. It releases every resource still
// registered and, when the adapter owns it, the device.
func (a *Adapter) Close() {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return
	}
	a.closed = true
	a.mu.Unlock()

	a.exec.Lock()
	defer a.exec.Unlock()

	if err := a.drainLocked(); err != nil {
		logging.Logger().Warn("native: wait idle on close", "err", err)
	}

	a.mu.Lock()
	for _, bg := range a.bindGroups {
		bg.Release()
	}
	for _, p := range a.pipelines {
		p.Release()
	}
	for _, pl := range a.pipelineLayouts {
		pl.Release()
	}
	for _, l := range a.bindGroupLayouts {
		l.Release()
	}
	for _, t := range a.textures {
		t.view.Release()
		t.tex.Release()
	}
	for _, b := range a.buffers {
		b.Release()
	}
	for _, m := range a.shaders {
		m.Release()
	}
	clear(a.bindGroups)
	clear(a.pipelines)
	clear(a.pipelineLayouts)
	clear(a.bindGroupLayouts)
	clear(a.textures)
	clear(a.buffers)
	clear(a.shaders)
	a.mu.Unlock()

	if a.owned {
		a.device.Release()
		a.adapter.Release()
		a.instance.Release()
	}
}

var _ gpucore.GPUAdapter = (*Adapter)(nil)
