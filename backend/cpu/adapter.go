// Package cpu implements gpucore.GPUAdapter on the CPU.
//
// Shader modules are WGSL validated with naga; each compute entry point
// is backed by a Go [Kernel] registered under the entry point's name.
// Dispatches run the kernel for every invocation, spreading workgroups
// across a worker pool. The adapter is the fallback when no GPU adapter
// is available and the reference the GPU output is compared against.
package cpu

import (
	"errors"
	"fmt"
	"maps"
	"sync"

	"github.com/gogpu/smoothlife/gpucore"
	"github.com/gogpu/smoothlife/internal/assets"
	"github.com/gogpu/smoothlife/internal/logging"
	"github.com/gogpu/smoothlife/internal/parallel"
)

// Errors returned by the CPU adapter.
var (
	ErrClosed          = errors.New("cpu: adapter closed")
	ErrUnknownResource = errors.New("cpu: unknown resource")
	ErrNoWGSL          = errors.New("cpu: shader module requires WGSL source")
	ErrNoEntryPoint    = errors.New("cpu: entry point not found in shader")
	ErrNoKernel        = errors.New("cpu: no kernel registered for entry point")
	ErrBindingMismatch = errors.New("cpu: bind group does not match layout")
	ErrDataSize        = errors.New("cpu: data size mismatch")
)

// Option configures an Adapter.
type Option func(*Adapter)

// WithWorkers sets the number of worker goroutines used for dispatches.
// Zero or negative means GOMAXPROCS.
func WithWorkers(n int) Option {
	return func(a *Adapter) { a.workers = n }
}

// WithKernel registers k for the entry point name.
func WithKernel(name string, k Kernel) Option {
	return func(a *Adapter) { a.kernels[name] = k }
}

type shaderModule struct {
	label       string
	entryPoints []assets.EntryPoint
}

type pipeline struct {
	label     string
	entry     string
	kernel    Kernel
	workgroup [3]uint32
	layout    gpucore.PipelineLayoutID
}

type buffer struct {
	data  []byte
	usage gpucore.BufferUsage
}

type bindGroup struct {
	layout   gpucore.BindGroupLayoutID
	textures map[uint32]*Texture
	buffers  map[uint32][]byte
}

// Stats counts executed work, for tests and diagnostics.
type Stats struct {
	Submits    int
	Copies     int
	Dispatches map[string]int // by entry point
	Workgroups map[string]int // by entry point
}

// Adapter is a gpucore.GPUAdapter that executes on the CPU.
type Adapter struct {
	workers int
	pool    *parallel.WorkerPool

	mu               sync.RWMutex
	nextID           uint64
	closed           bool
	kernels          map[string]Kernel
	shaders          map[gpucore.ShaderModuleID]*shaderModule
	textures         map[gpucore.TextureID]*Texture
	buffers          map[gpucore.BufferID]*buffer
	bindGroupLayouts map[gpucore.BindGroupLayoutID]*gpucore.BindGroupLayoutDesc
	pipelineLayouts  map[gpucore.PipelineLayoutID][]gpucore.BindGroupLayoutID
	pipelines        map[gpucore.ComputePipelineID]*pipeline
	bindGroups       map[gpucore.BindGroupID]*bindGroup

	// exec serializes submissions.
	exec  sync.Mutex
	stats Stats
}

// New creates a CPU adapter.
func New(opts ...Option) *Adapter {
	a := &Adapter{
		kernels:          make(map[string]Kernel),
		shaders:          make(map[gpucore.ShaderModuleID]*shaderModule),
		textures:         make(map[gpucore.TextureID]*Texture),
		buffers:          make(map[gpucore.BufferID]*buffer),
		bindGroupLayouts: make(map[gpucore.BindGroupLayoutID]*gpucore.BindGroupLayoutDesc),
		pipelineLayouts:  make(map[gpucore.PipelineLayoutID][]gpucore.BindGroupLayoutID),
		pipelines:        make(map[gpucore.ComputePipelineID]*pipeline),
		bindGroups:       make(map[gpucore.BindGroupID]*bindGroup),
		stats: Stats{
			Dispatches: make(map[string]int),
			Workgroups: make(map[string]int),
		},
	}
	for _, opt := range opts {
		opt(a)
	}
	a.pool = parallel.NewWorkerPool(a.workers)
	logging.Logger().Debug("cpu: adapter created", "workers", a.pool.Workers())
	return a
}

// Register binds a kernel to a compute entry point name. Pipelines created
// afterwards for that entry point use k.
func (a *Adapter) Register(name string, k Kernel) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.kernels[name] = k
}

// Name implements gpucore.GPUAdapter.
func (a *Adapter) Name() string {
	return fmt.Sprintf("cpu (%d workers)", a.pool.Workers())
}

// SupportsCompute implements gpucore.GPUAdapter.
func (a *Adapter) SupportsCompute() bool { return true }

// Capabilities implements gpucore.GPUAdapter.
func (a *Adapter) Capabilities() gpucore.AdapterCapabilities {
	return gpucore.DefaultCapabilities()
}

// Stats returns a copy of the execution counters.
func (a *Adapter) Stats() Stats {
	a.exec.Lock()
	defer a.exec.Unlock()

	s := a.stats
	s.Dispatches = maps.Clone(a.stats.Dispatches)
	s.Workgroups = maps.Clone(a.stats.Workgroups)
	return s
}

// allocID returns the next resource id. The caller must hold a.mu.
func (a *Adapter) allocID() uint64 {
	a.nextID++
	return a.nextID
}

// === Shader Compilation ===

// CreateShaderModule implements gpucore.GPUAdapter.
func (a *Adapter) CreateShaderModule(src gpucore.ShaderSource, label string) (gpucore.ShaderModuleID, error) {
	if src.WGSL == "" {
		return gpucore.InvalidID, ErrNoWGSL
	}
	eps, err := assets.Reflect(src.WGSL)
	if err != nil {
		return gpucore.InvalidID, fmt.Errorf("cpu: shader %q: %w", label, err)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return gpucore.InvalidID, ErrClosed
	}
	id := gpucore.ShaderModuleID(a.allocID())
	a.shaders[id] = &shaderModule{label: label, entryPoints: eps}
	return id, nil
}

// DestroyShaderModule implements gpucore.GPUAdapter.
func (a *Adapter) DestroyShaderModule(id gpucore.ShaderModuleID) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.shaders, id)
}

// === Buffer Management ===

// CreateBuffer implements gpucore.GPUAdapter.
func (a *Adapter) CreateBuffer(size uint64, usage gpucore.BufferUsage, _ string) (gpucore.BufferID, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return gpucore.InvalidID, ErrClosed
	}
	id := gpucore.BufferID(a.allocID())
	a.buffers[id] = &buffer{data: make([]byte, size), usage: usage}
	return id, nil
}

// DestroyBuffer implements gpucore.GPUAdapter.
func (a *Adapter) DestroyBuffer(id gpucore.BufferID) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.buffers, id)
}

// WriteBuffer implements gpucore.GPUAdapter.
func (a *Adapter) WriteBuffer(id gpucore.BufferID, offset uint64, data []byte) error {
	a.mu.RLock()
	b, ok := a.buffers[id]
	a.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: buffer %d", ErrUnknownResource, id)
	}
	if offset+uint64(len(data)) > uint64(len(b.data)) {
		return fmt.Errorf("%w: write %d bytes at %d into %d", ErrDataSize, len(data), offset, len(b.data))
	}

	a.exec.Lock()
	copy(b.data[offset:], data)
	a.exec.Unlock()
	return nil
}

// === Texture Management ===

// CreateTexture implements gpucore.GPUAdapter.
func (a *Adapter) CreateTexture(desc *gpucore.TextureDesc) (gpucore.TextureID, error) {
	if desc.Format != gpucore.TextureFormatRGBA8Unorm {
		return gpucore.InvalidID, fmt.Errorf("cpu: unsupported texture format %v", desc.Format)
	}
	if desc.Width == 0 || desc.Height == 0 {
		return gpucore.InvalidID, fmt.Errorf("cpu: texture %q has zero size", desc.Label)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return gpucore.InvalidID, ErrClosed
	}
	id := gpucore.TextureID(a.allocID())
	a.textures[id] = newTexture(desc)
	return id, nil
}

// DestroyTexture implements gpucore.GPUAdapter.
func (a *Adapter) DestroyTexture(id gpucore.TextureID) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.textures, id)
}

func (a *Adapter) texture(id gpucore.TextureID) (*Texture, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	t, ok := a.textures[id]
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
	if len(data) != len(t.pix) {
		return fmt.Errorf("%w: texture %d wants %d bytes, got %d", ErrDataSize, id, len(t.pix), len(data))
	}

	a.exec.Lock()
	copy(t.pix, data)
	a.exec.Unlock()
	return nil
}

// ReadTexture implements gpucore.GPUAdapter.
func (a *Adapter) ReadTexture(id gpucore.TextureID) ([]byte, error) {
	t, err := a.texture(id)
	if err != nil {
		return nil, err
	}

	a.exec.Lock()
	defer a.exec.Unlock()
	return append([]byte(nil), t.pix...), nil
}

// === Pipeline Management ===

// CreateBindGroupLayout implements gpucore.GPUAdapter.
func (a *Adapter) CreateBindGroupLayout(desc *gpucore.BindGroupLayoutDesc) (gpucore.BindGroupLayoutID, error) {
	seen := make(map[uint32]bool, len(desc.Entries))
	for _, e := range desc.Entries {
		if seen[e.Binding] {
			return gpucore.InvalidID, fmt.Errorf("cpu: layout %q: duplicate binding %d", desc.Label, e.Binding)
		}
		seen[e.Binding] = true
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return gpucore.InvalidID, ErrClosed
	}
	id := gpucore.BindGroupLayoutID(a.allocID())
	cp := *desc
	cp.Entries = append([]gpucore.BindGroupLayoutEntry(nil), desc.Entries...)
	a.bindGroupLayouts[id] = &cp
	return id, nil
}

// DestroyBindGroupLayout implements gpucore.GPUAdapter.
func (a *Adapter) DestroyBindGroupLayout(id gpucore.BindGroupLayoutID) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.bindGroupLayouts, id)
}

// CreatePipelineLayout implements gpucore.GPUAdapter.
func (a *Adapter) CreatePipelineLayout(layouts []gpucore.BindGroupLayoutID, _ string) (gpucore.PipelineLayoutID, error) {
	if len(layouts) > gpucore.MaxBindGroups {
		return gpucore.InvalidID, fmt.Errorf("cpu: %d bind group layouts exceed %d", len(layouts), gpucore.MaxBindGroups)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return gpucore.InvalidID, ErrClosed
	}
	for _, l := range layouts {
		if _, ok := a.bindGroupLayouts[l]; !ok {
			return gpucore.InvalidID, fmt.Errorf("%w: bind group layout %d", ErrUnknownResource, l)
		}
	}
	id := gpucore.PipelineLayoutID(a.allocID())
	a.pipelineLayouts[id] = append([]gpucore.BindGroupLayoutID(nil), layouts...)
	return id, nil
}

// DestroyPipelineLayout implements gpucore.GPUAdapter.
func (a *Adapter) DestroyPipelineLayout(id gpucore.PipelineLayoutID) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.pipelineLayouts, id)
}

// CreateComputePipeline implements gpucore.GPUAdapter.
func (a *Adapter) CreateComputePipeline(desc *gpucore.ComputePipelineDesc) (gpucore.ComputePipelineID, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return gpucore.InvalidID, ErrClosed
	}

	sm, ok := a.shaders[desc.ShaderModule]
	if !ok {
		return gpucore.InvalidID, fmt.Errorf("%w: shader module %d", ErrUnknownResource, desc.ShaderModule)
	}
	if _, ok := a.pipelineLayouts[desc.Layout]; !ok {
		return gpucore.InvalidID, fmt.Errorf("%w: pipeline layout %d", ErrUnknownResource, desc.Layout)
	}

	var ep *assets.EntryPoint
	for i := range sm.entryPoints {
		if sm.entryPoints[i].Name == desc.EntryPoint {
			ep = &sm.entryPoints[i]
			break
		}
	}
	if ep == nil {
		return gpucore.InvalidID, fmt.Errorf("%w: %q in %q", ErrNoEntryPoint, desc.EntryPoint, sm.label)
	}
	k, ok := a.kernels[desc.EntryPoint]
	if !ok {
		return gpucore.InvalidID, fmt.Errorf("%w: %q", ErrNoKernel, desc.EntryPoint)
	}

	wg := ep.Workgroup
	for i := range wg {
		if wg[i] == 0 {
			wg[i] = 1
		}
	}

	id := gpucore.ComputePipelineID(a.allocID())
	a.pipelines[id] = &pipeline{label: desc.Label, entry: desc.EntryPoint, kernel: k, workgroup: wg, layout: desc.Layout}
	return id, nil
}

// DestroyComputePipeline implements gpucore.GPUAdapter.
func (a *Adapter) DestroyComputePipeline(id gpucore.ComputePipelineID) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.pipelines, id)
}

// CreateBindGroup implements gpucore.GPUAdapter.
func (a *Adapter) CreateBindGroup(desc *gpucore.BindGroupDesc) (gpucore.BindGroupID, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return gpucore.InvalidID, ErrClosed
	}

	layout, ok := a.bindGroupLayouts[desc.Layout]
	if !ok {
		return gpucore.InvalidID, fmt.Errorf("%w: bind group layout %d", ErrUnknownResource, desc.Layout)
	}
	if len(desc.Entries) != len(layout.Entries) {
		return gpucore.InvalidID, fmt.Errorf("%w: %q has %d entries, layout %q has %d",
			ErrBindingMismatch, desc.Label, len(desc.Entries), layout.Label, len(layout.Entries))
	}

	bg := &bindGroup{
		layout:   desc.Layout,
		textures: make(map[uint32]*Texture),
		buffers:  make(map[uint32][]byte),
	}
	for _, e := range desc.Entries {
		le, ok := layoutEntry(layout, e.Binding)
		if !ok {
			return gpucore.InvalidID, fmt.Errorf("%w: binding %d not in layout", ErrBindingMismatch, e.Binding)
		}
		if err := a.bindLocked(bg, le, e); err != nil {
			return gpucore.InvalidID, fmt.Errorf("cpu: bind group %q: %w", desc.Label, err)
		}
	}

	id := gpucore.BindGroupID(a.allocID())
	a.bindGroups[id] = bg
	return id, nil
}

func layoutEntry(l *gpucore.BindGroupLayoutDesc, binding uint32) (gpucore.BindGroupLayoutEntry, bool) {
	for _, le := range l.Entries {
		if le.Binding == binding {
			return le, true
		}
	}
	return gpucore.BindGroupLayoutEntry{}, false
}

// bindLocked resolves one entry into bg. The caller must hold a.mu.
func (a *Adapter) bindLocked(bg *bindGroup, le gpucore.BindGroupLayoutEntry, e gpucore.BindGroupEntry) error {
	switch le.Type {
	case gpucore.BindingTypeSampledTexture, gpucore.BindingTypeStorageTexture:
		t, ok := a.textures[e.Texture]
		if !ok {
			return fmt.Errorf("%w: texture %d at binding %d", ErrUnknownResource, e.Texture, e.Binding)
		}
		need := gpucore.TextureUsageTextureBinding
		if le.Type == gpucore.BindingTypeStorageTexture {
			need = gpucore.TextureUsageStorageBinding
		}
		if t.usage&need == 0 {
			return fmt.Errorf("%w: texture %d at binding %d lacks usage %d", ErrBindingMismatch, e.Texture, e.Binding, need)
		}
		bg.textures[e.Binding] = t

	case gpucore.BindingTypeUniformBuffer, gpucore.BindingTypeStorageBuffer, gpucore.BindingTypeReadOnlyStorageBuffer:
		b, ok := a.buffers[e.Buffer]
		if !ok {
			return fmt.Errorf("%w: buffer %d at binding %d", ErrUnknownResource, e.Buffer, e.Binding)
		}
		need := gpucore.BufferUsageStorage
		if le.Type == gpucore.BindingTypeUniformBuffer {
			need = gpucore.BufferUsageUniform
		}
		if b.usage&need == 0 {
			return fmt.Errorf("%w: buffer %d at binding %d lacks usage %d", ErrBindingMismatch, e.Buffer, e.Binding, need)
		}
		end := uint64(len(b.data))
		if e.Size != 0 {
			end = e.Offset + e.Size
		}
		if e.Offset > end || end > uint64(len(b.data)) {
			return fmt.Errorf("%w: buffer range [%d, %d) of %d", ErrDataSize, e.Offset, end, len(b.data))
		}
		if le.MinBindingSize != 0 && end-e.Offset < le.MinBindingSize {
			return fmt.Errorf("%w: binding %d is %d bytes, layout needs %d", ErrDataSize, e.Binding, end-e.Offset, le.MinBindingSize)
		}
		bg.buffers[e.Binding] = b.data[e.Offset:end:end]

	default:
		return fmt.Errorf("%w: unsupported binding type %d", ErrBindingMismatch, le.Type)
	}
	return nil
}

// DestroyBindGroup implements gpucore.GPUAdapter.
func (a *Adapter) DestroyBindGroup(id gpucore.BindGroupID) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.bindGroups, id)
}

// === Command Execution ===

// Submit implements gpucore.GPUAdapter. Commands run synchronously in
// recording order.
func (a *Adapter) Submit(enc *gpucore.CommandEncoder) error {
	cmds, err := enc.Commands()
	if err != nil {
		return err
	}

	a.exec.Lock()
	defer a.exec.Unlock()

	for _, c := range cmds {
		switch {
		case c.Pass != nil:
			for _, d := range c.Pass.Dispatches {
				if err := a.dispatch(d); err != nil {
					return fmt.Errorf("cpu: pass %q: %w", c.Pass.Label, err)
				}
			}
		case c.Copy != nil:
			if err := a.copyTexture(c.Copy); err != nil {
				return err
			}
		}
	}
	a.stats.Submits++
	return nil
}

// dispatch runs one dispatch. The caller must hold a.exec.
func (a *Adapter) dispatch(d gpucore.DispatchCommand) error {
	a.mu.RLock()
	p, ok := a.pipelines[d.Pipeline]
	if !ok {
		a.mu.RUnlock()
		return fmt.Errorf("%w: compute pipeline %d", ErrUnknownResource, d.Pipeline)
	}
	layouts := a.pipelineLayouts[p.layout]
	var b Bindings
	for i, id := range d.BindGroups {
		if i >= len(layouts) {
			break
		}
		bg, ok := a.bindGroups[id]
		if !ok {
			a.mu.RUnlock()
			return fmt.Errorf("%w: bind group %d at index %d", ErrUnknownResource, id, i)
		}
		if bg.layout != layouts[i] {
			a.mu.RUnlock()
			return fmt.Errorf("%w: bind group %d at index %d", ErrBindingMismatch, id, i)
		}
		b.groups[i] = bg
	}
	a.mu.RUnlock()

	wg := p.workgroup
	count := int(d.X) * int(d.Y) * int(d.Z)
	a.pool.ForEach(count, func(i int) {
		gx := uint32(i) % d.X
		gy := (uint32(i) / d.X) % d.Y
		gz := uint32(i) / (d.X * d.Y)
		for lz := range wg[2] {
			for ly := range wg[1] {
				for lx := range wg[0] {
					p.kernel(&b, [3]uint32{gx*wg[0] + lx, gy*wg[1] + ly, gz*wg[2] + lz})
				}
			}
		}
	})

	a.stats.Dispatches[p.entry]++
	a.stats.Workgroups[p.entry] += count
	return nil
}

// copyTexture performs a texture copy. The caller must hold a.exec.
func (a *Adapter) copyTexture(c *gpucore.TextureCopy) error {
	src, err := a.texture(c.Src)
	if err != nil {
		return err
	}
	dst, err := a.texture(c.Dst)
	if err != nil {
		return err
	}
	w, h := int(c.Width), int(c.Height)
	if w > src.width || w > dst.width || h > src.height || h > dst.height {
		return fmt.Errorf("%w: %dx%d exceeds %dx%d -> %dx%d",
			gpucore.ErrInvalidCopy, w, h, src.width, src.height, dst.width, dst.height)
	}
	if src.usage&gpucore.TextureUsageCopySrc == 0 || dst.usage&gpucore.TextureUsageCopyDst == 0 {
		return fmt.Errorf("%w: missing copy usage on %d -> %d", gpucore.ErrInvalidCopy, c.Src, c.Dst)
	}

	for y := range h {
		s := src.pix[y*src.width*4 : (y*src.width+w)*4]
		copy(dst.pix[y*dst.width*4:], s)
	}
	a.stats.Copies++
	return nil
}

// WaitIdle implements gpucore.GPUAdapter. Submissions are synchronous,
// so it only waits for a concurrent Submit to return.
func (a *Adapter) WaitIdle() error {
	a.exec.Lock()
	defer a.exec.Unlock()
	return nil
}

// Close implements gpucore.GPUAdapter.
func (a *Adapter) Close() {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return
	}
	a.closed = true
	clear(a.shaders)
	clear(a.textures)
	clear(a.buffers)
	clear(a.bindGroupLayouts)
	clear(a.pipelineLayouts)
	clear(a.pipelines)
	clear(a.bindGroups)
	a.mu.Unlock()

	a.pool.Close()
}

var _ gpucore.GPUAdapter = (*Adapter)(nil)
