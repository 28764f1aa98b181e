package life

import (
	"fmt"

	"github.com/gogpu/smoothlife/gpucore"
	"github.com/gogpu/smoothlife/internal/assets"
	"github.com/gogpu/smoothlife/internal/logging"
	"github.com/gogpu/smoothlife/internal/render"
)

// Shader and graph names.
const (
	ShaderPath       = "shaders/smooth_life.wgsl"
	InitEntryPoint   = "init"
	UpdateEntryPoint = "update"

	NodeLabel      = "smooth_life"
	BindGroupLabel = "smooth life bind group"
	LayoutLabel    = "smooth life bind group layout"

	// WorkgroupSize is the edge of the shader's square workgroup.
	WorkgroupSize = 8
)

// Config configures a Pipeline.
type Config struct {
	Rules Rules
	// Seed seeds the Perlin noise of the initial state.
	Seed int64
}

// bindKey identifies the state texture a bind group was built for.
type bindKey struct {
	texture       gpucore.TextureID
	width, height uint32
}

// Pipeline is the render-world resource holding everything the node needs
// besides the state image: the bind group layout, both queued pipelines,
// and the scratch, seed and uniform resources.
type Pipeline struct {
	adapter gpucore.GPUAdapter
	cfg     Config

	Layout         gpucore.BindGroupLayoutID
	Shader         assets.Handle[assets.Shader]
	InitPipeline   render.CachedComputePipelineID
	UpdatePipeline render.CachedComputePipelineID

	scratch gpucore.TextureID
	seed    gpucore.TextureID
	params  gpucore.BufferID
	width   uint32
	height  uint32

	bound bindKey
	frame uint32
}

// NewPipeline creates the bind group layout and uniform buffer, starts
// loading the shader and queues the init and update pipelines.
func NewPipeline(w *render.World, server *assets.Server, cfg Config) (*Pipeline, error) {
	if err := cfg.Rules.Validate(); err != nil {
		return nil, err
	}
	a := w.Adapter

	layout, err := a.CreateBindGroupLayout(&gpucore.BindGroupLayoutDesc{
		Label: LayoutLabel,
		Entries: []gpucore.BindGroupLayoutEntry{
			{Binding: bindingState, Type: gpucore.BindingTypeSampledTexture},
			{
				Binding:       bindingScratch,
				Type:          gpucore.BindingTypeStorageTexture,
				StorageAccess: gpucore.StorageTextureAccessWriteOnly,
				StorageFormat: gpucore.TextureFormatRGBA8Unorm,
			},
			{Binding: bindingSeed, Type: gpucore.BindingTypeSampledTexture},
			{Binding: bindingParams, Type: gpucore.BindingTypeUniformBuffer, MinBindingSize: ParamsSize},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("life: %w", err)
	}

	params, err := a.CreateBuffer(ParamsSize, gpucore.BufferUsageUniform|gpucore.BufferUsageCopyDst, "smooth life params")
	if err != nil {
		a.DestroyBindGroupLayout(layout)
		return nil, fmt.Errorf("life: %w", err)
	}

	p := &Pipeline{adapter: a, cfg: cfg, Layout: layout, params: params}
	p.Shader = server.Load(ShaderPath)
	p.InitPipeline = w.Pipelines.QueueComputePipeline(render.ComputePipelineDescriptor{
		Label:      "smooth life init pipeline",
		Layouts:    []gpucore.BindGroupLayoutID{layout},
		Shader:     p.Shader,
		EntryPoint: InitEntryPoint,
	})
	p.UpdatePipeline = w.Pipelines.QueueComputePipeline(render.ComputePipelineDescriptor{
		Label:      "smooth life update pipeline",
		Layouts:    []gpucore.BindGroupLayoutID{layout},
		Shader:     p.Shader,
		EntryPoint: UpdateEntryPoint,
	})
	return p, nil
}

// Size returns the size the scratch and seed textures were built for.
func (p *Pipeline) Size() (width, height uint32) { return p.width, p.height }

// Frame returns how many update dispatches have been recorded.
func (p *Pipeline) Frame() uint32 { return p.frame }

// Scratch returns the scratch texture, or gpucore.InvalidID before the
// first bind group.
func (p *Pipeline) Scratch() gpucore.TextureID { return p.scratch }

// resize rebuilds the scratch and seed textures for a width x height state
// image.
func (p *Pipeline) resize(width, height uint32) error {
	p.destroyTextures()

	scratch, err := p.adapter.CreateTexture(&gpucore.TextureDesc{
		Label:  "smooth life scratch",
		Width:  width,
		Height: height,
		Format: gpucore.TextureFormatRGBA8Unorm,
		Usage:  gpucore.TextureUsageStorageBinding | gpucore.TextureUsageCopySrc,
	})
	if err != nil {
		return fmt.Errorf("life: scratch texture: %w", err)
	}
	seed, err := p.adapter.CreateTexture(&gpucore.TextureDesc{
		Label:  "smooth life seed",
		Width:  width,
		Height: height,
		Format: gpucore.TextureFormatRGBA8Unorm,
		Usage:  gpucore.TextureUsageTextureBinding | gpucore.TextureUsageCopyDst,
	})
	if err != nil {
		p.adapter.DestroyTexture(scratch)
		return fmt.Errorf("life: seed texture: %w", err)
	}
	if err := p.adapter.WriteTexture(seed, Seed(width, height, p.cfg.Seed, p.cfg.Rules.OuterRadius)); err != nil {
		p.adapter.DestroyTexture(seed)
		p.adapter.DestroyTexture(scratch)
		return fmt.Errorf("life: seed texture: %w", err)
	}

	p.scratch, p.seed = scratch, seed
	p.width, p.height = width, height
	p.bound = bindKey{}
	logging.Logger().Debug("life: scratch and seed textures created", "width", width, "height", height)
	return nil
}

func (p *Pipeline) destroyTextures() {
	if p.scratch != gpucore.InvalidID {
		p.adapter.DestroyTexture(p.scratch)
		p.scratch = gpucore.InvalidID
	}
	if p.seed != gpucore.InvalidID {
		p.adapter.DestroyTexture(p.seed)
		p.seed = gpucore.InvalidID
	}
}

// Destroy releases the pipeline's GPU resources. Cached pipelines belong
// to the pipeline cache.
func (p *Pipeline) Destroy() {
	p.destroyTextures()
	p.adapter.DestroyBuffer(p.params)
	p.adapter.DestroyBindGroupLayout(p.Layout)
}

// QueueBindGroup builds the bind group for the extracted state image and
// uploads this frame's uniforms. Without a prepared state image no bind
// group exists for the frame. The bind group is rebuilt only when the
// state texture or its size changes.
func QueueBindGroup(w *render.World, p *Pipeline, state *render.ExtractResource[StateImage]) error {
	log := logging.Logger()

	si, ok := state.Get()
	if !ok {
		log.Debug("life: no state image extracted")
		w.BindGroups.Remove(BindGroupLabel)
		return nil
	}
	img, ok := w.Images.Get(si.Handle)
	if !ok {
		log.Debug("life: state image not prepared", "image", si.Handle)
		w.BindGroups.Remove(BindGroupLabel)
		return nil
	}

	if img.Width != p.width || img.Height != p.height {
		w.BindGroups.Remove(BindGroupLabel)
		if err := p.resize(img.Width, img.Height); err != nil {
			return err
		}
	}

	key := bindKey{texture: img.Texture, width: img.Width, height: img.Height}
	if _, ok := w.BindGroups.Get(BindGroupLabel); !ok || key != p.bound {
		bg, err := w.Adapter.CreateBindGroup(&gpucore.BindGroupDesc{
			Label:  BindGroupLabel,
			Layout: p.Layout,
			Entries: []gpucore.BindGroupEntry{
				{Binding: bindingState, Texture: img.Texture},
				{Binding: bindingScratch, Texture: p.scratch},
				{Binding: bindingSeed, Texture: p.seed},
				{Binding: bindingParams, Buffer: p.params, Size: ParamsSize},
			},
		})
		if err != nil {
			return fmt.Errorf("life: %w", err)
		}
		w.BindGroups.Set(BindGroupLabel, bg)
		p.bound = key
		log.Debug("life: bind group created", "texture", img.Texture)
	}

	params := Params{Rules: p.cfg.Rules, Width: img.Width, Height: img.Height, Frame: p.frame}
	if err := w.Adapter.WriteBuffer(p.params, 0, params.Bytes()); err != nil {
		return fmt.Errorf("life: params: %w", err)
	}
	return nil
}
