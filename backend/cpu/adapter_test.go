package cpu

import (
	"encoding/binary"
	"errors"
	"math"
	"testing"

	"github.com/gogpu/smoothlife/gpucore"
)

const fillShader = `
struct Params {
    value: f32,
    width: u32,
    height: u32,
    _pad: u32,
}

@group(0) @binding(0) var src: texture_2d<f32>;
@group(0) @binding(1) var dst: texture_storage_2d<rgba8unorm, write>;
@group(0) @binding(2) var<uniform> params: Params;

@compute @workgroup_size(8, 8, 1)
fn fill(@builtin(global_invocation_id) id: vec3<u32>) {
    if (id.x >= params.width || id.y >= params.height) {
        return;
    }
    let c = textureLoad(src, vec2<i32>(id.xy), 0);
    textureStore(dst, vec2<i32>(id.xy), vec4<f32>(c.r + params.value, 0.0, 0.0, 1.0));
}
`

// fillKernel mirrors fillShader.
func fillKernel(b *Bindings, id [3]uint32) {
	p := b.Buffer(0, 2)
	value := math.Float32frombits(binary.LittleEndian.Uint32(p[0:]))
	w := binary.LittleEndian.Uint32(p[4:])
	h := binary.LittleEndian.Uint32(p[8:])
	if id[0] >= w || id[1] >= h {
		return
	}
	c := b.Texture(0, 0).Load(int(id[0]), int(id[1]))
	b.Texture(0, 1).Store(int(id[0]), int(id[1]), [4]float32{c[0] + value, 0, 0, 1})
}

type fixture struct {
	a        *Adapter
	src, dst gpucore.TextureID
	params   gpucore.BufferID
	pipeline gpucore.ComputePipelineID
	group    gpucore.BindGroupID
}

func newFixture(t *testing.T, w, h uint32) *fixture {
	t.Helper()

	a := New(WithWorkers(3), WithKernel("fill", fillKernel))
	t.Cleanup(a.Close)

	f := &fixture{a: a}
	var err error

	f.src, err = a.CreateTexture(&gpucore.TextureDesc{Label: "src", Width: w, Height: h,
		Format: gpucore.TextureFormatRGBA8Unorm, Usage: gpucore.TextureUsageTextureBinding | gpucore.TextureUsageCopyDst})
	if err != nil {
		t.Fatalf("CreateTexture(src) error = %v", err)
	}
	f.dst, err = a.CreateTexture(&gpucore.TextureDesc{Label: "dst", Width: w, Height: h,
		Format: gpucore.TextureFormatRGBA8Unorm, Usage: gpucore.TextureUsageStorageBinding | gpucore.TextureUsageCopySrc})
	if err != nil {
		t.Fatalf("CreateTexture(dst) error = %v", err)
	}
	f.params, err = a.CreateBuffer(16, gpucore.BufferUsageUniform|gpucore.BufferUsageCopyDst, "params")
	if err != nil {
		t.Fatalf("CreateBuffer() error = %v", err)
	}

	var p [16]byte
	binary.LittleEndian.PutUint32(p[0:], math.Float32bits(0.25))
	binary.LittleEndian.PutUint32(p[4:], w)
	binary.LittleEndian.PutUint32(p[8:], h)
	if err := a.WriteBuffer(f.params, 0, p[:]); err != nil {
		t.Fatalf("WriteBuffer() error = %v", err)
	}

	sm, err := a.CreateShaderModule(gpucore.ShaderSource{WGSL: fillShader}, "fill")
	if err != nil {
		t.Fatalf("CreateShaderModule() error = %v", err)
	}
	bgl, err := a.CreateBindGroupLayout(&gpucore.BindGroupLayoutDesc{
		Label: "fill layout",
		Entries: []gpucore.BindGroupLayoutEntry{
			{Binding: 0, Type: gpucore.BindingTypeSampledTexture},
			{Binding: 1, Type: gpucore.BindingTypeStorageTexture,
				StorageAccess: gpucore.StorageTextureAccessWriteOnly, StorageFormat: gpucore.TextureFormatRGBA8Unorm},
			{Binding: 2, Type: gpucore.BindingTypeUniformBuffer, MinBindingSize: 16},
		},
	})
	if err != nil {
		t.Fatalf("CreateBindGroupLayout() error = %v", err)
	}
	pl, err := a.CreatePipelineLayout([]gpucore.BindGroupLayoutID{bgl}, "fill")
	if err != nil {
		t.Fatalf("CreatePipelineLayout() error = %v", err)
	}
	f.pipeline, err = a.CreateComputePipeline(&gpucore.ComputePipelineDesc{
		Label: "fill", Layout: pl, ShaderModule: sm, EntryPoint: "fill",
	})
	if err != nil {
		t.Fatalf("CreateComputePipeline() error = %v", err)
	}
	f.group, err = a.CreateBindGroup(&gpucore.BindGroupDesc{
		Label:  "fill group",
		Layout: bgl,
		Entries: []gpucore.BindGroupEntry{
			{Binding: 0, Texture: f.src},
			{Binding: 1, Texture: f.dst},
			{Binding: 2, Buffer: f.params},
		},
	})
	if err != nil {
		t.Fatalf("CreateBindGroup() error = %v", err)
	}
	return f
}

func (f *fixture) run(t *testing.T, w, h uint32) {
	t.Helper()
	enc := gpucore.NewCommandEncoder("test")
	pass, err := enc.BeginComputePass("fill")
	if err != nil {
		t.Fatal(err)
	}
	_ = pass.SetBindGroup(0, f.group)
	_ = pass.SetPipeline(f.pipeline)
	if err := pass.Dispatch(gpucore.WorkgroupCount(w, 8), gpucore.WorkgroupCount(h, 8), 1); err != nil {
		t.Fatal(err)
	}
	_ = pass.End()
	if err := enc.Finish(); err != nil {
		t.Fatal(err)
	}
	if err := f.a.Submit(enc); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
}

func TestAdapter_Dispatch(t *testing.T) {
	const w, h = 13, 9 // not multiples of the workgroup size
	f := newFixture(t, w, h)

	src := make([]byte, w*h*4)
	for i := 0; i < len(src); i += 4 {
		src[i] = 51 // 0.2
	}
	if err := f.a.WriteTexture(f.src, src); err != nil {
		t.Fatalf("WriteTexture() error = %v", err)
	}

	f.run(t, w, h)

	out, err := f.a.ReadTexture(f.dst)
	if err != nil {
		t.Fatalf("ReadTexture() error = %v", err)
	}
	for i := 0; i < len(out); i += 4 {
		if out[i] != 115 || out[i+3] != 255 { // round((0.2+0.25)*255)
			t.Fatalf("texel %d = %v, want [115 0 0 255]", i/4, out[i:i+4])
		}
	}

	s := f.a.Stats()
	if s.Submits != 1 || s.Dispatches["fill"] != 1 {
		t.Errorf("Stats() = %+v, want one submit and one fill dispatch", s)
	}
	if s.Workgroups["fill"] != 2*2 {
		t.Errorf("Workgroups = %d, want 4", s.Workgroups["fill"])
	}
}

func TestAdapter_CopyTexture(t *testing.T) {
	const w, h = 4, 3
	f := newFixture(t, w, h)

	f.run(t, w, h)

	// dst has CopySrc, src has CopyDst.
	enc := gpucore.NewCommandEncoder("copy")
	if err := enc.CopyTextureToTexture(f.dst, f.src, w, h); err != nil {
		t.Fatal(err)
	}
	_ = enc.Finish()
	if err := f.a.Submit(enc); err != nil {
		t.Fatalf("Submit(copy) error = %v", err)
	}

	got, _ := f.a.ReadTexture(f.src)
	want, _ := f.a.ReadTexture(f.dst)
	if string(got) != string(want) {
		t.Error("copy destination differs from source")
	}

	// The reverse direction lacks copy usages.
	enc = gpucore.NewCommandEncoder("bad copy")
	_ = enc.CopyTextureToTexture(f.src, f.dst, w, h)
	_ = enc.Finish()
	if err := f.a.Submit(enc); !errors.Is(err, gpucore.ErrInvalidCopy) {
		t.Errorf("Submit(bad copy) error = %v, want %v", err, gpucore.ErrInvalidCopy)
	}
}

func TestAdapter_PipelineErrors(t *testing.T) {
	a := New(WithWorkers(1))
	defer a.Close()

	if _, err := a.CreateShaderModule(gpucore.ShaderSource{SPIRV: []uint32{0x07230203}}, "spirv"); !errors.Is(err, ErrNoWGSL) {
		t.Errorf("CreateShaderModule(SPIR-V) error = %v, want %v", err, ErrNoWGSL)
	}
	if _, err := a.CreateShaderModule(gpucore.ShaderSource{WGSL: "fn ("}, "bad"); err == nil {
		t.Error("CreateShaderModule(invalid) should fail")
	}

	sm, err := a.CreateShaderModule(gpucore.ShaderSource{WGSL: fillShader}, "fill")
	if err != nil {
		t.Fatal(err)
	}
	bgl, _ := a.CreateBindGroupLayout(&gpucore.BindGroupLayoutDesc{})
	pl, _ := a.CreatePipelineLayout([]gpucore.BindGroupLayoutID{bgl}, "")

	_, err = a.CreateComputePipeline(&gpucore.ComputePipelineDesc{Layout: pl, ShaderModule: sm, EntryPoint: "fill"})
	if !errors.Is(err, ErrNoKernel) {
		t.Errorf("CreateComputePipeline(no kernel) error = %v, want %v", err, ErrNoKernel)
	}

	a.Register("fill", fillKernel)
	_, err = a.CreateComputePipeline(&gpucore.ComputePipelineDesc{Layout: pl, ShaderModule: sm, EntryPoint: "missing"})
	if !errors.Is(err, ErrNoEntryPoint) {
		t.Errorf("CreateComputePipeline(missing) error = %v, want %v", err, ErrNoEntryPoint)
	}
	if _, err := a.CreateComputePipeline(&gpucore.ComputePipelineDesc{Layout: pl, ShaderModule: sm, EntryPoint: "fill"}); err != nil {
		t.Errorf("CreateComputePipeline() error = %v", err)
	}
}

func TestAdapter_BindGroupValidation(t *testing.T) {
	a := New(WithWorkers(1))
	defer a.Close()

	sampledOnly, _ := a.CreateTexture(&gpucore.TextureDesc{Width: 2, Height: 2,
		Format: gpucore.TextureFormatRGBA8Unorm, Usage: gpucore.TextureUsageTextureBinding})
	bgl, _ := a.CreateBindGroupLayout(&gpucore.BindGroupLayoutDesc{Entries: []gpucore.BindGroupLayoutEntry{
		{Binding: 0, Type: gpucore.BindingTypeStorageTexture},
	}})

	_, err := a.CreateBindGroup(&gpucore.BindGroupDesc{Layout: bgl, Entries: []gpucore.BindGroupEntry{{Binding: 0, Texture: sampledOnly}}})
	if !errors.Is(err, ErrBindingMismatch) {
		t.Errorf("CreateBindGroup(wrong usage) error = %v, want %v", err, ErrBindingMismatch)
	}
	_, err = a.CreateBindGroup(&gpucore.BindGroupDesc{Layout: bgl})
	if !errors.Is(err, ErrBindingMismatch) {
		t.Errorf("CreateBindGroup(no entries) error = %v, want %v", err, ErrBindingMismatch)
	}
	_, err = a.CreateBindGroup(&gpucore.BindGroupDesc{Layout: bgl, Entries: []gpucore.BindGroupEntry{{Binding: 0, Texture: 999}}})
	if !errors.Is(err, ErrUnknownResource) {
		t.Errorf("CreateBindGroup(unknown texture) error = %v, want %v", err, ErrUnknownResource)
	}
}

func TestAdapter_WriteTextureSize(t *testing.T) {
	a := New(WithWorkers(1))
	defer a.Close()

	tex, _ := a.CreateTexture(&gpucore.TextureDesc{Width: 2, Height: 2, Format: gpucore.TextureFormatRGBA8Unorm})
	if err := a.WriteTexture(tex, make([]byte, 3)); !errors.Is(err, ErrDataSize) {
		t.Errorf("WriteTexture(short) error = %v, want %v", err, ErrDataSize)
	}
}

func TestAdapter_Closed(t *testing.T) {
	a := New(WithWorkers(1))
	a.Close()
	a.Close()

	if _, err := a.CreateTexture(&gpucore.TextureDesc{Width: 1, Height: 1, Format: gpucore.TextureFormatRGBA8Unorm}); !errors.Is(err, ErrClosed) {
		t.Errorf("CreateTexture() after Close error = %v, want %v", err, ErrClosed)
	}
}

func TestTexture_LoadStore(t *testing.T) {
	tex := newTexture(&gpucore.TextureDesc{Width: 2, Height: 2, Format: gpucore.TextureFormatRGBA8Unorm})

	tex.Store(1, 1, [4]float32{-1, 0.5, 2, float32(math.NaN())})
	got := tex.Load(1, 1)
	want := [4]float32{0, 128.0 / 255, 1, 0}
	if got != want {
		t.Errorf("Load() = %v, want %v", got, want)
	}

	tex.Store(5, 5, [4]float32{1, 1, 1, 1})
	if v := tex.Load(-1, 0); v != ([4]float32{}) {
		t.Errorf("out of bounds Load() = %v, want zero", v)
	}
}
