package life

import (
	"context"
	"errors"
	"io/fs"
	"math"
	"os"
	"strings"
	"sync"
	"testing"
	"testing/fstest"
	"time"

	"github.com/gogpu/smoothlife/backend/cpu"
	"github.com/gogpu/smoothlife/gpucore"
	"github.com/gogpu/smoothlife/internal/assets"
	"github.com/gogpu/smoothlife/internal/parallel"
	"github.com/gogpu/smoothlife/internal/render"
)

type harness struct {
	pool     *parallel.WorkerPool
	adapter  *cpu.Adapter
	server   *assets.Server
	world    *render.World
	images   *assets.Assets[render.Image]
	state    *render.ExtractResource[StateImage]
	pipeline *Pipeline
	node     *Node
	graph    *render.Graph
	handle   assets.Handle[render.Image]
	width    uint32
	height   uint32
}

func testRules() Rules {
	r := DefaultRules()
	r.OuterRadius = 3
	return r
}

// newHarness wires a render world on the CPU backend the way the
// simulation does, with synchronous pipeline compilation.
func newHarness(t *testing.T, fsys fs.FS, width, height uint32, insertState bool) *harness {
	t.Helper()
	return buildHarness(t, fsys, width, height, insertState, true)
}

// newAsyncHarness is newHarness with pipelines compiled on the pool.
func newAsyncHarness(t *testing.T, fsys fs.FS, width, height uint32) *harness {
	t.Helper()
	return buildHarness(t, fsys, width, height, true, false)
}

func buildHarness(t *testing.T, fsys fs.FS, width, height uint32, insertState, synchronous bool) *harness {
	t.Helper()

	pool := parallel.NewWorkerPool(2)
	adapter := cpu.New(cpu.WithWorkers(2))
	for name, k := range Kernels() {
		adapter.Register(name, k)
	}
	server := assets.NewServer(fsys, pool)
	cache := render.NewPipelineCache(adapter, server, pool, synchronous)
	world := render.NewWorld(adapter, cache)

	h := &harness{
		pool:    pool,
		adapter: adapter,
		server:  server,
		world:   world,
		images:  assets.NewAssets[render.Image](),
		state:   render.NewExtractResource[StateImage](),
		graph:   render.NewGraph(),
		width:   width,
		height:  height,
	}
	world.AddExtractor(h.state)

	h.handle = h.images.Add(CreateImage(width, height))
	if insertState {
		h.state.Insert(StateImage{Handle: h.handle})
	}

	var err error
	h.pipeline, err = NewPipeline(world, server, Config{Rules: testRules(), Seed: 7})
	if err != nil {
		t.Fatalf("NewPipeline() error = %v", err)
	}
	h.node = NewNode(h.pipeline)
	if err := h.graph.AddNode(NodeLabel, h.node); err != nil {
		t.Fatal(err)
	}

	t.Cleanup(func() {
		h.pipeline.Destroy()
		world.Close()
		_ = server.Close()
		pool.Close()
		adapter.Close()
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.WaitIdle(ctx); err != nil {
		t.Fatalf("WaitIdle() error = %v", err)
	}
	return h
}

func shaderFS(t *testing.T) fs.FS {
	t.Helper()
	return os.DirFS("../../assets")
}

// frame runs one frame in the same phase order as the simulation.
func (h *harness) frame() error {
	h.server.Update()
	h.world.Extract()
	if err := h.world.Images.Prepare(h.images); err != nil {
		return err
	}
	h.world.Pipelines.Process()
	if err := QueueBindGroup(h.world, h.pipeline, h.state); err != nil {
		return err
	}
	if err := h.graph.Update(h.world); err != nil {
		return err
	}
	ctx := render.NewRenderContext(h.adapter, "frame")
	if err := h.graph.Run(ctx, h.world); err != nil {
		return err
	}
	return ctx.Finish()
}

// shaderSource returns the SmoothLife shader with every from replaced by to.
func shaderSource(t *testing.T, from, to string) fstest.MapFS {
	t.Helper()
	src, err := fs.ReadFile(shaderFS(t), ShaderPath)
	if err != nil {
		t.Fatal(err)
	}
	return fstest.MapFS{ShaderPath: {Data: []byte(strings.ReplaceAll(string(src), from, to))}}
}

// frameUntil runs frames until cond holds, failing the test after a while.
func (h *harness) frameUntil(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("condition not reached; state = %v", h.node.State())
		}
		h.mustFrame(t)
		time.Sleep(time.Millisecond)
	}
}

func (h *harness) mustFrame(t *testing.T) {
	t.Helper()
	if err := h.frame(); err != nil {
		t.Fatalf("frame() error = %v", err)
	}
}

func (h *harness) readState(t *testing.T) []byte {
	t.Helper()
	img, ok := h.world.Images.Get(h.handle)
	if !ok {
		t.Fatal("state image not prepared")
	}
	data, err := h.adapter.ReadTexture(img.Texture)
	if err != nil {
		t.Fatalf("ReadTexture() error = %v", err)
	}
	return data
}

func TestNode_Lifecycle(t *testing.T) {
	h := newHarness(t, shaderFS(t), 20, 12, true)

	if h.node.State() != Loading {
		t.Fatalf("initial state = %v, want Loading", h.node.State())
	}

	// Frame 1: pipelines compile, Loading -> Init, init pass runs.
	h.mustFrame(t)
	if h.node.State() != Init {
		t.Fatalf("state after frame 1 = %v, want Init", h.node.State())
	}
	if h.node.InitRuns() != 1 || h.node.UpdateRuns() != 0 {
		t.Errorf("runs after frame 1 = init %d, update %d", h.node.InitRuns(), h.node.UpdateRuns())
	}

	// Frame 2: Init -> Update, first update pass.
	h.mustFrame(t)
	if h.node.State() != Update {
		t.Fatalf("state after frame 2 = %v, want Update", h.node.State())
	}
	h.mustFrame(t)
	h.mustFrame(t)

	if h.node.InitRuns() != 1 {
		t.Errorf("InitRuns() = %d, want 1", h.node.InitRuns())
	}
	if h.node.UpdateRuns() != 3 {
		t.Errorf("UpdateRuns() = %d, want 3", h.node.UpdateRuns())
	}
	if h.pipeline.Frame() != 3 {
		t.Errorf("Frame() = %d, want 3", h.pipeline.Frame())
	}

	stats := h.adapter.Stats()
	wantGroups := 3 * 2 // ceil(20/8) x ceil(12/8)
	if stats.Workgroups[InitEntryPoint] != wantGroups {
		t.Errorf("init workgroups = %d, want %d", stats.Workgroups[InitEntryPoint], wantGroups)
	}
	if stats.Dispatches[UpdateEntryPoint] != 3 {
		t.Errorf("update dispatches = %d, want 3", stats.Dispatches[UpdateEntryPoint])
	}
	if stats.Copies != 4 {
		t.Errorf("copies = %d, want 4", stats.Copies)
	}
}

func TestNode_InitWritesSeed(t *testing.T) {
	h := newHarness(t, shaderFS(t), 24, 16, true)
	h.mustFrame(t)

	got := h.readState(t)
	want := Seed(24, 16, 7, testRules().OuterRadius)
	if string(got) != string(want) {
		t.Error("state after init does not equal the seed")
	}
}

func TestNode_UpdateMatchesStep(t *testing.T) {
	const w, hgt = 24, 16
	h := newHarness(t, shaderFS(t), w, hgt, true)
	h.mustFrame(t) // init
	seeded := h.readState(t)
	h.mustFrame(t) // first update
	got := h.readState(t)

	field := make([]float32, w*hgt)
	for i := range field {
		field[i] = float32(seeded[i*4]) / 255
	}
	want := Step(testRules(), w, hgt, field)

	for i, v := range want {
		exp := math.Round(float64(v) * 255)
		if d := math.Abs(float64(got[i*4]) - exp); d > 1 {
			t.Fatalf("cell %d = %d, want %v", i, got[i*4], exp)
		}
	}
}

func TestNode_LoadingDispatchesNothing(t *testing.T) {
	h := newHarness(t, fstest.MapFS{}, 16, 16, true)

	for range 3 {
		h.mustFrame(t)
	}
	if h.node.State() != Loading {
		t.Errorf("state = %v, want Loading", h.node.State())
	}
	if st := h.world.Pipelines.GetComputePipelineState(h.pipeline.InitPipeline); st.State != render.PipelineErr {
		t.Errorf("init pipeline state = %v, want Err", st.State)
	}
	if s := h.adapter.Stats(); s.Submits != 0 {
		t.Errorf("Submits = %d, want 0", s.Submits)
	}
}

func TestNode_InitRepeatsUntilUpdateReady(t *testing.T) {
	h := newHarness(t, shaderSource(t, "fn update(", "fn advance("), 16, 16, true)

	for i := 1; i <= 4; i++ {
		h.mustFrame(t)
		if h.node.State() != Init {
			t.Fatalf("state after frame %d = %v, want Init", i, h.node.State())
		}
		if h.node.InitRuns() != i {
			t.Errorf("InitRuns() after frame %d = %d, want %d", i, h.node.InitRuns(), i)
		}
	}
	if h.node.UpdateRuns() != 0 {
		t.Errorf("UpdateRuns() = %d, want 0", h.node.UpdateRuns())
	}

	st := h.world.Pipelines.GetComputePipelineState(h.pipeline.UpdatePipeline)
	if st.State != render.PipelineErr || !errors.Is(st.Err, render.ErrEntryPointNotFound) {
		t.Errorf("update pipeline = %v (%v), want Err with ErrEntryPointNotFound", st.State, st.Err)
	}
	stats := h.adapter.Stats()
	if stats.Dispatches[InitEntryPoint] != 4 || stats.Dispatches[UpdateEntryPoint] != 0 {
		t.Errorf("dispatches = %v, want 4 init and no update", stats.Dispatches)
	}
}

func TestNode_UpdateSkipsWhileRecompiling(t *testing.T) {
	h := newAsyncHarness(t, shaderFS(t), 16, 16)
	h.frameUntil(t, func() bool { return h.node.State() == Update && h.node.UpdateRuns() > 0 })

	// Reload the shader, then occupy every worker so the recompile stays queued.
	if !h.server.Reload(ShaderPath) {
		t.Fatal("Reload() = false")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := h.server.WaitIdle(ctx); err != nil {
		t.Fatalf("WaitIdle() error = %v", err)
	}

	release := make(chan struct{})
	var started sync.WaitGroup
	started.Add(h.pool.Workers())
	for range h.pool.Workers() {
		h.pool.Submit(func() {
			started.Done()
			<-release
		})
	}
	started.Wait()
	released := false
	defer func() {
		if !released {
			close(release)
		}
	}()

	runs := h.node.UpdateRuns()
	dispatches := h.adapter.Stats().Dispatches[UpdateEntryPoint]

	if err := h.frame(); err != nil {
		t.Fatalf("frame() while recompiling error = %v", err)
	}
	if st := h.world.Pipelines.GetComputePipelineState(h.pipeline.UpdatePipeline); st.State != render.PipelineCreating {
		t.Fatalf("update pipeline = %v, want Creating", st.State)
	}
	if h.node.State() != Update {
		t.Errorf("state = %v, want Update", h.node.State())
	}
	if h.node.UpdateRuns() != runs {
		t.Errorf("UpdateRuns() = %d, want %d", h.node.UpdateRuns(), runs)
	}
	if got := h.adapter.Stats().Dispatches[UpdateEntryPoint]; got != dispatches {
		t.Errorf("update dispatches = %d, want %d", got, dispatches)
	}

	close(release)
	released = true
	h.frameUntil(t, func() bool { return h.node.UpdateRuns() > runs })
}

func TestNode_BindGroupMissing(t *testing.T) {
	h := newHarness(t, shaderFS(t), 16, 16, false)

	err := h.frame()
	if !errors.Is(err, ErrBindGroupMissing) {
		t.Fatalf("frame() error = %v, want ErrBindGroupMissing", err)
	}
	var nre *render.NodeRunError
	if !errors.As(err, &nre) || nre.Label != NodeLabel {
		t.Errorf("error = %v, want NodeRunError for %q", err, NodeLabel)
	}
}

func TestQueueBindGroup_Reuse(t *testing.T) {
	h := newHarness(t, shaderFS(t), 16, 8, true)
	h.mustFrame(t)
	first, ok := h.world.BindGroups.Get(BindGroupLabel)
	if !ok {
		t.Fatal("no bind group after first frame")
	}

	h.mustFrame(t)
	if again, _ := h.world.BindGroups.Get(BindGroupLabel); again != first {
		t.Errorf("bind group rebuilt without change: %d -> %d", first, again)
	}

	// Resizing the state image rebuilds scratch, seed and the bind group.
	h.images.Set(h.handle, CreateImage(32, 8))
	h.mustFrame(t)
	resized, _ := h.world.BindGroups.Get(BindGroupLabel)
	if resized == first {
		t.Error("bind group kept after state image resize")
	}
	if w, hh := h.pipeline.Size(); w != 32 || hh != 8 {
		t.Errorf("pipeline size = %dx%d, want 32x8", w, hh)
	}
}

func TestCreateImage(t *testing.T) {
	img := CreateImage(12, 5)
	if img.Format != gpucore.TextureFormatRGBA8Unorm {
		t.Errorf("Format = %v, want rgba8unorm", img.Format)
	}
	want := gpucore.TextureUsageCopySrc | gpucore.TextureUsageCopyDst |
		gpucore.TextureUsageTextureBinding | gpucore.TextureUsageStorageBinding
	if img.Usage != want {
		t.Errorf("Usage = %v, want %v", img.Usage, want)
	}
	if len(img.Data) != 12*5*4 {
		t.Errorf("len(Data) = %d, want %d", len(img.Data), 12*5*4)
	}
	for _, b := range img.Data {
		if b != 0 {
			t.Fatal("image data not zero-filled")
		}
	}
}

func TestNodeState_String(t *testing.T) {
	tests := []struct {
		s    NodeState
		want string
	}{
		{Loading, "Loading"},
		{Init, "Init"},
		{Update, "Update"},
		{NodeState(5), "NodeState(5)"},
	}
	for _, tt := range tests {
		if got := tt.s.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
	}
}
