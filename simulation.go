package smoothlife

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"os"
	"slices"
	"sync"
	"time"

	"github.com/gogpu/smoothlife/backend/cpu"
	"github.com/gogpu/smoothlife/gpucore"
	"github.com/gogpu/smoothlife/internal/assets"
	"github.com/gogpu/smoothlife/internal/diag"
	"github.com/gogpu/smoothlife/internal/life"
	"github.com/gogpu/smoothlife/internal/logging"
	"github.com/gogpu/smoothlife/internal/parallel"
	"github.com/gogpu/smoothlife/internal/render"
)

// Errors returned by Simulation.
var (
	// ErrNilAdapter is returned by New when no adapter is given.
	ErrNilAdapter = errors.New("smoothlife: nil GPU adapter")

	// ErrNoCompute is returned by New for adapters without compute support.
	ErrNoCompute = errors.New("smoothlife: adapter does not support compute")

	// ErrInvalidSize is returned for a zero or oversized state image.
	ErrInvalidSize = errors.New("smoothlife: invalid size")

	// ErrClosed is returned by operations on a closed Simulation.
	ErrClosed = errors.New("smoothlife: simulation closed")

	// ErrNotReady is returned by Snapshot before the state image exists.
	ErrNotReady = errors.New("smoothlife: state image not ready")
)

// Stage is the stage of the compute node.
type Stage = life.NodeState

// Stages of the compute node.
const (
	StageLoading = life.Loading
	StageInit    = life.Init
	StageUpdate  = life.Update
)

// kernelRegistry is implemented by adapters that run Go kernels for
// shader entry points, such as backend/cpu.
type kernelRegistry interface {
	Register(name string, k cpu.Kernel)
}

// Simulation is a SmoothLife simulation running on a GPU adapter.
//
// Frame, Run, Wait, Snapshot and Close may be called from different
// goroutines; frames are serialized.
type Simulation struct {
	mu sync.Mutex

	adapter gpucore.GPUAdapter
	log     *slog.Logger
	width   uint32
	height  uint32

	pool     *parallel.WorkerPool
	server   *assets.Server
	world    *render.World
	images   *assets.Assets[render.Image]
	state    *render.ExtractResource[life.StateImage]
	handle   assets.Handle[render.Image]
	pipeline *life.Pipeline
	node     *life.Node
	camera   *cameraDriver
	graph    *render.Graph

	frameTime *diag.FrameTime
	diagLog   *diag.Logger
	stage     Stage

	presentMu  sync.Mutex
	presenters []func(*Simulation)

	closed bool
}

// New creates a simulation on adapter. The adapter stays owned by the
// caller and must outlive the simulation.
func New(adapter gpucore.GPUAdapter, opts ...Option) (*Simulation, error) {
	if adapter == nil {
		return nil, ErrNilAdapter
	}
	if !adapter.SupportsCompute() {
		return nil, fmt.Errorf("%w: %s", ErrNoCompute, adapter.Name())
	}

	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if err := validateSize(adapter, o.width, o.height); err != nil {
		return nil, err
	}
	if err := o.rules.Validate(); err != nil {
		return nil, err
	}
	log := o.logger
	if log == nil {
		log = logging.Logger()
	}

	if reg, ok := adapter.(kernelRegistry); ok {
		for name, k := range life.Kernels() {
			reg.Register(name, k)
		}
	}

	fsys := o.assets
	switch {
	case o.hotReloadDir != "":
		fsys = os.DirFS(o.hotReloadDir)
	case fsys == nil:
		fsys = Assets()
	}

	s := &Simulation{
		adapter:   adapter,
		log:       log,
		width:     o.width,
		height:    o.height,
		pool:      parallel.NewWorkerPool(o.workers),
		images:    assets.NewAssets[render.Image](),
		state:     render.NewExtractResource[life.StateImage](),
		graph:     render.NewGraph(),
		frameTime: diag.NewFrameTime(diag.DefaultHistory),
		diagLog:   diag.NewLogger(o.diagInterval),
	}
	s.server = assets.NewServer(fsys, s.pool)
	s.world = render.NewWorld(adapter, render.NewPipelineCache(adapter, s.server, s.pool, o.synchronous))
	s.world.AddExtractor(s.state)

	if err := s.build(o); err != nil {
		return nil, errors.Join(err, s.release())
	}
	if o.hotReloadDir != "" {
		if err := s.server.Watch(o.hotReloadDir); err != nil {
			return nil, errors.Join(err, s.release())
		}
	}

	log.Info("smoothlife: simulation created",
		"adapter", adapter.Name(), "width", o.width, "height", o.height)
	return s, nil
}

func validateSize(adapter gpucore.GPUAdapter, width, height uint32) error {
	if width == 0 || height == 0 {
		return fmt.Errorf("%w: %dx%d", ErrInvalidSize, width, height)
	}
	if limit := adapter.Capabilities().MaxTextureDimension2D; limit > 0 && (width > limit || height > limit) {
		return fmt.Errorf("%w: %dx%d exceeds %d", ErrInvalidSize, width, height, limit)
	}
	return nil
}

// build creates the state image, the life pipeline and the render graph.
func (s *Simulation) build(o options) error {
	s.handle = s.images.Add(life.CreateImage(o.width, o.height))
	s.state.Insert(life.StateImage{Handle: s.handle})

	var err error
	s.pipeline, err = life.NewPipeline(s.world, s.server, life.Config{Rules: o.rules, Seed: o.seed})
	if err != nil {
		return err
	}
	s.node = life.NewNode(s.pipeline)
	s.camera = &cameraDriver{}

	if err := s.graph.AddNode(life.NodeLabel, s.node); err != nil {
		return err
	}
	if err := s.graph.AddNode(CameraDriverLabel, s.camera); err != nil {
		return err
	}
	return s.graph.AddNodeEdge(life.NodeLabel, CameraDriverLabel)
}

// Frame runs one frame of the simulation.
func (s *Simulation) Frame(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	presented, err := s.frame()
	if err != nil {
		return err
	}
	if presented {
		s.present()
	}
	return nil
}

func (s *Simulation) frame() (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false, ErrClosed
	}

	now := time.Now()
	s.frameTime.Tick(now)

	s.server.Update()
	s.world.Extract()
	if err := s.world.Images.Prepare(s.images); err != nil {
		return false, err
	}
	s.world.Pipelines.Process()
	if err := life.QueueBindGroup(s.world, s.pipeline, s.state); err != nil {
		return false, err
	}
	if err := s.graph.Update(s.world); err != nil {
		return false, err
	}

	rc := render.NewRenderContext(s.adapter, "smoothlife frame")
	if err := s.graph.Run(rc, s.world); err != nil {
		return false, err
	}
	if err := rc.Finish(); err != nil {
		return false, err
	}
	s.world.Frame++

	if st := s.node.State(); st != s.stage {
		s.log.Info("smoothlife: stage changed", "from", s.stage, "to", st, "frame", s.world.Frame)
		s.stage = st
	}
	s.diagLog.Log(s.log, now, s.frameTime)
	return s.camera.take(), nil
}

// Run runs frames until ctx is done or, when frames is positive, until
// that many frames have run.
func (s *Simulation) Run(ctx context.Context, frames int) error {
	for i := 0; frames <= 0 || i < frames; i++ {
		if err := s.Frame(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Wait runs frames until the node reaches StageUpdate or ctx is done.
func (s *Simulation) Wait(ctx context.Context) error {
	for s.Stage() != StageUpdate {
		if err := s.Frame(ctx); err != nil {
			return err
		}
	}
	return nil
}

// OnPresent registers fn to be called after every frame the camera driver
// ran. fn runs on the goroutine that called Frame, after the frame's
// commands were submitted, so it may call Snapshot.
func (s *Simulation) OnPresent(fn func(*Simulation)) {
	s.presentMu.Lock()
	s.presenters = append(s.presenters, fn)
	s.presentMu.Unlock()
}

func (s *Simulation) present() {
	s.presentMu.Lock()
	fns := slices.Clone(s.presenters)
	s.presentMu.Unlock()
	for _, fn := range fns {
		fn(s)
	}
}

// Snapshot reads the state image back into an RGBA image. Each pixel holds
// the cell value v as (v, v, v, 1).
func (s *Simulation) Snapshot() (*image.RGBA, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}

	img, ok := s.world.Images.Get(s.handle)
	if !ok {
		return nil, ErrNotReady
	}
	data, err := s.adapter.ReadTexture(img.Texture)
	if err != nil {
		return nil, fmt.Errorf("smoothlife: snapshot: %w", err)
	}
	return &image.RGBA{
		Pix:    data,
		Stride: int(img.Width) * 4,
		Rect:   image.Rect(0, 0, int(img.Width), int(img.Height)),
	}, nil
}

// Stage returns the stage of the compute node.
func (s *Simulation) Stage() Stage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.node.State()
}

// FPS returns the smoothed frame rate.
func (s *Simulation) FPS() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frameTime.FPS()
}

// Frames returns the number of frames run so far.
func (s *Simulation) Frames() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.world.Frame
}

// Size returns the size of the state image.
func (s *Simulation) Size() (width, height uint32) {
	return s.width, s.height
}

// Adapter returns the adapter the simulation runs on.
func (s *Simulation) Adapter() gpucore.GPUAdapter {
	return s.adapter
}

// ShaderState returns the load state of the SmoothLife shader.
func (s *Simulation) ShaderState() assets.LoadState {
	return s.server.LoadState(s.pipeline.Shader)
}

// Close releases the simulation's GPU resources. The adapter is left open.
// Close is idempotent.
func (s *Simulation) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	err := s.adapter.WaitIdle()
	return errors.Join(err, s.release())
}

// release frees everything New created. Safe on partially built values.
// It returns the error from closing the shader watcher.
func (s *Simulation) release() error {
	var err error
	if s.server != nil {
		if cerr := s.server.Close(); cerr != nil {
			err = fmt.Errorf("smoothlife: close asset server: %w", cerr)
		}
	}
	if s.world != nil {
		s.world.Close()
	}
	if s.pipeline != nil {
		s.pipeline.Destroy()
	}
	s.pool.Close()
	return err
}
