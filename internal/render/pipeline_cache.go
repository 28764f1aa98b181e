// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package render

import (
	"errors"
	"fmt"
	"sync"

	"github.com/gogpu/smoothlife/gpucore"
	"github.com/gogpu/smoothlife/internal/assets"
	"github.com/gogpu/smoothlife/internal/logging"
	"github.com/gogpu/smoothlife/internal/parallel"
)

// Pipeline cache errors.
var (
	// ErrEntryPointNotFound is returned when the shader lacks the requested
	// compute entry point.
	ErrEntryPointNotFound = errors.New("render: entry point not found")

	// ErrUnknownPipeline is returned for ids the cache never issued.
	ErrUnknownPipeline = errors.New("render: unknown pipeline")
)

// CachedComputePipelineID identifies a pipeline queued in a PipelineCache.
type CachedComputePipelineID int

// PipelineState is the lifecycle stage of a cached pipeline.
type PipelineState int

const (
	// PipelineQueued waits for its shader asset.
	PipelineQueued PipelineState = iota
	// PipelineCreating is compiling on a worker.
	PipelineCreating
	// PipelineOk can be used.
	PipelineOk
	// PipelineErr failed; CachedPipelineState.Err holds the cause.
	PipelineErr
)

// String returns the string representation of PipelineState.
func (s PipelineState) String() string {
	switch s {
	case PipelineQueued:
		return "Queued"
	case PipelineCreating:
		return "Creating"
	case PipelineOk:
		return "Ok"
	case PipelineErr:
		return "Err"
	default:
		return fmt.Sprintf("PipelineState(%d)", int(s))
	}
}

// CachedPipelineState reports a pipeline's state and, for PipelineErr,
// the error.
type CachedPipelineState struct {
	State PipelineState
	Err   error
}

// ComputePipelineDescriptor describes a pipeline to queue.
type ComputePipelineDescriptor struct {
	Label   string
	Layouts []gpucore.BindGroupLayoutID
	Shader  assets.Handle[assets.Shader]

	// ShaderDefs are pipeline-overridable constants applied at compile time.
	ShaderDefs map[string]float64

	EntryPoint string
}

type compiled struct {
	module   gpucore.ShaderModuleID
	layout   gpucore.PipelineLayoutID
	pipeline gpucore.ComputePipelineID
}

type compileResult struct {
	compiled
	generation uint64
	err        error
}

type cachedPipeline struct {
	desc  ComputePipelineDescriptor
	state PipelineState
	err   error

	// generation is the shader generation current holds or is being
	// compiled from.
	generation uint64
	current    compiled
	done       chan compileResult
}

// PipelineCache compiles compute pipelines once their shader asset is
// loaded and recompiles them when the shader changes.
type PipelineCache struct {
	adapter gpucore.GPUAdapter
	server  *assets.Server
	pool    *parallel.WorkerPool
	sync    bool

	pipelines []*cachedPipeline
	wg        sync.WaitGroup
}

// NewPipelineCache creates a cache compiling shaders served by server.
// Compilation runs on pool unless synchronous is set.
func NewPipelineCache(adapter gpucore.GPUAdapter, server *assets.Server, pool *parallel.WorkerPool, synchronous bool) *PipelineCache {
	return &PipelineCache{adapter: adapter, server: server, pool: pool, sync: synchronous}
}

// QueueComputePipeline registers desc and returns its id. Nothing is
// compiled until Process.
func (c *PipelineCache) QueueComputePipeline(desc ComputePipelineDescriptor) CachedComputePipelineID {
	c.pipelines = append(c.pipelines, &cachedPipeline{desc: desc, state: PipelineQueued})
	return CachedComputePipelineID(len(c.pipelines) - 1)
}

func (c *PipelineCache) get(id CachedComputePipelineID) *cachedPipeline {
	if id < 0 || int(id) >= len(c.pipelines) {
		return nil
	}
	return c.pipelines[id]
}

// GetComputePipelineState returns the state of id.
func (c *PipelineCache) GetComputePipelineState(id CachedComputePipelineID) CachedPipelineState {
	p := c.get(id)
	if p == nil {
		return CachedPipelineState{State: PipelineErr, Err: fmt.Errorf("%w: %d", ErrUnknownPipeline, id)}
	}
	return CachedPipelineState{State: p.state, Err: p.err}
}

// GetComputePipeline returns the compiled pipeline for id when its state
// is PipelineOk.
func (c *PipelineCache) GetComputePipeline(id CachedComputePipelineID) (gpucore.ComputePipelineID, bool) {
	p := c.get(id)
	if p == nil || p.state != PipelineOk {
		return gpucore.InvalidID, false
	}
	return p.current.pipeline, true
}

// Process advances every pipeline: it starts compiles for pipelines whose
// shader is loaded or changed and publishes finished compiles. The frame
// loop calls it once per frame.
func (c *PipelineCache) Process() {
	shaders := c.server.Shaders()
	for id, p := range c.pipelines {
		if p.state == PipelineCreating {
			select {
			case res := <-p.done:
				c.finish(CachedComputePipelineID(id), p, res)
			default:
			}
			continue
		}

		gen := shaders.Generation(p.desc.Shader)
		if gen == 0 {
			if p.state == PipelineQueued && c.server.LoadState(p.desc.Shader) == assets.Failed {
				c.fail(CachedComputePipelineID(id), p, c.server.Err(p.desc.Shader))
			}
			continue
		}
		if p.state != PipelineQueued && gen == p.generation {
			continue
		}

		shader, _ := shaders.Get(p.desc.Shader)
		p.generation = gen
		c.start(CachedComputePipelineID(id), p, &shader, gen)
	}
}

func (c *PipelineCache) start(id CachedComputePipelineID, p *cachedPipeline, shader *assets.Shader, gen uint64) {
	if _, ok := shader.EntryPoint(p.desc.EntryPoint); !ok {
		c.fail(id, p, fmt.Errorf("%w: %q in %s", ErrEntryPointNotFound, p.desc.EntryPoint, shader.Path))
		return
	}

	if p.state == PipelineOk {
		logging.Logger().Info("render: shader changed, recompiling pipeline", "pipeline", p.desc.Label)
	}
	p.state = PipelineCreating
	p.err = nil
	desc := p.desc
	source := shader.Source

	if c.sync {
		c.finish(id, p, c.compile(&desc, source, gen))
		return
	}

	p.done = make(chan compileResult, 1)
	done := p.done
	c.wg.Add(1)
	c.pool.Submit(func() {
		defer c.wg.Done()
		done <- c.compile(&desc, source, gen)
	})
}

func (c *PipelineCache) compile(desc *ComputePipelineDescriptor, source string, gen uint64) compileResult {
	res := compileResult{generation: gen}

	module, err := c.adapter.CreateShaderModule(gpucore.ShaderSource{WGSL: source}, desc.Label)
	if err != nil {
		res.err = err
		return res
	}
	layout, err := c.adapter.CreatePipelineLayout(desc.Layouts, desc.Label)
	if err != nil {
		c.adapter.DestroyShaderModule(module)
		res.err = err
		return res
	}
	pipeline, err := c.adapter.CreateComputePipeline(&gpucore.ComputePipelineDesc{
		Label:        desc.Label,
		Layout:       layout,
		ShaderModule: module,
		EntryPoint:   desc.EntryPoint,
		Constants:    desc.ShaderDefs,
	})
	if err != nil {
		c.adapter.DestroyPipelineLayout(layout)
		c.adapter.DestroyShaderModule(module)
		res.err = err
		return res
	}

	res.compiled = compiled{module: module, layout: layout, pipeline: pipeline}
	return res
}

func (c *PipelineCache) finish(id CachedComputePipelineID, p *cachedPipeline, res compileResult) {
	p.done = nil
	if res.err != nil {
		c.fail(id, p, res.err)
		return
	}

	c.destroy(p.current)
	p.current = res.compiled
	p.state = PipelineOk
	logging.Logger().Info("render: pipeline ready", "pipeline", p.desc.Label,
		"id", int(id), "generation", res.generation)
}

// fail moves p to PipelineErr. Objects from an earlier successful compile
// are kept so a later fix can replace them.
func (c *PipelineCache) fail(id CachedComputePipelineID, p *cachedPipeline, err error) {
	if err == nil {
		err = errors.New("render: pipeline failed")
	}
	p.state, p.err = PipelineErr, err
	logging.Logger().Warn("render: pipeline failed", "pipeline", p.desc.Label, "id", int(id), "err", err)
}

func (c *PipelineCache) destroy(cp compiled) {
	if cp.pipeline != gpucore.InvalidID {
		c.adapter.DestroyComputePipeline(cp.pipeline)
	}
	if cp.layout != gpucore.InvalidID {
		c.adapter.DestroyPipelineLayout(cp.layout)
	}
	if cp.module != gpucore.InvalidID {
		c.adapter.DestroyShaderModule(cp.module)
	}
}

// Close waits for in-flight compiles and destroys every compiled object.
func (c *PipelineCache) Close() {
	c.wg.Wait()
	for _, p := range c.pipelines {
		if p.done != nil {
			res := <-p.done
			c.destroy(res.compiled)
			p.done = nil
		}
		c.destroy(p.current)
		p.current = compiled{}
		p.state = PipelineQueued
	}
}
