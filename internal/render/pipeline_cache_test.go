// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package render

import (
	"context"
	"errors"
	"testing"
	"testing/fstest"
	"time"

	"github.com/gogpu/smoothlife/backend/cpu"
	"github.com/gogpu/smoothlife/gpucore"
	"github.com/gogpu/smoothlife/internal/assets"
	"github.com/gogpu/smoothlife/internal/parallel"
)

const counterShader = `
@group(0) @binding(0) var<storage, read_write> data: array<u32>;

@compute @workgroup_size(64)
fn bump(@builtin(global_invocation_id) id: vec3<u32>) {
    data[id.x] = data[id.x] + 1u;
}
`

func noopKernel(*cpu.Bindings, [3]uint32) {}

type cacheFixture struct {
	fsys    fstest.MapFS
	server  *assets.Server
	cache   *PipelineCache
	adapter *cpu.Adapter
	layout  gpucore.BindGroupLayoutID
}

func newCacheFixture(t *testing.T, synchronous bool) *cacheFixture {
	t.Helper()

	f := &cacheFixture{fsys: fstest.MapFS{
		"shaders/counter.wgsl": {Data: []byte(counterShader)},
		"shaders/broken.wgsl":  {Data: []byte("fn nope(")},
	}}
	pool := parallel.NewWorkerPool(2)
	f.adapter = newCPU(t, cpu.WithKernel("bump", noopKernel))
	f.server = assets.NewServer(f.fsys, pool)
	f.cache = NewPipelineCache(f.adapter, f.server, pool, synchronous)
	t.Cleanup(func() {
		f.cache.Close()
		_ = f.server.Close()
		pool.Close()
	})

	var err error
	f.layout, err = f.adapter.CreateBindGroupLayout(&gpucore.BindGroupLayoutDesc{
		Label:   "counter",
		Entries: []gpucore.BindGroupLayoutEntry{{Binding: 0, Type: gpucore.BindingTypeStorageBuffer}},
	})
	if err != nil {
		t.Fatal(err)
	}
	return f
}

func (f *cacheFixture) queue(path, entry string) CachedComputePipelineID {
	return f.cache.QueueComputePipeline(ComputePipelineDescriptor{
		Label:      entry + " pipeline",
		Layouts:    []gpucore.BindGroupLayoutID{f.layout},
		Shader:     f.server.Load(path),
		EntryPoint: entry,
	})
}

// settle loads pending assets and processes the cache until id leaves the
// Queued and Creating states.
func (f *cacheFixture) settle(t *testing.T, id CachedComputePipelineID) CachedPipelineState {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := f.server.WaitIdle(ctx); err != nil {
		t.Fatalf("WaitIdle() error = %v", err)
	}
	f.server.Update()

	deadline := time.Now().Add(5 * time.Second)
	for {
		f.cache.Process()
		st := f.cache.GetComputePipelineState(id)
		if st.State == PipelineOk || st.State == PipelineErr {
			return st
		}
		if time.Now().After(deadline) {
			t.Fatalf("pipeline stuck in %v", st.State)
		}
		time.Sleep(time.Millisecond)
	}
}

func TestPipelineCache_Lifecycle(t *testing.T) {
	for _, synchronous := range []bool{true, false} {
		name := "async"
		if synchronous {
			name = "sync"
		}
		t.Run(name, func(t *testing.T) {
			f := newCacheFixture(t, synchronous)
			id := f.queue("shaders/counter.wgsl", "bump")

			if st := f.cache.GetComputePipelineState(id); st.State != PipelineQueued {
				t.Errorf("state before Process = %v, want Queued", st.State)
			}
			if _, ok := f.cache.GetComputePipeline(id); ok {
				t.Error("GetComputePipeline() before compile = true")
			}

			st := f.settle(t, id)
			if st.State != PipelineOk {
				t.Fatalf("state = %v (%v), want Ok", st.State, st.Err)
			}
			if p, ok := f.cache.GetComputePipeline(id); !ok || p == gpucore.InvalidID {
				t.Errorf("GetComputePipeline() = %d, %v", p, ok)
			}
		})
	}
}

func TestPipelineCache_Errors(t *testing.T) {
	tests := []struct {
		name  string
		path  string
		entry string
		want  error
	}{
		{"missing entry point", "shaders/counter.wgsl", "absent", ErrEntryPointNotFound},
		{"missing file", "shaders/none.wgsl", "bump", nil},
		{"invalid shader", "shaders/broken.wgsl", "bump", assets.ErrShaderInvalid},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newCacheFixture(t, true)
			id := f.queue(tt.path, tt.entry)

			st := f.settle(t, id)
			if st.State != PipelineErr || st.Err == nil {
				t.Fatalf("state = %v (%v), want Err", st.State, st.Err)
			}
			if tt.want != nil && !errors.Is(st.Err, tt.want) {
				t.Errorf("Err = %v, want %v", st.Err, tt.want)
			}
			if _, ok := f.cache.GetComputePipeline(id); ok {
				t.Error("GetComputePipeline() on failed pipeline = true")
			}
		})
	}
}

func TestPipelineCache_UnknownID(t *testing.T) {
	f := newCacheFixture(t, true)
	st := f.cache.GetComputePipelineState(42)
	if st.State != PipelineErr || !errors.Is(st.Err, ErrUnknownPipeline) {
		t.Errorf("GetComputePipelineState(42) = %+v", st)
	}
}

func TestPipelineCache_HotReload(t *testing.T) {
	f := newCacheFixture(t, true)
	id := f.queue("shaders/counter.wgsl", "bump")
	if st := f.settle(t, id); st.State != PipelineOk {
		t.Fatalf("state = %v (%v), want Ok", st.State, st.Err)
	}
	before, _ := f.cache.GetComputePipeline(id)

	// A broken edit leaves the store's shader in place: nothing recompiles.
	f.fsys["shaders/counter.wgsl"] = &fstest.MapFile{Data: []byte("fn broken(")}
	f.server.Reload("shaders/counter.wgsl")
	if st := f.settle(t, id); st.State != PipelineOk {
		t.Fatalf("state after broken reload = %v, want Ok", st.State)
	}
	if p, _ := f.cache.GetComputePipeline(id); p != before {
		t.Errorf("pipeline replaced by a failed reload: %d -> %d", before, p)
	}

	// A valid edit bumps the generation and recompiles.
	f.fsys["shaders/counter.wgsl"] = &fstest.MapFile{Data: []byte(counterShader + "\n// edited\n")}
	f.server.Reload("shaders/counter.wgsl")
	if st := f.settle(t, id); st.State != PipelineOk {
		t.Fatalf("state after reload = %v (%v), want Ok", st.State, st.Err)
	}
	after, _ := f.cache.GetComputePipeline(id)
	if after == before {
		t.Error("pipeline not recompiled after shader change")
	}
}

func TestPipelineState_String(t *testing.T) {
	tests := []struct {
		s    PipelineState
		want string
	}{
		{PipelineQueued, "Queued"},
		{PipelineCreating, "Creating"},
		{PipelineOk, "Ok"},
		{PipelineErr, "Err"},
		{PipelineState(9), "PipelineState(9)"},
	}
	for _, tt := range tests {
		if got := tt.s.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
	}
}
