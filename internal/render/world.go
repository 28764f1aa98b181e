// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package render

import (
	"sync"

	"github.com/gogpu/smoothlife/gpucore"
)

// Extractor copies main-world state into the render world.
type Extractor interface {
	Extract()
}

// World holds the render-side state of a simulation.
type World struct {
	// Adapter executes GPU work.
	Adapter gpucore.GPUAdapter

	// Pipelines compiles and caches compute pipelines.
	Pipelines *PipelineCache

	// Images maps image assets to GPU textures.
	Images *Images

	// BindGroups holds bind groups built during the Queue phase.
	BindGroups *BindGroups

	// Frame counts completed frames.
	Frame uint64

	extractors []Extractor
}

// NewWorld creates a render world using adapter.
func NewWorld(adapter gpucore.GPUAdapter, pipelines *PipelineCache) *World {
	return &World{
		Adapter:    adapter,
		Pipelines:  pipelines,
		Images:     NewImages(adapter),
		BindGroups: NewBindGroups(adapter),
	}
}

// AddExtractor registers e to run on every Extract.
func (w *World) AddExtractor(e Extractor) {
	w.extractors = append(w.extractors, e)
}

// Extract runs every registered extractor.
func (w *World) Extract() {
	for _, e := range w.extractors {
		e.Extract()
	}
}

// Close releases the GPU resources the world owns. The adapter itself is
// left open.
func (w *World) Close() {
	w.BindGroups.Close()
	w.Images.Close()
	if w.Pipelines != nil {
		w.Pipelines.Close()
	}
}

// ExtractResource mirrors a main-world value into the render world once
// per frame. Insert and Remove act on the main-world copy; Get reads the
// copy taken by the last Extract.
type ExtractResource[T any] struct {
	mu        sync.Mutex
	main      T
	hasMain   bool
	render    T
	hasRender bool
}

// NewExtractResource creates an empty resource.
func NewExtractResource[T any]() *ExtractResource[T] {
	return &ExtractResource[T]{}
}

// Insert sets the main-world value.
func (r *ExtractResource[T]) Insert(v T) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.main, r.hasMain = v, true
}

// Remove clears the main-world value. The render copy disappears on the
// next Extract.
func (r *ExtractResource[T]) Remove() {
	r.mu.Lock()
	defer r.mu.Unlock()
	var zero T
	r.main, r.hasMain = zero, false
}

// Extract implements Extractor.
func (r *ExtractResource[T]) Extract() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.render, r.hasRender = r.main, r.hasMain
}

// Get returns the render-world value.
func (r *ExtractResource[T]) Get() (T, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.render, r.hasRender
}

// BindGroups stores bind groups by label. Replacing or removing an entry
// destroys the previous bind group.
type BindGroups struct {
	adapter gpucore.GPUAdapter
	groups  map[string]gpucore.BindGroupID
}

// NewBindGroups creates an empty registry.
func NewBindGroups(adapter gpucore.GPUAdapter) *BindGroups {
	return &BindGroups{adapter: adapter, groups: make(map[string]gpucore.BindGroupID)}
}

// Set stores id under label.
func (b *BindGroups) Set(label string, id gpucore.BindGroupID) {
	if old, ok := b.groups[label]; ok && old != id {
		b.adapter.DestroyBindGroup(old)
	}
	b.groups[label] = id
}

// Get returns the bind group stored under label.
func (b *BindGroups) Get(label string) (gpucore.BindGroupID, bool) {
	id, ok := b.groups[label]
	return id, ok
}

// Remove destroys the bind group stored under label.
func (b *BindGroups) Remove(label string) {
	if id, ok := b.groups[label]; ok {
		b.adapter.DestroyBindGroup(id)
		delete(b.groups, label)
	}
}

// Close destroys every stored bind group.
func (b *BindGroups) Close() {
	for label := range b.groups {
		b.Remove(label)
	}
}
