// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package render

import (
	"fmt"

	"github.com/gogpu/smoothlife/gpucore"
	"github.com/gogpu/smoothlife/internal/assets"
	"github.com/gogpu/smoothlife/internal/logging"
)

// Image is a main-world image asset.
type Image struct {
	Label  string
	Width  uint32
	Height uint32
	Format gpucore.TextureFormat
	Usage  gpucore.TextureUsage

	// Data is the initial texel data uploaded when the asset is prepared.
	// Nil leaves the texture contents as the backend initializes them.
	Data []byte
}

// GPUImage is the prepared form of an Image.
type GPUImage struct {
	Texture gpucore.TextureID
	Width   uint32
	Height  uint32
	Format  gpucore.TextureFormat
}

type gpuEntry struct {
	handle assets.Handle[Image]
	image  GPUImage
	usage  gpucore.TextureUsage
}

// Images prepares image assets as GPU textures.
type Images struct {
	adapter  gpucore.GPUAdapter
	entries  map[uint64]*gpuEntry
	revision uint64
}

// NewImages creates an empty registry.
func NewImages(adapter gpucore.GPUAdapter) *Images {
	return &Images{adapter: adapter, entries: make(map[uint64]*gpuEntry)}
}

// Prepare creates or updates textures for images changed since the last
// call and destroys textures whose asset was removed. A texture is
// recreated when the image's size, format or usage changes; otherwise new
// data is written in place.
func (i *Images) Prepare(store *assets.Assets[Image]) error {
	changed, rev := store.Changed(i.revision)
	i.revision = rev

	for _, h := range changed {
		img, ok := store.Get(h)
		if !ok {
			continue
		}
		if err := i.prepare(h, &img); err != nil {
			return err
		}
	}

	for id, e := range i.entries {
		if store.Generation(e.handle) == 0 {
			i.adapter.DestroyTexture(e.image.Texture)
			delete(i.entries, id)
		}
	}
	return nil
}

func (i *Images) prepare(h assets.Handle[Image], img *Image) error {
	e, ok := i.entries[h.ID()]
	if ok && (e.image.Width != img.Width || e.image.Height != img.Height ||
		e.image.Format != img.Format || e.usage != img.Usage) {
		i.adapter.DestroyTexture(e.image.Texture)
		delete(i.entries, h.ID())
		ok = false
	}

	if !ok {
		tex, err := i.adapter.CreateTexture(&gpucore.TextureDesc{
			Label:  img.Label,
			Width:  img.Width,
			Height: img.Height,
			Format: img.Format,
			Usage:  img.Usage,
		})
		if err != nil {
			return fmt.Errorf("render: prepare image %v: %w", h, err)
		}
		e = &gpuEntry{
			handle: h,
			image:  GPUImage{Texture: tex, Width: img.Width, Height: img.Height, Format: img.Format},
			usage:  img.Usage,
		}
		i.entries[h.ID()] = e
		logging.Logger().Debug("render: image prepared", "image", h, "width", img.Width, "height", img.Height)
	}

	if img.Data != nil {
		if err := i.adapter.WriteTexture(e.image.Texture, img.Data); err != nil {
			return fmt.Errorf("render: upload image %v: %w", h, err)
		}
	}
	return nil
}

// Get returns the GPU image prepared for h.
func (i *Images) Get(h assets.Handle[Image]) (GPUImage, bool) {
	e, ok := i.entries[h.ID()]
	if !ok {
		return GPUImage{}, false
	}
	return e.image, true
}

// Close destroys every prepared texture.
func (i *Images) Close() {
	for id, e := range i.entries {
		i.adapter.DestroyTexture(e.image.Texture)
		delete(i.entries, id)
	}
	i.revision = 0
}
