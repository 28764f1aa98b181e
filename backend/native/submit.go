//go:build !nogpu

package native

import (
	"context"
	"fmt"
	"time"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu"

	"github.com/gogpu/smoothlife/gpucore"
)

// maxInflight bounds the number of submitted command buffers kept alive
// before the adapter waits for the device and frees them.
const maxInflight = 3

// readbackTimeout bounds how long ReadTexture waits for a buffer mapping.
const readbackTimeout = 5 * time.Second

// copyRowAlignment is the WebGPU bytesPerRow alignment for buffer copies.
const copyRowAlignment = 256

// resolved holds the wgpu objects a recorded command stream refers to.
type resolved struct {
	pipelines  map[gpucore.ComputePipelineID]*wgpu.ComputePipeline
	bindGroups map[gpucore.BindGroupID]*wgpu.BindGroup
	textures   map[gpucore.TextureID]*texture
}

func (a *Adapter) resolve(cmds []gpucore.Command) (*resolved, error) {
	r := &resolved{
		pipelines:  make(map[gpucore.ComputePipelineID]*wgpu.ComputePipeline),
		bindGroups: make(map[gpucore.BindGroupID]*wgpu.BindGroup),
		textures:   make(map[gpucore.TextureID]*texture),
	}

	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return nil, ErrClosed
	}

	for _, c := range cmds {
		if c.Copy != nil {
			for _, id := range [2]gpucore.TextureID{c.Copy.Src, c.Copy.Dst} {
				t, ok := a.textures[uint64(id)]
				if !ok {
					return nil, fmt.Errorf("%w: texture %d", ErrUnknownResource, id)
				}
				r.textures[id] = t
			}
			continue
		}
		for _, d := range c.Pass.Dispatches {
			p, ok := a.pipelines[uint64(d.Pipeline)]
			if !ok {
				return nil, fmt.Errorf("%w: compute pipeline %d", ErrUnknownResource, d.Pipeline)
			}
			r.pipelines[d.Pipeline] = p
			for _, bg := range d.BindGroups {
				if bg == gpucore.InvalidID {
					continue
				}
				g, ok := a.bindGroups[uint64(bg)]
				if !ok {
					return nil, fmt.Errorf("%w: bind group %d", ErrUnknownResource, bg)
				}
				r.bindGroups[bg] = g
			}
		}
	}
	return r, nil
}

// restingUsage is the usage a texture is kept in between copies.
func restingUsage(t *texture) wgpu.TextureUsage {
	if t.usage&gpucore.TextureUsageTextureBinding != 0 {
		return wgpu.TextureUsageTextureBinding
	}
	return wgpu.TextureUsageStorageBinding
}

func barrier(t *texture, from, to wgpu.TextureUsage) wgpu.TextureBarrier {
	return wgpu.TextureBarrier{
		Texture: t.tex,
		Range: wgpu.TextureRange{
			Aspect:          gputypes.TextureAspectAll,
			MipLevelCount:   1,
			ArrayLayerCount: 1,
		},
		Usage: wgpu.TextureUsageTransition{OldUsage: from, NewUsage: to},
	}
}

// Submit implements gpucore.GPUAdapter. It replays the recorded compute
// passes and texture copies into one wgpu command buffer.
func (a *Adapter) Submit(enc *gpucore.CommandEncoder) error {
	cmds, err := enc.Commands()
	if err != nil {
		return err
	}
	r, err := a.resolve(cmds)
	if err != nil {
		return err
	}

	a.exec.Lock()
	defer a.exec.Unlock()

	encoder, err := a.device.CreateCommandEncoder(&wgpu.CommandEncoderDescriptor{Label: enc.Label()})
	if err != nil {
		return fmt.Errorf("native: create command encoder: %w", err)
	}

	for _, c := range cmds {
		if c.Copy != nil {
			a.encodeCopy(encoder, r, c.Copy)
			continue
		}
		if err := encodePass(encoder, r, c.Pass); err != nil {
			return err
		}
	}

	cb, err := encoder.Finish()
	if err != nil {
		return fmt.Errorf("native: finish %q: %w", enc.Label(), err)
	}
	if _, err := a.queue.Submit(cb); err != nil {
		cb.Release()
		return fmt.Errorf("native: submit %q: %w", enc.Label(), err)
	}

	a.inflight = append(a.inflight, cb)
	if len(a.inflight) >= maxInflight {
		return a.drainLocked()
	}
	return nil
}

func encodePass(encoder *wgpu.CommandEncoder, r *resolved, p *gpucore.PassCommands) error {
	pass, err := encoder.BeginComputePass(&wgpu.ComputePassDescriptor{Label: p.Label})
	if err != nil {
		return fmt.Errorf("native: begin compute pass %q: %w", p.Label, err)
	}
	for _, d := range p.Dispatches {
		pass.SetPipeline(r.pipelines[d.Pipeline])
		for i, bg := range d.BindGroups {
			if bg != gpucore.InvalidID {
				pass.SetBindGroup(uint32(i), r.bindGroups[bg], nil)
			}
		}
		pass.Dispatch(d.X, d.Y, d.Z)
	}
	if err := pass.End(); err != nil {
		return fmt.Errorf("native: end compute pass %q: %w", p.Label, err)
	}
	return nil
}

func (a *Adapter) encodeCopy(encoder *wgpu.CommandEncoder, r *resolved, c *gpucore.TextureCopy) {
	src, dst := r.textures[c.Src], r.textures[c.Dst]
	encoder.TransitionTextures([]wgpu.TextureBarrier{
		barrier(src, restingUsage(src), wgpu.TextureUsageCopySrc),
		barrier(dst, restingUsage(dst), wgpu.TextureUsageCopyDst),
	})
	encoder.CopyTextureToTexture(src.tex, dst.tex, []wgpu.TextureCopy{{
		Source:      wgpu.ImageCopyTexture{Texture: src.tex, Aspect: gputypes.TextureAspectAll},
		Destination: wgpu.ImageCopyTexture{Texture: dst.tex, Aspect: gputypes.TextureAspectAll},
		Size:        wgpu.Extent3D{Width: c.Width, Height: c.Height, DepthOrArrayLayers: 1},
	}})
	encoder.TransitionTextures([]wgpu.TextureBarrier{
		barrier(src, wgpu.TextureUsageCopySrc, restingUsage(src)),
		barrier(dst, wgpu.TextureUsageCopyDst, restingUsage(dst)),
	})
}

// drainLocked waits for the device and frees submitted command buffers.
// The caller must hold a.exec.
func (a *Adapter) drainLocked() error {
	err := a.device.WaitIdle()
	for _, cb := range a.inflight {
		cb.Release()
	}
	a.inflight = a.inflight[:0]
	if err != nil {
		return fmt.Errorf("native: wait idle: %w", err)
	}
	return nil
}

// ReadTexture implements gpucore.GPUAdapter. It copies the texture into a
// mappable staging buffer and returns tightly packed RGBA8 rows.
func (a *Adapter) ReadTexture(id gpucore.TextureID) ([]byte, error) {
	t, err := a.texture(id)
	if err != nil {
		return nil, err
	}
	if t.usage&gpucore.TextureUsageCopySrc == 0 {
		return nil, fmt.Errorf("native: texture %d lacks CopySrc usage", id)
	}

	rowBytes := t.width * 4
	paddedRow := (rowBytes + copyRowAlignment - 1) / copyRowAlignment * copyRowAlignment
	size := uint64(paddedRow) * uint64(t.height)

	staging, err := a.device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: "smoothlife readback",
		Size:  size,
		Usage: wgpu.BufferUsageMapRead | wgpu.BufferUsageCopyDst,
	})
	if err != nil {
		return nil, fmt.Errorf("native: readback buffer: %w", err)
	}
	defer staging.Release()

	a.exec.Lock()
	defer a.exec.Unlock()

	encoder, err := a.device.CreateCommandEncoder(&wgpu.CommandEncoderDescriptor{Label: "smoothlife readback"})
	if err != nil {
		return nil, fmt.Errorf("native: create command encoder: %w", err)
	}
	encoder.TransitionTextures([]wgpu.TextureBarrier{barrier(t, restingUsage(t), wgpu.TextureUsageCopySrc)})
	encoder.CopyTextureToBuffer(t.tex, staging, []wgpu.BufferTextureCopy{{
		BufferLayout: wgpu.ImageDataLayout{BytesPerRow: paddedRow, RowsPerImage: t.height},
		TextureBase:  wgpu.ImageCopyTexture{Texture: t.tex, Aspect: gputypes.TextureAspectAll},
		Size:         wgpu.Extent3D{Width: t.width, Height: t.height, DepthOrArrayLayers: 1},
	}})
	encoder.TransitionTextures([]wgpu.TextureBarrier{barrier(t, wgpu.TextureUsageCopySrc, restingUsage(t))})

	cb, err := encoder.Finish()
	if err != nil {
		return nil, fmt.Errorf("native: finish readback: %w", err)
	}
	if _, err := a.queue.Submit(cb); err != nil {
		cb.Release()
		return nil, fmt.Errorf("native: submit readback: %w", err)
	}
	a.inflight = append(a.inflight, cb)
	if err := a.drainLocked(); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), readbackTimeout)
	defer cancel()
	if err := staging.Map(ctx, wgpu.MapModeRead, 0, size); err != nil {
		return nil, fmt.Errorf("native: map readback: %w", err)
	}
	defer func() { _ = staging.Unmap() }()

	mapped, err := staging.MappedRange(0, size)
	if err != nil {
		return nil, fmt.Errorf("native: mapped range: %w", err)
	}
	src := mapped.Bytes()

	out := make([]byte, int(rowBytes)*int(t.height))
	for y := uint32(0); y < t.height; y++ {
		copy(out[y*rowBytes:(y+1)*rowBytes], src[y*paddedRow:y*paddedRow+rowBytes])
	}
	return out, nil
}
