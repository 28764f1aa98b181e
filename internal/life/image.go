package life

import (
	"github.com/gogpu/smoothlife/gpucore"
	"github.com/gogpu/smoothlife/internal/assets"
	"github.com/gogpu/smoothlife/internal/render"
)

// StateImageLabel is the debug label of the shared state image.
const StateImageLabel = "smooth life state"

// StateImage names the image the simulation writes each generation into.
// It lives in the main world and is extracted into the render world every
// frame.
type StateImage struct {
	Handle assets.Handle[render.Image]
}

// CreateImage returns a zero-filled RGBA8 image usable as a storage
// texture, a sampled texture and a copy source and destination.
func CreateImage(width, height uint32) render.Image {
	return render.Image{
		Label:  StateImageLabel,
		Width:  width,
		Height: height,
		Format: gpucore.TextureFormatRGBA8Unorm,
		Usage: gpucore.TextureUsageCopySrc | gpucore.TextureUsageCopyDst |
			gpucore.TextureUsageTextureBinding | gpucore.TextureUsageStorageBinding,
		Data: make([]byte, int(width)*int(height)*gpucore.TextureFormatRGBA8Unorm.BytesPerPixel()),
	}
}
