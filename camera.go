package smoothlife

import (
	"github.com/gogpu/smoothlife/internal/render"
)

// CameraDriverLabel is the graph label of the node that presents frames.
const CameraDriverLabel = "camera_driver"

// cameraDriver is the last node of the graph. It records no GPU work of
// its own; it marks the frame for presentation once everything before it
// in the graph ran.
type cameraDriver struct {
	ran bool
}

func (c *cameraDriver) Update(*render.World) {}

func (c *cameraDriver) Run(*render.RenderContext, *render.World) error {
	c.ran = true
	return nil
}

// take reports whether the driver ran since the last call.
func (c *cameraDriver) take() bool {
	ran := c.ran
	c.ran = false
	return ran
}
