package smoothlife

import (
	"embed"
	"io/fs"
)

//go:embed assets/shaders/*.wgsl
var embedded embed.FS

// Assets returns the embedded asset file system. It contains
// "shaders/smooth_life.wgsl".
func Assets() fs.FS {
	sub, err := fs.Sub(embedded, "assets")
	if err != nil {
		panic(err)
	}
	return sub
}
