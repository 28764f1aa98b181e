// Command smoothlife runs the SmoothLife simulation headless and writes the
// state image to PNG files.
package main

import (
	"context"
	"flag"
	"fmt"
	"image"
	"image/png"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"

	"golang.org/x/image/draw"

	"github.com/gogpu/smoothlife"
	"github.com/gogpu/smoothlife/backend"
	_ "github.com/gogpu/smoothlife/backend/cpu"
	"github.com/gogpu/smoothlife/gpucore"
	"github.com/gogpu/smoothlife/internal/hud"
)

func main() {
	var (
		backendName = flag.String("backend", "", "GPU backend (default: best available; see -list)")
		list        = flag.Bool("list", false, "list available backends and exit")
		width       = flag.Uint("width", smoothlife.DefaultWidth, "simulation width")
		height      = flag.Uint("height", smoothlife.DefaultHeight, "simulation height")
		frames      = flag.Int("frames", 300, "frames to run after the update stage is reached")
		every       = flag.Int("every", 0, "also write a snapshot every N frames (0: only the last)")
		seed        = flag.Int64("seed", 1, "initial noise seed")
		shaders     = flag.String("shaders", "", "load shaders from this directory and hot reload them")
		scale       = flag.Float64("scale", 1, "output scale factor")
		showFPS     = flag.Bool("fps", false, "draw the frame rate onto snapshots")
		output      = flag.String("output", "smoothlife.png", "output file")
		verbose     = flag.Bool("v", false, "debug logging")
	)
	flag.Parse()

	if *list {
		fmt.Println(strings.Join(backend.Available(), "\n"))
		return
	}

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	smoothlife.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	adapter, err := openBackend(*backendName)
	if err != nil {
		log.Fatalf("Failed to open backend: %v", err)
	}
	defer adapter.Close()

	opts := []smoothlife.Option{
		smoothlife.WithSize(uint32(*width), uint32(*height)),
		smoothlife.WithSeed(*seed),
	}
	if *shaders != "" {
		opts = append(opts, smoothlife.WithHotReload(*shaders))
	}
	sim, err := smoothlife.New(adapter, opts...)
	if err != nil {
		log.Fatalf("Failed to create simulation: %v", err)
	}
	defer func() { _ = sim.Close() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := sim.Wait(ctx); err != nil {
		log.Fatalf("Simulation did not start: %v", err)
	}

	w := snapshotWriter{scale: *scale, fps: *showFPS}
	if *every > 0 {
		n := 0
		sim.OnPresent(func(s *smoothlife.Simulation) {
			n++
			if n%*every != 0 {
				return
			}
			if err := w.write(s, numbered(*output, n)); err != nil {
				log.Printf("snapshot %d: %v", n, err)
			}
		})
	}

	if err := sim.Run(ctx, *frames); err != nil {
		log.Fatalf("Simulation failed: %v", err)
	}
	if err := w.write(sim, *output); err != nil {
		log.Fatalf("Failed to save: %v", err)
	}

	log.Printf("Snapshot saved to %s (%dx%d, %s, %.2f fps)\n",
		*output, *width, *height, adapter.Name(), sim.FPS())
}

// openBackend opens the named backend, or the best available one when
// name is empty.
func openBackend(name string) (gpucore.GPUAdapter, error) {
	if name == "" {
		return backend.OpenDefault()
	}
	return backend.Open(name)
}

// snapshotWriter writes simulation snapshots as PNG.
type snapshotWriter struct {
	scale float64
	fps   bool
}

func (w snapshotWriter) write(sim *smoothlife.Simulation, path string) error {
	img, err := sim.Snapshot()
	if err != nil {
		return err
	}
	out := scaleImage(img, w.scale)
	if w.fps {
		if err := hud.DrawFPS(out, sim.FPS()); err != nil {
			return err
		}
	}
	return savePNG(out, path)
}

// scaleImage resamples img by factor with Catmull-Rom. Factors at or
// below zero, and 1, return img unchanged.
func scaleImage(img *image.RGBA, factor float64) *image.RGBA {
	if factor <= 0 || factor == 1 {
		return img
	}
	b := img.Bounds()
	w := max(int(float64(b.Dx())*factor+0.5), 1)
	h := max(int(float64(b.Dy())*factor+0.5), 1)
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
	return dst
}

// numbered inserts a zero-padded frame number before the extension.
func numbered(path string, n int) string {
	ext := ""
	if i := strings.LastIndexByte(path, '.'); i > strings.LastIndexByte(path, '/') {
		path, ext = path[:i], path[i:]
	}
	return fmt.Sprintf("%s-%05d%s", path, n, ext)
}

func savePNG(img image.Image, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := png.Encode(f, img); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
