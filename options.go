package smoothlife

import (
	"io/fs"
	"log/slog"
	"time"

	"github.com/gogpu/smoothlife/internal/life"
)

// Default simulation size in pixels.
const (
	DefaultWidth  = 1200
	DefaultHeight = 600
)

// DefaultDiagnosticsInterval is how often frame diagnostics are logged.
const DefaultDiagnosticsInterval = time.Second

// Option configures a Simulation during creation.
//
// Example:
//
//	sim, err := smoothlife.New(adapter,
//	    smoothlife.WithSize(640, 360),
//	    smoothlife.WithSeed(42),
//	)
type Option func(*options)

// options holds optional configuration for Simulation creation.
type options struct {
	width, height uint32
	rules         life.Rules
	seed          int64
	assets        fs.FS
	hotReloadDir  string
	synchronous   bool
	workers       int
	diagInterval  time.Duration
	logger        *slog.Logger
}

// defaultOptions returns the default simulation options.
func defaultOptions() options {
	return options{
		width:        DefaultWidth,
		height:       DefaultHeight,
		rules:        life.DefaultRules(),
		seed:         1,
		diagInterval: DefaultDiagnosticsInterval,
	}
}

// WithSize sets the size of the state image.
func WithSize(width, height uint32) Option {
	return func(o *options) {
		o.width, o.height = width, height
	}
}

// WithRules sets the SmoothLife transition rules.
func WithRules(r life.Rules) Option {
	return func(o *options) {
		o.rules = r
	}
}

// WithSeed sets the seed of the initial noise field. Equal seeds give
// equal initial states.
func WithSeed(seed int64) Option {
	return func(o *options) {
		o.seed = seed
	}
}

// WithAssets loads shaders from fsys instead of the embedded assets. The
// shader is read from "shaders/smooth_life.wgsl".
func WithAssets(fsys fs.FS) Option {
	return func(o *options) {
		o.assets = fsys
	}
}

// WithHotReload loads shaders from the directory dir and recompiles the
// pipelines whenever the shader file changes. A reload that fails to parse
// keeps the running pipelines.
func WithHotReload(dir string) Option {
	return func(o *options) {
		o.hotReloadDir = dir
	}
}

// WithSynchronousPipelineCompilation compiles pipelines on the frame that
// processes them instead of on the worker pool.
func WithSynchronousPipelineCompilation() Option {
	return func(o *options) {
		o.synchronous = true
	}
}

// WithWorkers sets the size of the worker pool used for asset loading and
// pipeline compilation. Zero uses GOMAXPROCS.
func WithWorkers(n int) Option {
	return func(o *options) {
		o.workers = n
	}
}

// WithDiagnosticsInterval sets how often frame-rate diagnostics are logged.
// Zero or negative disables them.
func WithDiagnosticsInterval(d time.Duration) Option {
	return func(o *options) {
		o.diagInterval = d
	}
}

// WithLogger sets the logger for the simulation's own lifecycle and
// diagnostics messages. Sub-packages keep using the logger installed with
// SetLogger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}
