package smoothlife

import (
	"log/slog"

	"github.com/gogpu/smoothlife/internal/logging"
)

// SetLogger configures the logger for smoothlife and all its sub-packages.
// By default, smoothlife produces no log output. Call SetLogger to enable
// logging.
//
// SetLogger is safe for concurrent use: it stores the new logger atomically.
// Pass nil to disable logging (restore default silent behavior).
//
// Log levels used by smoothlife:
//   - [slog.LevelDebug]: pipeline state, texture and bind group recreation
//   - [slog.LevelInfo]: lifecycle events (GPU adapter selected, pipelines
//     ready, stage changes, periodic diagnostics)
//   - [slog.LevelWarn]: non-fatal issues (backend fallback, shader errors)
//
// Example:
//
//	// Enable debug-level logging for full diagnostics:
//	smoothlife.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
//	    Level: slog.LevelDebug,
//	})))
func SetLogger(l *slog.Logger) {
	logging.Set(l)
}

// Logger returns the current logger used by smoothlife.
//
// Logger is safe for concurrent use.
func Logger() *slog.Logger {
	return logging.Logger()
}
