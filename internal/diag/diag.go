// Package diag measures frame times and reports a smoothed frame rate.
package diag

import (
	"fmt"
	"log/slog"
	"time"
)

// DefaultHistory is the number of frames the smoothing averages over.
const DefaultHistory = 20

// FrameTime tracks frame durations. The smoothed values are an
// exponential moving average with factor 2/(history+1).
type FrameTime struct {
	history int
	alpha   float64

	last     time.Time
	frames   uint64
	smoothed time.Duration
	samples  []time.Duration
}

// NewFrameTime creates a tracker averaging over history frames. A
// non-positive history uses DefaultHistory.
func NewFrameTime(history int) *FrameTime {
	if history <= 0 {
		history = DefaultHistory
	}
	return &FrameTime{
		history: history,
		alpha:   2 / (float64(history) + 1),
		samples: make([]time.Duration, 0, history),
	}
}

// Tick records a frame boundary at now. The first tick only starts the
// clock.
func (f *FrameTime) Tick(now time.Time) {
	if f.last.IsZero() {
		f.last = now
		return
	}
	f.Add(now.Sub(f.last))
	f.last = now
}

// Add records one frame that took d.
func (f *FrameTime) Add(d time.Duration) {
	if d < 0 {
		d = 0
	}
	f.frames++
	if len(f.samples) == f.history {
		copy(f.samples, f.samples[1:])
		f.samples = f.samples[:f.history-1]
	}
	f.samples = append(f.samples, d)

	if f.frames == 1 {
		f.smoothed = d
		return
	}
	f.smoothed = time.Duration(float64(f.smoothed) + f.alpha*float64(d-f.smoothed))
}

// Frames returns the number of recorded frames.
func (f *FrameTime) Frames() uint64 { return f.frames }

// FrameTime returns the smoothed frame duration.
func (f *FrameTime) FrameTime() time.Duration { return f.smoothed }

// FPS returns the smoothed frame rate, or zero before the first frame.
func (f *FrameTime) FPS() float64 {
	if f.smoothed <= 0 {
		return 0
	}
	return float64(time.Second) / float64(f.smoothed)
}

// Average returns the plain mean of the frames in the history window.
func (f *FrameTime) Average() time.Duration {
	if len(f.samples) == 0 {
		return 0
	}
	var sum time.Duration
	for _, d := range f.samples {
		sum += d
	}
	return sum / time.Duration(len(f.samples))
}

// FormatFPS formats a frame rate for display.
func FormatFPS(fps float64) string {
	return fmt.Sprintf("fps: %.2f", fps)
}

// Logger writes frame diagnostics to a slog.Logger at most once per
// interval.
type Logger struct {
	interval time.Duration
	next     time.Time
}

// NewLogger creates a logger reporting every interval. A non-positive
// interval disables it.
func NewLogger(interval time.Duration) *Logger {
	return &Logger{interval: interval}
}

// Log reports f through log when the interval has elapsed since the last
// report and returns whether it did.
func (l *Logger) Log(log *slog.Logger, now time.Time, f *FrameTime) bool {
	if l.interval <= 0 || f.Frames() == 0 {
		return false
	}
	if !l.next.IsZero() && now.Before(l.next) {
		return false
	}
	l.next = now.Add(l.interval)
	log.Info("diagnostics",
		"fps", fmt.Sprintf("%.2f", f.FPS()),
		"frame_time", f.FrameTime(),
		"frame_time_avg", f.Average(),
		"frames", f.Frames())
	return true
}
