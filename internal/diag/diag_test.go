package diag

import (
	"bytes"
	"log/slog"
	"math"
	"strings"
	"testing"
	"time"
)

func TestFrameTime_Steady(t *testing.T) {
	f := NewFrameTime(0)
	start := time.Unix(0, 0)
	for i := range 31 {
		f.Tick(start.Add(time.Duration(i) * 16 * time.Millisecond))
	}

	if f.Frames() != 30 {
		t.Errorf("Frames() = %d, want 30", f.Frames())
	}
	if f.FrameTime() != 16*time.Millisecond {
		t.Errorf("FrameTime() = %v, want 16ms", f.FrameTime())
	}
	if math.Abs(f.FPS()-62.5) > 1e-9 {
		t.Errorf("FPS() = %v, want 62.5", f.FPS())
	}
	if f.Average() != 16*time.Millisecond {
		t.Errorf("Average() = %v, want 16ms", f.Average())
	}
}

func TestFrameTime_Smoothing(t *testing.T) {
	f := NewFrameTime(3) // alpha = 0.5
	f.Add(10 * time.Millisecond)
	f.Add(20 * time.Millisecond)
	if f.FrameTime() != 15*time.Millisecond {
		t.Errorf("FrameTime() = %v, want 15ms", f.FrameTime())
	}
	f.Add(20 * time.Millisecond)
	f.Add(20 * time.Millisecond)
	if f.FrameTime() != 18750*time.Microsecond {
		t.Errorf("FrameTime() = %v, want 18.75ms", f.FrameTime())
	}
	// The window keeps the last three frames.
	if f.Average() != 20*time.Millisecond {
		t.Errorf("Average() = %v, want 20ms", f.Average())
	}
}

func TestFrameTime_Empty(t *testing.T) {
	f := NewFrameTime(5)
	if f.FPS() != 0 || f.Average() != 0 {
		t.Errorf("empty tracker FPS=%v Average=%v, want zeros", f.FPS(), f.Average())
	}
	f.Tick(time.Now())
	if f.Frames() != 0 {
		t.Errorf("first Tick recorded a frame")
	}
}

func TestFormatFPS(t *testing.T) {
	tests := []struct {
		fps  float64
		want string
	}{
		{0, "fps: 0.00"},
		{59.994, "fps: 59.99"},
		{144, "fps: 144.00"},
	}
	for _, tt := range tests {
		if got := FormatFPS(tt.fps); got != tt.want {
			t.Errorf("FormatFPS(%v) = %q, want %q", tt.fps, got, tt.want)
		}
	}
}

func TestLogger_Interval(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(slog.NewTextHandler(&buf, nil))

	f := NewFrameTime(0)
	f.Add(10 * time.Millisecond)

	l := NewLogger(time.Second)
	now := time.Unix(100, 0)
	if !l.Log(log, now, f) {
		t.Fatal("first Log() = false")
	}
	if l.Log(log, now.Add(500*time.Millisecond), f) {
		t.Error("Log() inside the interval = true")
	}
	if !l.Log(log, now.Add(time.Second), f) {
		t.Error("Log() after the interval = false")
	}
	if n := strings.Count(buf.String(), "diagnostics"); n != 2 {
		t.Errorf("logged %d lines, want 2", n)
	}
	if !strings.Contains(buf.String(), "fps=100.00") {
		t.Errorf("log output missing fps: %s", buf.String())
	}

	if NewLogger(0).Log(log, now, f) {
		t.Error("disabled Log() = true")
	}
}
