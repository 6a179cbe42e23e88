package tracking

import (
	"context"
	"time"
)

// Sample is one tracker reading. Gap is the raw mouth gap in pixels and is
// meaningful only when Valid is true.
type Sample struct {
	Gap        float64   `json:"gap"`
	Valid      bool      `json:"valid"`
	Confidence float64   `json:"confidence"`
	At         time.Time `json:"at"`
}

// Source produces samples until its context is cancelled or it is closed.
type Source interface {
	// Start begins producing samples. The channel returned by Samples is
	// closed when production ends.
	Start(ctx context.Context) error

	// Samples returns the sample channel.
	Samples() <-chan Sample

	// FPS returns the most recent frame rate measurement.
	FPS() float64

	// Close stops production and releases resources.
	Close() error
}

// fpsMeter measures frame rate over a fixed number of frames.
type fpsMeter struct {
	window int
	count  int
	start  time.Time
	fps    float64
}

func newFPSMeter(window int) *fpsMeter {
	if window <= 0 {
		window = 10
	}
	return &fpsMeter{window: window}
}

// tick records one frame at now and reports whether a new measurement was
// taken.
func (m *fpsMeter) tick(now time.Time) bool {
	if m.start.IsZero() {
		m.start = now
		return false
	}
	m.count++
	if m.count < m.window {
		return false
	}
	if elapsed := now.Sub(m.start).Seconds(); elapsed > 0 {
		m.fps = float64(m.count) / elapsed
	}
	m.count = 0
	m.start = now
	return true
}
