// Package tracking turns camera frames into mouth-gap samples for the
// control loop.
package tracking

import (
	"fmt"
	"time"
)

// Config holds all tunable parameters for mouth tracking
type Config struct {
	// Capture
	Device int // Camera index
	Width  int // Requested frame width in pixels
	Height int // Requested frame height in pixels

	// Perception
	TrackingConfidence float64 // Minimum face score for a valid sample
	Smoothing          float64 // Exponential smoothing factor (0-1, 1 = raw readings)

	// Reporting
	FPSWindow  int // Frames per FPS measurement
	BufferSize int // Sample channel capacity

	// Idle pacing for sources without a frame clock
	Interval time.Duration
}

// DefaultConfig returns the recommended configuration: raw readings, as the
// calibrated mapping expects.
func DefaultConfig() Config {
	return Config{
		Device:             0,
		Width:              640,
		Height:             480,
		TrackingConfidence: 0.5,
		Smoothing:          1.0,
		FPSWindow:          10,
		BufferSize:         4,
		Interval:           33 * time.Millisecond,
	}
}

// SmoothConfig returns a configuration that damps landmark jitter.
func SmoothConfig() Config {
	cfg := DefaultConfig()
	cfg.Smoothing = 0.6 // 60% new, 40% old
	return cfg
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.Width <= 0 || c.Height <= 0 {
		return fmt.Errorf("frame size must be positive, got %dx%d", c.Width, c.Height)
	}
	if c.TrackingConfidence < 0 || c.TrackingConfidence > 1 {
		return fmt.Errorf("tracking confidence must be in [0,1], got %v", c.TrackingConfidence)
	}
	if c.Smoothing <= 0 || c.Smoothing > 1 {
		return fmt.Errorf("smoothing must be in (0,1], got %v", c.Smoothing)
	}
	if c.FPSWindow <= 0 {
		return fmt.Errorf("fps window must be positive, got %d", c.FPSWindow)
	}
	if c.BufferSize < 0 {
		return fmt.Errorf("buffer size must not be negative, got %d", c.BufferSize)
	}
	return nil
}
