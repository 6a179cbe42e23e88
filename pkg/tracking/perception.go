package tracking

import (
	"time"

	"github.com/teslashibe/go-mouthfx/pkg/tracking/detection"
)

// Perception converts per-frame detections into samples.
type Perception struct {
	minConfidence   float64
	smoothingFactor float64 // 0-1, higher = more weight on new reading

	smoothedGap float64
	hasLastGap  bool

	lastValidGap      float64
	consecutiveMisses int
}

// NewPerception creates a new perception stage
func NewPerception(config Config) *Perception {
	return &Perception{
		minConfidence:   config.TrackingConfidence,
		smoothingFactor: config.Smoothing,
	}
}

// Perceive turns one frame's detections into a sample. The best face is
// used when it scores at least the tracking confidence; otherwise the
// sample is invalid.
func (p *Perception) Perceive(faces []detection.Face, at time.Time) (Sample, *detection.Face) {
	best := detection.SelectBest(faces)
	if best == nil || best.Confidence < p.minConfidence {
		p.consecutiveMisses++
		return Sample{At: at}, nil
	}

	gap := best.MouthGap()
	if p.hasLastGap && p.smoothingFactor < 1 {
		gap = p.smoothingFactor*gap + (1-p.smoothingFactor)*p.smoothedGap
	}
	p.smoothedGap = gap
	p.hasLastGap = true
	p.lastValidGap = gap
	p.consecutiveMisses = 0

	return Sample{Gap: gap, Valid: true, Confidence: best.Confidence, At: at}, best
}

// Miss records a frame with no usable detection.
func (p *Perception) Miss(at time.Time) Sample {
	p.consecutiveMisses++
	return Sample{At: at}
}

// ConsecutiveMisses returns how many frames in a row had no usable face.
func (p *Perception) ConsecutiveMisses() int {
	return p.consecutiveMisses
}

// LastValidGap returns the most recent valid gap.
func (p *Perception) LastValidGap() float64 {
	return p.lastValidGap
}
