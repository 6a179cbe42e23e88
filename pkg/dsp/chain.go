// Package dsp implements the effect chain applied to every audio chunk:
// lowpass, distortion, reverb, then peak normalization.
//
// All stages work in place on a caller-owned buffer and never allocate, so
// the chain can run inside an audio device callback.
package dsp

import (
	"errors"
	"math"

	"github.com/teslashibe/go-mouthfx/pkg/effects"
)

// ErrNonFinite is returned when a chunk contains NaN or Inf after processing.
var ErrNonFinite = errors.New("dsp: non-finite sample")

// Chain is the fixed lowpass → distortion → reverb → normalize pipeline.
// It keeps the lowpass state between chunks and is not safe for concurrent
// use; one chain belongs to one audio stream.
type Chain struct {
	sampleRate int
	lowpass    Lowpass
}

// NewChain creates a chain for audio at sampleRate Hz.
func NewChain(sampleRate int) *Chain {
	return &Chain{sampleRate: sampleRate}
}

// SampleRate returns the rate used to size the reverb delay.
func (c *Chain) SampleRate() int {
	return c.sampleRate
}

// Process runs every stage over buf in place using p. On ErrNonFinite the
// filter state is cleared and buf content is unspecified.
func (c *Chain) Process(buf []float64, p effects.Params) error {
	c.lowpass.Process(buf, p.Cutoff)
	Distort(buf, p.Drive)
	Reverb(buf, p.ReverbAmount, c.sampleRate)
	if err := Normalize(buf); err != nil {
		c.lowpass.Reset()
		return err
	}
	return nil
}

// Reset clears the filter history.
func (c *Chain) Reset() {
	c.lowpass.Reset()
}

// Lowpass is a single-pole IIR filter, y[n] = (1-c)x[n] + c*y[n-1] with
// c = 0.1 + 0.8*cutoff. Its history carries over between calls.
type Lowpass struct {
	prev float64
}

// Coefficient returns the feedback coefficient for a cutoff in [0,1].
func Coefficient(cutoff float64) float64 {
	return 0.1 + 0.8*cutoff
}

// Process filters buf in place. cutoff >= 1 leaves buf untouched and only
// tracks the last sample so a later re-engage starts from the signal.
func (f *Lowpass) Process(buf []float64, cutoff float64) {
	if len(buf) == 0 {
		return
	}
	if cutoff >= 1 {
		f.prev = buf[len(buf)-1]
		return
	}

	c := Coefficient(cutoff)
	g := 1 - c
	y := f.prev
	for i, x := range buf {
		y = g*x + c*y
		buf[i] = y
	}
	f.prev = y
}

// Reset clears the filter history.
func (f *Lowpass) Reset() {
	f.prev = 0
}

// Distort applies tanh waveshaping, y = tanh(x*g)/g with g = 1 + 4*drive.
// drive <= 0 is a no-op.
func Distort(buf []float64, drive float64) {
	if drive <= 0 {
		return
	}
	gain := 1 + 4*drive
	for i, x := range buf {
		buf[i] = math.Tanh(x*gain) / gain
	}
}

// ReverbDelay returns the tap delay in samples for an amount in [0,1].
func ReverbDelay(amount float64, sampleRate int) int {
	return int(float64(sampleRate) * 0.1 * amount)
}

// Reverb adds one delayed, decayed copy of the chunk to itself,
// y[n] = x[n] + 0.6*amount*x[n-d]. The delay line only sees the current
// chunk. amount <= 0 is a no-op.
func Reverb(buf []float64, amount float64, sampleRate int) {
	if amount <= 0 {
		return
	}
	d := ReverbDelay(amount, sampleRate)
	if d <= 0 || d >= len(buf) {
		return
	}
	decay := 0.6 * amount
	// Walk backwards so buf[n-d] still holds the dry sample.
	for n := len(buf) - 1; n >= d; n-- {
		buf[n] += decay * buf[n-d]
	}
}

// Normalize divides buf by its peak absolute value when the peak is above
// zero. It fails with ErrNonFinite if any sample is NaN or Inf.
func Normalize(buf []float64) error {
	peak := 0.0
	for _, x := range buf {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return ErrNonFinite
		}
		if a := math.Abs(x); a > peak {
			peak = a
		}
	}
	if peak == 0 {
		return nil
	}
	for i := range buf {
		buf[i] /= peak
	}
	return nil
}

// Peak returns the largest absolute sample value.
func Peak(buf []float64) float64 {
	peak := 0.0
	for _, x := range buf {
		if a := math.Abs(x); a > peak {
			peak = a
		}
	}
	return peak
}
