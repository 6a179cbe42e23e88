// Package calibration maps a raw landmark gap into the 0-127 control range.
//
// A Calibrator holds an optional two-point range (mouth closed, mouth open)
// captured through an explicit two-step procedure. Until a range is committed,
// or after Reset, the fixed DefaultRange is used.
package calibration

import (
	"errors"
	"fmt"
	"math"
)

// MaxValue is the upper bound of the control range.
const MaxValue = 127

// Epsilon is the minimum distance between the closed and open endpoints
// for a calibration to be accepted.
const Epsilon = 1e-6

// Sentinel errors.
var (
	// ErrInvalidState is returned when a capture is requested out of order.
	ErrInvalidState = errors.New("calibration: invalid state")

	// ErrDegenerateCalibration is returned when open and closed coincide.
	ErrDegenerateCalibration = errors.New("calibration: open and closed gaps are equal")
)

// State is the position in the two-step capture procedure.
type State int

const (
	// Idle means no capture is in progress.
	Idle State = iota
	// AwaitingClosed waits for the mouth-closed sample.
	AwaitingClosed
	// AwaitingOpen waits for the mouth-open sample.
	AwaitingOpen
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case AwaitingClosed:
		return "awaiting_closed"
	case AwaitingOpen:
		return "awaiting_open"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Range is a pair of reference gaps. Gaps are stored after sensitivity
// scaling so they compare directly against scaled measurements.
type Range struct {
	Closed float64 `json:"closed"`
	Open   float64 `json:"open"`
}

// DefaultRange is used when no calibration is committed.
var DefaultRange = Range{Closed: 10, Open: 50}

// Calibrator converts raw gaps to control values. It is not safe for
// concurrent use; it belongs to the control loop.
type Calibrator struct {
	sensitivity float64

	state         State
	pendingClosed float64

	rng        Range
	calibrated bool
}

// New creates a Calibrator using the default range.
// Any sensitivity is accepted, including zero and negative values.
func New(sensitivity float64) *Calibrator {
	return &Calibrator{
		sensitivity: sensitivity,
	}
}

// Sensitivity returns the multiplier applied to every raw gap. It is fixed
// for the Calibrator's lifetime because committed ranges hold scaled gaps.
func (c *Calibrator) Sensitivity() float64 {
	return c.sensitivity
}

// State returns the current capture state.
func (c *Calibrator) State() State {
	return c.state
}

// Range returns the active range and whether it came from a calibration.
func (c *Calibrator) Range() (Range, bool) {
	if c.calibrated {
		return c.rng, true
	}
	return DefaultRange, false
}

// Begin starts a new capture. The committed range is untouched until
// CaptureOpen succeeds. Calling Begin mid-capture restarts it.
func (c *Calibrator) Begin() {
	c.state = AwaitingClosed
	c.pendingClosed = 0
}

// CaptureClosed records the mouth-closed gap, scaled by sensitivity.
func (c *Calibrator) CaptureClosed(rawGap float64) error {
	if c.state != AwaitingClosed {
		return fmt.Errorf("%w: capture closed while %s", ErrInvalidState, c.state)
	}
	c.pendingClosed = rawGap * c.sensitivity
	c.state = AwaitingOpen
	return nil
}

// CaptureOpen records the mouth-open gap and commits the range. A
// degenerate pair is rejected, the previous range stays active and the
// capture returns to Idle.
func (c *Calibrator) CaptureOpen(rawGap float64) error {
	if c.state != AwaitingOpen {
		return fmt.Errorf("%w: capture open while %s", ErrInvalidState, c.state)
	}
	c.state = Idle

	open := rawGap * c.sensitivity
	if math.IsNaN(open) || math.Abs(open-c.pendingClosed) < Epsilon {
		return fmt.Errorf("%w: closed=%.3f open=%.3f", ErrDegenerateCalibration, c.pendingClosed, open)
	}

	c.rng = Range{Closed: c.pendingClosed, Open: open}
	c.calibrated = true
	return nil
}

// Step advances the procedure by one command: Idle begins, AwaitingClosed
// captures closed, AwaitingOpen captures open and commits. It returns the
// state after the step.
func (c *Calibrator) Step(rawGap float64) (State, error) {
	var err error
	switch c.state {
	case Idle:
		c.Begin()
	case AwaitingClosed:
		err = c.CaptureClosed(rawGap)
	case AwaitingOpen:
		err = c.CaptureOpen(rawGap)
	}
	return c.state, err
}

// Cancel abandons an in-progress capture.
func (c *Calibrator) Cancel() {
	c.state = Idle
}

// Reset clears the committed range and any capture in progress.
func (c *Calibrator) Reset() {
	c.state = Idle
	c.pendingClosed = 0
	c.rng = Range{}
	c.calibrated = false
}

// Map converts a raw gap into a control value in [0, MaxValue].
func (c *Calibrator) Map(rawGap float64) int {
	r, _ := c.Range()
	return Interpolate(rawGap*c.sensitivity, r)
}

// Interpolate linearly maps an already scaled gap through r, clamps and
// rounds. A degenerate range maps through DefaultRange instead.
func Interpolate(gap float64, r Range) int {
	span := r.Open - r.Closed
	if math.Abs(span) < Epsilon {
		r = DefaultRange
		span = r.Open - r.Closed
	}

	t := (gap - r.Closed) / span
	switch {
	case math.IsNaN(t):
		t = 0
	case t < 0:
		t = 0
	case t > 1:
		t = 1
	}
	return int(math.Round(t * MaxValue))
}
