package calibration

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func calibrate(t *testing.T, c *Calibrator, closed, open float64) {
	t.Helper()
	c.Begin()
	require.NoError(t, c.CaptureClosed(closed))
	require.NoError(t, c.CaptureOpen(open))
}

func TestMap_DefaultRange(t *testing.T) {
	c := New(1.0)

	tests := []struct {
		gap  float64
		want int
	}{
		{10, 0},
		{50, 127},
		{30, 64}, // 63.5 rounds half away from zero
		{0, 0},
		{-5, 0},
		{1000, 127},
	}

	for _, tc := range tests {
		assert.Equal(t, tc.want, c.Map(tc.gap), "gap %v", tc.gap)
	}
}

func TestMap_RoundTrip(t *testing.T) {
	ranges := []Range{
		{Closed: 2, Open: 8},
		{Closed: 10, Open: 11},
		{Closed: 0.1, Open: 300},
		{Closed: 33.3, Open: 47.9},
	}

	for _, sensitivity := range []float64{0.5, 1, 2.5} {
		for _, r := range ranges {
			c := New(sensitivity)
			calibrate(t, c, r.Closed, r.Open)

			assert.InDelta(t, 0, c.Map(r.Closed), 1)
			assert.InDelta(t, 127, c.Map(r.Open), 1)

			prev := -1
			for i := 0; i <= 200; i++ {
				gap := r.Closed + (r.Open-r.Closed)*float64(i)/200
				v := c.Map(gap)
				assert.GreaterOrEqual(t, v, prev, "map must be monotonic at gap %v", gap)
				prev = v
			}
		}
	}
}

func TestCapture_StoresScaledGaps(t *testing.T) {
	c := New(2)
	calibrate(t, c, 10, 30)

	r, ok := c.Range()
	require.True(t, ok)
	assert.Equal(t, Range{Closed: 20, Open: 60}, r)
	assert.Equal(t, 2.0, c.Sensitivity())

	assert.Equal(t, 0, c.Map(10), "closed endpoint")
	assert.Equal(t, 127, c.Map(30), "open endpoint")
	assert.Equal(t, 64, c.Map(20))
}

func TestMap_Clamping(t *testing.T) {
	c := New(1)
	calibrate(t, c, 5, 25)

	for _, gap := range []float64{-1e300, -10, 0, 4.99} {
		assert.Equal(t, 0, c.Map(gap))
	}
	for _, gap := range []float64{25.01, 100, 1e300, math.Inf(1)} {
		assert.Equal(t, 127, c.Map(gap))
	}
	assert.Equal(t, 0, c.Map(math.Inf(-1)))
	assert.Equal(t, 0, c.Map(math.NaN()))
}

func TestMap_NonPositiveSensitivity(t *testing.T) {
	for _, s := range []float64{0, -1, -1e9} {
		c := New(s)
		for _, gap := range []float64{0, 10, 50, 1e12} {
			v := c.Map(gap)
			assert.GreaterOrEqual(t, v, 0)
			assert.LessOrEqual(t, v, 127)
		}
	}
}

func TestDegenerateCalibration_Rejected(t *testing.T) {
	c := New(1)
	c.Begin()
	require.NoError(t, c.CaptureClosed(5.0))

	err := c.CaptureOpen(5.0)
	require.ErrorIs(t, err, ErrDegenerateCalibration)

	r, calibrated := c.Range()
	assert.False(t, calibrated)
	assert.Equal(t, DefaultRange, r)
	assert.Equal(t, Idle, c.State())

	// Matches the default-range formula.
	assert.Equal(t, Interpolate(22, DefaultRange), c.Map(22))
}

func TestDegenerateCalibration_KeepsPriorRange(t *testing.T) {
	c := New(1)
	calibrate(t, c, 4, 20)

	c.Begin()
	require.NoError(t, c.CaptureClosed(7))
	require.ErrorIs(t, c.CaptureOpen(7+Epsilon/2), ErrDegenerateCalibration)

	r, calibrated := c.Range()
	assert.True(t, calibrated)
	assert.Equal(t, Range{Closed: 4, Open: 20}, r)
}

func TestOutOfOrderCapture(t *testing.T) {
	c := New(1)
	calibrate(t, c, 4, 20)

	err := c.CaptureOpen(30)
	assert.True(t, errors.Is(err, ErrInvalidState))

	err = c.CaptureClosed(1)
	assert.ErrorIs(t, err, ErrInvalidState)

	c.Begin()
	assert.ErrorIs(t, c.CaptureOpen(30), ErrInvalidState)
	assert.Equal(t, AwaitingClosed, c.State())

	r, _ := c.Range()
	assert.Equal(t, Range{Closed: 4, Open: 20}, r, "committed range must not change")
}

func TestBegin_DoesNotTouchCommittedRange(t *testing.T) {
	c := New(1)
	calibrate(t, c, 4, 20)

	c.Begin()
	require.NoError(t, c.CaptureClosed(100))

	assert.Equal(t, 0, c.Map(4))
	assert.Equal(t, 127, c.Map(20))
}

func TestStep_WalksProcedure(t *testing.T) {
	c := New(2)

	st, err := c.Step(99)
	require.NoError(t, err)
	assert.Equal(t, AwaitingClosed, st)

	st, err = c.Step(5)
	require.NoError(t, err)
	assert.Equal(t, AwaitingOpen, st)

	st, err = c.Step(15)
	require.NoError(t, err)
	assert.Equal(t, Idle, st)

	r, calibrated := c.Range()
	assert.True(t, calibrated)
	assert.Equal(t, Range{Closed: 10, Open: 30}, r)
}

func TestReset_Idempotent(t *testing.T) {
	c := New(1)
	calibrate(t, c, 1, 2)

	c.Reset()
	c.Reset()

	r, calibrated := c.Range()
	assert.False(t, calibrated)
	assert.Equal(t, DefaultRange, r)
	assert.Equal(t, Idle, c.State())
}

func TestReversedRange_Inverts(t *testing.T) {
	c := New(1)
	calibrate(t, c, 40, 10)

	assert.Equal(t, 0, c.Map(40))
	assert.Equal(t, 127, c.Map(10))
	assert.Equal(t, 127, c.Map(0))
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "idle", Idle.String())
	assert.Equal(t, "awaiting_closed", AwaitingClosed.String())
	assert.Equal(t, "awaiting_open", AwaitingOpen.String())
	assert.Equal(t, "state(9)", State(9).String())
}
