// Package effects holds the live effect parameters shared between the
// control loop and the audio callback.
//
// Every parameter is an independent atomic scalar. The control loop writes,
// the audio callback reads a Snapshot on each render without taking locks.
package effects

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"sync/atomic"
)

// Kind selects which parameter follows the control value.
type Kind int32

const (
	// Lowpass binds the control value to the filter cutoff.
	Lowpass Kind = iota
	// Distortion binds the control value to the waveshaper drive.
	Distortion
	// Reverb binds the control value to the reverb amount.
	Reverb
)

// Kinds lists every effect kind in key order (1, 2, 3).
var Kinds = []Kind{Reverb, Lowpass, Distortion}

// String returns the canonical effect name.
func (k Kind) String() string {
	switch k {
	case Lowpass:
		return "lowpass"
	case Distortion:
		return "distortion"
	case Reverb:
		return "reverb"
	default:
		return fmt.Sprintf("kind(%d)", int32(k))
	}
}

// ErrUnknownKind is returned by ParseKind for unrecognised names.
var ErrUnknownKind = errors.New("effects: unknown effect")

// ParseKind accepts "lowpass" (or "filter"), "distortion" and "reverb".
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "lowpass", "filter":
		return Lowpass, nil
	case "distortion":
		return Distortion, nil
	case "reverb":
		return Reverb, nil
	default:
		return 0, fmt.Errorf("%w %q (want lowpass|distortion|reverb)", ErrUnknownKind, s)
	}
}

// Params is a point-in-time copy of all parameters, each in [0,1].
type Params struct {
	Cutoff       float64 `json:"cutoff"`
	Drive        float64 `json:"drive"`
	ReverbAmount float64 `json:"reverb_amount"`
}

// NeutralParams leaves the signal uncoloured: filter open, no drive,
// no reverb. The cutoff starts at 1.0 (bypass) rather than a half-closed
// 0.5 so an untouched filter passes the clip unchanged until the mouth
// moves it.
func NeutralParams() Params {
	return Params{
		Cutoff:       1.0,
		Drive:        0,
		ReverbAmount: 0,
	}
}

// Store holds the live parameters. The zero value is not ready; use NewStore.
type Store struct {
	active atomic.Int32
	cutoff atomic.Uint64
	drive  atomic.Uint64
	reverb atomic.Uint64
}

// NewStore creates a store with the given initial parameters and active kind.
func NewStore(initial Params, active Kind) *Store {
	s := &Store{}
	s.active.Store(int32(active))
	s.Set(Lowpass, initial.Cutoff)
	s.Set(Distortion, initial.Drive)
	s.Set(Reverb, initial.ReverbAmount)
	return s
}

// SetActiveEffect selects the parameter that subsequent updates write.
func (s *Store) SetActiveEffect(k Kind) {
	s.active.Store(int32(k))
}

// ActiveEffect returns the parameter currently bound to the control value.
func (s *Store) ActiveEffect() Kind {
	return Kind(s.active.Load())
}

// Update writes controlValue/127, clamped to [0,1], into the active
// parameter only. It returns the written value.
func (s *Store) Update(controlValue int) float64 {
	v := Clamp01(float64(controlValue) / 127)
	s.Set(s.ActiveEffect(), v)
	return v
}

// Set writes one parameter directly, clamped to [0,1].
func (s *Store) Set(k Kind, v float64) {
	bits := math.Float64bits(Clamp01(v))
	switch k {
	case Lowpass:
		s.cutoff.Store(bits)
	case Distortion:
		s.drive.Store(bits)
	case Reverb:
		s.reverb.Store(bits)
	}
}

// Get reads one parameter.
func (s *Store) Get(k Kind) float64 {
	switch k {
	case Lowpass:
		return math.Float64frombits(s.cutoff.Load())
	case Distortion:
		return math.Float64frombits(s.drive.Load())
	case Reverb:
		return math.Float64frombits(s.reverb.Load())
	default:
		return 0
	}
}

// Snapshot returns the current parameters. Fields are loaded one by one, so
// a concurrent update may be visible in some fields and not others.
func (s *Store) Snapshot() Params {
	return Params{
		Cutoff:       math.Float64frombits(s.cutoff.Load()),
		Drive:        math.Float64frombits(s.drive.Load()),
		ReverbAmount: math.Float64frombits(s.reverb.Load()),
	}
}

// Clamp01 limits v to [0,1]; NaN becomes 0.
func Clamp01(v float64) float64 {
	switch {
	case math.IsNaN(v), v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
