// Package control runs the control loop: tracker samples in, calibrated
// control values out to the OSC dispatcher and the effect store.
//
// A Session is owned by the goroutine that calls Run. Other goroutines (the
// dashboard, the key reader) reach it through Submit, and read its state
// through Status.
package control

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/teslashibe/go-mouthfx/pkg/calibration"
	"github.com/teslashibe/go-mouthfx/pkg/dispatch"
	"github.com/teslashibe/go-mouthfx/pkg/effects"
	"github.com/teslashibe/go-mouthfx/pkg/engine"
	"github.com/teslashibe/go-mouthfx/pkg/tracking"
)

var (
	// ErrNoMeasurement is returned when a calibration capture is requested
	// while the tracker has no valid face.
	ErrNoMeasurement = errors.New("control: no valid measurement")

	// ErrNoPlayback is returned by TogglePlayback when audio is disabled.
	ErrNoPlayback = errors.New("control: playback disabled")

	// ErrStopped is returned by Submit after Run has returned.
	ErrStopped = errors.New("control: session stopped")

	// ErrUnknownCommand is returned for an unrecognised Op.
	ErrUnknownCommand = errors.New("control: unknown command")
)

// Playback is the audio side of a session.
type Playback interface {
	Toggle() error
	IsPlaying() bool
	Stats() engine.Stats
}

// Options configures a Session. Dispatcher and Playback may be nil.
type Options struct {
	Calibrator *calibration.Calibrator
	Dispatcher *dispatch.Dispatcher
	Store      *effects.Store
	Playback   Playback
	OSCTarget  string

	// StatusInterval is how often Run republishes status and polls
	// playback counters between samples.
	StatusInterval time.Duration

	Logger *slog.Logger
}

// Session is one run of the control loop.
type Session struct {
	id         uuid.UUID
	calibrator *calibration.Calibrator
	dispatcher *dispatch.Dispatcher
	store      *effects.Store
	playback   Playback
	oscTarget  string
	interval   time.Duration
	logger     *slog.Logger
	started    time.Time

	// Control goroutine state.
	value        int
	hasValue     bool
	last         tracking.Sample
	lastGap      float64
	hasGap       bool
	trackerFPS   float64
	lastDropouts uint64
	quit         bool

	requests chan request
	done     chan struct{}
	status   atomic.Pointer[Status]
}

type request struct {
	cmd   Command
	reply chan result
}

type result struct {
	status Status
	err    error
}

// New creates a session. Calibrator and Store default to fresh instances.
func New(opts Options) *Session {
	if opts.Calibrator == nil {
		opts.Calibrator = calibration.New(1.0)
	}
	if opts.Store == nil {
		opts.Store = effects.NewStore(effects.NeutralParams(), effects.Reverb)
	}
	if opts.StatusInterval <= 0 {
		opts.StatusInterval = 200 * time.Millisecond
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	s := &Session{
		id:         uuid.New(),
		calibrator: opts.Calibrator,
		dispatcher: opts.Dispatcher,
		store:      opts.Store,
		playback:   opts.Playback,
		oscTarget:  opts.OSCTarget,
		interval:   opts.StatusInterval,
		started:    time.Now(),
		requests:   make(chan request),
		done:       make(chan struct{}),
	}
	s.logger = opts.Logger.With("component", "control", "session", s.id.String())
	s.publish()
	return s
}

// ID returns the session identifier.
func (s *Session) ID() uuid.UUID {
	return s.id
}

// Process handles one tracker sample. Invalid samples leave the control
// value unchanged. Valid samples are mapped through the calibrator, offered
// to the dispatcher and written to the active effect parameter.
func (s *Session) Process(sample tracking.Sample) (value int, updated bool) {
	s.last = sample
	if !sample.Valid {
		return s.value, false
	}

	s.lastGap = sample.Gap
	s.hasGap = true
	s.value = s.calibrator.Map(sample.Gap)
	s.hasValue = true

	if s.dispatcher != nil {
		s.dispatcher.TrySend(s.value, false)
	}
	s.store.Update(s.value)
	return s.value, true
}

// Value returns the current control value.
func (s *Session) Value() int {
	return s.value
}

// Run is the control goroutine. It starts src and processes its samples and
// submitted commands until ctx is done, src ends, or a Quit command runs.
func (s *Session) Run(ctx context.Context, src tracking.Source) error {
	defer close(s.done)

	if err := src.Start(ctx); err != nil {
		return err
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("control loop started", "osc", s.oscTarget, "effect", s.store.ActiveEffect().String())

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("control loop stopped", "reason", ctx.Err())
			return nil

		case sample, ok := <-src.Samples():
			if !ok {
				s.logger.Info("tracker stopped")
				return nil
			}
			s.trackerFPS = src.FPS()
			s.Process(sample)
			s.publish()

		case req := <-s.requests:
			st, err := s.Do(req.cmd)
			req.reply <- result{status: st, err: err}
			if s.quit {
				s.logger.Info("quit requested")
				return nil
			}

		case <-ticker.C:
			s.trackerFPS = src.FPS()
			s.pollPlayback()
			s.publish()
		}
	}
}

// Submit runs cmd on the control goroutine and waits for its result.
func (s *Session) Submit(ctx context.Context, cmd Command) (Status, error) {
	req := request{cmd: cmd, reply: make(chan result, 1)}

	select {
	case s.requests <- req:
	case <-s.done:
		return Status{}, ErrStopped
	case <-ctx.Done():
		return Status{}, ctx.Err()
	}

	select {
	case r := <-req.reply:
		return r.status, r.err
	case <-ctx.Done():
		return Status{}, ctx.Err()
	}
}

// Done is closed when Run returns.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// pollPlayback logs dropouts counted by the audio side since the last poll.
func (s *Session) pollPlayback() {
	if s.playback == nil {
		return
	}
	st := s.playback.Stats()
	if st.Dropouts > s.lastDropouts {
		s.logger.Warn("audio dropouts", "new", st.Dropouts-s.lastDropouts, "total", st.Dropouts)
	}
	s.lastDropouts = st.Dropouts
}
