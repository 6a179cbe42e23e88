// Package engine loops a decoded clip through the effect chain on the audio
// device's own goroutine.
//
// Control goroutines call Play, Stop and Release. The device calls Render.
// The two sides share only atomics: the live effect parameters, state flags
// and counters. The playback cursor belongs to Render alone; Play asks for a
// rewind through a flag that the next Render consumes.
package engine

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/teslashibe/go-mouthfx/pkg/audioio"
	"github.com/teslashibe/go-mouthfx/pkg/dsp"
	"github.com/teslashibe/go-mouthfx/pkg/effects"
)

var (
	// ErrReleased is returned by Play after Release.
	ErrReleased = errors.New("engine: released")

	// ErrEmptySource is returned when the clip has no samples.
	ErrEmptySource = errors.New("engine: empty source")
)

// Tap receives each rendered chunk. Offer is called on the audio goroutine
// and must copy what it keeps and return without blocking.
type Tap interface {
	Offer(chunk []int16)
}

// Stats is a point-in-time view of the engine counters.
type Stats struct {
	Playing    bool    `json:"playing"`
	Chunks     uint64  `json:"chunks"`
	Dropouts   uint64  `json:"dropouts"`
	Level      float64 `json:"level"`
	Position   float64 `json:"position_seconds"`
	Duration   float64 `json:"duration_seconds"`
	SampleRate int     `json:"sample_rate"`
	ChunkSize  int     `json:"chunk_size"`
}

// Engine plays one looping source through a dsp.Chain.
type Engine struct {
	cfg    audioio.Config
	device audioio.Device
	store  *effects.Store
	logger *slog.Logger

	samples []float64

	// Owned by Render.
	cursor  int
	chain   *dsp.Chain
	scratch []float64

	playing  atomic.Bool
	stopping atomic.Bool
	rewind   atomic.Bool
	inFlight atomic.Int32
	tap      atomic.Pointer[tapBox]

	chunks    atomic.Uint64
	dropouts  atomic.Uint64
	levelBits atomic.Uint64
	position  atomic.Int64

	mu       sync.Mutex
	stream   audioio.Stream
	released bool
}

type tapBox struct{ t Tap }

// New creates a stopped engine. A clip at a different rate than cfg is
// resampled once here.
func New(device audioio.Device, clip audioio.Clip, store *effects.Store, cfg audioio.Config, logger *slog.Logger) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("engine: %w", err)
	}
	if len(clip.Samples) == 0 {
		return nil, ErrEmptySource
	}
	if logger == nil {
		logger = slog.Default()
	}

	samples := clip.Samples
	if clip.SampleRate > 0 && clip.SampleRate != cfg.SampleRate {
		samples = audioio.Resample(samples, clip.SampleRate, cfg.SampleRate)
		logger.Info("resampled source",
			"from_hz", clip.SampleRate,
			"to_hz", cfg.SampleRate,
			"samples", len(samples),
		)
		if len(samples) == 0 {
			return nil, ErrEmptySource
		}
	}

	return &Engine{
		cfg:     cfg,
		device:  device,
		store:   store,
		logger:  logger.With("component", "engine"),
		samples: samples,
		chain:   dsp.NewChain(cfg.SampleRate),
		scratch: make([]float64, cfg.ChunkSize*cfg.Channels),
	}, nil
}

// Play rewinds to the start and opens a stream on the device. It is a no-op
// while playing. Open failures wrap audioio.ErrDeviceUnavailable.
func (e *Engine) Play() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.released {
		return ErrReleased
	}
	if e.stream != nil {
		return nil
	}

	e.rewind.Store(true)
	e.stopping.Store(false)
	e.playing.Store(true)

	stream, err := e.device.Open(e.cfg, e)
	if err != nil {
		e.playing.Store(false)
		return err
	}
	if err := stream.Start(); err != nil {
		e.playing.Store(false)
		_ = stream.Close()
		e.join()
		return fmt.Errorf("%w: start: %v", audioio.ErrDeviceUnavailable, err)
	}
	e.stream = stream

	e.logger.Info("playback started",
		"device", e.device.Name(),
		"sample_rate", e.cfg.SampleRate,
		"chunk_size", e.cfg.ChunkSize,
	)
	return nil
}

// Stop signals Render to complete, closes the stream and waits for any
// in-flight Render to return. It is a no-op when not playing.
func (e *Engine) Stop() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stopLocked()
}

func (e *Engine) stopLocked() error {
	if e.stream == nil {
		return nil
	}

	e.stopping.Store(true)
	e.playing.Store(false)
	err := e.stream.Close()
	e.stream = nil
	e.join()

	e.logger.Info("playback stopped", "chunks", e.chunks.Load(), "dropouts", e.dropouts.Load())
	return err
}

// join waits until no Render call is running.
func (e *Engine) join() {
	for e.inFlight.Load() != 0 {
		runtime.Gosched()
	}
}

// Release stops playback and closes the device. The engine cannot be played
// again. Release is idempotent.
func (e *Engine) Release() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.released {
		return nil
	}
	e.released = true
	err := e.stopLocked()
	if cerr := e.device.Close(); err == nil {
		err = cerr
	}
	return err
}

// Toggle stops when playing and plays otherwise.
func (e *Engine) Toggle() error {
	if e.IsPlaying() {
		return e.Stop()
	}
	return e.Play()
}

// IsPlaying reports whether a stream is open and producing audio.
func (e *Engine) IsPlaying() bool {
	return e.playing.Load()
}

// SetTap installs t to receive rendered chunks. nil removes the tap.
func (e *Engine) SetTap(t Tap) {
	if t == nil {
		e.tap.Store(nil)
		return
	}
	e.tap.Store(&tapBox{t: t})
}

// Render fills out with the next chunk. It implements audioio.RenderProvider.
//
// After Stop it reports completion. While not playing it writes silence and
// leaves the cursor alone. A chunk that fails in the chain, or panics, is
// replaced by silence and counted as a dropout.
func (e *Engine) Render(out []int16) (ok bool) {
	e.inFlight.Add(1)
	defer e.inFlight.Add(-1)

	if e.stopping.Load() {
		return false
	}
	if !e.playing.Load() {
		audioio.Silence(out)
		return true
	}

	defer func() {
		if r := recover(); r != nil {
			audioio.Silence(out)
			e.dropouts.Add(1)
			e.chain.Reset()
			ok = true
		}
	}()

	if e.rewind.CompareAndSwap(true, false) {
		e.cursor = 0
		e.chain.Reset()
	}

	n := min(len(out), len(e.scratch))
	buf := e.scratch[:n]
	e.fill(buf)

	if err := e.chain.Process(buf, e.store.Snapshot()); err != nil {
		audioio.Silence(out)
		e.dropouts.Add(1)
	} else {
		audioio.FloatToPCM16(out, buf)
		audioio.Silence(out[n:])
	}

	e.chunks.Add(1)
	e.levelBits.Store(math.Float64bits(audioio.CalculateRMS(out)))
	e.position.Store(int64(e.cursor))

	if box := e.tap.Load(); box != nil {
		box.t.Offer(out)
	}
	return true
}

// fill copies the next len(buf) source samples into buf. A chunk that runs
// past the end is zero-padded and the cursor wraps to the start.
func (e *Engine) fill(buf []float64) {
	copied := copy(buf, e.samples[e.cursor:])
	for i := copied; i < len(buf); i++ {
		buf[i] = 0
	}
	e.cursor += copied
	if e.cursor >= len(e.samples) {
		e.cursor = 0
	}
}

// Stats returns the engine counters.
func (e *Engine) Stats() Stats {
	rate := float64(e.cfg.SampleRate)
	return Stats{
		Playing:    e.playing.Load(),
		Chunks:     e.chunks.Load(),
		Dropouts:   e.dropouts.Load(),
		Level:      math.Float64frombits(e.levelBits.Load()),
		Position:   float64(e.position.Load()) / rate,
		Duration:   float64(len(e.samples)) / rate,
		SampleRate: e.cfg.SampleRate,
		ChunkSize:  e.cfg.ChunkSize,
	}
}

// Config returns the output configuration.
func (e *Engine) Config() audioio.Config {
	return e.cfg
}
