//go:build !headless

package audioio

import (
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/ebitengine/oto/v3"
)

// oto allows one context per process, fixed at its first sample rate.
var (
	otoOnce sync.Once
	otoCtx  *oto.Context
	otoErr  error
	otoRate int
)

func sharedOtoContext(cfg Config) (*oto.Context, error) {
	otoOnce.Do(func() {
		otoRate = cfg.SampleRate
		op := &oto.NewContextOptions{
			SampleRate:   cfg.SampleRate,
			ChannelCount: cfg.Channels,
			Format:       oto.FormatSignedInt16LE,
			BufferSize:   2 * cfg.ChunkDuration(),
		}
		ctx, ready, err := oto.NewContext(op)
		if err != nil {
			otoErr = err
			return
		}
		<-ready
		otoCtx = ctx
	})
	if otoErr != nil {
		return nil, otoErr
	}
	if otoRate != cfg.SampleRate {
		return nil, fmt.Errorf("audio context already initialized at %d Hz (requested %d Hz)", otoRate, cfg.SampleRate)
	}
	return otoCtx, nil
}

// OtoDevice plays through the platform mixer via oto.
type OtoDevice struct {
	logger *slog.Logger

	mu      sync.Mutex
	closed  bool
	streams map[*otoStream]struct{}

	streamsOpened atomic.Int64
	chunksPulled  atomic.Int64
}

// NewOtoDevice creates an oto-backed device. The platform context is
// created lazily on the first Open.
func NewOtoDevice(logger *slog.Logger) *OtoDevice {
	if logger == nil {
		logger = slog.Default()
	}
	return &OtoDevice{
		logger:  logger.With("component", "audioio.oto"),
		streams: make(map[*otoStream]struct{}),
	}
}

// Open creates a player that pulls PCM16 chunks from provider.
func (d *OtoDevice) Open(cfg Config, provider RenderProvider) (Stream, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, fmt.Errorf("%w: %w", ErrDeviceUnavailable, ErrClosed)
	}

	ctx, err := sharedOtoContext(cfg)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}

	s := &otoStream{
		device:   d,
		provider: provider,
		chunk:    make([]int16, cfg.ChunkSize*cfg.Channels),
		buf:      make([]byte, cfg.ChunkBytes()),
	}
	s.player = ctx.NewPlayer(s)
	d.streams[s] = struct{}{}
	d.streamsOpened.Add(1)

	d.logger.Debug("stream opened",
		"sample_rate", cfg.SampleRate,
		"chunk_size", cfg.ChunkSize,
	)
	return s, nil
}

// Name returns "oto".
func (d *OtoDevice) Name() string {
	return string(BackendOto)
}

// Close closes every open stream.
func (d *OtoDevice) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	streams := make([]*otoStream, 0, len(d.streams))
	for s := range d.streams {
		streams = append(streams, s)
	}
	d.mu.Unlock()

	for _, s := range streams {
		_ = s.Close()
	}
	return nil
}

// Stats returns device statistics.
func (d *OtoDevice) Stats() DeviceStats {
	return DeviceStats{
		StreamsOpened: d.streamsOpened.Load(),
		ChunksPulled:  d.chunksPulled.Load(),
		Backend:       d.Name(),
	}
}

func (d *OtoDevice) forget(s *otoStream) {
	d.mu.Lock()
	delete(d.streams, s)
	d.mu.Unlock()
}

// otoStream adapts oto's byte-oriented reads to whole-chunk renders.
type otoStream struct {
	device   *OtoDevice
	provider RenderProvider
	player   *oto.Player

	// Owned by the oto read goroutine.
	chunk   []int16
	buf     []byte
	pending []byte
	done    bool

	closed    atomic.Bool
	closeOnce sync.Once
}

// Read fills p from rendered chunks. It returns io.EOF once the provider
// reports completion or the stream is closed.
func (s *otoStream) Read(p []byte) (int, error) {
	n := 0
	for n < len(p) {
		if len(s.pending) == 0 {
			if s.done || s.closed.Load() {
				break
			}
			if !s.provider.Render(s.chunk) {
				s.done = true
				break
			}
			s.device.chunksPulled.Add(1)
			PutSamples(s.buf, s.chunk)
			s.pending = s.buf
		}
		c := copy(p[n:], s.pending)
		s.pending = s.pending[c:]
		n += c
	}
	if n == 0 {
		return 0, io.EOF
	}
	return n, nil
}

func (s *otoStream) Start() error {
	if s.closed.Load() {
		return ErrClosed
	}
	s.player.Play()
	return nil
}

func (s *otoStream) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		s.player.Pause()
		err = s.player.Close()
		s.device.forget(s)
	})
	return err
}
