package audioio

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// MockDevice is a mock output device for testing.
// Streams do nothing until pulled, unless the device is clocked.
type MockDevice struct {
	logger *slog.Logger

	openErr error
	clocked bool

	mu      sync.Mutex
	closed  bool
	streams []*MockStream

	streamsOpened atomic.Int64
	chunksPulled  atomic.Int64
}

// MockDeviceOption configures a MockDevice.
type MockDeviceOption func(*MockDevice)

// WithOpenError makes every Open fail with err wrapped in ErrDeviceUnavailable.
func WithOpenError(err error) MockDeviceOption {
	return func(m *MockDevice) {
		m.openErr = err
	}
}

// WithClock pulls one chunk per chunk duration from a started stream,
// mimicking a real device.
func WithClock() MockDeviceOption {
	return func(m *MockDevice) {
		m.clocked = true
	}
}

// NewMockDevice creates a new mock output device.
func NewMockDevice(logger *slog.Logger, opts ...MockDeviceOption) *MockDevice {
	if logger == nil {
		logger = slog.Default()
	}
	m := &MockDevice{logger: logger.With("component", "audioio.mock")}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Open creates a stream bound to provider.
func (m *MockDevice) Open(cfg Config, provider RenderProvider) (Stream, error) {
	if m.openErr != nil {
		return nil, fmt.Errorf("%w: %v", ErrDeviceUnavailable, m.openErr)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, fmt.Errorf("%w: %w", ErrDeviceUnavailable, ErrClosed)
	}

	s := &MockStream{
		device:   m,
		cfg:      cfg,
		provider: provider,
		chunk:    make([]int16, cfg.ChunkSize*cfg.Channels),
		stopCh:   make(chan struct{}),
	}
	m.streams = append(m.streams, s)
	m.streamsOpened.Add(1)
	return s, nil
}

// LastStream returns the most recently opened stream, or nil.
func (m *MockDevice) LastStream() *MockStream {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.streams) == 0 {
		return nil
	}
	return m.streams[len(m.streams)-1]
}

// Name returns "mock".
func (m *MockDevice) Name() string {
	return string(BackendMock)
}

// Close closes all streams.
func (m *MockDevice) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	streams := append([]*MockStream(nil), m.streams...)
	m.mu.Unlock()

	for _, s := range streams {
		_ = s.Close()
	}
	return nil
}

// Stats returns device statistics.
func (m *MockDevice) Stats() DeviceStats {
	return DeviceStats{
		StreamsOpened: m.streamsOpened.Load(),
		ChunksPulled:  m.chunksPulled.Load(),
		Backend:       m.Name(),
	}
}

// Ensure MockDevice implements DeviceWithStats.
var _ DeviceWithStats = (*MockDevice)(nil)

// MockStream is a stream opened on a MockDevice.
type MockStream struct {
	device   *MockDevice
	cfg      Config
	provider RenderProvider

	mu       sync.Mutex
	chunk    []int16
	started  bool
	closed   bool
	complete bool
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// Start marks the stream running and, on a clocked device, starts pulling.
func (s *MockStream) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	if s.started {
		return nil
	}
	s.started = true

	if s.device.clocked {
		s.wg.Add(1)
		go s.clockLoop()
	}
	return nil
}

func (s *MockStream) clockLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.ChunkDuration())
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			if _, done := s.Pull(1); done {
				return
			}
		}
	}
}

// Pull renders up to n chunks synchronously and returns copies of them.
// done reports whether the stream is closed or its provider has completed.
// Pull does nothing before Start.
func (s *MockStream) Pull(n int) (chunks [][]int16, done bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || s.complete {
		return nil, true
	}
	if !s.started {
		return nil, false
	}

	for i := 0; i < n; i++ {
		if !s.provider.Render(s.chunk) {
			s.complete = true
			return chunks, true
		}
		s.device.chunksPulled.Add(1)
		chunks = append(chunks, append([]int16(nil), s.chunk...))
	}
	return chunks, false
}

// Started reports whether Start has been called.
func (s *MockStream) Started() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started
}

// Closed reports whether Close has been called.
func (s *MockStream) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Close stops the stream. It waits for an in-flight Pull to return.
func (s *MockStream) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	close(s.stopCh)
	s.mu.Unlock()

	s.wg.Wait()
	return nil
}
