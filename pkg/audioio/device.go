package audioio

import (
	"errors"
	"io"
)

// Sentinel errors.
var (
	// ErrDeviceUnavailable is returned when the output device cannot be opened.
	ErrDeviceUnavailable = errors.New("audioio: device unavailable")

	// ErrClosed is returned when using a closed device or stream.
	ErrClosed = errors.New("audioio: closed")
)

// RenderProvider produces audio for an output stream.
//
// Render is called on the backend's audio goroutine. It fills out completely
// and reports whether the stream should continue; false means the stream is
// complete and out is ignored. Implementations must not block or panic.
type RenderProvider interface {
	Render(out []int16) bool
}

// RenderFunc adapts a function to RenderProvider.
type RenderFunc func(out []int16) bool

// Render calls f(out).
func (f RenderFunc) Render(out []int16) bool {
	return f(out)
}

// Stream is one open output stream.
type Stream interface {
	// Start begins pulling audio from the provider.
	Start() error

	// Close stops the stream. When Close returns the backend no longer
	// calls the provider. It is safe to call Close multiple times.
	io.Closer
}

// Device opens output streams.
type Device interface {
	// Open prepares a stream that pulls chunks of cfg.ChunkSize frames
	// from provider. Failures wrap ErrDeviceUnavailable.
	Open(cfg Config, provider RenderProvider) (Stream, error)

	// Name returns the backend name (e.g., "oto", "mock").
	Name() string

	// Close releases all resources.
	// After Close, the device cannot open new streams.
	io.Closer
}

// DeviceStats contains statistics about a device.
type DeviceStats struct {
	// StreamsOpened is the number of streams opened so far.
	StreamsOpened int64 `json:"streams_opened"`

	// ChunksPulled is the total number of chunks pulled from providers.
	ChunksPulled int64 `json:"chunks_pulled"`

	// Backend is the name of the audio backend.
	Backend string `json:"backend"`
}

// DeviceWithStats extends Device with statistics.
type DeviceWithStats interface {
	Device
	Stats() DeviceStats
}
