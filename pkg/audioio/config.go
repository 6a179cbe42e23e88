// Package audioio provides the audio output boundary of the effects engine.
//
// This package supports multiple backends:
//   - oto - Production output through the platform mixer
//   - Mock - CI/Testing without hardware, pulled manually or on a clock
//
// Devices pull audio: the backend calls a RenderProvider once per chunk on
// its own goroutine, and the provider fills a fixed-size int16 buffer.
package audioio

import (
	"fmt"
	"time"
)

// Backend represents the audio backend type.
type Backend string

const (
	// BackendAuto selects oto, the only hardware backend.
	BackendAuto Backend = "auto"
	// BackendOto uses github.com/ebitengine/oto/v3.
	BackendOto Backend = "oto"
	// BackendMock uses a mock implementation for testing.
	BackendMock Backend = "mock"
)

// Defaults for the output stream.
const (
	DefaultSampleRate = 44100
	DefaultChunkSize  = 1024
)

// Config holds audio output configuration.
type Config struct {
	// Backend specifies which audio backend to use.
	// Default: "auto"
	Backend Backend `yaml:"backend" json:"backend"`

	// SampleRate is the audio sample rate in Hz.
	// Default: 44100
	SampleRate int `yaml:"sample_rate" json:"sample_rate"`

	// ChunkSize is the number of frames rendered per callback.
	// Default: 1024
	ChunkSize int `yaml:"chunk_size" json:"chunk_size"`

	// Channels is the number of audio channels. Only mono is supported.
	// Default: 1
	Channels int `yaml:"channels" json:"channels"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Backend:    BackendAuto,
		SampleRate: DefaultSampleRate,
		ChunkSize:  DefaultChunkSize,
		Channels:   1,
	}
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	switch c.Backend {
	case "", BackendAuto, BackendOto, BackendMock:
	default:
		return fmt.Errorf("unsupported backend: %s", c.Backend)
	}
	if c.SampleRate <= 0 {
		return fmt.Errorf("sample_rate must be positive, got %d", c.SampleRate)
	}
	if c.ChunkSize <= 0 {
		return fmt.Errorf("chunk_size must be positive, got %d", c.ChunkSize)
	}
	if c.Channels != 1 {
		return fmt.Errorf("channels must be 1, got %d", c.Channels)
	}
	return nil
}

// ChunkDuration returns the playback time covered by one chunk.
func (c *Config) ChunkDuration() time.Duration {
	if c.SampleRate <= 0 {
		return 0
	}
	return time.Duration(c.ChunkSize) * time.Second / time.Duration(c.SampleRate)
}

// ChunkBytes returns the size of a chunk in bytes (int16 samples).
func (c *Config) ChunkBytes() int {
	return c.ChunkSize * c.Channels * 2
}
