package audioio

import (
	"fmt"
	"log/slog"
)

// NewDevice creates an output device for cfg.Backend.
// BackendAuto selects oto.
func NewDevice(cfg Config, logger *slog.Logger) (Device, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	if logger == nil {
		logger = slog.Default()
	}

	backend := cfg.Backend
	if backend == "" || backend == BackendAuto {
		backend = BackendOto
	}

	logger.Info("creating audio device",
		"backend", backend,
		"sample_rate", cfg.SampleRate,
		"chunk_size", cfg.ChunkSize,
		"chunk_ms", cfg.ChunkDuration().Milliseconds(),
	)

	switch backend {
	case BackendMock:
		return NewMockDevice(logger, WithClock()), nil
	case BackendOto:
		return NewOtoDevice(logger), nil
	default:
		return nil, fmt.Errorf("unsupported backend: %s", backend)
	}
}

// AvailableBackends returns the backends selectable by name.
func AvailableBackends() []Backend {
	return []Backend{BackendOto, BackendMock}
}
