//go:build headless

package audioio

import (
	"fmt"
	"log/slog"
)

// OtoDevice is unavailable in headless builds.
type OtoDevice struct{}

// NewOtoDevice returns a device whose Open always fails.
func NewOtoDevice(_ *slog.Logger) *OtoDevice {
	return &OtoDevice{}
}

func (d *OtoDevice) Open(Config, RenderProvider) (Stream, error) {
	return nil, fmt.Errorf("%w: built with headless tag", ErrDeviceUnavailable)
}

func (d *OtoDevice) Name() string { return string(BackendOto) }

func (d *OtoDevice) Close() error { return nil }

func (d *OtoDevice) Stats() DeviceStats {
	return DeviceStats{Backend: d.Name()}
}
