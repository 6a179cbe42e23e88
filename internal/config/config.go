// Package config provides configuration helpers for go-mouthfx commands.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/teslashibe/go-mouthfx/pkg/audioio"
	"github.com/teslashibe/go-mouthfx/pkg/effects"
)

// Defaults shared by the commands.
const (
	DefaultOSCHost       = "127.0.0.1"
	DefaultOSCPort       = 8000
	DefaultRateLimit     = 30
	DefaultDashboardPort = "8080"
	DefaultModelPath     = "models/face_detection_yunet.onnx"
	DefaultEffect        = "reverb"
)

// Camera holds capture settings for the tracker.
type Camera struct {
	Index  int
	Width  int
	Height int
}

// Tracker holds the landmark tracker settings.
type Tracker struct {
	Sensitivity         float64
	DetectionConfidence float64
	TrackingConfidence  float64
	ModelPath           string
}

// OSC holds the network dispatcher settings.
type OSC struct {
	Enabled   bool
	Host      string
	Port      int
	RateLimit int // messages per second, <= 0 means unlimited
}

// Audio holds the effects engine settings.
type Audio struct {
	Path       string // empty disables the engine
	ChunkSize  int
	SampleRate int // 0 plays at the file's own rate
	Backend    string
	Effect     string
}

// App is the full configuration surface of cmd/mouthfx.
type App struct {
	Camera         Camera
	Tracker        Tracker
	OSC            OSC
	Audio          Audio
	Dashboard      string // port, empty disables the dashboard
	Monitor        string // host:port for the RTP monitor, empty disables it
	Preview        bool
	LogLevel       string
	LogFormat      string
	StatusInterval time.Duration
}

// Default returns the configuration used when no flags are given.
// Network endpoints honour OSC_HOST, OSC_PORT, MOUTHFX_DASHBOARD_PORT and
// MOUTHFX_MODEL.
func Default() App {
	return App{
		Camera: Camera{
			Index:  0,
			Width:  640,
			Height: 480,
		},
		Tracker: Tracker{
			Sensitivity:         1.0,
			DetectionConfidence: 0.5,
			TrackingConfidence:  0.5,
			ModelPath:           ModelPath(DefaultModelPath),
		},
		OSC: OSC{
			Enabled:   true,
			Host:      OSCHost(DefaultOSCHost),
			Port:      OSCPort(DefaultOSCPort),
			RateLimit: DefaultRateLimit,
		},
		Audio: Audio{
			ChunkSize: audioio.DefaultChunkSize,
			Backend:   string(audioio.BackendAuto),
			Effect:    DefaultEffect,
		},
		Dashboard:      DashboardPort(DefaultDashboardPort),
		Preview:        true,
		LogLevel:       "info",
		StatusInterval: 200 * time.Millisecond,
	}
}

// Validate checks the configuration for values the core cannot work with.
func (c *App) Validate() error {
	if c.Camera.Width <= 0 || c.Camera.Height <= 0 {
		return fmt.Errorf("camera size must be positive, got %dx%d", c.Camera.Width, c.Camera.Height)
	}
	if c.Tracker.DetectionConfidence < 0 || c.Tracker.DetectionConfidence > 1 {
		return fmt.Errorf("detection confidence must be in [0,1], got %v", c.Tracker.DetectionConfidence)
	}
	if c.Tracker.TrackingConfidence < 0 || c.Tracker.TrackingConfidence > 1 {
		return fmt.Errorf("tracking confidence must be in [0,1], got %v", c.Tracker.TrackingConfidence)
	}
	if c.OSC.Enabled {
		if c.OSC.Host == "" {
			return fmt.Errorf("osc host is required")
		}
		if c.OSC.Port <= 0 || c.OSC.Port > 65535 {
			return fmt.Errorf("osc port out of range: %d", c.OSC.Port)
		}
	}
	if _, err := effects.ParseKind(c.Audio.Effect); err != nil {
		return err
	}
	if c.Audio.Path != "" {
		if c.Audio.SampleRate < 0 {
			return fmt.Errorf("audio: sample rate must not be negative, got %d", c.Audio.SampleRate)
		}
		dev := c.AudioDevice(audioio.DefaultSampleRate)
		if err := dev.Validate(); err != nil {
			return fmt.Errorf("audio: %w", err)
		}
	}
	if c.StatusInterval <= 0 {
		return fmt.Errorf("status interval must be positive, got %v", c.StatusInterval)
	}
	return nil
}

// AudioDevice returns the output device configuration. fileRate is used
// when no fixed sample rate was requested.
func (c *App) AudioDevice(fileRate int) audioio.Config {
	rate := c.Audio.SampleRate
	if rate == 0 {
		rate = fileRate
	}
	return audioio.Config{
		Backend:    audioio.Backend(c.Audio.Backend),
		SampleRate: rate,
		ChunkSize:  c.Audio.ChunkSize,
		Channels:   1,
	}
}

// OSCHost returns the OSC target host from OSC_HOST.
// Falls back to the provided default if not set.
func OSCHost(defaultHost string) string {
	if host := os.Getenv("OSC_HOST"); host != "" {
		return host
	}
	return defaultHost
}

// OSCPort returns the OSC target port from OSC_PORT.
// Falls back to the provided default if unset or not a number.
func OSCPort(defaultPort int) int {
	if v := os.Getenv("OSC_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			return port
		}
	}
	return defaultPort
}

// DashboardPort returns the dashboard port from MOUTHFX_DASHBOARD_PORT.
func DashboardPort(defaultPort string) string {
	if port, ok := os.LookupEnv("MOUTHFX_DASHBOARD_PORT"); ok {
		return port
	}
	return defaultPort
}

// ModelPath returns the face detection model path from MOUTHFX_MODEL.
func ModelPath(defaultPath string) string {
	if path := os.Getenv("MOUTHFX_MODEL"); path != "" {
		return path
	}
	return defaultPath
}
