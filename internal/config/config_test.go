package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 30, cfg.OSC.RateLimit)
	assert.Equal(t, 1024, cfg.Audio.ChunkSize)
	assert.Zero(t, cfg.Audio.SampleRate, "file rate by default")
	assert.Equal(t, "reverb", cfg.Audio.Effect)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*App)
		wantErr bool
	}{
		{"defaults", func(*App) {}, false},
		{"bad camera", func(c *App) { c.Camera.Width = 0 }, true},
		{"bad confidence", func(c *App) { c.Tracker.DetectionConfidence = 1.5 }, true},
		{"bad port", func(c *App) { c.OSC.Port = 70000 }, true},
		{"bad port ignored when osc disabled", func(c *App) { c.OSC.Enabled = false; c.OSC.Port = 0 }, false},
		{"unknown effect", func(c *App) { c.Audio.Effect = "chorus" }, true},
		{"filter alias", func(c *App) { c.Audio.Effect = "filter" }, false},
		{"bad chunk with audio", func(c *App) { c.Audio.Path = "x.wav"; c.Audio.ChunkSize = 0 }, true},
		{"bad chunk without audio", func(c *App) { c.Audio.ChunkSize = 0 }, false},
		{"negative sample rate", func(c *App) { c.Audio.Path = "x.wav"; c.Audio.SampleRate = -1 }, true},
		{"fixed sample rate", func(c *App) { c.Audio.Path = "x.wav"; c.Audio.SampleRate = 48000 }, false},
		{"negative sensitivity allowed", func(c *App) { c.Tracker.Sensitivity = -1 }, false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if tc.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("OSC_HOST", "10.0.0.5")
	t.Setenv("OSC_PORT", "9001")
	t.Setenv("MOUTHFX_DASHBOARD_PORT", "")

	cfg := Default()
	assert.Equal(t, "10.0.0.5", cfg.OSC.Host)
	assert.Equal(t, 9001, cfg.OSC.Port)
	assert.Equal(t, "", cfg.Dashboard)
}

func TestOSCPort_IgnoresGarbage(t *testing.T) {
	t.Setenv("OSC_PORT", "not-a-port")
	assert.Equal(t, 8000, OSCPort(8000))
}
