// mouthfx - control audio effects and OSC parameters by opening your mouth
// Tracks the mouth gap with the camera, calibrates it to 0-127, sends it as
// OSC "/mouth" and drives a looping audio file through reverb, filter or
// distortion.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/teslashibe/go-mouthfx/internal/config"
	"github.com/teslashibe/go-mouthfx/internal/log"
	"github.com/teslashibe/go-mouthfx/pkg/audioio"
	"github.com/teslashibe/go-mouthfx/pkg/mouthfx"
)

func init() {
	// The preview window must be driven from the main thread.
	runtime.LockOSThread()
}

func main() {
	cfg := parseFlags()

	var dashboardLogs log.Sink
	log.Init(cfg.LogLevel, cfg.LogFormat, &dashboardLogs)

	app, err := mouthfx.New(cfg, log.L())
	if err != nil {
		log.Error("configuration error", "error", err)
		os.Exit(2)
	}

	if err := app.Init(); err != nil {
		app.Shutdown()
		log.Error("initialization failed", "error", err)
		os.Exit(1)
	}
	defer app.Shutdown()
	if w := app.LogWriter(); w != nil {
		dashboardLogs.Attach(w)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := app.Run(ctx); err != nil {
		log.Error("runtime error", "error", err)
	}
}

// parseFlags parses command line flags and returns configuration.
func parseFlags() config.App {
	cfg := config.Default()

	// Tracking
	flag.IntVar(&cfg.Camera.Index, "camera", cfg.Camera.Index, "Camera index")
	flag.IntVar(&cfg.Camera.Width, "width", cfg.Camera.Width, "Camera frame width")
	flag.IntVar(&cfg.Camera.Height, "height", cfg.Camera.Height, "Camera frame height")
	flag.Float64Var(&cfg.Tracker.Sensitivity, "sensitivity", cfg.Tracker.Sensitivity, "Mouth gap sensitivity multiplier")
	flag.Float64Var(&cfg.Tracker.DetectionConfidence, "detection-confidence", cfg.Tracker.DetectionConfidence, "Minimum face detection confidence")
	flag.Float64Var(&cfg.Tracker.TrackingConfidence, "tracking-confidence", cfg.Tracker.TrackingConfidence, "Minimum face score for a valid measurement")
	flag.StringVar(&cfg.Tracker.ModelPath, "model", cfg.Tracker.ModelPath, "YuNet face detection model (overrides MOUTHFX_MODEL)")

	// OSC
	flag.BoolVar(&cfg.OSC.Enabled, "osc", cfg.OSC.Enabled, "Send OSC /mouth messages")
	flag.StringVar(&cfg.OSC.Host, "ip", cfg.OSC.Host, "OSC target IP (overrides OSC_HOST)")
	flag.IntVar(&cfg.OSC.Port, "port", cfg.OSC.Port, "OSC target port (overrides OSC_PORT)")
	flag.IntVar(&cfg.OSC.RateLimit, "rate-limit", cfg.OSC.RateLimit, "Maximum OSC messages per second (0 = unlimited)")

	// Audio
	flag.StringVar(&cfg.Audio.Path, "audio", cfg.Audio.Path, "Audio file to loop (.wav or .mp3); empty disables audio")
	flag.IntVar(&cfg.Audio.ChunkSize, "buffer-size", cfg.Audio.ChunkSize, "Audio buffer size in frames")
	flag.IntVar(&cfg.Audio.SampleRate, "sample-rate", cfg.Audio.SampleRate, "Output sample rate (0 = the file's rate)")
	flag.StringVar(&cfg.Audio.Effect, "effect", cfg.Audio.Effect, "Effect controlled by the mouth: reverb, filter, distortion")
	flag.StringVar(&cfg.Audio.Backend, "backend", cfg.Audio.Backend, fmt.Sprintf("Audio backend %v (mock also scripts the tracker)", audioio.AvailableBackends()))

	// Interfaces
	noPreview := flag.Bool("no-preview", false, "Disable the preview window (keys are read from the terminal)")
	flag.StringVar(&cfg.Dashboard, "dashboard", cfg.Dashboard, "Dashboard port (overrides MOUTHFX_DASHBOARD_PORT); empty disables it")
	flag.StringVar(&cfg.Monitor, "monitor", cfg.Monitor, "Stream processed audio as RTP to host:port")

	// Logging
	flag.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level: debug, info, warn, error")
	flag.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, "Log format: text or json (default json when GO_ENV=production)")
	flag.DurationVar(&cfg.StatusInterval, "status-interval", cfg.StatusInterval, "How often status is published")

	flag.Parse()

	cfg.Preview = !*noPreview
	return cfg
}
