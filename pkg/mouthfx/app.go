// Package mouthfx wires the tracker, control loop, audio engine and user
// interfaces into one application.
package mouthfx

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"gocv.io/x/gocv"

	"github.com/teslashibe/go-mouthfx/internal/config"
	"github.com/teslashibe/go-mouthfx/pkg/audioio"
	"github.com/teslashibe/go-mouthfx/pkg/calibration"
	"github.com/teslashibe/go-mouthfx/pkg/control"
	"github.com/teslashibe/go-mouthfx/pkg/dispatch"
	"github.com/teslashibe/go-mouthfx/pkg/effects"
	"github.com/teslashibe/go-mouthfx/pkg/engine"
	"github.com/teslashibe/go-mouthfx/pkg/keys"
	"github.com/teslashibe/go-mouthfx/pkg/monitor"
	"github.com/teslashibe/go-mouthfx/pkg/preview"
	"github.com/teslashibe/go-mouthfx/pkg/tracking"
	"github.com/teslashibe/go-mouthfx/pkg/tracking/detection"
	"github.com/teslashibe/go-mouthfx/pkg/web"
)

// Scripted tracker used with the mock audio backend: a slow open/close
// sweep across the default calibration range.
const (
	scriptedLowGap  = 5
	scriptedHighGap = 55
	scriptedPeriod  = 90
)

// App is the main application orchestrator.
// It manages all components and their lifecycle.
type App struct {
	config config.App
	logger *slog.Logger

	// Tracking
	detector detection.Detector
	camera   *tracking.Camera
	source   tracking.Source

	// Control
	calibrator *calibration.Calibrator
	dispatcher *dispatch.Dispatcher
	oscTarget  string
	store      *effects.Store
	session    *control.Session

	// Audio
	engine  *engine.Engine
	monitor *monitor.Tap

	// Interfaces
	webServer *web.Server
	window    *preview.Window
	terminal  *keys.Terminal
}

// New creates a new application with the given configuration.
func New(cfg config.App, logger *slog.Logger) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &App{config: cfg, logger: logger}, nil
}

// Init creates every component. Components that fail to start on optional
// hardware are logged and left out; tracking and configuration errors are
// returned.
func (a *App) Init() error {
	kind, err := effects.ParseKind(a.config.Audio.Effect)
	if err != nil {
		return err
	}
	a.store = effects.NewStore(effects.NeutralParams(), kind)
	a.calibrator = calibration.New(a.config.Tracker.Sensitivity)

	if err := a.initTracking(); err != nil {
		return fmt.Errorf("tracking: %w", err)
	}

	if a.config.OSC.Enabled {
		sender := dispatch.NewOSCSender(a.config.OSC.Host, a.config.OSC.Port)
		a.oscTarget = sender.Target()
		a.dispatcher = dispatch.New(sender, a.config.OSC.RateLimit,
			dispatch.WithLogger(a.logger.With("component", "dispatch")))
		a.logger.Info("osc enabled", "target", a.oscTarget, "address", dispatch.AddressMouth, "rate_limit", a.config.OSC.RateLimit)
	}

	if a.config.Audio.Path != "" {
		if err := a.initAudio(); err != nil {
			return fmt.Errorf("audio: %w", err)
		}
	}

	opts := control.Options{
		Calibrator:     a.calibrator,
		Dispatcher:     a.dispatcher,
		Store:          a.store,
		OSCTarget:      a.oscTarget,
		StatusInterval: a.config.StatusInterval,
		Logger:         a.logger,
	}
	if a.engine != nil {
		opts.Playback = a.engine
	}
	a.session = control.New(opts)

	if a.config.Dashboard != "" {
		a.webServer = web.NewServer(a.config.Dashboard, a, a.logger)
		a.webServer.StatusInterval = a.config.StatusInterval
	}

	a.initInterfaces()
	return nil
}

func (a *App) initTracking() error {
	if audioio.Backend(a.config.Audio.Backend) == audioio.BackendMock {
		a.source = tracking.NewScriptedSource(
			tracking.Oscillate(scriptedLowGap, scriptedHighGap, scriptedPeriod),
			tracking.DefaultConfig().Interval,
		)
		a.logger.Info("using scripted tracker")
		return nil
	}

	dcfg := detection.DefaultConfig()
	dcfg.ModelPath = a.config.Tracker.ModelPath
	dcfg.ConfidenceThresh = a.config.Tracker.DetectionConfidence
	detector, err := detection.NewYuNet(dcfg)
	if err != nil {
		return err
	}
	a.detector = detector

	tcfg := tracking.DefaultConfig()
	tcfg.Device = a.config.Camera.Index
	tcfg.Width = a.config.Camera.Width
	tcfg.Height = a.config.Camera.Height
	tcfg.TrackingConfidence = a.config.Tracker.TrackingConfidence

	cam, err := tracking.NewCamera(tcfg, detector, a.logger)
	if err != nil {
		return err
	}
	cam.SetFrameHook(a.onFrame)
	a.camera = cam
	a.source = cam
	return nil
}

func (a *App) initAudio() error {
	clip, err := audioio.LoadFile(a.config.Audio.Path)
	if err != nil {
		return err
	}
	a.logger.Info("audio file loaded",
		"path", a.config.Audio.Path,
		"sample_rate", clip.SampleRate,
		"seconds", clip.Duration(),
	)

	cfg := a.config.AudioDevice(clip.SampleRate)
	device, err := audioio.NewDevice(cfg, a.logger)
	if err != nil {
		return err
	}
	eng, err := engine.New(device, clip, a.store, cfg, a.logger)
	if err != nil {
		device.Close()
		return err
	}
	a.engine = eng

	if a.config.Monitor != "" {
		tap, err := monitor.New(monitor.DefaultConfig(a.config.Monitor, cfg.SampleRate, cfg.ChunkSize), a.logger)
		if err != nil {
			a.logger.Warn("rtp monitor disabled", "error", err)
		} else {
			a.monitor = tap
			eng.SetTap(tap)
		}
	}
	return nil
}

func (a *App) initInterfaces() {
	if a.config.Preview && a.camera != nil {
		a.window = preview.NewWindow(preview.DefaultTitle, a.logger)
		return
	}

	term, err := keys.Open(a.logger)
	if err != nil {
		a.logger.Info("keyboard control unavailable", "error", err)
		return
	}
	a.terminal = term
}

// Run starts playback and the control loop and blocks until ctx is done or
// the user quits. When a preview window is enabled it must be called from
// the main goroutine.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if a.webServer != nil {
		a.webServer.StartAsync(ctx)
	}

	if a.engine != nil {
		if err := a.engine.Play(); err != nil {
			a.logger.Error("audio output unavailable, continuing without sound", "error", err)
		}
	}

	errc := make(chan error, 1)
	go func() {
		errc <- a.session.Run(ctx, a.source)
		cancel()
	}()

	if a.terminal != nil {
		go a.readKeys(ctx, a.terminal.Keys())
	}

	a.logger.Info("ready",
		"keys", "c calibrate, r reset, p play/pause, 1 reverb, 2 filter, 3 distortion, s reset stats, q quit",
		"effect", a.store.ActiveEffect().String(),
	)

	if a.window != nil {
		a.window.Run(ctx, func(key rune) { a.handleKey(ctx, key) })
	}

	return <-errc
}

// Shutdown releases every component. It is safe to call after a failed Init.
func (a *App) Shutdown() {
	if a.terminal != nil {
		a.terminal.Close()
	}
	if a.engine != nil {
		if err := a.engine.Release(); err != nil {
			a.logger.Warn("release audio", "error", err)
		}
	}
	if a.monitor != nil {
		a.monitor.Close()
	}
	if a.source != nil {
		a.source.Close()
	}
	if a.detector != nil {
		a.detector.Close()
	}
	if a.webServer != nil {
		a.webServer.Shutdown()
	}
	if a.session != nil {
		st := a.session.Status()
		if st.OSC != nil {
			a.logger.Info("session ended",
				"messages", st.OSC.TotalMessages,
				"rate", st.OSC.MessagesPerSecond,
				"send_errors", st.OSC.SendErrors,
			)
		}
	}
}

// LogWriter returns the dashboard log feed, or nil when the dashboard is
// disabled.
func (a *App) LogWriter() io.Writer {
	if a.webServer == nil {
		return nil
	}
	return a.webServer
}

// Status returns the session status.
func (a *App) Status() control.Status {
	return a.session.Status()
}

// Submit runs cmd on the control loop.
func (a *App) Submit(ctx context.Context, cmd control.Command) (control.Status, error) {
	return a.session.Submit(ctx, cmd)
}

func (a *App) readKeys(ctx context.Context, ch <-chan rune) {
	for {
		select {
		case <-ctx.Done():
			return
		case key, ok := <-ch:
			if !ok {
				return
			}
			a.handleKey(ctx, key)
		}
	}
}

func (a *App) handleKey(ctx context.Context, key rune) {
	cmd, ok := control.KeyCommand(key)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	if _, err := a.session.Submit(ctx, cmd); err != nil && !errors.Is(err, control.ErrStopped) {
		a.logger.Debug("key command failed", "key", string(key), "error", err)
	}
}

// onFrame annotates the captured frame for the preview window and the
// dashboard camera feed.
func (a *App) onFrame(frame gocv.Mat, _ tracking.Sample, face *detection.Face) {
	toWeb := a.webServer != nil && a.webServer.WantsFrames()
	if a.window == nil && !toWeb {
		return
	}

	img := frame.Clone()
	preview.Draw(&img, a.session.Status(), face)

	if toWeb {
		if data, err := preview.EncodeJPEG(img); err == nil {
			a.webServer.SendCameraFrame(data)
		}
	}
	if a.window != nil {
		a.window.Offer(img)
		return
	}
	img.Close()
}

var _ web.Controller = (*App)(nil)
