// Package web provides the control dashboard for a mouthfx session.
package web

import (
	"bytes"
	"context"
	"embed"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/filesystem"
	"github.com/gofiber/websocket/v2"

	"github.com/teslashibe/go-mouthfx/pkg/control"
	"github.com/teslashibe/go-mouthfx/pkg/hub"
)

//go:embed static
var static embed.FS

// maxLogs is the number of log lines kept for /api/logs.
const maxLogs = 500

// Controller is the session surface the dashboard drives.
type Controller interface {
	Status() control.Status
	Submit(ctx context.Context, cmd control.Command) (control.Status, error)
}

// Server is the web dashboard server
type Server struct {
	app    *fiber.App
	port   string
	ctrl   Controller
	logger *slog.Logger

	// StatusInterval is how often status is pushed to /ws/status.
	StatusInterval time.Duration

	// CommandTimeout bounds how long a request waits on the control loop.
	CommandTimeout time.Duration

	// Log buffer (last maxLogs entries)
	logs    []hub.LogEntry
	partial []byte
	logsMu  sync.RWMutex

	// Hubs for websocket broadcast
	statusHub *hub.Hub
	logHub    *hub.Hub
	cameraHub *hub.Hub

	cancel context.CancelFunc
}

// NewServer creates a new dashboard server for ctrl. A nil logger uses
// slog.Default().
func NewServer(port string, ctrl Controller, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "web")

	s := &Server{
		port:           port,
		ctrl:           ctrl,
		logger:         logger,
		StatusInterval: 200 * time.Millisecond,
		CommandTimeout: 2 * time.Second,
		logs:           make([]hub.LogEntry, 0, maxLogs),
		statusHub:      hub.New(hub.KindStatus, logger),
		logHub:         hub.New(hub.KindLog, slog.New(slog.DiscardHandler)),
		cameraHub:      hub.New(hub.KindCamera, logger),
	}

	app := fiber.New(fiber.Config{
		AppName:               "mouthfx dashboard",
		DisableStartupMessage: true,
		ErrorHandler:          s.handleError,
	})

	// CORS for local development
	app.Use(cors.New())

	// API routes
	api := app.Group("/api")
	api.Get("/status", s.handleStatus)
	api.Post("/calibration/step", s.handleCalibrationStep)
	api.Post("/calibration/reset", s.handleCalibrationReset)
	api.Put("/effect/:kind", s.handleSelectEffect)
	api.Post("/playback/toggle", s.handleTogglePlayback)
	api.Post("/stats/reset", s.handleResetStats)
	api.Get("/logs", s.handleGetLogs)

	// WebSocket upgrade middleware
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	// WebSocket routes
	app.Get("/ws/status", websocket.New(s.handleStatusWS))
	app.Get("/ws/logs", websocket.New(s.handleLogsWS))
	app.Get("/ws/camera", websocket.New(s.handleCameraWS))

	// Dashboard page
	app.Use("/", filesystem.New(filesystem.Config{
		Root:       http.FS(static),
		PathPrefix: "static",
		Index:      "index.html",
	}))

	s.app = app
	return s
}

// App returns the underlying fiber app.
func (s *Server) App() *fiber.App {
	return s.app
}

// Run starts the hubs and the status pusher until ctx is done. Start calls
// it; tests that drive App directly call it themselves.
func (s *Server) Run(ctx context.Context) {
	go s.statusHub.Run(ctx)
	go s.logHub.Run(ctx)
	go s.cameraHub.Run(ctx)
	go s.pushStatus(ctx)
}

// Start runs the hubs and serves HTTP until Shutdown.
func (s *Server) Start(ctx context.Context) error {
	ctx, s.cancel = context.WithCancel(ctx)
	s.Run(ctx)

	s.logger.Info("dashboard listening", "url", "http://localhost:"+s.port)
	return s.app.Listen(":" + s.port)
}

// StartAsync starts the web server in a goroutine
func (s *Server) StartAsync(ctx context.Context) {
	go func() {
		if err := s.Start(ctx); err != nil {
			s.logger.Error("dashboard stopped", "error", err)
		}
	}()
}

// Shutdown gracefully stops the web server
func (s *Server) Shutdown() error {
	if s.cancel != nil {
		s.cancel()
	}
	return s.app.Shutdown()
}

// pushStatus broadcasts the session status at StatusInterval.
func (s *Server) pushStatus(ctx context.Context) {
	ticker := time.NewTicker(s.StatusInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if s.statusHub.Subscribers() == 0 {
				continue
			}
			if err := s.statusHub.PublishStatus(s.ctrl.Status()); err != nil {
				s.logger.Warn("encode status", "error", err)
			}
		}
	}
}

// Write implements io.Writer so the server can be handed to log.Init. Each
// complete line becomes a hub.LogEntry.
func (s *Server) Write(p []byte) (int, error) {
	s.logsMu.Lock()
	s.partial = append(s.partial, p...)
	var entries []hub.LogEntry
	for {
		i := bytes.IndexByte(s.partial, '\n')
		if i < 0 {
			break
		}
		line := string(bytes.TrimSpace(s.partial[:i]))
		s.partial = s.partial[i+1:]
		if line == "" {
			continue
		}
		entry := hub.LogEntry{Time: time.Now().Format("15:04:05"), Message: line}
		s.logs = append(s.logs, entry)
		if len(s.logs) > maxLogs {
			s.logs = s.logs[1:]
		}
		entries = append(entries, entry)
	}
	s.logsMu.Unlock()

	for _, entry := range entries {
		_ = s.logHub.PublishLog(entry)
	}
	return len(p), nil
}

// Logs returns a copy of the buffered log lines.
func (s *Server) Logs() []hub.LogEntry {
	s.logsMu.RLock()
	defer s.logsMu.RUnlock()
	return append([]hub.LogEntry(nil), s.logs...)
}

// SendCameraFrame publishes an annotated JPEG frame to /ws/camera.
func (s *Server) SendCameraFrame(jpegData []byte) {
	if s.cameraHub.Subscribers() == 0 {
		return
	}
	_ = s.cameraHub.PublishCamera(jpegData)
}

// WantsFrames reports whether any client is watching the camera feed.
func (s *Server) WantsFrames() bool {
	return s.cameraHub.Subscribers() > 0
}

func (s *Server) handleError(c *fiber.Ctx, err error) error {
	code := statusCode(err)
	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
	}
	return c.Status(code).JSON(fiber.Map{"error": err.Error()})
}
