package web

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	"github.com/teslashibe/go-mouthfx/pkg/audioio"
	"github.com/teslashibe/go-mouthfx/pkg/calibration"
	"github.com/teslashibe/go-mouthfx/pkg/control"
	"github.com/teslashibe/go-mouthfx/pkg/effects"
	"github.com/teslashibe/go-mouthfx/pkg/hub"
)

// statusCode maps session errors to HTTP status codes.
func statusCode(err error) int {
	switch {
	case errors.Is(err, control.ErrNoMeasurement),
		errors.Is(err, control.ErrNoPlayback),
		errors.Is(err, calibration.ErrInvalidState),
		errors.Is(err, calibration.ErrDegenerateCalibration):
		return fiber.StatusConflict
	case errors.Is(err, effects.ErrUnknownKind):
		return fiber.StatusBadRequest
	case errors.Is(err, audioio.ErrDeviceUnavailable),
		errors.Is(err, control.ErrStopped):
		return fiber.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return fiber.StatusGatewayTimeout
	}
	return fiber.StatusInternalServerError
}

// submit runs cmd on the session and replies with the resulting status.
func (s *Server) submit(c *fiber.Ctx, cmd control.Command) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), s.CommandTimeout)
	defer cancel()

	st, err := s.ctrl.Submit(ctx, cmd)
	if err != nil {
		return err
	}
	return c.JSON(st)
}

// handleStatus returns the latest session status
func (s *Server) handleStatus(c *fiber.Ctx) error {
	return c.JSON(s.ctrl.Status())
}

func (s *Server) handleCalibrationStep(c *fiber.Ctx) error {
	return s.submit(c, control.CalibrateStep())
}

func (s *Server) handleCalibrationReset(c *fiber.Ctx) error {
	return s.submit(c, control.CalibrateReset())
}

// handleSelectEffect binds the control value to the named effect
func (s *Server) handleSelectEffect(c *fiber.Ctx) error {
	kind, err := effects.ParseKind(c.Params("kind"))
	if err != nil {
		return err
	}
	return s.submit(c, control.SelectEffect(kind))
}

func (s *Server) handleTogglePlayback(c *fiber.Ctx) error {
	return s.submit(c, control.TogglePlayback())
}

func (s *Server) handleResetStats(c *fiber.Ctx) error {
	return s.submit(c, control.ResetStatistics())
}

// handleGetLogs returns recent log entries
func (s *Server) handleGetLogs(c *fiber.Ctx) error {
	return c.JSON(s.Logs())
}

// handleStatusWS streams status snapshots, starting with the current one
func (s *Server) handleStatusWS(c *websocket.Conn) {
	sub := hub.Attach(s.statusHub, c)
	if sub == nil {
		return
	}
	if f, err := hub.StatusFrame(s.ctrl.Status()); err == nil {
		sub.Offer(f)
	}
	sub.Serve()
}

// handleLogsWS streams log lines, starting with the buffered ones
func (s *Server) handleLogsWS(c *websocket.Conn) {
	sub := hub.Attach(s.logHub, c)
	if sub == nil {
		return
	}
	for _, entry := range s.Logs() {
		f, err := hub.LogFrame(entry)
		if err != nil || !sub.Offer(f) {
			break
		}
	}
	sub.Serve()
}

// handleCameraWS streams annotated JPEG frames as binary messages
func (s *Server) handleCameraWS(c *websocket.Conn) {
	sub := hub.Attach(s.cameraHub, c)
	if sub == nil {
		return
	}
	sub.Serve()
}
