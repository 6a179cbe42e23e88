package control

import (
	"time"

	"github.com/teslashibe/go-mouthfx/pkg/calibration"
	"github.com/teslashibe/go-mouthfx/pkg/dispatch"
	"github.com/teslashibe/go-mouthfx/pkg/effects"
	"github.com/teslashibe/go-mouthfx/pkg/engine"
)

// Calibration prompts shown while a capture is in progress.
const (
	PromptClosed = "Close your mouth and press 'c'"
	PromptOpen   = "Open your mouth wide and press 'c'"
)

// CalibrationStatus describes the calibrator.
type CalibrationStatus struct {
	State      string            `json:"state"`
	Calibrated bool              `json:"calibrated"`
	Range      calibration.Range `json:"range"`
	Prompt     string            `json:"prompt,omitempty"`
}

// OSCStatus describes the dispatcher.
type OSCStatus struct {
	Target            string  `json:"target"`
	TotalMessages     uint64  `json:"total_messages"`
	MessagesPerSecond float64 `json:"messages_per_second"`
	LastValue         *int    `json:"last_value,omitempty"`
	SendErrors        uint64  `json:"send_errors"`
}

// Status is an immutable snapshot of a session.
type Status struct {
	SessionID    string            `json:"session_id"`
	Value        int               `json:"value"`
	HasValue     bool              `json:"has_value"`
	Gap          float64           `json:"gap"`
	FaceDetected bool              `json:"face_detected"`
	TrackerFPS   float64           `json:"tracker_fps"`
	Calibration  CalibrationStatus `json:"calibration"`
	Effect       string            `json:"effect"`
	Params       effects.Params    `json:"params"`
	Playing      bool              `json:"playing"`
	Audio        *engine.Stats     `json:"audio,omitempty"`
	OSC          *OSCStatus        `json:"osc,omitempty"`
	Uptime       float64           `json:"uptime_seconds"`
	UpdatedAt    time.Time         `json:"updated_at"`
}

// Status returns the latest published snapshot. Safe from any goroutine.
func (s *Session) Status() Status {
	return *s.status.Load()
}

func (s *Session) publish() {
	st := &Status{
		SessionID:    s.id.String(),
		Value:        s.value,
		HasValue:     s.hasValue,
		Gap:          s.lastGap,
		FaceDetected: s.last.Valid,
		TrackerFPS:   s.trackerFPS,
		Calibration:  s.calibrationStatus(),
		Effect:       s.store.ActiveEffect().String(),
		Params:       s.store.Snapshot(),
		Uptime:       time.Since(s.started).Seconds(),
		UpdatedAt:    time.Now(),
	}

	if s.playback != nil {
		audio := s.playback.Stats()
		st.Audio = &audio
		st.Playing = audio.Playing
	}

	if s.dispatcher != nil {
		stats := s.dispatcher.Statistics()
		st.OSC = oscStatus(s.oscTarget, stats)
	}

	s.status.Store(st)
}

func (s *Session) calibrationStatus() CalibrationStatus {
	r, calibrated := s.calibrator.Range()
	cs := CalibrationStatus{
		State:      s.calibrator.State().String(),
		Calibrated: calibrated,
		Range:      r,
	}
	switch s.calibrator.State() {
	case calibration.AwaitingClosed:
		cs.Prompt = PromptClosed
	case calibration.AwaitingOpen:
		cs.Prompt = PromptOpen
	}
	return cs
}

func oscStatus(target string, stats dispatch.Statistics) *OSCStatus {
	o := &OSCStatus{
		Target:            target,
		TotalMessages:     stats.TotalMessages,
		MessagesPerSecond: stats.MessagesPerSecond,
		SendErrors:        stats.SendErrors,
	}
	if stats.HasLastValue {
		v := stats.LastValue
		o.LastValue = &v
	}
	return o
}
