package control

import (
	"errors"
	"fmt"

	"github.com/teslashibe/go-mouthfx/pkg/calibration"
	"github.com/teslashibe/go-mouthfx/pkg/effects"
)

// Op identifies a session command.
type Op int

// Session commands.
const (
	OpCalibrateStep Op = iota + 1
	OpCalibrateReset
	OpSelectEffect
	OpTogglePlayback
	OpResetStatistics
	OpQuit
)

func (o Op) String() string {
	switch o {
	case OpCalibrateStep:
		return "calibrate_step"
	case OpCalibrateReset:
		return "calibrate_reset"
	case OpSelectEffect:
		return "select_effect"
	case OpTogglePlayback:
		return "toggle_playback"
	case OpResetStatistics:
		return "reset_statistics"
	case OpQuit:
		return "quit"
	default:
		return fmt.Sprintf("op(%d)", int(o))
	}
}

// Command is a request to change session state.
type Command struct {
	Op     Op
	Effect effects.Kind // OpSelectEffect only
}

// CalibrateStep begins calibration, or captures the closed or open gap.
func CalibrateStep() Command { return Command{Op: OpCalibrateStep} }

// CalibrateReset clears calibration.
func CalibrateReset() Command { return Command{Op: OpCalibrateReset} }

// SelectEffect binds the control value to k.
func SelectEffect(k effects.Kind) Command { return Command{Op: OpSelectEffect, Effect: k} }

// TogglePlayback plays or stops audio.
func TogglePlayback() Command { return Command{Op: OpTogglePlayback} }

// ResetStatistics restarts the dispatcher statistics window.
func ResetStatistics() Command { return Command{Op: OpResetStatistics} }

// Quit ends Run.
func Quit() Command { return Command{Op: OpQuit} }

// KeyCommand maps a key to a command: c step, r reset, p play/pause,
// 1 reverb, 2 filter, 3 distortion, s reset stats, q quit.
func KeyCommand(key rune) (Command, bool) {
	switch key {
	case 'c', 'C':
		return CalibrateStep(), true
	case 'r', 'R':
		return CalibrateReset(), true
	case 'p', 'P', ' ':
		return TogglePlayback(), true
	case '1':
		return SelectEffect(effects.Reverb), true
	case '2':
		return SelectEffect(effects.Lowpass), true
	case '3':
		return SelectEffect(effects.Distortion), true
	case 's', 'S':
		return ResetStatistics(), true
	case 'q', 'Q', 27: // Esc
		return Quit(), true
	}
	return Command{}, false
}

// Do executes cmd. It must be called from the control goroutine; other
// goroutines use Submit.
func (s *Session) Do(cmd Command) (Status, error) {
	err := s.do(cmd)
	if err != nil {
		s.logger.Warn("command failed", "op", cmd.Op.String(), "error", err)
	}
	s.publish()
	return *s.status.Load(), err
}

func (s *Session) do(cmd Command) error {
	switch cmd.Op {
	case OpCalibrateStep:
		return s.calibrateStep()

	case OpCalibrateReset:
		s.calibrator.Reset()
		s.logger.Info("calibration reset")
		return nil

	case OpSelectEffect:
		s.store.SetActiveEffect(cmd.Effect)
		if s.hasValue {
			s.store.Update(s.value)
		}
		s.logger.Info("effect selected", "effect", cmd.Effect.String())
		return nil

	case OpTogglePlayback:
		if s.playback == nil {
			return ErrNoPlayback
		}
		if err := s.playback.Toggle(); err != nil {
			return err
		}
		s.logger.Info("playback toggled", "playing", s.playback.IsPlaying())
		return nil

	case OpResetStatistics:
		if s.dispatcher != nil {
			s.dispatcher.ResetStatistics()
		}
		return nil

	case OpQuit:
		s.quit = true
		return nil
	}
	return fmt.Errorf("%w: %s", ErrUnknownCommand, cmd.Op)
}

// calibrateStep advances the two-step capture using the latest sample.
// Beginning needs no measurement; each capture needs a valid face.
func (s *Session) calibrateStep() error {
	state := s.calibrator.State()
	if state != calibration.Idle && !s.last.Valid {
		return ErrNoMeasurement
	}

	next, err := s.calibrator.Step(s.last.Gap)
	if errors.Is(err, calibration.ErrDegenerateCalibration) {
		s.logger.Warn("calibration rejected, keeping previous range", "gap", s.last.Gap)
		return err
	}
	if err != nil {
		return err
	}

	switch {
	case state == calibration.Idle:
		s.logger.Info("calibration started: close your mouth and press 'c'")
	case next == calibration.AwaitingOpen:
		s.logger.Info("closed gap captured: open your mouth wide and press 'c'", "gap", s.last.Gap)
	default:
		r, _ := s.calibrator.Range()
		s.logger.Info("calibration committed", "closed", r.Closed, "open", r.Open)
	}
	return nil
}
