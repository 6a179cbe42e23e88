package audioio

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/faiface/beep"
	"github.com/faiface/beep/mp3"
	"github.com/faiface/beep/wav"
)

// ErrUnsupportedFormat is returned for files that are neither WAV nor MP3.
var ErrUnsupportedFormat = errors.New("audioio: unsupported audio format")

// ErrEmptyClip is returned when a file decodes to zero samples.
var ErrEmptyClip = errors.New("audioio: clip has no samples")

// Clip is a fully decoded mono audio buffer.
type Clip struct {
	Samples    []float64
	SampleRate int
}

// Duration returns the clip length in seconds.
func (c Clip) Duration() float64 {
	if c.SampleRate <= 0 {
		return 0
	}
	return float64(len(c.Samples)) / float64(c.SampleRate)
}

// LoadFile decodes a WAV or MP3 file to mono floats in [-1,1].
// Stereo input is downmixed by averaging channels.
func LoadFile(path string) (Clip, error) {
	f, err := os.Open(path)
	if err != nil {
		return Clip{}, fmt.Errorf("open audio file: %w", err)
	}
	defer f.Close()

	var (
		streamer beep.StreamSeekCloser
		format   beep.Format
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".wav":
		streamer, format, err = wav.Decode(f)
	case ".mp3":
		streamer, format, err = mp3.Decode(f)
	default:
		return Clip{}, fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Ext(path))
	}
	if err != nil {
		return Clip{}, fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}

	samples, err := readMono(streamer, format.NumChannels)
	if err != nil {
		return Clip{}, fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}
	if len(samples) == 0 {
		return Clip{}, ErrEmptyClip
	}

	return Clip{Samples: samples, SampleRate: int(format.SampleRate)}, nil
}

// readMono drains s, downmixing each frame. beep duplicates mono input into
// both channels, so averaging the pair is correct for either layout.
func readMono(s beep.StreamSeekCloser, channels int) ([]float64, error) {
	out := make([]float64, 0, max(s.Len(), 0))
	buf := make([][2]float64, 4096)
	frame := make([]float64, 2)
	if channels == 1 {
		frame = frame[:1]
	}

	for {
		n, ok := s.Stream(buf)
		for i := 0; i < n; i++ {
			frame[0] = buf[i][0]
			if len(frame) > 1 {
				frame[1] = buf[i][1]
			}
			out = append(out, Downmix(frame))
		}
		if !ok {
			break
		}
	}
	return out, s.Err()
}
