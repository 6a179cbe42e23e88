package tracking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/teslashibe/go-mouthfx/pkg/tracking/detection"
	"gocv.io/x/gocv"
)

// ErrCameraUnavailable is returned when the capture device cannot be opened.
var ErrCameraUnavailable = errors.New("tracking: camera unavailable")

// FrameHook observes each processed frame on the capture goroutine. frame
// is only valid during the call; face is nil for invalid samples.
type FrameHook func(frame gocv.Mat, s Sample, face *detection.Face)

// Camera captures frames with gocv and measures the mouth gap on each one.
type Camera struct {
	cfg      Config
	detector detection.Detector
	logger   *slog.Logger
	hook     FrameHook

	capture    *gocv.VideoCapture
	perception *Perception
	samples    chan Sample

	fpsBits atomic.Uint64
	dropped atomic.Int64

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// NewCamera opens the capture device. The detector is owned by the caller.
func NewCamera(cfg Config, detector detection.Detector, logger *slog.Logger) (*Camera, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	capture, err := gocv.OpenVideoCapture(cfg.Device)
	if err != nil {
		return nil, fmt.Errorf("%w: device %d: %v", ErrCameraUnavailable, cfg.Device, err)
	}
	if !capture.IsOpened() {
		capture.Close()
		return nil, fmt.Errorf("%w: device %d", ErrCameraUnavailable, cfg.Device)
	}
	capture.Set(gocv.VideoCaptureFrameWidth, float64(cfg.Width))
	capture.Set(gocv.VideoCaptureFrameHeight, float64(cfg.Height))

	return &Camera{
		cfg:        cfg,
		detector:   detector,
		logger:     logger.With("component", "tracking.camera"),
		capture:    capture,
		perception: NewPerception(cfg),
		samples:    make(chan Sample, cfg.BufferSize),
		stopCh:     make(chan struct{}),
	}, nil
}

// SetFrameHook installs h. Call before Start.
func (c *Camera) SetFrameHook(h FrameHook) {
	c.hook = h
}

// Start begins capturing on a new goroutine.
func (c *Camera) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running {
		return nil
	}
	c.running = true

	c.wg.Add(1)
	go c.captureLoop(ctx)

	c.logger.Info("camera started",
		"device", c.cfg.Device,
		"width", c.cfg.Width,
		"height", c.cfg.Height,
	)
	return nil
}

func (c *Camera) captureLoop(ctx context.Context) {
	defer c.wg.Done()
	defer close(c.samples)

	frame := gocv.NewMat()
	defer frame.Close()

	fps := newFPSMeter(c.cfg.FPSWindow)

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.stopCh:
			return
		default:
		}

		if ok := c.capture.Read(&frame); !ok || frame.Empty() {
			c.logger.Error("cannot read frame", "device", c.cfg.Device)
			return
		}
		now := time.Now()

		// Mirror so the preview behaves like a mirror.
		gocv.Flip(frame, &frame, 1)

		var (
			s    Sample
			face *detection.Face
		)
		faces, err := c.detector.DetectMat(frame)
		if err != nil {
			c.logger.Debug("detection failed", "error", err)
			s = c.perception.Miss(now)
		} else {
			s, face = c.perception.Perceive(faces, now)
		}

		if fps.tick(now) {
			c.fpsBits.Store(math.Float64bits(fps.fps))
		}

		if c.hook != nil {
			c.hook(frame, s, face)
		}

		select {
		case c.samples <- s:
		case <-ctx.Done():
			return
		case <-c.stopCh:
			return
		default:
			c.dropped.Add(1)
		}
	}
}

// Samples returns the sample channel.
func (c *Camera) Samples() <-chan Sample {
	return c.samples
}

// FPS returns the frame rate measured over the last FPSWindow frames.
func (c *Camera) FPS() float64 {
	return math.Float64frombits(c.fpsBits.Load())
}

// Dropped returns how many samples were discarded because the consumer
// was behind.
func (c *Camera) Dropped() int64 {
	return c.dropped.Load()
}

// Close stops capture and releases the device.
func (c *Camera) Close() error {
	c.mu.Lock()
	select {
	case <-c.stopCh:
		c.mu.Unlock()
		return nil
	default:
	}
	close(c.stopCh)
	c.mu.Unlock()

	c.wg.Wait()
	return c.capture.Close()
}

var _ Source = (*Camera)(nil)
