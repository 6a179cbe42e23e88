package tracking

import (
	"context"
	"math"
	"sync"
	"time"
)

// Script produces the i-th sample of a scripted run. ok=false ends the run.
type Script func(i int) (s Sample, ok bool)

// ScriptedSource replays a Script at a fixed interval. It stands in for the
// camera in tests and in runs without capture hardware.
type ScriptedSource struct {
	script   Script
	interval time.Duration
	now      func() time.Time

	samples chan Sample

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// NewScriptedSource creates a source from script. interval <= 0 emits as
// fast as the consumer reads.
func NewScriptedSource(script Script, interval time.Duration) *ScriptedSource {
	return &ScriptedSource{
		script:   script,
		interval: interval,
		now:      time.Now,
		samples:  make(chan Sample),
		stopCh:   make(chan struct{}),
	}
}

// Samples returns a script that emits the given samples once.
func Samples(samples ...Sample) Script {
	return func(i int) (Sample, bool) {
		if i >= len(samples) {
			return Sample{}, false
		}
		return samples[i], true
	}
}

// Gaps returns a script of valid samples with the given gaps. NaN entries
// become invalid samples.
func Gaps(gaps ...float64) Script {
	return func(i int) (Sample, bool) {
		if i >= len(gaps) {
			return Sample{}, false
		}
		if math.IsNaN(gaps[i]) {
			return Sample{}, true
		}
		return Sample{Gap: gaps[i], Valid: true, Confidence: 1}, true
	}
}

// Oscillate returns an endless script that sweeps the gap between lo and hi
// with the given period in samples.
func Oscillate(lo, hi float64, period int) Script {
	if period <= 0 {
		period = 1
	}
	return func(i int) (Sample, bool) {
		phase := 2 * math.Pi * float64(i%period) / float64(period)
		gap := lo + (hi-lo)*(1-math.Cos(phase))/2
		return Sample{Gap: gap, Valid: true, Confidence: 1}, true
	}
}

// Start begins emitting samples.
func (s *ScriptedSource) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}
	s.running = true

	s.wg.Add(1)
	go s.run(ctx)
	return nil
}

func (s *ScriptedSource) run(ctx context.Context) {
	defer s.wg.Done()
	defer close(s.samples)

	var tick <-chan time.Time
	if s.interval > 0 {
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for i := 0; ; i++ {
		sample, ok := s.script(i)
		if !ok {
			return
		}
		if sample.At.IsZero() {
			sample.At = s.now()
		}

		select {
		case s.samples <- sample:
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		}

		if tick != nil {
			select {
			case <-tick:
			case <-ctx.Done():
				return
			case <-s.stopCh:
				return
			}
		}
	}
}

// Samples returns the sample channel.
func (s *ScriptedSource) Samples() <-chan Sample {
	return s.samples
}

// FPS returns the nominal rate implied by the interval.
func (s *ScriptedSource) FPS() float64 {
	if s.interval <= 0 {
		return 0
	}
	return float64(time.Second) / float64(s.interval)
}

// Close stops the source.
func (s *ScriptedSource) Close() error {
	s.mu.Lock()
	select {
	case <-s.stopCh:
		s.mu.Unlock()
		return nil
	default:
	}
	close(s.stopCh)
	s.mu.Unlock()

	s.wg.Wait()
	return nil
}

var _ Source = (*ScriptedSource)(nil)
