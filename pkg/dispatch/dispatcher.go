// Package dispatch sends control values to the network with change
// suppression and rate limiting.
//
// A value that holds steady produces exactly one message. A value that keeps
// changing is throttled to at most RateLimitHz messages per second.
package dispatch

import (
	"log/slog"
	"time"
)

// Sender transmits one control value. Implementations are fire-and-forget.
type Sender interface {
	Send(value int) error
}

// SenderFunc adapts a function to the Sender interface.
type SenderFunc func(value int) error

// Send calls f(value).
func (f SenderFunc) Send(value int) error {
	return f(value)
}

// Statistics summarizes dispatcher activity since the last reset.
type Statistics struct {
	TotalMessages     uint64        `json:"total_messages"`
	Elapsed           time.Duration `json:"elapsed"`
	MessagesPerSecond float64       `json:"messages_per_second"`
	LastValue         int           `json:"last_value"`
	HasLastValue      bool          `json:"has_last_value"`
	SendErrors        uint64        `json:"send_errors"`
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(d *Dispatcher) {
		d.now = now
	}
}

// WithLogger sets the logger used for send failures.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Dispatcher) {
		d.logger = logger
	}
}

// Dispatcher deduplicates and rate-limits outgoing control values.
// It is not safe for concurrent use; it belongs to the control loop.
type Dispatcher struct {
	sender Sender
	now    func() time.Time
	logger *slog.Logger

	minInterval time.Duration

	lastValue    int
	hasLastValue bool
	lastSent     time.Time

	messageCount uint64
	sendErrors   uint64
	windowStart  time.Time
}

// New creates a Dispatcher limited to rateLimitHz messages per second.
func New(sender Sender, rateLimitHz int, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		sender: sender,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.logger == nil {
		d.logger = slog.Default()
	}

	d.Configure(rateLimitHz)
	d.windowStart = d.now()
	return d
}

// Configure sets the rate limit. rateLimitHz <= 0 removes the limit.
func (d *Dispatcher) Configure(rateLimitHz int) {
	if rateLimitHz <= 0 {
		d.minInterval = 0
		return
	}
	d.minInterval = time.Second / time.Duration(rateLimitHz)
}

// MinInterval returns the minimum spacing between two sends.
func (d *Dispatcher) MinInterval() time.Duration {
	return d.minInterval
}

// TrySend transmits value unless it equals the last sent value or the
// previous send was less than MinInterval ago. force bypasses both checks.
// It reports whether a message was actually transmitted; a transport error
// counts as not transmitted and leaves the dedup state unchanged.
func (d *Dispatcher) TrySend(value int, force bool) bool {
	now := d.now()

	if !force {
		if d.hasLastValue && value == d.lastValue {
			return false
		}
		if !d.lastSent.IsZero() && now.Sub(d.lastSent) < d.minInterval {
			return false
		}
	}

	if err := d.sender.Send(value); err != nil {
		d.sendErrors++
		d.logger.Warn("control value send failed",
			"value", value,
			"error", err,
			"send_errors", d.sendErrors,
		)
		return false
	}

	d.lastValue = value
	d.hasLastValue = true
	d.lastSent = now
	d.messageCount++
	return true
}

// Statistics returns counters for the current window.
func (d *Dispatcher) Statistics() Statistics {
	elapsed := d.now().Sub(d.windowStart)

	var rate float64
	if elapsed > 0 {
		rate = float64(d.messageCount) / elapsed.Seconds()
	}

	return Statistics{
		TotalMessages:     d.messageCount,
		Elapsed:           elapsed,
		MessagesPerSecond: rate,
		LastValue:         d.lastValue,
		HasLastValue:      d.hasLastValue,
		SendErrors:        d.sendErrors,
	}
}

// ResetStatistics zeroes the counters and restarts the window.
// The dedup and rate-limit state is kept.
func (d *Dispatcher) ResetStatistics() {
	d.messageCount = 0
	d.sendErrors = 0
	d.windowStart = d.now()
}
