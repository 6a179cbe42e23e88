// Package hub fans dashboard frames out to websocket subscribers.
//
// Each Hub carries one Kind of frame. Status and camera frames are lossy: a
// subscriber that is behind skips them and catches up on the next one. Log
// frames are not: a subscriber that cannot keep up with the log is
// disconnected rather than shown a log with holes.
package hub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/gofiber/websocket/v2"

	"github.com/teslashibe/go-mouthfx/pkg/control"
)

// ErrWrongKind is returned when a frame is published to a hub of another kind.
var ErrWrongKind = errors.New("hub: frame kind does not match hub")

// Kind identifies what a Frame carries.
type Kind uint8

const (
	// KindStatus is a JSON control.Status snapshot.
	KindStatus Kind = iota
	// KindLog is a JSON LogEntry.
	KindLog
	// KindCamera is a JPEG of the annotated camera frame.
	KindCamera
)

func (k Kind) String() string {
	switch k {
	case KindStatus:
		return "status"
	case KindLog:
		return "logs"
	case KindCamera:
		return "camera"
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// lossy reports whether a lagging subscriber may skip frames of this kind.
func (k Kind) lossy() bool {
	return k != KindLog
}

// opcode is the websocket message type used on the wire.
func (k Kind) opcode() int {
	if k == KindCamera {
		return websocket.BinaryMessage
	}
	return websocket.TextMessage
}

// Frame is one outbound dashboard message.
type Frame struct {
	Kind    Kind
	Payload []byte
}

// LogEntry is one dashboard log line.
type LogEntry struct {
	Time    string `json:"time"`
	Message string `json:"message"`
}

// StatusFrame encodes a session snapshot.
func StatusFrame(st control.Status) (Frame, error) {
	data, err := json.Marshal(st)
	if err != nil {
		return Frame{}, fmt.Errorf("encode status: %w", err)
	}
	return Frame{Kind: KindStatus, Payload: data}, nil
}

// LogFrame encodes one log line.
func LogFrame(e LogEntry) (Frame, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return Frame{}, fmt.Errorf("encode log entry: %w", err)
	}
	return Frame{Kind: KindLog, Payload: data}, nil
}

// CameraFrame wraps an encoded JPEG.
func CameraFrame(jpeg []byte) Frame {
	return Frame{Kind: KindCamera, Payload: jpeg}
}

// Hub tracks the subscribers of one frame kind.
type Hub struct {
	kind   Kind
	logger *slog.Logger

	subs    map[*Subscriber]struct{}
	publish chan Frame
	join    chan *Subscriber
	leave   chan *Subscriber

	// Guards subs and every queue close.
	mu sync.RWMutex

	skipped atomic.Uint64
	running atomic.Bool
	done    chan struct{}
}

// New creates a hub for frames of kind. A nil logger uses slog.Default().
func New(kind Kind, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		kind:    kind,
		logger:  logger.With("component", "hub", "kind", kind.String()),
		subs:    make(map[*Subscriber]struct{}),
		publish: make(chan Frame, queueDepth),
		join:    make(chan *Subscriber),
		leave:   make(chan *Subscriber),
		done:    make(chan struct{}),
	}
}

// Kind returns the frame kind this hub carries.
func (h *Hub) Kind() Kind {
	return h.kind
}

// Run delivers frames until ctx is done, then closes every subscriber
// queue. Call it on its own goroutine.
func (h *Hub) Run(ctx context.Context) {
	h.running.Store(true)
	defer func() {
		h.running.Store(false)
		h.mu.Lock()
		for sub := range h.subs {
			h.removeLocked(sub)
		}
		h.mu.Unlock()
		close(h.done)
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case sub := <-h.join:
			h.mu.Lock()
			h.subs[sub] = struct{}{}
			n := len(h.subs)
			h.mu.Unlock()
			h.logger.Debug("subscriber joined", "subscribers", n)

		case sub := <-h.leave:
			h.mu.Lock()
			h.removeLocked(sub)
			n := len(h.subs)
			h.mu.Unlock()
			h.logger.Debug("subscriber left", "subscribers", n)

		case f := <-h.publish:
			h.deliver(f)
		}
	}
}

func (h *Hub) deliver(f Frame) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for sub := range h.subs {
		if sub.offer(f) {
			continue
		}
		if f.Kind.lossy() {
			h.skipped.Add(1)
			continue
		}
		h.removeLocked(sub)
		h.logger.Warn("disconnected subscriber behind on the log")
	}
}

// removeLocked closes sub's queue once. h.mu must be held.
func (h *Hub) removeLocked(sub *Subscriber) {
	if _, ok := h.subs[sub]; !ok {
		return
	}
	delete(h.subs, sub)
	close(sub.queue)
}

// Publish queues f for every subscriber. It never blocks; when the hub is
// backed up the frame is discarded.
func (h *Hub) Publish(f Frame) error {
	if f.Kind != h.kind {
		return fmt.Errorf("%w: %s on %s hub", ErrWrongKind, f.Kind, h.kind)
	}
	select {
	case h.publish <- f:
	default:
		h.skipped.Add(1)
	}
	return nil
}

// PublishStatus encodes and publishes a status snapshot.
func (h *Hub) PublishStatus(st control.Status) error {
	f, err := StatusFrame(st)
	if err != nil {
		return err
	}
	return h.Publish(f)
}

// PublishLog encodes and publishes one log line.
func (h *Hub) PublishLog(e LogEntry) error {
	f, err := LogFrame(e)
	if err != nil {
		return err
	}
	return h.Publish(f)
}

// PublishCamera publishes a JPEG frame.
func (h *Hub) PublishCamera(jpeg []byte) error {
	return h.Publish(CameraFrame(jpeg))
}

// Subscribers returns the number of attached subscribers.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Skipped returns how many frames were not delivered to a lagging
// subscriber or a full hub.
func (h *Hub) Skipped() uint64 {
	return h.skipped.Load()
}

// IsRunning reports whether Run is active.
func (h *Hub) IsRunning() bool {
	return h.running.Load()
}

// Done is closed when Run returns.
func (h *Hub) Done() <-chan struct{} {
	return h.done
}
