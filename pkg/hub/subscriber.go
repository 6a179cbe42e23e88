package hub

import (
	"time"

	"github.com/gofiber/websocket/v2"
)

const (
	writeTimeout = 5 * time.Second
	idleTimeout  = 30 * time.Second
	pingEvery    = idleTimeout / 3

	// Dashboard pages only ever send control frames.
	inboundLimit = 512

	queueDepth = 128
)

// Subscriber is one dashboard websocket attached to a Hub.
type Subscriber struct {
	hub   *Hub
	conn  *websocket.Conn
	queue chan Frame
}

// Attach registers conn with h. It returns nil once h has stopped.
func Attach(h *Hub, conn *websocket.Conn) *Subscriber {
	sub := &Subscriber{hub: h, conn: conn, queue: make(chan Frame, queueDepth)}
	select {
	case h.join <- sub:
		return sub
	case <-h.done:
		return nil
	}
}

// Offer queues f without blocking, e.g. the snapshot a new page starts
// from. It reports false when the queue is full or the subscriber has been
// removed from its hub.
func (s *Subscriber) Offer(f Frame) bool {
	s.hub.mu.RLock()
	defer s.hub.mu.RUnlock()
	if _, ok := s.hub.subs[s]; !ok {
		return false
	}
	return s.offer(f)
}

// offer queues f. The hub's lock must be held.
func (s *Subscriber) offer(f Frame) bool {
	select {
	case s.queue <- f:
		return true
	default:
		return false
	}
}

// Serve writes queued frames on a new goroutine and discards inbound
// messages until the page goes away. The websocket handler calls it last.
func (s *Subscriber) Serve() {
	go s.write()
	s.read()
}

func (s *Subscriber) read() {
	defer s.detach()

	extend := func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(idleTimeout))
	}
	s.conn.SetReadLimit(inboundLimit)
	_ = extend("")
	s.conn.SetPongHandler(extend)

	for {
		if _, _, err := s.conn.NextReader(); err != nil {
			return
		}
	}
}

func (s *Subscriber) detach() {
	select {
	case s.hub.leave <- s:
	case <-s.hub.done:
	}
	s.conn.Close()
}

// write is the only goroutine that writes to conn. A closed queue ends the
// stream with a close frame.
func (s *Subscriber) write() {
	ping := time.NewTicker(pingEvery)
	defer ping.Stop()
	defer s.conn.Close()

	for {
		var (
			op      int
			payload []byte
		)
		select {
		case f, open := <-s.queue:
			if !open {
				op = websocket.CloseMessage
			} else {
				op, payload = f.Kind.opcode(), f.Payload
			}
		case <-ping.C:
			op = websocket.PingMessage
		}

		_ = s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := s.conn.WriteMessage(op, payload); err != nil || op == websocket.CloseMessage {
			return
		}
	}
}
