// Package monitor streams the engine output to the network as RTP so the
// processed audio can be heard on another machine, e.g. with
//
//	ffplay -protocol_whitelist file,udp,rtp -i monitor.sdp
package monitor

import (
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"net"
	"sync"
	"sync/atomic"

	"github.com/pion/rtp"
)

// ErrClosed is returned by Close on a tap that is already closed.
var ErrClosed = errors.New("monitor: closed")

// Payload types for 16-bit linear PCM (RFC 3551).
const (
	PayloadTypeL16Mono = 11 // static, 44100 Hz mono
	PayloadTypeDynamic = 96
)

// Defaults for Config.
const (
	DefaultMaxSamples = 576
	DefaultBuffers    = 8
)

const (
	l16MonoStaticRate = 44100
	rtpHeaderSize     = 12
)

// Config configures a Tap.
type Config struct {
	Addr       string // UDP host:port
	SampleRate int
	ChunkSize  int // largest chunk Offer will accept
	MaxSamples int // samples per RTP packet
	Buffers    int // chunks in flight before Offer drops
}

// DefaultConfig returns a config for the given stream format.
func DefaultConfig(addr string, sampleRate, chunkSize int) Config {
	return Config{
		Addr:       addr,
		SampleRate: sampleRate,
		ChunkSize:  chunkSize,
		MaxSamples: DefaultMaxSamples,
		Buffers:    DefaultBuffers,
	}
}

// Validate checks the config.
func (c Config) Validate() error {
	if c.Addr == "" {
		return fmt.Errorf("monitor: address is required")
	}
	if c.SampleRate <= 0 {
		return fmt.Errorf("monitor: sample rate must be positive, got %d", c.SampleRate)
	}
	if c.ChunkSize <= 0 || c.MaxSamples <= 0 || c.Buffers <= 0 {
		return fmt.Errorf("monitor: chunk size, packet size and buffers must be positive")
	}
	return nil
}

// PayloadType returns the RTP payload type used for the stream.
func (c Config) PayloadType() uint8 {
	if c.SampleRate == l16MonoStaticRate {
		return PayloadTypeL16Mono
	}
	return PayloadTypeDynamic
}

// Stats counts tap activity.
type Stats struct {
	Packets uint64 `json:"packets"`
	Dropped uint64 `json:"dropped"` // chunks dropped because every buffer was busy
	Errors  uint64 `json:"errors"`
}

type frame struct {
	samples []int16
}

// Tap sends rendered chunks as RTP L16 packets. Offer never blocks; the
// network write happens on the tap's own goroutine.
type Tap struct {
	cfg    Config
	conn   net.Conn
	logger *slog.Logger

	free  chan []int16
	queue chan frame
	done  chan struct{}

	seq       rtp.Sequencer
	ssrc      uint32
	timestamp uint32
	packet    rtp.Packet
	wire      []byte
	payload   []byte

	packets atomic.Uint64
	dropped atomic.Uint64
	errs    atomic.Uint64

	wg        sync.WaitGroup
	closeOnce sync.Once
}

// New dials cfg.Addr over UDP and starts the sender.
func New(cfg Config, logger *slog.Logger) (*Tap, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	conn, err := net.Dial("udp", cfg.Addr)
	if err != nil {
		return nil, fmt.Errorf("monitor: dial %s: %w", cfg.Addr, err)
	}

	t := newTap(cfg, conn, logger)
	t.wg.Add(1)
	go t.run()

	t.logger.Info("rtp monitor started",
		"addr", cfg.Addr,
		"payload_type", cfg.PayloadType(),
		"sample_rate", cfg.SampleRate,
		"ssrc", t.ssrc)
	return t, nil
}

func newTap(cfg Config, conn net.Conn, logger *slog.Logger) *Tap {
	if logger == nil {
		logger = slog.Default()
	}
	t := &Tap{
		cfg:     cfg,
		conn:    conn,
		logger:  logger.With("component", "monitor"),
		free:    make(chan []int16, cfg.Buffers),
		queue:   make(chan frame, cfg.Buffers),
		done:    make(chan struct{}),
		seq:     rtp.NewRandomSequencer(),
		ssrc:    rand.Uint32(),
		wire:    make([]byte, rtpHeaderSize+2*cfg.MaxSamples),
		payload: make([]byte, 2*cfg.MaxSamples),
	}
	t.timestamp = rand.Uint32()
	for i := 0; i < cfg.Buffers; i++ {
		t.free <- make([]int16, cfg.ChunkSize)
	}
	t.packet.Header = rtp.Header{
		Version:     2,
		PayloadType: cfg.PayloadType(),
		SSRC:        t.ssrc,
	}
	return t
}

// Offer copies chunk into a free buffer and queues it. The chunk is dropped
// when no buffer is free or it is larger than the configured chunk size.
func (t *Tap) Offer(chunk []int16) {
	if len(chunk) > t.cfg.ChunkSize {
		t.dropped.Add(1)
		return
	}
	select {
	case buf := <-t.free:
		buf = buf[:len(chunk)]
		copy(buf, chunk)
		select {
		case t.queue <- frame{samples: buf}:
		default:
			t.free <- buf[:cap(buf)]
			t.dropped.Add(1)
		}
	default:
		t.dropped.Add(1)
	}
}

func (t *Tap) run() {
	defer t.wg.Done()
	for {
		select {
		case <-t.done:
			return
		case f := <-t.queue:
			t.send(f.samples)
			t.free <- f.samples[:cap(f.samples)]
		}
	}
}

// send packetizes samples, at most MaxSamples per packet.
func (t *Tap) send(samples []int16) {
	for len(samples) > 0 {
		n := min(len(samples), t.cfg.MaxSamples)
		if err := t.writePacket(samples[:n]); err != nil {
			if t.errs.Add(1) == 1 {
				t.logger.Warn("rtp send failed", "error", err)
			}
		} else {
			t.packets.Add(1)
		}
		t.timestamp += uint32(n)
		samples = samples[n:]
	}
}

func (t *Tap) writePacket(samples []int16) error {
	payload := t.payload[:2*len(samples)]
	for i, s := range samples {
		payload[2*i] = byte(uint16(s) >> 8)
		payload[2*i+1] = byte(s)
	}

	t.packet.SequenceNumber = t.seq.NextSequenceNumber()
	t.packet.Timestamp = t.timestamp
	t.packet.Payload = payload

	n, err := t.packet.MarshalTo(t.wire)
	if err != nil {
		return err
	}
	_, err = t.conn.Write(t.wire[:n])
	return err
}

// Stats returns the tap counters.
func (t *Tap) Stats() Stats {
	return Stats{
		Packets: t.packets.Load(),
		Dropped: t.dropped.Load(),
		Errors:  t.errs.Load(),
	}
}

// Config returns the tap configuration.
func (t *Tap) Config() Config {
	return t.cfg
}

// Close stops the sender and closes the socket.
func (t *Tap) Close() error {
	err := ErrClosed
	t.closeOnce.Do(func() {
		close(t.done)
		t.wg.Wait()
		err = t.conn.Close()
		st := t.Stats()
		t.logger.Info("rtp monitor stopped", "packets", st.Packets, "dropped", st.Dropped, "errors", st.Errors)
	})
	return err
}
