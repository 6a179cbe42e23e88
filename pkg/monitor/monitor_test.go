package monitor

import (
	"encoding/binary"
	"net"
	"testing"
	"time"

	"github.com/pion/rtp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func listen(t *testing.T) *net.UDPConn {
	t.Helper()
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func receive(t *testing.T, conn *net.UDPConn) rtp.Packet {
	t.Helper()
	buf := make([]byte, 2048)
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	n, _, err := conn.ReadFromUDP(buf)
	require.NoError(t, err)

	var p rtp.Packet
	require.NoError(t, p.Unmarshal(buf[:n]))
	return p
}

func TestConfig(t *testing.T) {
	cfg := DefaultConfig("127.0.0.1:5004", 44100, 1024)
	require.NoError(t, cfg.Validate())
	assert.Equal(t, uint8(PayloadTypeL16Mono), cfg.PayloadType())

	cfg.SampleRate = 48000
	assert.Equal(t, uint8(PayloadTypeDynamic), cfg.PayloadType())

	assert.Error(t, DefaultConfig("", 44100, 1024).Validate())
	assert.Error(t, DefaultConfig("127.0.0.1:5004", 0, 1024).Validate())
	assert.Error(t, DefaultConfig("127.0.0.1:5004", 44100, 0).Validate())
}

func TestTapPacketizes(t *testing.T) {
	rx := listen(t)
	tap, err := New(DefaultConfig(rx.LocalAddr().String(), 44100, 1024), nil)
	require.NoError(t, err)
	defer tap.Close()

	chunk := make([]int16, 1000)
	for i := range chunk {
		chunk[i] = int16(i - 500)
	}
	tap.Offer(chunk)

	first := receive(t, rx)
	second := receive(t, rx)

	assert.Equal(t, uint8(2), first.Version)
	assert.Equal(t, uint8(PayloadTypeL16Mono), first.PayloadType)
	assert.Equal(t, first.SSRC, second.SSRC)
	assert.Equal(t, first.SequenceNumber+1, second.SequenceNumber)
	assert.Equal(t, first.Timestamp+DefaultMaxSamples, second.Timestamp)

	require.Len(t, first.Payload, 2*DefaultMaxSamples)
	require.Len(t, second.Payload, 2*(1000-DefaultMaxSamples))
	assert.Equal(t, int16(-500), int16(binary.BigEndian.Uint16(first.Payload[0:])))
	assert.Equal(t, int16(-499), int16(binary.BigEndian.Uint16(first.Payload[2:])))
	assert.Equal(t, int16(499), int16(binary.BigEndian.Uint16(second.Payload[len(second.Payload)-2:])))

	require.Eventually(t, func() bool { return tap.Stats().Packets == 2 }, time.Second, time.Millisecond)
}

func TestTapTimestampContinues(t *testing.T) {
	rx := listen(t)
	tap, err := New(DefaultConfig(rx.LocalAddr().String(), 22050, 256), nil)
	require.NoError(t, err)
	defer tap.Close()

	tap.Offer(make([]int16, 256))
	a := receive(t, rx)
	tap.Offer(make([]int16, 256))
	b := receive(t, rx)

	assert.Equal(t, uint8(PayloadTypeDynamic), a.PayloadType)
	assert.Equal(t, a.Timestamp+256, b.Timestamp)
	assert.Equal(t, a.SequenceNumber+1, b.SequenceNumber)
}

func TestOfferDropsWithoutBlocking(t *testing.T) {
	rx := listen(t)
	conn, err := net.Dial("udp", rx.LocalAddr().String())
	require.NoError(t, err)
	defer conn.Close()

	cfg := DefaultConfig(rx.LocalAddr().String(), 44100, 4)
	cfg.Buffers = 1
	tap := newTap(cfg, conn, nil) // sender not running

	tap.Offer([]int16{1, 2, 3, 4})
	tap.Offer([]int16{5, 6, 7, 8})
	tap.Offer(make([]int16, 5))

	assert.Equal(t, uint64(2), tap.Stats().Dropped)
	f := <-tap.queue
	assert.Equal(t, []int16{1, 2, 3, 4}, f.samples)
}

func TestOfferCopies(t *testing.T) {
	rx := listen(t)
	conn, err := net.Dial("udp", rx.LocalAddr().String())
	require.NoError(t, err)
	defer conn.Close()

	tap := newTap(DefaultConfig(rx.LocalAddr().String(), 44100, 4), conn, nil)
	chunk := []int16{1, 2, 3}
	tap.Offer(chunk)
	chunk[0] = 99

	f := <-tap.queue
	assert.Equal(t, []int16{1, 2, 3}, f.samples)
}

func TestClose(t *testing.T) {
	rx := listen(t)
	tap, err := New(DefaultConfig(rx.LocalAddr().String(), 44100, 16), nil)
	require.NoError(t, err)

	require.NoError(t, tap.Close())
	assert.ErrorIs(t, tap.Close(), ErrClosed)

	tap.Offer(make([]int16, 16)) // after close: queued or dropped, never blocks
}
