package hub

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/gofiber/websocket/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teslashibe/go-mouthfx/pkg/control"
)

func startHub(t *testing.T, kind Kind) (*Hub, context.CancelFunc) {
	t.Helper()
	h := New(kind, nil)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go h.Run(ctx)
	return h, cancel
}

// join adds a connectionless subscriber, as Attach would.
func join(t *testing.T, h *Hub, depth int) *Subscriber {
	t.Helper()
	sub := &Subscriber{hub: h, queue: make(chan Frame, depth)}
	h.join <- sub
	return sub
}

func next(t *testing.T, sub *Subscriber) Frame {
	t.Helper()
	select {
	case f, ok := <-sub.queue:
		require.True(t, ok, "queue closed")
		return f
	case <-time.After(time.Second):
		t.Fatal("frame not delivered")
	}
	return Frame{}
}

func TestPublishStatus(t *testing.T) {
	h, _ := startHub(t, KindStatus)
	a := join(t, h, 4)
	b := join(t, h, 4)
	require.Eventually(t, func() bool { return h.Subscribers() == 2 }, time.Second, time.Millisecond)

	require.NoError(t, h.PublishStatus(control.Status{SessionID: "s1", Value: 64, Effect: "reverb"}))
	for _, sub := range []*Subscriber{a, b} {
		f := next(t, sub)
		assert.Equal(t, KindStatus, f.Kind)

		var st control.Status
		require.NoError(t, json.Unmarshal(f.Payload, &st))
		assert.Equal(t, "s1", st.SessionID)
		assert.Equal(t, 64, st.Value)
		assert.Equal(t, "reverb", st.Effect)
	}
}

func TestPublish_WrongKind(t *testing.T) {
	h := New(KindLog, nil)
	err := h.PublishCamera([]byte{0xff, 0xd8})
	assert.ErrorIs(t, err, ErrWrongKind)
	assert.ErrorIs(t, h.PublishStatus(control.Status{}), ErrWrongKind)
}

func TestKind_Wire(t *testing.T) {
	tests := []struct {
		kind   Kind
		name   string
		opcode int
		lossy  bool
	}{
		{KindStatus, "status", websocket.TextMessage, true},
		{KindLog, "logs", websocket.TextMessage, false},
		{KindCamera, "camera", websocket.BinaryMessage, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.name, tt.kind.String())
			assert.Equal(t, tt.opcode, tt.kind.opcode())
			assert.Equal(t, tt.lossy, tt.kind.lossy())
		})
	}
}

func TestCameraFrames_SkipLaggingSubscriber(t *testing.T) {
	h, _ := startHub(t, KindCamera)
	sub := join(t, h, 1)
	require.Eventually(t, func() bool { return h.Subscribers() == 1 }, time.Second, time.Millisecond)

	require.NoError(t, h.PublishCamera([]byte{1}))
	require.NoError(t, h.PublishCamera([]byte{2}))
	require.Eventually(t, func() bool { return h.Skipped() == 1 }, time.Second, time.Millisecond)

	assert.Equal(t, 1, h.Subscribers(), "still attached")
	assert.Equal(t, []byte{1}, next(t, sub).Payload)

	require.NoError(t, h.PublishCamera([]byte{3}))
	assert.Equal(t, []byte{3}, next(t, sub).Payload, "catches up on the next frame")
}

func TestLogFrames_DisconnectLaggingSubscriber(t *testing.T) {
	h, _ := startHub(t, KindLog)
	sub := join(t, h, 1)
	require.Eventually(t, func() bool { return h.Subscribers() == 1 }, time.Second, time.Millisecond)

	require.NoError(t, h.PublishLog(LogEntry{Time: "12:00:00", Message: "one"}))
	require.NoError(t, h.PublishLog(LogEntry{Time: "12:00:01", Message: "two"}))

	require.Eventually(t, func() bool { return h.Subscribers() == 0 }, time.Second, time.Millisecond)

	var e LogEntry
	require.NoError(t, json.Unmarshal(next(t, sub).Payload, &e))
	assert.Equal(t, "one", e.Message)
	_, ok := <-sub.queue
	assert.False(t, ok, "queue closed after the backlog")
	assert.False(t, sub.Offer(CameraFrame(nil)), "removed subscriber takes no frames")
}

func TestLeave(t *testing.T) {
	h, _ := startHub(t, KindStatus)
	sub := join(t, h, 1)
	h.leave <- sub
	h.leave <- sub // a second leave is harmless

	require.Eventually(t, func() bool { return h.Subscribers() == 0 }, time.Second, time.Millisecond)
	_, ok := <-sub.queue
	assert.False(t, ok)
}

func TestStop(t *testing.T) {
	h, cancel := startHub(t, KindStatus)
	sub := join(t, h, 1)
	require.True(t, h.IsRunning())
	cancel()

	select {
	case <-h.Done():
	case <-time.After(time.Second):
		t.Fatal("hub did not stop")
	}
	assert.False(t, h.IsRunning())
	assert.Zero(t, h.Subscribers())
	_, ok := <-sub.queue
	assert.False(t, ok)

	assert.Nil(t, Attach(h, nil), "no attach after stop")
	assert.False(t, sub.Offer(Frame{Kind: KindStatus}))
}

func TestSubscriberOffer(t *testing.T) {
	h, _ := startHub(t, KindStatus)
	sub := join(t, h, 1)
	require.Eventually(t, func() bool { return h.Subscribers() == 1 }, time.Second, time.Millisecond)

	f, err := StatusFrame(control.Status{Value: 1})
	require.NoError(t, err)
	assert.True(t, sub.Offer(f))
	assert.False(t, sub.Offer(f), "full queue")
}
