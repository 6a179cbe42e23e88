package engine

import (
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teslashibe/go-mouthfx/pkg/audioio"
	"github.com/teslashibe/go-mouthfx/pkg/dsp"
	"github.com/teslashibe/go-mouthfx/pkg/effects"
)

func ramp(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = float64(i+1) / float64(n)
	}
	return out
}

// expectedChunk runs the neutral chain over src[start:end] padded to size.
func expectedChunk(t *testing.T, src []float64, start, end, size int) []int16 {
	t.Helper()
	buf := make([]float64, size)
	copy(buf, src[start:end])
	require.NoError(t, dsp.Normalize(buf))
	out := make([]int16, size)
	audioio.FloatToPCM16(out, buf)
	return out
}

func newTestEngine(t *testing.T, samples []float64, chunk int, opts ...audioio.MockDeviceOption) (*Engine, *audioio.MockDevice) {
	t.Helper()
	dev := audioio.NewMockDevice(nil, opts...)
	cfg := audioio.Config{Backend: audioio.BackendMock, SampleRate: 1000, ChunkSize: chunk, Channels: 1}
	store := effects.NewStore(effects.NeutralParams(), effects.Reverb)
	e, err := New(dev, audioio.Clip{Samples: samples, SampleRate: 1000}, store, cfg, nil)
	require.NoError(t, err)
	return e, dev
}

func TestRender_LoopsWithPadding(t *testing.T) {
	src := ramp(100)
	e, dev := newTestEngine(t, src, 30)
	require.NoError(t, e.Play())

	chunks, done := dev.LastStream().Pull(5)
	require.False(t, done)
	require.Len(t, chunks, 5)

	assert.Equal(t, expectedChunk(t, src, 0, 30, 30), chunks[0])
	assert.Equal(t, expectedChunk(t, src, 30, 60, 30), chunks[1])
	assert.Equal(t, expectedChunk(t, src, 60, 90, 30), chunks[2])
	assert.Equal(t, expectedChunk(t, src, 90, 100, 30), chunks[3])
	for _, s := range chunks[3][10:] {
		assert.Zero(t, s, "tail of the last chunk is padding")
	}
	assert.Equal(t, chunks[0], chunks[4], "cursor wrapped to the start")
}

func TestRender_ExactMultipleWrapsWithoutSilentChunk(t *testing.T) {
	src := ramp(60)
	e, dev := newTestEngine(t, src, 30)
	require.NoError(t, e.Play())

	chunks, _ := dev.LastStream().Pull(3)
	require.Len(t, chunks, 3)
	assert.Equal(t, chunks[0], chunks[2])
}

func TestRender_NotPlayingIsSilentAndKeepsCursor(t *testing.T) {
	src := ramp(100)
	e, _ := newTestEngine(t, src, 30)

	out := []int16{1, 2, 3}
	assert.True(t, e.Render(out))
	assert.Equal(t, []int16{0, 0, 0}, out)
	assert.Zero(t, e.Stats().Chunks)
}

func TestStop_CompletesStream(t *testing.T) {
	src := ramp(100)
	e, dev := newTestEngine(t, src, 30)
	require.NoError(t, e.Play())
	s := dev.LastStream()
	s.Pull(2)

	require.NoError(t, e.Stop())
	assert.False(t, e.IsPlaying())
	assert.True(t, s.Closed())
	assert.False(t, e.Render(make([]int16, 30)), "stop signal reports completion")

	assert.NoError(t, e.Stop(), "stop is a no-op when stopped")
}

func TestPlay_RewindsAfterStop(t *testing.T) {
	src := ramp(100)
	e, dev := newTestEngine(t, src, 30)

	require.NoError(t, e.Play())
	first, _ := dev.LastStream().Pull(2)
	require.NoError(t, e.Stop())

	require.NoError(t, e.Play())
	again, _ := dev.LastStream().Pull(1)
	assert.Equal(t, first[0], again[0])
}

func TestPlay_Idempotent(t *testing.T) {
	e, dev := newTestEngine(t, ramp(10), 4)
	require.NoError(t, e.Play())
	require.NoError(t, e.Play())
	assert.Equal(t, int64(1), dev.Stats().StreamsOpened)
}

func TestPlay_DeviceUnavailable(t *testing.T) {
	e, _ := newTestEngine(t, ramp(10), 4, audioio.WithOpenError(errors.New("no output")))
	err := e.Play()
	assert.ErrorIs(t, err, audioio.ErrDeviceUnavailable)
	assert.False(t, e.IsPlaying())
}

func TestRelease(t *testing.T) {
	e, dev := newTestEngine(t, ramp(10), 4)
	require.NoError(t, e.Play())
	s := dev.LastStream()

	require.NoError(t, e.Release())
	assert.True(t, s.Closed())
	assert.ErrorIs(t, e.Play(), ErrReleased)
	assert.NoError(t, e.Release())
}

func TestRender_NonFiniteBecomesSilence(t *testing.T) {
	src := []float64{0.5, math.NaN(), 0.5, 0.5}
	e, dev := newTestEngine(t, src, 4)
	require.NoError(t, e.Play())

	chunks, _ := dev.LastStream().Pull(1)
	require.Len(t, chunks, 1)
	assert.Equal(t, []int16{0, 0, 0, 0}, chunks[0])
	assert.Equal(t, uint64(1), e.Stats().Dropouts)
}

func TestRender_PanicBecomesSilence(t *testing.T) {
	e, dev := newTestEngine(t, ramp(8), 4)
	e.SetTap(panicTap{})
	require.NoError(t, e.Play())

	chunks, done := dev.LastStream().Pull(1)
	assert.False(t, done)
	require.Len(t, chunks, 1)
	assert.Equal(t, []int16{0, 0, 0, 0}, chunks[0])
	assert.Equal(t, uint64(1), e.Stats().Dropouts)
}

type panicTap struct{}

func (panicTap) Offer([]int16) { panic("tap") }

type recordingTap struct {
	mu     sync.Mutex
	chunks [][]int16
}

func (r *recordingTap) Offer(chunk []int16) {
	r.mu.Lock()
	r.chunks = append(r.chunks, append([]int16(nil), chunk...))
	r.mu.Unlock()
}

func TestSetTap(t *testing.T) {
	e, dev := newTestEngine(t, ramp(8), 4)
	tap := &recordingTap{}
	e.SetTap(tap)
	require.NoError(t, e.Play())

	chunks, _ := dev.LastStream().Pull(2)
	assert.Equal(t, chunks, tap.chunks)

	e.SetTap(nil)
	dev.LastStream().Pull(1)
	assert.Len(t, tap.chunks, 2)
}

func TestRender_FollowsLiveParameters(t *testing.T) {
	src := make([]float64, 64)
	for i := range src {
		src[i] = math.Sin(2 * math.Pi * 0.4 * float64(i))
	}
	dev := audioio.NewMockDevice(nil)
	cfg := audioio.Config{SampleRate: 1000, ChunkSize: 64, Channels: 1}
	store := effects.NewStore(effects.NeutralParams(), effects.Lowpass)
	e, err := New(dev, audioio.Clip{Samples: src, SampleRate: 1000}, store, cfg, nil)
	require.NoError(t, err)
	require.NoError(t, e.Play())

	dry, _ := dev.LastStream().Pull(1)
	store.Update(0)
	wet, _ := dev.LastStream().Pull(1)
	assert.NotEqual(t, dry[0], wet[0])
}

func TestStop_JoinsClockedStream(t *testing.T) {
	e, _ := newTestEngine(t, ramp(100), 1, audioio.WithClock())
	require.NoError(t, e.Play())
	require.Eventually(t, func() bool { return e.Stats().Chunks >= 3 }, time.Second, time.Millisecond)

	require.NoError(t, e.Stop())
	after := e.Stats().Chunks
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, after, e.Stats().Chunks)
}

func TestNew_Resamples(t *testing.T) {
	dev := audioio.NewMockDevice(nil)
	cfg := audioio.Config{SampleRate: 2000, ChunkSize: 4, Channels: 1}
	store := effects.NewStore(effects.NeutralParams(), effects.Reverb)

	e, err := New(dev, audioio.Clip{Samples: ramp(50), SampleRate: 1000}, store, cfg, nil)
	require.NoError(t, err)
	assert.InDelta(t, 0.05, e.Stats().Duration, 1e-9)
	assert.Len(t, e.samples, 100)

	_, err = New(dev, audioio.Clip{}, store, cfg, nil)
	assert.ErrorIs(t, err, ErrEmptySource)
}

func TestToggle(t *testing.T) {
	e, _ := newTestEngine(t, ramp(10), 4)
	require.NoError(t, e.Toggle())
	assert.True(t, e.IsPlaying())
	require.NoError(t, e.Toggle())
	assert.False(t, e.IsPlaying())
}

func BenchmarkRender(b *testing.B) {
	src := make([]float64, 44100)
	for i := range src {
		src[i] = 0.5 * math.Sin(2*math.Pi*440*float64(i)/44100)
	}
	dev := audioio.NewMockDevice(nil)
	store := effects.NewStore(effects.Params{Cutoff: 0.4, Drive: 0.5, ReverbAmount: 0.3}, effects.Reverb)
	e, err := New(dev, audioio.Clip{Samples: src, SampleRate: 44100}, store, audioio.DefaultConfig(), nil)
	if err != nil {
		b.Fatal(err)
	}
	e.playing.Store(true)
	out := make([]int16, audioio.DefaultChunkSize)

	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		e.Render(out)
	}
}
