package render

import (
	"context"
	"errors"
	"image"
	"image/color"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"periph.io/x/conn/v3/physic"

	"github.com/coreman2200/strandlight/internal/clock"
	diag "github.com/coreman2200/strandlight/internal/diagnostics"
	"github.com/coreman2200/strandlight/internal/framecache"
	"github.com/coreman2200/strandlight/internal/layout"
	"github.com/coreman2200/strandlight/internal/led"
	"github.com/coreman2200/strandlight/internal/patterns"
	"github.com/coreman2200/strandlight/internal/tcl"
)

type sent struct {
	payload  []byte
	targetMS int64
}

// fakeTransport captures frames and can fail on demand.
type fakeTransport struct {
	mu     sync.Mutex
	frames []sent
	fail   error
	resets int
	closed bool
}

func (d *fakeTransport) SendFrame(_ context.Context, payload []byte, targetMS int64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.fail != nil {
		return d.fail
	}
	d.frames = append(d.frames, sent{append([]byte(nil), payload...), targetMS})
	return nil
}

func (d *fakeTransport) RequireReset() {
	d.mu.Lock()
	d.resets++
	d.mu.Unlock()
}

func (d *fakeTransport) Close() error { d.closed = true; return nil }

func (d *fakeTransport) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.frames)
}

// redLoader returns 8x1 frames with pixel 0 red; frames in badSize come back 9x1.
type redLoader struct{ badSize map[int]bool }

func (l redLoader) Load(_ string, num int) (image.Image, error) {
	w := 8
	if l.badSize[num] {
		w = 9
	}
	img := image.NewRGBA(image.Rect(0, 0, w, 1))
	img.SetRGBA(0, 0, color.RGBA{R: 255, A: 255})
	return img, nil
}

type fixture struct {
	e   *Engine
	drv *fakeTransport
	clk *clock.Manual
	rec *diag.Recorder
}

var epoch = time.UnixMilli(1_650_000_000_000)

func newFixture(t *testing.T, loader framecache.Loader) fixture {
	t.Helper()
	l, err := layout.New(8, 1, map[int][]layout.Point{
		0: {{X: 0, Y: 0}, {X: 1, Y: 0}, {X: 2, Y: 0}, {X: 3, Y: 0}},
		1: {{X: 4, Y: 0}, {X: 5, Y: 0}, {X: 6, Y: 0}, {X: 7, Y: 0}},
	})
	require.NoError(t, err)
	m, err := led.NewMapper(1.0)
	require.NoError(t, err)
	clk := clock.NewManual(epoch)
	rec := diag.NewRecorder(0)
	drv := &fakeTransport{}
	e, err := NewEngine(Config{
		Layout:    l,
		Mapper:    m,
		Cache:     framecache.New(10, loader, framecache.WithClock(clk), framecache.WithDiagnostics(rec)),
		Transport: drv,
		FPS:       10 * physic.Hertz,
		Patterns:  patterns.Builtins(),
		Clock:     clk,
		Sink:      rec,
	})
	require.NoError(t, err)
	return fixture{e: e, drv: drv, clk: clk, rec: rec}
}

func TestTickSendsUnsentFramesInOrder(t *testing.T) {
	f := newFixture(t, redLoader{})
	require.NoError(t, f.e.Tick(context.Background(), "intro", 0))

	require.Equal(t, 2, f.drv.count())
	base := clock.Millis(epoch)
	assert.Equal(t, base+100, f.drv.frames[0].targetMS)
	assert.Equal(t, base+200, f.drv.frames[1].targetMS)

	p := f.drv.frames[0].payload
	require.Len(t, p, tcl.PayloadSize)
	assert.Equal(t, byte(tcl.Bias), p[0])
	assert.Equal(t, byte(tcl.Bias+1), p[16])

	// already-sent frames are not repeated
	require.NoError(t, f.e.Tick(context.Background(), "intro", 0.1))
	assert.Equal(t, 4, f.drv.count())
	assert.Equal(t, base+300-100, f.drv.frames[2].targetMS)

	st := f.e.Status()
	assert.Equal(t, uint64(4), st.FramesSent)
	assert.Equal(t, "intro", st.Clip)
	assert.Equal(t, 4, st.CacheSize)
	assert.Equal(t, 2, st.RenderMS.Count)
}

func TestTickDropsWrongSizeFrames(t *testing.T) {
	f := newFixture(t, redLoader{badSize: map[int]bool{1: true}})
	require.NoError(t, f.e.Tick(context.Background(), "intro", 0))
	assert.Equal(t, 1, f.drv.count())
	assert.Equal(t, uint64(1), f.e.Status().Dropped)
	assert.Contains(t, f.rec.Codes(), diag.FrameSize)
}

func TestTickSendFailureRequestsReset(t *testing.T) {
	f := newFixture(t, redLoader{})
	boom := errors.New("send: network unreachable")
	f.drv.fail = boom

	err := f.e.Tick(context.Background(), "intro", 0)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 2, f.drv.resets)
	assert.Equal(t, uint64(2), f.e.Status().SendErrors)
	assert.Equal(t, []string{diag.SendFailed, diag.SendFailed}, f.rec.Codes())

	// failed frames are not retried
	f.drv.fail = nil
	require.NoError(t, f.e.Tick(context.Background(), "intro", 0))
	require.Equal(t, 2, f.drv.count())
	assert.Equal(t, clock.Millis(epoch)+300, f.drv.frames[0].targetMS)
}

func TestPatternOverlayReplacesClipFrames(t *testing.T) {
	f := newFixture(t, redLoader{})
	require.Error(t, f.e.RunPattern("plane_z", 1))
	require.NoError(t, f.e.RunPattern(patterns.StrandID, 1))
	assert.Equal(t, patterns.StrandID, f.e.Status().Pattern)

	ctx := context.Background()
	require.NoError(t, f.e.Tick(ctx, "intro", 0))
	require.NoError(t, f.e.Tick(ctx, "intro", 0))
	require.Equal(t, 2, f.drv.count())
	assert.Zero(t, f.e.cache.Len(), "cache untouched while a pattern runs")

	// strand 0 in red: bit 0 in the red plane of LED 0
	assert.Equal(t, byte(tcl.Bias+1), f.drv.frames[0].payload[16])
	// strand 1 in green: bit 1 in the green plane of LED 0
	assert.Equal(t, byte(tcl.Bias+2), f.drv.frames[1].payload[8])

	require.NoError(t, f.e.Tick(ctx, "intro", 0))
	assert.Empty(t, f.e.Status().Pattern)
	assert.Equal(t, []string{diag.PatternUnknown, diag.PatternRunning, diag.PatternDone}, f.rec.Codes())

	require.NoError(t, f.e.Tick(ctx, "intro", 0))
	assert.Equal(t, 4, f.drv.count())
}

// fakeTimeline is always at the same position of one clip.
type fakeTimeline struct {
	mu    sync.Mutex
	ticks int
}

func (tl *fakeTimeline) Tick(float64) {
	tl.mu.Lock()
	tl.ticks++
	tl.mu.Unlock()
}

func (tl *fakeTimeline) Position() (string, float64, bool) { return "intro", 0, true }

func TestRunTicksUntilCancelled(t *testing.T) {
	f := newFixture(t, redLoader{})
	assert.Equal(t, 100*time.Millisecond, f.e.Period())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	tl := &fakeTimeline{}
	go func() { done <- f.e.Run(ctx, tl) }()

	require.Eventually(t, func() bool {
		f.clk.Advance(f.e.Period())
		return f.drv.count() >= 2
	}, 2*time.Second, time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	tl.mu.Lock()
	assert.GreaterOrEqual(t, tl.ticks, 1)
	tl.mu.Unlock()
}

func TestNewEngineValidates(t *testing.T) {
	_, err := NewEngine(Config{})
	assert.Error(t, err)
}
