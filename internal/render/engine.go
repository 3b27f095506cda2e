// Package render runs the per-tick pipeline: prefetch, map, encode, send.
package render

import (
	"context"
	"errors"
	"image"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"periph.io/x/conn/v3/physic"

	"github.com/coreman2200/strandlight/internal/clock"
	diag "github.com/coreman2200/strandlight/internal/diagnostics"
	"github.com/coreman2200/strandlight/internal/framecache"
	"github.com/coreman2200/strandlight/internal/layout"
	"github.com/coreman2200/strandlight/internal/led"
	"github.com/coreman2200/strandlight/internal/patterns"
	"github.com/coreman2200/strandlight/internal/stats"
	"github.com/coreman2200/strandlight/internal/tcl"
)

// Transport is the strand link plus the ability to force a re-handshake.
type Transport interface {
	led.StrandTransport
	RequireReset()
}

// Timeline supplies the playback position; playback.Player implements it.
type Timeline interface {
	Tick(dt float64)
	Position() (clip string, elapsed float64, ok bool)
}

// Config wires an Engine. Clock and Sink are optional.
type Config struct {
	Layout    *layout.Layout
	Mapper    *led.Mapper
	Cache     *framecache.Cache
	Transport Transport
	FPS       physic.Frequency
	Patterns  *patterns.Registry
	Clock     clock.Clock
	Sink      diag.Sink
}

// Status is a snapshot of the engine for logs and the monitor.
type Status struct {
	FramesSent uint64        `json:"frames_sent"`
	Dropped    uint64        `json:"dropped"`
	SendErrors uint64        `json:"send_errors"`
	CacheSize  int           `json:"cache_size"`
	Clip       string        `json:"clip"`
	ElapsedS   float64       `json:"elapsed_s"`
	Pattern    string        `json:"pattern,omitempty"`
	RenderMS   stats.Summary `json:"render_ms"`
}

// Engine owns the pipeline. Tick and Run must be called from one goroutine;
// the pattern controls and Status may be called from any.
type Engine struct {
	layout *layout.Layout
	mapper *led.Mapper
	cache  *framecache.Cache
	drv    Transport
	period time.Duration
	reg    *patterns.Registry
	clk    clock.Clock
	sink   diag.Sink
	log    zerolog.Logger

	renderMS *stats.Window

	mu      sync.Mutex
	overlay *patterns.Runner
	status  Status

	// metrics of the last tick (ms)
	Last struct {
		PrefetchMS float64
		SendMS     float64
		TotalMS    float64
	}
}

func NewEngine(c Config) (*Engine, error) {
	if c.Layout == nil || c.Mapper == nil || c.Cache == nil || c.Transport == nil {
		return nil, errors.New("render: layout, mapper, cache and transport are required")
	}
	if c.FPS <= 0 {
		return nil, errors.New("render: fps must be positive")
	}
	if c.Clock == nil {
		c.Clock = clock.Real{}
	}
	if c.Sink == nil {
		c.Sink = diag.Nop{}
	}
	if c.Patterns == nil {
		c.Patterns = patterns.Builtins()
	}
	return &Engine{
		layout:   c.Layout,
		mapper:   c.Mapper,
		cache:    c.Cache,
		drv:      c.Transport,
		period:   c.FPS.Period(),
		reg:      c.Patterns,
		clk:      c.Clock,
		sink:     c.Sink,
		log:      log.With().Str("component", "render").Logger(),
		renderMS: stats.NewWindow(300, c.Clock),
	}, nil
}

// Period is the frame interval.
func (e *Engine) Period() time.Duration { return e.period }

// Tick runs one pipeline pass for the playback position. Frame size
// mismatches drop the frame; the LEDs keep the previous one. Send
// failures schedule a controller reset and are returned after the
// remaining frames were attempted.
func (e *Engine) Tick(ctx context.Context, clip string, elapsed float64) error {
	start := e.clk.Now()
	if runner := e.activePattern(); runner != nil {
		err := e.tickPattern(ctx, runner)
		e.finishTick(start, start, clip, elapsed)
		return err
	}

	e.cache.Prefetch(clip, elapsed)
	sendStart := e.clk.Now()

	var errs []error
	for _, f := range e.cache.Unsent() {
		e.cache.MarkSent(f)
		if err := e.sendImage(ctx, f.Image, f.TargetMS); err != nil {
			errs = append(errs, err)
		}
	}
	e.finishTick(start, sendStart, clip, elapsed)
	return errors.Join(errs...)
}

func (e *Engine) sendImage(ctx context.Context, img image.Image, targetMS int64) error {
	strands, err := e.mapper.MapImageToStrands(img, e.layout)
	if err != nil {
		var fse *led.FrameSizeError
		if errors.As(err, &fse) {
			e.bump(func(s *Status) { s.Dropped++ })
			e.log.Warn().Err(err).Msg("dropping frame")
			e.sink.Emit(diag.Diagnostic{Severity: diag.Warn, Code: diag.FrameSize, Summary: "frame dropped", Detail: err.Error()})
			return nil
		}
		return err
	}
	if err := e.drv.SendFrame(ctx, tcl.EncodeFrame(strands), targetMS); err != nil {
		e.drv.RequireReset()
		e.bump(func(s *Status) { s.SendErrors++ })
		e.sink.Emit(diag.Diagnostic{
			Severity: diag.Err, Code: diag.SendFailed, Summary: "frame send failed",
			Detail:         err.Error(),
			LikelyCauses:   []string{"controller unreachable", "network interface down"},
			SuggestedFixes: []string{"check the controller address and cabling"},
		})
		return err
	}
	e.bump(func(s *Status) { s.FramesSent++ })
	return nil
}

func (e *Engine) finishTick(start, sendStart time.Time, clip string, elapsed float64) {
	now := e.clk.Now()
	e.Last.PrefetchMS = msBetween(start, sendStart)
	e.Last.SendMS = msBetween(sendStart, now)
	e.Last.TotalMS = msBetween(start, now)
	e.renderMS.Add(e.Last.TotalMS)

	e.mu.Lock()
	e.status.CacheSize = e.cache.Len()
	e.status.Clip = clip
	e.status.ElapsedS = elapsed
	e.mu.Unlock()
}

func msBetween(a, b time.Time) float64 {
	return float64(b.Sub(a).Microseconds()) / 1000.0
}

func (e *Engine) bump(f func(*Status)) {
	e.mu.Lock()
	f(&e.status)
	e.mu.Unlock()
}

// Status returns a snapshot.
func (e *Engine) Status() Status {
	e.mu.Lock()
	s := e.status
	if e.overlay != nil {
		s.Pattern = e.overlay.Name()
	}
	e.mu.Unlock()
	s.RenderMS = e.renderMS.Summary()
	return s
}

// Run ticks the timeline and the pipeline at the configured rate until ctx
// is cancelled. The ticker is re-armed every frame to subtract the time
// spent rendering. Errors are logged and the loop continues.
func (e *Engine) Run(ctx context.Context, tl Timeline) error {
	tk := e.clk.NewTicker(e.period)
	defer tk.Stop()
	prev := e.clk.Now()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-tk.C():
			t := e.clk.Now()
			tl.Tick(t.Sub(prev).Seconds())
			prev = t

			clip, elapsed, ok := tl.Position()
			if ok || e.activePattern() != nil {
				if err := e.Tick(ctx, clip, elapsed); err != nil && ctx.Err() == nil {
					e.log.Error().Err(err).Str("clip", clip).Float64("elapsed_s", elapsed).Msg("tick failed")
				}
			}

			if d := e.period - e.clk.Now().Sub(t); d > 0 {
				tk.Reset(d)
			} else {
				tk.Reset(e.period)
			}
		}
	}
}
