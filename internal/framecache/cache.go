// Package framecache prefetches decoded frames ahead of the playback
// position and hands them out keyed by elapsed clip time.
package framecache

import (
	"errors"
	"image"
	"math"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/coreman2200/strandlight/internal/clock"
	diag "github.com/coreman2200/strandlight/internal/diagnostics"
	"github.com/coreman2200/strandlight/internal/led"
)

// ErrMissingFrame is returned by a Loader when the frame does not exist.
var ErrMissingFrame = errors.New("missing frame file")

const (
	// DriftLimit is how far (seconds) the window may be behind or ahead of
	// the playback position before it is flushed.
	DriftLimit = 0.5
	// LoadsPerCall bounds decode work per Prefetch.
	LoadsPerCall = 2
)

// Loader decodes frame frameNum (0-based) of a clip.
type Loader interface {
	Load(clip string, frameNum int) (image.Image, error)
}

// Frame is one decoded frame waiting in the window.
type Frame struct {
	Timestamp float64
	FrameNum  int
	// TargetMS is the wall-clock millisecond at which the frame should be
	// on the LEDs.
	TargetMS int64
	Image    image.Image
	Sent     bool
}

// Result describes what one Prefetch call did.
type Result struct {
	Loaded  int
	Skipped int
	Flushed bool
}

// Cache is a bounded, timestamp-ordered window of frames for one clip. It
// is owned by a single loop goroutine and is not safe for concurrent use.
type Cache struct {
	fps        int
	capacity   int
	skipBudget int
	loader     Loader
	clk        clock.Clock
	sink       diag.Sink
	log        zerolog.Logger

	clip   string
	frames []*Frame
}

type Option func(*Cache)

func WithClock(c clock.Clock) Option     { return func(fc *Cache) { fc.clk = c } }
func WithDiagnostics(s diag.Sink) Option { return func(fc *Cache) { fc.sink = s } }

// New returns a cache holding up to fps/2 frames (at least one).
func New(fps int, loader Loader, opts ...Option) *Cache {
	c := &Cache{
		fps:        max(fps, 1),
		capacity:   max(fps/2, 1),
		skipBudget: max(fps/2, 1),
		loader:     loader,
		clk:        clock.Real{},
		sink:       diag.Nop{},
		log:        log.With().Str("component", "framecache").Logger(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *Cache) FPS() int      { return c.fps }
func (c *Cache) Capacity() int { return c.capacity }
func (c *Cache) Clip() string  { return c.clip }
func (c *Cache) Len() int      { return len(c.frames) }

func (c *Cache) clear(clip string) {
	c.clip = clip
	c.frames = c.frames[:0]
}

// Prefetch advances the window towards elapsed seconds into clip and loads
// up to two new frames.
func (c *Cache) Prefetch(clip string, elapsed float64) Result {
	var res Result
	baseline := clock.Millis(c.clk.Now())
	if clip != c.clip {
		c.clear(clip)
	}

	// Keep one stale frame so there is always something to show.
	for len(c.frames) > 1 && c.frames[0].Timestamp < elapsed && c.frames[1].Timestamp < elapsed {
		c.frames = c.frames[1:]
	}

	anchor, haveAnchor := 0, false
	if n := len(c.frames); n > 0 {
		first, last := c.frames[0], c.frames[n-1]
		switch {
		case elapsed-last.Timestamp > DriftLimit:
			c.flush(diag.CacheBehind, "frame cache is behind, flushing", elapsed-last.Timestamp)
			res.Flushed = true
		case first.Timestamp-elapsed > DriftLimit:
			c.flush(diag.CacheAhead, "frame cache is ahead, flushing", first.Timestamp-elapsed)
			res.Flushed = true
		default:
			anchor, haveAnchor = last.FrameNum, true
		}
	}
	if !haveAnchor {
		anchor = int(math.Floor(elapsed * float64(c.fps)))
	}

	toLoad := min(c.capacity-len(c.frames), LoadsPerCall)
	skipsLeft := c.skipBudget
	for toLoad > 0 && skipsLeft > 0 {
		num := anchor + 1
		anchor = num
		ts := float64(num) / float64(c.fps)
		img, err := c.loader.Load(c.clip, num)
		if err != nil {
			c.logLoadError(num, err)
			skipsLeft--
			res.Skipped++
			continue
		}
		c.frames = append(c.frames, &Frame{
			Timestamp: ts,
			FrameNum:  num,
			TargetMS:  baseline + int64(math.Round((ts-elapsed)*1000)),
			Image:     img,
		})
		toLoad--
		res.Loaded++
	}
	if skipsLeft == 0 {
		c.sink.Emit(diag.Diagnostic{
			Severity: diag.Warn, Code: diag.CacheSkipped,
			Summary:  "skipped a lot of frames",
			Evidence: map[string]any{"clip": c.clip, "frame": anchor},
		})
		c.log.Warn().Str("clip", c.clip).Int("frame", anchor).Msg("skipped a lot of frames")
	}
	return res
}

func (c *Cache) flush(code, msg string, delay float64) {
	c.log.Info().Str("clip", c.clip).Float64("delay_s", delay).Msg(msg)
	c.sink.Emit(diag.Diagnostic{
		Severity: diag.Info, Code: code, Summary: msg,
		Evidence: map[string]any{"clip": c.clip, "delay_s": delay},
	})
	c.clear(c.clip)
}

func (c *Cache) logLoadError(num int, err error) {
	var fse *led.FrameSizeError
	switch {
	case errors.Is(err, ErrMissingFrame):
		c.log.Debug().Str("clip", c.clip).Int("frame", num).Msg("no file")
	case errors.As(err, &fse):
		c.log.Warn().Err(err).Str("clip", c.clip).Int("frame", num).Msg("unexpected image size")
		c.sink.Emit(diag.Diagnostic{
			Severity: diag.Warn, Code: diag.FrameSize, Summary: "unexpected image size",
			Detail: err.Error(), Evidence: map[string]any{"clip": c.clip, "frame": num},
		})
	default:
		c.log.Warn().Err(err).Str("clip", c.clip).Int("frame", num).Msg("frame load failed")
	}
}

// CachedFrames returns the window, oldest first.
func (c *Cache) CachedFrames() []*Frame {
	return append([]*Frame(nil), c.frames...)
}

// Unsent returns the frames not yet marked sent, oldest first.
func (c *Cache) Unsent() []*Frame {
	var out []*Frame
	for _, f := range c.frames {
		if !f.Sent {
			out = append(out, f)
		}
	}
	return out
}

func (c *Cache) MarkSent(f *Frame) { f.Sent = true }

// FrameAt returns the newest frame not later than elapsed. If every frame
// is later, the oldest one is returned; nil when the window is empty.
func (c *Cache) FrameAt(elapsed float64) *Frame {
	var prev *Frame
	for _, f := range c.frames {
		if f.Timestamp > elapsed {
			if prev != nil {
				return prev
			}
			return f
		}
		prev = f
	}
	return prev
}

// LoadSingle drops the window, switches to clip and loads one frame
// outside the prefetch schedule.
func (c *Cache) LoadSingle(clip string, frameNum int) (image.Image, error) {
	c.clear(clip)
	img, err := c.loader.Load(clip, frameNum)
	if err != nil {
		c.logLoadError(frameNum, err)
		return nil, err
	}
	return img, nil
}
