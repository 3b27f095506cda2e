package patterns

import (
	"image"

	"github.com/coreman2200/strandlight/internal/layout"
)

// Runner plays a Pattern, holding each step for a number of frames.
type Runner struct {
	p    Pattern
	hold int
	tick int
	last *image.RGBA
	done bool
}

// NewRunner holds every step for hold frames (at least one).
func NewRunner(p Pattern, hold int) *Runner {
	return &Runner{p: p, hold: max(hold, 1)}
}

func (r *Runner) Name() string { return r.p.Name() }
func (r *Runner) Done() bool   { return r.done }

// Frame returns the image for the current tick, or nil once complete.
func (r *Runner) Frame(l *layout.Layout) *image.RGBA {
	if r.done {
		return nil
	}
	if r.last == nil || r.tick%r.hold == 0 {
		img := image.NewRGBA(image.Rect(0, 0, l.Width(), l.Height()))
		for i := 3; i < len(img.Pix); i += 4 {
			img.Pix[i] = 0xFF
		}
		if !r.p.Step(img, l) {
			r.done = true
			r.last = nil
			return nil
		}
		r.last = img
	}
	r.tick++
	return r.last
}
