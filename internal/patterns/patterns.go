// Package patterns generates calibration frames for checking strand wiring
// on real hardware.
package patterns

import (
	"fmt"
	"image"
	"image/color"
	"sort"

	"github.com/coreman2200/strandlight/internal/layout"
)

// Names of the built-in patterns.
const (
	IndexSweep  = "index_sweep"
	RGBChannels = "rgb_channels"
	StrandID    = "strand_id"
)

// Pattern paints successive calibration frames.
type Pattern interface {
	Name() string
	// Step paints the next frame into img (already cleared to black) and
	// reports false once the pattern is complete.
	Step(img *image.RGBA, l *layout.Layout) bool
}

// Factory creates a fresh Pattern.
type Factory func() Pattern

// Registry maps pattern names to factories. It is built at startup and
// passed to whatever needs to start patterns.
type Registry struct{ m map[string]Factory }

func NewRegistry() *Registry { return &Registry{m: map[string]Factory{}} }

// Builtins returns a registry holding the built-in patterns.
func Builtins() *Registry {
	r := NewRegistry()
	r.Register(IndexSweep, func() Pattern { return &indexSweep{} })
	r.Register(RGBChannels, func() Pattern { return &rgbChannels{} })
	r.Register(StrandID, func() Pattern { return &strandID{} })
	return r
}

func (r *Registry) Register(name string, f Factory) {
	if f == nil {
		return
	}
	r.m[name] = f
}

// New instantiates the named pattern.
func (r *Registry) New(name string) (Pattern, error) {
	f, ok := r.m[name]
	if !ok {
		return nil, fmt.Errorf("pattern not found: %s", name)
	}
	return f(), nil
}

// List returns the registered names, sorted.
func (r *Registry) List() []string {
	out := make([]string, 0, len(r.m))
	for k := range r.m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Palette gives each strand output a distinct colour.
var Palette = [layout.MaxStrands]color.RGBA{
	{255, 0, 0, 255},
	{0, 255, 0, 255},
	{0, 0, 255, 255},
	{255, 255, 0, 255},
	{0, 255, 255, 255},
	{255, 0, 255, 255},
	{255, 128, 0, 255},
	{255, 255, 255, 255},
}

var white = color.RGBA{255, 255, 255, 255}

// indexSweep lights LED n of every strand on step n, in wiring order.
type indexSweep struct{ step int }

func (p *indexSweep) Name() string { return IndexSweep }

func (p *indexSweep) Step(img *image.RGBA, l *layout.Layout) bool {
	longest := 0
	for _, s := range l.Strands() {
		longest = max(longest, min(s.Len(), layout.StrandLength))
	}
	if p.step >= longest {
		return false
	}
	for _, s := range l.Strands() {
		if p.step < s.Len() && p.step < layout.StrandLength {
			pt := s.At(p.step)
			img.SetRGBA(pt.X, pt.Y, white)
		}
	}
	p.step++
	return true
}

// rgbChannels shows full red, green then blue frames.
type rgbChannels struct{ step int }

func (p *rgbChannels) Name() string { return RGBChannels }

func (p *rgbChannels) Step(img *image.RGBA, l *layout.Layout) bool {
	if p.step >= 3 {
		return false
	}
	var c color.RGBA
	c.A = 255
	switch p.step {
	case 0:
		c.R = 255
	case 1:
		c.G = 255
	case 2:
		c.B = 255
	}
	for _, pt := range l.AllPoints() {
		img.SetRGBA(pt.X, pt.Y, c)
	}
	p.step++
	return true
}

// strandID lights one strand per step in its palette colour.
type strandID struct{ step int }

func (p *strandID) Name() string { return StrandID }

func (p *strandID) Step(img *image.RGBA, l *layout.Layout) bool {
	strands := l.Strands()
	if p.step >= len(strands) {
		return false
	}
	s := strands[p.step]
	for _, pt := range s.Points() {
		img.SetRGBA(pt.X, pt.Y, Palette[s.ID()])
	}
	p.step++
	return true
}
