// Package preview shows mapped strand colours on a terminal, one line per
// strand.
package preview

import (
	"fmt"
	"image"
	"image/color"
	"io"

	"github.com/coreman2200/strandlight/internal/layout"
	"github.com/coreman2200/strandlight/internal/led"
)

// Drawer is the part of a periph display device the preview uses;
// periph.io/x/extra/devices/screen.Dev satisfies it.
type Drawer interface {
	Bounds() image.Rectangle
	Draw(dstRect image.Rectangle, src image.Image, sp image.Point) error
	Halt() error
}

// Console draws each strand through its own Drawer, created on first use
// with the strand length.
type Console struct {
	out       io.Writer
	newDrawer func(n int) Drawer
	drawers   map[int]Drawer
	Count     int
}

func New(out io.Writer, newDrawer func(n int) Drawer) *Console {
	return &Console{out: out, newDrawer: newDrawer, drawers: map[int]Drawer{}}
}

// Strip lays px out as a len(px) x 1 image.
func Strip(px []led.RGB) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, len(px), 1))
	for i, c := range px {
		img.SetRGBA(i, 0, color.RGBA{R: c[0], G: c[1], B: c[2], A: 0xFF})
	}
	return img
}

// Show prints one labelled line per non-empty strand.
func (c *Console) Show(s *led.Strands) error {
	c.Count++
	fmt.Fprintf(c.out, "[frame %04d]\n", c.Count)
	for id, px := range s {
		if len(px) == 0 {
			continue
		}
		d := c.drawer(id, len(px))
		fmt.Fprintf(c.out, "%d ", id)
		if err := d.Draw(d.Bounds(), Strip(px), image.Point{}); err != nil {
			return fmt.Errorf("strand %d: %w", id, err)
		}
		fmt.Fprintln(c.out)
	}
	return nil
}

func (c *Console) drawer(id, n int) Drawer {
	d, ok := c.drawers[id]
	if !ok || d.Bounds().Dx() != n {
		d = c.newDrawer(n)
		c.drawers[id] = d
	}
	return d
}

// Halt turns every strand line off.
func (c *Console) Halt() error {
	for id := range layout.MaxStrands {
		if d, ok := c.drawers[id]; ok {
			if err := d.Halt(); err != nil {
				return err
			}
		}
	}
	return nil
}
