package led

import (
	"fmt"
	"image"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/coreman2200/strandlight/internal/layout"
)

// RGB is one gamma-corrected LED color; index 0 is red, 1 green, 2 blue.
type RGB [3]uint8

// Strands holds the corrected colors of every LED, indexed by strand id.
// Absent strands are nil.
type Strands [layout.MaxStrands][]RGB

// FrameSizeError reports a raster whose size does not match the layout.
// The frame is dropped and the previous one keeps showing.
type FrameSizeError struct {
	Width, Height         int
	WantWidth, WantHeight int
}

func (e *FrameSizeError) Error() string {
	return fmt.Sprintf("unexpected frame size %dx%d, want %dx%d", e.Width, e.Height, e.WantWidth, e.WantHeight)
}

// MapImage samples img at every LED position of l and gamma-corrects it.
// Each strand contributes at most layout.StrandLength LEDs.
func MapImage(img image.Image, l *layout.Layout, t *GammaTable) (*Strands, error) {
	b := img.Bounds()
	if b.Dx() != l.Width() || b.Dy() != l.Height() {
		return nil, &FrameSizeError{Width: b.Dx(), Height: b.Dy(), WantWidth: l.Width(), WantHeight: l.Height()}
	}
	px := pixelReader(img)

	var out Strands
	for id := 0; id < layout.MaxStrands; id++ {
		s := l.Strand(id)
		if s == nil {
			continue
		}
		n := min(s.Len(), layout.StrandLength)
		colors := make([]RGB, n)
		for i := 0; i < n; i++ {
			p := s.At(i)
			r, g, bb := px(b.Min.X+p.X, b.Min.Y+p.Y)
			colors[i] = t.Apply(r, g, bb)
		}
		out[id] = colors
	}
	return &out, nil
}

// pixelReader returns raw 8-bit channels, reading Pix directly for the
// common in-memory formats. Alpha is ignored.
func pixelReader(img image.Image) func(x, y int) (uint8, uint8, uint8) {
	switch m := img.(type) {
	case *image.RGBA:
		return func(x, y int) (uint8, uint8, uint8) {
			i := m.PixOffset(x, y)
			return m.Pix[i], m.Pix[i+1], m.Pix[i+2]
		}
	case *image.NRGBA:
		return func(x, y int) (uint8, uint8, uint8) {
			i := m.PixOffset(x, y)
			return m.Pix[i], m.Pix[i+1], m.Pix[i+2]
		}
	default:
		return func(x, y int) (uint8, uint8, uint8) {
			r, g, b, _ := img.At(x, y).RGBA()
			return uint8(r >> 8), uint8(g >> 8), uint8(b >> 8)
		}
	}
}

// Mapper owns the gamma tables and serializes their updates against mapping.
type Mapper struct {
	mu    sync.RWMutex
	table *GammaTable
}

// NewMapper returns a mapper using the same curve on all channels.
func NewMapper(gamma float64) (*Mapper, error) {
	t, err := NewGammaTable(FullRange(gamma), FullRange(gamma), FullRange(gamma))
	if err != nil {
		return nil, err
	}
	return &Mapper{table: t}, nil
}

// SetGamma applies (0, 255, g) to all three channels.
func (m *Mapper) SetGamma(g float64) error {
	return m.SetGammaRanges(FullRange(g), FullRange(g), FullRange(g))
}

// SetGammaRanges rebuilds the tables. Invalid input is logged and rejected,
// leaving the current tables in effect.
func (m *Mapper) SetGammaRanges(r, g, b Range) error {
	t, err := NewGammaTable(r, g, b)
	if err != nil {
		log.Warn().Err(err).Msg("gamma update rejected")
		return err
	}
	m.mu.Lock()
	m.table = t
	m.mu.Unlock()
	log.Debug().Interface("r", r).Interface("g", g).Interface("b", b).Msg("gamma updated")
	return nil
}

// Table returns a copy of the tables in effect.
func (m *Mapper) Table() GammaTable {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return *m.table
}

// MapImageToStrands maps img through l with the current tables.
func (m *Mapper) MapImageToStrands(img image.Image, l *layout.Layout) (*Strands, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return MapImage(img, l, m.table)
}
