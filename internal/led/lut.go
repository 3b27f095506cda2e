package led

import (
	"fmt"
	"math"
)

// DefaultGamma is the usual operating point. 1.0 is uncorrected and looks
// too bright in the mid-range; higher values dim mid-range pixels.
const DefaultGamma = 2.4

// Range is the output span and exponent of one color channel's gamma curve.
type Range struct {
	Min   int     `yaml:"min" json:"min"`
	Max   int     `yaml:"max" json:"max"`
	Gamma float64 `yaml:"gamma" json:"gamma"`
}

// FullRange is the (0, 255, g) curve.
func FullRange(g float64) Range { return Range{Min: 0, Max: 255, Gamma: g} }

// GammaParameterError reports a rejected gamma curve. Tables in effect are kept.
type GammaParameterError struct {
	Channel string
	Range   Range
}

func (e *GammaParameterError) Error() string {
	return fmt.Sprintf("incorrect gamma values for %s: min=%d max=%d gamma=%g",
		e.Channel, e.Range.Min, e.Range.Max, e.Range.Gamma)
}

func (r Range) validate(channel string) error {
	if r.Min < 0 || r.Max > 255 || r.Min > r.Max || !(r.Gamma > 0) || math.IsInf(r.Gamma, 0) {
		return &GammaParameterError{Channel: channel, Range: r}
	}
	return nil
}

// BuildLUT expands a channel curve into a 256-entry lookup table:
// out = min + floor((max-min) * (c/255)^gamma + 0.5).
func BuildLUT(r Range) [256]uint8 {
	var out [256]uint8
	span := float64(r.Max - r.Min)
	for c := 0; c < 256; c++ {
		d := float64(c) / 255.0
		out[c] = uint8(r.Min + int(math.Floor(span*math.Pow(d, r.Gamma)+0.5)))
	}
	return out
}

// GammaTable holds per-channel lookup tables.
type GammaTable struct {
	R, G, B [256]uint8
}

// NewGammaTable validates the three channel curves and builds their tables.
func NewGammaTable(r, g, b Range) (*GammaTable, error) {
	for _, c := range []struct {
		name string
		rng  Range
	}{{"red", r}, {"green", g}, {"blue", b}} {
		if err := c.rng.validate(c.name); err != nil {
			return nil, err
		}
	}
	return &GammaTable{R: BuildLUT(r), G: BuildLUT(g), B: BuildLUT(b)}, nil
}

// Apply corrects one pixel.
func (t *GammaTable) Apply(r, g, b uint8) RGB {
	return RGB{t.R[r], t.G[g], t.B[b]}
}
