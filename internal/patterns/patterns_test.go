package patterns

import (
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coreman2200/strandlight/internal/layout"
)

func testLayout(t *testing.T) *layout.Layout {
	t.Helper()
	l, err := layout.New(4, 2, map[int][]layout.Point{
		0: {{X: 0, Y: 0}, {X: 1, Y: 0}, {X: 2, Y: 0}},
		5: {{X: 3, Y: 1}},
	})
	require.NoError(t, err)
	return l
}

func lit(img *image.RGBA) []layout.Point {
	var out []layout.Point
	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			c := img.RGBAAt(x, y)
			if c.R|c.G|c.B != 0 {
				out = append(out, layout.Point{X: x, Y: y})
			}
		}
	}
	return out
}

func TestRegistry(t *testing.T) {
	r := Builtins()
	assert.Equal(t, []string{IndexSweep, RGBChannels, StrandID}, r.List())
	p, err := r.New(StrandID)
	require.NoError(t, err)
	assert.Equal(t, StrandID, p.Name())
	_, err = r.New("plane_z")
	assert.Error(t, err)
}

func TestIndexSweepFollowsWiringOrder(t *testing.T) {
	l := testLayout(t)
	run := NewRunner(&indexSweep{}, 1)

	want := [][]layout.Point{
		{{X: 0, Y: 0}, {X: 3, Y: 1}},
		{{X: 1, Y: 0}},
		{{X: 2, Y: 0}},
	}
	for i, w := range want {
		img := run.Frame(l)
		require.NotNil(t, img, "step %d", i)
		assert.Equal(t, w, lit(img), "step %d", i)
	}
	assert.Nil(t, run.Frame(l))
	assert.True(t, run.Done())
}

func TestRGBChannels(t *testing.T) {
	l := testLayout(t)
	p := &rgbChannels{}
	for i := 0; i < 3; i++ {
		img := image.NewRGBA(image.Rect(0, 0, 4, 2))
		require.True(t, p.Step(img, l))
		c := img.RGBAAt(3, 1)
		assert.Equal(t, [3]uint8{boolByte(i == 0), boolByte(i == 1), boolByte(i == 2)}, [3]uint8{c.R, c.G, c.B})
	}
	assert.False(t, p.Step(image.NewRGBA(image.Rect(0, 0, 4, 2)), l))
}

func boolByte(b bool) uint8 {
	if b {
		return 255
	}
	return 0
}

func TestStrandIDHoldsEachStep(t *testing.T) {
	l := testLayout(t)
	run := NewRunner(&strandID{}, 2)

	first := run.Frame(l)
	assert.Equal(t, Palette[0], first.RGBAAt(1, 0))
	assert.Same(t, first, run.Frame(l))

	second := run.Frame(l)
	assert.Equal(t, []layout.Point{{X: 3, Y: 1}}, lit(second))
	assert.Equal(t, Palette[5], second.RGBAAt(3, 1))
	run.Frame(l)
	assert.Nil(t, run.Frame(l))
}
