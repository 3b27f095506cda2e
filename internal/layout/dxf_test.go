package layout

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// dxfBuilder writes a minimal ASCII DXF drawing for tests.
type dxfBuilder struct {
	b strings.Builder
}

func newDXF() *dxfBuilder {
	d := &dxfBuilder{}
	d.pair(0, "SECTION")
	d.pair(2, "HEADER")
	d.pair(9, "$ACADVER")
	d.pair(1, "AC1009")
	d.pair(0, "ENDSEC")
	d.pair(0, "SECTION")
	d.pair(2, "ENTITIES")
	return d
}

func (d *dxfBuilder) pair(code int, v string) {
	fmt.Fprintf(&d.b, "%3d\n%s\n", code, v)
}

func (d *dxfBuilder) num(code int, f float64) {
	d.pair(code, fmt.Sprintf("%g", f))
}

func (d *dxfBuilder) text(s string, x, y float64) *dxfBuilder {
	d.pair(0, "TEXT")
	d.pair(8, "0")
	d.num(10, x)
	d.num(20, y)
	d.num(30, 0)
	d.num(40, 1)
	d.pair(1, s)
	return d
}

func (d *dxfBuilder) circle(x, y float64) *dxfBuilder {
	d.pair(0, "CIRCLE")
	d.pair(8, "0")
	d.num(10, x)
	d.num(20, y)
	d.num(30, 0)
	d.num(40, 0.25)
	return d
}

func (d *dxfBuilder) line(x1, y1, x2, y2 float64) *dxfBuilder {
	d.pair(0, "LINE")
	d.pair(8, "0")
	d.num(10, x1)
	d.num(20, y1)
	d.num(30, 0)
	d.num(11, x2)
	d.num(21, y2)
	d.num(31, 0)
	return d
}

func (d *dxfBuilder) raw(kind string) *dxfBuilder {
	d.pair(0, kind)
	d.pair(8, "0")
	return d
}

func (d *dxfBuilder) String() string {
	d.pair(0, "ENDSEC")
	d.pair(0, "EOF")
	return d.b.String()
}

func (d *dxfBuilder) drawing(t *testing.T) *Drawing {
	t.Helper()
	dr, err := ReadDXF(strings.NewReader(d.String()))
	require.NoError(t, err)
	return dr
}

func TestReadDXFEntities(t *testing.T) {
	src := newDXF().
		text("p1", 0, 0).
		circle(1, 0).
		line(0, 0, 1, 0).
		String()

	d, err := ReadDXF(strings.NewReader(src))
	require.NoError(t, err)
	require.Len(t, d.Entities, 3)

	assert.Equal(t, Entity{Kind: EntityText, Text: "p1", Start: Coord{0, 0}}, d.Entities[0])
	assert.Equal(t, Entity{Kind: EntityCircle, Start: Coord{1, 0}}, d.Entities[1])
	assert.Equal(t, Entity{Kind: EntityLine, Start: Coord{0, 0}, End: Coord{1, 0}}, d.Entities[2])
}

func TestReadDXFSkipsOtherSections(t *testing.T) {
	var b dxfBuilder
	b.pair(0, "SECTION")
	b.pair(2, "BLOCKS")
	b.pair(0, "BLOCK")
	b.pair(0, "POLYLINE")
	b.pair(0, "ENDSEC")
	b.pair(0, "SECTION")
	b.pair(2, "ENTITIES")
	b.circle(3, 4)
	d, err := ReadDXF(strings.NewReader(b.String()))
	require.NoError(t, err)
	require.Len(t, d.Entities, 1)
	assert.Equal(t, Coord{3, 4}, d.Entities[0].Start)
}

func TestReadDXFRejectsUnknownEntity(t *testing.T) {
	_, err := ReadDXF(strings.NewReader(newDXF().circle(0, 0).raw("POLYLINE").String()))
	var le *LayoutError
	require.True(t, errors.As(err, &le), "got %v", err)
	assert.Contains(t, le.Msg, "POLYLINE")
}

func TestReadDXFRejectsNonZeroZ(t *testing.T) {
	d := newDXF()
	d.pair(0, "CIRCLE")
	d.num(10, 1)
	d.num(20, 1)
	d.num(30, 2)
	_, err := ReadDXF(strings.NewReader(d.String()))
	var le *LayoutError
	require.True(t, errors.As(err, &le), "got %v", err)
	assert.Contains(t, le.Msg, "Z")
}

func TestReadDXFTruncated(t *testing.T) {
	_, err := ReadDXF(strings.NewReader("  0\nSECTION\n  2\n"))
	var le *LayoutError
	assert.True(t, errors.As(err, &le), "got %v", err)
}
