package layout

import (
	"fmt"
	"math"
	"sort"

	"github.com/rs/zerolog/log"
)

const (
	// MaxStrands is the number of physical strand outputs on one controller.
	MaxStrands = 8
	// StrandLength is the hardware cap of LEDs addressable on one strand.
	StrandLength = 512
)

// LayoutError reports a malformed or ambiguous wiring drawing.
// It is fatal: a layout that fails to parse must never be used.
type LayoutError struct {
	Msg string
}

func (e *LayoutError) Error() string { return "layout: " + e.Msg }

func layoutErrorf(format string, args ...any) error {
	return &LayoutError{Msg: fmt.Sprintf(format, args...)}
}

// Point is a normalized pixel position.
type Point struct{ X, Y int }

// Strand is one physical LED run; points are in wiring order.
type Strand struct {
	id     int
	points []Point
}

func (s *Strand) ID() int  { return s.id }
func (s *Strand) Len() int { return len(s.points) }

// At returns the pixel of the i-th LED along the strand.
func (s *Strand) At(i int) Point { return s.points[i] }

// Points returns a copy of the strand's pixel positions.
func (s *Strand) Points() []Point {
	out := make([]Point, len(s.points))
	copy(out, s.points)
	return out
}

// Layout maps display pixels to LEDs for every strand of one controller.
// It is immutable once built.
type Layout struct {
	width, height int
	strands       map[int]*Strand
}

// Load reads a DXF wiring drawing and builds a layout for a width x height raster.
func Load(path string, width, height int) (*Layout, error) {
	d, err := ReadDXFFile(path)
	if err != nil {
		return nil, err
	}
	l, err := Build(d, width, height)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	log.Debug().Str("path", path).Int("strands", len(l.strands)).Int("leds", l.LEDCount()).Msg("layout loaded")
	return l, nil
}

// Build reconstructs strands from the drawing and normalizes them into
// [0,width-1] x [0,height-1] screen space.
func Build(d *Drawing, width, height int) (*Layout, error) {
	if width <= 0 || height <= 0 {
		return nil, layoutErrorf("invalid target size %dx%d", width, height)
	}
	raw, err := walk(d)
	if err != nil {
		return nil, err
	}
	l := &Layout{width: width, height: height, strands: map[int]*Strand{}}
	for id := range raw {
		l.strands[id] = &Strand{id: id}
	}
	normalize(l, raw)
	return l, nil
}

// New builds a layout directly from already normalized strand points.
// Points outside the raster are rejected.
func New(width, height int, strands map[int][]Point) (*Layout, error) {
	if width <= 0 || height <= 0 {
		return nil, layoutErrorf("invalid target size %dx%d", width, height)
	}
	l := &Layout{width: width, height: height, strands: map[int]*Strand{}}
	for id, pts := range strands {
		if id < 0 || id >= MaxStrands {
			return nil, layoutErrorf("strand id %d out of range", id)
		}
		for _, p := range pts {
			if p.X < 0 || p.X >= width || p.Y < 0 || p.Y >= height {
				return nil, layoutErrorf("strand %d point %v outside %dx%d", id, p, width, height)
			}
		}
		cp := make([]Point, len(pts))
		copy(cp, pts)
		l.strands[id] = &Strand{id: id, points: cp}
	}
	return l, nil
}

func (l *Layout) Width() int  { return l.width }
func (l *Layout) Height() int { return l.height }

// Strand returns the strand with the given id, or nil when absent.
func (l *Layout) Strand(id int) *Strand { return l.strands[id] }

// Strands returns the present strands in ascending id order.
func (l *Layout) Strands() []*Strand {
	out := make([]*Strand, 0, len(l.strands))
	for _, s := range l.strands {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].id < out[j].id })
	return out
}

// AllPoints returns the LED pixels of every strand, strand by strand.
func (l *Layout) AllPoints() []Point {
	var out []Point
	for _, s := range l.Strands() {
		out = append(out, s.points...)
	}
	return out
}

// LEDCount is the number of LEDs across all strands.
func (l *Layout) LEDCount() int {
	n := 0
	for _, s := range l.strands {
		n += len(s.points)
	}
	return n
}

type segment struct{ a, b Coord }

func (s *segment) other(c Coord) Coord {
	if c == s.a {
		return s.b
	}
	return s.a
}

func walk(d *Drawing) (map[int][]Coord, error) {
	anchors := map[int]Coord{}
	circles := map[Coord]bool{}
	dots := map[Coord][]*segment{}

	for _, e := range d.Entities {
		switch e.Kind {
		case EntityText:
			t := e.Text
			if len(t) != 2 || t[0] != 'p' || t[1] < '1' || t[1] > '8' {
				return nil, layoutErrorf("unsupported anchor text %q", t)
			}
			id := int(t[1] - '1')
			if _, dup := anchors[id]; dup {
				return nil, layoutErrorf("more than one anchor for strand %d", id)
			}
			anchors[id] = e.Start
		case EntityCircle:
			if circles[e.Start] {
				return nil, layoutErrorf("more than one circle at %v", e.Start)
			}
			circles[e.Start] = true
		case EntityLine:
			if e.Start == e.End {
				return nil, layoutErrorf("line of zero length at %v", e.Start)
			}
			seg := &segment{a: e.Start, b: e.End}
			for _, c := range []Coord{e.Start, e.End} {
				dots[c] = append(dots[c], seg)
				if len(dots[c]) > 2 {
					return nil, layoutErrorf("more than two lines connected at %v", c)
				}
			}
		default:
			return nil, layoutErrorf("unsupported entity type %s", e.Kind)
		}
	}

	ids := make([]int, 0, len(anchors))
	for id := range anchors {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	out := map[int][]Coord{}
	for _, id := range ids {
		var path []Coord
		prev := anchors[id]
		for {
			lines, ok := dots[prev]
			if !ok {
				return nil, layoutErrorf("strand %d: no lines originate from %v", id, prev)
			}
			if len(lines) == 0 {
				return nil, layoutErrorf("strand %d: all lines already consumed at %v", id, prev)
			}
			if len(lines) > 1 {
				return nil, layoutErrorf("strand %d: more than one line starts at %v", id, prev)
			}
			in := lines[0]
			next := in.other(prev)
			dots[prev] = nil
			if !circles[next] {
				return nil, layoutErrorf("strand %d: no circle found at %v", id, next)
			}
			delete(circles, next)
			path = append(path, next)
			dots[next] = removeSegment(dots[next], in)
			if len(dots[next]) == 0 {
				break
			}
			prev = next
		}
		out[id] = path
	}

	if len(circles) > 0 {
		return nil, layoutErrorf("%d circles remain unconsumed", len(circles))
	}
	for c, lines := range dots {
		if len(lines) != 0 {
			return nil, layoutErrorf("dangling lines remain at %v", c)
		}
	}
	return out, nil
}

func removeSegment(lines []*segment, s *segment) []*segment {
	out := lines[:0]
	for _, l := range lines {
		if l != s {
			out = append(out, l)
		}
	}
	return out
}

// normalize maps drawing coordinates onto the raster, flipping Y because the
// drawing is Y-up and the raster is Y-down. A zero-extent axis maps to 0.
func normalize(l *Layout, raw map[int][]Coord) {
	minX, minY := math.MaxFloat64, math.MaxFloat64
	maxX, maxY := -math.MaxFloat64, -math.MaxFloat64
	for _, coords := range raw {
		for _, c := range coords {
			minX = math.Min(minX, c.X)
			maxX = math.Max(maxX, c.X)
			minY = math.Min(minY, c.Y)
			maxY = math.Max(maxY, c.Y)
		}
	}
	w, h := maxX-minX, maxY-minY
	tx, ty := float64(l.width-1), float64(l.height-1)

	for id, coords := range raw {
		pts := make([]Point, len(coords))
		for i, c := range coords {
			var x, y float64
			if w > 0 {
				x = (c.X - minX) / w * tx
			}
			if h > 0 {
				y = ty - (c.Y-minY)/h*ty
			}
			pts[i] = Point{X: int(math.Round(x)), Y: int(math.Round(y))}
		}
		l.strands[id].points = pts
	}
}
