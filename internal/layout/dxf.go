package layout

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// Entity kinds understood by the layout reader.
const (
	EntityText   = "TEXT"
	EntityCircle = "CIRCLE"
	EntityLine   = "LINE"
)

// Coord is a position in drawing units.
type Coord struct{ X, Y float64 }

// Entity is one drawing primitive from the ENTITIES section.
// Start is the TEXT insertion point, the CIRCLE center or the LINE start;
// End is only meaningful for LINE.
type Entity struct {
	Kind  string
	Text  string
	Start Coord
	End   Coord
}

// Drawing holds the entities of an ASCII DXF file in file order.
type Drawing struct {
	Entities []Entity
}

// ReadDXFFile opens path and reads it with ReadDXF.
func ReadDXFFile(path string) (*Drawing, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open layout: %w", err)
	}
	defer f.Close()
	return ReadDXF(f)
}

type rawEntity struct {
	kind   string
	groups map[int]string
}

// ReadDXF parses the group-code/value pairs of an ASCII DXF stream.
// Only the ENTITIES section is interpreted; header, tables and blocks are skipped.
func ReadDXF(r io.Reader) (*Drawing, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)

	var (
		d          Drawing
		cur        *rawEntity
		inSection  bool
		sectionTag bool
		inEntities bool
		line       int
	)

	flush := func() error {
		if cur == nil {
			return nil
		}
		e, err := cur.entity()
		cur = nil
		if err != nil {
			return err
		}
		d.Entities = append(d.Entities, e)
		return nil
	}

	for {
		if !sc.Scan() {
			break
		}
		line++
		codeText := strings.TrimSpace(sc.Text())
		if !sc.Scan() {
			return nil, layoutErrorf("truncated DXF: group code %q at line %d has no value", codeText, line)
		}
		line++
		value := strings.TrimSpace(sc.Text())

		code, err := strconv.Atoi(codeText)
		if err != nil {
			return nil, layoutErrorf("bad DXF group code %q at line %d", codeText, line-1)
		}

		if code == 0 {
			if err := flush(); err != nil {
				return nil, err
			}
			switch value {
			case "SECTION":
				inSection, sectionTag = true, true
			case "ENDSEC":
				inSection, inEntities = false, false
			case "EOF":
				return &d, nil
			default:
				if inEntities {
					cur = &rawEntity{kind: value, groups: map[int]string{}}
				}
			}
			continue
		}

		if sectionTag && code == 2 {
			inEntities = inSection && value == "ENTITIES"
			sectionTag = false
			continue
		}
		if cur != nil {
			if _, seen := cur.groups[code]; !seen {
				cur.groups[code] = value
			}
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read DXF: %w", err)
	}
	if err := flush(); err != nil {
		return nil, err
	}
	return &d, nil
}

func (r *rawEntity) entity() (Entity, error) {
	switch r.kind {
	case EntityText:
		at, err := r.point(10)
		if err != nil {
			return Entity{}, err
		}
		return Entity{Kind: EntityText, Text: r.groups[1], Start: at}, nil
	case EntityCircle:
		c, err := r.point(10)
		if err != nil {
			return Entity{}, err
		}
		return Entity{Kind: EntityCircle, Start: c}, nil
	case EntityLine:
		s, err := r.point(10)
		if err != nil {
			return Entity{}, err
		}
		e, err := r.point(11)
		if err != nil {
			return Entity{}, err
		}
		return Entity{Kind: EntityLine, Start: s, End: e}, nil
	default:
		return Entity{}, layoutErrorf("unsupported DXF entity type %s", r.kind)
	}
}

// point reads the x/y/z triple whose x group code is base (10 or 11).
func (r *rawEntity) point(base int) (Coord, error) {
	x, err := r.float(base, true)
	if err != nil {
		return Coord{}, err
	}
	y, err := r.float(base+10, true)
	if err != nil {
		return Coord{}, err
	}
	z, err := r.float(base+20, false)
	if err != nil {
		return Coord{}, err
	}
	if z != 0 {
		return Coord{}, layoutErrorf("non-zero Z coordinate in %s at (%g, %g, %g)", r.kind, x, y, z)
	}
	return Coord{X: x, Y: y}, nil
}

func (r *rawEntity) float(code int, required bool) (float64, error) {
	v, ok := r.groups[code]
	if !ok {
		if required {
			return 0, layoutErrorf("%s entity is missing group %d", r.kind, code)
		}
		return 0, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, layoutErrorf("%s entity has bad number %q in group %d", r.kind, v, code)
	}
	return f, nil
}
