package framecache

import (
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"io/fs"
	"os"
	"path/filepath"

	"golang.org/x/image/draw"

	"github.com/coreman2200/strandlight/internal/led"
)

// Composition selects how a decoded clip frame is placed on the screen.
type Composition string

const (
	// CompositionNone shows the frame as-is.
	CompositionNone Composition = "none"
	// CompositionMirror places the horizontally flipped frame on the left
	// half of a screen twice as wide and the frame itself on the right.
	CompositionMirror Composition = "mirror"
	// CompositionSplitSides squeezes the frame to half width and shows it
	// on both halves.
	CompositionSplitSides Composition = "split_sides"
)

// FileLoader reads clip frames decoded to <Dir>/<clip>/frameNNNNNN.jpg,
// numbered from 1.
type FileLoader struct {
	Dir         string
	FrameWidth  int
	FrameHeight int
	ScreenWidth int
	Composition Composition
}

// NewFileLoader checks that the composition fits the screen. An empty
// composition selects split sides.
func NewFileLoader(dir string, frameW, frameH, screenW int, comp Composition) (*FileLoader, error) {
	if comp == "" {
		comp = CompositionSplitSides
	}
	switch comp {
	case CompositionMirror:
		if screenW != 2*frameW {
			return nil, fmt.Errorf("mirror composition needs screen width %d, got %d", 2*frameW, screenW)
		}
	case CompositionNone, CompositionSplitSides:
		if screenW != frameW {
			return nil, fmt.Errorf("%s composition needs screen width %d, got %d", comp, frameW, screenW)
		}
	default:
		return nil, fmt.Errorf("unknown composition %q", comp)
	}
	return &FileLoader{Dir: dir, FrameWidth: frameW, FrameHeight: frameH, ScreenWidth: screenW, Composition: comp}, nil
}

func (l *FileLoader) Path(clip string, frameNum int) string {
	return filepath.Join(l.Dir, clip, fmt.Sprintf("frame%06d.jpg", frameNum+1))
}

func (l *FileLoader) Load(clip string, frameNum int) (image.Image, error) {
	path := l.Path(clip, frameNum)
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrMissingFrame, path)
		}
		return nil, err
	}
	defer f.Close()

	src, err := jpeg.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	b := src.Bounds()
	if b.Dx() != l.FrameWidth || b.Dy() != l.FrameHeight {
		return nil, &led.FrameSizeError{Width: b.Dx(), Height: b.Dy(), WantWidth: l.FrameWidth, WantHeight: l.FrameHeight}
	}
	switch l.Composition {
	case CompositionMirror:
		return Mirror(src), nil
	case CompositionSplitSides:
		return SplitSides(src), nil
	default:
		return toRGBA(src), nil
	}
}

func toRGBA(src image.Image) *image.RGBA {
	b := src.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), src, b.Min, draw.Src)
	return dst
}

// Mirror returns an image twice as wide as src: src flipped left-right on
// the left half, src on the right half.
func Mirror(src image.Image) *image.RGBA {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	dst := image.NewRGBA(image.Rect(0, 0, 2*w, h))
	draw.Draw(dst, image.Rect(w, 0, 2*w, h), src, b.Min, draw.Src)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			dst.SetRGBA(w-1-x, y, dst.RGBAAt(w+x, y))
		}
	}
	return dst
}

// SplitSides scales src to half width and paints it twice side by side.
// With an odd width the last column stays black.
func SplitSides(src image.Image) *image.RGBA {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	half := w / 2
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(dst, dst.Bounds(), image.Black, image.Point{}, draw.Src)
	if half == 0 {
		return dst
	}
	sub := image.NewRGBA(image.Rect(0, 0, half, h))
	draw.NearestNeighbor.Scale(sub, sub.Bounds(), src, b, draw.Src, nil)
	draw.Draw(dst, image.Rect(0, 0, half, h), sub, image.Point{}, draw.Src)
	draw.Draw(dst, image.Rect(half, 0, 2*half, h), sub, image.Point{}, draw.Src)
	return dst
}
