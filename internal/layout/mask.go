package layout

import (
	"image"
	"image/color"
)

// Mask returns an RGBA image of the layout size where every LED pixel is
// fully transparent and every other pixel is black with the given alpha.
// Overlaying it on a frame shows which pixels actually reach the strands.
func (l *Layout) Mask(alpha uint8) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, l.width, l.height))
	for i := 3; i < len(img.Pix); i += 4 {
		img.Pix[i] = alpha
	}
	for _, p := range l.AllPoints() {
		img.SetRGBA(p.X, p.Y, color.RGBA{})
	}
	return img
}
