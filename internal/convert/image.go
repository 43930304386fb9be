package convert

import (
	"image"
	"image/color"
)

// RGBImage is an interleaved 8-bit RGB frame. It implements image.Image.
type RGBImage struct {
	Width  int
	Height int
	Pix    []uint8
}

// NewRGBImage allocates a black width x height image.
func NewRGBImage(width, height int) *RGBImage {
	return &RGBImage{Width: width, Height: height, Pix: make([]uint8, width*height*3)}
}

// Shape returns (height, width, channels).
func (m *RGBImage) Shape() (int, int, int) {
	return m.Height, m.Width, 3
}

func (m *RGBImage) ColorModel() color.Model { return color.RGBAModel }

func (m *RGBImage) Bounds() image.Rectangle {
	return image.Rect(0, 0, m.Width, m.Height)
}

func (m *RGBImage) At(x, y int) color.Color {
	if x < 0 || y < 0 || x >= m.Width || y >= m.Height {
		return color.RGBA{}
	}
	o := (y*m.Width + x) * 3
	return color.RGBA{R: m.Pix[o], G: m.Pix[o+1], B: m.Pix[o+2], A: 0xff}
}

// RGBAt returns the raw channels at (x, y).
func (m *RGBImage) RGBAt(x, y int) (r, g, b uint8) {
	o := (y*m.Width + x) * 3
	return m.Pix[o], m.Pix[o+1], m.Pix[o+2]
}
