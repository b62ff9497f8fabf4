package rimage

import (
	"image"
	"image/color"

	"github.com/pkg/errors"
)

// Image is a packed 8 bit RGB image, three bytes per pixel in row-major order.
type Image struct {
	pix           []uint8
	width, height int
}

// NewImage returns a black image of the given size.
func NewImage(width, height int) *Image {
	return &Image{
		pix:    make([]uint8, 3*width*height),
		width:  width,
		height: height,
	}
}

// NewImageFromRGB wraps packed RGB bytes.
func NewImageFromRGB(width, height int, pix []uint8) (*Image, error) {
	if len(pix) != 3*width*height {
		return nil, errors.Errorf("rgb data has %d bytes, expected %d for %dx%d", len(pix), 3*width*height, width, height)
	}
	return &Image{pix: pix, width: width, height: height}, nil
}

// ConvertImage copies any image.Image into a new Image.
func ConvertImage(img image.Image) *Image {
	b := img.Bounds()
	out := NewImage(b.Dx(), b.Dy())
	for y := 0; y < out.height; y++ {
		for x := 0; x < out.width; x++ {
			r, g, bl, _ := img.At(b.Min.X+x, b.Min.Y+y).RGBA()
			out.SetXY(x, y, color.RGBA{R: uint8(r >> 8), G: uint8(g >> 8), B: uint8(bl >> 8), A: 255})
		}
	}
	return out
}

// ColorModel returns the RGBA model.
func (i *Image) ColorModel() color.Model {
	return color.RGBAModel
}

// Bounds returns the rectangle dimensions of the image.
func (i *Image) Bounds() image.Rectangle {
	return image.Rect(0, 0, i.width, i.height)
}

// Width returns the width of the image.
func (i *Image) Width() int {
	return i.width
}

// Height returns the height of the image.
func (i *Image) Height() int {
	return i.height
}

// In reports whether (x, y) lies inside the image.
func (i *Image) In(x, y int) bool {
	return x >= 0 && y >= 0 && x < i.width && y < i.height
}

func (i *Image) kxy(x, y int) int {
	return 3 * ((y * i.width) + x)
}

// At returns the color at (x, y). Out of bounds is transparent black.
func (i *Image) At(x, y int) color.Color {
	if !i.In(x, y) {
		return color.RGBA{}
	}
	return i.GetXY(x, y)
}

// GetXY returns the color at (x, y).
func (i *Image) GetXY(x, y int) color.RGBA {
	k := i.kxy(x, y)
	return color.RGBA{R: i.pix[k], G: i.pix[k+1], B: i.pix[k+2], A: 255}
}

// SetXY sets the color at (x, y). Alpha is dropped.
func (i *Image) SetXY(x, y int, c color.RGBA) {
	k := i.kxy(x, y)
	i.pix[k] = c.R
	i.pix[k+1] = c.G
	i.pix[k+2] = c.B
}

// Pix exposes the packed RGB bytes.
func (i *Image) Pix() []uint8 {
	return i.pix
}

// Row returns the bytes of row y.
func (i *Image) Row(y int) []uint8 {
	return i.pix[3*y*i.width : 3*(y+1)*i.width]
}

// CopyFrom overwrites this image with the contents of other.
func (i *Image) CopyFrom(other *Image) error {
	if other.width != i.width || other.height != i.height {
		return errors.Errorf("cannot copy %dx%d image into %dx%d", other.width, other.height, i.width, i.height)
	}
	copy(i.pix, other.pix)
	return nil
}
