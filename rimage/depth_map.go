package rimage

import (
	"image"
	"image/color"

	"github.com/pkg/errors"
)

// Depth is the depth of a pixel in millimeters. Zero means no reading.
type Depth uint16

// MaxDepth is the largest representable depth.
const MaxDepth = Depth(65535)

// DepthMap is a row-major grid of depths.
type DepthMap struct {
	width  int
	height int

	data []Depth
}

// NewEmptyDepthMap returns a zeroed depth map of the given size.
func NewEmptyDepthMap(width, height int) *DepthMap {
	return &DepthMap{
		width:  width,
		height: height,
		data:   make([]Depth, width*height),
	}
}

// NewDepthMapFromData wraps existing row-major depth data.
func NewDepthMapFromData(width, height int, data []Depth) (*DepthMap, error) {
	if len(data) != width*height {
		return nil, errors.Errorf("depth data has %d values, expected %d for %dx%d", len(data), width*height, width, height)
	}
	return &DepthMap{width: width, height: height, data: data}, nil
}

// Width returns the width of the depth map.
func (dm *DepthMap) Width() int {
	return dm.width
}

// Height returns the height of the depth map.
func (dm *DepthMap) Height() int {
	return dm.height
}

// Bounds returns the rectangle dimensions of the depth map.
func (dm *DepthMap) Bounds() image.Rectangle {
	return image.Rect(0, 0, dm.width, dm.height)
}

// In reports whether (x, y) lies inside the map.
func (dm *DepthMap) In(x, y int) bool {
	return x >= 0 && y >= 0 && x < dm.width && y < dm.height
}

func (dm *DepthMap) kxy(x, y int) int {
	return (y * dm.width) + x
}

// GetDepth returns the depth at (x, y).
func (dm *DepthMap) GetDepth(x, y int) Depth {
	return dm.data[dm.kxy(x, y)]
}

// Set sets the depth at (x, y).
func (dm *DepthMap) Set(x, y int, val Depth) {
	dm.data[dm.kxy(x, y)] = val
}

// Data exposes the backing row-major slice.
func (dm *DepthMap) Data() []Depth {
	return dm.data
}

// Row returns the slice holding row y.
func (dm *DepthMap) Row(y int) []Depth {
	return dm.data[y*dm.width : (y+1)*dm.width]
}

// MinMax returns the smallest and largest non-zero depth. Both are zero for an empty map.
func (dm *DepthMap) MinMax() (Depth, Depth) {
	var lo, hi Depth
	for _, d := range dm.data {
		if d == 0 {
			continue
		}
		if lo == 0 || d < lo {
			lo = d
		}
		if d > hi {
			hi = d
		}
	}
	return lo, hi
}

// CopyFrom overwrites this map with the contents of other.
func (dm *DepthMap) CopyFrom(other *DepthMap) error {
	if other.width != dm.width || other.height != dm.height {
		return errors.Errorf("cannot copy %dx%d depth map into %dx%d", other.width, other.height, dm.width, dm.height)
	}
	copy(dm.data, other.data)
	return nil
}

// ColorModel is Gray16 so a DepthMap can be handed to image encoders.
func (dm *DepthMap) ColorModel() color.Model {
	return color.Gray16Model
}

// At returns the depth at (x, y) as a Gray16 color.
func (dm *DepthMap) At(x, y int) color.Color {
	if !dm.In(x, y) {
		return color.Gray16{}
	}
	return color.Gray16{Y: uint16(dm.GetDepth(x, y))}
}

// ToGray16Picture converts the depth map to a 16 bit grayscale image with the raw millimeter values.
func (dm *DepthMap) ToGray16Picture() *image.Gray16 {
	img := image.NewGray16(dm.Bounds())
	for y := 0; y < dm.height; y++ {
		for x := 0; x < dm.width; x++ {
			img.SetGray16(x, y, color.Gray16{Y: uint16(dm.GetDepth(x, y))})
		}
	}
	return img
}

// DepthToGray scales depths in (0, maxDepth] to an 8 bit image where near is bright. Missing or
// out of range depth is black.
func DepthToGray(dm *DepthMap, maxDepth Depth) *image.Gray {
	img := image.NewGray(dm.Bounds())
	if maxDepth == 0 {
		return img
	}
	for y := 0; y < dm.height; y++ {
		for x := 0; x < dm.width; x++ {
			d := dm.GetDepth(x, y)
			if d == 0 || d > maxDepth {
				continue
			}
			v := 255 - int(d)*254/int(maxDepth)
			img.SetGray(x, y, color.Gray{Y: uint8(v)})
		}
	}
	return img
}
