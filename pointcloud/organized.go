package pointcloud

import (
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
)

// Organized is a point cloud laid out on the pixel grid of the depth image it came from. A point
// with Z <= 0 marks a pixel without a valid depth reading.
type Organized struct {
	width  int
	height int
	points []r3.Vector
}

// NewOrganized returns an organized cloud of the given size with every point invalid.
func NewOrganized(width, height int) *Organized {
	return &Organized{
		width:  width,
		height: height,
		points: make([]r3.Vector, width*height),
	}
}

// Width returns the number of columns.
func (o *Organized) Width() int {
	return o.width
}

// Height returns the number of rows.
func (o *Organized) Height() int {
	return o.height
}

// Size returns the number of grid cells, valid or not.
func (o *Organized) Size() int {
	return len(o.points)
}

// At returns the point for pixel (x, y).
func (o *Organized) At(x, y int) r3.Vector {
	return o.points[y*o.width+x]
}

// Set stores the point for pixel (x, y).
func (o *Organized) Set(x, y int, p r3.Vector) {
	o.points[y*o.width+x] = p
}

// Points exposes the backing row-major slice.
func (o *Organized) Points() []r3.Vector {
	return o.points
}

// Row returns the points of row y.
func (o *Organized) Row(y int) []r3.Vector {
	return o.points[y*o.width : (y+1)*o.width]
}

// Valid reports whether the i'th point carries a depth reading.
func (o *Organized) Valid(i int) bool {
	return IsValidPoint(o.points[i])
}

// CountValid returns the number of valid points.
func (o *Organized) CountValid() int {
	n := 0
	for _, p := range o.points {
		if IsValidPoint(p) {
			n++
		}
	}
	return n
}

// CopyFrom overwrites this cloud with the contents of other.
func (o *Organized) CopyFrom(other *Organized) error {
	if other.width != o.width || other.height != o.height {
		return errors.Errorf("cannot copy %dx%d cloud into %dx%d", other.width, other.height, o.width, o.height)
	}
	copy(o.points, other.points)
	return nil
}

// IsValidPoint reports whether p carries a depth reading.
func IsValidPoint(p r3.Vector) bool {
	return p.Z > 0
}
