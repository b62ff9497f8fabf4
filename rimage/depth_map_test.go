package rimage

import (
	"image/color"
	"testing"

	"go.viam.com/test"
)

func TestDepthMap(t *testing.T) {
	dm := NewEmptyDepthMap(4, 3)
	test.That(t, dm.Width(), test.ShouldEqual, 4)
	test.That(t, dm.Height(), test.ShouldEqual, 3)
	test.That(t, dm.Data(), test.ShouldHaveLength, 12)

	dm.Set(3, 2, 1200)
	dm.Set(0, 1, 800)
	test.That(t, dm.GetDepth(3, 2), test.ShouldEqual, Depth(1200))
	test.That(t, dm.Data()[11], test.ShouldEqual, Depth(1200))
	test.That(t, dm.Row(1)[0], test.ShouldEqual, Depth(800))

	lo, hi := dm.MinMax()
	test.That(t, lo, test.ShouldEqual, Depth(800))
	test.That(t, hi, test.ShouldEqual, Depth(1200))

	test.That(t, dm.At(3, 2), test.ShouldResemble, color.Gray16{Y: 1200})
	test.That(t, dm.At(4, 2), test.ShouldResemble, color.Gray16{})
}

func TestDepthMapFromData(t *testing.T) {
	_, err := NewDepthMapFromData(2, 2, make([]Depth, 3))
	test.That(t, err, test.ShouldNotBeNil)

	dm, err := NewDepthMapFromData(2, 2, []Depth{1, 2, 3, 4})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, dm.GetDepth(1, 1), test.ShouldEqual, Depth(4))

	other := NewEmptyDepthMap(2, 2)
	test.That(t, other.CopyFrom(dm), test.ShouldBeNil)
	test.That(t, other.Data(), test.ShouldResemble, dm.Data())
	test.That(t, NewEmptyDepthMap(3, 2).CopyFrom(dm), test.ShouldNotBeNil)
}

func TestDepthToGray(t *testing.T) {
	dm := NewEmptyDepthMap(3, 1)
	dm.Set(0, 0, 0)
	dm.Set(1, 0, 1)
	dm.Set(2, 0, 5000)
	gray := DepthToGray(dm, 1000)
	test.That(t, gray.GrayAt(0, 0).Y, test.ShouldEqual, uint8(0))
	test.That(t, gray.GrayAt(1, 0).Y, test.ShouldEqual, uint8(255))
	test.That(t, gray.GrayAt(2, 0).Y, test.ShouldEqual, uint8(0))

	dm.Set(2, 0, 1000)
	gray = DepthToGray(dm, 1000)
	test.That(t, gray.GrayAt(2, 0).Y, test.ShouldEqual, uint8(1))
}
