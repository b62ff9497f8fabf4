package transform

import (
	"encoding/binary"
	"image"
	"image/color"
	"testing"

	"github.com/golang/geo/r3"
	"go.viam.com/test"

	"go.viam.com/rgbd/pointcloud"
	"go.viam.com/rgbd/rimage"
)

const (
	testWidth  = 8
	testHeight = 6
)

func testCalibration() *DepthColorIntrinsicsExtrinsics {
	intrinsics := PinholeCameraIntrinsics{
		Width: testWidth, Height: testHeight,
		Fx: 10, Fy: 12,
		Ppx: 3.5, Ppy: 2.5,
	}
	return &DepthColorIntrinsicsExtrinsics{
		ColorCamera:  intrinsics,
		DepthCamera:  intrinsics,
		ExtrinsicD2C: *IdentityExtrinsics(),
	}
}

func rawDepth(f func(x, y int) uint16) []byte {
	raw := make([]byte, 2*testWidth*testHeight)
	for y := 0; y < testHeight; y++ {
		for x := 0; x < testWidth; x++ {
			binary.LittleEndian.PutUint16(raw[2*(y*testWidth+x):], f(x, y))
		}
	}
	return raw
}

func testColor() *rimage.Image {
	img := rimage.NewImage(testWidth, testHeight)
	for y := 0; y < testHeight; y++ {
		for x := 0; x < testWidth; x++ {
			img.SetXY(x, y, color.RGBA{R: uint8(10 * x), G: uint8(10 * y), B: uint8(x + y), A: 255})
		}
	}
	return img
}

func newOutputs() *Outputs {
	return &Outputs{
		Depth:           rimage.NewEmptyDepthMap(testWidth, testHeight),
		World:           pointcloud.NewOrganized(testWidth, testHeight),
		Labels:          make([]uint8, testWidth*testHeight),
		RegisteredColor: rimage.NewImage(testWidth, testHeight),
		Color:           rimage.NewImage(testWidth, testHeight),
		IR:              image.NewGray(image.Rect(0, 0, testWidth, testHeight)),
	}
}

func convertAll(t *testing.T, conv *Converter, in *Inputs, out *Outputs, n int) {
	t.Helper()
	var stage1 []Partition
	stage1 = append(stage1, PartitionRows(testHeight, n, BufferWorld)...)
	stage1 = append(stage1, PartitionRows(testHeight, n, BufferColor)...)
	for _, p := range stage1 {
		test.That(t, conv.Convert(p, in, out), test.ShouldBeNil)
	}
	for _, p := range PartitionRows(testHeight, n, BufferRegisteredColor) {
		test.That(t, conv.Convert(p, in, out), test.ShouldBeNil)
	}
}

func TestPartitionRows(t *testing.T) {
	parts := PartitionRows(480, 4, BufferWorld)
	test.That(t, parts, test.ShouldResemble, []Partition{
		{0, 120, BufferWorld}, {120, 240, BufferWorld}, {240, 360, BufferWorld}, {360, 480, BufferWorld},
	})

	parts = PartitionRows(10, 3, BufferIR)
	test.That(t, parts[2], test.ShouldResemble, Partition{StartRow: 6, EndRow: 10, Kind: BufferIR})

	parts = PartitionRows(3, 8, BufferColor)
	test.That(t, parts, test.ShouldHaveLength, 3)
	for i, p := range parts {
		test.That(t, p.StartRow, test.ShouldEqual, i)
		test.That(t, p.EndRow, test.ShouldEqual, i+1)
	}
	test.That(t, parts[0].String(), test.ShouldEqual, "color[0,1)")
}

func TestNewConverterValidation(t *testing.T) {
	_, err := NewConverter(nil, ConverterOptions{WorldScale: 1})
	test.That(t, err, test.ShouldNotBeNil)

	_, err = NewConverter(testCalibration(), ConverterOptions{})
	test.That(t, err, test.ShouldNotBeNil)

	bad := testCalibration()
	bad.DepthCamera.Fx = 0
	_, err = NewConverter(bad, ConverterOptions{WorldScale: 1})
	test.That(t, err, test.ShouldNotBeNil)

	conv, err := NewConverter(testCalibration(), ConverterOptions{WorldScale: 0.001})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, conv.Options().MaxDepthMM, test.ShouldEqual, rimage.MaxDepth)
	test.That(t, conv.Calibration(), test.ShouldResemble, *testCalibration())
}

func TestDepthToWorld(t *testing.T) {
	conv, err := NewConverter(testCalibration(), ConverterOptions{WorldScale: 0.001, MaxDepthMM: 5000})
	test.That(t, err, test.ShouldBeNil)

	raw := rawDepth(func(x, y int) uint16 {
		switch {
		case x == 0 && y == 0:
			return 0
		case x == 1 && y == 0:
			return 5000
		default:
			return 1000
		}
	})
	out := newOutputs()
	for i := range out.Labels {
		out.Labels[i] = 7
	}
	p := Partition{StartRow: 0, EndRow: testHeight, Kind: BufferWorld}
	test.That(t, conv.DepthToWorld(p, raw, rimage.Depth1MM, out.Depth, out.World, out.Labels), test.ShouldBeNil)

	test.That(t, out.World.At(0, 0), test.ShouldResemble, r3.Vector{})
	test.That(t, out.World.At(1, 0), test.ShouldResemble, r3.Vector{})
	test.That(t, out.Depth.GetDepth(1, 0), test.ShouldEqual, rimage.Depth(5000))

	pt := out.World.At(5, 4)
	test.That(t, pt.X, test.ShouldAlmostEqual, (5-3.5)*1000/10*0.001)
	test.That(t, pt.Y, test.ShouldAlmostEqual, (4-2.5)*1000/12*0.001)
	test.That(t, pt.Z, test.ShouldAlmostEqual, 1.0)
	test.That(t, out.World.CountValid(), test.ShouldEqual, testWidth*testHeight-2)
	for _, l := range out.Labels {
		test.That(t, l, test.ShouldEqual, uint8(0))
	}
}

func TestDepthToWorld100um(t *testing.T) {
	conv, err := NewConverter(testCalibration(), ConverterOptions{WorldScale: 1})
	test.That(t, err, test.ShouldBeNil)
	raw := rawDepth(func(x, y int) uint16 { return 12345 })
	out := newOutputs()
	p := Partition{StartRow: 2, EndRow: 3, Kind: BufferWorld}
	test.That(t, conv.DepthToWorld(p, raw, rimage.Depth100UM, out.Depth, out.World, nil), test.ShouldBeNil)
	test.That(t, out.Depth.GetDepth(0, 2), test.ShouldEqual, rimage.Depth(1234))
	test.That(t, out.World.At(0, 2).Z, test.ShouldEqual, 1234.0)
	// rows outside the partition are untouched
	test.That(t, out.Depth.GetDepth(0, 1), test.ShouldEqual, rimage.Depth(0))
	test.That(t, out.World.At(0, 3), test.ShouldResemble, r3.Vector{})
}

func TestLabelsOnlyClearedInPartition(t *testing.T) {
	conv, err := NewConverter(testCalibration(), ConverterOptions{WorldScale: 1})
	test.That(t, err, test.ShouldBeNil)
	out := newOutputs()
	for i := range out.Labels {
		out.Labels[i] = 3
	}
	p := Partition{StartRow: 1, EndRow: 2, Kind: BufferWorld}
	test.That(t, conv.DepthToWorld(p, rawDepth(func(x, y int) uint16 { return 1 }), rimage.Depth1MM,
		out.Depth, out.World, out.Labels), test.ShouldBeNil)
	test.That(t, out.Labels[0], test.ShouldEqual, uint8(3))
	test.That(t, out.Labels[testWidth], test.ShouldEqual, uint8(0))
	test.That(t, out.Labels[2*testWidth], test.ShouldEqual, uint8(3))
}

func TestMirroredWorld(t *testing.T) {
	raw := rawDepth(func(x, y int) uint16 { return uint16(500 + 37*x + 11*y) })
	in := &Inputs{Depth: raw, DepthFormat: rimage.Depth1MM, Color: testColor()}

	plain, err := NewConverter(testCalibration(), ConverterOptions{WorldScale: 0.001})
	test.That(t, err, test.ShouldBeNil)
	mirrored, err := NewConverter(testCalibration(), ConverterOptions{WorldScale: 0.001, Mirror: true})
	test.That(t, err, test.ShouldBeNil)

	plainOut, mirroredOut := newOutputs(), newOutputs()
	convertAll(t, plain, in, plainOut, 3)
	convertAll(t, mirrored, in, mirroredOut, 3)

	for y := 0; y < testHeight; y++ {
		for x := 0; x < testWidth; x++ {
			n := plainOut.World.At(testWidth-1-x, y)
			m := mirroredOut.World.At(x, y)
			test.That(t, m.X, test.ShouldAlmostEqual, -n.X)
			test.That(t, m.Y, test.ShouldAlmostEqual, n.Y)
			test.That(t, m.Z, test.ShouldAlmostEqual, n.Z)
			test.That(t, mirroredOut.Depth.GetDepth(x, y), test.ShouldEqual, plainOut.Depth.GetDepth(testWidth-1-x, y))
			test.That(t, mirroredOut.Color.GetXY(x, y), test.ShouldResemble, plainOut.Color.GetXY(testWidth-1-x, y))
			test.That(t, mirroredOut.RegisteredColor.GetXY(x, y), test.ShouldResemble,
				plainOut.RegisteredColor.GetXY(testWidth-1-x, y))
		}
	}
}

func TestRegisterColorCoincidentCameras(t *testing.T) {
	raw := rawDepth(func(x, y int) uint16 {
		if x == 2 && y == 3 {
			return 0
		}
		return uint16(800 + 13*x*y)
	})
	colorImg := testColor()
	in := &Inputs{Depth: raw, DepthFormat: rimage.Depth1MM, Color: colorImg}

	for _, mirror := range []bool{false, true} {
		conv, err := NewConverter(testCalibration(), ConverterOptions{WorldScale: 0.001, Mirror: mirror})
		test.That(t, err, test.ShouldBeNil)
		out := newOutputs()
		convertAll(t, conv, in, out, 4)

		for y := 0; y < testHeight; y++ {
			for x := 0; x < testWidth; x++ {
				sx := x
				if mirror {
					sx = testWidth - 1 - x
				}
				got := out.RegisteredColor.GetXY(x, y)
				if sx == 2 && y == 3 {
					test.That(t, got, test.ShouldResemble, color.RGBA{A: 255})
					continue
				}
				test.That(t, got, test.ShouldResemble, colorImg.GetXY(sx, y))
			}
		}
	}
}

func TestRegisterColorOutOfView(t *testing.T) {
	calib := testCalibration()
	calib.ExtrinsicD2C.TranslationVector = []float64{100000, 0, 0}
	conv, err := NewConverter(calib, ConverterOptions{WorldScale: 0.001})
	test.That(t, err, test.ShouldBeNil)
	in := &Inputs{Depth: rawDepth(func(x, y int) uint16 { return 1000 }), DepthFormat: rimage.Depth1MM, Color: testColor()}
	out := newOutputs()
	convertAll(t, conv, in, out, 2)
	for _, b := range out.RegisteredColor.Pix() {
		test.That(t, b, test.ShouldEqual, uint8(0))
	}
}

func TestRegisterColorWithoutColorFrame(t *testing.T) {
	conv, err := NewConverter(testCalibration(), ConverterOptions{WorldScale: 0.001})
	test.That(t, err, test.ShouldBeNil)
	in := &Inputs{Depth: rawDepth(func(x, y int) uint16 { return 1000 }), DepthFormat: rimage.Depth1MM}
	out := newOutputs()
	for _, p := range PartitionRows(testHeight, 2, BufferWorld) {
		test.That(t, conv.Convert(p, in, out), test.ShouldBeNil)
	}
	for i := range out.RegisteredColor.Pix() {
		out.RegisteredColor.Pix()[i] = 99
	}
	for _, p := range PartitionRows(testHeight, 2, BufferRegisteredColor) {
		test.That(t, conv.Convert(p, in, out), test.ShouldBeNil)
	}
	for _, b := range out.RegisteredColor.Pix() {
		test.That(t, b, test.ShouldEqual, uint8(0))
	}
}

func TestAllInvalidDepth(t *testing.T) {
	conv, err := NewConverter(testCalibration(), ConverterOptions{WorldScale: 0.001})
	test.That(t, err, test.ShouldBeNil)
	in := &Inputs{Depth: rawDepth(func(x, y int) uint16 { return 0 }), DepthFormat: rimage.Depth1MM, Color: testColor()}
	out := newOutputs()
	convertAll(t, conv, in, out, 4)
	test.That(t, out.World.CountValid(), test.ShouldEqual, 0)
	for _, b := range out.RegisteredColor.Pix() {
		test.That(t, b, test.ShouldEqual, uint8(0))
	}
}

func TestConversionIndependentOfPartitionCount(t *testing.T) {
	conv, err := NewConverter(testCalibration(), ConverterOptions{WorldScale: 0.001, Mirror: true, MaxDepthMM: 2000})
	test.That(t, err, test.ShouldBeNil)
	in := &Inputs{
		Depth:       rawDepth(func(x, y int) uint16 { return uint16((x*y*97 + 300) % 2500) }),
		DepthFormat: rimage.Depth1MM,
		Color:       testColor(),
	}
	reference := newOutputs()
	convertAll(t, conv, in, reference, 1)
	for n := 2; n <= 10; n++ {
		out := newOutputs()
		convertAll(t, conv, in, out, n)
		test.That(t, out.World.Points(), test.ShouldResemble, reference.World.Points())
		test.That(t, out.Depth.Data(), test.ShouldResemble, reference.Depth.Data())
		test.That(t, out.RegisteredColor.Pix(), test.ShouldResemble, reference.RegisteredColor.Pix())
		test.That(t, out.Color.Pix(), test.ShouldResemble, reference.Color.Pix())
	}
}

func TestCopyIR(t *testing.T) {
	conv, err := NewConverter(testCalibration(), ConverterOptions{WorldScale: 1, Mirror: true})
	test.That(t, err, test.ShouldBeNil)

	raw16 := rawDepth(func(x, y int) uint16 {
		if x == 0 {
			return 2000
		}
		return 400
	})
	out := newOutputs()
	p := Partition{StartRow: 0, EndRow: testHeight, Kind: BufferIR}
	test.That(t, conv.CopyIR(p, raw16, rimage.Gray16, out.IR), test.ShouldBeNil)
	test.That(t, out.IR.GrayAt(testWidth-1, 0).Y, test.ShouldEqual, uint8(255))
	test.That(t, out.IR.GrayAt(0, 0).Y, test.ShouldEqual, uint8(100))

	raw8 := make([]byte, testWidth*testHeight)
	raw8[1] = 42
	test.That(t, conv.CopyIR(p, raw8, rimage.Gray8, out.IR), test.ShouldBeNil)
	test.That(t, out.IR.GrayAt(testWidth-2, 0).Y, test.ShouldEqual, uint8(42))

	test.That(t, conv.CopyIR(p, raw8, rimage.RGB888, out.IR), test.ShouldNotBeNil)
	test.That(t, conv.CopyIR(p, raw8[:10], rimage.Gray8, out.IR), test.ShouldNotBeNil)
}

func TestConvertErrors(t *testing.T) {
	conv, err := NewConverter(testCalibration(), ConverterOptions{WorldScale: 1})
	test.That(t, err, test.ShouldBeNil)
	in := &Inputs{Depth: rawDepth(func(x, y int) uint16 { return 1 }), DepthFormat: rimage.Depth1MM}
	out := newOutputs()

	err = conv.Convert(Partition{StartRow: 4, EndRow: testHeight + 1, Kind: BufferWorld}, in, out)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "outside")

	err = conv.Convert(Partition{StartRow: 0, EndRow: 1, Kind: BufferColor}, in, out)
	test.That(t, err, test.ShouldNotBeNil)

	err = conv.Convert(Partition{StartRow: 0, EndRow: 1, Kind: BufferKind(9)}, in, out)
	test.That(t, err, test.ShouldNotBeNil)

	in.DepthFormat = rimage.RGB888
	err = conv.Convert(Partition{StartRow: 0, EndRow: 1, Kind: BufferWorld}, in, out)
	test.That(t, err, test.ShouldNotBeNil)

	out.World = pointcloud.NewOrganized(testWidth+1, testHeight)
	in.DepthFormat = rimage.Depth1MM
	err = conv.Convert(Partition{StartRow: 0, EndRow: 1, Kind: BufferWorld}, in, out)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "mismatch")
}
