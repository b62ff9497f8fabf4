package sensor

import (
	"encoding/binary"
	"testing"

	"github.com/pkg/errors"
	"go.viam.com/test"

	"go.viam.com/rgbd/rimage"
)

var testModes = []VideoMode{
	{Width: 320, Height: 240, FPS: 60, Format: rimage.Depth1MM},
	{Width: 640, Height: 480, FPS: 15, Format: rimage.Depth1MM},
	{Width: 640, Height: 480, FPS: 30, Format: rimage.Depth1MM},
	{Width: 1280, Height: 1024, FPS: 30, Format: rimage.Depth100UM},
	{Width: 640, Height: 480, FPS: 30, Format: rimage.RGB888},
	{Width: 640, Height: 480, FPS: 30, Format: rimage.Gray8},
}

func TestFindMaxResolutionMode(t *testing.T) {
	mode, err := FindMaxResolutionMode(testModes, rimage.Depth1MM)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, mode, test.ShouldResemble, testModes[2])

	mode, err = FindMaxResolutionMode(testModes, rimage.Depth100UM)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, mode.Height, test.ShouldEqual, 1024)

	_, err = FindMaxResolutionMode(testModes, rimage.Gray16)
	test.That(t, errors.Is(err, ErrStreamConfigurationUnsupported), test.ShouldBeTrue)
}

func TestFindMatchingMode(t *testing.T) {
	mode, err := FindMatchingMode(testModes, 640, 480, 15, rimage.Depth1MM)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, mode.FPS, test.ShouldEqual, 15)

	mode, err = FindMatchingMode(testModes, 640, 480, 0, rimage.Depth1MM)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, mode.FPS, test.ShouldEqual, 30)

	_, err = FindMatchingMode(testModes, 640, 480, 60, rimage.Depth1MM)
	test.That(t, errors.Is(err, ErrStreamConfigurationUnsupported), test.ShouldBeTrue)
}

func TestSelectModes(t *testing.T) {
	depth, err := SelectDepthMode(testModes, nil)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, depth, test.ShouldResemble, testModes[2])

	pinned, err := SelectDepthMode(testModes, &VideoMode{Width: 1280, Height: 1024, FPS: 30})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, pinned.Format, test.ShouldEqual, rimage.Depth100UM)

	_, err = SelectDepthMode(testModes[4:], nil)
	test.That(t, errors.Is(err, ErrStreamConfigurationUnsupported), test.ShouldBeTrue)

	color, err := SelectMatchingMode(testModes, depth, rimage.RGB888)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, color, test.ShouldResemble, testModes[4])

	ir, err := SelectMatchingMode(testModes, depth, IRFormats...)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, ir.Format, test.ShouldEqual, rimage.Gray8)

	_, err = SelectMatchingMode(testModes, pinned, rimage.RGB888)
	test.That(t, errors.Is(err, ErrStreamConfigurationUnsupported), test.ShouldBeTrue)
	_, err = SelectMatchingMode(testModes, depth)
	test.That(t, errors.Is(err, ErrStreamConfigurationUnsupported), test.ShouldBeTrue)
}

func TestRawFrameViews(t *testing.T) {
	data := make([]byte, 2*3*2)
	binary.LittleEndian.PutUint16(data[2*4:], 12345)
	frame := &RawFrame{Kind: DepthStream, Width: 3, Height: 2, Format: rimage.Depth100UM, Data: data}
	test.That(t, frame.Validate(), test.ShouldBeNil)
	dm, err := frame.Depth16()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, dm.GetDepth(1, 1), test.ShouldEqual, rimage.Depth(1234))

	_, err = frame.RGB()
	test.That(t, err, test.ShouldNotBeNil)

	frame.Data = data[:5]
	test.That(t, frame.Validate(), test.ShouldNotBeNil)

	rgb := &RawFrame{Kind: ColorStream, Width: 1, Height: 2, Format: rimage.RGB888, Data: []byte{1, 2, 3, 4, 5, 6}}
	img, err := rgb.RGB()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, img.GetXY(0, 1).B, test.ShouldEqual, uint8(6))
	_, err = rgb.Depth16()
	test.That(t, err, test.ShouldNotBeNil)

	test.That(t, DepthStream.String(), test.ShouldEqual, "depth")
	test.That(t, VideoMode{Width: 640, Height: 480, FPS: 30, Format: rimage.RGB888}.String(), test.ShouldEqual, "640x480@30 rgb888")
}
