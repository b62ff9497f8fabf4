package transform

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"go.viam.com/test"
)

const calibrationJSON = `{
	"color_intrinsic_parameters": {"width_px": 640, "height_px": 480, "fx": 525.0, "fy": 525.0, "ppx": 319.5, "ppy": 239.5},
	"depth_intrinsic_parameters": {"width_px": 640, "height_px": 480, "fx": 570.3, "fy": 570.3, "ppx": 320.0, "ppy": 240.0},
	"depth_to_color_extrinsic_parameters": {
		"rotation_rads": [1, 0, 0, 0, 1, 0, 0, 0, 1],
		"translation_mm": [-25.0, 0, 0]
	}
}`

func TestDepthColorIntrinsicsExtrinsicsFromJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "calibration.json")
	test.That(t, os.WriteFile(path, []byte(calibrationJSON), 0o600), test.ShouldBeNil)

	calib, err := NewDepthColorIntrinsicsExtrinsicsFromJSONFile(path)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, calib.CheckValid(), test.ShouldBeNil)
	test.That(t, calib.DepthCamera.Fx, test.ShouldEqual, 570.3)
	test.That(t, calib.ColorCamera.Ppy, test.ShouldEqual, 239.5)
	test.That(t, calib.ExtrinsicD2C.TranslationVector, test.ShouldResemble, []float64{-25, 0, 0})

	_, err = NewDepthColorIntrinsicsExtrinsicsFromJSONFile(filepath.Join(t.TempDir(), "missing.json"))
	test.That(t, err, test.ShouldNotBeNil)

	_, err = NewDepthColorIntrinsicsExtrinsicsFromBytes([]byte("{"))
	test.That(t, err, test.ShouldNotBeNil)
}

func TestCheckValid(t *testing.T) {
	var nilCalib *DepthColorIntrinsicsExtrinsics
	test.That(t, errors.Is(nilCalib.CheckValid(), ErrNoIntrinsics), test.ShouldBeTrue)

	calib, err := NewDepthColorIntrinsicsExtrinsicsFromBytes([]byte(calibrationJSON))
	test.That(t, err, test.ShouldBeNil)
	calib.ColorCamera.Width = 0
	err = calib.CheckValid()
	test.That(t, errors.Is(err, ErrNoIntrinsics), test.ShouldBeTrue)
	test.That(t, err.Error(), test.ShouldContainSubstring, "color camera")

	calib.ColorCamera.Width = 640
	calib.ExtrinsicD2C.RotationMatrix = []float64{1, 0, 0}
	test.That(t, calib.CheckValid(), test.ShouldNotBeNil)
}

func TestPixelPointRoundTrip(t *testing.T) {
	intrinsics := &PinholeCameraIntrinsics{Width: 640, Height: 480, Fx: 570.3, Fy: 570.3, Ppx: 320, Ppy: 240}
	x, y, z := intrinsics.PixelToPoint(100, 400, 1500)
	u, v := intrinsics.PointToPixel(x, y, z)
	test.That(t, u, test.ShouldEqual, 100.)
	test.That(t, v, test.ShouldEqual, 400.)

	u, v = intrinsics.PointToPixel(1, 1, 0)
	test.That(t, u, test.ShouldEqual, -1.)
	test.That(t, v, test.ShouldEqual, -1.)
}

func TestTransformPointToPoint(t *testing.T) {
	extrinsics := Extrinsics{
		RotationMatrix:    []float64{0, 0, 1, 0, 1, 0, 0, 0, -1},
		TranslationVector: []float64{0, 2, 0},
	}
	pt := extrinsics.TransformPointToPoint(0, 0, 1)
	test.That(t, pt.X, test.ShouldEqual, 1.)
	test.That(t, pt.Y, test.ShouldEqual, 2.)
	test.That(t, pt.Z, test.ShouldEqual, -1.)

	pt = IdentityExtrinsics().TransformPointToPoint(3, 4, 5)
	test.That(t, pt.X, test.ShouldEqual, 3.)
	test.That(t, pt.Z, test.ShouldEqual, 5.)
}
