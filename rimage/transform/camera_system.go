package transform

import (
	"encoding/json"
	"os"

	"github.com/pkg/errors"
)

// DepthColorIntrinsicsExtrinsics holds the calibration of a depth and color sensor pair: each
// camera's intrinsics and the transform from the depth frame to the color frame.
type DepthColorIntrinsicsExtrinsics struct {
	ColorCamera  PinholeCameraIntrinsics `json:"color_intrinsic_parameters"`
	DepthCamera  PinholeCameraIntrinsics `json:"depth_intrinsic_parameters"`
	ExtrinsicD2C Extrinsics              `json:"depth_to_color_extrinsic_parameters"`
}

// NewEmptyDepthColorIntrinsicsExtrinsics returns an unset calibration with identity extrinsics.
func NewEmptyDepthColorIntrinsicsExtrinsics() *DepthColorIntrinsicsExtrinsics {
	return &DepthColorIntrinsicsExtrinsics{ExtrinsicD2C: *IdentityExtrinsics()}
}

// NewDepthColorIntrinsicsExtrinsicsFromBytes reads the calibration from JSON bytes.
func NewDepthColorIntrinsicsExtrinsicsFromBytes(byteJSON []byte) (*DepthColorIntrinsicsExtrinsics, error) {
	intrinsics := NewEmptyDepthColorIntrinsicsExtrinsics()
	if err := json.Unmarshal(byteJSON, intrinsics); err != nil {
		return nil, errors.Wrap(err, "error parsing byte array")
	}
	return intrinsics, nil
}

// NewDepthColorIntrinsicsExtrinsicsFromJSONFile reads the calibration from a JSON file.
func NewDepthColorIntrinsicsExtrinsicsFromJSONFile(jsonPath string) (*DepthColorIntrinsicsExtrinsics, error) {
	//nolint:gosec
	byteValue, err := os.ReadFile(jsonPath)
	if err != nil {
		return nil, errors.Wrap(err, "error reading JSON file")
	}
	return NewDepthColorIntrinsicsExtrinsicsFromBytes(byteValue)
}

// CheckValid checks that both cameras and the extrinsics are usable.
func (dcie *DepthColorIntrinsicsExtrinsics) CheckValid() error {
	if dcie == nil {
		return NewNoIntrinsicsError("pointer to DepthColorIntrinsicsExtrinsics is nil")
	}
	if err := dcie.ColorCamera.CheckValid(); err != nil {
		return errors.Wrap(err, "color camera")
	}
	if err := dcie.DepthCamera.CheckValid(); err != nil {
		return errors.Wrap(err, "depth camera")
	}
	return dcie.ExtrinsicD2C.CheckValid()
}
