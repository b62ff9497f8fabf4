// Package config defines the configuration file of an RGB-D pipeline.
package config

import (
	"time"

	"github.com/pkg/errors"
	"go.viam.com/utils"

	"go.viam.com/rgbd/rimage"
	"go.viam.com/rgbd/rimage/transform"
)

// Defaults applied by Validate to unset fields.
const (
	DefaultWorkers                = 4
	DefaultReadTimeout            = 50 * time.Millisecond
	DefaultMaxConsecutiveFailures = 30
	DefaultMaxDepthMM             = 10000
	DefaultWorldScale             = 0.001
)

// Pipeline configures one capture pipeline.
type Pipeline struct {
	ConfigFilePath string `json:"-"`

	// DeviceURI selects the device to open. Empty opens the first device found.
	DeviceURI string `json:"device_uri"`
	// Workers is the size of the conversion worker pool. Zero picks a default.
	Workers int  `json:"workers"`
	Mirror  bool `json:"mirror"`
	// ReadTimeout bounds each blocking frame read, e.g. "50ms".
	ReadTimeout time.Duration `json:"read_timeout"`
	// MaxConsecutiveFailures is how many depth reads in a row may fail before the pipeline stops.
	MaxConsecutiveFailures int `json:"max_consecutive_failures"`
	// MaxDepthMM is the first depth, in millimeters, treated as no reading.
	MaxDepthMM int `json:"max_depth_mm"`
	// WorldScale converts millimeters into world units. The default produces meters.
	WorldScale float64 `json:"world_scale"`

	Streams   StreamsConfig `json:"streams"`
	DepthMode *ModeConfig   `json:"depth_mode,omitempty"`

	// CameraSystem overrides the device's factory calibration.
	CameraSystem *transform.DepthColorIntrinsicsExtrinsics `json:"camera_system,omitempty"`
	// CalibrationFile is a JSON file holding a camera system, as an alternative to CameraSystem.
	CalibrationFile string `json:"calibration_file,omitempty"`

	// Fake configures the synthetic device used when no hardware driver is available.
	Fake *FakeDeviceConfig `json:"fake,omitempty"`

	Debug bool `json:"debug"`
}

// StreamsConfig selects the optional streams. Depth is always enabled.
type StreamsConfig struct {
	Color *bool `json:"color,omitempty"`
	IR    bool  `json:"ir"`
}

// ColorEnabled reports whether the color stream should be opened. It defaults to true.
func (s StreamsConfig) ColorEnabled() bool {
	return s.Color == nil || *s.Color
}

// ModeConfig pins the depth stream to one resolution and frame rate.
type ModeConfig struct {
	Width  int `json:"width_px"`
	Height int `json:"height_px"`
	FPS    int `json:"fps"`
}

// FakeDeviceConfig describes the synthetic device.
type FakeDeviceConfig struct {
	Width       int    `json:"width_px"`
	Height      int    `json:"height_px"`
	FPS         int    `json:"fps"`
	DepthFormat string `json:"depth_format"`
	IR          bool   `json:"ir"`
}

// PixelFormat returns the configured depth format.
func (f *FakeDeviceConfig) PixelFormat() (rimage.PixelFormat, error) {
	switch f.DepthFormat {
	case "", rimage.Depth1MM.String():
		return rimage.Depth1MM, nil
	case rimage.Depth100UM.String():
		return rimage.Depth100UM, nil
	default:
		return rimage.PixelFormatUnknown, errors.Errorf("unknown depth format %q", f.DepthFormat)
	}
}

// Validate checks the config and fills in defaults.
func (conf *Pipeline) Validate(path string) error {
	if conf.Workers < 0 {
		return utils.NewConfigValidationError(path, errors.Errorf("workers must be positive, got %d", conf.Workers))
	}
	if conf.Workers == 0 {
		conf.Workers = DefaultWorkers
	}
	if conf.ReadTimeout < 0 {
		return utils.NewConfigValidationError(path, errors.Errorf("read_timeout must be positive, got %v", conf.ReadTimeout))
	}
	if conf.ReadTimeout == 0 {
		conf.ReadTimeout = DefaultReadTimeout
	}
	if conf.MaxConsecutiveFailures < 0 {
		return utils.NewConfigValidationError(path,
			errors.Errorf("max_consecutive_failures must be positive, got %d", conf.MaxConsecutiveFailures))
	}
	if conf.MaxConsecutiveFailures == 0 {
		conf.MaxConsecutiveFailures = DefaultMaxConsecutiveFailures
	}
	if conf.MaxDepthMM < 0 || conf.MaxDepthMM > int(rimage.MaxDepth) {
		return utils.NewConfigValidationError(path,
			errors.Errorf("max_depth_mm must be between 1 and %d, got %d", rimage.MaxDepth, conf.MaxDepthMM))
	}
	if conf.MaxDepthMM == 0 {
		conf.MaxDepthMM = DefaultMaxDepthMM
	}
	if conf.WorldScale < 0 {
		return utils.NewConfigValidationError(path, errors.Errorf("world_scale must be positive, got %v", conf.WorldScale))
	}
	if conf.WorldScale == 0 {
		conf.WorldScale = DefaultWorldScale
	}
	if conf.DepthMode != nil {
		if conf.DepthMode.Width <= 0 {
			return utils.NewConfigValidationFieldRequiredError(path, "depth_mode.width_px")
		}
		if conf.DepthMode.Height <= 0 {
			return utils.NewConfigValidationFieldRequiredError(path, "depth_mode.height_px")
		}
	}
	if conf.CameraSystem != nil && conf.CalibrationFile != "" {
		return utils.NewConfigValidationError(path, errors.New("only one of camera_system and calibration_file may be set"))
	}
	if conf.CameraSystem != nil {
		if err := conf.CameraSystem.CheckValid(); err != nil {
			return utils.NewConfigValidationError(path, errors.Wrap(err, "camera_system"))
		}
	}
	if conf.Fake != nil {
		if _, err := conf.Fake.PixelFormat(); err != nil {
			return utils.NewConfigValidationError(path, errors.Wrap(err, "fake"))
		}
	}
	return nil
}

// Calibration returns the configured calibration, or nil when the device's own should be used.
func (conf *Pipeline) Calibration() (*transform.DepthColorIntrinsicsExtrinsics, error) {
	if conf.CameraSystem != nil {
		return conf.CameraSystem, nil
	}
	if conf.CalibrationFile == "" {
		return nil, nil
	}
	calib, err := transform.NewDepthColorIntrinsicsExtrinsicsFromJSONFile(conf.CalibrationFile)
	if err != nil {
		return nil, err
	}
	if err := calib.CheckValid(); err != nil {
		return nil, err
	}
	return calib, nil
}
