// Package sensor defines the boundary to a structured-light depth sensor: a driver that
// enumerates and opens devices, the devices themselves, and the per-kind frame streams they
// produce.
package sensor

import (
	"context"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/pkg/errors"

	"go.viam.com/rgbd/rimage"
	"go.viam.com/rgbd/rimage/transform"
)

var (
	// ErrDeviceUnavailable is returned when no device matches or the device cannot be opened.
	ErrDeviceUnavailable = errors.New("sensor device unavailable")
	// ErrStreamConfigurationUnsupported is returned when no supported mode satisfies a request.
	ErrStreamConfigurationUnsupported = errors.New("stream configuration unsupported")
	// ErrFrameTimeout is returned by ReadFrame when no frame arrived within the timeout.
	ErrFrameTimeout = errors.New("timed out waiting for frame")
	// ErrStreamClosed is returned by ReadFrame after Close.
	ErrStreamClosed = errors.New("stream closed")
)

// StreamKind identifies one of a device's image streams.
type StreamKind int

// The stream kinds a device may offer.
const (
	DepthStream StreamKind = iota
	ColorStream
	IRStream
)

func (k StreamKind) String() string {
	switch k {
	case DepthStream:
		return "depth"
	case ColorStream:
		return "color"
	case IRStream:
		return "ir"
	default:
		return fmt.Sprintf("StreamKind(%d)", int(k))
	}
}

// VideoMode is one resolution, rate and pixel layout a stream can run at.
type VideoMode struct {
	Width  int                `json:"width_px"`
	Height int                `json:"height_px"`
	FPS    int                `json:"fps"`
	Format rimage.PixelFormat `json:"format"`
}

func (m VideoMode) String() string {
	return fmt.Sprintf("%dx%d@%d %v", m.Width, m.Height, m.FPS, m.Format)
}

// FrameSize is the number of bytes of one frame in this mode.
func (m VideoMode) FrameSize() int {
	return m.Width * m.Height * m.Format.BytesPerPixel()
}

// RawFrame is one frame as delivered by a stream. Data is packed row-major, little endian for
// 16 bit formats. Timestamp is the device clock at capture.
type RawFrame struct {
	Kind      StreamKind
	Width     int
	Height    int
	Format    rimage.PixelFormat
	Data      []byte
	Timestamp time.Duration
	Index     uint64
}

// Validate checks that Data holds a full frame.
func (f *RawFrame) Validate() error {
	if f.Width <= 0 || f.Height <= 0 {
		return errors.Errorf("%v frame has invalid size %dx%d", f.Kind, f.Width, f.Height)
	}
	if want := f.Width * f.Height * f.Format.BytesPerPixel(); want == 0 || len(f.Data) < want {
		return errors.Errorf("%v frame has %d bytes, expected %d for %dx%d %v",
			f.Kind, len(f.Data), want, f.Width, f.Height, f.Format)
	}
	return nil
}

// Depth16 decodes a depth frame into millimeters.
func (f *RawFrame) Depth16() (*rimage.DepthMap, error) {
	if !f.Format.IsDepth() {
		return nil, errors.Errorf("frame format %v is not depth", f.Format)
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	dm := rimage.NewEmptyDepthMap(f.Width, f.Height)
	data := dm.Data()
	for i := range data {
		v := binary.LittleEndian.Uint16(f.Data[2*i:])
		if f.Format == rimage.Depth100UM {
			v /= 10
		}
		data[i] = rimage.Depth(v)
	}
	return dm, nil
}

// RGB wraps a color frame's bytes as an image without copying.
func (f *RawFrame) RGB() (*rimage.Image, error) {
	if f.Format != rimage.RGB888 {
		return nil, errors.Errorf("frame format %v is not rgb", f.Format)
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return rimage.NewImageFromRGB(f.Width, f.Height, f.Data[:f.Width*f.Height*3])
}

// DeviceDescriptor identifies a device found by enumeration.
type DeviceDescriptor struct {
	URI       string `json:"uri"`
	Name      string `json:"name"`
	Vendor    string `json:"vendor"`
	Serial    string `json:"serial"`
	VendorID  uint16 `json:"usb_vendor_id"`
	ProductID uint16 `json:"usb_product_id"`
}

// A Driver is the process-wide entry point of a sensor SDK. Initialize must be called before any
// other method and Shutdown once nothing is open anymore; Registry takes care of both.
type Driver interface {
	Initialize() error
	Shutdown() error
	Enumerate(ctx context.Context) ([]DeviceDescriptor, error)
	Open(ctx context.Context, uri string) (Device, error)
}

// A Device is one opened sensor.
type Device interface {
	Descriptor() DeviceDescriptor
	// SupportedModes returns the modes of a stream kind. It fails with
	// ErrStreamConfigurationUnsupported when the device has no such stream.
	SupportedModes(kind StreamKind) ([]VideoMode, error)
	OpenStream(ctx context.Context, kind StreamKind, mode VideoMode) (Stream, error)
	// Calibration returns the factory calibration between the depth and color cameras.
	Calibration() (*transform.DepthColorIntrinsicsExtrinsics, error)
	Close(ctx context.Context) error
}

// A Stream delivers frames of one kind.
type Stream interface {
	Kind() StreamKind
	Mode() VideoMode
	// ReadFrame blocks until a frame is available, timeout passes (ErrFrameTimeout) or ctx is done.
	ReadFrame(ctx context.Context, timeout time.Duration) (*RawFrame, error)
	Close() error
}
