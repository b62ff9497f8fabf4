package fake

import (
	"context"
	"sync"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"go.viam.com/rgbd/rimage"
	"go.viam.com/rgbd/rimage/transform"
	"go.viam.com/rgbd/sensor"
)

// DeviceOptions describe a fake device.
type DeviceOptions struct {
	URI    string
	Name   string
	Serial string

	// Width, Height and FPS are the largest mode. A half resolution mode is offered as well.
	Width  int
	Height int
	FPS    int

	// DepthFormat defaults to rimage.Depth1MM.
	DepthFormat rimage.PixelFormat
	NoColor     bool
	HasIR       bool

	// OpenErr, when set, is returned by every attempt to open the device.
	OpenErr error
}

// Device is a fake structured-light sensor.
type Device struct {
	desc  sensor.DeviceDescriptor
	opts  DeviceOptions
	clock clock.Clock

	mu      sync.Mutex
	isOpen  bool
	streams map[sensor.StreamKind]*Stream
	faults  map[sensor.StreamKind][]error
}

// NewDevice returns a device with opts, filling in defaults for a 640x480 30fps sensor.
func NewDevice(opts DeviceOptions) *Device {
	if opts.Width == 0 || opts.Height == 0 {
		opts.Width, opts.Height = 640, 480
	}
	if opts.FPS == 0 {
		opts.FPS = 30
	}
	if opts.DepthFormat == rimage.PixelFormatUnknown {
		opts.DepthFormat = rimage.Depth1MM
	}
	if opts.Serial == "" {
		opts.Serial = uuid.NewString()
	}
	if opts.URI == "" {
		opts.URI = "fake://" + opts.Serial
	}
	if opts.Name == "" {
		opts.Name = "fake structured light sensor"
	}
	return &Device{
		desc: sensor.DeviceDescriptor{
			URI:       opts.URI,
			Name:      opts.Name,
			Vendor:    "rgbd",
			Serial:    opts.Serial,
			VendorID:  0x1d27,
			ProductID: 0x0601,
		},
		opts:    opts,
		clock:   clock.New(),
		streams: map[sensor.StreamKind]*Stream{},
		faults:  map[sensor.StreamKind][]error{},
	}
}

func (d *Device) open() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.opts.OpenErr != nil {
		return d.opts.OpenErr
	}
	if d.isOpen {
		return errors.Wrapf(sensor.ErrDeviceUnavailable, "%q is already open", d.desc.URI)
	}
	d.isOpen = true
	return nil
}

// Descriptor implements sensor.Device.
func (d *Device) Descriptor() sensor.DeviceDescriptor {
	return d.desc
}

// SupportedModes implements sensor.Device.
func (d *Device) SupportedModes(kind sensor.StreamKind) ([]sensor.VideoMode, error) {
	var format rimage.PixelFormat
	switch kind {
	case sensor.DepthStream:
		format = d.opts.DepthFormat
	case sensor.ColorStream:
		if d.opts.NoColor {
			return nil, errors.Wrap(sensor.ErrStreamConfigurationUnsupported, "device has no color sensor")
		}
		format = rimage.RGB888
	case sensor.IRStream:
		if !d.opts.HasIR {
			return nil, errors.Wrap(sensor.ErrStreamConfigurationUnsupported, "device has no ir sensor")
		}
		format = rimage.Gray16
	default:
		return nil, errors.Wrapf(sensor.ErrStreamConfigurationUnsupported, "unknown stream kind %v", kind)
	}
	return []sensor.VideoMode{
		{Width: d.opts.Width / 2, Height: d.opts.Height / 2, FPS: d.opts.FPS, Format: format},
		{Width: d.opts.Width, Height: d.opts.Height, FPS: d.opts.FPS / 2, Format: format},
		{Width: d.opts.Width, Height: d.opts.Height, FPS: d.opts.FPS, Format: format},
	}, nil
}

// OpenStream implements sensor.Device.
func (d *Device) OpenStream(ctx context.Context, kind sensor.StreamKind, mode sensor.VideoMode) (sensor.Stream, error) {
	modes, err := d.SupportedModes(kind)
	if err != nil {
		return nil, err
	}
	supported := false
	for _, m := range modes {
		if m == mode {
			supported = true
		}
	}
	if !supported {
		return nil, errors.Wrapf(sensor.ErrStreamConfigurationUnsupported, "%v stream does not support %v", kind, mode)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.isOpen {
		return nil, errors.Wrap(sensor.ErrDeviceUnavailable, "device is closed")
	}
	if _, ok := d.streams[kind]; ok {
		return nil, errors.Errorf("%v stream already open", kind)
	}
	s := newStream(d, kind, mode)
	d.streams[kind] = s
	return s, nil
}

// InjectFaults queues errors to be returned, in order, by the next reads of the kind's stream
// before frames resume. Queue sensor.ErrFrameTimeout to simulate a missed frame.
func (d *Device) InjectFaults(kind sensor.StreamKind, errs ...error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.faults[kind] = append(d.faults[kind], errs...)
}

func (d *Device) nextFault(kind sensor.StreamKind) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	queue := d.faults[kind]
	if len(queue) == 0 {
		return nil
	}
	err := queue[0]
	d.faults[kind] = queue[1:]
	return err
}

// PendingFaults returns how many injected faults the kind's stream has not consumed yet.
func (d *Device) PendingFaults(kind sensor.StreamKind) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.faults[kind])
}

func (d *Device) streamMode(kind sensor.StreamKind) (sensor.VideoMode, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	s, ok := d.streams[kind]
	if !ok {
		return sensor.VideoMode{}, false
	}
	return s.mode, true
}

// Calibration implements sensor.Device. Intrinsics follow the open streams' resolution, or the
// largest mode when no stream is open.
func (d *Device) Calibration() (*transform.DepthColorIntrinsicsExtrinsics, error) {
	depthW, depthH := d.opts.Width, d.opts.Height
	if m, ok := d.streamMode(sensor.DepthStream); ok {
		depthW, depthH = m.Width, m.Height
	}
	colorW, colorH := depthW, depthH
	if m, ok := d.streamMode(sensor.ColorStream); ok {
		colorW, colorH = m.Width, m.Height
	}
	return &transform.DepthColorIntrinsicsExtrinsics{
		DepthCamera:  intrinsicsFor(depthW, depthH),
		ColorCamera:  intrinsicsFor(colorW, colorH),
		ExtrinsicD2C: *transform.IdentityExtrinsics(),
	}, nil
}

func intrinsicsFor(width, height int) transform.PinholeCameraIntrinsics {
	f := focalLength640 * float64(width) / 640
	return transform.PinholeCameraIntrinsics{
		Width:  width,
		Height: height,
		Fx:     f,
		Fy:     f,
		Ppx:    float64(width-1) / 2,
		Ppy:    float64(height-1) / 2,
	}
}

func (d *Device) closeStream(kind sensor.StreamKind) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.streams, kind)
}

// Close implements sensor.Device. Streams still open are closed.
func (d *Device) Close(ctx context.Context) error {
	d.mu.Lock()
	if !d.isOpen {
		d.mu.Unlock()
		return errors.New("device already closed")
	}
	d.isOpen = false
	streams := make([]*Stream, 0, len(d.streams))
	for _, s := range d.streams {
		streams = append(streams, s)
	}
	d.mu.Unlock()

	var err error
	for _, s := range streams {
		err = multierr.Combine(err, s.Close())
	}
	return err
}
