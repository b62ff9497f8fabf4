package sensor

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"go.viam.com/rgbd/logging"
)

// Registry owns a Driver for the whole process. The driver is initialized when the first device
// is opened and shut down when the last one is closed.
type Registry struct {
	driver Driver
	logger logging.Logger

	mu          sync.Mutex
	refs        int
	initialized bool
}

// NewRegistry returns a Registry for driver.
func NewRegistry(driver Driver, logger logging.Logger) *Registry {
	return &Registry{driver: driver, logger: logger}
}

// OpenCount returns the number of devices currently open through the registry.
func (r *Registry) OpenCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.refs
}

func (r *Registry) acquire() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.refs == 0 && !r.initialized {
		if err := r.driver.Initialize(); err != nil {
			return errors.Wrapf(ErrDeviceUnavailable, "cannot initialize driver: %v", err)
		}
		r.initialized = true
		r.logger.Debug("sensor driver initialized")
	}
	r.refs++
	return nil
}

func (r *Registry) release() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.refs == 0 {
		return errors.New("sensor registry released more often than acquired")
	}
	r.refs--
	if r.refs > 0 || !r.initialized {
		return nil
	}
	r.initialized = false
	r.logger.Debug("shutting down sensor driver")
	return r.driver.Shutdown()
}

// Enumerate lists the devices the driver can see.
func (r *Registry) Enumerate(ctx context.Context) (_ []DeviceDescriptor, err error) {
	if err := r.acquire(); err != nil {
		return nil, err
	}
	defer func() {
		err = multierr.Combine(err, r.release())
	}()
	return r.driver.Enumerate(ctx)
}

// Open opens the device at uri, or the first enumerated device when uri is empty. Closing the
// returned Device releases the registry's reference.
func (r *Registry) Open(ctx context.Context, uri string) (_ Device, err error) {
	if err := r.acquire(); err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			err = multierr.Combine(err, r.release())
		}
	}()

	if uri == "" {
		devices, err := r.driver.Enumerate(ctx)
		if err != nil {
			return nil, errors.Wrapf(ErrDeviceUnavailable, "cannot enumerate devices: %v", err)
		}
		if len(devices) == 0 {
			return nil, errors.Wrap(ErrDeviceUnavailable, "no devices connected")
		}
		uri = devices[0].URI
	}

	dev, err := r.driver.Open(ctx, uri)
	if err != nil {
		if errors.Is(err, ErrDeviceUnavailable) {
			return nil, err
		}
		return nil, errors.Wrapf(ErrDeviceUnavailable, "cannot open %q: %v", uri, err)
	}
	r.logger.Infow("opened sensor device", "uri", uri, "name", dev.Descriptor().Name)
	return &registeredDevice{Device: dev, registry: r}, nil
}

type registeredDevice struct {
	Device
	registry  *Registry
	closeOnce sync.Once
	closeErr  error
}

func (d *registeredDevice) Close(ctx context.Context) error {
	d.closeOnce.Do(func() {
		d.closeErr = multierr.Combine(d.Device.Close(ctx), d.registry.release())
	})
	return d.closeErr
}
