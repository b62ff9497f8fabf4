// Package fake implements a sensor driver whose devices render a deterministic synthetic scene:
// a tilted floor plane with a sphere drifting across it, a color checkerboard and IR speckle.
package fake

import (
	"context"
	"sync"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"

	"go.viam.com/rgbd/sensor"
)

// Driver is an in-memory sensor driver.
type Driver struct {
	clock clock.Clock

	mu            sync.Mutex
	devices       []*Device
	initialized   bool
	initCount     int
	shutdownCount int
}

// NewDriver returns a driver serving devices. A nil clock uses the wall clock.
func NewDriver(clk clock.Clock, devices ...*Device) *Driver {
	if clk == nil {
		clk = clock.New()
	}
	for _, d := range devices {
		d.clock = clk
	}
	return &Driver{clock: clk, devices: devices}
}

// Initialize implements sensor.Driver.
func (d *Driver) Initialize() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.initialized {
		return errors.New("fake driver already initialized")
	}
	d.initialized = true
	d.initCount++
	return nil
}

// Shutdown implements sensor.Driver.
func (d *Driver) Shutdown() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.initialized {
		return errors.New("fake driver not initialized")
	}
	d.initialized = false
	d.shutdownCount++
	return nil
}

// Counts returns how many times the driver was initialized and shut down.
func (d *Driver) Counts() (initialized, shutdown int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.initCount, d.shutdownCount
}

// Initialized reports whether the driver is between Initialize and Shutdown.
func (d *Driver) Initialized() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.initialized
}

// Enumerate implements sensor.Driver.
func (d *Driver) Enumerate(ctx context.Context) ([]sensor.DeviceDescriptor, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.initialized {
		return nil, errors.New("fake driver not initialized")
	}
	descs := make([]sensor.DeviceDescriptor, 0, len(d.devices))
	for _, dev := range d.devices {
		descs = append(descs, dev.Descriptor())
	}
	return descs, nil
}

// Open implements sensor.Driver.
func (d *Driver) Open(ctx context.Context, uri string) (sensor.Device, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.initialized {
		return nil, errors.New("fake driver not initialized")
	}
	for _, dev := range d.devices {
		if dev.desc.URI != uri {
			continue
		}
		if err := dev.open(); err != nil {
			return nil, err
		}
		return dev, nil
	}
	return nil, errors.Wrapf(sensor.ErrDeviceUnavailable, "no fake device at %q", uri)
}
