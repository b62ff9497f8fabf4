package sensor_test

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"go.viam.com/test"

	"go.viam.com/rgbd/logging"
	"go.viam.com/rgbd/sensor"
	"go.viam.com/rgbd/sensor/fake"
)

func TestRegistryRefCountsDriver(t *testing.T) {
	ctx := context.Background()
	driver := fake.NewDriver(nil,
		fake.NewDevice(fake.DeviceOptions{URI: "fake://a"}),
		fake.NewDevice(fake.DeviceOptions{URI: "fake://b"}),
	)
	reg := sensor.NewRegistry(driver, logging.NewTestLogger(t))

	descs, err := reg.Enumerate(ctx)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, descs, test.ShouldHaveLength, 2)
	test.That(t, driver.Initialized(), test.ShouldBeFalse)

	first, err := reg.Open(ctx, "")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, first.Descriptor().URI, test.ShouldEqual, "fake://a")
	second, err := reg.Open(ctx, "fake://b")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, reg.OpenCount(), test.ShouldEqual, 2)
	test.That(t, driver.Initialized(), test.ShouldBeTrue)

	test.That(t, first.Close(ctx), test.ShouldBeNil)
	test.That(t, first.Close(ctx), test.ShouldBeNil)
	test.That(t, driver.Initialized(), test.ShouldBeTrue)
	test.That(t, second.Close(ctx), test.ShouldBeNil)
	test.That(t, driver.Initialized(), test.ShouldBeFalse)
	test.That(t, reg.OpenCount(), test.ShouldEqual, 0)

	inits, shutdowns := driver.Counts()
	test.That(t, inits, test.ShouldEqual, 2)
	test.That(t, shutdowns, test.ShouldEqual, 2)
}

func TestRegistryOpenFailures(t *testing.T) {
	ctx := context.Background()
	driver := fake.NewDriver(nil,
		fake.NewDevice(fake.DeviceOptions{URI: "fake://broken", OpenErr: errors.New("usb reset")}),
	)
	reg := sensor.NewRegistry(driver, logging.NewTestLogger(t))

	_, err := reg.Open(ctx, "fake://broken")
	test.That(t, errors.Is(err, sensor.ErrDeviceUnavailable), test.ShouldBeTrue)
	test.That(t, err.Error(), test.ShouldContainSubstring, "usb reset")

	_, err = reg.Open(ctx, "fake://missing")
	test.That(t, errors.Is(err, sensor.ErrDeviceUnavailable), test.ShouldBeTrue)
	test.That(t, reg.OpenCount(), test.ShouldEqual, 0)
	test.That(t, driver.Initialized(), test.ShouldBeFalse)

	empty := sensor.NewRegistry(fake.NewDriver(nil), logging.NewTestLogger(t))
	_, err = empty.Open(ctx, "")
	test.That(t, errors.Is(err, sensor.ErrDeviceUnavailable), test.ShouldBeTrue)
}

func TestRegistryDeviceInUse(t *testing.T) {
	ctx := context.Background()
	reg := sensor.NewRegistry(fake.NewDriver(nil, fake.NewDevice(fake.DeviceOptions{URI: "fake://a"})),
		logging.NewTestLogger(t))
	dev, err := reg.Open(ctx, "fake://a")
	test.That(t, err, test.ShouldBeNil)
	_, err = reg.Open(ctx, "fake://a")
	test.That(t, errors.Is(err, sensor.ErrDeviceUnavailable), test.ShouldBeTrue)
	test.That(t, reg.OpenCount(), test.ShouldEqual, 1)
	test.That(t, dev.Close(ctx), test.ShouldBeNil)
}
