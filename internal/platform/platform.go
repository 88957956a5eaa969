// Package platform opens the bus an IMU config names and returns an
// uninitialised LSM6DS3TR-C on it. Bus names depend on the build target:
//
//	rp2040/rp2350: "i2c0", "i2c1", "spi0", "spi1"
//	host:          "i2c-1", "/dev/i2c-1", "I2C1" (periph), "ft232h", "ft232h:<index>"
package platform

import (
	"io"

	"tinycore-go/drivers/lsm6ds3trc"
	"tinycore-go/errcode"
	"tinycore-go/services/imu"
	"tinycore-go/types"
)

// IMUFactory is the imu.Factory for the current target.
func IMUFactory() imu.Factory { return openIMU }

// Open is IMUFactory()(cfg, drv) for callers outside the service.
func Open(cfg types.IMUConfig, drv lsm6ds3trc.Config) (imu.Device, error) {
	return openIMU(cfg, drv)
}

// Close releases the bus behind dev when the platform opened one.
func Close(dev imu.Device) error {
	if c, ok := dev.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// closingDevice ties a host bus handle to the device using it.
type closingDevice struct {
	*lsm6ds3trc.Device
	closer io.Closer
}

func (d *closingDevice) Close() error { return d.closer.Close() }

func unknownBus(name string) error {
	if name == "" {
		name = "<no bus>"
	}
	return &errcode.E{C: errcode.UnknownBus, Op: "open", Msg: name}
}

func openFailed(name string, err error) error {
	return &errcode.E{C: errcode.UnknownBus, Op: "open " + name, Msg: err.Error(), Err: err}
}
