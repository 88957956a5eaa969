//go:build !rp2040 && !rp2350

package platform

import (
	"strings"
	"sync"

	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"

	"tinycore-go/drivers/lsm6ds3trc"
	"tinycore-go/services/imu"
	"tinycore-go/types"
)

var (
	hostOnce sync.Once
	hostErr  error
)

func initHost() error {
	hostOnce.Do(func() { _, hostErr = host.Init() })
	return hostErr
}

func openIMU(cfg types.IMUConfig, drv lsm6ds3trc.Config) (imu.Device, error) {
	if idx, ok := ft232hIndex(cfg.Bus); ok {
		return openFT232H(idx, cfg, drv)
	}
	name, ok := i2cName(cfg.Bus)
	if !ok {
		return nil, unknownBus(cfg.Bus)
	}
	if err := initHost(); err != nil {
		return nil, openFailed("periph host", err)
	}
	b, err := i2creg.Open(name)
	if err != nil {
		return nil, openFailed(cfg.Bus, err)
	}
	// periph's i2c.Bus has the same Tx shape as drivers.I2C.
	return &closingDevice{Device: lsm6ds3trc.NewI2C(b, drv), closer: b}, nil
}

// i2cName maps "/dev/i2c-1", "i2c-1" and "i2c1" to the periph bus number.
// Registry names such as "I2C1" pass through; "i2c" picks the first bus.
func i2cName(bus string) (string, bool) {
	s := strings.TrimPrefix(bus, "/dev/")
	lower := strings.ToLower(s)
	if !strings.HasPrefix(lower, "i2c") {
		return "", false
	}
	if lower == "i2c" {
		return "", true
	}
	n := strings.TrimPrefix(strings.TrimPrefix(lower, "i2c"), "-")
	if n == "" || strings.Trim(n, "0123456789") != "" {
		return "", false
	}
	return n, true
}

// ft232hIndex accepts "ft232h" (first device) and "ft232h:<index>".
func ft232hIndex(bus string) (string, bool) {
	switch {
	case bus == "ft232h":
		return "", true
	case strings.HasPrefix(bus, "ft232h:"):
		return strings.TrimPrefix(bus, "ft232h:"), true
	}
	return "", false
}
