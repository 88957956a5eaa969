package lsm6ds3trc

import (
	"math"

	"tinygo.org/x/drivers"
	"tinygo.org/x/drivers/lsm6ds3tr"

	"tinycore-go/drivers/regio"
	"tinycore-go/x/mathx"
)

// Core is the LSM6DS base driver the extension builds on: range, data rate
// and readout path. Units follow the TinyGo drivers: µg, µ°/s and m°C.
type Core interface {
	Configure(cfg Config) error
	ReadAcceleration() (x, y, z int32, err error)
	ReadRotation() (x, y, z int32, err error)
	ReadTemperature() (int32, error)
}

// ---------------- TinyGo base driver ----------------

// tinygoCore adapts tinygo.org/x/drivers/lsm6ds3tr. It speaks I2C only.
//
// The TinyGo driver reads a zero range or rate code as "use the default",
// which hides ±250 dps and power-down. CTRL1_XL/CTRL2_G are therefore
// rewritten with the exact codes after it configures, and rotation is read
// through the register path whenever the driver's own scale would be wrong.
type tinygoCore struct {
	dev   *lsm6ds3tr.Device
	regs  *registerCore
	exact bool // gyro scale unknown to the TinyGo driver
}

// NewTinyGoCore wraps the TinyGo LSM6DS3TR driver for the target at addr.
func NewTinyGoCore(bus drivers.I2C, addr uint16) Core {
	if addr == 0 {
		addr = Address
	}
	d := lsm6ds3tr.New(bus)
	d.Address = addr
	return &tinygoCore{dev: d, regs: &registerCore{bus: regio.NewI2C(bus, addr)}}
}

func (c *tinygoCore) Configure(cfg Config) error {
	// The driver's range and rate enums are the raw CTRL1_XL / CTRL2_G codes.
	err := c.dev.Configure(lsm6ds3tr.Configuration{
		AccelRange:      lsm6ds3tr.AccelRange(cfg.AccelRange.bits()),
		AccelSampleRate: lsm6ds3tr.AccelSampleRate(cfg.AccelRate.bits()),
		GyroRange:       lsm6ds3tr.GyroRange(cfg.GyroRange.bits()),
		GyroSampleRate:  lsm6ds3tr.GyroSampleRate(cfg.GyroRate.bits()),
	})
	if err != nil {
		return err
	}
	if err := c.regs.Configure(cfg); err != nil {
		return err
	}
	c.exact = cfg.GyroRange.bits() == 0
	return nil
}

func (c *tinygoCore) ReadAcceleration() (x, y, z int32, err error) {
	return c.dev.ReadAcceleration()
}

func (c *tinygoCore) ReadRotation() (x, y, z int32, err error) {
	if c.exact {
		return c.regs.ReadRotation()
	}
	return c.dev.ReadRotation()
}

func (c *tinygoCore) ReadTemperature() (int32, error) {
	return c.dev.ReadTemperature()
}

// ---------------- Register-level base driver ----------------

// registerCore implements Core on any regio.Bus, which makes it usable over
// SPI where the TinyGo driver is not.
type registerCore struct {
	bus      regio.Bus
	accelLSB int32 // µg per LSB
	gyroLSB  int32 // µ°/s per LSB
	buf      [6]byte
}

// NewRegisterCore returns a base driver that programs CTRL1_XL/CTRL2_G and
// reads the output registers directly.
func NewRegisterCore(bus regio.Bus) Core {
	return &registerCore{bus: bus}
}

func (c *registerCore) Configure(cfg Config) error {
	if err := regio.NewRegister(c.bus, regCtrl1XL).Write(cfg.AccelRate.bits() | cfg.AccelRange.bits()); err != nil {
		return err
	}
	if err := regio.NewRegister(c.bus, regCtrl2G).Write(cfg.GyroRate.bits() | cfg.GyroRange.bits()); err != nil {
		return err
	}
	// Burst reads below rely on address auto-increment.
	if err := regio.NewRegister(c.bus, regCtrl3C).Bit(ctrl3IfInc).WriteBool(true); err != nil {
		return err
	}
	c.accelLSB = cfg.AccelRange.microG()
	c.gyroLSB = cfg.GyroRange.microDPS()
	return nil
}

func (c *registerCore) readAxes(reg uint8, scale int32) (x, y, z int32, err error) {
	if err = regio.NewRegister(c.bus, reg).ReadInto(c.buf[:6]); err != nil {
		return
	}
	x = scaleRaw(c.buf[0], c.buf[1], scale)
	y = scaleRaw(c.buf[2], c.buf[3], scale)
	z = scaleRaw(c.buf[4], c.buf[5], scale)
	return
}

// scaleRaw converts a little-endian two's complement sample. ±2000 dps at
// full deflection exceeds int32 in µ°/s, so the product saturates.
func scaleRaw(lo, hi byte, scale int32) int32 {
	raw := int64(int16(uint16(lo) | uint16(hi)<<8))
	return int32(mathx.Clamp(raw*int64(scale), math.MinInt32, math.MaxInt32))
}

func (c *registerCore) ReadAcceleration() (x, y, z int32, err error) {
	return c.readAxes(regOutXLXL, c.accelLSB)
}

func (c *registerCore) ReadRotation() (x, y, z int32, err error) {
	return c.readAxes(regOutXLG, c.gyroLSB)
}

// ReadTemperature returns m°C: 256 LSB/°C around a 25 °C zero point.
func (c *registerCore) ReadTemperature() (int32, error) {
	if err := regio.NewRegister(c.bus, regOutTempL).ReadInto(c.buf[:2]); err != nil {
		return 0, err
	}
	raw := int32(int16(uint16(c.buf[0]) | uint16(c.buf[1])<<8))
	return 25000 + raw*1000/256, nil
}
