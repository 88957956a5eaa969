// Package lsm6ds3trc provides a TinyGo driver extension for the ST
// LSM6DS3TR-C 6-axis accelerometer/gyroscope.
//
// The Device does not re-implement the LSM6DS core. It holds a register
// accessor (regio.Bus) and a base driver (Core) and adds what is specific to
// this part:
//
//	d := lsm6ds3trc.NewI2C(bus, lsm6ds3trc.Config{})
//	err := d.Init(0)                // chip id check, reset, core setup, BDU
//	err = d.EnablePedometer(true)   // PEDO_EN + FUNC_EN, step counter cleared
//	err = d.EnableI2CMasterPullups(true)
//
// Init must succeed before anything else; until then every operation
// returns ErrNotInitialised without touching the bus.
//
// The driver is not safe for concurrent use. One owner drives it.
package lsm6ds3trc

import (
	"errors"
	"fmt"
	"time"

	"tinygo.org/x/drivers"

	"tinycore-go/drivers/regio"
)

// Errors returned by the driver.
var (
	ErrWrongChip      = errors.New("lsm6ds3trc: unexpected chip id")
	ErrNotInitialised = errors.New("lsm6ds3trc: not initialised")
	ErrInitialised    = errors.New("lsm6ds3trc: already initialised")
	ErrResetTimeout   = errors.New("lsm6ds3trc: reset did not complete")
)

// Config controls base-driver setup and reset pacing. All fields are optional.
type Config struct {
	// Address defaults to 0x6A if zero. Ignored on SPI.
	Address uint16

	// Zero values select ±4 g / ±2000 dps at 104 Hz.
	AccelRange AccelRange
	AccelRate  DataRate
	GyroRange  GyroRange
	GyroRate   DataRate

	// ResetTimeout bounds each of the SW_RESET and BOOT waits. Default 50 ms.
	ResetTimeout time.Duration
	// ResetPoll is the delay between reset status reads. Default 1 ms.
	ResetPoll time.Duration
}

func (c Config) withDefaults() Config {
	if c.Address == 0 {
		c.Address = Address
	}
	if c.ResetTimeout <= 0 {
		c.ResetTimeout = 50 * time.Millisecond
	}
	if c.ResetPoll <= 0 {
		c.ResetPoll = time.Millisecond
	}
	return c
}

// SensorIDs tags readings of the three sub-sensors. They are derived from
// the base id passed to Init and never change afterwards.
type SensorIDs struct {
	Accel int32
	Gyro  int32
	Temp  int32
}

// DeriveSensorIDs returns base, base+1 and base+2.
func DeriveSensorIDs(base int32) SensorIDs {
	return SensorIDs{Accel: base, Gyro: base + 1, Temp: base + 2}
}

// Device is an LSM6DS3TR-C on a register bus.
type Device struct {
	regs regio.Bus
	core Core
	cfg  Config

	ids   SensorIDs
	ready bool
}

// New composes a Device from a register accessor and a base driver.
// This function only creates the Device object; it does not touch the device.
func New(regs regio.Bus, core Core, cfg Config) *Device {
	return &Device{regs: regs, core: core, cfg: cfg.withDefaults()}
}

// NewI2C builds a Device on an I2C bus with the TinyGo LSM6DS3TR driver as
// its base driver.
func NewI2C(bus drivers.I2C, cfg Config) *Device {
	cfg = cfg.withDefaults()
	return New(regio.NewI2C(bus, cfg.Address), NewTinyGoCore(bus, cfg.Address), cfg)
}

// NewSPI builds a Device on a 4-wire SPI bus. cs frames each transfer.
func NewSPI(bus drivers.SPI, cs regio.ChipSelect, cfg Config) *Device {
	regs := regio.NewSPI(bus, cs)
	return New(regs, NewRegisterCore(regs), cfg)
}

// ---------------- Lifecycle ----------------

// Init verifies the chip, resets it, hands over to the base driver and
// enables Block Data Update. sensorID is the base of the three SensorIDs.
//
// A wrong chip id returns ErrWrongChip before any register is written.
func (d *Device) Init(sensorID int32) error {
	if d.ready {
		return ErrInitialised
	}
	id, err := d.ChipID()
	if err != nil {
		return err
	}
	if id != ChipID {
		return fmt.Errorf("%w: got 0x%02X, want 0x%02X", ErrWrongChip, id, ChipID)
	}

	if err := d.Reset(); err != nil {
		return err
	}
	if err := d.core.Configure(d.cfg); err != nil {
		return err
	}

	// BDU holds the output MSB/LSB pair until both halves have been read.
	if err := regio.NewRegister(d.regs, regCtrl3C).Bit(ctrl3BDU).WriteBool(true); err != nil {
		return err
	}

	d.ids = DeriveSensorIDs(sensorID)
	d.ready = true
	return nil
}

// Initialised reports whether Init has completed.
func (d *Device) Initialised() bool { return d.ready }

// SensorIDs returns the ids assigned by Init (zero before).
func (d *Device) SensorIDs() SensorIDs { return d.ids }

// ChipID reads WHO_AM_I. It is the one read allowed before Init.
func (d *Device) ChipID() (uint8, error) {
	return regio.NewRegister(d.regs, regWhoAmI).Read()
}

// Reset performs a software reset followed by a memory reboot, waiting for
// the device to clear each bit.
func (d *Device) Reset() error {
	ctrl3 := regio.NewRegister(d.regs, regCtrl3C)
	if err := d.pulse(ctrl3.Bit(ctrl3SWReset)); err != nil {
		return err
	}
	return d.pulse(ctrl3.Bit(ctrl3Boot))
}

// pulse sets a self-clearing bit and polls until the device drops it.
func (d *Device) pulse(bit regio.Field) error {
	if err := bit.WriteBool(true); err != nil {
		return err
	}
	deadline := time.Now().Add(d.cfg.ResetTimeout)
	for {
		set, err := bit.ReadBool()
		if err != nil {
			return err
		}
		if !set {
			return nil
		}
		if time.Now().After(deadline) {
			return ErrResetTimeout
		}
		time.Sleep(d.cfg.ResetPoll)
	}
}

// BlockDataUpdate reports the BDU bit.
func (d *Device) BlockDataUpdate() (bool, error) {
	if !d.ready {
		return false, ErrNotInitialised
	}
	return regio.NewRegister(d.regs, regCtrl3C).Bit(ctrl3BDU).ReadBool()
}

// ---------------- Embedded functions ----------------

// EnablePedometer sets PEDO_EN and FUNC_EN together to enable, then clears
// the step counter. The counter is cleared on disable too, so counting always
// restarts from zero after a toggle.
func (d *Device) EnablePedometer(enable bool) error {
	if !d.ready {
		return ErrNotInitialised
	}
	ctrl10 := regio.NewRegister(d.regs, regCtrl10C)
	if err := ctrl10.Bit(ctrl10PedoEn).WriteBool(enable); err != nil {
		return err
	}
	if err := ctrl10.Bit(ctrl10FuncEn).WriteBool(enable); err != nil {
		return err
	}
	return d.ResetPedometer()
}

// EnableI2CMasterPullups switches the internal pull-ups on the auxiliary
// I2C master lines. Nothing else in MASTER_CONFIG changes.
func (d *Device) EnableI2CMasterPullups(enable bool) error {
	if !d.ready {
		return ErrNotInitialised
	}
	return regio.NewRegister(d.regs, regMasterConfig).Bit(masterPullUpEn).WriteBool(enable)
}

// ---------------- Readout (base driver) ----------------

// ReadAcceleration returns µg per axis.
func (d *Device) ReadAcceleration() (x, y, z int32, err error) {
	if !d.ready {
		return 0, 0, 0, ErrNotInitialised
	}
	return d.core.ReadAcceleration()
}

// ReadRotation returns µ°/s per axis.
func (d *Device) ReadRotation() (x, y, z int32, err error) {
	if !d.ready {
		return 0, 0, 0, ErrNotInitialised
	}
	return d.core.ReadRotation()
}

// ReadTemperature returns m°C.
func (d *Device) ReadTemperature() (int32, error) {
	if !d.ready {
		return 0, ErrNotInitialised
	}
	return d.core.ReadTemperature()
}
