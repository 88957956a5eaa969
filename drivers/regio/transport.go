package regio

import (
	"errors"

	"tinygo.org/x/drivers"
)

// maxBurst bounds a single register burst so transports can use fixed buffers.
const maxBurst = 16

// ErrBurstTooLong is returned for transfers longer than 16 bytes.
var ErrBurstTooLong = errors.New("regio: burst too long")

// I2C addresses registers on a 7-bit I2C target.
//
// NOTE: drivers.I2C.Tx MUST perform a write followed by a repeated-start read
// when both w and r are provided, without releasing the bus.
type I2C struct {
	bus  drivers.I2C
	addr uint16
	w    [maxBurst + 1]byte
}

// NewI2C returns a Bus for the target at addr.
func NewI2C(bus drivers.I2C, addr uint16) *I2C {
	return &I2C{bus: bus, addr: addr}
}

// Address returns the 7-bit target address.
func (b *I2C) Address() uint16 { return b.addr }

func (b *I2C) ReadRegister(reg uint8, buf []byte) error {
	if len(buf) > maxBurst {
		return ErrBurstTooLong
	}
	b.w[0] = reg
	return b.bus.Tx(b.addr, b.w[:1], buf)
}

func (b *I2C) WriteRegister(reg uint8, buf []byte) error {
	if len(buf) > maxBurst {
		return ErrBurstTooLong
	}
	b.w[0] = reg
	n := copy(b.w[1:], buf)
	return b.bus.Tx(b.addr, b.w[:1+n], nil)
}

// ChipSelect drives the chip-select line; level false asserts an active-low CS.
type ChipSelect func(level bool)

// SPI addresses registers on a 4-wire SPI target using the common ST/Bosch
// framing: the first byte carries the register address with bit 7 set for
// reads and clear for writes.
type SPI struct {
	bus drivers.SPI
	cs  ChipSelect
	tx  [maxBurst + 1]byte
	rx  [maxBurst + 1]byte
}

// NewSPI returns a Bus on bus framed by cs. cs may be nil when the
// controller drives chip-select itself.
func NewSPI(bus drivers.SPI, cs ChipSelect) *SPI {
	if cs == nil {
		cs = func(bool) {}
	}
	return &SPI{bus: bus, cs: cs}
}

const spiRead = 0x80

func (b *SPI) ReadRegister(reg uint8, buf []byte) error {
	if len(buf) > maxBurst {
		return ErrBurstTooLong
	}
	n := len(buf) + 1
	b.tx[0] = reg | spiRead
	for i := 1; i < n; i++ {
		b.tx[i] = 0
	}
	b.cs(false)
	err := b.bus.Tx(b.tx[:n], b.rx[:n])
	b.cs(true)
	if err != nil {
		return err
	}
	copy(buf, b.rx[1:n])
	return nil
}

func (b *SPI) WriteRegister(reg uint8, buf []byte) error {
	if len(buf) > maxBurst {
		return ErrBurstTooLong
	}
	b.tx[0] = reg &^ spiRead
	n := 1 + copy(b.tx[1:], buf)
	b.cs(false)
	err := b.bus.Tx(b.tx[:n], b.rx[:n])
	b.cs(true)
	return err
}
