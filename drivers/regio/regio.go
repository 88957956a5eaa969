// Package regio provides register and bit-field access to 8-bit register
// devices over I2C or SPI.
//
// A Register names one address on a Bus. A Field names a contiguous run of
// bits inside a Register; writing a Field is a read-modify-write that leaves
// every bit outside the field untouched. Registers and Fields are plain
// values: build them where needed and drop them afterwards. They hold no
// device state; the device is the only source of truth.
//
// Every primitive returns the bus error as-is.
package regio

import (
	"errors"
)

// Errors returned by the accessor.
var (
	ErrFieldGeometry = errors.New("regio: field does not fit in an 8-bit register")
	ErrFieldOverflow = errors.New("regio: value does not fit in field")
)

// Bus moves bytes to and from consecutive device registers starting at reg.
type Bus interface {
	ReadRegister(reg uint8, buf []byte) error
	WriteRegister(reg uint8, buf []byte) error
}

// Register is an addressed 8-bit device register.
type Register struct {
	bus  Bus
	addr uint8
}

// NewRegister binds addr on bus.
func NewRegister(bus Bus, addr uint8) Register {
	return Register{bus: bus, addr: addr}
}

// Addr returns the register address.
func (r Register) Addr() uint8 { return r.addr }

// Read returns the current register value.
func (r Register) Read() (uint8, error) {
	var b [1]byte
	if err := r.bus.ReadRegister(r.addr, b[:]); err != nil {
		return 0, err
	}
	return b[0], nil
}

// ReadInto fills buf starting at this register. The device must
// auto-increment the address for len(buf) > 1.
func (r Register) ReadInto(buf []byte) error {
	return r.bus.ReadRegister(r.addr, buf)
}

// Write stores v.
func (r Register) Write(v uint8) error {
	b := [1]byte{v}
	return r.bus.WriteRegister(r.addr, b[:])
}

// Update sets the bits in set and then clears the bits in clear.
func (r Register) Update(set, clear uint8) error {
	cur, err := r.Read()
	if err != nil {
		return err
	}
	return r.Write((cur | set) &^ clear)
}

// Field returns the width-bit field starting at bit shift.
func (r Register) Field(width, shift uint8) Field {
	return Field{reg: r, width: width, shift: shift}
}

// Bit is shorthand for a single-bit Field.
func (r Register) Bit(shift uint8) Field {
	return r.Field(1, shift)
}

// Field is a run of bits within a Register.
type Field struct {
	reg   Register
	width uint8
	shift uint8
}

func (f Field) valid() bool {
	return f.width > 0 && uint16(f.width)+uint16(f.shift) <= 8
}

// Mask returns the in-register mask covered by the field.
func (f Field) Mask() uint8 {
	if !f.valid() {
		return 0
	}
	return uint8(((1 << f.width) - 1) << f.shift)
}

// Read returns the field value, right-aligned.
func (f Field) Read() (uint8, error) {
	if !f.valid() {
		return 0, ErrFieldGeometry
	}
	v, err := f.reg.Read()
	if err != nil {
		return 0, err
	}
	return (v & f.Mask()) >> f.shift, nil
}

// Write replaces the field with v using read-modify-write.
func (f Field) Write(v uint8) error {
	if !f.valid() {
		return ErrFieldGeometry
	}
	if uint16(v) >= 1<<f.width {
		return ErrFieldOverflow
	}
	cur, err := f.reg.Read()
	if err != nil {
		return err
	}
	m := f.Mask()
	return f.reg.Write((cur &^ m) | ((v << f.shift) & m))
}

// WriteBool writes 1 for true and 0 for false.
func (f Field) WriteBool(b bool) error {
	var v uint8
	if b {
		v = 1
	}
	return f.Write(v)
}

// ReadBool reports whether any bit of the field is set.
func (f Field) ReadBool() (bool, error) {
	v, err := f.Read()
	return v != 0, err
}
