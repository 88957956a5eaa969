package lsm6ds3trc

import "tinycore-go/drivers/regio"

// ResetPedometer clears the step counter.
func (d *Device) ResetPedometer() error {
	if !d.ready {
		return ErrNotInitialised
	}
	return regio.NewRegister(d.regs, regCtrl10C).Bit(ctrl10PedoRstStep).WriteBool(true)
}

// ReadPedometer returns the step count since the last reset.
func (d *Device) ReadPedometer() (uint16, error) {
	if !d.ready {
		return 0, ErrNotInitialised
	}
	var b [2]byte
	if err := regio.NewRegister(d.regs, regStepCounterL).ReadInto(b[:]); err != nil {
		return 0, err
	}
	return uint16(b[0]) | uint16(b[1])<<8, nil
}
