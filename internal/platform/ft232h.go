//go:build cgo && !rp2040 && !rp2350

package platform

import (
	"github.com/yunginnanet/ft232h"

	"tinycore-go/drivers/lsm6ds3trc"
	"tinycore-go/services/imu"
	"tinycore-go/types"
)

const ftClockHz = 1_000_000

// ftRegs frames register accesses on the FT232H MPSSE SPI engine. The engine
// is half duplex, so a read is an address write followed by a read inside
// one chip-select window.
type ftRegs struct {
	ft *ft232h.FT232H
}

func (b *ftRegs) ReadRegister(reg uint8, buf []byte) error {
	if _, err := b.ft.SPI.Write([]byte{reg | 0x80}, true, false); err != nil {
		return err
	}
	data, err := b.ft.SPI.Read(uint(len(buf)), false, true)
	if err != nil {
		return err
	}
	copy(buf, data)
	return nil
}

func (b *ftRegs) WriteRegister(reg uint8, buf []byte) error {
	out := make([]byte, 0, len(buf)+1)
	out = append(out, reg&^0x80)
	out = append(out, buf...)
	_, err := b.ft.SPI.Write(out, true, true)
	return err
}

func (b *ftRegs) Close() error { return b.ft.Close() }

func openFT232H(index string, cfg types.IMUConfig, drv lsm6ds3trc.Config) (imu.Device, error) {
	var (
		ft  *ft232h.FT232H
		err error
	)
	if index == "" {
		ft, err = ft232h.New()
	} else {
		ft, err = ft232h.OpenMask(&ft232h.Mask{Index: index})
	}
	if err != nil {
		return nil, openFailed("ft232h", err)
	}

	spiCfg := ft.SPI.GetConfig()
	spiCfg.Clock = ftClockHz
	spiCfg.Mode = 3
	spiCfg.CS = ft232h.C(uint(cfg.CSPin))
	spiCfg.ActiveLow = true
	if err := ft.SPI.Config(spiCfg); err != nil {
		_ = ft.Close()
		return nil, openFailed("ft232h spi", err)
	}

	regs := &ftRegs{ft: ft}
	dev := lsm6ds3trc.New(regs, lsm6ds3trc.NewRegisterCore(regs), drv)
	return &closingDevice{Device: dev, closer: regs}, nil
}
