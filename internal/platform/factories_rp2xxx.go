//go:build rp2040 || rp2350

package platform

import (
	"machine"
	"sync"

	"tinygo.org/x/drivers"

	"tinycore-go/drivers/lsm6ds3trc"
	"tinycore-go/services/imu"
	"tinycore-go/types"
	"tinycore-go/x/mathx"
)

const (
	i2cHz = 400 * machine.KHz
	spiHz = 8 * machine.MHz
)

var (
	mu      sync.Mutex
	i2cBus  = map[string]drivers.I2C{}
	spiBus  = map[string]*machine.SPI{}
	csReady = map[machine.Pin]bool{}
)

// i2c configures i2c0 / i2c1 on their default pins once.
func i2c(name string) (drivers.I2C, bool) {
	if b, ok := i2cBus[name]; ok {
		return b, true
	}
	var hw *machine.I2C
	cfg := machine.I2CConfig{Frequency: i2cHz}
	switch name {
	case "i2c0":
		hw = machine.I2C0
		cfg.SDA, cfg.SCL = machine.I2C0_SDA_PIN, machine.I2C0_SCL_PIN
	case "i2c1":
		hw = machine.I2C1
		cfg.SDA, cfg.SCL = machine.I2C1_SDA_PIN, machine.I2C1_SCL_PIN
	default:
		return nil, false
	}
	if err := hw.Configure(cfg); err != nil {
		return nil, false
	}
	i2cBus[name] = hw
	return hw, true
}

// spi configures spi0 / spi1 in mode 3 on their default pins once.
func spi(name string) (*machine.SPI, bool) {
	if b, ok := spiBus[name]; ok {
		return b, true
	}
	var hw *machine.SPI
	cfg := machine.SPIConfig{Frequency: spiHz, Mode: 3}
	switch name {
	case "spi0":
		hw = machine.SPI0
		cfg.SCK, cfg.SDO, cfg.SDI = machine.SPI0_SCK_PIN, machine.SPI0_SDO_PIN, machine.SPI0_SDI_PIN
	case "spi1":
		hw = machine.SPI1
		cfg.SCK, cfg.SDO, cfg.SDI = machine.SPI1_SCK_PIN, machine.SPI1_SDO_PIN, machine.SPI1_SDI_PIN
	default:
		return nil, false
	}
	if err := hw.Configure(cfg); err != nil {
		return nil, false
	}
	spiBus[name] = hw
	return hw, true
}

func chipSelect(n int) func(bool) {
	p := machine.Pin(n)
	if !csReady[p] {
		p.Configure(machine.PinConfig{Mode: machine.PinOutput})
		p.High()
		csReady[p] = true
	}
	return p.Set
}

func openIMU(cfg types.IMUConfig, drv lsm6ds3trc.Config) (imu.Device, error) {
	mu.Lock()
	defer mu.Unlock()

	if b, ok := i2c(cfg.Bus); ok {
		return lsm6ds3trc.NewI2C(b, drv), nil
	}
	if b, ok := spi(cfg.Bus); ok {
		// Constrain to RP2's user GPIOs (GP0..GP28).
		if !mathx.Between(cfg.CSPin, 0, 28) {
			return nil, unknownBus(cfg.Bus + " cs pin")
		}
		return lsm6ds3trc.NewSPI(b, chipSelect(cfg.CSPin), drv), nil
	}
	return nil, unknownBus(cfg.Bus)
}
