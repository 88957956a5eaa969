package lsm6ds3trc

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/l0nax/go-spew/spew"
	"tinygo.org/x/drivers"

	"tinycore-go/drivers/regio"
)

var pprint = spew.ConfigState{Indent: "\t", SortKeys: true}

// Compile-time checks.
var (
	_ drivers.I2C = (*fakeChip)(nil)
	_ drivers.SPI = (*fakeSPI)(nil)
	_ regio.Bus   = (*fakeChip)(nil)
	_ Core        = (*fakeCore)(nil)
)

type regWrite struct {
	reg uint8
	val uint8
}

// fakeChip models the LSM6DS3TR-C register file: WHO_AM_I, self-clearing
// SW_RESET/BOOT, a step counter that PEDO_RST_STEP clears, and auto-increment.
type fakeChip struct {
	regs   [128]byte
	writes []regWrite
	reads  int
	events *[]string

	stuckReset bool
	failReg    int // register whose writes fail; -1 for none
}

func newFakeChip() *fakeChip {
	f := &fakeChip{failReg: -1}
	f.regs[regWhoAmI] = ChipID
	f.regs[regCtrl3C] = 1 << ctrl3IfInc
	return f
}

var errFakeBus = errors.New("fake: nack")

func (f *fakeChip) log(s string) {
	if f.events != nil {
		*f.events = append(*f.events, s)
	}
}

func (f *fakeChip) ReadRegister(reg uint8, buf []byte) error {
	f.reads++
	if reg == regWhoAmI {
		f.log("who_am_i")
	}
	for i := range buf {
		buf[i] = f.regs[(int(reg)+i)&0x7F]
	}
	return nil
}

func (f *fakeChip) WriteRegister(reg uint8, buf []byte) error {
	if int(reg) == f.failReg {
		return errFakeBus
	}
	for i, v := range buf {
		r := uint8((int(reg) + i) & 0x7F)
		f.writes = append(f.writes, regWrite{r, v})
		f.store(r, v)
	}
	return nil
}

func (f *fakeChip) store(reg, v uint8) {
	switch reg {
	case regCtrl3C:
		if v&(1<<ctrl3SWReset) != 0 {
			f.log("sw_reset")
			if !f.stuckReset {
				// Control registers return to their defaults.
				for r := regCtrl1XL; r <= regMasterConfig; r++ {
					f.regs[r] = 0
				}
				f.regs[regCtrl3C] = 1 << ctrl3IfInc
				return
			}
		}
		if v&(1<<ctrl3Boot) != 0 {
			f.log("boot")
			if !f.stuckReset {
				v &^= 1 << ctrl3Boot
			}
		}
		if v&(1<<ctrl3BDU) != 0 {
			f.log("bdu")
		}
	case regCtrl10C:
		if v&(1<<ctrl10PedoRstStep) != 0 {
			f.log("pedo_rst")
			f.regs[regStepCounterL] = 0
			f.regs[regStepCounterL+1] = 0
		}
	}
	f.regs[reg] = v
}

// Tx lets the same register file sit behind drivers.I2C.
func (f *fakeChip) Tx(addr uint16, w, r []byte) error {
	if addr != Address {
		return errFakeBus
	}
	if len(w) == 0 {
		return errFakeBus
	}
	if len(r) > 0 {
		return f.ReadRegister(w[0], r)
	}
	return f.WriteRegister(w[0], w[1:])
}

func (f *fakeChip) writesTo(reg uint8) []uint8 {
	var out []uint8
	for _, w := range f.writes {
		if w.reg == reg {
			out = append(out, w.val)
		}
	}
	return out
}

// fakeSPI frames fakeChip with ST SPI addressing.
type fakeSPI struct {
	chip     *fakeChip
	selected bool
}

func (s *fakeSPI) Tx(w, r []byte) error {
	if !s.selected {
		return errors.New("fake: chip not selected")
	}
	reg := w[0] & 0x7F
	if w[0]&0x80 != 0 {
		return s.chip.ReadRegister(reg, r[1:])
	}
	return s.chip.WriteRegister(reg, w[1:])
}

func (s *fakeSPI) Transfer(b byte) (byte, error) { return 0, nil }

type fakeCore struct {
	configured []Config
	events     *[]string
	err        error
}

func (c *fakeCore) Configure(cfg Config) error {
	if c.events != nil {
		*c.events = append(*c.events, "core_configure")
	}
	if c.err != nil {
		return c.err
	}
	c.configured = append(c.configured, cfg)
	return nil
}
func (c *fakeCore) ReadAcceleration() (x, y, z int32, err error) { return 1, -2, 1_000_000, nil }
func (c *fakeCore) ReadRotation() (x, y, z int32, err error)     { return 10, 20, 30, nil }
func (c *fakeCore) ReadTemperature() (int32, error)              { return 24_500, nil }

func newTestDevice() (*Device, *fakeChip, *fakeCore, *[]string) {
	events := &[]string{}
	chip := newFakeChip()
	chip.events = events
	core := &fakeCore{events: events}
	return New(chip, core, Config{}), chip, core, events
}

func mustInit(t *testing.T, d *Device) {
	t.Helper()
	if err := d.Init(0); err != nil {
		t.Fatalf("Init: %v", err)
	}
}

// ---------------- Sensor ids ----------------

func TestDeriveSensorIDs(t *testing.T) {
	for _, base := range []int32{0, 1, -1, 42, -1000, math.MaxInt32 - 2, math.MinInt32} {
		ids := DeriveSensorIDs(base)
		if ids.Accel != base || ids.Gyro != base+1 || ids.Temp != base+2 {
			t.Fatalf("base %d: got %+v", base, ids)
		}
	}
}

func TestInitAssignsContiguousIDs(t *testing.T) {
	for _, base := range []int32{0, 7, -3, 1 << 20} {
		d, _, _, _ := newTestDevice()
		if got := d.SensorIDs(); got != (SensorIDs{}) {
			t.Fatalf("ids before init: %+v", got)
		}
		if err := d.Init(base); err != nil {
			t.Fatalf("Init(%d): %v", base, err)
		}
		want := SensorIDs{Accel: base, Gyro: base + 1, Temp: base + 2}
		if got := d.SensorIDs(); got != want {
			t.Fatalf("Init(%d): ids %+v, want %+v", base, got, want)
		}
	}
}

// ---------------- Init ----------------

func TestInitWrongChip(t *testing.T) {
	d, chip, core, events := newTestDevice()
	chip.regs[regWhoAmI] = 0x69 // LSM6DS3, not -TR-C

	err := d.Init(5)
	if !errors.Is(err, ErrWrongChip) {
		t.Fatalf("expected ErrWrongChip, got %v", err)
	}
	if len(chip.writes) != 0 {
		t.Fatalf("no register may be written after a failed id check:\n%s", pprint.Sdump(chip.writes))
	}
	if len(core.configured) != 0 {
		t.Fatal("base driver must not run on the wrong chip")
	}
	if d.Initialised() || d.SensorIDs() != (SensorIDs{}) {
		t.Fatalf("failed init left state behind: ready=%t ids=%+v", d.Initialised(), d.SensorIDs())
	}
	if len(*events) != 1 || (*events)[0] != "who_am_i" {
		t.Fatalf("unexpected activity: %v", *events)
	}
}

func TestInitSequenceAndBDU(t *testing.T) {
	d, chip, core, events := newTestDevice()
	mustInit(t, d)

	want := []string{"who_am_i", "sw_reset", "boot", "core_configure", "bdu"}
	if len(*events) != len(want) {
		t.Fatalf("events %v, want %v", *events, want)
	}
	for i := range want {
		if (*events)[i] != want[i] {
			t.Fatalf("events %v, want %v", *events, want)
		}
	}

	var bduWrites int
	for _, v := range chip.writesTo(regCtrl3C) {
		if v&(1<<ctrl3BDU) != 0 {
			bduWrites++
		}
	}
	if bduWrites != 1 {
		t.Fatalf("BDU written %d times, want 1", bduWrites)
	}
	if chip.regs[regCtrl3C]&(1<<ctrl3IfInc) == 0 {
		t.Fatal("BDU write clobbered IF_INC")
	}
	if on, err := d.BlockDataUpdate(); err != nil || !on {
		t.Fatalf("BlockDataUpdate = %t, %v", on, err)
	}
	if len(core.configured) != 1 {
		t.Fatalf("core configured %d times", len(core.configured))
	}
	if got := core.configured[0]; got.Address != Address || got.ResetTimeout != 50*time.Millisecond {
		t.Fatalf("defaults not applied: %+v", got)
	}
}

func TestInitTwice(t *testing.T) {
	d, chip, _, _ := newTestDevice()
	mustInit(t, d)
	before := len(chip.writes) + chip.reads

	if err := d.Init(100); !errors.Is(err, ErrInitialised) {
		t.Fatalf("expected ErrInitialised, got %v", err)
	}
	if len(chip.writes)+chip.reads != before {
		t.Fatal("second Init touched the bus")
	}
	if d.SensorIDs().Accel != 0 {
		t.Fatal("sensor ids changed after init")
	}
}

func TestInitErrorsSurface(t *testing.T) {
	t.Run("BusFault", func(t *testing.T) {
		d, chip, _, _ := newTestDevice()
		chip.failReg = regCtrl3C
		if err := d.Init(1); !errors.Is(err, errFakeBus) {
			t.Fatalf("expected bus error, got %v", err)
		}
		if d.Initialised() || d.SensorIDs() != (SensorIDs{}) {
			t.Fatal("partial init left state behind")
		}
	})
	t.Run("CoreFault", func(t *testing.T) {
		d, chip, core, _ := newTestDevice()
		core.err = errors.New("core: bad range")
		if err := d.Init(1); !errors.Is(err, core.err) {
			t.Fatalf("expected core error, got %v", err)
		}
		for _, v := range chip.writesTo(regCtrl3C) {
			if v&(1<<ctrl3BDU) != 0 {
				t.Fatal("BDU written after base driver failed")
			}
		}
	})
	t.Run("ResetTimeout", func(t *testing.T) {
		chip := newFakeChip()
		chip.stuckReset = true
		d := New(chip, &fakeCore{}, Config{ResetTimeout: 3 * time.Millisecond, ResetPoll: time.Millisecond})
		if err := d.Init(1); !errors.Is(err, ErrResetTimeout) {
			t.Fatalf("expected ErrResetTimeout, got %v", err)
		}
	})
}

// ---------------- Pedometer ----------------

func TestEnablePedometer(t *testing.T) {
	const other = 1 << 5 // TIMER_EN, must survive
	for _, enable := range []bool{true, false} {
		d, chip, _, events := newTestDevice()
		mustInit(t, d)
		chip.regs[regCtrl10C] = other
		if !enable {
			chip.regs[regCtrl10C] |= 1<<ctrl10PedoEn | 1<<ctrl10FuncEn
		}
		chip.regs[regStepCounterL] = 0x34
		chip.regs[regStepCounterL+1] = 0x12
		*events = nil

		if err := d.EnablePedometer(enable); err != nil {
			t.Fatalf("EnablePedometer(%t): %v", enable, err)
		}
		v := chip.regs[regCtrl10C]
		pedo := v&(1<<ctrl10PedoEn) != 0
		fn := v&(1<<ctrl10FuncEn) != 0
		if pedo != enable || fn != enable {
			t.Fatalf("enable=%t: PEDO_EN=%t FUNC_EN=%t (0b%08b)", enable, pedo, fn, v)
		}
		if v&other == 0 {
			t.Fatalf("enable=%t: unrelated CTRL10_C bit cleared", enable)
		}
		if len(*events) == 0 || (*events)[len(*events)-1] != "pedo_rst" {
			t.Fatalf("enable=%t: step counter not reset last: %v", enable, *events)
		}
		steps, err := d.ReadPedometer()
		if err != nil || steps != 0 {
			t.Fatalf("enable=%t: steps=%d err=%v", enable, steps, err)
		}
	}
}

func TestReadPedometer(t *testing.T) {
	d, chip, _, _ := newTestDevice()
	mustInit(t, d)
	chip.regs[regStepCounterL] = 0x39
	chip.regs[regStepCounterL+1] = 0x05
	steps, err := d.ReadPedometer()
	if err != nil {
		t.Fatal(err)
	}
	if steps != 0x0539 {
		t.Fatalf("steps = %d, want %d", steps, 0x0539)
	}
}

// ---------------- I2C master pull-ups ----------------

func TestEnableI2CMasterPullups(t *testing.T) {
	for _, c := range []struct {
		enable      bool
		start, want uint8
	}{
		{true, 0b1011_0101, 0b1011_1101},
		{false, 0b1011_1101, 0b1011_0101},
		{true, 0b0000_0000, 0b0000_1000},
		{false, 0b1111_1111, 0b1111_0111},
	} {
		d, chip, _, _ := newTestDevice()
		mustInit(t, d)
		chip.regs[regMasterConfig] = c.start
		chip.writes = nil

		if err := d.EnableI2CMasterPullups(c.enable); err != nil {
			t.Fatal(err)
		}
		if got := chip.regs[regMasterConfig]; got != c.want {
			t.Fatalf("enable=%t from 0b%08b: got 0b%08b, want 0b%08b", c.enable, c.start, got, c.want)
		}
		if len(chip.writes) != 1 || chip.writes[0].reg != regMasterConfig {
			t.Fatalf("expected a single MASTER_CONFIG write:\n%s", pprint.Sdump(chip.writes))
		}
	}
}

// ---------------- Precondition ----------------

func TestOperationsBeforeInit(t *testing.T) {
	d, chip, _, _ := newTestDevice()
	ops := map[string]func() error{
		"EnablePedometer":        func() error { return d.EnablePedometer(true) },
		"EnableI2CMasterPullups": func() error { return d.EnableI2CMasterPullups(true) },
		"ResetPedometer":         d.ResetPedometer,
		"ReadPedometer":          func() error { _, err := d.ReadPedometer(); return err },
		"BlockDataUpdate":        func() error { _, err := d.BlockDataUpdate(); return err },
		"ReadAcceleration":       func() error { _, _, _, err := d.ReadAcceleration(); return err },
		"ReadRotation":           func() error { _, _, _, err := d.ReadRotation(); return err },
		"ReadTemperature":        func() error { _, err := d.ReadTemperature(); return err },
	}
	for name, op := range ops {
		if err := op(); !errors.Is(err, ErrNotInitialised) {
			t.Errorf("%s: expected ErrNotInitialised, got %v", name, err)
		}
	}
	if len(chip.writes) != 0 || chip.reads != 0 {
		t.Fatalf("bus touched before init: writes=%d reads=%d", len(chip.writes), chip.reads)
	}
}

// ---------------- Readout ----------------

func TestReadoutDelegatesToCore(t *testing.T) {
	d, _, _, _ := newTestDevice()
	mustInit(t, d)
	x, y, z, err := d.ReadAcceleration()
	if err != nil || x != 1 || y != -2 || z != 1_000_000 {
		t.Fatalf("accel: %d %d %d %v", x, y, z, err)
	}
	x, y, z, err = d.ReadRotation()
	if err != nil || x != 10 || y != 20 || z != 30 {
		t.Fatalf("gyro: %d %d %d %v", x, y, z, err)
	}
	if mc, err := d.ReadTemperature(); err != nil || mc != 24_500 {
		t.Fatalf("temp: %d %v", mc, err)
	}
}

func TestNewI2CWithTinyGoCore(t *testing.T) {
	chip := newFakeChip()
	d := NewI2C(chip, Config{})
	if err := d.Init(10); err != nil {
		t.Fatalf("Init: %v\n%s", err, pprint.Sdump(chip.writes))
	}
	if chip.regs[regCtrl3C]&(1<<ctrl3BDU) == 0 {
		t.Fatal("BDU not set")
	}
	if id, err := d.ChipID(); err != nil || id != ChipID {
		t.Fatalf("ChipID = 0x%02X, %v", id, err)
	}
}

func TestNewI2CZeroCodes(t *testing.T) {
	chip := newFakeChip()
	d := NewI2C(chip, Config{GyroRange: Gyro250DPS, AccelRate: RateOff, GyroRate: RateOff})
	if err := d.Init(0); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if got := chip.regs[regCtrl2G]; got != 0x00 {
		t.Fatalf("CTRL2_G = 0x%02X, want 0x00\n%s", got, pprint.Sdump(chip.writesTo(regCtrl2G)))
	}
	if got := chip.regs[regCtrl1XL]; got != 0x08 {
		t.Fatalf("CTRL1_XL = 0x%02X, want 0x08", got)
	}

	copy(chip.regs[regOutXLG:], []byte{0x01, 0x00, 0xFF, 0xFF, 0x00, 0x00})
	x, y, z, err := d.ReadRotation()
	if err != nil {
		t.Fatal(err)
	}
	if x != 8750 || y != -8750 || z != 0 {
		t.Fatalf("gyro µdps: %d %d %d", x, y, z)
	}
}

func TestNewI2CScalesLikeSPI(t *testing.T) {
	cfg := Config{AccelRange: Accel8G, GyroRange: Gyro500DPS, AccelRate: Rate52Hz, GyroRate: Rate416Hz}

	i2cChip := newFakeChip()
	di := NewI2C(i2cChip, cfg)
	spiChip := newFakeChip()
	spi := &fakeSPI{chip: spiChip}
	ds := NewSPI(spi, func(level bool) { spi.selected = !level }, cfg)
	for _, d := range []*Device{di, ds} {
		if err := d.Init(0); err != nil {
			t.Fatalf("Init: %v", err)
		}
	}
	for _, reg := range []uint8{regCtrl1XL, regCtrl2G} {
		if i2cChip.regs[reg] != spiChip.regs[reg] {
			t.Fatalf("reg 0x%02X: i2c 0x%02X, spi 0x%02X", reg, i2cChip.regs[reg], spiChip.regs[reg])
		}
	}

	sample := []byte{0x10, 0x00, 0xF0, 0xFF, 0x00, 0x01}
	copy(i2cChip.regs[regOutXLG:], sample)
	copy(spiChip.regs[regOutXLG:], sample)
	xi, yi, zi, _ := di.ReadRotation()
	xs, ys, zs, _ := ds.ReadRotation()
	if xi != xs || yi != ys || zi != zs {
		t.Fatalf("gyro i2c %d %d %d, spi %d %d %d", xi, yi, zi, xs, ys, zs)
	}
}

func TestNewSPIWithRegisterCore(t *testing.T) {
	chip := newFakeChip()
	spi := &fakeSPI{chip: chip}
	d := NewSPI(spi, func(level bool) { spi.selected = !level }, Config{
		AccelRange: Accel4G,
		GyroRange:  Gyro2000DPS,
		AccelRate:  Rate208Hz,
	})
	if err := d.Init(0); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if got := chip.regs[regCtrl1XL]; got != 0x50|0x08 {
		t.Fatalf("CTRL1_XL = 0x%02X", got)
	}
	if got := chip.regs[regCtrl2G]; got != 0x40|0x0C {
		t.Fatalf("CTRL2_G = 0x%02X", got)
	}

	// +0.5 g on X, -0.5 g on Y, 0 on Z at ±4 g.
	copy(chip.regs[regOutXLXL:], []byte{0x00, 0x10, 0x00, 0xF0, 0x00, 0x00})
	x, y, z, err := d.ReadAcceleration()
	if err != nil {
		t.Fatal(err)
	}
	if x != 4096*122 || y != -4096*122 || z != 0 {
		t.Fatalf("accel µg: %d %d %d", x, y, z)
	}

	// Full-scale gyro saturates instead of wrapping.
	copy(chip.regs[regOutXLG:], []byte{0xFF, 0x7F, 0x00, 0x80, 0x01, 0x00})
	x, y, z, err = d.ReadRotation()
	if err != nil {
		t.Fatal(err)
	}
	if x != math.MaxInt32 || y != math.MinInt32 || z != 70000 {
		t.Fatalf("gyro µdps: %d %d %d", x, y, z)
	}

	copy(chip.regs[regOutTempL:], []byte{0x00, 0x01})
	if mc, err := d.ReadTemperature(); err != nil || mc != 26000 {
		t.Fatalf("temp m°C = %d, %v", mc, err)
	}
	if spi.selected {
		t.Fatal("chip select left asserted")
	}
}

func TestParsers(t *testing.T) {
	if r, ok := ParseAccelRange("16g"); !ok || r != Accel16G {
		t.Fatal("16g")
	}
	if _, ok := ParseAccelRange("3g"); ok {
		t.Fatal("3g must be rejected")
	}
	if r, ok := ParseGyroRange("500dps"); !ok || r != Gyro500DPS {
		t.Fatal("500dps")
	}
	for _, c := range []struct {
		hz   float64
		want DataRate
		ok   bool
	}{
		{0, RateOff, true},
		{12.5, Rate12_5Hz, true},
		{100, Rate104Hz, true},
		{104, Rate104Hz, true},
		{105, Rate208Hz, true},
		{6660, Rate6660Hz, true},
		{7000, RateDefault, false},
	} {
		got, ok := ParseDataRate(c.hz)
		if got != c.want || ok != c.ok {
			t.Errorf("ParseDataRate(%v) = %d,%t want %d,%t", c.hz, got, ok, c.want, c.ok)
		}
	}
}
