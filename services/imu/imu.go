// Package imu runs an LSM6DS3TR-C on the bus.
//
// The service waits for "config/imu", builds the device through a Factory,
// initialises it and then owns it: every register access happens on the
// service goroutine. Readings go out on imu/value/<kind>, lifecycle on the
// retained imu/state, and imu/control/<verb> requests are answered with
// bus replies.
package imu

import (
	"context"
	"io"
	"time"

	"tinycore-go/bus"
	"tinycore-go/drivers/lsm6ds3trc"
	"tinycore-go/errcode"
	"tinycore-go/internal/util"
	"tinycore-go/types"
	"tinycore-go/x/timex"
)

// Device is the driver surface the service needs. *lsm6ds3trc.Device
// satisfies it.
type Device interface {
	Init(sensorID int32) error
	Initialised() bool
	SensorIDs() lsm6ds3trc.SensorIDs
	ChipID() (uint8, error)

	EnablePedometer(enable bool) error
	EnableI2CMasterPullups(enable bool) error
	ResetPedometer() error
	ReadPedometer() (uint16, error)

	ReadAcceleration() (x, y, z int32, err error)
	ReadRotation() (x, y, z int32, err error)
	ReadTemperature() (int32, error)
}

// Factory opens the bus named in cfg and returns an uninitialised device.
// Devices that also implement io.Closer are closed when the service drops
// them.
type Factory func(cfg types.IMUConfig, drv lsm6ds3trc.Config) (Device, error)

// Logger is satisfied by logrus.FieldLogger and by the println default.
type Logger interface {
	Debugf(format string, args ...any)
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
}

const (
	defaultPeriod = 100 * time.Millisecond
	minPeriod     = 10 * time.Millisecond
	maxPeriod     = time.Minute
)

var (
	topicConfigIMU = bus.T("config", "imu")
	topicState     = bus.T("imu", "state")
	topicInfo      = bus.T("imu", "info")
	topicValue     = bus.T("imu", "value")
	topicCtrl      = bus.T("imu", "control", "+")
)

// Control verbs (last token of imu/control/<verb>).
const (
	CtrlPedometer  = "pedometer"
	CtrlPullups    = "pullups"
	CtrlReadNow    = "read_now"
	CtrlResetSteps = "reset_steps"
)

type Service struct {
	factory Factory
	log     Logger

	conn   *bus.Connection
	cfg    types.IMUConfig
	dev    Device
	period time.Duration
	timer  *time.Timer

	pedometer bool
	degraded  bool
}

// New returns a service that builds its device with factory. A nil log
// prints to the console.
func New(factory Factory, log Logger) *Service {
	if log == nil {
		log = printLogger{}
	}
	return &Service{factory: factory, log: log, period: defaultPeriod}
}

// Start runs the service on its own goroutine.
func (s *Service) Start(ctx context.Context, conn *bus.Connection) error {
	go s.Run(ctx, conn)
	return nil
}

// Run blocks until ctx is cancelled.
func (s *Service) Run(ctx context.Context, conn *bus.Connection) {
	s.conn = conn
	cfgSub := conn.Subscribe(topicConfigIMU)
	ctrlSub := conn.Subscribe(topicCtrl)
	defer conn.Unsubscribe(cfgSub)
	defer conn.Unsubscribe(ctrlSub)

	s.timer = util.StoppedTimer()
	defer s.timer.Stop()

	s.publishState(types.LevelIdle, "awaiting_config", nil)

	for {
		select {
		case <-ctx.Done():
			s.release()
			s.publishState(types.LevelStopped, "context_cancelled", nil)
			s.log.Infof("imu service stopping")
			return

		case msg := <-cfgSub.Channel():
			s.applyConfig(msg.Payload)

		case msg := <-ctrlSub.Channel():
			s.handleControl(msg)

		case <-s.timer.C:
			if s.dev != nil {
				s.poll()
				util.ResetTimer(s.timer, s.period)
			}
		}
	}
}

// ---------------- Configuration ----------------

func decodeConfig(p any) (types.IMUConfig, error) {
	switch v := p.(type) {
	case types.IMUConfig:
		return v, nil
	case *types.IMUConfig:
		if v != nil {
			return *v, nil
		}
		return types.IMUConfig{}, errcode.InvalidPayload
	}
	var cfg types.IMUConfig
	if err := util.DecodeJSON(p, &cfg); err != nil {
		return cfg, &errcode.E{C: errcode.InvalidPayload, Op: "config", Msg: err.Error(), Err: err}
	}
	return cfg, nil
}

// DriverConfig maps the bus-facing config onto the driver's. Bad ranges or
// rates return an errcode.InvalidParams error.
func DriverConfig(cfg types.IMUConfig) (lsm6ds3trc.Config, error) {
	ar, ok := lsm6ds3trc.ParseAccelRange(cfg.AccelRange)
	if !ok {
		return lsm6ds3trc.Config{}, &errcode.E{C: errcode.InvalidParams, Op: "config", Msg: "accel_range " + cfg.AccelRange}
	}
	gr, ok := lsm6ds3trc.ParseGyroRange(cfg.GyroRange)
	if !ok {
		return lsm6ds3trc.Config{}, &errcode.E{C: errcode.InvalidParams, Op: "config", Msg: "gyro_range " + cfg.GyroRange}
	}
	rate := lsm6ds3trc.RateDefault
	switch {
	case cfg.RateHz < 0:
		return lsm6ds3trc.Config{}, &errcode.E{C: errcode.InvalidParams, Op: "config", Msg: "negative rate_hz"}
	case cfg.RateHz > 0:
		if rate, ok = lsm6ds3trc.ParseDataRate(cfg.RateHz); !ok {
			return lsm6ds3trc.Config{}, &errcode.E{C: errcode.InvalidParams, Op: "config", Msg: "rate_hz out of range"}
		}
	}
	return lsm6ds3trc.Config{
		Address:    cfg.Addr,
		AccelRange: ar,
		AccelRate:  rate,
		GyroRange:  gr,
		GyroRate:   rate,
	}, nil
}

// pollPeriod prefers period_ms, then poll_hz, and clamps to 10 ms .. 1 min.
func pollPeriod(cfg types.IMUConfig) time.Duration {
	d := defaultPeriod
	switch {
	case cfg.PeriodMs > 0:
		d = time.Duration(cfg.PeriodMs) * time.Millisecond
	case cfg.PollHz > 0:
		d = timex.PeriodFromHz(cfg.PollHz)
	}
	return util.ClampDuration(d, minPeriod, maxPeriod)
}

// sameHardware reports whether a and b address the same sensor the same way.
func sameHardware(a, b types.IMUConfig) bool {
	return a.Bus == b.Bus && a.Addr == b.Addr && a.CSPin == b.CSPin &&
		a.SensorID == b.SensorID && a.AccelRange == b.AccelRange &&
		a.GyroRange == b.GyroRange && a.RateHz == b.RateHz
}

func (s *Service) applyConfig(payload any) {
	cfg, err := decodeConfig(payload)
	if err != nil {
		s.fail("config_invalid", err)
		return
	}

	if s.dev == nil || !sameHardware(s.cfg, cfg) {
		if err := s.open(cfg); err != nil {
			return
		}
	}

	s.cfg = cfg
	s.period = pollPeriod(cfg)

	if err := s.dev.EnablePedometer(cfg.Pedometer); err != nil {
		s.fail("pedometer_failed", err)
		return
	}
	s.pedometer = cfg.Pedometer
	if err := s.dev.EnableI2CMasterPullups(cfg.Pullups); err != nil {
		s.fail("pullups_failed", err)
		return
	}

	s.degraded = false
	s.publishState(types.LevelReady, "configured", nil)
	s.log.Infof("imu ready on %s, period %v, pedometer %t, pullups %t", cfg.Bus, s.period, cfg.Pedometer, cfg.Pullups)
	util.ResetTimer(s.timer, s.period)
}

// open builds and initialises a device for cfg. The previous device, if any,
// is released first so a failed open leaves the service unconfigured and
// the bus free for the next attempt.
func (s *Service) open(cfg types.IMUConfig) error {
	s.release()
	s.timer.Stop()

	drv, err := DriverConfig(cfg)
	if err != nil {
		s.fail("config_invalid", err)
		return err
	}
	dev, err := s.factory(cfg, drv)
	if err != nil {
		s.fail("open_failed", err)
		return err
	}
	if err := dev.Init(cfg.SensorID); err != nil {
		s.closeDevice(dev)
		s.fail("init_failed", err)
		return err
	}
	s.dev = dev

	var chip uint8
	if id, err := dev.ChipID(); err == nil {
		chip = id
	}
	s.conn.Publish(s.conn.NewMessage(topicInfo, types.Info{
		SchemaVersion: 1,
		Driver:        "lsm6ds3trc",
		Detail: types.IMUInfo{
			Bus:      cfg.Bus,
			Addr:     drv.Address,
			ChipID:   chip,
			SensorID: dev.SensorIDs().Accel,
		},
	}, true))
	return nil
}

// release drops the current device.
func (s *Service) release() {
	if s.dev != nil {
		s.closeDevice(s.dev)
		s.dev = nil
	}
}

func (s *Service) closeDevice(dev Device) {
	if c, ok := dev.(io.Closer); ok {
		if err := c.Close(); err != nil {
			s.log.Warnf("imu: close: %v", err)
		}
	}
}

// ---------------- Polling ----------------

type reading struct {
	accel types.VectorValue
	gyro  types.VectorValue
	temp  types.TemperatureValue
	steps types.StepsValue
}

func (s *Service) read() (reading, error) {
	var r reading
	ids := s.dev.SensorIDs()
	ts := timex.NowMs()

	x, y, z, err := s.dev.ReadAcceleration()
	if err != nil {
		return r, wrap("read accel", err)
	}
	r.accel = types.VectorValue{SensorID: ids.Accel, X: x, Y: y, Z: z, TS: ts}

	if x, y, z, err = s.dev.ReadRotation(); err != nil {
		return r, wrap("read gyro", err)
	}
	r.gyro = types.VectorValue{SensorID: ids.Gyro, X: x, Y: y, Z: z, TS: ts}

	mc, err := s.dev.ReadTemperature()
	if err != nil {
		return r, wrap("read temp", err)
	}
	r.temp = types.TemperatureValue{SensorID: ids.Temp, MilliC: mc, TS: ts}

	if s.pedometer {
		n, err := s.dev.ReadPedometer()
		if err != nil {
			return r, wrap("read steps", err)
		}
		r.steps = types.StepsValue{Steps: n, TS: ts}
	}
	return r, nil
}

func (s *Service) publish(r reading) {
	s.pubValue(types.KindAccel, r.accel)
	s.pubValue(types.KindGyro, r.gyro)
	s.pubValue(types.KindTemperature, r.temp)
	if s.pedometer {
		s.pubValue(types.KindSteps, r.steps)
	}
}

func (s *Service) poll() {
	if s.dev == nil {
		return
	}
	r, err := s.read()
	if err != nil {
		if !s.degraded {
			s.log.Warnf("imu: %v", err)
		}
		s.degraded = true
		s.publishState(types.LevelReady, "degraded", err)
		return
	}
	if s.degraded {
		s.degraded = false
		s.publishState(types.LevelReady, "recovered", nil)
	}
	s.publish(r)
}

// ---------------- Publishing helpers ----------------

func (s *Service) pubValue(kind types.Kind, v any) {
	s.conn.Publish(s.conn.NewMessage(topicValue.Append(string(kind)), v, true))
}

func (s *Service) publishState(level, status string, err error) {
	st := types.State{Level: level, Status: status, TS: timex.NowMs()}
	if err != nil {
		st.Error = string(codeOf(err))
	}
	s.conn.Publish(s.conn.NewMessage(topicState, st, true))
}

// fail records a configuration failure on imu/state.
func (s *Service) fail(status string, err error) {
	s.log.Warnf("imu: %s: %v", status, err)
	s.publishState(types.LevelError, status, err)
}
