// Package app wires imuctl commands to a bus. Locally the imu service drives
// a sensor on a host bus; remotely a bridge links the host bus to a board
// running the same service, and commands travel as bus requests.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"tinycore-go/bus"
	"tinycore-go/errcode"
	"tinycore-go/internal/config"
	"tinycore-go/internal/util"
	"tinycore-go/services/bridge"
	"tinycore-go/services/imu"
	"tinycore-go/types"
	"tinycore-go/x/mathx"
)

const (
	queueLen = 64
	settle   = 200 * time.Millisecond
)

var (
	topicConfigIMU    = bus.T("config", "imu")
	topicConfigBridge = bus.T("config", "bridge")
	topicBridgeState  = bus.T("bridge", "state")
	topicIMUState     = bus.T("imu", "state")
	topicIMUInfo      = bus.T("imu", "info")
	topicIMUValues    = bus.T("imu", "value", "+")
)

// RemoteForward is what the host sends to the board.
var RemoteForward = []string{"imu/control/#", "config/imu"}

type App struct {
	opt     config.ImuctlOpt
	factory imu.Factory
	log     *log.Entry

	bus  *bus.Bus
	conn *bus.Connection
}

func New(opt config.ImuctlOpt, factory imu.Factory) *App {
	b := bus.NewBus(queueLen)
	return &App{
		opt:     opt,
		factory: factory,
		log:     log.WithField("component", "imuctl"),
		bus:     b,
		conn:    b.NewConnection("imuctl"),
	}
}

// Bus exposes the host bus, mainly for tests.
func (a *App) Bus() *bus.Bus { return a.bus }

func (a *App) timeout() time.Duration {
	if a.opt.TimeoutMs <= 0 {
		return time.Duration(config.DefaultTimeoutMs) * time.Millisecond
	}
	return time.Duration(a.opt.TimeoutMs) * time.Millisecond
}

// Start runs the local imu service or, in remote mode, the bridge, and
// returns once commands can be issued.
func (a *App) Start(ctx context.Context) error {
	if !a.opt.Remote.Enabled {
		a.log.Debugf("local mode on %s", a.opt.IMU.Bus)
		return imu.New(a.factory, a.log).Start(ctx, a.bus.NewConnection("imu"))
	}

	a.log.Debugf("remote mode on %s @ %d", a.opt.Remote.Port, a.opt.Remote.Baud)
	go bridge.Start(ctx, a.bus.NewConnection("bridge"))
	a.conn.Publish(a.conn.NewMessage(topicConfigBridge, a.bridgeConfig(), true))
	if err := a.waitLink(ctx); err != nil {
		return err
	}
	// Let the board's retained state arrive before anything is compared with it.
	return sleep(ctx, settle)
}

func (a *App) bridgeConfig() bridge.Config {
	return bridge.Config{
		Transport: bridge.TransportConfig{
			Type: "serial",
			Serial: &bridge.SerialConfig{
				Name:          a.opt.Remote.Port,
				Baud:          a.opt.Remote.Baud,
				ReadTimeoutMs: a.opt.Remote.ReadTimeoutMs,
			},
		},
		Forward: RemoteForward,
	}
}

type linkState struct {
	Level  string `json:"level"`
	Status string `json:"status"`
	Error  string `json:"error"`
}

func (a *App) waitLink(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, a.timeout())
	defer cancel()
	sub := a.conn.Subscribe(topicBridgeState)
	defer a.conn.Unsubscribe(sub)

	var last linkState
	for {
		select {
		case <-ctx.Done():
			if last.Error != "" {
				return fmt.Errorf("bridge %s: %s", last.Status, last.Error)
			}
			return fmt.Errorf("bridge not up: %w", ctx.Err())
		case m := <-sub.Channel():
			if err := util.DecodeJSON(m.Payload, &last); err != nil {
				continue
			}
			a.log.Debugf("bridge %s/%s", last.Level, last.Status)
			switch last.Level {
			case "up":
				return nil
			case "error":
				return fmt.Errorf("bridge %s: %s", last.Status, last.Error)
			}
		}
	}
}

// Configure publishes the IMU config and waits for the service to settle on
// it. Any state already retained is skipped.
func (a *App) Configure(ctx context.Context) (types.State, error) {
	ctx, cancel := context.WithTimeout(ctx, a.timeout())
	defer cancel()

	sub := a.conn.Subscribe(topicIMUState)
	defer a.conn.Unsubscribe(sub)
	drain(sub)

	a.conn.Publish(a.conn.NewMessage(topicConfigIMU, a.opt.IMU, true))

	for {
		select {
		case <-ctx.Done():
			return types.State{}, fmt.Errorf("imu did not configure: %w", ctx.Err())
		case m := <-sub.Channel():
			var st types.State
			if err := util.DecodeJSON(m.Payload, &st); err != nil {
				continue
			}
			a.log.Debugf("imu %s/%s %s", st.Level, st.Status, st.Error)
			switch st.Level {
			case types.LevelReady:
				return st, nil
			case types.LevelError:
				return st, &errcode.E{C: errcode.Code(st.Error), Op: st.Status}
			}
		}
	}
}

// Info returns the retained imu/info detail.
func (a *App) Info(ctx context.Context) (types.IMUInfo, error) {
	ctx, cancel := context.WithTimeout(ctx, a.timeout())
	defer cancel()
	sub := a.conn.Subscribe(topicIMUInfo)
	defer a.conn.Unsubscribe(sub)

	var info struct {
		Driver string        `json:"driver"`
		Detail types.IMUInfo `json:"detail"`
	}
	select {
	case <-ctx.Done():
		return types.IMUInfo{}, errcode.NotInitialised
	case m := <-sub.Channel():
		if err := util.DecodeJSON(m.Payload, &info); err != nil {
			return types.IMUInfo{}, err
		}
		return info.Detail, nil
	}
}

type replyHeader struct {
	OK    bool   `json:"ok"`
	Error string `json:"error"`
}

// Control sends imu/control/<verb> and decodes a successful reply into out.
// A failed reply returns its errcode.Code.
func (a *App) Control(ctx context.Context, verb string, payload, out any) error {
	ctx, cancel := context.WithTimeout(ctx, a.timeout())
	defer cancel()

	msg := a.conn.NewMessage(bus.T("imu", "control", verb), payload, false)
	r, err := a.conn.RequestWait(ctx, msg)
	if err != nil {
		return fmt.Errorf("%s: %w", verb, err)
	}
	var h replyHeader
	if err := util.DecodeJSON(r.Payload, &h); err != nil {
		return fmt.Errorf("%s: bad reply: %w", verb, err)
	}
	if !h.OK {
		if h.Error == "" {
			return errcode.Error
		}
		return errcode.Code(h.Error)
	}
	if out == nil {
		return nil
	}
	return util.DecodeJSON(r.Payload, &out)
}

// Sample is one imu/value message.
type Sample struct {
	Kind   types.Kind
	Vector types.VectorValue
	Temp   types.TemperatureValue
	Steps  types.StepsValue
}

func (s Sample) String() string {
	switch s.Kind {
	case types.KindAccel:
		return fmt.Sprintf("accel[%d] x=%d y=%d z=%d µg", s.Vector.SensorID, s.Vector.X, s.Vector.Y, s.Vector.Z)
	case types.KindGyro:
		return fmt.Sprintf("gyro[%d] x=%d y=%d z=%d µdps", s.Vector.SensorID, s.Vector.X, s.Vector.Y, s.Vector.Z)
	case types.KindTemperature:
		sign, mc := "", mathx.Abs(s.Temp.MilliC)
		if s.Temp.MilliC < 0 {
			sign = "-"
		}
		return fmt.Sprintf("temp[%d] %s%d.%03d °C", s.Temp.SensorID, sign, mc/1000, mc%1000)
	case types.KindSteps:
		return fmt.Sprintf("steps %d", s.Steps.Steps)
	}
	return string(s.Kind)
}

func decodeSample(m *bus.Message) (Sample, error) {
	kind, _ := m.Topic[len(m.Topic)-1].(string)
	s := Sample{Kind: types.Kind(kind)}
	var err error
	switch s.Kind {
	case types.KindAccel, types.KindGyro:
		err = util.DecodeJSON(m.Payload, &s.Vector)
	case types.KindTemperature:
		err = util.DecodeJSON(m.Payload, &s.Temp)
	case types.KindSteps:
		err = util.DecodeJSON(m.Payload, &s.Steps)
	default:
		err = errcode.Unsupported
	}
	return s, err
}

// Stream calls fn for each value until ctx ends or count samples have been
// seen. count <= 0 streams until ctx ends.
func (a *App) Stream(ctx context.Context, count int, fn func(Sample)) error {
	sub := a.conn.Subscribe(topicIMUValues)
	defer a.conn.Unsubscribe(sub)

	seen := 0
	for {
		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			return ctx.Err()
		case m, ok := <-sub.Channel():
			if !ok {
				return nil
			}
			s, err := decodeSample(m)
			if err != nil {
				a.log.Debugf("skip %s: %v", m.Topic, err)
				continue
			}
			fn(s)
			seen++
			if count > 0 && seen >= count {
				return nil
			}
		}
	}
}

// Probe reads the chip id. Locally it opens the bus without initialising
// the sensor; remotely it reports what the board published.
func (a *App) Probe(ctx context.Context, open imu.Factory, closeDev func(imu.Device) error) (uint8, error) {
	if a.opt.Remote.Enabled {
		info, err := a.Info(ctx)
		return info.ChipID, err
	}
	drv, err := imu.DriverConfig(a.opt.IMU)
	if err != nil {
		return 0, err
	}
	dev, err := open(a.opt.IMU, drv)
	if err != nil {
		return 0, err
	}
	defer func() { _ = closeDev(dev) }()
	return dev.ChipID()
}

func drain(sub *bus.Subscription) {
	for {
		select {
		case <-sub.Channel():
		default:
			return
		}
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
