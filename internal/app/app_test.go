package app

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"tinycore-go/bus"
	"tinycore-go/drivers/lsm6ds3trc"
	"tinycore-go/errcode"
	"tinycore-go/internal/config"
	"tinycore-go/services/bridge"
	"tinycore-go/services/imu"
	"tinycore-go/types"
)

// ---------------- Fakes ----------------

type fakeDev struct {
	mu        sync.Mutex
	chip      uint8
	ready     bool
	ids       lsm6ds3trc.SensorIDs
	pedometer bool
	pullups   bool
	closed    bool
}

func (d *fakeDev) Init(id int32) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.chip != lsm6ds3trc.ChipID {
		return lsm6ds3trc.ErrWrongChip
	}
	d.ready = true
	d.ids = lsm6ds3trc.DeriveSensorIDs(id)
	return nil
}

func (d *fakeDev) Initialised() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.ready
}

func (d *fakeDev) SensorIDs() lsm6ds3trc.SensorIDs {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.ids
}

func (d *fakeDev) ChipID() (uint8, error) { return d.chip, nil }

func (d *fakeDev) EnablePedometer(on bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.pedometer = on
	return nil
}

func (d *fakeDev) EnableI2CMasterPullups(on bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.pullups = on
	return nil
}

func (d *fakeDev) ResetPedometer() error                      { return nil }
func (d *fakeDev) ReadPedometer() (uint16, error)             { return 42, nil }
func (d *fakeDev) ReadAcceleration() (x, y, z int32, e error) { return 1, 2, 1000000, nil }
func (d *fakeDev) ReadRotation() (x, y, z int32, e error)     { return 0, 0, 0, nil }
func (d *fakeDev) ReadTemperature() (int32, error)            { return 25500, nil }

func factoryFor(d *fakeDev) imu.Factory {
	return func(types.IMUConfig, lsm6ds3trc.Config) (imu.Device, error) { return d, nil }
}

func localOpt() config.ImuctlOpt {
	opt := config.NewImuctlOpt()
	opt.IMU.Bus = "fake"
	opt.IMU.SensorID = 20
	opt.IMU.PeriodMs = 10
	opt.TimeoutMs = 1000
	return opt
}

// ---------------- Local mode ----------------

func TestLocalConfigureControlStream(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	dev := &fakeDev{chip: lsm6ds3trc.ChipID}
	a := New(localOpt(), factoryFor(dev))
	if err := a.Start(ctx); err != nil {
		t.Fatal(err)
	}

	st, err := a.Configure(ctx)
	if err != nil {
		t.Fatalf("configure: %v", err)
	}
	if st.Level != types.LevelReady {
		t.Fatalf("state = %+v", st)
	}

	info, err := a.Info(ctx)
	if err != nil || info.ChipID != lsm6ds3trc.ChipID || info.SensorID != 20 {
		t.Fatalf("info = %+v, %v", info, err)
	}

	var ack types.EnableAck
	if err := a.Control(ctx, imu.CtrlPedometer, types.Enable{Enable: true}, &ack); err != nil || !ack.Enable {
		t.Fatalf("pedometer: %+v, %v", ack, err)
	}
	dev.mu.Lock()
	on := dev.pedometer
	dev.mu.Unlock()
	if !on {
		t.Fatal("device pedometer not enabled")
	}

	var now types.ReadNowReply
	if err := a.Control(ctx, imu.CtrlReadNow, nil, &now); err != nil {
		t.Fatalf("read_now: %v", err)
	}
	if now.Accel.SensorID != 20 || now.Gyro.SensorID != 21 || now.Temp.SensorID != 22 || now.Steps.Steps != 42 {
		t.Fatalf("read_now = %+v", now)
	}

	if err := a.Control(ctx, "selfdestruct", nil, nil); !errors.Is(err, errcode.Unsupported) {
		t.Fatalf("unknown verb err = %v", err)
	}

	kinds := map[types.Kind]Sample{}
	if err := a.Stream(ctx, 8, func(s Sample) { kinds[s.Kind] = s }); err != nil {
		t.Fatal(err)
	}
	if kinds[types.KindAccel].Vector.Z != 1000000 {
		t.Fatalf("accel sample = %+v", kinds[types.KindAccel])
	}
	if got := kinds[types.KindTemperature].String(); got != "temp[22] 25.500 °C" {
		t.Fatalf("temp string = %q", got)
	}
}

func TestLocalConfigureWrongChip(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a := New(localOpt(), factoryFor(&fakeDev{chip: 0x69}))
	if err := a.Start(ctx); err != nil {
		t.Fatal(err)
	}
	_, err := a.Configure(ctx)
	if errcode.Of(err) != errcode.WrongChip {
		t.Fatalf("err = %v, want %s", err, errcode.WrongChip)
	}
}

func TestProbeLocal(t *testing.T) {
	dev := &fakeDev{chip: lsm6ds3trc.ChipID}
	a := New(localOpt(), nil)
	closed := false
	id, err := a.Probe(context.Background(), factoryFor(dev), func(imu.Device) error {
		closed = true
		return nil
	})
	if err != nil || id != lsm6ds3trc.ChipID {
		t.Fatalf("probe = %#x, %v", id, err)
	}
	if !closed {
		t.Fatal("device not closed")
	}
	if dev.Initialised() {
		t.Fatal("probe must not initialise")
	}
}

func TestSampleStrings(t *testing.T) {
	cases := []struct {
		s    Sample
		want string
	}{
		{Sample{Kind: types.KindSteps, Steps: types.StepsValue{Steps: 7}}, "steps 7"},
		{Sample{Kind: types.KindGyro, Vector: types.VectorValue{SensorID: 1, X: -5}}, "gyro[1] x=-5 y=0 z=0 µdps"},
		{Sample{Kind: types.KindTemperature, Temp: types.TemperatureValue{MilliC: -1250}}, "temp[0] -1.250 °C"},
		{Sample{Kind: types.KindTemperature, Temp: types.TemperatureValue{MilliC: -500}}, "temp[0] -0.500 °C"},
	}
	for _, c := range cases {
		if got := c.s.String(); got != c.want {
			t.Errorf("String() = %q, want %q", got, c.want)
		}
	}
}

// ---------------- Remote mode ----------------

type pipeTransport struct {
	name string
	conn net.Conn
	once sync.Once
}

func (p *pipeTransport) Open(ctx context.Context) (io.ReadWriteCloser, error) {
	var c io.ReadWriteCloser
	p.once.Do(func() { c = p.conn })
	if c == nil {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return c, nil
}

func (p *pipeTransport) String() string { return p.name }

func TestRemoteControlOverBridge(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hostEnd, boardEnd := net.Pipe()
	defer hostEnd.Close()
	defer boardEnd.Close()

	bridge.RegisterTransport("serial", func(bridge.TransportConfig) (bridge.Transport, error) {
		return &pipeTransport{name: "host", conn: hostEnd}, nil
	})
	bridge.RegisterTransport("test-board", func(bridge.TransportConfig) (bridge.Transport, error) {
		return &pipeTransport{name: "board", conn: boardEnd}, nil
	})

	// Board: imu service plus bridge forwarding imu/#.
	dev := &fakeDev{chip: lsm6ds3trc.ChipID}
	board := bus.NewBus(64)
	boardCfg := board.NewConnection("board-cfg")
	if err := imu.New(factoryFor(dev), nil).Start(ctx, board.NewConnection("imu")); err != nil {
		t.Fatal(err)
	}
	boardCfg.Publish(boardCfg.NewMessage(bus.T("config", "imu"), types.IMUConfig{Bus: "fake", SensorID: 3, PeriodMs: 1000}, true))
	go bridge.Start(ctx, board.NewConnection("bridge"))
	boardCfg.Publish(boardCfg.NewMessage(bus.T("config", "bridge"), bridge.Config{
		Transport: bridge.TransportConfig{Type: "test-board"},
		Forward:   []string{"imu/#"},
	}, true))

	// Host.
	opt := localOpt()
	opt.Remote = config.RemoteOpt{Enabled: true, Port: "pipe"}
	opt.TimeoutMs = 2000
	a := New(opt, nil)
	if err := a.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}

	var ack types.EnableAck
	if err := a.Control(ctx, imu.CtrlPullups, types.Enable{Enable: true}, &ack); err != nil || !ack.Enable {
		t.Fatalf("pullups over bridge: %+v, %v", ack, err)
	}
	dev.mu.Lock()
	on := dev.pullups
	dev.mu.Unlock()
	if !on {
		t.Fatal("board device pullups not enabled")
	}

	id, err := a.Probe(ctx, nil, nil)
	if err != nil || id != lsm6ds3trc.ChipID {
		t.Fatalf("remote probe = %#x, %v", id, err)
	}

	waitCtx, stop := context.WithTimeout(ctx, 2*time.Second)
	defer stop()
	var got Sample
	if err := a.Stream(waitCtx, 1, func(s Sample) { got = s }); err != nil {
		t.Fatalf("stream: %v", err)
	}
	if got.Kind == "" {
		t.Fatal("no sample over bridge")
	}
}
