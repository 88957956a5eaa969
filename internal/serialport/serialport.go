// Package serialport adds the "serial" bridge transport on hosts.
package serialport

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/tarm/serial"

	"tinycore-go/services/bridge"
)

const DefaultBaud = 115200

// Register makes the "serial" transport available to bridge configs.
func Register() {
	bridge.RegisterTransport("serial", New)
}

// New builds a transport from cfg.Serial.
func New(cfg bridge.TransportConfig) (bridge.Transport, error) {
	if cfg.Serial == nil || cfg.Serial.Name == "" {
		return nil, errors.New("serialport: serial transport requires a port name")
	}
	c := &serial.Config{Name: cfg.Serial.Name, Baud: cfg.Serial.Baud}
	if c.Baud <= 0 {
		c.Baud = DefaultBaud
	}
	if cfg.Serial.ReadTimeoutMs > 0 {
		c.ReadTimeout = time.Duration(cfg.Serial.ReadTimeoutMs) * time.Millisecond
	}
	return &transport{cfg: c}, nil
}

type transport struct {
	cfg *serial.Config
}

// opener is replaced in tests.
var opener = func(c *serial.Config) (io.ReadWriteCloser, error) {
	return serial.OpenPort(c)
}

func (t *transport) Open(ctx context.Context) (io.ReadWriteCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p, err := opener(t.cfg)
	if err != nil {
		return nil, err
	}
	return &port{ReadWriteCloser: p}, nil
}

func (t *transport) String() string { return "serial:" + t.cfg.Name }

// port hides read timeouts from the frame reader: an expired read
// returns (0, nil) instead of EOF so the link stays up.
type port struct {
	io.ReadWriteCloser
}

func (p *port) Read(b []byte) (int, error) {
	n, err := p.ReadWriteCloser.Read(b)
	if n == 0 && err == io.EOF {
		return 0, nil
	}
	return n, err
}
