// Package bridge mirrors bus traffic across a byte stream (a UART on the
// board, a serial port on the host).
//
// Local messages matching the configured forward patterns are sent to the
// peer; messages from the peer are published locally. Requests keep working
// across the link: a remote request is published with a bridge-owned
// ReplyTo, and the local reply is routed back to the peer's original ReplyTo.
package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"tinycore-go/bus"
	"tinycore-go/internal/util"
)

// -----------------------------------------------------------------------------
// Public entry point
// -----------------------------------------------------------------------------

// Start starts the bridge service. It blocks until ctx is cancelled.
// It listens for JSON config on topic {"config","bridge"} and (re)configures the link.
func Start(ctx context.Context, conn *bus.Connection) {
	s := &Service{
		conn:       conn,
		stateTopic: bus.T("bridge", "state"),
	}
	s.run(ctx)
}

// -----------------------------------------------------------------------------
// Configuration
// -----------------------------------------------------------------------------

// Config is the JSON-encoded configuration expected on "config/bridge".
type Config struct {
	Transport TransportConfig `json:"transport"`

	// Forward lists local topic patterns sent to the peer, e.g. "imu/#".
	Forward []string `json:"forward,omitempty"`
	// PingMs is the keepalive period. Default 5000.
	PingMs int `json:"ping_ms,omitempty"`
}

type TransportConfig struct {
	// "uart" (provided here) or other names registered via RegisterTransport.
	Type   string        `json:"type"`
	UART   *UARTConfig   `json:"uart,omitempty"`
	Serial *SerialConfig `json:"serial,omitempty"`
}

// UARTConfig carries enough information for an injected TinyGo dialler to open the UART.
type UARTConfig struct {
	Baud  int `json:"baud"`
	RxPin int `json:"rx_pin"`
	TxPin int `json:"tx_pin"`
}

// SerialConfig names a host serial device.
type SerialConfig struct {
	Name          string `json:"name"`
	Baud          int    `json:"baud"`
	ReadTimeoutMs int    `json:"read_timeout_ms,omitempty"`
}

// ParsePattern turns "imu/control/#" into a bus topic.
func ParsePattern(s string) bus.Topic {
	parts := strings.Split(strings.Trim(s, "/"), "/")
	tokens := make([]any, len(parts))
	for i, p := range parts {
		tokens[i] = p
	}
	return bus.T(tokens...)
}

// -----------------------------------------------------------------------------
// Service
// -----------------------------------------------------------------------------

type Service struct {
	conn       *bus.Connection
	stateTopic bus.Topic

	mu     sync.Mutex
	curRun context.CancelFunc
}

// run waits for config and supervises a single link instance.
func (s *Service) run(ctx context.Context) {
	cfgSub := s.conn.Subscribe(bus.T("config", "bridge"))
	defer s.conn.Unsubscribe(cfgSub)

	s.publishState("idle", "awaiting_config", nil)

	for {
		select {
		case <-ctx.Done():
			s.stopCurrent()
			return
		case msg, ok := <-cfgSub.Channel():
			if !ok {
				s.publishState("error", "config_subscription_closed", nil)
				return
			}
			var cfg Config
			if err := util.DecodeJSON(msg.Payload, &cfg); err != nil {
				s.publishState("error", "config_decode_failed", err)
				continue
			}
			s.reconfigure(ctx, cfg)
		}
	}
}

func (s *Service) stopCurrent() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.curRun != nil {
		s.curRun()
		s.curRun = nil
	}
}

func (s *Service) reconfigure(parent context.Context, cfg Config) {
	s.stopCurrent()
	ctx, cancel := context.WithCancel(parent)
	s.mu.Lock()
	s.curRun = cancel
	s.mu.Unlock()
	go s.runLink(ctx, cfg)
}

// -----------------------------------------------------------------------------
// Link supervision
// -----------------------------------------------------------------------------

func (s *Service) runLink(ctx context.Context, cfg Config) {
	tr, err := newTransport(cfg.Transport)
	if err != nil {
		s.publishState("error", "transport_init_failed", err)
		return
	}

	backoff := backoffSeq(250*time.Millisecond, 5*time.Second)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		rwc, err := tr.Open(ctx)
		if err != nil {
			delay := backoff()
			s.publishState("degraded", "dial_failed_retrying", fmt.Errorf("%v (retry in %s)", err, delay))
			if !sleep(ctx, delay) {
				return
			}
			continue
		}

		s.publishState("up", "link_established", nil)
		err = newLink(s.conn, rwc, cfg).run(ctx)
		_ = rwc.Close()
		if err == nil || ctx.Err() != nil {
			// Clean close: restart only on new config.
			return
		}
		delay := backoff()
		s.publishState("degraded", "link_lost_retrying", fmt.Errorf("%v (retry in %s)", err, delay))
		if !sleep(ctx, delay) {
			return
		}
	}
}

// -----------------------------------------------------------------------------
// Transport registry
// -----------------------------------------------------------------------------

// Transport is a pluggable link dialler/owner.
type Transport interface {
	Open(ctx context.Context) (io.ReadWriteCloser, error)
	String() string
}

type transportFactory func(TransportConfig) (Transport, error)

var (
	regMu     sync.RWMutex
	registry  = map[string]transportFactory{}
	errNoDial = errors.New("bridge: UARTDial not set")
)

// RegisterTransport allows external packages to add transports (eg. "serial").
func RegisterTransport(name string, f func(TransportConfig) (Transport, error)) {
	regMu.Lock()
	defer regMu.Unlock()
	registry[name] = f
}

func newTransport(cfg TransportConfig) (Transport, error) {
	regMu.RLock()
	f, ok := registry[cfg.Type]
	regMu.RUnlock()
	if ok {
		return f(cfg)
	}
	switch cfg.Type {
	case "uart":
		if cfg.UART == nil {
			return nil, errors.New("bridge: uart transport requires uart config")
		}
		return &uartTransport{cfg: *cfg.UART}, nil
	default:
		return nil, fmt.Errorf("bridge: unknown transport type %q", cfg.Type)
	}
}

// UARTDial is injected by platform code (cmd/pico-imu on rp2).
var UARTDial func(ctx context.Context, u UARTConfig) (io.ReadWriteCloser, error)

type uartTransport struct {
	cfg UARTConfig
}

func (u *uartTransport) Open(ctx context.Context) (io.ReadWriteCloser, error) {
	if UARTDial == nil {
		return nil, errNoDial
	}
	return UARTDial(ctx, u.cfg)
}

func (u *uartTransport) String() string { return "uart" }

// -----------------------------------------------------------------------------
// Utilities
// -----------------------------------------------------------------------------

func (s *Service) publishState(level, status string, err error) {
	payload := map[string]any{
		"level":  level,  // "up", "degraded", "error", "idle"
		"status": status, // short machine string
		"ts_ms":  time.Now().UnixMilli(),
	}
	if err != nil {
		payload["error"] = err.Error()
	}
	s.conn.Publish(s.conn.NewMessage(s.stateTopic, payload, true))
}

func backoffSeq(min, max time.Duration) func() time.Duration {
	if min <= 0 {
		min = 100 * time.Millisecond
	}
	if max < min {
		max = min
	}
	cur := min
	return func() time.Duration {
		d := cur
		cur *= 2
		if cur > max {
			cur = max
		}
		return d
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// encodeTopic renders tokens for the wire; integers survive as JSON numbers.
func encodeTopic(t bus.Topic) []any {
	out := make([]any, len(t))
	copy(out, t)
	return out
}

// decodeTopic restores tokens; whole JSON numbers become ints.
func decodeTopic(raw []any) (bus.Topic, error) {
	out := make([]any, len(raw))
	for i, tok := range raw {
		switch v := tok.(type) {
		case string, bool:
			out[i] = v
		case float64:
			if v != float64(int(v)) {
				return nil, fmt.Errorf("bridge: non-integer topic token %v", v)
			}
			out[i] = int(v)
		default:
			return nil, fmt.Errorf("bridge: bad topic token %T", tok)
		}
	}
	return bus.T(out...), nil
}

// wireMsg is the JSON body of a pub frame.
type wireMsg struct {
	Topic    []any           `json:"topic"`
	Payload  json.RawMessage `json:"payload,omitempty"`
	Retained bool            `json:"retained,omitempty"`
	ReplyTo  []any           `json:"reply_to,omitempty"`
}
