package config

import (
	"context"
	"errors"

	"tinycore-go/bus"

	"github.com/andreyvit/tinyjson"
)

const (
	serviceName  = "config"
	configPrefix = "config"
)

type ctxKey string

// CtxDeviceKey is the context key holding the device ID.
const CtxDeviceKey ctxKey = "device"

// WithDevice returns ctx carrying the device ID used to pick an embedded config.
func WithDevice(ctx context.Context, device string) context.Context {
	return context.WithValue(ctx, CtxDeviceKey, device)
}

// EmbeddedConfigLookup allows overriding how configs are resolved.
var EmbeddedConfigLookup = func(device string) ([]byte, bool) {
	b, ok := embeddedConfigs[device]
	return b, ok
}

type ConfigService struct {
	Name string
}

func NewConfigService() *ConfigService {
	return &ConfigService{Name: serviceName}
}

// Publish splits a JSON object into retained config/<key> messages.
func Publish(conn *bus.Connection, raw []byte) error {
	val, err := parse(raw)
	if err != nil {
		return err
	}
	m, ok := val.(map[string]any)
	if !ok {
		return errors.New("embedded config is not a JSON object")
	}
	for k, v := range m {
		conn.Publish(conn.NewMessage(bus.T(configPrefix, k), v, true))
	}
	return nil
}

// parse reads exactly one JSON value. tinyjson panics on malformed input.
func parse(raw []byte) (val any, err error) {
	defer func() {
		if r := recover(); r != nil {
			val, err = nil, errors.New("malformed embedded config")
		}
	}()
	r := tinyjson.Raw(raw)
	val = r.Value()
	r.EnsureEOF()
	return val, nil
}

// publishConfig reads the device config from embedded data and publishes it as retained messages.
func (s *ConfigService) publishConfig(ctx context.Context, conn *bus.Connection) error {
	device, _ := ctx.Value(CtxDeviceKey).(string)
	if device == "" {
		return errors.New("missing device ID in context")
	}

	raw, ok := EmbeddedConfigLookup(device)
	if !ok || len(raw) == 0 {
		return errors.New("no embedded config for device: " + device)
	}
	return Publish(conn, raw)
}

// Start launches the config publisher in a goroutine.
func (s *ConfigService) Start(ctx context.Context, conn *bus.Connection) {
	go func() {
		if err := s.publishConfig(ctx, conn); err != nil {
			println("Error: config:", err.Error())
		}
	}()
}
