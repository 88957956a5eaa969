//go:build rp2040 || rp2350

package main

import (
	"context"
	"time"

	"tinycore-go/bus"
	"tinycore-go/internal/platform"
	"tinycore-go/services/bridge"
	"tinycore-go/services/config"
	"tinycore-go/services/heartbeat"
	"tinycore-go/services/imu"
)

func printTopicWith(prefix string, t bus.Topic) {
	print(prefix)
	print(" ")
	for i, tok := range t {
		if i > 0 {
			print("/")
		}
		switch v := tok.(type) {
		case string:
			print(v)
		case int:
			print(v)
		default:
			print("?")
		}
	}
	println()
}

func main() {
	// Allow USB CDC to enumerate before we print.
	time.Sleep(2 * time.Second)
	ctx := context.Background()

	println("[main] bootstrapping bus …")
	b := bus.NewBus(8)
	ui := b.NewConnection("ui")

	bridge.UARTDial = dialUART

	println("[main] starting services …")
	_ = imu.New(platform.IMUFactory(), nil).Start(ctx, b.NewConnection("imu"))
	go bridge.Start(ctx, b.NewConnection("bridge"))
	_ = (&heartbeat.Service{Quiet: true}).Start(ctx, b.NewConnection("heartbeat"))
	config.NewConfigService().Start(config.WithDevice(ctx, "pico"), b.NewConnection("config"))

	mon := ui.Subscribe(bus.T("+", "state"))
	for m := range mon.Channel() {
		printTopicWith("[monitor] <-", m.Topic)
	}
}
