package heartbeat

import (
	"context"
	"time"

	"tinycore-go/bus"
	"tinycore-go/internal/util"
	"tinycore-go/x/mathx"
	"tinycore-go/x/timex"
)

var (
	topicConfigHeartbeat = bus.T("config", "heartbeat")
	topicHeartbeat       = bus.T("system", "heartbeat")
)

// Config is published on config/heartbeat.
type Config struct {
	Interval int `json:"interval"` // seconds, 1..3600
}

// Beat is the retained payload on system/heartbeat.
type Beat struct {
	UptimeS int64  `json:"uptime_s"`
	Seq     uint32 `json:"seq"`
	TS      int64  `json:"ts_ms"`
}

type Service struct {
	// Quiet suppresses the console line per beat.
	Quiet bool
}

func (s *Service) serviceLoop(ctx context.Context, conn *bus.Connection) {
	cfgSub := conn.Subscribe(topicConfigHeartbeat)
	defer conn.Unsubscribe(cfgSub)

	started := time.Now()
	var seq uint32
	tick := time.NewTicker(1 * time.Second)
	defer tick.Stop()

	// loop until context is cancelled, respond to tick and config changes
	for {
		select {
		case <-ctx.Done():
			println("Info: heartbeat service stopping")
			return
		case <-tick.C:
			seq++
			up := int64(time.Since(started) / time.Second)
			conn.Publish(conn.NewMessage(topicHeartbeat, Beat{UptimeS: up, Seq: seq, TS: timex.NowMs()}, true))
			if !s.Quiet {
				println("Info: heartbeat", seq, "uptime", up, "s")
			}
		case msg := <-cfgSub.Channel():
			var cfg Config
			if err := util.DecodeJSON(msg.Payload, &cfg); err != nil || cfg.Interval <= 0 {
				println("Warn: heartbeat ignoring config")
				continue
			}
			iv := mathx.Clamp(cfg.Interval, 1, 3600)
			tick.Reset(time.Duration(iv) * time.Second)
			println("Info: heartbeat interval set to", iv, "seconds")
		}
	}
}

// Start the heartbeat service.
func (s *Service) Start(ctx context.Context, conn *bus.Connection) error {
	go s.serviceLoop(ctx, conn)
	return nil
}
