package util

import (
	"encoding/json"
	"time"

	"tinycore-go/x/mathx"
)

// ResetTimer stops, drains and re-arms t. A negative d fires immediately.
func ResetTimer(t *time.Timer, d time.Duration) {
	if d < 0 {
		d = 0
	}
	if !t.Stop() {
		DrainTimer(t)
	}
	t.Reset(d)
}

func DrainTimer(t *time.Timer) {
	select {
	case <-t.C:
	default:
	}
}

// StoppedTimer returns a timer that will not fire until reset.
func StoppedTimer() *time.Timer {
	t := time.NewTimer(time.Hour)
	if !t.Stop() {
		DrainTimer(t)
	}
	return t
}

// DecodeJSON fills dst from raw JSON or from any JSON-shaped value such as
// the map[string]any the config service publishes.
func DecodeJSON[T any](src any, dst *T) error {
	switch v := src.(type) {
	case []byte:
		return json.Unmarshal(v, dst)
	case string:
		return json.Unmarshal([]byte(v), dst)
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return err
		}
		return json.Unmarshal(b, dst)
	}
}

func ClampDuration(d, lo, hi time.Duration) time.Duration {
	return mathx.Clamp(d, lo, hi)
}
