package util

import (
	"testing"
	"time"
)

func TestDecodeJSON(t *testing.T) {
	type cfg struct {
		Bus  string `json:"bus"`
		Addr uint16 `json:"addr"`
	}
	for name, src := range map[string]any{
		"bytes":  []byte(`{"bus":"i2c0","addr":107}`),
		"string": `{"bus":"i2c0","addr":107}`,
		"map":    map[string]any{"bus": "i2c0", "addr": 107.0},
	} {
		var got cfg
		if err := DecodeJSON(src, &got); err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		if got.Bus != "i2c0" || got.Addr != 0x6B {
			t.Fatalf("%s: got %+v", name, got)
		}
	}
	var bad cfg
	if err := DecodeJSON(`{"addr":"x"}`, &bad); err == nil {
		t.Fatal("expected a type error")
	}
}

func TestResetTimer(t *testing.T) {
	tm := StoppedTimer()
	select {
	case <-tm.C:
		t.Fatal("stopped timer fired")
	case <-time.After(20 * time.Millisecond):
	}
	ResetTimer(tm, -time.Second)
	select {
	case <-tm.C:
	case <-time.After(200 * time.Millisecond):
		t.Fatal("timer reset to a negative duration did not fire")
	}
}

func TestClampDuration(t *testing.T) {
	lo, hi := 10*time.Millisecond, time.Minute
	cases := map[time.Duration]time.Duration{
		time.Millisecond:      lo,
		time.Second:           time.Second,
		2 * time.Hour:         hi,
		-time.Millisecond:     lo,
		10 * time.Millisecond: lo,
	}
	for in, want := range cases {
		if got := ClampDuration(in, lo, hi); got != want {
			t.Errorf("ClampDuration(%v) = %v, want %v", in, got, want)
		}
	}
}
