package config

// Embedded configuration per device ID (the value placed in ctx under
// CtxDeviceKey). Each top-level key is published on config/<key>.

const cfgPico = `{
  "imu": {
    "bus": "i2c0",
    "addr": 106,
    "sensor_id": 0,
    "period_ms": 100,
    "accel_range": "4g",
    "gyro_range": "500dps",
    "rate_hz": 104,
    "pedometer": true,
    "pullups": false
  },
  "bridge": {
    "transport": {
      "type": "uart",
      "uart": {"baud": 115200, "tx_pin": 0, "rx_pin": 1}
    },
    "forward": ["imu/#", "system/#"],
    "ping_ms": 5000
  },
  "heartbeat": {
    "interval": 2
  }
}`

var embeddedConfigs = map[string][]byte{
	"pico": []byte(cfgPico),
}
