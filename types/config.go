package types

// IMUConfig is supplied on topic "config/imu" and, on hosts, read from the
// imuctl config file. Zero values select driver defaults.
type IMUConfig struct {
	Bus      string `json:"bus" yaml:"bus" mapstructure:"bus"`             // "i2c0", "i2c1", "spi0", "ft232h", "/dev/i2c-1"
	Addr     uint16 `json:"addr" yaml:"addr" mapstructure:"addr"`          // 0x6A or 0x6B; ignored on SPI
	SensorID int32  `json:"sensor_id" yaml:"sensor_id" mapstructure:"sensor_id"`
	CSPin    int    `json:"cs_pin" yaml:"cs_pin" mapstructure:"cs_pin"` // SPI chip select (GPIO or FT232H C-bus line)

	PeriodMs int     `json:"period_ms" yaml:"period_ms" mapstructure:"period_ms"`
	PollHz   uint32  `json:"poll_hz,omitempty" yaml:"poll_hz,omitempty" mapstructure:"poll_hz"` // used when PeriodMs is 0
	RateHz   float64 `json:"rate_hz,omitempty" yaml:"rate_hz,omitempty" mapstructure:"rate_hz"`

	AccelRange string `json:"accel_range,omitempty" yaml:"accel_range,omitempty" mapstructure:"accel_range"` // "2g" … "16g"
	GyroRange  string `json:"gyro_range,omitempty" yaml:"gyro_range,omitempty" mapstructure:"gyro_range"`    // "250dps" … "2000dps"

	Pedometer bool `json:"pedometer" yaml:"pedometer" mapstructure:"pedometer"`
	Pullups   bool `json:"pullups" yaml:"pullups" mapstructure:"pullups"`
}
