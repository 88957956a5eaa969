package types

// ---- Capability kinds ----

type Kind string

const (
	KindAccel       Kind = "accel"
	KindGyro        Kind = "gyro"
	KindTemperature Kind = "temp"
	KindSteps       Kind = "steps"
)

// IMUInfo is Info.Detail for an LSM6DS3TR-C.
type IMUInfo struct {
	Bus      string `json:"bus"`
	Addr     uint16 `json:"addr,omitempty"` // 0 on SPI
	ChipID   uint8  `json:"chip_id"`
	SensorID int32  `json:"sensor_id"` // accel id; gyro and temp follow
}

// Value payloads appear on imu/value/<kind>. Integer units suit TinyGo.

// VectorValue is a three-axis sample in µg (accel) or µ°/s (gyro).
type VectorValue struct {
	SensorID int32 `json:"sensor_id"`
	X        int32 `json:"x"`
	Y        int32 `json:"y"`
	Z        int32 `json:"z"`
	TS       int64 `json:"ts_ms"`
}

type TemperatureValue struct {
	SensorID int32 `json:"sensor_id"`
	MilliC   int32 `json:"milli_c"`
	TS       int64 `json:"ts_ms"`
}

type StepsValue struct {
	Steps uint16 `json:"steps"`
	TS    int64  `json:"ts_ms"`
}

// ---- Controls (imu/control/<verb>) ----

// Enable is the payload of the pedometer and pullups verbs.
type Enable struct {
	Enable bool `json:"enable"`
}

// EnableAck echoes the state the device now holds.
type EnableAck struct {
	OK     bool `json:"ok"`
	Enable bool `json:"enable"`
}

// ReadNowReply carries one fresh reading of every channel.
type ReadNowReply struct {
	OK    bool             `json:"ok"`
	Accel VectorValue      `json:"accel"`
	Gyro  VectorValue      `json:"gyro"`
	Temp  TemperatureValue `json:"temp"`
	Steps StepsValue       `json:"steps"`
}
