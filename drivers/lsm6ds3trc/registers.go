// Register addresses and bitfields of the LSM6DS3TR-C.

package lsm6ds3trc

const (
	// 7-bit I2C address with SA0 low; AddressAlt with SA0 high.
	Address    = 0x6A
	AddressAlt = 0x6B

	// WHO_AM_I value for this part.
	ChipID = 0x6A

	// --- Register addresses ---
	regWhoAmI       = 0x0F
	regCtrl1XL      = 0x10 // ODR_XL[7:4] FS_XL[3:2]
	regCtrl2G       = 0x11 // ODR_G[7:4] FS_G[3:2]
	regCtrl3C       = 0x12
	regCtrl10C      = 0x19
	regMasterConfig = 0x1A
	regOutTempL     = 0x20
	regOutXLG       = 0x22 // gyro X low, 6 bytes
	regOutXLXL      = 0x28 // accel X low, 6 bytes
	regStepCounterL = 0x4B // 16-bit, little-endian

	// --- CTRL3_C bits ---
	ctrl3SWReset = 0
	ctrl3IfInc   = 2
	ctrl3BDU     = 6
	ctrl3Boot    = 7

	// --- CTRL10_C bits ---
	ctrl10PedoRstStep = 1
	ctrl10FuncEn      = 2
	ctrl10PedoEn      = 4

	// --- MASTER_CONFIG bits ---
	masterPullUpEn = 3
)

// AccelRange selects the accelerometer full scale. The zero value picks ±4 g.
type AccelRange uint8

const (
	AccelRangeDefault AccelRange = iota
	Accel2G
	Accel4G
	Accel8G
	Accel16G
)

// bits returns FS_XL positioned for CTRL1_XL.
func (r AccelRange) bits() uint8 {
	switch r {
	case Accel2G:
		return 0x00
	case Accel16G:
		return 0x04
	case Accel8G:
		return 0x0C
	default:
		return 0x08
	}
}

// microG returns the sensitivity in µg per LSB.
func (r AccelRange) microG() int32 {
	switch r {
	case Accel2G:
		return 61
	case Accel8G:
		return 244
	case Accel16G:
		return 488
	default:
		return 122
	}
}

// GyroRange selects the gyroscope full scale. The zero value picks ±2000 dps.
type GyroRange uint8

const (
	GyroRangeDefault GyroRange = iota
	Gyro250DPS
	Gyro500DPS
	Gyro1000DPS
	Gyro2000DPS
)

// bits returns FS_G positioned for CTRL2_G.
func (r GyroRange) bits() uint8 {
	switch r {
	case Gyro250DPS:
		return 0x00
	case Gyro500DPS:
		return 0x04
	case Gyro1000DPS:
		return 0x08
	default:
		return 0x0C
	}
}

// microDPS returns the sensitivity in µ°/s per LSB.
func (r GyroRange) microDPS() int32 {
	switch r {
	case Gyro250DPS:
		return 8750
	case Gyro500DPS:
		return 17500
	case Gyro1000DPS:
		return 35000
	default:
		return 70000
	}
}

// DataRate selects an output data rate. The zero value picks 104 Hz.
type DataRate uint8

const (
	RateDefault DataRate = iota
	RateOff
	Rate12_5Hz
	Rate26Hz
	Rate52Hz
	Rate104Hz
	Rate208Hz
	Rate416Hz
	Rate833Hz
	Rate1660Hz
	Rate3330Hz
	Rate6660Hz
)

// bits returns ODR positioned for CTRL1_XL / CTRL2_G.
func (r DataRate) bits() uint8 {
	switch r {
	case RateOff:
		return 0x00
	case Rate12_5Hz:
		return 0x10
	case Rate26Hz:
		return 0x20
	case Rate52Hz:
		return 0x30
	case Rate208Hz:
		return 0x50
	case Rate416Hz:
		return 0x60
	case Rate833Hz:
		return 0x70
	case Rate1660Hz:
		return 0x80
	case Rate3330Hz:
		return 0x90
	case Rate6660Hz:
		return 0xA0
	default:
		return 0x40
	}
}

// ParseAccelRange maps "2g", "4g", "8g", "16g" to an AccelRange.
func ParseAccelRange(s string) (AccelRange, bool) {
	switch s {
	case "":
		return AccelRangeDefault, true
	case "2g":
		return Accel2G, true
	case "4g":
		return Accel4G, true
	case "8g":
		return Accel8G, true
	case "16g":
		return Accel16G, true
	}
	return AccelRangeDefault, false
}

// ParseGyroRange maps "250dps" … "2000dps" to a GyroRange.
func ParseGyroRange(s string) (GyroRange, bool) {
	switch s {
	case "":
		return GyroRangeDefault, true
	case "250dps":
		return Gyro250DPS, true
	case "500dps":
		return Gyro500DPS, true
	case "1000dps":
		return Gyro1000DPS, true
	case "2000dps":
		return Gyro2000DPS, true
	}
	return GyroRangeDefault, false
}

// ParseDataRate maps a rate in Hz (0 meaning off) to the nearest DataRate
// at or above it. Rates above 6660 Hz are rejected.
func ParseDataRate(hz float64) (DataRate, bool) {
	if hz <= 0 {
		return RateOff, true
	}
	steps := [...]struct {
		hz float64
		r  DataRate
	}{
		{12.5, Rate12_5Hz}, {26, Rate26Hz}, {52, Rate52Hz}, {104, Rate104Hz},
		{208, Rate208Hz}, {416, Rate416Hz}, {833, Rate833Hz}, {1660, Rate1660Hz},
		{3330, Rate3330Hz}, {6660, Rate6660Hz},
	}
	for _, s := range steps {
		if hz <= s.hz {
			return s.r, true
		}
	}
	return RateDefault, false
}
