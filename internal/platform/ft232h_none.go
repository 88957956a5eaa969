//go:build !cgo && !rp2040 && !rp2350

package platform

import (
	"tinycore-go/drivers/lsm6ds3trc"
	"tinycore-go/errcode"
	"tinycore-go/services/imu"
	"tinycore-go/types"
)

func openFT232H(string, types.IMUConfig, lsm6ds3trc.Config) (imu.Device, error) {
	return nil, &errcode.E{C: errcode.Unsupported, Op: "open ft232h", Msg: "built without cgo"}
}
