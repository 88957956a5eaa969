package imu

import "tinycore-go/x/fmtx"

// printLogger writes to the console with println, which works on every
// TinyGo target without an io.Writer.
type printLogger struct{}

func (printLogger) Debugf(string, ...any) {}

func (printLogger) Infof(format string, args ...any) {
	println("Info:", fmtx.Sprintf(format, args...))
}

func (printLogger) Warnf(format string, args ...any) {
	println("Warn:", fmtx.Sprintf(format, args...))
}
