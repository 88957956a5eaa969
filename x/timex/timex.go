package timex

import "time"

// NowMs returns Unix milliseconds, the timestamp carried in bus payloads.
func NowMs() int64 { return time.Now().UnixMilli() }

// PeriodFromHz converts a polling rate to a period. 0 Hz reads as 1 Hz.
func PeriodFromHz(hz uint32) time.Duration {
	return time.Second / time.Duration(max(hz, 1))
}
