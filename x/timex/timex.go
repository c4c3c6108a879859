package timex

import "time"

// NowMs returns Unix milliseconds as int64.
func NowMs() int64 { return time.Now().UnixMilli() }

// NowNs returns Unix nanoseconds as int64.
func NowNs() int64 { return time.Now().UnixNano() }

// PeriodFromHz returns a nanosecond period for a requested frequency.
// freqHz==0 is coerced to 1 to avoid division by zero.
func PeriodFromHz(freqHz uint32) uint64 {
	if freqHz == 0 {
		freqHz = 1
	}
	return uint64(1_000_000_000 / uint64(freqHz))
}

// ClockTime returns how long n bytes take on a serial clock of freqHz.
func ClockTime(n int, freqHz uint32) time.Duration {
	if n <= 0 {
		return 0
	}
	return time.Duration(uint64(n) * 8 * PeriodFromHz(freqHz))
}
