package quant

import "time"

// MicroSec is a Unix timestamp in microseconds.
// Exchanges report times in ms or µs; everything inside the core is µs.
type MicroSec int64

const (
	MicroSecond MicroSec = 1
	MilliSecond MicroSec = 1_000
	Second      MicroSec = 1_000_000
)

// Now returns the current wall-clock time in microseconds.
func Now() MicroSec {
	return FromTime(time.Now())
}

// FromTime converts a time.Time to MicroSec.
func FromTime(t time.Time) MicroSec {
	return MicroSec(t.UnixMicro())
}

// FromMillis converts a millisecond timestamp (Bybit, Binance) to MicroSec.
func FromMillis(ms int64) MicroSec {
	return MicroSec(ms) * MilliSecond
}

// Time converts back to time.Time in UTC.
func (m MicroSec) Time() time.Time {
	return time.UnixMicro(int64(m)).UTC()
}

// Duration returns m interpreted as a span of time.
func (m MicroSec) Duration() time.Duration {
	return time.Duration(m) * time.Microsecond
}
