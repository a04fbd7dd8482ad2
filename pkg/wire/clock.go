package wire

import "time"

var processStart = time.Now()

// NowMS returns milliseconds elapsed since process start, sampled from the
// monotonic clock reading time.Time carries internally. Every timer in this
// transport (RTO, UDP probe interval, port-hop interval, socket age,
// server association timeout) is measured against this, per spec.md
// section 5: "a monotonic millisecond clock sampled on demand".
func NowMS() uint64 {
	return uint64(time.Since(processStart).Milliseconds())
}
