package wire

import "encoding/binary"

// NoTimestamp is the sentinel that means "timestamp absent".
const NoTimestamp uint16 = 0xFFFF

// Timestamp16 returns nowMS truncated to 16 bits, bumped by one if it would
// otherwise collide with the NoTimestamp sentinel.
func Timestamp16(nowMS uint64) uint16 {
	t := uint16(nowMS & 0xFFFF)
	if t == NoTimestamp {
		t++
	}
	return t
}

// TimestampDiff returns (a-b) mod 65536, the signed-looking but always
// non-negative 16-bit wraparound difference used for RTT sampling.
func TimestampDiff(a, b uint16) uint16 {
	return uint16(uint32(a) - uint32(b))
}

// PutUint16BE / Uint16BE are thin wrappers kept for call-site symmetry with
// the BE32 length-prefix helpers used by the TCP frame.
func PutUint16BE(b []byte, v uint16) { binary.BigEndian.PutUint16(b, v) }
func Uint16BE(b []byte) uint16       { return binary.BigEndian.Uint16(b) }
func PutUint32BE(b []byte, v uint32) { binary.BigEndian.PutUint32(b, v) }
func Uint32BE(b []byte) uint32       { return binary.BigEndian.Uint32(b) }
