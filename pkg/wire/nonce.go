// Package wire holds the small binary building blocks shared by every
// transport: nonce packing, timestamp encoding, and address/port-range
// parsing. Nothing here touches a socket.
package wire

// Direction distinguishes which peer originated a Packet. It is carried as
// the top bit of the 64-bit nonce.
type Direction uint8

const (
	ToServer Direction = iota
	ToClient
)

const directionBit = uint64(1) << 63

// PackNonce encodes seq (a monotone 63-bit counter) and dir into the 64-bit
// nonce carried alongside an encrypted message. seq's own top bit, if any,
// is discarded: callers must keep their counters below 1<<63.
func PackNonce(seq uint64, dir Direction) uint64 {
	n := seq &^ directionBit
	if dir == ToClient {
		n |= directionBit
	}
	return n
}

// UnpackNonce splits a nonce back into its sequence counter and direction.
func UnpackNonce(nonce uint64) (seq uint64, dir Direction) {
	seq = nonce &^ directionBit
	if nonce&directionBit != 0 {
		dir = ToClient
	} else {
		dir = ToServer
	}
	return seq, dir
}
