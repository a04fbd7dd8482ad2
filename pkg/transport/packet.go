package transport

import (
	"fmt"

	"mobishell/pkg/wire"
)

// plaintextHeaderSize is the size of the BE16 timestamp | BE16
// timestamp_reply prefix carried inside every encrypted message
// (spec.md section 3, "Wire layout of the Packet plaintext").
const plaintextHeaderSize = 4

// EncodePacketPlaintext builds the plaintext that gets sealed by the
// session: BE16 timestamp | BE16 timestamp_reply | payload.
func EncodePacketPlaintext(ts, tsReply uint16, payload []byte) []byte {
	out := make([]byte, plaintextHeaderSize+len(payload))
	wire.PutUint16BE(out[0:2], ts)
	wire.PutUint16BE(out[2:4], tsReply)
	copy(out[plaintextHeaderSize:], payload)
	return out
}

// DecodePacketPlaintext reverses EncodePacketPlaintext.
func DecodePacketPlaintext(b []byte) (ts, tsReply uint16, payload []byte, err error) {
	if len(b) < plaintextHeaderSize {
		return 0, 0, nil, fmt.Errorf("transport: plaintext shorter than header (%d bytes)", len(b))
	}
	ts = wire.Uint16BE(b[0:2])
	tsReply = wire.Uint16BE(b[2:4])
	payload = b[plaintextHeaderSize:]
	return ts, tsReply, payload, nil
}
