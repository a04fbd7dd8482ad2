// Package instruction defines the opaque upper-layer payload this transport
// carries (spec.md section 3) and its canonical byte form. The transport
// itself only reads the four small integer fields for observability; the
// body is never interpreted.
package instruction

import (
	"bytes"
	"compress/zlib"
	"fmt"
	"io"

	"mobishell/pkg/codec"
)

// Instruction is the upper-layer message unit. OldNum/NewNum/AckNum and
// ThrowawayNum mirror the sequence/ack bookkeeping the session-level
// prediction/echo protocol keeps; this layer never interprets them beyond
// reporting them to the observer hook.
type Instruction struct {
	OldNum       uint64 `cbor:"1,keyasint"`
	NewNum       uint64 `cbor:"2,keyasint"`
	AckNum       uint64 `cbor:"3,keyasint"`
	ThrowawayNum uint64 `cbor:"4,keyasint"`
	Payload      []byte `cbor:"5,keyasint"`
}

var cborCodec = mustCBOR()

func mustCBOR() codec.Codec {
	c, err := codec.CBOR()
	if err != nil {
		// CanonicalEncOptions().EncMode() only fails on malformed static
		// options; this is a programmer error, not a runtime condition.
		panic(fmt.Sprintf("instruction: build cbor codec: %v", err))
	}
	return c
}

// Serialize returns the canonical (uncompressed) byte form of i.
func Serialize(i Instruction) ([]byte, error) {
	return cborCodec.Marshal(i)
}

// Parse is the inverse of Serialize.
func Parse(b []byte) (Instruction, error) {
	var i Instruction
	if err := cborCodec.Unmarshal(b, &i); err != nil {
		return Instruction{}, fmt.Errorf("instruction: parse: %w", err)
	}
	return i, nil
}

// Compress invertibly compresses arbitrary bytes. Implemented on
// compress/zlib: no third-party compression library appears anywhere in
// the example corpus, so the standard library is used here.
func Compress(b []byte) []byte {
	var buf bytes.Buffer
	w := zlib.NewWriter(&buf)
	_, _ = w.Write(b)
	_ = w.Close()
	return buf.Bytes()
}

// Decompress is the inverse of Compress.
func Decompress(b []byte) ([]byte, error) {
	r, err := zlib.NewReader(bytes.NewReader(b))
	if err != nil {
		return nil, fmt.Errorf("instruction: decompress: %w", err)
	}
	defer r.Close()
	out, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("instruction: decompress: %w", err)
	}
	return out, nil
}

// Encode is the combined compress+serialize step the TCP transport uses to
// turn an Instruction into wire bytes. UDP never compresses (see Serialize)
// since each fragment is already small and independently encrypted.
func Encode(i Instruction) ([]byte, error) {
	raw, err := Serialize(i)
	if err != nil {
		return nil, err
	}
	return Compress(raw), nil
}

// Decode is the inverse of Encode.
func Decode(b []byte) (Instruction, error) {
	raw, err := Decompress(b)
	if err != nil {
		return Instruction{}, err
	}
	return Parse(raw)
}
