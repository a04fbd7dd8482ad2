package instruction

import (
	"bytes"
	"testing"
)

func TestSerializeParseRoundTrip(t *testing.T) {
	in := Instruction{OldNum: 1, NewNum: 2, AckNum: 3, ThrowawayNum: 4, Payload: []byte("hi")}
	b, err := Serialize(in)
	if err != nil {
		t.Fatalf("serialize: %v", err)
	}
	out, err := Parse(b)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !equal(in, out) {
		t.Fatalf("got %+v want %+v", out, in)
	}
}

func equal(a, b Instruction) bool {
	return a.OldNum == b.OldNum && a.NewNum == b.NewNum && a.AckNum == b.AckNum &&
		a.ThrowawayNum == b.ThrowawayNum && bytes.Equal(a.Payload, b.Payload)
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	in := Instruction{OldNum: 5, NewNum: 6, AckNum: 0, ThrowawayNum: 0, Payload: bytes.Repeat([]byte{0xAB}, 2048)}
	enc, err := Encode(in)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	out, err := Decode(enc)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !equal(in, out) {
		t.Fatalf("round trip mismatch")
	}
}

func TestCompressDecompressEmpty(t *testing.T) {
	c := Compress(nil)
	out, err := Decompress(c)
	if err != nil {
		t.Fatalf("decompress: %v", err)
	}
	if len(out) != 0 {
		t.Fatalf("want empty, got %d bytes", len(out))
	}
}
