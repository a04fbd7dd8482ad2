package session

import (
	"bytes"
	"testing"

	"mobishell/pkg/wire"
)

func testKey() []byte {
	return bytes.Repeat([]byte{0x42}, 32)
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	s, err := New(testKey())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	nonce := wire.PackNonce(7, wire.ToServer)
	msg := s.Encrypt(nonce, []byte("hello mobishell"))

	gotNonce, pt, err := s.Decrypt(msg)
	if err != nil {
		t.Fatalf("decrypt: %v", err)
	}
	if gotNonce != nonce {
		t.Fatalf("nonce mismatch: want %d got %d", nonce, gotNonce)
	}
	if string(pt) != "hello mobishell" {
		t.Fatalf("plaintext mismatch: %q", pt)
	}
}

func TestDecryptRejectsTamperedMessage(t *testing.T) {
	s, _ := New(testKey())
	msg := s.Encrypt(wire.PackNonce(1, wire.ToClient), []byte("payload"))
	msg[len(msg)-1] ^= 0xFF

	if _, _, err := s.Decrypt(msg); err == nil {
		t.Fatalf("want authentication error on tampered message")
	}
}

func TestDecryptRejectsWrongKey(t *testing.T) {
	s1, _ := New(testKey())
	other := bytes.Repeat([]byte{0x99}, 32)
	s2, _ := New(other)

	msg := s1.Encrypt(wire.PackNonce(2, wire.ToServer), []byte("secret"))
	if _, _, err := s2.Decrypt(msg); err == nil {
		t.Fatalf("want error decrypting with wrong key")
	}
}

func TestNewFromBase64RoundTrip(t *testing.T) {
	b64, err := GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	s, err := NewFromBase64(b64)
	if err != nil {
		t.Fatalf("from base64: %v", err)
	}
	msg := s.Encrypt(wire.PackNonce(0, wire.ToServer), []byte("x"))
	if _, _, err := s.Decrypt(msg); err != nil {
		t.Fatalf("round trip: %v", err)
	}
}
