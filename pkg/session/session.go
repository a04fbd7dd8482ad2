// Package session implements the authenticated-encryption collaborator
// spec.md treats as an external dependency ("session.encrypt/decrypt ...
// assumed already agreed out of band"). A Session turns a 64-bit nonce plus
// plaintext into an opaque, self-describing ciphertext Message, and back,
// rejecting anything that fails authentication.
package session

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/binary"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
)

// Overhead is the number of bytes a Message carries beyond the plaintext:
// an 8-byte cleartext nonce prefix plus the AEAD's 16-byte authentication
// tag. Callers sizing fragments against an MTU budget this against.
const Overhead = 8 + chacha20poly1305.Overhead

// Session wraps a pre-shared symmetric key. It is safe for concurrent use
// by multiple goroutines only in the sense that chacha20poly1305.AEAD is;
// this repo's transports are single-threaded by design (spec.md 5) and
// never share a Session across goroutines.
type Session struct {
	aead cipher
}

// cipher is the subset of cipher.AEAD this package relies on; kept as its
// own name so tests can swap in a fake without importing crypto/cipher.
type cipher interface {
	Seal(dst, nonce, plaintext, additionalData []byte) []byte
	Open(dst, nonce, ciphertext, additionalData []byte) ([]byte, error)
	NonceSize() int
}

// New builds a Session from a raw 32-byte key.
func New(key []byte) (*Session, error) {
	if len(key) != chacha20poly1305.KeySize {
		return nil, fmt.Errorf("session: key must be %d bytes, got %d", chacha20poly1305.KeySize, len(key))
	}
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, fmt.Errorf("session: %w", err)
	}
	return &Session{aead: aead}, nil
}

// NewFromBase64 decodes a base64 key (the wire format config.SharedKey
// uses) and builds a Session.
func NewFromBase64(b64 string) (*Session, error) {
	key, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return nil, fmt.Errorf("session: decode key: %w", err)
	}
	return New(key)
}

// GenerateKey returns a fresh random key, base64-encoded, for out-of-band
// distribution (e.g. printed to a terminal for the peer to paste in).
func GenerateKey() (string, error) {
	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := rand.Read(key); err != nil {
		return "", fmt.Errorf("session: generate key: %w", err)
	}
	return base64.StdEncoding.EncodeToString(key), nil
}

// Encrypt seals plaintext under nonce (already packed with its direction
// bit by pkg/wire.PackNonce) and returns a self-describing Message: the
// 8-byte nonce in cleartext followed by ciphertext+tag.
func (s *Session) Encrypt(nonce uint64, plaintext []byte) []byte {
	var nonceBuf [8]byte
	binary.BigEndian.PutUint64(nonceBuf[:], nonce)

	aeadNonce := expandNonce(nonceBuf, s.aead.NonceSize())
	out := make([]byte, 8, 8+len(plaintext)+chacha20poly1305.Overhead)
	copy(out, nonceBuf[:])
	return s.aead.Seal(out, aeadNonce, plaintext, nil)
}

// Decrypt authenticates and opens a Message produced by Encrypt, returning
// the packed nonce (still encoding its direction bit; callers unpack it
// with pkg/wire.UnpackNonce) and the recovered plaintext. A forged or
// truncated message returns an error; per spec.md 4.1/7 this must be
// treated as a silent protocol-violation drop by the caller, never a panic
// or process abort.
func (s *Session) Decrypt(msg []byte) (nonce uint64, plaintext []byte, err error) {
	if len(msg) < 8 {
		return 0, nil, fmt.Errorf("session: message shorter than nonce prefix")
	}
	var nonceBuf [8]byte
	copy(nonceBuf[:], msg[:8])
	nonce = binary.BigEndian.Uint64(nonceBuf[:])

	aeadNonce := expandNonce(nonceBuf, s.aead.NonceSize())
	plaintext, err = s.aead.Open(nil, aeadNonce, msg[8:], nil)
	if err != nil {
		return 0, nil, fmt.Errorf("session: authentication failed: %w", err)
	}
	return nonce, plaintext, nil
}

// expandNonce left-pads the 8-byte wire nonce with zeros to the AEAD's
// required nonce size (12 bytes for chacha20poly1305).
func expandNonce(nonce8 [8]byte, size int) []byte {
	out := make([]byte, size)
	copy(out[size-8:], nonce8[:])
	return out
}
