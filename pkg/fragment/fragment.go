// Package fragment splits a serialized Instruction into MTU-sized pieces
// for UDP and reassembles them on the receive side (spec.md section 4.5).
package fragment

import (
	"fmt"

	"mobishell/pkg/wire"
)

const finalFlag = uint16(1) << 15

// headerSize is the wire size of a Fragment's own header: BE16 id,
// BE16 fragment_num|final_flag.
const headerSize = 4

// Fragment is one UDP-sized piece of a serialized Instruction.
type Fragment struct {
	ID          uint16
	FragmentNum uint16
	Final       bool
	Contents    []byte
}

// Encode returns the wire bytes for f: BE16 id | BE16 fragment_num (high
// bit = final) | contents.
func (f Fragment) Encode() []byte {
	out := make([]byte, headerSize+len(f.Contents))
	wire.PutUint16BE(out[0:2], f.ID)
	fn := f.FragmentNum &^ finalFlag
	if f.Final {
		fn |= finalFlag
	}
	wire.PutUint16BE(out[2:4], fn)
	copy(out[headerSize:], f.Contents)
	return out
}

// Decode parses a Fragment from wire bytes produced by Encode.
func Decode(b []byte) (Fragment, error) {
	if len(b) < headerSize {
		return Fragment{}, fmt.Errorf("fragment: short fragment (%d bytes)", len(b))
	}
	id := wire.Uint16BE(b[0:2])
	fn := wire.Uint16BE(b[2:4])
	f := Fragment{
		ID:          id,
		FragmentNum: fn &^ finalFlag,
		Final:       fn&finalFlag != 0,
		Contents:    append([]byte(nil), b[headerSize:]...),
	}
	return f, nil
}

// Fragmenter splits successive Instructions into Fragments, assigning each
// Instruction a fresh monotonically increasing (wrapping) id.
type Fragmenter struct {
	nextID uint16
}

// NewFragmenter returns a Fragmenter starting at id 0.
func NewFragmenter() *Fragmenter { return &Fragmenter{} }

// Split breaks data into fragments of at most chunk bytes each, all sharing
// one id, and advances the internal id counter for the next call.
func (fr *Fragmenter) Split(data []byte, chunk int) ([]Fragment, error) {
	if chunk <= 0 {
		return nil, fmt.Errorf("fragment: invalid chunk size %d", chunk)
	}
	id := fr.nextID
	fr.nextID++

	total := (len(data) + chunk - 1) / chunk
	if total == 0 {
		total = 1 // an empty Instruction body still yields one (empty) fragment
	}
	out := make([]Fragment, 0, total)
	for i := 0; i < total; i++ {
		start := i * chunk
		end := start + chunk
		if end > len(data) {
			end = len(data)
		}
		out = append(out, Fragment{
			ID:          id,
			FragmentNum: uint16(i),
			Final:       i == total-1,
			Contents:    data[start:end],
		})
	}
	return out, nil
}
