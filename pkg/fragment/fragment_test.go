package fragment

import (
	"bytes"
	"testing"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	f := Fragment{ID: 7, FragmentNum: 3, Final: true, Contents: []byte("abc")}
	got, err := Decode(f.Encode())
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.ID != f.ID || got.FragmentNum != f.FragmentNum || got.Final != f.Final || !bytes.Equal(got.Contents, f.Contents) {
		t.Fatalf("got %+v want %+v", got, f)
	}
}

func TestSplitSingleFragmentWhenSmall(t *testing.T) {
	fr := NewFragmenter()
	frags, err := fr.Split([]byte("hi"), 100)
	if err != nil {
		t.Fatalf("split: %v", err)
	}
	if len(frags) != 1 || !frags[0].Final {
		t.Fatalf("want one final fragment, got %+v", frags)
	}
}

func TestFragmentReassembleRoundTrip(t *testing.T) {
	data := bytes.Repeat([]byte{0xCD}, 2048)
	fr := NewFragmenter()
	frags, err := fr.Split(data, 500)
	if err != nil {
		t.Fatalf("split: %v", err)
	}
	if len(frags) != 5 {
		t.Fatalf("want 5 fragments, got %d", len(frags))
	}

	re := NewReassembler()
	var out []byte
	var ok bool
	for _, f := range frags {
		out, ok = re.Add(f)
	}
	if !ok {
		t.Fatalf("reassembly did not complete")
	}
	if !bytes.Equal(out, data) {
		t.Fatalf("reassembled data mismatch")
	}
}

func TestReassemblerAcceptsOutOfOrderFragments(t *testing.T) {
	data := []byte("0123456789")
	fr := NewFragmenter()
	frags, _ := fr.Split(data, 3)

	re := NewReassembler()
	order := []int{1, 0, 3, 2}
	var out []byte
	var ok bool
	for _, idx := range order {
		out, ok = re.Add(frags[idx])
	}
	if !ok {
		t.Fatalf("want completion after all fragments delivered")
	}
	if !bytes.Equal(out, data) {
		t.Fatalf("got %q want %q", out, data)
	}
}

func TestReassemblerDiscardsStaleID(t *testing.T) {
	re := NewReassembler()
	re.Add(Fragment{ID: 5, FragmentNum: 0, Final: true, Contents: []byte("new")})
	if out, ok := re.Add(Fragment{ID: 3, FragmentNum: 0, Final: true, Contents: []byte("stale")}); ok {
		t.Fatalf("stale id should be ignored, got %q", out)
	}
}

func TestReassemblerNewerIDDiscardsInProgress(t *testing.T) {
	re := NewReassembler()
	re.Add(Fragment{ID: 1, FragmentNum: 0, Final: false, Contents: []byte("partial")})
	out, ok := re.Add(Fragment{ID: 2, FragmentNum: 0, Final: true, Contents: []byte("fresh")})
	if !ok || string(out) != "fresh" {
		t.Fatalf("got %q ok=%v, want complete fresh assembly", out, ok)
	}
}
