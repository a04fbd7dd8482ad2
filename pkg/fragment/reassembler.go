package fragment

// Reassembler merges Fragments sharing an id back into one byte stream. It
// holds state for exactly one in-progress id at a time; a fragment with a
// newer id discards whatever was in progress, and a fragment with an older
// id is silently ignored (spec.md section 4.5).
type Reassembler struct {
	started   bool
	currentID uint16
	done      bool // true once currentID's assembly has already been delivered

	final    int // index of the final fragment, -1 if not yet seen
	received []bool
	parts    [][]byte
}

// NewReassembler returns an empty Reassembler.
func NewReassembler() *Reassembler {
	return &Reassembler{final: -1}
}

// Add feeds one fragment into the reassembler. It returns the reassembled
// bytes and true once every fragment up to the final one has arrived for
// the current id; otherwise it returns (nil, false).
func (r *Reassembler) Add(f Fragment) ([]byte, bool) {
	switch {
	case !r.started:
		r.reset(f.ID)
	case less16(f.ID, r.currentID):
		return nil, false // stale fragment from a prior Instruction
	case f.ID != r.currentID:
		r.reset(f.ID) // newer id: discard whatever was in progress
	}

	if r.done {
		return nil, false
	}

	idx := int(f.FragmentNum)
	r.growTo(idx)
	if !r.received[idx] {
		r.received[idx] = true
		r.parts[idx] = f.Contents
	}
	if f.Final {
		r.final = idx
	}

	if r.final < 0 || len(r.received) <= r.final {
		return nil, false
	}
	for i := 0; i <= r.final; i++ {
		if !r.received[i] {
			return nil, false
		}
	}

	r.done = true
	total := 0
	for i := 0; i <= r.final; i++ {
		total += len(r.parts[i])
	}
	out := make([]byte, 0, total)
	for i := 0; i <= r.final; i++ {
		out = append(out, r.parts[i]...)
	}
	return out, true
}

func (r *Reassembler) reset(id uint16) {
	r.started = true
	r.currentID = id
	r.done = false
	r.final = -1
	r.received = nil
	r.parts = nil
}

func (r *Reassembler) growTo(idx int) {
	for len(r.received) <= idx {
		r.received = append(r.received, false)
		r.parts = append(r.parts, nil)
	}
}

// less16 reports whether a comes strictly before b under the "stale ids are
// smaller" ordering the spec describes; ids are small monotone counters so
// a plain numeric comparison (no wraparound arithmetic) matches spec.md's
// "fragments with id < current are discarded".
func less16(a, b uint16) bool { return a < b }
