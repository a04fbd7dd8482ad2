package rtt

import "testing"

func TestInitialState(t *testing.T) {
	e := New()
	if e.Hit() {
		t.Fatalf("fresh estimator should not report a hit")
	}
	if e.SRTT() != 1000 || e.RTTVar() != 500 {
		t.Fatalf("got srtt=%v rttvar=%v", e.SRTT(), e.RTTVar())
	}
	if got := e.Timeout(); got != 1000 {
		t.Fatalf("initial timeout want 1000 got %d", got)
	}
}

func TestFirstSampleSetsSRTTAndHalfAsVar(t *testing.T) {
	e := New()
	e.Sample(200)
	if e.SRTT() != 200 || e.RTTVar() != 100 {
		t.Fatalf("got srtt=%v rttvar=%v", e.SRTT(), e.RTTVar())
	}
}

func TestSamplesAtOrAboveCeilingAreDiscarded(t *testing.T) {
	e := New()
	e.Sample(5000)
	if e.Hit() {
		t.Fatalf("5000ms sample should be discarded")
	}
	e.Sample(100)
	before := e.SRTT()
	e.Sample(9000)
	if e.SRTT() != before {
		t.Fatalf("oversized sample mutated srtt")
	}
}

func TestTimeoutClamp(t *testing.T) {
	if got := TimeoutFor(0, 0); got != 50 {
		t.Fatalf("want clamp to 50, got %d", got)
	}
	if got := TimeoutFor(10000, 10000); got != 1000 {
		t.Fatalf("want clamp to 1000, got %d", got)
	}
}

func TestTimeoutMatchesInvariant(t *testing.T) {
	e := New()
	for _, s := range []float64{120, 80, 300, 45} {
		e.Sample(s)
		want := TimeoutFor(e.SRTT(), e.RTTVar())
		if got := e.Timeout(); got != want {
			t.Fatalf("timeout invariant broken: got %d want %d", got, want)
		}
	}
}
