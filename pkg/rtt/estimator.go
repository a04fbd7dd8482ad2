// Package rtt implements the smoothed round-trip-time estimator and the
// retransmission-timeout derived from it (spec.md section 3, "Transport
// state (per transport)").
package rtt

import "math"

const (
	alpha = 1.0 / 8.0
	beta  = 1.0 / 4.0

	// maxSample discards RTT samples at or above this, per spec.
	maxSample = 5000.0

	minRTO = 50.0
	maxRTO = 1000.0
)

// Estimator tracks the smoothed RTT (SRTT) and its variance (RTTVAR),
// initialized per spec.md to (1000, 500, not yet hit).
type Estimator struct {
	srtt   float64
	rttvar float64
	hit    bool
}

// New returns an Estimator in its initial state.
func New() *Estimator {
	return &Estimator{srtt: 1000, rttvar: 500}
}

// Sample folds one RTT measurement (milliseconds) into the estimator.
// Samples >= 5000ms are discarded per spec.
func (e *Estimator) Sample(r float64) {
	if r >= maxSample {
		return
	}
	if !e.hit {
		e.srtt = r
		e.rttvar = r / 2
		e.hit = true
		return
	}
	diff := e.srtt - r
	if diff < 0 {
		diff = -diff
	}
	e.rttvar = (1-beta)*e.rttvar + beta*diff
	e.srtt = (1-alpha)*e.srtt + alpha*r
}

// SRTT returns the current smoothed RTT estimate in milliseconds.
func (e *Estimator) SRTT() float64 { return e.srtt }

// RTTVar returns the current RTT variance estimate in milliseconds.
func (e *Estimator) RTTVar() float64 { return e.rttvar }

// Hit reports whether at least one sample has been folded in.
func (e *Estimator) Hit() bool { return e.hit }

// Timeout returns the current retransmission timeout in milliseconds:
// ceil(srtt + 4*rttvar), clamped to [50, 1000].
func (e *Estimator) Timeout() int {
	return TimeoutFor(e.srtt, e.rttvar)
}

// TimeoutFor computes the RTO for an arbitrary (srtt, rttvar) pair; exposed
// standalone so callers composing estimators (e.g. Combined picking the
// min of two children) can reuse the clamp logic.
func TimeoutFor(srtt, rttvar float64) int {
	rto := math.Ceil(srtt + 4*rttvar)
	if rto < minRTO {
		rto = minRTO
	}
	if rto > maxRTO {
		rto = maxRTO
	}
	return int(rto)
}
