package transport

import (
	"mobishell/pkg/rtt"
	"mobishell/pkg/wire"
)

// PeerState is the per-transport timing/sequencing state spec.md section 3
// describes ("Transport state (per transport)"), factored out so the UDP
// and TCP transports share one implementation of the seq/timestamp/RTT
// bookkeeping instead of duplicating it.
type PeerState struct {
	sendSeq uint64
	sendDir wire.Direction
	recvDir wire.Direction

	expectedRecvSeq uint64

	hasSavedTimestamp       bool
	savedTimestamp          uint16
	savedTimestampRecvdAtMS uint64

	lastHeardMS uint64

	RTT *rtt.Estimator
}

// NewPeerState builds the state for one side of a session. A server sends
// ToClient packets and expects ToServer packets from its peer; a client is
// the mirror image.
func NewPeerState(isServer bool) *PeerState {
	ps := &PeerState{RTT: rtt.New()}
	if isServer {
		ps.sendDir = wire.ToClient
		ps.recvDir = wire.ToServer
	} else {
		ps.sendDir = wire.ToServer
		ps.recvDir = wire.ToClient
	}
	return ps
}

// NextNonce returns the nonce for the next outgoing packet and advances the
// monotone send counter. Per spec.md's invariant 3, nonces on one transport
// are strictly increasing.
func (p *PeerState) NextNonce() uint64 {
	n := wire.PackNonce(p.sendSeq, p.sendDir)
	p.sendSeq++
	return n
}

// CheckDirection implements the anti-reflection invariant: a received
// packet's direction bit must equal the direction we expect our peer to
// send.
func (p *PeerState) CheckDirection(dir wire.Direction) bool {
	return dir == p.recvDir
}

// LastHeardMS returns the timestamp (ms) of the last accepted receive.
func (p *PeerState) LastHeardMS() uint64 { return p.lastHeardMS }

// ExpectedRecvSeq returns the next seq this side expects to accept as "new".
func (p *PeerState) ExpectedRecvSeq() uint64 { return p.expectedRecvSeq }

// Accept folds one received packet's seq/timestamp/timestamp_reply into the
// state. strict=true is the TCP rule (seq must be >= expected, or it's a
// protocol violation); strict=false is UDP's rule (an out-of-order seq is
// still delivered as payload, just without a timing update).
//
// ok reports whether the packet should be delivered at all (false only
// under strict mode with seq < expected). timingUpdated reports whether
// expected_receiver_seq/RTT/saved timestamp were advanced.
func (p *PeerState) Accept(seq uint64, ts, tsReply uint16, congestionExperienced bool, nowMS uint64, strict bool) (ok, timingUpdated bool) {
	if seq < p.expectedRecvSeq {
		if strict {
			return false, false
		}
		return true, false
	}

	p.expectedRecvSeq = seq + 1

	if ts != wire.NoTimestamp {
		st := ts
		if congestionExperienced {
			st = uint16(uint32(st) - CongestionTimestampPenaltyMS)
		}
		p.savedTimestamp = st
		p.savedTimestampRecvdAtMS = nowMS
		p.hasSavedTimestamp = true
	}

	if tsReply != wire.NoTimestamp {
		now16 := wire.Timestamp16(nowMS)
		r := wire.TimestampDiff(now16, tsReply)
		p.RTT.Sample(float64(r))
	}

	p.lastHeardMS = nowMS
	return true, true
}

// OutgoingTimestampReply computes the timestamp_reply field for the next
// outgoing packet: the peer's last timestamp corrected for how long we've
// held it, or the sentinel if we held it too long or never got one.
func (p *PeerState) OutgoingTimestampReply(nowMS uint64) uint16 {
	if !p.hasSavedTimestamp {
		return wire.NoTimestamp
	}
	held := nowMS - p.savedTimestampRecvdAtMS
	if held >= 1000 {
		p.hasSavedTimestamp = false
		return wire.NoTimestamp
	}
	reply := uint16(uint32(p.savedTimestamp) + uint32(held))
	p.hasSavedTimestamp = false
	return reply
}
