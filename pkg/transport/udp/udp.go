// Package udp implements the UDP transport of spec.md section 4.2: a
// fragmenting, ECN-aware, authenticated-datagram channel with server-side
// client roaming and client-side port hopping.
//
// Adapted from the teacher's goroutine/channel-based pkg/transport/udp/udp.go
// session demux: this transport instead follows spec.md's single-threaded,
// caller-driven model (no background goroutines, no mutexes), with
// Recv/Send intended to be called from one external readiness loop that
// watches FDsNotifyRead/FDsNotifyWrite.
package udp

import (
	"errors"
	"fmt"
	"net"

	"mobishell/pkg/fragment"
	"mobishell/pkg/instruction"
	"mobishell/pkg/session"
	"mobishell/pkg/transport"
	"mobishell/pkg/wire"
)

// fragmentHeaderOverhead is the wire overhead fragment.Fragment.Encode adds
// on top of each chunk's contents.
const fragmentHeaderOverhead = 4

// plaintextOverhead is transport.EncodePacketPlaintext's fixed prefix.
const plaintextOverhead = 4

// nonceOverhead is the cleartext 8-byte nonce session.Encrypt prepends.
const nonceOverhead = 8

// Transport is the UDP implementation of transport.Transport.
type Transport struct {
	sess   *session.Session
	server bool

	sockets []*udpSocket // newest last
	family  wire.Family

	portRange  wire.PortRange
	desiredIP  string
	remoteAddr *net.UDPAddr
	hasRemote  bool

	mtu int

	peer       *transport.PeerState
	fragmenter *fragment.Fragmenter
	reassembl  *fragment.Reassembler

	lastHeardMS              uint64
	lastPortChoiceMS         uint64
	lastRoundtripSuccessMS   uint64
	haveLastRoundtripSuccess bool

	sendErr  string
	reportFn transport.ReportFunc

	closed bool
}

// Listen binds a server-side UDP transport, trying each port in portRange
// against desiredIP in turn, falling back to the wildcard address if every
// attempt against desiredIP fails (spec.md section 4.2).
func Listen(sess *session.Session, desiredIP string, portRange wire.PortRange) (*Transport, error) {
	t := &Transport{
		sess:       sess,
		server:     true,
		portRange:  portRange,
		desiredIP:  desiredIP,
		peer:       transport.NewPeerState(true),
		fragmenter: fragment.NewFragmenter(),
		reassembl:  fragment.NewReassembler(),
	}

	var firstErr error
	for _, port := range portRange.Ports() {
		sock, err := bindOne(desiredIP, port)
		if err == nil {
			t.sockets = append(t.sockets, sock)
			t.family = sock.family
			t.mtu = wire.DefaultMTU(sock.family)
			return t, nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	if desiredIP != "" {
		for _, port := range portRange.Ports() {
			sock, err := bindOne("", port)
			if err == nil {
				t.sockets = append(t.sockets, sock)
				t.family = sock.family
				t.mtu = wire.DefaultMTU(sock.family)
				return t, nil
			}
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return nil, fmt.Errorf("%w: %v", transport.ErrBindFailure, firstErr)
}

// Dial opens a client-side UDP transport bound to a port in clientPortRange
// and pointed at (ip, port).
func Dial(sess *session.Session, ip string, port uint16, clientPortRange wire.PortRange) (*Transport, error) {
	remote, err := wire.ResolveNumericUDP(ip, port)
	if err != nil {
		return nil, err
	}
	t := &Transport{
		sess:       sess,
		server:     false,
		portRange:  clientPortRange,
		remoteAddr: remote,
		hasRemote:  true,
		peer:       transport.NewPeerState(false),
		fragmenter: fragment.NewFragmenter(),
		reassembl:  fragment.NewReassembler(),
	}

	var firstErr error
	for _, p := range clientPortRange.Ports() {
		sock, err := bindOne("", p)
		if err == nil {
			t.sockets = append(t.sockets, sock)
			t.family = wire.FamilyOf(remote.IP)
			t.mtu = wire.DefaultMTU(t.family)
			return t, nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	return nil, fmt.Errorf("%w: %v", transport.ErrBindFailure, firstErr)
}

func (t *Transport) Kind() transport.Kind { return transport.KindUDP }

// Send fragments inst, encrypts each fragment, and sends it from the
// newest-bound socket to the current remote address.
func (t *Transport) Send(inst instruction.Instruction) error {
	nowMS := wire.NowMS()
	if t.server && t.hasRemote && nowMS-t.lastHeardMS > transport.ServerAssociationTimeoutMS {
		t.hasRemote = false
	}
	if !t.hasRemote {
		t.emit(transport.SendDropped{Kind: transport.KindUDP, Reason: "no remote address yet"})
		return nil
	}

	payload, err := instruction.Serialize(inst)
	if err != nil {
		t.emit(transport.SendDropped{Kind: transport.KindUDP, Reason: err.Error()})
		return nil
	}

	chunk := t.mtu - plaintextOverhead - nonceOverhead - session.Overhead - fragmentHeaderOverhead
	if chunk <= 0 {
		t.emit(transport.SendDropped{Kind: transport.KindUDP, Reason: "MTU too small for any payload"})
		return nil
	}

	frags, err := t.fragmenter.Split(payload, chunk)
	if err != nil {
		t.emit(transport.SendDropped{Kind: transport.KindUDP, Reason: err.Error()})
		return nil
	}

	sock := t.sockets[len(t.sockets)-1]
	for _, f := range frags {
		ts := wire.Timestamp16(nowMS)
		tsReply := t.peer.OutgoingTimestampReply(nowMS)
		plaintext := transport.EncodePacketPlaintext(ts, tsReply, f.Encode())
		packet := t.sess.Encrypt(t.peer.NextNonce(), plaintext)

		if _, err := sock.writeTo(packet, t.remoteAddr); err != nil {
			if isEMSGSIZE(err) {
				t.mtu = wire.FallbackMTU
				t.sendErr = err.Error()
				t.emit(transport.SendDropped{Kind: transport.KindUDP, Reason: "EMSGSIZE, falling back to minimal MTU"})
				break
			}
			if isFatal(err) {
				return wrapFatalErr("udp send", err)
			}
			t.sendErr = err.Error()
			t.emit(transport.SendDropped{Kind: transport.KindUDP, Reason: err.Error()})
			continue
		}
	}

	t.maybeHopPort(nowMS)
	return nil
}

// Recv reads at most one datagram from each held socket per call
// (newest-first), decrypts and validates it, and feeds its fragment into the
// reassembler, returning as soon as one fragment completes an Instruction.
func (t *Transport) Recv() (*instruction.Instruction, error) {
	t.pruneOldSockets()

	buf := make([]byte, 65535)
	for i := len(t.sockets) - 1; i >= 0; i-- {
		sock := t.sockets[i]
		n, addr, congested, err := sock.readFrom(buf)
		if err != nil {
			if isTimeout(err) {
				continue
			}
			if isFatal(err) {
				return nil, wrapFatalErr("udp recv", err)
			}
			continue
		}

		nowMS := wire.NowMS()
		nonce, plaintext, derr := t.sess.Decrypt(buf[:n])
		if derr != nil {
			t.emit(transport.ProtocolViolation{Kind: transport.KindUDP, Reason: "authentication failed"})
			continue
		}
		seq, dir := wire.UnpackNonce(nonce)
		if !t.peer.CheckDirection(dir) {
			t.emit(transport.ProtocolViolation{Kind: transport.KindUDP, Reason: "wrong direction bit"})
			continue
		}
		ts, tsReply, fragBytes, perr := transport.DecodePacketPlaintext(plaintext)
		if perr != nil {
			t.emit(transport.ProtocolViolation{Kind: transport.KindUDP, Reason: perr.Error()})
			continue
		}

		ok, timingUpdated := t.peer.Accept(seq, ts, tsReply, congested, nowMS, false)
		if !ok {
			continue
		}

		// last_heard and roaming only move forward on in-order packets,
		// matching the original recv_one: a stale/out-of-order datagram is
		// still delivered but never refreshes liveness or re-homes the peer.
		if timingUpdated {
			t.adoptRemote(addr, i, nowMS)
		}
		t.emit(transport.UDPRecvReport{Bytes: n, Addr: addr, CongestionExperienced: congested})

		f, ferr := fragment.Decode(fragBytes)
		if ferr != nil {
			t.emit(transport.ProtocolViolation{Kind: transport.KindUDP, Reason: ferr.Error()})
			continue
		}
		assembled, done := t.reassembl.Add(f)
		if !done {
			continue
		}
		inst, derr := instruction.Parse(assembled)
		if derr != nil {
			t.emit(transport.ProtocolViolation{Kind: transport.KindUDP, Reason: derr.Error()})
			continue
		}
		return &inst, nil
	}
	return nil, nil
}

// adoptRemote implements server-side roaming: when the server receives a
// validly authenticated packet from a new source address, it starts sending
// future packets there instead. It also promotes the receiving socket to
// newest, so future sends prefer the socket the peer is actually using.
func (t *Transport) adoptRemote(addr net.Addr, idx int, nowMS uint64) {
	udpAddr, ok := addr.(*net.UDPAddr)
	if !ok {
		return
	}
	if t.server {
		if !t.hasRemote || !udpAddr.IP.Equal(t.remoteAddr.IP) || udpAddr.Port != t.remoteAddr.Port {
			t.remoteAddr = udpAddr
			t.hasRemote = true
		}
	}
	if idx != len(t.sockets)-1 {
		s := t.sockets[idx]
		t.sockets = append(append(t.sockets[:idx], t.sockets[idx+1:]...), s)
	}
	t.lastHeardMS = nowMS
}

// maybeHopPort opens a fresh client-side UDP socket when it has been long
// enough since the last hop and since the last confirmed round trip
// (spec.md section 4.2's port-hopping rule: stop hopping once a round trip
// has recently succeeded).
func (t *Transport) maybeHopPort(nowMS uint64) {
	if t.server {
		return
	}
	if t.haveLastRoundtripSuccess && nowMS-t.lastRoundtripSuccessMS < transport.UDPProbeTimeoutMS {
		return
	}
	if nowMS-t.lastPortChoiceMS < transport.PortHopIntervalMS {
		return
	}
	for _, p := range t.portRange.Ports() {
		sock, err := bindOne("", p)
		if err != nil {
			continue
		}
		t.sockets = append(t.sockets, sock)
		t.lastPortChoiceMS = nowMS
		if len(t.sockets) > transport.MaxPortsOpen {
			oldest := t.sockets[0]
			oldest.close()
			t.sockets = t.sockets[1:]
		}
		return
	}
}

// pruneOldSockets closes and forgets superseded sockets once they have aged
// past MaxOldSocketAgeMS, keeping at least the newest socket alive.
func (t *Transport) pruneOldSockets() {
	if len(t.sockets) <= 1 {
		return
	}
	nowMS := wire.NowMS()
	kept := t.sockets[:0]
	for i, s := range t.sockets {
		isNewest := i == len(t.sockets)-1
		if !isNewest && nowMS-s.createdAtMS > transport.MaxOldSocketAgeMS {
			s.close()
			continue
		}
		kept = append(kept, s)
	}
	t.sockets = kept
}

func (t *Transport) FinishSend() bool { return true }

func (t *Transport) ClearSendError() string {
	e := t.sendErr
	t.sendErr = ""
	return e
}

func (t *Transport) FDsNotifyRead() []net.Conn {
	out := make([]net.Conn, 0, len(t.sockets))
	for _, s := range t.sockets {
		out = append(out, s.conn)
	}
	return out
}

func (t *Transport) FDsNotifyWrite() []net.Conn { return nil }

func (t *Transport) UDPPort() (uint16, bool) {
	if len(t.sockets) == 0 {
		return 0, false
	}
	return t.sockets[len(t.sockets)-1].port, true
}

func (t *Transport) TCPPort() (uint16, bool) { return 0, false }

func (t *Transport) Timeout() int  { return t.peer.RTT.Timeout() }
func (t *Transport) SRTT() float64 { return t.peer.RTT.SRTT() }

func (t *Transport) RemoteAddr() (net.Addr, bool) {
	if !t.hasRemote {
		return nil, false
	}
	return t.remoteAddr, true
}

func (t *Transport) SetLastRoundtripSuccess(ts uint64) {
	t.lastRoundtripSuccessMS = ts
	t.haveLastRoundtripSuccess = true
}

func (t *Transport) SetReportFunc(fn transport.ReportFunc) { t.reportFn = fn }

func (t *Transport) Close() error {
	if t.closed {
		return nil
	}
	t.closed = true
	var firstErr error
	for _, s := range t.sockets {
		if err := s.close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (t *Transport) emit(r transport.Report) {
	if t.reportFn != nil {
		t.reportFn(r)
	}
}

func wrapFatalErr(op string, err error) error {
	return fmt.Errorf("%s: %w: %v", op, transport.ErrFatalIO, err)
}

func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// isFatal reports whether err represents a condition the UDP transport
// cannot recover from. A connectionless socket's read/write errors are
// overwhelmingly transient (EAGAIN on a zero read deadline, or an
// asynchronous ECONNREFUSED from an ICMP port-unreachable reflected onto a
// prior sendto) rather than a torn-down transport, so none are treated as
// fatal here: a send error is recorded for ClearSendError and reported as
// SendDropped, and a receive error skips that socket for this call without
// a report.
func isFatal(err error) bool {
	return false
}
