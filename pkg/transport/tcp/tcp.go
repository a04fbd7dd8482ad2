// Package tcp implements the TCP transport of spec.md section 4.3: a
// length-framed, authenticated-stream channel with a strict in-order
// receive side and the Idle/Connecting/Established/Closed state machine.
//
// Adapted from the teacher's pkg/transport/tcp/tcp.go (bufio.Reader/Writer
// over a blocking net.Conn, with a background accept/recv goroutine per
// session): this transport instead follows spec.md's single-threaded,
// caller-driven model. Non-blocking reads/writes are emulated with a
// deadline one millisecond ahead set immediately before each syscall, since
// Go's net package has no MSG_DONTWAIT equivalent (a deadline of exactly
// time.Now() is already expired and fails without attempting the syscall);
// this keeps the connection itself in ordinary blocking mode for the
// runtime's netpoller while returning to the caller within about a
// millisecond when nothing is ready.
package tcp

import (
	"encoding/binary"
	"errors"
	"fmt"
	"net"
	"time"

	"mobishell/pkg/instruction"
	"mobishell/pkg/transport"
	"mobishell/pkg/wire"
)

// State is the TCP transport's connection state machine.
type State int

const (
	Idle State = iota
	Connecting
	Established
	Closed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Connecting:
		return "connecting"
	case Established:
		return "established"
	case Closed:
		return "closed"
	default:
		return "unknown"
	}
}

const lengthPrefixSize = 4

// Transport is the TCP implementation of transport.Transport.
type Transport struct {
	server bool
	state  State

	listener *net.TCPListener // server only, held across a detach
	conn     *net.TCPConn

	sess sessionCipher

	peer *transport.PeerState

	sendBuf []byte // unflushed tail of the most recent outbound frame

	rcvLenBuf  [lengthPrefixSize]byte
	rcvLenHave int
	rcvBody    []byte
	rcvBodyLen int
	rcvHave    int

	sendErr  string
	reportFn transport.ReportFunc
}

// sessionCipher is the subset of *session.Session this package needs,
// named locally so this file reads independent of the session package's
// exact type.
type sessionCipher interface {
	Encrypt(nonce uint64, plaintext []byte) []byte
	Decrypt(msg []byte) (nonce uint64, plaintext []byte, err error)
}

// Listen starts a server-side TCP transport bound to (desiredIP, port) and
// returns an Idle transport; call Accept in the caller's readiness loop to
// progress it to Established. The listener uses net.ListenTCP's system
// default accept backlog; transport.TCPListenBacklog is not applied.
func Listen(sess sessionCipher, desiredIP string, port uint16) (*Transport, error) {
	addr, err := wire.ResolveNumericTCP(desiredIP, port)
	if err != nil {
		return nil, err
	}
	l, err := net.ListenTCP("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", transport.ErrBindFailure, err)
	}
	return &Transport{
		server:   true,
		state:    Idle,
		listener: l,
		sess:     sess,
		peer:     transport.NewPeerState(true),
	}, nil
}

// Dial starts a client-side connect and returns an Established transport
// once the TCP handshake completes; the caller's readiness loop drives
// Send/Recv afterward. A failed connect returns an error, matching
// spec.md's "others become send_error and remain unestablished" for the
// dial path itself.
func Dial(sess sessionCipher, ip string, port uint16) (*Transport, error) {
	addr, err := wire.ResolveNumericTCP(ip, port)
	if err != nil {
		return nil, err
	}
	conn, err := net.DialTCP("tcp", nil, addr)
	if err != nil {
		return nil, fmt.Errorf("tcp dial: %w", err)
	}
	_ = conn.SetNoDelay(true)
	return &Transport{
		server: false,
		state:  Established,
		conn:   conn,
		sess:   sess,
		peer:   transport.NewPeerState(false),
	}, nil
}

func (t *Transport) Kind() transport.Kind { return transport.KindTCP }

// Accept performs one non-blocking accept attempt on the server's listening
// socket. It is a no-op once a client is already connected (one client at a
// time, per spec.md's "the server holds the listening socket across a
// detach and accepts a new client").
func (t *Transport) Accept() error {
	if !t.server || t.state == Established {
		return nil
	}
	if err := t.listener.SetDeadline(time.Now().Add(time.Millisecond)); err != nil {
		return err
	}
	conn, err := t.listener.AcceptTCP()
	if err != nil {
		return nil // EAGAIN or a transient accept error; retry next call
	}
	_ = conn.SetNoDelay(true)
	t.conn = conn
	t.state = Established
	t.resetReceiveState()
	return nil
}

// Send implements spec.md's send algorithm: drain any partial prior send
// first, then compress+serialize+encrypt+length-prefix the Instruction and
// attempt one non-blocking write.
func (t *Transport) Send(inst instruction.Instruction) error {
	if t.state != Established {
		t.emit(transport.SendDropped{Kind: transport.KindTCP, Reason: "not established"})
		return nil
	}
	if len(t.sendBuf) > 0 {
		if !t.FinishSend() {
			t.emit(transport.SendDropped{Kind: transport.KindTCP, Reason: "prior send still draining"})
			return nil
		}
	}

	payload, err := instruction.Encode(inst)
	if err != nil {
		t.emit(transport.SendDropped{Kind: transport.KindTCP, Reason: err.Error()})
		return nil
	}
	nowMS := wire.NowMS()
	ts := wire.Timestamp16(nowMS)
	tsReply := t.peer.OutgoingTimestampReply(nowMS)
	plaintext := transport.EncodePacketPlaintext(ts, tsReply, payload)
	ciphertext := t.sess.Encrypt(t.peer.NextNonce(), plaintext)

	frame := make([]byte, lengthPrefixSize+len(ciphertext))
	binary.BigEndian.PutUint32(frame[:lengthPrefixSize], uint32(len(ciphertext)))
	copy(frame[lengthPrefixSize:], ciphertext)

	n, werr := t.writeNonBlocking(frame)
	if werr != nil && !(n > 0 && isWouldBlock(werr)) {
		if isWouldBlock(werr) {
			t.emit(transport.SendDropped{Kind: transport.KindTCP, Reason: "socket buffer full"})
			return nil
		}
		t.teardown(werr.Error())
		return nil
	}
	if n < len(frame) {
		t.sendBuf = append([]byte(nil), frame[n:]...)
		return nil
	}
	t.emit(transport.TCPSendReport{Bytes: len(frame)})
	return nil
}

// FinishSend attempts to flush any buffered outbound bytes. It returns true
// once the buffer is empty (including the trivial case of already empty).
func (t *Transport) FinishSend() bool {
	if len(t.sendBuf) == 0 {
		return true
	}
	if t.state != Established {
		return false
	}
	n, err := t.writeNonBlocking(t.sendBuf)
	t.sendBuf = t.sendBuf[n:]
	if err != nil {
		if isWouldBlock(err) {
			return false
		}
		t.teardown(err.Error())
		return false
	}
	return len(t.sendBuf) == 0
}

// Recv implements spec.md's two-phase fill: length prefix, then body.
func (t *Transport) Recv() (*instruction.Instruction, error) {
	if t.server {
		if err := t.Accept(); err != nil {
			return nil, err
		}
	}
	if t.state != Established {
		return nil, nil
	}

	if t.rcvLenHave < lengthPrefixSize {
		n, err := t.readNonBlocking(t.rcvLenBuf[t.rcvLenHave:])
		if err != nil {
			t.handleRecvErr(err)
			return nil, nil
		}
		if n == 0 {
			return nil, nil
		}
		t.rcvLenHave += n
		if t.rcvLenHave < lengthPrefixSize {
			return nil, nil
		}
		length := binary.BigEndian.Uint32(t.rcvLenBuf[:])
		if length == 0 || length > 1<<24 {
			t.emit(transport.ProtocolViolation{Kind: transport.KindTCP, Reason: "invalid frame length"})
			t.teardown("invalid frame length")
			return nil, nil
		}
		t.rcvBodyLen = int(length)
		t.rcvBody = make([]byte, t.rcvBodyLen)
		t.rcvHave = 0
	}

	n, err := t.readNonBlocking(t.rcvBody[t.rcvHave:])
	if err != nil {
		t.handleRecvErr(err)
		return nil, nil
	}
	if n == 0 {
		return nil, nil
	}
	t.rcvHave += n
	if t.rcvHave < t.rcvBodyLen {
		return nil, nil
	}

	frame := t.rcvBody
	t.resetReceiveState()

	nowMS := wire.NowMS()
	nonce, plaintext, derr := t.sess.Decrypt(frame)
	if derr != nil {
		t.emit(transport.ProtocolViolation{Kind: transport.KindTCP, Reason: "authentication failed"})
		return nil, nil
	}
	seq, dir := wire.UnpackNonce(nonce)
	if !t.peer.CheckDirection(dir) {
		t.emit(transport.ProtocolViolation{Kind: transport.KindTCP, Reason: "wrong direction bit"})
		return nil, nil
	}
	ts, tsReply, payload, perr := transport.DecodePacketPlaintext(plaintext)
	if perr != nil {
		t.emit(transport.ProtocolViolation{Kind: transport.KindTCP, Reason: perr.Error()})
		return nil, nil
	}
	ok, _ := t.peer.Accept(seq, ts, tsReply, false, nowMS, true)
	if !ok {
		t.emit(transport.ProtocolViolation{Kind: transport.KindTCP, Reason: "out-of-order sequence on ordered stream"})
		return nil, nil
	}

	inst, derr := instruction.Decode(payload)
	if derr != nil {
		t.emit(transport.ProtocolViolation{Kind: transport.KindTCP, Reason: derr.Error()})
		return nil, nil
	}
	t.emit(transport.TCPRecvReport{Bytes: len(frame) + lengthPrefixSize})
	return &inst, nil
}

func (t *Transport) resetReceiveState() {
	t.rcvLenHave = 0
	t.rcvBody = nil
	t.rcvBodyLen = 0
	t.rcvHave = 0
}

func (t *Transport) handleRecvErr(err error) {
	if isWouldBlock(err) {
		return
	}
	t.teardown(err.Error())
}

// teardown implements set_connection_established(false): discards partial
// receive state, closes the client socket, and resets send-buffer state.
// The server keeps its listening socket and will Accept a new client.
func (t *Transport) teardown(reason string) {
	if t.conn != nil {
		_ = t.conn.Close()
		t.conn = nil
	}
	t.sendBuf = nil
	t.resetReceiveState()
	t.sendErr = reason
	if t.server {
		t.state = Idle
	} else {
		t.state = Closed
	}
}

func (t *Transport) writeNonBlocking(b []byte) (int, error) {
	if err := t.conn.SetWriteDeadline(time.Now().Add(time.Millisecond)); err != nil {
		return 0, err
	}
	return t.conn.Write(b)
}

func (t *Transport) readNonBlocking(b []byte) (int, error) {
	if err := t.conn.SetReadDeadline(time.Now().Add(time.Millisecond)); err != nil {
		return 0, err
	}
	n, err := t.conn.Read(b)
	if err != nil {
		return n, err
	}
	if n == 0 {
		return 0, errors.New("tcp: connection closed")
	}
	return n, nil
}

func (t *Transport) ClearSendError() string {
	e := t.sendErr
	t.sendErr = ""
	return e
}

func (t *Transport) FDsNotifyRead() []net.Conn {
	if t.conn != nil {
		return []net.Conn{t.conn}
	}
	return nil
}

func (t *Transport) FDsNotifyWrite() []net.Conn {
	if t.conn != nil && len(t.sendBuf) > 0 {
		return []net.Conn{t.conn}
	}
	return nil
}

func (t *Transport) UDPPort() (uint16, bool) { return 0, false }

func (t *Transport) TCPPort() (uint16, bool) {
	if t.server && t.listener != nil {
		if addr, ok := t.listener.Addr().(*net.TCPAddr); ok {
			return uint16(addr.Port), true
		}
	}
	if t.conn != nil {
		if addr, ok := t.conn.LocalAddr().(*net.TCPAddr); ok {
			return uint16(addr.Port), true
		}
	}
	return 0, false
}

func (t *Transport) Timeout() int  { return t.peer.RTT.Timeout() }
func (t *Transport) SRTT() float64 { return t.peer.RTT.SRTT() }

func (t *Transport) RemoteAddr() (net.Addr, bool) {
	if t.conn == nil {
		return nil, false
	}
	return t.conn.RemoteAddr(), true
}

// SetLastRoundtripSuccess is a no-op on TCP: the kernel's own retransmission
// and ordering guarantees make client-side port hopping meaningless here.
func (t *Transport) SetLastRoundtripSuccess(ts uint64) {}

func (t *Transport) SetReportFunc(fn transport.ReportFunc) { t.reportFn = fn }

func (t *Transport) Close() error {
	t.state = Closed
	var firstErr error
	if t.conn != nil {
		firstErr = t.conn.Close()
	}
	if t.listener != nil {
		if err := t.listener.Close(); err != nil && firstErr == nil {
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

// isWouldBlock reports whether err is the non-blocking "try again" signal
// this package's short-deadline-before-each-syscall idiom produces,
// the Go-idiomatic stand-in for EAGAIN/EWOULDBLOCK.
func isWouldBlock(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
