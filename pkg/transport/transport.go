// Package transport defines the common contract every concrete transport
// (UDP, TCP, Combined) implements, plus the shared error taxonomy, report
// types, and tuning constants from spec.md sections 4.1, 6, and 7.
//
// Adapted from the teacher's pkg/transport/transport.go: the same
// "interface at the boundary, concrete struct underneath" shape, but the
// session/stream/multiplexing model there (built for a peer-mesh of
// long-lived sessions) is replaced by the single-client-or-server,
// non-blocking, lazily-assembling contract spec.md describes.
package transport

import (
	"net"

	"mobishell/pkg/instruction"
)

// Kind identifies which concrete transport is in play, used by logging and
// by the Combined supervisor's reports.
type Kind int

const (
	KindUDP Kind = iota
	KindTCP
	KindCombined
)

func (k Kind) String() string {
	switch k {
	case KindUDP:
		return "udp"
	case KindTCP:
		return "tcp"
	case KindCombined:
		return "combined"
	default:
		return "unknown"
	}
}

// Transport is the polymorphic contract spec.md section 4.1 describes. All
// operations are non-blocking: Recv returns immediately with (nil, nil) if
// no Instruction is ready, and Send never blocks on the network.
type Transport interface {
	Kind() Kind

	// Send best-effort emits inst. The only error it ever returns is a
	// FatalIO condition that has torn the transport down; transient
	// failures and intentional drops are reported via ClearSendError and
	// the report function instead, never as a returned error.
	Send(inst instruction.Instruction) error

	// Recv returns at most one fully assembled Instruction. A nil, nil
	// result means "nothing ready yet", not an error.
	Recv() (*instruction.Instruction, error)

	// FinishSend drains any buffered outbound bytes (TCP only; UDP always
	// reports true). Returns true once the buffer is empty.
	FinishSend() bool

	// ClearSendError returns and clears the last non-fatal I/O error
	// message, if any.
	ClearSendError() string

	// FDsNotifyRead/FDsNotifyWrite return the underlying connections the
	// caller's readiness loop should watch. This is this repo's
	// Go-idiomatic stand-in for spec.md's raw `fds_notify_read()` /
	// `fds_notify_write()`: Go's net package already multiplexes actual OS
	// descriptors through the runtime's netpoller, so exposing raw fds
	// would fight the runtime rather than cooperate with it (see
	// DESIGN.md).
	FDsNotifyRead() []net.Conn
	FDsNotifyWrite() []net.Conn

	// UDPPort/TCPPort return the local bound port for each family, if
	// this transport has one. Per spec.md's open question, every concrete
	// transport answers both: UDP transports answer ok=false for TCPPort
	// and vice versa; Combined answers both when its children are bound.
	UDPPort() (port uint16, ok bool)
	TCPPort() (port uint16, ok bool)

	// Timeout returns the current RTO in milliseconds.
	Timeout() int
	// SRTT returns the current smoothed RTT estimate in milliseconds.
	SRTT() float64

	RemoteAddr() (net.Addr, bool)

	// SetLastRoundtripSuccess informs a UDP transport that a full round
	// trip completed at ts (ms), inhibiting port hopping. A no-op on TCP.
	SetLastRoundtripSuccess(ts uint64)

	// SetReportFunc installs an observer invoked on every send/recv event
	// worth logging.
	SetReportFunc(fn ReportFunc)

	// Close releases all sockets held by this transport.
	Close() error
}
