// Package combined implements the Combined transport supervisor of
// spec.md section 4.4: it owns one UDP and one TCP transport, decides which
// to probe on send, and tracks which one is currently "active" (trusted)
// based on which last produced a receive.
//
// There is no teacher file this adapts directly (the teacher's
// pkg/transport/manager.go picked a canonical session by peer identity
// across a mesh of sessions, a different problem); this package follows
// the same "supervisor composes interfaces, delegates the hard work"
// shape the teacher's manager used, rebuilt around the two-channel
// failover spec.md describes.
package combined

import (
	"net"

	"mobishell/pkg/instruction"
	"mobishell/pkg/transport"
	"mobishell/pkg/wire"
)

// Active identifies which channel Combined currently trusts for
// RemoteAddr/SRTT reporting purposes (Timeout is the minimum of both
// children regardless of which is active).
type Active int

const (
	ActiveUDP Active = iota
	ActiveTCP
)

// Transport is the Combined implementation of transport.Transport.
type Transport struct {
	udp transport.Transport
	tcp transport.Transport

	active   Active
	usingUDP bool

	lastUDPSendMS uint64
	lastUDPRecvMS uint64
	lastTCPRecvMS uint64

	reportFn transport.ReportFunc
}

// New builds a Combined transport over an already-constructed UDP and TCP
// transport pair (each produced by udp.Listen/Dial and tcp.Listen/Dial).
func New(udpT, tcpT transport.Transport) *Transport {
	return &Transport{udp: udpT, tcp: tcpT, active: ActiveUDP, usingUDP: true}
}

func (t *Transport) Kind() transport.Kind { return transport.KindCombined }

// Send probes whichever channel(s) spec.md's should_probe_* functions say
// are due, preferring UDP as the primary path.
func (t *Transport) Send(inst instruction.Instruction) error {
	nowMS := wire.NowMS()

	if t.usingUDP || t.shouldProbeUDP(nowMS) {
		if err := t.udp.Send(inst); err != nil {
			return err
		}
		t.lastUDPSendMS = nowMS
	}
	if !t.usingUDP || t.shouldProbeTCP(nowMS) {
		if err := t.tcp.Send(inst); err != nil {
			return err
		}
	}
	return nil
}

// shouldProbeUDP reports whether UDP looks idle from the peer's side and
// is therefore worth an extra probe even when TCP is the active channel.
func (t *Transport) shouldProbeUDP(nowMS uint64) bool {
	if t.lastTCPRecvMS != 0 && nowMS-t.lastTCPRecvMS > uint64(t.tcp.Timeout()) {
		return true
	}
	return nowMS-t.lastUDPSendMS >= 10_000
}

// shouldProbeTCP reports whether UDP appears dead, making it worth sending
// over TCP even while UDP is still the active channel. It is also true
// before UDP has ever produced a receive, allowing instant fallback.
func (t *Transport) shouldProbeTCP(nowMS uint64) bool {
	if t.lastUDPRecvMS == 0 {
		return true
	}
	return nowMS-t.lastUDPRecvMS > uint64(t.udp.Timeout())
}

// Recv tries UDP first, then TCP, switching the active channel to whichever
// produced the Instruction.
func (t *Transport) Recv() (*instruction.Instruction, error) {
	inst, err := t.udp.Recv()
	if err != nil {
		return nil, err
	}
	if inst != nil {
		t.lastUDPRecvMS = wire.NowMS()
		t.active = ActiveUDP
		t.usingUDP = true
		return inst, nil
	}

	inst, err = t.tcp.Recv()
	if err != nil {
		return nil, err
	}
	if inst != nil {
		t.lastTCPRecvMS = wire.NowMS()
		t.active = ActiveTCP
		t.usingUDP = false
		return inst, nil
	}
	return nil, nil
}

// FinishSend delegates to TCP (the only channel with a send buffer to
// drain); UDP always reports done.
func (t *Transport) FinishSend() bool { return t.tcp.FinishSend() }

// ClearSendError returns the inactive channel's error: the active channel
// is, by definition, the one currently succeeding.
func (t *Transport) ClearSendError() string {
	if t.active == ActiveUDP {
		return t.tcp.ClearSendError()
	}
	return t.udp.ClearSendError()
}

func (t *Transport) FDsNotifyRead() []net.Conn {
	out := append([]net.Conn{}, t.udp.FDsNotifyRead()...)
	return append(out, t.tcp.FDsNotifyRead()...)
}

// FDsNotifyWrite is TCP-only: UDP's Send never blocks on writability.
func (t *Transport) FDsNotifyWrite() []net.Conn { return t.tcp.FDsNotifyWrite() }

func (t *Transport) UDPPort() (uint16, bool) { return t.udp.UDPPort() }
func (t *Transport) TCPPort() (uint16, bool) { return t.tcp.TCPPort() }

func (t *Transport) Timeout() int {
	u, c := t.udp.Timeout(), t.tcp.Timeout()
	if u < c {
		return u
	}
	return c
}

func (t *Transport) SRTT() float64 {
	if t.active == ActiveUDP {
		return t.udp.SRTT()
	}
	return t.tcp.SRTT()
}

func (t *Transport) RemoteAddr() (net.Addr, bool) {
	if t.active == ActiveUDP {
		return t.udp.RemoteAddr()
	}
	return t.tcp.RemoteAddr()
}

func (t *Transport) SetLastRoundtripSuccess(ts uint64) {
	t.udp.SetLastRoundtripSuccess(ts)
	t.tcp.SetLastRoundtripSuccess(ts)
}

func (t *Transport) SetReportFunc(fn transport.ReportFunc) {
	t.reportFn = fn
	t.udp.SetReportFunc(fn)
	t.tcp.SetReportFunc(fn)
}

func (t *Transport) Close() error {
	err1 := t.udp.Close()
	err2 := t.tcp.Close()
	if err1 != nil {
		return err1
	}
	return err2
}
