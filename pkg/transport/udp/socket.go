package udp

import (
	"fmt"
	"net"
	"time"

	"golang.org/x/net/ipv4"
	"golang.org/x/net/ipv6"

	"mobishell/pkg/wire"
)

// udpSocket wraps one bound *net.UDPConn together with the family-specific
// ancillary-data conn (golang.org/x/net/ipv4 or ipv6) needed to read the
// TOS/ECN octet off each datagram, per spec.md section 4.2.
type udpSocket struct {
	conn        *net.UDPConn
	pc4         *ipv4.PacketConn
	pc6         *ipv6.PacketConn
	family      wire.Family
	port        uint16
	createdAtMS uint64
}

func newSocket(conn *net.UDPConn, family wire.Family) *udpSocket {
	s := &udpSocket{conn: conn, family: family, createdAtMS: wire.NowMS()}
	if family == wire.FamilyIPv6 {
		s.pc6 = ipv6.NewPacketConn(conn)
		_ = s.pc6.SetControlMessage(ipv6.FlagTrafficClass, true)
	} else {
		s.pc4 = ipv4.NewPacketConn(conn)
		_ = s.pc4.SetControlMessage(ipv4.FlagTOS, true)
	}
	if addr, ok := conn.LocalAddr().(*net.UDPAddr); ok {
		s.port = uint16(addr.Port)
	}
	_ = disablePathMTUDiscovery(conn, family)
	return s
}

// readFrom performs one non-blocking-style read (via a read deadline one
// millisecond ahead): it returns within about a millisecond, either with a
// datagram or with an error that wraps a deadline-exceeded condition the
// caller treats as "nothing ready".
func (s *udpSocket) readFrom(buf []byte) (n int, addr net.Addr, congestionExperienced bool, err error) {
	if err := s.conn.SetReadDeadline(time.Now().Add(time.Millisecond)); err != nil {
		return 0, nil, false, err
	}
	if s.family == wire.FamilyIPv6 {
		var cm *ipv6.ControlMessage
		n, cm, addr, err = s.pc6.ReadFrom(buf)
		if cm != nil {
			congestionExperienced = cm.TrafficClass&0x03 == 0x03
		}
		return n, addr, congestionExperienced, err
	}
	var cm *ipv4.ControlMessage
	n, cm, addr, err = s.pc4.ReadFrom(buf)
	if cm != nil {
		congestionExperienced = cm.TOS&0x03 == 0x03
	}
	return n, addr, congestionExperienced, err
}

func (s *udpSocket) writeTo(buf []byte, addr net.Addr) (int, error) {
	if s.family == wire.FamilyIPv6 {
		return s.pc6.WriteTo(buf, nil, addr)
	}
	return s.pc4.WriteTo(buf, nil, addr)
}

func (s *udpSocket) close() error { return s.conn.Close() }

// bindOne tries to bind a single UDP socket on (ip, port). An empty ip
// binds the wildcard address.
func bindOne(ip string, port uint16) (*udpSocket, error) {
	var laddr net.UDPAddr
	laddr.Port = int(port)
	family := wire.FamilyIPv4
	if ip != "" {
		parsed := net.ParseIP(ip)
		if parsed == nil {
			return nil, fmt.Errorf("%w: %q is not a numeric IP", wire.ErrInvalidConfig, ip)
		}
		laddr.IP = parsed
		family = wire.FamilyOf(parsed)
	}

	network := "udp4"
	if family == wire.FamilyIPv6 {
		network = "udp6"
	}
	if ip == "" {
		network = "udp" // wildcard: let the OS pick dual-stack semantics
	}

	lc := net.ListenConfig{Control: controlDualStack(family, ip == "")}
	pc, err := lc.ListenPacket(nil, network, laddr.String())
	if err != nil {
		return nil, err
	}
	conn, ok := pc.(*net.UDPConn)
	if !ok {
		pc.Close()
		return nil, fmt.Errorf("udp: unexpected packet conn type %T", pc)
	}
	return newSocket(conn, family), nil
}
