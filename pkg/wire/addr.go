package wire

import (
	"fmt"
	"net"
)

// Family distinguishes IPv4 from IPv6 for MTU and socket-option purposes.
type Family int

const (
	FamilyIPv4 Family = iota
	FamilyIPv6
)

// DefaultMTU is the path MTU this transport assumes before any EMSGSIZE
// fallback: 1280 bytes minus the per-family header overhead.
const (
	targetPathMTU  = 1280
	ipv4HeaderOverhead = 20 + 8
	ipv6HeaderOverhead = 40 + 16 + 8
	// FallbackMTU is substituted on EMSGSIZE, per spec.
	FallbackMTU = 500
)

// DefaultMTU returns the starting MTU for the given family.
func DefaultMTU(f Family) int {
	if f == FamilyIPv6 {
		return targetPathMTU - ipv6HeaderOverhead
	}
	return targetPathMTU - ipv4HeaderOverhead
}

// FamilyOf inspects a net.IP and reports its address family. An IP that
// IsUnspecified and 4-in-6 mapped is treated as IPv4.
func FamilyOf(ip net.IP) Family {
	if ip.To4() != nil {
		return FamilyIPv4
	}
	return FamilyIPv6
}

// ResolveNumericUDP resolves "ip:port" without performing DNS lookups, as
// required for the client connect path (spec.md 4.2: "resolve numerically,
// no DNS").
func ResolveNumericUDP(ip string, port uint16) (*net.UDPAddr, error) {
	parsed := net.ParseIP(ip)
	if ip != "" && parsed == nil {
		return nil, fmt.Errorf("%w: %q is not a numeric IP address", ErrInvalidConfig, ip)
	}
	return &net.UDPAddr{IP: parsed, Port: int(port)}, nil
}

// ResolveNumericTCP is the TCP analogue of ResolveNumericUDP.
func ResolveNumericTCP(ip string, port uint16) (*net.TCPAddr, error) {
	parsed := net.ParseIP(ip)
	if ip != "" && parsed == nil {
		return nil, fmt.Errorf("%w: %q is not a numeric IP address", ErrInvalidConfig, ip)
	}
	return &net.TCPAddr{IP: parsed, Port: int(port)}, nil
}
