//go:build linux

package udp

import (
	"errors"
	"net"
	"syscall"

	"golang.org/x/sys/unix"

	"mobishell/pkg/wire"
)

// controlDualStack returns a net.ListenConfig.Control hook that clears
// IPV6_V6ONLY on a wildcard IPv6 bind, so one socket accepts both v4-mapped
// and native v6 traffic the way the server side of spec.md section 4.2
// expects ("a single UDP socket able to receive on all local addresses").
func controlDualStack(family wire.Family, wildcard bool) func(network, address string, c syscall.RawConn) error {
	if !wildcard || family != wire.FamilyIPv6 {
		return nil
	}
	return func(network, address string, c syscall.RawConn) error {
		var sockErr error
		err := c.Control(func(fd uintptr) {
			sockErr = unix.SetsockoptInt(int(fd), unix.IPPROTO_IPV6, unix.IPV6_V6ONLY, 0)
		})
		if err != nil {
			return err
		}
		return sockErr
	}
}

// disablePathMTUDiscovery turns off kernel path-MTU discovery on the socket
// so oversized datagrams are fragmented by the kernel/network instead of
// bouncing back as EMSGSIZE, matching spec.md section 4.2's "disable path
// MTU discovery; rely on the fixed/measured MTU instead" note.
func disablePathMTUDiscovery(conn *net.UDPConn, family wire.Family) error {
	raw, err := conn.SyscallConn()
	if err != nil {
		return err
	}
	var sockErr error
	ctrlErr := raw.Control(func(fd uintptr) {
		if family == wire.FamilyIPv6 {
			sockErr = unix.SetsockoptInt(int(fd), unix.IPPROTO_IPV6, unix.IPV6_MTU_DISCOVER, unix.IPV6_PMTUDISC_DONT)
			return
		}
		sockErr = unix.SetsockoptInt(int(fd), unix.IPPROTO_IP, unix.IP_MTU_DISCOVER, unix.IP_PMTUDISC_DONT)
	})
	if ctrlErr != nil {
		return ctrlErr
	}
	return sockErr
}

// isEMSGSIZE reports whether err is the kernel's "message too long"
// rejection of a sendto() call, the condition spec.md section 4.2 says
// should fall back to FallbackMTU for the rest of the transport's life.
func isEMSGSIZE(err error) bool {
	return errors.Is(err, unix.EMSGSIZE)
}
