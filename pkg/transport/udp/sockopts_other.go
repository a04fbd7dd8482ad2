//go:build !linux

package udp

import (
	"net"
	"strings"
	"syscall"

	"mobishell/pkg/wire"
)

// controlDualStack is a no-op outside Linux: the platform default dual-stack
// behavior for a wildcard bind is left as-is.
func controlDualStack(family wire.Family, wildcard bool) func(network, address string, c syscall.RawConn) error {
	return nil
}

// disablePathMTUDiscovery is a no-op outside Linux; IP_MTU_DISCOVER has no
// portable equivalent exposed by golang.org/x/sys/unix on other platforms.
func disablePathMTUDiscovery(conn *net.UDPConn, family wire.Family) error {
	return nil
}

// isEMSGSIZE reports whether err is the kernel's "message too long"
// rejection of a sendto() call. Outside Linux there is no single portable
// errno constant to compare against (golang.org/x/sys/unix's EMSGSIZE is
// not exposed uniformly across darwin/bsd/windows build tags here), so this
// falls back to matching the standard errno message text every platform's
// libc/Winsock produces for this condition.
func isEMSGSIZE(err error) bool {
	return err != nil && strings.Contains(err.Error(), "message too long")
}
