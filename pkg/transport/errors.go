package transport

import (
	"errors"
	"fmt"

	"mobishell/pkg/wire"
)

// ErrInvalidConfig covers bad port specs, bad IP literals, and invalid
// transport-mode selections. It is the same sentinel pkg/wire raises for
// port/address parsing, re-exported here so callers only need to know
// about pkg/transport's error taxonomy.
var ErrInvalidConfig = wire.ErrInvalidConfig

// ErrBindFailure is raised when no port in a PortRange could be bound.
var ErrBindFailure = errors.New("transport: could not bind any port in range")

// ErrFatalIO is raised when a socket operation fails with an errno other
// than EAGAIN/EWOULDBLOCK/EINPROGRESS/EALREADY/ETIMEDOUT; the transport is
// considered broken once this is returned.
var ErrFatalIO = errors.New("transport: fatal I/O error")

// wrapFatal wraps err with ErrFatalIO so callers can errors.Is(err,
// ErrFatalIO) regardless of the underlying syscall error.
func wrapFatal(op string, err error) error {
	return fmt.Errorf("%s: %w: %v", op, ErrFatalIO, err)
}
