package wire

import "errors"

// ErrInvalidConfig is the sentinel for malformed port specs, IP literals,
// and other construction-time configuration mistakes. pkg/transport wraps
// this same sentinel so callers can errors.Is against one value regardless
// of which package raised it.
var ErrInvalidConfig = errors.New("invalid config")
