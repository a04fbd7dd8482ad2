package transport

// Bit-exact tuning constants from spec.md section 6.
const (
	// UDPProbeTimeoutMS is how long Combined waits without a UDP receive
	// before treating UDP as possibly dead.
	UDPProbeTimeoutMS = 10_000

	// ServerAssociationTimeoutMS is how long a server-side UDP transport
	// keeps a client's remote address without hearing from it.
	ServerAssociationTimeoutMS = 40_000

	// PortHopIntervalMS is the minimum spacing between client-side UDP
	// port hops.
	PortHopIntervalMS = 10_000

	// MaxPortsOpen bounds the UDP socket pool per transport.
	MaxPortsOpen = 10

	// MaxOldSocketAgeMS is how long a superseded UDP socket is kept
	// around before being pruned.
	MaxOldSocketAgeMS = 60_000

	// CongestionTimestampPenaltyMS is subtracted from an echoed timestamp
	// when the received datagram carried ECN congestion-experienced.
	CongestionTimestampPenaltyMS = 500

	// ClientUDPPortRangeDefault is the default port range a client picks
	// an outbound UDP port from when none is configured.
	ClientUDPPortRangeDefault = "60001:60999"

	// TCPListenBacklog is the accept backlog value for the TCP server.
	// tcp.Listen does not pass it: net.ListenTCP uses the system default.
	TCPListenBacklog = 16
)
