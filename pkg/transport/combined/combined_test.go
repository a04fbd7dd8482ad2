package combined

import (
	"testing"
	"time"

	"mobishell/pkg/instruction"
	"mobishell/pkg/session"
	"mobishell/pkg/transport/tcp"
	"mobishell/pkg/transport/udp"
	"mobishell/pkg/wire"
)

func newSession(t *testing.T) *session.Session {
	t.Helper()
	sess, err := session.New(make([]byte, 32))
	if err != nil {
		t.Fatalf("session.New: %v", err)
	}
	return sess
}

func TestUDPReceiveMakesUDPActive(t *testing.T) {
	serverUDP, err := udp.Listen(newSession(t), "127.0.0.1", wire.PortRange{Low: 0, High: 0})
	if err != nil {
		t.Fatalf("udp.Listen: %v", err)
	}
	serverTCP, err := tcp.Listen(newSession(t), "127.0.0.1", 0)
	if err != nil {
		t.Fatalf("tcp.Listen: %v", err)
	}
	server := New(serverUDP, serverTCP)
	defer server.Close()

	udpPort, _ := server.UDPPort()
	tcpPort, _ := server.TCPPort()

	clientUDP, err := udp.Dial(newSession(t), "127.0.0.1", udpPort, wire.PortRange{Low: 0, High: 0})
	if err != nil {
		t.Fatalf("udp.Dial: %v", err)
	}
	clientTCP, err := tcp.Dial(newSession(t), "127.0.0.1", tcpPort)
	if err != nil {
		t.Fatalf("tcp.Dial: %v", err)
	}
	client := New(clientUDP, clientTCP)
	defer client.Close()

	if err := client.Send(instruction.Instruction{NewNum: 1, Payload: []byte("via-udp")}); err != nil {
		t.Fatalf("Send: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	var got *instruction.Instruction
	for time.Now().Before(deadline) {
		inst, err := server.Recv()
		if err != nil {
			t.Fatalf("Recv: %v", err)
		}
		if inst != nil {
			got = inst
			break
		}
		time.Sleep(time.Millisecond)
	}
	if got == nil {
		t.Fatalf("timed out waiting for instruction")
	}
	if string(got.Payload) != "via-udp" {
		t.Fatalf("got payload %q, want via-udp", got.Payload)
	}
	if server.active != ActiveUDP {
		t.Fatalf("active = %v, want ActiveUDP", server.active)
	}
}

func TestTCPFallbackWhenUDPNeverReceived(t *testing.T) {
	serverUDP, err := udp.Listen(newSession(t), "127.0.0.1", wire.PortRange{Low: 0, High: 0})
	if err != nil {
		t.Fatalf("udp.Listen: %v", err)
	}
	serverTCP, err := tcp.Listen(newSession(t), "127.0.0.1", 0)
	if err != nil {
		t.Fatalf("tcp.Listen: %v", err)
	}
	server := New(serverUDP, serverTCP)
	defer server.Close()

	tcpPort, _ := server.TCPPort()
	udpPort, _ := server.UDPPort()

	clientUDP, err := udp.Dial(newSession(t), "127.0.0.1", udpPort, wire.PortRange{Low: 0, High: 0})
	if err != nil {
		t.Fatalf("udp.Dial: %v", err)
	}
	clientTCP, err := tcp.Dial(newSession(t), "127.0.0.1", tcpPort)
	if err != nil {
		t.Fatalf("tcp.Dial: %v", err)
	}
	client := New(clientUDP, clientTCP)
	defer client.Close()

	// Close the server's UDP side so the UDP copy never arrives and only
	// the TCP channel can deliver.
	serverUDP.Close()

	// last_udp_recv == 0 on both sides: should_probe_tcp() is true
	// immediately, so the very first send goes out on both channels.
	if err := client.Send(instruction.Instruction{NewNum: 1, Payload: []byte("via-tcp")}); err != nil {
		t.Fatalf("Send: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	var got *instruction.Instruction
	for time.Now().Before(deadline) {
		inst, err := server.Recv()
		if err != nil {
			t.Fatalf("Recv: %v", err)
		}
		if inst != nil {
			got = inst
			break
		}
		time.Sleep(time.Millisecond)
	}
	if got == nil {
		t.Fatalf("timed out waiting for instruction")
	}
	if string(got.Payload) != "via-tcp" {
		t.Fatalf("got payload %q, want via-tcp", got.Payload)
	}
	if server.active != ActiveTCP {
		t.Fatalf("active = %v, want ActiveTCP", server.active)
	}
}
