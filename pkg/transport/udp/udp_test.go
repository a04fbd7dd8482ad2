package udp

import (
	"testing"
	"time"

	"mobishell/pkg/instruction"
	"mobishell/pkg/session"
	"mobishell/pkg/wire"
)

func testKey(t *testing.T) *session.Session {
	t.Helper()
	key := make([]byte, 32)
	sess, err := session.New(key)
	if err != nil {
		t.Fatalf("session.New: %v", err)
	}
	return sess
}

func pollRecv(t *testing.T, tr *Transport, timeout time.Duration) *instruction.Instruction {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		inst, err := tr.Recv()
		if err != nil {
			t.Fatalf("recv: %v", err)
		}
		if inst != nil {
			return inst
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for a received instruction")
	return nil
}

func TestLoopbackSingleFragment(t *testing.T) {
	serverSess := testKey(t)
	clientSess := testKey(t)

	server, err := Listen(serverSess, "127.0.0.1", wire.PortRange{Low: 0, High: 0})
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer server.Close()
	serverPort, _ := server.UDPPort()

	client, err := Dial(clientSess, "127.0.0.1", serverPort, wire.PortRange{Low: 0, High: 0})
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer client.Close()

	want := instruction.Instruction{OldNum: 1, NewNum: 2, AckNum: 0, ThrowawayNum: 0, Payload: []byte("hi")}
	if err := client.Send(want); err != nil {
		t.Fatalf("Send: %v", err)
	}

	got := pollRecv(t, server, time.Second)
	if got.NewNum != want.NewNum || string(got.Payload) != string(want.Payload) {
		t.Fatalf("got %+v, want %+v", got, want)
	}
	if server.peer.ExpectedRecvSeq() != 1 {
		t.Fatalf("expected_receiver_seq = %d, want 1", server.peer.ExpectedRecvSeq())
	}
}

func TestFragmentationAcrossMinimalMTU(t *testing.T) {
	serverSess := testKey(t)
	clientSess := testKey(t)

	server, err := Listen(serverSess, "127.0.0.1", wire.PortRange{Low: 0, High: 0})
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer server.Close()
	serverPort, _ := server.UDPPort()

	client, err := Dial(clientSess, "127.0.0.1", serverPort, wire.PortRange{Low: 0, High: 0})
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer client.Close()
	client.mtu = wire.FallbackMTU

	payload := make([]byte, 2048)
	for i := range payload {
		payload[i] = byte(i)
	}
	want := instruction.Instruction{NewNum: 1, Payload: payload}
	if err := client.Send(want); err != nil {
		t.Fatalf("Send: %v", err)
	}

	got := pollRecv(t, server, 2*time.Second)
	if len(got.Payload) != len(want.Payload) {
		t.Fatalf("got payload len %d, want %d", len(got.Payload), len(want.Payload))
	}
	for i := range want.Payload {
		if got.Payload[i] != want.Payload[i] {
			t.Fatalf("payload mismatch at byte %d", i)
		}
	}
}

func TestOutOfOrderDeliveryWithTimingOnlyOnInOrder(t *testing.T) {
	serverSess := testKey(t)
	clientSess := testKey(t)

	server, err := Listen(serverSess, "127.0.0.1", wire.PortRange{Low: 0, High: 0})
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer server.Close()
	serverPort, _ := server.UDPPort()

	client, err := Dial(clientSess, "127.0.0.1", serverPort, wire.PortRange{Low: 0, High: 0})
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer client.Close()

	// Send seq 5 then seq 3 directly, bypassing the monotone NextNonce
	// counter, to exercise the out-of-order acceptance rule.
	sendAt := func(seq uint64, payload string, nowMS uint64) {
		ts := wire.Timestamp16(nowMS)
		plaintext := []byte{byte(ts >> 8), byte(ts), 0xFF, 0xFF} // no timestamp_reply
		payloadBytes, _ := instruction.Serialize(instruction.Instruction{Payload: []byte(payload)})
		frags, _ := client.fragmenter.Split(payloadBytes, client.mtu)
		full := append(plaintext, frags[0].Encode()...)
		nonce := wire.PackNonce(seq, wire.ToServer)
		packet := clientSess.Encrypt(nonce, full)
		sock := client.sockets[len(client.sockets)-1]
		if _, err := sock.writeTo(packet, client.remoteAddr); err != nil {
			t.Fatalf("writeTo: %v", err)
		}
	}

	firstNowMS := wire.NowMS()
	sendAt(5, "five", firstNowMS)
	first := pollRecv(t, server, time.Second)
	if string(first.Payload) == "" {
		t.Fatalf("expected payload")
	}
	if server.peer.ExpectedRecvSeq() != 6 {
		t.Fatalf("expected_receiver_seq = %d, want 6", server.peer.ExpectedRecvSeq())
	}
	heardAfterInOrder := server.lastHeardMS
	if heardAfterInOrder == 0 {
		t.Fatalf("lastHeardMS not updated on in-order packet")
	}

	// A later, but out-of-order (stale seq), packet must still be delivered
	// as payload but must never advance last_heard or re-home the peer —
	// only in-order packets move those forward (udp_connection.cc recv_one).
	staleNowMS := firstNowMS + 1000
	sendAt(3, "three", staleNowMS)
	second := pollRecv(t, server, time.Second)
	if string(second.Payload) != "three" {
		t.Fatalf("got payload %q, want three", second.Payload)
	}
	if server.peer.ExpectedRecvSeq() != 6 {
		t.Fatalf("expected_receiver_seq changed to %d on stale seq, want still 6", server.peer.ExpectedRecvSeq())
	}
	if server.lastHeardMS != heardAfterInOrder {
		t.Fatalf("lastHeardMS changed to %d on stale/out-of-order packet, want unchanged %d", server.lastHeardMS, heardAfterInOrder)
	}
}
