package tcp

import (
	"testing"
	"time"

	"mobishell/pkg/instruction"
	"mobishell/pkg/session"
	"mobishell/pkg/transport"
	"mobishell/pkg/wire"
)

func testSession(t *testing.T) *session.Session {
	t.Helper()
	sess, err := session.New(make([]byte, 32))
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

func TestFramedRoundTripInOrder(t *testing.T) {
	server, err := Listen(testSession(t), "127.0.0.1", 0)
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer server.Close()
	port, _ := server.TCPPort()

	client, err := Dial(testSession(t), "127.0.0.1", port)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer client.Close()

	want := []instruction.Instruction{
		{NewNum: 1, Payload: []byte("first")},
		{NewNum: 2, Payload: []byte("second")},
		{NewNum: 3, Payload: []byte("third")},
	}
	for _, inst := range want {
		if err := client.Send(inst); err != nil {
			t.Fatalf("Send: %v", err)
		}
		for !client.FinishSend() {
			time.Sleep(time.Millisecond)
		}
	}

	for i, w := range want {
		got := pollRecv(t, server, 2*time.Second)
		if string(got.Payload) != string(w.Payload) {
			t.Fatalf("instruction %d: got payload %q, want %q", i, got.Payload, w.Payload)
		}
	}
}

func TestOutOfOrderSequenceIsDropped(t *testing.T) {
	server, err := Listen(testSession(t), "127.0.0.1", 0)
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer server.Close()
	port, _ := server.TCPPort()

	clientSess := testSession(t)
	client, err := Dial(clientSess, "127.0.0.1", port)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer client.Close()

	// Drive the server to Established by forcing one Accept poll.
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) && server.state != Established {
		if _, err := server.Recv(); err != nil {
			t.Fatalf("recv: %v", err)
		}
		time.Sleep(time.Millisecond)
	}
	if server.state != Established {
		t.Fatalf("server never reached Established")
	}

	var violations int
	server.SetReportFunc(func(r transport.Report) { violations++ })

	// Advance the server's expected sequence past the client's next seq
	// (0), then send: the frame arrives with seq below expected and the
	// server must drop it (strict in-order mode). A higher seq (a gap) would
	// be accepted, since only seq < expected is a violation.
	server.peer.Accept(10, wire.NoTimestamp, wire.NoTimestamp, false, wire.NowMS(), true)
	if err := client.Send(instruction.Instruction{NewNum: 1, Payload: []byte("skip")}); err != nil {
		t.Fatalf("Send: %v", err)
	}

	time.Sleep(20 * time.Millisecond)
	inst, err := server.Recv()
	if err != nil {
		t.Fatalf("recv: %v", err)
	}
	if inst != nil {
		t.Fatalf("expected out-of-order instruction to be dropped, got %+v", inst)
	}
}
