package protocol

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"packetforge/pkg/framing"
)

func TestTCPClientExchange(t *testing.T) {
	ln := listenLoopback(t)
	accepted := make(chan net.Conn, 1)
	go func() {
		conn, err := ln.Accept()
		if err == nil {
			accepted <- conn
		}
	}()

	h, rec := newTestTCPClient(t, ln.Addr())
	queue := NewPacketQueue(0)
	h.SetReceiveRule(framing.LineFeed)
	h.SetSendRule(framing.AppendXORChecksum)
	h.SetOutputQueue(queue)

	if err := h.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	rec.waitFor(t, EventConnected)
	if !h.IsConnected() {
		t.Fatalf("state = %s, want CONNECTED", h.State())
	}

	var peer net.Conn
	select {
	case peer = <-accepted:
	case <-time.After(waitTimeout):
		t.Fatal("server did not accept")
	}
	defer peer.Close()

	h.Send([]byte{0x01, 0x02})
	if diff := cmp.Diff([]byte{0x01, 0x02, 0x03}, readFull(t, peer, 3)); diff != "" {
		t.Errorf("wire bytes mismatch (-want +got):\n%s", diff)
	}
	if ev := rec.waitFor(t, EventBytesWritten); ev.Count != 3 {
		t.Errorf("bytes written = %d, want 3", ev.Count)
	}

	peer.Write([]byte{0x41, 0x42})
	time.Sleep(20 * time.Millisecond)
	peer.Write([]byte{0x0A})

	ev := rec.waitFor(t, EventDataReceived)
	if diff := cmp.Diff([]byte{0x41, 0x42, 0x0A}, ev.Data); diff != "" {
		t.Errorf("packet mismatch (-want +got):\n%s", diff)
	}
	if queue.Len() != 1 {
		t.Errorf("queue length = %d, want 1", queue.Len())
	}

	stats := h.Stats()
	if stats.BytesSent != 3 || stats.BytesReceived != 3 || stats.PacketsReceived != 1 {
		t.Errorf("unexpected stats: %+v", stats)
	}

	if err := h.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := h.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if got := rec.count(EventDisconnected); got != 1 {
		t.Errorf("disconnected events = %d, want 1", got)
	}
	if h.State() != StateDisconnected {
		t.Errorf("state = %s, want DISCONNECTED", h.State())
	}

	before := rec.total()
	peer.Write([]byte("late\n"))
	time.Sleep(50 * time.Millisecond)
	if rec.total() != before {
		t.Errorf("events delivered after Close")
	}
}

func TestTCPClientPeerCloseAndExplicitReconnect(t *testing.T) {
	ln := listenLoopback(t)
	accepted := make(chan net.Conn, 2)
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			accepted <- conn
		}
	}()

	h, rec := newTestTCPClient(t, ln.Addr())
	if err := h.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	rec.waitFor(t, EventConnected)

	peer := <-accepted
	peer.Close()

	rec.waitFor(t, EventDisconnected)
	eventually(t, "state disconnected", func() bool { return h.State() == StateDisconnected })

	// no automatic reconnect
	time.Sleep(50 * time.Millisecond)
	if got := rec.count(EventConnected); got != 1 {
		t.Fatalf("connected events = %d, want 1", got)
	}

	if err := h.Connect(context.Background()); err != nil {
		t.Fatalf("second Connect: %v", err)
	}
	rec.waitFor(t, EventConnected)
	peer2 := <-accepted
	defer peer2.Close()

	h.Close()
	if got := rec.count(EventDisconnected); got != 2 {
		t.Errorf("disconnected events = %d, want 2", got)
	}
}

func TestTCPClientConnectionRefused(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr()
	ln.Close()

	h, rec := newTestTCPClient(t, addr)
	if err := h.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	ev := rec.waitFor(t, EventError)
	if ev.Code != ErrCodeConnectionRefused {
		t.Errorf("error code = %s, want CONNECTION_REFUSED (err: %v)", ev.Code, ev.Err)
	}
	if h.State() != StateError {
		t.Errorf("state = %s, want ERROR", h.State())
	}

	if err := h.Connect(context.Background()); !errors.Is(err, ErrNotClosed) {
		t.Errorf("Connect from ERROR = %v, want ErrNotClosed", err)
	}

	h.Close()
	if h.State() != StateDisconnected {
		t.Errorf("state after Close = %s", h.State())
	}
	if got := rec.count(EventDisconnected); got != 0 {
		t.Errorf("disconnected events = %d, want 0", got)
	}
}

func TestTCPClientDropsWhileDisconnected(t *testing.T) {
	ln := listenLoopback(t)
	h, rec := newTestTCPClient(t, ln.Addr())

	h.SetSendRule(framing.AppendXORChecksum)
	h.Send([]byte("ignored"))

	if rec.total() != 0 {
		t.Errorf("events emitted for dropped send")
	}
	if h.Stats().BytesSent != 0 {
		t.Errorf("bytes sent = %d, want 0", h.Stats().BytesSent)
	}
	if h.PinStatus() != 0 {
		t.Errorf("pin status = %#x, want 0", h.PinStatus())
	}
}
