package protocol

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"packetforge/internal/model"
	"packetforge/pkg/framing"
)

func newTestUDP(t *testing.T, remote *net.UDPAddr, listen func(string, *net.UDPAddr) (*net.UDPConn, error)) (*UDPHandler, *recorder) {
	t.Helper()
	params := model.ConnectionParameters{Kind: model.KindUDP, Address: remote.IP.String(), Port: remote.Port}
	h := NewUDPHandler(params, testOptions(), zaptest.NewLogger(t))
	h.listen = listen
	rec := newRecorder()
	h.Subscribe(rec.handle)
	t.Cleanup(func() { h.Close() })
	return h, rec
}

func loopbackUDP(network string, _ *net.UDPAddr) (*net.UDPConn, error) {
	return net.ListenUDP(network, &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
}

func TestUDPExchange(t *testing.T) {
	peer, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatalf("listen peer: %v", err)
	}
	defer peer.Close()

	h, rec := newTestUDP(t, peer.LocalAddr().(*net.UDPAddr), loopbackUDP)
	h.SetReceiveRule(framing.LineFeed)
	h.SetSendRule(framing.AppendSuffix('\n'))

	if err := h.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	rec.waitFor(t, EventConnected)

	h.Send([]byte("ping"))
	buf := make([]byte, 64)
	peer.SetReadDeadline(time.Now().Add(waitTimeout))
	n, from, err := peer.ReadFromUDP(buf)
	if err != nil {
		t.Fatalf("peer read: %v", err)
	}
	if got := string(buf[:n]); got != "ping\n" {
		t.Errorf("datagram = %q, want %q", got, "ping\n")
	}
	if ev := rec.waitFor(t, EventBytesWritten); ev.Count != 5 {
		t.Errorf("bytes written = %d, want 5", ev.Count)
	}

	// a packet may span datagrams
	peer.WriteToUDP([]byte("a\nb"), from)
	peer.WriteToUDP([]byte("c\n"), from)

	if ev := rec.waitFor(t, EventDataReceived); string(ev.Data) != "a\n" {
		t.Errorf("first packet = %q", ev.Data)
	}
	if ev := rec.waitFor(t, EventDataReceived); string(ev.Data) != "bc\n" {
		t.Errorf("second packet = %q", ev.Data)
	}

	h.Close()
	h.Close()
	if got := rec.count(EventDisconnected); got != 1 {
		t.Errorf("disconnected events = %d, want 1", got)
	}
	if h.LocalAddr() != nil {
		t.Errorf("socket still bound after Close")
	}
}

func TestUDPBindRetryExhausted(t *testing.T) {
	var mu sync.Mutex
	attempts := 0
	failing := func(string, *net.UDPAddr) (*net.UDPConn, error) {
		mu.Lock()
		defer mu.Unlock()
		attempts++
		return nil, errors.New("address already in use")
	}

	h, rec := newTestUDP(t, &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 5000}, failing)
	if err := h.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	ev := rec.waitFor(t, EventError)
	if ev.Code != ErrCodeBindFailed {
		t.Errorf("error code = %s, want BIND_FAILED", ev.Code)
	}

	time.Sleep(50 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	if attempts != 5 {
		t.Errorf("bind attempts = %d, want 5", attempts)
	}
}

func TestUDPLocalPortDefaultsToRemotePort(t *testing.T) {
	var got *net.UDPAddr
	capture := func(network string, laddr *net.UDPAddr) (*net.UDPConn, error) {
		got = laddr
		return loopbackUDP(network, laddr)
	}

	h, rec := newTestUDP(t, &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 5555}, capture)
	if err := h.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	rec.waitFor(t, EventConnected)

	if got == nil || got.Port != 5555 {
		t.Errorf("local bind address = %v, want port 5555", got)
	}
}
