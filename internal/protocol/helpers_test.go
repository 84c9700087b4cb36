package protocol

import (
	"net"
	"strconv"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"packetforge/internal/model"
)

const waitTimeout = 3 * time.Second

func testOptions() Options {
	return Options{
		BindRetry:       RetryPolicy{Attempts: 5, Delay: 10 * time.Millisecond},
		PinPollInterval: 10 * time.Millisecond,
		SerialReadPoll:  10 * time.Millisecond,
		CloseTimeout:    2 * time.Second,
		ConnectTimeout:  2 * time.Second,
	}
}

// recorder collects events in delivery order
type recorder struct {
	mu     sync.Mutex
	events []Event
	ch     chan Event
}

func newRecorder() *recorder {
	return &recorder{ch: make(chan Event, 1024)}
}

func (r *recorder) handle(ev Event) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
	r.ch <- ev
}

// waitFor returns the next event of type typ, skipping others
func (r *recorder) waitFor(t *testing.T, typ EventType) Event {
	t.Helper()
	deadline := time.After(waitTimeout)
	for {
		select {
		case ev := <-r.ch:
			if ev.Type == typ {
				return ev
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s", typ)
			return Event{}
		}
	}
}

func (r *recorder) count(typ EventType) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, ev := range r.events {
		if ev.Type == typ {
			n++
		}
	}
	return n
}

func (r *recorder) total() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

// eventually polls cond until it holds or the wait times out
func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(waitTimeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met: %s", what)
}

func listenLoopback(t *testing.T) net.Listener {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { ln.Close() })
	return ln
}

func tcpParams(t *testing.T, kind model.TransportKind, addr net.Addr) model.ConnectionParameters {
	t.Helper()
	host, portStr, err := net.SplitHostPort(addr.String())
	if err != nil {
		t.Fatalf("split %s: %v", addr, err)
	}
	port, _ := strconv.Atoi(portStr)
	return model.ConnectionParameters{Kind: kind, Address: host, Port: port}
}

func newTestTCPClient(t *testing.T, addr net.Addr) (*TCPClient, *recorder) {
	t.Helper()
	h := NewTCPClient(tcpParams(t, model.KindTCPClient, addr), testOptions(), zaptest.NewLogger(t))
	rec := newRecorder()
	h.Subscribe(rec.handle)
	t.Cleanup(func() { h.Close() })
	return h, rec
}

func readFull(t *testing.T, conn net.Conn, n int) []byte {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(waitTimeout))
	buf := make([]byte, n)
	got := 0
	for got < n {
		m, err := conn.Read(buf[got:])
		if err != nil {
			t.Fatalf("read after %d bytes: %v", got, err)
		}
		got += m
	}
	return buf
}
