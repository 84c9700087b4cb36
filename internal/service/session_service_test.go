package service

import (
	"context"
	"errors"
	"net"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"packetforge/internal/config"
	"packetforge/internal/model"
	"packetforge/internal/protocol"
	"packetforge/pkg/framing"
)

const waitTimeout = 3 * time.Second

func testTransport() config.TransportConfig {
	return config.TransportConfig{
		Serial:          config.SerialDefaults{BaudRate: 19200, DataBits: 8, StopBits: 1, Parity: "NONE", FlowControl: "NONE"},
		BindAttempts:    2,
		BindRetryDelay:  10 * time.Millisecond,
		PinPollInterval: 10 * time.Millisecond,
		SerialReadPoll:  10 * time.Millisecond,
		CloseTimeout:    time.Second,
		ConnectTimeout:  time.Second,
		QueueLimit:      100,
		ReconnectDelay:  10 * time.Millisecond,
	}
}

// eventLog is an EventPublisher that records events
type eventLog struct {
	mu     sync.Mutex
	events []model.SessionEvent
}

func (l *eventLog) Publish(ev model.SessionEvent) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, ev)
}

func (l *eventLog) types() []model.EventType {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]model.EventType, 0, len(l.events))
	for _, ev := range l.events {
		out = append(out, ev.EventType)
	}
	return out
}

func (l *eventLog) has(typ model.EventType) bool {
	for _, t := range l.types() {
		if t == typ {
			return true
		}
	}
	return false
}

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

func newTestService(t *testing.T) (*SessionService, *eventLog) {
	t.Helper()
	events := &eventLog{}
	svc := NewSessionService(testTransport(), framing.NewRegistry(), events, zaptest.NewLogger(t))
	t.Cleanup(svc.CloseAll)
	return svc, events
}

func tcpClientRequest(t *testing.T, addr net.Addr) model.OpenRequest {
	t.Helper()
	host, portStr, err := net.SplitHostPort(addr.String())
	if err != nil {
		t.Fatalf("split %s: %v", addr, err)
	}
	port, _ := strconv.Atoi(portStr)
	return model.OpenRequest{
		Name:        "peer",
		Parameters:  model.ConnectionParameters{Kind: model.KindTCPClient, Address: host, Port: port},
		ReceiveRule: "lf",
		SendRule:    "xor",
	}
}

func TestSessionExchange(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()
	accepted := make(chan net.Conn, 1)
	go func() {
		conn, err := ln.Accept()
		if err == nil {
			accepted <- conn
		}
	}()

	svc, events := newTestService(t)
	info, err := svc.Open(context.Background(), tcpClientRequest(t, ln.Addr()))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if info.Kind != model.KindTCPClient || info.ReceiveRule != "lf" {
		t.Errorf("info = %+v", info)
	}

	var peer net.Conn
	select {
	case peer = <-accepted:
	case <-time.After(waitTimeout):
		t.Fatal("no connection accepted")
	}
	defer peer.Close()

	eventually(t, "session connected", func() bool {
		got, err := svc.Get(info.ID)
		return err == nil && got.State == protocol.StateConnected.String()
	})

	if _, err := peer.Write([]byte("one\ntwo\nthr")); err != nil {
		t.Fatalf("peer write: %v", err)
	}
	var packets [][]byte
	eventually(t, "two packets queued", func() bool {
		p, _ := svc.Packets(info.ID, 0)
		packets = append(packets, p...)
		return len(packets) >= 2
	})
	if diff := cmp.Diff([][]byte{[]byte("one\n"), []byte("two\n")}, packets); diff != "" {
		t.Errorf("packets mismatch (-want +got):\n%s", diff)
	}

	if err := svc.Send(info.ID, []byte{0x01, 0x02}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	peer.SetReadDeadline(time.Now().Add(waitTimeout))
	buf := make([]byte, 3)
	n := 0
	for n < 3 {
		m, err := peer.Read(buf[n:])
		if err != nil {
			t.Fatalf("peer read: %v", err)
		}
		n += m
	}
	if diff := cmp.Diff([]byte{0x01, 0x02, 0x03}, buf); diff != "" {
		t.Errorf("sent bytes mismatch (-want +got):\n%s", diff)
	}

	eventually(t, "bytes written event", func() bool { return events.has(model.EventBytesWritten) })
	if err := svc.Close(info.ID); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, err := svc.Get(info.ID); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("Get after close = %v, want ErrSessionNotFound", err)
	}

	types := events.types()
	if len(types) == 0 || types[0] != model.EventSessionOpened || types[len(types)-1] != model.EventSessionClosed {
		t.Errorf("event order = %v", types)
	}
	for _, typ := range []model.EventType{model.EventConnected, model.EventDataReceived, model.EventBytesWritten} {
		if !events.has(typ) {
			t.Errorf("missing %s event in %v", typ, types)
		}
	}
}

func TestSessionOpenInvalid(t *testing.T) {
	svc, events := newTestService(t)

	tests := map[string]model.OpenRequest{
		"unknown receive rule": {ReceiveRule: "morse", Parameters: model.ConnectionParameters{Kind: model.KindUDP, Address: "127.0.0.1", Port: 9}},
		"unknown send rule":    {SendRule: "xor+rot13", Parameters: model.ConnectionParameters{Kind: model.KindUDP, Address: "127.0.0.1", Port: 9}},
		"bad parameters":       {Parameters: model.ConnectionParameters{Kind: model.KindTCPClient}},
	}
	for name, req := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := svc.Open(context.Background(), req); !errors.Is(err, protocol.ErrInvalidConfiguration) {
				t.Errorf("error = %v, want ErrInvalidConfiguration", err)
			}
		})
	}

	if len(svc.List()) != 0 || len(events.types()) != 0 {
		t.Error("rejected requests must not create sessions")
	}
}

func TestSessionNotFound(t *testing.T) {
	svc, _ := newTestService(t)
	id := uuid.New()

	checks := map[string]error{
		"get":       func() error { _, err := svc.Get(id); return err }(),
		"send":      svc.Send(id, []byte("x")),
		"pins":      func() error { _, err := svc.Pins(id); return err }(),
		"set pins":  svc.SetPins(id, true, true),
		"packets":   func() error { _, err := svc.Packets(id, 0); return err }(),
		"reconnect": svc.Reconnect(context.Background(), id),
		"close":     svc.Close(id),
	}
	for name, err := range checks {
		if !errors.Is(err, ErrSessionNotFound) {
			t.Errorf("%s: error = %v, want ErrSessionNotFound", name, err)
		}
	}
}

func TestSessionSendWhileDisconnected(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr()
	ln.Close()

	svc, events := newTestService(t)
	info, err := svc.Open(context.Background(), tcpClientRequest(t, addr))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	if err := svc.Send(info.ID, []byte("x")); !errors.Is(err, ErrSessionNotConnected) {
		t.Errorf("Send error = %v, want ErrSessionNotConnected", err)
	}
	eventually(t, "error event", func() bool { return events.has(model.EventError) })
}

// pinHandler is a minimal serial Handler for pin tests
type pinHandler struct {
	protocol.Handler
	params   model.ConnectionParameters
	mu       sync.Mutex
	dtr, rts bool
}

func (h *pinHandler) Connect(context.Context) error { return nil }
func (h *pinHandler) Close() error { return nil }
func (h *pinHandler) State() protocol.State { return protocol.StateConnected }
func (h *pinHandler) IsConnected() bool { return true }
func (h *pinHandler) Subscribe(protocol.EventHandler) {}
func (h *pinHandler) SetReceiveRule(framing.ReceiveRule) {}
func (h *pinHandler) SetSendRule(framing.SendRule) {}
func (h *pinHandler) SetOutputQueue(protocol.OutputQueue) {}
func (h *pinHandler) PinStatus() protocol.PinStatus { return protocol.PinCTS | protocol.PinDCD }
func (h *pinHandler) Kind() model.TransportKind { return model.KindSerial }
func (h *pinHandler) Parameters() model.ConnectionParameters { return h.params }
func (h *pinHandler) Stats() protocol.Stats { return protocol.Stats{IsConnected: true} }
func (h *pinHandler) SetPinControl(dtr, rts bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.dtr, h.rts = dtr, rts
}

func TestSessionSerialPinsAndDefaults(t *testing.T) {
	svc, _ := newTestService(t)
	fake := &pinHandler{}
	var got model.ConnectionParameters
	svc.newHandler = func(p model.ConnectionParameters, _ protocol.Options, _ *zap.Logger) (protocol.Handler, error) {
		got = p
		fake.params = p
		return fake, nil
	}

	info, err := svc.Open(context.Background(), model.OpenRequest{
		Parameters: model.ConnectionParameters{Kind: model.KindSerial, PortName: "/dev/ttyUSB0"},
	})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if got.BaudRate != 19200 || got.DataBits != 8 || got.StopBits != 1 {
		t.Errorf("serial defaults from config not applied: %+v", got)
	}

	if err := svc.SetPins(info.ID, true, false); err != nil {
		t.Fatalf("SetPins: %v", err)
	}
	fake.mu.Lock()
	if !fake.dtr || fake.rts {
		t.Errorf("pins = dtr %v rts %v", fake.dtr, fake.rts)
	}
	fake.mu.Unlock()

	pins, err := svc.Pins(info.ID)
	if err != nil {
		t.Fatalf("Pins: %v", err)
	}
	if diff := cmp.Diff(model.PinState{Raw: 0x28, DCD: true, CTS: true}, pins); diff != "" {
		t.Errorf("pins mismatch (-want +got):\n%s", diff)
	}
}

func TestSessionSetPinsRequiresSerial(t *testing.T) {
	svc, _ := newTestService(t)
	info, err := svc.Open(context.Background(), model.OpenRequest{
		Parameters: model.ConnectionParameters{Kind: model.KindUDP, Address: "127.0.0.1", Port: 40999, LocalPort: 0},
	})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := svc.SetPins(info.ID, true, true); !errors.Is(err, ErrNotSerial) {
		t.Errorf("error = %v, want ErrNotSerial", err)
	}
}

func TestOptionsFromConfig(t *testing.T) {
	opts := OptionsFromConfig(testTransport())
	if opts.BindRetry.Attempts != 2 || opts.BindRetry.Delay != 10*time.Millisecond {
		t.Errorf("bind retry = %+v", opts.BindRetry)
	}
	if opts.CloseTimeout != time.Second || opts.PinPollInterval != 10*time.Millisecond {
		t.Errorf("options = %+v", opts)
	}
}
