// internal/protocol/base.go
package protocol

import (
	"context"
	"sync"
	"time"

	"go.uber.org/atomic"
	"go.uber.org/zap"

	"packetforge/internal/model"
	"packetforge/pkg/framing"
)

type noteKind int

const (
	noteConnected noteKind = iota
	noteDisconnected
	noteError
	noteData
	noteWritten
)

// notification is posted by I/O goroutines to the session dispatcher
type notification struct {
	kind  noteKind
	data  []byte
	code  ErrorCode
	err   error
	count int
	// fatal moves the handler to StateError
	fatal bool
	// next is the state entered after noteDisconnected
	next State
}

// session lives from Connect to the next Close or Connect.
type session struct {
	notify chan notification
	quit   chan struct{}
	stop   chan struct{}
	done   chan struct{}
	stopIO func() error
}

func newSession(buffer int) *session {
	return &session{
		notify: make(chan notification, buffer),
		quit:   make(chan struct{}),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
}

// post hands n to the dispatcher. It returns false once teardown started.
func (s *session) post(n notification) bool {
	select {
	case <-s.quit:
		return false
	default:
	}

	select {
	case s.notify <- n:
		return true
	case <-s.quit:
		return false
	}
}

func (s *session) closing() bool {
	select {
	case <-s.quit:
		return true
	default:
		return false
	}
}

// base holds the plumbing shared by every transport
type base struct {
	kind   model.TransportKind
	params model.ConnectionParameters
	opts   Options
	logger *zap.Logger

	// opMu serialises Connect and Close
	opMu sync.Mutex
	sess *session

	state atomic.Int32
	pins  atomic.Uint32

	subMu       sync.RWMutex
	subscribers []EventHandler

	ruleMu      sync.RWMutex
	receiveRule framing.ReceiveRule
	sendRule    framing.SendRule
	queue       OutputQueue

	bytesSent     atomic.Int64
	bytesReceived atomic.Int64
	packetsRx     atomic.Int64
	errorCount    atomic.Int64
	lastActivity  atomic.Int64
}

func (b *base) init(params model.ConnectionParameters, opts Options, logger *zap.Logger) {
	b.kind = params.Kind
	b.params = params
	b.opts = opts.withDefaults()
	b.logger = logger.With(
		zap.String("protocol", string(params.Kind)),
		zap.String("endpoint", params.Endpoint()),
	)
}

// Kind returns the transport kind
func (b *base) Kind() model.TransportKind {
	return b.kind
}

// Parameters returns the connection parameters the handler was built with
func (b *base) Parameters() model.ConnectionParameters {
	return b.params
}

// State returns the current connection state
func (b *base) State() State {
	return State(b.state.Load())
}

// IsConnected returns whether the handler is connected
func (b *base) IsConnected() bool {
	return b.State() == StateConnected
}

func (b *base) setState(s State) {
	old := State(b.state.Swap(int32(s)))
	if old != s {
		b.logger.Debug("State changed",
			zap.Stringer("from", old),
			zap.Stringer("to", s),
		)
	}
}

// PinStatus returns the last sampled pin snapshot
func (b *base) PinStatus() PinStatus {
	return PinStatus(b.pins.Load())
}

// SetPinControl is a no-op for transports without handshake lines
func (b *base) SetPinControl(dtr, rts bool) {}

// Subscribe registers an event callback
func (b *base) Subscribe(fn EventHandler) {
	if fn == nil {
		return
	}
	b.subMu.Lock()
	defer b.subMu.Unlock()
	b.subscribers = append(b.subscribers, fn)
}

// SetReceiveRule sets the inbound framing rule. nil passes chunks through.
func (b *base) SetReceiveRule(rule framing.ReceiveRule) {
	b.ruleMu.Lock()
	defer b.ruleMu.Unlock()
	b.receiveRule = rule
}

// SetSendRule sets the outbound transformation. nil sends data unchanged.
func (b *base) SetSendRule(rule framing.SendRule) {
	b.ruleMu.Lock()
	defer b.ruleMu.Unlock()
	b.sendRule = rule
}

// SetOutputQueue sets the queue that receives completed packets
func (b *base) SetOutputQueue(q OutputQueue) {
	b.ruleMu.Lock()
	defer b.ruleMu.Unlock()
	b.queue = q
}

func (b *base) rules() (framing.ReceiveRule, framing.SendRule, OutputQueue) {
	b.ruleMu.RLock()
	defer b.ruleMu.RUnlock()
	return b.receiveRule, b.sendRule, b.queue
}

// Stats returns a snapshot of the handler counters
func (b *base) Stats() Stats {
	stats := Stats{
		BytesSent:       b.bytesSent.Load(),
		BytesReceived:   b.bytesReceived.Load(),
		PacketsReceived: b.packetsRx.Load(),
		ErrorCount:      b.errorCount.Load(),
		IsConnected:     b.IsConnected(),
	}
	if ts := b.lastActivity.Load(); ts != 0 {
		stats.LastActivity = time.Unix(0, ts)
	}
	return stats
}

func (b *base) touch() {
	b.lastActivity.Store(time.Now().UnixNano())
}

// outbound applies the send rule. It reports false when data must be dropped.
func (b *base) outbound(data []byte) ([]byte, bool) {
	if b.State() != StateConnected {
		b.logger.Debug("Dropping send while not connected",
			zap.Int("bytes", len(data)),
			zap.Stringer("state", b.State()),
		)
		return nil, false
	}

	out := append([]byte(nil), data...)
	if _, rule, _ := b.rules(); rule != nil {
		out = rule(out)
	}
	return out, true
}

// connect starts a new session and hands it to start, which launches the
// transport goroutines and returns the function that stops them.
func (b *base) connect(ctx context.Context, start func(s *session) func() error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	b.opMu.Lock()
	defer b.opMu.Unlock()

	if st := b.State(); st != StateDisconnected {
		return ErrNotClosed
	}

	// a session left over from a peer initiated disconnect
	if err := b.shutdown(); err != nil {
		b.logger.Warn("Previous session did not stop cleanly", zap.Error(err))
	}

	s := newSession(b.opts.NotifyBuffer)
	b.sess = s
	b.setState(StateConnecting)

	b.logger.Info("Connecting")

	go b.dispatch(s)
	s.stopIO = start(s)
	return nil
}

// Close tears the session down and leaves the handler Disconnected
func (b *base) Close() error {
	b.opMu.Lock()
	defer b.opMu.Unlock()

	prev := b.State()
	err := b.shutdown()
	b.setState(StateDisconnected)
	b.pins.Store(0)

	if prev == StateConnected || prev == StateConnecting {
		b.logger.Info("Connection closed")
		b.emit(Event{Type: EventDisconnected, Time: time.Now()})
	}
	return err
}

// shutdown stops the I/O goroutines and the dispatcher of the current
// session. Pending data notifications are still delivered. Caller holds opMu.
func (b *base) shutdown() error {
	s := b.sess
	if s == nil {
		return nil
	}
	b.sess = nil

	close(s.quit)

	var err error
	if s.stopIO != nil {
		err = s.stopIO()
	}

	close(s.stop)

	timer := time.NewTimer(b.opts.CloseTimeout)
	defer timer.Stop()
	select {
	case <-s.done:
	case <-timer.C:
		b.logger.Error("Dispatcher did not stop, is an event handler blocking?")
		if err == nil {
			err = ErrCloseTimeout
		}
	}
	return err
}

// dispatch applies notifications of one session in order
func (b *base) dispatch(s *session) {
	defer close(s.done)

	framer := framing.NewFramer(nil, b.opts.MaxPacketSize)
	for {
		select {
		case n := <-s.notify:
			b.apply(framer, n, true)
		case <-s.stop:
			for {
				select {
				case n := <-s.notify:
					b.apply(framer, n, false)
				default:
					return
				}
			}
		}
	}
}

// apply handles one notification. Once the session is stopping only data
// and write completions are delivered; Close owns the final state.
func (b *base) apply(framer *framing.Framer, n notification, live bool) {
	now := time.Now()

	switch n.kind {
	case noteData:
		b.bytesReceived.Add(int64(len(n.data)))
		b.touch()

		rxRule, _, queue := b.rules()
		framer.SetRule(rxRule)
		for _, packet := range framer.Feed(n.data) {
			b.packetsRx.Inc()
			if queue != nil {
				queue.Enqueue(append([]byte(nil), packet...))
			}
			b.emit(Event{Type: EventDataReceived, Data: packet, Time: now})
		}

	case noteWritten:
		b.bytesSent.Add(int64(n.count))
		b.touch()
		b.emit(Event{Type: EventBytesWritten, Count: n.count, Time: now})

	case noteConnected:
		if !live || b.State() == StateConnected {
			return
		}
		framer.Reset()
		b.setState(StateConnected)
		b.logger.Info("Connected")
		b.emit(Event{Type: EventConnected, Time: now})

	case noteDisconnected:
		if !live {
			return
		}
		was := b.State()
		b.setState(n.next)
		if was == StateConnected {
			b.logger.Info("Peer disconnected")
			b.emit(Event{Type: EventDisconnected, Time: now})
		}

	case noteError:
		if !live {
			return
		}
		b.errorCount.Inc()
		if n.fatal {
			b.setState(StateError)
		}
		b.logger.Error("Transport error",
			zap.Stringer("code", n.code),
			zap.Bool("fatal", n.fatal),
			zap.Error(n.err),
		)
		b.emit(Event{Type: EventError, Code: n.code, Err: n.err, Time: now})
	}
}

func (b *base) emit(ev Event) {
	b.subMu.RLock()
	subs := b.subscribers
	b.subMu.RUnlock()

	for _, fn := range subs {
		fn(ev)
	}
}

func errorNote(code ErrorCode, err error, fatal bool) notification {
	return notification{kind: noteError, code: code, err: err, fatal: fatal}
}
