// internal/protocol/stream.go
package protocol

import (
	"errors"
	"fmt"
	"io"
	"net"
	"sync"

	"go.uber.org/zap"
)

// stream pumps one established net.Conn: a reader goroutine posts inbound
// chunks and a writer goroutine drains queued payloads in call order.
type stream struct {
	conn     net.Conn
	sess     *session
	logger   *zap.Logger
	readSize int

	outbox *mailbox[[]byte]

	closed    chan struct{}
	closeOnce sync.Once
	done      chan struct{}
	wg        sync.WaitGroup

	errOnce sync.Once
	code    ErrorCode
	err     error
}

func newStream(conn net.Conn, sess *session, readSize int, logger *zap.Logger) *stream {
	return &stream{
		conn:     conn,
		sess:     sess,
		readSize: readSize,
		logger:   logger.With(zap.String("remote", conn.RemoteAddr().String())),
		outbox:   newMailbox[[]byte](),
		closed:   make(chan struct{}),
		done:     make(chan struct{}),
	}
}

func (st *stream) run() {
	st.wg.Add(2)
	go st.readLoop()
	go st.writeLoop()
	go func() {
		st.wg.Wait()
		close(st.done)
	}()
}

// write queues data for the writer goroutine
func (st *stream) write(data []byte) {
	st.outbox.push(data)
}

// close shuts the connection. Safe to call more than once.
func (st *stream) close() {
	st.closeOnce.Do(func() {
		close(st.closed)
		if err := st.conn.Close(); err != nil {
			st.logger.Debug("Close connection", zap.Error(err))
		}
	})
}

func (st *stream) isClosed() bool {
	select {
	case <-st.closed:
		return true
	default:
		return false
	}
}

// fail records the first failure and closes the connection
func (st *stream) fail(code ErrorCode, err error) {
	st.errOnce.Do(func() {
		st.code = code
		st.err = err
	})
	st.close()
}

// wait blocks until both goroutines exited. A nil error means the peer
// closed the connection or close was called.
func (st *stream) wait() (ErrorCode, error) {
	<-st.done
	return st.code, st.err
}

func (st *stream) readLoop() {
	defer st.wg.Done()

	buf := make([]byte, st.readSize)
	for {
		n, err := st.conn.Read(buf)
		if n > 0 {
			chunk := append([]byte(nil), buf[:n]...)
			if !st.sess.post(notification{kind: noteData, data: chunk}) {
				st.close()
				return
			}
		}
		if err != nil {
			switch {
			case st.isClosed():
			case errors.Is(err, io.EOF):
				st.logger.Debug("Peer closed connection")
				st.close()
			default:
				st.fail(classifyReadError(err), fmt.Errorf("read failed: %w", err))
			}
			return
		}
	}
}

func (st *stream) writeLoop() {
	defer st.wg.Done()

	for {
		select {
		case <-st.closed:
			return
		case <-st.outbox.wake:
		}

		for _, data := range st.outbox.drain() {
			n, err := st.conn.Write(data)
			if err != nil {
				if !st.isClosed() {
					st.fail(ErrCodeWrite, fmt.Errorf("write failed: %w", err))
				}
				return
			}
			st.sess.post(notification{kind: noteWritten, count: n})
		}
	}
}

// ioSlot guards the currently attached I/O object of a transport so that a
// stop request and an attach racing from a connect goroutine agree.
type ioSlot[T any] struct {
	mu      sync.Mutex
	cur     T
	set     bool
	stopped bool
}

// reset prepares the slot for a new session
func (s *ioSlot[T]) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	var zero T
	s.cur, s.set, s.stopped = zero, false, false
}

// attach stores v unless the slot was stopped
func (s *ioSlot[T]) attach(v T) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return false
	}
	s.cur, s.set = v, true
	return true
}

// detach clears the slot
func (s *ioSlot[T]) detach() {
	s.mu.Lock()
	defer s.mu.Unlock()
	var zero T
	s.cur, s.set = zero, false
}

func (s *ioSlot[T]) current() (T, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cur, s.set
}

// stop marks the slot stopped and takes the attached value, if any
func (s *ioSlot[T]) stop() (T, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var zero T
	cur, set := s.cur, s.set
	s.cur, s.set, s.stopped = zero, false, true
	return cur, set
}
