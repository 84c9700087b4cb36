// internal/protocol/tcp_connection.go
package protocol

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"

	"packetforge/internal/model"
)

// TCPClient implements Handler for outbound TCP connections.
// It never reconnects on its own.
type TCPClient struct {
	base
	slot ioSlot[*stream]
}

// NewTCPClient creates a TCP client handler
func NewTCPClient(params model.ConnectionParameters, opts Options, logger *zap.Logger) *TCPClient {
	tc := &TCPClient{}
	tc.init(params, opts, logger)
	return tc
}

// Connect starts dialing the remote endpoint
func (tc *TCPClient) Connect(ctx context.Context) error {
	return tc.connect(ctx, tc.start)
}

func (tc *TCPClient) start(s *session) func() error {
	tc.slot.reset()

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		tc.run(ctx, s)
	}()

	return func() error {
		cancel()
		if st, ok := tc.slot.stop(); ok {
			st.close()
		}
		wg.Wait()
		return nil
	}
}

func (tc *TCPClient) run(ctx context.Context, s *session) {
	timeout := tc.params.ConnectTimeout
	if timeout <= 0 {
		timeout = tc.opts.ConnectTimeout
	}

	address := tc.params.Endpoint()
	tc.logger.Info("Opening TCP connection", zap.Duration("timeout", timeout))

	dialer := &net.Dialer{
		Timeout:   timeout,
		KeepAlive: 30 * time.Second,
	}
	conn, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		if s.closing() {
			return
		}
		s.post(errorNote(classifyDialError(err), fmt.Errorf("failed to connect to %s: %w", address, err), true))
		return
	}

	st := newStream(conn, s, tc.opts.ReadBufferSize, tc.logger)
	if !tc.slot.attach(st) {
		conn.Close()
		return
	}
	defer tc.slot.detach()

	if !s.post(notification{kind: noteConnected}) {
		st.close()
		return
	}
	st.run()

	code, err := st.wait()
	if s.closing() {
		return
	}
	if err != nil {
		s.post(errorNote(code, err, true))
		return
	}
	s.post(notification{kind: noteDisconnected, next: StateDisconnected})
}

// Send queues data for transmission after applying the send rule
func (tc *TCPClient) Send(data []byte) {
	out, ok := tc.outbound(data)
	if !ok {
		return
	}
	st, ok := tc.slot.current()
	if !ok {
		return
	}
	st.write(out)
}

// LocalAddr returns the local address of the current connection, if any
func (tc *TCPClient) LocalAddr() net.Addr {
	if st, ok := tc.slot.current(); ok {
		return st.conn.LocalAddr()
	}
	return nil
}
