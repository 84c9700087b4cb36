// internal/protocol/tcp_server.go
package protocol

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"sync"

	"go.uber.org/zap"

	"packetforge/internal/model"
)

// TCPServer implements Handler for a listening socket that serves one client
// at a time. While a client is attached Accept is not called, so further
// clients wait in the kernel backlog until the current one leaves.
type TCPServer struct {
	base
	listen   func(network, address string) (net.Listener, error)
	listener ioSlot[net.Listener]
	client   ioSlot[*stream]
}

// NewTCPServer creates a single client TCP server handler
func NewTCPServer(params model.ConnectionParameters, opts Options, logger *zap.Logger) *TCPServer {
	ts := &TCPServer{listen: net.Listen}
	ts.init(params, opts, logger)
	return ts
}

// Connect binds the listening socket, retrying per the bind policy
func (ts *TCPServer) Connect(ctx context.Context) error {
	return ts.connect(ctx, ts.start)
}

func (ts *TCPServer) start(s *session) func() error {
	ts.listener.reset()
	ts.client.reset()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ts.run(s)
	}()

	return func() error {
		if st, ok := ts.client.stop(); ok {
			st.close()
		}
		if ln, ok := ts.listener.stop(); ok {
			ln.Close()
		}
		wg.Wait()
		return nil
	}
}

func (ts *TCPServer) listenAddress() string {
	return net.JoinHostPort(ts.params.Address, strconv.Itoa(ts.params.Port))
}

func (ts *TCPServer) run(s *session) {
	address := ts.listenAddress()

	ln, _, err := bindWithRetry(s.quit, ts.opts.BindRetry, ts.logger, func() (net.Listener, error) {
		return ts.listen("tcp", address)
	})
	if err != nil {
		if !s.closing() {
			s.post(errorNote(ErrCodeBindFailed, fmt.Errorf("failed to listen on %s: %w", address, err), true))
		}
		return
	}
	if !ts.listener.attach(ln) {
		ln.Close()
		return
	}

	ts.logger.Info("TCP server listening", zap.String("address", ln.Addr().String()))

	for {
		conn, err := ln.Accept()
		if err != nil {
			if s.closing() {
				return
			}
			ts.listener.detach()
			ln.Close()
			s.post(errorNote(ErrCodeAcceptFailed, fmt.Errorf("accept failed: %w", err), true))
			return
		}

		if !ts.serve(s, conn) {
			return
		}
	}
}

// serve handles one client until it leaves. It returns false when the
// session is stopping.
func (ts *TCPServer) serve(s *session, conn net.Conn) bool {
	st := newStream(conn, s, ts.opts.ReadBufferSize, ts.logger)
	if !ts.client.attach(st) {
		conn.Close()
		return false
	}
	defer ts.client.detach()

	st.logger.Info("Client attached")

	if !s.post(notification{kind: noteConnected}) {
		st.close()
		return false
	}
	st.run()

	code, err := st.wait()
	if s.closing() {
		return false
	}
	if err != nil {
		s.post(errorNote(code, err, false))
	}
	st.logger.Info("Client detached, accepting again")
	return s.post(notification{kind: noteDisconnected, next: StateConnecting})
}

// Send queues data for the attached client after applying the send rule
func (ts *TCPServer) Send(data []byte) {
	out, ok := ts.outbound(data)
	if !ok {
		return
	}
	st, ok := ts.client.current()
	if !ok {
		return
	}
	st.write(out)
}

// ListenAddr returns the bound address, or nil when not listening
func (ts *TCPServer) ListenAddr() net.Addr {
	if ln, ok := ts.listener.current(); ok {
		return ln.Addr()
	}
	return nil
}
