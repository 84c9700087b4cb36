// internal/protocol/udp_connection.go
package protocol

import (
	"context"
	"fmt"
	"net"
	"sync"

	"go.uber.org/zap"

	"packetforge/internal/model"
)

// UDPHandler implements Handler for datagram exchange with one remote peer.
// The local socket binds on all interfaces; Connected is reported once the
// bind succeeded.
type UDPHandler struct {
	base
	listen func(network string, laddr *net.UDPAddr) (*net.UDPConn, error)
	slot   ioSlot[*udpLink]
}

type udpLink struct {
	conn   *net.UDPConn
	remote *net.UDPAddr
	outbox *mailbox[[]byte]
}

// NewUDPHandler creates a UDP handler
func NewUDPHandler(params model.ConnectionParameters, opts Options, logger *zap.Logger) *UDPHandler {
	uh := &UDPHandler{listen: net.ListenUDP}
	uh.init(params, opts, logger)
	return uh
}

// Connect resolves the remote peer and binds the local socket
func (uh *UDPHandler) Connect(ctx context.Context) error {
	return uh.connect(ctx, uh.start)
}

func (uh *UDPHandler) localPort() int {
	if uh.params.LocalPort != 0 {
		return uh.params.LocalPort
	}
	return uh.params.Port
}

func (uh *UDPHandler) start(s *session) func() error {
	uh.slot.reset()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		uh.run(s, &wg)
	}()

	return func() error {
		if link, ok := uh.slot.stop(); ok {
			link.conn.Close()
		}
		wg.Wait()
		return nil
	}
}

func (uh *UDPHandler) run(s *session, wg *sync.WaitGroup) {
	remote, err := net.ResolveUDPAddr("udp", uh.params.Endpoint())
	if err != nil {
		s.post(errorNote(ErrCodeHostNotFound, fmt.Errorf("failed to resolve %s: %w", uh.params.Endpoint(), err), true))
		return
	}

	laddr := &net.UDPAddr{Port: uh.localPort()}
	conn, _, err := bindWithRetry(s.quit, uh.opts.BindRetry, uh.logger, func() (*net.UDPConn, error) {
		return uh.listen("udp", laddr)
	})
	if err != nil {
		if !s.closing() {
			s.post(errorNote(ErrCodeBindFailed, fmt.Errorf("failed to bind udp port %d: %w", laddr.Port, err), true))
		}
		return
	}

	link := &udpLink{conn: conn, remote: remote, outbox: newMailbox[[]byte]()}
	if !uh.slot.attach(link) {
		conn.Close()
		return
	}

	uh.logger.Info("UDP socket bound",
		zap.String("local", conn.LocalAddr().String()),
		zap.String("remote", remote.String()),
	)

	if !s.post(notification{kind: noteConnected}) {
		return
	}

	closed := make(chan struct{})
	wg.Add(1)
	go func() {
		defer wg.Done()
		uh.writeLoop(s, link, closed)
	}()
	defer close(closed)

	buf := make([]byte, 64*1024)
	for {
		n, _, err := conn.ReadFromUDP(buf)
		if n > 0 {
			datagram := append([]byte(nil), buf[:n]...)
			if !s.post(notification{kind: noteData, data: datagram}) {
				return
			}
		}
		if err != nil {
			if s.closing() {
				return
			}
			uh.slot.detach()
			conn.Close()
			s.post(errorNote(ErrCodeRead, fmt.Errorf("udp read failed: %w", err), true))
			return
		}
	}
}

func (uh *UDPHandler) writeLoop(s *session, link *udpLink, closed <-chan struct{}) {
	for {
		select {
		case <-closed:
			return
		case <-link.outbox.wake:
		}

		for _, data := range link.outbox.drain() {
			n, err := link.conn.WriteToUDP(data, link.remote)
			if err != nil {
				if s.closing() {
					return
				}
				s.post(errorNote(ErrCodeWrite, fmt.Errorf("udp write failed: %w", err), false))
				continue
			}
			s.post(notification{kind: noteWritten, count: n})
		}
	}
}

// Send transmits data as one datagram to the remote peer
func (uh *UDPHandler) Send(data []byte) {
	out, ok := uh.outbound(data)
	if !ok {
		return
	}
	link, ok := uh.slot.current()
	if !ok {
		return
	}
	link.outbox.push(out)
}

// LocalAddr returns the bound local address, or nil when not bound
func (uh *UDPHandler) LocalAddr() net.Addr {
	if link, ok := uh.slot.current(); ok {
		return link.conn.LocalAddr()
	}
	return nil
}
