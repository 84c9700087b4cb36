// internal/protocol/protocol.go
package protocol

import (
	"context"
	"time"

	"packetforge/internal/model"
	"packetforge/pkg/framing"
)

// Handler is the transport independent connection contract.
//
// Connect starts an asynchronous attempt and reports the outcome through
// events. Send is dropped unless the handler is connected. Close is
// idempotent and leaves the handler Disconnected. All events of one handler
// are delivered in order from a single goroutine; an EventHandler must not
// call Close synchronously.
type Handler interface {
	// Connection lifecycle
	Connect(ctx context.Context) error
	Close() error
	State() State
	IsConnected() bool

	// Data communication
	Send(data []byte)
	Subscribe(fn EventHandler)
	SetReceiveRule(rule framing.ReceiveRule)
	SetSendRule(rule framing.SendRule)
	SetOutputQueue(q OutputQueue)

	// Handshake lines, serial only
	SetPinControl(dtr, rts bool)
	PinStatus() PinStatus

	// Information
	Kind() model.TransportKind
	Parameters() model.ConnectionParameters
	Stats() Stats
}

// State is the handler connection state
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateError
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "DISCONNECTED"
	case StateConnecting:
		return "CONNECTING"
	case StateConnected:
		return "CONNECTED"
	case StateError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// PinStatus is a bitmask of serial handshake input lines
type PinStatus uint8

const (
	PinDSR PinStatus = 0x04
	PinDCD PinStatus = 0x08
	PinRI  PinStatus = 0x10
	PinCTS PinStatus = 0x20
)

// Has reports whether all bits of pin are set
func (p PinStatus) Has(pin PinStatus) bool {
	return p&pin == pin
}

// Decode expands the bitmask into named lines
func (p PinStatus) Decode() model.PinState {
	return model.PinState{
		Raw: uint8(p),
		DSR: p.Has(PinDSR),
		DCD: p.Has(PinDCD),
		RI:  p.Has(PinRI),
		CTS: p.Has(PinCTS),
	}
}

// Stats provides handler level counters
type Stats struct {
	BytesSent       int64     `json:"bytes_sent"`
	BytesReceived   int64     `json:"bytes_received"`
	PacketsReceived int64     `json:"packets_received"`
	ErrorCount      int64     `json:"error_count"`
	LastActivity    time.Time `json:"last_activity"`
	IsConnected     bool      `json:"is_connected"`
}
