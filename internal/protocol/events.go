// internal/protocol/events.go
package protocol

import "time"

// EventType identifies a handler notification
type EventType int

const (
	EventConnected EventType = iota
	EventDisconnected
	EventDataReceived
	EventError
	EventBytesWritten
)

func (t EventType) String() string {
	switch t {
	case EventConnected:
		return "CONNECTED"
	case EventDisconnected:
		return "DISCONNECTED"
	case EventDataReceived:
		return "DATA_RECEIVED"
	case EventError:
		return "ERROR"
	case EventBytesWritten:
		return "BYTES_WRITTEN"
	default:
		return "UNKNOWN"
	}
}

// Event is delivered to subscribers.
// Data is set for EventDataReceived, Code and Err for EventError and Count
// for EventBytesWritten.
type Event struct {
	Type  EventType
	Data  []byte
	Code  ErrorCode
	Err   error
	Count int
	Time  time.Time
}

// EventHandler receives handler events on the handler's dispatch goroutine
type EventHandler func(Event)
