// internal/model/event.go
package model

import (
	"time"

	"github.com/google/uuid"
)

// EventType represents the type of event
type EventType string

const (
	EventConnected     EventType = "CONNECTED"
	EventDisconnected  EventType = "DISCONNECTED"
	EventDataReceived  EventType = "DATA_RECEIVED"
	EventError         EventType = "ERROR"
	EventBytesWritten  EventType = "BYTES_WRITTEN"
	EventSessionOpened EventType = "SESSION_OPENED"
	EventSessionClosed EventType = "SESSION_CLOSED"
)

// SessionEvent is a transport event tagged with the session that produced it
type SessionEvent struct {
	ID        uuid.UUID     `json:"id"`
	EventType EventType     `json:"event_type"`
	SessionID uuid.UUID     `json:"session_id"`
	Kind      TransportKind `json:"kind"`
	Data      []byte        `json:"data,omitempty"`
	Count     int           `json:"count,omitempty"`
	ErrorCode string        `json:"error_code,omitempty"`
	Message   string        `json:"message,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
	Severity  string        `json:"severity"` // INFO, WARNING, ERROR
}

// NewSessionEvent creates an event stamped with a fresh id and the current time
func NewSessionEvent(eventType EventType, sessionID uuid.UUID, kind TransportKind) SessionEvent {
	severity := "INFO"
	if eventType == EventError {
		severity = "ERROR"
	}
	return SessionEvent{
		ID:        uuid.New(),
		EventType: eventType,
		SessionID: sessionID,
		Kind:      kind,
		Timestamp: time.Now(),
		Severity:  severity,
	}
}
