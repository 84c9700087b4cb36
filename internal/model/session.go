// internal/model/session.go
package model

import (
	"time"

	"github.com/google/uuid"
)

// OpenRequest asks for a new session on one transport
type OpenRequest struct {
	Name        string               `json:"name,omitempty" mapstructure:"name"`
	Parameters  ConnectionParameters `json:"parameters" mapstructure:"parameters"`
	ReceiveRule string               `json:"receive_rule,omitempty" mapstructure:"receive_rule"`
	SendRule    string               `json:"send_rule,omitempty" mapstructure:"send_rule"`
	// AutoReconnect enables the caller owned reconnect policy for this session
	AutoReconnect bool `json:"auto_reconnect,omitempty" mapstructure:"auto_reconnect"`
}

// SessionInfo is the public view of an open session
type SessionInfo struct {
	ID            uuid.UUID            `json:"id"`
	Name          string               `json:"name,omitempty"`
	Kind          TransportKind        `json:"kind"`
	Endpoint      string               `json:"endpoint"`
	Parameters    ConnectionParameters `json:"parameters"`
	ReceiveRule   string               `json:"receive_rule,omitempty"`
	SendRule      string               `json:"send_rule,omitempty"`
	State         string               `json:"state"`
	PinStatus     uint8                `json:"pin_status"`
	QueuedPackets int                  `json:"queued_packets"`
	BytesSent     int64                `json:"bytes_sent"`
	BytesReceived int64                `json:"bytes_received"`
	PacketsRx     int64                `json:"packets_received"`
	Errors        int64                `json:"errors"`
	OpenedAt      time.Time            `json:"opened_at"`
	LastActivity  time.Time            `json:"last_activity,omitempty"`
}

// PinState is a decoded pin status snapshot
type PinState struct {
	Raw uint8 `json:"raw"`
	DSR bool  `json:"dsr"`
	DCD bool  `json:"dcd"`
	RI  bool  `json:"ri"`
	CTS bool  `json:"cts"`
}

// PortInfo describes a serial port found on the host
type PortInfo struct {
	Name         string `json:"name"`
	IsUSB        bool   `json:"is_usb"`
	VID          string `json:"vid,omitempty"`
	PID          string `json:"pid,omitempty"`
	SerialNumber string `json:"serial_number,omitempty"`
	Product      string `json:"product,omitempty"`
	Vendor       string `json:"vendor,omitempty"`
	Chip         string `json:"chip,omitempty"`

	// LimitedHandshake marks bridges that do not report every modem line
	LimitedHandshake bool `json:"limited_handshake,omitempty"`
}
