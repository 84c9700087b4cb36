// internal/protocol/connection.go
package protocol

import (
	"time"

	"packetforge/pkg/framing"
)

// Options carries the transport tunables shared by every handler
type Options struct {
	BindRetry       RetryPolicy   `json:"bind_retry"`
	PinPollInterval time.Duration `json:"pin_poll_interval"`
	SerialReadPoll  time.Duration `json:"serial_read_poll"`
	CloseTimeout    time.Duration `json:"close_timeout"`
	ConnectTimeout  time.Duration `json:"connect_timeout"`
	ReadBufferSize  int           `json:"read_buffer_size"`
	MaxPacketSize   int           `json:"max_packet_size"`
	NotifyBuffer    int           `json:"notify_buffer"`
}

// Default transport tunables
const (
	DefaultBindAttempts    = 5
	DefaultBindDelay       = time.Second
	DefaultPinPollInterval = 100 * time.Millisecond
	DefaultSerialReadPoll  = 100 * time.Millisecond
	DefaultCloseTimeout    = 2 * time.Second
	DefaultConnectTimeout  = 5 * time.Second
	DefaultReadBufferSize  = 4096
	DefaultNotifyBuffer    = 256
)

// DefaultOptions returns the standard tunables
func DefaultOptions() Options {
	return Options{}.withDefaults()
}

func (o Options) withDefaults() Options {
	if o.BindRetry.Attempts <= 0 {
		o.BindRetry.Attempts = DefaultBindAttempts
	}
	if o.BindRetry.Delay <= 0 {
		o.BindRetry.Delay = DefaultBindDelay
	}
	if o.PinPollInterval <= 0 {
		o.PinPollInterval = DefaultPinPollInterval
	}
	if o.SerialReadPoll <= 0 {
		o.SerialReadPoll = DefaultSerialReadPoll
	}
	if o.CloseTimeout <= 0 {
		o.CloseTimeout = DefaultCloseTimeout
	}
	if o.ConnectTimeout <= 0 {
		o.ConnectTimeout = DefaultConnectTimeout
	}
	if o.ReadBufferSize <= 0 {
		o.ReadBufferSize = DefaultReadBufferSize
	}
	if o.MaxPacketSize <= 0 {
		o.MaxPacketSize = framing.DefaultMaxPacketSize
	}
	if o.NotifyBuffer <= 0 {
		o.NotifyBuffer = DefaultNotifyBuffer
	}
	return o
}
