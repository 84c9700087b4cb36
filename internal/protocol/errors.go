// internal/protocol/errors.go
package protocol

import (
	"context"
	"errors"
	"net"
	"os"
	"syscall"

	"go.bug.st/serial"

	"packetforge/internal/model"
)

var (
	// ErrInvalidConfiguration is returned by the factory for unusable parameters
	ErrInvalidConfiguration = model.ErrInvalidConfiguration
	// ErrNotClosed is returned by Connect when the handler is not Disconnected
	ErrNotClosed = errors.New("handler is not closed")
	// ErrCloseTimeout is returned by Close when the transport did not stop in time
	ErrCloseTimeout = errors.New("timed out waiting for transport to stop")
	// ErrBindFailed is wrapped when every bind attempt failed
	ErrBindFailed = errors.New("bind failed")
)

// ErrorCode classifies transport failures reported through EventError
type ErrorCode int

const (
	ErrCodeNone ErrorCode = iota
	ErrCodeOpenFailed
	ErrCodePortNotFound
	ErrCodePortBusy
	ErrCodePermissionDenied
	ErrCodeConnectFailed
	ErrCodeConnectionRefused
	ErrCodeHostNotFound
	ErrCodeTimeout
	ErrCodeBindFailed
	ErrCodeAcceptFailed
	ErrCodeRead
	ErrCodeWrite
	ErrCodeConnectionReset
	ErrCodeUnknown
)

var errorCodeNames = map[ErrorCode]string{
	ErrCodeNone:              "NONE",
	ErrCodeOpenFailed:        "OPEN_FAILED",
	ErrCodePortNotFound:      "PORT_NOT_FOUND",
	ErrCodePortBusy:          "PORT_BUSY",
	ErrCodePermissionDenied:  "PERMISSION_DENIED",
	ErrCodeConnectFailed:     "CONNECT_FAILED",
	ErrCodeConnectionRefused: "CONNECTION_REFUSED",
	ErrCodeHostNotFound:      "HOST_NOT_FOUND",
	ErrCodeTimeout:           "TIMEOUT",
	ErrCodeBindFailed:        "BIND_FAILED",
	ErrCodeAcceptFailed:      "ACCEPT_FAILED",
	ErrCodeRead:              "READ_ERROR",
	ErrCodeWrite:             "WRITE_ERROR",
	ErrCodeConnectionReset:   "CONNECTION_RESET",
	ErrCodeUnknown:           "UNKNOWN",
}

func (c ErrorCode) String() string {
	if name, ok := errorCodeNames[c]; ok {
		return name
	}
	return "UNKNOWN"
}

// classifySerialOpenError maps a driver error from opening a port
func classifySerialOpenError(err error) ErrorCode {
	var portErr *serial.PortError
	if errors.As(err, &portErr) {
		switch portErr.Code() {
		case serial.PortNotFound:
			return ErrCodePortNotFound
		case serial.PortBusy:
			return ErrCodePortBusy
		case serial.PermissionDenied:
			return ErrCodePermissionDenied
		}
	}

	switch {
	case errors.Is(err, os.ErrNotExist):
		return ErrCodePortNotFound
	case errors.Is(err, os.ErrPermission):
		return ErrCodePermissionDenied
	case errors.Is(err, syscall.EBUSY):
		return ErrCodePortBusy
	}
	return ErrCodeOpenFailed
}

// classifyDialError maps a failed TCP connect attempt
func classifyDialError(err error) ErrorCode {
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		if dnsErr.IsTimeout {
			return ErrCodeTimeout
		}
		return ErrCodeHostNotFound
	}
	if errors.Is(err, syscall.ECONNREFUSED) {
		return ErrCodeConnectionRefused
	}
	if errors.Is(err, context.DeadlineExceeded) || isTimeout(err) {
		return ErrCodeTimeout
	}
	return ErrCodeConnectFailed
}

// classifyReadError maps a failed read on an established stream
func classifyReadError(err error) ErrorCode {
	if errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.EPIPE) {
		return ErrCodeConnectionReset
	}
	return ErrCodeRead
}

func isTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
