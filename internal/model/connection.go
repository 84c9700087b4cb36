// internal/model/connection.go
package model

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"
)

// ErrInvalidConfiguration is wrapped by every parameter validation failure
var ErrInvalidConfiguration = errors.New("invalid connection configuration")

// TransportKind identifies a transport implementation
type TransportKind string

const (
	KindInvalid   TransportKind = ""
	KindSerial    TransportKind = "SERIAL"
	KindTCPServer TransportKind = "TCP_SERVER"
	KindTCPClient TransportKind = "TCP_CLIENT"
	KindUDP       TransportKind = "UDP"
)

// ParseTransportKind maps a user supplied name to a TransportKind.
// Unknown names yield KindInvalid.
func ParseTransportKind(s string) TransportKind {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "SERIAL", "SERIAL_QT", "SERIAL_WIN32":
		return KindSerial
	case "TCP_SERVER":
		return KindTCPServer
	case "TCP_CLIENT":
		return KindTCPClient
	case "UDP":
		return KindUDP
	default:
		return KindInvalid
	}
}

// IsNetwork reports whether the kind is addressed by host and port
func (k TransportKind) IsNetwork() bool {
	return k == KindTCPServer || k == KindTCPClient || k == KindUDP
}

// Parity represents serial parity
type Parity string

const (
	ParityNone  Parity = "NONE"
	ParityOdd   Parity = "ODD"
	ParityEven  Parity = "EVEN"
	ParityMark  Parity = "MARK"
	ParitySpace Parity = "SPACE"
)

// FlowControl represents serial flow control
type FlowControl string

const (
	FlowNone     FlowControl = "NONE"
	FlowHardware FlowControl = "HARDWARE"
	FlowSoftware FlowControl = "SOFTWARE"
)

// SupportedBaudRates lists the baud rates accepted for serial ports
var SupportedBaudRates = []int{
	1200, 2400, 4800, 9600, 14400, 19200, 38400, 57600,
	115200, 230400, 460800, 921600,
}

// ConnectionParameters describes one transport endpoint.
// Only the fields of the selected kind are meaningful; zero means unset.
type ConnectionParameters struct {
	Kind TransportKind `json:"kind" mapstructure:"kind"`

	// Serial
	PortName    string      `json:"port_name,omitempty" mapstructure:"port_name"`
	BaudRate    int         `json:"baud_rate,omitempty" mapstructure:"baud_rate"`
	DataBits    int         `json:"data_bits,omitempty" mapstructure:"data_bits"`
	Parity      Parity      `json:"parity,omitempty" mapstructure:"parity"`
	StopBits    float64     `json:"stop_bits,omitempty" mapstructure:"stop_bits"`
	FlowControl FlowControl `json:"flow_control,omitempty" mapstructure:"flow_control"`

	// Network
	Address        string        `json:"address,omitempty" mapstructure:"address"`
	Port           int           `json:"port,omitempty" mapstructure:"port"`
	LocalPort      int           `json:"local_port,omitempty" mapstructure:"local_port"`
	ConnectTimeout time.Duration `json:"connect_timeout,omitempty" mapstructure:"connect_timeout"`
}

// Endpoint returns a printable endpoint for logs
func (p ConnectionParameters) Endpoint() string {
	if p.Kind == KindSerial {
		return p.PortName
	}
	return net.JoinHostPort(p.Address, strconv.Itoa(p.Port))
}

// Validate checks that the parameters describe a usable endpoint for their kind
func (p ConnectionParameters) Validate() error {
	var err error
	switch p.Kind {
	case KindSerial:
		err = p.validateSerial()
	case KindTCPClient, KindUDP:
		if strings.TrimSpace(p.Address) == "" {
			err = errors.New("address is required")
		} else {
			err = p.validateNetwork()
		}
	case KindTCPServer:
		err = p.validateNetwork()
	default:
		err = fmt.Errorf("unsupported transport kind: %q", string(p.Kind))
	}

	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfiguration, err)
	}
	return nil
}

func (p ConnectionParameters) validateSerial() error {
	if strings.TrimSpace(p.PortName) == "" {
		return errors.New("serial port name is required")
	}
	if p.Address != "" || p.Port != 0 || p.LocalPort != 0 || p.ConnectTimeout != 0 {
		return errors.New("network fields are not allowed for serial ports")
	}

	valid := false
	for _, rate := range SupportedBaudRates {
		if p.BaudRate == rate {
			valid = true
			break
		}
	}
	if !valid {
		return fmt.Errorf("invalid baud rate: %d", p.BaudRate)
	}

	if p.DataBits < 5 || p.DataBits > 8 {
		return fmt.Errorf("invalid data bits: %d", p.DataBits)
	}

	switch p.StopBits {
	case 1, 1.5, 2:
	default:
		return fmt.Errorf("invalid stop bits: %v", p.StopBits)
	}

	switch p.Parity {
	case ParityNone, ParityOdd, ParityEven, ParityMark, ParitySpace:
	default:
		return fmt.Errorf("invalid parity: %q", string(p.Parity))
	}

	switch p.FlowControl {
	case FlowNone, FlowHardware, FlowSoftware:
	default:
		return fmt.Errorf("invalid flow control: %q", string(p.FlowControl))
	}

	return nil
}

func (p ConnectionParameters) validateNetwork() error {
	if p.PortName != "" || p.BaudRate != 0 || p.DataBits != 0 || p.StopBits != 0 ||
		p.Parity != "" || p.FlowControl != "" {
		return errors.New("serial fields are not allowed for network transports")
	}
	if p.Port < 1 || p.Port > 65535 {
		return fmt.Errorf("invalid port number: %d", p.Port)
	}
	if p.LocalPort < 0 || p.LocalPort > 65535 {
		return fmt.Errorf("invalid local port number: %d", p.LocalPort)
	}
	if p.LocalPort != 0 && p.Kind != KindUDP {
		return errors.New("local port is only used by UDP")
	}
	if p.ConnectTimeout < 0 {
		return errors.New("connect timeout must not be negative")
	}
	return nil
}
