// internal/protocol/factory.go
package protocol

import (
	"fmt"
	"strings"

	"go.uber.org/zap"

	"packetforge/internal/model"
)

// Serial defaults applied when a field is left unset
const (
	DefaultBaudRate = 9600
	DefaultDataBits = 8
	DefaultStopBits = 1
)

// CreateHandler builds the handler for params.Kind. Invalid parameters return
// an error wrapping ErrInvalidConfiguration and no handler is constructed.
func CreateHandler(params model.ConnectionParameters, opts Options, logger *zap.Logger) (Handler, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	params = ApplyDefaults(params)
	if err := params.Validate(); err != nil {
		logger.Warn("Rejected connection parameters",
			zap.String("kind", string(params.Kind)),
			zap.Error(err),
		)
		return nil, err
	}

	switch params.Kind {
	case model.KindSerial:
		logger.Info("Creating serial handler",
			zap.String("port", params.PortName),
			zap.Int("baud_rate", params.BaudRate),
		)
		return NewSerialConnection(params, opts, logger), nil

	case model.KindTCPClient:
		logger.Info("Creating TCP client handler",
			zap.String("address", params.Address),
			zap.Int("port", params.Port),
		)
		return NewTCPClient(params, opts, logger), nil

	case model.KindTCPServer:
		logger.Info("Creating TCP server handler",
			zap.String("address", params.Address),
			zap.Int("port", params.Port),
		)
		return NewTCPServer(params, opts, logger), nil

	case model.KindUDP:
		logger.Info("Creating UDP handler",
			zap.String("address", params.Address),
			zap.Int("port", params.Port),
			zap.Int("local_port", params.LocalPort),
		)
		return NewUDPHandler(params, opts, logger), nil

	default:
		return nil, fmt.Errorf("%w: unsupported transport kind: %q", ErrInvalidConfiguration, string(params.Kind))
	}
}

// ApplyDefaults normalises names and fills unset serial fields
func ApplyDefaults(params model.ConnectionParameters) model.ConnectionParameters {
	if kind := model.ParseTransportKind(string(params.Kind)); kind != model.KindInvalid {
		params.Kind = kind
	}
	if params.Kind != model.KindSerial {
		return params
	}

	params.Parity = model.Parity(strings.ToUpper(strings.TrimSpace(string(params.Parity))))
	params.FlowControl = model.FlowControl(strings.ToUpper(strings.TrimSpace(string(params.FlowControl))))
	if params.BaudRate == 0 {
		params.BaudRate = DefaultBaudRate
	}
	if params.DataBits == 0 {
		params.DataBits = DefaultDataBits
	}
	if params.StopBits == 0 {
		params.StopBits = DefaultStopBits
	}
	if params.Parity == "" {
		params.Parity = model.ParityNone
	}
	if params.FlowControl == "" {
		params.FlowControl = model.FlowNone
	}
	return params
}

// ValidateParameters checks params the same way CreateHandler does
func ValidateParameters(params model.ConnectionParameters) error {
	return ApplyDefaults(params).Validate()
}
