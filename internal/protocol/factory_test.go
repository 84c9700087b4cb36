package protocol

import (
	"errors"
	"testing"

	"go.uber.org/zap"

	"packetforge/internal/model"
)

func TestCreateHandler(t *testing.T) {
	tests := []struct {
		name   string
		params model.ConnectionParameters
		want   model.TransportKind
	}{
		{"serial", model.ConnectionParameters{Kind: model.KindSerial, PortName: "COM3"}, model.KindSerial},
		{"legacy serial name", model.ConnectionParameters{Kind: "serial_win32", PortName: "COM3"}, model.KindSerial},
		{"tcp client", model.ConnectionParameters{Kind: model.KindTCPClient, Address: "localhost", Port: 502}, model.KindTCPClient},
		{"tcp server", model.ConnectionParameters{Kind: model.KindTCPServer, Port: 502}, model.KindTCPServer},
		{"udp", model.ConnectionParameters{Kind: model.KindUDP, Address: "10.0.0.1", Port: 5000}, model.KindUDP},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, err := CreateHandler(tt.params, DefaultOptions(), zap.NewNop())
			if err != nil {
				t.Fatalf("CreateHandler: %v", err)
			}
			if h.Kind() != tt.want {
				t.Errorf("kind = %s, want %s", h.Kind(), tt.want)
			}
			if h.State() != StateDisconnected {
				t.Errorf("initial state = %s", h.State())
			}
		})
	}
}

func TestCreateHandlerTypes(t *testing.T) {
	h, _ := CreateHandler(model.ConnectionParameters{Kind: model.KindSerial, PortName: "COM1"}, DefaultOptions(), nil)
	if _, ok := h.(*SerialConnection); !ok {
		t.Errorf("serial handler type = %T", h)
	}
	h, _ = CreateHandler(model.ConnectionParameters{Kind: model.KindTCPServer, Port: 1}, DefaultOptions(), nil)
	if _, ok := h.(*TCPServer); !ok {
		t.Errorf("tcp server handler type = %T", h)
	}
}

func TestCreateHandlerDefaults(t *testing.T) {
	h, err := CreateHandler(model.ConnectionParameters{Kind: model.KindSerial, PortName: "/dev/ttyS0", Parity: "even"}, DefaultOptions(), zap.NewNop())
	if err != nil {
		t.Fatalf("CreateHandler: %v", err)
	}
	p := h.Parameters()
	if p.BaudRate != 9600 || p.DataBits != 8 || p.StopBits != 1 {
		t.Errorf("defaults not applied: %+v", p)
	}
	if p.Parity != model.ParityEven || p.FlowControl != model.FlowNone {
		t.Errorf("parity/flow = %s/%s", p.Parity, p.FlowControl)
	}
}

func TestCreateHandlerInvalid(t *testing.T) {
	tests := []struct {
		name   string
		params model.ConnectionParameters
	}{
		{"unknown kind", model.ConnectionParameters{Kind: "BLUETOOTH"}},
		{"serial without port", model.ConnectionParameters{Kind: model.KindSerial}},
		{"serial bad baud", model.ConnectionParameters{Kind: model.KindSerial, PortName: "COM1", BaudRate: 1000}},
		{"tcp client without host", model.ConnectionParameters{Kind: model.KindTCPClient, Port: 80}},
		{"tcp server port out of range", model.ConnectionParameters{Kind: model.KindTCPServer, Port: 65536}},
		{"udp with serial fields", model.ConnectionParameters{Kind: model.KindUDP, Address: "h", Port: 1, BaudRate: 9600}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, err := CreateHandler(tt.params, DefaultOptions(), zap.NewNop())
			if !errors.Is(err, ErrInvalidConfiguration) {
				t.Fatalf("error = %v, want ErrInvalidConfiguration", err)
			}
			if h != nil {
				t.Errorf("handler constructed for invalid parameters")
			}
			if err := ValidateParameters(tt.params); err == nil {
				t.Errorf("ValidateParameters accepted invalid parameters")
			}
		})
	}
}

func TestDefaultOptions(t *testing.T) {
	o := DefaultOptions()
	if o.BindRetry.Attempts != 5 || o.BindRetry.Delay != DefaultBindDelay {
		t.Errorf("bind retry = %+v", o.BindRetry)
	}
	if o.PinPollInterval != DefaultPinPollInterval {
		t.Errorf("pin poll interval = %s", o.PinPollInterval)
	}
}
