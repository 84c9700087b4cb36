package model

import (
	"errors"
	"testing"
	"time"
)

func TestParseTransportKind(t *testing.T) {
	tests := map[string]TransportKind{
		"serial":        KindSerial,
		" SERIAL_QT ":   KindSerial,
		"serial_win32":  KindSerial,
		"tcp_server":    KindTCPServer,
		"TCP_CLIENT":    KindTCPClient,
		"udp":           KindUDP,
		"bluetooth":     KindInvalid,
		"":              KindInvalid,
		"tcp client":    KindInvalid,
	}
	for in, want := range tests {
		if got := ParseTransportKind(in); got != want {
			t.Errorf("ParseTransportKind(%q) = %q, want %q", in, got, want)
		}
	}
}

func validSerial() ConnectionParameters {
	return ConnectionParameters{
		Kind:        KindSerial,
		PortName:    "/dev/ttyUSB0",
		BaudRate:    115200,
		DataBits:    8,
		Parity:      ParityNone,
		StopBits:    1,
		FlowControl: FlowNone,
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(p *ConnectionParameters)
		wantErr bool
	}{
		{name: "serial ok", mutate: func(p *ConnectionParameters) {}},
		{name: "serial one and a half stop bits", mutate: func(p *ConnectionParameters) { p.StopBits = 1.5 }},
		{name: "serial missing port", mutate: func(p *ConnectionParameters) { p.PortName = " " }, wantErr: true},
		{name: "serial bad baud", mutate: func(p *ConnectionParameters) { p.BaudRate = 1234 }, wantErr: true},
		{name: "serial bad data bits", mutate: func(p *ConnectionParameters) { p.DataBits = 9 }, wantErr: true},
		{name: "serial bad stop bits", mutate: func(p *ConnectionParameters) { p.StopBits = 3 }, wantErr: true},
		{name: "serial bad parity", mutate: func(p *ConnectionParameters) { p.Parity = "ZERO" }, wantErr: true},
		{name: "serial with network field", mutate: func(p *ConnectionParameters) { p.Port = 80 }, wantErr: true},
		{name: "serial with connect timeout", mutate: func(p *ConnectionParameters) { p.ConnectTimeout = time.Second }, wantErr: true},
		{name: "tcp client ok", mutate: func(p *ConnectionParameters) {
			*p = ConnectionParameters{Kind: KindTCPClient, Address: "127.0.0.1", Port: 9000}
		}},
		{name: "tcp client missing address", mutate: func(p *ConnectionParameters) {
			*p = ConnectionParameters{Kind: KindTCPClient, Port: 9000}
		}, wantErr: true},
		{name: "tcp client port zero", mutate: func(p *ConnectionParameters) {
			*p = ConnectionParameters{Kind: KindTCPClient, Address: "localhost"}
		}, wantErr: true},
		{name: "tcp server any interface", mutate: func(p *ConnectionParameters) {
			*p = ConnectionParameters{Kind: KindTCPServer, Port: 9000}
		}},
		{name: "tcp server with baud", mutate: func(p *ConnectionParameters) {
			*p = ConnectionParameters{Kind: KindTCPServer, Port: 9000, BaudRate: 9600}
		}, wantErr: true},
		{name: "tcp server local port", mutate: func(p *ConnectionParameters) {
			*p = ConnectionParameters{Kind: KindTCPServer, Port: 9000, LocalPort: 9001}
		}, wantErr: true},
		{name: "udp local port", mutate: func(p *ConnectionParameters) {
			*p = ConnectionParameters{Kind: KindUDP, Address: "10.0.0.2", Port: 5000, LocalPort: 5001}
		}},
		{name: "udp port too large", mutate: func(p *ConnectionParameters) {
			*p = ConnectionParameters{Kind: KindUDP, Address: "10.0.0.2", Port: 70000}
		}, wantErr: true},
		{name: "invalid kind", mutate: func(p *ConnectionParameters) { p.Kind = KindInvalid }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := validSerial()
			tt.mutate(&p)
			err := p.Validate()
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidConfiguration) {
					t.Fatalf("Validate() = %v, want ErrInvalidConfiguration", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Validate() = %v", err)
			}
		})
	}
}

func TestEndpoint(t *testing.T) {
	if got := validSerial().Endpoint(); got != "/dev/ttyUSB0" {
		t.Errorf("serial endpoint = %q", got)
	}
	p := ConnectionParameters{Kind: KindTCPClient, Address: "::1", Port: 80}
	if got := p.Endpoint(); got != "[::1]:80" {
		t.Errorf("tcp endpoint = %q", got)
	}
}
