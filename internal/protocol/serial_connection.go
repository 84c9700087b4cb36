// internal/protocol/serial_connection.go
package protocol

import (
	"context"
	"fmt"
	"time"

	"go.bug.st/serial"
	"go.uber.org/zap"

	"packetforge/internal/model"
)

// portHandle is the subset of serial.Port the worker needs
type portHandle interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	Close() error
	SetDTR(dtr bool) error
	SetRTS(rts bool) error
	GetModemStatusBits() (*serial.ModemStatusBits, error)
	SetReadTimeout(t time.Duration) error
}

// openSerialPort opens a port through the driver. Tests replace it.
var openSerialPort = func(name string, mode *serial.Mode) (portHandle, error) {
	return serial.Open(name, mode)
}

// SerialConnection implements Handler for serial ports. All port calls run
// on a dedicated worker goroutine; the owner talks to it through a command
// mailbox and receives results as session notifications.
type SerialConnection struct {
	base
	worker ioSlot[*serialWorker]
}

// NewSerialConnection creates a serial handler
func NewSerialConnection(params model.ConnectionParameters, opts Options, logger *zap.Logger) *SerialConnection {
	sc := &SerialConnection{}
	sc.init(params, opts, logger)
	return sc
}

// Connect starts the worker and asks it to open the port. The port is opened
// once; failure is reported as a single EventError.
func (sc *SerialConnection) Connect(ctx context.Context) error {
	return sc.connect(ctx, sc.start)
}

func (sc *SerialConnection) start(s *session) func() error {
	sc.worker.reset()

	w := newSerialWorker(sc.params, sc.opts, s, &sc.pins, sc.logger)
	sc.worker.attach(w)
	go w.run()
	w.post(command{kind: cmdInit})

	return func() error {
		sc.worker.stop()
		w.post(command{kind: cmdClose})

		timer := time.NewTimer(sc.opts.CloseTimeout)
		defer timer.Stop()
		select {
		case <-w.done:
			return nil
		case <-timer.C:
			sc.logger.Error("Serial worker did not stop in time",
				zap.Duration("timeout", sc.opts.CloseTimeout),
			)
			return fmt.Errorf("serial port %s: %w", sc.params.PortName, ErrCloseTimeout)
		}
	}
}

// Send hands data to the worker after applying the send rule
func (sc *SerialConnection) Send(data []byte) {
	out, ok := sc.outbound(data)
	if !ok {
		return
	}
	if w, ok := sc.worker.current(); ok {
		w.post(command{kind: cmdSend, data: out})
	}
}

// SetPinControl drives the DTR and RTS output lines
func (sc *SerialConnection) SetPinControl(dtr, rts bool) {
	if w, ok := sc.worker.current(); ok {
		w.post(command{kind: cmdSetPins, dtr: dtr, rts: rts})
	}
}

// serialMode converts connection parameters into a driver mode
func serialMode(params model.ConnectionParameters) *serial.Mode {
	mode := &serial.Mode{
		BaudRate: params.BaudRate,
		DataBits: params.DataBits,
	}

	switch params.StopBits {
	case 1.5:
		mode.StopBits = serial.OnePointFiveStopBits
	case 2:
		mode.StopBits = serial.TwoStopBits
	default:
		mode.StopBits = serial.OneStopBit
	}

	switch params.Parity {
	case model.ParityOdd:
		mode.Parity = serial.OddParity
	case model.ParityEven:
		mode.Parity = serial.EvenParity
	case model.ParityMark:
		mode.Parity = serial.MarkParity
	case model.ParitySpace:
		mode.Parity = serial.SpaceParity
	default:
		mode.Parity = serial.NoParity
	}

	return mode
}

// pinStatusFromModem packs driver modem bits into a PinStatus
func pinStatusFromModem(bits *serial.ModemStatusBits) PinStatus {
	if bits == nil {
		return 0
	}
	var p PinStatus
	if bits.DSR {
		p |= PinDSR
	}
	if bits.DCD {
		p |= PinDCD
	}
	if bits.RI {
		p |= PinRI
	}
	if bits.CTS {
		p |= PinCTS
	}
	return p
}
