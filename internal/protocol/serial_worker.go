// internal/protocol/serial_worker.go
package protocol

import (
	"fmt"
	"time"

	"go.uber.org/atomic"
	"go.uber.org/zap"

	"packetforge/internal/model"
)

type commandKind int

const (
	cmdInit commandKind = iota
	cmdSend
	cmdSetPins
	cmdClose
)

type command struct {
	kind     commandKind
	data     []byte
	dtr, rts bool
}

// serialWorker owns one serial port for the lifetime of a session.
// Commands are handled strictly in the order they were posted.
type serialWorker struct {
	params model.ConnectionParameters
	opts   Options
	sess   *session
	pins   *atomic.Uint32
	logger *zap.Logger

	inbox *mailbox[command]
	done  chan struct{}

	port       portHandle
	readerStop chan struct{}
	readerDone chan struct{}
	readErr    chan error
	ticker     *time.Ticker
}

func newSerialWorker(params model.ConnectionParameters, opts Options, sess *session, pins *atomic.Uint32, logger *zap.Logger) *serialWorker {
	return &serialWorker{
		params: params,
		opts:   opts,
		sess:   sess,
		pins:   pins,
		logger: logger.With(zap.String("component", "serial_worker")),
		inbox:  newMailbox[command](),
		done:   make(chan struct{}),
	}
}

func (w *serialWorker) post(cmd command) {
	w.inbox.push(cmd)
}

func (w *serialWorker) run() {
	defer close(w.done)

	for {
		var tick <-chan time.Time
		if w.ticker != nil {
			tick = w.ticker.C
		}

		select {
		case <-w.inbox.wake:
			for _, cmd := range w.inbox.drain() {
				if !w.handle(cmd) {
					return
				}
			}

		case <-tick:
			w.samplePins()

		case err := <-w.readErr:
			w.closePort()
			w.sess.post(errorNote(ErrCodeRead, fmt.Errorf("serial read failed: %w", err), true))
		}
	}
}

// handle executes one command. It returns false when the worker must exit.
func (w *serialWorker) handle(cmd command) bool {
	switch cmd.kind {
	case cmdInit:
		w.open()
	case cmdSend:
		w.write(cmd.data)
	case cmdSetPins:
		w.setPins(cmd.dtr, cmd.rts)
	case cmdClose:
		w.closePort()
		w.sess.post(notification{kind: noteDisconnected, next: StateDisconnected})
		return false
	}
	return true
}

func (w *serialWorker) open() {
	if w.port != nil {
		return
	}

	w.logger.Info("Opening serial port",
		zap.Int("baud_rate", w.params.BaudRate),
		zap.Int("data_bits", w.params.DataBits),
		zap.String("parity", string(w.params.Parity)),
		zap.Float64("stop_bits", w.params.StopBits),
	)

	if w.params.FlowControl != "" && w.params.FlowControl != model.FlowNone {
		w.logger.Warn("Flow control is not applied by the serial driver",
			zap.String("flow_control", string(w.params.FlowControl)),
		)
	}

	port, err := openSerialPort(w.params.PortName, serialMode(w.params))
	if err != nil {
		w.sess.post(errorNote(classifySerialOpenError(err), fmt.Errorf("failed to open serial port %s: %w", w.params.PortName, err), true))
		return
	}

	if err := port.SetReadTimeout(w.opts.SerialReadPoll); err != nil {
		port.Close()
		w.sess.post(errorNote(ErrCodeOpenFailed, fmt.Errorf("failed to set read timeout: %w", err), true))
		return
	}

	w.port = port
	w.readerStop = make(chan struct{})
	w.readerDone = make(chan struct{})
	w.readErr = make(chan error, 1)

	w.samplePins()
	w.ticker = time.NewTicker(w.opts.PinPollInterval)

	w.sess.post(notification{kind: noteConnected})
	go w.readLoop(port, w.readerStop, w.readerDone, w.readErr)

	w.logger.Info("Serial port opened successfully")
}

func (w *serialWorker) readLoop(port portHandle, stop <-chan struct{}, done chan<- struct{}, errc chan<- error) {
	defer close(done)

	buf := make([]byte, w.opts.ReadBufferSize)
	for {
		n, err := port.Read(buf)

		select {
		case <-stop:
			return
		default:
		}

		if n > 0 {
			chunk := append([]byte(nil), buf[:n]...)
			if !w.sess.post(notification{kind: noteData, data: chunk}) {
				return
			}
		}
		if err != nil {
			errc <- err
			return
		}
	}
}

func (w *serialWorker) write(data []byte) {
	if w.port == nil {
		w.logger.Debug("Dropping write, port not open", zap.Int("bytes", len(data)))
		return
	}

	n, err := w.port.Write(data)
	if err != nil {
		w.sess.post(errorNote(ErrCodeWrite, fmt.Errorf("serial write failed: %w", err), false))
		return
	}
	w.sess.post(notification{kind: noteWritten, count: n})
}

func (w *serialWorker) setPins(dtr, rts bool) {
	if w.port == nil {
		return
	}
	if err := w.port.SetDTR(dtr); err != nil {
		w.logger.Warn("Failed to set DTR", zap.Bool("dtr", dtr), zap.Error(err))
	}
	if err := w.port.SetRTS(rts); err != nil {
		w.logger.Warn("Failed to set RTS", zap.Bool("rts", rts), zap.Error(err))
	}
}

func (w *serialWorker) samplePins() {
	if w.port == nil {
		return
	}
	bits, err := w.port.GetModemStatusBits()
	if err != nil {
		w.logger.Debug("Failed to read modem status", zap.Error(err))
		return
	}
	w.pins.Store(uint32(pinStatusFromModem(bits)))
}

// closePort stops the sampler and the reader and releases the port
func (w *serialWorker) closePort() {
	if w.ticker != nil {
		w.ticker.Stop()
		w.ticker = nil
	}
	if w.port == nil {
		return
	}

	close(w.readerStop)
	if err := w.port.Close(); err != nil {
		w.logger.Warn("Failed to close serial port", zap.Error(err))
	}
	<-w.readerDone

	w.port = nil
	w.readErr = nil
	w.pins.Store(0)
	w.logger.Info("Serial port closed")
}
