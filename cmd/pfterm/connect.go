// cmd/pfterm/connect.go
package main

import (
	"bufio"
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"packetforge/internal/model"
	"packetforge/internal/protocol"
	"packetforge/pkg/framing"
)

type connectFlags struct {
	kind        string
	port        string
	baud        int
	dataBits    int
	parity      string
	stopBits    float64
	flowControl string
	address     string
	netPort     int
	localPort   int
	rx          string
	tx          string
	hexOutput   bool
}

var connectOpts connectFlags

// connectCmd represents the connect command
var connectCmd = &cobra.Command{
	Use:   "connect",
	Short: "Open a transport and bridge it to the terminal",
	Long: `Open a transport and bridge it to the terminal.

Examples:
  pfterm connect --kind serial --port /dev/ttyUSB0 --baud 115200 --rx lf --tx crlf
  pfterm connect --kind tcp_client --address 10.0.0.5 --net-port 502 --rx raw --hex
  pfterm connect --kind tcp_server --net-port 9000 --rx lf
  pfterm connect --kind udp --address 10.0.0.7 --net-port 5000 --local-port 5001`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		params, err := connectOpts.parameters()
		if err != nil {
			return err
		}

		registry := framing.NewRegistry()
		rx, err := registry.Receive(connectOpts.rx)
		if err != nil {
			return err
		}
		tx, err := registry.Send(connectOpts.tx)
		if err != nil {
			return err
		}

		logger, err := newLogger()
		if err != nil {
			return err
		}
		defer logger.Sync()

		h, err := protocol.CreateHandler(params, protocol.DefaultOptions(), logger)
		if err != nil {
			return err
		}
		h.SetReceiveRule(rx)
		h.SetSendRule(tx)

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		return bridge(ctx, h, cmd.InOrStdin(), cmd.OutOrStdout(), cmd.ErrOrStderr(), connectOpts.hexOutput)
	},
}

func init() {
	rootCmd.AddCommand(connectCmd)

	f := connectCmd.Flags()
	f.StringVarP(&connectOpts.kind, "kind", "k", "serial", "transport: serial, tcp_client, tcp_server, udp")
	f.StringVarP(&connectOpts.port, "port", "p", "", "serial port name")
	f.IntVarP(&connectOpts.baud, "baud", "b", protocol.DefaultBaudRate, "serial baud rate")
	f.IntVar(&connectOpts.dataBits, "data-bits", protocol.DefaultDataBits, "serial data bits (5-8)")
	f.StringVar(&connectOpts.parity, "parity", "none", "serial parity: none, odd, even, mark, space")
	f.Float64Var(&connectOpts.stopBits, "stop-bits", protocol.DefaultStopBits, "serial stop bits: 1, 1.5, 2")
	f.StringVar(&connectOpts.flowControl, "flow", "none", "serial flow control: none, hardware, software")
	f.StringVarP(&connectOpts.address, "address", "a", "", "remote host (tcp_client, udp) or bind host (tcp_server)")
	f.IntVarP(&connectOpts.netPort, "net-port", "n", 0, "remote port, or listen port for tcp_server")
	f.IntVar(&connectOpts.localPort, "local-port", 0, "udp local port (defaults to --net-port)")
	f.StringVar(&connectOpts.rx, "rx", "lf", "receive rule: raw, lf, cr, crlf, nul, fixed:<n>")
	f.StringVar(&connectOpts.tx, "tx", "lf", "send rule chain, e.g. xor+crlf")
	f.BoolVarP(&connectOpts.hexOutput, "hex", "x", false, "print packets as hex")
}

// parameters builds connection parameters for the selected transport kind
func (f connectFlags) parameters() (model.ConnectionParameters, error) {
	kind := model.ParseTransportKind(f.kind)
	params := model.ConnectionParameters{Kind: kind}

	switch kind {
	case model.KindSerial:
		params.PortName = f.port
		params.BaudRate = f.baud
		params.DataBits = f.dataBits
		params.Parity = model.Parity(f.parity)
		params.StopBits = f.stopBits
		params.FlowControl = model.FlowControl(f.flowControl)
	case model.KindTCPClient, model.KindTCPServer:
		params.Address = f.address
		params.Port = f.netPort
	case model.KindUDP:
		params.Address = f.address
		params.Port = f.netPort
		params.LocalPort = f.localPort
	default:
		return params, fmt.Errorf("%w: unknown transport kind %q", protocol.ErrInvalidConfiguration, f.kind)
	}

	params = protocol.ApplyDefaults(params)
	return params, params.Validate()
}

// bridge connects h, prints its events and sends stdin lines until ctx is
// done or stdin reaches EOF
func bridge(ctx context.Context, h protocol.Handler, in io.Reader, out, status io.Writer, hexOutput bool) error {
	events := make(chan protocol.Event, 256)
	h.Subscribe(func(ev protocol.Event) {
		select {
		case events <- ev:
		default:
		}
	})

	if err := h.Connect(ctx); err != nil {
		return err
	}
	defer h.Close()

	lines := make(chan []byte)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			line := append([]byte(nil), scanner.Bytes()...)
			select {
			case lines <- line:
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case line, ok := <-lines:
			if !ok {
				// give in-flight writes a moment before closing
				time.Sleep(100 * time.Millisecond)
				return nil
			}
			if !h.IsConnected() {
				fmt.Fprintf(status, "-- not connected (%s), line dropped\n", h.State())
				continue
			}
			h.Send(line)

		case ev := <-events:
			printEvent(out, status, ev, hexOutput)
		}
	}
}

func printEvent(out, status io.Writer, ev protocol.Event, hexOutput bool) {
	switch ev.Type {
	case protocol.EventDataReceived:
		if hexOutput {
			fmt.Fprintln(out, hex.EncodeToString(ev.Data))
		} else {
			out.Write(ev.Data)
		}
	case protocol.EventConnected:
		fmt.Fprintln(status, "-- connected")
	case protocol.EventDisconnected:
		fmt.Fprintln(status, "-- disconnected")
	case protocol.EventError:
		fmt.Fprintf(status, "-- error %s: %v\n", ev.Code, ev.Err)
	}
}
