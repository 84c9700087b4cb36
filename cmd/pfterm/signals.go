// cmd/pfterm/signals.go
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"packetforge/internal/model"
	"packetforge/internal/protocol"
)

var signalsBaud int

// signalsCmd represents the signals command
var signalsCmd = &cobra.Command{
	Use:   "signals <port>",
	Short: "Display the handshake input lines of a serial port",
	Long: `Open a serial port, sample its handshake inputs once and print them.

Examples:
  pfterm signals /dev/ttyUSB0
  pfterm signals COM3`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		logger, err := newLogger()
		if err != nil {
			return err
		}
		defer logger.Sync()

		params := model.ConnectionParameters{Kind: model.KindSerial, PortName: args[0], BaudRate: signalsBaud}
		h, err := protocol.CreateHandler(params, protocol.DefaultOptions(), logger)
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
		defer cancel()

		pins, err := samplePins(ctx, h, 2*protocol.DefaultPinPollInterval)
		if err != nil {
			return err
		}
		printPins(cmd.OutOrStdout(), args[0], pins)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(signalsCmd)
	signalsCmd.Flags().IntVarP(&signalsBaud, "baud", "b", protocol.DefaultBaudRate, "baud rate used to open the port")
}

// samplePins connects h, waits for at least one pin poll and closes it again
func samplePins(ctx context.Context, h protocol.Handler, settle time.Duration) (model.PinState, error) {
	result := make(chan error, 1)
	h.Subscribe(func(ev protocol.Event) {
		switch ev.Type {
		case protocol.EventConnected:
			select {
			case result <- nil:
			default:
			}
		case protocol.EventError:
			select {
			case result <- fmt.Errorf("%s: %w", ev.Code, ev.Err):
			default:
			}
		}
	})

	if err := h.Connect(ctx); err != nil {
		return model.PinState{}, err
	}
	defer h.Close()

	select {
	case err := <-result:
		if err != nil {
			return model.PinState{}, err
		}
	case <-ctx.Done():
		return model.PinState{}, errors.New("timed out opening port")
	}

	select {
	case <-time.After(settle):
	case <-ctx.Done():
	}
	return h.PinStatus().Decode(), nil
}

func printPins(out io.Writer, port string, pins model.PinState) {
	fmt.Fprintf(out, "Handshake lines for %s (0x%02x):\n\n", port, pins.Raw)
	fmt.Fprintf(out, "  CTS (Clear To Send):       %s\n", formatSignalState(pins.CTS))
	fmt.Fprintf(out, "  DSR (Data Set Ready):      %s\n", formatSignalState(pins.DSR))
	fmt.Fprintf(out, "  RI  (Ring Indicator):      %s\n", formatSignalState(pins.RI))
	fmt.Fprintf(out, "  DCD (Data Carrier Detect): %s\n", formatSignalState(pins.DCD))
}

func formatSignalState(state bool) string {
	if state {
		return "HIGH"
	}
	return "LOW"
}
