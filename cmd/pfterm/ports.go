// cmd/pfterm/ports.go
package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"packetforge/internal/discovery/serial"
	"packetforge/internal/model"
)

// portsCmd represents the ports command
var portsCmd = &cobra.Command{
	Use:   "ports",
	Short: "List available serial ports",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		logger, err := newLogger()
		if err != nil {
			return err
		}
		defer logger.Sync()

		ports, err := serial.NewScanner(logger).Scan(cmd.Context())
		if err != nil {
			return err
		}
		if len(ports) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No serial ports found")
			return nil
		}

		out := cmd.OutOrStdout()
		for _, p := range ports {
			if p.IsUSB {
				fmt.Fprintf(out, "%-20s USB %s:%s %s %s\n", p.Name, p.VID, p.PID, describeAdapter(p), p.SerialNumber)
			} else {
				fmt.Fprintf(out, "%-20s\n", p.Name)
			}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(portsCmd)
}

func describeAdapter(p model.PortInfo) string {
	if p.Chip == "" {
		return p.Product
	}
	desc := p.Chip
	if p.LimitedHandshake {
		desc += " (limited handshake)"
	}
	return desc
}
