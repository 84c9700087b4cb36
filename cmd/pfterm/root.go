// cmd/pfterm/root.go
package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"packetforge/internal/config"
	"packetforge/internal/utils"
)

var logLevel string

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "pfterm",
	Short: "Terminal for serial, TCP and UDP transports",
	Long: `pfterm opens one transport and bridges it to the terminal.

Lines typed on stdin are sent through the send rule, packets cut by the
receive rule are printed to stdout.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "log level: debug, info, warn, error")
}

// newLogger logs to stderr so that stdout only carries packets
func newLogger() (*zap.Logger, error) {
	return utils.NewLogger(&config.LoggingConfig{
		Level:  logLevel,
		Format: "console",
		Output: "stderr",
	})
}
