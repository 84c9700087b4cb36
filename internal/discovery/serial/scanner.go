// internal/discovery/serial/scanner.go
package serial

import (
	"context"
	"fmt"
	"sort"

	"go.bug.st/serial/enumerator"
	"go.uber.org/zap"

	"packetforge/internal/discovery/usb"
	"packetforge/internal/model"
)

// listPorts is replaced in tests
var listPorts = enumerator.GetDetailedPortsList

// Scanner lists the serial ports present on the host
type Scanner struct {
	adapters *usb.AdapterDatabase
	logger   *zap.Logger
}

// NewScanner creates a new serial scanner
func NewScanner(logger *zap.Logger) *Scanner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scanner{
		adapters: usb.NewAdapterDatabase(),
		logger:   logger.With(zap.String("scanner", "serial")),
	}
}

// GetScannerType returns scanner type
func (s *Scanner) GetScannerType() string {
	return "serial"
}

// Scan returns the detected ports sorted by name
func (s *Scanner) Scan(ctx context.Context) ([]model.PortInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	details, err := listPorts()
	if err != nil {
		return nil, fmt.Errorf("failed to get serial ports: %w", err)
	}

	ports := make([]model.PortInfo, 0, len(details))
	for _, d := range details {
		if d == nil || d.Name == "" {
			continue
		}
		info := model.PortInfo{
			Name:         d.Name,
			IsUSB:        d.IsUSB,
			VID:          d.VID,
			PID:          d.PID,
			SerialNumber: d.SerialNumber,
			Product:      d.Product,
		}
		if d.IsUSB {
			vendor, product := s.adapters.Identify(d.VID, d.PID)
			info.Vendor = vendor
			if product != nil {
				info.Chip = product.Chip
				info.LimitedHandshake = !product.NativeHandshake
			}
		}
		ports = append(ports, info)
	}
	sort.Slice(ports, func(i, j int) bool { return ports[i].Name < ports[j].Name })

	s.logger.Debug("Serial scan completed", zap.Int("ports_found", len(ports)))
	return ports, nil
}
