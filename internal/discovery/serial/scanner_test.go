// internal/discovery/serial/scanner_test.go
package serial

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"go.bug.st/serial/enumerator"
	"go.uber.org/zap/zaptest"

	"packetforge/internal/model"
)

func useLister(t *testing.T, fn func() ([]*enumerator.PortDetails, error)) {
	t.Helper()
	orig := listPorts
	listPorts = fn
	t.Cleanup(func() { listPorts = orig })
}

func TestScanSortsAndMaps(t *testing.T) {
	useLister(t, func() ([]*enumerator.PortDetails, error) {
		return []*enumerator.PortDetails{
			{Name: "/dev/ttyUSB0", IsUSB: true, VID: "0403", PID: "6001", SerialNumber: "A9XK", Product: "FT232R"},
			nil,
			{Name: "/dev/ttyS0"},
			{Name: "/dev/ttyUSB1", IsUSB: true, VID: "1a86", PID: "7523"},
		}, nil
	})

	got, err := NewScanner(zaptest.NewLogger(t)).Scan(context.Background())
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}

	want := []model.PortInfo{
		{Name: "/dev/ttyS0"},
		{
			Name: "/dev/ttyUSB0", IsUSB: true, VID: "0403", PID: "6001", SerialNumber: "A9XK", Product: "FT232R",
			Vendor: "Future Technology Devices International", Chip: "FT232R",
		},
		{
			Name: "/dev/ttyUSB1", IsUSB: true, VID: "1a86", PID: "7523",
			Vendor: "QinHeng Electronics", Chip: "CH340", LimitedHandshake: true,
		},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("ports mismatch (-want +got):\n%s", diff)
	}
}

func TestScanError(t *testing.T) {
	useLister(t, func() ([]*enumerator.PortDetails, error) {
		return nil, errors.New("no sysfs")
	})

	if _, err := NewScanner(nil).Scan(context.Background()); err == nil {
		t.Error("expected error")
	}
}

func TestScanCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewScanner(nil).Scan(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
}
