package main

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	serial "github.com/luhtfiimanal/serialwatch"
	"github.com/luhtfiimanal/serialwatch/internal/logging"
)

func TestFormatPortsLine(t *testing.T) {
	at := time.Date(2024, 5, 1, 14, 3, 9, 0, time.UTC)

	line := formatPortsLine(serial.Event{Type: serial.EventPortsChanged, Ports: serial.NewSnapshot("COM3", "COM1"), Time: at})
	require.Equal(t, "14:03:09 ports: COM1, COM3", line)

	line = formatPortsLine(serial.Event{Type: serial.EventPortsChanged, Time: at})
	require.Equal(t, "14:03:09 ports: none", line)
}

func TestRenderPortsTable(t *testing.T) {
	rendered := renderPortsTable([]serial.PortDetails{
		{Name: "/dev/ttyUSB0", IsUSB: true, VID: "0403", PID: "6001", SerialNumber: "A10K", Product: "FT232R"},
		{Name: "/dev/ttyS0"},
	})

	lines := strings.Split(rendered, "\n")
	require.Contains(t, lines[1], "PORT")
	require.Contains(t, rendered, "/dev/ttyUSB0")
	require.Contains(t, rendered, "0403")
	require.Contains(t, rendered, "FT232R")
	require.Contains(t, rendered, "no")
	require.Empty(t, renderTable(nil, nil))
}

func stubDescribePorts(t *testing.T, details []serial.PortDetails, err error) {
	t.Helper()
	restore := describePorts
	describePorts = func() ([]serial.PortDetails, error) { return details, err }
	t.Cleanup(func() { describePorts = restore })
}

func TestListPorts_NamesComeFromTheConfiguredEnumerator(t *testing.T) {
	stubDescribePorts(t, []serial.PortDetails{
		{Name: "/dev/ttyUSB0", IsUSB: true, VID: "0403", PID: "6001"},
		{Name: "/dev/ttyS4"},
	}, nil)
	enum := serial.EnumeratorFunc(func(context.Context) ([]string, error) {
		return []string{"/dev/ttyUSB0", "/dev/ttyACM0", "/dev/ttyUSB0"}, nil
	})

	ports, err := listPorts(context.Background(), enum, logging.NewNop())
	require.NoError(t, err)
	require.Equal(t, []serial.PortDetails{
		{Name: "/dev/ttyACM0"},
		{Name: "/dev/ttyUSB0", IsUSB: true, VID: "0403", PID: "6001"},
	}, ports)
}

func TestListPorts_DetailFailureFallsBackToNames(t *testing.T) {
	stubDescribePorts(t, nil, errors.New("sysfs unreadable"))
	enum := serial.EnumeratorFunc(func(context.Context) ([]string, error) {
		return []string{"COM3"}, nil
	})

	ports, err := listPorts(context.Background(), enum, logging.NewNop())
	require.NoError(t, err)
	require.Equal(t, []serial.PortDetails{{Name: "COM3"}}, ports)

	failing := serial.EnumeratorFunc(func(context.Context) ([]string, error) {
		return nil, errors.New("permission denied")
	})
	_, err = listPorts(context.Background(), failing, logging.NewNop())
	require.ErrorContains(t, err, "permission denied")
}
