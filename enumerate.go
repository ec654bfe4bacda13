package serial

import (
	"context"
	"fmt"
	"strings"

	gobug "go.bug.st/serial"
	"go.bug.st/serial/enumerator"
)

// Enumerator lists the serial ports currently present on the host. Results
// need not be sorted or unique; a failure is treated as transient.
type Enumerator interface {
	Ports(ctx context.Context) ([]string, error)
}

// EnumeratorFunc adapts a function to the Enumerator interface.
type EnumeratorFunc func(ctx context.Context) ([]string, error)

func (f EnumeratorFunc) Ports(ctx context.Context) ([]string, error) { return f(ctx) }

const (
	EnumeratorSystem = "system"
	EnumeratorUdev   = "udev"
)

// EnumeratorFor returns the Enumerator registered under name.
func EnumeratorFor(name string) (Enumerator, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", EnumeratorSystem:
		return SystemEnumerator{}, nil
	case EnumeratorUdev:
		return UdevEnumerator{}, nil
	default:
		return nil, fmt.Errorf("serial enumerator: unsupported value %q", name)
	}
}

// SystemEnumerator lists ports through go.bug.st/serial.
type SystemEnumerator struct{}

func (SystemEnumerator) Ports(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ports, err := gobug.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("list ports: %w", err)
	}
	return ports, nil
}

// PortDetails describes a present port, including USB identity when known.
type PortDetails struct {
	Name         string `json:"name"`
	IsUSB        bool   `json:"is_usb"`
	VID          string `json:"vid,omitempty"`
	PID          string `json:"pid,omitempty"`
	SerialNumber string `json:"serial_number,omitempty"`
	Product      string `json:"product,omitempty"`
}

// DescribePorts returns details for every present port, sorted by name.
func DescribePorts() ([]PortDetails, error) {
	list, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return nil, fmt.Errorf("list port details: %w", err)
	}
	byName := make(map[string]PortDetails, len(list))
	names := make([]string, 0, len(list))
	for _, p := range list {
		if p == nil {
			continue
		}
		names = append(names, p.Name)
		byName[p.Name] = PortDetails{
			Name:         p.Name,
			IsUSB:        p.IsUSB,
			VID:          p.VID,
			PID:          p.PID,
			SerialNumber: p.SerialNumber,
			Product:      p.Product,
		}
	}
	snapshot := NewSnapshot(names...)
	out := make([]PortDetails, 0, len(snapshot))
	for _, name := range snapshot {
		out = append(out, byName[name])
	}
	return out, nil
}
