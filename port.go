package serial

import (
	"fmt"
	"strings"
	"time"

	gobug "go.bug.st/serial"
)

// Port is an open serial connection as seen by the read loop. Read must
// return (0, nil) when the read timeout elapses without data and a non-nil
// error when the device fails. Close must be safe to call while another
// goroutine is blocked in Read.
type Port interface {
	Read(p []byte) (int, error)
	Close() error
}

// Config holds the parameters used to open a port.
type Config struct {
	Device      string
	BaudRate    int
	ReadTimeout time.Duration
}

// Opener acquires a Port. Drivers are selected by passing a different Opener
// to NewSession.
type Opener func(cfg Config) (Port, error)

const (
	DriverSystem  = "system"
	DriverTermios = "termios"
)

// OpenerFor returns the Opener registered under driver.
func OpenerFor(driver string) (Opener, error) {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "", DriverSystem:
		return SystemOpener, nil
	case DriverTermios:
		return RawOpener, nil
	default:
		return nil, fmt.Errorf("serial driver: unsupported value %q", driver)
	}
}

// SystemOpener opens ports through go.bug.st/serial, which works on Linux,
// macOS, the BSDs and Windows.
func SystemOpener(cfg Config) (Port, error) {
	port, err := gobug.Open(cfg.Device, &gobug.Mode{BaudRate: cfg.BaudRate})
	if err != nil {
		return nil, err
	}
	timeout := cfg.ReadTimeout
	if timeout <= 0 {
		timeout = gobug.NoTimeout
	}
	if err := port.SetReadTimeout(timeout); err != nil {
		_ = port.Close()
		return nil, fmt.Errorf("set read timeout: %w", err)
	}
	return port, nil
}

// RawOpener opens ports with the raw termios driver.
func RawOpener(cfg Config) (Port, error) {
	port, err := OpenRaw(cfg)
	if err != nil {
		return nil, err
	}
	return port, nil
}
