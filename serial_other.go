//go:build !linux

package serial

import (
	"errors"
	"runtime"
)

// RawPort is only available on Linux; use SystemOpener elsewhere.
type RawPort struct{}

// OpenRaw reports that the termios driver is unsupported on this platform.
func OpenRaw(cfg Config) (*RawPort, error) {
	return nil, errors.New("termios driver is not supported on " + runtime.GOOS)
}

func (s *RawPort) Read(p []byte) (int, error) { return 0, ErrClosed }

func (s *RawPort) Close() error { return nil }

func (s *RawPort) Write(p []byte) (int, error) { return 0, ErrClosed }

func (s *RawPort) WriteLine(line string) error { return ErrClosed }
