//go:build linux

package serial

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"golang.org/x/sys/unix"
)

// RawPort provides low-latency, killable access to a Linux serial port
// configured in raw mode. Reads are bounded by Config.ReadTimeout and a
// concurrent Close wakes a pending Read through a self-pipe.
type RawPort struct {
	fd        int
	file      *os.File
	done      chan struct{}
	closeOnce sync.Once
	config    Config
	pipeR     int // self-pipe read fd
	pipeW     int // self-pipe write fd
}

// OpenRaw opens a serial port using the provided Config and returns a RawPort.
// The port is configured for raw, non-canonical 8N1 operation.
func OpenRaw(cfg Config) (*RawPort, error) {
	baud, ok := baudToUnix(cfg.BaudRate)
	if !ok {
		return nil, fmt.Errorf("unsupported baud rate %d", cfg.BaudRate)
	}

	fd, err := unix.Open(cfg.Device, unix.O_RDWR|unix.O_NOCTTY|unix.O_NONBLOCK|unix.O_CLOEXEC, 0o666)
	if err != nil {
		return nil, fmt.Errorf("open failed: %w", err)
	}

	termios, err := unix.IoctlGetTermios(fd, unix.TCGETS)
	if err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("get termios: %w", err)
	}

	// Raw mode
	termios.Iflag &^= unix.IGNBRK | unix.BRKINT | unix.PARMRK | unix.ISTRIP | unix.INLCR | unix.IGNCR | unix.ICRNL | unix.IXON
	termios.Oflag &^= unix.OPOST
	termios.Lflag &^= unix.ECHO | unix.ECHONL | unix.ICANON | unix.ISIG | unix.IEXTEN
	termios.Cflag &^= unix.CSIZE | unix.PARENB
	termios.Cflag |= unix.CS8 | unix.CREAD | unix.CLOCAL

	termios.Cflag &^= unix.CBAUD
	termios.Cflag |= baud
	termios.Ispeed = baud
	termios.Ospeed = baud

	// Readiness comes from poll, so read() must return whatever is queued.
	termios.Cc[unix.VMIN] = 1
	termios.Cc[unix.VTIME] = 0

	if err := unix.IoctlSetTermios(fd, unix.TCSETS, termios); err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("set termios: %w", err)
	}

	if err := unix.SetNonblock(fd, false); err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("set blocking: %w", err)
	}

	pipeFds := make([]int, 2)
	if err := unix.Pipe2(pipeFds, unix.O_CLOEXEC); err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("pipe: %w", err)
	}

	return &RawPort{
		fd:     fd,
		file:   os.NewFile(uintptr(fd), cfg.Device),
		done:   make(chan struct{}),
		config: cfg,
		pipeR:  pipeFds[0],
		pipeW:  pipeFds[1],
	}, nil
}

// Read waits up to the configured read timeout for data and reads at most
// len(p) bytes. It returns (0, nil) on timeout, ErrClosed after Close, and a
// *PortError when the device hangs up or the read fails.
func (s *RawPort) Read(p []byte) (int, error) {
	timeout := -1
	if s.config.ReadTimeout > 0 {
		timeout = int(s.config.ReadTimeout.Milliseconds())
		if timeout == 0 {
			timeout = 1
		}
	}

	for {
		select {
		case <-s.done:
			return 0, ErrClosed
		default:
		}

		pfd := []unix.PollFd{
			{Fd: int32(s.fd), Events: unix.POLLIN},
			{Fd: int32(s.pipeR), Events: unix.POLLIN},
		}
		n, err := unix.Poll(pfd, timeout)
		if errors.Is(err, unix.EINTR) {
			continue
		}
		if err != nil {
			return 0, s.portError(err)
		}
		if n == 0 {
			return 0, nil
		}
		if pfd[1].Revents&unix.POLLIN != 0 {
			return 0, ErrClosed
		}

		revents := pfd[0].Revents
		if revents&unix.POLLIN == 0 {
			if revents&(unix.POLLHUP|unix.POLLERR|unix.POLLNVAL) != 0 {
				select {
				case <-s.done:
					return 0, ErrClosed
				default:
				}
				return 0, s.portError(errors.New("device hung up"))
			}
			continue
		}

		read, err := s.file.Read(p)
		switch {
		case errors.Is(err, os.ErrClosed):
			return 0, ErrClosed
		case errors.Is(err, io.EOF) || (err == nil && read == 0):
			return 0, s.portError(io.ErrUnexpectedEOF)
		case err != nil:
			return read, s.portError(err)
		}
		return read, nil
	}
}

// Write writes p to the port.
func (s *RawPort) Write(p []byte) (int, error) {
	select {
	case <-s.done:
		return 0, ErrClosed
	default:
	}
	n, err := s.file.Write(p)
	if err != nil {
		if errors.Is(err, os.ErrClosed) {
			return n, ErrClosed
		}
		return n, &PortError{Op: "write", Port: s.config.Device, Err: err}
	}
	return n, nil
}

// WriteLine writes line followed by a newline.
func (s *RawPort) WriteLine(line string) error {
	_, err := s.Write([]byte(line + "\n"))
	return err
}

// Close closes the serial port and unblocks any pending Read.
// Safe to call multiple times; subsequent calls are no-ops.
func (s *RawPort) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		// Wake up poll using self-pipe
		_, _ = unix.Write(s.pipeW, []byte{1})
		err = s.file.Close()
		_ = unix.Close(s.pipeR)
		_ = unix.Close(s.pipeW)
	})
	return err
}

func (s *RawPort) portError(err error) error {
	return &PortError{Op: "read", Port: s.config.Device, Err: err}
}

func baudToUnix(baud int) (uint32, bool) {
	switch baud {
	case 1200:
		return unix.B1200, true
	case 2400:
		return unix.B2400, true
	case 4800:
		return unix.B4800, true
	case 9600:
		return unix.B9600, true
	case 19200:
		return unix.B19200, true
	case 38400:
		return unix.B38400, true
	case 57600:
		return unix.B57600, true
	case 115200:
		return unix.B115200, true
	case 230400:
		return unix.B230400, true
	case 460800:
		return unix.B460800, true
	case 921600:
		return unix.B921600, true
	default:
		return 0, false
	}
}
