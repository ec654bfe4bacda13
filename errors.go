package serial

import (
	"errors"
	"fmt"
)

// ErrClosed is returned by Port.Read once the port has been closed locally.
var ErrClosed = errors.New("serial: port closed")

// PortError describes a failed port-level operation. It is carried by
// EventPortError for both open failures and mid-session read failures.
type PortError struct {
	Op   string
	Port string
	Err  error
}

func (e *PortError) Error() string {
	if e.Port == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.Port, e.Err)
}

func (e *PortError) Unwrap() error { return e.Err }

// IsPortLost reports whether err describes a failure of the device itself
// rather than a local Close.
func IsPortLost(err error) bool {
	if err == nil || errors.Is(err, ErrClosed) {
		return false
	}
	var portErr *PortError
	return errors.As(err, &portErr)
}
