//go:build !linux

package serial

import (
	"context"
	"errors"
	"runtime"
)

// UdevEnumerator is only available on Linux.
type UdevEnumerator struct{}

func (UdevEnumerator) Ports(ctx context.Context) ([]string, error) {
	return nil, errors.New("udev enumeration is not supported on " + runtime.GOOS)
}
