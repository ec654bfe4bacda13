//go:build linux

package serial

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/pilebones/go-udev/crawler"
	"github.com/pilebones/go-udev/netlink"
	"golang.org/x/sys/unix"
)

// serialDevnamePattern matches kernel names of real serial devices: on-board
// UARTs, USB adapters, CDC-ACM modems, SoC UARTs and Bluetooth RFCOMM.
const serialDevnamePattern = `^(/dev/)?(tty(S|HS|USB|ACM|AMA|XRUSB|mxc|O|GS|AP)[0-9]+|rfcomm[0-9]+)$`

// openUART opens and closes a tty node without becoming its controlling
// terminal.
var openUART = func(name string) error {
	fd, err := unix.Open(name, unix.O_RDWR|unix.O_NOCTTY|unix.O_NONBLOCK, 0)
	if err != nil {
		return err
	}
	return unix.Close(fd)
}

// isPlaceholderUART reports whether name is an 8250 slot the kernel reserves
// without hardware behind it. Such nodes exist in sysfs but refuse to open.
// Nodes that fail for other reasons, such as permissions, are kept.
func isPlaceholderUART(name string) bool {
	base := path.Base(name)
	if !strings.HasPrefix(base, "ttyS") && !strings.HasPrefix(base, "ttyHS") {
		return false
	}
	err := openUART(name)
	return errors.Is(err, unix.EIO) || errors.Is(err, unix.ENXIO) || errors.Is(err, unix.ENODEV)
}

// UdevEnumerator lists serial ports by walking sysfs for tty devices that
// are backed by hardware.
type UdevEnumerator struct{}

func (UdevEnumerator) Ports(ctx context.Context) ([]string, error) {
	queue := make(chan crawler.Device)
	errs := make(chan error, 1)
	quit := crawler.ExistingDevices(queue, errs, serialRules(nil))

	var ports []string
	for {
		select {
		case <-ctx.Done():
			close(quit)
			go func() {
				for range queue {
				}
			}()
			return nil, ctx.Err()
		case dev, ok := <-queue:
			if !ok {
				select {
				case err := <-errs:
					return nil, fmt.Errorf("walk sysfs: %w", err)
				default:
				}
				return ports, nil
			}
			if isVirtualDevice(dev.KObj) {
				continue
			}
			name := deviceName(dev.Env)
			if name == "" || isPlaceholderUART(name) {
				continue
			}
			ports = append(ports, name)
		}
	}
}

// serialRules matches uevents for serial tty nodes, optionally restricted to
// an action pattern such as "add|remove".
func serialRules(action *string) *netlink.RuleDefinitions {
	rules := &netlink.RuleDefinitions{}
	rules.AddRule(netlink.RuleDefinition{
		Action: action,
		Env: map[string]string{
			"DEVNAME": serialDevnamePattern,
		},
	})
	return rules
}

// Kernel-internal ttys (consoles, ptys) live under /devices/virtual.
func isVirtualDevice(kobj string) bool {
	return strings.Contains(kobj, "/devices/virtual/")
}

// deviceName gets the /dev path from uevent variables, falling back to the
// last DEVPATH element.
func deviceName(env map[string]string) string {
	name := strings.TrimSpace(env["DEVNAME"])
	if name == "" {
		devpath := strings.TrimSpace(env["DEVPATH"])
		if devpath == "" {
			return ""
		}
		name = path.Base(devpath)
	}
	if strings.HasPrefix(name, "/dev/") {
		return name
	}
	return "/dev/" + name
}
