//go:build linux

package serial

import (
	"errors"
	"testing"
	"time"

	"github.com/pilebones/go-udev/netlink"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func TestSerialRules_MatchSerialDevices(t *testing.T) {
	rules := serialRules(nil)

	for _, devname := range []string{"ttyUSB0", "/dev/ttyACM3", "ttyS1", "ttyHS0", "ttyAMA0", "rfcomm0"} {
		ev := netlink.UEvent{
			Action: netlink.ADD,
			KObj:   "/devices/pci0000:00/usb1/1-1/tty/" + devname,
			Env:    map[string]string{"DEVNAME": devname, "SUBSYSTEM": "tty"},
		}
		require.True(t, rules.Evaluate(ev), devname)
	}

	for _, devname := range []string{"tty0", "console", "ptmx", "ttyUSB", "sda1"} {
		ev := netlink.UEvent{
			Action: netlink.ADD,
			Env:    map[string]string{"DEVNAME": devname},
		}
		require.False(t, rules.Evaluate(ev), devname)
	}
}

func TestSerialRules_ActionFilter(t *testing.T) {
	action := "add|remove"
	rules := serialRules(&action)

	env := map[string]string{"DEVNAME": "/dev/ttyUSB0"}
	require.True(t, rules.Evaluate(netlink.UEvent{Action: netlink.REMOVE, Env: env}))
	require.False(t, rules.Evaluate(netlink.UEvent{Action: netlink.CHANGE, Env: env}))
}

func TestDeviceName(t *testing.T) {
	require.Equal(t, "/dev/ttyUSB0", deviceName(map[string]string{"DEVNAME": "ttyUSB0"}))
	require.Equal(t, "/dev/ttyACM1", deviceName(map[string]string{"DEVNAME": "/dev/ttyACM1"}))
	require.Equal(t, "/dev/ttyS4", deviceName(map[string]string{"DEVPATH": "/devices/platform/serial8250/tty/ttyS4"}))
	require.Empty(t, deviceName(map[string]string{}))
}

func TestIsVirtualDevice(t *testing.T) {
	require.True(t, isVirtualDevice("/sys/devices/virtual/tty/ttyS0"))
	require.False(t, isVirtualDevice("/sys/devices/pci0000:00/0000:00:14.0/usb1/1-2/1-2:1.0/ttyUSB0/tty/ttyUSB0"))
}

func TestHotplugTrigger_HandleEventFires(t *testing.T) {
	fired := 0
	h := NewHotplugTrigger(func() { fired++ }, nil)

	h.handleEvent(netlink.UEvent{Action: netlink.ADD, Env: map[string]string{"DEVNAME": "ttyUSB0"}})
	h.handleEvent(netlink.UEvent{Action: netlink.ADD, Env: map[string]string{}})

	require.Equal(t, 1, fired)
	require.False(t, h.Running())
	h.Stop()
}

// stubMonitor behaves like the netlink monitor loop: while reading it may
// hold one value it has not yet delivered.
func stubMonitor(quit chan struct{}, queue chan netlink.UEvent, errs chan error) chan struct{} {
	exited := make(chan struct{})
	go func() {
		defer close(exited)
		queue <- netlink.UEvent{Action: netlink.ADD}
		<-quit
		errs <- errors.New("use of closed network connection")
	}()
	return exited
}

func TestStopUdevMonitor_LetsPendingSendFinish(t *testing.T) {
	queue := make(chan netlink.UEvent, 1)
	errs := make(chan error, 1)
	quit := make(chan struct{})
	errs <- errors.New("earlier read error")

	exited := stubMonitor(quit, queue, errs)
	require.Eventually(t, func() bool { return len(queue) == 1 }, 2*time.Second, time.Millisecond)

	stopUdevMonitor(quit, queue, errs)

	select {
	case <-exited:
	case <-time.After(2 * time.Second):
		t.Fatal("monitor goroutine still blocked after stop")
	}
}

type closeCounter struct{ closed int }

func (c *closeCounter) Close() error {
	c.closed++
	return nil
}

func TestHotplugTrigger_ReleaseOnlyOwnListener(t *testing.T) {
	h := NewHotplugTrigger(nil, nil)
	conn := &closeCounter{}
	current := make(chan struct{})
	h.conn = conn
	h.quit = current
	h.running = true

	h.release(make(chan struct{}))
	require.True(t, h.Running())
	require.Zero(t, conn.closed)

	h.release(current)
	require.False(t, h.Running())
	require.Equal(t, 1, conn.closed)

	h.Stop()
	require.Equal(t, 1, conn.closed)
}

func TestIsPlaceholderUART(t *testing.T) {
	opened := map[string]error{
		"/dev/ttyS0":  nil,
		"/dev/ttyS1":  unix.EIO,
		"/dev/ttyS2":  unix.EACCES,
		"/dev/ttyHS0": unix.ENXIO,
	}
	var calls []string
	restore := openUART
	openUART = func(name string) error {
		calls = append(calls, name)
		return opened[name]
	}
	t.Cleanup(func() { openUART = restore })

	require.False(t, isPlaceholderUART("/dev/ttyS0"))
	require.True(t, isPlaceholderUART("/dev/ttyS1"))
	require.False(t, isPlaceholderUART("/dev/ttyS2"))
	require.True(t, isPlaceholderUART("/dev/ttyHS0"))

	// Hot-pluggable adapters are never opened while listing.
	require.False(t, isPlaceholderUART("/dev/ttyUSB0"))
	require.NotContains(t, calls, "/dev/ttyUSB0")
}
