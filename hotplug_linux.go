//go:build linux

package serial

import (
	"context"

	"github.com/pilebones/go-udev/netlink"

	"github.com/luhtfiimanal/serialwatch/internal/logging"
)

// Start begins listening for udev netlink events. Failing to open the
// netlink socket is logged and is not an error.
func (h *HotplugTrigger) Start(ctx context.Context) error {
	if h == nil {
		return nil
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.running {
		return nil
	}

	conn := new(netlink.UEventConn)
	if err := conn.Connect(netlink.UdevEvent); err != nil {
		logging.WarnWithContext(h.logger, "failed to connect to netlink socket; port changes will be seen on the next poll", "hotplug_connect_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "ensure the process may open NETLINK_KOBJECT_UEVENT sockets"),
			logging.String(logging.FieldImpact, "port changes are detected at the polling interval only"),
		)
		return nil
	}

	h.conn = conn
	h.quit = make(chan struct{})
	h.running = true

	// Pass quit channel to goroutine to avoid reading h.quit without lock
	go h.listen(ctx, conn, h.quit)

	h.logger.Info("hotplug trigger started",
		logging.String(logging.FieldEventType, "hotplug_started"),
	)
	return nil
}

func (h *HotplugTrigger) listen(ctx context.Context, conn *netlink.UEventConn, quit chan struct{}) {
	queue := make(chan netlink.UEvent, 1)
	errs := make(chan error, 1)
	action := "add|remove"
	monitorQuit := conn.Monitor(queue, errs, serialRules(&action))

	for {
		select {
		case <-ctx.Done():
			stopUdevMonitor(monitorQuit, queue, errs)
			h.release(quit)
			return
		case <-quit:
			stopUdevMonitor(monitorQuit, queue, errs)
			return
		case uevent := <-queue:
			h.handleEvent(uevent)
		case err := <-errs:
			logging.WarnWithContext(h.logger, "netlink monitor error", "hotplug_monitor_error",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check kernel netlink subsystem"),
				logging.String(logging.FieldImpact, "port changes may only be seen at the polling interval"),
			)
		}
	}
}

// stopUdevMonitor ends a netlink monitor goroutine. After quit closes it
// sends at most one more value, so emptying both one-slot buffers keeps that
// send from blocking.
func stopUdevMonitor(quit chan struct{}, queue chan netlink.UEvent, errs chan error) {
	close(quit)
	select {
	case <-queue:
	default:
	}
	select {
	case <-errs:
	default:
	}
}

func (h *HotplugTrigger) handleEvent(uevent netlink.UEvent) {
	name := deviceName(uevent.Env)
	if name == "" {
		h.logger.Debug("ignoring event without device name",
			logging.String("action", string(uevent.Action)),
			logging.String("kobj", uevent.KObj),
		)
		return
	}
	h.logger.Debug("serial device event",
		logging.String(logging.FieldEventType, "hotplug_event"),
		logging.String(logging.FieldPort, name),
		logging.String("action", string(uevent.Action)),
	)
	h.fire()
}
