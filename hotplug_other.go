//go:build !linux

package serial

import (
	"context"
	"runtime"

	"github.com/luhtfiimanal/serialwatch/internal/logging"
)

// Start logs that hotplug events are unavailable; polling still applies.
func (h *HotplugTrigger) Start(ctx context.Context) error {
	if h == nil {
		return nil
	}
	h.logger.Info("hotplug trigger unavailable on this platform",
		logging.String(logging.FieldEventType, "hotplug_unsupported"),
		logging.String("goos", runtime.GOOS),
	)
	return nil
}
