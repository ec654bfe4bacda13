package serial

import (
	"io"
	"log/slog"
	"sync"

	"github.com/luhtfiimanal/serialwatch/internal/logging"
)

// HotplugTrigger calls a function whenever the kernel reports a serial tty
// being added or removed. It complements Monitor polling (wire onChange to
// Monitor.Kick) and never replaces it: when the event source is unavailable
// the trigger logs a warning and stays idle.
type HotplugTrigger struct {
	logger   *slog.Logger
	onChange func()

	mu      sync.Mutex
	conn    io.Closer
	quit    chan struct{}
	running bool
}

// NewHotplugTrigger creates a trigger that invokes onChange for every
// matching device event.
func NewHotplugTrigger(onChange func(), logger *slog.Logger) *HotplugTrigger {
	return &HotplugTrigger{
		logger:   logging.NewComponentLogger(logger, "hotplug"),
		onChange: onChange,
	}
}

// Stop shuts down the event listener.
func (h *HotplugTrigger) Stop() {
	if h == nil {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.running {
		return
	}
	if h.quit != nil {
		close(h.quit)
		h.quit = nil
	}
	if h.conn != nil {
		_ = h.conn.Close()
		h.conn = nil
	}
	h.running = false

	h.logger.Info("hotplug trigger stopped",
		logging.String(logging.FieldEventType, "hotplug_stopped"),
	)
}

// release closes the connection of the listener started with quit after
// its context ends. A later Start or Stop owns h.conn otherwise.
func (h *HotplugTrigger) release(quit chan struct{}) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.quit != quit {
		return
	}
	h.quit = nil
	if h.conn != nil {
		_ = h.conn.Close()
		h.conn = nil
	}
	h.running = false
}

// Running reports whether the trigger is listening.
func (h *HotplugTrigger) Running() bool {
	if h == nil {
		return false
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.running
}

func (h *HotplugTrigger) fire() {
	if h.onChange != nil {
		h.onChange()
	}
}
