package serial

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/luhtfiimanal/serialwatch/internal/logging"
)

// DefaultMonitorInterval is the polling cadence used when none is configured.
const DefaultMonitorInterval = time.Second

// Monitor polls an Enumerator and emits EventPortsChanged whenever the set of
// present ports differs from the last one reported. Scans run on a single
// goroutine, so they never overlap and their events are emitted in scan
// order.
type Monitor struct {
	enum     Enumerator
	interval time.Duration
	logger   *slog.Logger
	events   *dispatcher

	mu      sync.Mutex
	known   Snapshot
	quit    chan struct{}
	kick    chan struct{}
	running bool
}

// MonitorOption customizes a Monitor.
type MonitorOption func(*Monitor)

// WithInterval sets the polling cadence. Non-positive values keep the default.
func WithInterval(d time.Duration) MonitorOption {
	return func(m *Monitor) {
		if d > 0 {
			m.interval = d
		}
	}
}

// WithMonitorLogger sets the logger used for scan diagnostics.
func WithMonitorLogger(logger *slog.Logger) MonitorOption {
	return func(m *Monitor) {
		m.logger = logging.NewComponentLogger(logger, "port-monitor")
	}
}

// NewMonitor creates a Monitor reporting to handler.
func NewMonitor(enum Enumerator, handler Handler, opts ...MonitorOption) *Monitor {
	m := &Monitor{
		enum:     enum,
		interval: DefaultMonitorInterval,
		logger:   logging.NewComponentLogger(nil, "port-monitor"),
		events:   newDispatcher(handler),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start performs an immediate scan and then one every interval until Stop
// is called or ctx is cancelled. Calling Start on a running monitor is a
// no-op. The remembered snapshot is reset, so the first scan reports every
// port present.
func (m *Monitor) Start(ctx context.Context) error {
	if m == nil {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return nil
	}

	m.known = nil
	m.quit = make(chan struct{})
	m.kick = make(chan struct{}, 1)
	m.running = true

	go m.loop(ctx, m.quit, m.kick)

	m.logger.Info("port monitor started",
		logging.String(logging.FieldEventType, "port_monitor_started"),
		logging.Duration("interval", m.interval),
	)
	return nil
}

// Stop halts future scans. A scan already in flight may finish, but its
// result is discarded.
func (m *Monitor) Stop() {
	if m == nil {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return
	}
	close(m.quit)
	m.quit = nil
	m.kick = nil
	m.running = false

	m.logger.Info("port monitor stopped",
		logging.String(logging.FieldEventType, "port_monitor_stopped"),
	)
}

// Running reports whether the monitor is polling.
func (m *Monitor) Running() bool {
	if m == nil {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

// Kick requests a scan as soon as the current one, if any, completes.
// Requests made while one is already pending are coalesced.
func (m *Monitor) Kick() {
	if m == nil {
		return
	}
	m.mu.Lock()
	kick := m.kick
	m.mu.Unlock()
	if kick == nil {
		return
	}
	select {
	case kick <- struct{}{}:
	default:
	}
}

// Wait blocks until every emitted event has been handled.
func (m *Monitor) Wait() {
	m.events.wait()
}

func (m *Monitor) loop(ctx context.Context, quit chan struct{}, kick <-chan struct{}) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.scan(ctx, quit)
	for {
		select {
		case <-ctx.Done():
			m.release(quit)
			return
		case <-quit:
			return
		case <-ticker.C:
			m.scan(ctx, quit)
		case <-kick:
			m.scan(ctx, quit)
		}
	}
}

// release marks the monitor stopped when the loop exits on its own.
func (m *Monitor) release(quit chan struct{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.quit != quit {
		return
	}
	close(quit)
	m.quit = nil
	m.kick = nil
	m.running = false
}

// scan enumerates ports once and emits EventPortsChanged if the set differs
// from the last one reported. Enumeration failures count as "no change".
func (m *Monitor) scan(ctx context.Context, quit <-chan struct{}) {
	names, err := m.enum.Ports(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		logging.WarnWithContext(m.logger, "port enumeration failed; keeping previous port list", "port_scan_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check device permissions and the configured enumerator"),
			logging.String(logging.FieldImpact, "port changes are picked up on the next successful scan"),
		)
		return
	}
	current := NewSnapshot(names...)

	m.mu.Lock()
	defer m.mu.Unlock()

	select {
	case <-quit:
		return
	default:
	}
	if current.Equal(m.known) {
		return
	}

	added, removed := current.Diff(m.known)
	m.known = current
	m.logger.Info("ports changed",
		logging.String(logging.FieldEventType, "ports_changed"),
		logging.Strings("ports", current),
		logging.Strings("added", added),
		logging.Strings("removed", removed),
	)
	m.events.post(Event{Type: EventPortsChanged, Ports: current})
}
