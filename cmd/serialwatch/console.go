package main

import (
	"io"
	"log/slog"
	"sync"
	"time"

	serial "github.com/luhtfiimanal/serialwatch"
	"github.com/luhtfiimanal/serialwatch/internal/logging"
)

// sessionControl is the part of serial.Session the console drives.
type sessionControl interface {
	Open(port string, baud int)
	Close()
	State() serial.State
}

// consoleController ties a Monitor to a Session for one port: it opens the
// port when it appears, closes it when it disappears from a snapshot, and
// writes received bytes to out. With reconnect it also retries after a lost
// connection or a failed open while the port is still listed.
type consoleController struct {
	port       string
	baud       int
	reconnect  bool
	retryDelay time.Duration
	session    sessionControl
	out        io.Writer
	logger     *slog.Logger

	openMu sync.Mutex // serializes the closed-then-open check

	mu        sync.Mutex
	attempted bool
	lastPorts serial.Snapshot
	detaching bool // the console itself closed the session
	retry     *time.Timer
	stopped   bool

	done     chan struct{}
	doneOnce sync.Once
}

func newConsoleController(port string, baud int, reconnect bool, retryDelay time.Duration, out io.Writer, logger *slog.Logger) *consoleController {
	if retryDelay <= 0 {
		retryDelay = serial.DefaultMonitorInterval
	}
	return &consoleController{
		port:       port,
		baud:       baud,
		reconnect:  reconnect,
		retryDelay: retryDelay,
		out:        out,
		logger:     logging.NewComponentLogger(logger, "console"),
		done:       make(chan struct{}),
	}
}

// Done is closed once the console has nothing left to do: the session
// ended and reconnecting is disabled.
func (c *consoleController) Done() <-chan struct{} {
	return c.done
}

func (c *consoleController) finish() {
	c.doneOnce.Do(func() { close(c.done) })
}

// stop cancels any pending retry. Later retries are not scheduled.
func (c *consoleController) stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopped = true
	if c.retry != nil {
		c.retry.Stop()
		c.retry = nil
	}
}

// scheduleRetry arms a single reopen attempt after retryDelay.
func (c *consoleController) scheduleRetry() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped || c.retry != nil {
		return
	}
	c.retry = time.AfterFunc(c.retryDelay, c.retryOpen)
}

// retryOpen reopens the port if the last snapshot still lists it and no
// connection came up in the meantime.
func (c *consoleController) retryOpen() {
	c.mu.Lock()
	c.retry = nil
	listed := c.lastPorts.Contains(c.port)
	stopped := c.stopped
	c.mu.Unlock()
	if stopped || !listed {
		return
	}

	c.openMu.Lock()
	defer c.openMu.Unlock()
	if c.session.State() == serial.StateOpen {
		return
	}
	c.logger.Info("port still listed; retrying open",
		logging.String(logging.FieldEventType, "console_retry"),
		logging.String(logging.FieldPort, c.port),
		logging.Duration("retry_delay", c.retryDelay),
	)
	c.session.Open(c.port, c.baud)
}

// handleMonitor reacts to port snapshots.
func (c *consoleController) handleMonitor(ev serial.Event) {
	if ev.Type != serial.EventPortsChanged {
		return
	}
	c.mu.Lock()
	c.lastPorts = ev.Ports
	c.mu.Unlock()

	c.openMu.Lock()
	defer c.openMu.Unlock()

	present := ev.Ports.Contains(c.port)
	open := c.session.State() == serial.StateOpen

	switch {
	case present && !open:
		c.mu.Lock()
		allowed := c.reconnect || !c.attempted
		c.attempted = true
		c.mu.Unlock()
		if !allowed {
			return
		}
		c.logger.Info("port present; opening",
			logging.String(logging.FieldEventType, "console_attach"),
			logging.String(logging.FieldPort, c.port),
			logging.Int("baud_rate", c.baud),
		)
		c.session.Open(c.port, c.baud)
	case !present && open:
		c.logger.Info("port disappeared; closing",
			logging.String(logging.FieldEventType, "console_detach"),
			logging.String(logging.FieldPort, c.port),
		)
		c.mu.Lock()
		c.detaching = true
		c.mu.Unlock()
		c.session.Close()
	case !present:
		c.logger.Debug("waiting for port",
			logging.String(logging.FieldPort, c.port),
			logging.Strings("ports", ev.Ports),
		)
	}
}

// handleSession reacts to session lifecycle and data events.
func (c *consoleController) handleSession(ev serial.Event) {
	switch ev.Type {
	case serial.EventDataReceived:
		if _, err := c.out.Write(ev.Data); err != nil {
			c.logger.Error("write console output failed", logging.Error(err))
		}
	case serial.EventPortOpened:
		c.logger.Info("attached",
			logging.String(logging.FieldEventType, "console_attached"),
			logging.String(logging.FieldPort, ev.Port),
			logging.String(logging.FieldSessionID, ev.SessionID),
		)
	case serial.EventPortError:
		logging.WarnWithContext(c.logger, "port error", "console_port_error",
			logging.String(logging.FieldPort, ev.Port),
			logging.Error(ev.Err),
			logging.String(logging.FieldErrorHint, "check the device and its permissions"),
			logging.String(logging.FieldImpact, c.errorImpact()),
		)
		// A failed open carries no session and is not followed by PortClosed.
		if ev.SessionID != "" {
			return
		}
		if !c.reconnect {
			c.finish()
			return
		}
		c.scheduleRetry()
	case serial.EventPortClosed:
		c.logger.Info("detached",
			logging.String(logging.FieldEventType, "console_detached"),
			logging.String(logging.FieldPort, ev.Port),
			logging.String(logging.FieldSessionID, ev.SessionID),
		)
		c.mu.Lock()
		detached := c.detaching
		c.detaching = false
		c.mu.Unlock()
		if !c.reconnect {
			c.finish()
			return
		}
		if !detached {
			c.scheduleRetry()
		}
	}
}

func (c *consoleController) errorImpact() string {
	if c.reconnect {
		return "console reattaches when the port is seen again"
	}
	return "console exits"
}
