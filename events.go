package serial

import (
	"sync"
	"time"
)

// EventType identifies what an Event reports.
type EventType int

const (
	// EventPortsChanged carries the new set of present ports in Ports.
	EventPortsChanged EventType = iota + 1
	// EventPortOpened reports a successful Open of Port.
	EventPortOpened
	// EventPortClosed reports that the session on Port has ended, whoever
	// initiated it.
	EventPortClosed
	// EventPortError carries an open or read failure in Err.
	EventPortError
	// EventDataReceived carries one non-empty read in Data.
	EventDataReceived
)

func (t EventType) String() string {
	switch t {
	case EventPortsChanged:
		return "ports_changed"
	case EventPortOpened:
		return "port_opened"
	case EventPortClosed:
		return "port_closed"
	case EventPortError:
		return "port_error"
	case EventDataReceived:
		return "data_received"
	default:
		return "unknown"
	}
}

// Event is a notification emitted by a Monitor or a Session.
type Event struct {
	Type      EventType
	Port      string
	Ports     Snapshot
	Data      []byte
	Err       error
	SessionID string
	Time      time.Time
}

// Handler receives events. Calls for one component never overlap and arrive
// in production order.
type Handler func(Event)

// dispatcher delivers events to a Handler from a single goroutine. post never
// blocks, so producers may post while holding their own locks. The draining
// goroutine exits when the queue is empty and is restarted by the next post.
type dispatcher struct {
	handler Handler

	mu      sync.Mutex
	idle    *sync.Cond
	queue   []Event
	running bool
}

func newDispatcher(handler Handler) *dispatcher {
	d := &dispatcher{handler: handler}
	d.idle = sync.NewCond(&d.mu)
	return d
}

func (d *dispatcher) post(ev Event) {
	if d.handler == nil {
		return
	}
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}

	d.mu.Lock()
	d.queue = append(d.queue, ev)
	if d.running {
		d.mu.Unlock()
		return
	}
	d.running = true
	d.mu.Unlock()

	go d.drain()
}

func (d *dispatcher) drain() {
	for {
		d.mu.Lock()
		if len(d.queue) == 0 {
			d.queue = nil
			d.running = false
			d.idle.Broadcast()
			d.mu.Unlock()
			return
		}
		ev := d.queue[0]
		d.queue[0] = Event{}
		d.queue = d.queue[1:]
		d.mu.Unlock()

		d.handler(ev)
	}
}

// wait blocks until every posted event has been handled. It must not be
// called from the handler.
func (d *dispatcher) wait() {
	d.mu.Lock()
	for d.running {
		d.idle.Wait()
	}
	d.mu.Unlock()
}
