package serial

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/luhtfiimanal/serialwatch/internal/logging"
)

type readResult struct {
	data []byte
	err  error
}

// fakePort serves scripted reads and times out after a few milliseconds
// when none is queued. Data larger than the read buffer is served across
// several reads.
type fakePort struct {
	reads     chan readResult
	closed    chan struct{}
	closeOnce sync.Once
	closes    atomic.Int32
	pending   []byte
}

func newFakePort() *fakePort {
	return &fakePort{reads: make(chan readResult, 16), closed: make(chan struct{})}
}

func (p *fakePort) Read(buf []byte) (int, error) {
	select {
	case <-p.closed:
		return 0, ErrClosed
	default:
	}
	if len(p.pending) > 0 {
		n := copy(buf, p.pending)
		p.pending = p.pending[n:]
		return n, nil
	}
	select {
	case r := <-p.reads:
		n := copy(buf, r.data)
		if r.err == nil {
			p.pending = r.data[n:]
		}
		return n, r.err
	case <-p.closed:
		return 0, ErrClosed
	case <-time.After(2 * time.Millisecond):
		return 0, nil
	}
}

func (p *fakePort) Close() error {
	p.closes.Add(1)
	p.closeOnce.Do(func() { close(p.closed) })
	return nil
}

func (p *fakePort) feed(data string) { p.reads <- readResult{data: []byte(data)} }

func (p *fakePort) unplug() { p.reads <- readResult{err: &PortError{Op: "read", Err: io.ErrUnexpectedEOF}} }

// fakeOpener hands out a fresh fakePort per Open of a known device name.
type fakeOpener struct {
	mu      sync.Mutex
	known   map[string]bool
	last    map[string]*fakePort
	configs []Config
}

func newFakeOpener(names ...string) *fakeOpener {
	o := &fakeOpener{known: make(map[string]bool), last: make(map[string]*fakePort)}
	for _, name := range names {
		o.known[name] = true
	}
	return o
}

func (o *fakeOpener) open(cfg Config) (Port, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.configs = append(o.configs, cfg)
	if !o.known[cfg.Device] {
		return nil, fmt.Errorf("could not open port %s: no such file or directory", cfg.Device)
	}
	p := newFakePort()
	o.last[cfg.Device] = p
	return p, nil
}

// port returns the handle from the most recent Open of name.
func (o *fakeOpener) port(name string) *fakePort {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.last[name]
}

// recorder collects session events for assertions.
type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) handle(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) types() []EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]EventType, 0, len(r.events))
	for _, ev := range r.events {
		out = append(out, ev.Type)
	}
	return out
}

func (r *recorder) snapshot() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

func (r *recorder) count(typ EventType) int {
	n := 0
	for _, t := range r.types() {
		if t == typ {
			n++
		}
	}
	return n
}

func newTestSession(t *testing.T, opener *fakeOpener, opts ...SessionOption) (*Session, *recorder) {
	t.Helper()
	rec := &recorder{}
	opts = append([]SessionOption{WithOpener(opener.open), WithIdlePause(time.Millisecond)}, opts...)
	s := NewSession(rec.handle, opts...)
	t.Cleanup(func() {
		s.Close()
		s.Wait()
	})
	return s, rec
}

func TestSession_OpenFailureEmitsOnlyPortError(t *testing.T) {
	opener := newFakeOpener()
	s, rec := newTestSession(t, opener)

	s.Open("COM9", 115200)
	s.Wait()

	events := rec.snapshot()
	require.Len(t, events, 1)
	require.Equal(t, EventPortError, events[0].Type)
	require.Equal(t, "COM9", events[0].Port)
	require.ErrorContains(t, events[0].Err, "COM9")

	var portErr *PortError
	require.ErrorAs(t, events[0].Err, &portErr)
	require.Equal(t, "open", portErr.Op)
	require.Equal(t, StateClosed, s.State())
	_, ok := s.ActivePort()
	require.False(t, ok)
}

func TestSession_EmptyPortNameIsRejected(t *testing.T) {
	opener := newFakeOpener()
	s, rec := newTestSession(t, opener)

	s.Open("", 9600)
	s.Wait()

	require.Equal(t, []EventType{EventPortError}, rec.types())
	require.Empty(t, opener.configs)
}

func TestSession_OpenReadClose(t *testing.T) {
	opener := newFakeOpener("COM3")
	s, rec := newTestSession(t, opener)

	s.Open("COM3", 9600)
	require.Equal(t, StateOpen, s.State())
	port, ok := s.ActivePort()
	require.True(t, ok)
	require.Equal(t, "COM3", port)

	opener.port("COM3").feed("hello")
	require.Eventually(t, func() bool { return rec.count(EventDataReceived) == 1 }, 2*time.Second, time.Millisecond)

	s.Close()
	s.Wait()

	events := rec.snapshot()
	require.Equal(t, []EventType{EventPortOpened, EventDataReceived, EventPortClosed}, rec.types())
	require.Equal(t, "COM3", events[0].Port)
	require.Equal(t, []byte("hello"), events[1].Data)
	require.Equal(t, "COM3", events[2].Port)
	require.NotEmpty(t, events[0].SessionID)
	require.Equal(t, events[0].SessionID, events[1].SessionID)
	require.Equal(t, events[0].SessionID, events[2].SessionID)
	require.Equal(t, StateClosed, s.State())

	require.Equal(t, Config{Device: "COM3", BaudRate: 9600, ReadTimeout: DefaultReadTimeout}, opener.configs[0])
	require.EqualValues(t, 1, opener.port("COM3").closes.Load())
}

func TestSession_CloseWhenClosedEmitsNothing(t *testing.T) {
	s, rec := newTestSession(t, newFakeOpener())

	s.Close()
	s.Close()
	s.Wait()

	require.Empty(t, rec.types())
	require.Equal(t, StateClosed, s.State())
}

func TestSession_ReopenClosesPreviousFirst(t *testing.T) {
	opener := newFakeOpener("COM1", "COM2")
	s, rec := newTestSession(t, opener)

	s.Open("COM1", 9600)
	s.Open("COM2", 9600)
	s.Close()
	s.Wait()

	events := rec.snapshot()
	require.Equal(t, []EventType{EventPortOpened, EventPortClosed, EventPortOpened, EventPortClosed}, rec.types())
	require.Equal(t, "COM1", events[1].Port)
	require.Equal(t, "COM2", events[2].Port)
	require.NotEqual(t, events[0].SessionID, events[2].SessionID)
}

func TestSession_OpenedAndClosedBalance(t *testing.T) {
	opener := newFakeOpener("COM1", "COM2")
	s, rec := newTestSession(t, opener)

	for i := 0; i < 10; i++ {
		s.Open("COM1", 9600)
		if i%3 == 0 {
			s.Close()
		}
		s.Open("COM2", 9600)
		s.Open("COM7", 9600)
	}
	s.Close()
	s.Wait()

	require.Equal(t, rec.count(EventPortOpened), rec.count(EventPortClosed))
	require.Equal(t, 10, rec.count(EventPortError))
}

func TestSession_DeviceLossClosesOnce(t *testing.T) {
	opener := newFakeOpener("/dev/ttyUSB0")
	s, rec := newTestSession(t, opener)

	s.Open("/dev/ttyUSB0", 115200)
	opener.port("/dev/ttyUSB0").unplug()

	require.Eventually(t, func() bool { return s.State() == StateClosed }, 2*time.Second, time.Millisecond)
	s.Close()
	s.Wait()

	require.Equal(t, []EventType{EventPortOpened, EventPortError, EventPortClosed}, rec.types())
	errEvent := rec.snapshot()[1]
	require.True(t, IsPortLost(errEvent.Err))
	require.ErrorIs(t, errEvent.Err, io.ErrUnexpectedEOF)
}

func TestSession_LogsPortLossWithContext(t *testing.T) {
	var buf bytes.Buffer
	logger, err := logging.New(logging.Options{Format: "json", Level: "info", Writer: &buf})
	require.NoError(t, err)

	opener := newFakeOpener("/dev/ttyUSB0")
	s, _ := newTestSession(t, opener, WithSessionLogger(logger))

	s.Open("/dev/ttyUSB0", 115200)
	opener.port("/dev/ttyUSB0").unplug()
	require.Eventually(t, func() bool { return s.State() == StateClosed }, 2*time.Second, time.Millisecond)
	s.Wait()

	out := buf.String()
	require.Contains(t, out, `"event_type":"port_opened"`)
	require.Contains(t, out, `"event_type":"port_lost"`)
	require.Contains(t, out, `"component":"serial-session"`)
	require.Contains(t, out, `"error_hint":"device may have been unplugged"`)
}

func TestSession_PlainReadErrorIsWrapped(t *testing.T) {
	opener := newFakeOpener("COM5")
	s, rec := newTestSession(t, opener)

	s.Open("COM5", 9600)
	opener.port("COM5").reads <- readResult{err: errors.New("input/output error")}

	require.Eventually(t, func() bool { return rec.count(EventPortClosed) == 1 }, 2*time.Second, time.Millisecond)
	s.Wait()

	var portErr *PortError
	require.ErrorAs(t, rec.snapshot()[1].Err, &portErr)
	require.Equal(t, "read", portErr.Op)
	require.Equal(t, "COM5", portErr.Port)
}

func TestSession_DataThenErrorInSameRead(t *testing.T) {
	opener := newFakeOpener("COM5")
	s, rec := newTestSession(t, opener)

	s.Open("COM5", 9600)
	opener.port("COM5").reads <- readResult{data: []byte("tail"), err: io.ErrUnexpectedEOF}

	require.Eventually(t, func() bool { return rec.count(EventPortClosed) == 1 }, 2*time.Second, time.Millisecond)
	s.Wait()

	require.Equal(t, []EventType{EventPortOpened, EventDataReceived, EventPortError, EventPortClosed}, rec.types())
}

func TestSession_CloseRacingReadsNeverLeaksData(t *testing.T) {
	opener := newFakeOpener("COM1")
	s, rec := newTestSession(t, opener, WithIdlePause(0))

	for i := 0; i < 50; i++ {
		s.Open("COM1", 9600)
		port := opener.port("COM1")
		go func() {
			for j := 0; j < 8; j++ {
				select {
				case port.reads <- readResult{data: []byte("x")}:
				case <-port.closed:
					return
				}
			}
		}()
		s.Close()
	}
	s.Wait()

	// Every data event belongs to the open run that precedes it.
	open := ""
	for _, ev := range rec.snapshot() {
		switch ev.Type {
		case EventPortOpened:
			require.Empty(t, open)
			open = ev.SessionID
		case EventDataReceived:
			require.Equal(t, open, ev.SessionID)
		case EventPortClosed:
			require.Equal(t, open, ev.SessionID)
			open = ""
		}
	}
	require.Empty(t, open)
	require.Equal(t, 50, rec.count(EventPortOpened))
	require.Equal(t, 50, rec.count(EventPortClosed))
}

func TestSession_HandlerMayCloseReentrantly(t *testing.T) {
	opener := newFakeOpener("COM3")
	var s *Session
	done := make(chan struct{})
	s = NewSession(func(ev Event) {
		switch ev.Type {
		case EventDataReceived:
			s.Close()
		case EventPortClosed:
			close(done)
		}
	}, WithOpener(opener.open))

	s.Open("COM3", 9600)
	opener.port("COM3").feed("bye")

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for close from handler")
	}
	s.Wait()
	require.Equal(t, StateClosed, s.State())
}

func TestSession_ChunksAreBoundedCopies(t *testing.T) {
	opener := newFakeOpener("COM1")
	s, rec := newTestSession(t, opener, WithChunkSize(4))

	s.Open("COM1", 9600)
	opener.port("COM1").feed("abcdefgh")
	opener.port("COM1").feed("ij")

	require.Eventually(t, func() bool { return rec.count(EventDataReceived) == 3 }, 2*time.Second, time.Millisecond)
	s.Close()
	s.Wait()

	var chunks []string
	for _, ev := range rec.snapshot() {
		if ev.Type == EventDataReceived {
			require.LessOrEqual(t, len(ev.Data), 4)
			chunks = append(chunks, string(ev.Data))
		}
	}
	require.Equal(t, []string{"abcd", "efgh", "ij"}, chunks)
}

func TestSession_ChunkSizeIsCappedAt1024(t *testing.T) {
	opener := newFakeOpener("COM1")
	s, rec := newTestSession(t, opener, WithChunkSize(65536))

	s.Open("COM1", 9600)
	opener.port("COM1").feed(strings.Repeat("z", 4000))

	total := func() int {
		n := 0
		for _, ev := range rec.snapshot() {
			if ev.Type == EventDataReceived {
				n += len(ev.Data)
			}
		}
		return n
	}
	require.Eventually(t, func() bool { return total() == 4000 }, 2*time.Second, time.Millisecond)
	s.Close()
	s.Wait()

	for _, ev := range rec.snapshot() {
		if ev.Type == EventDataReceived {
			require.LessOrEqual(t, len(ev.Data), DefaultChunkSize)
		}
	}
	require.Equal(t, 4, rec.count(EventDataReceived))
}

func TestSession_OpenWithTimeout(t *testing.T) {
	opener := newFakeOpener("COM1")
	s, _ := newTestSession(t, opener)

	s.OpenWithTimeout("COM1", 57600, 250*time.Millisecond)
	s.OpenWithTimeout("COM1", 57600, 0)

	require.Equal(t, 250*time.Millisecond, opener.configs[0].ReadTimeout)
	require.Equal(t, DefaultReadTimeout, opener.configs[1].ReadTimeout)
}

func TestState_String(t *testing.T) {
	require.Equal(t, "open", StateOpen.String())
	require.Equal(t, "closed", StateClosed.String())
}

func TestIsPortLost(t *testing.T) {
	require.False(t, IsPortLost(nil))
	require.False(t, IsPortLost(ErrClosed))
	require.False(t, IsPortLost(errors.New("other")))
	require.True(t, IsPortLost(fmt.Errorf("wrapped: %w", &PortError{Op: "read", Port: "COM1", Err: io.EOF})))
	require.Equal(t, "read COM1: EOF", (&PortError{Op: "read", Port: "COM1", Err: io.EOF}).Error())
}

// Walks the monitor and session through a device appearing, streaming and
// disappearing, with the consumer reacting to snapshots.
func TestMonitorAndSession_HotplugScenario(t *testing.T) {
	enum := &scriptedEnumerator{}
	opener := newFakeOpener("COM3")

	rec := &recorder{}
	session := NewSession(rec.handle, WithOpener(opener.open))

	var attached atomic.Bool
	monitor := NewMonitor(enum, func(ev Event) {
		rec.handle(ev)
		switch {
		case ev.Ports.Contains("COM3") && !attached.Load():
			attached.Store(true)
			session.Open("COM3", 9600)
		case !ev.Ports.Contains("COM3") && attached.Load():
			attached.Store(false)
			session.Close()
		}
	}, WithInterval(time.Hour))
	require.NoError(t, monitor.Start(t.Context()))
	t.Cleanup(monitor.Stop)

	require.Eventually(t, func() bool { return enum.callCount() >= 1 }, 2*time.Second, time.Millisecond)
	enum.set(nil, "COM3")
	kickAndSettle(t, monitor, enum)
	require.Eventually(t, func() bool { return session.State() == StateOpen }, 2*time.Second, time.Millisecond)

	opener.port("COM3").feed("hello")
	require.Eventually(t, func() bool { return rec.count(EventDataReceived) == 1 }, 2*time.Second, time.Millisecond)

	enum.set(nil)
	kickAndSettle(t, monitor, enum)
	require.Eventually(t, func() bool { return rec.count(EventPortClosed) == 1 }, 2*time.Second, time.Millisecond)
	monitor.Wait()
	session.Wait()

	require.Equal(t, []EventType{
		EventPortsChanged, EventPortOpened, EventDataReceived, EventPortsChanged, EventPortClosed,
	}, rec.types())
	events := rec.snapshot()
	require.Equal(t, Snapshot{"COM3"}, events[0].Ports)
	require.Equal(t, []byte("hello"), events[2].Data)
	require.Empty(t, events[3].Ports)
	require.Equal(t, "COM3", events[4].Port)
	require.Equal(t, StateClosed, session.State())
}
