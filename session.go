package serial

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/luhtfiimanal/serialwatch/internal/logging"
)

const (
	DefaultReadTimeout = 100 * time.Millisecond
	DefaultIdlePause   = 10 * time.Millisecond
	// DefaultChunkSize is also the largest chunk a session delivers.
	DefaultChunkSize   = 1024
)

// State is the lifecycle state of a Session.
type State int

const (
	StateClosed State = iota
	StateOpen
)

func (s State) String() string {
	if s == StateOpen {
		return "open"
	}
	return "closed"
}

// run is one open connection, from a successful Open to its close.
type run struct {
	id     string
	port   string
	handle Port
	stop   chan struct{}
}

// Session owns at most one open port and streams what it reads as
// EventDataReceived. Open and Close may be called from any goroutine,
// including from the session's own Handler.
type Session struct {
	opener      Opener
	readTimeout time.Duration
	idlePause   time.Duration
	chunkSize   int
	logger      *slog.Logger
	events      *dispatcher

	openMu sync.Mutex // serializes Open calls

	mu     sync.Mutex
	active *run

	loops sync.WaitGroup
}

// SessionOption customizes a Session.
type SessionOption func(*Session)

// WithOpener selects the transport driver.
func WithOpener(opener Opener) SessionOption {
	return func(s *Session) {
		if opener != nil {
			s.opener = opener
		}
	}
}

// WithReadTimeout bounds each blocking read. Non-positive values keep the
// default.
func WithReadTimeout(d time.Duration) SessionOption {
	return func(s *Session) {
		if d > 0 {
			s.readTimeout = d
		}
	}
}

// WithIdlePause sets the pause after a read that returned no data. Zero
// disables it.
func WithIdlePause(d time.Duration) SessionOption {
	return func(s *Session) {
		if d >= 0 {
			s.idlePause = d
		}
	}
}

// WithChunkSize sets the largest read requested from the port. Values are
// capped at DefaultChunkSize, which bounds every EventDataReceived.
func WithChunkSize(n int) SessionOption {
	return func(s *Session) {
		if n > 0 {
			s.chunkSize = min(n, DefaultChunkSize)
		}
	}
}

// WithSessionLogger sets the logger used for lifecycle diagnostics.
func WithSessionLogger(logger *slog.Logger) SessionOption {
	return func(s *Session) {
		s.logger = logging.NewComponentLogger(logger, "serial-session")
	}
}

// NewSession creates a closed Session reporting to handler.
func NewSession(handler Handler, opts ...SessionOption) *Session {
	s := &Session{
		opener:      SystemOpener,
		readTimeout: DefaultReadTimeout,
		idlePause:   DefaultIdlePause,
		chunkSize:   DefaultChunkSize,
		logger:      logging.NewComponentLogger(nil, "serial-session"),
		events:      newDispatcher(handler),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Open closes any active connection and then opens port at baud with the
// session's read timeout. The outcome is reported through events only:
// EventPortOpened on success, EventPortError otherwise.
func (s *Session) Open(port string, baud int) {
	s.OpenWithTimeout(port, baud, s.readTimeout)
}

// OpenWithTimeout is Open with an explicit read timeout.
func (s *Session) OpenWithTimeout(port string, baud int, timeout time.Duration) {
	s.openMu.Lock()
	defer s.openMu.Unlock()

	s.Close()

	if port == "" {
		s.openFailed(port, errors.New("no port specified"))
		return
	}
	if timeout <= 0 {
		timeout = s.readTimeout
	}

	handle, err := s.opener(Config{Device: port, BaudRate: baud, ReadTimeout: timeout})
	if err != nil {
		s.openFailed(port, err)
		return
	}

	r := &run{
		id:     uuid.NewString(),
		port:   port,
		handle: handle,
		stop:   make(chan struct{}),
	}

	s.mu.Lock()
	s.active = r
	s.loops.Add(1)
	s.events.post(Event{Type: EventPortOpened, Port: port, SessionID: r.id})
	s.mu.Unlock()

	s.logger.Info("port opened",
		logging.String(logging.FieldEventType, "port_opened"),
		logging.String(logging.FieldPort, port),
		logging.String(logging.FieldSessionID, r.id),
		logging.Int("baud_rate", baud),
		logging.Duration("read_timeout", timeout),
	)

	go s.readLoop(r)
}

func (s *Session) openFailed(port string, err error) {
	portErr := &PortError{Op: "open", Port: port, Err: err}
	logging.WarnWithContext(s.logger, "failed to open port", "port_open_failed",
		logging.String(logging.FieldPort, port),
		logging.Error(err),
		logging.String(logging.FieldErrorHint, "check that the device exists and is not in use"),
		logging.String(logging.FieldImpact, "session stays closed"),
	)
	s.events.post(Event{Type: EventPortError, Port: port, Err: portErr})
}

// Close ends the active connection, if any, and emits EventPortClosed once.
// Closing a closed session does nothing.
func (s *Session) Close() {
	s.mu.Lock()
	r := s.active
	if r == nil {
		s.mu.Unlock()
		return
	}
	s.closeLocked(r)
	s.mu.Unlock()

	s.logger.Info("port closed",
		logging.String(logging.FieldEventType, "port_closed"),
		logging.String(logging.FieldPort, r.port),
		logging.String(logging.FieldSessionID, r.id),
	)
}

// closeLocked is the single close transition. s.mu must be held and r must
// be the active run.
func (s *Session) closeLocked(r *run) {
	s.active = nil
	close(r.stop)
	if err := r.handle.Close(); err != nil {
		s.logger.Debug("port close returned error",
			logging.String(logging.FieldPort, r.port),
			logging.Error(err),
		)
	}
	s.events.post(Event{Type: EventPortClosed, Port: r.port, SessionID: r.id})
}

// State reports whether a connection is open.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active == nil {
		return StateClosed
	}
	return StateOpen
}

// ActivePort returns the name of the open port.
func (s *Session) ActivePort() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active == nil {
		return "", false
	}
	return s.active.port, true
}

// Wait blocks until every read loop has exited and every emitted event has
// been handled. It must not be called from the Handler.
func (s *Session) Wait() {
	s.loops.Wait()
	s.events.wait()
}

func (s *Session) readLoop(r *run) {
	defer s.loops.Done()

	buf := make([]byte, s.chunkSize)
	for {
		select {
		case <-r.stop:
			return
		default:
		}

		n, err := r.handle.Read(buf)
		if n > 0 {
			if !s.deliver(r, buf[:n]) {
				return
			}
		}
		if err != nil {
			s.fail(r, err)
			return
		}
		if n == 0 && s.idlePause > 0 {
			select {
			case <-r.stop:
				return
			case <-time.After(s.idlePause):
			}
		}
	}
}

// deliver queues a copy of data while r is still the active run. It reports
// false once the run has been closed.
func (s *Session) deliver(r *run, data []byte) bool {
	chunk := make([]byte, len(data))
	copy(chunk, data)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active != r {
		return false
	}
	s.events.post(Event{Type: EventDataReceived, Port: r.port, Data: chunk, SessionID: r.id})
	return true
}

// fail ends r after a read error. A run already taken by Close exits quietly.
func (s *Session) fail(r *run, err error) {
	s.mu.Lock()
	if s.active != r {
		s.mu.Unlock()
		return
	}
	var portErr *PortError
	if !errors.As(err, &portErr) {
		portErr = &PortError{Op: "read", Port: r.port, Err: err}
	}
	s.events.post(Event{Type: EventPortError, Port: r.port, Err: portErr, SessionID: r.id})
	s.closeLocked(r)
	s.mu.Unlock()

	logging.WarnWithContext(s.logger, "port read failed; session closed", "port_lost",
		logging.String(logging.FieldPort, r.port),
		logging.String(logging.FieldSessionID, r.id),
		logging.Error(err),
		logging.String(logging.FieldErrorHint, "device may have been unplugged"),
		logging.String(logging.FieldImpact, "no further data until the port is opened again"),
	)
}
