package realtime

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	DefaultSendBuffer   = 64
	DefaultPingInterval = 54 * time.Second
	DefaultReadTimeout  = 60 * time.Second
	DefaultWriteTimeout = 10 * time.Second
)

// Close codes shared with the websocket transport.
const (
	CloseNormal          = 1000
	CloseGoingAway       = 1001
	ClosePolicyViolation = 1008
	CloseInternalError   = 1011
)

var (
	ErrSessionClosed     = errors.New("session_closed")
	ErrSendBufferFull    = errors.New("send_buffer_full")
	ErrInvalidTransition = errors.New("invalid_session_transition")
	ErrInvalidIdentity   = errors.New("invalid_session_identity")
)

type State int32

const (
	StateConnecting State = iota
	StateAuthenticating
	StateOpen
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateAuthenticating:
		return "authenticating"
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Transport is the wire a session writes to. Close may be called concurrently with writes.
type Transport interface {
	WriteEvent(ev Event) error
	Ping() error
	Close(code int, reason string) error
}

type Identity struct {
	UserID  string
	StoreID string
	Role    string
}

type SessionOptions struct {
	SendBuffer   int
	PingInterval time.Duration
	Log          *zap.Logger
}

// Session is one realtime connection bound to a single store for its lifetime.
// Events are queued and written by one goroutine, so each session sees them in send order.
type Session struct {
	id        string
	transport Transport
	out       chan Event
	done      chan struct{}
	state     atomic.Int32
	pingEvery time.Duration
	log       *zap.Logger

	mu       sync.RWMutex
	identity Identity

	closeOnce sync.Once
}

func NewSession(t Transport, opts SessionOptions) *Session {
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = DefaultSendBuffer
	}
	if opts.Log == nil {
		opts.Log = zap.NewNop()
	}
	id := uuid.NewString()
	s := &Session{
		id:        id,
		transport: t,
		out:       make(chan Event, opts.SendBuffer),
		done:      make(chan struct{}),
		pingEvery: opts.PingInterval,
		log:       opts.Log.With(zap.String("session_id", id)),
	}
	s.state.Store(int32(StateConnecting))
	return s
}

func (s *Session) ID() string { return s.id }

func (s *Session) State() State { return State(s.state.Load()) }

func (s *Session) Identity() Identity {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.identity
}

func (s *Session) StoreID() string { return s.Identity().StoreID }

// Done is closed once the session reaches StateClosed.
func (s *Session) Done() <-chan struct{} { return s.done }

func (s *Session) BeginAuthentication() error {
	return s.transition(StateConnecting, StateAuthenticating)
}

// Open binds the authenticated identity and starts the writer.
func (s *Session) Open(id Identity) error {
	if id.StoreID == "" {
		return ErrInvalidIdentity
	}
	s.mu.Lock()
	if s.State() != StateAuthenticating {
		s.mu.Unlock()
		return ErrInvalidTransition
	}
	s.identity = id
	s.mu.Unlock()

	if err := s.transition(StateAuthenticating, StateOpen); err != nil {
		return err
	}
	s.log = s.log.With(zap.String("store_id", id.StoreID), zap.String("user_id", id.UserID))
	go s.writeLoop()
	return nil
}

// Send queues ev without blocking.
func (s *Session) Send(ev Event) error {
	if s.State() != StateOpen {
		return ErrSessionClosed
	}
	select {
	case <-s.done:
		return ErrSessionClosed
	default:
	}
	select {
	case s.out <- ev:
		return nil
	default:
		return ErrSendBufferFull
	}
}

// Close moves the session to StateClosed from any state. Later calls are no-ops.
func (s *Session) Close(code int, reason string) {
	s.closeOnce.Do(func() {
		s.state.Store(int32(StateClosed))
		close(s.done)
		if s.transport != nil {
			if err := s.transport.Close(code, reason); err != nil {
				s.log.Debug("transport close failed", zap.Error(err))
			}
		}
	})
}

func (s *Session) transition(from, to State) error {
	if !s.state.CompareAndSwap(int32(from), int32(to)) {
		return ErrInvalidTransition
	}
	return nil
}

func (s *Session) writeLoop() {
	var ping <-chan time.Time
	if s.pingEvery > 0 {
		ticker := time.NewTicker(s.pingEvery)
		defer ticker.Stop()
		ping = ticker.C
	}

	for {
		select {
		case <-s.done:
			return
		case ev := <-s.out:
			if err := s.transport.WriteEvent(ev); err != nil {
				s.log.Debug("write failed", zap.String("type", string(ev.Type)), zap.Error(err))
				s.Close(CloseInternalError, "write failed")
				return
			}
		case <-ping:
			if err := s.transport.Ping(); err != nil {
				s.log.Debug("ping failed", zap.Error(err))
				s.Close(CloseGoingAway, "ping failed")
				return
			}
		}
	}
}
