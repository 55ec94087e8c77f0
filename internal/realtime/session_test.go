package realtime

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTransport struct {
	mu       sync.Mutex
	events   []Event
	writeErr error
	closed   bool
	code     int
	reason   string
}

func (t *fakeTransport) WriteEvent(ev Event) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.writeErr != nil {
		return t.writeErr
	}
	t.events = append(t.events, ev)
	return nil
}

func (t *fakeTransport) Ping() error { return nil }

func (t *fakeTransport) Close(code int, reason string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	t.code = code
	t.reason = reason
	return nil
}

func (t *fakeTransport) Events() []Event {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]Event(nil), t.events...)
}

func (t *fakeTransport) Closed() (bool, int, string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed, t.code, t.reason
}

func openSession(t *testing.T, storeID string, opts SessionOptions) (*Session, *fakeTransport) {
	t.Helper()
	tr := &fakeTransport{}
	s := NewSession(tr, opts)
	require.NoError(t, s.BeginAuthentication())
	require.NoError(t, s.Open(Identity{UserID: "u-" + storeID, StoreID: storeID, Role: "associate"}))
	t.Cleanup(func() { s.Close(CloseNormal, "") })
	return s, tr
}

func TestSessionStateMachine(t *testing.T) {
	s := NewSession(&fakeTransport{}, SessionOptions{})
	assert.Equal(t, StateConnecting, s.State())

	assert.ErrorIs(t, s.Open(Identity{StoreID: "1234"}), ErrInvalidTransition)
	require.NoError(t, s.BeginAuthentication())
	assert.Equal(t, StateAuthenticating, s.State())
	assert.ErrorIs(t, s.BeginAuthentication(), ErrInvalidTransition)
	assert.ErrorIs(t, s.Open(Identity{}), ErrInvalidIdentity)

	require.NoError(t, s.Open(Identity{StoreID: "1234"}))
	assert.Equal(t, StateOpen, s.State())

	s.Close(CloseNormal, "")
	assert.Equal(t, StateClosed, s.State())
	assert.ErrorIs(t, s.Send(NewEvent(EventPong, nil, time.Now())), ErrSessionClosed)
}

func TestSessionRejectedBeforeAuthentication(t *testing.T) {
	tr := &fakeTransport{}
	s := NewSession(tr, SessionOptions{})

	s.Close(ClosePolicyViolation, "Authentication required")

	assert.Equal(t, StateClosed, s.State())
	closed, code, reason := tr.Closed()
	assert.True(t, closed)
	assert.Equal(t, ClosePolicyViolation, code)
	assert.Equal(t, "Authentication required", reason)
}

func TestSessionWritesInOrder(t *testing.T) {
	s, tr := openSession(t, "1234", SessionOptions{})

	for i := 0; i < 20; i++ {
		require.NoError(t, s.Send(NewEvent(EventDataUpdate, i, time.Now())))
	}

	require.Eventually(t, func() bool { return len(tr.Events()) == 20 }, time.Second, 5*time.Millisecond)
	for i, ev := range tr.Events() {
		assert.Equal(t, i, ev.Data)
	}
}

func TestSessionClosesOnWriteFailure(t *testing.T) {
	s, tr := openSession(t, "1234", SessionOptions{})
	tr.mu.Lock()
	tr.writeErr = errors.New("broken pipe")
	tr.mu.Unlock()

	require.NoError(t, s.Send(NewEvent(EventPong, nil, time.Now())))

	select {
	case <-s.Done():
	case <-time.After(time.Second):
		t.Fatal("session did not close")
	}
	assert.Equal(t, StateClosed, s.State())
}

func TestSessionSendBufferFull(t *testing.T) {
	tr := &fakeTransport{}
	s := NewSession(tr, SessionOptions{SendBuffer: 1})
	require.NoError(t, s.BeginAuthentication())
	s.identity = Identity{StoreID: "1234"}
	// Open without a writer so the queue cannot drain.
	require.NoError(t, s.transition(StateAuthenticating, StateOpen))

	require.NoError(t, s.Send(NewEvent(EventPong, nil, time.Now())))
	assert.ErrorIs(t, s.Send(NewEvent(EventPong, nil, time.Now())), ErrSendBufferFull)
}
