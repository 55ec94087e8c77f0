package client

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	inventorydomain "github.com/smallbiznis/perishables/internal/inventory/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type delayRecorder struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (r *delayRecorder) Sleep(ctx context.Context, d time.Duration) error {
	r.mu.Lock()
	r.delays = append(r.delays, d)
	r.mu.Unlock()
	return ctx.Err()
}

func (r *delayRecorder) Delays() []time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]time.Duration(nil), r.delays...)
}

// scriptedConn replays messages then fails reads with err.
type scriptedConn struct {
	mu       sync.Mutex
	messages []Message
	err      error
	written  []any
	closed   bool
}

func (c *scriptedConn) ReadJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.messages) == 0 {
		return c.err
	}
	msg := c.messages[0]
	c.messages = c.messages[1:]
	*(v.(*Message)) = msg
	return nil
}

func (c *scriptedConn) WriteJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.written = append(c.written, v)
	return nil
}

func (c *scriptedConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

type scriptedDialer struct {
	mu    sync.Mutex
	conns []*scriptedConn
	urls  []string
}

func (d *scriptedDialer) Dial(ctx context.Context, url string) (Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.urls = append(d.urls, url)
	if len(d.conns) == 0 {
		return nil, errors.New("connection refused")
	}
	conn := d.conns[0]
	d.conns = d.conns[1:]
	if conn == nil {
		return nil, errors.New("connection refused")
	}
	return conn, nil
}

type countingRefresher struct {
	mu    sync.Mutex
	calls int
}

func (r *countingRefresher) Refresh(ctx context.Context) error {
	r.mu.Lock()
	r.calls++
	r.mu.Unlock()
	return nil
}

func abnormal() error {
	return &websocket.CloseError{Code: websocket.CloseAbnormalClosure}
}

func normal() error {
	return &websocket.CloseError{Code: websocket.CloseNormalClosure}
}

func TestReconnectDelaysDoubleAndGiveUp(t *testing.T) {
	rec := &delayRecorder{}
	dialer := &scriptedDialer{conns: []*scriptedConn{{err: abnormal()}}}
	c := New(Config{URL: "ws://example.test/ws", Dialer: dialer, Sleep: rec.Sleep})

	err := c.Run(context.Background())

	require.ErrorIs(t, err, ErrReconnectExhausted)
	assert.Equal(t, StateFailed, c.State())
	assert.Equal(t, []time.Duration{
		1 * time.Second,
		2 * time.Second,
		4 * time.Second,
		8 * time.Second,
		16 * time.Second,
	}, rec.Delays())
	assert.Len(t, dialer.urls, 6)
}

func TestReconnectDelayIsCapped(t *testing.T) {
	rec := &delayRecorder{}
	c := New(Config{URL: "ws://example.test/ws", Dialer: &scriptedDialer{}, Sleep: rec.Sleep, MaxAttempts: 8})

	require.ErrorIs(t, c.Run(context.Background()), ErrReconnectExhausted)

	delays := rec.Delays()
	require.Len(t, delays, 8)
	assert.Equal(t, 16*time.Second, delays[4])
	assert.Equal(t, 30*time.Second, delays[5])
	assert.Equal(t, 30*time.Second, delays[6])
	assert.Equal(t, 30*time.Second, delays[7])
}

func TestNormalCloseDoesNotReconnect(t *testing.T) {
	rec := &delayRecorder{}
	conn := &scriptedConn{
		messages: []Message{{Type: "connected"}},
		err:      normal(),
	}
	c := New(Config{URL: "ws://example.test/ws", Token: "abc", Dialer: &scriptedDialer{conns: []*scriptedConn{conn}}, Sleep: rec.Sleep})

	require.NoError(t, c.Run(context.Background()))
	assert.Equal(t, StateClosed, c.State())
	assert.Empty(t, rec.Delays())

	msg := <-c.Events()
	assert.Equal(t, "connected", msg.Type)
	assert.True(t, conn.closed)
}

func TestReconnectResubscribesAndRefreshes(t *testing.T) {
	rec := &delayRecorder{}
	first := &scriptedConn{err: abnormal()}
	second := &scriptedConn{err: normal()}
	dialer := &scriptedDialer{conns: []*scriptedConn{first, nil, second}}
	refresher := &countingRefresher{}
	c := New(Config{URL: "ws://example.test/ws?x=1", Token: "tok", Dialer: dialer, Refresher: refresher, Sleep: rec.Sleep})

	require.NoError(t, c.Run(context.Background()))

	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, rec.Delays())
	assert.Equal(t, 2, refresher.calls)
	for _, conn := range []*scriptedConn{first, second} {
		require.Len(t, conn.written, 1)
		assert.Equal(t, map[string]string{"type": "subscribe_alerts"}, conn.written[0])
	}
	assert.Equal(t, "ws://example.test/ws?token=tok&x=1", dialer.urls[0])
}

func TestSuccessfulConnectResetsBackoff(t *testing.T) {
	rec := &delayRecorder{}
	dialer := &scriptedDialer{conns: []*scriptedConn{
		nil, nil, {err: abnormal()}, nil, {err: normal()},
	}}
	c := New(Config{URL: "ws://example.test/ws", Dialer: dialer, Sleep: rec.Sleep})

	require.NoError(t, c.Run(context.Background()))
	assert.Equal(t, []time.Duration{
		time.Second, 2 * time.Second,
		time.Second, 2 * time.Second,
	}, rec.Delays())
}

func TestRunStopsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	c := New(Config{URL: "ws://example.test/ws", Dialer: &scriptedDialer{}})

	assert.ErrorIs(t, c.Run(ctx), context.Canceled)
	assert.Equal(t, StateClosed, c.State())
}

func TestWebsocketDialerAgainstServer(t *testing.T) {
	upgrader := websocket.Upgrader{}
	received := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		var msg map[string]string
		if err := conn.ReadJSON(&msg); err == nil {
			received <- msg["type"] + ":" + r.URL.Query().Get("token")
		}
		_ = conn.WriteJSON(map[string]any{"type": "pong", "timestamp": time.Now().UTC()})
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	}))
	defer srv.Close()

	c := New(Config{URL: "ws" + strings.TrimPrefix(srv.URL, "http"), Token: "tok"})
	require.NoError(t, c.Run(context.Background()))

	assert.Equal(t, "subscribe_alerts:tok", <-received)
	assert.Equal(t, "pong", (<-c.Events()).Type)
}

func TestHTTPRefresher(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/api/stores/:storeId/inventory", func(c *gin.Context) {
		if c.GetHeader("Authorization") != "Bearer tok" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": gin.H{"type": "unauthorized", "message": "missing token"}})
			return
		}
		c.JSON(http.StatusOK, gin.H{"data": []gin.H{{"id": "mlk-001", "storeId": c.Param("storeId"), "currentPrice": "4.99"}}})
	})
	srv := httptest.NewServer(r)
	defer srv.Close()

	var snapshot []inventorydomain.ItemView
	refresher := NewHTTPRefresher(srv.URL, "tok", "1234", func(items []inventorydomain.ItemView) { snapshot = items })
	require.NoError(t, refresher.Refresh(context.Background()))
	require.Len(t, snapshot, 1)
	assert.Equal(t, "1234", snapshot[0].StoreID)
	assert.Equal(t, "4.99", snapshot[0].CurrentPrice.StringFixed(2))

	err := NewHTTPRefresher(srv.URL, "bad", "1234", nil).Refresh(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status=401")
}
