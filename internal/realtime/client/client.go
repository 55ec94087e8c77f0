// Package client is a reconnecting websocket consumer for the realtime endpoint.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/url"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	DefaultMaxAttempts  = 5
	DefaultInitialDelay = time.Second
	DefaultMaxDelay     = 30 * time.Second
	DefaultEventBuffer  = 64
)

var ErrReconnectExhausted = errors.New("reconnect_exhausted")

type State int32

const (
	StateIdle State = iota
	StateConnecting
	StateOpen
	StateReconnecting
	StateClosed
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateReconnecting:
		return "reconnecting"
	case StateClosed:
		return "closed"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Message is an event as received from the server.
type Message struct {
	Type      string          `json:"type"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

type Conn interface {
	ReadJSON(v any) error
	WriteJSON(v any) error
	Close() error
}

type Dialer interface {
	Dial(ctx context.Context, url string) (Conn, error)
}

// Refresher reloads full state after every successful (re)connect; events are never replayed.
type Refresher interface {
	Refresh(ctx context.Context) error
}

type WebsocketDialer struct {
	Dialer *websocket.Dialer
}

func (d WebsocketDialer) Dial(ctx context.Context, url string) (Conn, error) {
	dialer := d.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

type Config struct {
	URL          string
	Token        string
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	EventBuffer  int

	Dialer    Dialer
	Refresher Refresher
	Log       *zap.Logger

	// Sleep waits between attempts; tests replace it to record delays.
	Sleep func(ctx context.Context, d time.Duration) error
}

type Client struct {
	cfg    Config
	log    *zap.Logger
	events chan Message

	mu    sync.RWMutex
	state State
}

func New(cfg Config) *Client {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.InitialDelay <= 0 {
		cfg.InitialDelay = DefaultInitialDelay
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = DefaultMaxDelay
	}
	if cfg.EventBuffer <= 0 {
		cfg.EventBuffer = DefaultEventBuffer
	}
	if cfg.Dialer == nil {
		cfg.Dialer = WebsocketDialer{}
	}
	if cfg.Sleep == nil {
		cfg.Sleep = sleep
	}
	if cfg.Log == nil {
		cfg.Log = zap.NewNop()
	}
	return &Client{
		cfg:    cfg,
		log:    cfg.Log.Named("realtime.client"),
		events: make(chan Message, cfg.EventBuffer),
		state:  StateIdle,
	}
}

func (c *Client) Events() <-chan Message { return c.events }

func (c *Client) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

func (c *Client) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

// Run connects and keeps the connection alive until ctx ends, the server closes
// normally, or MaxAttempts consecutive reconnects fail.
func (c *Client) Run(ctx context.Context) error {
	policy := c.backOff()
	attempts := 0

	for {
		c.setState(StateConnecting)
		conn, err := c.cfg.Dialer.Dial(ctx, c.endpoint())
		if err == nil {
			attempts = 0
			policy.Reset()
			err = c.serve(ctx, conn)
			_ = conn.Close()
			if ctx.Err() != nil {
				c.setState(StateClosed)
				return ctx.Err()
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				c.setState(StateClosed)
				return nil
			}
			c.log.Warn("connection lost", zap.Error(err))
		} else {
			if ctx.Err() != nil {
				c.setState(StateClosed)
				return ctx.Err()
			}
			c.log.Warn("dial failed", zap.Int("attempt", attempts), zap.Error(err))
		}

		if attempts >= c.cfg.MaxAttempts {
			c.setState(StateFailed)
			c.log.Error("giving up", zap.Int("attempts", attempts))
			return ErrReconnectExhausted
		}
		delay := policy.NextBackOff()
		attempts++
		c.setState(StateReconnecting)
		c.log.Info("reconnecting", zap.Int("attempt", attempts), zap.Duration("delay", delay))
		if err := c.cfg.Sleep(ctx, delay); err != nil {
			c.setState(StateClosed)
			return err
		}
	}
}

func (c *Client) serve(ctx context.Context, conn Conn) error {
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-stop:
		}
	}()

	c.setState(StateOpen)
	if c.cfg.Refresher != nil {
		if err := c.cfg.Refresher.Refresh(ctx); err != nil {
			c.log.Warn("refresh failed", zap.Error(err))
		}
	}
	if err := conn.WriteJSON(map[string]string{"type": "subscribe_alerts"}); err != nil {
		return err
	}

	for {
		var msg Message
		if err := conn.ReadJSON(&msg); err != nil {
			return err
		}
		select {
		case c.events <- msg:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// backOff yields min(InitialDelay·2^n, MaxDelay) with no jitter.
func (c *Client) backOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.cfg.InitialDelay
	b.MaxInterval = c.cfg.MaxDelay
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.Reset()
	return b
}

func (c *Client) endpoint() string {
	if c.cfg.Token == "" {
		return c.cfg.URL
	}
	u, err := url.Parse(c.cfg.URL)
	if err != nil {
		return c.cfg.URL
	}
	q := u.Query()
	q.Set("token", c.cfg.Token)
	u.RawQuery = q.Encode()
	return u.String()
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
