package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/smallbiznis/perishables/internal/clock"
	"github.com/smallbiznis/perishables/internal/observability/logger"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const maxClientMessageBytes = 4096

var ErrUnauthenticated = errors.New("unauthenticated")

// Authenticator resolves a handshake token into the session identity.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (Identity, error)
}

type HandlerParams struct {
	fx.In

	Hub    *Hub
	Auth   Authenticator
	Alerts *AlertDispatcher `optional:"true"`
	Clock  clock.Clock
	Log    *zap.Logger
}

type Handler struct {
	hub      *Hub
	auth     Authenticator
	alerts   *AlertDispatcher
	clock    clock.Clock
	log      *zap.Logger
	upgrader websocket.Upgrader

	ReadTimeout  time.Duration
	PingInterval time.Duration
	WriteTimeout time.Duration
	SendBuffer   int
}

func NewHandler(p HandlerParams) *Handler {
	return &Handler{
		hub:    p.Hub,
		auth:   p.Auth,
		alerts: p.Alerts,
		clock:  p.Clock,
		log:    p.Log.Named("realtime.handler"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		ReadTimeout:  DefaultReadTimeout,
		PingInterval: DefaultPingInterval,
		WriteTimeout: DefaultWriteTimeout,
		SendBuffer:   DefaultSendBuffer,
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Debug("upgrade failed", zap.Error(err))
		return
	}

	sess := NewSession(newWSTransport(conn, h.WriteTimeout), SessionOptions{
		SendBuffer:   h.SendBuffer,
		PingInterval: h.PingInterval,
		Log:          h.log,
	})

	token := strings.TrimSpace(r.URL.Query().Get("token"))
	if token == "" {
		sess.Close(ClosePolicyViolation, "Authentication required")
		return
	}
	_ = sess.BeginAuthentication()

	ctx := r.Context()
	identity, err := h.auth.Authenticate(ctx, token)
	if err != nil {
		h.log.Info("websocket authentication failed", zap.Error(err))
		sess.Close(ClosePolicyViolation, "Invalid token")
		return
	}
	if err := sess.Open(identity); err != nil {
		sess.Close(ClosePolicyViolation, "Invalid token")
		return
	}
	defer sess.Close(CloseNormal, "")

	ctx = logger.WithActor(ctx, identity.UserID, identity.StoreID)
	log := logger.WithContext(ctx, h.log).With(zap.String("session_id", sess.ID()))

	_ = sess.Send(NewEvent(EventConnected, Connected{
		Message:   "Real-time updates enabled",
		StoreID:   identity.StoreID,
		UserID:    identity.UserID,
		SessionID: sess.ID(),
	}, h.clock.Now()))

	if err := h.hub.Subscribe(sess, identity.StoreID); err != nil {
		log.Warn("subscribe failed", zap.Error(err))
		return
	}
	log.Info("websocket authenticated", zap.String("role", identity.Role))

	h.readLoop(conn, sess, log)
	log.Info("websocket disconnected")
}

func (h *Handler) readLoop(conn *websocket.Conn, sess *Session, log *zap.Logger) {
	conn.SetReadLimit(maxClientMessageBytes)
	_ = conn.SetReadDeadline(time.Now().Add(h.ReadTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(h.ReadTimeout))
	})

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Debug("read failed", zap.Error(err))
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(h.ReadTimeout))

		var msg ClientMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			_ = sess.Send(NewEvent(EventError, ErrorMessage{Message: "invalid message"}, h.clock.Now()))
			continue
		}
		h.handleMessage(sess, msg, log)
	}
}

func (h *Handler) handleMessage(sess *Session, msg ClientMessage, log *zap.Logger) {
	storeID := sess.StoreID()
	switch msg.Type {
	case MessageSubscribeAlerts:
		h.alerts.Request(storeID)
	case MessageRequestUpdate:
		h.hub.Broadcast(storeID, NewEvent(EventDataUpdate, NewDataUpdate(msg.DataType), h.clock.Now()))
	case MessagePing:
		_ = sess.Send(NewEvent(EventPong, nil, h.clock.Now()))
	default:
		log.Debug("unknown message type", zap.String("type", msg.Type))
		_ = sess.Send(NewEvent(EventError, ErrorMessage{Message: "unknown message type"}, h.clock.Now()))
	}
}
