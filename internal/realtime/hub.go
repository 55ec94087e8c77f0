package realtime

import (
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/smallbiznis/perishables/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var (
	ErrInvalidStore  = errors.New("invalid_store")
	ErrStoreMismatch = errors.New("store_mismatch")
)

type HubParams struct {
	fx.In

	Log     *zap.Logger
	Metrics *metrics.Metrics `optional:"true"`
}

// Hub keeps the store -> sessions registry and fans events out per store.
type Hub struct {
	mu     sync.RWMutex
	stores map[string]map[string]*Session

	// dispatch orders broadcasts so every session observes the same sequence.
	dispatch sync.Mutex

	log     *zap.Logger
	metrics *metrics.Metrics
}

func NewHub(p HubParams) *Hub {
	log := p.Log
	if log == nil {
		log = zap.NewNop()
	}
	return &Hub{
		stores:  make(map[string]map[string]*Session),
		log:     log.Named("realtime.hub"),
		metrics: p.Metrics,
	}
}

// Subscribe registers an open session under its store. A session never moves to another store.
func (h *Hub) Subscribe(s *Session, storeID string) error {
	storeID = strings.TrimSpace(storeID)
	if storeID == "" {
		return ErrInvalidStore
	}
	if s == nil || s.State() != StateOpen {
		return ErrSessionClosed
	}
	if s.StoreID() != storeID {
		return ErrStoreMismatch
	}

	h.mu.Lock()
	sessions := h.stores[storeID]
	if sessions == nil {
		sessions = make(map[string]*Session)
		h.stores[storeID] = sessions
	}
	if _, ok := sessions[s.ID()]; ok {
		h.mu.Unlock()
		return nil
	}
	sessions[s.ID()] = s
	h.mu.Unlock()

	h.metrics.SessionOpened()
	go func() {
		<-s.Done()
		h.Unsubscribe(s)
	}()
	return nil
}

// Unsubscribe removes s and reports whether it was registered.
func (h *Hub) Unsubscribe(s *Session) bool {
	if s == nil {
		return false
	}
	storeID := s.StoreID()

	h.mu.Lock()
	sessions := h.stores[storeID]
	_, ok := sessions[s.ID()]
	if ok {
		delete(sessions, s.ID())
		if len(sessions) == 0 {
			delete(h.stores, storeID)
		}
	}
	h.mu.Unlock()

	if ok {
		h.metrics.SessionClosed()
	}
	return ok
}

// Broadcast queues ev on every session of storeID and returns how many accepted it.
// Sessions that cannot take the event are closed and dropped.
func (h *Hub) Broadcast(storeID string, ev Event) int {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}

	h.dispatch.Lock()
	defer h.dispatch.Unlock()

	targets := h.Sessions(storeID)
	delivered := 0
	for _, s := range targets {
		if err := s.Send(ev); err != nil {
			h.log.Warn("dropping session",
				zap.String("store_id", storeID),
				zap.String("session_id", s.ID()),
				zap.String("type", string(ev.Type)),
				zap.Error(err),
			)
			h.metrics.RecordDroppedSession()
			h.Unsubscribe(s)
			s.Close(CloseGoingAway, "delivery failed")
			continue
		}
		delivered++
	}
	h.metrics.RecordBroadcast(string(ev.Type))
	return delivered
}

func (h *Hub) Sessions(storeID string) []*Session {
	h.mu.RLock()
	defer h.mu.RUnlock()
	sessions := h.stores[storeID]
	out := make([]*Session, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, s)
	}
	return out
}

func (h *Hub) SessionCount(storeID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.stores[storeID])
}

func (h *Hub) Stores() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]string, 0, len(h.stores))
	for id := range h.stores {
		out = append(out, id)
	}
	return out
}

// Close ends every registered session.
func (h *Hub) Close() {
	h.mu.RLock()
	all := make([]*Session, 0)
	for _, sessions := range h.stores {
		for _, s := range sessions {
			all = append(all, s)
		}
	}
	h.mu.RUnlock()

	for _, s := range all {
		s.Close(CloseGoingAway, "server shutting down")
	}
}
