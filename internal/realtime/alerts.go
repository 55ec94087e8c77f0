package realtime

import (
	"context"
	"sync"
	"time"

	"github.com/smallbiznis/perishables/internal/clock"
	inventorydomain "github.com/smallbiznis/perishables/internal/inventory/domain"
	"go.uber.org/zap"
)

const alertLoadTimeout = 10 * time.Second

// AlertSource lists the items of a store that currently warrant an expiry alert.
type AlertSource interface {
	CriticalItems(ctx context.Context, storeID string) ([]inventorydomain.ItemView, error)
}

// Trigger decides when a deferred alert push runs.
type Trigger interface {
	Schedule(fn func())
}

// DelayTrigger runs scheduled work after a fixed wall-clock delay.
type DelayTrigger struct {
	Delay time.Duration
}

func (t DelayTrigger) Schedule(fn func()) {
	if t.Delay <= 0 {
		go fn()
		return
	}
	time.AfterFunc(t.Delay, fn)
}

// ManualTrigger holds scheduled work until Fire is called.
type ManualTrigger struct {
	mu      sync.Mutex
	pending []func()
}

func (t *ManualTrigger) Schedule(fn func()) {
	t.mu.Lock()
	t.pending = append(t.pending, fn)
	t.mu.Unlock()
}

// Fire runs everything scheduled so far and returns how many ran.
func (t *ManualTrigger) Fire() int {
	t.mu.Lock()
	pending := t.pending
	t.pending = nil
	t.mu.Unlock()

	for _, fn := range pending {
		fn()
	}
	return len(pending)
}

func (t *ManualTrigger) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.pending)
}

// AlertDispatcher answers subscribe_alerts with a deferred push of the store's critical items.
type AlertDispatcher struct {
	hub     *Hub
	source  AlertSource
	trigger Trigger
	clock   clock.Clock
	log     *zap.Logger
}

func NewAlertDispatcher(hub *Hub, source AlertSource, trigger Trigger, clk clock.Clock, log *zap.Logger) *AlertDispatcher {
	if trigger == nil {
		trigger = DelayTrigger{}
	}
	if clk == nil {
		clk = clock.NewSystemClock()
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &AlertDispatcher{
		hub:     hub,
		source:  source,
		trigger: trigger,
		clock:   clk,
		log:     log.Named("realtime.alerts"),
	}
}

func (d *AlertDispatcher) Request(storeID string) {
	if d == nil || d.source == nil {
		return
	}
	d.trigger.Schedule(func() {
		d.Push(context.Background(), storeID)
	})
}

// Push broadcasts one expiry_alert per critical item and returns the number of alerts sent.
func (d *AlertDispatcher) Push(ctx context.Context, storeID string) int {
	ctx, cancel := context.WithTimeout(ctx, alertLoadTimeout)
	defer cancel()

	items, err := d.source.CriticalItems(ctx, storeID)
	if err != nil {
		d.log.Warn("load critical items failed", zap.String("store_id", storeID), zap.Error(err))
		return 0
	}
	now := d.clock.Now()
	for _, item := range items {
		d.hub.Broadcast(storeID, NewEvent(EventExpiryAlert, NewExpiryAlert(item), now))
	}
	return len(items)
}
