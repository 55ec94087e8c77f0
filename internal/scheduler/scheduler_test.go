package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/perishables/internal/clock"
	"github.com/smallbiznis/perishables/internal/inventory/inventorytest"
	"github.com/smallbiznis/perishables/internal/inventory/repository"
	inventoryservice "github.com/smallbiznis/perishables/internal/inventory/service"
	"github.com/smallbiznis/perishables/internal/realtime"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var today = time.Date(2025, 1, 17, 9, 0, 0, 0, time.UTC)

type recordingPublisher struct {
	mu     sync.Mutex
	alerts map[string][]realtime.ExpiryAlert
	kpis   map[string]realtime.KPIUpdate
	err    error
}

func newRecordingPublisher() *recordingPublisher {
	return &recordingPublisher{
		alerts: map[string][]realtime.ExpiryAlert{},
		kpis:   map[string]realtime.KPIUpdate{},
	}
}

func (p *recordingPublisher) PublishExpiryAlert(ctx context.Context, storeID string, alert realtime.ExpiryAlert) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.alerts[storeID] = append(p.alerts[storeID], alert)
	return nil
}

func (p *recordingPublisher) PublishKPIUpdate(ctx context.Context, storeID string, kpis realtime.KPIUpdate) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.kpis[storeID] = kpis
	return nil
}

func setupScheduler(t *testing.T, cfg Config) (*Scheduler, *recordingPublisher) {
	t.Helper()
	db := inventorytest.OpenDB(t)
	inventorytest.InsertStore(t, db, "1234")
	inventorytest.InsertStore(t, db, "5678")
	inventorytest.InsertItem(t, db, inventorytest.Item("mlk-001", "1234", "4.00", 10, today.AddDate(0, 0, 1)))
	inventorytest.InsertItem(t, db, inventorytest.Item("mlk-002", "1234", "2.50", 5, today.AddDate(0, 0, 2)))
	inventorytest.InsertItem(t, db, inventorytest.Item("mlk-003", "1234", "3.00", 2, today.AddDate(0, 0, 4)))
	inventorytest.InsertItem(t, db, inventorytest.Item("mlk-004", "1234", "3.00", 8, today.AddDate(0, 0, 10)))
	inventorytest.InsertItem(t, db, inventorytest.Item("mlk-900", "5678", "3.99", 4, today.AddDate(0, 0, 12)))

	fc := clock.NewFakeClock(today)
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	inv := inventoryservice.New(inventoryservice.Params{
		DB:    db,
		Log:   zap.NewNop(),
		Clock: fc,
		Repo:  repository.Provide(),
	})
	pub := newRecordingPublisher()
	sched, err := New(Params{
		Log:       zap.NewNop(),
		Clock:     fc,
		GenID:     node,
		Inventory: inv,
		Publisher: pub,
		Config:    cfg,
	})
	require.NoError(t, err)
	return sched, pub
}

func TestRunOncePublishesAlertsPerStore(t *testing.T) {
	sched, pub := setupScheduler(t, Config{})

	require.NoError(t, sched.RunOnce(context.Background()))

	alerts := pub.alerts["1234"]
	require.Len(t, alerts, 2)
	assert.Equal(t, "mlk-001", alerts[0].Item.ID)
	assert.Equal(t, realtime.PriorityCritical, alerts[0].Priority)
	assert.Equal(t, "Item mlk-001 expires in 1 day(s)", alerts[0].Message)
	assert.Equal(t, "mlk-002", alerts[1].Item.ID)
	assert.Equal(t, realtime.PriorityWarning, alerts[1].Priority)

	assert.Empty(t, pub.alerts["5678"])
}

func TestRunOncePublishesKPIs(t *testing.T) {
	sched, pub := setupScheduler(t, Config{})

	require.NoError(t, sched.RunOnce(context.Background()))

	kpis := pub.kpis["1234"]
	assert.Equal(t, 3, kpis.ExpiringCount)
	assert.Equal(t, 2, kpis.CriticalCount)
	assert.Equal(t, "58.50", kpis.AtRiskValue.StringFixed(2))

	quiet, ok := pub.kpis["5678"]
	require.True(t, ok)
	assert.Equal(t, 0, quiet.ExpiringCount)
	assert.True(t, quiet.AtRiskValue.IsZero())
}

func TestRunOnceHonorsAlertWindow(t *testing.T) {
	sched, pub := setupScheduler(t, Config{AlertDays: 1})

	require.NoError(t, sched.RunOnce(context.Background()))

	require.Len(t, pub.alerts["1234"], 1)
	assert.Equal(t, "mlk-001", pub.alerts["1234"][0].Item.ID)
}

func TestRunOnceReturnsPublishErrors(t *testing.T) {
	sched, pub := setupScheduler(t, Config{})
	pub.err = errors.New("broker down")

	err := sched.RunOnce(context.Background())
	require.Error(t, err)
	assert.ErrorContains(t, err, "expiry_sweep")
	assert.ErrorContains(t, err, "broker down")
}

func TestCriticalItemsIsStoreScoped(t *testing.T) {
	sched, _ := setupScheduler(t, Config{})

	items, err := sched.CriticalItems(context.Background(), "1234")
	require.NoError(t, err)
	require.Len(t, items, 2)
	for _, item := range items {
		assert.Equal(t, "1234", item.StoreID)
		assert.LessOrEqual(t, item.DaysToExpiry, 2)
	}

	items, err = sched.CriticalItems(context.Background(), "5678")
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestNewRejectsBadCron(t *testing.T) {
	_, err := New(Params{
		Log:       zap.NewNop(),
		Clock:     clock.NewFakeClock(today),
		GenID:     &snowflake.Node{},
		Inventory: inventoryservice.New(inventoryservice.Params{Log: zap.NewNop()}),
		Publisher: newRecordingPublisher(),
		Config:    Config{Cron: "every so often"},
	})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestNewRequiresDependencies(t *testing.T) {
	_, err := New(Params{Log: zap.NewNop()})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestConfigDefaults(t *testing.T) {
	cfg := Config{AlertDays: 4, KPIDays: 2}.withDefaults()
	assert.Equal(t, "*/15 * * * *", cfg.Cron)
	assert.Equal(t, 4, cfg.AlertDays)
	assert.Equal(t, 4, cfg.KPIDays)
	assert.Equal(t, time.Minute, cfg.JobTimeout)
}

func TestStartStop(t *testing.T) {
	sched, _ := setupScheduler(t, Config{})
	sched.Start()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	sched.Stop(ctx)
	assert.NoError(t, ctx.Err())
}
