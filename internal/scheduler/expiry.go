package scheduler

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
	inventorydomain "github.com/smallbiznis/perishables/internal/inventory/domain"
	"github.com/smallbiznis/perishables/internal/realtime"
	"go.uber.org/zap"
)

const sweepLockKey = "perishables:lock:expiry-sweep"

// CriticalItems returns the store's items within the alert window, expired ones included.
func (s *Scheduler) CriticalItems(ctx context.Context, storeID string) ([]inventorydomain.ItemView, error) {
	return s.inventory.GetExpiringItems(ctx, storeID, s.cfg.AlertDays)
}

// ExpirySweepJob publishes expiry alerts and a KPI snapshot for every store.
// With a shared lock configured only one node sweeps per tick.
func (s *Scheduler) ExpirySweepJob(ctx context.Context) error {
	run := jobRunFromContext(ctx)
	if s.locker != nil {
		token, ok, err := s.locker.TryLock(ctx, sweepLockKey, s.cfg.JobTimeout)
		if err != nil {
			return err
		}
		if !ok {
			s.logger(ctx).Debug("sweep held by another node")
			return nil
		}
		defer func() {
			_ = s.locker.Release(context.WithoutCancel(ctx), sweepLockKey, token)
		}()
	}

	stores, err := s.inventory.ListStores(ctx)
	if err != nil {
		return err
	}

	var errs []error
	for _, store := range stores {
		alerts, err := s.sweepStore(ctx, store.ID)
		if err != nil {
			run.IncError()
			s.logger(ctx).Warn("store sweep failed", zap.String("store_id", store.ID), zap.Error(err))
			errs = append(errs, err)
			continue
		}
		run.AddProcessed(alerts)
	}
	return errors.Join(errs...)
}

func (s *Scheduler) sweepStore(ctx context.Context, storeID string) (int, error) {
	expiring, err := s.inventory.GetExpiringItems(ctx, storeID, s.cfg.KPIDays)
	if err != nil {
		return 0, err
	}

	kpis := realtime.KPIUpdate{AtRiskValue: decimal.Zero}
	alerts := 0
	for _, item := range expiring {
		kpis.ExpiringCount++
		kpis.AtRiskValue = kpis.AtRiskValue.Add(item.CurrentPrice.Mul(decimal.NewFromInt(int64(item.QuantityOnHand))))
		if item.Status == inventorydomain.StatusCritical {
			kpis.CriticalCount++
		}
		if item.DaysToExpiry > s.cfg.AlertDays {
			continue
		}
		if err := s.publisher.PublishExpiryAlert(ctx, storeID, realtime.NewExpiryAlert(item)); err != nil {
			return alerts, err
		}
		alerts++
	}
	kpis.AtRiskValue = kpis.AtRiskValue.Round(2)

	if err := s.publisher.PublishKPIUpdate(ctx, storeID, kpis); err != nil {
		return alerts, err
	}
	return alerts, nil
}
