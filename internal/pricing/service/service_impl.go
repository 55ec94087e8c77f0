package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/perishables/internal/clock"
	inventorydomain "github.com/smallbiznis/perishables/internal/inventory/domain"
	"github.com/smallbiznis/perishables/internal/locks"
	markdowndomain "github.com/smallbiznis/perishables/internal/markdown/domain"
	"github.com/smallbiznis/perishables/internal/markdown/engine"
	"github.com/smallbiznis/perishables/internal/observability/metrics"
	pricingdomain "github.com/smallbiznis/perishables/internal/pricing/domain"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	Clock     clock.Clock
	GenID     *snowflake.Node
	Repo      pricingdomain.Repository
	ItemRepo  inventorydomain.Repository
	Mutex     *locks.KeyedMutex
	Locker    *locks.Locker                `optional:"true"`
	Cache     inventorydomain.Cache        `optional:"true"`
	Publisher pricingdomain.EventPublisher `optional:"true"`
	Metrics   *metrics.Metrics             `optional:"true"`
}

type Service struct {
	db        *gorm.DB
	log       *zap.Logger
	clock     clock.Clock
	genID     *snowflake.Node
	repo      pricingdomain.Repository
	itemRepo  inventorydomain.Repository
	mutex     *locks.KeyedMutex
	locker    *locks.Locker
	cache     inventorydomain.Cache
	publisher pricingdomain.EventPublisher
	metrics   *metrics.Metrics
	tracer    trace.Tracer
}

func New(p Params) pricingdomain.Service {
	mutex := p.Mutex
	if mutex == nil {
		mutex = locks.NewKeyedMutex()
	}
	return &Service{
		db:        p.DB,
		log:       p.Log.Named("pricing.service"),
		clock:     p.Clock,
		genID:     p.GenID,
		repo:      p.Repo,
		itemRepo:  p.ItemRepo,
		mutex:     mutex,
		locker:    p.Locker,
		cache:     p.Cache,
		publisher: p.Publisher,
		metrics:   p.Metrics,
		tracer:    otel.Tracer("perishables/pricing"),
	}
}

// ApplyDiscount reduces the item's current stored price by the given percent.
// Calls for the same item are serialized; each one compounds on the price the previous one wrote.
func (s *Service) ApplyDiscount(ctx context.Context, req pricingdomain.ApplyRequest) (*pricingdomain.PriceChange, error) {
	itemID := strings.TrimSpace(req.ItemID)
	ctx, span := s.tracer.Start(ctx, "pricing.ApplyDiscount", trace.WithAttributes(
		attribute.String("item_id", itemID),
		attribute.Float64("discount_percent", req.DiscountPercent),
	))
	defer span.End()

	change, err := s.apply(ctx, itemID, "", req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return change, nil
}

// ApplySelection applies one uniform percent to every item of a selection.
// Items are validated up front; each price update is its own transaction.
func (s *Service) ApplySelection(ctx context.Context, req pricingdomain.SelectionApplyRequest) ([]pricingdomain.PriceChange, error) {
	storeID := strings.TrimSpace(req.StoreID)
	if storeID == "" {
		return nil, pricingdomain.ErrInvalidStore
	}
	if err := validateDiscount(req.DiscountPercent); err != nil {
		s.metrics.RecordMarkdown(metrics.ResultRejected, req.DiscountPercent)
		return nil, err
	}
	ids := dedupe(req.ItemIDs)
	if len(ids) == 0 {
		return nil, markdowndomain.ErrEmptySelection
	}

	store, err := s.itemRepo.FindStore(ctx, s.db, storeID)
	if err != nil {
		return nil, err
	}
	if store == nil {
		return nil, inventorydomain.ErrStoreNotFound
	}
	items, err := s.itemRepo.ListByIDs(ctx, s.db, storeID, ids)
	if err != nil {
		return nil, err
	}
	if len(items) != len(ids) {
		return nil, pricingdomain.ErrItemNotInStore
	}

	ctx, span := s.tracer.Start(ctx, "pricing.ApplySelection", trace.WithAttributes(
		attribute.String("store_id", storeID),
		attribute.Int("item_count", len(ids)),
	))
	defer span.End()

	changes := make([]pricingdomain.PriceChange, 0, len(ids))
	for _, id := range ids {
		change, err := s.apply(ctx, id, storeID, pricingdomain.ApplyRequest{
			ItemID:          id,
			DiscountPercent: req.DiscountPercent,
			AppliedBy:       req.AppliedBy,
			Reason:          req.Reason,
		})
		if err != nil {
			span.RecordError(err)
			return changes, err
		}
		changes = append(changes, *change)
	}
	return changes, nil
}

func (s *Service) History(ctx context.Context, storeID string, limit int) ([]pricingdomain.MarkdownRecord, error) {
	storeID = strings.TrimSpace(storeID)
	if storeID == "" {
		return nil, pricingdomain.ErrInvalidStore
	}
	if limit <= 0 {
		limit = pricingdomain.DefaultHistoryLimit
	}
	if limit > pricingdomain.MaxHistoryLimit {
		limit = pricingdomain.MaxHistoryLimit
	}
	return s.repo.ListByStore(ctx, s.db, storeID, limit)
}

func (s *Service) apply(ctx context.Context, itemID, storeID string, req pricingdomain.ApplyRequest) (*pricingdomain.PriceChange, error) {
	if itemID == "" {
		return nil, pricingdomain.ErrInvalidItem
	}
	if err := validateDiscount(req.DiscountPercent); err != nil {
		s.metrics.RecordMarkdown(metrics.ResultRejected, req.DiscountPercent)
		return nil, err
	}

	unlock, err := locks.LockItem(ctx, s.mutex, s.locker, s.log, itemID)
	if err != nil {
		s.metrics.RecordMarkdown(metrics.ResultFailed, req.DiscountPercent)
		if errors.Is(err, locks.ErrLockTimeout) {
			return nil, pricingdomain.ErrLockTimeout
		}
		return nil, fmt.Errorf("%w: %v", pricingdomain.ErrPersistence, err)
	}
	defer unlock()

	appliedBy := strings.TrimSpace(req.AppliedBy)
	if appliedBy == "" {
		appliedBy = "system"
	}

	now := s.clock.Now()
	var change pricingdomain.PriceChange
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		item, err := s.itemRepo.FindByID(ctx, tx, itemID)
		if err != nil {
			return persistenceErr(err)
		}
		if item == nil {
			return inventorydomain.ErrNotFound
		}
		if storeID != "" && item.StoreID != storeID {
			return pricingdomain.ErrItemNotInStore
		}
		if !item.CurrentPrice.IsPositive() {
			return pricingdomain.ErrInvalidPrice
		}

		newPrice := engine.DiscountedPrice(item.CurrentPrice, req.DiscountPercent)
		if !newPrice.IsPositive() {
			return pricingdomain.ErrInvalidPrice
		}

		rows, err := s.itemRepo.UpdatePrice(ctx, tx, itemID, newPrice, now)
		if err != nil {
			return persistenceErr(err)
		}
		if rows == 0 {
			return inventorydomain.ErrNotFound
		}

		record := &pricingdomain.MarkdownRecord{
			ID:              s.genID.Generate(),
			StoreID:         item.StoreID,
			ItemID:          item.ID,
			SKU:             item.SKU,
			ItemName:        item.Name,
			OldPrice:        item.CurrentPrice,
			NewPrice:        newPrice,
			DiscountPercent: req.DiscountPercent,
			AppliedBy:       appliedBy,
			Reason:          strings.TrimSpace(req.Reason),
			Metadata: datatypes.JSONMap{
				"days_to_expiry":   inventorydomain.DaysBetween(now, item.BestByDate),
				"quantity_on_hand": item.QuantityOnHand,
			},
			CreatedAt: now,
		}
		if err := s.repo.Insert(ctx, tx, record); err != nil {
			return persistenceErr(err)
		}

		change = pricingdomain.PriceChange{
			RecordID:        record.ID,
			ItemID:          item.ID,
			StoreID:         item.StoreID,
			SKU:             item.SKU,
			Name:            item.Name,
			OldPrice:        item.CurrentPrice,
			NewPrice:        newPrice,
			DiscountPercent: req.DiscountPercent,
			AppliedBy:       appliedBy,
			Timestamp:       now,
		}
		return nil
	})
	if err != nil {
		if isDomainErr(err) {
			s.metrics.RecordMarkdown(metrics.ResultRejected, req.DiscountPercent)
			return nil, err
		}
		s.metrics.RecordMarkdown(metrics.ResultFailed, req.DiscountPercent)
		s.log.Error("apply discount failed", zap.String("item_id", itemID), zap.Error(err))
		return nil, persistenceErr(err)
	}

	s.metrics.RecordMarkdown(metrics.ResultApplied, req.DiscountPercent)
	s.log.Info("markdown applied",
		zap.String("store_id", change.StoreID),
		zap.String("item_id", change.ItemID),
		zap.String("old_price", change.OldPrice.StringFixed(2)),
		zap.String("new_price", change.NewPrice.StringFixed(2)),
		zap.Float64("discount_percent", change.DiscountPercent),
	)

	if s.cache != nil {
		s.cache.Invalidate(ctx, change.StoreID)
	}
	if s.publisher != nil {
		if err := s.publisher.PublishPriceChanged(ctx, change); err != nil {
			s.log.Warn("publish price change failed",
				zap.String("store_id", change.StoreID),
				zap.String("item_id", change.ItemID),
				zap.Error(err),
			)
		}
	}
	return &change, nil
}

func validateDiscount(percent float64) error {
	if math.IsNaN(percent) || percent < 0 || percent > markdowndomain.MaxDiscountPercent {
		return pricingdomain.ErrInvalidDiscount
	}
	return nil
}

func persistenceErr(err error) error {
	if errors.Is(err, pricingdomain.ErrPersistence) {
		return err
	}
	return fmt.Errorf("%w: %v", pricingdomain.ErrPersistence, err)
}

func isDomainErr(err error) bool {
	switch {
	case errors.Is(err, inventorydomain.ErrNotFound),
		errors.Is(err, pricingdomain.ErrItemNotInStore),
		errors.Is(err, pricingdomain.ErrInvalidPrice):
		return true
	}
	return false
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
