package service

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/perishables/internal/clock"
	inventorydomain "github.com/smallbiznis/perishables/internal/inventory/domain"
	"github.com/smallbiznis/perishables/internal/locks"
	"github.com/smallbiznis/perishables/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	Clock     clock.Clock
	Repo      inventorydomain.Repository
	Cache     inventorydomain.Cache          `optional:"true"`
	Publisher inventorydomain.EventPublisher `optional:"true"`
	Mutex     *locks.KeyedMutex              `optional:"true"`
	Locker    *locks.Locker                  `optional:"true"`
}

type Service struct {
	db        *gorm.DB
	log       *zap.Logger
	clock     clock.Clock
	repo      inventorydomain.Repository
	cache     inventorydomain.Cache
	publisher inventorydomain.EventPublisher
	mutex     *locks.KeyedMutex
	locker    *locks.Locker
}

func New(p Params) inventorydomain.Service {
	mutex := p.Mutex
	if mutex == nil {
		mutex = locks.NewKeyedMutex()
	}
	return &Service{
		db:        p.DB,
		log:       p.Log.Named("inventory.service"),
		clock:     p.Clock,
		repo:      p.Repo,
		cache:     p.Cache,
		publisher: p.Publisher,
		mutex:     mutex,
		locker:    p.Locker,
	}
}

func (s *Service) ListStores(ctx context.Context) ([]inventorydomain.Store, error) {
	return s.repo.ListStores(ctx, s.db)
}

func (s *Service) GetStore(ctx context.Context, storeID string) (*inventorydomain.Store, error) {
	storeID = strings.TrimSpace(storeID)
	if storeID == "" {
		return nil, inventorydomain.ErrInvalidStore
	}
	store, err := s.repo.FindStore(ctx, s.db, storeID)
	if err != nil {
		return nil, err
	}
	if store == nil {
		return nil, inventorydomain.ErrStoreNotFound
	}
	return store, nil
}

func (s *Service) GetItem(ctx context.Context, itemID string) (*inventorydomain.ItemView, error) {
	itemID = strings.TrimSpace(itemID)
	if itemID == "" {
		return nil, inventorydomain.ErrInvalidItem
	}
	item, err := s.repo.FindByID(ctx, s.db, itemID)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, inventorydomain.ErrNotFound
	}
	view := inventorydomain.NewItemView(*item, s.clock.Now())
	return &view, nil
}

func (s *Service) ListByStore(ctx context.Context, storeID string) ([]inventorydomain.ItemView, error) {
	if _, err := s.GetStore(ctx, storeID); err != nil {
		return nil, err
	}
	items, err := s.repo.ListByStore(ctx, s.db, storeID)
	if err != nil {
		return nil, err
	}
	return s.toViews(items), nil
}

// GetExpiringItems returns items whose best-by date is at most daysThreshold days away,
// expired items included, soonest first.
func (s *Service) GetExpiringItems(ctx context.Context, storeID string, daysThreshold int) ([]inventorydomain.ItemView, error) {
	if daysThreshold <= 0 {
		daysThreshold = inventorydomain.DefaultExpiringThreshold
	}
	if _, err := s.GetStore(ctx, storeID); err != nil {
		return nil, err
	}

	if s.cache != nil {
		if cached, ok := s.cache.GetExpiring(ctx, storeID, daysThreshold); ok {
			return cached, nil
		}
	}

	now := s.clock.Now()
	cutoff := endOfDay(now.AddDate(0, 0, daysThreshold))
	items, err := s.repo.ListExpiringBefore(ctx, s.db, storeID, cutoff)
	if err != nil {
		return nil, err
	}

	views := make([]inventorydomain.ItemView, 0, len(items))
	for _, item := range items {
		view := inventorydomain.NewItemView(item, now)
		if view.DaysToExpiry > daysThreshold {
			continue
		}
		views = append(views, view)
	}
	sortByExpiry(views)

	if s.cache != nil {
		s.cache.SetExpiring(ctx, storeID, daysThreshold, views)
	}
	return views, nil
}

func (s *Service) AddItem(ctx context.Context, storeID string, req inventorydomain.CreateItemRequest) (*inventorydomain.ItemView, error) {
	if _, err := s.GetStore(ctx, storeID); err != nil {
		return nil, err
	}

	sku := strings.TrimSpace(req.SKU)
	name := strings.TrimSpace(req.Name)
	category := strings.TrimSpace(req.Category)
	if sku == "" || name == "" || category == "" {
		return nil, inventorydomain.ErrInvalidItem
	}
	if !req.CurrentPrice.IsPositive() {
		return nil, inventorydomain.ErrInvalidPrice
	}
	if req.QuantityOnHand < 0 {
		return nil, inventorydomain.ErrInvalidQuantity
	}
	bottled, err := parseDate(req.BottledDate)
	if err != nil {
		return nil, inventorydomain.ErrInvalidDates
	}
	bestBy, err := parseDate(req.BestByDate)
	if err != nil {
		return nil, inventorydomain.ErrInvalidDates
	}
	if !bestBy.After(bottled) {
		return nil, inventorydomain.ErrInvalidDates
	}

	id := strings.TrimSpace(req.ID)
	if id == "" {
		id = uuid.NewString()
	}

	now := s.clock.Now()
	item := &inventorydomain.InventoryItem{
		ID:             id,
		StoreID:        storeID,
		SKU:            sku,
		Name:           name,
		Category:       category,
		Origin:         strings.TrimSpace(req.Origin),
		BottledDate:    bottled,
		BestByDate:     bestBy,
		CurrentPrice:   req.CurrentPrice.Round(2),
		QuantityOnHand: req.QuantityOnHand,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.repo.Insert(ctx, s.db, item); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return nil, inventorydomain.ErrDuplicateItem
		}
		return nil, err
	}

	view := inventorydomain.NewItemView(*item, now)
	s.afterMutation(ctx, view)
	return &view, nil
}

// UpdateItemPrice sets a price outright. It takes the same per-item lock as
// markdown application so the two never interleave.
func (s *Service) UpdateItemPrice(ctx context.Context, itemID string, price decimal.Decimal) (*inventorydomain.ItemView, error) {
	if !price.IsPositive() {
		return nil, inventorydomain.ErrInvalidPrice
	}
	itemID = strings.TrimSpace(itemID)
	if itemID == "" {
		return nil, inventorydomain.ErrInvalidItem
	}
	unlock, err := locks.LockItem(ctx, s.mutex, s.locker, s.log, itemID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	return s.mutate(ctx, itemID, func(tx *gorm.DB, now time.Time) (int64, error) {
		return s.repo.UpdatePrice(ctx, tx, itemID, price.Round(2), now)
	})
}

func (s *Service) UpdateQuantity(ctx context.Context, itemID string, quantity int) (*inventorydomain.ItemView, error) {
	if quantity < 0 {
		return nil, inventorydomain.ErrInvalidQuantity
	}
	return s.mutate(ctx, itemID, func(tx *gorm.DB, now time.Time) (int64, error) {
		return s.repo.UpdateQuantity(ctx, tx, itemID, quantity, now)
	})
}

func (s *Service) mutate(ctx context.Context, itemID string, apply func(tx *gorm.DB, now time.Time) (int64, error)) (*inventorydomain.ItemView, error) {
	itemID = strings.TrimSpace(itemID)
	if itemID == "" {
		return nil, inventorydomain.ErrInvalidItem
	}

	now := s.clock.Now()
	var updated *inventorydomain.InventoryItem
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		rows, err := apply(tx, now)
		if err != nil {
			return err
		}
		if rows == 0 {
			return inventorydomain.ErrNotFound
		}
		updated, err = s.repo.FindByID(ctx, tx, itemID)
		if err != nil {
			return err
		}
		if updated == nil {
			return inventorydomain.ErrNotFound
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	view := inventorydomain.NewItemView(*updated, now)
	s.afterMutation(ctx, view)
	return &view, nil
}

func (s *Service) afterMutation(ctx context.Context, view inventorydomain.ItemView) {
	if s.cache != nil {
		s.cache.Invalidate(ctx, view.StoreID)
	}
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishInventoryChanged(ctx, view); err != nil {
		s.log.Warn("publish inventory change failed",
			zap.String("store_id", view.StoreID),
			zap.String("item_id", view.ID),
			zap.Error(err),
		)
	}
}

func (s *Service) toViews(items []inventorydomain.InventoryItem) []inventorydomain.ItemView {
	now := s.clock.Now()
	views := make([]inventorydomain.ItemView, 0, len(items))
	for _, item := range items {
		views = append(views, inventorydomain.NewItemView(item, now))
	}
	sortByExpiry(views)
	return views
}

func sortByExpiry(views []inventorydomain.ItemView) {
	sort.SliceStable(views, func(i, j int) bool {
		return views[i].DaysToExpiry < views[j].DaysToExpiry
	})
}

func parseDate(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if t, err := time.Parse(inventorydomain.DateLayout, raw); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, err
	}
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), nil
}

func endOfDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 23, 59, 59, 0, time.UTC)
}
