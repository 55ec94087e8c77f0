package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type Repository interface {
	FindStore(ctx context.Context, db *gorm.DB, id string) (*Store, error)
	ListStores(ctx context.Context, db *gorm.DB) ([]Store, error)

	Insert(ctx context.Context, db *gorm.DB, item *InventoryItem) error
	FindByID(ctx context.Context, db *gorm.DB, id string) (*InventoryItem, error)
	ListByStore(ctx context.Context, db *gorm.DB, storeID string) ([]InventoryItem, error)
	ListByIDs(ctx context.Context, db *gorm.DB, storeID string, ids []string) ([]InventoryItem, error)
	ListExpiringBefore(ctx context.Context, db *gorm.DB, storeID string, cutoff time.Time) ([]InventoryItem, error)
	UpdatePrice(ctx context.Context, db *gorm.DB, id string, price decimal.Decimal, updatedAt time.Time) (int64, error)
	UpdateQuantity(ctx context.Context, db *gorm.DB, id string, quantity int, updatedAt time.Time) (int64, error)
}

// Cache holds short-lived expiring-item snapshots per store.
type Cache interface {
	GetExpiring(ctx context.Context, storeID string, daysThreshold int) ([]ItemView, bool)
	SetExpiring(ctx context.Context, storeID string, daysThreshold int, items []ItemView)
	Invalidate(ctx context.Context, storeID string)
}

// EventPublisher receives inventory changes once they are committed.
type EventPublisher interface {
	PublishInventoryChanged(ctx context.Context, item ItemView) error
}
