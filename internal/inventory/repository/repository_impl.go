package repository

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	inventorydomain "github.com/smallbiznis/perishables/internal/inventory/domain"
	"gorm.io/gorm"
)

const itemColumns = `id, store_id, sku, name, category, origin, bottled_date, best_by_date,
	 current_price, quantity_on_hand, created_at, updated_at`

type repo struct{}

func Provide() inventorydomain.Repository {
	return &repo{}
}

func (r *repo) FindStore(ctx context.Context, db *gorm.DB, id string) (*inventorydomain.Store, error) {
	var s inventorydomain.Store
	err := db.WithContext(ctx).Raw(
		`SELECT id, name, location, region, created_at FROM stores WHERE id = ?`,
		id,
	).Scan(&s).Error
	if err != nil {
		return nil, err
	}
	if s.ID == "" {
		return nil, nil
	}
	return &s, nil
}

func (r *repo) ListStores(ctx context.Context, db *gorm.DB) ([]inventorydomain.Store, error) {
	var stores []inventorydomain.Store
	err := db.WithContext(ctx).Raw(
		`SELECT id, name, location, region, created_at FROM stores ORDER BY id ASC`,
	).Scan(&stores).Error
	if err != nil {
		return nil, err
	}
	return stores, nil
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, item *inventorydomain.InventoryItem) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO inventory_items (`+itemColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		item.ID,
		item.StoreID,
		item.SKU,
		item.Name,
		item.Category,
		item.Origin,
		item.BottledDate,
		item.BestByDate,
		item.CurrentPrice,
		item.QuantityOnHand,
		item.CreatedAt,
		item.UpdatedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id string) (*inventorydomain.InventoryItem, error) {
	var item inventorydomain.InventoryItem
	err := db.WithContext(ctx).Raw(
		`SELECT `+itemColumns+` FROM inventory_items WHERE id = ?`,
		id,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == "" {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) ListByStore(ctx context.Context, db *gorm.DB, storeID string) ([]inventorydomain.InventoryItem, error) {
	var items []inventorydomain.InventoryItem
	err := db.WithContext(ctx).Raw(
		`SELECT `+itemColumns+` FROM inventory_items
		 WHERE store_id = ? ORDER BY best_by_date ASC, id ASC`,
		storeID,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) ListByIDs(ctx context.Context, db *gorm.DB, storeID string, ids []string) ([]inventorydomain.InventoryItem, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var items []inventorydomain.InventoryItem
	err := db.WithContext(ctx).Raw(
		`SELECT `+itemColumns+` FROM inventory_items
		 WHERE store_id = ? AND id IN ? ORDER BY best_by_date ASC, id ASC`,
		storeID,
		ids,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) ListExpiringBefore(ctx context.Context, db *gorm.DB, storeID string, cutoff time.Time) ([]inventorydomain.InventoryItem, error) {
	var items []inventorydomain.InventoryItem
	err := db.WithContext(ctx).Raw(
		`SELECT `+itemColumns+` FROM inventory_items
		 WHERE store_id = ? AND best_by_date <= ?
		 ORDER BY best_by_date ASC, id ASC`,
		storeID,
		cutoff,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) UpdatePrice(ctx context.Context, db *gorm.DB, id string, price decimal.Decimal, updatedAt time.Time) (int64, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE inventory_items SET current_price = ?, updated_at = ? WHERE id = ?`,
		price,
		updatedAt,
		id,
	)
	return res.RowsAffected, res.Error
}

func (r *repo) UpdateQuantity(ctx context.Context, db *gorm.DB, id string, quantity int, updatedAt time.Time) (int64, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE inventory_items SET quantity_on_hand = ?, updated_at = ? WHERE id = ?`,
		quantity,
		updatedAt,
		id,
	)
	return res.RowsAffected, res.Error
}
