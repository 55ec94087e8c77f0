package repository

import (
	"context"

	pricingdomain "github.com/smallbiznis/perishables/internal/pricing/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() pricingdomain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, rec *pricingdomain.MarkdownRecord) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO markdown_records (
			id, store_id, item_id, sku, item_name, old_price, new_price,
			discount_percent, applied_by, reason, metadata, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID,
		rec.StoreID,
		rec.ItemID,
		rec.SKU,
		rec.ItemName,
		rec.OldPrice,
		rec.NewPrice,
		rec.DiscountPercent,
		rec.AppliedBy,
		rec.Reason,
		rec.Metadata,
		rec.CreatedAt,
	).Error
}

func (r *repo) ListByStore(ctx context.Context, db *gorm.DB, storeID string, limit int) ([]pricingdomain.MarkdownRecord, error) {
	var items []pricingdomain.MarkdownRecord
	err := db.WithContext(ctx).Raw(
		`SELECT id, store_id, item_id, sku, item_name, old_price, new_price,
		 discount_percent, applied_by, reason, metadata, created_at
		 FROM markdown_records WHERE store_id = ?
		 ORDER BY created_at DESC, id DESC LIMIT ?`,
		storeID,
		limit,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}
