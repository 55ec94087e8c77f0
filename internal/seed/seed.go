package seed

import (
	"context"
	"errors"
	"time"

	"github.com/gosimple/slug"
	"github.com/shopspring/decimal"
	inventorydomain "github.com/smallbiznis/perishables/internal/inventory/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var demoStores = []inventorydomain.Store{
	{ID: "1234", Name: "Supercenter #1234", Location: "Dallas, TX", Region: "North Texas"},
	{ID: "5678", Name: "Supercenter #5678", Location: "Austin, TX", Region: "Central Texas"},
	{ID: "9012", Name: "Supercenter #9012", Location: "Houston, TX", Region: "Southeast Texas"},
	{ID: "3456", Name: "Supercenter #3456", Location: "San Antonio, TX", Region: "South Texas"},
	{ID: "7890", Name: "Supercenter #7890", Location: "Fort Worth, TX", Region: "North Texas"},
}

type demoItem struct {
	storeID     string
	sku         string
	name        string
	origin      string
	bottledDays int
	bestByDays  int
	price       string
	quantity    int
}

// Offsets are relative to the seeding day so the demo always has items near expiry.
var demoItems = []demoItem{
	{storeID: "1234", sku: "MLK-001", name: "Whole Milk 1 Gallon", origin: "Green Valley Farm", bottledDays: -2, bestByDays: 1, price: "4.99", quantity: 24},
	{storeID: "1234", sku: "MLK-002", name: "2% Milk 1 Gallon", origin: "Sunset Dairy Co.", bottledDays: -3, bestByDays: 2, price: "4.79", quantity: 18},
}

// ItemID derives the stable identifier used for a seeded SKU.
func ItemID(sku string) string {
	return slug.Make(sku)
}

// EnsureDemoData inserts the demo stores and items. Existing rows are left untouched.
func EnsureDemoData(db *gorm.DB, now time.Time) error {
	if db == nil {
		return errors.New("seed database handle is required")
	}

	now = now.UTC()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	ctx := context.Background()
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		stores := make([]inventorydomain.Store, 0, len(demoStores))
		for _, s := range demoStores {
			s.CreatedAt = now
			stores = append(stores, s)
		}
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&stores).Error; err != nil {
			return err
		}

		items := make([]inventorydomain.InventoryItem, 0, len(demoItems))
		for _, d := range demoItems {
			items = append(items, inventorydomain.InventoryItem{
				ID:             ItemID(d.sku),
				StoreID:        d.storeID,
				SKU:            d.sku,
				Name:           d.name,
				Category:       "Dairy",
				Origin:         d.origin,
				BottledDate:    today.AddDate(0, 0, d.bottledDays),
				BestByDate:     today.AddDate(0, 0, d.bestByDays),
				CurrentPrice:   decimal.RequireFromString(d.price),
				QuantityOnHand: d.quantity,
				CreatedAt:      now,
				UpdatedAt:      now,
			})
		}
		return tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&items).Error
	})
}
