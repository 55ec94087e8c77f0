// Package inventorytest provides sqlite-backed fixtures shared by package tests.
package inventorytest

import (
	"fmt"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	inventorydomain "github.com/smallbiznis/perishables/internal/inventory/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// OpenDB returns an isolated in-memory database with the inventory tables plus any extra models.
func OpenDB(t testing.TB, models ...any) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	all := append([]any{&inventorydomain.Store{}, &inventorydomain.InventoryItem{}}, models...)
	if err := db.AutoMigrate(all...); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func InsertStore(t testing.TB, db *gorm.DB, id string) inventorydomain.Store {
	t.Helper()
	store := inventorydomain.Store{
		ID:        id,
		Name:      "Supercenter #" + id,
		Location:  "Dallas, TX",
		Region:    "North Texas",
		CreatedAt: time.Now().UTC(),
	}
	if err := db.Create(&store).Error; err != nil {
		t.Fatalf("insert store: %v", err)
	}
	return store
}

// Item builds a dairy item bottled five days before its best-by date.
func Item(id, storeID, price string, quantity int, bestBy time.Time) inventorydomain.InventoryItem {
	bestBy = bestBy.UTC()
	day := time.Date(bestBy.Year(), bestBy.Month(), bestBy.Day(), 0, 0, 0, 0, time.UTC)
	now := time.Now().UTC()
	return inventorydomain.InventoryItem{
		ID:             id,
		StoreID:        storeID,
		SKU:            "SKU-" + id,
		Name:           "Item " + id,
		Category:       "Dairy",
		Origin:         "Green Valley Farm",
		BottledDate:    day.AddDate(0, 0, -5),
		BestByDate:     day,
		CurrentPrice:   decimal.RequireFromString(price),
		QuantityOnHand: quantity,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

func InsertItem(t testing.TB, db *gorm.DB, item inventorydomain.InventoryItem) inventorydomain.InventoryItem {
	t.Helper()
	if err := db.Create(&item).Error; err != nil {
		t.Fatalf("insert item: %v", err)
	}
	return item
}
