package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type Store struct {
	ID        string    `json:"id" gorm:"primaryKey;type:text"`
	Name      string    `json:"name" gorm:"type:text;not null"`
	Location  string    `json:"location" gorm:"type:text;not null"`
	Region    string    `json:"region" gorm:"type:text;not null"`
	CreatedAt time.Time `json:"created_at" gorm:"not null"`
}

func (Store) TableName() string { return "stores" }

type InventoryItem struct {
	ID             string          `json:"id" gorm:"primaryKey;type:text"`
	StoreID        string          `json:"store_id" gorm:"type:text;not null;index;uniqueIndex:ux_inventory_store_sku"`
	SKU            string          `json:"sku" gorm:"column:sku;type:text;not null;uniqueIndex:ux_inventory_store_sku"`
	Name           string          `json:"name" gorm:"type:text;not null"`
	Category       string          `json:"category" gorm:"type:text;not null"`
	Origin         string          `json:"origin" gorm:"type:text;not null"`
	BottledDate    time.Time       `json:"bottled_date" gorm:"not null"`
	BestByDate     time.Time       `json:"best_by_date" gorm:"not null;index"`
	CurrentPrice   decimal.Decimal `json:"current_price" gorm:"type:numeric(10,2);not null"`
	QuantityOnHand int             `json:"quantity_on_hand" gorm:"not null;default:0"`
	CreatedAt      time.Time       `json:"created_at" gorm:"not null"`
	UpdatedAt      time.Time       `json:"updated_at" gorm:"not null"`
}

func (InventoryItem) TableName() string { return "inventory_items" }

type Status string

const (
	StatusCritical Status = "critical"
	StatusWarning  Status = "warning"
	StatusGood     Status = "good"
)

// ItemView is the canonical shape handed to the markdown engine, the HTTP layer
// and realtime payloads. Day counts are whole calendar days relative to now.
type ItemView struct {
	ID             string          `json:"id"`
	StoreID        string          `json:"storeId"`
	SKU            string          `json:"sku"`
	Name           string          `json:"name"`
	Category       string          `json:"category"`
	Origin         string          `json:"origin"`
	BottledDate    string          `json:"bottledDate"`
	BestByDate     string          `json:"bestByDate"`
	CurrentPrice   decimal.Decimal `json:"currentPrice"`
	QuantityOnHand int             `json:"quantityOnHand"`
	DaysToExpiry   int             `json:"daysToExpiry"`
	DaysOnShelf    int             `json:"daysOnShelf"`
	Status         Status          `json:"status"`
	UpdatedAt      time.Time       `json:"updatedAt"`
}

const DateLayout = "2006-01-02"

// NewItemView derives the expiry fields of item as seen at now.
func NewItemView(item InventoryItem, now time.Time) ItemView {
	daysToExpiry := DaysBetween(now, item.BestByDate)
	return ItemView{
		ID:             item.ID,
		StoreID:        item.StoreID,
		SKU:            item.SKU,
		Name:           item.Name,
		Category:       item.Category,
		Origin:         item.Origin,
		BottledDate:    item.BottledDate.UTC().Format(DateLayout),
		BestByDate:     item.BestByDate.UTC().Format(DateLayout),
		CurrentPrice:   item.CurrentPrice,
		QuantityOnHand: item.QuantityOnHand,
		DaysToExpiry:   daysToExpiry,
		DaysOnShelf:    DaysBetween(item.BottledDate, now),
		Status:         StatusFor(daysToExpiry),
		UpdatedAt:      item.UpdatedAt,
	}
}

// DaysBetween counts calendar days from a to b in UTC; negative when b is before a.
func DaysBetween(a, b time.Time) int {
	from := truncateDay(a)
	to := truncateDay(b)
	return int(to.Sub(from).Hours() / 24)
}

func StatusFor(daysToExpiry int) Status {
	switch {
	case daysToExpiry <= 2:
		return StatusCritical
	case daysToExpiry <= 4:
		return StatusWarning
	default:
		return StatusGood
	}
}

func truncateDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
