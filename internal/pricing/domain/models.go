package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// MarkdownRecord is the audit row written alongside every applied markdown.
type MarkdownRecord struct {
	ID              snowflake.ID      `json:"id" gorm:"primaryKey"`
	StoreID         string            `json:"store_id" gorm:"type:text;not null;index:idx_markdown_store_created,priority:1"`
	ItemID          string            `json:"item_id" gorm:"type:text;not null;index"`
	SKU             string            `json:"sku" gorm:"column:sku;type:text;not null"`
	ItemName        string            `json:"item_name" gorm:"type:text;not null"`
	OldPrice        decimal.Decimal   `json:"old_price" gorm:"type:numeric(10,2);not null"`
	NewPrice        decimal.Decimal   `json:"new_price" gorm:"type:numeric(10,2);not null"`
	DiscountPercent float64           `json:"discount_percent" gorm:"type:numeric(5,2);not null"`
	AppliedBy       string            `json:"applied_by" gorm:"type:text;not null"`
	Reason          string            `json:"reason,omitempty" gorm:"type:text"`
	Metadata        datatypes.JSONMap `json:"metadata,omitempty" gorm:"type:jsonb"`
	CreatedAt       time.Time         `json:"created_at" gorm:"not null;index:idx_markdown_store_created,priority:2"`
}

func (MarkdownRecord) TableName() string { return "markdown_records" }

// PriceChange describes a committed price update.
type PriceChange struct {
	RecordID        snowflake.ID    `json:"recordId"`
	ItemID          string          `json:"itemId"`
	StoreID         string          `json:"storeId"`
	SKU             string          `json:"sku"`
	Name            string          `json:"name"`
	OldPrice        decimal.Decimal `json:"oldPrice"`
	NewPrice        decimal.Decimal `json:"newPrice"`
	DiscountPercent float64         `json:"discountPercent"`
	AppliedBy       string          `json:"appliedBy"`
	Timestamp       time.Time       `json:"timestamp"`
}
