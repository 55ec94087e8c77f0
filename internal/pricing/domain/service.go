package domain

import (
	"context"
	"errors"
)

type Service interface {
	ApplyDiscount(ctx context.Context, req ApplyRequest) (*PriceChange, error)
	ApplySelection(ctx context.Context, req SelectionApplyRequest) ([]PriceChange, error)
	History(ctx context.Context, storeID string, limit int) ([]MarkdownRecord, error)
}

type ApplyRequest struct {
	ItemID          string  `json:"itemId"`
	DiscountPercent float64 `json:"discountPercent"`
	AppliedBy       string  `json:"appliedBy"`
	Reason          string  `json:"reason"`
}

type SelectionApplyRequest struct {
	StoreID         string   `json:"storeId"`
	ItemIDs         []string `json:"itemIds"`
	DiscountPercent float64  `json:"discountPercent"`
	AppliedBy       string   `json:"appliedBy"`
	Reason          string   `json:"reason"`
}

const (
	DefaultHistoryLimit = 50
	MaxHistoryLimit     = 200
)

var (
	ErrInvalidItem     = errors.New("invalid_item")
	ErrInvalidStore    = errors.New("invalid_store")
	ErrInvalidDiscount = errors.New("invalid_discount")
	ErrInvalidPrice    = errors.New("invalid_price")
	ErrItemNotInStore  = errors.New("item_not_in_store")
	ErrLockTimeout     = errors.New("lock_timeout")
	ErrPersistence     = errors.New("persistence_error")
)
