package domain

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
)

type Service interface {
	ListStores(ctx context.Context) ([]Store, error)
	GetStore(ctx context.Context, storeID string) (*Store, error)

	GetItem(ctx context.Context, itemID string) (*ItemView, error)
	ListByStore(ctx context.Context, storeID string) ([]ItemView, error)
	GetExpiringItems(ctx context.Context, storeID string, daysThreshold int) ([]ItemView, error)
	AddItem(ctx context.Context, storeID string, req CreateItemRequest) (*ItemView, error)
	UpdateItemPrice(ctx context.Context, itemID string, price decimal.Decimal) (*ItemView, error)
	UpdateQuantity(ctx context.Context, itemID string, quantity int) (*ItemView, error)
}

type CreateItemRequest struct {
	ID             string          `json:"id"`
	SKU            string          `json:"sku"`
	Name           string          `json:"name"`
	Category       string          `json:"category"`
	Origin         string          `json:"origin"`
	BottledDate    string          `json:"bottledDate"`
	BestByDate     string          `json:"bestByDate"`
	CurrentPrice   decimal.Decimal `json:"currentPrice"`
	QuantityOnHand int             `json:"quantityOnHand"`
}

type UpdateQuantityRequest struct {
	QuantityOnHand *int `json:"quantityOnHand"`
}

const DefaultExpiringThreshold = 5

var (
	ErrInvalidStore    = errors.New("invalid_store")
	ErrInvalidItem     = errors.New("invalid_item")
	ErrInvalidQuantity = errors.New("invalid_quantity")
	ErrInvalidPrice    = errors.New("invalid_price")
	ErrInvalidDates    = errors.New("invalid_dates")
	ErrDuplicateItem   = errors.New("duplicate_item")
	ErrStoreNotFound   = errors.New("store_not_found")
	ErrNotFound        = errors.New("not_found")
)
