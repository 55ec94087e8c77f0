package domain

import (
	"context"
	"errors"
)

type Service interface {
	Recommend(ctx context.Context, storeID string, daysThreshold int) (*BulkResponse, error)
	RecommendSelection(ctx context.Context, storeID string, req SelectionRequest) (*SelectionRecommendation, error)
}

// SelectionRequest overrides the configured selection knobs; nil fields keep the defaults.
type SelectionRequest struct {
	ItemIDs             []string  `json:"itemIds"`
	BaseDiscountPercent *float64  `json:"baseDiscount"`
	Multiplier          *float64  `json:"multiplier"`
	Formula             *Formula  `json:"formula"`
	Strategy            *Strategy `json:"strategy"`
	BundleBonuses       *bool     `json:"bundleBonuses"`
	DemandScore         *float64  `json:"demandScore"`
	SellThroughRate     *float64  `json:"sellThroughRate"`
}

var (
	ErrEmptySelection  = errors.New("empty_selection")
	ErrInvalidFormula  = errors.New("invalid_formula")
	ErrInvalidStrategy = errors.New("invalid_strategy")
	ErrInvalidConfig   = errors.New("invalid_selection_config")
	ErrItemNotInStore  = errors.New("item_not_in_store")
)

func (f Formula) Valid() bool {
	switch f {
	case FormulaAdditiveGrowth, FormulaLinearScale:
		return true
	default:
		return false
	}
}

func (s Strategy) Valid() bool {
	switch s {
	case StrategyNone, StrategyOptimal, StrategyAggressive, StrategyConservative:
		return true
	default:
		return false
	}
}
