package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// MaxDiscountPercent is the hard ceiling for every recommendation.
const MaxDiscountPercent = 50

type Formula string

const (
	FormulaAdditiveGrowth Formula = "additive_growth"
	FormulaLinearScale    Formula = "linear_scale"
)

type Strategy string

const (
	StrategyNone         Strategy = ""
	StrategyOptimal      Strategy = "optimal"
	StrategyAggressive   Strategy = "aggressive"
	StrategyConservative Strategy = "conservative"
)

// ItemInput is the engine's view of an item. DaysToExpiry may be fractional.
type ItemInput struct {
	ItemID         string
	Name           string
	DaysToExpiry   float64
	QuantityOnHand int
	CurrentPrice   decimal.Decimal
}

type Recommendation struct {
	ItemID                     string          `json:"itemId"`
	Name                       string          `json:"name"`
	DaysToExpiry               float64         `json:"daysToExpiry"`
	QuantityOnHand             int             `json:"quantityOnHand"`
	CurrentPrice               decimal.Decimal `json:"currentPrice"`
	RecommendedDiscountPercent int             `json:"recommendedDiscount"`
	NewPrice                   decimal.Decimal `json:"newPrice"`
	Reasoning                  string          `json:"reasoning"`
	Confidence                 float64         `json:"confidence"`
	ExpectedSales              int             `json:"expectedSales"`
}

type SelectionConfig struct {
	BaseDiscountPercent float64
	Multiplier          float64
	Formula             Formula
	Strategy            Strategy
	BundleBonuses       bool
	MaxDiscountPercent  float64
	// DemandScore is in [0,100]; nil means no signal.
	DemandScore *float64
	// SellThroughRate is a percentage; nil means no signal.
	SellThroughRate *float64
}

type BundleBonus struct {
	Name    string `json:"name"`
	Percent int    `json:"percent"`
}

type SelectionLine struct {
	ItemID          string          `json:"itemId"`
	Name            string          `json:"name"`
	OriginalPrice   decimal.Decimal `json:"originalPrice"`
	DiscountedPrice decimal.Decimal `json:"discountedPrice"`
}

type SelectionRecommendation struct {
	ItemCount            int             `json:"itemCount"`
	Formula              Formula         `json:"formula"`
	Strategy             Strategy        `json:"strategy,omitempty"`
	ProgressivePercent   int             `json:"progressiveDiscount"`
	StrategyPercent      int             `json:"strategyDiscount,omitempty"`
	Bundle               *BundleBonus    `json:"bundleBonus,omitempty"`
	TotalDiscountPercent int             `json:"totalDiscount"`
	Confidence           float64         `json:"confidence"`
	ExpectedSales        int             `json:"expectedSales"`
	TimeToSell           string          `json:"timeToSell,omitempty"`
	Reasoning            string          `json:"reasoning"`
	Lines                []SelectionLine `json:"items"`
	OriginalTotal        decimal.Decimal `json:"originalTotal"`
	DiscountedTotal      decimal.Decimal `json:"discountedTotal"`
	Savings              decimal.Decimal `json:"savings"`
}

type BulkResponse struct {
	StoreID         string           `json:"storeId"`
	TotalItems      int              `json:"totalItems"`
	Recommendations []Recommendation `json:"recommendations"`
	GeneratedAt     time.Time        `json:"generatedAt"`
}
