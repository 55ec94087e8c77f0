package engine

import (
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	markdowndomain "github.com/smallbiznis/perishables/internal/markdown/domain"
)

// Engine computes markdown recommendations. It holds no state besides the
// random source used for the confidence heuristic.
type Engine struct {
	mu  sync.Mutex
	rnd *rand.Rand
}

type Option func(*Engine)

// WithRand pins the confidence source so callers can reproduce results.
func WithRand(r *rand.Rand) Option {
	return func(e *Engine) {
		if r != nil {
			e.rnd = r
		}
	}
}

func New(opts ...Option) *Engine {
	e := &Engine{rnd: rand.New(rand.NewSource(time.Now().UnixNano()))}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

type tier struct {
	maxDays   float64
	discount  int
	reasoning string
}

// Most urgent first.
var itemTiers = []tier{
	{maxDays: 1, discount: 30, reasoning: "aggressive markdown, expires within a day"},
	{maxDays: 2, discount: 20, reasoning: "moderate markdown to clear within two days"},
	{maxDays: 3, discount: 15, reasoning: "light markdown to begin moving inventory"},
}

const (
	standardDiscount  = 10
	standardReasoning = "standard markdown"
)

func (e *Engine) RecommendForItem(in markdowndomain.ItemInput) markdowndomain.Recommendation {
	discount, reasoning := standardDiscount, standardReasoning
	for _, t := range itemTiers {
		if in.DaysToExpiry <= t.maxDays {
			discount, reasoning = t.discount, t.reasoning
			break
		}
	}

	return markdowndomain.Recommendation{
		ItemID:                     in.ItemID,
		Name:                       in.Name,
		DaysToExpiry:               in.DaysToExpiry,
		QuantityOnHand:             in.QuantityOnHand,
		CurrentPrice:               in.CurrentPrice,
		RecommendedDiscountPercent: discount,
		NewPrice:                   DiscountedPrice(in.CurrentPrice, float64(discount)),
		Reasoning:                  reasoning,
		Confidence:                 e.confidence(),
		ExpectedSales:              ExpectedSales(in.QuantityOnHand, float64(discount)),
	}
}

// RecommendForSelection prices a co-selected set of items with one uniform percentage.
func (e *Engine) RecommendForSelection(items []markdowndomain.ItemInput, cfg markdowndomain.SelectionConfig) markdowndomain.SelectionRecommendation {
	cfg = normalizeSelectionConfig(cfg)
	ceiling := cfg.MaxDiscountPercent
	n := len(items)

	rec := markdowndomain.SelectionRecommendation{
		ItemCount: n,
		Formula:   cfg.Formula,
		Strategy:  cfg.Strategy,
	}
	if n == 0 {
		rec.Reasoning = "no items selected"
		rec.OriginalTotal = decimal.Zero
		rec.DiscountedTotal = decimal.Zero
		rec.Savings = decimal.Zero
		return rec
	}

	progressive := progressiveDiscount(n, cfg)
	rec.ProgressivePercent = progressive
	total := progressive

	var outlook *strategyOutlook
	if cfg.Strategy != markdowndomain.StrategyNone {
		o := strategyFor(cfg.Strategy, averageDays(items), cfg)
		outlook = &o
		rec.StrategyPercent = o.discount
		rec.TimeToSell = o.timeToSell
		if o.discount > total {
			total = o.discount
		}
	}

	if cfg.BundleBonuses {
		if bonus := bundleBonusFor(n); bonus != nil {
			rec.Bundle = bonus
			total += bonus.Percent
		}
	}
	if float64(total) > ceiling {
		total = int(ceiling)
	}
	if total < 0 {
		total = 0
	}
	rec.TotalDiscountPercent = total

	originalTotal := decimal.Zero
	discountedTotal := decimal.Zero
	stock := 0
	expected := 0
	rec.Lines = make([]markdowndomain.SelectionLine, 0, n)
	for _, item := range items {
		discounted := DiscountedPrice(item.CurrentPrice, float64(total))
		rec.Lines = append(rec.Lines, markdowndomain.SelectionLine{
			ItemID:          item.ItemID,
			Name:            item.Name,
			OriginalPrice:   item.CurrentPrice,
			DiscountedPrice: discounted,
		})
		originalTotal = originalTotal.Add(item.CurrentPrice)
		discountedTotal = discountedTotal.Add(discounted)
		stock += item.QuantityOnHand
		expected += ExpectedSales(item.QuantityOnHand, float64(total))
	}
	rec.OriginalTotal = originalTotal
	rec.DiscountedTotal = discountedTotal
	rec.Savings = originalTotal.Sub(discountedTotal)

	if outlook != nil {
		rec.Confidence = outlook.confidence
		rec.ExpectedSales = int(math.Round(float64(stock) * outlook.sellFraction))
		rec.Reasoning = fmt.Sprintf("%s strategy over %d items, average %.1f days to expiry", cfg.Strategy, n, averageDays(items))
	} else {
		rec.Confidence = e.confidence()
		rec.ExpectedSales = expected
		rec.Reasoning = fmt.Sprintf("%s discount for %d items", cfg.Formula, n)
	}
	if rec.Bundle != nil {
		rec.Reasoning += fmt.Sprintf(", %s +%d%%", rec.Bundle.Name, rec.Bundle.Percent)
	}
	return rec
}

// DiscountedPrice returns price reduced by percent, rounded to cents.
func DiscountedPrice(price decimal.Decimal, percent float64) decimal.Decimal {
	factor := decimal.NewFromInt(1).Sub(decimal.NewFromFloat(percent).Div(decimal.NewFromInt(100)))
	return price.Mul(factor).Round(2)
}

// ExpectedSales is min(quantity, ceil(quantity × percent/100 × 2)).
func ExpectedSales(quantity int, percent float64) int {
	if quantity <= 0 || percent <= 0 {
		return 0
	}
	projected := int(math.Ceil(float64(quantity) * percent * 2 / 100))
	if projected > quantity {
		return quantity
	}
	return projected
}

func (e *Engine) confidence() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return 85 + e.rnd.Float64()*10
}

func normalizeSelectionConfig(cfg markdowndomain.SelectionConfig) markdowndomain.SelectionConfig {
	if !cfg.Formula.Valid() {
		cfg.Formula = markdowndomain.FormulaAdditiveGrowth
	}
	if !cfg.Strategy.Valid() {
		cfg.Strategy = markdowndomain.StrategyNone
	}
	if cfg.BaseDiscountPercent < 0 || math.IsNaN(cfg.BaseDiscountPercent) {
		cfg.BaseDiscountPercent = 0
	}
	if cfg.Multiplier < 0 || math.IsNaN(cfg.Multiplier) {
		cfg.Multiplier = 0
	}
	if cfg.MaxDiscountPercent <= 0 || cfg.MaxDiscountPercent > markdowndomain.MaxDiscountPercent {
		cfg.MaxDiscountPercent = markdowndomain.MaxDiscountPercent
	}
	return cfg
}

func progressiveDiscount(n int, cfg markdowndomain.SelectionConfig) int {
	var total float64
	switch cfg.Formula {
	case markdowndomain.FormulaLinearScale:
		total = cfg.BaseDiscountPercent * float64(n) * cfg.Multiplier
	default:
		total = cfg.BaseDiscountPercent + float64(n-1)*cfg.BaseDiscountPercent*cfg.Multiplier
	}
	total = math.Min(total, cfg.MaxDiscountPercent)
	return int(math.Round(total))
}

type strategyOutlook struct {
	discount     int
	confidence   float64
	sellFraction float64
	timeToSell   string
}

func strategyFor(strategy markdowndomain.Strategy, avgDays float64, cfg markdowndomain.SelectionConfig) strategyOutlook {
	var o strategyOutlook
	switch {
	case avgDays <= 1:
		o = strategyOutlook{discount: 30, confidence: 92, sellFraction: 0.85, timeToSell: "within 24 hours"}
	case avgDays <= 2:
		o = strategyOutlook{discount: 20, confidence: 88, sellFraction: 0.72, timeToSell: "within 48 hours"}
	default:
		o = strategyOutlook{discount: 15, confidence: 84, sellFraction: 0.58, timeToSell: "within 3-4 days"}
	}

	if cfg.DemandScore != nil && *cfg.DemandScore < 40 {
		o.discount += 5
	}
	if cfg.SellThroughRate != nil && *cfg.SellThroughRate < 50 {
		o.discount += 5
	}

	ceiling := int(cfg.MaxDiscountPercent)
	switch strategy {
	case markdowndomain.StrategyAggressive:
		o.discount += 10
		o.confidence -= 4
	case markdowndomain.StrategyConservative:
		o.discount -= 8
		if o.discount < 5 {
			o.discount = 5
		}
		o.confidence += 3
	}
	if o.discount > ceiling {
		o.discount = ceiling
	}
	return o
}

// bundleBonusFor returns the highest tier the selection size reaches.
func bundleBonusFor(n int) *markdowndomain.BundleBonus {
	switch {
	case n >= 4:
		return &markdowndomain.BundleBonus{Name: "family bonus", Percent: 12}
	case n >= 3:
		return &markdowndomain.BundleBonus{Name: "triple bonus", Percent: 8}
	case n >= 2:
		return &markdowndomain.BundleBonus{Name: "pair bonus", Percent: 5}
	default:
		return nil
	}
}

func averageDays(items []markdowndomain.ItemInput) float64 {
	if len(items) == 0 {
		return 0
	}
	sum := 0.0
	for _, item := range items {
		sum += item.DaysToExpiry
	}
	return sum / float64(len(items))
}
