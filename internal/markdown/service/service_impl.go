package service

import (
	"context"
	"strings"

	"github.com/smallbiznis/perishables/internal/clock"
	"github.com/smallbiznis/perishables/internal/config"
	inventorydomain "github.com/smallbiznis/perishables/internal/inventory/domain"
	markdowndomain "github.com/smallbiznis/perishables/internal/markdown/domain"
	"github.com/smallbiznis/perishables/internal/markdown/engine"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Log       *zap.Logger
	Clock     clock.Clock
	Engine    *engine.Engine
	Inventory inventorydomain.Service
	Config    *config.MarkdownConfigHolder `optional:"true"`
}

type Service struct {
	log       *zap.Logger
	clock     clock.Clock
	engine    *engine.Engine
	inventory inventorydomain.Service
	config    *config.MarkdownConfigHolder
}

func New(p Params) markdowndomain.Service {
	return &Service{
		log:       p.Log.Named("markdown.service"),
		clock:     p.Clock,
		engine:    p.Engine,
		inventory: p.Inventory,
		config:    p.Config,
	}
}

// Recommend returns single-item recommendations for every unexpired item within daysThreshold.
func (s *Service) Recommend(ctx context.Context, storeID string, daysThreshold int) (*markdowndomain.BulkResponse, error) {
	if daysThreshold <= 0 {
		daysThreshold = s.config.Get().DaysThreshold
	}

	items, err := s.inventory.GetExpiringItems(ctx, storeID, daysThreshold)
	if err != nil {
		return nil, err
	}

	recs := make([]markdowndomain.Recommendation, 0, len(items))
	for _, item := range items {
		if item.DaysToExpiry <= 0 {
			continue
		}
		recs = append(recs, s.engine.RecommendForItem(ToInput(item)))
	}

	s.log.Debug("recommendations computed",
		zap.String("store_id", storeID),
		zap.Int("days_threshold", daysThreshold),
		zap.Int("count", len(recs)),
	)

	return &markdowndomain.BulkResponse{
		StoreID:         storeID,
		TotalItems:      len(recs),
		Recommendations: recs,
		GeneratedAt:     s.clock.Now(),
	}, nil
}

func (s *Service) RecommendSelection(ctx context.Context, storeID string, req markdowndomain.SelectionRequest) (*markdowndomain.SelectionRecommendation, error) {
	ids := dedupe(req.ItemIDs)
	if len(ids) == 0 {
		return nil, markdowndomain.ErrEmptySelection
	}

	cfg, err := s.selectionConfig(req)
	if err != nil {
		return nil, err
	}

	inputs := make([]markdowndomain.ItemInput, 0, len(ids))
	for _, id := range ids {
		item, err := s.inventory.GetItem(ctx, id)
		if err != nil {
			return nil, err
		}
		if item.StoreID != storeID {
			return nil, markdowndomain.ErrItemNotInStore
		}
		inputs = append(inputs, ToInput(*item))
	}

	rec := s.engine.RecommendForSelection(inputs, cfg)
	return &rec, nil
}

func (s *Service) selectionConfig(req markdowndomain.SelectionRequest) (markdowndomain.SelectionConfig, error) {
	defaults := s.config.Get()
	cfg := markdowndomain.SelectionConfig{
		BaseDiscountPercent: defaults.BaseDiscountPercent,
		Multiplier:          defaults.Multiplier,
		Formula:             markdowndomain.Formula(defaults.Formula),
		Strategy:            markdowndomain.Strategy(defaults.Strategy),
		BundleBonuses:       defaults.BundleBonuses,
		MaxDiscountPercent:  defaults.MaxDiscountPercent,
		DemandScore:         req.DemandScore,
		SellThroughRate:     req.SellThroughRate,
	}

	if req.BaseDiscountPercent != nil {
		if *req.BaseDiscountPercent < 0 || *req.BaseDiscountPercent > markdowndomain.MaxDiscountPercent {
			return cfg, markdowndomain.ErrInvalidConfig
		}
		cfg.BaseDiscountPercent = *req.BaseDiscountPercent
	}
	if req.Multiplier != nil {
		if *req.Multiplier < 0 {
			return cfg, markdowndomain.ErrInvalidConfig
		}
		cfg.Multiplier = *req.Multiplier
	}
	if req.Formula != nil {
		if !req.Formula.Valid() {
			return cfg, markdowndomain.ErrInvalidFormula
		}
		cfg.Formula = *req.Formula
	}
	if req.Strategy != nil {
		if !req.Strategy.Valid() {
			return cfg, markdowndomain.ErrInvalidStrategy
		}
		cfg.Strategy = *req.Strategy
	}
	if req.BundleBonuses != nil {
		cfg.BundleBonuses = *req.BundleBonuses
	}
	if req.DemandScore != nil && (*req.DemandScore < 0 || *req.DemandScore > 100) {
		return cfg, markdowndomain.ErrInvalidConfig
	}
	return cfg, nil
}

// ToInput maps an inventory view onto the engine's input shape.
func ToInput(item inventorydomain.ItemView) markdowndomain.ItemInput {
	return markdowndomain.ItemInput{
		ItemID:         item.ID,
		Name:           item.Name,
		DaysToExpiry:   float64(item.DaysToExpiry),
		QuantityOnHand: item.QuantityOnHand,
		CurrentPrice:   item.CurrentPrice,
	}
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
