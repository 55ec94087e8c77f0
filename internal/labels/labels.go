// Package labels renders shelf-edge markdown labels for a store.
package labels

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/perishables/internal/clock"
	inventorydomain "github.com/smallbiznis/perishables/internal/inventory/domain"
	pricingdomain "github.com/smallbiznis/perishables/internal/pricing/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var ErrInvalidStore = errors.New("invalid_store")

type HistorySource interface {
	History(ctx context.Context, storeID string, limit int) ([]pricingdomain.MarkdownRecord, error)
}

type ItemSource interface {
	ListByStore(ctx context.Context, storeID string) ([]inventorydomain.ItemView, error)
}

// Label is one printed tag.
type Label struct {
	ItemID          string
	SKU             string
	Name            string
	WasPrice        decimal.Decimal
	NowPrice        decimal.Decimal
	DiscountPercent int
	BestByDate      string
	DaysToExpiry    int
	AppliedAt       time.Time
}

type Params struct {
	fx.In

	Log       *zap.Logger
	Clock     clock.Clock
	Pricing   pricingdomain.Service
	Inventory inventorydomain.Service
}

type Service struct {
	log     *zap.Logger
	clock   clock.Clock
	history HistorySource
	items   ItemSource
}

func New(p Params) *Service {
	return NewService(p.Log, p.Clock, p.Pricing, p.Inventory)
}

func NewService(log *zap.Logger, clk clock.Clock, history HistorySource, items ItemSource) *Service {
	return &Service{
		log:     log.Named("labels.service"),
		clock:   clk,
		history: history,
		items:   items,
	}
}

// Labels returns one label per item whose shelf price still matches its latest markdown.
// The was price is the price before the earliest markdown in the history window.
func (s *Service) Labels(ctx context.Context, storeID string) ([]Label, error) {
	storeID = strings.TrimSpace(storeID)
	if storeID == "" {
		return nil, ErrInvalidStore
	}
	records, err := s.history.History(ctx, storeID, pricingdomain.MaxHistoryLimit)
	if err != nil {
		return nil, err
	}
	items, err := s.items.ListByStore(ctx, storeID)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]inventorydomain.ItemView, len(items))
	for _, item := range items {
		byID[item.ID] = item
	}

	// records arrive newest first
	latest := map[string]pricingdomain.MarkdownRecord{}
	was := map[string]decimal.Decimal{}
	for _, rec := range records {
		if _, ok := latest[rec.ItemID]; !ok {
			latest[rec.ItemID] = rec
		}
		was[rec.ItemID] = rec.OldPrice
	}

	out := make([]Label, 0, len(latest))
	for itemID, rec := range latest {
		item, ok := byID[itemID]
		if !ok || !item.CurrentPrice.Equal(rec.NewPrice) {
			continue
		}
		original := was[itemID]
		out = append(out, Label{
			ItemID:          itemID,
			SKU:             item.SKU,
			Name:            item.Name,
			WasPrice:        original,
			NowPrice:        rec.NewPrice,
			DiscountPercent: percentOff(original, rec.NewPrice),
			BestByDate:      item.BestByDate,
			DaysToExpiry:    item.DaysToExpiry,
			AppliedAt:       rec.CreatedAt,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].DaysToExpiry != out[j].DaysToExpiry {
			return out[i].DaysToExpiry < out[j].DaysToExpiry
		}
		return out[i].SKU < out[j].SKU
	})
	return out, nil
}

// StorePDF renders the store's current labels.
func (s *Service) StorePDF(ctx context.Context, storeID string) ([]byte, error) {
	labels, err := s.Labels(ctx, storeID)
	if err != nil {
		return nil, err
	}
	doc, err := Render(storeID, labels, s.clock.Now())
	if err != nil {
		s.log.Error("label render failed", zap.String("store_id", storeID), zap.Error(err))
		return nil, err
	}
	return doc, nil
}

func percentOff(was, now decimal.Decimal) int {
	if !was.IsPositive() {
		return 0
	}
	off := was.Sub(now).Div(was).Mul(decimal.NewFromInt(100)).Round(0)
	return int(off.IntPart())
}
